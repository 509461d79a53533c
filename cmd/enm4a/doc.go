// Command enm4a writes the audio of any FFmpeg-readable source to an
// iPod-compatible .m4a file.
//
// AAC audio is copied as is; any other codec is decoded and re-encoded to
// AAC. A picture stream in the input, or a separate file given with -c,
// becomes the cover. Tags given on the command line override the ones
// found in the input.
//
// Usage:
//
//	enm4a [options] input
//
// Examples:
//
//	enm4a -o song.m4a song.flac
//	enm4a -c cover.jpg -title "Intro" -artist "Someone" track01.opus
//	enm4a -H "Referer: https://example.com/" https://example.com/a.mp3
//
// The output defaults to "<title>.m4a", or "a.m4a" when the input has no
// title. An existing output is overwritten only after confirmation on a
// terminal, or with -y.
//
// Environment:
//
//	DEFAULT_SAMPLE_RATE - rate used when the encoder rejects the source rate (default: 48000)
//	FFMPEG_LOG_LEVEL    - FFmpeg log level (default: error)
//	METRICS_TEXTFILE    - write Prometheus metrics to this file on exit
//
// Exit status is 0 on success, 2 when the job was refused (no audio
// stream, unsupported sample rate, output exists) and 1 on any other
// failure.
package main
