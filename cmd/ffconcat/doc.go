// Command ffconcat joins several media files into one without
// re-encoding.
//
// Every input must carry the same stream layout as the first one. Packets
// are copied and their timestamps shifted by the running duration of the
// inputs before them, so the output plays as one continuous timeline.
//
// Usage:
//
//	ffconcat [options] -o output input...
//
// Example:
//
//	ffconcat -o full.mp4 part1.mp4 part2.mp4 part3.mp4
//
// The output format follows the output extension unless -f names a muxer.
package main
