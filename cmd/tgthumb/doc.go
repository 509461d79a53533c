// Command tgthumb makes a Telegram thumbnail, at most 320x320, from the
// first picture of an image or video.
//
// Usage:
//
//	tgthumb [-f jpeg|webp] input output
//
// A source that already fits and is in the requested codec is copied
// without re-encoding. Otherwise the first frame is decoded, long pictures
// are center-cropped and the result is scaled to fit.
package main
