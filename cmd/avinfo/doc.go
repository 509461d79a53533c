// Command avinfo prints the container, stream and chapter information of
// a media file or URL as JSON.
//
// Usage:
//
//	avinfo [-c] [-H key:value]... input
//
// The duration is in microseconds, or -1 when the container does not know
// it. Stream and chapter time bases are written as "num/den".
package main
