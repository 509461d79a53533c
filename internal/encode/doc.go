// Package encode drives an encoder through its send/receive protocol.
//
// A Drainer feeds one frame, then receives packets until the encoder asks
// for more input or reports end of stream, forwarding each packet to a
// sink. Feeding a nil frame starts flushing; Flush repeats that until the
// encoder produces nothing more.
//
// A Cursor assigns presentation timestamps to the frames an encoder
// receives when they come from a reformatting buffer or a repeated still
// image rather than straight from a decoder.
package encode
