// Package fifo buffers converted audio samples between a decoder and an
// encoder that needs a fixed number of samples per frame.
//
// Decoders emit frames of whatever size the source codec uses (1152 for
// MP3, 4096 for some FLAC files) while AAC wants exactly 1024. A
// Reformatter pushes every decoded frame through a resampler into a
// SampleFIFO, then hands out frames of the encoder's size. Samples are
// copied byte for byte: nothing is dropped, duplicated or reordered.
package fifo
