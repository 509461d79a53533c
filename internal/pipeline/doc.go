// Package pipeline runs remux and transcode jobs from opened inputs to a
// finished output file.
//
// A job moves through a fixed sequence of states:
//
//	Init → HeaderWritten → ImageDrain → MainLoop → Flushing → TrailerWritten → Closed
//
// ImageDrain only happens when the cover picture comes from a separate
// file. MainLoop reads one packet at a time and routes it according to the
// classify.Table: dropped, copied with rebased timestamps, or decoded,
// reformatted and re-encoded. Flushing empties the decoder, the sample FIFO
// and the encoder before the trailer is written.
//
// Jobs are synchronous and own every resource they open. Every resource is
// released exactly once on every exit path, and an output file whose
// trailer was never written is removed. Callers run jobs in parallel by
// running several of them on separate goroutines.
//
// Errors are av.Error values: policy refusals (no audio, unsupported
// sample rate, existing output) are reported before any output file is
// created.
package pipeline
