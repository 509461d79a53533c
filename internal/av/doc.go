// Package av defines the contracts between the remux/transcode kernel and
// the media framework underneath it.
//
// The kernel (classify, fifo, encode, pipeline) only talks to the
// interfaces declared here: Demuxer, Decoder, Encoder, Resampler and Muxer,
// created through a Framework. The production implementation lives in
// package libav and binds FFmpeg. Package avtest provides in-memory fakes
// used by the kernel tests.
//
// Blocking reads signal exhaustion with io.EOF. Decoders and encoders that
// need another input before they can produce output return
// ErrNeedMoreInput from their receive calls.
//
// Errors crossing package boundaries are classified with Error, whose Kind
// tells callers whether a failure came from resource exhaustion, the
// framework itself, or a policy decision.
package av
