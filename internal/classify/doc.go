// Package classify decides what happens to every input stream of a job.
//
// Each stream is routed as Copy (forwarded packet by packet with rescaled
// timestamps), Transcode (decoded and re-encoded) or Drop. At most one
// still image and one audio stream are kept by Classify; ClassifyAll keeps
// every audio, video and subtitle stream for concatenation.
//
// The resulting Table is immutable and maps (source, input index) pairs to
// output stream indices, assigned densely from zero in the order streams
// will be added to the muxer.
package classify
