// Command ugoira turns a zip of still frames into an H.264 MP4.
//
// Usage:
//
//	ugoira [options] frames.zip output.mp4 000000.jpg:100 000001.jpg:50
//	ugoira [options] -frames frames.json frames.zip output.mp4
//
// Each frame is shown for its delay in milliseconds. The output frame rate
// is the smallest one that lands on every frame boundary, capped by
// -max-fps; frames are repeated to fill their delay. The frames file is a
// JSON array of {"file": "000000.jpg", "delay": 100} objects.
//
// libx264 is used when available, then the hardware encoders, then any
// H.264 encoder FFmpeg provides.
package main
