// Package timebase converts timestamps between rational time bases.
//
// Every stream in a container counts time in its own unit (1/44100 for
// audio sampled at 44.1kHz, 1/90000 for MPEG-TS, 1/1000 for Matroska).
// Moving a packet from one stream to another means rescaling its PTS, DTS
// and duration from the source unit to the destination unit.
//
// Rescaling uses an exact 128-bit intermediate product, so it never wraps.
// Results that do not fit in int64 saturate just inside the int64 range,
// leaving math.MinInt64 and math.MaxInt64 free to act as the NoTimestamp
// and NoDuration sentinels. Sentinels are passed through unchanged.
//
// The package also provides Guard, which keeps the DTS sequence of one
// output stream strictly increasing.
package timebase
