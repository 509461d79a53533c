package timebase

import "errors"

// ErrSaturated is reported once a stream's DTS has reached the largest
// representable value and can no longer advance.
var ErrSaturated = errors.New("timestamps saturated")

// Guard keeps the DTS sequence of one output stream strictly increasing.
// The zero value is ready to use.
type Guard struct {
	last      int64
	started   bool
	saturated bool
	count     int64
}

// Correct checks dts against the last accepted value. When dts does not
// advance, it is bumped to last+1 and pts is raised to match if it would
// otherwise precede the new dts. NoTimestamp is passed through and not
// recorded. A bump never goes past the saturated maximum; the guard then
// reports Saturated and the returned dts repeats the last one.
func (g *Guard) Correct(dts, pts int64) (int64, int64, bool) {
	if dts == NoTimestamp {
		return dts, pts, false
	}
	corrected := false
	if g.started && g.last >= dts {
		if g.last >= maxValue {
			dts = maxValue
			g.saturated = true
		} else {
			dts = g.last + 1
		}
		if pts != NoTimestamp && pts < dts {
			pts = dts
		}
		corrected = true
		g.count++
	}
	g.last = dts
	g.started = true
	return dts, pts, corrected
}

// Saturated reports whether a correction could not advance past the
// maximum timestamp.
func (g *Guard) Saturated() bool {
	return g.saturated
}

// Last returns the last accepted DTS and whether one has been recorded.
func (g *Guard) Last() (int64, bool) {
	return g.last, g.started
}

// Corrections returns how many timestamps were rewritten.
func (g *Guard) Corrections() int64 {
	return g.count
}
