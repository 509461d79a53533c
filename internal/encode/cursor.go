package encode

import (
	"remuxkit/internal/av"
	"remuxkit/internal/timebase"
)

// Cursor is the running PTS of an encoder input, in the encoder's time
// base.
type Cursor struct {
	next int64
}

// Stamp sets frame's PTS to the cursor, then advances the cursor by count
// units of countBase rescaled to outBase.
func (c *Cursor) Stamp(frame av.Frame, count int64, countBase, outBase timebase.Rational) {
	frame.SetPTS(c.next)
	c.Advance(count, countBase, outBase)
}

// Advance moves the cursor without stamping a frame.
func (c *Cursor) Advance(count int64, countBase, outBase timebase.Rational) {
	c.next = timebase.Add(c.next, timebase.Rescale(count, countBase, outBase))
}

// Value returns the PTS the next frame will get.
func (c *Cursor) Value() int64 {
	return c.next
}

// Reset rewinds the cursor to zero. Only concatenation of several inputs
// into one encoder needs this.
func (c *Cursor) Reset() {
	c.next = 0
}
