package timebase

import (
	"fmt"
	"strconv"
	"strings"
)

// Rational is a time base: one tick lasts Num/Den seconds.
type Rational struct {
	Num int
	Den int
}

// Common time bases.
var (
	// AVTimeBase is the microsecond unit used for container-level durations.
	AVTimeBase  = Rational{Num: 1, Den: 1000000}
	Millisecond = Rational{Num: 1, Den: 1000}
	Second      = Rational{Num: 1, Den: 1}
)

// New returns num/den.
func New(num, den int) Rational {
	return Rational{Num: num, Den: den}
}

// Valid reports whether r can be used as a time base.
func (r Rational) Valid() bool {
	return r.Num > 0 && r.Den > 0
}

// Invert returns den/num.
func (r Rational) Invert() Rational {
	return Rational{Num: r.Den, Den: r.Num}
}

// Float64 returns the value of r in seconds per tick.
func (r Rational) Float64() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

// String formats r as "num/den".
func (r Rational) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

// Parse reads "num/den" or a bare integer (den 1).
func Parse(s string) (Rational, error) {
	num, den, found := strings.Cut(strings.TrimSpace(s), "/")
	n, err := strconv.Atoi(num)
	if err != nil {
		return Rational{}, fmt.Errorf("invalid time base %q: %w", s, err)
	}
	d := 1
	if found {
		if d, err = strconv.Atoi(den); err != nil {
			return Rational{}, fmt.Errorf("invalid time base %q: %w", s, err)
		}
	}
	r := Rational{Num: n, Den: d}
	if !r.Valid() {
		return Rational{}, fmt.Errorf("invalid time base %q", s)
	}
	return r, nil
}
