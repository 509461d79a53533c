package timebase

import (
	"math"
	"math/bits"
)

// Sentinel timestamps. Rescale never produces them from a real value.
const (
	NoTimestamp int64 = math.MinInt64
	NoDuration  int64 = math.MaxInt64
)

const (
	maxValue = math.MaxInt64 - 1
	minValue = math.MinInt64 + 1
)

// Rounding selects how RescaleRnd rounds inexact results.
type Rounding int

const (
	// RoundZero rounds toward zero.
	RoundZero Rounding = iota
	// RoundInf rounds away from zero.
	RoundInf
	// RoundDown rounds toward negative infinity.
	RoundDown
	// RoundUp rounds toward positive infinity.
	RoundUp
	// RoundNearInf rounds to nearest, halfway cases away from zero.
	RoundNearInf

	// PassMinMax makes NoTimestamp and NoDuration pass through unchanged.
	PassMinMax Rounding = 1 << 13
)

const roundMask = PassMinMax - 1

// Rescale converts v from one time base to another, rounding to nearest
// and passing sentinels through.
func Rescale(v int64, from, to Rational) int64 {
	return RescaleRnd(v, from, to, RoundNearInf|PassMinMax)
}

// RescaleDelta converts a duration between time bases. It is Rescale under
// a name that reads better at call sites handling durations.
func RescaleDelta(d int64, from, to Rational) int64 {
	return Rescale(d, from, to)
}

// Add returns a+b clamped to the range Rescale produces. A sentinel
// operand is returned unchanged.
func Add(a, b int64) int64 {
	switch {
	case a == NoTimestamp || a == NoDuration:
		return a
	case b == NoTimestamp || b == NoDuration:
		return b
	}
	sum := a + b
	switch {
	case b > 0 && (sum < a || sum > maxValue):
		return maxValue
	case b < 0 && (sum > a || sum < minValue):
		return minValue
	}
	return sum
}

// RescaleRnd converts v from one time base to another with the given
// rounding. Invalid time bases yield NoTimestamp.
func RescaleRnd(v int64, from, to Rational, rnd Rounding) int64 {
	b := int64(from.Num) * int64(to.Den)
	c := int64(to.Num) * int64(from.Den)
	return MulDiv(v, b, c, rnd)
}

// MulDiv returns v*b/c computed without intermediate overflow.
// b must be non-negative and c positive, otherwise NoTimestamp is returned.
func MulDiv(v, b, c int64, rnd Rounding) int64 {
	if c <= 0 || b < 0 {
		return NoTimestamp
	}
	mode := rnd & roundMask
	if mode > RoundNearInf {
		return NoTimestamp
	}
	if rnd&PassMinMax != 0 && (v == NoTimestamp || v == NoDuration) {
		return v
	}

	if v < 0 {
		if v == math.MinInt64 {
			v = -math.MaxInt64
		}
		// Rounding toward a direction flips when the sign flips.
		switch mode {
		case RoundDown:
			mode = RoundUp
		case RoundUp:
			mode = RoundDown
		}
		q, overflow := mulDivUnsigned(uint64(-v), uint64(b), uint64(c), mode)
		if overflow || q > uint64(-minValue) {
			return minValue
		}
		return -int64(q)
	}

	q, overflow := mulDivUnsigned(uint64(v), uint64(b), uint64(c), mode)
	if overflow || q > maxValue {
		return maxValue
	}
	return int64(q)
}

func mulDivUnsigned(a, b, c uint64, mode Rounding) (uint64, bool) {
	var r uint64
	switch mode {
	case RoundNearInf:
		r = c / 2
	case RoundInf, RoundUp:
		r = c - 1
	}

	hi, lo := bits.Mul64(a, b)
	lo, carry := bits.Add64(lo, r, 0)
	hi += carry
	if hi >= c {
		return 0, true
	}
	q, _ := bits.Div64(hi, lo, c)
	return q, false
}
