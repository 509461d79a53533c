package timebase

import (
	"math"
	"testing"
)

func TestGuardStrictlyIncreasing(t *testing.T) {
	var g Guard
	input := []struct{ dts, pts int64 }{
		{0, 0}, {10, 10}, {10, 12}, {5, 5}, {20, 25}, {20, 18},
	}
	var last int64 = NoTimestamp
	for i, in := range input {
		dts, pts, _ := g.Correct(in.dts, in.pts)
		if last != NoTimestamp && dts <= last {
			t.Errorf("Packet %d: dts %d does not advance past %d", i, dts, last)
		}
		if pts < dts {
			t.Errorf("Packet %d: pts %d precedes dts %d", i, pts, dts)
		}
		last = dts
	}
	if g.Corrections() != 3 {
		t.Errorf("Expected 3 corrections, got %d", g.Corrections())
	}
}

func TestGuardCorrection(t *testing.T) {
	var g Guard
	g.Correct(100, 100)

	dts, pts, corrected := g.Correct(100, 150)
	if !corrected {
		t.Fatal("Expected equal dts to be corrected")
	}
	if dts != 101 {
		t.Errorf("Expected dts 101, got %d", dts)
	}
	if pts != 150 {
		t.Errorf("Expected pts to stay 150, got %d", pts)
	}

	dts, pts, corrected = g.Correct(50, 50)
	if !corrected || dts != 102 || pts != 102 {
		t.Errorf("Expected (102, 102, true), got (%d, %d, %v)", dts, pts, corrected)
	}
}

func TestGuardNoTimestamp(t *testing.T) {
	var g Guard
	g.Correct(10, 10)
	dts, _, corrected := g.Correct(NoTimestamp, NoTimestamp)
	if corrected || dts != NoTimestamp {
		t.Errorf("Expected NoTimestamp to pass through, got %d (corrected=%v)", dts, corrected)
	}
	if last, ok := g.Last(); !ok || last != 10 {
		t.Errorf("Expected last dts 10, got %d (%v)", last, ok)
	}
}

func TestGuardSaturates(t *testing.T) {
	var g Guard
	ceiling := Rescale(math.MaxInt64/2, New(1, 1), New(1, 90000))
	if ceiling != math.MaxInt64-1 {
		t.Fatalf("Expected rescale to saturate, got %d", ceiling)
	}
	g.Correct(ceiling, ceiling)
	if g.Saturated() {
		t.Fatal("Reaching the ceiling alone should not saturate the guard")
	}

	for i := 0; i < 2; i++ {
		dts, pts, corrected := g.Correct(0, 0)
		if !corrected {
			t.Errorf("Call %d: expected a correction", i)
		}
		if dts == NoDuration || dts == NoTimestamp || pts == NoDuration || pts == NoTimestamp {
			t.Fatalf("Call %d: correction produced a sentinel (%d, %d)", i, dts, pts)
		}
		if dts != ceiling {
			t.Errorf("Call %d: expected dts held at %d, got %d", i, ceiling, dts)
		}
	}
	if !g.Saturated() {
		t.Error("Expected guard to report saturation")
	}
}
