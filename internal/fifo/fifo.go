package fifo

import (
	"errors"
	"fmt"

	"remuxkit/internal/av"
)

var (
	// ErrAllocation is returned when the buffer cannot grow any further.
	ErrAllocation = errors.New("sample buffer allocation failed")
	// ErrPlaneMismatch is returned when written data does not match the
	// FIFO's plane layout.
	ErrPlaneMismatch = errors.New("plane layout mismatch")
)

// MaxBytes caps the size of a single plane.
const MaxBytes = 1 << 30

// SampleFIFO is a growable ring buffer of audio samples, one ring per
// plane. Positions and sizes are counted in samples.
type SampleFIFO struct {
	planes     [][]byte
	sampleSize int
	capacity   int
	head       int
	size       int
}

// NewSampleFIFO returns a FIFO for format with room for initial samples.
func NewSampleFIFO(format av.AudioFormat, initial int) *SampleFIFO {
	if initial < 1 {
		initial = 1
	}
	f := &SampleFIFO{
		planes:     make([][]byte, format.Planes()),
		sampleSize: format.PlaneSampleSize(),
		capacity:   initial,
	}
	for i := range f.planes {
		f.planes[i] = make([]byte, initial*f.sampleSize)
	}
	return f
}

// Size returns the number of buffered samples.
func (f *SampleFIFO) Size() int {
	return f.size
}

// Planes returns the number of planes.
func (f *SampleFIFO) Planes() int {
	return len(f.planes)
}

// Reset discards all buffered samples.
func (f *SampleFIFO) Reset() {
	f.head = 0
	f.size = 0
}

// Write appends n samples from planes.
func (f *SampleFIFO) Write(planes [][]byte, n int) error {
	if n == 0 {
		return nil
	}
	if len(planes) != len(f.planes) {
		return fmt.Errorf("%w: got %d planes, want %d", ErrPlaneMismatch, len(planes), len(f.planes))
	}
	want := n * f.sampleSize
	for i, p := range planes {
		if len(p) < want {
			return fmt.Errorf("%w: plane %d holds %d bytes, need %d", ErrPlaneMismatch, i, len(p), want)
		}
	}
	if f.size+n > f.capacity {
		if err := f.grow(f.size + n); err != nil {
			return err
		}
	}

	tail := (f.head + f.size) % f.capacity
	first := min(n, f.capacity-tail)
	for i, p := range planes {
		copy(f.planes[i][tail*f.sampleSize:], p[:first*f.sampleSize])
		copy(f.planes[i], p[first*f.sampleSize:want])
	}
	f.size += n
	return nil
}

// Read moves up to n samples into dst and returns how many were moved.
// Each dst plane must hold at least n samples.
func (f *SampleFIFO) Read(dst [][]byte, n int) (int, error) {
	n = min(n, f.size)
	if n == 0 {
		return 0, nil
	}
	if len(dst) != len(f.planes) {
		return 0, fmt.Errorf("%w: got %d planes, want %d", ErrPlaneMismatch, len(dst), len(f.planes))
	}
	want := n * f.sampleSize
	for i, p := range dst {
		if len(p) < want {
			return 0, fmt.Errorf("%w: plane %d holds %d bytes, need %d", ErrPlaneMismatch, i, len(p), want)
		}
	}

	first := min(n, f.capacity-f.head)
	for i, p := range dst {
		copy(p, f.planes[i][f.head*f.sampleSize:(f.head+first)*f.sampleSize])
		copy(p[first*f.sampleSize:want], f.planes[i])
	}
	f.head = (f.head + n) % f.capacity
	f.size -= n
	if f.size == 0 {
		f.head = 0
	}
	return n, nil
}

func (f *SampleFIFO) grow(need int) error {
	capacity := max(f.capacity*2, need)
	if capacity*f.sampleSize > MaxBytes {
		return fmt.Errorf("%w: %d samples", ErrAllocation, capacity)
	}
	for i, old := range f.planes {
		buf := make([]byte, capacity*f.sampleSize)
		first := min(f.size, f.capacity-f.head)
		copy(buf, old[f.head*f.sampleSize:(f.head+first)*f.sampleSize])
		copy(buf[first*f.sampleSize:], old[:(f.size-first)*f.sampleSize])
		f.planes[i] = buf
	}
	f.head = 0
	f.capacity = capacity
	return nil
}
