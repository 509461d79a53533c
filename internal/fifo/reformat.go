package fifo

import (
	"errors"
	"fmt"

	"remuxkit/internal/av"
)

var (
	// ErrResample is returned when the resampler rejects a frame.
	ErrResample = errors.New("resample failed")
	// ErrMisuse is returned when the Reformatter is driven out of order.
	ErrMisuse = errors.New("reformatter misuse")
)

// Reformatter converts decoded audio into the encoder's format and cuts it
// into frames of the encoder's frame size.
type Reformatter struct {
	resampler av.Resampler
	encoder   av.AudioEncoder
	fifo      *SampleFIFO
	frameSize int
	closed    bool
}

// NewReformatter returns a Reformatter feeding enc through r.
func NewReformatter(r av.Resampler, enc av.AudioEncoder) *Reformatter {
	frameSize := enc.FrameSize()
	return &Reformatter{
		resampler: r,
		encoder:   enc,
		fifo:      NewSampleFIFO(enc.Format(), max(frameSize, 1024)*2),
		frameSize: frameSize,
	}
}

// Push converts frame and appends the result.
func (r *Reformatter) Push(frame av.AudioFrame) error {
	if r.closed {
		return av.FrameworkError("push samples", 0, fmt.Errorf("%w: push after flush", ErrMisuse))
	}
	return r.convert(frame)
}

// Flush drains samples still buffered inside the resampler. After Flush,
// Ready reports true for a final partial frame.
func (r *Reformatter) Flush() error {
	if r.closed {
		return nil
	}
	if err := r.convert(nil); err != nil {
		return err
	}
	r.closed = true
	return nil
}

func (r *Reformatter) convert(frame av.AudioFrame) error {
	planes, n, err := r.resampler.Convert(frame)
	if err != nil {
		return av.FrameworkError("resample", 0, fmt.Errorf("%w: %w", ErrResample, err))
	}
	if err := r.fifo.Write(planes, n); err != nil {
		if errors.Is(err, ErrAllocation) {
			return av.Resource("buffer samples", err)
		}
		return av.FrameworkError("buffer samples", 0, err)
	}
	return nil
}

// Size returns the number of buffered samples.
func (r *Reformatter) Size() int {
	return r.fifo.Size()
}

// Ready reports whether a frame can be pulled: a full frame is buffered,
// or the encoder takes any size, or the input is flushed and samples remain.
func (r *Reformatter) Ready() bool {
	size := r.fifo.Size()
	if size == 0 {
		return false
	}
	return r.frameSize == 0 || r.closed || size >= r.frameSize
}

// ChunkSize returns the sample count the next Pull should request.
func (r *Reformatter) ChunkSize() int {
	size := r.fifo.Size()
	if r.frameSize == 0 {
		return size
	}
	return min(size, r.frameSize)
}

// Pull removes n samples and returns them as an encoder frame. Fewer than
// n samples may only be taken once the input is flushed. Pull returns nil
// when nothing is buffered.
func (r *Reformatter) Pull(n int) (av.AudioFrame, error) {
	size := r.fifo.Size()
	if size == 0 || n <= 0 {
		return nil, nil
	}
	if n > size {
		if !r.closed {
			return nil, av.FrameworkError("pull samples", 0, fmt.Errorf("%w: pull %d samples with %d buffered", ErrMisuse, n, size))
		}
		n = size
	}

	frame, err := r.encoder.NewFrame(n)
	if err != nil {
		return nil, av.Resource("allocate frame", err)
	}
	planes := make([][]byte, r.fifo.Planes())
	for i := range planes {
		planes[i] = make([]byte, n*r.fifo.sampleSize)
	}
	if _, err := r.fifo.Read(planes, n); err != nil {
		frame.Release()
		return nil, av.FrameworkError("read samples", 0, err)
	}
	if err := frame.SetPlanes(planes); err != nil {
		frame.Release()
		return nil, av.FrameworkError("fill frame", 0, err)
	}
	return frame, nil
}
