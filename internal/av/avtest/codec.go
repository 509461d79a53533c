package avtest

import (
	"image"
	"io"

	"remuxkit/internal/av"
	"remuxkit/internal/timebase"
)

// Decoder is a fake decoder. Audio packets become one AudioFrame each,
// carrying the packet payload as a single interleaved plane. When Picture
// is set, every packet decodes to that picture instead.
type Decoder struct {
	Format  av.AudioFormat
	Picture image.Image
	// Delay is how many decoded frames are held back until the decoder
	// is drained.
	Delay int

	pending  []av.Frame
	draining bool
	Closed   bool
	Sent     int
}

func (d *Decoder) SendPacket(p av.Packet) error {
	if p == nil {
		d.draining = true
		return nil
	}
	d.Sent++
	if d.Picture != nil {
		d.pending = append(d.pending, &VideoFrame{Pts: p.PTS(), Img: d.Picture, Format: "rgba"})
		return nil
	}
	payload := append([]byte(nil), p.Data()...)
	n := 0
	if size := d.Format.PlaneSampleSize(); size > 0 {
		n = len(payload) / size
	}
	d.pending = append(d.pending, &AudioFrame{Pts: p.PTS(), Samples: n, Data: [][]byte{payload}})
	return nil
}

func (d *Decoder) ReceiveFrame() (av.Frame, error) {
	if len(d.pending) > d.Delay || (d.draining && len(d.pending) > 0) {
		f := d.pending[0]
		d.pending = d.pending[1:]
		return f, nil
	}
	if d.draining {
		return nil, io.EOF
	}
	return nil, av.ErrNeedMoreInput
}

func (d *Decoder) Close() { d.Closed = true }

// FrameRecord is what an Encoder saw for one frame.
type FrameRecord struct {
	Pts     int64
	Samples int
	Payload []byte
}

// Encoder is a fake audio and video encoder. Each frame produces one
// packet, held back until Delay further frames have been sent so that
// flushing has something to drain.
type Encoder struct {
	Name     string
	Size     int
	Base     timebase.Rational
	Audio    av.AudioFormat
	Delay    int
	FailSend error

	Frames   []FrameRecord
	queue    []*Packet
	held     []*Packet
	flushing bool
	done     bool
	Closed   bool
	Flushes  int
}

func (e *Encoder) SendFrame(f av.Frame) error {
	if e.FailSend != nil {
		return e.FailSend
	}
	if f == nil {
		if !e.flushing {
			e.flushing = true
			e.queue = append(e.queue, e.held...)
			e.held = nil
		}
		e.Flushes++
		return nil
	}
	if e.flushing {
		return io.EOF
	}
	rec := FrameRecord{Pts: f.PTS()}
	dur := int64(1)
	if af, ok := f.(av.AudioFrame); ok {
		rec.Samples = af.NbSamples()
		dur = int64(rec.Samples)
		if planes, err := af.Planes(); err == nil {
			for _, p := range planes {
				rec.Payload = append(rec.Payload, p...)
			}
		}
	}
	e.Frames = append(e.Frames, rec)
	e.held = append(e.held, &Packet{Stream: -1, Pts: rec.Pts, Dts: rec.Pts, Dur: dur, Pos: -1, Payload: rec.Payload})
	for len(e.held) > e.Delay {
		e.queue = append(e.queue, e.held[0])
		e.held = e.held[1:]
	}
	return nil
}

func (e *Encoder) ReceivePacket() (av.Packet, error) {
	if len(e.queue) > 0 {
		p := e.queue[0]
		e.queue = e.queue[1:]
		return p, nil
	}
	if e.flushing {
		e.done = true
		return nil, io.EOF
	}
	return nil, av.ErrNeedMoreInput
}

func (e *Encoder) FrameSize() int              { return e.Size }
func (e *Encoder) TimeBase() timebase.Rational { return e.Base }
func (e *Encoder) Codec() string               { return e.Name }
func (e *Encoder) Format() av.AudioFormat      { return e.Audio }
func (e *Encoder) Close()                      { e.Closed = true }

func (e *Encoder) NewFrame(n int) (av.AudioFrame, error) {
	return NewAudioFrame(e.Audio, n, nil), nil
}

// VideoEncoder wraps Encoder with picture input.
type VideoEncoder struct {
	*Encoder
	Pictures []image.Image
}

func (e *VideoEncoder) NewFrame(img image.Image) (av.Frame, error) {
	e.Pictures = append(e.Pictures, img)
	return &VideoFrame{Pts: timebase.NoTimestamp, Img: img, Format: "yuv420p"}, nil
}

// Resampler passes planes through unchanged. Tail is returned once when
// drained with a nil frame.
type Resampler struct {
	Tail       [][]byte
	TailCount  int
	Fail       error
	Closed     bool
	tailServed bool
}

func (r *Resampler) Convert(src av.AudioFrame) ([][]byte, int, error) {
	if r.Fail != nil {
		return nil, 0, r.Fail
	}
	if src == nil {
		if r.tailServed {
			return nil, 0, nil
		}
		r.tailServed = true
		return r.Tail, r.TailCount, nil
	}
	planes, err := src.Planes()
	if err != nil {
		return nil, 0, err
	}
	out := make([][]byte, len(planes))
	for i, p := range planes {
		out[i] = append([]byte(nil), p...)
	}
	return out, src.NbSamples(), nil
}

func (r *Resampler) Close() { r.Closed = true }
