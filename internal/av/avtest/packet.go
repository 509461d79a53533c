package avtest

import (
	"image"

	"remuxkit/internal/av"
	"remuxkit/internal/timebase"
)

// Packet is an in-memory av.Packet.
type Packet struct {
	Stream   int
	Pts      int64
	Dts      int64
	Dur      int64
	Pos      int64
	Payload  []byte
	Released bool
}

// NewPacket returns a packet for stream with pts == dts.
func NewPacket(stream int, ts, dur int64) *Packet {
	return &Packet{Stream: stream, Pts: ts, Dts: ts, Dur: dur, Pos: -2}
}

func (p *Packet) StreamIndex() int     { return p.Stream }
func (p *Packet) SetStreamIndex(i int) { p.Stream = i }
func (p *Packet) PTS() int64           { return p.Pts }
func (p *Packet) SetPTS(v int64)       { p.Pts = v }
func (p *Packet) DTS() int64           { return p.Dts }
func (p *Packet) SetDTS(v int64)       { p.Dts = v }
func (p *Packet) Duration() int64      { return p.Dur }
func (p *Packet) SetDuration(v int64)  { p.Dur = v }
func (p *Packet) SetPos(v int64)       { p.Pos = v }
func (p *Packet) Data() []byte         { return p.Payload }
func (p *Packet) Release()             { p.Released = true }

func (p *Packet) clone() *Packet {
	c := *p
	return &c
}

// AudioFrame is an in-memory av.AudioFrame.
type AudioFrame struct {
	Pts      int64
	Samples  int
	Data     [][]byte
	Released bool
}

// NewAudioFrame returns a frame of n samples whose planes are filled by fill.
func NewAudioFrame(format av.AudioFormat, n int, fill func(plane, i int) byte) *AudioFrame {
	size := format.PlaneSampleSize() * n
	planes := make([][]byte, format.Planes())
	for p := range planes {
		planes[p] = make([]byte, size)
		if fill != nil {
			for i := range planes[p] {
				planes[p][i] = fill(p, i)
			}
		}
	}
	return &AudioFrame{Pts: timebase.NoTimestamp, Samples: n, Data: planes}
}

func (f *AudioFrame) PTS() int64                { return f.Pts }
func (f *AudioFrame) SetPTS(v int64)            { f.Pts = v }
func (f *AudioFrame) NbSamples() int            { return f.Samples }
func (f *AudioFrame) Planes() ([][]byte, error) { return f.Data, nil }
func (f *AudioFrame) Release()                  { f.Released = true }

func (f *AudioFrame) SetPlanes(planes [][]byte) error {
	for i := range planes {
		if i < len(f.Data) {
			copy(f.Data[i], planes[i])
		}
	}
	return nil
}

// VideoFrame is an in-memory av.VideoFrame.
type VideoFrame struct {
	Pts      int64
	Img      image.Image
	Format   string
	Released bool
}

func (f *VideoFrame) PTS() int64          { return f.Pts }
func (f *VideoFrame) SetPTS(v int64)      { f.Pts = v }
func (f *VideoFrame) Width() int          { return f.Img.Bounds().Dx() }
func (f *VideoFrame) Height() int         { return f.Img.Bounds().Dy() }
func (f *VideoFrame) PixelFormat() string { return f.Format }
func (f *VideoFrame) Release()            { f.Released = true }

func (f *VideoFrame) Image() (image.Image, error) {
	return f.Img, nil
}
