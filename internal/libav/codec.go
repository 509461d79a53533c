package libav

import (
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/asticode/go-astiav"
	"github.com/disintegration/imaging"

	"remuxkit/internal/av"
	"remuxkit/internal/timebase"
)

type packet struct {
	p *astiav.Packet
}

func (p *packet) StreamIndex() int     { return p.p.StreamIndex() }
func (p *packet) SetStreamIndex(i int) { p.p.SetStreamIndex(i) }
func (p *packet) PTS() int64           { return p.p.Pts() }
func (p *packet) SetPTS(v int64)       { p.p.SetPts(v) }
func (p *packet) DTS() int64           { return p.p.Dts() }
func (p *packet) SetDTS(v int64)       { p.p.SetDts(v) }
func (p *packet) Duration() int64      { return p.p.Duration() }
func (p *packet) SetDuration(v int64)  { p.p.SetDuration(v) }
func (p *packet) SetPos(v int64)       { p.p.SetPos(v) }
func (p *packet) Data() []byte         { return p.p.Data() }
func (p *packet) Release()             { p.p.Free() }

func unwrapPacket(p av.Packet) (*astiav.Packet, error) {
	if p == nil {
		return nil, nil
	}
	pkt, ok := p.(*packet)
	if !ok {
		return nil, fmt.Errorf("foreign packet %T", p)
	}
	return pkt.p, nil
}

type audioFrame struct {
	f *astiav.Frame
}

func (f *audioFrame) PTS() int64     { return f.f.Pts() }
func (f *audioFrame) SetPTS(v int64) { f.f.SetPts(v) }
func (f *audioFrame) NbSamples() int { return f.f.NbSamples() }
func (f *audioFrame) Release()       { f.f.Free() }

func (f *audioFrame) planeCount() int {
	if isPlanar(f.f.SampleFormat()) {
		return f.f.ChannelLayout().Channels()
	}
	return 1
}

// Planes splits the frame buffer, which the bindings return plane after
// plane, into one slice per plane.
func (f *audioFrame) Planes() ([][]byte, error) {
	b, err := f.f.Data().Bytes(1)
	if err != nil {
		return nil, wrap("frame data", err)
	}
	n := f.planeCount()
	size := len(b) / n
	planes := make([][]byte, n)
	for i := range planes {
		planes[i] = b[i*size : (i+1)*size]
	}
	return planes, nil
}

func (f *audioFrame) SetPlanes(planes [][]byte) error {
	var b []byte
	for _, p := range planes {
		b = append(b, p...)
	}
	if err := f.f.Data().SetBytes(b, 1); err != nil {
		return wrap("frame data", err)
	}
	return nil
}

type videoFrame struct {
	f *astiav.Frame
}

func (f *videoFrame) PTS() int64          { return f.f.Pts() }
func (f *videoFrame) SetPTS(v int64)      { f.f.SetPts(v) }
func (f *videoFrame) Width() int          { return f.f.Width() }
func (f *videoFrame) Height() int         { return f.f.Height() }
func (f *videoFrame) PixelFormat() string { return f.f.PixelFormat().Name() }
func (f *videoFrame) Release()            { f.f.Free() }

// Image converts the frame to an image.Image, going through RGBA when the
// pixel format has no Go equivalent.
func (f *videoFrame) Image() (image.Image, error) {
	src := f.f
	if _, err := src.Data().GuessImageFormat(); err != nil {
		rgba, err := scale(src, src.Width(), src.Height(), astiav.PixelFormatRgba)
		if err != nil {
			return nil, err
		}
		defer rgba.Free()
		src = rgba
	}
	img, err := src.Data().GuessImageFormat()
	if err != nil {
		return nil, wrap("image format", err)
	}
	if err := src.Data().ToImage(img); err != nil {
		return nil, wrap("to image", err)
	}
	return img, nil
}

// scale converts src into a new frame of the given size and pixel format.
func scale(src *astiav.Frame, w, h int, pix astiav.PixelFormat) (*astiav.Frame, error) {
	sws, err := astiav.CreateSoftwareScaleContext(src.Width(), src.Height(), src.PixelFormat(), w, h, pix,
		astiav.NewSoftwareScaleContextFlags(astiav.SoftwareScaleContextFlagBilinear))
	if err != nil {
		return nil, wrap("scale context", err)
	}
	defer sws.Free()
	dst := astiav.AllocFrame()
	if err := sws.ScaleFrame(src, dst); err != nil {
		dst.Free()
		return nil, wrap("scale", err)
	}
	return dst, nil
}

type decoder struct {
	cc    *astiav.CodecContext
	media astiav.MediaType
}

func (d *decoder) SendPacket(p av.Packet) error {
	pkt, err := unwrapPacket(p)
	if err != nil {
		return av.FrameworkError("send packet", 0, err)
	}
	if err := d.cc.SendPacket(pkt); err != nil {
		if errors.Is(err, astiav.ErrEof) {
			return io.EOF
		}
		return wrap("send packet", err)
	}
	return nil
}

func (d *decoder) ReceiveFrame() (av.Frame, error) {
	f := astiav.AllocFrame()
	if f == nil {
		return nil, av.Resource("receive frame", errors.New("allocating frame failed"))
	}
	if err := d.cc.ReceiveFrame(f); err != nil {
		f.Free()
		switch {
		case errors.Is(err, astiav.ErrEagain):
			return nil, av.ErrNeedMoreInput
		case errors.Is(err, astiav.ErrEof):
			return nil, io.EOF
		}
		return nil, wrap("decode", err)
	}
	if d.media == astiav.MediaTypeVideo {
		return &videoFrame{f: f}, nil
	}
	return &audioFrame{f: f}, nil
}

func (d *decoder) Close() {
	if d.cc != nil {
		d.cc.Free()
		d.cc = nil
	}
}

type encoder struct {
	cc   *astiav.CodecContext
	name string
}

func (e *encoder) SendFrame(f av.Frame) error {
	var frame *astiav.Frame
	switch v := f.(type) {
	case nil:
	case *audioFrame:
		frame = v.f
	case *videoFrame:
		frame = v.f
	default:
		return av.FrameworkError("send frame", 0, fmt.Errorf("foreign frame %T", f))
	}
	if err := e.cc.SendFrame(frame); err != nil {
		if errors.Is(err, astiav.ErrEof) {
			return io.EOF
		}
		return wrap("send frame", err)
	}
	return nil
}

func (e *encoder) ReceivePacket() (av.Packet, error) {
	p := astiav.AllocPacket()
	if p == nil {
		return nil, av.Resource("receive packet", errors.New("allocating packet failed"))
	}
	if err := e.cc.ReceivePacket(p); err != nil {
		p.Free()
		switch {
		case errors.Is(err, astiav.ErrEagain):
			return nil, av.ErrNeedMoreInput
		case errors.Is(err, astiav.ErrEof):
			return nil, io.EOF
		}
		return nil, wrap("encode", err)
	}
	return &packet{p: p}, nil
}

func (e *encoder) FrameSize() int              { return e.cc.FrameSize() }
func (e *encoder) TimeBase() timebase.Rational { return fromRational(e.cc.TimeBase()) }
func (e *encoder) Codec() string               { return e.name }

func (e *encoder) Close() {
	if e.cc != nil {
		e.cc.Free()
		e.cc = nil
	}
}

type audioEncoder struct {
	encoder
}

func (e *audioEncoder) Format() av.AudioFormat {
	return av.AudioFormat{
		SampleRate: e.cc.SampleRate(),
		Channels:   e.cc.ChannelLayout().Channels(),
		Sample:     sampleFormat(e.cc.SampleFormat()),
	}
}

// blankFrame returns an unallocated frame in the encoder's format.
func (e *audioEncoder) blankFrame() *astiav.Frame {
	f := astiav.AllocFrame()
	f.SetSampleFormat(e.cc.SampleFormat())
	f.SetChannelLayout(e.cc.ChannelLayout())
	f.SetSampleRate(e.cc.SampleRate())
	return f
}

func (e *audioEncoder) NewFrame(n int) (av.AudioFrame, error) {
	f := e.blankFrame()
	f.SetNbSamples(n)
	if err := f.AllocBuffer(0); err != nil {
		f.Free()
		return nil, wrap("allocate frame", err)
	}
	return &audioFrame{f: f}, nil
}

type videoEncoder struct {
	encoder
}

func (e *videoEncoder) NewFrame(img image.Image) (av.Frame, error) {
	nrgba := imaging.Clone(img)
	b := nrgba.Bounds()
	src := astiav.AllocFrame()
	defer src.Free()
	src.SetWidth(b.Dx())
	src.SetHeight(b.Dy())
	src.SetPixelFormat(astiav.PixelFormatRgba)
	if err := src.AllocBuffer(1); err != nil {
		return nil, wrap("allocate frame", err)
	}
	if err := src.Data().FromImage(nrgba); err != nil {
		return nil, wrap("from image", err)
	}
	dst, err := scale(src, e.cc.Width(), e.cc.Height(), e.cc.PixelFormat())
	if err != nil {
		return nil, err
	}
	return &videoFrame{f: dst}, nil
}

type resampler struct {
	swr *astiav.SoftwareResampleContext
	enc *audioEncoder
}

func (r *resampler) Convert(src av.AudioFrame) ([][]byte, int, error) {
	var in *astiav.Frame
	if src != nil {
		f, ok := src.(*audioFrame)
		if !ok {
			return nil, 0, av.FrameworkError("resample", 0, fmt.Errorf("foreign frame %T", src))
		}
		in = f.f
	}
	out := &audioFrame{f: r.enc.blankFrame()}
	defer out.Release()
	if err := r.swr.ConvertFrame(in, out.f); err != nil {
		return nil, 0, wrap("resample", err)
	}
	n := out.NbSamples()
	if n == 0 {
		return nil, 0, nil
	}
	planes, err := out.Planes()
	if err != nil {
		return nil, 0, err
	}
	for i := range planes {
		planes[i] = append([]byte(nil), planes[i]...)
	}
	return planes, n, nil
}

func (r *resampler) Close() {
	if r.swr != nil {
		r.swr.Free()
		r.swr = nil
	}
}
