package libav

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/asticode/go-astiav"

	"remuxkit/internal/av"
	"remuxkit/internal/logging"
	"remuxkit/internal/timebase"
)

type demuxer struct {
	fc   *astiav.FormatContext
	url  string
	stop func() bool
}

func (d *demuxer) Streams() []av.StreamInfo {
	streams := d.fc.Streams()
	out := make([]av.StreamInfo, len(streams))
	for i, s := range streams {
		cp := s.CodecParameters()
		out[i] = av.StreamInfo{
			Index:       s.Index(),
			ID:          s.ID(),
			MediaType:   mediaType(cp.MediaType()),
			Codec:       cp.CodecID().Name(),
			TimeBase:    fromRational(s.TimeBase()),
			Duration:    s.Duration(),
			AttachedPic: attachedPic(s),
			SampleRate:  cp.SampleRate(),
			Channels:    cp.ChannelLayout().Channels(),
			Width:       cp.Width(),
			Height:      cp.Height(),
			Metadata:    entries(s.Metadata()),
		}
		if cp.MediaType() == astiav.MediaTypeVideo {
			out[i].PixelFormat = cp.PixelFormat().Name()
		}
	}
	return out
}

func (d *demuxer) ReadPacket() (av.Packet, error) {
	p := astiav.AllocPacket()
	if p == nil {
		return nil, av.Resource("read packet", errors.New("allocating packet failed"))
	}
	if err := d.fc.ReadFrame(p); err != nil {
		p.Free()
		if errors.Is(err, astiav.ErrEof) {
			return nil, io.EOF
		}
		return nil, wrap("read "+d.url, err)
	}
	return &packet{p: p}, nil
}

func (d *demuxer) Duration() int64 {
	return d.fc.Duration()
}

func (d *demuxer) Metadata() map[string]string {
	return entries(d.fc.Metadata())
}

// Chapters is not exposed by the bindings.
func (d *demuxer) Chapters() []av.Chapter {
	return nil
}

func (d *demuxer) FormatName() string {
	if f := d.fc.InputFormat(); f != nil {
		return f.Name()
	}
	return ""
}

func (d *demuxer) FormatLongName() string {
	if f := d.fc.InputFormat(); f != nil {
		return f.LongName()
	}
	return ""
}

func (d *demuxer) MimeType() string {
	return ""
}

func (d *demuxer) Close() error {
	if d.fc == nil {
		return nil
	}
	d.stop()
	d.fc.CloseInput()
	d.fc.Free()
	d.fc = nil
	return nil
}

type muxer struct {
	fc      *astiav.FormatContext
	pb      *astiav.IOContext
	path    string
	header  bool
	trailer bool
}

func (m *muxer) newStream(codec *astiav.Codec) (*astiav.Stream, int, error) {
	s := m.fc.NewStream(codec)
	if s == nil {
		return nil, 0, av.Resource("add stream", errors.New("allocating stream failed"))
	}
	return s, s.Index(), nil
}

func setAttached(s *astiav.Stream, attached bool) {
	if attached {
		setAttachedPic(s)
	}
}

func (m *muxer) AddCopyStream(src av.Demuxer, index int, attachedPic bool) (int, error) {
	d, ok := src.(*demuxer)
	if !ok {
		return 0, av.FrameworkError("add stream", 0, fmt.Errorf("foreign demuxer %T", src))
	}
	in := d.fc.Streams()[index]
	s, idx, err := m.newStream(nil)
	if err != nil {
		return 0, err
	}
	if err := in.CodecParameters().Copy(s.CodecParameters()); err != nil {
		return 0, wrap("copy codec parameters", err)
	}
	s.CodecParameters().SetCodecTag(0)
	s.SetTimeBase(in.TimeBase())
	setAttached(s, attachedPic)
	return idx, nil
}

func (m *muxer) AddEncoderStream(enc av.Encoder) (int, error) {
	var cc *astiav.CodecContext
	switch e := enc.(type) {
	case *audioEncoder:
		cc = e.cc
	case *videoEncoder:
		cc = e.cc
	default:
		return 0, av.FrameworkError("add stream", 0, fmt.Errorf("foreign encoder %T", enc))
	}
	s, idx, err := m.newStream(nil)
	if err != nil {
		return 0, err
	}
	if err := s.CodecParameters().FromCodecContext(cc); err != nil {
		return 0, wrap("encoder parameters", err)
	}
	s.SetTimeBase(cc.TimeBase())
	return idx, nil
}

func (m *muxer) AddImageStream(codec string, width, height int, attachedPic bool) (int, error) {
	c := astiav.FindDecoderByName(codec)
	if c == nil {
		return 0, av.FrameworkError("add stream", 0, fmt.Errorf("unknown codec %s", codec))
	}
	s, idx, err := m.newStream(nil)
	if err != nil {
		return 0, err
	}
	cp := s.CodecParameters()
	cp.SetMediaType(astiav.MediaTypeVideo)
	cp.SetCodecID(c.ID())
	cp.SetWidth(width)
	cp.SetHeight(height)
	s.SetTimeBase(astiav.NewRational(1, 90000))
	setAttached(s, attachedPic)
	return idx, nil
}

func (m *muxer) SetMetadata(meta map[string]string) {
	if len(meta) == 0 {
		return
	}
	d, err := dictionary(meta)
	if err != nil {
		logging.Warn("metadata: %v", err)
		return
	}
	m.fc.SetMetadata(d)
}

func (m *muxer) WriteHeader() error {
	if err := m.fc.WriteHeader(nil); err != nil {
		return wrap("write header "+m.path, err)
	}
	m.header = true
	return nil
}

func (m *muxer) TimeBase(index int) timebase.Rational {
	return fromRational(m.fc.Streams()[index].TimeBase())
}

func (m *muxer) WritePacket(p av.Packet) error {
	pkt, ok := p.(*packet)
	if !ok {
		return av.FrameworkError("write packet", 0, fmt.Errorf("foreign packet %T", p))
	}
	if err := m.fc.WriteInterleavedFrame(pkt.p); err != nil {
		return wrap("write packet", err)
	}
	return nil
}

func (m *muxer) WriteTrailer() error {
	if err := m.fc.WriteTrailer(); err != nil {
		return wrap("write trailer "+m.path, err)
	}
	m.trailer = true
	return nil
}

func (m *muxer) Close() error {
	if m.fc == nil {
		return nil
	}
	var err error
	if m.pb != nil {
		if cerr := m.pb.Close(); cerr != nil {
			err = wrap("close "+m.path, cerr)
		}
	}
	m.fc.Free()
	m.fc = nil
	if !m.trailer {
		logging.Debug("removing partial output %s", m.path)
		if rerr := os.Remove(m.path); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			err = errors.Join(err, av.Resource("remove partial output", rerr))
		}
	}
	return err
}
