package avtest

import (
	"context"
	"fmt"
	"io"
	"os"

	"remuxkit/internal/av"
	"remuxkit/internal/timebase"
)

// S16 is interleaved signed 16-bit audio.
var S16 = av.SampleFormat{Name: "s16", BytesPerSample: 2}

// FLTP is planar 32-bit float audio.
var FLTP = av.SampleFormat{Name: "fltp", BytesPerSample: 4, Planar: true}

// Demuxer replays a fixed list of packets.
type Demuxer struct {
	StreamList  []av.StreamInfo
	Packets     []*Packet
	Dur         int64
	Meta        map[string]string
	ChapterList []av.Chapter
	Format      string

	next   int
	Closed bool
}

func (d *Demuxer) Streams() []av.StreamInfo    { return d.StreamList }
func (d *Demuxer) Duration() int64             { return d.Dur }
func (d *Demuxer) Metadata() map[string]string { return d.Meta }
func (d *Demuxer) Chapters() []av.Chapter      { return d.ChapterList }
func (d *Demuxer) FormatName() string          { return d.Format }
func (d *Demuxer) FormatLongName() string      { return d.Format }
func (d *Demuxer) MimeType() string            { return "" }

func (d *Demuxer) ReadPacket() (av.Packet, error) {
	if d.next >= len(d.Packets) {
		return nil, io.EOF
	}
	p := d.Packets[d.next].clone()
	d.next++
	return p, nil
}

func (d *Demuxer) Close() error {
	d.Closed = true
	return nil
}

// Written is a packet as the muxer received it.
type Written struct {
	Stream int
	Pts    int64
	Dts    int64
	Dur    int64
	Pos    int64
	Data   []byte
}

// MuxStream is a stream added to a Muxer.
type MuxStream struct {
	Codec       string
	AttachedPic bool
	Copy        bool
	Source      int
}

// Muxer records everything written to it. It creates Path on creation and
// removes it on Close unless the trailer was written.
type Muxer struct {
	Path           string
	FormatName     string
	Streams        []MuxStream
	Bases          map[int]timebase.Rational
	Meta           map[string]string
	Packets        []Written
	HeaderWritten  bool
	TrailerWritten bool
	Closed         bool
	FailWrite      error
}

func (m *Muxer) AddCopyStream(src av.Demuxer, index int, attachedPic bool) (int, error) {
	info := src.Streams()[index]
	m.Streams = append(m.Streams, MuxStream{Codec: info.Codec, AttachedPic: attachedPic, Copy: true, Source: index})
	return len(m.Streams) - 1, nil
}

func (m *Muxer) AddEncoderStream(enc av.Encoder) (int, error) {
	m.Streams = append(m.Streams, MuxStream{Codec: enc.Codec(), Source: -1})
	return len(m.Streams) - 1, nil
}

func (m *Muxer) AddImageStream(codec string, width, height int, attachedPic bool) (int, error) {
	m.Streams = append(m.Streams, MuxStream{Codec: codec, AttachedPic: attachedPic, Source: -1})
	return len(m.Streams) - 1, nil
}

func (m *Muxer) SetMetadata(meta map[string]string) { m.Meta = meta }

func (m *Muxer) WriteHeader() error {
	if m.HeaderWritten {
		return fmt.Errorf("header already written")
	}
	m.HeaderWritten = true
	return nil
}

func (m *Muxer) TimeBase(index int) timebase.Rational {
	if tb, ok := m.Bases[index]; ok {
		return tb
	}
	return timebase.New(1, 90000)
}

func (m *Muxer) WritePacket(p av.Packet) error {
	if !m.HeaderWritten {
		return fmt.Errorf("packet before header")
	}
	if m.FailWrite != nil {
		return m.FailWrite
	}
	m.Packets = append(m.Packets, Written{
		Stream: p.StreamIndex(), Pts: p.PTS(), Dts: p.DTS(), Dur: p.Duration(),
		Data: append([]byte(nil), p.Data()...), Pos: posOf(p),
	})
	return nil
}

func posOf(p av.Packet) int64 {
	if fp, ok := p.(*Packet); ok {
		return fp.Pos
	}
	return 0
}

func (m *Muxer) WriteTrailer() error {
	m.TrailerWritten = true
	return os.WriteFile(m.Path, []byte("muxed"), 0o644)
}

func (m *Muxer) Close() error {
	m.Closed = true
	if !m.TrailerWritten {
		if err := os.Remove(m.Path); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// PacketsFor returns the written packets of one output stream.
func (m *Muxer) PacketsFor(stream int) []Written {
	var out []Written
	for _, p := range m.Packets {
		if p.Stream == stream {
			out = append(out, p)
		}
	}
	return out
}

// Framework hands out the fakes configured on it.
type Framework struct {
	Inputs       map[string]*Demuxer
	Decoders     map[string]*Decoder
	Info         av.EncoderInfo
	AudioEnc     *Encoder
	AudioErr     error
	VideoEnc     *VideoEncoder
	Resample     *Resampler
	Outputs      []*Muxer
	OutputBases  map[int]timebase.Rational
	OpenedInputs []string
	Opts         []av.InputOptions
	AudioConfig  av.AudioEncoderConfig
	VideoConfig  av.VideoEncoderConfig
}

func (f *Framework) OpenInput(ctx context.Context, url string, opts av.InputOptions) (av.Demuxer, error) {
	d, ok := f.Inputs[url]
	if !ok {
		return nil, av.FrameworkError("open input", -2, fmt.Errorf("%s: no such file or directory", url))
	}
	d.next = 0
	d.Closed = false
	f.OpenedInputs = append(f.OpenedInputs, url)
	f.Opts = append(f.Opts, opts)
	return d, nil
}

func (f *Framework) OpenDecoder(src av.Demuxer, index int) (av.Decoder, error) {
	info := src.Streams()[index]
	if d, ok := f.Decoders[info.Codec]; ok {
		return d, nil
	}
	return nil, av.FrameworkError("open decoder", 0, fmt.Errorf("no decoder for %s", info.Codec))
}

func (f *Framework) AudioEncoderInfo(codec string) (av.EncoderInfo, error) {
	if f.Info.Name != codec {
		return av.EncoderInfo{}, av.FrameworkError("find encoder", 0, fmt.Errorf("no encoder for %s", codec))
	}
	return f.Info, nil
}

func (f *Framework) OpenAudioEncoder(cfg av.AudioEncoderConfig, dec av.Decoder) (av.AudioEncoder, error) {
	f.AudioConfig = cfg
	if f.AudioErr != nil {
		return nil, f.AudioErr
	}
	if f.AudioEnc == nil {
		return nil, av.FrameworkError("open encoder", 0, fmt.Errorf("no encoder"))
	}
	f.AudioEnc.Audio.SampleRate = cfg.SampleRate
	if !f.AudioEnc.Base.Valid() {
		f.AudioEnc.Base = timebase.New(1, cfg.SampleRate)
	}
	return f.AudioEnc, nil
}

func (f *Framework) OpenVideoEncoder(cfg av.VideoEncoderConfig) (av.VideoEncoder, error) {
	f.VideoConfig = cfg
	if f.VideoEnc == nil {
		return nil, av.FrameworkError("open encoder", 0, fmt.Errorf("no encoder"))
	}
	f.VideoEnc.Base = cfg.TimeBase
	return f.VideoEnc, nil
}

func (f *Framework) OpenResampler(target av.AudioEncoder) (av.Resampler, error) {
	if f.Resample == nil {
		f.Resample = &Resampler{}
	}
	return f.Resample, nil
}

func (f *Framework) CreateOutput(path, format string) (av.Muxer, error) {
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		return nil, av.Resource("create output", err)
	}
	m := &Muxer{Path: path, FormatName: format, Bases: f.OutputBases}
	f.Outputs = append(f.Outputs, m)
	return m, nil
}

func (f *Framework) NewPacket(data []byte) (av.Packet, error) {
	return &Packet{Stream: -1, Pts: timebase.NoTimestamp, Dts: timebase.NoTimestamp, Payload: data, Pos: -1}, nil
}

// LastOutput returns the most recently created muxer.
func (f *Framework) LastOutput() *Muxer {
	if len(f.Outputs) == 0 {
		return nil
	}
	return f.Outputs[len(f.Outputs)-1]
}
