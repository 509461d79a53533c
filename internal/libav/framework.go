package libav

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/asticode/go-astiav"

	"remuxkit/internal/av"
	"remuxkit/internal/logging"
	"remuxkit/internal/timebase"
)

// Config configures the FFmpeg bindings.
type Config struct {
	// LogLevel is the FFmpeg log level name ("quiet", "error", "warning",
	// "info", "verbose", "debug", "trace"). Empty means "error".
	LogLevel string
}

var logOnce sync.Once

// Framework is the FFmpeg backed av.Framework.
type Framework struct{}

var _ av.Framework = (*Framework)(nil)

// New configures FFmpeg logging and returns a Framework. The log level is
// process wide; the first call wins.
func New(cfg Config) *Framework {
	logOnce.Do(func() {
		astiav.SetLogLevel(parseLogLevel(cfg.LogLevel))
		astiav.SetLogCallback(func(_ astiav.Classer, l astiav.LogLevel, _, msg string) {
			msg = strings.TrimRight(msg, "\n")
			if msg == "" {
				return
			}
			switch {
			case l <= astiav.LogLevelError:
				logging.Error("ffmpeg: %s", msg)
			case l <= astiav.LogLevelWarning:
				logging.Warn("ffmpeg: %s", msg)
			case l <= astiav.LogLevelInfo:
				logging.Info("ffmpeg: %s", msg)
			case l <= astiav.LogLevelDebug:
				logging.Debug("ffmpeg: %s", msg)
			default:
				logging.Trace("ffmpeg: %s", msg)
			}
		})
	})
	return &Framework{}
}

// Version returns the FFmpeg version string.
func Version() string {
	return ffmpegVersion()
}

func parseLogLevel(name string) astiav.LogLevel {
	switch strings.ToLower(name) {
	case "quiet":
		return astiav.LogLevelQuiet
	case "panic":
		return astiav.LogLevelPanic
	case "fatal":
		return astiav.LogLevelFatal
	case "warning", "warn":
		return astiav.LogLevelWarning
	case "info":
		return astiav.LogLevelInfo
	case "verbose":
		return astiav.LogLevelVerbose
	case "debug":
		return astiav.LogLevelDebug
	case "trace":
		return logLevelTrace
	default:
		return astiav.LogLevelError
	}
}

// wrap turns an FFmpeg error into an av.Error carrying its code.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae astiav.Error
	if errors.As(err, &ae) {
		return av.FrameworkError(op, int(ae), err)
	}
	return av.FrameworkError(op, 0, err)
}

func toRational(r timebase.Rational) astiav.Rational {
	return astiav.NewRational(r.Num, r.Den)
}

func fromRational(r astiav.Rational) timebase.Rational {
	return timebase.New(r.Num(), r.Den())
}

// dictionary builds an FFmpeg dictionary. The caller frees it.
func dictionary(opts map[string]string) (*astiav.Dictionary, error) {
	if len(opts) == 0 {
		return nil, nil
	}
	d := astiav.NewDictionary()
	for k, v := range opts {
		if err := d.Set(k, v, astiav.NewDictionaryFlags()); err != nil {
			d.Free()
			return nil, wrap("set option "+k, err)
		}
	}
	return d, nil
}

func freeDictionary(d *astiav.Dictionary) {
	if d != nil {
		d.Free()
	}
}

// entries copies every key of d.
func entries(d *astiav.Dictionary) map[string]string {
	out := make(map[string]string)
	if d == nil {
		return out
	}
	flags := astiav.NewDictionaryFlags(astiav.DictionaryFlagIgnoreSuffix)
	var e *astiav.DictionaryEntry
	for {
		if e = d.Get("", e, flags); e == nil {
			return out
		}
		out[e.Key()] = e.Value()
	}
}

func mediaType(t astiav.MediaType) av.MediaType {
	switch t {
	case astiav.MediaTypeVideo:
		return av.MediaVideo
	case astiav.MediaTypeAudio:
		return av.MediaAudio
	case astiav.MediaTypeData:
		return av.MediaData
	case astiav.MediaTypeSubtitle:
		return av.MediaSubtitle
	case astiav.MediaTypeAttachment:
		return av.MediaAttachment
	default:
		return av.MediaUnknown
	}
}

func sampleFormat(f astiav.SampleFormat) av.SampleFormat {
	return av.SampleFormat{Name: f.Name(), BytesPerSample: bytesPerSample(f), Planar: isPlanar(f)}
}

// interrupt aborts blocking IO on fc when ctx is done. The returned
// function stops watching.
func interrupt(ctx context.Context, fc *astiav.FormatContext) func() bool {
	ii := astiav.NewIOInterrupter()
	fc.SetIOInterrupter(ii)
	return context.AfterFunc(ctx, ii.Interrupt)
}

func (f *Framework) OpenInput(ctx context.Context, url string, opts av.InputOptions) (av.Demuxer, error) {
	fc := astiav.AllocFormatContext()
	if fc == nil {
		return nil, av.Resource("open input", errors.New("allocating format context failed"))
	}
	stop := interrupt(ctx, fc)

	var format *astiav.InputFormat
	if opts.Format != "" {
		if format = astiav.FindInputFormat(opts.Format); format == nil {
			stop()
			fc.Free()
			return nil, av.FrameworkError("open input", 0, fmt.Errorf("unknown input format %q", opts.Format))
		}
	}
	dict, err := dictionary(opts.Options)
	if err != nil {
		stop()
		fc.Free()
		return nil, err
	}
	defer freeDictionary(dict)

	if err := fc.OpenInput(url, format, dict); err != nil {
		stop()
		fc.Free()
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s: %w", url, ctx.Err())
		}
		return nil, wrap("open "+url, err)
	}
	if err := fc.FindStreamInfo(nil); err != nil {
		stop()
		fc.CloseInput()
		fc.Free()
		return nil, wrap("find stream info "+url, err)
	}
	return &demuxer{fc: fc, url: url, stop: stop}, nil
}

func (f *Framework) OpenDecoder(src av.Demuxer, index int) (av.Decoder, error) {
	d, ok := src.(*demuxer)
	if !ok {
		return nil, av.FrameworkError("open decoder", 0, fmt.Errorf("foreign demuxer %T", src))
	}
	streams := d.fc.Streams()
	if index < 0 || index >= len(streams) {
		return nil, av.FrameworkError("open decoder", 0, fmt.Errorf("no stream %d", index))
	}
	s := streams[index]
	codec := astiav.FindDecoder(s.CodecParameters().CodecID())
	if codec == nil {
		return nil, av.FrameworkError("open decoder", 0, fmt.Errorf("no decoder for %s", s.CodecParameters().CodecID()))
	}
	cc := astiav.AllocCodecContext(codec)
	if cc == nil {
		return nil, av.Resource("open decoder", errors.New("allocating codec context failed"))
	}
	if err := s.CodecParameters().ToCodecContext(cc); err != nil {
		cc.Free()
		return nil, wrap("decoder parameters", err)
	}
	cc.SetTimeBase(s.TimeBase())
	if err := cc.Open(codec, nil); err != nil {
		cc.Free()
		return nil, wrap("open decoder "+codec.Name(), err)
	}
	return &decoder{cc: cc, media: s.CodecParameters().MediaType()}, nil
}

func (f *Framework) AudioEncoderInfo(codec string) (av.EncoderInfo, error) {
	c := astiav.FindEncoderByName(codec)
	if c == nil {
		return av.EncoderInfo{}, av.FrameworkError("find encoder", 0, fmt.Errorf("no encoder for %s", codec))
	}
	info := av.EncoderInfo{
		Name:              c.Name(),
		SampleRates:       supportedSampleRates(c),
		VariableFrameSize: variableFrameSize(c),
	}
	for _, sf := range c.SampleFormats() {
		info.SampleFormats = append(info.SampleFormats, sampleFormat(sf))
	}
	for _, pf := range c.PixelFormats() {
		info.PixelFormats = append(info.PixelFormats, pf.Name())
	}
	return info, nil
}

func (f *Framework) OpenAudioEncoder(cfg av.AudioEncoderConfig, dec av.Decoder) (av.AudioEncoder, error) {
	d, ok := dec.(*decoder)
	if !ok {
		return nil, av.FrameworkError("open encoder", 0, fmt.Errorf("foreign decoder %T", dec))
	}
	codec := astiav.FindEncoderByName(cfg.Codec)
	if codec == nil {
		return nil, av.FrameworkError("open encoder", 0, fmt.Errorf("no encoder for %s", cfg.Codec))
	}
	cc := astiav.AllocCodecContext(codec)
	if cc == nil {
		return nil, av.Resource("open encoder", errors.New("allocating codec context failed"))
	}

	layout := d.cc.ChannelLayout()
	if !layout.Valid() {
		layout = astiav.ChannelLayoutStereo
		if d.cc.ChannelLayout().Channels() == 1 {
			layout = astiav.ChannelLayoutMono
		}
	}
	cc.SetChannelLayout(layout)
	format := d.cc.SampleFormat()
	if formats := codec.SampleFormats(); len(formats) > 0 {
		format = formats[0]
	}
	cc.SetSampleFormat(format)
	cc.SetSampleRate(cfg.SampleRate)
	cc.SetTimeBase(astiav.NewRational(1, cfg.SampleRate))
	if cfg.Bitrate > 0 {
		cc.SetBitRate(cfg.Bitrate)
	}
	if cfg.GlobalHeader {
		cc.SetFlags(cc.Flags().Add(astiav.CodecContextFlagGlobalHeader))
	}

	dict, err := dictionary(cfg.Options)
	if err != nil {
		cc.Free()
		return nil, err
	}
	defer freeDictionary(dict)
	if err := cc.Open(codec, dict); err != nil {
		cc.Free()
		return nil, wrap("open encoder "+cfg.Codec, err)
	}
	return &audioEncoder{encoder{cc: cc, name: codec.Name()}}, nil
}

func (f *Framework) OpenVideoEncoder(cfg av.VideoEncoderConfig) (av.VideoEncoder, error) {
	var codec *astiav.Codec
	for _, name := range cfg.Codecs {
		if codec = astiav.FindEncoderByName(name); codec != nil {
			break
		}
		logging.Debug("encoder %s not available", name)
	}
	if codec == nil {
		return nil, av.FrameworkError("open encoder", 0, fmt.Errorf("none of %v available", cfg.Codecs))
	}
	cc := astiav.AllocCodecContext(codec)
	if cc == nil {
		return nil, av.Resource("open encoder", errors.New("allocating codec context failed"))
	}

	pix := astiav.FindPixelFormatByName(cfg.PixelFormat)
	if cfg.PixelFormat == "" || pix == astiav.PixelFormatNone {
		pix = astiav.PixelFormatYuv420P
		if formats := codec.PixelFormats(); len(formats) > 0 {
			pix = formats[0]
		}
	}
	cc.SetWidth(cfg.Width)
	cc.SetHeight(cfg.Height)
	cc.SetPixelFormat(pix)
	cc.SetTimeBase(toRational(cfg.TimeBase))
	cc.SetFramerate(toRational(cfg.TimeBase.Invert()))
	if cfg.GlobalHeader {
		cc.SetFlags(cc.Flags().Add(astiav.CodecContextFlagGlobalHeader))
	}

	dict, err := dictionary(cfg.Options)
	if err != nil {
		cc.Free()
		return nil, err
	}
	defer freeDictionary(dict)
	if err := cc.Open(codec, dict); err != nil {
		cc.Free()
		return nil, wrap("open encoder "+codec.Name(), err)
	}
	return &videoEncoder{encoder: encoder{cc: cc, name: codec.Name()}}, nil
}

func (f *Framework) OpenResampler(target av.AudioEncoder) (av.Resampler, error) {
	enc, ok := target.(*audioEncoder)
	if !ok {
		return nil, av.FrameworkError("open resampler", 0, fmt.Errorf("foreign encoder %T", target))
	}
	swr := astiav.AllocSoftwareResampleContext()
	if swr == nil {
		return nil, av.Resource("open resampler", errors.New("allocating resample context failed"))
	}
	return &resampler{swr: swr, enc: enc}, nil
}

func (f *Framework) CreateOutput(path, format string) (av.Muxer, error) {
	fc, err := astiav.AllocOutputFormatContext(nil, format, path)
	if err != nil {
		return nil, wrap("create output "+path, err)
	}
	if fc == nil {
		return nil, av.Resource("create output", errors.New("allocating format context failed"))
	}
	m := &muxer{fc: fc, path: path}
	if !fc.OutputFormat().Flags().Has(astiav.IOFormatFlagNofile) {
		pb, err := astiav.OpenIOContext(path, astiav.NewIOContextFlags(astiav.IOContextFlagWrite), nil, nil)
		if err != nil {
			fc.Free()
			return nil, av.Resource("open "+path, wrap("open io", err))
		}
		fc.SetPb(pb)
		m.pb = pb
	}
	return m, nil
}

func (f *Framework) NewPacket(data []byte) (av.Packet, error) {
	p := astiav.AllocPacket()
	if p == nil {
		return nil, av.Resource("allocate packet", errors.New("allocating packet failed"))
	}
	if err := p.FromData(data); err != nil {
		p.Free()
		return nil, wrap("packet data", err)
	}
	p.SetPts(timebase.NoTimestamp)
	p.SetDts(timebase.NoTimestamp)
	p.SetFlags(p.Flags().Add(astiav.PacketFlagKey))
	return &packet{p: p}, nil
}
