package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"remuxkit/internal/av"
	"remuxkit/internal/classify"
	"remuxkit/internal/logging"
	"remuxkit/internal/metrics"
)

var (
	// ErrUnsupportedSampleRate is returned when the requested sample rate
	// is not accepted by the output encoder.
	ErrUnsupportedSampleRate = errors.New("unsupported sample rate")
	// ErrOutputExists is returned when the output exists and may not be
	// overwritten.
	ErrOutputExists = errors.New("output file already exists")
)

// Overwrite decides what happens when the output file already exists.
type Overwrite int

const (
	OverwriteAsk Overwrite = iota
	OverwriteYes
	OverwriteNo
)

// Prompter asks the user a yes/no question.
type Prompter interface {
	Confirm(question string) (bool, error)
}

// Metadata holds the tags written to an m4a file. Empty fields are taken
// from the input file.
type Metadata struct {
	Title       string `json:"title,omitempty"`
	Artist      string `json:"artist,omitempty"`
	Album       string `json:"album,omitempty"`
	AlbumArtist string `json:"album_artist,omitempty"`
	Disc        string `json:"disc,omitempty"`
	Track       string `json:"track,omitempty"`
	Date        string `json:"date,omitempty"`
}

// merge fills empty fields from the input's tags and returns the muxer
// dictionary.
func (m Metadata) merge(input map[string]string) map[string]string {
	out := make(map[string]string)
	for _, f := range []struct{ key, value string }{
		{"title", m.Title},
		{"artist", m.Artist},
		{"album", m.Album},
		{"album_artist", m.AlbumArtist},
		{"disc", m.Disc},
		{"track", m.Track},
		{"date", m.Date},
	} {
		v := f.value
		if v == "" {
			v = input[f.key]
		}
		if v != "" {
			out[f.key] = v
		}
	}
	return out
}

// M4AOptions configures EncodeM4A.
type M4AOptions struct {
	// Output is the destination path. When empty the title tag names the
	// file, falling back to "a.m4a".
	Output string
	// Cover is an optional separate picture file.
	Cover string
	// Headers is the "key:value\r\n" block sent with HTTP inputs.
	Headers string
	// InputFormat forces the demuxer of the primary input.
	InputFormat string
	Metadata    Metadata
	// SampleRate is the requested output rate; 0 keeps the source rate
	// when the encoder supports it.
	SampleRate        int
	DefaultSampleRate int
	Bitrate           int64
	Overwrite         Overwrite
	Prompter          Prompter
}

// EncodeM4A writes the audio of input, with an optional cover picture, to
// an iPod-compatible m4a file. AAC audio is copied; anything else is
// transcoded to AAC.
func EncodeM4A(ctx context.Context, fw av.Framework, input string, opts M4AOptions) (*Result, error) {
	j := newJob("enm4a", fw)
	err := j.encodeM4A(ctx, input, opts)
	return j.finish("m4a", err)
}

func (j *job) encodeM4A(ctx context.Context, input string, opts M4AOptions) error {
	inOpts := av.InputOptions{Format: opts.InputFormat}
	if opts.Headers != "" {
		inOpts.Options = map[string]string{"headers": opts.Headers}
	}
	primary, err := j.open(ctx, input, inOpts)
	if err != nil {
		return err
	}

	var cover av.Demuxer
	var coverStreams []av.StreamInfo
	if opts.Cover != "" {
		if cover, err = j.open(ctx, opts.Cover, av.InputOptions{}); err != nil {
			return err
		}
		coverStreams = cover.Streams()
	}

	table, err := classify.Classify(primary.Streams(), coverStreams, classify.M4A)
	if err != nil {
		return err
	}
	audio, _ := table.Audio()
	logging.Debug("enm4a: audio stream %s -> %s", audio.Stream, audio.Disposition)

	tags := opts.Metadata.merge(primary.Metadata())
	output := outputPath(opts.Output, tags["title"])

	// Everything that can refuse the job is decided before the output
	// file exists.
	var sampleRate int
	var ratesKnown bool
	if audio.Disposition == classify.Transcode {
		info, err := j.fw.AudioEncoderInfo(classify.M4A.AudioCodec)
		if err != nil {
			return err
		}
		ratesKnown = len(info.SampleRates) > 0
		if sampleRate, err = chooseSampleRate(opts.SampleRate, audio.Stream.SampleRate, opts.DefaultSampleRate, info); err != nil {
			return err
		}
	}
	replace, err := checkOverwrite(output, opts.Overwrite, opts.Prompter)
	if err != nil {
		return err
	}

	// Codecs are opened before the output so a codec failure leaves no
	// file behind.
	var transcoder *audioTranscoder
	images := make(map[classify.Source]*imageTranscoder)
	for _, route := range table.Outputs() {
		if route.Disposition != classify.Transcode {
			continue
		}
		src := sourceOf(route, primary, cover)
		switch route.Kind {
		case classify.KindAudio:
			if transcoder, err = j.openAudioTranscoder(src, route, sampleRate, opts.Bitrate, ratesKnown); err != nil {
				return err
			}
		case classify.KindImage:
			dec, err := j.fw.OpenDecoder(src, route.SourceIndex)
			if err != nil {
				return err
			}
			j.onExit(dec.Close)
			images[route.Source] = &imageTranscoder{fw: j.fw, dec: dec, quality: 90}
		}
	}

	if err := j.createOutput(output, "ipod", replace); err != nil {
		return err
	}
	j.mux.SetMetadata(tags)

	// Output streams are added in table order so indices line up.
	for _, route := range table.Outputs() {
		var idx int
		switch {
		case route.Kind == classify.KindAudio && transcoder != nil:
			idx, err = j.mux.AddEncoderStream(transcoder.enc)
		case route.Kind == classify.KindImage && route.Disposition == classify.Transcode:
			idx, err = j.mux.AddImageStream(classify.M4A.ImageCodec, route.Stream.Width, route.Stream.Height, true)
		default:
			idx, err = j.mux.AddCopyStream(sourceOf(route, primary, cover), route.SourceIndex, route.AttachedPic)
		}
		if err != nil {
			return err
		}
		if idx != route.OutputIndex {
			return av.FrameworkError("add stream", 0, fmt.Errorf("output stream %d created as %d", route.OutputIndex, idx))
		}
		if route.AttachedPic {
			j.attached[idx] = true
		}
	}

	if err := j.writeHeader(table.Len()); err != nil {
		return err
	}

	if cover != nil {
		if img, ok := table.Image(); ok && img.External {
			j.setState(StateImageDrain)
			if err := j.drainImage(ctx, cover, img, images[classify.Cover]); err != nil {
				return err
			}
		}
	}

	j.setState(StateMainLoop)
	for {
		if err := checkContext(ctx); err != nil {
			return err
		}
		pkt, err := primary.ReadPacket()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return av.FrameworkError("read packet", 0, err)
		}
		if err := j.routePacket(pkt, table, classify.Primary, transcoder, images[classify.Primary]); err != nil {
			return err
		}
	}

	j.setState(StateFlushing)
	if img, ok := table.Image(); ok && !img.External {
		out, err := images[classify.Primary].flush()
		if err != nil {
			return err
		}
		if err := j.writeImage(out, img); err != nil {
			return err
		}
	}
	if transcoder != nil {
		if err := transcoder.finish(); err != nil {
			return err
		}
	}

	if err := j.writeTrailer(); err != nil {
		return err
	}
	return nil
}

func sourceOf(route classify.Route, primary, cover av.Demuxer) av.Demuxer {
	if route.Source == classify.Cover {
		return cover
	}
	return primary
}

// openAudioTranscoder opens the codecs of the audio route. When the
// encoder published no rate list, its refusal of sampleRate is a policy
// failure.
func (j *job) openAudioTranscoder(src av.Demuxer, route classify.Route, sampleRate int, bitrate int64, ratesKnown bool) (*audioTranscoder, error) {
	dec, err := j.fw.OpenDecoder(src, route.SourceIndex)
	if err != nil {
		return nil, err
	}
	enc, err := j.fw.OpenAudioEncoder(av.AudioEncoderConfig{
		Codec:        classify.M4A.AudioCodec,
		SampleRate:   sampleRate,
		Bitrate:      bitrate,
		GlobalHeader: true,
	}, dec)
	if err != nil {
		dec.Close()
		if !ratesKnown && rejectsArgument(err) {
			return nil, av.Policy("sample rate", fmt.Errorf("%w: %d Hz: %w", ErrUnsupportedSampleRate, sampleRate, err))
		}
		return nil, err
	}
	rs, err := j.fw.OpenResampler(enc)
	if err != nil {
		enc.Close()
		dec.Close()
		return nil, err
	}
	t := newAudioTranscoder(dec, enc, rs, route.OutputIndex, j.sinkFor(enc.TimeBase()))
	j.onExit(func() {
		rs.Close()
		t.close()
	})
	logging.Info("enm4a: transcoding %s to %s at %d Hz", route.Stream.Codec, enc.Codec(), sampleRate)
	return t, nil
}

// routePacket sends one input packet where the table says it goes.
func (j *job) routePacket(pkt av.Packet, table *classify.Table, source classify.Source, t *audioTranscoder, img *imageTranscoder) error {
	defer pkt.Release()

	route, ok := table.Lookup(source, pkt.StreamIndex())
	if !ok || route.Disposition == classify.Drop {
		return nil
	}
	switch {
	case route.Disposition == classify.Copy:
		return j.copyPacket(pkt, route, 0)
	case route.Kind == classify.KindAudio:
		return t.feed(pkt)
	case route.Kind == classify.KindImage && img != nil:
		out, err := img.convert(pkt)
		if err != nil {
			return err
		}
		return j.writeImage(out, route)
	}
	return nil
}

// writeImage writes a converted picture, if there is one, to its stream.
func (j *job) writeImage(out av.Packet, route classify.Route) error {
	if out == nil {
		return nil
	}
	defer out.Release()
	out.SetStreamIndex(route.OutputIndex)
	return j.write(out, classify.Transcode)
}

// drainImage writes every packet of the cover picture stream.
func (j *job) drainImage(ctx context.Context, cover av.Demuxer, route classify.Route, img *imageTranscoder) error {
	for {
		if err := checkContext(ctx); err != nil {
			return err
		}
		pkt, err := cover.ReadPacket()
		if errors.Is(err, io.EOF) {
			if route.Disposition == classify.Copy {
				return nil
			}
			out, err := img.flush()
			if err != nil {
				return err
			}
			return j.writeImage(out, route)
		}
		if err != nil {
			return av.FrameworkError("read cover", 0, err)
		}
		if pkt.StreamIndex() != route.SourceIndex {
			pkt.Release()
			continue
		}
		if route.Disposition == classify.Copy {
			err = j.copyPacket(pkt, route, 0)
			pkt.Release()
		} else {
			var out av.Packet
			out, err = img.convert(pkt)
			pkt.Release()
			if err == nil {
				err = j.writeImage(out, route)
			}
		}
		if err != nil {
			return err
		}
	}
}

// chooseSampleRate picks the output sample rate. A requested rate must be
// supported. Without one, the source rate is kept when possible and the
// default is used otherwise.
func chooseSampleRate(requested, source, fallback int, info av.EncoderInfo) (int, error) {
	if requested > 0 {
		if !info.SupportsSampleRate(requested) {
			return 0, av.Policy("sample rate", fmt.Errorf("%w: %d Hz (supported: %v)", ErrUnsupportedSampleRate, requested, info.SampleRates))
		}
		return requested, nil
	}
	if source > 0 && info.SupportsSampleRate(source) {
		return source, nil
	}
	if fallback <= 0 {
		fallback = 48000
	}
	if !info.SupportsSampleRate(fallback) {
		return 0, av.Policy("sample rate", fmt.Errorf("%w: default %d Hz (supported: %v)", ErrUnsupportedSampleRate, fallback, info.SampleRates))
	}
	logging.Info("Source sample rate %d Hz not supported, using %d Hz", source, fallback)
	return fallback, nil
}

// rejectsArgument reports whether err is FFmpeg's AVERROR(EINVAL).
func rejectsArgument(err error) bool {
	var e *av.Error
	return errors.As(err, &e) && e.Kind == av.KindFramework && e.Code == errInvalidArgument
}

const errInvalidArgument = -22

// outputPath returns the explicit output, or "<title>.m4a", or "a.m4a".
func outputPath(explicit, title string) string {
	if explicit != "" {
		return explicit
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return "a.m4a"
	}
	return strings.Map(func(r rune) rune {
		if r == '/' || r == filepath.Separator || r == 0 {
			return '_'
		}
		return r
	}, title) + ".m4a"
}

// checkOverwrite applies the overwrite policy to an existing output. It
// reports whether the existing file is to be replaced; the file itself is
// left alone until the new one is complete.
func checkOverwrite(path string, policy Overwrite, prompt Prompter) (bool, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, av.Resource("stat output", err)
	}

	overwrite := policy == OverwriteYes
	if policy == OverwriteAsk {
		if prompt == nil {
			return false, av.Policy("overwrite", fmt.Errorf("%w: %s", ErrOutputExists, path))
		}
		ok, err := prompt.Confirm(fmt.Sprintf("Output file %s already exists, do you want to overwrite it?", path))
		if err != nil {
			return false, av.Resource("prompt", err)
		}
		overwrite = ok
	}
	if !overwrite {
		return false, av.Policy("overwrite", fmt.Errorf("%w: %s", ErrOutputExists, path))
	}
	return true, nil
}

// countPolicy records why a job was refused.
func countPolicy(err error) {
	if !av.IsPolicy(err) {
		return
	}
	reason := "other"
	switch {
	case errors.Is(err, classify.ErrNoAudio):
		reason = "no_audio"
	case errors.Is(err, ErrUnsupportedSampleRate):
		reason = "sample_rate"
	case errors.Is(err, ErrOutputExists):
		reason = "output_exists"
	}
	metrics.PolicyRejections.WithLabelValues(reason).Inc()
}
