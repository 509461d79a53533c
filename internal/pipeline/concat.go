package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"remuxkit/internal/av"
	"remuxkit/internal/classify"
	"remuxkit/internal/logging"
	"remuxkit/internal/timebase"
)

// ConcatOptions configures Concat.
type ConcatOptions struct {
	// Format forces the output muxer. When empty it is guessed from the
	// output extension.
	Format string
	// Headers is the "key:value\r\n" block sent with HTTP inputs.
	Headers   string
	Overwrite Overwrite
	Prompter  Prompter
}

// extensionFormats maps output extensions to muxer names.
var extensionFormats = map[string]string{
	".mp4":  "mp4",
	".m4a":  "ipod",
	".m4v":  "mp4",
	".mov":  "mov",
	".mkv":  "matroska",
	".mka":  "matroska",
	".webm": "webm",
	".ts":   "mpegts",
	".flv":  "flv",
	".mp3":  "mp3",
	".aac":  "adts",
	".ogg":  "ogg",
	".opus": "opus",
	".flac": "flac",
	".wav":  "wav",
	".mpg":  "mpeg",
	".mpeg": "mpeg",
}

// GuessFormat returns the muxer for path's extension, or "mpeg" when the
// extension is unknown.
func GuessFormat(path string) string {
	if f, ok := extensionFormats[strings.ToLower(filepath.Ext(path))]; ok {
		return f
	}
	logging.Warn("Could not deduce output format from file extension of %s: using MPEG", path)
	return "mpeg"
}

// Concat joins inputs end to end into output without re-encoding. The
// streams of the first input define the output; every later input must
// carry the same streams in the same order. Each input's timestamps are
// shifted by the summed container durations of the inputs before it.
func Concat(ctx context.Context, fw av.Framework, output string, inputs []string, opts ConcatOptions) (*Result, error) {
	j := newJob("ffconcat", fw)
	err := j.concat(ctx, output, inputs, opts)
	return j.finish("concat", err)
}

func (j *job) concat(ctx context.Context, output string, inputs []string, opts ConcatOptions) error {
	if len(inputs) == 0 {
		return av.Policy("concat", errors.New("no input files"))
	}
	inOpts := av.InputOptions{}
	if opts.Headers != "" {
		inOpts.Options = map[string]string{"headers": opts.Headers}
	}

	first, err := j.open(ctx, inputs[0], inOpts)
	if err != nil {
		return err
	}
	table, err := classify.ClassifyAll(first.Streams())
	if err != nil {
		return err
	}

	format := opts.Format
	if format == "" {
		format = GuessFormat(output)
	}
	replace, err := checkOverwrite(output, opts.Overwrite, opts.Prompter)
	if err != nil {
		return err
	}
	if err := j.createOutput(output, format, replace); err != nil {
		return err
	}
	for _, route := range table.Outputs() {
		idx, err := j.mux.AddCopyStream(first, route.SourceIndex, route.AttachedPic)
		if err != nil {
			return err
		}
		if route.AttachedPic {
			j.attached[idx] = true
		}
	}
	if err := j.writeHeader(table.Len()); err != nil {
		return err
	}

	j.setState(StateMainLoop)
	var offset int64 // AVTimeBase units
	for i, url := range inputs {
		in := first
		if i > 0 {
			if in, err = j.open(ctx, url, inOpts); err != nil {
				return err
			}
			if err := sameLayout(table, in.Streams()); err != nil {
				return av.Policy("concat", fmt.Errorf("%s: %w", url, err))
			}
		}
		logging.Debug("ffconcat: input %d %s at offset %dus", i, url, offset)
		if err := j.copyAll(ctx, in, table, offset); err != nil {
			return fmt.Errorf("%s: %w", url, err)
		}
		d := in.Duration()
		if d <= 0 || d == timebase.NoDuration {
			logging.Warn("ffconcat: %s has no known duration, next input starts at the same offset", url)
			continue
		}
		offset += d
	}

	j.setState(StateFlushing)
	return j.writeTrailer()
}

// copyAll copies every routed packet of in, shifted by offset microseconds.
func (j *job) copyAll(ctx context.Context, in av.Demuxer, table *classify.Table, offset int64) error {
	streams := in.Streams()
	deltas := make(map[int]int64)
	for _, r := range table.Outputs() {
		deltas[r.OutputIndex] = timebase.Rescale(offset, timebase.AVTimeBase, j.mux.TimeBase(r.OutputIndex))
	}

	for {
		if err := checkContext(ctx); err != nil {
			return err
		}
		pkt, err := in.ReadPacket()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return av.FrameworkError("read packet", 0, err)
		}
		route, ok := table.Lookup(classify.Primary, pkt.StreamIndex())
		if !ok || route.Disposition == classify.Drop {
			pkt.Release()
			continue
		}
		// Later inputs may use a different time base for the same stream.
		if idx := pkt.StreamIndex(); idx < len(streams) {
			route.Stream.TimeBase = streams[idx].TimeBase
		}
		err = j.copyPacket(pkt, route, deltas[route.OutputIndex])
		pkt.Release()
		if err != nil {
			return err
		}
	}
}

// sameLayout checks that streams line up with the first input's routes.
func sameLayout(table *classify.Table, streams []av.StreamInfo) error {
	for _, r := range table.Outputs() {
		if r.SourceIndex >= len(streams) {
			return fmt.Errorf("missing stream %d", r.SourceIndex)
		}
		s := streams[r.SourceIndex]
		if s.MediaType != r.Stream.MediaType || s.Codec != r.Stream.Codec {
			return fmt.Errorf("stream %d is %s/%s, expected %s/%s", r.SourceIndex, s.MediaType, s.Codec, r.Stream.MediaType, r.Stream.Codec)
		}
	}
	return nil
}
