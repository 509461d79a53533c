// Package probe reports container, stream and chapter information of a
// media input.
package probe

import (
	"context"
	"time"

	"remuxkit/internal/av"
	"remuxkit/internal/httpheader"
	"remuxkit/internal/logging"
	"remuxkit/internal/metrics"
	"remuxkit/internal/timebase"
)

// Info describes an input.
type Info struct {
	URL string `json:"url"`
	// Duration is in microseconds, or -1 when unknown.
	Duration       int64             `json:"duration"`
	Seconds        float64           `json:"seconds,omitempty"`
	FormatName     string            `json:"format_name"`
	FormatLongName string            `json:"format_long_name,omitempty"`
	MimeType       string            `json:"mime_type,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	Chapters       []Chapter         `json:"chapters"`
	Streams        []Stream          `json:"streams"`
}

// Chapter is a chapter marker. Start and End are in TimeBase units.
type Chapter struct {
	ID       int64             `json:"id"`
	TimeBase string            `json:"time_base"`
	Start    int64             `json:"start"`
	End      int64             `json:"end"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Stream is one elementary stream.
type Stream struct {
	Index       int               `json:"index"`
	ID          int               `json:"id"`
	MediaType   string            `json:"media_type"`
	Codec       string            `json:"codec"`
	TimeBase    string            `json:"time_base"`
	Duration    int64             `json:"duration"`
	AttachedPic bool              `json:"attached_pic,omitempty"`
	Width       int               `json:"width,omitempty"`
	Height      int               `json:"height,omitempty"`
	PixelFormat string            `json:"pixel_format,omitempty"`
	SampleRate  int               `json:"sample_rate,omitempty"`
	Channels    int               `json:"channels,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Probe opens url, reads its stream information and closes it again. No
// packets are read.
func Probe(ctx context.Context, fw av.Framework, url string, headers []httpheader.Header) (*Info, error) {
	start := time.Now()
	info, err := probe(ctx, fw, url, headers)
	metrics.ObserveJob("probe", av.Status(err), start)
	return info, err
}

func probe(ctx context.Context, fw av.Framework, url string, headers []httpheader.Header) (*Info, error) {
	opts := av.InputOptions{}
	if len(headers) > 0 {
		opts.Options = map[string]string{"headers": httpheader.Generate(headers)}
	}
	in, err := fw.OpenInput(ctx, url, opts)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	info := &Info{
		URL:            url,
		Duration:       in.Duration(),
		FormatName:     in.FormatName(),
		FormatLongName: in.FormatLongName(),
		MimeType:       in.MimeType(),
		Metadata:       in.Metadata(),
		Chapters:       []Chapter{},
		Streams:        []Stream{},
	}
	if info.Duration == timebase.NoTimestamp || info.Duration < 0 {
		info.Duration = -1
	} else {
		info.Seconds = float64(info.Duration) / float64(timebase.AVTimeBase.Den)
	}

	for _, ch := range in.Chapters() {
		info.Chapters = append(info.Chapters, Chapter{
			ID:       ch.ID,
			TimeBase: ch.TimeBase.String(),
			Start:    ch.Start,
			End:      ch.End,
			Metadata: ch.Metadata,
		})
	}
	for _, s := range in.Streams() {
		dur := s.Duration
		if dur == timebase.NoTimestamp {
			dur = -1
		}
		info.Streams = append(info.Streams, Stream{
			Index:       s.Index,
			ID:          s.ID,
			MediaType:   s.MediaType.String(),
			Codec:       s.Codec,
			TimeBase:    s.TimeBase.String(),
			Duration:    dur,
			AttachedPic: s.AttachedPic,
			Width:       s.Width,
			Height:      s.Height,
			PixelFormat: s.PixelFormat,
			SampleRate:  s.SampleRate,
			Channels:    s.Channels,
			Metadata:    s.Metadata,
		})
	}
	logging.Debug("probe: %s: %s, %d streams, %d chapters", url, info.FormatName, len(info.Streams), len(info.Chapters))
	return info, nil
}
