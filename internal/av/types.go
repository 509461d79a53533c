package av

import (
	"fmt"

	"remuxkit/internal/timebase"
)

// MediaType is the kind of data carried by a stream.
type MediaType int

const (
	MediaUnknown MediaType = iota
	MediaVideo
	MediaAudio
	MediaData
	MediaSubtitle
	MediaAttachment
)

func (m MediaType) String() string {
	switch m {
	case MediaVideo:
		return "video"
	case MediaAudio:
		return "audio"
	case MediaData:
		return "data"
	case MediaSubtitle:
		return "subtitle"
	case MediaAttachment:
		return "attachment"
	default:
		return "unknown"
	}
}

// StreamInfo describes one stream of an opened input.
type StreamInfo struct {
	Index     int
	ID        int
	MediaType MediaType
	// Codec is the framework's short codec name ("aac", "mjpeg", "h264").
	Codec    string
	TimeBase timebase.Rational
	// Duration is expressed in TimeBase units, or timebase.NoTimestamp.
	Duration    int64
	AttachedPic bool

	SampleRate int
	Channels   int

	Width       int
	Height      int
	PixelFormat string

	Metadata map[string]string
}

func (s StreamInfo) String() string {
	return fmt.Sprintf("#%d %s/%s tb=%s", s.Index, s.MediaType, s.Codec, s.TimeBase)
}

// Chapter is a chapter marker of an input.
type Chapter struct {
	ID       int64
	TimeBase timebase.Rational
	Start    int64
	End      int64
	Metadata map[string]string
}

// SampleFormat describes how one audio sample is laid out in memory.
type SampleFormat struct {
	Name           string
	BytesPerSample int
	Planar         bool
}

// AudioFormat is the full description of an audio sample stream.
type AudioFormat struct {
	SampleRate int
	Channels   int
	Sample     SampleFormat
}

// Planes returns the number of data planes a frame in this format has.
func (f AudioFormat) Planes() int {
	if f.Sample.Planar {
		return f.Channels
	}
	return 1
}

// PlaneSampleSize returns the number of bytes one sample occupies in a
// single plane.
func (f AudioFormat) PlaneSampleSize() int {
	if f.Sample.Planar {
		return f.Sample.BytesPerSample
	}
	return f.Sample.BytesPerSample * f.Channels
}

// EncoderInfo describes what an encoder accepts, before it is opened.
type EncoderInfo struct {
	Name                 string
	SampleRates          []int
	SampleFormats        []SampleFormat
	PixelFormats         []string
	VariableFrameSize    bool
	RequiresGlobalHeader bool
}

// SupportsSampleRate reports whether rate is accepted. An encoder that
// publishes no list accepts any rate.
func (e EncoderInfo) SupportsSampleRate(rate int) bool {
	if len(e.SampleRates) == 0 {
		return rate > 0
	}
	for _, r := range e.SampleRates {
		if r == rate {
			return true
		}
	}
	return false
}
