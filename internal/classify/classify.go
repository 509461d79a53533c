package classify

import (
	"errors"
	"fmt"
	"slices"

	"remuxkit/internal/av"
)

// ErrNoAudio is returned when no input stream carries audio.
var ErrNoAudio = errors.New("no audio stream found")

// Disposition tells the driver how to handle a stream.
type Disposition int

const (
	Drop Disposition = iota
	Copy
	Transcode
)

func (d Disposition) String() string {
	switch d {
	case Copy:
		return "copy"
	case Transcode:
		return "transcode"
	default:
		return "drop"
	}
}

// Source identifies which opened input a stream belongs to.
type Source int

const (
	Primary Source = iota
	Cover
)

// RouteKind distinguishes the two slots Classify fills.
type RouteKind int

const (
	KindOther RouteKind = iota
	KindImage
	KindAudio
)

// Route is the decision for one input stream.
type Route struct {
	Source      Source
	SourceIndex int
	// OutputIndex is -1 for dropped streams.
	OutputIndex int
	Disposition Disposition
	Kind        RouteKind
	// External is set on an image route taken from the cover source. Its
	// packets are written before the main loop starts.
	External    bool
	AttachedPic bool
	Stream      av.StreamInfo
}

// Target describes the output the job produces.
type Target struct {
	// AudioCodec is the output audio codec; audio in any other codec is
	// transcoded.
	AudioCodec string
	// StillImageCodecs are picture codecs copied as-is.
	StillImageCodecs []string
	// ConvertibleImageCodecs are picture codecs transcoded to ImageCodec.
	ConvertibleImageCodecs []string
	ImageCodec             string
}

// M4A is the target of the m4a encoder.
var M4A = Target{
	AudioCodec:             "aac",
	StillImageCodecs:       []string{"mjpeg", "png"},
	ConvertibleImageCodecs: []string{"webp", "bmp", "gif", "tiff"},
	ImageCodec:             "mjpeg",
}

func (t Target) imageDisposition(codec string) Disposition {
	switch {
	case slices.Contains(t.StillImageCodecs, codec):
		return Copy
	case slices.Contains(t.ConvertibleImageCodecs, codec):
		return Transcode
	default:
		return Drop
	}
}

type key struct {
	source Source
	index  int
}

// Table is the classification result. It is not modified after creation.
type Table struct {
	routes  map[key]Route
	ordered []Route
	image   int
	audio   int
	outputs int
}

// Lookup returns the route of stream index of source.
func (t *Table) Lookup(source Source, index int) (Route, bool) {
	r, ok := t.routes[key{source, index}]
	return r, ok
}

// Outputs returns the kept routes in output index order.
func (t *Table) Outputs() []Route {
	out := make([]Route, 0, t.outputs)
	for _, r := range t.ordered {
		if r.Disposition != Drop {
			out = append(out, r)
		}
	}
	return out
}

// Routes returns every route, dropped ones included, in classification order.
func (t *Table) Routes() []Route {
	return slices.Clone(t.ordered)
}

// Image returns the still image route, if any.
func (t *Table) Image() (Route, bool) {
	if t.image < 0 {
		return Route{}, false
	}
	return t.ordered[t.image], true
}

// Audio returns the audio route, if any.
func (t *Table) Audio() (Route, bool) {
	if t.audio < 0 {
		return Route{}, false
	}
	return t.ordered[t.audio], true
}

// Len returns the number of output streams.
func (t *Table) Len() int {
	return t.outputs
}

func (t *Table) add(r Route) {
	if r.Disposition != Drop {
		r.OutputIndex = t.outputs
		t.outputs++
	} else {
		r.OutputIndex = -1
	}
	t.routes[key{r.Source, r.SourceIndex}] = r
	t.ordered = append(t.ordered, r)
	switch r.Kind {
	case KindImage:
		t.image = len(t.ordered) - 1
	case KindAudio:
		t.audio = len(t.ordered) - 1
	}
}

func newTable() *Table {
	return &Table{routes: make(map[key]Route), image: -1, audio: -1}
}

// Classify routes the streams of the primary input and of an optional
// cover input. Both lists are scanned linearly and the first matching
// stream wins each slot.
func Classify(primary, cover []av.StreamInfo, target Target) (*Table, error) {
	t := newTable()

	haveImage := false
	for _, s := range cover {
		r := Route{Source: Cover, SourceIndex: s.Index, Stream: s}
		if !haveImage && s.MediaType == av.MediaVideo {
			if d := target.imageDisposition(s.Codec); d != Drop {
				r.Disposition = d
				r.Kind = KindImage
				r.External = true
				r.AttachedPic = true
				haveImage = true
			}
		}
		t.add(r)
	}

	audioIndex := pickAudio(primary, target.AudioCodec)
	if audioIndex < 0 {
		return nil, av.Policy("classify", ErrNoAudio)
	}

	for i, s := range primary {
		r := Route{Source: Primary, SourceIndex: s.Index, Stream: s}
		switch {
		case i == audioIndex:
			r.Kind = KindAudio
			r.Disposition = Transcode
			if s.Codec == target.AudioCodec {
				r.Disposition = Copy
			}
		case !haveImage && s.MediaType == av.MediaVideo:
			if d := target.imageDisposition(s.Codec); d != Drop {
				r.Disposition = d
				r.Kind = KindImage
				r.AttachedPic = true
				haveImage = true
			}
		}
		t.add(r)
	}
	return t, nil
}

// pickAudio returns the position of the audio stream to keep: the first
// one already in codec, otherwise the first audio stream of any codec.
func pickAudio(streams []av.StreamInfo, codec string) int {
	first := -1
	for i, s := range streams {
		if s.MediaType != av.MediaAudio {
			continue
		}
		if s.Codec == codec {
			return i
		}
		if first < 0 {
			first = i
		}
	}
	return first
}

// ClassifyAll copies every audio, video and subtitle stream of the primary
// input in order and drops the rest.
func ClassifyAll(primary []av.StreamInfo) (*Table, error) {
	t := newTable()
	for _, s := range primary {
		r := Route{Source: Primary, SourceIndex: s.Index, Stream: s, AttachedPic: s.AttachedPic}
		switch s.MediaType {
		case av.MediaAudio, av.MediaVideo, av.MediaSubtitle:
			r.Disposition = Copy
		}
		t.add(r)
	}
	if t.outputs == 0 {
		return nil, av.Policy("classify", fmt.Errorf("no audio, video or subtitle stream"))
	}
	return t, nil
}
