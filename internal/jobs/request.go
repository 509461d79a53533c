package jobs

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/blake2b"

	"remuxkit/internal/pipeline"
)

// Kind selects the operation a job runs.
type Kind string

const (
	KindM4A       Kind = "m4a"
	KindConcat    Kind = "concat"
	KindThumbnail Kind = "thumbnail"
	KindImage     Kind = "image"
	KindUgoira    Kind = "ugoira"
	KindProbe     Kind = "probe"
)

// Kinds lists every job kind.
var Kinds = []Kind{KindM4A, KindConcat, KindThumbnail, KindImage, KindUgoira, KindProbe}

// ErrInvalidRequest wraps every validation failure.
var ErrInvalidRequest = errors.New("invalid job request")

// FrameSpec is one ugoira frame; Delay is in milliseconds.
type FrameSpec struct {
	File  string `json:"file"`
	Delay int64  `json:"delay"`
}

// Request is the body of a job submission. Which fields apply depends on
// Kind. Local inputs are relative to the work directory and outputs are
// relative to the output directory; inputs may also be URLs.
type Request struct {
	Kind      Kind     `json:"kind"`
	Input     string   `json:"input,omitempty"`
	Inputs    []string `json:"inputs,omitempty"`
	Output    string   `json:"output,omitempty"`
	Headers   []string `json:"headers,omitempty"`
	Format    string   `json:"format,omitempty"`
	Overwrite bool     `json:"overwrite,omitempty"`

	Cover      string            `json:"cover,omitempty"`
	Metadata   pipeline.Metadata `json:"metadata,omitempty"`
	SampleRate int               `json:"sample_rate,omitempty"`
	Bitrate    int64             `json:"bitrate,omitempty"`

	MaxLength    int  `json:"max_length,omitempty"`
	ForceYUV420P bool `json:"force_yuv420p,omitempty"`

	Frames  []FrameSpec `json:"frames,omitempty"`
	MaxFPS  float64     `json:"max_fps,omitempty"`
	CRF     *int        `json:"crf,omitempty"`
	Preset  string      `json:"preset,omitempty"`
	Level   string      `json:"level,omitempty"`
	Profile string      `json:"profile,omitempty"`
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// IsURL reports whether an input names a network resource rather than a
// file in the work directory.
func IsURL(input string) bool {
	return strings.Contains(input, "://")
}

func checkLocal(field, path string) error {
	if IsURL(path) {
		return nil
	}
	if !filepath.IsLocal(path) {
		return invalid("%s %q must be a relative path inside the work directory", field, path)
	}
	return nil
}

// Validate checks that the fields Kind needs are present and that every
// path stays inside its directory.
func (r *Request) Validate() error {
	switch r.Kind {
	case KindM4A, KindThumbnail, KindImage, KindProbe, KindUgoira:
		if r.Input == "" {
			return invalid("%s needs an input", r.Kind)
		}
		if err := checkLocal("input", r.Input); err != nil {
			return err
		}
	case KindConcat:
		if len(r.Inputs) == 0 {
			return invalid("concat needs inputs")
		}
		for _, in := range r.Inputs {
			if err := checkLocal("input", in); err != nil {
				return err
			}
		}
	case "":
		return invalid("missing kind")
	default:
		return invalid("unknown kind %q", r.Kind)
	}

	if r.Kind == KindUgoira && IsURL(r.Input) {
		return invalid("ugoira input must be a local zip file")
	}
	if r.Output != "" && !filepath.IsLocal(r.Output) {
		return invalid("output %q must be a relative path inside the output directory", r.Output)
	}
	if r.Cover != "" {
		if err := checkLocal("cover", r.Cover); err != nil {
			return err
		}
	}
	if r.Kind == KindImage && r.MaxLength < 0 {
		return invalid("max_length must be positive")
	}
	if r.Kind == KindUgoira {
		if len(r.Frames) == 0 {
			return invalid("ugoira needs frames")
		}
		for _, f := range r.Frames {
			if f.Delay < 1 {
				return invalid("frame %s: delay must be at least 1ms", f.File)
			}
		}
	}
	return nil
}

// Fingerprint identifies identical submissions.
func (r *Request) Fingerprint() (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// DefaultOutput returns the output name used when the request has none.
func (r *Request) DefaultOutput(id int64) string {
	switch r.Kind {
	case KindM4A:
		return fmt.Sprintf("job-%d.m4a", id)
	case KindConcat:
		ext := ".mp4"
		if len(r.Inputs) > 0 && filepath.Ext(r.Inputs[0]) != "" {
			ext = filepath.Ext(r.Inputs[0])
		}
		return fmt.Sprintf("job-%d%s", id, ext)
	case KindThumbnail, KindImage:
		format := r.Format
		if format == "" {
			format = "jpeg"
		}
		return fmt.Sprintf("job-%d.%s", id, strings.ToLower(format))
	case KindUgoira:
		return fmt.Sprintf("job-%d.mp4", id)
	}
	return ""
}
