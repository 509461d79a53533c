// Package httpheader parses and renders the extra request headers passed
// to HTTP inputs.
package httpheader

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoColon is returned when a header line has no colon.
	ErrNoColon = errors.New("header has no colon")
	// ErrEmptyKey is returned when the header name is empty.
	ErrEmptyKey = errors.New("header has an empty key")
)

// Header is one request header.
type Header struct {
	Key   string
	Value string
}

func (h Header) String() string {
	return h.Key + ":" + h.Value
}

// Parse splits "Key: value" at the first colon. A single space after the
// colon is dropped; the rest of the value is kept as is.
func Parse(line string) (Header, error) {
	key, value, ok := strings.Cut(line, ":")
	if !ok {
		return Header{}, fmt.Errorf("%w: %q", ErrNoColon, line)
	}
	if key == "" {
		return Header{}, fmt.Errorf("%w: %q", ErrEmptyKey, line)
	}
	return Header{Key: key, Value: strings.TrimPrefix(value, " ")}, nil
}

// ParseAll parses every line.
func ParseAll(lines []string) ([]Header, error) {
	out := make([]Header, 0, len(lines))
	for _, l := range lines {
		h, err := Parse(l)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

// Generate renders headers as the "key:value\r\n" block the HTTP demuxer
// expects in its "headers" option.
func Generate(headers []Header) string {
	var b strings.Builder
	for _, h := range headers {
		b.WriteString(h.Key)
		b.WriteByte(':')
		b.WriteString(h.Value)
		b.WriteString("\r\n")
	}
	return b.String()
}

// List collects repeated -H flags. It implements flag.Value.
type List []Header

func (l *List) String() string {
	parts := make([]string, len(*l))
	for i, h := range *l {
		parts[i] = h.String()
	}
	return strings.Join(parts, ", ")
}

func (l *List) Set(v string) error {
	h, err := Parse(v)
	if err != nil {
		return err
	}
	*l = append(*l, h)
	return nil
}
