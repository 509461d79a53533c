package httpheader

import (
	"errors"
	"flag"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Header
		wantErr error
	}{
		{name: "Simple", input: "Referer: https://example.com/", want: Header{"Referer", "https://example.com/"}},
		{name: "No space", input: "Cookie:a=b", want: Header{"Cookie", "a=b"}},
		{name: "Colon in value", input: "X-Time: 12:30", want: Header{"X-Time", "12:30"}},
		{name: "Only one space dropped", input: "X-Pad:   v", want: Header{"X-Pad", "  v"}},
		{name: "Empty value", input: "X-Empty:", want: Header{"X-Empty", ""}},
		{name: "No colon", input: "Referer", wantErr: ErrNoColon},
		{name: "Empty key", input: ": value", wantErr: ErrEmptyKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Parse(%q) error = %v, want %v", tt.input, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) failed: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestGenerate(t *testing.T) {
	got := Generate([]Header{{"Referer", "https://example.com/"}, {"Cookie", "a=b"}})
	want := "Referer:https://example.com/\r\nCookie:a=b\r\n"
	if got != want {
		t.Errorf("Generate = %q, want %q", got, want)
	}
	if Generate(nil) != "" {
		t.Error("Expected empty block for no headers")
	}
}

func TestParseAll(t *testing.T) {
	if _, err := ParseAll([]string{"A: 1", "broken"}); !errors.Is(err, ErrNoColon) {
		t.Errorf("Expected ErrNoColon, got %v", err)
	}
	hs, err := ParseAll([]string{"A: 1", "B: 2"})
	if err != nil || len(hs) != 2 {
		t.Fatalf("ParseAll = %v, %v", hs, err)
	}
}

func TestListFlag(t *testing.T) {
	var l List
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Var(&l, "H", "header")
	if err := fs.Parse([]string{"-H", "A: 1", "-H", "B:2"}); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(l) != 2 || l[1].Value != "2" {
		t.Errorf("Unexpected headers %+v", l)
	}
	if got := Generate(l); got != "A:1\r\nB:2\r\n" {
		t.Errorf("Generate = %q", got)
	}
}
