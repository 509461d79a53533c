package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"remuxkit/internal/ugoira"
)

func TestParseFrames(t *testing.T) {
	frames, err := parseFrames([]string{"a.jpg:100", "dir/b:c.png:40"})
	if err != nil {
		t.Fatalf("parseFrames() error = %v", err)
	}
	want := []ugoira.Frame{
		{File: "a.jpg", Delay: 100 * time.Millisecond},
		{File: "dir/b:c.png", Delay: 40 * time.Millisecond},
	}
	if len(frames) != len(want) {
		t.Fatalf("parseFrames() = %d frames, want %d", len(frames), len(want))
	}
	for i := range want {
		if frames[i] != want[i] {
			t.Errorf("frame %d = %+v, want %+v", i, frames[i], want[i])
		}
	}
}

func TestParseFramesErrors(t *testing.T) {
	tests := []struct {
		name string
		arg  string
	}{
		{"no colon", "a.jpg"},
		{"empty file", ":100"},
		{"bad delay", "a.jpg:fast"},
		{"zero delay", "a.jpg:0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseFrames([]string{tt.arg}); err == nil {
				t.Errorf("parseFrames(%q) expected error", tt.arg)
			}
		})
	}

	if _, err := parseFrames([]string{"a.jpg:0"}); !errors.Is(err, ugoira.ErrInvalidDelay) {
		t.Errorf("zero delay error = %v, want ErrInvalidDelay", err)
	}
}

func TestLoadFrames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frames.json")
	if err := os.WriteFile(path, []byte(`[{"file":"000000.jpg","delay":100},{"file":"000001.jpg","delay":50}]`), 0o600); err != nil {
		t.Fatal(err)
	}
	frames, err := loadFrames(path)
	if err != nil {
		t.Fatalf("loadFrames() error = %v", err)
	}
	if len(frames) != 2 || frames[1].File != "000001.jpg" || frames[1].Delay != 50*time.Millisecond {
		t.Errorf("loadFrames() = %+v", frames)
	}

	if err := os.WriteFile(path, []byte(`{`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := loadFrames(path); err == nil {
		t.Error("loadFrames() expected error for bad JSON")
	}
}

func TestRunUsage(t *testing.T) {
	if code := run([]string{"only.zip"}); code != 2 {
		t.Errorf("run(only.zip) = %d, want 2", code)
	}
}
