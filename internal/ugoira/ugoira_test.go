package ugoira

import (
	"archive/zip"
	"context"
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"remuxkit/internal/av"
	"remuxkit/internal/av/avtest"
	"remuxkit/internal/timebase"

	"github.com/disintegration/imaging"
)

func writeZip(t *testing.T, names ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "frames.zip")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	for i, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		img := imaging.New(33, 21, color.NRGBA{R: uint8(i * 60), A: 255})
		if err := imaging.Encode(w, img, imaging.PNG); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func frameList(delays ...time.Duration) []Frame {
	frames := make([]Frame, len(delays))
	for i, d := range delays {
		frames[i] = Frame{File: []string{"000.png", "001.png", "002.png"}[i], Delay: d}
	}
	return frames
}

func newFramework() *avtest.Framework {
	return &avtest.Framework{VideoEnc: &avtest.VideoEncoder{Encoder: &avtest.Encoder{Name: "libx264", Delay: 2}}}
}

func TestFPS(t *testing.T) {
	tests := []struct {
		name   string
		delays []time.Duration
		max    float64
		want   float64
	}{
		{"gcd", []time.Duration{100 * time.Millisecond, 50 * time.Millisecond, 150 * time.Millisecond}, 60, 20},
		{"capped", []time.Duration{time.Millisecond, 3 * time.Millisecond}, 60, 60},
		{"uncapped", []time.Duration{4 * time.Millisecond}, 0, 250},
		{"coprime", []time.Duration{70 * time.Millisecond, 30 * time.Millisecond}, 60, 60},
		{"single", []time.Duration{40 * time.Millisecond}, 60, 25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FPS(frameList(tt.delays...), tt.max); got != tt.want {
				t.Errorf("FPS() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewFrame(t *testing.T) {
	if _, err := NewFrame("a.png", 500*time.Microsecond); !errors.Is(err, ErrInvalidDelay) {
		t.Errorf("NewFrame(0.5ms) error = %v, want ErrInvalidDelay", err)
	}
	f, err := NewFrame("a.png", time.Millisecond)
	if err != nil {
		t.Fatalf("NewFrame(1ms) error = %v", err)
	}
	if f.File != "a.png" || f.Delay != time.Millisecond {
		t.Errorf("NewFrame() = %+v", f)
	}
}

func TestConvertRepeatsFrames(t *testing.T) {
	zipPath := writeZip(t, "000.png", "001.png", "002.png")
	dest := filepath.Join(t.TempDir(), "out.mp4")
	fw := newFramework()

	frames := frameList(100*time.Millisecond, 50*time.Millisecond, 150*time.Millisecond)
	res, err := Convert(context.Background(), fw, zipPath, dest, frames, DefaultOptions())
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if res.FPS != 20 || res.Frames != 6 || res.Packets != 6 {
		t.Errorf("result = %+v, want 20 fps, 6 frames, 6 packets", res)
	}
	if res.Width != 32 || res.Height != 20 {
		t.Errorf("size = %dx%d, want 32x20", res.Width, res.Height)
	}

	enc := fw.VideoEnc
	for i, f := range enc.Frames {
		if want := int64(i) * 50000; f.Pts != want {
			t.Errorf("frame %d pts = %d, want %d", i, f.Pts, want)
		}
	}
	cfg := fw.VideoConfig
	if cfg.TimeBase != timebase.AVTimeBase || !cfg.GlobalHeader || cfg.PixelFormat != "" {
		t.Errorf("encoder config = %+v", cfg)
	}
	if cfg.Options["crf"] != "18" || cfg.Options["preset"] != "slow" {
		t.Errorf("encoder options = %v", cfg.Options)
	}

	mux := fw.LastOutput()
	if mux.FormatName != "mp4" || !mux.TrailerWritten {
		t.Fatalf("muxer = %s, trailer %v", mux.FormatName, mux.TrailerWritten)
	}
	pkts := mux.PacketsFor(0)
	if len(pkts) != 6 {
		t.Fatalf("got %d packets, want 6", len(pkts))
	}
	for i, p := range pkts {
		if want := int64(i) * 4500; p.Pts != want || p.Dts != want {
			t.Errorf("packet %d pts/dts = %d/%d, want %d", i, p.Pts, p.Dts, want)
		}
	}
}

func TestConvertCapsFrameRate(t *testing.T) {
	zipPath := writeZip(t, "000.png", "001.png", "002.png")
	dest := filepath.Join(t.TempDir(), "out.mp4")
	fw := newFramework()

	opts := DefaultOptions()
	opts.MaxFPS = 10
	opts.ForceYUV420P = true
	frames := frameList(100*time.Millisecond, 50*time.Millisecond, 150*time.Millisecond)
	res, err := Convert(context.Background(), fw, zipPath, dest, frames, opts)
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if res.Frames != 3 {
		t.Errorf("frames = %d, want 3", res.Frames)
	}
	if fw.VideoConfig.PixelFormat != "yuv420p" {
		t.Errorf("pixel format = %q, want yuv420p", fw.VideoConfig.PixelFormat)
	}
}

func TestConvertErrors(t *testing.T) {
	zipPath := writeZip(t, "000.png")
	tests := []struct {
		name   string
		frames []Frame
		opts   func(*Options)
		want   error
	}{
		{"no frames", nil, nil, ErrFramesNeeded},
		{"missing file", []Frame{{File: "nope.png", Delay: time.Second}}, nil, ErrFileNotInZip},
		{"short delay", []Frame{{File: "000.png"}}, nil, ErrInvalidDelay},
		{"bad crf", []Frame{{File: "000.png", Delay: time.Second}}, func(o *Options) { o.CRF = 52 }, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			if tt.opts != nil {
				tt.opts(&opts)
			}
			fw := newFramework()
			_, err := Convert(context.Background(), fw, zipPath, filepath.Join(t.TempDir(), "out.mp4"), tt.frames, opts)
			if !av.IsPolicy(err) {
				t.Fatalf("Convert() error = %v, want policy error", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("Convert() error = %v, want %v", err, tt.want)
			}
			if len(fw.Outputs) != 0 {
				t.Error("output created for rejected job")
			}
		})
	}
}

func TestConvertNoEncoder(t *testing.T) {
	zipPath := writeZip(t, "000.png")
	fw := &avtest.Framework{}
	_, err := Convert(context.Background(), fw, zipPath, filepath.Join(t.TempDir(), "out.mp4"), frameList(time.Second), DefaultOptions())
	if !errors.Is(err, ErrNoEncoder) {
		t.Fatalf("Convert() error = %v, want ErrNoEncoder", err)
	}
	if av.KindOf(err) != av.KindFramework {
		t.Errorf("kind = %v, want framework", av.KindOf(err))
	}
}

func TestConvertCanceledRemovesOutput(t *testing.T) {
	zipPath := writeZip(t, "000.png")
	dest := filepath.Join(t.TempDir(), "out.mp4")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Convert(ctx, newFramework(), zipPath, dest, frameList(time.Second), DefaultOptions())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Convert() error = %v, want context.Canceled", err)
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Errorf("partial output left behind: %v", err)
	}
}

func TestConvertMissingZip(t *testing.T) {
	_, err := Convert(context.Background(), newFramework(), "/nonexistent/frames.zip", filepath.Join(t.TempDir(), "o.mp4"), frameList(time.Second), DefaultOptions())
	if av.KindOf(err) != av.KindResource {
		t.Errorf("kind = %v, want resource", av.KindOf(err))
	}
}
