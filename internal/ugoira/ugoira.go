// Package ugoira converts a zip of still frames with per-frame delays
// into an H.264 MP4.
package ugoira

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"os"
	"strconv"
	"time"

	"remuxkit/internal/av"
	"remuxkit/internal/encode"
	"remuxkit/internal/logging"
	"remuxkit/internal/metrics"
	"remuxkit/internal/timebase"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

var (
	// ErrFramesNeeded is returned for an empty frame list.
	ErrFramesNeeded = errors.New("at least one frame is needed")
	// ErrFileNotInZip is returned when a frame file is missing from the
	// archive.
	ErrFileNotInZip = errors.New("file not found in zip")
	// ErrNoEncoder is returned when no H.264 encoder can be opened.
	ErrNoEncoder = errors.New("no available H.264 encoder")
	// ErrInvalidDelay is returned for a frame shorter than a millisecond.
	ErrInvalidDelay = errors.New("frame delay must be at least 1ms")
)

// Encoders are tried in order.
var Encoders = []string{"libx264", "h264_videotoolbox", "h264_nvenc", "h264"}

// Frame is one picture of the animation.
type Frame struct {
	File  string        `json:"file"`
	Delay time.Duration `json:"delay"`
}

// NewFrame returns a frame shown for delay.
func NewFrame(file string, delay time.Duration) (Frame, error) {
	if delay < time.Millisecond {
		return Frame{}, fmt.Errorf("%w: %s %v", ErrInvalidDelay, file, delay)
	}
	return Frame{File: file, Delay: delay}, nil
}

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// FPS returns the frame rate that hits every frame boundary exactly,
// 1000 / gcd(delays in ms), capped at maxFPS when maxFPS is positive.
func FPS(frames []Frame, maxFPS float64) float64 {
	if len(frames) == 0 {
		return maxFPS
	}
	g := frames[0].Delay.Milliseconds()
	for _, f := range frames[1:] {
		g = gcd(g, f.Delay.Milliseconds())
	}
	fps := 1000 / float64(max(g, 1))
	if maxFPS > 0 && fps > maxFPS {
		return maxFPS
	}
	return fps
}

// Options configures Convert.
type Options struct {
	MaxFPS float64
	// CRF is the x264 constant rate factor, -1 to leave it unset.
	CRF          int
	Preset       string
	Level        string
	Profile      string
	ForceYUV420P bool
}

// DefaultOptions returns the settings used when none are given.
func DefaultOptions() Options {
	return Options{MaxFPS: 60, CRF: 18, Preset: "slow"}
}

func (o Options) validate() error {
	if o.CRF < -1 || o.CRF > 51 {
		return fmt.Errorf("crf %d out of range -1..51", o.CRF)
	}
	if o.MaxFPS < 0 || math.IsNaN(o.MaxFPS) {
		return fmt.Errorf("invalid max fps %v", o.MaxFPS)
	}
	return nil
}

func (o Options) encoderOptions() map[string]string {
	opts := map[string]string{}
	if o.Preset != "" {
		opts["preset"] = o.Preset
	}
	if o.CRF >= 0 {
		opts["crf"] = strconv.Itoa(o.CRF)
	}
	if o.Level != "" {
		opts["level"] = o.Level
	}
	if o.Profile != "" {
		opts["profile"] = o.Profile
	}
	return opts
}

// Result describes a written animation.
type Result struct {
	Output  string  `json:"output"`
	Encoder string  `json:"encoder"`
	FPS     float64 `json:"fps"`
	Width   int     `json:"width"`
	Height  int     `json:"height"`
	Frames  int     `json:"frames"`
	Packets int64   `json:"packets"`
}

// Convert encodes frames, read from the zip at zipPath, into an MP4 at
// dest. Each frame is repeated at the output rate until its delay has
// elapsed.
func Convert(ctx context.Context, fw av.Framework, zipPath, dest string, frames []Frame, opts Options) (*Result, error) {
	start := time.Now()
	res, err := convert(ctx, fw, zipPath, dest, frames, opts)
	metrics.ObserveJob("ugoira", av.Status(err), start)
	if err != nil {
		return nil, err
	}
	logging.Info("ugoira: wrote %s (%dx%d, %d frames at %.3g fps) in %v",
		res.Output, res.Width, res.Height, res.Frames, res.FPS, time.Since(start).Round(time.Millisecond))
	return res, nil
}

func convert(ctx context.Context, fw av.Framework, zipPath, dest string, frames []Frame, opts Options) (*Result, error) {
	if len(frames) == 0 {
		return nil, av.Policy("ugoira", ErrFramesNeeded)
	}
	for _, f := range frames {
		if f.Delay < time.Millisecond {
			return nil, av.Policy("ugoira", fmt.Errorf("%w: %s", ErrInvalidDelay, f.File))
		}
	}
	if err := opts.validate(); err != nil {
		return nil, av.Policy("ugoira", err)
	}
	if err := os.Remove(dest); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, av.Resource("remove existing output", err)
	}

	archive, err := openArchive(zipPath)
	if err != nil {
		return nil, err
	}
	defer archive.Close()

	first, err := archive.decode(frames[0].File)
	if err != nil {
		return nil, err
	}
	size := first.Bounds().Size()
	// 4:2:0 needs even dimensions.
	width, height := max(size.X&^1, 2), max(size.Y&^1, 2)

	fps := FPS(frames, opts.MaxFPS)
	frameBase := timebase.New(timebase.AVTimeBase.Den, int(math.Round(fps*float64(timebase.AVTimeBase.Den))))
	cfg := av.VideoEncoderConfig{
		Codecs:       Encoders,
		Width:        width,
		Height:       height,
		TimeBase:     timebase.AVTimeBase,
		GlobalHeader: true,
		Options:      opts.encoderOptions(),
	}
	if opts.ForceYUV420P {
		cfg.PixelFormat = "yuv420p"
	}
	enc, err := fw.OpenVideoEncoder(cfg)
	if err != nil {
		return nil, av.FrameworkError("open encoder", 0, fmt.Errorf("%w: %w", ErrNoEncoder, err))
	}
	defer enc.Close()
	logging.Debug("ugoira: %d frames, %.3g fps, encoder %s %dx%d", len(frames), fps, enc.Codec(), width, height)

	mux, err := fw.CreateOutput(dest, "mp4")
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := mux.Close(); err != nil {
			logging.Warn("ugoira: closing %s: %v", dest, err)
		}
	}()
	idx, err := mux.AddEncoderStream(enc)
	if err != nil {
		return nil, err
	}
	if err := mux.WriteHeader(); err != nil {
		return nil, err
	}

	w := &writer{mux: mux, from: enc.TimeBase(), to: mux.TimeBase(idx)}
	drainer := encode.NewDrainer(enc, idx, w.write)
	var cursor encode.Cursor
	var shown int64
	res := &Result{Output: dest, Encoder: enc.Codec(), FPS: fps, Width: width, Height: height}

	for i, f := range frames {
		img := first
		if i > 0 {
			if img, err = archive.decode(f.File); err != nil {
				return nil, err
			}
		}
		shown += timebase.Rescale(f.Delay.Milliseconds(), timebase.Millisecond, enc.TimeBase())
		for cursor.Value() < shown {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("job abandoned: %w", err)
			}
			frame, err := enc.NewFrame(img)
			if err != nil {
				return nil, av.Resource("convert frame", err)
			}
			cursor.Stamp(frame, 1, frameBase, enc.TimeBase())
			_, err = drainer.Step(frame)
			frame.Release()
			if err != nil {
				return nil, err
			}
			res.Frames++
		}
	}
	if err := drainer.Flush(); err != nil {
		return nil, err
	}
	metrics.EncoderFlushSteps.Observe(float64(drainer.FlushSteps()))
	if err := mux.WriteTrailer(); err != nil {
		return nil, err
	}
	res.Packets = drainer.Packets()
	return res, nil
}

// writer rebases encoder packets into the output stream and keeps their
// DTS increasing.
type writer struct {
	mux   av.Muxer
	from  timebase.Rational
	to    timebase.Rational
	guard timebase.Guard
}

func (w *writer) write(pkt av.Packet) error {
	defer pkt.Release()
	pkt.SetPTS(timebase.Rescale(pkt.PTS(), w.from, w.to))
	pkt.SetDTS(timebase.Rescale(pkt.DTS(), w.from, w.to))
	pkt.SetDuration(timebase.RescaleDelta(pkt.Duration(), w.from, w.to))
	dts, pts, fixed := w.guard.Correct(pkt.DTS(), pkt.PTS())
	if w.guard.Saturated() {
		return av.FrameworkError("write packet", 0, timebase.ErrSaturated)
	}
	if fixed {
		logging.Warn("ugoira: non-monotonic dts, using %d", dts)
		pkt.SetDTS(dts)
		pkt.SetPTS(pts)
		metrics.TimestampCorrections.Inc()
	}
	logging.Trace("ugoira: out pts=%d dts=%d dur=%d", pkt.PTS(), pkt.DTS(), pkt.Duration())
	return w.mux.WritePacket(pkt)
}

// archive holds an opened zip indexed by file name.
type archive struct {
	zr    *zip.ReadCloser
	files map[string]*zip.File
}

func openArchive(path string) (*archive, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, av.Resource("open zip "+path, err)
	}
	a := &archive{zr: zr, files: make(map[string]*zip.File, len(zr.File))}
	for _, f := range zr.File {
		a.files[f.Name] = f
	}
	return a, nil
}

func (a *archive) decode(name string) (image.Image, error) {
	f, ok := a.files[name]
	if !ok {
		return nil, av.Policy("ugoira", fmt.Errorf("%w: %s", ErrFileNotInZip, name))
	}
	rc, err := f.Open()
	if err != nil {
		return nil, av.Resource("open "+name, err)
	}
	defer rc.Close()
	img, err := imaging.Decode(rc)
	if err != nil {
		return nil, av.Resource("decode "+name, err)
	}
	return img, nil
}

func (a *archive) Close() error {
	return a.zr.Close()
}
