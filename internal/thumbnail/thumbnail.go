package thumbnail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"time"

	"remuxkit/internal/av"
	"remuxkit/internal/logging"
	"remuxkit/internal/metrics"
	"remuxkit/internal/timebase"

	_ "image/gif"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// ErrNoVideoStream is returned when the source has no picture to use.
var ErrNoVideoStream = errors.New("no video stream in source")

// Format is an output picture format.
type Format int

const (
	JPEG Format = iota
	WebP
	PNG
)

func (f Format) String() string {
	switch f {
	case WebP:
		return "webp"
	case PNG:
		return "png"
	default:
		return "jpeg"
	}
}

// ParseFormat accepts "jpeg", "jpg", "webp" and "png".
func ParseFormat(s string) (Format, error) {
	switch s {
	case "jpeg", "jpg", "mjpeg":
		return JPEG, nil
	case "webp":
		return WebP, nil
	case "png":
		return PNG, nil
	}
	return JPEG, av.Policy("format", fmt.Errorf("unknown picture format %q", s))
}

// codec is the framework codec name a copied source must already have.
func (f Format) codec() string {
	switch f {
	case WebP:
		return "webp"
	case PNG:
		return "png"
	default:
		return "mjpeg"
	}
}

// Quality is the lossy encoding quality for JPEG and WebP.
const Quality = 90

// Thumbnail writes a thumbnail of src to dest and returns its size.
func Thumbnail(ctx context.Context, fw av.Framework, src, dest string, format Format) (Size, error) {
	start := time.Now()
	size, err := thumbnail(ctx, fw, src, dest, format)
	metrics.ObserveJob("thumbnail", av.Status(err), start)
	return size, err
}

func thumbnail(ctx context.Context, fw av.Framework, src, dest string, format Format) (Size, error) {
	if format == PNG {
		return Size{}, av.Policy("thumbnail", errors.New("thumbnails are JPEG or WebP"))
	}
	s, err := newSource(ctx, fw, src)
	if err != nil {
		return Size{}, err
	}
	defer s.close()

	if err := removeExisting(dest); err != nil {
		return Size{}, err
	}

	in := Size{s.stream.Width, s.stream.Height}
	copyPix := map[Format]string{JPEG: "yuvj420p", WebP: "yuv420p"}[format]
	if in.Fits(MaxThumbnail) && s.stream.Codec == format.codec() && s.stream.PixelFormat == copyPix {
		return in, s.copyTo(fw, dest, format)
	}

	img, err := s.firstPicture(fw)
	if err != nil {
		return Size{}, err
	}
	b := img.Bounds()
	crop, out := ThumbnailSize(b.Dx(), b.Dy())
	logging.Debug("thumbnail: %s %dx%d crop %v -> %dx%d", src, b.Dx(), b.Dy(), crop, out.Width, out.Height)

	phase := time.Now()
	pic := imaging.Crop(img, crop.Add(b.Min))
	if out.Width != crop.Dx() || out.Height != crop.Dy() {
		pic = imaging.Resize(pic, out.Width, out.Height, imaging.Linear)
	}
	metrics.ImagePhaseDuration.WithLabelValues("resize").Observe(time.Since(phase).Seconds())

	return out, writePicture(dest, pic, format)
}

// Compress writes src to dest with its longer side at most maxLen. A
// source already small enough and in the target codec is copied; with
// forceYUV420P it must also be 4:2:0.
func Compress(ctx context.Context, fw av.Framework, src, dest string, format Format, maxLen int, forceYUV420P bool) (Size, error) {
	start := time.Now()
	size, err := compress(ctx, fw, src, dest, format, maxLen, forceYUV420P)
	metrics.ObserveJob("image", av.Status(err), start)
	return size, err
}

func compress(ctx context.Context, fw av.Framework, src, dest string, format Format, maxLen int, forceYUV420P bool) (Size, error) {
	if format == WebP {
		return Size{}, av.Policy("compress", errors.New("compressed images are JPEG or PNG"))
	}
	if maxLen <= 0 {
		return Size{}, av.Policy("compress", fmt.Errorf("invalid maximum length %d", maxLen))
	}
	s, err := newSource(ctx, fw, src)
	if err != nil {
		return Size{}, err
	}
	defer s.close()

	if err := removeExisting(dest); err != nil {
		return Size{}, err
	}

	in := Size{s.stream.Width, s.stream.Height}
	if in.Fits(maxLen) && s.stream.Codec == format.codec() {
		pix := map[Format]string{JPEG: "yuvj420p", PNG: "yuv420p"}[format]
		if !forceYUV420P || s.stream.PixelFormat == pix {
			return in, s.copyTo(fw, dest, format)
		}
	}

	img, err := s.firstPicture(fw)
	if err != nil {
		return Size{}, err
	}
	b := img.Bounds()
	out := CompressSize(b.Dx(), b.Dy(), maxLen)
	phase := time.Now()
	pic := img
	if out.Width != b.Dx() || out.Height != b.Dy() {
		pic = imaging.Resize(img, out.Width, out.Height, imaging.CatmullRom)
	}
	metrics.ImagePhaseDuration.WithLabelValues("resize").Observe(time.Since(phase).Seconds())

	return out, writePicture(dest, pic, format)
}

func removeExisting(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return av.Resource("remove existing output", err)
	}
	return nil
}

// source is an opened input and its first video stream.
type source struct {
	url    string
	in     av.Demuxer
	stream av.StreamInfo
	ctx    context.Context
}

func newSource(ctx context.Context, fw av.Framework, url string) (*source, error) {
	in, err := fw.OpenInput(ctx, url, av.InputOptions{})
	if err != nil {
		return nil, err
	}
	for _, st := range in.Streams() {
		if st.MediaType == av.MediaVideo {
			return &source{url: url, in: in, stream: st, ctx: ctx}, nil
		}
	}
	in.Close()
	return nil, av.Policy("thumbnail", fmt.Errorf("%w: %s", ErrNoVideoStream, url))
}

func (s *source) close() {
	if err := s.in.Close(); err != nil {
		logging.Warn("closing %s: %v", s.url, err)
	}
}

// nextPacket returns the next packet of the picture stream, or io.EOF.
func (s *source) nextPacket() (av.Packet, error) {
	for {
		if err := s.ctx.Err(); err != nil {
			return nil, err
		}
		pkt, err := s.in.ReadPacket()
		if err != nil {
			return nil, err
		}
		if pkt.StreamIndex() == s.stream.Index {
			return pkt, nil
		}
		pkt.Release()
	}
}

// copyTo writes the first packet of the picture stream unchanged.
func (s *source) copyTo(fw av.Framework, dest string, format Format) error {
	mux, err := fw.CreateOutput(dest, "image2")
	if err != nil {
		return err
	}
	defer mux.Close()

	idx, err := mux.AddCopyStream(s.in, s.stream.Index, false)
	if err != nil {
		return err
	}
	if err := mux.WriteHeader(); err != nil {
		return err
	}
	pkt, err := s.nextPacket()
	if errors.Is(err, io.EOF) {
		return av.FrameworkError("read picture", 0, fmt.Errorf("%s: no picture packet", s.url))
	}
	if err != nil {
		return err
	}
	defer pkt.Release()
	pkt.SetPTS(0)
	pkt.SetDTS(0)
	pkt.SetDuration(timebase.RescaleDelta(pkt.Duration(), s.stream.TimeBase, mux.TimeBase(idx)))
	pkt.SetPos(-1)
	pkt.SetStreamIndex(idx)
	if err := mux.WritePacket(pkt); err != nil {
		return err
	}
	if err := mux.WriteTrailer(); err != nil {
		return err
	}
	metrics.ImageOutputsTotal.WithLabelValues(format.String(), "copy").Inc()
	logging.Debug("copied picture of %s to %s", s.url, dest)
	return nil
}

// firstPicture decodes the first frame of the picture stream. Local image
// files the framework cannot decode are opened with imaging instead.
func (s *source) firstPicture(fw av.Framework) (image.Image, error) {
	start := time.Now()
	img, err := s.decodeFirst(fw)
	if err != nil && !av.IsPolicy(err) && s.ctx.Err() == nil {
		fallback, ferr := imaging.Open(s.url, imaging.AutoOrientation(true))
		if ferr != nil {
			return nil, err
		}
		logging.Debug("decoding %s with the framework failed (%v), used imaging", s.url, err)
		img, err = fallback, nil
	}
	metrics.ImagePhaseDuration.WithLabelValues("decode").Observe(time.Since(start).Seconds())
	return img, err
}

func (s *source) decodeFirst(fw av.Framework) (image.Image, error) {
	dec, err := fw.OpenDecoder(s.in, s.stream.Index)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	draining := false
	for {
		frame, err := dec.ReceiveFrame()
		switch {
		case err == nil:
			defer frame.Release()
			vf, ok := frame.(av.VideoFrame)
			if !ok {
				return nil, av.FrameworkError("decode picture", 0, errors.New("decoder returned a non-video frame"))
			}
			img, err := vf.Image()
			if err != nil {
				return nil, av.FrameworkError("convert picture", 0, err)
			}
			return img, nil
		case errors.Is(err, io.EOF):
			return nil, av.FrameworkError("decode picture", 0, fmt.Errorf("%s: no frame decoded", s.url))
		case !errors.Is(err, av.ErrNeedMoreInput):
			return nil, err
		}
		if draining {
			return nil, av.FrameworkError("decode picture", 0, fmt.Errorf("%s: decoder stalled", s.url))
		}

		pkt, err := s.nextPacket()
		if errors.Is(err, io.EOF) {
			draining = true
			if err := dec.SendPacket(nil); err != nil {
				return nil, err
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		err = dec.SendPacket(pkt)
		pkt.Release()
		if err != nil {
			return nil, err
		}
	}
}

func encodeImage(img image.Image, format Format, quality int) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch format {
	case PNG:
		err = imaging.Encode(&buf, img, imaging.PNG)
	case WebP:
		var data []byte
		if data, err = encodeWebP(img, quality); err == nil {
			return data, nil
		}
	default:
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality))
	}
	if err != nil {
		return nil, av.Resource("encode picture", err)
	}
	return buf.Bytes(), nil
}

func writePicture(dest string, img image.Image, format Format) error {
	start := time.Now()
	data, err := encodeImage(img, format, Quality)
	if err != nil {
		return err
	}
	metrics.ImagePhaseDuration.WithLabelValues("encode").Observe(time.Since(start).Seconds())
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return av.Resource("write "+dest, err)
	}
	metrics.ImageOutputsTotal.WithLabelValues(format.String(), "encode").Inc()
	return nil
}
