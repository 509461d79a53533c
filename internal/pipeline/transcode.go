package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"remuxkit/internal/av"
	"remuxkit/internal/encode"
	"remuxkit/internal/fifo"
	"remuxkit/internal/logging"
	"remuxkit/internal/metrics"
	"remuxkit/internal/timebase"

	"github.com/disintegration/imaging"
)

// audioTranscoder decodes one input stream and re-encodes it through the
// sample FIFO.
type audioTranscoder struct {
	dec      av.Decoder
	enc      av.AudioEncoder
	reformat *fifo.Reformatter
	drainer  *encode.Drainer
	cursor   encode.Cursor
	rate     timebase.Rational
}

func newAudioTranscoder(dec av.Decoder, enc av.AudioEncoder, rs av.Resampler, outIndex int, sink encode.Sink) *audioTranscoder {
	return &audioTranscoder{
		dec:      dec,
		enc:      enc,
		reformat: fifo.NewReformatter(rs, enc),
		drainer:  encode.NewDrainer(enc, outIndex, sink),
		rate:     timebase.New(1, enc.Format().SampleRate),
	}
}

// feed decodes pkt and encodes every complete frame it yields. A nil pkt
// drains the decoder.
func (t *audioTranscoder) feed(pkt av.Packet) error {
	if err := t.dec.SendPacket(pkt); err != nil {
		return av.FrameworkError("send packet", 0, err)
	}
	for {
		frame, err := t.dec.ReceiveFrame()
		if errors.Is(err, av.ErrNeedMoreInput) || errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return av.FrameworkError("decode", 0, err)
		}
		af, ok := frame.(av.AudioFrame)
		if !ok {
			frame.Release()
			return av.FrameworkError("decode", 0, fmt.Errorf("decoder returned a non-audio frame"))
		}
		err = t.reformat.Push(af)
		af.Release()
		if err != nil {
			return err
		}
	}
	return t.drain()
}

// drain moves every ready chunk from the FIFO into the encoder.
func (t *audioTranscoder) drain() error {
	for t.reformat.Ready() {
		n := t.reformat.ChunkSize()
		frame, err := t.reformat.Pull(n)
		if err != nil {
			return err
		}
		if frame == nil {
			return nil
		}
		t.cursor.Stamp(frame, int64(n), t.rate, t.enc.TimeBase())
		_, err = t.drainer.Step(frame)
		frame.Release()
		if err != nil {
			return err
		}
	}
	return nil
}

// finish flushes the decoder, the FIFO and the encoder, in that order.
func (t *audioTranscoder) finish() error {
	if err := t.feed(nil); err != nil {
		return err
	}
	if err := t.reformat.Flush(); err != nil {
		return err
	}
	if err := t.drain(); err != nil {
		return err
	}
	if err := t.drainer.Flush(); err != nil {
		return err
	}
	metrics.EncoderFlushSteps.Observe(float64(t.drainer.FlushSteps()))
	logging.Debug("encoder %s flushed after %d steps, %d packets", t.enc.Codec(), t.drainer.FlushSteps(), t.drainer.Packets())
	return nil
}

func (t *audioTranscoder) close() {
	t.enc.Close()
	t.dec.Close()
}

// imageTranscoder turns a picture in a codec the container cannot hold
// into a JPEG.
type imageTranscoder struct {
	fw      av.Framework
	dec     av.Decoder
	quality int
	// buffered is set while the decoder holds a packet it has not turned
	// into a picture yet.
	buffered bool
}

// convert decodes pkt and returns the JPEG packet, or nil when the decoder
// needs more input.
func (t *imageTranscoder) convert(pkt av.Packet) (av.Packet, error) {
	if err := t.dec.SendPacket(pkt); err != nil {
		return nil, av.FrameworkError("send packet", 0, err)
	}
	return t.receive()
}

// flush drains a decoder that buffered its input and returns the picture
// it was holding, if any.
func (t *imageTranscoder) flush() (av.Packet, error) {
	if t == nil || !t.buffered {
		return nil, nil
	}
	if err := t.dec.SendPacket(nil); err != nil && !errors.Is(err, io.EOF) {
		return nil, av.FrameworkError("flush decoder", 0, err)
	}
	return t.receive()
}

func (t *imageTranscoder) receive() (av.Packet, error) {
	frame, err := t.dec.ReceiveFrame()
	if errors.Is(err, av.ErrNeedMoreInput) {
		t.buffered = true
		return nil, nil
	}
	if errors.Is(err, io.EOF) {
		t.buffered = false
		return nil, nil
	}
	if err != nil {
		return nil, av.FrameworkError("decode picture", 0, err)
	}
	t.buffered = false
	defer frame.Release()

	vf, ok := frame.(av.VideoFrame)
	if !ok {
		return nil, av.FrameworkError("decode picture", 0, fmt.Errorf("decoder returned a non-video frame"))
	}
	img, err := vf.Image()
	if err != nil {
		return nil, av.FrameworkError("convert picture", 0, err)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(t.quality)); err != nil {
		return nil, av.Resource("encode picture", err)
	}
	out, err := t.fw.NewPacket(buf.Bytes())
	if err != nil {
		return nil, av.Resource("allocate packet", err)
	}
	out.SetPTS(0)
	out.SetDTS(0)
	return out, nil
}
