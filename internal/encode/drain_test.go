package encode

import (
	"errors"
	"math"
	"testing"

	"remuxkit/internal/av"
	"remuxkit/internal/av/avtest"
	"remuxkit/internal/timebase"
)

var mono = av.AudioFormat{SampleRate: 48000, Channels: 1, Sample: avtest.S16}

func collect(packets *[]av.Packet) Sink {
	return func(p av.Packet) error {
		*packets = append(*packets, p)
		return nil
	}
}

// ===== Drainer =====

func TestDrainerStep(t *testing.T) {
	enc := &avtest.Encoder{Name: "aac", Size: 1024, Audio: mono}
	var packets []av.Packet
	d := NewDrainer(enc, 3, collect(&packets))

	produced, err := d.Step(avtest.NewAudioFrame(mono, 1024, nil))
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	if !produced || len(packets) != 1 {
		t.Fatalf("Expected one packet, got %d (produced=%v)", len(packets), produced)
	}
	if packets[0].StreamIndex() != 3 {
		t.Errorf("Expected packet tagged with stream 3, got %d", packets[0].StreamIndex())
	}
	if d.State() != Feeding {
		t.Errorf("Expected feeding state, got %s", d.State())
	}
}

func TestDrainerDelayedOutput(t *testing.T) {
	enc := &avtest.Encoder{Name: "aac", Size: 1024, Audio: mono, Delay: 2}
	var packets []av.Packet
	d := NewDrainer(enc, 0, collect(&packets))

	for i := 0; i < 2; i++ {
		produced, err := d.Step(avtest.NewAudioFrame(mono, 1024, nil))
		if err != nil {
			t.Fatalf("Step failed: %v", err)
		}
		if produced {
			t.Errorf("Step %d: expected no output while the encoder buffers", i)
		}
	}
	produced, _ := d.Step(avtest.NewAudioFrame(mono, 1024, nil))
	if !produced {
		t.Error("Expected output once the encoder delay is filled")
	}

	if err := d.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if len(packets) != 3 {
		t.Errorf("Expected 3 packets after flush, got %d", len(packets))
	}
	if d.State() != Finished {
		t.Errorf("Expected finished state, got %s", d.State())
	}
	if d.Packets() != 3 {
		t.Errorf("Expected packet count 3, got %d", d.Packets())
	}
}

func TestDrainerFlushEmpty(t *testing.T) {
	enc := &avtest.Encoder{Name: "aac", Audio: mono}
	d := NewDrainer(enc, 0, func(av.Packet) error { return nil })
	if err := d.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if enc.Flushes != 1 {
		t.Errorf("Expected a single flush signal, got %d", enc.Flushes)
	}

	produced, err := d.Step(nil)
	if produced || err != nil {
		t.Errorf("Expected repeated flush to be a no-op, got (%v, %v)", produced, err)
	}
}

func TestDrainerSendError(t *testing.T) {
	enc := &avtest.Encoder{Name: "aac", Audio: mono, FailSend: errors.New("invalid argument")}
	d := NewDrainer(enc, 0, func(av.Packet) error { return nil })
	_, err := d.Step(avtest.NewAudioFrame(mono, 10, nil))
	if err == nil {
		t.Fatal("Expected error from failing encoder")
	}
	if av.KindOf(err) != av.KindFramework {
		t.Errorf("Expected framework error, got %s", av.KindOf(err))
	}
}

func TestDrainerSinkError(t *testing.T) {
	enc := &avtest.Encoder{Name: "aac", Audio: mono}
	sinkErr := errors.New("disk full")
	d := NewDrainer(enc, 0, func(av.Packet) error { return sinkErr })
	_, err := d.Step(avtest.NewAudioFrame(mono, 10, nil))
	if !errors.Is(err, sinkErr) {
		t.Errorf("Expected sink error, got %v", err)
	}
}

// endless never stops producing packets.
type endless struct{ avtest.Encoder }

func (e *endless) SendFrame(av.Frame) error { return nil }

func (e *endless) ReceivePacket() (av.Packet, error) {
	e.Flushes++
	if e.Flushes%2 == 0 {
		return nil, av.ErrNeedMoreInput
	}
	return avtest.NewPacket(0, 0, 1), nil
}

func TestDrainerFlushBounded(t *testing.T) {
	d := NewDrainer(&endless{}, 0, func(av.Packet) error { return nil })
	err := d.Flush()
	if !errors.Is(err, ErrFlushStalled) {
		t.Errorf("Expected ErrFlushStalled, got %v", err)
	}
}

func TestDrainerStepAfterFinish(t *testing.T) {
	enc := &avtest.Encoder{Name: "aac", Audio: mono}
	d := NewDrainer(enc, 0, func(av.Packet) error { return nil })
	if err := d.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	produced, err := d.Step(avtest.NewAudioFrame(mono, 1, nil))
	if produced || err != nil {
		t.Errorf("Expected late frame to be ignored, got (%v, %v)", produced, err)
	}
	if len(enc.Frames) != 0 {
		t.Errorf("Expected encoder to see no frames, got %d", len(enc.Frames))
	}
}

// ===== Cursor =====

func TestCursorStamp(t *testing.T) {
	var c Cursor
	rate := timebase.New(1, 48000)
	frames := make([]*avtest.AudioFrame, 3)
	for i := range frames {
		frames[i] = avtest.NewAudioFrame(mono, 1024, nil)
		c.Stamp(frames[i], 1024, rate, rate)
	}
	for i, f := range frames {
		if f.Pts != int64(i*1024) {
			t.Errorf("Frame %d: expected pts %d, got %d", i, i*1024, f.Pts)
		}
	}
	if c.Value() != 3072 {
		t.Errorf("Expected cursor at 3072, got %d", c.Value())
	}

	c.Reset()
	if c.Value() != 0 {
		t.Errorf("Expected cursor reset to 0, got %d", c.Value())
	}
}

func TestCursorRescales(t *testing.T) {
	var c Cursor
	c.Advance(1, timebase.New(1, 25), timebase.AVTimeBase)
	if c.Value() != 40000 {
		t.Errorf("Expected 40000us per frame at 25fps, got %d", c.Value())
	}
}

func TestCursorSaturates(t *testing.T) {
	var c Cursor
	c.Advance(math.MaxInt64/2, timebase.New(1, 1), timebase.New(1, 90000))
	c.Advance(1024, timebase.New(1, 44100), timebase.New(1, 90000))
	if c.Value() != math.MaxInt64-1 {
		t.Errorf("Expected cursor to hold at %d, got %d", int64(math.MaxInt64-1), c.Value())
	}
}
