package encode

import (
	"errors"
	"fmt"
	"io"

	"remuxkit/internal/av"
)

// ErrFlushStalled is returned when an encoder keeps producing packets past
// MaxFlushSteps flush calls.
var ErrFlushStalled = errors.New("encoder flush did not terminate")

// MaxFlushSteps bounds Flush.
const MaxFlushSteps = 1 << 16

// Sink receives encoded packets, already tagged with the output stream.
type Sink func(av.Packet) error

// State is where a Drainer is in the send/receive cycle.
type State int

const (
	Feeding State = iota
	Draining
	Finished
)

func (s State) String() string {
	switch s {
	case Feeding:
		return "feeding"
	case Draining:
		return "draining"
	default:
		return "finished"
	}
}

// Drainer runs the send/receive cycle of one encoder.
type Drainer struct {
	encoder     av.Encoder
	outputIndex int
	sink        Sink
	state       State
	flushing    bool
	packets     int64
	flushSteps  int
}

// NewDrainer returns a Drainer writing packets of enc as outputIndex.
func NewDrainer(enc av.Encoder, outputIndex int, sink Sink) *Drainer {
	return &Drainer{encoder: enc, outputIndex: outputIndex, sink: sink}
}

// State returns the current state.
func (d *Drainer) State() State {
	return d.state
}

// Packets returns the number of packets forwarded so far.
func (d *Drainer) Packets() int64 {
	return d.packets
}

// FlushSteps returns how many Step(nil) calls Flush needed.
func (d *Drainer) FlushSteps() int {
	return d.flushSteps
}

// Step sends frame and drains every packet the encoder has ready. A nil
// frame starts flushing; further nil frames only drain. It reports whether
// at least one packet was produced.
func (d *Drainer) Step(frame av.Frame) (bool, error) {
	if d.state == Finished {
		return false, nil
	}

	if frame != nil || !d.flushing {
		if frame == nil {
			d.flushing = true
		}
		if err := d.encoder.SendFrame(frame); err != nil && !errors.Is(err, io.EOF) {
			return false, av.FrameworkError("send frame", 0, fmt.Errorf("%s: %w", d.encoder.Codec(), err))
		}
	}

	d.state = Draining
	produced := false
	for {
		pkt, err := d.encoder.ReceivePacket()
		if errors.Is(err, av.ErrNeedMoreInput) {
			d.state = Feeding
			return produced, nil
		}
		if errors.Is(err, io.EOF) {
			d.state = Finished
			return produced, nil
		}
		if err != nil {
			return produced, av.FrameworkError("receive packet", 0, fmt.Errorf("%s: %w", d.encoder.Codec(), err))
		}

		produced = true
		d.packets++
		pkt.SetStreamIndex(d.outputIndex)
		if err := d.sink(pkt); err != nil {
			return produced, err
		}
	}
}

// Flush signals end of stream and drains the encoder until a step
// produces nothing.
func (d *Drainer) Flush() error {
	for d.flushSteps = 0; d.flushSteps < MaxFlushSteps; d.flushSteps++ {
		produced, err := d.Step(nil)
		if err != nil {
			return err
		}
		if !produced {
			return nil
		}
	}
	return av.FrameworkError("flush", 0, ErrFlushStalled)
}
