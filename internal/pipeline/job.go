package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"remuxkit/internal/av"
	"remuxkit/internal/classify"
	"remuxkit/internal/filesystem"
	"remuxkit/internal/logging"
	"remuxkit/internal/metrics"
	"remuxkit/internal/timebase"
)

// State is the position of a job in its lifecycle.
type State int

const (
	StateInit State = iota
	StateHeaderWritten
	StateImageDrain
	StateMainLoop
	StateFlushing
	StateTrailerWritten
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateHeaderWritten:
		return "header-written"
	case StateImageDrain:
		return "image-drain"
	case StateMainLoop:
		return "main-loop"
	case StateFlushing:
		return "flushing"
	case StateTrailerWritten:
		return "trailer-written"
	default:
		return "closed"
	}
}

// Result summarizes a finished job.
type Result struct {
	Output      string        `json:"output"`
	Streams     int           `json:"streams"`
	Packets     int64         `json:"packets"`
	Corrections int64         `json:"corrections"`
	Elapsed     time.Duration `json:"elapsed"`
	// History lists the states the job went through.
	History []State `json:"-"`
}

// job carries the resources and bookkeeping of one run.
type job struct {
	name    string
	fw      av.Framework
	mux     av.Muxer
	state   State
	cleanup []func()
	guards  map[int]*timebase.Guard
	// attached marks output streams holding a cover picture; they carry a
	// single packet and are not monotonicity checked.
	attached map[int]bool
	// staging is the sibling file the muxer writes to when an existing
	// output is replaced. It is renamed over the output on success.
	staging string
	result  Result
	start   time.Time
}

func newJob(name string, fw av.Framework) *job {
	j := &job{
		name:     name,
		fw:       fw,
		guards:   make(map[int]*timebase.Guard),
		attached: make(map[int]bool),
		start:    time.Now(),
	}
	j.result.History = []State{StateInit}
	return j
}

func (j *job) setState(s State) {
	logging.Debug("%s: %s -> %s", j.name, j.state, s)
	j.state = s
	j.result.History = append(j.result.History, s)
}

// onExit registers a release function. They run in reverse order.
func (j *job) onExit(f func()) {
	j.cleanup = append(j.cleanup, f)
}

// close releases everything the job acquired, the output muxer last so a
// partial file is removed only after nothing writes to it anymore.
func (j *job) close() {
	for i := len(j.cleanup) - 1; i >= 0; i-- {
		j.cleanup[i]()
	}
	j.cleanup = nil
	if j.mux != nil {
		if err := j.mux.Close(); err != nil {
			logging.Warn("%s: closing output: %v", j.name, err)
		}
		j.mux = nil
	}
	j.setState(StateClosed)
	j.result.Elapsed = time.Since(j.start)
}

func (j *job) open(ctx context.Context, url string, opts av.InputOptions) (av.Demuxer, error) {
	d, err := j.fw.OpenInput(ctx, url, opts)
	if err != nil {
		return nil, err
	}
	j.onExit(func() {
		if err := d.Close(); err != nil {
			logging.Warn("%s: closing %s: %v", j.name, url, err)
		}
	})
	return d, nil
}

func (j *job) createOutput(path, format string, replace bool) error {
	target := path
	if replace {
		tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*"+filepath.Ext(path))
		if err != nil {
			return av.Resource("create output", err)
		}
		target = tmp.Name()
		tmp.Close()
	}
	m, err := j.fw.CreateOutput(target, format)
	if err != nil {
		if replace {
			os.Remove(target)
		}
		return err
	}
	j.mux = m
	j.result.Output = path
	if replace {
		j.staging = target
	}
	return nil
}

func (j *job) writeHeader(streams int) error {
	if err := j.mux.WriteHeader(); err != nil {
		return err
	}
	j.result.Streams = streams
	j.setState(StateHeaderWritten)
	return nil
}

func (j *job) writeTrailer() error {
	if err := j.mux.WriteTrailer(); err != nil {
		return err
	}
	j.setState(StateTrailerWritten)
	return nil
}

// write hands a packet in output time base to the muxer after the
// monotonicity check.
func (j *job) write(pkt av.Packet, d classify.Disposition) error {
	idx := pkt.StreamIndex()
	if !j.attached[idx] {
		g, ok := j.guards[idx]
		if !ok {
			g = &timebase.Guard{}
			j.guards[idx] = g
		}
		oldDTS := pkt.DTS()
		dts, pts, corrected := g.Correct(oldDTS, pkt.PTS())
		if g.Saturated() {
			return av.FrameworkError("write packet", 0, fmt.Errorf("stream %d: %w", idx, timebase.ErrSaturated))
		}
		if corrected {
			logging.Warn("%s: stream %d: non-monotonic dts %d, using %d", j.name, idx, oldDTS, dts)
			pkt.SetDTS(dts)
			pkt.SetPTS(pts)
			j.result.Corrections++
			metrics.TimestampCorrections.Inc()
		}
	}
	logging.Trace("%s: out stream=%d pts=%d dts=%d dur=%d", j.name, idx, pkt.PTS(), pkt.DTS(), pkt.Duration())
	if err := j.mux.WritePacket(pkt); err != nil {
		return fmt.Errorf("stream %d: %w", idx, err)
	}
	j.result.Packets++
	metrics.PacketsTotal.WithLabelValues(d.String()).Inc()
	return nil
}

// rebase converts packet timestamps from one time base to another and
// shifts them by offset, already expressed in the destination base.
func rebase(pkt av.Packet, from, to timebase.Rational, offset int64) {
	shift := func(v int64) int64 {
		return timebase.Add(timebase.Rescale(v, from, to), offset)
	}
	pkt.SetPTS(shift(pkt.PTS()))
	pkt.SetDTS(shift(pkt.DTS()))
	pkt.SetDuration(timebase.RescaleDelta(pkt.Duration(), from, to))
	pkt.SetPos(-1)
}

// copyPacket forwards an input packet to its output stream.
func (j *job) copyPacket(pkt av.Packet, route classify.Route, offset int64) error {
	out := route.OutputIndex
	logging.Trace("%s: in stream=%d pts=%d dts=%d dur=%d", j.name, pkt.StreamIndex(), pkt.PTS(), pkt.DTS(), pkt.Duration())
	rebase(pkt, route.Stream.TimeBase, j.mux.TimeBase(out), offset)
	pkt.SetStreamIndex(out)
	return j.write(pkt, classify.Copy)
}

// sinkFor returns an encode.Sink that rebases encoder packets into the
// output stream's time base before writing them.
func (j *job) sinkFor(encBase timebase.Rational) func(av.Packet) error {
	return func(pkt av.Packet) error {
		defer pkt.Release()
		rebase(pkt, encBase, j.mux.TimeBase(pkt.StreamIndex()), 0)
		return j.write(pkt, classify.Transcode)
	}
}

func checkContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("job abandoned: %w", err)
	}
	return nil
}

// finish closes the job, records its outcome and returns the result.
func (j *job) finish(kind string, err error) (*Result, error) {
	j.close()
	if err == nil && j.staging != "" {
		if rerr := filesystem.RenameWithRetry(j.staging, j.result.Output, filesystem.DefaultRetryConfig()); rerr != nil {
			os.Remove(j.staging)
			err = av.Resource("replace output", rerr)
		}
	}
	metrics.ObserveJob(kind, av.Status(err), j.start)
	if err != nil {
		countPolicy(err)
		logging.Debug("%s: failed in state %s: %v", j.name, j.result.History[len(j.result.History)-2], err)
		return nil, err
	}
	res := j.result
	logging.Info("%s: wrote %s (%d streams, %d packets, %d timestamp corrections) in %v",
		j.name, res.Output, res.Streams, res.Packets, res.Corrections, res.Elapsed.Round(time.Millisecond))
	return &res, nil
}
