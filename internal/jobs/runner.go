package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"remuxkit/internal/av"
	"remuxkit/internal/filesystem"
	"remuxkit/internal/httpheader"
	"remuxkit/internal/logging"
	"remuxkit/internal/metrics"
	"remuxkit/internal/pipeline"
	"remuxkit/internal/probe"
	"remuxkit/internal/thumbnail"
	"remuxkit/internal/ugoira"
)

// DefaultMaxLength is the longest image side when a compress request
// gives none.
const DefaultMaxLength = 2560

var (
	// ErrQueueFull is returned when no more jobs can be queued.
	ErrQueueFull = errors.New("job queue is full")
	// ErrNotRunning is returned by Submit before Start or after Stop.
	ErrNotRunning = errors.New("job runner is not running")
)

// Gate decides when a worker may start its next job.
type Gate interface {
	Wait(ctx context.Context) error
}

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	// WorkDir holds local inputs.
	WorkDir string
	// OutputDir receives job outputs.
	OutputDir         string
	Workers           int
	QueueSize         int
	Timeout           time.Duration
	DefaultSampleRate int
	// Gate, when set, is waited on before each job starts.
	Gate Gate
}

// Output is the result of a job that writes a file.
type Output struct {
	Output string `json:"output"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	Detail any    `json:"detail,omitempty"`
}

// Runner executes queued jobs on a bounded pool of workers. Each job runs
// on its own goroutine with its own framework objects.
type Runner struct {
	store *Store
	fw    av.Framework
	cfg   RunnerConfig

	queue  chan int64
	group  *errgroup.Group
	cancel context.CancelFunc

	mu      sync.Mutex
	started bool
	running map[int64]context.CancelFunc
}

// NewRunner returns a Runner; call Start before submitting jobs.
func NewRunner(store *Store, fw av.Framework, cfg RunnerConfig) *Runner {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 256
	}
	return &Runner{
		store:   store,
		fw:      fw,
		cfg:     cfg,
		queue:   make(chan int64, cfg.QueueSize),
		running: make(map[int64]context.CancelFunc),
	}
}

// Start launches the workers and requeues jobs left over from a previous
// run.
func (r *Runner) Start(ctx context.Context) error {
	pending, err := r.store.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recover jobs: %w", err)
	}

	ctx, r.cancel = context.WithCancel(ctx)
	r.group, ctx = errgroup.WithContext(ctx)
	for i := 0; i < r.cfg.Workers; i++ {
		r.group.Go(func() error {
			r.work(ctx)
			return nil
		})
	}

	r.mu.Lock()
	r.started = true
	r.mu.Unlock()

	for _, id := range pending {
		if err := r.enqueue(id); err != nil {
			logging.Warn("Job %d not requeued: %v", id, err)
		}
	}
	if len(pending) > 0 {
		logging.Info("Requeued %d pending jobs", len(pending))
	}
	return nil
}

// Stop cancels running jobs and waits for the workers to exit. Queued jobs
// stay queued in the store.
func (r *Runner) Stop() error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return nil
	}
	r.started = false
	r.mu.Unlock()

	r.cancel()
	return r.group.Wait()
}

// Submit validates and stores req and queues it. When an identical job is
// already queued or running, that job is returned with existing set.
func (r *Runner) Submit(ctx context.Context, req Request) (job *Job, existing bool, err error) {
	if err := req.Validate(); err != nil {
		return nil, false, err
	}
	r.mu.Lock()
	started := r.started
	r.mu.Unlock()
	if !started {
		return nil, false, ErrNotRunning
	}

	fp, err := req.Fingerprint()
	if err != nil {
		return nil, false, err
	}
	if job, err := r.store.FindActive(ctx, fp); err != nil || job != nil {
		return job, job != nil, err
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, false, err
	}
	job, err = r.store.Create(ctx, req.Kind, fp, data)
	if err != nil {
		return nil, false, err
	}
	if err := r.enqueue(job.ID); err != nil {
		if ferr := r.store.Finish(context.WithoutCancel(ctx), job.ID, nil, "error_resource", err); ferr != nil {
			logging.Error("Failed to record rejected job %d: %v", job.ID, ferr)
		}
		return nil, false, err
	}
	logging.Info("Queued job %d (%s)", job.ID, job.Kind)
	return job, false, nil
}

// Cancel stops a running job. It reports whether the job was running.
func (r *Runner) Cancel(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cancel, ok := r.running[id]
	if ok {
		cancel()
	}
	return ok
}

// Running returns the number of jobs currently executing.
func (r *Runner) Running() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.running)
}

func (r *Runner) enqueue(id int64) error {
	select {
	case r.queue <- id:
		metrics.JobsQueued.Inc()
		return nil
	default:
		return ErrQueueFull
	}
}

func (r *Runner) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-r.queue:
			metrics.JobsQueued.Dec()
			if r.cfg.Gate != nil {
				if err := r.cfg.Gate.Wait(ctx); err != nil {
					// Still queued in the store; Start requeues it.
					return
				}
			}
			r.run(ctx, id)
		}
	}
}

func (r *Runner) run(ctx context.Context, id int64) {
	job, err := r.store.Get(ctx, id)
	if err != nil {
		logging.Error("Job %d: %v", id, err)
		return
	}
	var req Request
	if err := json.Unmarshal(job.Request, &req); err != nil {
		r.finish(ctx, id, nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
		return
	}
	if err := r.store.MarkRunning(ctx, id); err != nil {
		logging.Error("Job %d: %v", id, err)
		return
	}

	var jobCtx context.Context
	var cancel context.CancelFunc
	if r.cfg.Timeout > 0 {
		jobCtx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
	} else {
		jobCtx, cancel = context.WithCancel(ctx)
	}
	r.mu.Lock()
	r.running[id] = cancel
	r.mu.Unlock()
	metrics.JobsInFlight.Inc()

	logging.Info("Job %d (%s) started", id, req.Kind)
	start := time.Now()
	result, err := r.execute(jobCtx, id, &req)

	metrics.JobsInFlight.Dec()
	r.mu.Lock()
	delete(r.running, id)
	r.mu.Unlock()
	cancel()

	if err != nil {
		logging.Warn("Job %d (%s) failed after %v: %v", id, req.Kind, time.Since(start).Round(time.Millisecond), err)
	} else {
		logging.Info("Job %d (%s) finished in %v", id, req.Kind, time.Since(start).Round(time.Millisecond))
	}
	r.finish(ctx, id, result, err)
}

func (r *Runner) finish(ctx context.Context, id int64, result any, err error) {
	if err := r.store.Finish(context.WithoutCancel(ctx), id, result, av.Status(err), err); err != nil {
		logging.Error("Failed to record outcome of job %d: %v", id, err)
	}
}

func (r *Runner) input(path string) string {
	if IsURL(path) {
		return path
	}
	return filepath.Join(r.cfg.WorkDir, path)
}

// checkInputs stats every local input so a missing upload fails as a
// resource error before any framework call.
func (r *Runner) checkInputs(req *Request) error {
	paths := append([]string{req.Input, req.Cover}, req.Inputs...)
	for _, p := range paths {
		if p == "" || IsURL(p) {
			continue
		}
		if _, err := filesystem.StatWithRetry(r.input(p), filesystem.DefaultRetryConfig()); err != nil {
			return av.Resource("open input", err)
		}
	}
	return nil
}

func (r *Runner) output(id int64, req *Request) (string, string) {
	name := req.Output
	if name == "" {
		name = req.DefaultOutput(id)
	}
	return name, filepath.Join(r.cfg.OutputDir, name)
}

func (r *Runner) execute(ctx context.Context, id int64, req *Request) (any, error) {
	headers, err := httpheader.ParseAll(req.Headers)
	if err != nil {
		return nil, av.Policy("headers", err)
	}
	if err := r.checkInputs(req); err != nil {
		return nil, err
	}
	overwrite := pipeline.OverwriteNo
	if req.Overwrite {
		overwrite = pipeline.OverwriteYes
	}
	name, dest := r.output(id, req)

	switch req.Kind {
	case KindProbe:
		return probe.Probe(ctx, r.fw, r.input(req.Input), headers)

	case KindM4A:
		opts := pipeline.M4AOptions{
			Output:            dest,
			Headers:           httpheader.Generate(headers),
			InputFormat:       req.Format,
			Metadata:          req.Metadata,
			SampleRate:        req.SampleRate,
			DefaultSampleRate: r.cfg.DefaultSampleRate,
			Bitrate:           req.Bitrate,
			Overwrite:         overwrite,
		}
		if req.Cover != "" {
			opts.Cover = r.input(req.Cover)
		}
		res, err := pipeline.EncodeM4A(ctx, r.fw, r.input(req.Input), opts)
		if err != nil {
			return nil, err
		}
		return Output{Output: name, Detail: res}, nil

	case KindConcat:
		inputs := make([]string, len(req.Inputs))
		for i, in := range req.Inputs {
			inputs[i] = r.input(in)
		}
		opts := pipeline.ConcatOptions{
			Format:    req.Format,
			Headers:   httpheader.Generate(headers),
			Overwrite: overwrite,
		}
		res, err := pipeline.Concat(ctx, r.fw, dest, inputs, opts)
		if err != nil {
			return nil, err
		}
		return Output{Output: name, Detail: res}, nil

	case KindThumbnail, KindImage:
		format := thumbnail.JPEG
		if req.Format != "" {
			if format, err = thumbnail.ParseFormat(req.Format); err != nil {
				return nil, err
			}
		}
		var size thumbnail.Size
		if req.Kind == KindThumbnail {
			size, err = thumbnail.Thumbnail(ctx, r.fw, r.input(req.Input), dest, format)
		} else {
			maxLen := req.MaxLength
			if maxLen == 0 {
				maxLen = DefaultMaxLength
			}
			size, err = thumbnail.Compress(ctx, r.fw, r.input(req.Input), dest, format, maxLen, req.ForceYUV420P)
		}
		if err != nil {
			return nil, err
		}
		return Output{Output: name, Width: size.Width, Height: size.Height}, nil

	case KindUgoira:
		frames := make([]ugoira.Frame, len(req.Frames))
		for i, f := range req.Frames {
			if frames[i], err = ugoira.NewFrame(f.File, time.Duration(f.Delay)*time.Millisecond); err != nil {
				return nil, av.Policy("ugoira", err)
			}
		}
		opts := ugoira.DefaultOptions()
		if req.MaxFPS > 0 {
			opts.MaxFPS = req.MaxFPS
		}
		if req.CRF != nil {
			opts.CRF = *req.CRF
		}
		if req.Preset != "" {
			opts.Preset = req.Preset
		}
		opts.Level = req.Level
		opts.Profile = req.Profile
		opts.ForceYUV420P = req.ForceYUV420P
		res, err := ugoira.Convert(ctx, r.fw, r.input(req.Input), dest, frames, opts)
		if err != nil {
			return nil, err
		}
		return Output{Output: name, Width: res.Width, Height: res.Height, Detail: res}, nil
	}
	return nil, av.Policy("job", fmt.Errorf("%w: unknown kind %q", ErrInvalidRequest, req.Kind))
}
