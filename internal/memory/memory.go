package memory

import (
	"context"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"remuxkit/internal/logging"
	"remuxkit/internal/metrics"
)

// Config holds the job admission thresholds
type Config struct {
	// Limit is the heap size the watermarks refer to; 0 uses GOMEMLIMIT.
	Limit int64

	// HighWaterMark is the usage below which paused admission resumes (0.0-1.0)
	HighWaterMark float64

	// CriticalWaterMark is the usage at which new jobs are held back (0.0-1.0)
	CriticalWaterMark float64

	CheckInterval time.Duration
}

// DefaultConfig returns the thresholds remuxd runs with
func DefaultConfig() Config {
	return Config{
		HighWaterMark:     0.7,
		CriticalWaterMark: 0.85,
		CheckInterval:     5 * time.Second,
	}
}

// Monitor samples heap usage and holds back new jobs while it is above the
// critical watermark. Jobs already running are never interrupted.
type Monitor struct {
	config Config
	limit  int64

	mu      sync.RWMutex
	current uint64
	paused  bool
	resume  chan struct{}

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMonitor creates a monitor. Without a limit it never pauses.
func NewMonitor(config Config) *Monitor {
	limit := config.Limit
	if limit == 0 {
		if goLimit := debug.SetMemoryLimit(-1); goLimit > 0 && goLimit < 1<<62 {
			limit = goLimit
		}
	}
	if limit == 0 {
		logging.Debug("Memory monitor: no memory limit, job admission is not throttled")
	}
	return &Monitor{
		config: config,
		limit:  limit,
		resume: make(chan struct{}),
		stop:   make(chan struct{}),
	}
}

// Start samples memory every CheckInterval until Stop.
func (m *Monitor) Start() {
	if m.limit == 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(m.config.CheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				var stats runtime.MemStats
				runtime.ReadMemStats(&stats)
				m.observe(stats.Alloc)
			case <-m.stop:
				return
			}
		}
	}()
}

// Stop ends sampling and releases every waiter. It may be called more
// than once.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// observe updates the pause state for a heap size of alloc bytes.
func (m *Monitor) observe(alloc uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = alloc
	if m.limit == 0 {
		return
	}
	usage := float64(alloc) / float64(m.limit)
	metrics.MemoryUsageRatio.Set(usage)

	switch {
	case usage >= m.config.CriticalWaterMark && !m.paused:
		logging.Warn("Memory critical (%.1f%% of limit), holding back new jobs", usage*100)
		m.paused = true
		metrics.MemoryPaused.Set(1)
		metrics.MemoryGCPauses.Inc()
		go runtime.GC()
	case usage < m.config.HighWaterMark && m.paused:
		logging.Info("Memory recovered (%.1f%% of limit), admitting jobs", usage*100)
		m.paused = false
		metrics.MemoryPaused.Set(0)
		close(m.resume)
		m.resume = make(chan struct{})
	}
}

// Wait blocks while admission is paused. It returns ctx's error if ctx
// ends first, and nil once jobs may start or the monitor is stopped.
func (m *Monitor) Wait(ctx context.Context) error {
	m.mu.RLock()
	if !m.paused {
		m.mu.RUnlock()
		return nil
	}
	resume := m.resume
	m.mu.RUnlock()

	logging.Debug("Waiting for memory before starting a job")
	select {
	case <-resume:
		return nil
	case <-m.stop:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Paused reports whether new jobs are held back
func (m *Monitor) Paused() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paused
}

// Usage returns the last sampled heap size as a fraction of the limit, or
// 0 without a limit.
func (m *Monitor) Usage() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.limit == 0 {
		return 0
	}
	return float64(m.current) / float64(m.limit)
}
