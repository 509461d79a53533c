package metrics

import (
	"runtime"
	"time"

	"remuxkit/internal/logging"
)

// StatsProvider interface for collecting stats
type StatsProvider interface {
	GetStats() Stats
}

// Stats holds the job history counts
type Stats struct {
	Queued    int
	Running   int
	Succeeded int
	Failed    int
}

// Collector periodically collects and updates metrics
type Collector struct {
	statsProvider StatsProvider
	interval      time.Duration
	stopChan      chan struct{}
	lastNumGC     uint32
}

// NewCollector creates a new metrics collector
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		interval:      interval,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection
func (c *Collector) Stop() {
	close(c.stopChan)
}

func (c *Collector) collectLoop() {
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	GoMemAllocBytes.Set(float64(m.Alloc))
	if m.NumGC > c.lastNumGC {
		GoGCRuns.Add(float64(m.NumGC - c.lastNumGC))
		c.lastNumGC = m.NumGC
	}

	if c.statsProvider == nil {
		return
	}

	stats := c.statsProvider.GetStats()
	JobsByStatus.WithLabelValues("queued").Set(float64(stats.Queued))
	JobsByStatus.WithLabelValues("running").Set(float64(stats.Running))
	JobsByStatus.WithLabelValues("succeeded").Set(float64(stats.Succeeded))
	JobsByStatus.WithLabelValues("failed").Set(float64(stats.Failed))

	logging.Debug("Metrics collected: queued=%d, running=%d, succeeded=%d, failed=%d",
		stats.Queued, stats.Running, stats.Succeeded, stats.Failed)
}

// ObserveJob records the outcome of one job.
func ObserveJob(kind, status string, started time.Time) {
	JobsTotal.WithLabelValues(kind, status).Inc()
	JobDuration.WithLabelValues(kind).Observe(time.Since(started).Seconds())
}
