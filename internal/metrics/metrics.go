package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remuxkit_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "remuxkit_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "remuxkit_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remuxkit_db_queries_total",
			Help: "Total number of job history queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "remuxkit_db_query_duration_seconds",
			Help:    "Job history query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation"},
	)
)

// Job metrics
var (
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remuxkit_jobs_total",
			Help: "Total number of jobs by kind and final status",
		},
		[]string{"kind", "status"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "remuxkit_job_duration_seconds",
			Help:    "Job run time in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"kind"},
	)

	JobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "remuxkit_jobs_in_flight",
			Help: "Number of jobs currently running",
		},
	)

	JobsQueued = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "remuxkit_jobs_queued",
			Help: "Number of jobs waiting for a worker",
		},
	)

	JobsByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "remuxkit_job_history",
			Help: "Number of jobs in the history database by status",
		},
		[]string{"status"},
	)
)

// Pipeline metrics
var (
	PacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remuxkit_packets_total",
			Help: "Packets written to outputs by stream disposition",
		},
		[]string{"disposition"},
	)

	TimestampCorrections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "remuxkit_timestamp_corrections_total",
			Help: "Output DTS values rewritten to keep streams monotonic",
		},
	)

	EncoderFlushSteps = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "remuxkit_encoder_flush_steps",
			Help:    "Drain steps an encoder needed to flush",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128},
		},
	)

	PolicyRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remuxkit_policy_rejections_total",
			Help: "Jobs refused before any output was written",
		},
		[]string{"reason"},
	)
)

// Image metrics
var (
	ImageOutputsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remuxkit_image_outputs_total",
			Help: "Images written by format and method (copy or encode)",
		},
		[]string{"format", "method"},
	)

	ImagePhaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "remuxkit_image_phase_duration_seconds",
			Help:    "Time spent per image processing phase",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"phase"},
	)
)

// Filesystem metrics
var (
	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remuxkit_filesystem_stale_errors_total",
			Help: "NFS stale file handle errors by operation",
		},
		[]string{"operation"},
	)

	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remuxkit_filesystem_retry_attempts_total",
			Help: "Filesystem operations retried after a stale file handle",
		},
		[]string{"operation"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remuxkit_filesystem_retry_failures_total",
			Help: "Filesystem operations that still failed after all retries",
		},
		[]string{"operation"},
	)
)

// Memory metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "remuxkit_memory_usage_ratio",
			Help: "Go heap allocation as a fraction of the memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "remuxkit_memory_paused",
			Help: "1 while new jobs are held back for memory pressure",
		},
	)

	MemoryGCPauses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "remuxkit_memory_gc_pauses_total",
			Help: "Times job admission was paused for memory pressure",
		},
	)
)

// Runtime metrics
var (
	GoMemAllocBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "remuxkit_go_memalloc_bytes",
			Help: "Current Go heap allocation in bytes",
		},
	)

	GoGCRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "remuxkit_go_gc_runs_total",
			Help: "Total number of completed GC cycles",
		},
	)
)

// AppInfo exposes build information
var AppInfo = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "remuxkit_app_info",
		Help: "Application build information",
	},
	[]string{"version", "commit", "go_version", "ffmpeg"},
)
