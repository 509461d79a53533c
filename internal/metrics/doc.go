// Package metrics provides Prometheus instrumentation for remuxkit.
//
// All metrics are prefixed with "remuxkit_" and registered on the default
// registry with promauto.
//
// # Metric Categories
//
// ## HTTP Metrics
//
// Track remuxd API requests:
//   - HTTPRequestsTotal: Counter of total requests by method, path, and status
//   - HTTPRequestDuration: Histogram of request duration by method and path
//   - HTTPRequestsInFlight: Gauge of currently processing requests
//
// ## Database Metrics
//
//   - DBQueryTotal: Counter of job history queries by operation and status
//   - DBQueryDuration: Histogram of query duration by operation
//
// ## Job Metrics
//
//   - JobsTotal: Counter by kind (m4a, concat, thumbnail, image, ugoira, probe) and status
//   - JobDuration: Histogram of job run time by kind
//   - JobsInFlight / JobsQueued: Gauges of the worker pool
//   - JobsByStatus: Gauge of the history database, refreshed by [Collector]
//
// ## Pipeline Metrics
//
//   - PacketsTotal: Packets written by disposition (copy, transcode)
//   - TimestampCorrections: DTS values bumped to keep output monotonic
//   - EncoderFlushSteps: Histogram of drain steps per encoder flush
//   - PolicyRejections: Jobs refused before writing output, by reason
//
// ## Image Metrics
//
//   - ImageOutputsTotal: Thumbnails and compressed images by format and method
//   - ImagePhaseDuration: Decode, resize and encode timings
//
// # Usage
//
// remuxd serves the registry on its metrics port:
//
//	mux.Handle("/metrics", promhttp.Handler())
//
// Command-line tools exit too quickly to be scraped. When METRICS_TEXTFILE
// is set they call [WriteTextfile] before exiting so node_exporter's
// textfile collector can pick the values up.
//
// # Prometheus Queries
//
// Job failure rate by kind:
//
//	sum(rate(remuxkit_jobs_total{status!="success"}[5m])) by (kind) /
//	sum(rate(remuxkit_jobs_total[5m])) by (kind)
//
// Inputs with broken timestamps:
//
//	rate(remuxkit_timestamp_corrections_total[1h])
package metrics
