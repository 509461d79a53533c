package metrics

// Job kinds, as used in the kind label.
var JobKinds = []string{"m4a", "concat", "thumbnail", "image", "ugoira", "probe"}

// Job statuses, as used in the status label.
var JobStatuses = []string{"success", "error_policy", "error_framework", "error_resource", "canceled"}

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	for _, kind := range JobKinds {
		JobDuration.WithLabelValues(kind)
		for _, status := range JobStatuses {
			JobsTotal.WithLabelValues(kind, status)
		}
	}

	for _, d := range []string{"copy", "transcode"} {
		PacketsTotal.WithLabelValues(d)
	}

	for _, reason := range []string{"no_audio", "sample_rate", "output_exists", "bad_header", "other"} {
		PolicyRejections.WithLabelValues(reason)
	}

	for _, format := range []string{"jpeg", "webp", "png"} {
		for _, method := range []string{"copy", "encode"} {
			ImageOutputsTotal.WithLabelValues(format, method)
		}
	}
	for _, phase := range []string{"decode", "resize", "encode"} {
		ImagePhaseDuration.WithLabelValues(phase)
	}

	for _, op := range []string{"stat", "open", "rename"} {
		FilesystemStaleErrors.WithLabelValues(op)
		FilesystemRetryAttempts.WithLabelValues(op)
		FilesystemRetryFailures.WithLabelValues(op)
	}

	for _, status := range []string{"queued", "running", "succeeded", "failed"} {
		JobsByStatus.WithLabelValues(status)
	}
}
