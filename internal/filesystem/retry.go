package filesystem

import (
	"errors"
	"os"
	"syscall"
	"time"

	"remuxkit/internal/logging"
	"remuxkit/internal/metrics"
)

// RetryConfig configures retry behavior for filesystem operations
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig returns the defaults used for work and output volumes
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
	}
}

// IsStale reports whether err is an NFS stale file handle error (ESTALE).
func IsStale(err error) bool {
	var errno syscall.Errno
	return errors.As(err, &errno) && errno == syscall.ESTALE
}

// Retry runs fn until it succeeds, fails with anything but ESTALE, or
// MaxRetries retries have been spent. Backoff doubles up to MaxBackoff.
func Retry(op, path string, config RetryConfig, fn func() error) error {
	backoff := config.InitialBackoff
	var err error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		err = fn()
		if err == nil {
			if attempt > 0 {
				logging.Info("%s succeeded on retry %d for %s", op, attempt, path)
			}
			return nil
		}
		if !IsStale(err) {
			return err
		}

		metrics.FilesystemStaleErrors.WithLabelValues(op).Inc()
		if attempt < config.MaxRetries {
			metrics.FilesystemRetryAttempts.WithLabelValues(op).Inc()
			logging.Debug("%s stale file handle for %s, retrying in %v (attempt %d/%d)",
				op, path, backoff, attempt+1, config.MaxRetries)
			time.Sleep(backoff)

			backoff *= 2
			if backoff > config.MaxBackoff {
				backoff = config.MaxBackoff
			}
		}
	}

	logging.Warn("%s failed after %d retries for %s: %v", op, config.MaxRetries, path, err)
	metrics.FilesystemRetryFailures.WithLabelValues(op).Inc()
	return err
}

// StatWithRetry performs os.Stat, retrying stale file handles
func StatWithRetry(path string, config RetryConfig) (os.FileInfo, error) {
	var info os.FileInfo
	err := Retry("stat", path, config, func() error {
		var err error
		info, err = os.Stat(path)
		return err
	})
	return info, err
}

// OpenWithRetry performs os.Open, retrying stale file handles
func OpenWithRetry(path string, config RetryConfig) (*os.File, error) {
	var f *os.File
	err := Retry("open", path, config, func() error {
		var err error
		f, err = os.Open(path)
		return err
	})
	return f, err
}

// RenameWithRetry performs os.Rename, retrying stale file handles
func RenameWithRetry(from, to string, config RetryConfig) error {
	return Retry("rename", to, config, func() error {
		return os.Rename(from, to)
	})
}
