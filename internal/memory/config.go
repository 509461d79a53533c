package memory

import (
	"fmt"
	"math"
	"os"
	"runtime/debug"
	"strconv"

	"remuxkit/internal/logging"
)

// DefaultMemoryRatio is the share of the container limit given to the Go
// heap. FFmpeg's frame and packet buffers live outside it.
const DefaultMemoryRatio = 0.6

// LimitResult describes how the Go memory limit was chosen.
type LimitResult struct {
	// Source is "GOMEMLIMIT", "MEMORY_LIMIT" or "none".
	Source         string
	ContainerLimit int64
	GoMemLimit     int64
	Ratio          float64
}

// resolveLimit computes the Go memory limit from the environment without
// applying it.
func resolveLimit(getenv func(string) string) (LimitResult, error) {
	if getenv("GOMEMLIMIT") != "" {
		return LimitResult{Source: "GOMEMLIMIT"}, nil
	}

	raw := getenv("MEMORY_LIMIT")
	if raw == "" {
		return LimitResult{Source: "none"}, nil
	}
	containerLimit, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || containerLimit <= 0 {
		return LimitResult{Source: "none"}, fmt.Errorf("invalid MEMORY_LIMIT %q", raw)
	}

	ratio := DefaultMemoryRatio
	if raw := getenv("MEMORY_RATIO"); raw != "" {
		r, err := strconv.ParseFloat(raw, 64)
		if err != nil || r <= 0 || r > 1 || math.IsNaN(r) {
			return LimitResult{Source: "none"}, fmt.Errorf("invalid MEMORY_RATIO %q, want 0 < ratio <= 1", raw)
		}
		ratio = r
	}

	return LimitResult{
		Source:         "MEMORY_LIMIT",
		ContainerLimit: containerLimit,
		GoMemLimit:     int64(float64(containerLimit) * ratio),
		Ratio:          ratio,
	}, nil
}

// ConfigureFromEnv sets the Go memory limit from MEMORY_LIMIT (bytes,
// usually from the Kubernetes Downward API) and MEMORY_RATIO. An explicit
// GOMEMLIMIT wins. Call it early in main.
func ConfigureFromEnv() LimitResult {
	result, err := resolveLimit(os.Getenv)
	if err != nil {
		logging.Warn("Memory limit not configured: %v", err)
		return result
	}

	switch result.Source {
	case "GOMEMLIMIT":
		if limit := debug.SetMemoryLimit(-1); limit < math.MaxInt64 {
			result.GoMemLimit = limit
		}
		logging.Info("GOMEMLIMIT set via environment: %s", formatBytes(result.GoMemLimit))
	case "MEMORY_LIMIT":
		debug.SetMemoryLimit(result.GoMemLimit)
		logging.Info("Configured GOMEMLIMIT: %s (%.0f%% of %s container limit)",
			formatBytes(result.GoMemLimit), result.Ratio*100, formatBytes(result.ContainerLimit))
	default:
		logging.Debug("MEMORY_LIMIT not set, GOMEMLIMIT left alone")
	}
	return result
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return strconv.FormatInt(b, 10) + " B"
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return strconv.FormatFloat(float64(b)/float64(div), 'f', 1, 64) + " " + string("KMGTPE"[exp]) + "iB"
}
