package workers

import (
	"os"
	"runtime"
	"strconv"
)

// EnvOverride names the environment variable that fixes the worker count.
const EnvOverride = "JOB_WORKERS"

// Count returns the number of workers for multiplier workers per usable
// CPU, at least one and at most limit (0 for no limit). GOMAXPROCS is
// used rather than NumCPU so container CPU limits are respected.
//
// A positive JOB_WORKERS overrides the calculation, still capped by limit.
func Count(multiplier float64, limit int) int {
	if override := os.Getenv(EnvOverride); override != "" {
		if count, err := strconv.Atoi(override); err == nil && count > 0 {
			return capped(count, limit)
		}
	}

	workers := int(float64(runtime.GOMAXPROCS(0)) * multiplier)
	if workers < 1 {
		workers = 1
	}
	return capped(workers, limit)
}

func capped(n, limit int) int {
	if limit > 0 && n > limit {
		return limit
	}
	return n
}

// ForCPU returns worker count for CPU-bound tasks (1 per CPU), such as
// transcoding and picture encoding.
func ForCPU(limit int) int {
	return Count(1.0, limit)
}

// Resolve returns configured when it is positive, otherwise ForCPU(limit).
func Resolve(configured, limit int) int {
	if configured > 0 {
		return capped(configured, limit)
	}
	return ForCPU(limit)
}
