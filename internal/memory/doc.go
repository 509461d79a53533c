// Package memory keeps remuxd inside its container memory limit.
//
// Go does not derive GOMEMLIMIT from the cgroup the way it derives
// GOMAXPROCS, so [ConfigureFromEnv] sets it from MEMORY_LIMIT:
//
//	env:
//	- name: MEMORY_LIMIT
//	  valueFrom:
//	    resourceFieldRef:
//	      resource: limits.memory
//	- name: MEMORY_RATIO
//	  value: "0.5"
//
// The default ratio of 0.6 leaves the rest of the container for FFmpeg,
// whose codec buffers are allocated in C. An explicit GOMEMLIMIT takes
// precedence over both variables.
//
// A [Monitor] samples the Go heap and pauses job admission above the
// critical watermark (85% of the limit by default) until usage falls back
// under the high watermark (70%). The job runner calls [Monitor.Wait]
// before it starts each job; running jobs are left alone.
package memory
