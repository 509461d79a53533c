/*
Package workers sizes the remuxd job pool.

Transcoding is CPU-bound, so the default is one job per usable CPU. In a
container, runtime.NumCPU reports the host's CPUs while GOMAXPROCS follows
the cgroup CPU limit (Go 1.19+), so the count is derived from GOMAXPROCS:

	n := workers.ForCPU(8) // one per CPU, at most 8

Operators can pin the count with the JOB_WORKERS environment variable:

	env:
	- name: JOB_WORKERS
	  value: "2"

All functions are safe for concurrent use.
*/
package workers
