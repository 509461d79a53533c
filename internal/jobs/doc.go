// Package jobs keeps the remuxd job history in SQLite and runs submitted
// jobs on a bounded worker pool.
//
// A job moves from queued to running to succeeded or failed. Identical
// submissions, compared by a BLAKE2b fingerprint of the request, are
// folded into the job that is already queued or running. Jobs still
// running when the process stops are marked failed on the next start;
// queued jobs are picked up again.
package jobs
