/*
Package filesystem wraps the file operations remuxd performs on its work
and output directories with retries for NFS stale file handles.

When those directories live on NFS, a file replaced on another client can
make the next stat or open fail with ESTALE. The call usually succeeds
when repeated after a short pause:

	info, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig())

Only ESTALE is retried; every other error is returned at once. Retries
and final failures are counted in the remuxkit_filesystem_* metrics,
labeled by operation.
*/
package filesystem
