package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gorilla/mux"

	"remuxkit/internal/filesystem"
	"remuxkit/internal/jobs"
	"remuxkit/internal/logging"
)

const maxRequestBytes = 1 << 20

func jobID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}

// SubmitJob queues a job.
// POST /api/jobs
//
// Answers 202 with the new job, or 200 with an identical job that is
// already queued or running.
func (h *Handlers) SubmitJob(w http.ResponseWriter, r *http.Request) {
	var req jobs.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSONError(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	job, existing, err := h.runner.Submit(r.Context(), req)
	switch {
	case errors.Is(err, jobs.ErrInvalidRequest):
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, jobs.ErrQueueFull), errors.Is(err, jobs.ErrNotRunning):
		writeJSONError(w, err.Error(), http.StatusServiceUnavailable)
		return
	case err != nil:
		logging.Error("Failed to submit job: %v", err)
		writeJSONError(w, "Failed to submit job", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/jobs/%d", job.ID))
	status := http.StatusAccepted
	if existing {
		status = http.StatusOK
	}
	writeJSONStatus(w, status, job)
}

// ListJobs returns recent jobs, newest first.
// GET /api/jobs?status=failed&limit=50
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := jobs.Status(q.Get("status"))
	switch status {
	case "", jobs.StatusQueued, jobs.StatusRunning, jobs.StatusSucceeded, jobs.StatusFailed:
	default:
		writeJSONError(w, "Unknown status "+string(status), http.StatusBadRequest)
		return
	}

	limit := 100
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 1000 {
			writeJSONError(w, "limit must be between 1 and 1000", http.StatusBadRequest)
			return
		}
		limit = n
	}

	list, err := h.store.List(r.Context(), status, limit)
	if err != nil {
		logging.Error("Failed to list jobs: %v", err)
		writeJSONError(w, "Failed to list jobs", http.StatusInternalServerError)
		return
	}
	writeJSONStatus(w, http.StatusOK, list)
}

// GetJob returns one job.
// GET /api/jobs/{id}
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSONStatus(w, http.StatusOK, job)
}

// CancelJob stops a running job.
// DELETE /api/jobs/{id}
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if !h.runner.Cancel(job.ID) {
		writeJSONError(w, fmt.Sprintf("Job %d is %s, not running", job.ID, job.Status), http.StatusConflict)
		return
	}
	logging.Info("Job %d canceled by request", job.ID)
	writeJSONStatus(w, http.StatusAccepted, map[string]interface{}{
		"id":       job.ID,
		"canceled": true,
	})
}

// GetJobOutput downloads the file a succeeded job wrote.
// GET /api/jobs/{id}/output
func (h *Handlers) GetJobOutput(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if job.Status != jobs.StatusSucceeded {
		writeJSONError(w, fmt.Sprintf("Job %d is %s", job.ID, job.Status), http.StatusConflict)
		return
	}
	var out jobs.Output
	if err := json.Unmarshal(job.Result, &out); err != nil || out.Output == "" {
		writeJSONError(w, "Job has no output file", http.StatusNotFound)
		return
	}
	if !filepath.IsLocal(out.Output) {
		writeJSONError(w, "Invalid output path", http.StatusInternalServerError)
		return
	}

	f, err := filesystem.OpenWithRetry(filepath.Join(h.outputDir, out.Output), filesystem.DefaultRetryConfig())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeJSONError(w, "Output file no longer exists", http.StatusGone)
			return
		}
		logging.Error("Failed to open output of job %d: %v", job.ID, err)
		writeJSONError(w, "Failed to open output", http.StatusInternalServerError)
		return
	}
	defer func() {
		if err := f.Close(); err != nil {
			logging.Warn("Failed to close %s: %v", f.Name(), err)
		}
	}()
	info, err := f.Stat()
	if err != nil {
		writeJSONError(w, "Failed to open output", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(out.Output)))
	http.ServeContent(w, r, out.Output, info.ModTime(), f)
}

// UploadInput stores the request body as a file in the work directory,
// where jobs can name it as an input.
// PUT /api/uploads/{name}
func (h *Handlers) UploadInput(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if !filepath.IsLocal(name) || name != filepath.Base(name) {
		writeJSONError(w, "Invalid file name", http.StatusBadRequest)
		return
	}

	tmp, err := os.CreateTemp(h.workDir, ".upload-*")
	if err != nil {
		logging.Error("Failed to create upload file: %v", err)
		writeJSONError(w, "Failed to store upload", http.StatusInternalServerError)
		return
	}
	defer func() {
		// No-op once renamed.
		_ = os.Remove(tmp.Name())
	}()

	n, err := io.Copy(tmp, http.MaxBytesReader(w, r.Body, h.maxUploadBytes))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		writeJSONError(w, fmt.Sprintf("Upload exceeds %d bytes", tooLarge.Limit), http.StatusRequestEntityTooLarge)
		return
	case err != nil:
		logging.Warn("Upload of %s failed: %v", name, err)
		writeJSONError(w, "Failed to store upload", http.StatusInternalServerError)
		return
	}

	if err := filesystem.RenameWithRetry(tmp.Name(), filepath.Join(h.workDir, name), filesystem.DefaultRetryConfig()); err != nil {
		logging.Error("Failed to store upload %s: %v", name, err)
		writeJSONError(w, "Failed to store upload", http.StatusInternalServerError)
		return
	}
	logging.Info("Stored upload %s (%d bytes)", name, n)
	writeJSONStatus(w, http.StatusCreated, map[string]interface{}{
		"input": name,
		"size":  n,
	})
}

func (h *Handlers) lookup(w http.ResponseWriter, r *http.Request) (*jobs.Job, bool) {
	id, err := jobID(r)
	if err != nil {
		writeJSONError(w, "Invalid job id", http.StatusBadRequest)
		return nil, false
	}
	job, err := h.store.Get(r.Context(), id)
	if errors.Is(err, jobs.ErrNotFound) {
		writeJSONError(w, fmt.Sprintf("Job %d not found", id), http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		logging.Error("Failed to load job %d: %v", id, err)
		writeJSONError(w, "Failed to load job", http.StatusInternalServerError)
		return nil, false
	}
	return job, true
}
