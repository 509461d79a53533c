package handlers

import (
	"time"

	"remuxkit/internal/jobs"
	"remuxkit/internal/startup"
)

// Handlers serves the remuxd API.
type Handlers struct {
	runner         *jobs.Runner
	store          *jobs.Store
	workDir        string
	outputDir      string
	maxUploadBytes int64
	startTime      time.Time
}

// New returns the handlers for runner and its store.
func New(runner *jobs.Runner, store *jobs.Store, config *startup.Config) *Handlers {
	return &Handlers{
		runner:         runner,
		store:          store,
		workDir:        config.WorkDir,
		outputDir:      config.OutputDir,
		maxUploadBytes: config.MaxUploadBytes,
		startTime:      time.Now(),
	}
}
