package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"remuxkit/internal/av"
	"remuxkit/internal/av/avtest"
	"remuxkit/internal/jobs"
	"remuxkit/internal/metrics"
	"remuxkit/internal/startup"
	"remuxkit/internal/timebase"
)

type testEnv struct {
	h      *Handlers
	store  *jobs.Store
	runner *jobs.Runner
	fw     *avtest.Framework
	config *startup.Config
}

func setupTestHandlers(t *testing.T) *testEnv {
	t.Helper()
	work := t.TempDir()
	config := &startup.Config{
		WorkDir:        work,
		DatabasePath:   filepath.Join(t.TempDir(), "jobs.db"),
		OutputDir:      filepath.Join(work, "output"),
		MaxUploadBytes: 16,
	}
	if err := os.MkdirAll(config.OutputDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(work, "a.mp3"), []byte("ID3"), 0o644); err != nil {
		t.Fatal(err)
	}

	store, err := jobs.Open(context.Background(), config.DatabasePath)
	if err != nil {
		t.Fatalf("jobs.Open() error = %v", err)
	}
	fw := &avtest.Framework{Inputs: map[string]*avtest.Demuxer{
		filepath.Join(work, "a.mp3"): {
			Format: "mp3",
			Dur:    1000000,
			StreamList: []av.StreamInfo{
				{Index: 0, MediaType: av.MediaAudio, Codec: "mp3", TimeBase: timebase.New(1, 44100)},
			},
		},
	}}
	runner := jobs.NewRunner(store, fw, jobs.RunnerConfig{WorkDir: work, OutputDir: config.OutputDir, Workers: 1})
	if err := runner.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = runner.Stop()
		_ = store.Close()
	})
	return &testEnv{h: New(runner, store, config), store: store, runner: runner, fw: fw, config: config}
}

func strconvID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func withID(r *http.Request, id string) *http.Request {
	return mux.SetURLVars(r, map[string]string{"id": id})
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

// =============================================================================
// Job API
// =============================================================================

func TestSubmitAndGetJob(t *testing.T) {
	env := setupTestHandlers(t)

	w := httptest.NewRecorder()
	env.h.SubmitJob(w, httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(`{"kind":"probe","input":"a.mp3"}`)))
	if w.Code != http.StatusAccepted {
		t.Fatalf("SubmitJob status = %d: %s", w.Code, w.Body.String())
	}
	job := decode[jobs.Job](t, w)
	if loc := w.Header().Get("Location"); loc != "/api/jobs/"+strconvID(job.ID) {
		t.Errorf("Location = %q", loc)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		w = httptest.NewRecorder()
		env.h.GetJob(w, withID(httptest.NewRequest(http.MethodGet, "/", nil), strconvID(job.ID)))
		if w.Code != http.StatusOK {
			t.Fatalf("GetJob status = %d", w.Code)
		}
		got := decode[jobs.Job](t, w)
		if got.Status == jobs.StatusSucceeded {
			break
		}
		if got.Status == jobs.StatusFailed || time.Now().After(deadline) {
			t.Fatalf("job ended as %s: %s", got.Status, got.Error)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSubmitJobRejects(t *testing.T) {
	env := setupTestHandlers(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"kind":`},
		{"unknown field", `{"kind":"probe","input":"a.mp3","speed":2}`},
		{"invalid request", `{"kind":"probe"}`},
		{"escaping path", `{"kind":"probe","input":"../a.mp3"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			env.h.SubmitJob(w, httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(tt.body)))
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestGetJobErrors(t *testing.T) {
	env := setupTestHandlers(t)

	w := httptest.NewRecorder()
	env.h.GetJob(w, withID(httptest.NewRequest(http.MethodGet, "/", nil), "abc"))
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid id status = %d, want 400", w.Code)
	}

	w = httptest.NewRecorder()
	env.h.GetJob(w, withID(httptest.NewRequest(http.MethodGet, "/", nil), "999"))
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown id status = %d, want 404", w.Code)
	}
}

func TestListJobs(t *testing.T) {
	env := setupTestHandlers(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		job, err := env.store.Create(ctx, jobs.KindProbe, "fp"+strconvID(int64(i)), json.RawMessage(`{}`))
		if err != nil {
			t.Fatal(err)
		}
		if i == 0 {
			_ = env.store.Finish(ctx, job.ID, nil, "success", nil)
		}
	}

	w := httptest.NewRecorder()
	env.h.ListJobs(w, httptest.NewRequest(http.MethodGet, "/api/jobs?limit=2", nil))
	if list := decode[[]jobs.Job](t, w); len(list) != 2 {
		t.Errorf("limit=2 returned %d jobs", len(list))
	}

	w = httptest.NewRecorder()
	env.h.ListJobs(w, httptest.NewRequest(http.MethodGet, "/api/jobs?status=succeeded", nil))
	if list := decode[[]jobs.Job](t, w); len(list) != 1 || list[0].Status != jobs.StatusSucceeded {
		t.Errorf("status=succeeded returned %+v", list)
	}

	for _, q := range []string{"status=done", "limit=0", "limit=x"} {
		w = httptest.NewRecorder()
		env.h.ListJobs(w, httptest.NewRequest(http.MethodGet, "/api/jobs?"+q, nil))
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, w.Code)
		}
	}
}

func TestCancelJobNotRunning(t *testing.T) {
	env := setupTestHandlers(t)
	job, _ := env.store.Create(context.Background(), jobs.KindProbe, "fp", json.RawMessage(`{}`))
	_ = env.store.Finish(context.Background(), job.ID, nil, "success", nil)

	w := httptest.NewRecorder()
	env.h.CancelJob(w, withID(httptest.NewRequest(http.MethodDelete, "/", nil), strconvID(job.ID)))
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestGetJobOutput(t *testing.T) {
	env := setupTestHandlers(t)
	ctx := context.Background()

	if err := os.WriteFile(filepath.Join(env.config.OutputDir, "job-1.m4a"), []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	done, _ := env.store.Create(ctx, jobs.KindM4A, "a", json.RawMessage(`{}`))
	_ = env.store.Finish(ctx, done.ID, jobs.Output{Output: "job-1.m4a"}, "success", nil)
	pending, _ := env.store.Create(ctx, jobs.KindM4A, "b", json.RawMessage(`{}`))

	w := httptest.NewRecorder()
	env.h.GetJobOutput(w, withID(httptest.NewRequest(http.MethodGet, "/", nil), strconvID(done.ID)))
	if w.Code != http.StatusOK || w.Body.String() != "audio" {
		t.Errorf("output = %d %q", w.Code, w.Body.String())
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "job-1.m4a") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	w = httptest.NewRecorder()
	env.h.GetJobOutput(w, withID(httptest.NewRequest(http.MethodGet, "/", nil), strconvID(pending.ID)))
	if w.Code != http.StatusConflict {
		t.Errorf("pending job status = %d, want 409", w.Code)
	}

	removed, _ := env.store.Create(ctx, jobs.KindM4A, "c", json.RawMessage(`{}`))
	_ = env.store.Finish(ctx, removed.ID, jobs.Output{Output: "job-3.m4a"}, "success", nil)
	w = httptest.NewRecorder()
	env.h.GetJobOutput(w, withID(httptest.NewRequest(http.MethodGet, "/", nil), strconvID(removed.ID)))
	if w.Code != http.StatusGone {
		t.Errorf("deleted output status = %d, want 410", w.Code)
	}
}

// =============================================================================
// Uploads
// =============================================================================

func TestUploadInput(t *testing.T) {
	env := setupTestHandlers(t)

	upload := func(name, body string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPut, "/api/uploads/"+name, bytes.NewBufferString(body))
		r = mux.SetURLVars(r, map[string]string{"name": name})
		w := httptest.NewRecorder()
		env.h.UploadInput(w, r)
		return w
	}

	if w := upload("in.mp3", "0123456789"); w.Code != http.StatusCreated {
		t.Fatalf("upload status = %d: %s", w.Code, w.Body.String())
	}
	data, err := os.ReadFile(filepath.Join(env.config.WorkDir, "in.mp3"))
	if err != nil || string(data) != "0123456789" {
		t.Errorf("stored upload = %q, %v", data, err)
	}

	if w := upload("big.mp3", strings.Repeat("x", 17)); w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("oversized upload status = %d, want 413", w.Code)
	}
	if _, err := os.Stat(filepath.Join(env.config.WorkDir, "big.mp3")); !os.IsNotExist(err) {
		t.Error("oversized upload was stored")
	}
	if w := upload("..", "x"); w.Code != http.StatusBadRequest {
		t.Errorf("bad name status = %d, want 400", w.Code)
	}
}

// =============================================================================
// Health
// =============================================================================

func TestHealthCheck(t *testing.T) {
	env := setupTestHandlers(t)
	w := httptest.NewRecorder()
	env.h.HealthCheck(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decode[HealthResponse](t, w)
	if resp.Status != statusHealthy || !resp.Ready || resp.Database != "ok" {
		t.Errorf("response = %+v", resp)
	}
}

func TestHealthCheckDatabaseClosed(t *testing.T) {
	env := setupTestHandlers(t)
	_ = env.store.Close()

	w := httptest.NewRecorder()
	env.h.HealthCheck(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
	if resp := decode[HealthResponse](t, w); resp.Status != statusDegraded {
		t.Errorf("status = %q, want degraded", resp.Status)
	}

	w = httptest.NewRecorder()
	env.h.ReadinessCheck(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("readiness status = %d, want 503", w.Code)
	}
}

func TestLivenessCheck(t *testing.T) {
	env := setupTestHandlers(t)

	w := httptest.NewRecorder()
	env.h.LivenessCheck(w, httptest.NewRequest(http.MethodGet, "/livez", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "alive") {
		t.Errorf("GET = %d %q", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	env.h.LivenessCheck(w, httptest.NewRequest(http.MethodHead, "/livez", nil))
	if w.Body.Len() != 0 {
		t.Errorf("HEAD body = %q, want empty", w.Body.String())
	}
}

func TestGetVersion(t *testing.T) {
	env := setupTestHandlers(t)
	w := httptest.NewRecorder()
	env.h.GetVersion(w, httptest.NewRequest(http.MethodGet, "/version", nil))

	info := decode[startup.BuildInfo](t, w)
	if info.Version != startup.Version || w.Header().Get("Cache-Control") != "no-cache" {
		t.Errorf("version = %+v", info)
	}
}

func TestMetricsHandler(t *testing.T) {
	env := setupTestHandlers(t)
	metrics.InitializeMetrics()

	w := httptest.NewRecorder()
	env.h.MetricsHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `remuxkit_jobs_total{kind="probe",status="success"}`) {
		t.Error("job counters missing from /metrics")
	}
}
