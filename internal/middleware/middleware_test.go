package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"remuxkit/internal/metrics"
)

// ===== Response writer =====

func TestResponseWriter(t *testing.T) {
	w := httptest.NewRecorder()
	rw := newResponseWriter(w)
	if rw.statusCode != http.StatusOK || rw.wroteHeader {
		t.Fatalf("new writer = %+v", rw)
	}

	rw.WriteHeader(http.StatusNotFound)
	rw.WriteHeader(http.StatusInternalServerError)
	if rw.statusCode != http.StatusNotFound || w.Code != http.StatusNotFound {
		t.Errorf("status = %d/%d, want 404", rw.statusCode, w.Code)
	}

	n, err := rw.Write([]byte("not found"))
	if err != nil || n != 9 || rw.bytesWritten != 9 {
		t.Errorf("Write() = %d, %v; bytesWritten %d", n, err, rw.bytesWritten)
	}
	if newResponseWriter(rw) != rw {
		t.Error("wrapping twice created a second writer")
	}
}

// ===== Request IDs =====

func TestRequestIDGenerated(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFrom(r.Context())
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/jobs", nil))

	if len(seen) != 36 {
		t.Errorf("generated id = %q, want a UUID", seen)
	}
	if got := w.Header().Get(RequestIDHeader); got != seen {
		t.Errorf("response id = %q, want %q", got, seen)
	}
}

func TestRequestIDKept(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFrom(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc\n123")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if seen != "abc 123" {
		t.Errorf("id = %q, want sanitized client id", seen)
	}
}

// ===== Logging =====

func TestSanitizeLogField(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"a\r\nb", "a  b"},
		{"nul\x00byte", "nulbyte"},
		{"\x1b[31mred", "[31mred"},
		{"tab\tok", "tab\tok"},
		{"del\x7f", "del"},
	}
	for _, tt := range tests {
		if got := sanitizeLogField(tt.in); got != tt.want {
			t.Errorf("sanitizeLogField(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestShouldSkip(t *testing.T) {
	cfg := DefaultLoggingConfig()
	tests := []struct {
		path string
		want bool
	}{
		{"/metrics", true},
		{"/health", true},
		{"/livez", true},
		{"/api/jobs", false},
	}
	for _, tt := range tests {
		if got := shouldSkip(tt.path, cfg); got != tt.want {
			t.Errorf("shouldSkip(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
	cfg.LogHealthChecks = true
	if shouldSkip("/health", cfg) {
		t.Error("health check skipped with LogHealthChecks set")
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded", map[string]string{"X-Forwarded-For": "10.0.0.1, 10.0.0.2"}, "1.2.3.4:5", "10.0.0.1"},
		{"real ip", map[string]string{"X-Real-IP": "10.0.0.9"}, "1.2.3.4:5", "10.0.0.9"},
		{"remote", nil, "1.2.3.4:5678", "1.2.3.4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := getClientIP(r); got != tt.want {
				t.Errorf("getClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatW3C(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/api/jobs?wait=1", nil)
	r.RemoteAddr = "192.0.2.1:4000"
	r.Header.Set("User-Agent", `curl "x"`)
	rw := newResponseWriter(httptest.NewRecorder())
	rw.WriteHeader(http.StatusAccepted)
	_, _ = rw.Write([]byte("{}\n"))

	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	got := formatW3C(r, rw, now, 42*time.Millisecond)
	want := `2026-03-04 05:06:07 192.0.2.1 POST /api/jobs wait=1 202 3 42 - "curl ""x"""`
	if got != want {
		t.Errorf("formatW3C() =\n%s\nwant\n%s", got, want)
	}
}

func TestLoggerPassesThrough(t *testing.T) {
	h := Logger(DefaultLoggingConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/jobs", nil))
	if w.Code != http.StatusTeapot {
		t.Errorf("status = %d, want 418", w.Code)
	}
}

// ===== Metrics =====

func TestMetricsUsesRouteTemplate(t *testing.T) {
	router := mux.NewRouter()
	router.Use(Metrics(DefaultMetricsConfig()))
	router.HandleFunc("/api/jobs/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}).Methods(http.MethodGet)

	counter := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/api/jobs/{id}", "404")
	before := testutil.ToFloat64(counter)
	for _, id := range []string{"1", "2", "3"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/jobs/"+id, nil))
	}
	if got := testutil.ToFloat64(counter) - before; got != 3 {
		t.Errorf("requests counted under template = %v, want 3", got)
	}
}

func TestMetricsSkipsPaths(t *testing.T) {
	h := Metrics(DefaultMetricsConfig())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	counter := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "unmatched", "200")
	before := testutil.ToFloat64(counter)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if testutil.ToFloat64(counter) != before {
		t.Error("/metrics request was recorded")
	}
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/other", nil))
	if testutil.ToFloat64(counter) != before+1 {
		t.Error("unrouted request not recorded as unmatched")
	}
}

func TestRequestIDVisibleDownstream(t *testing.T) {
	h := RequestID(Logger(LoggingConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(w.Header().Get(RequestIDHeader), "-") {
			t.Error("request id header missing inside chain")
		}
	})))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}
