package memory

import (
	"context"
	"errors"
	"testing"
	"time"
)

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestResolveLimit(t *testing.T) {
	tests := []struct {
		name    string
		vars    map[string]string
		source  string
		limit   int64
		wantErr bool
	}{
		{"nothing set", nil, "none", 0, false},
		{"GOMEMLIMIT wins", map[string]string{"GOMEMLIMIT": "1GiB", "MEMORY_LIMIT": "1000"}, "GOMEMLIMIT", 0, false},
		{"default ratio", map[string]string{"MEMORY_LIMIT": "1000"}, "MEMORY_LIMIT", 600, false},
		{"custom ratio", map[string]string{"MEMORY_LIMIT": "1000", "MEMORY_RATIO": "0.5"}, "MEMORY_LIMIT", 500, false},
		{"bad limit", map[string]string{"MEMORY_LIMIT": "lots"}, "none", 0, true},
		{"negative limit", map[string]string{"MEMORY_LIMIT": "-5"}, "none", 0, true},
		{"ratio out of range", map[string]string{"MEMORY_LIMIT": "1000", "MEMORY_RATIO": "1.5"}, "none", 0, true},
		{"bad ratio", map[string]string{"MEMORY_LIMIT": "1000", "MEMORY_RATIO": "half"}, "none", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveLimit(env(tt.vars))
			if (err != nil) != tt.wantErr {
				t.Fatalf("resolveLimit() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got.Source != tt.source || got.GoMemLimit != tt.limit {
				t.Errorf("resolveLimit() = %+v, want source %s limit %d", got, tt.source, tt.limit)
			}
		})
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{1024, "1.0 KiB"},
		{1536 * 1024, "1.5 MiB"},
		{2 << 30, "2.0 GiB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.in); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func newTestMonitor() *Monitor {
	cfg := DefaultConfig()
	cfg.Limit = 1000
	return NewMonitor(cfg)
}

func TestMonitorPausesAndResumes(t *testing.T) {
	m := newTestMonitor()
	defer m.Stop()

	m.observe(500)
	if m.Paused() {
		t.Fatal("paused at 50%")
	}
	m.observe(900)
	if !m.Paused() {
		t.Fatal("not paused at 90%")
	}
	if got := m.Usage(); got != 0.9 {
		t.Errorf("Usage() = %v, want 0.9", got)
	}
	// Between the watermarks the state holds.
	m.observe(800)
	if !m.Paused() {
		t.Fatal("resumed above the high watermark")
	}

	done := make(chan error, 1)
	go func() { done <- m.Wait(context.Background()) }()
	select {
	case <-done:
		t.Fatal("Wait() returned while paused")
	case <-time.After(20 * time.Millisecond):
	}

	m.observe(600)
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Wait() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait() did not return after resume")
	}
}

func TestMonitorWaitCanceled(t *testing.T) {
	m := newTestMonitor()
	defer m.Stop()
	m.observe(950)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := m.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() error = %v, want DeadlineExceeded", err)
	}
}

func TestMonitorStopReleasesWaiters(t *testing.T) {
	m := newTestMonitor()
	m.observe(950)

	done := make(chan error, 1)
	go func() { done <- m.Wait(context.Background()) }()
	m.Stop()
	m.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Wait() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait() blocked after Stop")
	}
}

func TestMonitorStartStop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Limit = 1 << 40
	cfg.CheckInterval = 5 * time.Millisecond
	m := NewMonitor(cfg)
	m.Start()
	time.Sleep(20 * time.Millisecond)
	m.Stop()

	if m.Paused() {
		t.Error("paused far below a 1 TiB limit")
	}
	if m.Usage() <= 0 {
		t.Error("Usage() = 0 after sampling")
	}
}
