package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return store
}

func TestStoreLifecycle(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	job, err := store.Create(ctx, KindProbe, "fp1", json.RawMessage(`{"kind":"probe"}`))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if job.ID == 0 || job.Status != StatusQueued {
		t.Fatalf("Create() = %+v", job)
	}

	if err := store.MarkRunning(ctx, job.ID); err != nil {
		t.Fatalf("MarkRunning() error = %v", err)
	}
	if err := store.MarkRunning(ctx, job.ID); err == nil {
		t.Error("MarkRunning() on a running job succeeded")
	}

	if err := store.Finish(ctx, job.ID, map[string]int{"streams": 2}, "success", nil); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	got, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != StatusSucceeded || got.Outcome != "success" {
		t.Errorf("status = %s/%s", got.Status, got.Outcome)
	}
	if string(got.Result) != `{"streams":2}` {
		t.Errorf("result = %s", got.Result)
	}
	if got.StartedAt == nil || got.FinishedAt == nil {
		t.Error("timestamps not recorded")
	}
	if string(got.Request) != `{"kind":"probe"}` {
		t.Errorf("request = %s", got.Request)
	}
}

func TestStoreFinishFailure(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	job, _ := store.Create(ctx, KindM4A, "fp", json.RawMessage(`{}`))
	if err := store.Finish(ctx, job.ID, nil, "error_policy", errors.New("no audio stream")); err != nil {
		t.Fatal(err)
	}
	got, _ := store.Get(ctx, job.ID)
	if got.Status != StatusFailed || got.Error != "no audio stream" || got.Result != nil {
		t.Errorf("job = %+v", got)
	}
}

func TestStoreGetNotFound(t *testing.T) {
	store := setupTestStore(t)
	if _, err := store.Get(context.Background(), 42); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestStoreFindActive(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if job, err := store.FindActive(ctx, "fp"); err != nil || job != nil {
		t.Fatalf("FindActive() on empty store = %v, %v", job, err)
	}
	first, _ := store.Create(ctx, KindProbe, "fp", json.RawMessage(`{}`))
	got, err := store.FindActive(ctx, "fp")
	if err != nil || got == nil || got.ID != first.ID {
		t.Fatalf("FindActive() = %v, %v; want job %d", got, err, first.ID)
	}

	_ = store.Finish(ctx, first.ID, nil, "success", nil)
	if job, _ := store.FindActive(ctx, "fp"); job != nil {
		t.Errorf("FindActive() returned finished job %d", job.ID)
	}
}

func TestStoreListAndStats(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := store.Create(ctx, KindProbe, "fp", json.RawMessage(`{}`)); err != nil {
			t.Fatal(err)
		}
	}
	_ = store.MarkRunning(ctx, 2)
	_ = store.Finish(ctx, 3, nil, "error_framework", errors.New("boom"))

	all, err := store.List(ctx, "", 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("List() returned %d jobs, want 3", len(all))
	}
	if all[0].ID != 3 {
		t.Errorf("List() first job = %d, want newest (3)", all[0].ID)
	}
	queued, _ := store.List(ctx, StatusQueued, 10)
	if len(queued) != 1 || queued[0].ID != 1 {
		t.Errorf("List(queued) = %v", queued)
	}

	stats := store.GetStats()
	if stats.Queued != 1 || stats.Running != 1 || stats.Failed != 1 || stats.Succeeded != 0 {
		t.Errorf("GetStats() = %+v", stats)
	}
}

func TestStoreRecover(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	a, _ := store.Create(ctx, KindProbe, "a", json.RawMessage(`{}`))
	b, _ := store.Create(ctx, KindProbe, "b", json.RawMessage(`{}`))
	c, _ := store.Create(ctx, KindProbe, "c", json.RawMessage(`{}`))
	_ = store.MarkRunning(ctx, b.ID)

	ids, err := store.Recover(ctx)
	if err != nil {
		t.Fatalf("Recover() error = %v", err)
	}
	if len(ids) != 2 || ids[0] != a.ID || ids[1] != c.ID {
		t.Errorf("Recover() = %v, want [%d %d]", ids, a.ID, c.ID)
	}
	got, _ := store.Get(ctx, b.ID)
	if got.Status != StatusFailed || got.Outcome != "canceled" {
		t.Errorf("interrupted job = %s/%s", got.Status, got.Outcome)
	}
}
