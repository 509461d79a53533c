package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"remuxkit/internal/logging"
	"remuxkit/internal/metrics"
)

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

// ErrNotFound is returned for an unknown job id.
var ErrNotFound = errors.New("job not found")

// Status is the lifecycle position of a job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Job is one row of the job history.
type Job struct {
	ID          int64           `json:"id"`
	Kind        Kind            `json:"kind"`
	Status      Status          `json:"status"`
	Fingerprint string          `json:"fingerprint"`
	Request     json.RawMessage `json:"request"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	// Outcome is the metrics status of a finished job ("success",
	// "error_policy", ...).
	Outcome    string     `json:"outcome,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Store keeps the job history in SQLite.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// Open creates or opens the job database at dbPath. The parent directory
// must already exist.
func Open(ctx context.Context, dbPath string) (*Store, error) {
	logging.Info("Database path: %s", dbPath)

	if err := diagnoseDatabasePermissions(dbPath); err != nil {
		logging.Warn("Database permission diagnostics: %v", err)
	}

	// busy_timeout helps prevent "database is locked" errors
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, dbPath: dbPath}
	if err := s.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	logging.Info("Database initialized successfully at %s", dbPath)
	return s, nil
}

func (s *Store) initialize(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		fingerprint TEXT NOT NULL,
		status TEXT NOT NULL,
		request TEXT NOT NULL,
		result TEXT,
		error TEXT NOT NULL DEFAULT '',
		outcome TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		started_at INTEGER,
		finished_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
	CREATE INDEX IF NOT EXISTS idx_jobs_fingerprint_status ON jobs(fingerprint, status);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create inserts a queued job.
func (s *Store) Create(ctx context.Context, kind Kind, fingerprint string, request json.RawMessage) (*Job, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("create_job", start, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Millisecond)
	var res sql.Result
	res, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (kind, fingerprint, status, request, created_at) VALUES (?, ?, ?, ?, ?)`,
		string(kind), fingerprint, string(StatusQueued), string(request), now.UnixMilli(),
	)
	if err != nil {
		return nil, err
	}
	var id int64
	if id, err = res.LastInsertId(); err != nil {
		return nil, err
	}
	return &Job{
		ID:          id,
		Kind:        kind,
		Status:      StatusQueued,
		Fingerprint: fingerprint,
		Request:     request,
		CreatedAt:   now,
	}, nil
}

const jobColumns = `id, kind, fingerprint, status, request, result, error, outcome, created_at, started_at, finished_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		j                     Job
		kind, status, req     string
		result                sql.NullString
		created               int64
		startedAt, finishedAt sql.NullInt64
	)
	if err := row.Scan(&j.ID, &kind, &j.Fingerprint, &status, &req, &result, &j.Error, &j.Outcome,
		&created, &startedAt, &finishedAt); err != nil {
		return nil, err
	}
	j.Kind = Kind(kind)
	j.Status = Status(status)
	j.Request = json.RawMessage(req)
	if result.Valid {
		j.Result = json.RawMessage(result.String)
	}
	j.CreatedAt = time.UnixMilli(created).UTC()
	j.StartedAt = nullTime(startedAt)
	j.FinishedAt = nullTime(finishedAt)
	return &j, nil
}

func nullTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}

// Get returns one job.
func (s *Store) Get(ctx context.Context, id int64) (*Job, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_job", start, err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var j *Job
	j, err = scanJob(s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		err = nil
		return nil, ErrNotFound
	}
	return j, err
}

// List returns the most recent jobs first, optionally filtered by status.
func (s *Store) List(ctx context.Context, status Status, limit int) ([]*Job, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_jobs", start, err) }()

	if limit <= 0 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	var rows *sql.Rows
	rows, err = s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []*Job{}
	for rows.Next() {
		var j *Job
		if j, err = scanJob(rows); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	err = rows.Err()
	return jobs, err
}

// FindActive returns a queued or running job with the given fingerprint,
// or nil when there is none.
func (s *Store) FindActive(ctx context.Context, fingerprint string) (*Job, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("find_active", start, err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var j *Job
	j, err = scanJob(s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE fingerprint = ? AND status IN (?, ?) ORDER BY id LIMIT 1`,
		fingerprint, string(StatusQueued), string(StatusRunning)))
	if errors.Is(err, sql.ErrNoRows) {
		err = nil
		return nil, nil
	}
	return j, err
}

// MarkRunning moves a queued job to running.
func (s *Store) MarkRunning(ctx context.Context, id int64) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("mark_running", start, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var res sql.Result
	res, err = s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, started_at = ? WHERE id = ? AND status = ?`,
		string(StatusRunning), time.Now().UnixMilli(), id, string(StatusQueued))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("job %d: %w or not queued", id, ErrNotFound)
	}
	return nil
}

// Finish records the outcome of a running job. A nil jobErr marks it
// succeeded with result; otherwise it failed.
func (s *Store) Finish(ctx context.Context, id int64, result any, outcome string, jobErr error) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("finish_job", start, err) }()

	status := StatusSucceeded
	var resultJSON sql.NullString
	errText := ""
	if jobErr != nil {
		status = StatusFailed
		errText = jobErr.Error()
	} else if result != nil {
		var data []byte
		if data, err = json.Marshal(result); err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		resultJSON = sql.NullString{String: string(data), Valid: true}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, result = ?, error = ?, outcome = ?, finished_at = ? WHERE id = ?`,
		string(status), resultJSON, errText, outcome, time.Now().UnixMilli(), id)
	return err
}

// Recover fails jobs left running by a previous process and returns the
// ids of queued jobs, oldest first.
func (s *Store) Recover(ctx context.Context) ([]int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("recover", start, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var res sql.Result
	res, err = s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, error = ?, outcome = ?, finished_at = ? WHERE status = ?`,
		string(StatusFailed), "interrupted by shutdown", "canceled", time.Now().UnixMilli(), string(StatusRunning))
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		logging.Warn("Marked %d interrupted jobs as failed", n)
	}

	var rows *sql.Rows
	rows, err = s.db.QueryContext(ctx, `SELECT id FROM jobs WHERE status = ? ORDER BY id`, string(StatusQueued))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err = rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	err = rows.Err()
	return ids, err
}

// GetStats counts jobs by status. It implements metrics.StatsProvider.
func (s *Store) GetStats() metrics.Stats {
	start := time.Now()
	var err error
	defer func() { recordQuery("stats", start, err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var stats metrics.Stats
	var rows *sql.Rows
	rows, err = s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		logging.Warn("Failed to count jobs: %v", err)
		return stats
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var n int
		if err = rows.Scan(&status, &n); err != nil {
			logging.Warn("Failed to count jobs: %v", err)
			return stats
		}
		switch Status(status) {
		case StatusQueued:
			stats.Queued = n
		case StatusRunning:
			stats.Running = n
		case StatusSucceeded:
			stats.Succeeded = n
		case StatusFailed:
			stats.Failed = n
		}
	}
	err = rows.Err()
	return stats
}

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	return s.db.PingContext(ctx)
}

// recordQuery records database query metrics
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(duration)
}

// diagnoseDatabasePermissions checks database directory and file permissions
func diagnoseDatabasePermissions(dbPath string) error {
	dir := filepath.Dir(dbPath)

	dirInfo, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot stat database directory: %w", err)
	}
	logging.Debug("Database directory: %s (mode: %v)", dir, dirInfo.Mode())

	for _, path := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		logging.Debug("Database file exists: %s (mode: %v, size: %d bytes)", path, info.Mode(), info.Size())
		if info.Mode().Perm()&0o200 == 0 {
			logging.Warn("%s is read-only! Mode: %v - this will cause write failures", path, info.Mode())
		}
	}
	return nil
}
