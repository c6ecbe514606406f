// Package store persists the execution audit trail in SQLite.
// Argument values never reach the database; only their count is kept.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"ledgerdev/internal/logging"
)

// LocalStore is the SQLite-backed audit store.
type LocalStore struct {
	db     *sql.DB
	mu     sync.Mutex
	dbPath string
}

// ExecutionRecord is one executor audit event.
type ExecutionRecord struct {
	ID               int64         `json:"id"`
	RequestID        string        `json:"request_id"`
	Tool             string        `json:"tool"`
	Subcommand       string        `json:"subcommand"`
	Binary           string        `json:"binary"`
	ArgCount         int           `json:"arg_count"`
	WorkingDirectory string        `json:"working_directory,omitempty"`
	Event            string        `json:"event"`
	ExitCode         int           `json:"exit_code"`
	Duration         time.Duration `json:"duration"`
	Reason           string        `json:"reason,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
}

// LifecycleRecord is one daemon start, stop or restart outcome.
type LifecycleRecord struct {
	ID        int64     `json:"id"`
	Operation string    `json:"operation"`
	Outcome   string    `json:"outcome"`
	PIDs      []int     `json:"pids,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewLocalStore opens (creating if needed) the database at path.
// ":memory:" gives a private in-memory store.
func NewLocalStore(path string) (*LocalStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: keeps ":memory:" coherent and serializes writers.
	db.SetMaxOpenConns(1)

	s := &LocalStore{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	logging.AuditDebug("audit store opened at %s", path)
	return s, nil
}

func (s *LocalStore) initialize() error {
	executions := `
	CREATE TABLE IF NOT EXISTS executions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		request_id TEXT NOT NULL,
		tool TEXT NOT NULL,
		subcommand TEXT NOT NULL DEFAULT '',
		binary_path TEXT NOT NULL,
		arg_count INTEGER NOT NULL,
		working_directory TEXT,
		event TEXT NOT NULL,
		exit_code INTEGER NOT NULL,
		duration_ns INTEGER NOT NULL,
		reason TEXT DEFAULT '',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_executions_request ON executions(request_id);
	CREATE INDEX IF NOT EXISTS idx_executions_created ON executions(created_at);
	`

	lifecycle := `
	CREATE TABLE IF NOT EXISTS lifecycle_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		operation TEXT NOT NULL,
		outcome TEXT NOT NULL,
		pids TEXT,
		detail TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_lifecycle_created ON lifecycle_events(created_at);
	`

	for _, table := range []string{executions, lifecycle} {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return RunMigrations(s.db)
}

// Path returns the database location.
func (s *LocalStore) Path() string { return s.dbPath }

// Close closes the database connection.
func (s *LocalStore) Close() error {
	return s.db.Close()
}

// RecordExecution appends an execution event.
func (s *LocalStore) RecordExecution(ctx context.Context, r ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO executions
			(request_id, tool, subcommand, binary_path, arg_count, working_directory, event, exit_code, duration_ns, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RequestID, r.Tool, r.Subcommand, r.Binary, r.ArgCount, r.WorkingDirectory,
		r.Event, r.ExitCode, int64(r.Duration), r.Reason, r.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record execution: %w", err)
	}
	return nil
}

// RecordLifecycle appends a daemon lifecycle outcome.
func (s *LocalStore) RecordLifecycle(ctx context.Context, r LifecycleRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	pids, _ := json.Marshal(r.PIDs)
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO lifecycle_events (operation, outcome, pids, detail, created_at) VALUES (?, ?, ?, ?, ?)",
		r.Operation, r.Outcome, string(pids), r.Detail, r.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record lifecycle event: %w", err)
	}
	return nil
}

// RecentExecutions returns up to limit events, newest first.
func (s *LocalStore) RecentExecutions(ctx context.Context, limit int) ([]ExecutionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, tool, subcommand, binary_path, arg_count, COALESCE(working_directory, ''),
		       event, exit_code, duration_ns, COALESCE(reason, ''), created_at
		FROM executions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer rows.Close()

	var out []ExecutionRecord
	for rows.Next() {
		var r ExecutionRecord
		var durationNs, created int64
		if err := rows.Scan(&r.ID, &r.RequestID, &r.Tool, &r.Subcommand, &r.Binary, &r.ArgCount,
			&r.WorkingDirectory, &r.Event, &r.ExitCode, &durationNs, &r.Reason, &created); err != nil {
			return nil, err
		}
		r.Duration = time.Duration(durationNs)
		r.CreatedAt = time.Unix(0, created)
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecentLifecycle returns up to limit lifecycle events, newest first.
func (s *LocalStore) RecentLifecycle(ctx context.Context, limit int) ([]LifecycleRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, operation, outcome, COALESCE(pids, ''), COALESCE(detail, ''), created_at
		FROM lifecycle_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query lifecycle events: %w", err)
	}
	defer rows.Close()

	var out []LifecycleRecord
	for rows.Next() {
		var r LifecycleRecord
		var pids string
		var created int64
		if err := rows.Scan(&r.ID, &r.Operation, &r.Outcome, &pids, &r.Detail, &created); err != nil {
			return nil, err
		}
		if pids != "" && pids != "null" {
			if err := json.Unmarshal([]byte(pids), &r.PIDs); err != nil {
				logging.AuditWarn("bad pid list in lifecycle event %d: %v", r.ID, err)
			}
		}
		r.CreatedAt = time.Unix(0, created)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Prune deletes events older than cutoff and returns the number removed.
func (s *LocalStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total int64
	for _, table := range []string{"executions", "lifecycle_events"} {
		res, err := s.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE created_at < ?", cutoff.UnixNano())
		if err != nil {
			return total, fmt.Errorf("failed to prune %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	if total > 0 {
		logging.Audit("pruned %d audit events older than %s", total, cutoff.Format(time.RFC3339))
	}
	return total, nil
}
