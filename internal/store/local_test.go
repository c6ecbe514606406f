package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *LocalStore {
	t.Helper()
	s, err := NewLocalStore(filepath.Join(t.TempDir(), "audit", "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndListExecutions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.RecordExecution(ctx, ExecutionRecord{
		RequestID: "r1", Tool: "builder", Subcommand: "build", Binary: "/opt/forge",
		ArgCount: 2, Event: "start", CreatedAt: base,
	}))
	require.NoError(t, s.RecordExecution(ctx, ExecutionRecord{
		RequestID: "r1", Tool: "builder", Subcommand: "build", Binary: "/opt/forge",
		ArgCount: 2, Event: "complete", ExitCode: 1, Duration: 1500 * time.Millisecond,
		Reason: "", CreatedAt: base.Add(time.Second),
	}))

	got, err := s.RecentExecutions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "complete", got[0].Event)
	assert.Equal(t, 1, got[0].ExitCode)
	assert.Equal(t, 1500*time.Millisecond, got[0].Duration)
	assert.True(t, base.Add(time.Second).Equal(got[0].CreatedAt))
	assert.Equal(t, "build", got[1].Subcommand)
	assert.Equal(t, 2, got[1].ArgCount)

	limited, err := s.RecentExecutions(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestRecordLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.RecordLifecycle(ctx, LifecycleRecord{Operation: "start", Outcome: "started", PIDs: []int{4242}}))
	require.NoError(t, s.RecordLifecycle(ctx, LifecycleRecord{Operation: "stop", Outcome: "already-stopped"}))

	got, err := s.RecentLifecycle(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "stop", got[0].Operation)
	assert.Empty(t, got[0].PIDs)
	assert.Equal(t, []int{4242}, got[1].PIDs)
	assert.False(t, got[1].CreatedAt.IsZero())
}

func TestPrune(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	old := time.Now().Add(-48 * time.Hour)

	require.NoError(t, s.RecordExecution(ctx, ExecutionRecord{RequestID: "old", Tool: "builder", Binary: "forge", Event: "start", CreatedAt: old}))
	require.NoError(t, s.RecordExecution(ctx, ExecutionRecord{RequestID: "new", Tool: "builder", Binary: "forge", Event: "start"}))
	require.NoError(t, s.RecordLifecycle(ctx, LifecycleRecord{Operation: "stop", Outcome: "stopped", CreatedAt: old}))

	n, err := s.Prune(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err := s.RecentExecutions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].RequestID)
}

func TestMigrationsUpgradeOldSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE executions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		request_id TEXT NOT NULL,
		tool TEXT NOT NULL,
		binary_path TEXT NOT NULL,
		arg_count INTEGER NOT NULL,
		working_directory TEXT,
		event TEXT NOT NULL,
		exit_code INTEGER NOT NULL,
		duration_ns INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := NewLocalStore(path)
	require.NoError(t, err)
	defer s.Close()

	assert.True(t, columnExists(s.db, "executions", "subcommand"))
	assert.True(t, columnExists(s.db, "executions", "reason"))
	require.NoError(t, s.RecordExecution(context.Background(), ExecutionRecord{
		RequestID: "r", Tool: "query-client", Subcommand: "call", Binary: "cast", Event: "start",
	}))
}

func TestInMemoryStore(t *testing.T) {
	s, err := NewLocalStore(":memory:")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.RecordLifecycle(context.Background(), LifecycleRecord{Operation: "restart", Outcome: "anomaly"}))
	got, err := s.RecentLifecycle(context.Background(), 5)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
