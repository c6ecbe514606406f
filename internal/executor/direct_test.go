package executor

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sys/unix"

	"ledgerdev/internal/toolchain"
	"ledgerdev/internal/types"
)

func shell(t *testing.T) string {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	return sh
}

type auditRecorder struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (r *auditRecorder) record(ev AuditEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *auditRecorder) types() []AuditEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]AuditEventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

func TestExecute_Success(t *testing.T) {
	sh := shell(t)
	rec := &auditRecorder{}
	e := New(Config{})
	e.SetAuditCallback(rec.record)

	res, err := e.Execute(context.Background(), sh, []string{"-c", "echo hello; echo warn >&2"},
		Options{Tool: types.ToolBuilder, WorkdirPolicy: WorkdirNone})
	require.NoError(t, err)
	assert.Equal(t, "hello\n", res.Stdout)
	assert.Equal(t, "warn\n", res.Stderr)
	assert.NotEmpty(t, res.RequestID)
	assert.Equal(t, []AuditEventType{AuditEventStart, AuditEventComplete}, rec.types())
	assert.Equal(t, 2, rec.events[0].ArgCount)
}

func TestExecute_NonZeroExitPassesOutputThrough(t *testing.T) {
	sh := shell(t)
	e := New(Config{})

	_, err := e.Execute(context.Background(), sh, []string{"-c", "echo out; echo err >&2; exit 3"},
		Options{WorkdirPolicy: WorkdirNone})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFailure))

	var fe *FailureError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 3, fe.ExitCode)
	assert.Equal(t, "out\n", fe.Stdout)
	assert.Equal(t, "err\n", fe.Stderr)
	assert.Empty(t, fe.Reason)
}

func TestExecute_TimeoutKillsChild(t *testing.T) {
	defer goleak.VerifyNone(t)
	sleep, err := exec.LookPath("sleep")
	if err != nil {
		t.Skip("sleep not available")
	}
	rec := &auditRecorder{}
	e := New(Config{})
	e.SetAuditCallback(rec.record)

	start := time.Now()
	_, err = e.Execute(context.Background(), sleep, []string{"5"},
		Options{Timeout: 50 * time.Millisecond, WorkdirPolicy: WorkdirNone})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.Less(t, elapsed, 3*time.Second)

	var te *TimeoutError
	require.True(t, errors.As(err, &te))
	require.NotZero(t, te.PID)
	assert.ErrorIs(t, unix.Kill(te.PID, 0), unix.ESRCH, "child must not outlive the timeout")
	assert.Equal(t, []AuditEventType{AuditEventStart, AuditEventKilled}, rec.types())
}

func TestExecute_OutputLimitIsFailure(t *testing.T) {
	defer goleak.VerifyNone(t)
	sh := shell(t)
	e := New(Config{MaxOutputBytes: 4096})

	_, err := e.Execute(context.Background(), sh,
		[]string{"-c", "while :; do echo 0123456789abcdef; done"},
		Options{Timeout: 10 * time.Second, WorkdirPolicy: WorkdirNone})
	require.Error(t, err)

	var fe *FailureError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, ReasonOutputLimit, fe.Reason)
	assert.LessOrEqual(t, len(fe.Stdout)+len(fe.Stderr), 4096)
}

func TestExecute_MissingBinaryIsNotFound(t *testing.T) {
	e := New(Config{})
	missing := filepath.Join(t.TempDir(), "forge")

	_, err := e.Execute(context.Background(), missing, nil,
		Options{Tool: types.ToolBuilder, WorkdirPolicy: WorkdirNone})
	require.Error(t, err)

	var nf *toolchain.BinaryNotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, types.ToolBuilder, nf.Tool)
	assert.Equal(t, []string{missing}, nf.Attempted)
}

func TestExecute_RequiredWorkdirMustExist(t *testing.T) {
	sh := shell(t)
	e := New(Config{})

	_, err := e.Execute(context.Background(), sh, []string{"-c", "true"},
		Options{WorkingDirectory: filepath.Join(t.TempDir(), "nope"), WorkdirPolicy: WorkdirRequired})
	var fe *FailureError
	require.True(t, errors.As(err, &fe))
	assert.Contains(t, fe.Reason, "working directory not found")
}

func TestExecute_RequiredWorkdirIsUsed(t *testing.T) {
	sh := shell(t)
	dir := t.TempDir()
	e := New(Config{})

	res, err := e.Execute(context.Background(), sh, []string{"-c", "pwd -P"},
		Options{WorkingDirectory: dir, WorkdirPolicy: WorkdirRequired})
	require.NoError(t, err)

	want, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	assert.Equal(t, want, strings.TrimSpace(res.Stdout))
	assert.False(t, res.FellBack)
}

const manifestScript = `test -f foundry.toml || { echo "Error: could not find foundry.toml in any parent directory" >&2; exit 1; }; echo ok`

func TestExecute_AutoFallsBackOnMissingManifest(t *testing.T) {
	sh := shell(t)
	project := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(project, "foundry.toml"), []byte("[profile.default]\n"), 0o644))

	rec := &auditRecorder{}
	e := New(Config{})
	e.SetAuditCallback(rec.record)

	res, err := e.Execute(context.Background(), sh, []string{"-c", manifestScript},
		Options{WorkingDirectory: project, WorkdirPolicy: WorkdirAuto})
	require.NoError(t, err)
	assert.Equal(t, "ok\n", res.Stdout)
	assert.True(t, res.FellBack)
	assert.Equal(t, project, res.WorkingDirectory)
	assert.Len(t, rec.types(), 4)
}

func TestExecute_AutoDoesNotRetryUnrelatedFailure(t *testing.T) {
	sh := shell(t)
	rec := &auditRecorder{}
	e := New(Config{})
	e.SetAuditCallback(rec.record)

	_, err := e.Execute(context.Background(), sh, []string{"-c", "echo 'Compiler error: unexpected token' >&2; exit 1"},
		Options{WorkingDirectory: t.TempDir(), WorkdirPolicy: WorkdirAuto})
	var fe *FailureError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 1, fe.ExitCode)
	assert.Equal(t, []AuditEventType{AuditEventStart, AuditEventComplete}, rec.types())
}

func TestExecute_AutoWithoutDirectoryDoesNotRetry(t *testing.T) {
	sh := shell(t)
	e := New(Config{})

	_, err := e.Execute(context.Background(), sh, []string{"-c", manifestScript},
		Options{WorkdirPolicy: WorkdirAuto})
	assert.True(t, errors.Is(err, ErrFailure))
}

func TestExecute_EnvironmentIsControlled(t *testing.T) {
	sh := shell(t)
	t.Setenv("LEDGERDEV_TEST_SECRET", "leak")
	managerDir := t.TempDir()

	e := New(Config{AllowedEnv: []string{"PATH"}, ManagerBinDir: managerDir})
	res, err := e.Execute(context.Background(), sh,
		[]string{"-c", `echo "$PATH"; echo "[$LEDGERDEV_TEST_SECRET]"; echo "$FOUNDRY_PROFILE"`},
		Options{WorkdirPolicy: WorkdirNone, Env: []string{"FOUNDRY_PROFILE=ci"}})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(res.Stdout), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], managerDir+string(os.PathListSeparator)))
	assert.Equal(t, "[]", lines[1])
	assert.Equal(t, "ci", lines[2])
}

func TestExecute_ParentCancellation(t *testing.T) {
	sleep, err := exec.LookPath("sleep")
	if err != nil {
		t.Skip("sleep not available")
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err = New(Config{}).Execute(ctx, sleep, []string{"5"}, Options{WorkdirPolicy: WorkdirNone})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, ErrTimeout))
}

func TestTimeoutFor(t *testing.T) {
	e := New(Config{DefaultTimeout: time.Second, MaxTimeout: time.Minute})
	assert.Equal(t, time.Second, e.timeoutFor(0))
	assert.Equal(t, 5*time.Second, e.timeoutFor(5*time.Second))
	assert.Equal(t, time.Minute, e.timeoutFor(time.Hour))
}
