//go:build !windows

package node

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedRunner struct {
	calls  [][]string
	stdout string
	code   int
	err    error
}

func (r *scriptedRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, int, error) {
	r.calls = append(r.calls, append([]string{name}, args...))
	return []byte(r.stdout), nil, r.code, r.err
}

func TestPgrepScanner_ParsesAndExcludesSelf(t *testing.T) {
	self := strconv.Itoa(os.Getpid())
	r := &scriptedRunner{stdout: "4321\n" + self + "\n17\nnot-a-pid\n"}
	pids, err := NewPgrepScanner(r).Find(context.Background(), "anvil")
	require.NoError(t, err)
	assert.Equal(t, []int{17, 4321}, pids)
	assert.Equal(t, []string{"pgrep", "-f", "anvil"}, r.calls[0])
}

// exitStatus returns a real *exec.ExitError carrying code.
func exitStatus(t *testing.T, code int) error {
	t.Helper()
	err := exec.Command("/bin/sh", "-c", "exit "+strconv.Itoa(code)).Run()
	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)
	return err
}

func TestPgrepScanner_NoMatch(t *testing.T) {
	r := &scriptedRunner{code: 1, err: exitStatus(t, 1)}
	pids, err := NewPgrepScanner(r).Find(context.Background(), "anvil")
	require.NoError(t, err)
	assert.Empty(t, pids)
}

func TestPgrepScanner_RealFailure(t *testing.T) {
	r := &scriptedRunner{code: 2, err: exitStatus(t, 2)}
	_, err := NewPgrepScanner(r).Find(context.Background(), "(")
	assert.Error(t, err)
}

func TestPgrepScanner_HelperNotStartedIsNotNoMatch(t *testing.T) {
	// Exit code 1 without a process exit must not read as an empty process table.
	r := &scriptedRunner{code: 1, err: errors.New("fork/exec /usr/bin/pgrep: resource temporarily unavailable")}
	pids, err := NewPgrepScanner(r).Find(context.Background(), "anvil")
	assert.Error(t, err)
	assert.Nil(t, pids)
}

func TestPgrepScanner_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pids, err := NewPgrepScanner(nil).Find(ctx, "anvil")
	assert.Error(t, err)
	assert.Nil(t, pids)
}

func TestExecRunner_NonExecutableHelper(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pgrep")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o644))

	_, _, code, err := ExecRunner{}.Run(context.Background(), path, "-f", "anvil")
	assert.Error(t, err)
	assert.Equal(t, -1, code)

	pids, err := NewPgrepScanner(fixedPathRunner{path: path}).Find(context.Background(), "anvil")
	assert.Error(t, err)
	assert.Nil(t, pids)
}

// fixedPathRunner runs path in place of the requested helper name.
type fixedPathRunner struct{ path string }

func (r fixedPathRunner) Run(ctx context.Context, _ string, args ...string) ([]byte, []byte, int, error) {
	return ExecRunner{}.Run(ctx, r.path, args...)
}

func TestUnixSignaler_KillPatternFailsWhenHelperCannotRun(t *testing.T) {
	r := &scriptedRunner{code: -1, err: context.Canceled}
	assert.Error(t, NewUnixSignaler(r).KillPattern(context.Background(), "anvil", syscall.SIGKILL))
}

func TestUnixSignaler_KillPattern(t *testing.T) {
	r := &scriptedRunner{code: 1, err: exitStatus(t, 1)}
	s := NewUnixSignaler(r)
	require.NoError(t, s.KillPattern(context.Background(), "anvil", syscall.SIGKILL))
	assert.Equal(t, []string{"pkill", "-9", "-f", "anvil"}, r.calls[0])
}

func TestUnixSignaler_SendToExitedProcess(t *testing.T) {
	cmd := exec.Command("true")
	if err := cmd.Run(); err != nil {
		t.Skip("true not available")
	}
	assert.NoError(t, NewUnixSignaler(nil).Send(cmd.Process.Pid, syscall.SIGTERM))
}

func TestExecRunner_ExitCodes(t *testing.T) {
	_, _, code, err := ExecRunner{}.Run(context.Background(), "sh", "-c", "exit 4")
	assert.Error(t, err)
	assert.Equal(t, 4, code)

	_, _, code, err = ExecRunner{}.Run(context.Background(), "ledgerdev-no-such-helper")
	assert.Error(t, err)
	assert.Equal(t, 127, code)
}

func TestDetachedSpawner_WritesLogAndReleases(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "daemon.log")
	s := &DetachedSpawner{LogFile: logFile}

	pid, err := s.Spawn(context.Background(), "/bin/sh", []string{"-c", "echo listening"})
	require.NoError(t, err)
	assert.Positive(t, pid)

	assert.Eventually(t, func() bool {
		data, err := os.ReadFile(logFile)
		return err == nil && string(data) == "listening\n"
	}, 2*time.Second, 20*time.Millisecond)
}

func TestDetachedSpawner_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := (&DetachedSpawner{}).Spawn(ctx, "/bin/sh", nil)
	assert.ErrorIs(t, err, context.Canceled)
}
