//go:build !windows

package node

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"

	"ledgerdev/internal/logging"
)

// ProcessScanner lists PIDs whose command line matches pattern.
type ProcessScanner interface {
	Find(ctx context.Context, pattern string) ([]int, error)
}

// Signaler delivers signals. "No such process" is not an error.
type Signaler interface {
	Send(pid int, sig syscall.Signal) error
	KillPattern(ctx context.Context, pattern string, sig syscall.Signal) error
}

// Spawner starts the daemon detached and releases it.
type Spawner interface {
	Spawn(ctx context.Context, path string, args []string) (int, error)
}

// PgrepScanner finds processes with `pgrep -f`.
type PgrepScanner struct {
	Runner CommandRunner
}

// NewPgrepScanner creates a scanner backed by runner (ExecRunner when nil).
func NewPgrepScanner(runner CommandRunner) *PgrepScanner {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &PgrepScanner{Runner: runner}
}

// Find returns matching PIDs in ascending order, excluding this process.
// Only pgrep actually exiting 1 means no match; a helper that failed to run is an error.
func (s *PgrepScanner) Find(ctx context.Context, pattern string) ([]int, error) {
	stdout, stderr, code, err := s.Runner.Run(ctx, "pgrep", "-f", pattern)
	if exitedWith(err, 1) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pgrep failed (exit %d): %s: %w", code, strings.TrimSpace(string(stderr)), err)
	}
	return parsePIDs(string(stdout)), nil
}

func parsePIDs(out string) []int {
	self := os.Getpid()
	var pids []int
	for _, field := range strings.Fields(out) {
		pid, err := strconv.Atoi(field)
		if err != nil || pid <= 0 || pid == self {
			continue
		}
		pids = append(pids, pid)
	}
	sort.Ints(pids)
	return pids
}

// UnixSignaler signals with kill(2) and pattern-kills with `pkill -f`.
type UnixSignaler struct {
	Runner CommandRunner
}

// NewUnixSignaler creates a signaler backed by runner (ExecRunner when nil).
func NewUnixSignaler(runner CommandRunner) *UnixSignaler {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &UnixSignaler{Runner: runner}
}

// Send signals pid, swallowing ESRCH.
func (s *UnixSignaler) Send(pid int, sig syscall.Signal) error {
	if err := unix.Kill(pid, sig); err != nil {
		if errors.Is(err, unix.ESRCH) {
			logging.NodeDebug("pid %d already gone", pid)
			return nil
		}
		return fmt.Errorf("signal %s to %d: %w", unix.SignalName(sig), pid, err)
	}
	return nil
}

// KillPattern signals every process matching pattern. No match is not an error.
func (s *UnixSignaler) KillPattern(ctx context.Context, pattern string, sig syscall.Signal) error {
	_, stderr, code, err := s.Runner.Run(ctx, "pkill", "-"+strconv.Itoa(int(sig)), "-f", pattern)
	if exitedWith(err, 1) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("pkill failed (exit %d): %s: %w", code, strings.TrimSpace(string(stderr)), err)
	}
	return nil
}

// DetachedSpawner starts the daemon in its own session with output appended to LogFile.
type DetachedSpawner struct {
	LogFile string
	Env     []string
}

// Spawn starts path and releases the handle; the daemon outlives ctx.
func (s *DetachedSpawner) Spawn(ctx context.Context, path string, args []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	out, err := os.OpenFile(s.logPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open daemon log: %w", err)
	}
	defer out.Close()

	cmd := exec.Command(path, args...)
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.Env = s.Env
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		logging.NodeWarn("release of pid %d failed: %v", pid, err)
	}
	return pid, nil
}

func (s *DetachedSpawner) logPath() string {
	if s.LogFile != "" {
		return s.LogFile
	}
	return os.DevNull
}
