package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"

	"ledgerdev/internal/logging"
	"ledgerdev/internal/toolchain"
)

// missingManifest matches output that means "wrong working directory" rather than a tool error.
var missingManifest = regexp.MustCompile(
	`(?i)no such file or directory|foundry\.toml|could not find|failed to find project root|ENOENT`)

// Executor runs binaries directly on the host, never through a shell.
type Executor struct {
	mu     sync.RWMutex
	config Config

	auditCallback func(AuditEvent)
}

// New creates an executor with cfg; zero fields fall back to DefaultConfig.
func New(cfg Config) *Executor {
	def := DefaultConfig()
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = def.DefaultTimeout
	}
	if cfg.MaxTimeout <= 0 {
		cfg.MaxTimeout = def.MaxTimeout
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = def.MaxOutputBytes
	}
	if cfg.DefaultWorkingDir == "" {
		cfg.DefaultWorkingDir = def.DefaultWorkingDir
	}
	if cfg.WaitDelay <= 0 {
		cfg.WaitDelay = def.WaitDelay
	}
	logging.ExecutorDebug("creating executor: timeout=%s max=%s maxOutput=%d bytes",
		cfg.DefaultTimeout, cfg.MaxTimeout, cfg.MaxOutputBytes)
	return &Executor{config: cfg}
}

// Config returns the effective configuration.
func (e *Executor) Config() Config { return e.config }

// SetAuditCallback sets the callback for audit events.
func (e *Executor) SetAuditCallback(callback func(AuditEvent)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.auditCallback = callback
}

func (e *Executor) emitAudit(event AuditEvent) {
	e.mu.RLock()
	callback := e.auditCallback
	e.mu.RUnlock()

	if callback != nil {
		callback(event)
	}
}

// Execute runs path with args and returns its buffered output.
//
// Errors: *TimeoutError after the child was killed, *FailureError for a non-zero
// exit or an output overflow, *toolchain.BinaryNotFoundError when path vanished.
func (e *Executor) Execute(ctx context.Context, path string, args []string, opts Options) (*Result, error) {
	if opts.RequestID == "" {
		opts.RequestID = uuid.NewString()
	}
	timeout := e.timeoutFor(opts.Timeout)

	switch opts.WorkdirPolicy {
	case WorkdirNone:
		return e.run(ctx, path, args, "", timeout, opts)
	case WorkdirAuto:
		res, err := e.run(ctx, path, args, "", timeout, opts)
		if err == nil || opts.WorkingDirectory == "" || !isMissingManifest(err) {
			return res, err
		}
		logging.Executor("retrying %s in %s after missing-file failure", path, opts.WorkingDirectory)
		res, err = e.run(ctx, path, args, opts.WorkingDirectory, timeout, opts)
		if res != nil {
			res.FellBack = true
		}
		return res, err
	default:
		dir := opts.WorkingDirectory
		if dir == "" {
			dir = e.config.DefaultWorkingDir
		}
		return e.run(ctx, path, args, dir, timeout, opts)
	}
}

func (e *Executor) timeoutFor(requested time.Duration) time.Duration {
	if requested <= 0 {
		return e.config.DefaultTimeout
	}
	if requested > e.config.MaxTimeout {
		logging.ExecutorWarn("timeout %s capped to %s", requested, e.config.MaxTimeout)
		return e.config.MaxTimeout
	}
	return requested
}

func isMissingManifest(err error) bool {
	var fe *FailureError
	if !errors.As(err, &fe) || fe.Reason == ReasonOutputLimit {
		return false
	}
	return missingManifest.MatchString(fe.Stderr) || missingManifest.MatchString(fe.Stdout)
}

func (e *Executor) run(ctx context.Context, path string, args []string, dir string, timeout time.Duration, opts Options) (*Result, error) {
	timer := logging.StartTimer(logging.CategoryExecutor, "execute "+path)
	defer timer.Stop()

	event := AuditEvent{
		RequestID:        opts.RequestID,
		Tool:             opts.Tool,
		Subcommand:       opts.Subcommand,
		Binary:           path,
		ArgCount:         len(args),
		WorkingDirectory: dir,
	}

	if dir != "" {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			fe := &FailureError{Binary: path, ExitCode: -1, Reason: "working directory not found: " + dir}
			e.emitError(event, fe.Reason)
			return nil, fe
		}
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	capped := newCapWriter(e.config.MaxOutputBytes, cancel)

	cmd := exec.CommandContext(execCtx, path, args...)
	cmd.Dir = dir
	cmd.Env = BuildEnv(e.config.AllowedEnv, e.config.ManagerBinDir, opts.Env)
	cmd.Stdout = capped.stream(&stdout)
	cmd.Stderr = capped.stream(&stderr)
	setupProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = e.config.WaitDelay

	logging.ExecutorDebug("exec %s argc=%d dir=%q timeout=%s request=%s", path, len(args), dir, timeout, opts.RequestID)

	event.Type = AuditEventStart
	event.Timestamp = time.Now()
	e.emitAudit(event)

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)
	event.Duration = elapsed

	pid := 0
	if cmd.Process != nil {
		pid = cmd.Process.Pid
	}

	switch {
	case err == nil && !capped.exceeded():
		res := &Result{
			RequestID:        opts.RequestID,
			Stdout:           stdout.String(),
			Stderr:           stderr.String(),
			ExitCode:         0,
			Duration:         elapsed,
			WorkingDirectory: dir,
		}
		event.Type = AuditEventComplete
		event.Timestamp = time.Now()
		e.emitAudit(event)
		logging.Executor("completed %s in %s (stdout=%d bytes)", path, elapsed, len(res.Stdout))
		return res, nil

	case capped.exceeded():
		logging.ExecutorWarn("killed %s: %s (%d bytes)", path, ReasonOutputLimit, e.config.MaxOutputBytes)
		event.Type = AuditEventKilled
		event.Reason = ReasonOutputLimit
		event.ExitCode = -1
		event.Timestamp = time.Now()
		e.emitAudit(event)
		return nil, &FailureError{
			Binary:   path,
			ExitCode: -1,
			Stdout:   stdout.String(),
			Stderr:   stderr.String(),
			Reason:   ReasonOutputLimit,
		}

	case errors.Is(execCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		logging.ExecutorWarn("killed %s: timeout after %s", path, timeout)
		event.Type = AuditEventKilled
		event.Reason = fmt.Sprintf("timeout after %s", timeout)
		event.ExitCode = -1
		event.Timestamp = time.Now()
		e.emitAudit(event)
		return nil, &TimeoutError{Binary: path, Timeout: timeout, PID: pid}

	case ctx.Err() != nil:
		event.Type = AuditEventKilled
		event.Reason = ctx.Err().Error()
		event.ExitCode = -1
		event.Timestamp = time.Now()
		e.emitAudit(event)
		return nil, fmt.Errorf("execution of %s interrupted: %w", path, ctx.Err())
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		logging.ExecutorDebug("%s exited with code %d", path, code)
		event.Type = AuditEventComplete
		event.ExitCode = code
		event.Timestamp = time.Now()
		e.emitAudit(event)
		return nil, &FailureError{
			Binary:   path,
			ExitCode: code,
			Stdout:   stdout.String(),
			Stderr:   stderr.String(),
		}
	}

	if errors.Is(err, fs.ErrNotExist) {
		logging.ExecutorWarn("%s disappeared before exec", path)
		e.emitError(event, "binary not found")
		return nil, &toolchain.BinaryNotFoundError{Tool: opts.Tool, Binary: path, Attempted: []string{path}}
	}

	logging.ExecutorError("failed to run %s: %v", path, err)
	e.emitError(event, err.Error())
	return nil, &FailureError{Binary: path, ExitCode: -1, Stdout: stdout.String(), Stderr: stderr.String(), Reason: err.Error()}
}

func (e *Executor) emitError(event AuditEvent, reason string) {
	event.Type = AuditEventError
	event.Reason = reason
	event.ExitCode = -1
	event.Timestamp = time.Now()
	e.emitAudit(event)
}
