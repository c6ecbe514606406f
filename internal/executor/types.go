// Package executor runs a resolved binary as a direct argv under a controlled
// environment: bounded time, bounded output, allowlisted environment.
package executor

import (
	"time"

	"ledgerdev/internal/types"
)

// WorkdirPolicy decides which working directory a command runs in.
type WorkdirPolicy string

const (
	// WorkdirRequired always runs in the configured directory (build, test, script).
	WorkdirRequired WorkdirPolicy = "required"

	// WorkdirNone never sets a directory (version probes).
	WorkdirNone WorkdirPolicy = "none"

	// WorkdirAuto runs without a directory first and retries in the configured
	// directory only when the failure looks like a missing file or manifest.
	WorkdirAuto WorkdirPolicy = "auto"
)

// Options are the per-call execution settings.
type Options struct {
	// Tool and Subcommand label audit events and not-found errors. Optional.
	Tool       types.Tool
	Subcommand string

	WorkingDirectory string
	WorkdirPolicy    WorkdirPolicy

	// Timeout of zero uses Config.DefaultTimeout; values above Config.MaxTimeout are capped.
	Timeout time.Duration

	// Env entries in KEY=VALUE form, applied over the allowlisted passthrough.
	Env []string

	// RequestID is generated when empty.
	RequestID string
}

// Result is the buffered output of a successful run.
type Result struct {
	RequestID        string        `json:"request_id"`
	Stdout           string        `json:"stdout"`
	Stderr           string        `json:"stderr"`
	ExitCode         int           `json:"exit_code"`
	Duration         time.Duration `json:"duration"`
	WorkingDirectory string        `json:"working_directory,omitempty"`

	// FellBack is set when WorkdirAuto retried in the explicit directory.
	FellBack bool `json:"fell_back,omitempty"`
}

// Config holds executor-wide defaults.
type Config struct {
	DefaultTimeout time.Duration
	MaxTimeout     time.Duration

	// MaxOutputBytes caps stdout and stderr combined.
	MaxOutputBytes int64

	// DefaultWorkingDir is used when a call names no directory.
	DefaultWorkingDir string

	// AllowedEnv lists variables copied from the parent environment.
	AllowedEnv []string

	// ManagerBinDir is prepended to PATH.
	ManagerBinDir string

	// WaitDelay bounds how long Wait blocks on pipes held by orphaned grandchildren.
	WaitDelay time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		DefaultTimeout:    60 * time.Second,
		MaxTimeout:        10 * time.Minute,
		MaxOutputBytes:    10 * 1024 * 1024,
		DefaultWorkingDir: ".",
		AllowedEnv:        []string{"PATH", "HOME", "USER", "LANG", "LC_ALL", "TMPDIR"},
		WaitDelay:         2 * time.Second,
	}
}

// AuditEventType categorizes audit events.
type AuditEventType string

const (
	AuditEventStart    AuditEventType = "start"
	AuditEventComplete AuditEventType = "complete"
	AuditEventKilled   AuditEventType = "killed"
	AuditEventError    AuditEventType = "error"
)

// AuditEvent describes one execution. Argument values are never included.
type AuditEvent struct {
	Type             AuditEventType
	Timestamp        time.Time
	RequestID        string
	Tool             types.Tool
	Subcommand       string
	Binary           string
	ArgCount         int
	WorkingDirectory string
	ExitCode         int
	Duration         time.Duration
	Reason           string
}
