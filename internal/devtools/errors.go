package devtools

import (
	"errors"

	"ledgerdev/internal/executor"
	"ledgerdev/internal/node"
	"ledgerdev/internal/sandbox"
	"ledgerdev/internal/toolchain"
	"ledgerdev/internal/types"
)

// Error kinds reported in ErrorDetails.
const (
	KindCommandRejected = "command_rejected"
	KindSanitization    = "sanitization_failure"
	KindBinaryNotFound  = "binary_not_found"
	KindTimeout         = "execution_timeout"
	KindFailure         = "execution_failure"
	KindKillFailure     = "process_kill_failure"
	KindStartFailure    = "daemon_start_failure"
	KindInvalidRequest  = "invalid_request"
	KindInternal        = "internal"
)

// AttemptedCommand identifies a command without its argument values.
type AttemptedCommand struct {
	Tool       types.Tool `json:"tool"`
	Subcommand string     `json:"subcommand"`
	ArgCount   int        `json:"arg_count"`
}

// ErrorDetails is the structured part of a failure.
type ErrorDetails struct {
	Kind           string            `json:"kind"`
	Command        *AttemptedCommand `json:"command,omitempty"`
	AttemptedPaths []string          `json:"attempted_paths,omitempty"`
	Survivors      []int             `json:"survivors,omitempty"`
	ExitCode       *int              `json:"exit_code,omitempty"`
	Position       *int              `json:"position,omitempty"`
	Reason         string            `json:"reason,omitempty"`
	Allowed        []string          `json:"allowed_subcommands,omitempty"`
	TimeoutMs      int64             `json:"timeout_ms,omitempty"`
}

// failure maps a typed error to a Response. Tool output of a failed run is passed through.
func failure(err error, attempted *AttemptedCommand) Response {
	resp := Response{Success: false, Error: err.Error()}
	d := &ErrorDetails{Kind: KindInternal, Command: attempted}

	var (
		rejected  *sandbox.CommandRejectedError
		sanitize  *sandbox.SanitizationError
		notFound  *toolchain.BinaryNotFoundError
		timeout   *executor.TimeoutError
		failed    *executor.FailureError
		killFail  *node.KillFailureError
		startFail *node.StartError
	)
	switch {
	case errors.As(err, &rejected):
		d.Kind = KindCommandRejected
		d.Allowed = rejected.Allowed
	case errors.As(err, &sanitize):
		d.Kind = KindSanitization
		d.Position = &sanitize.Position
		d.Reason = sanitize.Reason
	case errors.As(err, &notFound):
		d.Kind = KindBinaryNotFound
		d.AttemptedPaths = notFound.Attempted
	case errors.As(err, &timeout):
		d.Kind = KindTimeout
		d.TimeoutMs = timeout.Timeout.Milliseconds()
	case errors.As(err, &failed):
		d.Kind = KindFailure
		code := failed.ExitCode
		d.ExitCode = &code
		d.Reason = failed.Reason
		resp.Stdout = failed.Stdout
		resp.Stderr = failed.Stderr
	case errors.As(err, &killFail):
		d.Kind = KindKillFailure
		d.Survivors = killFail.Survivors
		if killFail.StillHealthy {
			d.Reason = "endpoint still healthy after stop"
		}
	case errors.As(err, &startFail):
		d.Kind = KindStartFailure
		d.Survivors = startFail.PIDs
		d.Reason = startFail.Reason
	case attempted == nil:
		d.Kind = KindInvalidRequest
	}
	resp.Details = d
	return resp
}
