// Package devtools turns developer-panel operations into validated tool
// invocations and daemon lifecycle calls.
package devtools

import (
	"context"
	"errors"
	"time"

	"ledgerdev/internal/executor"
	"ledgerdev/internal/logging"
	"ledgerdev/internal/sandbox"
	"ledgerdev/internal/toolchain"
	"ledgerdev/internal/types"
)

// CommandRequest is one one-shot tool invocation. It is never mutated; Run works on copies.
type CommandRequest struct {
	Tool             types.Tool
	Subcommand       string
	Args             []string
	WorkingDirectory string
	Timeout          time.Duration
	Env              map[string]string

	// WorkdirPolicy defaults per tool when empty.
	WorkdirPolicy executor.WorkdirPolicy
}

// BinaryResolver is the subset of *toolchain.Resolver the runner needs.
type BinaryResolver interface {
	Resolve(ctx context.Context, tool types.Tool) (string, error)
	Invalidate(tool types.Tool)
}

// Runner validates, resolves and executes one-shot commands.
type Runner struct {
	allowlist *sandbox.Allowlist
	resolver  BinaryResolver
	executor  *executor.Executor
}

// NewRunner creates a runner.
func NewRunner(allowlist *sandbox.Allowlist, resolver BinaryResolver, exec *executor.Executor) *Runner {
	return &Runner{allowlist: allowlist, resolver: resolver, executor: exec}
}

// Run checks the allowlist, sanitizes, resolves the binary and executes.
// A late not-found evicts the cached path so the next call re-resolves.
func (r *Runner) Run(ctx context.Context, req CommandRequest) (*executor.Result, error) {
	if err := r.allowlist.Check(req.Tool, req.Subcommand); err != nil {
		logging.SandboxWarn("rejected %s %q", req.Tool, req.Subcommand)
		return nil, err
	}
	if req.Tool == types.ToolNodeDaemon {
		// Lifecycle verbs are handled by the node manager, never passed as argv.
		return nil, &sandbox.CommandRejectedError{Tool: req.Tool, Subcommand: req.Subcommand}
	}

	args, err := sandbox.Sanitize(req.Args)
	if err != nil {
		logging.SandboxWarn("sanitization failed for %s %s: %v", req.Tool, req.Subcommand, err)
		return nil, err
	}
	env, err := sandbox.SanitizeEnv(req.Env)
	if err != nil {
		return nil, err
	}
	logging.Sandbox("accepted %s %s args=%d env=%d", req.Tool, req.Subcommand, len(args), len(env))

	path, err := r.resolver.Resolve(ctx, req.Tool)
	if err != nil {
		return nil, err
	}

	argv := make([]string, 0, len(args)+1)
	argv = append(argv, req.Subcommand)
	argv = append(argv, args...)

	policy := req.WorkdirPolicy
	if policy == "" {
		policy = DefaultWorkdirPolicy(req.Tool)
	}

	res, err := r.executor.Execute(ctx, path, argv, executor.Options{
		Tool:             req.Tool,
		Subcommand:       req.Subcommand,
		WorkingDirectory: req.WorkingDirectory,
		WorkdirPolicy:    policy,
		Timeout:          req.Timeout,
		Env:              env,
	})
	var notFound *toolchain.BinaryNotFoundError
	if errors.As(err, &notFound) {
		r.resolver.Invalidate(req.Tool)
	}
	return res, err
}

// DefaultWorkdirPolicy is Required for the builder and Auto for everything else.
func DefaultWorkdirPolicy(tool types.Tool) executor.WorkdirPolicy {
	if tool == types.ToolBuilder {
		return executor.WorkdirRequired
	}
	return executor.WorkdirAuto
}
