package devtools

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"ledgerdev/internal/executor"
	"ledgerdev/internal/logging"
	"ledgerdev/internal/node"
	"ledgerdev/internal/sandbox"
	"ledgerdev/internal/types"
)

// Operation names the fixed set of developer-panel actions.
type Operation string

const (
	OpBuild             Operation = "build"
	OpTest              Operation = "test"
	OpReadonlyCall      Operation = "readonly-call"
	OpStateChangingCall Operation = "state-changing-call"
	OpDaemonStart       Operation = "daemon-start"
	OpDaemonStop        Operation = "daemon-stop"
	OpDaemonRestart     Operation = "daemon-restart"
	OpHealthCheck       Operation = "health-check"
)

// Operations lists every supported operation.
var Operations = []Operation{
	OpBuild, OpTest, OpReadonlyCall, OpStateChangingCall,
	OpDaemonStart, OpDaemonStop, OpDaemonRestart, OpHealthCheck,
}

// Request is the structured input of one operation. Upstream schema validation
// is not trusted; every invariant is re-checked here.
type Request struct {
	Operation Operation `json:"operation"`

	// Subcommand selects a read for readonly-call (call, chain-id, block-number,
	// balance, receipt). Defaults to call.
	Subcommand string `json:"subcommand,omitempty"`

	Args             []string          `json:"args,omitempty"`
	WorkingDirectory string            `json:"working_directory,omitempty"`
	TimeoutMs        int64             `json:"timeout_ms,omitempty"`
	Env              map[string]string `json:"env,omitempty"`
}

// Response is the result of one operation.
type Response struct {
	Success   bool          `json:"success"`
	Stdout    string        `json:"stdout,omitempty"`
	Stderr    string        `json:"stderr,omitempty"`
	Summary   *Summary      `json:"summary,omitempty"`
	Error     string        `json:"error,omitempty"`
	Details   *ErrorDetails `json:"details,omitempty"`
	Health    *HealthReport `json:"health,omitempty"`
	Lifecycle interface{}   `json:"lifecycle,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
}

// LifecycleManager is the daemon manager surface used by the service.
type LifecycleManager interface {
	Start(ctx context.Context) (*node.StartReport, error)
	Stop(ctx context.Context) (*node.StopReport, error)
	Restart(ctx context.Context) (*node.RestartReport, error)
	Status(ctx context.Context) (node.Status, error)
}

// Settings are the service's view of configuration.
type Settings struct {
	ProjectRoot  string
	RPCURL       string
	PrivateKey   string
	ProbeTimeout time.Duration
}

// Service dispatches operations.
type Service struct {
	settings  Settings
	allowlist *sandbox.Allowlist
	runner    *Runner
	resolver  BinaryResolver
	executor  *executor.Executor
	nodes     LifecycleManager
}

// NewService wires a service from its parts.
func NewService(settings Settings, allowlist *sandbox.Allowlist, resolver BinaryResolver, exec *executor.Executor, nodes LifecycleManager) *Service {
	if settings.ProbeTimeout <= 0 {
		settings.ProbeTimeout = 5 * time.Second
	}
	return &Service{
		settings:  settings,
		allowlist: allowlist,
		runner:    NewRunner(allowlist, resolver, exec),
		resolver:  resolver,
		executor:  exec,
		nodes:     nodes,
	}
}

// Runner exposes the underlying one-shot runner.
func (s *Service) Runner() *Runner { return s.runner }

// Do runs one operation. It never panics on bad input and always returns a Response.
func (s *Service) Do(ctx context.Context, req Request) Response {
	timer := logging.StartTimer(logging.CategoryAPI, "operation "+string(req.Operation))
	defer timer.Stop()

	timeout := time.Duration(req.TimeoutMs) * time.Millisecond
	if req.TimeoutMs < 0 {
		return failure(fmt.Errorf("timeout_ms must not be negative"), nil)
	}

	switch req.Operation {
	case OpBuild, OpTest:
		cmd := CommandRequest{
			Tool:             types.ToolBuilder,
			Subcommand:       string(req.Operation),
			Args:             req.Args,
			WorkingDirectory: s.workdir(req.WorkingDirectory),
			Timeout:          timeout,
			Env:              req.Env,
		}
		return s.runTool(ctx, cmd, func(res *executor.Result) *Summary {
			if req.Operation == OpTest {
				return summarizeTest(res.Stdout, res.Stderr)
			}
			return summarizeBuild(res.Stdout, res.Stderr)
		})

	case OpReadonlyCall:
		sub := req.Subcommand
		if sub == "" {
			sub = "call"
		}
		if sub == "send" {
			return failure(&sandbox.CommandRejectedError{Tool: types.ToolQueryClient, Subcommand: sub}, nil)
		}
		cmd := CommandRequest{
			Tool:             types.ToolQueryClient,
			Subcommand:       sub,
			Args:             append(append([]string(nil), req.Args...), "--rpc-url", s.settings.RPCURL),
			WorkingDirectory: s.workdir(req.WorkingDirectory),
			Timeout:          timeout,
			Env:              req.Env,
		}
		return s.runTool(ctx, cmd, func(res *executor.Result) *Summary { return summarizeCall(res.Stdout) })

	case OpStateChangingCall:
		if s.settings.PrivateKey == "" {
			return failure(errors.New("no signing key configured for state-changing calls"), nil)
		}
		args := append(append([]string(nil), req.Args...),
			"--rpc-url", s.settings.RPCURL, "--private-key", s.settings.PrivateKey)
		cmd := CommandRequest{
			Tool:             types.ToolQueryClient,
			Subcommand:       "send",
			Args:             args,
			WorkingDirectory: s.workdir(req.WorkingDirectory),
			Timeout:          timeout,
			Env:              req.Env,
		}
		resp := s.runTool(ctx, cmd, func(res *executor.Result) *Summary { return summarizeSend(res.Stdout) })
		if resp.Details != nil && resp.Details.Command != nil {
			// The appended flags are ours; report what the caller sent.
			resp.Details.Command.ArgCount = len(req.Args)
		}
		return resp

	case OpDaemonStart, OpDaemonStop, OpDaemonRestart:
		return s.lifecycle(ctx, req.Operation)

	case OpHealthCheck:
		report := s.Health(ctx)
		return Response{Success: true, Health: &report}
	}

	return failure(fmt.Errorf("unknown operation %q", req.Operation), nil)
}

func (s *Service) workdir(requested string) string {
	if requested != "" {
		return requested
	}
	return s.settings.ProjectRoot
}

func (s *Service) runTool(ctx context.Context, cmd CommandRequest, summarize func(*executor.Result) *Summary) Response {
	attempted := &AttemptedCommand{Tool: cmd.Tool, Subcommand: cmd.Subcommand, ArgCount: len(cmd.Args)}
	res, err := s.runner.Run(ctx, cmd)
	if err != nil {
		resp := failure(err, attempted)
		var failed *executor.FailureError
		if errors.As(err, &failed) && failed.Reason == "" {
			// A failing test run still has counts worth reporting.
			resp.Summary = summarize(&executor.Result{Stdout: failed.Stdout, Stderr: failed.Stderr})
		}
		return resp
	}
	return Response{
		Success:   true,
		Stdout:    res.Stdout,
		Stderr:    res.Stderr,
		Summary:   summarize(res),
		RequestID: res.RequestID,
	}
}

func (s *Service) lifecycle(ctx context.Context, op Operation) Response {
	verb := map[Operation]string{OpDaemonStart: "start", OpDaemonStop: "stop", OpDaemonRestart: "restart"}[op]
	attempted := &AttemptedCommand{Tool: types.ToolNodeDaemon, Subcommand: verb}
	if err := s.allowlist.Check(types.ToolNodeDaemon, verb); err != nil {
		return failure(err, attempted)
	}

	switch op {
	case OpDaemonStart:
		rep, err := s.nodes.Start(ctx)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				s.resolver.Invalidate(types.ToolNodeDaemon)
			}
			return failure(err, attempted)
		}
		return Response{Success: true, Lifecycle: rep, Summary: &Summary{PIDs: rep.PIDs, State: string(rep.State)}}

	case OpDaemonStop:
		rep, err := s.nodes.Stop(ctx)
		if err != nil {
			resp := failure(err, attempted)
			resp.Lifecycle = rep
			return resp
		}
		return Response{Success: true, Lifecycle: rep, Summary: &Summary{State: string(node.StateStopped)}}

	default:
		rep, err := s.nodes.Restart(ctx)
		if err != nil {
			resp := failure(err, attempted)
			resp.Lifecycle = rep
			return resp
		}
		resp := Response{Success: true, Lifecycle: rep}
		if rep.Start != nil {
			resp.Summary = &Summary{PIDs: rep.NewPIDs, State: string(rep.Start.State)}
		}
		return resp
	}
}
