//go:build !windows

package devtools

import (
	"context"
	"time"

	"ledgerdev/internal/config"
	"ledgerdev/internal/executor"
	"ledgerdev/internal/logging"
	"ledgerdev/internal/node"
	"ledgerdev/internal/sandbox"
	"ledgerdev/internal/store"
	"ledgerdev/internal/toolchain"
	"ledgerdev/internal/types"
)

// Stack is every component built from one configuration.
type Stack struct {
	Config   *config.Config
	Resolver *toolchain.Resolver
	Executor *executor.Executor
	Nodes    *node.Manager
	Store    *store.LocalStore
	Service  *Service
}

// Build wires the full stack from cfg. The audit store is opened when enabled.
func Build(cfg *config.Config) (*Stack, error) {
	resolver := toolchain.NewResolver(toolchain.Config{
		ManagerBinDir: cfg.Toolchain.ManagerBinDir,
		ExtraDirs:     cfg.Toolchain.ExtraSearchDirs,
		ProbeTimeout:  cfg.GetVersionProbeTimeout(),
	})

	exec := executor.New(executor.Config{
		DefaultTimeout:    cfg.GetExecutionTimeout(),
		MaxTimeout:        cfg.GetMaxTimeout(),
		MaxOutputBytes:    cfg.Execution.MaxOutputBytes,
		DefaultWorkingDir: cfg.Project.Root,
		AllowedEnv:        cfg.Execution.AllowedEnvVars,
		ManagerBinDir:     cfg.Toolchain.ManagerBinDir,
	})

	var st *store.LocalStore
	if cfg.Audit.Enabled {
		var err error
		st, err = store.NewLocalStore(cfg.Audit.DatabasePath)
		if err != nil {
			return nil, err
		}
		exec.SetAuditCallback(executionRecorder(st))
	}

	nodeOpts := []node.Option{}
	if st != nil {
		nodeOpts = append(nodeOpts, node.WithEventHandler(lifecycleRecorder(st)))
	}
	nodes := node.NewManager(
		node.Config{
			Binary:             types.ToolNodeDaemon.Binary(),
			Host:               cfg.Node.Host,
			Port:               cfg.Node.Port,
			ChainID:            cfg.Node.ChainID,
			ExtraArgs:          cfg.Node.ExtraArgs,
			SettleInterval:     cfg.GetSettleInterval(),
			StopSettleInterval: cfg.GetStopSettleInterval(),
			StartupProbes:      cfg.Node.StartupProbes,
			ProbeInterval:      cfg.GetProbeInterval(),
			StartGrace:         cfg.GetStartGrace(),
		},
		node.NewPgrepScanner(nil),
		node.NewUnixSignaler(nil),
		node.NewRPCProbe(cfg.Node.ChainID, cfg.GetProbeTimeout()),
		&node.DetachedSpawner{
			LogFile: cfg.Node.LogFile,
			Env:     executor.BuildEnv(cfg.Execution.AllowedEnvVars, cfg.Toolchain.ManagerBinDir, nil),
		},
		func(ctx context.Context) (string, error) {
			return resolver.Resolve(ctx, types.ToolNodeDaemon)
		},
		nodeOpts...,
	)

	svc := NewService(Settings{
		ProjectRoot:  cfg.Project.Root,
		RPCURL:       cfg.RPCURL(),
		PrivateKey:   cfg.QueryClient.PrivateKey,
		ProbeTimeout: cfg.GetVersionProbeTimeout(),
	}, sandbox.DefaultAllowlist(), resolver, exec, nodes)

	return &Stack{Config: cfg, Resolver: resolver, Executor: exec, Nodes: nodes, Store: st, Service: svc}, nil
}

// Close releases the audit store.
func (s *Stack) Close() error {
	if s.Store != nil {
		return s.Store.Close()
	}
	return nil
}

// executionRecorder persists executor audit events.
func executionRecorder(st *store.LocalStore) func(executor.AuditEvent) {
	return func(ev executor.AuditEvent) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		err := st.RecordExecution(ctx, store.ExecutionRecord{
			RequestID:        ev.RequestID,
			Tool:             string(ev.Tool),
			Subcommand:       ev.Subcommand,
			Binary:           ev.Binary,
			ArgCount:         ev.ArgCount,
			WorkingDirectory: ev.WorkingDirectory,
			Event:            string(ev.Type),
			ExitCode:         ev.ExitCode,
			Duration:         ev.Duration,
			Reason:           ev.Reason,
			CreatedAt:        ev.Timestamp,
		})
		if err != nil {
			logging.AuditWarn("dropping execution event %s: %v", ev.RequestID, err)
		}
	}
}

func lifecycleRecorder(st *store.LocalStore) func(node.LifecycleEvent) {
	return func(ev node.LifecycleEvent) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		err := st.RecordLifecycle(ctx, store.LifecycleRecord{
			Operation: ev.Operation,
			Outcome:   ev.Outcome,
			PIDs:      ev.PIDs,
			Detail:    ev.Detail,
			CreatedAt: ev.Timestamp,
		})
		if err != nil {
			logging.AuditWarn("dropping lifecycle event %s: %v", ev.Operation, err)
		}
	}
}
