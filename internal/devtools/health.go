package devtools

import (
	"context"
	"errors"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"ledgerdev/internal/executor"
	"ledgerdev/internal/node"
	"ledgerdev/internal/toolchain"
	"ledgerdev/internal/types"
)

// ToolHealth is the version-probe outcome for one tool.
type ToolHealth struct {
	Tool      types.Tool `json:"tool"`
	Binary    string     `json:"binary"`
	Path      string     `json:"path,omitempty"`
	Available bool       `json:"available"`
	Version   string     `json:"version,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// HealthReport keeps daemon process existence and daemon health as separate facts.
type HealthReport struct {
	Tools                []ToolHealth `json:"tools"`
	DaemonProcessRunning bool         `json:"daemon_process_running"`
	DaemonHealthy        bool         `json:"daemon_healthy"`
	DaemonState          node.State   `json:"daemon_state,omitempty"`
	DaemonPIDs           []int        `json:"daemon_pids,omitempty"`
	Endpoint             string       `json:"endpoint,omitempty"`
	Warnings             []string     `json:"warnings,omitempty"`
}

// OK reports every tool available and the daemon healthy.
func (h HealthReport) OK() bool {
	for _, t := range h.Tools {
		if !t.Available {
			return false
		}
	}
	return h.DaemonHealthy && len(h.Warnings) == 0
}

// Health probes every tool's version concurrently and observes the daemon.
func (s *Service) Health(ctx context.Context) HealthReport {
	report := HealthReport{Tools: make([]ToolHealth, len(types.AllTools))}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for i, tool := range types.AllTools {
		i, tool := i, tool
		g.Go(func() error {
			th := s.probeTool(gctx, tool)
			mu.Lock()
			report.Tools[i] = th
			mu.Unlock()
			return nil
		})
	}
	g.Go(func() error {
		st, err := s.nodes.Status(gctx)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			report.Warnings = append(report.Warnings, "daemon status unavailable: "+err.Error())
			return nil
		}
		report.DaemonProcessRunning = st.Running()
		report.DaemonHealthy = st.Healthy
		report.DaemonState = st.State
		report.DaemonPIDs = st.PIDs
		report.Endpoint = st.Endpoint
		if st.Stuck() {
			report.Warnings = append(report.Warnings,
				"daemon process exists but fails the health probe (stuck starting or zombie)")
		}
		return nil
	})
	_ = g.Wait()
	return report
}

func (s *Service) probeTool(ctx context.Context, tool types.Tool) ToolHealth {
	th := ToolHealth{Tool: tool, Binary: tool.Binary()}
	path, err := s.resolver.Resolve(ctx, tool)
	if err != nil {
		th.Error = err.Error()
		return th
	}
	th.Path = path

	res, err := s.executor.Execute(ctx, path, []string{"--version"}, executor.Options{
		Tool:          tool,
		Subcommand:    "--version",
		WorkdirPolicy: executor.WorkdirNone,
		Timeout:       s.settings.ProbeTimeout,
	})
	if err != nil {
		var notFound *toolchain.BinaryNotFoundError
		if errors.As(err, &notFound) {
			s.resolver.Invalidate(tool)
		}
		th.Error = err.Error()
		return th
	}
	th.Available = true
	th.Version = firstLine(res.Stdout)
	return th
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
