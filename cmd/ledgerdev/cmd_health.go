package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"ledgerdev/cmd/ledgerdev/ui"
	"ledgerdev/internal/devtools"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Probe every tool and the local node",
	RunE: func(cmd *cobra.Command, args []string) error {
		stack, err := openStack()
		if err != nil {
			return err
		}
		defer stack.Close()

		ctx, cancel := signalContext()
		defer cancel()

		report := stack.Service.Health(ctx)
		if jsonOutput {
			if err := printJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
		} else {
			fmt.Fprint(cmd.OutOrStdout(), renderHealth(report, ui.DefaultStyles()))
		}
		if !report.OK() {
			return fmt.Errorf("unhealthy")
		}
		return nil
	},
}

func renderHealth(h devtools.HealthReport, styles ui.Styles) string {
	tools := ui.NewTable("Toolchain", "tool", "binary", "status", "detail")
	for _, th := range h.Tools {
		status, detail := "available", th.Version
		if !th.Available {
			status, detail = "missing", th.Error
		}
		tools.AddRow(string(th.Tool), th.Binary, styles.StateStyle(status).Render(status), detail)
	}

	var sb strings.Builder
	sb.WriteString(tools.View(styles))
	sb.WriteString("\n")

	state := string(h.DaemonState)
	if state == "" {
		state = "unknown"
	}
	daemon := ui.NewTable("Local node", "endpoint", "state", "process", "healthy")
	daemon.AddRow(h.Endpoint, styles.StateStyle(state).Render(state),
		fmt.Sprintf("%v %v", h.DaemonProcessRunning, h.DaemonPIDs), fmt.Sprintf("%v", h.DaemonHealthy))
	sb.WriteString(daemon.View(styles))

	for _, w := range h.Warnings {
		sb.WriteString(styles.Caution.Render("warning: " + w))
		sb.WriteString("\n")
	}
	return sb.String()
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
