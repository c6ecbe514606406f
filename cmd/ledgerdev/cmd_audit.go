package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"ledgerdev/cmd/ledgerdev/ui"
	"ledgerdev/internal/store"
)

var (
	auditLimit int
	pruneAge   time.Duration
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show recent executions and node lifecycle events",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.Audit.Enabled {
			return fmt.Errorf("audit store is disabled in config")
		}
		st, err := store.NewLocalStore(cfg.Audit.DatabasePath)
		if err != nil {
			return err
		}
		defer st.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if pruneAge > 0 {
			n, err := st.Prune(ctx, time.Now().Add(-pruneAge))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d records\n", n)
		}

		execs, err := st.RecentExecutions(ctx, auditLimit)
		if err != nil {
			return err
		}
		life, err := st.RecentLifecycle(ctx, auditLimit)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), map[string]interface{}{"executions": execs, "lifecycle": life})
		}

		styles := ui.DefaultStyles()
		et := ui.NewTable("Executions", "time", "request", "tool", "subcommand", "event", "exit", "duration")
		for _, r := range execs {
			et.AddRow(r.CreatedAt.Format(time.DateTime), shortID(r.RequestID), r.Tool, r.Subcommand,
				r.Event, strconv.Itoa(r.ExitCode), r.Duration.Round(time.Millisecond).String())
		}
		lt := ui.NewTable("Node lifecycle", "time", "operation", "outcome", "pids", "detail")
		for _, r := range life {
			lt.AddRow(r.CreatedAt.Format(time.DateTime), r.Operation, r.Outcome, fmt.Sprint(r.PIDs), r.Detail)
		}
		fmt.Fprint(cmd.OutOrStdout(), et.View(styles))
		fmt.Fprintln(cmd.OutOrStdout())
		fmt.Fprint(cmd.OutOrStdout(), lt.View(styles))
		return nil
	},
}

func init() {
	auditCmd.Flags().IntVarP(&auditLimit, "limit", "n", 20, "Records per table")
	auditCmd.Flags().DurationVar(&pruneAge, "prune-older-than", 0, "Delete records older than this first")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
