package main

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"ledgerdev/cmd/ledgerdev/ui"
	"ledgerdev/internal/devtools"
)

// nodeCmd is the parent command for local chain node lifecycle
var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Manage the local chain node",
	Long: `Start, stop, restart and observe the local chain node.

Examples:
  ledgerdev node start
  ledgerdev node restart
  ledgerdev node watch`,
}

var nodeStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the node if it is not already running",
	RunE:  runOperation(devtools.OpDaemonStart, ""),
}

var nodeStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop every matching node process, escalating as needed",
	RunE:  runOperation(devtools.OpDaemonStop, ""),
}

var nodeRestartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Stop then start the node, verifying a new process identity",
	RunE:  runOperation(devtools.OpDaemonRestart, ""),
}

var nodeStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the node's observed state",
	RunE: func(cmd *cobra.Command, args []string) error {
		stack, err := openStack()
		if err != nil {
			return err
		}
		defer stack.Close()

		ctx, cancel := signalContext()
		defer cancel()

		st, err := stack.Nodes.Status(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), st)
		}
		fmt.Fprintln(cmd.OutOrStdout(), st.String())
		return nil
	},
}

var watchInterval time.Duration

var nodeWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll node status interactively",
	RunE: func(cmd *cobra.Command, args []string) error {
		stack, err := openStack()
		if err != nil {
			return err
		}
		defer stack.Close()

		p := tea.NewProgram(ui.NewWatchModel(stack.Nodes.Status, watchInterval))
		_, err = p.Run()
		return err
	},
}

func init() {
	nodeWatchCmd.Flags().DurationVar(&watchInterval, "interval", 2*time.Second, "Poll interval")

	nodeCmd.AddCommand(nodeStartCmd, nodeStopCmd, nodeRestartCmd, nodeStatusCmd, nodeWatchCmd)
}
