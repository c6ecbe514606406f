package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"ledgerdev/internal/devtools"
)

var workdir string

var buildCmd = &cobra.Command{
	Use:   "build [flags-for-builder...]",
	Short: "Compile the contract project",
	RunE:  runOperation(devtools.OpBuild, ""),
}

var testCmd = &cobra.Command{
	Use:   "test [flags-for-builder...]",
	Short: "Run the contract test suite",
	Long: `Runs the builder's test subcommand in the project root.
Arguments after -- are passed through after sanitization:

  ledgerdev test -- --match-test testTransfer -vvv`,
	RunE: runOperation(devtools.OpTest, ""),
}

var callSubcommand string

var callCmd = &cobra.Command{
	Use:   "call [args...]",
	Short: "Run a read-only query against the configured RPC endpoint",
	Long: `Examples:
  ledgerdev call 0x5FbDB2315678afecb367f032d93F642f64180aa3 "totalSupply()(uint256)"
  ledgerdev call --sub block-number`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOperation(devtools.OpReadonlyCall, callSubcommand)(cmd, args)
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <to> <signature> [args...]",
	Short: "Send a state-changing transaction with the configured key",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runOperation(devtools.OpStateChangingCall, ""),
}

func init() {
	for _, c := range []*cobra.Command{buildCmd, testCmd, callCmd, sendCmd} {
		c.Flags().StringVarP(&workdir, "dir", "C", "", "Working directory (default: project root)")
	}
	callCmd.Flags().StringVar(&callSubcommand, "sub", "call", "Read subcommand (call, chain-id, block-number, balance, receipt)")
}

func runOperation(op devtools.Operation, subcommand string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		stack, err := openStack()
		if err != nil {
			return err
		}
		defer stack.Close()

		ctx, cancel := signalContext()
		defer cancel()

		resp := stack.Service.Do(ctx, devtools.Request{
			Operation:        op,
			Subcommand:       subcommand,
			Args:             args,
			WorkingDirectory: workdir,
			TimeoutMs:        timeoutMs(),
		})
		return printResponse(cmd.OutOrStdout(), resp)
	}
}

// printResponse writes the tool output and summary; a failed response becomes the command error.
func printResponse(w io.Writer, resp devtools.Response) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			return err
		}
	} else {
		if resp.Stdout != "" {
			fmt.Fprint(w, resp.Stdout)
		}
		if resp.Stderr != "" {
			fmt.Fprint(os.Stderr, resp.Stderr)
		}
		printSummary(w, resp.Summary)
	}
	if !resp.Success {
		if resp.Details != nil {
			return fmt.Errorf("%s: %s", resp.Details.Kind, resp.Error)
		}
		return fmt.Errorf("%s", resp.Error)
	}
	return nil
}

func printSummary(w io.Writer, s *devtools.Summary) {
	if s == nil {
		return
	}
	if s.TestsPassed != nil {
		fmt.Fprintf(w, "\npassed=%d failed=%d skipped=%d\n", *s.TestsPassed, deref(s.TestsFailed), deref(s.TestsSkipped))
	}
	if s.TransactionHash != "" {
		fmt.Fprintf(w, "\ntx %s status=%s\n", s.TransactionHash, s.TxStatus)
	}
	if len(s.PIDs) > 0 || s.State != "" {
		fmt.Fprintf(w, "node state=%s pids=%v\n", s.State, s.PIDs)
	}
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
