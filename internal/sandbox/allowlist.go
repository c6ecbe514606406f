// Package sandbox decides which (tool, subcommand) pairs may ever run and scrubs
// caller-supplied arguments before they reach an argv.
//
// Nothing here performs I/O. Arguments are always executed as a direct argv, never
// through a shell; sanitization is a second line against arguments being re-quoted
// into a shell string later, and against malformed or oversized input.
package sandbox

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"ledgerdev/internal/types"
)

// ErrCommandRejected matches every *CommandRejectedError.
var ErrCommandRejected = errors.New("command rejected")

// CommandRejectedError reports a (tool, subcommand) pair outside the allowlist.
type CommandRejectedError struct {
	Tool       types.Tool
	Subcommand string

	// Allowed lists the tool's permitted subcommands when known.
	Allowed []string
}

func (e *CommandRejectedError) Error() string {
	return fmt.Sprintf("command rejected: %s %q is not allowlisted", e.Tool, e.Subcommand)
}

func (e *CommandRejectedError) Is(target error) bool { return target == ErrCommandRejected }

// Allowlist maps each tool to its permitted subcommands.
type Allowlist struct {
	entries map[types.Tool]map[string]struct{}
}

// DefaultAllowlist returns the built-in allowlist.
// Node-daemon entries are lifecycle verbs; they are validated but never passed as argv.
func DefaultAllowlist() *Allowlist {
	return NewAllowlist(map[types.Tool][]string{
		types.ToolBuilder:     {"build", "test", "script"},
		types.ToolQueryClient: {"call", "send", "chain-id", "block-number", "balance", "receipt"},
		types.ToolNodeDaemon:  {"start", "stop", "restart", "status"},
	})
}

// NewAllowlist builds an allowlist; unknown tools and blank subcommands are dropped.
func NewAllowlist(entries map[types.Tool][]string) *Allowlist {
	a := &Allowlist{entries: make(map[types.Tool]map[string]struct{})}
	for tool, subs := range entries {
		if !tool.Valid() {
			continue
		}
		set := make(map[string]struct{}, len(subs))
		for _, raw := range subs {
			sub := strings.TrimSpace(raw)
			if sub == "" {
				continue
			}
			set[sub] = struct{}{}
		}
		a.entries[tool] = set
	}
	return a
}

// Validate reports whether subcommand is permitted for tool. Exact match only.
func (a *Allowlist) Validate(tool types.Tool, subcommand string) bool {
	set, ok := a.entries[tool]
	if !ok {
		return false
	}
	_, ok = set[subcommand]
	return ok
}

// Check is Validate returning a typed error.
func (a *Allowlist) Check(tool types.Tool, subcommand string) error {
	if a.Validate(tool, subcommand) {
		return nil
	}
	return &CommandRejectedError{Tool: tool, Subcommand: subcommand, Allowed: a.Subcommands(tool)}
}

// Subcommands returns the sorted subcommands allowed for tool.
func (a *Allowlist) Subcommands(tool types.Tool) []string {
	set := a.entries[tool]
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for sub := range set {
		out = append(out, sub)
	}
	sort.Strings(out)
	return out
}
