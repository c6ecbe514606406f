// Package types provides shared type definitions used across ledgerdev packages.
// This package exists to break import cycles between sandbox, toolchain, executor and node.
package types

import (
	"fmt"
	"strings"
)

// Tool is one of the fixed external programs ledgerdev may invoke.
type Tool string

const (
	// ToolBuilder compiles, tests and scripts the contract project (forge).
	ToolBuilder Tool = "builder"

	// ToolNodeDaemon is the local chain node (anvil).
	ToolNodeDaemon Tool = "node-daemon"

	// ToolQueryClient performs read and state-changing calls (cast).
	ToolQueryClient Tool = "query-client"
)

// AllTools lists every known tool in a stable order.
var AllTools = []Tool{ToolBuilder, ToolNodeDaemon, ToolQueryClient}

var binaryNames = map[Tool]string{
	ToolBuilder:     "forge",
	ToolNodeDaemon:  "anvil",
	ToolQueryClient: "cast",
}

// Binary returns the executable name of the tool.
func (t Tool) Binary() string {
	return binaryNames[t]
}

// Valid reports whether t is a member of the closed tool set.
func (t Tool) Valid() bool {
	_, ok := binaryNames[t]
	return ok
}

func (t Tool) String() string {
	return string(t)
}

// ParseTool accepts either a tool name ("builder") or its binary name ("forge").
func ParseTool(raw string) (Tool, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	if t := Tool(name); t.Valid() {
		return t, nil
	}
	for t, bin := range binaryNames {
		if bin == name {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown tool %q", raw)
}
