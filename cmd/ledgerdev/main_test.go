package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgerdev/cmd/ledgerdev/ui"
	"ledgerdev/internal/devtools"
	"ledgerdev/internal/node"
	"ledgerdev/internal/types"
)

func TestCommandTree(t *testing.T) {
	want := []string{"audit", "build", "call", "health", "node", "send", "serve", "test"}
	var got []string
	for _, c := range rootCmd.Commands() {
		if c.Name() == "help" || c.Name() == "completion" {
			continue
		}
		got = append(got, c.Name())
	}
	assert.ElementsMatch(t, want, got)

	var nodeSubs []string
	for _, c := range nodeCmd.Commands() {
		nodeSubs = append(nodeSubs, c.Name())
	}
	assert.ElementsMatch(t, []string{"start", "stop", "restart", "status", "watch"}, nodeSubs)
}

func TestPrintResponse(t *testing.T) {
	passed, failed := 3, 1
	var buf bytes.Buffer
	err := printResponse(&buf, devtools.Response{
		Success: false,
		Stdout:  "Suite result: FAILED\n",
		Summary: &devtools.Summary{TestsPassed: &passed, TestsFailed: &failed},
		Error:   "builder exited with code 1",
		Details: &devtools.ErrorDetails{Kind: devtools.KindFailure},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), devtools.KindFailure)
	assert.Contains(t, buf.String(), "Suite result: FAILED")
	assert.Contains(t, buf.String(), "passed=3 failed=1 skipped=0")

	buf.Reset()
	require.NoError(t, printResponse(&buf, devtools.Response{Success: true, Stdout: "42\n"}))
	assert.Equal(t, "42\n", buf.String())
}

func TestPrintResponseJSON(t *testing.T) {
	jsonOutput = true
	defer func() { jsonOutput = false }()

	var buf bytes.Buffer
	require.NoError(t, printResponse(&buf, devtools.Response{Success: true, Stdout: "ok"}))
	assert.True(t, strings.HasPrefix(buf.String(), "{"))
	assert.Contains(t, buf.String(), `"success": true`)
}

func TestRenderHealth(t *testing.T) {
	out := renderHealth(devtools.HealthReport{
		Tools: []devtools.ToolHealth{
			{Tool: types.ToolBuilder, Binary: "forge", Available: true, Version: "forge Version: 1.0.0"},
			{Tool: types.ToolNodeDaemon, Binary: "anvil", Error: "anvil not found"},
		},
		DaemonProcessRunning: true,
		DaemonState:          node.StateUnreachable,
		DaemonPIDs:           []int{42},
		Endpoint:             "http://127.0.0.1:8545",
		Warnings:             []string{"daemon process exists but fails the health probe"},
	}, ui.DefaultStyles())

	assert.Contains(t, out, "forge Version: 1.0.0")
	assert.Contains(t, out, "anvil not found")
	assert.Contains(t, out, "unreachable")
	assert.Contains(t, out, "warning: daemon process exists")
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "abcdef01", shortID("abcdef0123456789"))
	assert.Equal(t, "abc", shortID("abc"))
}
