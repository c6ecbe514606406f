package ui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgerdev/internal/node"
)

func TestTableView(t *testing.T) {
	tbl := NewTable("Tools", "tool", "status")
	assert.Empty(t, tbl.View(DefaultStyles()))

	tbl.AddRow("builder", "available")
	tbl.AddRow("node-daemon", "missing")
	out := tbl.View(DefaultStyles())

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 5)
	assert.Contains(t, lines[0], "Tools")
	assert.Contains(t, lines[1], "tool")
	assert.Contains(t, lines[3], "builder")
	assert.Contains(t, lines[4], "node-daemon")
}

func TestWatchModelPollCycle(t *testing.T) {
	calls := 0
	fetch := func(context.Context) (node.Status, error) {
		calls++
		return node.Status{State: node.StateHealthy, PIDs: []int{42}, Healthy: true, Endpoint: "http://127.0.0.1:8545"}, nil
	}
	m := NewWatchModel(fetch, 10*time.Millisecond)
	assert.Contains(t, m.View(), "probing")

	require.NotNil(t, m.Init())
	msg := m.poll()()
	require.IsType(t, statusMsg{}, msg)
	assert.Equal(t, 1, calls)

	next, cmd := m.Update(msg)
	require.NotNil(t, cmd, "a result schedules the next tick")
	view := next.View()
	assert.Contains(t, view, "healthy")
	assert.Contains(t, view, "[42]")
}

func TestWatchModelShowsErrorsAndStuck(t *testing.T) {
	m := NewWatchModel(nil, time.Second)

	next, _ := m.Update(statusMsg{err: errors.New("pgrep failed")})
	assert.Contains(t, next.View(), "pgrep failed")

	next, _ = next.Update(statusMsg{status: node.Status{State: node.StateUnreachable, PIDs: []int{7}}})
	assert.Contains(t, next.View(), "does not answer")
}

func TestWatchModelQuit(t *testing.T) {
	m := NewWatchModel(nil, time.Second)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestStateStyle(t *testing.T) {
	s := DefaultStyles()
	assert.Equal(t, s.Good.Render("x"), s.StateStyle("healthy").Render("x"))
	assert.Equal(t, s.Muted.Render("x"), s.StateStyle("stopped").Render("x"))
}
