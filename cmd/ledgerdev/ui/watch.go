package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"ledgerdev/internal/node"
)

// StatusFunc observes the daemon once.
type StatusFunc func(ctx context.Context) (node.Status, error)

type tickMsg time.Time

type statusMsg struct {
	status node.Status
	err    error
}

// WatchModel polls daemon status on an interval until quit.
type WatchModel struct {
	fetch    StatusFunc
	interval time.Duration
	styles   Styles
	spinner  spinner.Model
	pending  bool

	status  node.Status
	err     error
	polls   int
	history []node.State
}

// NewWatchModel creates a watch view.
func NewWatchModel(fetch StatusFunc, interval time.Duration) WatchModel {
	if interval <= 0 {
		interval = time.Second
	}
	styles := DefaultStyles()
	sp := spinner.New(spinner.WithSpinner(spinner.MiniDot), spinner.WithStyle(styles.Muted))
	return WatchModel{fetch: fetch, interval: interval, styles: styles, spinner: sp, pending: true}
}

// Init starts the first poll.
func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.poll(), m.spinner.Tick)
}

func (m WatchModel) poll() tea.Cmd {
	fetch, interval := m.fetch, m.interval
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), interval+5*time.Second)
		defer cancel()
		st, err := fetch(ctx)
		return statusMsg{status: st, err: err}
	}
}

func (m WatchModel) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update handles key presses, ticks and poll results.
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			m.pending = true
			return m, m.poll()
		}
	case tickMsg:
		m.pending = true
		return m, m.poll()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case statusMsg:
		m.pending = false
		m.polls++
		m.status, m.err = msg.status, msg.err
		if msg.err == nil {
			m.history = append(m.history, msg.status.State)
			if len(m.history) > 20 {
				m.history = m.history[len(m.history)-20:]
			}
		}
		return m, m.tick()
	}
	return m, nil
}

// View renders the current observation.
func (m WatchModel) View() string {
	var sb strings.Builder
	sb.WriteString(m.styles.Title.Render("Local node"))
	if m.pending {
		sb.WriteString(" " + m.spinner.View())
	}
	sb.WriteString("\n\n")

	if m.polls == 0 {
		sb.WriteString(m.styles.Muted.Render("probing..."))
		sb.WriteString("\n")
	} else if m.err != nil {
		sb.WriteString(m.styles.Bad.Render("status error: " + m.err.Error()))
		sb.WriteString("\n")
	} else {
		st := m.status
		state := string(st.State)
		fmt.Fprintf(&sb, "  state     %s\n", m.styles.StateStyle(state).Render(state))
		fmt.Fprintf(&sb, "  endpoint  %s\n", st.Endpoint)
		fmt.Fprintf(&sb, "  pids      %v\n", st.PIDs)
		fmt.Fprintf(&sb, "  checked   %s\n", st.CheckedAt.Format(time.TimeOnly))
		if st.Stuck() {
			sb.WriteString(m.styles.Caution.Render("  process exists but the endpoint does not answer"))
			sb.WriteString("\n")
		}
	}

	if len(m.history) > 1 {
		marks := make([]string, len(m.history))
		for i, s := range m.history {
			marks[i] = m.styles.StateStyle(string(s)).Render("●")
		}
		sb.WriteString("\n  " + strings.Join(marks, ""))
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(m.styles.Muted.Render("r refresh • q quit"))
	sb.WriteString("\n")
	return sb.String()
}
