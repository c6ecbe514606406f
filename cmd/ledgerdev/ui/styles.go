// Package ui renders ledgerdev's terminal output.
package ui

import "github.com/charmbracelet/lipgloss"

// Semantic colors
var (
	Destructive = lipgloss.Color("#e53935")
	Success     = lipgloss.Color("#8BC34A")
	Warning     = lipgloss.Color("#FFC107")
	Info        = lipgloss.Color("#2196F3")
	Muted       = lipgloss.Color("#6b7280")
)

// Styles holds the styles used by tables and the watch view.
type Styles struct {
	Title   lipgloss.Style
	Bold    lipgloss.Style
	Body    lipgloss.Style
	Muted   lipgloss.Style
	Good    lipgloss.Style
	Bad     lipgloss.Style
	Caution lipgloss.Style
}

// DefaultStyles returns the standard style set.
func DefaultStyles() Styles {
	return Styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(Info),
		Bold:    lipgloss.NewStyle().Bold(true),
		Body:    lipgloss.NewStyle(),
		Muted:   lipgloss.NewStyle().Foreground(Muted),
		Good:    lipgloss.NewStyle().Foreground(Success).Bold(true),
		Bad:     lipgloss.NewStyle().Foreground(Destructive).Bold(true),
		Caution: lipgloss.NewStyle().Foreground(Warning),
	}
}

// StateStyle picks a style for a daemon state or tool availability label.
func (s Styles) StateStyle(label string) lipgloss.Style {
	switch label {
	case "healthy", "ok", "available":
		return s.Good
	case "starting":
		return s.Caution
	case "unreachable", "missing", "error":
		return s.Bad
	}
	return s.Muted
}
