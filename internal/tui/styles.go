// Package tui provides the full-screen dashboard for taskpanel.
//
// The dashboard is a Bubble Tea program that renders snapshots of the task
// model and translates keystrokes into rerun/kill commands. It never
// mutates execution state directly and never holds the model lock across a
// draw: every frame is painted from an immutable Snapshot copied out on the
// refresh tick.
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/mrz1836/taskpanel/internal/constants"
)

// Semantic colors. All colors use AdaptiveColor for light/dark terminals.
//
//nolint:gochecknoglobals // Intentional package-level constants for TUI styling
var (
	// ColorPending is yellow: queued, not started.
	ColorPending = lipgloss.AdaptiveColor{Light: "#AF8700", Dark: "#FFD700"}

	// ColorRunning is cyan: a live child process.
	ColorRunning = lipgloss.AdaptiveColor{Light: "#0087AF", Dark: "#00D7FF"}

	// ColorSuccess is green.
	ColorSuccess = lipgloss.AdaptiveColor{Light: "#008700", Dark: "#00FF87"}

	// ColorFailed is red.
	ColorFailed = lipgloss.AdaptiveColor{Light: "#AF0000", Dark: "#FF5F5F"}

	// ColorSkipped is blue: resolved without running.
	ColorSkipped = lipgloss.AdaptiveColor{Light: "#005FD7", Dark: "#5F87FF"}

	// ColorKilled is magenta: terminated by the operator or shutdown.
	ColorKilled = lipgloss.AdaptiveColor{Light: "#AF00AF", Dark: "#FF5FFF"}

	// ColorMuted is gray, used for secondary text.
	ColorMuted = lipgloss.AdaptiveColor{Light: "#585858", Dark: "#6C6C6C"}
)

// Styles for the fixed chrome.
//
//nolint:gochecknoglobals // Intentional package-level constants for TUI styling
var (
	headerStyle = lipgloss.NewStyle().Bold(true).Reverse(true)

	helpStyle = lipgloss.NewStyle().Foreground(ColorMuted)

	taskNameStyle = lipgloss.NewStyle().Bold(true)

	selectedRowStyle = lipgloss.NewStyle().Reverse(true)

	selectedCellStyle = lipgloss.NewStyle().
				Foreground(lipgloss.AdaptiveColor{Light: "#FFFFFF", Dark: "#000000"}).
				Background(ColorSuccess)

	panelTitleStyle = lipgloss.NewStyle().Bold(true)

	stdoutHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorPending)

	stderrHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorFailed)

	stderrLineStyle = lipgloss.NewStyle().Foreground(ColorFailed)
)

// statusStyle returns the cell style for a step status.
func statusStyle(status constants.StepStatus) lipgloss.Style {
	color := ColorMuted
	switch status {
	case constants.StepPending:
		color = ColorPending
	case constants.StepRunning:
		color = ColorRunning
	case constants.StepSuccess:
		color = ColorSuccess
	case constants.StepFailed:
		color = ColorFailed
	case constants.StepSkipped:
		color = ColorSkipped
	case constants.StepKilled:
		color = ColorKilled
	}
	return lipgloss.NewStyle().Foreground(color)
}
