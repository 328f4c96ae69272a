package style

import "github.com/charmbracelet/lipgloss"

// Shared text styles used across table headers and CLI output.
var (
	Bold = lipgloss.NewStyle().Bold(true)
	Dim  = lipgloss.NewStyle().Faint(true)

	// Status colors for agent/worktree lifecycle states, picked by
	// StatusStyle.
	Running = lipgloss.NewStyle().Foreground(lipgloss.Color("10")) // green
	Idle    = lipgloss.NewStyle().Foreground(lipgloss.Color("14")) // cyan
	Exited  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))  // gray
	Warning = lipgloss.NewStyle().Foreground(lipgloss.Color("11")) // yellow
	Error   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))  // red
)

// StatusStyle picks the style matching an agent or worktree status string,
// falling back to an unstyled render for anything unrecognized.
func StatusStyle(status string) lipgloss.Style {
	switch status {
	case "running", "active":
		return Running
	case "idle":
		return Idle
	case "exited", "gone", "cleaned":
		return Exited
	case "merging":
		return Warning
	case "failed":
		return Error
	default:
		return lipgloss.NewStyle()
	}
}
