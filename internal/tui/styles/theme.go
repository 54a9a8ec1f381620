package styles

import (
	"github.com/charmbracelet/lipgloss"
)

// Theme defines the color palette and styles for the watch view.
type Theme struct {
	// Color palette
	Primary lipgloss.Color
	Success lipgloss.Color
	Warning lipgloss.Color
	Danger  lipgloss.Color
	Muted   lipgloss.Color

	// Text styles
	TitleStyle  lipgloss.Style
	HeaderStyle lipgloss.Style
	FooterStyle lipgloss.Style

	// Node status styles
	StatusPending   lipgloss.Style
	StatusRunning   lipgloss.Style
	StatusCompleted lipgloss.Style
	StatusFailed    lipgloss.Style
	StatusBlocked   lipgloss.Style
}

// DefaultTheme returns a theme with default colors and styles.
func DefaultTheme() *Theme {
	theme := &Theme{
		Primary: lipgloss.Color("#7AA2F7"),
		Success: lipgloss.Color("#9ECE6A"),
		Warning: lipgloss.Color("#E0AF68"),
		Danger:  lipgloss.Color("#F7768E"),
		Muted:   lipgloss.Color("#565F89"),
	}

	theme.TitleStyle = lipgloss.NewStyle().
		Foreground(theme.Primary).
		Bold(true)

	theme.HeaderStyle = lipgloss.NewStyle().
		Foreground(theme.Primary)

	theme.FooterStyle = lipgloss.NewStyle().
		Foreground(theme.Muted)

	theme.StatusPending = lipgloss.NewStyle().
		Foreground(theme.Muted)

	theme.StatusRunning = lipgloss.NewStyle().
		Foreground(theme.Primary)

	theme.StatusCompleted = lipgloss.NewStyle().
		Foreground(theme.Success)

	theme.StatusFailed = lipgloss.NewStyle().
		Foreground(theme.Danger).
		Bold(true)

	theme.StatusBlocked = lipgloss.NewStyle().
		Foreground(theme.Warning)

	return theme
}
