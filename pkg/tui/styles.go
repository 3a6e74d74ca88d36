package tui

import "github.com/charmbracelet/lipgloss"

// Palette.
var (
	colorPrimary = lipgloss.AdaptiveColor{Light: "#3b5bdb", Dark: "#748ffc"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "#868e96", Dark: "#868e96"}
	colorError   = lipgloss.Color("#e53935")
	colorSuccess = lipgloss.Color("#8BC34A")
)

// Styles groups the lipgloss styles used by the screens.
type Styles struct {
	Title    lipgloss.Style
	Label    lipgloss.Style
	Focused  lipgloss.Style
	Muted    lipgloss.Style
	Error    lipgloss.Style
	Success  lipgloss.Style
	Selected lipgloss.Style
	Help     lipgloss.Style
	Frame    lipgloss.Style
}

// DefaultStyles returns the standard styles.
func DefaultStyles() Styles {
	return Styles{
		Title:    lipgloss.NewStyle().Bold(true).Foreground(colorPrimary).MarginBottom(1),
		Label:    lipgloss.NewStyle().Bold(true),
		Focused:  lipgloss.NewStyle().Bold(true).Foreground(colorPrimary),
		Muted:    lipgloss.NewStyle().Foreground(colorMuted),
		Error:    lipgloss.NewStyle().Foreground(colorError),
		Success:  lipgloss.NewStyle().Foreground(colorSuccess),
		Selected: lipgloss.NewStyle().Foreground(colorSuccess),
		Help:     lipgloss.NewStyle().Foreground(colorMuted).MarginTop(1),
		Frame:    lipgloss.NewStyle().Padding(1, 2),
	}
}
