// Package theme holds the lipgloss styles shared by the planner views.
package theme

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/weekly-planner/internal/model"
)

// Adaptive color pairs (dark terminal value, light terminal value).
var (
	ColorBlue    = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	ColorGreen   = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	ColorYellow  = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	ColorRed     = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	ColorMagenta = lipgloss.AdaptiveColor{Dark: "#CC5DE8", Light: "#805AD5"}
	ColorGray    = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	ColorWhite   = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
	ColorSubtle  = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#CBD5E0"}
	ColorBorder  = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#E2E8F0"}
)

// HeaderStyle is used for the week title bar.
var HeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorWhite).
	Background(ColorBlue).
	Padding(0, 1)

// StatusBarStyle is used for the bottom status bar.
var StatusBarStyle = lipgloss.NewStyle().
	Foreground(ColorWhite).
	Background(ColorSubtle).
	Padding(0, 1)

// PanelStyle frames modal content such as the help overlay.
var PanelStyle = lipgloss.NewStyle().
	Padding(1, 2).
	Border(lipgloss.RoundedBorder()).
	BorderForeground(ColorBorder)

// RowStyle is the base style for item rows.
var RowStyle = lipgloss.NewStyle().
	PaddingLeft(2)

// SelectedRowStyle highlights the row under the cursor.
var SelectedRowStyle = lipgloss.NewStyle().
	PaddingLeft(1).
	Bold(true).
	Foreground(ColorBlue).
	Border(lipgloss.NormalBorder(), false, false, false, true).
	BorderForeground(ColorBlue)

// DayStyle renders the weekday separators.
var DayStyle = lipgloss.NewStyle().
	Foreground(ColorGray).
	Bold(true).
	MarginTop(1)

// DimmedStyle is for completed items.
var DimmedStyle = lipgloss.NewStyle().
	Foreground(ColorGray).
	Strikethrough(true)

// WarningStyle flags refused actions in the status bar.
var WarningStyle = lipgloss.NewStyle().
	Foreground(ColorYellow).
	Bold(true)

// ErrorStyle flags failures in the status bar.
var ErrorStyle = lipgloss.NewStyle().
	Foreground(ColorRed)

// HelpStyle is used for keyboard shortcut hints.
var HelpStyle = lipgloss.NewStyle().
	Foreground(ColorGray).
	Italic(true)

// StatusStyle returns a color-coded style for an item status.
func StatusStyle(s model.Status) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)

	switch s {
	case model.StatusDone:
		return base.Foreground(ColorGreen)
	case model.StatusInProgress:
		return base.Foreground(ColorYellow)
	case model.StatusBlocked:
		return base.Foreground(ColorRed)
	case model.StatusPending, model.StatusSnoozed, model.StatusDelegated:
		return base.Foreground(ColorMagenta)
	default:
		return base.Foreground(ColorGray)
	}
}

// StatusGlyph is the checkbox drawn in front of an item.
func StatusGlyph(s model.Status) string {
	switch s {
	case model.StatusDone:
		return "✓"
	case model.StatusCanceled:
		return "✗"
	case model.StatusInProgress:
		return "◐"
	case model.StatusUndone:
		return "○"
	default:
		return "•"
	}
}

// KindGlyph marks items that are not plain todos.
func KindGlyph(k model.Kind) string {
	switch k {
	case model.KindNote:
		return "–"
	case model.KindEvent:
		return "◷"
	case model.KindHabit:
		return "↻"
	case model.KindJournal:
		return "¶"
	case model.KindReminder:
		return "!"
	default:
		return ""
	}
}
