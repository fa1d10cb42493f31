// Package ui provides the frame shared by the planner screens.
package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/weekly-planner/internal/theme"
)

// Layout tracks the terminal size and the fixed bars around the content.
type Layout struct {
	Width           int
	Height          int
	HeaderHeight    int
	StatusBarHeight int
}

// NewLayout creates a Layout with one-line header and status bars.
func NewLayout(width, height int) Layout {
	return Layout{
		Width:           width,
		Height:          height,
		HeaderHeight:    1,
		StatusBarHeight: 1,
	}
}

// ContentHeight returns the rows left for the item list.
func (l Layout) ContentHeight() int {
	h := l.Height - l.HeaderHeight - l.StatusBarHeight
	if h < 0 {
		return 0
	}
	return h
}

// RenderHeader renders the title on the left and right aligned text on
// the right, padded to the full width.
func (l Layout) RenderHeader(title, right string) string {
	return l.bar(theme.HeaderStyle, title, right)
}

// RenderStatusBar renders the bottom bar.
func (l Layout) RenderStatusBar(left, right string) string {
	return l.bar(theme.StatusBarStyle, left, right)
}

func (l Layout) bar(style lipgloss.Style, left, right string) string {
	l1 := style.Render(left)
	r1 := style.Render(right)

	gap := max(l.Width-lipgloss.Width(l1)-lipgloss.Width(r1), 0)
	filler := lipgloss.NewStyle().
		Width(gap).
		Background(style.GetBackground()).
		Render("")

	return lipgloss.JoinHorizontal(lipgloss.Top, l1, filler, r1)
}

// Frame joins header, content and status bar. Content is padded or cut to
// the available height so the status bar stays at the bottom.
func (l Layout) Frame(header, content, status string) string {
	body := lipgloss.NewStyle().
		Height(l.ContentHeight()).
		MaxHeight(l.ContentHeight()).
		Render(content)
	return lipgloss.JoinVertical(lipgloss.Left, header, body, status)
}
