package keys

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"

	"github.com/nhle/weekly-planner/internal/action"
)

func runeKey(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func TestResolve(t *testing.T) {
	k := DefaultKeyMap()

	tests := []struct {
		name string
		msg  tea.KeyMsg
		want action.Action
	}{
		{"j moves down", runeKey('j'), action.Down},
		{"arrow up", tea.KeyMsg{Type: tea.KeyUp}, action.Up},
		{"shift J reorders", runeKey('J'), action.MoveDown},
		{"o creates", runeKey('o'), action.Create},
		{"x toggles status", runeKey('x'), action.ToggleStatus},
		{"enter commits", tea.KeyMsg{Type: tea.KeyEnter}, action.EditEnd},
		{"esc cancels", tea.KeyMsg{Type: tea.KeyEsc}, action.Cancel},
		{"ctrl+c quits", tea.KeyMsg{Type: tea.KeyCtrlC}, action.Quit},
		{"question mark opens help", runeKey('?'), action.Help},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := k.Resolve(tt.msg, false)
			assert.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	_, ok := k.Resolve(runeKey('z'), false)
	assert.False(t, ok)
}

func TestResolve_EditingPassesTextThrough(t *testing.T) {
	k := DefaultKeyMap()

	_, ok := k.Resolve(runeKey('q'), true)
	assert.False(t, ok)
	_, ok = k.Resolve(runeKey('j'), true)
	assert.False(t, ok)

	got, ok := k.Resolve(tea.KeyMsg{Type: tea.KeyEnter}, true)
	assert.True(t, ok)
	assert.Equal(t, action.EditEnd, got)

	got, ok = k.Resolve(tea.KeyMsg{Type: tea.KeyEsc}, true)
	assert.True(t, ok)
	assert.Equal(t, action.Cancel, got)
}
