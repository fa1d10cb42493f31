// Package keys maps keyboard input onto planner actions.
package keys

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/weekly-planner/internal/action"
)

// KeyMap defines the global keybindings for the application.
type KeyMap struct {
	// Navigation
	Down key.Binding
	Up   key.Binding

	// Reordering
	MoveDown key.Binding
	MoveUp   key.Binding

	// Editing
	Edit   key.Binding
	Commit key.Binding
	Cancel key.Binding
	Create key.Binding
	Delete key.Binding

	// Item state
	ToggleStatus key.Binding
	ToggleKind   key.Binding

	// Clipboard
	Copy  key.Binding
	Paste key.Binding

	// Weeks
	Today    key.Binding
	PrevWeek key.Binding
	NextWeek key.Binding

	Sync key.Binding
	Help key.Binding
	Quit key.Binding
}

// DefaultKeyMap returns the default set of keybindings.
func DefaultKeyMap() *KeyMap {
	return &KeyMap{
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "down"),
		),
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "up"),
		),
		MoveDown: key.NewBinding(
			key.WithKeys("J", "shift+down"),
			key.WithHelp("J", "move down"),
		),
		MoveUp: key.NewBinding(
			key.WithKeys("K", "shift+up"),
			key.WithHelp("K", "move up"),
		),
		Edit: key.NewBinding(
			key.WithKeys("e", "i"),
			key.WithHelp("e", "edit"),
		),
		Commit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "save"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "cancel"),
		),
		Create: key.NewBinding(
			key.WithKeys("o", "n"),
			key.WithHelp("o", "new item"),
		),
		Delete: key.NewBinding(
			key.WithKeys("d", "delete"),
			key.WithHelp("d", "delete"),
		),
		ToggleStatus: key.NewBinding(
			key.WithKeys("x", " "),
			key.WithHelp("x", "toggle done"),
		),
		ToggleKind: key.NewBinding(
			key.WithKeys("t"),
			key.WithHelp("t", "cycle type"),
		),
		Copy: key.NewBinding(
			key.WithKeys("y"),
			key.WithHelp("y", "copy"),
		),
		Paste: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "paste"),
		),
		Today: key.NewBinding(
			key.WithKeys("g"),
			key.WithHelp("g", "this week"),
		),
		PrevWeek: key.NewBinding(
			key.WithKeys("h", "left"),
			key.WithHelp("h/←", "previous week"),
		),
		NextWeek: key.NewBinding(
			key.WithKeys("l", "right"),
			key.WithHelp("l/→", "next week"),
		),
		Sync: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "sync now"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// Resolve returns the action bound to msg. While editing, only the commit
// and cancel keys are recognised so that typed text reaches the input.
func (k *KeyMap) Resolve(msg tea.KeyMsg, editing bool) (action.Action, bool) {
	if editing {
		switch {
		case key.Matches(msg, k.Commit):
			return action.EditEnd, true
		case key.Matches(msg, k.Cancel):
			return action.Cancel, true
		}
		return action.None, false
	}

	for _, b := range k.bindings() {
		if key.Matches(msg, b.binding) {
			return b.action, true
		}
	}
	return action.None, false
}

type boundAction struct {
	binding key.Binding
	action  action.Action
}

func (k *KeyMap) bindings() []boundAction {
	return []boundAction{
		{k.Down, action.Down},
		{k.Up, action.Up},
		{k.MoveDown, action.MoveDown},
		{k.MoveUp, action.MoveUp},
		{k.Edit, action.EditStart},
		{k.Commit, action.EditEnd},
		{k.Cancel, action.Cancel},
		{k.Create, action.Create},
		{k.Delete, action.Delete},
		{k.ToggleStatus, action.ToggleStatus},
		{k.ToggleKind, action.ToggleKind},
		{k.Copy, action.Copy},
		{k.Paste, action.Paste},
		{k.Today, action.Today},
		{k.PrevWeek, action.PrevWeek},
		{k.NextWeek, action.NextWeek},
		{k.Sync, action.SyncOnce},
		{k.Help, action.Help},
		{k.Quit, action.Quit},
	}
}

// ShortHelp returns the most essential keybindings for the compact help view.
func (k *KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{
		k.Up, k.Down, k.Create, k.Edit,
		k.ToggleStatus, k.Help, k.Quit,
	}
}

// FullHelp returns all keybindings grouped by category for the expanded
// help view.
func (k *KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.MoveUp, k.MoveDown},
		{k.Create, k.Edit, k.Commit, k.Cancel, k.Delete},
		{k.ToggleStatus, k.ToggleKind, k.Copy, k.Paste},
		{k.Today, k.PrevWeek, k.NextWeek, k.Sync, k.Help, k.Quit},
	}
}
