// Package action defines the closed set of user actions and the dispatcher
// that turns them into store and draft operations.
package action

import "strings"

// Action is a symbolic user intent, independent of the key or menu that
// produced it.
type Action int

const (
	None Action = iota
	Up
	Down
	MoveUp
	MoveDown
	EditStart
	EditEnd
	Cancel
	ToggleStatus
	ToggleKind
	Copy
	Paste
	Create
	Delete
	Today
	PrevWeek
	NextWeek
	SyncOnce
	Help
	Quit
)

var names = map[Action]string{
	None:         "none",
	Up:           "up",
	Down:         "down",
	MoveUp:       "move-up",
	MoveDown:     "move-down",
	EditStart:    "edit-start",
	EditEnd:      "edit-end",
	Cancel:       "cancel",
	ToggleStatus: "toggle-status",
	ToggleKind:   "toggle-kind",
	Copy:         "copy",
	Paste:        "paste",
	Create:       "create",
	Delete:       "delete",
	Today:        "today",
	PrevWeek:     "prev-week",
	NextWeek:     "next-week",
	SyncOnce:     "sync-once",
	Help:         "help",
	Quit:         "quit",
}

func (a Action) String() string {
	if n, ok := names[a]; ok {
		return n
	}
	return "unknown"
}

// Parse looks an action up by its String form.
func Parse(s string) (Action, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for a, n := range names {
		if n == s {
			return a, true
		}
	}
	return None, false
}

// allowedWhileEditing reports whether a can run while a draft is open.
func allowedWhileEditing(a Action) bool {
	return a == EditEnd || a == Cancel
}
