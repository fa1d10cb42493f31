package model

import "errors"

// Error kinds shared by the store, draft manager and sync engine. Layers wrap
// them together with the underlying cause, so callers match with errors.Is.
var (
	// ErrNotFound is returned when a row does not exist or fails the uuid
	// identity guard.
	ErrNotFound = errors.New("not found")

	// ErrConflict is reserved for field-level merge; whole-record
	// last-write-wins never produces it.
	ErrConflict = errors.New("conflict")

	// ErrStorage wraps failures of the local persistence layer.
	ErrStorage = errors.New("storage failure")

	// ErrRemote wraps network or backend failures during pull or push.
	ErrRemote = errors.New("remote failure")

	// ErrLogic marks an operation invoked in an invalid state.
	ErrLogic = errors.New("logic error")
)
