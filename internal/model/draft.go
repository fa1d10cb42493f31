package model

// Slot names one of the two draft positions.
type Slot string

const (
	// SlotNew holds an item that has not been committed yet.
	SlotNew Slot = "new"

	// SlotExisting holds an in-progress edit of a committed item.
	SlotExisting Slot = "existing"
)

// Slots lists every draft slot in integrity-check priority order.
var Slots = []Slot{SlotExisting, SlotNew}
