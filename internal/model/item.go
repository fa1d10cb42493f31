package model

import (
	"math"
	"time"
)

// Kind distinguishes the flavour of a planner entry.
type Kind string

const (
	KindTodo     Kind = "todo"
	KindNote     Kind = "note"
	KindEvent    Kind = "event"
	KindHabit    Kind = "habit"
	KindJournal  Kind = "journal"
	KindReminder Kind = "reminder"
)

// Status constants.
type Status string

const (
	StatusUndone     Status = "undone"
	StatusDone       Status = "done"
	StatusPending    Status = "pending"
	StatusBlocked    Status = "blocked"
	StatusCanceled   Status = "canceled"
	StatusDelegated  Status = "delegated"
	StatusSnoozed    Status = "snoozed"
	StatusInProgress Status = "inprogress"
)

// Category selects the ordering bucket an item is listed in.
type Category string

const (
	CategoryWeekly   Category = "weekly"
	CategoryDaily    Category = "daily"
	CategoryMonthly  Category = "monthly"
	CategoryYearly   Category = "yearly"
	CategoryProject  Category = "project"
	CategoryPersonal Category = "personal"
	CategoryWork     Category = "work"
	CategoryGoal     Category = "goal"
	CategoryLife     Category = "life"
)

// DefaultCalendar is the calendar system tag for new items.
const DefaultCalendar = "gregory"

// Order is the sparse per-bucket rank of an item.
type Order map[Category]float64

// Finite returns a copy without NaN or infinite ranks, which cannot be
// encoded as JSON and count as missing anyway.
func (o Order) Finite() Order {
	out := make(Order, len(o))
	for k, v := range o {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out[k] = v
	}
	return out
}

// Item is a single planner entry.
//
// ID is a local storage handle; UUID is the identity used across devices.
type Item struct {
	ID          int64      `json:"-"`
	UUID        string     `json:"uuid"`
	OwnerID     *string    `json:"owner_id"`
	Title       string     `json:"title"`
	Kind        Kind       `json:"kind"`
	Status      Status     `json:"status"`
	Category    Category   `json:"category"`
	Calendar    string     `json:"calendar"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	CompletedAt *time.Time `json:"completed_at"`
	TZOffset    int        `json:"tz_offset"`
	TZName      string     `json:"tz_name"`
	ParentUUID  *string    `json:"parent_uuid"`
	Order       Order      `json:"order"`
	DeletedAt   *time.Time `json:"deleted_at"`
	Version     int64      `json:"version"`
	CreatedAt   time.Time  `json:"created_at"`
	ModifiedAt  time.Time  `json:"modified_at"`
	SyncedAt    *time.Time `json:"synced_at"`
	DeviceID    string     `json:"device_id"`
}

// IsDeleted reports whether the item is a tombstone.
func (it Item) IsDeleted() bool { return it.DeletedAt != nil }

// IsDone reports whether the item has been completed.
func (it Item) IsDone() bool { return it.Status == StatusDone }

// OrderIn returns the item's rank in bucket. ok is false when the rank is
// missing or not a finite number.
func (it Item) OrderIn(bucket Category) (float64, bool) {
	v, found := it.Order[bucket]
	if !found || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Clone returns a deep copy of the item so that callers can mutate maps and
// pointers without aliasing the original.
func (it Item) Clone() Item {
	out := it
	out.OwnerID = cloneString(it.OwnerID)
	out.ParentUUID = cloneString(it.ParentUUID)
	out.CompletedAt = cloneTime(it.CompletedAt)
	out.DeletedAt = cloneTime(it.DeletedAt)
	out.SyncedAt = cloneTime(it.SyncedAt)
	if it.Order != nil {
		out.Order = make(Order, len(it.Order))
		for k, v := range it.Order {
			out.Order[k] = v
		}
	}
	return out
}

// ItemPatch is a partial update. Nil fields are left untouched.
type ItemPatch struct {
	OwnerID          *string
	Title            *string
	Kind             *Kind
	Status           *Status
	Category         *Category
	Calendar         *string
	ScheduledAt      *time.Time
	CompletedAt      *time.Time
	ClearCompletedAt bool
	TZOffset         *int
	TZName           *string
	ParentUUID       *string

	// Order entries are merged into the existing map.
	Order Order
}

// PatchFromItem builds a patch carrying every user-editable field of it.
func PatchFromItem(it Item) ItemPatch {
	p := ItemPatch{
		OwnerID:     cloneString(it.OwnerID),
		Title:       &it.Title,
		Kind:        &it.Kind,
		Status:      &it.Status,
		Category:    &it.Category,
		Calendar:    &it.Calendar,
		ScheduledAt: &it.ScheduledAt,
		TZOffset:    &it.TZOffset,
		TZName:      &it.TZName,
		ParentUUID:  cloneString(it.ParentUUID),
	}
	if it.CompletedAt != nil {
		p.CompletedAt = cloneTime(it.CompletedAt)
	} else {
		p.ClearCompletedAt = true
	}
	if len(it.Order) > 0 {
		p.Order = it.Clone().Order
	}
	return p
}

// Apply copies the patch onto it. Bookkeeping fields (version, timestamps,
// identity) are never touched here.
func (p ItemPatch) Apply(it *Item) {
	if p.OwnerID != nil {
		it.OwnerID = cloneString(p.OwnerID)
	}
	if p.Title != nil {
		it.Title = *p.Title
	}
	if p.Kind != nil {
		it.Kind = *p.Kind
	}
	if p.Status != nil {
		it.Status = *p.Status
	}
	if p.Category != nil {
		it.Category = *p.Category
	}
	if p.Calendar != nil {
		it.Calendar = *p.Calendar
	}
	if p.ScheduledAt != nil {
		it.ScheduledAt = *p.ScheduledAt
	}
	if p.ClearCompletedAt {
		it.CompletedAt = nil
	}
	if p.CompletedAt != nil {
		it.CompletedAt = cloneTime(p.CompletedAt)
	}
	if p.TZOffset != nil {
		it.TZOffset = *p.TZOffset
	}
	if p.TZName != nil {
		it.TZName = *p.TZName
	}
	if p.ParentUUID != nil {
		it.ParentUUID = cloneString(p.ParentUUID)
	}
	if len(p.Order) > 0 {
		if it.Order == nil {
			it.Order = make(Order, len(p.Order))
		}
		for k, v := range p.Order {
			it.Order[k] = v
		}
	}
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
