package store

import (
	"context"
	"time"

	"github.com/nhle/weekly-planner/internal/model"
)

// RangeQuery selects the live items of one category scheduled within
// [Start, End], both ends inclusive.
type RangeQuery struct {
	Start    time.Time
	End      time.Time
	Category model.Category
}

// Matches reports whether it falls inside the query window, ignoring
// deletion. Used to decide which subscriptions a mutation touches.
func (q RangeQuery) Matches(it model.Item) bool {
	if it.Category != q.Category {
		return false
	}
	return !it.ScheduledAt.Before(q.Start) && !it.ScheduledAt.After(q.End)
}

// ReconcileResult summarises one pull merge.
type ReconcileResult struct {
	Inserted int
	Updated  int
	Kept     int

	// Applied lists the uuids whose local row now carries the remote copy.
	Applied []string
}

// ItemStore is the committed item collection.
type ItemStore interface {
	QueryRange(ctx context.Context, q RangeQuery) ([]model.Item, error)
	InsertItem(ctx context.Context, item model.Item) (int64, error)
	UpdateItem(ctx context.Context, id int64, uuid string, patch model.ItemPatch) (model.Item, error)
	SoftDeleteItem(ctx context.Context, item model.Item) error
	HardDeleteItem(ctx context.Context, item model.Item) error
	CountItems(ctx context.Context) (int, error)
	GetItemByID(ctx context.Context, id int64) (*model.Item, error)
	GetItemByUUID(ctx context.Context, uuid string) (*model.Item, error)
	RepairOrdering(ctx context.Context, items []model.Item, bucket model.Category) (int, error)
	RenumberOrdering(ctx context.Context, items []model.Item, bucket model.Category) (int, error)
	Subscribe(q RangeQuery, fn func([]model.Item)) (unsubscribe func())
}

// DraftStore persists the draft slots separately from committed items.
type DraftStore interface {
	SaveDraft(ctx context.Context, slot model.Slot, item model.Item) error
	LoadDrafts(ctx context.Context) (map[model.Slot]model.Item, error)
	DeleteDraft(ctx context.Context, slot model.Slot) error
}

// SyncStore exposes the bookkeeping the sync engine needs.
type SyncStore interface {
	LastSyncedAt(ctx context.Context) (time.Time, error)
	Reconcile(ctx context.Context, remote []model.Item) (ReconcileResult, error)
	PendingChanges(ctx context.Context, since time.Time) ([]model.Item, error)
	MarkSynced(ctx context.Context, uuids []string, at time.Time, ownerID string) error
}

// Store defines the full persistence interface of the planner.
type Store interface {
	ItemStore
	DraftStore
	SyncStore
	Close() error
}
