// Package draft holds the in-progress edits of the planner: at most one
// new item and one existing item, kept apart from the committed store.
package draft

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/weekly-planner/internal/model"
	"github.com/nhle/weekly-planner/internal/store"
)

// DefaultDebounce is the quiescence window before an edit is persisted.
const DefaultDebounce = time.Second

// Store is the persistence the manager needs: committed item lookups and
// writes for apply, plus the draft table.
type Store interface {
	GetItemByID(ctx context.Context, id int64) (*model.Item, error)
	InsertItem(ctx context.Context, item model.Item) (int64, error)
	UpdateItem(ctx context.Context, id int64, uuid string, patch model.ItemPatch) (model.Item, error)
	store.DraftStore
}

// Manager owns the two draft slots.
type Manager struct {
	store    Store
	logger   *slog.Logger
	debounce time.Duration

	mu     sync.Mutex
	slots  map[model.Slot]model.Item
	timers map[model.Slot]*time.Timer
	gen    map[model.Slot]uint64
	caret  int
}

// Option configures a Manager.
type Option func(*Manager)

// WithDebounce sets the quiescence window for persisted writes.
func WithDebounce(d time.Duration) Option {
	return func(m *Manager) { m.debounce = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a manager with both slots empty. Call Load to restore
// drafts persisted by a previous run.
func NewManager(s Store, opts ...Option) *Manager {
	m := &Manager{
		store:    s,
		logger:   slog.Default(),
		debounce: DefaultDebounce,
		slots:    make(map[model.Slot]model.Item),
		timers:   make(map[model.Slot]*time.Timer),
		gen:      make(map[model.Slot]uint64),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load restores persisted drafts and drops any that no longer make sense.
func (m *Manager) Load(ctx context.Context) error {
	drafts, err := m.store.LoadDrafts(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	for slot, it := range drafts {
		m.slots[slot] = it
	}
	m.mu.Unlock()

	m.CheckIntegrity(ctx)
	return nil
}

// Close stops pending debounced writes. Edits made inside the last
// quiescence window are not persisted.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for slot := range m.timers {
		m.stopTimer(slot)
	}
}

// Draft returns the item held in slot.
func (m *Manager) Draft(slot model.Slot) (model.Item, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.slots[slot]
	if !ok {
		return model.Item{}, false
	}
	return it.Clone(), true
}

// Active returns the slot currently being edited. The existing slot wins
// when both are occupied.
func (m *Manager) Active() (model.Slot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, slot := range model.Slots {
		if _, ok := m.slots[slot]; ok {
			return slot, true
		}
	}
	return "", false
}

// Caret returns the caret position requested by the last BeginExisting.
func (m *Manager) Caret() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.caret
}

// BeginNew opens a fresh item in the new slot, ranked at hint in category.
// It returns false without touching anything when an active draft holds
// unsaved content.
func (m *Manager) BeginNew(
	ctx context.Context,
	hint float64,
	category model.Category,
	scheduledAt time.Time,
) (model.Item, bool) {
	if !m.CancelIfUnchanged(ctx) {
		m.logger.Info("begin new rejected: unsaved draft")
		return model.Item{}, false
	}

	it := model.Item{
		UUID:        uuid.NewString(),
		Kind:        model.KindTodo,
		Status:      model.StatusUndone,
		Category:    category,
		Calendar:    model.DefaultCalendar,
		ScheduledAt: scheduledAt,
		Order:       model.Order{category: hint},
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[model.SlotNew] = it
	m.persist(ctx, model.SlotNew, it)
	return it.Clone(), true
}

// BeginExisting copies a committed item into the existing slot. The item
// must still be stored under the same id and uuid and not be deleted.
func (m *Manager) BeginExisting(ctx context.Context, item model.Item, caret int) bool {
	m.mu.Lock()
	if cur, ok := m.slots[model.SlotExisting]; ok && sameExisting(cur, item) {
		m.caret = caret
		m.mu.Unlock()
		return true
	}
	m.mu.Unlock()

	committed, err := m.store.GetItemByID(ctx, item.ID)
	if err != nil || committed.UUID != item.UUID || committed.IsDeleted() {
		m.logger.Warn("begin existing rejected: item not in store",
			slog.String("uuid", item.UUID),
			slog.Any("error", err),
		)
		return false
	}

	if !m.CancelIfUnchanged(ctx) {
		m.logger.Info("begin existing rejected: unsaved draft",
			slog.String("uuid", item.UUID),
		)
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[model.SlotExisting] = committed.Clone()
	m.caret = caret
	m.persist(ctx, model.SlotExisting, *committed)
	return true
}

// Update replaces the draft whose identity matches item and schedules a
// debounced write. It returns false when item matches neither slot.
func (m *Manager) Update(item model.Item) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	slot, ok := m.match(item)
	if !ok {
		m.logger.Error("draft update matches no slot",
			slog.String("uuid", item.UUID),
			slog.String("error", model.ErrLogic.Error()),
		)
		return false
	}

	m.slots[slot] = item.Clone()
	m.stopTimer(slot)
	gen := m.gen[slot]
	m.timers[slot] = time.AfterFunc(m.debounce, func() {
		m.flush(slot, gen)
	})
	return true
}

// Apply commits the draft matching item and clears its slot. An existing
// draft updates the committed row; a new draft is inserted. The committed
// item is returned.
func (m *Manager) Apply(ctx context.Context, item model.Item) (model.Item, error) {
	m.mu.Lock()
	slot, ok := m.match(item)
	if !ok {
		m.mu.Unlock()
		err := fmt.Errorf("%w: apply of %s matches no draft slot", model.ErrLogic, item.UUID)
		m.logger.Error("applying draft", slog.String("error", err.Error()))
		return model.Item{}, err
	}
	m.stopTimer(slot)
	m.mu.Unlock()

	// The commit runs unlocked because store subscribers may call back in.
	committed, err := m.commit(ctx, slot, item)
	if err != nil {
		m.logger.Error("applying draft",
			slog.String("slot", string(slot)),
			slog.String("uuid", item.UUID),
			slog.String("error", err.Error()),
		)
		return model.Item{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.slots[slot]; ok && cur.UUID == item.UUID {
		m.clear(ctx, slot)
	}
	return committed, nil
}

func (m *Manager) commit(ctx context.Context, slot model.Slot, item model.Item) (model.Item, error) {
	if slot == model.SlotExisting {
		return m.store.UpdateItem(ctx, item.ID, item.UUID, model.PatchFromItem(item))
	}

	id, err := m.store.InsertItem(ctx, item)
	if err != nil {
		return model.Item{}, err
	}
	committed, err := m.store.GetItemByID(ctx, id)
	if err != nil {
		return model.Item{}, err
	}
	return *committed, nil
}

// CancelIfUnchanged clears every occupied slot whose draft carries no
// unsaved edit and reports whether both slots are now empty. An existing
// draft is unchanged when its title equals the committed title; a new
// draft when its title is blank.
func (m *Manager) CancelIfUnchanged(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, slot := range model.Slots {
		it, ok := m.slots[slot]
		if !ok {
			continue
		}
		if !m.unchanged(ctx, slot, it) {
			return false
		}
		m.clear(ctx, slot)
	}
	return true
}

func (m *Manager) unchanged(ctx context.Context, slot model.Slot, it model.Item) bool {
	if slot == model.SlotNew {
		return strings.TrimSpace(it.Title) == ""
	}

	committed, err := m.store.GetItemByID(ctx, it.ID)
	switch {
	case errors.Is(err, model.ErrNotFound):
		return true
	case err != nil:
		m.logger.Error("reading committed item",
			slog.String("uuid", it.UUID),
			slog.String("error", err.Error()),
		)
		return false
	case committed.UUID != it.UUID:
		return true
	}
	return committed.Title == it.Title
}

// CancelForced empties both slots, discarding unsaved edits.
func (m *Manager) CancelForced(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, slot := range model.Slots {
		m.clear(ctx, slot)
	}
}

// CheckIntegrity drops the new draft when both slots are occupied, and the
// existing draft when its item is gone or deleted.
func (m *Manager) CheckIntegrity(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, hasNew := m.slots[model.SlotNew]
	existing, hasExisting := m.slots[model.SlotExisting]

	if hasNew && hasExisting {
		m.logger.Info("dropping new draft in favour of existing edit")
		m.clear(ctx, model.SlotNew)
	}
	if !hasExisting {
		return
	}

	committed, err := m.store.GetItemByID(ctx, existing.ID)
	switch {
	case errors.Is(err, model.ErrNotFound):
	case err != nil:
		m.logger.Error("checking draft integrity",
			slog.String("uuid", existing.UUID),
			slog.String("error", err.Error()),
		)
		return
	case committed.UUID == existing.UUID && !committed.IsDeleted():
		return
	}

	m.logger.Info("dropping orphaned existing draft", slog.String("uuid", existing.UUID))
	m.clear(ctx, model.SlotExisting)
}

// match finds the slot holding item. Must be called with mu held.
func (m *Manager) match(item model.Item) (model.Slot, bool) {
	if cur, ok := m.slots[model.SlotExisting]; ok && sameExisting(cur, item) {
		return model.SlotExisting, true
	}
	if cur, ok := m.slots[model.SlotNew]; ok && cur.UUID == item.UUID {
		return model.SlotNew, true
	}
	return "", false
}

func sameExisting(a, b model.Item) bool {
	return a.ID == b.ID && a.UUID == b.UUID
}

// flush is the debounced write. It is a no-op if the slot was resolved or
// edited again since the timer was armed.
func (m *Manager) flush(slot model.Slot, gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen[slot] != gen {
		return
	}
	it, ok := m.slots[slot]
	if !ok {
		return
	}
	delete(m.timers, slot)
	m.persist(context.Background(), slot, it)
}

// stopTimer cancels the pending write of slot and invalidates any flush
// already racing for the lock. Must be called with mu held.
func (m *Manager) stopTimer(slot model.Slot) {
	if t, ok := m.timers[slot]; ok {
		t.Stop()
		delete(m.timers, slot)
	}
	m.gen[slot]++
}

// clear empties slot in memory and storage. Must be called with mu held.
func (m *Manager) clear(ctx context.Context, slot model.Slot) {
	m.stopTimer(slot)
	delete(m.slots, slot)
	if err := m.store.DeleteDraft(ctx, slot); err != nil {
		m.logger.Error("deleting draft",
			slog.String("slot", string(slot)),
			slog.String("error", err.Error()),
		)
	}
}

// persist writes slot through to storage. Must be called with mu held.
func (m *Manager) persist(ctx context.Context, slot model.Slot, it model.Item) {
	if err := m.store.SaveDraft(ctx, slot, it); err != nil {
		m.logger.Error("saving draft",
			slog.String("slot", string(slot)),
			slog.String("uuid", it.UUID),
			slog.String("error", err.Error()),
		)
	}
}
