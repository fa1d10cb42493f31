package action

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
	"github.com/nhle/weekly-planner/internal/ordering"
	"github.com/nhle/weekly-planner/internal/store"
)

// Drafts is the draft edit manager as seen by the dispatcher.
type Drafts interface {
	BeginNew(ctx context.Context, hint float64, category model.Category, scheduledAt time.Time) (model.Item, bool)
	BeginExisting(ctx context.Context, item model.Item, caret int) bool
	Update(item model.Item) bool
	Apply(ctx context.Context, item model.Item) (model.Item, error)
	CancelIfUnchanged(ctx context.Context) bool
	CheckIntegrity(ctx context.Context)
	Active() (model.Slot, bool)
	Draft(slot model.Slot) (model.Item, bool)
}

// Syncer accepts manual sync requests.
type Syncer interface {
	Trigger()
}

// Outcome reports what a dispatched action did.
type Outcome struct {
	Action  Action
	Handled bool

	// Blocked is set when the action was refused because a draft or a
	// modal is open.
	Blocked bool

	// Wiggle is set when Cancel was refused because the draft holds
	// unsaved content.
	Wiggle bool

	Quit bool
	Err  error
}

// Dispatcher is the sole consumer of actions. It keeps the view state:
// the displayed week, the selected row, the clipboard and the modal flag.
type Dispatcher struct {
	items  store.ItemStore
	drafts Drafts
	syncer Syncer
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	category  model.Category
	weekStart time.Time
	cursor    int
	clipboard *model.Item
	modal     bool
	unsub     func()

	viewMu   sync.Mutex
	view     []model.Item
	onChange func([]model.Item)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithSyncer wires the SyncOnce action.
func WithSyncer(s Syncer) Option {
	return func(d *Dispatcher) { d.syncer = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithClock overrides the time source used for "today".
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// WithCategory selects the bucket the dispatcher lists.
func WithCategory(c model.Category) Option {
	return func(d *Dispatcher) { d.category = c }
}

// OnChange registers fn to receive the visible list whenever it changes.
// fn may be called from any goroutine that commits to the store.
func OnChange(fn func([]model.Item)) Option {
	return func(d *Dispatcher) { d.onChange = fn }
}

// NewDispatcher creates a dispatcher showing the current week and
// subscribes it to the store.
func NewDispatcher(items store.ItemStore, drafts Drafts, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		items:    items,
		drafts:   drafts,
		logger:   slog.Default(),
		now:      time.Now,
		category: model.CategoryWeekly,
	}
	for _, opt := range opts {
		opt(d)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.weekStart = WeekStart(d.now())
	d.resubscribe()
	return d
}

// Close drops the store subscription.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.unsub != nil {
		d.unsub()
		d.unsub = nil
	}
}

// WeekStart returns midnight of the Monday on or before t, in t's location.
func WeekStart(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	y, m, day := t.Date()
	return time.Date(y, m, day-offset, 0, 0, 0, 0, t.Location())
}

// Query returns the range currently on screen.
func (d *Dispatcher) Query() store.RangeQuery {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.query()
}

func (d *Dispatcher) query() store.RangeQuery {
	return store.RangeQuery{
		Start:    d.weekStart,
		End:      d.weekStart.AddDate(0, 0, 7).Add(-time.Millisecond),
		Category: d.category,
	}
}

// Items returns the visible list.
func (d *Dispatcher) Items() []model.Item {
	d.viewMu.Lock()
	defer d.viewMu.Unlock()
	out := make([]model.Item, len(d.view))
	copy(out, d.view)
	return out
}

// Cursor returns the selected row.
func (d *Dispatcher) Cursor() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clampedCursor()
}

// Selected returns the item under the cursor.
func (d *Dispatcher) Selected() (model.Item, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.selected()
}

// ModalOpen reports whether a modal is open.
func (d *Dispatcher) ModalOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.modal
}

// Draft returns the item being edited, if any.
func (d *Dispatcher) Draft() (model.Item, bool) {
	slot, ok := d.drafts.Active()
	if !ok {
		return model.Item{}, false
	}
	return d.drafts.Draft(slot)
}

// EditTitle replaces the title of the active draft.
func (d *Dispatcher) EditTitle(title string) bool {
	it, ok := d.Draft()
	if !ok {
		return false
	}
	it.Title = title
	return d.drafts.Update(it)
}

// Dispatch performs a. It never panics on collaborator failures; those are
// logged and reported in Outcome.Err.
func (d *Dispatcher) Dispatch(ctx context.Context, a Action) Outcome {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := Outcome{Action: a}

	if d.modal {
		if a == Cancel {
			d.modal = false
			out.Handled = true
			return out
		}
		out.Blocked = true
		return out
	}

	if _, editing := d.drafts.Active(); editing && !allowedWhileEditing(a) {
		d.logger.Debug("action blocked while editing", slog.String("action", a.String()))
		out.Blocked = true
		return out
	}

	var err error
	switch a {
	case Up:
		out.Handled = d.moveCursor(-1)
	case Down:
		out.Handled = d.moveCursor(1)
	case MoveUp:
		out.Handled, err = d.moveItem(ctx, -1)
	case MoveDown:
		out.Handled, err = d.moveItem(ctx, 1)
	case EditStart:
		out.Handled = d.editStart(ctx)
	case EditEnd:
		out.Handled, err = d.editEnd(ctx)
	case Cancel:
		out.Handled, out.Wiggle = d.cancel(ctx)
	case ToggleStatus:
		out.Handled, err = d.toggleStatus(ctx)
	case ToggleKind:
		out.Handled, err = d.toggleKind(ctx)
	case Copy:
		out.Handled = d.copySelected()
	case Paste:
		out.Handled, err = d.paste(ctx)
	case Create:
		out.Handled, err = d.create(ctx)
	case Delete:
		out.Handled, err = d.deleteSelected(ctx)
	case Today:
		d.showWeek(WeekStart(d.now()))
		out.Handled = true
	case PrevWeek:
		d.showWeek(d.weekStart.AddDate(0, 0, -7))
		out.Handled = true
	case NextWeek:
		d.showWeek(d.weekStart.AddDate(0, 0, 7))
		out.Handled = true
	case SyncOnce:
		if d.syncer != nil {
			d.syncer.Trigger()
			out.Handled = true
		}
	case Help:
		d.modal = true
		out.Handled = true
	case Quit:
		out.Quit = true
		out.Handled = true
	default:
		err = fmt.Errorf("%w: unknown action %d", model.ErrLogic, int(a))
	}

	if err != nil {
		d.logger.Error("dispatching action",
			slog.String("action", a.String()),
			slog.String("error", err.Error()),
		)
		out.Err = err
	}
	return out
}

func (d *Dispatcher) moveCursor(delta int) bool {
	n := len(d.Items())
	if n == 0 {
		return false
	}
	next := d.clampedCursor() + delta
	if next < 0 || next >= n {
		return false
	}
	d.cursor = next
	return true
}

func (d *Dispatcher) clampedCursor() int {
	n := len(d.Items())
	switch {
	case n == 0:
		return 0
	case d.cursor >= n:
		return n - 1
	case d.cursor < 0:
		return 0
	}
	return d.cursor
}

func (d *Dispatcher) selected() (model.Item, bool) {
	items := d.Items()
	if len(items) == 0 {
		return model.Item{}, false
	}
	return items[d.clampedCursor()], true
}

// moveItem shifts the selected item one slot up (delta -1) or down.
func (d *Dispatcher) moveItem(ctx context.Context, delta int) (bool, error) {
	items := d.Items()
	i := d.clampedCursor()
	target := i + delta
	if len(items) == 0 || target < 0 || target >= len(items) {
		return false, nil
	}
	moving := items[i]

	// target indexes the list without the moving item.
	key, err := d.insertionKey(ctx, items, i, target-1, target)
	if err != nil {
		return false, err
	}

	_, err = d.items.UpdateItem(ctx, moving.ID, moving.UUID, model.ItemPatch{
		Order: model.Order{d.category: key},
	})
	if err != nil {
		return false, err
	}
	d.cursor = target
	return true, nil
}

// insertionKey computes a key between the items at before and after, where
// both index items with items[skip] taken out (skip < 0 keeps them all).
// When float precision has run out the whole bucket, skipped item included,
// is renumbered first so the stored ranks and the key agree.
func (d *Dispatcher) insertionKey(ctx context.Context, items []model.Item, skip, before, after int) (float64, error) {
	list := without(items, skip)
	key := ordering.InsertionKey(list, before, after, d.category)
	if ordering.Fits(list, before, after, d.category, key) {
		return key, nil
	}

	d.logger.Info("ordering precision exhausted, renumbering",
		slog.String("category", string(d.category)),
	)
	if _, err := d.items.RenumberOrdering(ctx, items, d.category); err != nil {
		return 0, err
	}
	list = without(renumbered(items, d.category), skip)
	return ordering.InsertionKey(list, before, after, d.category), nil
}

func without(items []model.Item, skip int) []model.Item {
	if skip < 0 || skip >= len(items) {
		return items
	}
	out := make([]model.Item, 0, len(items)-1)
	out = append(out, items[:skip]...)
	return append(out, items[skip+1:]...)
}

// renumbered mirrors the ranks RenumberOrdering just stored.
func renumbered(items []model.Item, bucket model.Category) []model.Item {
	out := make([]model.Item, len(items))
	for i, it := range items {
		out[i] = it.Clone()
	}
	ordering.Sort(out, bucket)
	for i := range out {
		if out[i].Order == nil {
			out[i].Order = model.Order{}
		}
		out[i].Order[bucket] = float64(i+1) * ordering.Step
	}
	return out
}

func (d *Dispatcher) editStart(ctx context.Context) bool {
	it, ok := d.selected()
	if !ok {
		return false
	}
	return d.drafts.BeginExisting(ctx, it, len([]rune(it.Title)))
}

func (d *Dispatcher) editEnd(ctx context.Context) (bool, error) {
	slot, ok := d.drafts.Active()
	if !ok {
		return false, nil
	}
	it, _ := d.drafts.Draft(slot)

	// A blank new item is discarded rather than committed.
	if slot == model.SlotNew && strings.TrimSpace(it.Title) == "" {
		return d.drafts.CancelIfUnchanged(ctx), nil
	}

	committed, err := d.drafts.Apply(ctx, it)
	if err != nil {
		return false, err
	}
	d.selectUUID(committed.UUID)
	return true, nil
}

// cancel closes the active draft if it is unchanged. wiggle is set when
// the draft has unsaved content and was kept.
func (d *Dispatcher) cancel(ctx context.Context) (handled, wiggle bool) {
	if _, ok := d.drafts.Active(); !ok {
		return false, false
	}
	if d.drafts.CancelIfUnchanged(ctx) {
		return true, false
	}
	return false, true
}

func (d *Dispatcher) toggleStatus(ctx context.Context) (bool, error) {
	it, ok := d.selected()
	if !ok {
		return false, nil
	}
	next := model.StatusDone
	if it.IsDone() {
		next = model.StatusUndone
	}
	_, err := d.items.UpdateItem(ctx, it.ID, it.UUID, model.ItemPatch{Status: &next})
	return err == nil, err
}

var kindCycle = []model.Kind{
	model.KindTodo,
	model.KindNote,
	model.KindEvent,
	model.KindHabit,
	model.KindJournal,
	model.KindReminder,
}

func (d *Dispatcher) toggleKind(ctx context.Context) (bool, error) {
	it, ok := d.selected()
	if !ok {
		return false, nil
	}
	next := kindCycle[0]
	for i, k := range kindCycle {
		if k == it.Kind {
			next = kindCycle[(i+1)%len(kindCycle)]
			break
		}
	}
	_, err := d.items.UpdateItem(ctx, it.ID, it.UUID, model.ItemPatch{Kind: &next})
	return err == nil, err
}

func (d *Dispatcher) copySelected() bool {
	it, ok := d.selected()
	if !ok {
		return false
	}
	c := it.Clone()
	d.clipboard = &c
	return true
}

// paste inserts a copy of the clipboard below the cursor.
func (d *Dispatcher) paste(ctx context.Context) (bool, error) {
	if d.clipboard == nil {
		return false, nil
	}
	items := d.Items()
	i := d.clampedCursor()
	before, after := i, i+1
	if len(items) == 0 {
		before, after = -1, 0
	}

	key, err := d.insertionKey(ctx, items, -1, before, after)
	if err != nil {
		return false, err
	}

	src := d.clipboard
	it := model.Item{
		UUID:        uuid.NewString(),
		Title:       src.Title,
		Kind:        src.Kind,
		Status:      src.Status,
		Category:    d.category,
		Calendar:    src.Calendar,
		ScheduledAt: d.placeInWeek(src.ScheduledAt, items),
		TZOffset:    src.TZOffset,
		TZName:      src.TZName,
		Order:       model.Order{d.category: key},
	}
	if _, err := d.items.InsertItem(ctx, it); err != nil {
		return false, err
	}
	d.selectUUID(it.UUID)
	return true, nil
}

// create opens a new draft ranked just below the cursor.
func (d *Dispatcher) create(ctx context.Context) (bool, error) {
	items := d.Items()
	i := d.clampedCursor()
	before, after := i, i+1
	if len(items) == 0 {
		before, after = -1, 0
	}

	key, err := d.insertionKey(ctx, items, -1, before, after)
	if err != nil {
		return false, err
	}

	_, ok := d.drafts.BeginNew(ctx, key, d.category, d.placeInWeek(d.now(), items))
	return ok, nil
}

func (d *Dispatcher) deleteSelected(ctx context.Context) (bool, error) {
	it, ok := d.selected()
	if !ok {
		return false, nil
	}
	if err := d.items.SoftDeleteItem(ctx, it); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// placeInWeek keeps t when it falls in the displayed week and otherwise
// schedules on the selected item's day, or the first day of the week.
func (d *Dispatcher) placeInWeek(t time.Time, items []model.Item) time.Time {
	q := d.query()
	if !t.Before(q.Start) && !t.After(q.End) {
		return t
	}
	if len(items) > 0 {
		return items[d.clampedCursor()].ScheduledAt
	}
	return q.Start
}

func (d *Dispatcher) selectUUID(id string) {
	for i, it := range d.Items() {
		if it.UUID == id {
			d.cursor = i
			return
		}
	}
}

func (d *Dispatcher) showWeek(start time.Time) {
	d.weekStart = start
	d.cursor = 0
	d.resubscribe()
}

// resubscribe points the live query at the displayed week. Must be called
// with mu held.
func (d *Dispatcher) resubscribe() {
	if d.unsub != nil {
		d.unsub()
	}
	d.unsub = d.items.Subscribe(d.query(), d.refresh)
}

// refresh receives live query results. It runs on whichever goroutine
// committed the change and only touches the view lock.
func (d *Dispatcher) refresh(items []model.Item) {
	d.viewMu.Lock()
	d.view = items
	fn := d.onChange
	d.viewMu.Unlock()

	d.drafts.CheckIntegrity(context.Background())
	if fn != nil {
		fn(items)
	}
}
