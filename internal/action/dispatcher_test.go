package action_test

import (
	"context"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/weekly-planner/internal/action"
	"github.com/nhle/weekly-planner/internal/draft"
	"github.com/nhle/weekly-planner/internal/model"
	"github.com/nhle/weekly-planner/internal/store"
	"github.com/nhle/weekly-planner/tests/testutil"
)

var (
	// Wednesday.
	now    = time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)
	monday = time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)
)

type fakeSyncer struct{ n atomic.Int32 }

func (f *fakeSyncer) Trigger() { f.n.Add(1) }

type fixture struct {
	store  *store.SQLiteStore
	drafts *draft.Manager
	d      *action.Dispatcher
	syncer *fakeSyncer
	ctx    context.Context
}

func setup(t *testing.T) *fixture {
	t.Helper()
	clock := testutil.NewClock(now)
	s := testutil.NewTestStore(t, store.WithClock(clock.Now))
	m := draft.NewManager(s, draft.WithDebounce(time.Hour))
	t.Cleanup(m.Close)

	f := &fixture{store: s, drafts: m, syncer: &fakeSyncer{}, ctx: context.Background()}
	f.d = action.NewDispatcher(s, m,
		action.WithClock(clock.Now),
		action.WithSyncer(f.syncer),
	)
	t.Cleanup(f.d.Close)
	return f
}

func (f *fixture) insert(t *testing.T, title string, rank float64) model.Item {
	t.Helper()
	id, err := f.store.InsertItem(f.ctx, model.Item{
		UUID:        uuid.NewString(),
		Title:       title,
		Category:    model.CategoryWeekly,
		ScheduledAt: monday.Add(9 * time.Hour),
		Order:       model.Order{model.CategoryWeekly: rank},
	})
	require.NoError(t, err)
	it, err := f.store.GetItemByID(f.ctx, id)
	require.NoError(t, err)
	return *it
}

func (f *fixture) do(t *testing.T, a action.Action) action.Outcome {
	t.Helper()
	out := f.d.Dispatch(f.ctx, a)
	require.NoError(t, out.Err)
	return out
}

func titles(items []model.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Title
	}
	return out
}

func TestWeekStart(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
	}{
		{"monday midnight", monday},
		{"wednesday", now},
		{"sunday night", time.Date(2026, 10, 18, 23, 59, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, monday, action.WeekStart(tt.in))
		})
	}
}

func TestParse(t *testing.T) {
	a, ok := action.Parse("Move-Up")
	require.True(t, ok)
	assert.Equal(t, action.MoveUp, a)
	assert.Equal(t, "sync-once", action.SyncOnce.String())

	_, ok = action.Parse("fly")
	assert.False(t, ok)
}

func TestCursorNavigation(t *testing.T) {
	f := setup(t)
	f.insert(t, "a", 1000)
	f.insert(t, "b", 2000)
	f.insert(t, "c", 3000)

	assert.Equal(t, []string{"a", "b", "c"}, titles(f.d.Items()))
	assert.False(t, f.do(t, action.Up).Handled)

	assert.True(t, f.do(t, action.Down).Handled)
	assert.True(t, f.do(t, action.Down).Handled)
	assert.False(t, f.do(t, action.Down).Handled)
	assert.Equal(t, 2, f.d.Cursor())

	f.do(t, action.Up)
	sel, ok := f.d.Selected()
	require.True(t, ok)
	assert.Equal(t, "b", sel.Title)
}

func TestMoveUpAndDown(t *testing.T) {
	f := setup(t)
	f.insert(t, "a", 1000)
	f.insert(t, "b", 2000)
	f.insert(t, "c", 3000)

	f.do(t, action.Down)
	assert.True(t, f.do(t, action.MoveUp).Handled)
	assert.Equal(t, []string{"b", "a", "c"}, titles(f.d.Items()))
	assert.Equal(t, 0, f.d.Cursor())

	assert.False(t, f.do(t, action.MoveUp).Handled)

	assert.True(t, f.do(t, action.MoveDown).Handled)
	assert.Equal(t, []string{"a", "b", "c"}, titles(f.d.Items()))
	assert.Equal(t, 1, f.d.Cursor())
}

func TestMove_RenumbersWhenPrecisionRunsOut(t *testing.T) {
	f := setup(t)
	f.insert(t, "a", 1000)
	f.insert(t, "b", math.Nextafter(1000, math.Inf(1)))
	f.insert(t, "c", 5000)

	f.do(t, action.Down)
	f.do(t, action.Down)
	assert.True(t, f.do(t, action.MoveUp).Handled)

	items := f.d.Items()
	assert.Equal(t, []string{"a", "c", "b"}, titles(items))
	for i := 1; i < len(items); i++ {
		assert.Less(t, items[i-1].Order[model.CategoryWeekly], items[i].Order[model.CategoryWeekly])
	}
}

func TestMove_RenumbersMovingItemToo(t *testing.T) {
	f := setup(t)
	p := math.Nextafter(1000, math.Inf(1))
	f.insert(t, "m", 1000)
	f.insert(t, "p", p)
	f.insert(t, "q", math.Nextafter(p, math.Inf(1)))

	assert.True(t, f.do(t, action.MoveDown).Handled)

	items := f.d.Items()
	assert.Equal(t, []string{"p", "m", "q"}, titles(items))
	assert.Equal(t, 1, f.d.Cursor())
	for i := 1; i < len(items); i++ {
		assert.Less(t, items[i-1].Order[model.CategoryWeekly], items[i].Order[model.CategoryWeekly])
	}
}

func TestCreate_CommitsDraftBelowCursor(t *testing.T) {
	f := setup(t)
	f.insert(t, "a", 1000)
	f.insert(t, "b", 2000)

	assert.True(t, f.do(t, action.Create).Handled)
	slot, editing := f.drafts.Active()
	require.True(t, editing)
	assert.Equal(t, model.SlotNew, slot)

	require.True(t, f.d.EditTitle("buy milk"))
	assert.True(t, f.do(t, action.EditEnd).Handled)

	_, editing = f.drafts.Active()
	assert.False(t, editing)
	assert.Equal(t, []string{"a", "buy milk", "b"}, titles(f.d.Items()))
	assert.Equal(t, 1, f.d.Cursor())

	created := f.d.Items()[1]
	assert.Equal(t, now, created.ScheduledAt)
	assert.Equal(t, 1500.0, created.Order[model.CategoryWeekly])
}

func TestCreate_InEmptyWeek(t *testing.T) {
	f := setup(t)

	f.do(t, action.Create)
	f.d.EditTitle("first")
	f.do(t, action.EditEnd)

	items := f.d.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 1000.0, items[0].Order[model.CategoryWeekly])
}

func TestEditEnd_BlankNewItemIsDiscarded(t *testing.T) {
	f := setup(t)

	f.do(t, action.Create)
	f.d.EditTitle("  ")
	assert.True(t, f.do(t, action.EditEnd).Handled)

	_, editing := f.drafts.Active()
	assert.False(t, editing)
	n, err := f.store.CountItems(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEditing_BlocksOtherActions(t *testing.T) {
	f := setup(t)
	f.insert(t, "a", 1000)
	f.insert(t, "b", 2000)

	require.True(t, f.do(t, action.EditStart).Handled)

	for _, a := range []action.Action{action.Down, action.Delete, action.NextWeek, action.Quit, action.Create} {
		out := f.do(t, a)
		assert.True(t, out.Blocked, a.String())
		assert.False(t, out.Handled, a.String())
	}
	assert.Equal(t, 0, f.d.Cursor())
	assert.Len(t, f.d.Items(), 2)

	assert.True(t, f.do(t, action.Cancel).Handled)
	assert.True(t, f.do(t, action.Down).Handled)
}

func TestCancel_WigglesOnUnsavedEdits(t *testing.T) {
	f := setup(t)
	orig := f.insert(t, "call mum", 1000)

	f.do(t, action.EditStart)
	require.True(t, f.d.EditTitle("call mum back"))

	out := f.do(t, action.Cancel)
	assert.True(t, out.Wiggle)
	assert.False(t, out.Handled)
	_, editing := f.drafts.Active()
	assert.True(t, editing)

	assert.True(t, f.do(t, action.EditEnd).Handled)
	got, err := f.store.GetItemByUUID(f.ctx, orig.UUID)
	require.NoError(t, err)
	assert.Equal(t, "call mum back", got.Title)
	assert.Equal(t, orig.Version+1, got.Version)
}

func TestModal_OnlyCancelCloses(t *testing.T) {
	f := setup(t)
	f.insert(t, "a", 1000)
	f.insert(t, "b", 2000)

	f.do(t, action.Help)
	require.True(t, f.d.ModalOpen())

	assert.True(t, f.do(t, action.Down).Blocked)
	assert.True(t, f.do(t, action.EditEnd).Blocked)
	assert.Equal(t, 0, f.d.Cursor())

	assert.True(t, f.do(t, action.Cancel).Handled)
	assert.False(t, f.d.ModalOpen())
}

func TestToggleStatus(t *testing.T) {
	f := setup(t)
	it := f.insert(t, "a", 1000)

	f.do(t, action.ToggleStatus)
	got, err := f.store.GetItemByUUID(f.ctx, it.UUID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDone, got.Status)
	assert.NotNil(t, got.CompletedAt)

	f.do(t, action.ToggleStatus)
	got, err = f.store.GetItemByUUID(f.ctx, it.UUID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusUndone, got.Status)
	assert.Nil(t, got.CompletedAt)
}

func TestToggleKind_Cycles(t *testing.T) {
	f := setup(t)
	it := f.insert(t, "a", 1000)

	f.do(t, action.ToggleKind)
	got, err := f.store.GetItemByUUID(f.ctx, it.UUID)
	require.NoError(t, err)
	assert.Equal(t, model.KindNote, got.Kind)
}

func TestCopyPaste(t *testing.T) {
	f := setup(t)
	src := f.insert(t, "a", 1000)
	f.insert(t, "b", 2000)

	assert.False(t, f.do(t, action.Paste).Handled)
	assert.True(t, f.do(t, action.Copy).Handled)
	assert.True(t, f.do(t, action.Paste).Handled)

	items := f.d.Items()
	assert.Equal(t, []string{"a", "a", "b"}, titles(items))
	assert.NotEqual(t, src.UUID, items[1].UUID)
	assert.Equal(t, 1, f.d.Cursor())
}

func TestDelete(t *testing.T) {
	f := setup(t)
	it := f.insert(t, "a", 1000)
	f.insert(t, "b", 2000)

	assert.True(t, f.do(t, action.Delete).Handled)
	assert.Equal(t, []string{"b"}, titles(f.d.Items()))

	got, err := f.store.GetItemByUUID(f.ctx, it.UUID)
	require.NoError(t, err)
	assert.True(t, got.IsDeleted())
}

func TestWeekNavigation(t *testing.T) {
	f := setup(t)
	f.insert(t, "this week", 1000)
	_, err := f.store.InsertItem(f.ctx, model.Item{
		UUID:        uuid.NewString(),
		Title:       "next week",
		Category:    model.CategoryWeekly,
		ScheduledAt: monday.AddDate(0, 0, 8),
		Order:       model.Order{model.CategoryWeekly: 1000},
	})
	require.NoError(t, err)

	assert.Equal(t, monday, f.d.Query().Start)

	f.do(t, action.NextWeek)
	assert.Equal(t, monday.AddDate(0, 0, 7), f.d.Query().Start)
	assert.Equal(t, []string{"next week"}, titles(f.d.Items()))

	f.do(t, action.PrevWeek)
	f.do(t, action.PrevWeek)
	assert.Empty(t, f.d.Items())

	f.do(t, action.Today)
	assert.Equal(t, monday, f.d.Query().Start)
	assert.Equal(t, []string{"this week"}, titles(f.d.Items()))
}

func TestLiveRefreshFromOtherWriters(t *testing.T) {
	clock := testutil.NewClock(now)
	s := testutil.NewTestStore(t, store.WithClock(clock.Now))
	m := draft.NewManager(s)
	t.Cleanup(m.Close)

	var seen atomic.Int32
	d := action.NewDispatcher(s, m,
		action.WithClock(clock.Now),
		action.OnChange(func([]model.Item) { seen.Add(1) }),
	)
	t.Cleanup(d.Close)
	base := seen.Load()

	_, err := s.InsertItem(context.Background(), model.Item{
		UUID:        uuid.NewString(),
		Title:       "from sync",
		ScheduledAt: now,
	})
	require.NoError(t, err)

	assert.Greater(t, seen.Load(), base)
	assert.Equal(t, []string{"from sync"}, titles(d.Items()))
}

func TestSyncOnceAndQuit(t *testing.T) {
	f := setup(t)

	assert.True(t, f.do(t, action.SyncOnce).Handled)
	assert.Equal(t, int32(1), f.syncer.n.Load())

	out := f.do(t, action.Quit)
	assert.True(t, out.Quit)
}
