package store_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/weekly-planner/internal/model"
	"github.com/nhle/weekly-planner/internal/store"
	"github.com/nhle/weekly-planner/tests/testutil"
)

func TestLastSyncedAt_EpochWhenNeverSynced(t *testing.T) {
	s, _ := newStore(t)
	insert(t, s, newItem("local only", monday, 1000))

	got, err := s.LastSyncedAt(context.Background())
	require.NoError(t, err)
	assert.Equal(t, time.UnixMilli(0).UTC(), got)
}

func TestMarkSynced_StampsWithoutBumpingVersion(t *testing.T) {
	s, clock := newStore(t)
	ctx := context.Background()
	a := insert(t, s, newItem("a", monday, 1000))
	b := insert(t, s, newItem("b", monday, 2000))

	pushAt := clock.Now().Add(time.Second)
	require.NoError(t, s.MarkSynced(ctx, []string{a.UUID}, pushAt, "user-1"))

	got, err := s.GetItemByUUID(ctx, a.UUID)
	require.NoError(t, err)
	require.NotNil(t, got.SyncedAt)
	assert.Equal(t, pushAt, *got.SyncedAt)
	assert.Equal(t, a.Version, got.Version)
	assert.Equal(t, a.ModifiedAt, got.ModifiedAt)
	require.NotNil(t, got.OwnerID)
	assert.Equal(t, "user-1", *got.OwnerID)

	untouched, err := s.GetItemByUUID(ctx, b.UUID)
	require.NoError(t, err)
	assert.Nil(t, untouched.SyncedAt)

	watermark, err := s.LastSyncedAt(ctx)
	require.NoError(t, err)
	assert.Equal(t, pushAt, watermark)
}

func TestMarkSynced_KeepsExistingOwner(t *testing.T) {
	s, clock := newStore(t)
	ctx := context.Background()
	it := newItem("owned", monday, 1000)
	owner := "someone-else"
	it.OwnerID = &owner
	it = insert(t, s, it)

	require.NoError(t, s.MarkSynced(ctx, []string{it.UUID}, clock.Now(), "user-1"))

	got, err := s.GetItemByUUID(ctx, it.UUID)
	require.NoError(t, err)
	assert.Equal(t, "someone-else", *got.OwnerID)
}

func TestPendingChanges(t *testing.T) {
	s, clock := newStore(t)
	ctx := context.Background()

	synced := insert(t, s, newItem("synced", monday, 1000))
	edited := insert(t, s, newItem("edited after sync", monday, 2000))
	fresh := insert(t, s, newItem("never synced", monday, 3000))

	pushAt := clock.Now()
	require.NoError(t, s.MarkSynced(ctx, []string{synced.UUID, edited.UUID}, pushAt, ""))

	clock.Advance(time.Minute)
	title := "edited again"
	_, err := s.UpdateItem(ctx, edited.ID, edited.UUID, model.ItemPatch{Title: &title})
	require.NoError(t, err)

	pending, err := s.PendingChanges(ctx, pushAt)
	require.NoError(t, err)

	var uuids []string
	for _, it := range pending {
		uuids = append(uuids, it.UUID)
	}
	assert.ElementsMatch(t, []string{edited.UUID, fresh.UUID}, uuids)
}

func TestPendingChanges_IncludesTombstones(t *testing.T) {
	s, clock := newStore(t)
	ctx := context.Background()
	it := insert(t, s, newItem("to delete", monday, 1000))
	require.NoError(t, s.MarkSynced(ctx, []string{it.UUID}, clock.Now(), ""))

	clock.Advance(time.Second)
	require.NoError(t, s.SoftDeleteItem(ctx, it))

	pending, err := s.PendingChanges(ctx, clock.Now().Add(-time.Second))
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.True(t, pending[0].IsDeleted())
}

func TestReconcile_LastWriteWins(t *testing.T) {
	s, clock := newStore(t)
	ctx := context.Background()

	older := insert(t, s, newItem("local older", monday, 1000))
	newer := insert(t, s, newItem("local newer", monday, 2000))
	clock.Advance(time.Hour)

	remoteOlder := older.Clone()
	remoteOlder.Title = "remote wins"
	remoteOlder.Version = 7
	remoteOlder.ModifiedAt = older.ModifiedAt.Add(time.Minute)
	remoteOlder.DeviceID = "device-b"

	remoteStale := newer.Clone()
	remoteStale.Title = "remote loses"
	remoteStale.ModifiedAt = newer.ModifiedAt

	brandNew := newItem("from elsewhere", monday, 3000)
	brandNew.Version = 3
	brandNew.CreatedAt = monday
	brandNew.ModifiedAt = monday.Add(time.Hour)
	brandNew.DeviceID = "device-b"

	res, err := s.Reconcile(ctx, []model.Item{remoteOlder, remoteStale, brandNew})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 1, res.Kept)
	assert.ElementsMatch(t, []string{older.UUID, brandNew.UUID}, res.Applied)

	got, err := s.GetItemByUUID(ctx, older.UUID)
	require.NoError(t, err)
	assert.Equal(t, older.ID, got.ID)
	assert.Equal(t, "remote wins", got.Title)
	assert.Equal(t, int64(7), got.Version)
	assert.Equal(t, remoteOlder.ModifiedAt, got.ModifiedAt)
	assert.Equal(t, "device-b", got.DeviceID)
	assert.Nil(t, got.SyncedAt)

	kept, err := s.GetItemByUUID(ctx, newer.UUID)
	require.NoError(t, err)
	assert.Equal(t, "local newer", kept.Title)

	inserted, err := s.GetItemByUUID(ctx, brandNew.UUID)
	require.NoError(t, err)
	assert.Equal(t, "from elsewhere", inserted.Title)
	assert.Equal(t, int64(3), inserted.Version)
	assert.Nil(t, inserted.SyncedAt)
}

func TestReconcile_RemoteTombstoneHidesLocalRow(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	it := insert(t, s, newItem("deleted elsewhere", monday, 1000))

	remote := it.Clone()
	deletedAt := it.ModifiedAt.Add(time.Minute)
	remote.DeletedAt = &deletedAt
	remote.ModifiedAt = deletedAt

	_, err := s.Reconcile(ctx, []model.Item{remote})
	require.NoError(t, err)

	items, err := s.QueryRange(ctx, week)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestReconcile_FailureRollsBackWholeBatch(t *testing.T) {
	clock := testutil.NewClock(time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC))
	path := filepath.Join(t.TempDir(), "planner.db")
	s, err := store.NewSQLiteStore(path, store.WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	local := insert(t, s, newItem("local title", monday, 1000))

	// A second handle on the same file rejects one pulled row mid-batch.
	raw, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer raw.Close()
	_, err = raw.Exec(`CREATE TRIGGER reject_rotten BEFORE INSERT ON items
		WHEN NEW.title = 'rotten'
		BEGIN SELECT RAISE(ABORT, 'rotten row'); END`)
	require.NoError(t, err)

	newer := local
	newer.Title = "remote title"
	newer.ModifiedAt = local.ModifiedAt.Add(time.Minute)

	fresh := newItem("fresh", monday, 2000)
	fresh.CreatedAt, fresh.ModifiedAt = clock.Now(), clock.Now()
	rotten := newItem("rotten", monday, 3000)
	rotten.CreatedAt, rotten.ModifiedAt = clock.Now(), clock.Now()

	_, err = s.Reconcile(ctx, []model.Item{newer, fresh, rotten})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrStorage)

	n, err := s.CountItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.GetItemByUUID(ctx, local.UUID)
	require.NoError(t, err)
	assert.Equal(t, "local title", got.Title)
	assert.Equal(t, local.ModifiedAt, got.ModifiedAt)

	_, err = s.GetItemByUUID(ctx, fresh.UUID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestClosedStoreReportsStorageErrors(t *testing.T) {
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "planner.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())
	ctx := context.Background()

	_, err = s.InsertItem(ctx, newItem("late", monday, 1000))
	assert.True(t, errors.Is(err, model.ErrStorage), "insert: %v", err)

	_, err = s.CountItems(ctx)
	assert.True(t, errors.Is(err, model.ErrStorage), "count: %v", err)

	_, err = s.QueryRange(ctx, store.RangeQuery{
		Start:    monday,
		End:      monday.AddDate(0, 0, 7),
		Category: model.CategoryWeekly,
	})
	assert.True(t, errors.Is(err, model.ErrStorage), "query: %v", err)

	_, err = s.Reconcile(ctx, []model.Item{newItem("pulled", monday, 1000)})
	assert.True(t, errors.Is(err, model.ErrStorage), "reconcile: %v", err)

	_, err = s.PendingChanges(ctx, time.Time{})
	assert.True(t, errors.Is(err, model.ErrStorage), "pending: %v", err)
}
