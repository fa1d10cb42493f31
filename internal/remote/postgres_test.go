package remote

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/weekly-planner/internal/model"
)

func newTestPostgres(t *testing.T) *Postgres {
	t.Helper()
	dsn := os.Getenv("PLANNER_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("PLANNER_TEST_POSTGRES_DSN not set")
	}

	p, err := NewPostgres(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func TestPostgres_PushPullRoundTrip(t *testing.T) {
	p := newTestPostgres(t)
	ctx := context.Background()
	owner := "owner-" + uuid.NewString()
	t0 := time.Now().UTC().Truncate(time.Millisecond)

	it := sampleItem("000000000020", t0)
	it.UUID = uuid.NewString()
	deleted := t0.Add(time.Second)
	it.DeletedAt = &deleted

	require.NoError(t, p.Push(ctx, owner, []model.Item{it}))

	got, err := p.Pull(ctx, owner, t0.Add(-time.Second))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, it.UUID, got[0].UUID)
	assert.Equal(t, it.Title, got[0].Title)
	assert.True(t, it.ModifiedAt.Equal(got[0].ModifiedAt))
	require.NotNil(t, got[0].DeletedAt)
	require.NotNil(t, got[0].OwnerID)
	assert.Equal(t, owner, *got[0].OwnerID)
	assert.Equal(t, 1000.0, got[0].Order[model.CategoryWeekly])

	none, err := p.Pull(ctx, owner, t0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestPostgres_UpsertKeepsNewerRow(t *testing.T) {
	p := newTestPostgres(t)
	ctx := context.Background()
	owner := "owner-" + uuid.NewString()
	t0 := time.Now().UTC().Truncate(time.Millisecond)

	newer := sampleItem("000000000021", t0.Add(time.Minute))
	newer.UUID = uuid.NewString()
	newer.Title = "newer"
	require.NoError(t, p.Push(ctx, owner, []model.Item{newer}))

	older := newer.Clone()
	older.Title = "older"
	older.ModifiedAt = t0
	require.NoError(t, p.Push(ctx, owner, []model.Item{older}))

	got, err := p.Pull(ctx, owner, time.Time{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "newer", got[0].Title)
}
