package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/weekly-planner/internal/model"
)

func TestDrafts_RoundTrip(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	committed := insert(t, s, newItem("committed", monday, 1000))
	editing := committed.Clone()
	editing.Title = "committed, but edited"

	fresh := newItem("", monday, 1500)

	require.NoError(t, s.SaveDraft(ctx, model.SlotExisting, editing))
	require.NoError(t, s.SaveDraft(ctx, model.SlotNew, fresh))

	fresh.Title = "typing"
	require.NoError(t, s.SaveDraft(ctx, model.SlotNew, fresh))

	drafts, err := s.LoadDrafts(ctx)
	require.NoError(t, err)
	require.Len(t, drafts, 2)

	assert.Equal(t, committed.ID, drafts[model.SlotExisting].ID)
	assert.Equal(t, "committed, but edited", drafts[model.SlotExisting].Title)
	assert.Equal(t, fresh.UUID, drafts[model.SlotNew].UUID)
	assert.Equal(t, "typing", drafts[model.SlotNew].Title)
	assert.Equal(t, 1500.0, drafts[model.SlotNew].Order[model.CategoryWeekly])

	// Drafts never leak into committed queries.
	items, err := s.QueryRange(ctx, week)
	require.NoError(t, err)
	assert.Equal(t, []string{"committed"}, titles(items))

	require.NoError(t, s.DeleteDraft(ctx, model.SlotNew))
	require.NoError(t, s.DeleteDraft(ctx, model.SlotNew))

	drafts, err = s.LoadDrafts(ctx)
	require.NoError(t, err)
	assert.Len(t, drafts, 1)
	assert.Contains(t, drafts, model.SlotExisting)
}

func TestDrafts_UnknownSlot(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.SaveDraft(ctx, model.Slot("other"), newItem("x", monday, 1)), model.ErrLogic)
	assert.ErrorIs(t, s.DeleteDraft(ctx, model.Slot("other")), model.ErrLogic)
}
