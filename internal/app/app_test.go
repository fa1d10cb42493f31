package app_test

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/weekly-planner/internal/action"
	"github.com/nhle/weekly-planner/internal/app"
	"github.com/nhle/weekly-planner/internal/draft"
	"github.com/nhle/weekly-planner/internal/model"
	"github.com/nhle/weekly-planner/internal/store"
	"github.com/nhle/weekly-planner/tests/testutil"
)

func newModel(t *testing.T) (tea.Model, *store.SQLiteStore) {
	t.Helper()
	now := time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)
	clock := testutil.NewClock(now)
	s := testutil.NewTestStore(t, store.WithClock(clock.Now))
	m := draft.NewManager(s, draft.WithDebounce(time.Hour))
	t.Cleanup(m.Close)

	changes := app.NewChanges()
	d := action.NewDispatcher(s, m,
		action.WithClock(clock.Now),
		action.OnChange(changes.Notify),
	)
	t.Cleanup(d.Close)

	var tm tea.Model = app.New(d, changes, nil)
	tm, _ = tm.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return tm, s
}

func press(tm tea.Model, msgs ...tea.KeyMsg) tea.Model {
	for _, msg := range msgs {
		tm, _ = tm.Update(msg)
	}
	return tm
}

func runes(s string) []tea.KeyMsg {
	out := make([]tea.KeyMsg, 0, len(s))
	for _, r := range s {
		out = append(out, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	return out
}

func TestTypeAndCommitNewItem(t *testing.T) {
	tm, s := newModel(t)

	tm = press(tm, runes("o")...)
	// Typed keys go to the input, even ones bound to actions.
	tm = press(tm, runes("jq dishes")...)
	tm = press(tm, tea.KeyMsg{Type: tea.KeyEnter})

	n, err := s.CountItems(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	items, err := s.QueryRange(context.Background(), store.RangeQuery{
		Start:    time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC),
		End:      time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC),
		Category: model.CategoryWeekly,
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "jq dishes", items[0].Title)

	assert.Contains(t, tm.View(), "jq dishes")
}

func TestEscWithUnsavedTextWarns(t *testing.T) {
	tm, _ := newModel(t)

	tm = press(tm, runes("o")...)
	tm = press(tm, runes("half")...)
	tm = press(tm, tea.KeyMsg{Type: tea.KeyEsc})

	assert.Contains(t, tm.View(), "unsaved changes")
}

func TestQuit(t *testing.T) {
	tm, _ := newModel(t)

	_, cmd := tm.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}
