package store

import (
	"context"
	"log/slog"

	"github.com/nhle/weekly-planner/internal/model"
)

type subscription struct {
	q  RangeQuery
	fn func([]model.Item)
}

// Subscribe registers fn as a live query over q. fn receives the current
// result immediately and again after every committed mutation whose old or
// new row image falls inside q. Callbacks run synchronously on the
// mutating goroutine.
func (s *SQLiteStore) Subscribe(q RangeQuery, fn func([]model.Item)) func() {
	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	sub := &subscription{q: q, fn: fn}
	s.subs[id] = sub
	s.subsMu.Unlock()

	s.refresh(context.Background(), sub)

	return func() {
		s.subsMu.Lock()
		delete(s.subs, id)
		s.subsMu.Unlock()
	}
}

// notify re-runs every subscription touched by one of the given row images.
func (s *SQLiteStore) notify(images ...model.Item) {
	s.subsMu.Lock()
	var hit []*subscription
	for _, sub := range s.subs {
		for _, it := range images {
			if sub.q.Matches(it) {
				hit = append(hit, sub)
				break
			}
		}
	}
	s.subsMu.Unlock()

	for _, sub := range hit {
		s.refresh(context.Background(), sub)
	}
}

func (s *SQLiteStore) refresh(ctx context.Context, sub *subscription) {
	items, err := s.QueryRange(ctx, sub.q)
	if err != nil {
		s.logger.Error("refreshing live query",
			slog.String("category", string(sub.q.Category)),
			slog.String("error", err.Error()),
		)
		return
	}
	sub.fn(items)
}
