package remote

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nhle/weekly-planner/internal/model"
)

// Memory is an in-process backend. It backs the "memory" sync mode and
// lets two local stores sync against each other in tests.
type Memory struct {
	mu      sync.Mutex
	items   map[string]model.Item
	pullErr error
	pushErr error
	pushes  int
}

// NewMemory returns an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{items: make(map[string]model.Item)}
}

// Pull implements Backend.
func (m *Memory) Pull(_ context.Context, ownerID string, since time.Time) ([]model.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pullErr != nil {
		return nil, remoteErr("pulling items", m.pullErr)
	}

	var out []model.Item
	for _, it := range m.items {
		if it.OwnerID == nil || *it.OwnerID != ownerID {
			continue
		}
		if !it.ModifiedAt.After(since) {
			continue
		}
		out = append(out, it.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ModifiedAt.Before(out[j].ModifiedAt)
	})
	return out, nil
}

// Push implements Backend.
func (m *Memory) Push(_ context.Context, ownerID string, items []model.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pushErr != nil {
		return remoteErr("pushing items", m.pushErr)
	}

	m.pushes++
	for _, it := range withOwner(items, ownerID) {
		if cur, ok := m.items[it.UUID]; ok && it.ModifiedAt.Before(cur.ModifiedAt) {
			continue
		}
		it.ID = 0
		m.items[it.UUID] = it
	}
	return nil
}

// Put stores it verbatim, bypassing the last-write-wins guard.
func (m *Memory) Put(it model.Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it = it.Clone()
	it.ID = 0
	m.items[it.UUID] = it
}

// Get returns the stored copy of uuid.
func (m *Memory) Get(uuid string) (model.Item, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[uuid]
	return it.Clone(), ok
}

// Len returns the number of stored rows.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Pushes returns the number of successful Push calls.
func (m *Memory) Pushes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pushes
}

// FailPull makes subsequent pulls fail with err until it is reset to nil.
func (m *Memory) FailPull(err error) {
	m.mu.Lock()
	m.pullErr = err
	m.mu.Unlock()
}

// FailPush makes subsequent pushes fail with err until it is reset to nil.
func (m *Memory) FailPush(err error) {
	m.mu.Lock()
	m.pushErr = err
	m.mu.Unlock()
}
