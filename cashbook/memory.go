package cashbook

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/booking-engine/calendar"
	"github.com/warp/booking-engine/ledger"
)

// MemoryStore is an in-memory Store for tests and demo mode.
type MemoryStore struct {
	mu         sync.RWMutex
	categories map[string]Category
	entries    map[string]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		categories: make(map[string]Category),
		entries:    make(map[string]Entry),
	}
}

func (m *MemoryStore) FindCategory(_ context.Context, owner, name string, dir ledger.Direction) (*Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.categories {
		if c.OwnerID == owner && c.Name == name && c.Direction == dir {
			return &c, nil
		}
	}
	return nil, ErrCategoryNotFound
}

func (m *MemoryStore) CreateCategory(_ context.Context, c *Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.categories[c.ID] = *c
	return nil
}

func (m *MemoryStore) CreateEntry(_ context.Context, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.ID] = *e
	return nil
}

func (m *MemoryStore) DeleteEntry(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[id]; !ok {
		return ErrEntryNotFound
	}
	delete(m.entries, id)
	return nil
}

func (m *MemoryStore) ListEntries(_ context.Context, owner string, from, to calendar.Date) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Entry
	for _, e := range m.entries {
		if e.OwnerID == owner && !e.Date.Before(from) && !e.Date.After(to) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// CategoryCount reports how many categories exist.
func (m *MemoryStore) CategoryCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.categories)
}
