package flags

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is an in-memory decision store, used when no database is
// configured and in tests.
type MemoryStore struct {
	mu   sync.RWMutex
	byID map[string]*Decision
	// ordered holds decisions in insertion order, oldest first. Reads
	// walk it backwards, which matches newest-first keyset pagination.
	ordered []*Decision
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]*Decision)}
}

func (m *MemoryStore) Save(_ context.Context, d *Decision) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *d
	m.byID[d.ID] = &cp
	m.ordered = append(m.ordered, &cp)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Decision, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("decision %s not found", id)
	}
	cp := *d
	return &cp, nil
}

func (m *MemoryStore) List(_ context.Context, filter ListFilter, before time.Time, beforeID string, limit int) ([]*Decision, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Decision, 0, limit)
	for i := len(m.ordered) - 1; i >= 0 && len(out) < limit; i-- {
		d := m.ordered[i]
		if !before.IsZero() && !olderThan(d, before, beforeID) {
			continue
		}
		if filter.User != "" && d.User != filter.User {
			continue
		}
		if filter.FlaggedOnly && !d.Flagged {
			continue
		}
		cp := *d
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemoryStore) Count(_ context.Context, flaggedOnly bool) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !flaggedOnly {
		return len(m.ordered), nil
	}
	n := 0
	for _, d := range m.ordered {
		if d.Flagged {
			n++
		}
	}
	return n, nil
}

// olderThan implements the (createdAt, id) keyset comparison used for
// cursor pagination.
func olderThan(d *Decision, before time.Time, beforeID string) bool {
	if d.CreatedAt.Before(before) {
		return true
	}
	return d.CreatedAt.Equal(before) && d.ID < beforeID
}
