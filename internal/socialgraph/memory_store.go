package socialgraph

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu    sync.RWMutex
	edges map[Edge]struct{}
}

// NewMemoryStore creates an in-memory edge store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		edges: make(map[Edge]struct{}),
	}
}

func (s *MemoryStore) SaveEdge(ctx context.Context, a, b string) error {
	ca, cb := canonical(a, b)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.edges[Edge{UserA: ca, UserB: cb}] = struct{}{}
	return nil
}

func (s *MemoryStore) DeleteEdge(ctx context.Context, a, b string) error {
	ca, cb := canonical(a, b)

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.edges, Edge{UserA: ca, UserB: cb})
	return nil
}

func (s *MemoryStore) ListEdges(ctx context.Context) ([]Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Edge, 0, len(s.edges))
	for e := range s.edges {
		out = append(out, e)
	}
	return out, nil
}
