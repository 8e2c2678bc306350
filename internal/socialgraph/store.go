package socialgraph

import (
	"context"
)

// Edge is a persisted friendship between two users. Endpoints are stored
// in canonical order (UserA < UserB) so each undirected edge has one row.
type Edge struct {
	UserA string `json:"userA"`
	UserB string `json:"userB"`
}

// canonical returns the pair in canonical storage order.
func canonical(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// Store persists friendship edges so the in-memory graph can be rebuilt
// on startup.
type Store interface {
	SaveEdge(ctx context.Context, a, b string) error
	DeleteEdge(ctx context.Context, a, b string) error
	ListEdges(ctx context.Context) ([]Edge, error)
}

// Rehydrate loads every persisted edge into g.
func Rehydrate(ctx context.Context, g *Graph, store Store) (int, error) {
	edges, err := store.ListEdges(ctx)
	if err != nil {
		return 0, err
	}
	for _, e := range edges {
		g.AddEdge(e.UserA, e.UserB)
	}
	return len(edges), nil
}
