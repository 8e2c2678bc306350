// Package socialgraph maintains the undirected friendship graph of
// purchasers and answers bounded-depth neighborhood queries.
package socialgraph

import (
	"sync"
)

// Graph is the in-memory friendship graph. The relation is symmetric
// (an edge A-B implies B-A) and irreflexive (self-edges are ignored).
// All access is serialized by a sync.RWMutex: mutations take the write
// lock, traversals run under the read lock and therefore observe a
// consistent snapshot.
type Graph struct {
	mu        sync.RWMutex
	adjacency map[string]map[string]struct{}
	edges     int
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		adjacency: make(map[string]map[string]struct{}),
	}
}

// AddEdge inserts a and b into each other's neighbor set. Re-adding an
// existing edge and self-edges are no-ops. Returns true when a new edge
// was created.
func (g *Graph) AddEdge(a, b string) bool {
	if a == b {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	na := g.getOrCreate(a)
	if _, ok := na[b]; ok {
		return false
	}
	na[b] = struct{}{}
	g.getOrCreate(b)[a] = struct{}{}
	g.edges++
	return true
}

// RemoveEdge removes a and b from each other's neighbor sets. Removing a
// non-existent edge is a no-op. Returns true when an edge was removed.
func (g *Graph) RemoveEdge(a, b string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	na, ok := g.adjacency[a]
	if !ok {
		return false
	}
	if _, ok := na[b]; !ok {
		return false
	}
	delete(na, b)
	delete(g.adjacency[b], a)
	g.edges--
	return true
}

// HasEdge reports whether a and b are direct friends.
func (g *Graph) HasEdge(a, b string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	_, ok := g.adjacency[a][b]
	return ok
}

// Neighbors returns a copy of a user's direct neighbor set.
func (g *Graph) Neighbors(user string) map[string]struct{} {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make(map[string]struct{}, len(g.adjacency[user]))
	for n := range g.adjacency[user] {
		out[n] = struct{}{}
	}
	return out
}

// NeighborsWithinDegree returns every identifier reachable from anchor via
// 1..degree edges, excluding anchor itself. Computed as a level-synchronized
// breadth-first expansion: the discovered set and the frontier are local to
// the call, so concurrent traversals never interfere. Expansion runs exactly
// degree levels, or stops early when the frontier empties. degree <= 0 and
// unknown anchors yield an empty set.
func (g *Graph) NeighborsWithinDegree(anchor string, degree int) map[string]struct{} {
	result := make(map[string]struct{})
	if degree <= 0 {
		return result
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	seen := map[string]struct{}{anchor: {}}
	frontier := []string{anchor}

	for level := 0; level < degree && len(frontier) > 0; level++ {
		var next []string
		for _, node := range frontier {
			for neighbor := range g.adjacency[node] {
				if _, ok := seen[neighbor]; ok {
					continue
				}
				seen[neighbor] = struct{}{}
				result[neighbor] = struct{}{}
				next = append(next, neighbor)
			}
		}
		frontier = next
	}

	return result
}

// EdgeCount returns the number of distinct friendship edges.
func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.edges
}

// UserCount returns the number of users with at least one current or
// past adjacency entry.
func (g *Graph) UserCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.adjacency)
}

// getOrCreate returns the neighbor set for user, creating it if needed.
// Caller must hold the write lock.
func (g *Graph) getOrCreate(user string) map[string]struct{} {
	set, ok := g.adjacency[user]
	if !ok {
		set = make(map[string]struct{})
		g.adjacency[user] = set
	}
	return set
}
