package socialgraph

import (
	"fmt"
	"testing"
)

func buildGraph(edges [][2]string) *Graph {
	g := New()
	for _, e := range edges {
		g.AddEdge(e[0], e[1])
	}
	return g
}

func assertSet(t *testing.T, got map[string]struct{}, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d members %v, got %d: %v", len(want), want, len(got), got)
	}
	for _, w := range want {
		if _, ok := got[w]; !ok {
			t.Errorf("expected member %q in %v", w, got)
		}
	}
}

func TestAddEdge_Symmetric(t *testing.T) {
	g := New()
	if !g.AddEdge("1", "2") {
		t.Fatal("expected new edge")
	}
	if !g.HasEdge("1", "2") || !g.HasEdge("2", "1") {
		t.Error("edge should be visible from both endpoints")
	}
}

func TestAddEdge_Idempotent(t *testing.T) {
	g := New()
	g.AddEdge("1", "2")
	if g.AddEdge("1", "2") {
		t.Error("re-adding an existing edge should be a no-op")
	}
	if g.AddEdge("2", "1") {
		t.Error("re-adding the reversed edge should be a no-op")
	}
	if g.EdgeCount() != 1 {
		t.Errorf("expected 1 edge, got %d", g.EdgeCount())
	}
}

func TestAddEdge_RejectsSelfEdge(t *testing.T) {
	g := New()
	if g.AddEdge("4", "4") {
		t.Error("self-edge should be a no-op")
	}
	if g.EdgeCount() != 0 {
		t.Errorf("expected 0 edges, got %d", g.EdgeCount())
	}
}

func TestRemoveEdge_Inverse(t *testing.T) {
	g := buildGraph([][2]string{{"1", "2"}, {"2", "3"}})

	g.AddEdge("1", "3")
	g.RemoveEdge("1", "3")

	if g.HasEdge("1", "3") {
		t.Error("removed edge should be gone")
	}
	if !g.HasEdge("1", "2") || !g.HasEdge("2", "3") {
		t.Error("unrelated edges must survive a removal")
	}
	if g.EdgeCount() != 2 {
		t.Errorf("expected 2 edges, got %d", g.EdgeCount())
	}
}

func TestRemoveEdge_MissingIsNoop(t *testing.T) {
	g := buildGraph([][2]string{{"1", "2"}})
	if g.RemoveEdge("1", "9") {
		t.Error("removing a non-existent edge should be a no-op")
	}
	if g.RemoveEdge("8", "9") {
		t.Error("removing between unknown users should be a no-op")
	}
}

func TestNeighborsWithinDegree_ZeroIsEmpty(t *testing.T) {
	g := buildGraph([][2]string{{"1", "2"}, {"2", "3"}})
	assertSet(t, g.NeighborsWithinDegree("1", 0))
}

func TestNeighborsWithinDegree_ExcludesAnchor(t *testing.T) {
	// Cycle back to the anchor: 1-2, 2-3, 3-1.
	g := buildGraph([][2]string{{"1", "2"}, {"2", "3"}, {"3", "1"}})
	for d := 0; d <= 4; d++ {
		if _, ok := g.NeighborsWithinDegree("1", d)["1"]; ok {
			t.Errorf("degree %d: anchor must never appear in its own neighborhood", d)
		}
	}
}

func TestNeighborsWithinDegree_Chain(t *testing.T) {
	// 1-2-3-4: at degree 2 from 1, user 4 is still out of reach.
	g := buildGraph([][2]string{{"1", "2"}, {"2", "3"}, {"3", "4"}})

	assertSet(t, g.NeighborsWithinDegree("1", 1), "2")
	assertSet(t, g.NeighborsWithinDegree("1", 2), "2", "3")
	assertSet(t, g.NeighborsWithinDegree("1", 3), "2", "3", "4")
}

func TestNeighborsWithinDegree_BranchingFixture(t *testing.T) {
	g := buildGraph([][2]string{
		{"0", "1"}, {"1", "6"}, {"0", "3"}, {"0", "4"},
		{"3", "4"}, {"4", "4"}, {"3", "5"}, {"6", "7"},
	})

	assertSet(t, g.NeighborsWithinDegree("0", 1), "1", "3", "4")
	assertSet(t, g.NeighborsWithinDegree("0", 2), "1", "3", "4", "5", "6")
	assertSet(t, g.NeighborsWithinDegree("0", 3), "1", "3", "4", "5", "6", "7")
}

func TestNeighborsWithinDegree_MonotoneInDegree(t *testing.T) {
	g := buildGraph([][2]string{
		{"a", "b"}, {"b", "c"}, {"c", "d"}, {"d", "e"}, {"b", "e"}, {"e", "f"},
	})

	prev := g.NeighborsWithinDegree("a", 0)
	for d := 1; d <= 6; d++ {
		cur := g.NeighborsWithinDegree("a", d)
		for member := range prev {
			if _, ok := cur[member]; !ok {
				t.Fatalf("degree %d lost member %q present at degree %d", d, member, d-1)
			}
		}
		prev = cur
	}
}

func TestNeighborsWithinDegree_UnknownAnchor(t *testing.T) {
	g := buildGraph([][2]string{{"1", "2"}})
	assertSet(t, g.NeighborsWithinDegree("missing", 3))
}

func TestNeighborsWithinDegree_StopsOnEmptyFrontier(t *testing.T) {
	g := buildGraph([][2]string{{"1", "2"}})
	// Degree far beyond the component size must terminate and stay stable.
	assertSet(t, g.NeighborsWithinDegree("1", 1000), "2")
}

func TestNeighborsWithinDegree_UnfriendShrinksReach(t *testing.T) {
	g := buildGraph([][2]string{{"1", "2"}, {"2", "3"}})
	assertSet(t, g.NeighborsWithinDegree("1", 2), "2", "3")

	g.RemoveEdge("2", "3")
	assertSet(t, g.NeighborsWithinDegree("1", 2), "2")
}

func TestConcurrentTraversals(t *testing.T) {
	g := New()
	for i := 0; i < 50; i++ {
		g.AddEdge(fmt.Sprint(i), fmt.Sprint(i+1))
	}

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				g.NeighborsWithinDegree("0", 5)
			}
		}()
	}
	for i := 0; i < 100; i++ {
		g.AddEdge(fmt.Sprint(i), fmt.Sprint(i+2))
	}
	for i := 0; i < 8; i++ {
		<-done
	}
}
