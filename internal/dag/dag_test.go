package dag

import (
	"testing"

	"github.com/google/uuid"
)

func TestAddEdgeRejectsCycle(t *testing.T) {
	g := New[string]()
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	g.AddNode(a)
	g.AddNode(b)
	g.AddNode(c)

	if err := g.AddEdge(a, b, "rel"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := g.AddEdge(b, c, "rel"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := g.AddEdge(c, a, "rel"); err == nil {
		t.Fatal("expected cycle error, got nil")
	}
}

func TestToposortOrdersSourcesBeforeSinks(t *testing.T) {
	g := New[string]()
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	g.AddNode(a)
	g.AddNode(b)
	g.AddNode(c)
	mustAddEdge(t, g, a, b, "rel")
	mustAddEdge(t, g, b, c, "rel")

	order, err := g.Toposort()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pos := indexOf(order)
	if !(pos[a] < pos[b] && pos[b] < pos[c]) {
		t.Fatalf("expected a < b < c in %v", order)
	}
}

func TestInducedAncestorsVisitsTargetFirst(t *testing.T) {
	g := New[string]()
	root, mid, tip := uuid.New(), uuid.New(), uuid.New()
	g.AddNode(root)
	g.AddNode(mid)
	g.AddNode(tip)
	mustAddEdge(t, g, root, mid, "Parent")
	mustAddEdge(t, g, mid, tip, "Parent")

	order := g.InducedAncestors(tip, func(l string) bool { return l == "Parent" })
	if len(order) != 3 || order[0] != tip || order[2] != root {
		t.Fatalf("unexpected order: %v", order)
	}
}

func TestInducedAncestorsHandlesMerge(t *testing.T) {
	g := New[string]()
	a, b, m := uuid.New(), uuid.New(), uuid.New()
	g.AddNode(a)
	g.AddNode(b)
	g.AddNode(m)
	mustAddEdge(t, g, a, m, "Parent")
	mustAddEdge(t, g, b, m, "Parent")

	order := g.InducedAncestors(m, func(l string) bool { return l == "Parent" })
	if len(order) != 3 || order[0] != m {
		t.Fatalf("expected merge version first, got %v", order)
	}
}

func mustAddEdge(t *testing.T, g *Graph[string], from, to uuid.UUID, label string) {
	t.Helper()
	if err := g.AddEdge(from, to, label); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
}

func indexOf(order []uuid.UUID) map[uuid.UUID]int {
	pos := make(map[uuid.UUID]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	return pos
}
