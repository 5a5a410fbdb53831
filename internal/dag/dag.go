// Package dag implements the hand-rolled directed-acyclic-graph primitives
// heraclitus needs for artifact graphs and version graphs: cycle-checked
// edge insertion, topological sort, and the induced-ancestor walk the
// composition-map algorithm uses. No DAG library is used here because none
// appears anywhere in the reference corpus this module was built from —
// every graph-shaped concern there is hand-rolled the same way.
package dag

import (
	"sort"

	"github.com/google/uuid"
	"github.com/heraclitus/heraclitus/internal/herror"
)

// Edge is a directed edge carrying an arbitrary label (an ArtifactRelation
// or VersionRelation in the callers of this package).
type Edge[L any] struct {
	From  uuid.UUID
	To    uuid.UUID
	Label L
}

// Graph is a generic directed graph over node ids, with cycle checking on
// insertion. The zero value is not usable; use New.
type Graph[L any] struct {
	order []uuid.UUID
	known map[uuid.UUID]bool
	out   map[uuid.UUID][]Edge[L]
	in    map[uuid.UUID][]Edge[L]
}

// New constructs an empty graph.
func New[L any]() *Graph[L] {
	return &Graph[L]{
		known: make(map[uuid.UUID]bool),
		out:   make(map[uuid.UUID][]Edge[L]),
		in:    make(map[uuid.UUID][]Edge[L]),
	}
}

// AddNode registers a node id. Idempotent.
func (g *Graph[L]) AddNode(id uuid.UUID) {
	if g.known[id] {
		return
	}
	g.known[id] = true
	g.order = append(g.order, id)
}

// HasNode reports whether id has been registered.
func (g *Graph[L]) HasNode(id uuid.UUID) bool {
	return g.known[id]
}

// Nodes returns all registered node ids in insertion order.
func (g *Graph[L]) Nodes() []uuid.UUID {
	out := make([]uuid.UUID, len(g.order))
	copy(out, g.order)
	return out
}

// AddEdge inserts a from->to edge labeled label, after verifying both
// endpoints exist and that adding it would not close a cycle. Returns a
// herror.Cycle error if it would.
func (g *Graph[L]) AddEdge(from, to uuid.UUID, label L) error {
	if !g.known[from] {
		return herror.Model("dag: unknown source node %s", from)
	}
	if !g.known[to] {
		return herror.Model("dag: unknown target node %s", to)
	}
	if from == to || g.reachable(to, from) {
		return herror.Cycle("edge %s -> %s would close a cycle", from, to)
	}
	e := Edge[L]{From: from, To: to, Label: label}
	g.out[from] = append(g.out[from], e)
	g.in[to] = append(g.in[to], e)
	return nil
}

// reachable reports whether to is reachable from `from` following out-edges.
func (g *Graph[L]) reachable(from, to uuid.UUID) bool {
	if from == to {
		return true
	}
	visited := make(map[uuid.UUID]bool)
	stack := []uuid.UUID{from}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[n] {
			continue
		}
		visited[n] = true
		if n == to {
			return true
		}
		for _, e := range g.out[n] {
			if !visited[e.To] {
				stack = append(stack, e.To)
			}
		}
	}
	return false
}

// OutEdges returns edges leaving id, in insertion order.
func (g *Graph[L]) OutEdges(id uuid.UUID) []Edge[L] {
	return append([]Edge[L](nil), g.out[id]...)
}

// InEdges returns edges entering id, in insertion order.
func (g *Graph[L]) InEdges(id uuid.UUID) []Edge[L] {
	return append([]Edge[L](nil), g.in[id]...)
}

// Toposort returns all nodes in a topological order (sources before sinks),
// using Kahn's algorithm for a stable, implementation-defined tie-break on
// insertion order. Returns herror.Cycle if the graph is not acyclic (which
// AddEdge should already have prevented, but the module's build operations
// re-verify before committing a fresh description).
func (g *Graph[L]) Toposort() ([]uuid.UUID, error) {
	indegree := make(map[uuid.UUID]int, len(g.order))
	pos := make(map[uuid.UUID]int, len(g.order))
	for i, id := range g.order {
		indegree[id] = len(g.in[id])
		pos[id] = i
	}

	var ready []uuid.UUID
	for _, id := range g.order {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}

	result := make([]uuid.UUID, 0, len(g.order))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return pos[ready[i]] < pos[ready[j]] })
		n := ready[0]
		ready = ready[1:]
		result = append(result, n)
		for _, e := range g.out[n] {
			indegree[e.To]--
			if indegree[e.To] == 0 {
				ready = append(ready, e.To)
			}
		}
	}

	if len(result) != len(g.order) {
		return nil, herror.Cycle("graph is not acyclic")
	}
	return result, nil
}

// InducedAncestors computes the order the composition-map algorithm walks:
// starting at v and following In-edges whose label satisfies filter
// (restricting to "Parent" edges), producing an order with v first and
// every node appearing before all of its own ancestors within the induced
// set. Diamond ancestries (merge versions with multiple parents) are
// handled: sibling order is deterministic but unconstrained, since the
// composition algorithm's locked/unresolved bookkeeping does not depend on
// which sibling is visited first.
func (g *Graph[L]) InducedAncestors(v uuid.UUID, filter func(L) bool) []uuid.UUID {
	// Step 1: collect the ancestor set (v plus everything reachable by
	// repeatedly following filtered in-edges).
	set := map[uuid.UUID]bool{v: true}
	stack := []uuid.UUID{v}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, e := range g.in[n] {
			if !filter(e.Label) {
				continue
			}
			if !set[e.From] {
				set[e.From] = true
				stack = append(stack, e.From)
			}
		}
	}

	// Step 2: Kahn toposort restricted to the induced set, over the
	// filtered edges in their natural parent->child direction (so parents
	// come out first).
	indegree := make(map[uuid.UUID]int, len(set))
	for n := range set {
		count := 0
		for _, e := range g.in[n] {
			if filter(e.Label) && set[e.From] {
				count++
			}
		}
		indegree[n] = count
	}

	var ready []uuid.UUID
	for n := range set {
		if indegree[n] == 0 {
			ready = append(ready, n)
		}
	}

	parentsFirst := make([]uuid.UUID, 0, len(set))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return less(ready[i], ready[j]) })
		n := ready[0]
		ready = ready[1:]
		parentsFirst = append(parentsFirst, n)
		for _, e := range g.out[n] {
			if !filter(e.Label) || !set[e.To] {
				continue
			}
			indegree[e.To]--
			if indegree[e.To] == 0 {
				ready = append(ready, e.To)
			}
		}
	}

	// Step 3: reverse, so the most-downstream node (v) comes first.
	childrenFirst := make([]uuid.UUID, len(parentsFirst))
	for i, n := range parentsFirst {
		childrenFirst[len(parentsFirst)-1-i] = n
	}
	return childrenFirst
}

func less(a, b uuid.UUID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
