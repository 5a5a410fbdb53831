// Package artifact implements the artifact graph: an immutable-once-built
// DAG of typed artifacts connected by named, typed relations.
package artifact

import (
	"github.com/google/uuid"
	"github.com/heraclitus/heraclitus/datatype"
	"github.com/heraclitus/heraclitus/internal/dag"
	"github.com/heraclitus/heraclitus/internal/herror"
	"github.com/heraclitus/heraclitus/internal/identity"
)

// Relation is an edge in the artifact graph. Relations are named so an
// artifact may have multiple semantically distinct edges to the same
// neighbor.
type Relation interface {
	RelationName() string
	isRelation()
}

// DtypeDepends marks a structural dependency of one datatype's shape on
// another (e.g. a Blob depending on its Partitioning).
type DtypeDepends struct{ Name string }

func (d DtypeDepends) RelationName() string { return d.Name }
func (DtypeDepends) isRelation()            {}

// ProducedFrom marks a producer artifact's dependency on one of its inputs.
type ProducedFrom struct{ Name string }

func (p ProducedFrom) RelationName() string { return p.Name }
func (ProducedFrom) isRelation()            {}

// Artifact is a node of the artifact graph.
type Artifact struct {
	ID               identity.Identity
	Name             *string
	Dtype            datatype.Descriptor
	SelfPartitioning bool
}

// Graph is the immutable-once-built artifact DAG.
type Graph struct {
	ID        identity.Identity
	artifacts map[uuid.UUID]*Artifact
	edges     *dag.Graph[Relation]
}

// Artifact returns the artifact registered under id, if any.
func (g *Graph) Artifact(id uuid.UUID) (*Artifact, bool) {
	a, ok := g.artifacts[id]
	return a, ok
}

// Artifacts returns every artifact in the graph, in insertion (topological
// construction) order.
func (g *Graph) Artifacts() []*Artifact {
	out := make([]*Artifact, 0, len(g.artifacts))
	for _, id := range g.edges.Nodes() {
		out = append(out, g.artifacts[id])
	}
	return out
}

// InEdges returns the artifact-relation edges entering id.
func (g *Graph) InEdges(id uuid.UUID) []dag.Edge[Relation] {
	return g.edges.InEdges(id)
}

// OutEdges returns the artifact-relation edges leaving id.
func (g *Graph) OutEdges(id uuid.UUID) []dag.Edge[Relation] {
	return g.edges.OutEdges(id)
}

// ParentRef names a dependency of a not-yet-built node on an
// earlier-declared node, by its index in the Description slice passed to
// Build.
type ParentRef struct {
	Index    int
	Relation Relation
}

// Description describes one not-yet-identified artifact node for Build.
type Description struct {
	Name             *string
	Dtype            datatype.Descriptor
	SelfPartitioning bool
	Parents          []ParentRef
}

// Build topologically sorts descs, assigns each a fresh identity, computes
// its content hash from its already-processed parents' hashes (sorted),
// its datatype hash, its name, and its self-partitioning flag, then
// finalizes the graph hash as the combination of all artifact hashes in
// topological order. Returns herror.Cycle if descs is not a DAG.
func Build(descs []Description) (*Graph, map[int]uuid.UUID, error) {
	placeholders := make([]uuid.UUID, len(descs))
	for i := range descs {
		placeholders[i] = placeholderUUID(i)
	}

	order := dag.New[Relation]()
	for _, ph := range placeholders {
		order.AddNode(ph)
	}
	for i, d := range descs {
		for _, p := range d.Parents {
			if p.Index < 0 || p.Index >= len(descs) {
				return nil, nil, herror.Model("artifact description %d references out-of-range parent %d", i, p.Index)
			}
			if err := order.AddEdge(placeholders[p.Index], placeholders[i], p.Relation); err != nil {
				return nil, nil, err
			}
		}
	}

	sorted, err := order.Toposort()
	if err != nil {
		return nil, nil, err
	}

	indexOf := make(map[uuid.UUID]int, len(placeholders))
	for i, ph := range placeholders {
		indexOf[ph] = i
	}

	g := &Graph{
		artifacts: make(map[uuid.UUID]*Artifact, len(descs)),
		edges:     dag.New[Relation](),
	}
	finalID := make(map[int]uuid.UUID, len(descs))
	hashes := make(map[int]uint64, len(descs))

	for _, ph := range sorted {
		idx := indexOf[ph]
		d := descs[idx]

		parentHashes := make([]uint64, 0, len(d.Parents))
		for _, p := range d.Parents {
			parentHashes = append(parentHashes, hashes[p.Index])
		}
		combinedParents := identity.CombineSorted(parentHashes)

		nameBytes := []byte{}
		if d.Name != nil {
			nameBytes = []byte(*d.Name)
		}
		selfPartBytes := []byte{0}
		if d.SelfPartitioning {
			selfPartBytes = []byte{1}
		}
		contentHash := identity.CombineBytes(identity.Combine(combinedParents, d.Dtype.ID.Hash), nameBytes, selfPartBytes)

		id := identity.New(contentHash)
		finalID[idx] = id.UUID
		hashes[idx] = contentHash

		g.artifacts[id.UUID] = &Artifact{
			ID:               id,
			Name:             d.Name,
			Dtype:            d.Dtype,
			SelfPartitioning: d.SelfPartitioning,
		}
		g.edges.AddNode(id.UUID)

		for _, p := range d.Parents {
			if err := g.edges.AddEdge(finalID[p.Index], id.UUID, p.Relation); err != nil {
				return nil, nil, err
			}
		}
	}

	graphHashInput := make([]uint64, 0, len(sorted))
	for _, ph := range sorted {
		graphHashInput = append(graphHashInput, hashes[indexOf[ph]])
	}
	g.ID = identity.New(identity.Combine(graphHashInput...))

	return g, finalID, nil
}

// AddUniformPartitioning appends partitioning to descs and adds a
// DtypeDepends("Partitioning") parent edge from it to every other
// description lacking one, skipping self-partitioning descriptions. It
// must run before Build mints any identities: folding the partitioning
// dependency into a description's Parents here, rather than into an
// already-built Graph's edges, means the dependency contributes to each
// dependent artifact's content hash like every other parent, matching
// original_source's add_uniform_partitioning (which mutates the
// pre-hash ArtifactGraphDescription, not a finalized ArtifactGraph).
func AddUniformPartitioning(descs []Description, partitioning Description) []Description {
	partIdx := len(descs)
	out := make([]Description, len(descs), len(descs)+1)
	copy(out, descs)
	out = append(out, partitioning)

	for i := range out[:partIdx] {
		if out[i].SelfPartitioning {
			continue
		}
		if hasPartitioningParent(out[i].Parents) {
			continue
		}
		out[i].Parents = append(out[i].Parents, ParentRef{
			Index:    partIdx,
			Relation: DtypeDepends{Name: "Partitioning"},
		})
	}
	return out
}

func hasPartitioningParent(parents []ParentRef) bool {
	for _, p := range parents {
		if d, ok := p.Relation.(DtypeDepends); ok && d.Name == "Partitioning" {
			return true
		}
	}
	return false
}

// ReconstructEdge describes one already-hashed artifact-graph edge for
// Reconstruct.
type ReconstructEdge struct {
	From     uuid.UUID
	To       uuid.UUID
	Relation Relation
}

// Reconstruct rebuilds a Graph from already-identified artifacts and edges,
// trusting their stored identities rather than recomputing them from
// scratch. This is the path a storage backend's GetArtifactGraph uses to
// load a previously built graph back from persisted rows; Build, by
// contrast, is for constructing a graph fresh and minting identities for the
// first time.
func Reconstruct(graphID identity.Identity, artifacts []*Artifact, edges []ReconstructEdge) (*Graph, error) {
	g := &Graph{
		ID:        graphID,
		artifacts: make(map[uuid.UUID]*Artifact, len(artifacts)),
		edges:     dag.New[Relation](),
	}
	for _, a := range artifacts {
		g.artifacts[a.ID.UUID] = a
		g.edges.AddNode(a.ID.UUID)
	}
	for _, e := range edges {
		if err := g.edges.AddEdge(e.From, e.To, e.Relation); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func hasPartitioningEdge(edges []dag.Edge[Relation]) bool {
	for _, e := range edges {
		if d, ok := e.Label.(DtypeDepends); ok && d.Name == "Partitioning" {
			return true
		}
	}
	return false
}

// VerifyHash re-derives every artifact's hash and the graph hash from the
// graph's current contents and reports whether they match the stored
// fields, per the identity discipline's verify_hash operation.
func (g *Graph) VerifyHash() bool {
	sorted, err := g.edges.Toposort()
	if err != nil {
		return false
	}
	hashes := make(map[uuid.UUID]uint64, len(sorted))
	for _, id := range sorted {
		a := g.artifacts[id]
		var parentHashes []uint64
		for _, e := range g.edges.InEdges(id) {
			parentHashes = append(parentHashes, hashes[e.From])
		}
		combinedParents := identity.CombineSorted(parentHashes)
		nameBytes := []byte{}
		if a.Name != nil {
			nameBytes = []byte(*a.Name)
		}
		selfPartBytes := []byte{0}
		if a.SelfPartitioning {
			selfPartBytes = []byte{1}
		}
		want := identity.CombineBytes(identity.Combine(combinedParents, a.Dtype.ID.Hash), nameBytes, selfPartBytes)
		if want != a.ID.Hash {
			return false
		}
		hashes[id] = want
	}
	graphInput := make([]uint64, 0, len(sorted))
	for _, id := range sorted {
		graphInput = append(graphInput, hashes[id])
	}
	return identity.Combine(graphInput...) == g.ID.Hash
}

func placeholderUUID(index int) uuid.UUID {
	return uuid.NewSHA1(placeholderNamespace, []byte{byte(index >> 24), byte(index >> 16), byte(index >> 8), byte(index)})
}

var placeholderNamespace = uuid.MustParse("8f14e45f-ceea-467e-9cd4-0d1a2a4d5f0a")
