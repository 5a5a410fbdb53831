// Package version implements the version graph: a DAG of versions across
// all artifacts in one artifact graph, their partitions, and their hunks.
package version

import (
	"github.com/google/uuid"
	"github.com/heraclitus/heraclitus/artifact"
	"github.com/heraclitus/heraclitus/datatype"
	"github.com/heraclitus/heraclitus/internal/dag"
	"github.com/heraclitus/heraclitus/internal/herror"
	"github.com/heraclitus/heraclitus/internal/identity"
)

// Status is a version's place in its two-state lifecycle.
type Status int

const (
	Staging Status = iota
	Committed
)

func (s Status) String() string {
	if s == Committed {
		return "committed"
	}
	return "staging"
}

// Relation is an edge in the version graph: either Parent (derives from a
// prior version of the same artifact) or Dependence (consumes a version of
// a dependency artifact, echoing the artifact-graph edge that licenses it).
type Relation interface {
	isVersionRelation()
}

// Parent marks a child-derives-from-prior-version-of-the-same-artifact edge.
type Parent struct{}

func (Parent) isVersionRelation() {}

// Dependence marks a version's consumption of a dependency artifact's
// version; Edge echoes the artifact-graph relation that licenses it.
type Dependence struct{ Edge artifact.Relation }

func (Dependence) isVersionRelation() {}

// IsParent reports whether l is a Parent relation, the filter composition
// map's ancestor walk uses.
func IsParent(l Relation) bool {
	_, ok := l.(Parent)
	return ok
}

// Version is one committed or staging snapshot of an artifact's content.
type Version struct {
	ID             identity.Identity
	Artifact       uuid.UUID
	Status         Status
	Representation datatype.Representation
}

// Completion marks whether a hunk's payload is complete or intentionally
// partial ("ragged"). No core path branches on this beyond storing and
// returning it, per the specification's own open question.
type Completion int

const (
	Complete Completion = iota
	Ragged
)

// Partition names the storage shard a hunk belongs to: the partitioning
// version that defines the scheme, plus an index within it.
type Partition struct {
	Partitioning uuid.UUID
	Index        uint64
}

// Hunk carries one partition's worth of a version's state or delta. The
// payload itself lives in the storage backend, not here.
type Hunk struct {
	ID             identity.Identity
	Version        uuid.UUID
	Partition      Partition
	Representation datatype.Representation
	Completion     Completion
	Precedence     *uuid.UUID
}

// IsValid checks a hunk's representation-compatibility with its version and
// the precedence-only-on-non-state rule.
func (h Hunk) IsValid(v *Version) error {
	if !compatible(v.Representation, h.Representation) {
		return herror.Model("hunk representation %s incompatible with version representation %s", h.Representation, v.Representation)
	}
	if h.Precedence != nil && h.Representation == datatype.State {
		return herror.Model("state hunks may not carry precedence")
	}
	return nil
}

func compatible(versionRep, hunkRep datatype.Representation) bool {
	switch versionRep {
	case datatype.State:
		return hunkRep == datatype.State
	case datatype.CumulativeDelta:
		return hunkRep == datatype.State || hunkRep == datatype.CumulativeDelta
	case datatype.Delta:
		return true
	default:
		return false
	}
}

// Graph is a DAG of versions spanning every artifact of one artifact graph.
type Graph struct {
	versions map[uuid.UUID]*Version
	edges    *dag.Graph[Relation]
	hunks    map[uuid.UUID][]*Hunk
}

// NewGraph constructs an empty version graph.
func NewGraph() *Graph {
	return &Graph{
		versions: make(map[uuid.UUID]*Version),
		edges:    dag.New[Relation](),
		hunks:    make(map[uuid.UUID][]*Hunk),
	}
}

// Version returns the version registered under id, if any.
func (g *Graph) Version(id uuid.UUID) (*Version, bool) {
	v, ok := g.versions[id]
	return v, ok
}

// Versions returns every version currently loaded into the graph.
func (g *Graph) Versions() []*Version {
	out := make([]*Version, 0, len(g.versions))
	for _, id := range g.edges.Nodes() {
		out = append(out, g.versions[id])
	}
	return out
}

// CreateStagingVersion persists v into the graph along with its parent and
// dependence edges. v must be Staging; parents and deps must already be
// present. Idempotent: recreating the same version id rewrites its edges
// rather than erroring, matching the filesystem backend's tolerance for
// redo on repeated create_staging_version calls.
func (g *Graph) CreateStagingVersion(v *Version, parents []uuid.UUID, deps []DependenceRef) error {
	if v.Status != Staging {
		return herror.Model("create_staging_version requires status=Staging, got %s", v.Status)
	}
	g.versions[v.ID.UUID] = v
	g.edges.AddNode(v.ID.UUID)
	for _, p := range parents {
		if !g.edges.HasNode(p) {
			return herror.NotFound("parent version %s not present in graph", p)
		}
		if err := g.edges.AddEdge(p, v.ID.UUID, Parent{}); err != nil {
			return err
		}
	}
	for _, d := range deps {
		if !g.edges.HasNode(d.Version) {
			return herror.NotFound("dependency version %s not present in graph", d.Version)
		}
		if err := g.edges.AddEdge(d.Version, v.ID.UUID, Dependence{Edge: d.Relation}); err != nil {
			return err
		}
	}
	return nil
}

// DependenceRef names one dependency edge to wire when staging a version.
type DependenceRef struct {
	Version  uuid.UUID
	Relation artifact.Relation
}

// CommitVersion transitions v from Staging to Committed. Committing an
// already-committed version is an InvalidState failure (surfaced here as a
// herror.Model error), matching the round-trip law that commit_version is
// not idempotent.
func (g *Graph) CommitVersion(id uuid.UUID) error {
	v, ok := g.versions[id]
	if !ok {
		return herror.NotFound("version %s not found", id)
	}
	if v.Status != Staging {
		return herror.Model("invalid state: version %s is already %s", id, v.Status)
	}
	v.Status = Committed
	return nil
}

// ParentsOf returns the parent version ids of id, in insertion order.
func (g *Graph) ParentsOf(id uuid.UUID) []uuid.UUID {
	var out []uuid.UUID
	for _, e := range g.edges.InEdges(id) {
		if IsParent(e.Label) {
			out = append(out, e.From)
		}
	}
	return out
}

// DependenceEdgesOf returns the dependence edges entering id.
func (g *Graph) DependenceEdgesOf(id uuid.UUID) []dag.Edge[Relation] {
	var out []dag.Edge[Relation]
	for _, e := range g.edges.InEdges(id) {
		if _, ok := e.Label.(Dependence); ok {
			out = append(out, e)
		}
	}
	return out
}

// DependentsOf returns the version ids that directly depend on id via a
// Dependence edge matching relationName (or any Dependence edge, if
// relationName is empty).
func (g *Graph) DependentsOf(id uuid.UUID, relationName string) []uuid.UUID {
	var out []uuid.UUID
	for _, e := range g.edges.OutEdges(id) {
		dep, ok := e.Label.(Dependence)
		if !ok {
			continue
		}
		if relationName == "" || dep.Edge.RelationName() == relationName {
			out = append(out, e.To)
		}
	}
	return out
}

// InducedAncestors returns the Parent-edge ancestor walk order the
// composition-map algorithm consumes: v first, then progressively older
// ancestors.
func (g *Graph) InducedAncestors(v uuid.UUID) []uuid.UUID {
	return g.edges.InducedAncestors(v, IsParent)
}

// Partitioning resolves the partitioning version of v: v itself if its
// artifact is self-partitioning, otherwise the version reached via the
// Dependence edge on the "Partitioning" relation.
func Partitioning(ag *artifact.Graph, vg *Graph, v *Version) (uuid.UUID, error) {
	a, ok := ag.Artifact(v.Artifact)
	if !ok {
		return uuid.Nil, herror.NotFound("artifact %s not found", v.Artifact)
	}
	if a.SelfPartitioning {
		return v.ID.UUID, nil
	}
	for _, e := range vg.DependenceEdgesOf(v.ID.UUID) {
		dep := e.Label.(Dependence)
		if dep.Edge.RelationName() == "Partitioning" {
			return e.From, nil
		}
	}
	return uuid.Nil, herror.Model("version %s has no partitioning dependence", v.ID.UUID)
}

// CreateHunk validates and persists h against its version.
func (g *Graph) CreateHunk(h *Hunk) error {
	v, ok := g.versions[h.Version]
	if !ok {
		return herror.NotFound("version %s not found", h.Version)
	}
	if v.Status != Staging {
		return herror.Model("hunks may only be created while their version is Staging")
	}
	if err := h.IsValid(v); err != nil {
		return err
	}
	g.hunks[h.Version] = append(g.hunks[h.Version], h)
	return nil
}

// CreateHunks validates and persists each hunk in hs.
func (g *Graph) CreateHunks(hs []*Hunk) error {
	for _, h := range hs {
		if err := g.CreateHunk(h); err != nil {
			return err
		}
	}
	return nil
}

// Hunks returns the hunks owned by version, optionally restricted to the
// given partition indices (nil means unrestricted).
func (g *Graph) Hunks(version uuid.UUID, partitions map[uint64]bool) []*Hunk {
	var out []*Hunk
	for _, h := range g.hunks[version] {
		if partitions != nil && !partitions[h.Partition.Index] {
			continue
		}
		out = append(out, h)
	}
	return out
}
