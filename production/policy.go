// Package production implements the producer-notification cascade: on
// commit, it walks dependent producer artifacts, applies production
// policies to decide which producer versions to synthesize, selects a
// production strategy, and recursively commits the resulting versions.
package production

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/heraclitus/heraclitus/artifact"
	"github.com/heraclitus/heraclitus/version"
)

// Kind names one of the three production policy families.
type Kind string

const (
	Extant        Kind = "extant"
	LeafBootstrap Kind = "leaf_bootstrap"
	Custom        Kind = "custom"
)

// DefaultKinds are the policies requested for an artifact absent an
// explicit override: {Extant, LeafBootstrap}.
var DefaultKinds = []Kind{Extant, LeafBootstrap}

// ProducerRequirement is a point in the None < DependentOnParentVersions <
// All lattice describing how much of a producer's own version history a
// policy needs loaded.
type ProducerRequirement int

const (
	ProducerNone ProducerRequirement = iota
	ProducerDependentOnParentVersions
	ProducerAll
)

// DependencyRequirement is a point in the None < DependencyOfProducerVersion
// < All lattice describing how much of a dependency artifact's version
// history a policy needs loaded.
type DependencyRequirement int

const (
	DependencyNone DependencyRequirement = iota
	DependencyOfProducerVersion
	DependencyAll
)

// Requirements is the pointwise-max-mergeable pair of lattices a policy
// declares before evaluation.
type Requirements struct {
	Producer   ProducerRequirement
	Dependency DependencyRequirement
}

// Merge returns the pointwise maximum of r and o.
func (r Requirements) Merge(o Requirements) Requirements {
	return Requirements{
		Producer:   maxProducerReq(r.Producer, o.Producer),
		Dependency: maxDependencyReq(r.Dependency, o.Dependency),
	}
}

func maxProducerReq(a, b ProducerRequirement) ProducerRequirement {
	if b > a {
		return b
	}
	return a
}

func maxDependencyReq(a, b DependencyRequirement) DependencyRequirement {
	if b > a {
		return b
	}
	return a
}

// DependencySpec names one dependency a producer version would bind: a
// version of a dependency artifact, and the artifact-graph relation that
// licenses the binding.
type DependencySpec struct {
	Version  uuid.UUID
	Relation artifact.Relation
}

// Entry is one emitted production version spec: the dependency set a new
// producer version would bind, and the set of candidate parent producer
// versions it could extend (nil entries in Parents mean "no parent" — a
// freshly bootstrapped producer version).
type Entry struct {
	Deps    []DependencySpec
	Parents []*uuid.UUID
}

// SpecSet accumulates ProductionVersionSpecs across policies: specs with
// identical dependency sets merge by union of their parent sets.
type SpecSet struct {
	entries map[string]*Entry
}

// NewSpecSet constructs an empty spec set.
func NewSpecSet() *SpecSet {
	return &SpecSet{entries: make(map[string]*Entry)}
}

// Insert adds one (deps, parent) pair, merging into an existing entry with
// the same dependency set if present.
func (s *SpecSet) Insert(deps []DependencySpec, parent *uuid.UUID) {
	sorted := sortedDeps(deps)
	key := depsKey(sorted)
	e, ok := s.entries[key]
	if !ok {
		e = &Entry{Deps: sorted}
		s.entries[key] = e
	}
	if !hasParent(e.Parents, parent) {
		e.Parents = append(e.Parents, parent)
	}
}

// Merge folds other's entries into s.
func (s *SpecSet) Merge(other *SpecSet) {
	if other == nil {
		return
	}
	for _, e := range other.entries {
		for _, p := range e.Parents {
			s.Insert(e.Deps, p)
		}
	}
}

// Retain drops every entry for which keep returns false.
func (s *SpecSet) Retain(keep func(Entry) bool) {
	for k, e := range s.entries {
		if !keep(*e) {
			delete(s.entries, k)
		}
	}
}

// Entries returns the accumulated entries in a deterministic (sorted by
// key) order.
func (s *SpecSet) Entries() []Entry {
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Entry, len(keys))
	for i, k := range keys {
		out[i] = *s.entries[k]
	}
	return out
}

func sortedDeps(deps []DependencySpec) []DependencySpec {
	out := make([]DependencySpec, len(deps))
	copy(out, deps)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Relation.RelationName() != out[j].Relation.RelationName() {
			return out[i].Relation.RelationName() < out[j].Relation.RelationName()
		}
		return out[i].Version.String() < out[j].Version.String()
	})
	return out
}

func depsKey(deps []DependencySpec) string {
	key := ""
	for _, d := range deps {
		key += d.Relation.RelationName() + ":" + d.Version.String() + ";"
	}
	return key
}

func hasParent(parents []*uuid.UUID, p *uuid.UUID) bool {
	for _, existing := range parents {
		if (existing == nil) != (p == nil) {
			continue
		}
		if existing == nil || *existing == *p {
			return true
		}
	}
	return false
}

// PolicyContext is the information a policy needs to compute the version
// specs its rule implies, given one newly committed dependency version.
type PolicyContext struct {
	Ctx                context.Context
	ArtifactGraph      *artifact.Graph
	VersionGraph       *version.Graph
	ProducerArtifact   uuid.UUID
	DependencyArtifact uuid.UUID
	DependencyRelation artifact.Relation
	NewVersion         uuid.UUID
	// Extra mirrors NotifyContext.Extra: the backend, for custom policies
	// that need a datatype-specific storage capability to compute their
	// specs (e.g. reading branch tips).
	Extra any
}

// Policy is a production policy: it declares what graph context it needs
// loaded, then emits the version specs its rule implies. CustomPolicy
// implementations (a datatype's own policy, selected via Kind Custom) share
// this exact shape.
type Policy interface {
	Requirements() Requirements
	NewVersionSpecs(pc PolicyContext) (*SpecSet, error)
}

// CustomPolicyFactory is the capability a datatype implements when its
// Custom policy needs to be built fresh per producer artifact from current
// backend state (e.g. TrackingBranchProducer reading its output Ref's
// current branch tips), rather than being a stateless value like
// ExtantPolicy/LeafBootstrapPolicy.
type CustomPolicyFactory interface {
	CustomPolicy(pc PolicyContext) (Policy, error)
}

// ExtantPolicy emits a spec for every existing producer version dependent
// on one of the new dependency version's parents, swapping the new
// version in for that parent in the dependency set and parenting the spec
// on the extant producer version.
type ExtantPolicy struct{}

func (ExtantPolicy) Requirements() Requirements {
	return Requirements{Producer: ProducerDependentOnParentVersions, Dependency: DependencyNone}
}

func (ExtantPolicy) NewVersionSpecs(pc PolicyContext) (*SpecSet, error) {
	specs := NewSpecSet()
	relName := pc.DependencyRelation.RelationName()

	for _, parentVer := range pc.VersionGraph.ParentsOf(pc.NewVersion) {
		for _, prodVerID := range pc.VersionGraph.DependentsOf(parentVer, relName) {
			prodVer, ok := pc.VersionGraph.Version(prodVerID)
			if !ok || prodVer.Artifact != pc.ProducerArtifact {
				continue
			}

			var deps []DependencySpec
			for _, e := range pc.VersionGraph.DependenceEdgesOf(prodVerID) {
				dep := e.Label.(version.Dependence)
				depVersion := e.From
				if dep.Edge.RelationName() == relName && depVersion == parentVer {
					depVersion = pc.NewVersion
				}
				deps = append(deps, DependencySpec{Version: depVersion, Relation: dep.Edge})
			}

			parent := prodVerID
			specs.Insert(deps, &parent)
		}
	}

	return specs, nil
}

// LeafBootstrapPolicy fires exactly once per producer artifact: if it has
// no versions yet and every one of its dependency artifacts has exactly
// one version, it emits a single parentless spec binding those versions.
type LeafBootstrapPolicy struct{}

func (LeafBootstrapPolicy) Requirements() Requirements {
	return Requirements{Producer: ProducerNone, Dependency: DependencyAll}
}

func (LeafBootstrapPolicy) NewVersionSpecs(pc PolicyContext) (*SpecSet, error) {
	specs := NewSpecSet()

	for _, v := range pc.VersionGraph.Versions() {
		if v.Artifact == pc.ProducerArtifact {
			return specs, nil
		}
	}

	var deps []DependencySpec
	for _, e := range pc.ArtifactGraph.InEdges(pc.ProducerArtifact) {
		depArtifact := e.From
		var depVersions []uuid.UUID
		for _, v := range pc.VersionGraph.Versions() {
			if v.Artifact == depArtifact {
				depVersions = append(depVersions, v.ID.UUID)
			}
		}
		if len(depVersions) != 1 {
			return specs, nil
		}
		deps = append(deps, DependencySpec{Version: depVersions[0], Relation: e.Label})
	}

	if len(deps) == 0 {
		return specs, nil
	}
	specs.Insert(deps, nil)
	return specs, nil
}
