package production

import (
	"context"

	"github.com/google/uuid"
	"github.com/heraclitus/heraclitus/artifact"
	"github.com/heraclitus/heraclitus/datatype"
	"github.com/heraclitus/heraclitus/internal/herror"
	"github.com/heraclitus/heraclitus/internal/identity"
	"github.com/heraclitus/heraclitus/internal/logger"
	"github.com/heraclitus/heraclitus/version"
)

// ProductionOutput is what a Producer's NotifyNewVersion returns: the
// version ids it created that must now be committed (and, recursively,
// cascaded). Only Synchronous output is implemented; a producer that
// returns Asynchronous gets herror.TODO, per the specification's own open
// question on asynchronous production output.
type ProductionOutput struct {
	Synchronous  []uuid.UUID
	Asynchronous bool
}

// PayloadStore is the minimal hunk-payload read/write surface a Producer
// needs from the storage backend. storage.Backend satisfies this
// structurally; it is declared locally (rather than imported) so that
// production does not depend on storage, which itself depends on
// production for the Kind/Capability types its contract methods mention.
type PayloadStore interface {
	ReadHunkPayload(ctx context.Context, hunk uuid.UUID) ([]byte, error)
	WriteHunkPayload(ctx context.Context, hunk uuid.UUID, payload []byte) error
}

// NotifyContext is what a Producer's NotifyNewVersion is called with: full
// read/write access to the in-memory artifact and version graphs, and to
// hunk payload storage, for the one producer version the cascade just
// staged and committed.
type NotifyContext struct {
	Ctx             context.Context
	ArtifactGraph   *artifact.Graph
	VersionGraph    *version.Graph
	Payloads        PayloadStore
	ProducerVersion uuid.UUID
	Strategy        string
	// Extra carries the backend itself for producers (like
	// datatypes/reference's TrackingBranchProducer) that need a
	// datatype-specific storage capability beyond PayloadStore. A producer
	// asserts it against the capability interface it expects, e.g.
	// `extra.(reference.BranchStore)`.
	Extra any
}

// Producer is the capability a datatype implements to synthesize output
// versions from its inputs.
type Producer interface {
	ProductionStrategies() map[string]Capability
	OutputDescriptions() []OutputDescription
	NotifyNewVersion(nc NotifyContext) (ProductionOutput, error)
}

// HashPolicy is an optional capability a Producer may additionally
// implement to override the cascade's default producer-version hashing
// rule (the sorted combination of its dependency version hashes). The
// specification flags producer-version hashing as an open question at the
// general level ("the source uses the input version's hash as the producer
// version's hash in one producer; this may not be the intended general
// policy") — resolved here by making it a per-datatype override rather
// than a general core rule.
type HashPolicy interface {
	ProducerVersionHash(deps []DependencySpec, vg *version.Graph) uint64
}

// Cascade drives commit_version and the producer-notification walk it
// triggers: notify_producers, policy evaluation, strategy selection, and
// recursive commit of synthesized output versions.
type Cascade struct {
	Registry      *datatype.Registry
	ArtifactGraph *artifact.Graph
	VersionGraph  *version.Graph
	Payloads      PayloadStore
	Extra         any
	Policies      map[uuid.UUID][]Kind
	Strategies    map[uuid.UUID]string
	Log           *logger.Logger
}

// NewCascade builds a cascade over an already-loaded artifact graph and
// version graph, with payloads backed by the given store. extra is passed
// through to NotifyContext/PolicyContext verbatim, typically the same
// backend value as payloads, for producers needing a capability beyond
// hunk payload storage.
func NewCascade(reg *datatype.Registry, ag *artifact.Graph, vg *version.Graph, payloads PayloadStore, extra any, log *logger.Logger) *Cascade {
	if log == nil {
		log = logger.Noop()
	}
	return &Cascade{
		Registry:      reg,
		ArtifactGraph: ag,
		VersionGraph:  vg,
		Payloads:      payloads,
		Extra:         extra,
		Policies:      make(map[uuid.UUID][]Kind),
		Strategies:    make(map[uuid.UUID]string),
		Log:           log,
	}
}

// SetPolicies overrides the production policies requested for producerArtifact.
func (c *Cascade) SetPolicies(producerArtifact uuid.UUID, kinds []Kind) {
	c.Policies[producerArtifact] = kinds
}

func (c *Cascade) policiesFor(producerArtifact uuid.UUID) []Kind {
	if kinds, ok := c.Policies[producerArtifact]; ok {
		return kinds
	}
	return DefaultKinds
}

// Commit transitions v to Committed and runs the producer cascade that
// commit triggers. Per the concurrency model, this assumes exclusive
// ownership of VersionGraph for the duration of the call.
func (c *Cascade) Commit(ctx context.Context, v uuid.UUID) error {
	if err := c.VersionGraph.CommitVersion(v); err != nil {
		return err
	}
	return c.notifyProducers(ctx, v)
}

func (c *Cascade) notifyProducers(ctx context.Context, newVersionID uuid.UUID) error {
	v, ok := c.VersionGraph.Version(newVersionID)
	if !ok {
		return herror.NotFound("version %s not found", newVersionID)
	}

	for _, e := range c.ArtifactGraph.OutEdges(v.Artifact) {
		rel, ok := e.Label.(artifact.ProducedFrom)
		if !ok {
			continue // DtypeDepends edges are structural, not production triggers.
		}
		if err := c.notifyOneProducer(ctx, e.To, rel, newVersionID); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cascade) notifyOneProducer(ctx context.Context, producerArtifactID uuid.UUID, rel artifact.Relation, newVersionID uuid.UUID) error {
	producerArtifact, ok := c.ArtifactGraph.Artifact(producerArtifactID)
	if !ok {
		return herror.NotFound("producer artifact %s not found", producerArtifactID)
	}
	dt, err := c.Registry.MustLookup(producerArtifact.Dtype.Name)
	if err != nil {
		return err
	}
	prod, ok := datatype.As[Producer](dt)
	if !ok {
		return herror.Model("datatype %q does not implement Producer", producerArtifact.Dtype.Name)
	}

	newVersion, _ := c.VersionGraph.Version(newVersionID)
	pc := PolicyContext{
		Ctx:                ctx,
		ArtifactGraph:      c.ArtifactGraph,
		VersionGraph:       c.VersionGraph,
		ProducerArtifact:   producerArtifactID,
		DependencyArtifact: newVersion.Artifact,
		DependencyRelation: rel,
		NewVersion:         newVersionID,
		Extra:              c.Extra,
	}

	combined := NewSpecSet()
	var reqs Requirements
	for _, kind := range c.policiesFor(producerArtifactID) {
		policy, err := c.resolvePolicy(kind, dt, pc)
		if err != nil {
			return err
		}
		reqs = reqs.Merge(policy.Requirements())
		specs, err := policy.NewVersionSpecs(pc)
		if err != nil {
			return err
		}
		combined.Merge(specs)
	}
	// reqs is computed for documentation/future lazy-loading backends; both
	// reference backends load their version graphs fully before a cascade
	// runs, so there is no separate fulfillment step here.
	_ = reqs

	c.Log.WithArtifact(producerArtifactID.String()).Debug("production policies evaluated", "entries", len(combined.Entries()))

	for _, entry := range combined.Entries() {
		if err := c.synthesize(ctx, producerArtifactID, dt, prod, entry); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cascade) resolvePolicy(kind Kind, dt *datatype.Datatype, pc PolicyContext) (Policy, error) {
	switch kind {
	case Extant:
		return ExtantPolicy{}, nil
	case LeafBootstrap:
		return LeafBootstrapPolicy{}, nil
	case Custom:
		if f, ok := datatype.As[CustomPolicyFactory](dt); ok {
			return f.CustomPolicy(pc)
		}
		p, ok := datatype.As[Policy](dt)
		if !ok {
			return nil, herror.Model("datatype %q does not implement a custom production policy", dt.Descriptor.Name)
		}
		return p, nil
	default:
		return nil, herror.Model("unknown production policy kind %q", kind)
	}
}

func (c *Cascade) synthesize(ctx context.Context, producerArtifactID uuid.UUID, dt *datatype.Datatype, prod Producer, entry Entry) error {
	var parentIDs []uuid.UUID
	for _, p := range entry.Parents {
		if p != nil {
			parentIDs = append(parentIDs, *p)
		}
	}

	deps := make([]version.DependenceRef, len(entry.Deps))
	depHashes := make([]uint64, len(entry.Deps))
	actualInputs := make(map[string]datatype.Representation, len(entry.Deps))
	for i, d := range entry.Deps {
		deps[i] = version.DependenceRef{Version: d.Version, Relation: d.Relation}
		if depVer, ok := c.VersionGraph.Version(d.Version); ok {
			depHashes[i] = depVer.ID.Hash
			actualInputs[d.Relation.RelationName()] = depVer.Representation
		}
	}

	hash := identity.CombineSorted(depHashes)
	if hp, ok := datatype.As[HashPolicy](dt); ok {
		hash = hp.ProducerVersionHash(entry.Deps, c.VersionGraph)
	}

	newVer := &version.Version{
		ID:             identity.New(hash),
		Artifact:       producerArtifactID,
		Status:         version.Staging,
		Representation: datatype.State,
	}
	if err := c.VersionGraph.CreateStagingVersion(newVer, parentIDs, deps); err != nil {
		return err
	}

	strategy, err := SelectStrategy(prod.ProductionStrategies(), actualInputs)
	if err != nil {
		return err
	}
	c.Strategies[newVer.ID.UUID] = strategy

	if err := c.VersionGraph.CommitVersion(newVer.ID.UUID); err != nil {
		return err
	}

	out, err := prod.NotifyNewVersion(NotifyContext{
		Ctx:             ctx,
		ArtifactGraph:   c.ArtifactGraph,
		VersionGraph:    c.VersionGraph,
		Payloads:        c.Payloads,
		Extra:           c.Extra,
		ProducerVersion: newVer.ID.UUID,
		Strategy:        strategy,
	})
	if err != nil {
		return err
	}
	if out.Asynchronous {
		return herror.TODO("asynchronous production output is not implemented")
	}

	for _, outVersion := range out.Synchronous {
		if err := c.Commit(ctx, outVersion); err != nil {
			return err
		}
	}
	return nil
}
