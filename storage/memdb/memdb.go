// Package memdb is an in-memory storage.Backend fake, the way the teacher's
// workflow compiler tests stand up a MockCASClient instead of a real
// backend: it exists purely so core packages' tests can exercise the
// storage.Backend contract without a database or filesystem.
package memdb

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/heraclitus/heraclitus/artifact"
	"github.com/heraclitus/heraclitus/composition"
	"github.com/heraclitus/heraclitus/datatype"
	"github.com/heraclitus/heraclitus/internal/herror"
	"github.com/heraclitus/heraclitus/production"
	"github.com/heraclitus/heraclitus/storage"
	"github.com/heraclitus/heraclitus/version"
)

// Backend is an in-memory implementation of storage.Backend.
type Backend struct {
	mu sync.Mutex

	graphs   map[uuid.UUID]*artifact.Graph
	versions map[uuid.UUID]*version.Graph // keyed by artifact graph id
	vgIndex  map[uuid.UUID]uuid.UUID      // version id -> owning artifact graph id

	policies map[uuid.UUID][]production.Kind
	specs    map[uuid.UUID]string
	payloads map[uuid.UUID][]byte
	branches map[uuid.UUID]map[storage.BranchRevisionTip]uuid.UUID
}

// New constructs an empty in-memory backend.
func New() *Backend {
	return &Backend{
		graphs:   make(map[uuid.UUID]*artifact.Graph),
		versions: make(map[uuid.UUID]*version.Graph),
		vgIndex:  make(map[uuid.UUID]uuid.UUID),
		policies: make(map[uuid.UUID][]production.Kind),
		specs:    make(map[uuid.UUID]string),
		payloads: make(map[uuid.UUID][]byte),
		branches: make(map[uuid.UUID]map[storage.BranchRevisionTip]uuid.UUID),
	}
}

func (b *Backend) Tag() storage.Tag { return "memdb" }

func (b *Backend) Init(ctx context.Context, reg *datatype.Registry) error {
	return nil
}

func (b *Backend) CreateArtifactGraph(ctx context.Context, reg *datatype.Registry, ag *artifact.Graph) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.graphs[ag.ID.UUID] = ag
	if _, ok := b.versions[ag.ID.UUID]; !ok {
		b.versions[ag.ID.UUID] = version.NewGraph()
	}
	return nil
}

func (b *Backend) GetArtifactGraph(ctx context.Context, reg *datatype.Registry, id uuid.UUID) (*artifact.Graph, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ag, ok := b.graphs[id]
	if !ok {
		return nil, herror.NotFound("artifact graph %s not found", id)
	}
	return ag, nil
}

// graphFor is a test convenience: memdb supports exactly one loaded
// artifact graph's version graph at a time per call site, found by scanning
// known graphs (this backend never holds more than one in the core's
// tests).
func (b *Backend) graphFor(v uuid.UUID) *version.Graph {
	if agID, ok := b.vgIndex[v]; ok {
		return b.versions[agID]
	}
	for _, vg := range b.versions {
		return vg
	}
	return nil
}

func (b *Backend) CreateStagingVersion(ctx context.Context, v *version.Version, parents []uuid.UUID, deps []version.DependenceRef) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	vg := b.graphFor(v.ID.UUID)
	if vg == nil {
		return herror.Model("memdb: no version graph loaded")
	}
	if err := vg.CreateStagingVersion(v, parents, deps); err != nil {
		return err
	}
	for agID, g := range b.versions {
		if g == vg {
			b.vgIndex[v.ID.UUID] = agID
		}
	}
	return nil
}

func (b *Backend) CommitVersion(ctx context.Context, id uuid.UUID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	vg := b.graphFor(id)
	if vg == nil {
		return herror.NotFound("version %s not found", id)
	}
	return vg.CommitVersion(id)
}

func (b *Backend) GetVersion(ctx context.Context, ag *artifact.Graph, id uuid.UUID) (*version.Version, *version.Graph, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	vg, ok := b.versions[ag.ID.UUID]
	if !ok {
		return nil, nil, herror.NotFound("version graph for artifact graph %s not found", ag.ID.UUID)
	}
	v, ok := vg.Version(id)
	if !ok {
		return nil, nil, herror.NotFound("version %s not found", id)
	}
	return v, vg, nil
}

func (b *Backend) GetVersionGraph(ctx context.Context, ag *artifact.Graph) (*version.Graph, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	vg, ok := b.versions[ag.ID.UUID]
	if !ok {
		return nil, herror.NotFound("version graph for artifact graph %s not found", ag.ID.UUID)
	}
	return vg, nil
}

func (b *Backend) CreateHunk(ctx context.Context, h *version.Hunk) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	vg := b.graphFor(h.Version)
	if vg == nil {
		return herror.Model("memdb: no version graph loaded")
	}
	return vg.CreateHunk(h)
}

func (b *Backend) CreateHunks(ctx context.Context, hs []*version.Hunk) error {
	for _, h := range hs {
		if err := b.CreateHunk(ctx, h); err != nil {
			return err
		}
	}
	return nil
}

func (b *Backend) GetHunks(ctx context.Context, v uuid.UUID, parts map[uint64]bool) ([]*version.Hunk, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	vg := b.graphFor(v)
	if vg == nil {
		return nil, herror.Model("memdb: no version graph loaded")
	}
	return vg.Hunks(v, parts), nil
}

func (b *Backend) GetCompositionMap(ctx context.Context, vg *version.Graph, v uuid.UUID, parts map[uint64]bool) (composition.Map, error) {
	return composition.Build(vg, v, parts)
}

func (b *Backend) WriteProductionPolicies(ctx context.Context, artifactID uuid.UUID, kinds []production.Kind) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.policies[artifactID] = kinds
	return nil
}

func (b *Backend) GetProductionPolicies(ctx context.Context, artifactID uuid.UUID) ([]production.Kind, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	kinds, ok := b.policies[artifactID]
	if !ok {
		return production.DefaultKinds, nil
	}
	return kinds, nil
}

func (b *Backend) WriteProductionSpec(ctx context.Context, producerVersion uuid.UUID, strategy string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.specs[producerVersion] = strategy
	return nil
}

func (b *Backend) GetProductionSpec(ctx context.Context, producerVersion uuid.UUID) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.specs[producerVersion]
	if !ok {
		return "", herror.NotFound("production spec for version %s not found", producerVersion)
	}
	return s, nil
}

func (b *Backend) WriteHunkPayload(ctx context.Context, hunk uuid.UUID, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := make([]byte, len(payload))
	copy(cp, payload)
	b.payloads[hunk] = cp
	return nil
}

func (b *Backend) ReadHunkPayload(ctx context.Context, hunk uuid.UUID) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.payloads[hunk]
	if !ok {
		return nil, herror.NotFound("payload for hunk %s not found", hunk)
	}
	return p, nil
}

func (b *Backend) GetBranchRevisionTips(ctx context.Context, refArtifact uuid.UUID) (map[storage.BranchRevisionTip]uuid.UUID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[storage.BranchRevisionTip]uuid.UUID, len(b.branches[refArtifact]))
	for k, v := range b.branches[refArtifact] {
		out[k] = v
	}
	return out, nil
}

func (b *Backend) SetBranchRevisionTips(ctx context.Context, refArtifact uuid.UUID, tips map[storage.BranchRevisionTip]uuid.UUID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.branches[refArtifact]
	if m == nil {
		m = make(map[storage.BranchRevisionTip]uuid.UUID, len(tips))
		b.branches[refArtifact] = m
	}
	for k, v := range tips {
		m[k] = v
	}
	return nil
}

func (b *Backend) CreateBranch(ctx context.Context, refArtifact, refVersion uuid.UUID, name string) error {
	return b.SetBranchRevisionTips(ctx, refArtifact, map[storage.BranchRevisionTip]uuid.UUID{
		{Name: name, Revision: "HEAD"}: refVersion,
	})
}

var _ storage.Backend = (*Backend)(nil)
