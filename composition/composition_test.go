package composition

import (
	"testing"

	"github.com/google/uuid"
	"github.com/heraclitus/heraclitus/datatype"
	"github.com/heraclitus/heraclitus/internal/identity"
	"github.com/heraclitus/heraclitus/version"
)

func stageVersion(t *testing.T, g *version.Graph, artifactID uuid.UUID, parents []uuid.UUID, rep datatype.Representation) *version.Version {
	t.Helper()
	v := &version.Version{
		ID:             identity.New(identity.Sum([]byte(uuid.New().String()))),
		Artifact:       artifactID,
		Status:         version.Staging,
		Representation: rep,
	}
	if err := g.CreateStagingVersion(v, parents, nil); err != nil {
		t.Fatalf("CreateStagingVersion: %v", err)
	}
	return v
}

func hunk(t *testing.T, g *version.Graph, v *version.Version, idx uint64, rep datatype.Representation, precedence *uuid.UUID) *version.Hunk {
	t.Helper()
	h := &version.Hunk{
		ID:             identity.New(identity.Sum([]byte(uuid.New().String()))),
		Version:        v.ID.UUID,
		Partition:      version.Partition{Index: idx},
		Representation: rep,
		Precedence:     precedence,
	}
	if err := g.CreateHunk(h); err != nil {
		t.Fatalf("CreateHunk: %v", err)
	}
	return h
}

func TestBuildResolvesDeltaChainToRootState(t *testing.T) {
	vg := version.NewGraph()
	artifactID := uuid.New()

	root := stageVersion(t, vg, artifactID, nil, datatype.CumulativeDelta)
	rootHunk := hunk(t, vg, root, 0, datatype.State, nil)

	child := stageVersion(t, vg, artifactID, []uuid.UUID{root.ID.UUID}, datatype.CumulativeDelta)
	childHunk := hunk(t, vg, child, 0, datatype.CumulativeDelta, nil)

	m, err := Build(vg, child.ID.UUID, map[uint64]bool{0: true})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	got := m[0]
	if len(got) != 2 || got[0] != childHunk || got[1] != rootHunk {
		t.Fatalf("expected [child, root] target-first, got %v", got)
	}
}

func TestBuildResolvesIndependentPartitions(t *testing.T) {
	vg := version.NewGraph()
	artifactID := uuid.New()

	root := stageVersion(t, vg, artifactID, nil, datatype.State)
	h0 := hunk(t, vg, root, 0, datatype.State, nil)
	h1 := hunk(t, vg, root, 1, datatype.State, nil)

	m, err := Build(vg, root.ID.UUID, map[uint64]bool{0: true, 1: true})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(m[0]) != 1 || m[0][0] != h0 {
		t.Fatalf("expected partition 0 to resolve to h0, got %v", m[0])
	}
	if len(m[1]) != 1 || m[1][0] != h1 {
		t.Fatalf("expected partition 1 to resolve to h1, got %v", m[1])
	}
}

// TestBuildHonorsPrecedenceOverSkippedAncestor models a three-way merge
// shortcut: v3's hunk for partition 0 carries precedence pinning that
// partition back to v1 directly, so v2's intervening delta for the same
// partition must not appear in the composition.
func TestBuildHonorsPrecedenceOverSkippedAncestor(t *testing.T) {
	vg := version.NewGraph()
	artifactID := uuid.New()

	v1 := stageVersion(t, vg, artifactID, nil, datatype.CumulativeDelta)
	h1 := hunk(t, vg, v1, 0, datatype.State, nil)

	v2 := stageVersion(t, vg, artifactID, []uuid.UUID{v1.ID.UUID}, datatype.CumulativeDelta)
	skipped := hunk(t, vg, v2, 0, datatype.CumulativeDelta, nil)

	v1ID := v1.ID.UUID
	v3 := stageVersion(t, vg, artifactID, []uuid.UUID{v2.ID.UUID}, datatype.CumulativeDelta)
	h3 := hunk(t, vg, v3, 0, datatype.CumulativeDelta, &v1ID)

	m, err := Build(vg, v3.ID.UUID, map[uint64]bool{0: true})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	got := m[0]
	if len(got) != 2 || got[0] != h3 || got[1] != h1 {
		t.Fatalf("expected [h3, h1] with v2's hunk skipped, got %v", got)
	}
	for _, h := range got {
		if h == skipped {
			t.Fatal("expected v2's precedence-skipped hunk to be excluded")
		}
	}
}
