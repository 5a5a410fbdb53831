package reference

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/heraclitus/heraclitus/artifact"
	"github.com/heraclitus/heraclitus/datatype"
	"github.com/heraclitus/heraclitus/internal/identity"
	"github.com/heraclitus/heraclitus/storage"
	"github.com/heraclitus/heraclitus/version"
)

type fakeBranchStore struct {
	tips map[storage.BranchRevisionTip]uuid.UUID
}

func (f *fakeBranchStore) GetBranchRevisionTips(_ context.Context, _ uuid.UUID) (map[storage.BranchRevisionTip]uuid.UUID, error) {
	return f.tips, nil
}

func (f *fakeBranchStore) SetBranchRevisionTips(_ context.Context, _ uuid.UUID, tips map[storage.BranchRevisionTip]uuid.UUID) error {
	f.tips = tips
	return nil
}

func (f *fakeBranchStore) CreateBranch(_ context.Context, _, version uuid.UUID, name string) error {
	if f.tips == nil {
		f.tips = make(map[storage.BranchRevisionTip]uuid.UUID)
	}
	f.tips[storage.BranchRevisionTip{Name: name, Revision: "HEAD"}] = version
	return nil
}

func refDescriptor() datatype.Descriptor {
	return datatype.NewDescriptor("Ref", 1, []datatype.Representation{datatype.State}, nil)
}

func dataDescriptor() datatype.Descriptor {
	return datatype.NewDescriptor("Blob", 1, []datatype.Representation{datatype.State}, nil)
}

func TestResolveVersionWalksBranchTipToTrackedArtifact(t *testing.T) {
	descs := []artifact.Description{
		{Name: strPtr("all"), Dtype: refDescriptor()},
		{Name: strPtr("data"), Dtype: dataDescriptor()},
	}
	ag, ids, err := artifact.Build(descs)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	refArtifactID, dataArtifactID := ids[0], ids[1]

	vg := version.NewGraph()
	dataVer := &version.Version{
		ID:             identity.New(identity.Sum([]byte("data"))),
		Artifact:       dataArtifactID,
		Status:         version.Staging,
		Representation: datatype.State,
	}
	if err := vg.CreateStagingVersion(dataVer, nil, nil); err != nil {
		t.Fatalf("CreateStagingVersion dataVer: %v", err)
	}

	refVer := &version.Version{
		ID:             identity.New(identity.Sum([]byte("ref"))),
		Artifact:       refArtifactID,
		Status:         version.Staging,
		Representation: datatype.State,
	}
	deps := []version.DependenceRef{{Version: dataVer.ID.UUID, Relation: artifact.DtypeDepends{Name: "data"}}}
	if err := vg.CreateStagingVersion(refVer, nil, deps); err != nil {
		t.Fatalf("CreateStagingVersion refVer: %v", err)
	}

	store := &fakeBranchStore{tips: map[storage.BranchRevisionTip]uuid.UUID{
		{Name: "master", Revision: "HEAD"}: refVer.ID.UUID,
	}}

	spec := VersionSpecifier{
		RefArtifact: ArtifactSpecifier{Name: "all"},
		BranchRev:   BranchRevisionSpecifier{Name: "master", Revision: RevisionSpecifier{Path: RevisionPath{Head: true}}},
		Artifact:    ArtifactSpecifier{Name: "data"},
	}

	got, err := ResolveVersion(context.Background(), ag, vg, store, spec)
	if err != nil {
		t.Fatalf("ResolveVersion: %v", err)
	}
	if got != dataVer.ID.UUID {
		t.Fatalf("expected to resolve to the tracked data version, got %s", got)
	}
}

func TestResolveVersionErrorsOnUnknownBranch(t *testing.T) {
	descs := []artifact.Description{{Name: strPtr("all"), Dtype: refDescriptor()}}
	ag, _, err := artifact.Build(descs)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	vg := version.NewGraph()
	store := &fakeBranchStore{tips: map[storage.BranchRevisionTip]uuid.UUID{}}

	spec := VersionSpecifier{
		RefArtifact: ArtifactSpecifier{Name: "all"},
		BranchRev:   BranchRevisionSpecifier{Name: "missing", Revision: RevisionSpecifier{Path: RevisionPath{Head: true}}},
		Artifact:    ArtifactSpecifier{Name: "data"},
	}
	if _, err := ResolveVersion(context.Background(), ag, vg, store, spec); err == nil {
		t.Fatal("expected an error resolving an unknown branch")
	}
}

func TestResolveVersionByFullUUIDShortCircuits(t *testing.T) {
	ag, _, err := artifact.Build(nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	vg := version.NewGraph()
	want := uuid.New()
	spec := VersionSpecifier{ByUUID: true, UUID: UuidSpecifier{Complete: want, IsFull: true}}

	got, err := ResolveVersion(context.Background(), ag, vg, nil, spec)
	if err != nil {
		t.Fatalf("ResolveVersion: %v", err)
	}
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func strPtr(s string) *string { return &s }
