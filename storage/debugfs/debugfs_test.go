package debugfs

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/heraclitus/heraclitus/artifact"
	"github.com/heraclitus/heraclitus/datatype"
	"github.com/heraclitus/heraclitus/internal/herror"
	"github.com/heraclitus/heraclitus/internal/identity"
	"github.com/heraclitus/heraclitus/storage"
	"github.com/heraclitus/heraclitus/version"
)

func blobDescriptor() datatype.Descriptor {
	return datatype.NewDescriptor("Blob", 1,
		[]datatype.Representation{datatype.State},
		[]datatype.Interface{datatype.InterfaceStorage})
}

func testRegistry(t *testing.T) *datatype.Registry {
	t.Helper()
	reg := datatype.NewRegistry()
	if err := reg.Register(&datatype.Datatype{Descriptor: blobDescriptor(), Impl: struct{}{}}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return reg
}

func strPtr(s string) *string { return &s }

func TestArtifactGraphRoundTripsThroughDisk(t *testing.T) {
	ctx := context.Background()
	reg := testRegistry(t)

	descs := []artifact.Description{
		{Name: strPtr("root"), Dtype: blobDescriptor()},
		{Name: strPtr("child"), Dtype: blobDescriptor(), Parents: []artifact.ParentRef{
			{Index: 0, Relation: artifact.DtypeDepends{Name: "Parent"}},
		}},
	}
	g, ids, err := artifact.Build(descs)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	b, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := b.Init(ctx, reg); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := b.CreateArtifactGraph(ctx, reg, g); err != nil {
		t.Fatalf("CreateArtifactGraph: %v", err)
	}

	reloaded, err := b.GetArtifactGraph(ctx, reg, g.ID.UUID)
	if err != nil {
		t.Fatalf("GetArtifactGraph: %v", err)
	}
	if !reloaded.VerifyHash() {
		t.Fatal("expected reloaded graph to verify")
	}
	root, ok := reloaded.Artifact(ids[0])
	if !ok || *root.Name != "root" {
		t.Fatal("expected root artifact to survive the round trip")
	}
	edges := reloaded.InEdges(ids[1])
	if len(edges) != 1 || edges[0].From != ids[0] {
		t.Fatal("expected child's parent edge to survive the round trip")
	}
}

func TestVersionLifecycleRoundTripsThroughDisk(t *testing.T) {
	ctx := context.Background()
	reg := testRegistry(t)
	descs := []artifact.Description{{Name: strPtr("root"), Dtype: blobDescriptor()}}
	g, ids, err := artifact.Build(descs)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	b, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := b.Init(ctx, reg); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := b.CreateArtifactGraph(ctx, reg, g); err != nil {
		t.Fatalf("CreateArtifactGraph: %v", err)
	}

	v := &version.Version{
		ID:             identity.New(identity.Sum([]byte("v1"))),
		Artifact:       ids[0],
		Status:         version.Staging,
		Representation: datatype.State,
	}
	if err := b.CreateStagingVersion(ctx, v, nil, nil); err != nil {
		t.Fatalf("CreateStagingVersion: %v", err)
	}

	h := &version.Hunk{
		ID:             identity.New(identity.Sum([]byte("h1"))),
		Version:        v.ID.UUID,
		Partition:      version.Partition{Index: 0},
		Representation: datatype.State,
		Completion:     version.Complete,
	}
	if err := b.CreateHunk(ctx, h); err != nil {
		t.Fatalf("CreateHunk: %v", err)
	}
	payload := []byte("hello world")
	if err := b.WriteHunkPayload(ctx, h.ID.UUID, payload); err != nil {
		t.Fatalf("WriteHunkPayload: %v", err)
	}

	if err := b.CommitVersion(ctx, v.ID.UUID); err != nil {
		t.Fatalf("CommitVersion: %v", err)
	}

	err = b.CommitVersion(ctx, v.ID.UUID)
	var herr *herror.Error
	if !errors.As(err, &herr) || herr.Kind != herror.KindModel {
		t.Fatalf("expected a model error re-committing, got %v", err)
	}

	vg, err := b.GetVersionGraph(ctx, g)
	if err != nil {
		t.Fatalf("GetVersionGraph: %v", err)
	}
	reloadedVersion, ok := vg.Version(v.ID.UUID)
	if !ok || reloadedVersion.Status != version.Committed {
		t.Fatal("expected the reloaded version to be committed")
	}

	hunks := vg.Hunks(v.ID.UUID, nil)
	if len(hunks) != 1 || hunks[0].ID.UUID != h.ID.UUID {
		t.Fatal("expected the hunk to survive the round trip")
	}

	readBack, err := b.ReadHunkPayload(ctx, h.ID.UUID)
	if err != nil {
		t.Fatalf("ReadHunkPayload: %v", err)
	}
	if !bytes.Equal(readBack, payload) {
		t.Fatalf("expected payload %q, got %q", payload, readBack)
	}
}

func TestBranchRevisionTipsRoundTripAndMerge(t *testing.T) {
	ctx := context.Background()
	b, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	refArtifact := uuid.New()
	v1 := uuid.New()
	v2 := uuid.New()

	if err := b.CreateBranch(ctx, refArtifact, v1, "master"); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	if err := b.SetBranchRevisionTips(ctx, refArtifact, map[storage.BranchRevisionTip]uuid.UUID{
		{Name: "dev", Revision: "HEAD"}: v2,
	}); err != nil {
		t.Fatalf("SetBranchRevisionTips: %v", err)
	}

	tips, err := b.GetBranchRevisionTips(ctx, refArtifact)
	if err != nil {
		t.Fatalf("GetBranchRevisionTips: %v", err)
	}
	if tips[storage.BranchRevisionTip{Name: "master", Revision: "HEAD"}] != v1 {
		t.Fatal("expected master tip to survive CreateBranch")
	}
	if tips[storage.BranchRevisionTip{Name: "dev", Revision: "HEAD"}] != v2 {
		t.Fatal("expected dev tip added by SetBranchRevisionTips to merge in rather than replace master")
	}
}
