package negateproducer

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/heraclitus/heraclitus/artifact"
	"github.com/heraclitus/heraclitus/datatype"
	"github.com/heraclitus/heraclitus/internal/identity"
	"github.com/heraclitus/heraclitus/internal/logger"
	"github.com/heraclitus/heraclitus/production"
	"github.com/heraclitus/heraclitus/storage/memdb"
	"github.com/heraclitus/heraclitus/version"
)

// TestCascadeSynthesizesNegatedOutputOnCommit wires a minimal three-artifact
// graph (input -> producer -> output) through a real production.Cascade and
// asserts that committing a new input version synthesizes a bitwise-negated
// output version end to end.
func TestCascadeSynthesizesNegatedOutputOnCommit(t *testing.T) {
	ctx := context.Background()
	reg := datatype.NewRegistry()
	if err := reg.Register(&datatype.Datatype{Descriptor: blobDescriptor(), Impl: struct{}{}}); err != nil {
		t.Fatalf("register blob: %v", err)
	}
	producerDescriptor := NegateProducer{}.Descriptor()
	if err := reg.Register(&datatype.Datatype{Descriptor: producerDescriptor, Impl: NegateProducer{}}); err != nil {
		t.Fatalf("register negate producer: %v", err)
	}

	descs := []artifact.Description{
		{Name: strPtr("input"), Dtype: blobDescriptor(), SelfPartitioning: true},
		{Name: strPtr("producer"), Dtype: producerDescriptor, Parents: []artifact.ParentRef{
			{Index: 0, Relation: artifact.ProducedFrom{Name: inputRelation}},
		}},
		{Name: strPtr("output"), Dtype: blobDescriptor(), Parents: []artifact.ParentRef{
			{Index: 1, Relation: artifact.ProducedFrom{Name: outputRelation}},
			{Index: 0, Relation: artifact.DtypeDepends{Name: "Partitioning"}},
		}},
	}
	ag, ids, err := artifact.Build(descs)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	inputID, producerID := ids[0], ids[1]

	backend := memdb.New()
	if err := backend.CreateArtifactGraph(ctx, reg, ag); err != nil {
		t.Fatalf("CreateArtifactGraph: %v", err)
	}
	vg, err := backend.GetVersionGraph(ctx, ag)
	if err != nil {
		t.Fatalf("GetVersionGraph: %v", err)
	}

	inputVer := &version.Version{
		ID:             identity.New(identity.Sum([]byte("input-v1"))),
		Artifact:       inputID,
		Status:         version.Staging,
		Representation: datatype.State,
	}
	if err := vg.CreateStagingVersion(inputVer, nil, nil); err != nil {
		t.Fatalf("CreateStagingVersion input: %v", err)
	}
	inputHunk := &version.Hunk{
		ID:             identity.New(identity.Sum([]byte("input-hunk"))),
		Version:        inputVer.ID.UUID,
		Partition:      version.Partition{Index: 0},
		Representation: datatype.State,
		Completion:     version.Complete,
	}
	if err := vg.CreateHunk(inputHunk); err != nil {
		t.Fatalf("CreateHunk: %v", err)
	}
	payload := []byte{0x00, 0xFF, 0x0F}
	if err := backend.WriteHunkPayload(ctx, inputHunk.ID.UUID, payload); err != nil {
		t.Fatalf("WriteHunkPayload: %v", err)
	}
	cascade := production.NewCascade(reg, ag, vg, backend, nil, logger.Noop())
	if err := cascade.Commit(ctx, inputVer.ID.UUID); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	outputVersionID := findSynthesizedOutput(vg, producerID, inputVer.ID.UUID)
	if outputVersionID == uuid.Nil {
		t.Fatal("expected a synthesized output version dependent on the producer")
	}

	hunks := vg.Hunks(outputVersionID, nil)
	if len(hunks) != 1 {
		t.Fatalf("expected one synthesized output hunk, got %d", len(hunks))
	}
	negated, err := backend.ReadHunkPayload(ctx, hunks[0].ID.UUID)
	if err != nil {
		t.Fatalf("ReadHunkPayload: %v", err)
	}
	want := []byte{0xFF, 0x00, 0xF0}
	if !bytes.Equal(negated, want) {
		t.Fatalf("expected negated output payload %v, got %v", want, negated)
	}
}

// findSynthesizedOutput walks from the committed input version through its
// producer dependent to that producer's output dependent, without assuming
// any particular enumeration order from version.Graph.
func findSynthesizedOutput(vg *version.Graph, producerArtifactID, inputVersionID uuid.UUID) uuid.UUID {
	for _, producerVersionID := range vg.DependentsOf(inputVersionID, inputRelation) {
		pv, ok := vg.Version(producerVersionID)
		if !ok || pv.Artifact != producerArtifactID {
			continue
		}
		if out := vg.DependentsOf(producerVersionID, outputRelation); len(out) > 0 {
			return out[0]
		}
	}
	return uuid.Nil
}
