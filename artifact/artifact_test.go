package artifact

import (
	"errors"
	"testing"

	"github.com/heraclitus/heraclitus/datatype"
	"github.com/heraclitus/heraclitus/internal/herror"
)

func blobDescriptor() datatype.Descriptor {
	return datatype.NewDescriptor("Blob", 1,
		[]datatype.Representation{datatype.State},
		[]datatype.Interface{datatype.InterfaceStorage})
}

func TestBuildOrdersAndHashesDeterministically(t *testing.T) {
	descs := []Description{
		{Name: strPtr("root"), Dtype: blobDescriptor()},
		{Name: strPtr("child"), Dtype: blobDescriptor(), Parents: []ParentRef{
			{Index: 0, Relation: DtypeDepends{Name: "Parent"}},
		}},
	}

	g1, ids1, err := Build(descs)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	g2, ids2, err := Build(descs)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if g1.ID.Hash != g2.ID.Hash {
		t.Fatalf("expected identical graph hash across builds, got %d vs %d", g1.ID.Hash, g2.ID.Hash)
	}
	for i := range descs {
		a1, _ := g1.Artifact(ids1[i])
		a2, _ := g2.Artifact(ids2[i])
		if a1.ID.Hash != a2.ID.Hash {
			t.Fatalf("expected identical artifact content hashes across builds for description %d", i)
		}
	}

	root, ok := g1.Artifact(ids1[0])
	if !ok || *root.Name != "root" {
		t.Fatalf("expected to find root artifact")
	}
	edges := g1.InEdges(ids1[1])
	if len(edges) != 1 || edges[0].From != ids1[0] {
		t.Fatalf("expected child to have one parent edge from root")
	}
}

func TestBuildRejectsOutOfRangeParent(t *testing.T) {
	descs := []Description{
		{Name: strPtr("only"), Dtype: blobDescriptor(), Parents: []ParentRef{
			{Index: 5, Relation: DtypeDepends{Name: "Parent"}},
		}},
	}
	_, _, err := Build(descs)
	if err == nil {
		t.Fatal("expected error for out-of-range parent index")
	}
}

func TestBuildRejectsCycle(t *testing.T) {
	descs := []Description{
		{Name: strPtr("a"), Dtype: blobDescriptor(), Parents: []ParentRef{
			{Index: 1, Relation: DtypeDepends{Name: "Parent"}},
		}},
		{Name: strPtr("b"), Dtype: blobDescriptor(), Parents: []ParentRef{
			{Index: 0, Relation: DtypeDepends{Name: "Parent"}},
		}},
	}
	_, _, err := Build(descs)
	var herr *herror.Error
	if !errors.As(err, &herr) || herr.Kind != herror.KindCycle {
		t.Fatalf("expected a cycle error, got %v", err)
	}
}

func TestVerifyHashDetectsTamperedArtifact(t *testing.T) {
	descs := []Description{
		{Name: strPtr("root"), Dtype: blobDescriptor()},
	}
	g, ids, err := Build(descs)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !g.VerifyHash() {
		t.Fatal("expected freshly built graph to verify")
	}

	a := g.artifacts[ids[0]]
	other := "tampered"
	a.Name = &other
	if g.VerifyHash() {
		t.Fatal("expected VerifyHash to fail after mutating an artifact's name")
	}
}

func TestReconstructRoundTripsBuiltGraph(t *testing.T) {
	descs := []Description{
		{Name: strPtr("root"), Dtype: blobDescriptor()},
		{Name: strPtr("child"), Dtype: blobDescriptor(), Parents: []ParentRef{
			{Index: 0, Relation: DtypeDepends{Name: "Parent"}},
		}},
	}
	g, ids, err := Build(descs)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	var artifacts []*Artifact
	var edges []ReconstructEdge
	for _, id := range g.edges.Nodes() {
		a, _ := g.Artifact(id)
		artifacts = append(artifacts, a)
		for _, e := range g.InEdges(id) {
			edges = append(edges, ReconstructEdge{From: e.From, To: e.To, Relation: e.Label})
		}
	}

	rebuilt, err := Reconstruct(g.ID, artifacts, edges)
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	if !rebuilt.VerifyHash() {
		t.Fatal("expected reconstructed graph to verify against its stored hashes")
	}
	root, ok := rebuilt.Artifact(ids[0])
	if !ok || *root.Name != "root" {
		t.Fatalf("expected reconstructed graph to carry over the root artifact")
	}
}

func TestAddUniformPartitioningSkipsSelfPartitioning(t *testing.T) {
	descs := []Description{
		{Name: strPtr("plain"), Dtype: blobDescriptor()},
		{Name: strPtr("self"), Dtype: blobDescriptor(), SelfPartitioning: true},
	}
	partitioning := Description{Name: strPtr("partitioning"), Dtype: blobDescriptor()}

	withPartitioning := AddUniformPartitioning(descs, partitioning)
	g, ids, err := Build(withPartitioning)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if !hasPartitioningEdge(g.InEdges(ids[0])) {
		t.Fatal("expected plain artifact to gain a Partitioning edge")
	}
	if hasPartitioningEdge(g.InEdges(ids[1])) {
		t.Fatal("expected self-partitioning artifact to be skipped")
	}
	if !g.VerifyHash() {
		t.Fatal("expected the partitioning dependency to be folded into each artifact's hash before minting, keeping VerifyHash true")
	}
}

func strPtr(s string) *string { return &s }
