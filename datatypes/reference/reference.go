package reference

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/heraclitus/heraclitus/artifact"
	"github.com/heraclitus/heraclitus/datatype"
	"github.com/heraclitus/heraclitus/internal/herror"
	"github.com/heraclitus/heraclitus/storage"
	"github.com/heraclitus/heraclitus/version"
)

// Ref is a named pointer to a version: it depends on an unbounded set of
// "tracked" artifacts and carries no payload of its own beyond the
// branch-tip table a storage.Backend maintains for it.
type Ref struct{}

func (Ref) Descriptor() datatype.Descriptor {
	return datatype.NewDescriptor("Ref", 1,
		[]datatype.Representation{datatype.State},
		nil)
}

// BranchStore is the capability a Ref needs from its backend: read/write
// access to the branch-tip table, and branch creation. storage.Backend
// satisfies this directly.
type BranchStore interface {
	GetBranchRevisionTips(ctx context.Context, refArtifact uuid.UUID) (map[storage.BranchRevisionTip]uuid.UUID, error)
	SetBranchRevisionTips(ctx context.Context, refArtifact uuid.UUID, tips map[storage.BranchRevisionTip]uuid.UUID) error
	CreateBranch(ctx context.Context, refArtifact, refVersion uuid.UUID, name string) error
}

// ResolveVersion walks a VersionSpecifier against the artifact graph,
// version graph, and branch-tip store to the version id it names.
func ResolveVersion(ctx context.Context, ag *artifact.Graph, vg *version.Graph, branches BranchStore, spec VersionSpecifier) (uuid.UUID, error) {
	if spec.ByUUID {
		if !spec.UUID.IsFull {
			return uuid.Nil, herror.TODO("partial UUID prefix lookup is not implemented")
		}
		return spec.UUID.Complete, nil
	}

	refArtifact, err := findArtifact(ag, spec.RefArtifact)
	if err != nil {
		return uuid.Nil, err
	}

	tips, err := branches.GetBranchRevisionTips(ctx, refArtifact.ID.UUID)
	if err != nil {
		return uuid.Nil, err
	}
	tipKey := storage.BranchRevisionTip{Name: spec.BranchRev.Name, Revision: spec.BranchRev.Revision.Path.String()}
	tipVersion, ok := tips[tipKey]
	if !ok {
		return uuid.Nil, herror.NotFound("branch %q not found on ref artifact %s", spec.BranchRev.Name, refArtifact.ID.UUID)
	}

	refVersionID := tipVersion
	for steps := spec.BranchRev.Revision.Offset; steps < 0; steps++ {
		parents := vg.ParentsOf(refVersionID)
		if len(parents) == 0 {
			return uuid.Nil, herror.Model("revision offset exceeds branch %q history", spec.BranchRev.Name)
		}
		refVersionID = parents[0]
	}

	for _, e := range vg.DependenceEdgesOf(refVersionID) {
		dep := e.Label.(version.Dependence)
		depVersion, ok := vg.Version(e.From)
		if !ok {
			continue
		}
		depArtifact, ok := ag.Artifact(depVersion.Artifact)
		if !ok {
			continue
		}
		if matchesArtifact(depArtifact, dep.Edge.RelationName(), spec.Artifact) {
			return e.From, nil
		}
	}
	return uuid.Nil, herror.NotFound("version specifier did not resolve to a tracked artifact's version")
}

func findArtifact(ag *artifact.Graph, spec ArtifactSpecifier) (*artifact.Artifact, error) {
	for _, a := range ag.Artifacts() {
		if matchesArtifact(a, "", spec) {
			return a, nil
		}
	}
	return nil, herror.NotFound("artifact matching %+v not found", spec)
}

func matchesArtifact(a *artifact.Artifact, relationName string, spec ArtifactSpecifier) bool {
	if spec.ByUUID {
		if spec.UUID.IsFull {
			return a.ID.UUID == spec.UUID.Complete
		}
		return strings.HasPrefix(a.ID.UUID.String(), spec.UUID.Partial)
	}
	if a.Name != nil && *a.Name == spec.Name {
		return true
	}
	return relationName != "" && relationName == spec.Name
}
