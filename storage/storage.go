// Package storage defines the contract every persistence backend must
// implement: the version-graph operations of §4.3, the datatype payload
// hooks, and the backend identification/init hook used at repository
// bootstrap.
package storage

import (
	"context"

	"github.com/google/uuid"
	"github.com/heraclitus/heraclitus/artifact"
	"github.com/heraclitus/heraclitus/composition"
	"github.com/heraclitus/heraclitus/datatype"
	"github.com/heraclitus/heraclitus/production"
	"github.com/heraclitus/heraclitus/version"
)

// Tag identifies which concrete backend a repository is using.
type Tag string

const (
	TagPostgres Tag = "postgres"
	TagDebugFS  Tag = "debugfs"
)

// Backend is the contract the core consumes from any persistence layer.
// Every mutating method here is expected to run inside its own atomic unit
// of work (one SQL transaction, or one set of atomic file writes) per the
// concurrency model.
type Backend interface {
	Tag() Tag

	// Init creates schema/directory structure for a fresh repository and
	// registers every datatype's own init hook.
	Init(ctx context.Context, reg *datatype.Registry) error

	CreateArtifactGraph(ctx context.Context, reg *datatype.Registry, ag *artifact.Graph) error
	GetArtifactGraph(ctx context.Context, reg *datatype.Registry, id uuid.UUID) (*artifact.Graph, error)

	CreateStagingVersion(ctx context.Context, v *version.Version, parents []uuid.UUID, deps []version.DependenceRef) error
	CommitVersion(ctx context.Context, id uuid.UUID) error
	GetVersion(ctx context.Context, ag *artifact.Graph, id uuid.UUID) (*version.Version, *version.Graph, error)
	GetVersionGraph(ctx context.Context, ag *artifact.Graph) (*version.Graph, error)

	CreateHunk(ctx context.Context, h *version.Hunk) error
	CreateHunks(ctx context.Context, hs []*version.Hunk) error
	GetHunks(ctx context.Context, v uuid.UUID, parts map[uint64]bool) ([]*version.Hunk, error)

	GetCompositionMap(ctx context.Context, vg *version.Graph, v uuid.UUID, parts map[uint64]bool) (composition.Map, error)

	WriteProductionPolicies(ctx context.Context, artifactID uuid.UUID, kinds []production.Kind) error
	GetProductionPolicies(ctx context.Context, artifactID uuid.UUID) ([]production.Kind, error)
	WriteProductionSpec(ctx context.Context, producerVersion uuid.UUID, strategy string) error
	GetProductionSpec(ctx context.Context, producerVersion uuid.UUID) (string, error)

	WriteHunkPayload(ctx context.Context, hunk uuid.UUID, payload []byte) error
	ReadHunkPayload(ctx context.Context, hunk uuid.UUID) ([]byte, error)

	// Branch-tip storage backs datatypes/reference's Ref datatype: each Ref
	// artifact tracks a set of named branch tips, keyed on (branch, revision
	// path) pairs. Declared directly on Backend (rather than via a separate
	// capability interface the way producer/policy capabilities are) because
	// every reference backend needs it to support Ref at all, same as hunk
	// payload storage.
	GetBranchRevisionTips(ctx context.Context, refArtifact uuid.UUID) (map[BranchRevisionTip]uuid.UUID, error)
	SetBranchRevisionTips(ctx context.Context, refArtifact uuid.UUID, tips map[BranchRevisionTip]uuid.UUID) error
	CreateBranch(ctx context.Context, refArtifact, refVersion uuid.UUID, name string) error
}

// BranchRevisionTip names one branch's tip along a revision path (almost
// always RevisionPath{Head: true}), per the reference datatype's grammar.
type BranchRevisionTip struct {
	Name     string
	Revision string
}
