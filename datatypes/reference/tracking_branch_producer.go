package reference

import (
	"github.com/google/uuid"
	"github.com/heraclitus/heraclitus/artifact"
	"github.com/heraclitus/heraclitus/datatype"
	"github.com/heraclitus/heraclitus/internal/herror"
	"github.com/heraclitus/heraclitus/internal/identity"
	"github.com/heraclitus/heraclitus/production"
	"github.com/heraclitus/heraclitus/storage"
	"github.com/heraclitus/heraclitus/version"
)

const (
	trackedRelation = "tracked"
	outputRelation  = "output"
	masterBranch    = "master"
)

// TrackingBranchProducer maintains a Ref's "master" branch as a running
// merge of every version committed to its tracked dependency artifacts: on
// each new tracked version it synthesizes a new Ref version depending on
// that tracked version (alongside everything its parent Ref version
// already tracked), then advances every branch tip currently sitting on
// that parent to the new version.
type TrackingBranchProducer struct{}

func (TrackingBranchProducer) Descriptor() datatype.Descriptor {
	return datatype.NewDescriptor("TrackingBranchProducer", 1,
		[]datatype.Representation{datatype.State},
		[]datatype.Interface{datatype.InterfaceProducer, datatype.InterfaceCustomProductionPolicy})
}

func (TrackingBranchProducer) ProductionStrategies() map[string]production.Capability {
	rep := production.RepSet{datatype.State: true, datatype.Delta: true}
	return map[string]production.Capability{
		"normal": {
			Inputs:  map[string]production.RepSet{trackedRelation: rep},
			Outputs: map[string]production.RepSet{outputRelation: rep},
		},
	}
}

func (TrackingBranchProducer) OutputDescriptions() []production.OutputDescription {
	return []production.OutputDescription{{RelationName: outputRelation, ArtifactName: "Ref"}}
}

// CustomPolicy loads the producer's output Ref's current branch tips and
// builds a policy that only extends producer versions sitting on one of
// those tips, refusing to fork a branch's history.
func (TrackingBranchProducer) CustomPolicy(pc production.PolicyContext) (production.Policy, error) {
	branches, ok := pc.Extra.(BranchStore)
	if !ok {
		return nil, herror.Model("TrackingBranchProducer requires a BranchStore-capable backend")
	}
	refArtifactID, _, err := findProducedFrom(pc.ArtifactGraph, pc.ProducerArtifact, outputRelation)
	if err != nil {
		return nil, err
	}
	tips, err := branches.GetBranchRevisionTips(pc.Ctx, refArtifactID)
	if err != nil {
		return nil, err
	}

	tipProducerVersions := make(map[uuid.UUID]bool, len(tips))
	for _, refVersionID := range tips {
		for _, e := range pc.VersionGraph.DependenceEdgesOf(refVersionID) {
			if e.Label.(version.Dependence).Edge.RelationName() == outputRelation {
				tipProducerVersions[e.From] = true
			}
		}
	}
	return trackingBranchPolicy{tipProducerVersions: tipProducerVersions}, nil
}

// trackingBranchPolicy is ExtantPolicy restricted to producer versions that
// currently sit on a live branch tip of the output Ref.
type trackingBranchPolicy struct {
	tipProducerVersions map[uuid.UUID]bool
}

func (trackingBranchPolicy) Requirements() production.Requirements {
	return production.Requirements{
		Producer:   production.ProducerDependentOnParentVersions,
		Dependency: production.DependencyNone,
	}
}

func (p trackingBranchPolicy) NewVersionSpecs(pc production.PolicyContext) (*production.SpecSet, error) {
	specs, err := (production.ExtantPolicy{}).NewVersionSpecs(pc)
	if err != nil {
		return nil, err
	}
	specs.Retain(func(e production.Entry) bool {
		for _, parent := range e.Parents {
			if parent != nil && p.tipProducerVersions[*parent] {
				return true
			}
		}
		return false
	})
	return specs, nil
}

// NotifyNewVersion stages a new Ref version dependent on every tracked
// input this producer version binds, parents it on its producer parents'
// own output Ref versions, and advances any branch tip sitting on one of
// those parents (or bootstraps "master" if the Ref has no tips yet).
func (TrackingBranchProducer) NotifyNewVersion(nc production.NotifyContext) (production.ProductionOutput, error) {
	branches, ok := nc.Extra.(BranchStore)
	if !ok {
		return production.ProductionOutput{}, herror.Model("TrackingBranchProducer requires a BranchStore-capable backend")
	}
	producerVer, ok := nc.VersionGraph.Version(nc.ProducerVersion)
	if !ok {
		return production.ProductionOutput{}, herror.NotFound("producer version %s not found", nc.ProducerVersion)
	}

	refArtifactID, outputRel, err := findProducedFrom(nc.ArtifactGraph, producerVer.Artifact, outputRelation)
	if err != nil {
		return production.ProductionOutput{}, err
	}

	deps := []version.DependenceRef{{Version: nc.ProducerVersion, Relation: outputRel}}
	for _, e := range nc.VersionGraph.DependenceEdgesOf(nc.ProducerVersion) {
		dep := e.Label.(version.Dependence)
		if dep.Edge.RelationName() != trackedRelation {
			continue
		}
		trackedVer, ok := nc.VersionGraph.Version(e.From)
		if !ok {
			return production.ProductionOutput{}, herror.NotFound("tracked version %s not found", e.From)
		}
		rel, err := trackedRefRelation(nc.ArtifactGraph, trackedVer.Artifact, refArtifactID)
		if err != nil {
			return production.ProductionOutput{}, err
		}
		deps = append(deps, version.DependenceRef{Version: e.From, Relation: rel})
	}

	var refParents []uuid.UUID
	for _, producerParent := range nc.VersionGraph.ParentsOf(nc.ProducerVersion) {
		for _, candidate := range nc.VersionGraph.DependentsOf(producerParent, outputRelation) {
			if cv, ok := nc.VersionGraph.Version(candidate); ok && cv.Artifact == refArtifactID {
				refParents = append(refParents, candidate)
			}
		}
	}

	refVer := &version.Version{
		ID:             identity.New(0),
		Artifact:       refArtifactID,
		Status:         version.Staging,
		Representation: datatype.State,
	}
	if err := nc.VersionGraph.CreateStagingVersion(refVer, refParents, deps); err != nil {
		return production.ProductionOutput{}, err
	}

	oldTips, err := branches.GetBranchRevisionTips(nc.Ctx, refArtifactID)
	if err != nil {
		return production.ProductionOutput{}, err
	}

	if len(oldTips) == 0 {
		if err := branches.CreateBranch(nc.Ctx, refArtifactID, refVer.ID.UUID, masterBranch); err != nil {
			return production.ProductionOutput{}, err
		}
		return production.ProductionOutput{Synchronous: []uuid.UUID{refVer.ID.UUID}}, nil
	}

	refParentSet := make(map[uuid.UUID]bool, len(refParents))
	for _, p := range refParents {
		refParentSet[p] = true
	}

	newTips := make(map[storage.BranchRevisionTip]uuid.UUID)
	for tip, versionID := range oldTips {
		if refParentSet[versionID] {
			newTips[tip] = refVer.ID.UUID
		}
	}
	if len(newTips) == 0 {
		return production.ProductionOutput{}, herror.Model("attempt to create tracking version for non-tip")
	}
	if err := branches.SetBranchRevisionTips(nc.Ctx, refArtifactID, newTips); err != nil {
		return production.ProductionOutput{}, err
	}

	return production.ProductionOutput{Synchronous: []uuid.UUID{refVer.ID.UUID}}, nil
}

func findProducedFrom(ag *artifact.Graph, producerArtifact uuid.UUID, relationName string) (uuid.UUID, artifact.Relation, error) {
	for _, e := range ag.OutEdges(producerArtifact) {
		if pf, ok := e.Label.(artifact.ProducedFrom); ok && pf.Name == relationName {
			return e.To, pf, nil
		}
	}
	return uuid.Nil, nil, herror.Model("producer artifact %s has no %q output relation", producerArtifact, relationName)
}

// trackedRefRelation finds the artifact-graph relation connecting a
// tracked artifact to the output Ref artifact, which the new Ref version's
// own dependence edge on that tracked artifact's version must echo.
func trackedRefRelation(ag *artifact.Graph, trackedArtifactID, refArtifactID uuid.UUID) (artifact.Relation, error) {
	for _, e := range ag.OutEdges(trackedArtifactID) {
		if e.To == refArtifactID {
			return e.Label, nil
		}
	}
	return nil, herror.Model("no artifact-graph relation from tracked artifact %s to ref artifact %s", trackedArtifactID, refArtifactID)
}
