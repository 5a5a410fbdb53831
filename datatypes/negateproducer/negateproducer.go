// Package negateproducer implements NegateProducer: a producer datatype
// that binds one Blob-typed "input" dependency and synthesizes a bitwise
// complement of it on its "output" relation every time the input commits a
// new version. It exists to exercise the producer cascade end to end with
// a minimal, deterministic transform, grounded on the original
// implementation's own test-only NegateBlobProducer.
package negateproducer

import (
	"github.com/google/uuid"
	"github.com/heraclitus/heraclitus/artifact"
	"github.com/heraclitus/heraclitus/datatype"
	"github.com/heraclitus/heraclitus/datatypes/blob"
	"github.com/heraclitus/heraclitus/internal/herror"
	"github.com/heraclitus/heraclitus/internal/identity"
	"github.com/heraclitus/heraclitus/production"
	"github.com/heraclitus/heraclitus/version"
)

const (
	inputRelation  = "input"
	outputRelation = "output"
)

// NegateProducer is the producer datatype.
type NegateProducer struct{}

func (NegateProducer) Descriptor() datatype.Descriptor {
	return datatype.NewDescriptor("NegateProducer", 1,
		[]datatype.Representation{datatype.State},
		[]datatype.Interface{datatype.InterfaceProducer})
}

// ProductionStrategies declares the one strategy this producer supports:
// accept a Blob input in either State or Delta representation, and emit an
// output in the same representation family.
func (NegateProducer) ProductionStrategies() map[string]production.Capability {
	rep := production.RepSet{datatype.State: true, datatype.Delta: true}
	return map[string]production.Capability{
		"normal": {
			Inputs:  map[string]production.RepSet{inputRelation: rep},
			Outputs: map[string]production.RepSet{outputRelation: rep},
		},
	}
}

func (NegateProducer) OutputDescriptions() []production.OutputDescription {
	return []production.OutputDescription{
		{RelationName: outputRelation, ArtifactName: "Blob"},
	}
}

// ProducerVersionHash copies the single input dependency's version hash
// onto the producer version, per the open question resolution: this
// producer's own version carries no information beyond "which input did
// this fire for," so it reuses that input's hash rather than combining a
// singleton set.
func (NegateProducer) ProducerVersionHash(deps []production.DependencySpec, vg *version.Graph) uint64 {
	for _, d := range deps {
		if d.Relation.RelationName() == inputRelation {
			if v, ok := vg.Version(d.Version); ok {
				return v.ID.Hash
			}
		}
	}
	return 0
}

// NotifyNewVersion reads the input version's hunks, negates each payload,
// and stages, hashes, and writes a new output version carrying the result.
func (NegateProducer) NotifyNewVersion(nc production.NotifyContext) (production.ProductionOutput, error) {
	producerVer, ok := nc.VersionGraph.Version(nc.ProducerVersion)
	if !ok {
		return production.ProductionOutput{}, herror.NotFound("producer version %s not found", nc.ProducerVersion)
	}

	var inputVersionID uuid.UUID
	found := false
	for _, e := range nc.VersionGraph.DependenceEdgesOf(nc.ProducerVersion) {
		dep := e.Label.(version.Dependence)
		if dep.Edge.RelationName() == inputRelation {
			inputVersionID = e.From
			found = true
			break
		}
	}
	if !found {
		return production.ProductionOutput{}, herror.Model("negate producer version %s has no input dependence", nc.ProducerVersion)
	}
	inputVersion, ok := nc.VersionGraph.Version(inputVersionID)
	if !ok {
		return production.ProductionOutput{}, herror.NotFound("input version %s not found", inputVersionID)
	}

	outputArtifactID, outputRel, err := findProducedFrom(nc.ArtifactGraph, producerVer.Artifact, outputRelation)
	if err != nil {
		return production.ProductionOutput{}, err
	}
	partitioningRel, err := findPartitioningRelation(nc.ArtifactGraph, outputArtifactID)
	if err != nil {
		return production.ProductionOutput{}, err
	}
	partitioningVersionID, err := version.Partitioning(nc.ArtifactGraph, nc.VersionGraph, inputVersion)
	if err != nil {
		return production.ProductionOutput{}, err
	}

	deps := []version.DependenceRef{
		{Version: nc.ProducerVersion, Relation: outputRel},
		{Version: partitioningVersionID, Relation: partitioningRel},
	}

	var parents []uuid.UUID
	for _, producerParent := range nc.VersionGraph.ParentsOf(nc.ProducerVersion) {
		for _, candidate := range nc.VersionGraph.DependentsOf(producerParent, outputRelation) {
			if cv, ok := nc.VersionGraph.Version(candidate); ok && cv.Artifact == outputArtifactID {
				parents = append(parents, candidate)
			}
		}
	}

	outVer := &version.Version{
		ID:             identity.New(0),
		Artifact:       outputArtifactID,
		Status:         version.Staging,
		Representation: inputVersion.Representation,
	}
	if err := nc.VersionGraph.CreateStagingVersion(outVer, parents, deps); err != nil {
		return production.ProductionOutput{}, err
	}

	var hunkHashes []uint64
	for _, h := range nc.VersionGraph.Hunks(inputVersionID, nil) {
		payload, err := nc.Payloads.ReadHunkPayload(nc.Ctx, h.ID.UUID)
		if err != nil {
			return production.ProductionOutput{}, err
		}

		negated, err := negatePayload(h.Representation, payload)
		if err != nil {
			return production.ProductionOutput{}, err
		}

		outHunk := &version.Hunk{
			ID:             identity.New(identity.Sum(negated)),
			Version:        outVer.ID.UUID,
			Partition:      h.Partition,
			Representation: h.Representation,
			Completion:     version.Complete,
		}
		if err := nc.VersionGraph.CreateHunk(outHunk); err != nil {
			return production.ProductionOutput{}, err
		}
		if err := nc.Payloads.WriteHunkPayload(nc.Ctx, outHunk.ID.UUID, negated); err != nil {
			return production.ProductionOutput{}, err
		}
		hunkHashes = append(hunkHashes, outHunk.ID.Hash)
	}

	outVer.ID.Hash = identity.Combine(hunkHashes...)

	return production.ProductionOutput{Synchronous: []uuid.UUID{outVer.ID.UUID}}, nil
}

func negatePayload(rep datatype.Representation, payload []byte) ([]byte, error) {
	if rep == datatype.State {
		return blob.Negate(payload), nil
	}
	codec := blob.Blob{}
	delta, err := codec.DecodeDelta(payload)
	if err != nil {
		return nil, err
	}
	d := delta.(blob.Delta)
	d.Bytes = blob.Negate(d.Bytes)
	return codec.EncodeDelta(d)
}

func findProducedFrom(ag *artifact.Graph, producerArtifact uuid.UUID, relationName string) (uuid.UUID, artifact.Relation, error) {
	for _, e := range ag.OutEdges(producerArtifact) {
		if pf, ok := e.Label.(artifact.ProducedFrom); ok && pf.Name == relationName {
			return e.To, pf, nil
		}
	}
	return uuid.Nil, nil, herror.Model("producer artifact %s has no %q output relation", producerArtifact, relationName)
}

func findPartitioningRelation(ag *artifact.Graph, artifactID uuid.UUID) (artifact.Relation, error) {
	for _, e := range ag.InEdges(artifactID) {
		if d, ok := e.Label.(artifact.DtypeDepends); ok && d.Name == "Partitioning" {
			return d, nil
		}
	}
	return nil, herror.Model("artifact %s has no partitioning dependency", artifactID)
}
