// Package debugfs implements storage.Backend as a plain directory tree of
// JSON files, grounded on the original implementation's debug filesystem
// store (serde_json + create_dir_all, one path-builder per artifact/
// version/hunk) translated into Go's encoding/json plus atomic
// write-temp-then-rename per file, matching the concurrency model's
// "each operation on a filesystem backend performs atomic per-file writes"
// rule.
package debugfs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"github.com/heraclitus/heraclitus/artifact"
	"github.com/heraclitus/heraclitus/composition"
	"github.com/heraclitus/heraclitus/datatype"
	"github.com/heraclitus/heraclitus/internal/herror"
	"github.com/heraclitus/heraclitus/internal/identity"
	"github.com/heraclitus/heraclitus/production"
	"github.com/heraclitus/heraclitus/storage"
	"github.com/heraclitus/heraclitus/version"
)

// Backend is a storage.Backend rooted at a directory on disk.
type Backend struct {
	root string
}

// Open returns a backend rooted at root, creating it if absent.
func Open(root string) (*Backend, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create repository root %s: %w", root, err)
	}
	return &Backend{root: root}, nil
}

func (b *Backend) Tag() storage.Tag { return storage.TagDebugFS }

// Init writes origin.json, the bootstrap marker spec.md's layout names.
// Registered datatypes need no on-disk schema of their own beyond what
// artifact/version files already encode, so Init's only remaining job
// (beyond root creation, done in Open) is that marker file.
func (b *Backend) Init(ctx context.Context, reg *datatype.Registry) error {
	return writeJSON(filepath.Join(b.root, "origin.json"), map[string]any{"datatypes": reg.Names()})
}

// writeJSON serializes v to a temp file alongside path and renames it into
// place, the atomic-per-file-write discipline the filesystem backend
// promises.
func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to rename %s into place: %w", path, err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", path, err)
	}
	return nil
}

func (b *Backend) artifactDir(id uuid.UUID) string {
	return filepath.Join(b.root, id.String())
}

func (b *Backend) versionDir(artifactID, versionID uuid.UUID) string {
	return filepath.Join(b.artifactDir(artifactID), versionID.String())
}

func (b *Backend) hunkDir(artifactID, versionID, hunkID uuid.UUID) string {
	return filepath.Join(b.versionDir(artifactID, versionID), hunkID.String())
}

// artifactGraphFile stores the whole artifact graph at the repository
// root, alongside the per-artifact directories spec.md's layout describes
// (one graph spans the whole repository, so there is exactly one such
// file).
type artifactGraphFile struct {
	ID        uuid.UUID             `json:"id"`
	Hash      uint64                `json:"hash"`
	Artifacts []artifactRecord      `json:"artifacts"`
	Edges     []artifactEdgeRecord  `json:"edges"`
}

type artifactRecord struct {
	ID               uuid.UUID `json:"id"`
	Hash             uint64    `json:"hash"`
	Name             *string   `json:"name,omitempty"`
	DatatypeName     string    `json:"datatype_name"`
	DatatypeVersion  uint64    `json:"datatype_version"`
	SelfPartitioning bool      `json:"self_partitioning"`
}

type artifactEdgeRecord struct {
	Source   uuid.UUID `json:"source"`
	Target   uuid.UUID `json:"target"`
	Name     string    `json:"name"`
	EdgeType string    `json:"edge_type"`
}

func (b *Backend) graphFile() string { return filepath.Join(b.root, "artifact_graph.json") }

func (b *Backend) CreateArtifactGraph(ctx context.Context, reg *datatype.Registry, ag *artifact.Graph) error {
	file := artifactGraphFile{ID: ag.ID.UUID, Hash: ag.ID.Hash}
	for _, a := range ag.Artifacts() {
		file.Artifacts = append(file.Artifacts, artifactRecord{
			ID:               a.ID.UUID,
			Hash:             a.ID.Hash,
			Name:             a.Name,
			DatatypeName:     a.Dtype.Name,
			DatatypeVersion:  a.Dtype.Version,
			SelfPartitioning: a.SelfPartitioning,
		})
		if err := writeJSON(filepath.Join(b.artifactDir(a.ID.UUID), "production_policies.json"), []string{}); err != nil {
			return err
		}
		for _, e := range ag.OutEdges(a.ID.UUID) {
			name, edgeType := relationColumns(e.Label)
			file.Edges = append(file.Edges, artifactEdgeRecord{Source: a.ID.UUID, Target: e.To, Name: name, EdgeType: edgeType})
		}
	}
	return writeJSON(b.graphFile(), file)
}

func (b *Backend) GetArtifactGraph(ctx context.Context, reg *datatype.Registry, id uuid.UUID) (*artifact.Graph, error) {
	var file artifactGraphFile
	if err := readJSON(b.graphFile(), &file); err != nil {
		return nil, err
	}
	if file.ID != id {
		return nil, herror.NotFound("artifact graph %s not found", id)
	}

	artifacts := make([]*artifact.Artifact, 0, len(file.Artifacts))
	for _, ar := range file.Artifacts {
		dt, ok := reg.Lookup(ar.DatatypeName)
		if !ok {
			return nil, herror.NotFound("datatype %q referenced by artifact %s is not registered", ar.DatatypeName, ar.ID)
		}
		artifacts = append(artifacts, &artifact.Artifact{
			ID:               identity.Identity{UUID: ar.ID, Hash: ar.Hash},
			Name:             ar.Name,
			Dtype:            dt.Descriptor,
			SelfPartitioning: ar.SelfPartitioning,
		})
	}

	edges := make([]artifact.ReconstructEdge, 0, len(file.Edges))
	for _, e := range file.Edges {
		edges = append(edges, artifact.ReconstructEdge{From: e.Source, To: e.Target, Relation: relationFromColumns(e.Name, e.EdgeType)})
	}

	return artifact.Reconstruct(identity.Identity{UUID: file.ID, Hash: file.Hash}, artifacts, edges)
}

type versionFile struct {
	ID             uuid.UUID `json:"id"`
	Hash           uint64    `json:"hash"`
	Status         string    `json:"status"`
	Representation string    `json:"representation"`
}

type dependenceRecord struct {
	Version     uuid.UUID `json:"version"`
	RelName     string    `json:"relation_name"`
	RelEdgeType string    `json:"relation_edge_type"`
}

func (b *Backend) CreateStagingVersion(ctx context.Context, v *version.Version, parents []uuid.UUID, deps []version.DependenceRef) error {
	dir := b.versionDir(v.Artifact, v.ID.UUID)
	if err := writeJSON(filepath.Join(dir, "version.json"), versionFile{
		ID: v.ID.UUID, Hash: v.ID.Hash, Status: "staging", Representation: v.Representation.String(),
	}); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, "version_parents.json"), parents); err != nil {
		return err
	}
	records := make([]dependenceRecord, len(deps))
	for i, d := range deps {
		name, edgeType := relationColumns(d.Relation)
		records[i] = dependenceRecord{Version: d.Version, RelName: name, RelEdgeType: edgeType}
	}
	return writeJSON(filepath.Join(dir, "version_dependencies.json"), records)
}

// findVersionDir scans every artifact directory for the one owning id,
// since a bare version id alone does not name its artifact's directory.
func (b *Backend) findVersionDir(id uuid.UUID) (string, uuid.UUID, error) {
	entries, err := os.ReadDir(b.root)
	if err != nil {
		return "", uuid.Nil, fmt.Errorf("failed to list repository root: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		artID, err := uuid.Parse(e.Name())
		if err != nil {
			continue
		}
		dir := filepath.Join(b.artifactDir(artID), id.String())
		if _, err := os.Stat(filepath.Join(dir, "version.json")); err == nil {
			return dir, artID, nil
		}
	}
	return "", uuid.Nil, herror.NotFound("version %s not found", id)
}

func (b *Backend) CommitVersion(ctx context.Context, id uuid.UUID) error {
	dir, _, err := b.findVersionDir(id)
	if err != nil {
		return err
	}
	var vf versionFile
	if err := readJSON(filepath.Join(dir, "version.json"), &vf); err != nil {
		return err
	}
	if vf.Status == "committed" {
		return herror.Model("invalid state: version %s is already committed", id)
	}
	vf.Status = "committed"
	return writeJSON(filepath.Join(dir, "version.json"), vf)
}

func (b *Backend) GetVersion(ctx context.Context, ag *artifact.Graph, id uuid.UUID) (*version.Version, *version.Graph, error) {
	vg, err := b.GetVersionGraph(ctx, ag)
	if err != nil {
		return nil, nil, err
	}
	v, ok := vg.Version(id)
	if !ok {
		return nil, nil, herror.NotFound("version %s not found", id)
	}
	return v, vg, nil
}

func (b *Backend) GetVersionGraph(ctx context.Context, ag *artifact.Graph) (*version.Graph, error) {
	versions := make(map[uuid.UUID]*version.Version)
	parents := make(map[uuid.UUID][]uuid.UUID)
	deps := make(map[uuid.UUID][]version.DependenceRef)
	committed := make(map[uuid.UUID]bool)
	var edges [][2]uuid.UUID
	hunksByVersion := make(map[uuid.UUID][]*version.Hunk)

	for _, a := range ag.Artifacts() {
		artDir := b.artifactDir(a.ID.UUID)
		entries, err := os.ReadDir(artDir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to list artifact directory %s: %w", artDir, err)
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			versionID, err := uuid.Parse(e.Name())
			if err != nil {
				continue
			}
			dir := filepath.Join(artDir, e.Name())

			var vf versionFile
			if err := readJSON(filepath.Join(dir, "version.json"), &vf); err != nil {
				return nil, err
			}
			versions[versionID] = &version.Version{
				ID:             identity.Identity{UUID: vf.ID, Hash: vf.Hash},
				Artifact:       a.ID.UUID,
				Status:         version.Staging,
				Representation: representationFromString(vf.Representation),
			}
			committed[versionID] = vf.Status == "committed"

			var parentIDs []uuid.UUID
			if err := readJSON(filepath.Join(dir, "version_parents.json"), &parentIDs); err != nil {
				return nil, err
			}
			parents[versionID] = parentIDs
			for _, p := range parentIDs {
				edges = append(edges, [2]uuid.UUID{p, versionID})
			}

			var depRecords []dependenceRecord
			if err := readJSON(filepath.Join(dir, "version_dependencies.json"), &depRecords); err != nil {
				return nil, err
			}
			for _, d := range depRecords {
				deps[versionID] = append(deps[versionID], version.DependenceRef{
					Version:  d.Version,
					Relation: relationFromColumns(d.RelName, d.RelEdgeType),
				})
				edges = append(edges, [2]uuid.UUID{d.Version, versionID})
			}

			hunkEntries, err := os.ReadDir(dir)
			if err != nil {
				return nil, fmt.Errorf("failed to list version directory %s: %w", dir, err)
			}
			for _, he := range hunkEntries {
				if !he.IsDir() {
					continue
				}
				hunkID, err := uuid.Parse(he.Name())
				if err != nil {
					continue
				}
				var hf hunkFile
				if err := readJSON(filepath.Join(dir, he.Name(), "hunk.json"), &hf); err != nil {
					return nil, err
				}
				hunksByVersion[versionID] = append(hunksByVersion[versionID], &version.Hunk{
					ID:             identity.Identity{UUID: hunkID, Hash: hf.Hash},
					Version:        versionID,
					Partition:      version.Partition{Partitioning: hf.PartitioningID, Index: hf.PartitionIndex},
					Representation: representationFromString(hf.Representation),
					Completion:     completionFromString(hf.Completion),
					Precedence:     hf.Precedence,
				})
			}
		}
	}

	order := topoOrder(versions, edges)
	vg := version.NewGraph()
	for _, id := range order {
		if err := vg.CreateStagingVersion(versions[id], parents[id], deps[id]); err != nil {
			return nil, fmt.Errorf("failed to replay version %s: %w", id, err)
		}
	}
	for id, hs := range hunksByVersion {
		sort.Slice(hs, func(i, j int) bool { return hs[i].ID.UUID.String() < hs[j].ID.UUID.String() })
		if err := vg.CreateHunks(hs); err != nil {
			return nil, fmt.Errorf("failed to replay hunks for version %s: %w", id, err)
		}
	}
	for id, isCommitted := range committed {
		if isCommitted {
			if err := vg.CommitVersion(id); err != nil {
				return nil, fmt.Errorf("failed to replay commit of version %s: %w", id, err)
			}
		}
	}
	return vg, nil
}

type hunkFile struct {
	Hash           uint64     `json:"hash"`
	PartitioningID uuid.UUID  `json:"partitioning_id"`
	PartitionIndex uint64     `json:"partition_index"`
	Representation string     `json:"representation"`
	Completion     string     `json:"completion"`
	Precedence     *uuid.UUID `json:"precedence,omitempty"`
}

func (b *Backend) CreateHunk(ctx context.Context, h *version.Hunk) error {
	_, artID, err := b.findVersionDir(h.Version)
	if err != nil {
		return err
	}
	dir := b.hunkDir(artID, h.Version, h.ID.UUID)
	return writeJSON(filepath.Join(dir, "hunk.json"), hunkFile{
		Hash:           h.ID.Hash,
		PartitioningID: h.Partition.Partitioning,
		PartitionIndex: h.Partition.Index,
		Representation: h.Representation.String(),
		Completion:     completionString(h.Completion),
		Precedence:     h.Precedence,
	})
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
	dir, _, err := b.findVersionDir(v)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list version directory %s: %w", dir, err)
	}
	var out []*version.Hunk
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		hunkID, err := uuid.Parse(e.Name())
		if err != nil {
			continue
		}
		var hf hunkFile
		if err := readJSON(filepath.Join(dir, e.Name(), "hunk.json"), &hf); err != nil {
			return nil, err
		}
		if parts != nil && !parts[hf.PartitionIndex] {
			continue
		}
		out = append(out, &version.Hunk{
			ID:             identity.Identity{UUID: hunkID, Hash: hf.Hash},
			Version:        v,
			Partition:      version.Partition{Partitioning: hf.PartitioningID, Index: hf.PartitionIndex},
			Representation: representationFromString(hf.Representation),
			Completion:     completionFromString(hf.Completion),
			Precedence:     hf.Precedence,
		})
	}
	return out, nil
}

func (b *Backend) GetCompositionMap(ctx context.Context, vg *version.Graph, v uuid.UUID, parts map[uint64]bool) (composition.Map, error) {
	return composition.Build(vg, v, parts)
}

func (b *Backend) WriteProductionPolicies(ctx context.Context, artifactID uuid.UUID, kinds []production.Kind) error {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return writeJSON(filepath.Join(b.artifactDir(artifactID), "production_policies.json"), names)
}

func (b *Backend) GetProductionPolicies(ctx context.Context, artifactID uuid.UUID) ([]production.Kind, error) {
	var names []string
	path := filepath.Join(b.artifactDir(artifactID), "production_policies.json")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return production.DefaultKinds, nil
	}
	if err := readJSON(path, &names); err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return production.DefaultKinds, nil
	}
	kinds := make([]production.Kind, len(names))
	for i, n := range names {
		kinds[i] = production.Kind(n)
	}
	return kinds, nil
}

func (b *Backend) WriteProductionSpec(ctx context.Context, producerVersion uuid.UUID, strategy string) error {
	dir, _, err := b.findVersionDir(producerVersion)
	if err != nil {
		return err
	}
	return writeJSON(filepath.Join(dir, "production_specs.json"), map[string]string{"strategy": strategy})
}

func (b *Backend) GetProductionSpec(ctx context.Context, producerVersion uuid.UUID) (string, error) {
	dir, _, err := b.findVersionDir(producerVersion)
	if err != nil {
		return "", err
	}
	var spec map[string]string
	if err := readJSON(filepath.Join(dir, "production_specs.json"), &spec); err != nil {
		return "", err
	}
	return spec["strategy"], nil
}

func (b *Backend) WriteHunkPayload(ctx context.Context, hunk uuid.UUID, payload []byte) error {
	dir, artID, err := b.findVersionDirForHunk(hunk)
	if err != nil {
		return err
	}
	_ = artID
	return writeJSON(filepath.Join(dir, "payload.json"), map[string]string{"payload_base64": encodeBase64(payload)})
}

func (b *Backend) ReadHunkPayload(ctx context.Context, hunk uuid.UUID) ([]byte, error) {
	dir, _, err := b.findVersionDirForHunk(hunk)
	if err != nil {
		return nil, err
	}
	var payload map[string]string
	if err := readJSON(filepath.Join(dir, "payload.json"), &payload); err != nil {
		return nil, err
	}
	return decodeBase64(payload["payload_base64"])
}

// findVersionDirForHunk scans every artifact/version directory for the
// hunk directory owning hunk, mirroring findVersionDir's scan-by-need
// approach (a hunk id alone does not name its version's directory).
func (b *Backend) findVersionDirForHunk(hunk uuid.UUID) (string, uuid.UUID, error) {
	entries, err := os.ReadDir(b.root)
	if err != nil {
		return "", uuid.Nil, fmt.Errorf("failed to list repository root: %w", err)
	}
	for _, ae := range entries {
		if !ae.IsDir() {
			continue
		}
		artID, err := uuid.Parse(ae.Name())
		if err != nil {
			continue
		}
		versionEntries, err := os.ReadDir(filepath.Join(b.root, ae.Name()))
		if err != nil {
			continue
		}
		for _, ve := range versionEntries {
			if !ve.IsDir() {
				continue
			}
			dir := filepath.Join(b.root, ae.Name(), ve.Name(), hunk.String())
			if _, err := os.Stat(filepath.Join(dir, "hunk.json")); err == nil {
				return dir, artID, nil
			}
		}
	}
	return "", uuid.Nil, herror.NotFound("hunk %s not found", hunk)
}

func (b *Backend) GetBranchRevisionTips(ctx context.Context, refArtifact uuid.UUID) (map[storage.BranchRevisionTip]uuid.UUID, error) {
	path := filepath.Join(b.artifactDir(refArtifact), "branches.json")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return map[storage.BranchRevisionTip]uuid.UUID{}, nil
	}
	var records []branchRecord
	if err := readJSON(path, &records); err != nil {
		return nil, err
	}
	out := make(map[storage.BranchRevisionTip]uuid.UUID, len(records))
	for _, r := range records {
		out[storage.BranchRevisionTip{Name: r.Name, Revision: r.Revision}] = r.Version
	}
	return out, nil
}

type branchRecord struct {
	Name     string    `json:"name"`
	Revision string    `json:"revision"`
	Version  uuid.UUID `json:"version"`
}

func (b *Backend) SetBranchRevisionTips(ctx context.Context, refArtifact uuid.UUID, tips map[storage.BranchRevisionTip]uuid.UUID) error {
	existing, err := b.GetBranchRevisionTips(ctx, refArtifact)
	if err != nil {
		return err
	}
	for k, v := range tips {
		existing[k] = v
	}
	records := make([]branchRecord, 0, len(existing))
	for k, v := range existing {
		records = append(records, branchRecord{Name: k.Name, Revision: k.Revision, Version: v})
	}
	return writeJSON(filepath.Join(b.artifactDir(refArtifact), "branches.json"), records)
}

func (b *Backend) CreateBranch(ctx context.Context, refArtifact, refVersion uuid.UUID, name string) error {
	return b.SetBranchRevisionTips(ctx, refArtifact, map[storage.BranchRevisionTip]uuid.UUID{
		{Name: name, Revision: "HEAD"}: refVersion,
	})
}

func encodeBase64(payload []byte) string { return base64.StdEncoding.EncodeToString(payload) }

func decodeBase64(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	return b, nil
}

func relationColumns(rel artifact.Relation) (name, edgeType string) {
	switch r := rel.(type) {
	case artifact.ProducedFrom:
		return r.Name, "producer"
	case artifact.DtypeDepends:
		return r.Name, "dtype"
	default:
		return rel.RelationName(), "dtype"
	}
}

func relationFromColumns(name, edgeType string) artifact.Relation {
	if edgeType == "producer" {
		return artifact.ProducedFrom{Name: name}
	}
	return artifact.DtypeDepends{Name: name}
}

func representationFromString(s string) datatype.Representation {
	switch s {
	case "state":
		return datatype.State
	case "cumulative_delta":
		return datatype.CumulativeDelta
	default:
		return datatype.Delta
	}
}

func completionString(c version.Completion) string {
	if c == version.Ragged {
		return "ragged"
	}
	return "complete"
}

func completionFromString(s string) version.Completion {
	if s == "ragged" {
		return version.Ragged
	}
	return version.Complete
}

func topoOrder(versions map[uuid.UUID]*version.Version, edges [][2]uuid.UUID) []uuid.UUID {
	indegree := make(map[uuid.UUID]int, len(versions))
	out := make(map[uuid.UUID][]uuid.UUID, len(versions))
	for id := range versions {
		indegree[id] = 0
	}
	for _, e := range edges {
		indegree[e[1]]++
		out[e[0]] = append(out[e[0]], e[1])
	}

	var ready []uuid.UUID
	for id, deg := range indegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}

	order := make([]uuid.UUID, 0, len(versions))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return ready[i].String() < ready[j].String() })
		n := ready[0]
		ready = ready[1:]
		order = append(order, n)
		for _, next := range out[n] {
			indegree[next]--
			if indegree[next] == 0 {
				ready = append(ready, next)
			}
		}
	}
	return order
}

var _ storage.Backend = (*Backend)(nil)
