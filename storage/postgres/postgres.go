// Package postgres implements storage.Backend over a relational schema,
// grounded on the teacher's common/db.DB connection-pool wrapper and
// common/repository's query-per-method, Scan-into-structs style: one
// exported method per storage.Backend operation, each opening (or
// participating in) exactly one transaction, wrapping every driver error
// with fmt.Errorf("failed to X: %w") before it crosses the package boundary.
package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/heraclitus/heraclitus/artifact"
	"github.com/heraclitus/heraclitus/composition"
	"github.com/heraclitus/heraclitus/datatype"
	"github.com/heraclitus/heraclitus/internal/herror"
	"github.com/heraclitus/heraclitus/internal/identity"
	"github.com/heraclitus/heraclitus/internal/logger"
	"github.com/heraclitus/heraclitus/production"
	"github.com/heraclitus/heraclitus/storage"
	"github.com/heraclitus/heraclitus/version"
)

//go:embed schema.sql
var schemaSQL string

// Backend is a storage.Backend implementation fronted by a pgxpool.Pool,
// the way common/db.DB fronts the teacher's orchestrator state.
type Backend struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

// Config is what this backend consumes from a repository's configuration:
// only the DSN. Pool sizing and lifetime settings are whatever
// pgxpool.ParseConfig derives from that DSN.
type Config struct {
	DSN string
}

// Open parses cfg.DSN, establishes a connection pool, and pings it, failing
// fast the way common/db.New does rather than deferring the failure to the
// first query.
func Open(ctx context.Context, cfg Config, log *logger.Logger) (*Backend, error) {
	if log == nil {
		log = logger.Noop()
	}
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return &Backend{pool: pool, log: log}, nil
}

// Close releases the underlying connection pool.
func (b *Backend) Close() {
	b.log.Info("closing postgres backend")
	b.pool.Close()
}

func (b *Backend) Tag() storage.Tag { return storage.TagPostgres }

// Init applies schema.sql, then upserts every registered datatype's
// (name, version) row so artifact rows can foreign-key against it by name.
func (b *Backend) Init(ctx context.Context, reg *datatype.Registry) error {
	if _, err := b.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	for _, dt := range reg.All() {
		_, err := b.pool.Exec(ctx, `
			INSERT INTO datatype (name, version) VALUES ($1, $2)
			ON CONFLICT (name) DO UPDATE SET version = EXCLUDED.version
		`, dt.Descriptor.Name, dt.Descriptor.Version)
		if err != nil {
			return fmt.Errorf("failed to register datatype %q: %w", dt.Descriptor.Name, err)
		}
	}
	return nil
}

// CreateArtifactGraph persists ag's artifacts and edges inside one
// transaction.
func (b *Backend) CreateArtifactGraph(ctx context.Context, reg *datatype.Registry, ag *artifact.Graph) error {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO artifact_graph (id, hash) VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING
	`, ag.ID.UUID, int64(ag.ID.Hash)); err != nil {
		return fmt.Errorf("failed to insert artifact graph: %w", err)
	}

	for _, a := range ag.Artifacts() {
		var name any
		if a.Name != nil {
			name = *a.Name
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO artifact (id, hash, artifact_graph_id, self_partitioning, name, datatype_name, datatype_version)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO NOTHING
		`, a.ID.UUID, int64(a.ID.Hash), ag.ID.UUID, a.SelfPartitioning, name, a.Dtype.Name, a.Dtype.Version); err != nil {
			return fmt.Errorf("failed to insert artifact %s: %w", a.ID.UUID, err)
		}

		for _, e := range ag.OutEdges(a.ID.UUID) {
			name, edgeType := relationColumns(e.Label)
			if _, err := tx.Exec(ctx, `
				INSERT INTO artifact_edge (source_id, dependent_id, name, edge_type)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (source_id, dependent_id, name) DO NOTHING
			`, a.ID.UUID, e.To, name, edgeType); err != nil {
				return fmt.Errorf("failed to insert artifact edge %s -> %s: %w", a.ID.UUID, e.To, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetArtifactGraph reloads a previously persisted artifact graph, rebuilding
// each artifact's Descriptor from the datatype table rather than the
// registry directly, so a graph built under an older datatype version still
// loads faithfully.
func (b *Backend) GetArtifactGraph(ctx context.Context, reg *datatype.Registry, id uuid.UUID) (*artifact.Graph, error) {
	var hash int64
	if err := b.pool.QueryRow(ctx, `SELECT hash FROM artifact_graph WHERE id = $1`, id).Scan(&hash); err != nil {
		return nil, fmt.Errorf("failed to get artifact graph %s: %w", id, err)
	}

	rows, err := b.pool.Query(ctx, `
		SELECT id, hash, self_partitioning, name, datatype_name, datatype_version
		FROM artifact WHERE artifact_graph_id = $1
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts for graph %s: %w", id, err)
	}
	defer rows.Close()

	var artifacts []*artifact.Artifact
	for rows.Next() {
		var (
			artID           uuid.UUID
			artHash         int64
			selfPartition   bool
			name            *string
			dtypeName       string
			dtypeVersion    int64
		)
		if err := rows.Scan(&artID, &artHash, &selfPartition, &name, &dtypeName, &dtypeVersion); err != nil {
			return nil, fmt.Errorf("failed to scan artifact row: %w", err)
		}
		dt, ok := reg.Lookup(dtypeName)
		if !ok {
			return nil, herror.NotFound("datatype %q referenced by artifact %s is not registered", dtypeName, artID)
		}
		artifacts = append(artifacts, &artifact.Artifact{
			ID:               identity.Identity{UUID: artID, Hash: uint64(artHash)},
			Name:             name,
			Dtype:            dt.Descriptor,
			SelfPartitioning: selfPartition,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating artifacts: %w", err)
	}

	edgeRows, err := b.pool.Query(ctx, `
		SELECT ae.source_id, ae.dependent_id, ae.name, ae.edge_type
		FROM artifact_edge ae
		JOIN artifact a ON a.id = ae.source_id
		WHERE a.artifact_graph_id = $1
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifact edges for graph %s: %w", id, err)
	}
	defer edgeRows.Close()

	var edges []artifact.ReconstructEdge
	for edgeRows.Next() {
		var from, to uuid.UUID
		var name, edgeType string
		if err := edgeRows.Scan(&from, &to, &name, &edgeType); err != nil {
			return nil, fmt.Errorf("failed to scan artifact edge row: %w", err)
		}
		edges = append(edges, artifact.ReconstructEdge{From: from, To: to, Relation: relationFromColumns(name, edgeType)})
	}
	if err := edgeRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating artifact edges: %w", err)
	}

	return artifact.Reconstruct(identity.Identity{UUID: id, Hash: uint64(hash)}, artifacts, edges)
}

// CreateStagingVersion persists a new staging version with its parent and
// dependence edges.
func (b *Backend) CreateStagingVersion(ctx context.Context, v *version.Version, parents []uuid.UUID, deps []version.DependenceRef) error {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO version (id, hash, artifact_id, status, representation)
		VALUES ($1, $2, $3, 'staging', $4)
		ON CONFLICT (id) DO NOTHING
	`, v.ID.UUID, int64(v.ID.Hash), v.Artifact, v.Representation.String()); err != nil {
		return fmt.Errorf("failed to insert version %s: %w", v.ID.UUID, err)
	}

	for _, p := range parents {
		if _, err := tx.Exec(ctx, `
			INSERT INTO version_parent (parent_id, child_id) VALUES ($1, $2)
			ON CONFLICT (parent_id, child_id) DO NOTHING
		`, p, v.ID.UUID); err != nil {
			return fmt.Errorf("failed to insert version parent %s -> %s: %w", p, v.ID.UUID, err)
		}
	}

	for _, d := range deps {
		name, edgeType := relationColumns(d.Relation)
		if _, err := tx.Exec(ctx, `
			INSERT INTO version_relation (source_version_id, dependent_version_id, relation_name, relation_edge_type)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (source_version_id, dependent_version_id, relation_name) DO NOTHING
		`, d.Version, v.ID.UUID, name, edgeType); err != nil {
			return fmt.Errorf("failed to insert version relation %s -> %s: %w", d.Version, v.ID.UUID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CommitVersion transitions a version to committed, failing if it is
// already committed (or absent), mirroring version.Graph.CommitVersion's
// own non-idempotence.
func (b *Backend) CommitVersion(ctx context.Context, id uuid.UUID) error {
	tag, err := b.pool.Exec(ctx, `
		UPDATE version SET status = 'committed' WHERE id = $1 AND status = 'staging'
	`, id)
	if err != nil {
		return fmt.Errorf("failed to commit version %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := b.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM version WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check version %s: %w", id, err)
		}
		if !exists {
			return herror.NotFound("version %s not found", id)
		}
		return herror.Model("invalid state: version %s is already committed", id)
	}
	return nil
}

// GetVersion loads one version alongside the version graph spanning its
// owning artifact graph (loading the whole graph is what commit/production
// read paths need anyway).
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

// GetVersionGraph reloads every version, parent edge, dependence edge, and
// hunk belonging to ag's artifacts, replaying them through version.Graph's
// own public mutation API (CreateStagingVersion/CreateHunk/CommitVersion)
// in a topological order computed from the stored edges, since that API —
// not direct struct construction — is how a version.Graph value comes to
// exist outside its own package.
func (b *Backend) GetVersionGraph(ctx context.Context, ag *artifact.Graph) (*version.Graph, error) {
	artifactIDs := make([]uuid.UUID, 0, len(ag.Artifacts()))
	for _, a := range ag.Artifacts() {
		artifactIDs = append(artifactIDs, a.ID.UUID)
	}

	rows, err := b.pool.Query(ctx, `
		SELECT id, hash, artifact_id, status, representation FROM version WHERE artifact_id = ANY($1)
	`, artifactIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	versions := make(map[uuid.UUID]*version.Version)
	committed := make(map[uuid.UUID]bool)
	for rows.Next() {
		var (
			id             uuid.UUID
			hash           int64
			artID          uuid.UUID
			status, rep    string
		)
		if err := rows.Scan(&id, &hash, &artID, &status, &rep); err != nil {
			return nil, fmt.Errorf("failed to scan version row: %w", err)
		}
		versions[id] = &version.Version{
			ID:             identity.Identity{UUID: id, Hash: uint64(hash)},
			Artifact:       artID,
			Status:         version.Staging,
			Representation: representationFromString(rep),
		}
		committed[id] = status == "committed"
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating versions: %w", err)
	}

	parents := make(map[uuid.UUID][]uuid.UUID)
	var parentEdges [][2]uuid.UUID
	prows, err := b.pool.Query(ctx, `
		SELECT vp.parent_id, vp.child_id FROM version_parent vp
		JOIN version v ON v.id = vp.child_id WHERE v.artifact_id = ANY($1)
	`, artifactIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list version parents: %w", err)
	}
	defer prows.Close()
	for prows.Next() {
		var p, c uuid.UUID
		if err := prows.Scan(&p, &c); err != nil {
			return nil, fmt.Errorf("failed to scan version parent row: %w", err)
		}
		parents[c] = append(parents[c], p)
		parentEdges = append(parentEdges, [2]uuid.UUID{p, c})
	}
	if err := prows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating version parents: %w", err)
	}

	deps := make(map[uuid.UUID][]version.DependenceRef)
	var depEdges [][2]uuid.UUID
	drows, err := b.pool.Query(ctx, `
		SELECT vr.source_version_id, vr.dependent_version_id, vr.relation_name, vr.relation_edge_type
		FROM version_relation vr
		JOIN version v ON v.id = vr.dependent_version_id WHERE v.artifact_id = ANY($1)
	`, artifactIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list version relations: %w", err)
	}
	defer drows.Close()
	for drows.Next() {
		var source, dependent uuid.UUID
		var name, edgeType string
		if err := drows.Scan(&source, &dependent, &name, &edgeType); err != nil {
			return nil, fmt.Errorf("failed to scan version relation row: %w", err)
		}
		deps[dependent] = append(deps[dependent], version.DependenceRef{Version: source, Relation: relationFromColumns(name, edgeType)})
		depEdges = append(depEdges, [2]uuid.UUID{source, dependent})
	}
	if err := drows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating version relations: %w", err)
	}

	order := topoOrder(versions, append(parentEdges, depEdges...))

	vg := version.NewGraph()
	for _, id := range order {
		v := versions[id]
		if err := vg.CreateStagingVersion(v, parents[id], deps[id]); err != nil {
			return nil, fmt.Errorf("failed to replay version %s: %w", id, err)
		}
	}

	hrows, err := b.pool.Query(ctx, `
		SELECT h.id, h.hash, h.version_id, h.partitioning_id, h.partition_index, h.representation, h.completion, h.precedence
		FROM hunk h
		JOIN version v ON v.id = h.version_id WHERE v.artifact_id = ANY($1)
	`, artifactIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list hunks: %w", err)
	}
	defer hrows.Close()
	for hrows.Next() {
		var (
			id, versionID, partitioning uuid.UUID
			hash                        int64
			partIndex                   int64
			rep, completion             string
			precedence                  *uuid.UUID
		)
		if err := hrows.Scan(&id, &hash, &versionID, &partitioning, &partIndex, &rep, &completion, &precedence); err != nil {
			return nil, fmt.Errorf("failed to scan hunk row: %w", err)
		}
		h := &version.Hunk{
			ID:             identity.Identity{UUID: id, Hash: uint64(hash)},
			Version:        versionID,
			Partition:      version.Partition{Partitioning: partitioning, Index: uint64(partIndex)},
			Representation: representationFromString(rep),
			Completion:     completionFromString(completion),
			Precedence:     precedence,
		}
		if err := vg.CreateHunk(h); err != nil {
			return nil, fmt.Errorf("failed to replay hunk %s: %w", id, err)
		}
	}
	if err := hrows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating hunks: %w", err)
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

// CreateHunk persists a single hunk.
func (b *Backend) CreateHunk(ctx context.Context, h *version.Hunk) error {
	var precedence any
	if h.Precedence != nil {
		precedence = *h.Precedence
	}
	_, err := b.pool.Exec(ctx, `
		INSERT INTO hunk (id, hash, version_id, partitioning_id, partition_index, representation, completion, precedence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`, h.ID.UUID, int64(h.ID.Hash), h.Version, h.Partition.Partitioning, int64(h.Partition.Index),
		h.Representation.String(), completionString(h.Completion), precedence)
	if err != nil {
		return fmt.Errorf("failed to insert hunk %s: %w", h.ID.UUID, err)
	}
	return nil
}

// CreateHunks persists hs inside one transaction.
func (b *Backend) CreateHunks(ctx context.Context, hs []*version.Hunk) error {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, h := range hs {
		var precedence any
		if h.Precedence != nil {
			precedence = *h.Precedence
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO hunk (id, hash, version_id, partitioning_id, partition_index, representation, completion, precedence)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO NOTHING
		`, h.ID.UUID, int64(h.ID.Hash), h.Version, h.Partition.Partitioning, int64(h.Partition.Index),
			h.Representation.String(), completionString(h.Completion), precedence); err != nil {
			return fmt.Errorf("failed to insert hunk %s: %w", h.ID.UUID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetHunks returns the hunks owned by v, optionally restricted to parts.
func (b *Backend) GetHunks(ctx context.Context, v uuid.UUID, parts map[uint64]bool) ([]*version.Hunk, error) {
	rows, err := b.pool.Query(ctx, `
		SELECT id, hash, version_id, partitioning_id, partition_index, representation, completion, precedence
		FROM hunk WHERE version_id = $1
	`, v)
	if err != nil {
		return nil, fmt.Errorf("failed to list hunks for version %s: %w", v, err)
	}
	defer rows.Close()

	var out []*version.Hunk
	for rows.Next() {
		var (
			id, versionID, partitioning uuid.UUID
			hash                        int64
			partIndex                   int64
			rep, completion             string
			precedence                  *uuid.UUID
		)
		if err := rows.Scan(&id, &hash, &versionID, &partitioning, &partIndex, &rep, &completion, &precedence); err != nil {
			return nil, fmt.Errorf("failed to scan hunk row: %w", err)
		}
		if parts != nil && !parts[uint64(partIndex)] {
			continue
		}
		out = append(out, &version.Hunk{
			ID:             identity.Identity{UUID: id, Hash: uint64(hash)},
			Version:        versionID,
			Partition:      version.Partition{Partitioning: partitioning, Index: uint64(partIndex)},
			Representation: representationFromString(rep),
			Completion:     completionFromString(completion),
			Precedence:     precedence,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating hunks: %w", err)
	}
	return out, nil
}

// GetCompositionMap delegates to the composition package over a freshly
// loaded version graph; postgres has no materialized composition cache of
// its own (that concern belongs to storage/rediscache).
func (b *Backend) GetCompositionMap(ctx context.Context, vg *version.Graph, v uuid.UUID, parts map[uint64]bool) (composition.Map, error) {
	return composition.Build(vg, v, parts)
}

func (b *Backend) WriteProductionPolicies(ctx context.Context, artifactID uuid.UUID, kinds []production.Kind) error {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	_, err := b.pool.Exec(ctx, `
		INSERT INTO producer_artifact (artifact_id, policies) VALUES ($1, $2)
		ON CONFLICT (artifact_id) DO UPDATE SET policies = EXCLUDED.policies
	`, artifactID, names)
	if err != nil {
		return fmt.Errorf("failed to write production policies for artifact %s: %w", artifactID, err)
	}
	return nil
}

func (b *Backend) GetProductionPolicies(ctx context.Context, artifactID uuid.UUID) ([]production.Kind, error) {
	var names []string
	err := b.pool.QueryRow(ctx, `SELECT policies FROM producer_artifact WHERE artifact_id = $1`, artifactID).Scan(&names)
	if err != nil {
		if err == pgx.ErrNoRows {
			return production.DefaultKinds, nil
		}
		return nil, fmt.Errorf("failed to get production policies for artifact %s: %w", artifactID, err)
	}
	kinds := make([]production.Kind, len(names))
	for i, n := range names {
		kinds[i] = production.Kind(n)
	}
	return kinds, nil
}

func (b *Backend) WriteProductionSpec(ctx context.Context, producerVersion uuid.UUID, strategy string) error {
	_, err := b.pool.Exec(ctx, `
		INSERT INTO producer_version (version_id, strategy) VALUES ($1, $2)
		ON CONFLICT (version_id) DO UPDATE SET strategy = EXCLUDED.strategy
	`, producerVersion, strategy)
	if err != nil {
		return fmt.Errorf("failed to write production spec for version %s: %w", producerVersion, err)
	}
	return nil
}

func (b *Backend) GetProductionSpec(ctx context.Context, producerVersion uuid.UUID) (string, error) {
	var strategy string
	err := b.pool.QueryRow(ctx, `SELECT strategy FROM producer_version WHERE version_id = $1`, producerVersion).Scan(&strategy)
	if err != nil {
		return "", fmt.Errorf("failed to get production spec for version %s: %w", producerVersion, err)
	}
	return strategy, nil
}

func (b *Backend) WriteHunkPayload(ctx context.Context, hunk uuid.UUID, payload []byte) error {
	_, err := b.pool.Exec(ctx, `
		INSERT INTO hunk_payload (hunk_id, payload) VALUES ($1, $2)
		ON CONFLICT (hunk_id) DO UPDATE SET payload = EXCLUDED.payload
	`, hunk, payload)
	if err != nil {
		return fmt.Errorf("failed to write payload for hunk %s: %w", hunk, err)
	}
	return nil
}

func (b *Backend) ReadHunkPayload(ctx context.Context, hunk uuid.UUID) ([]byte, error) {
	var payload []byte
	err := b.pool.QueryRow(ctx, `SELECT payload FROM hunk_payload WHERE hunk_id = $1`, hunk).Scan(&payload)
	if err != nil {
		return nil, fmt.Errorf("failed to read payload for hunk %s: %w", hunk, err)
	}
	return payload, nil
}

func (b *Backend) GetBranchRevisionTips(ctx context.Context, refArtifact uuid.UUID) (map[storage.BranchRevisionTip]uuid.UUID, error) {
	rows, err := b.pool.Query(ctx, `
		SELECT name, revision_path, version_id FROM branch WHERE ref_artifact_id = $1
	`, refArtifact)
	if err != nil {
		return nil, fmt.Errorf("failed to get branch tips for ref artifact %s: %w", refArtifact, err)
	}
	defer rows.Close()

	out := make(map[storage.BranchRevisionTip]uuid.UUID)
	for rows.Next() {
		var name, revision string
		var versionID uuid.UUID
		if err := rows.Scan(&name, &revision, &versionID); err != nil {
			return nil, fmt.Errorf("failed to scan branch row: %w", err)
		}
		out[storage.BranchRevisionTip{Name: name, Revision: revision}] = versionID
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating branch tips: %w", err)
	}
	return out, nil
}

func (b *Backend) SetBranchRevisionTips(ctx context.Context, refArtifact uuid.UUID, tips map[storage.BranchRevisionTip]uuid.UUID) error {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for tip, versionID := range tips {
		if _, err := tx.Exec(ctx, `
			INSERT INTO branch (ref_artifact_id, name, revision_path, version_id)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (ref_artifact_id, name, revision_path) DO UPDATE SET version_id = EXCLUDED.version_id
		`, refArtifact, tip.Name, tip.Revision, versionID); err != nil {
			return fmt.Errorf("failed to set branch tip %q for ref artifact %s: %w", tip.Name, refArtifact, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (b *Backend) CreateBranch(ctx context.Context, refArtifact, refVersion uuid.UUID, name string) error {
	return b.SetBranchRevisionTips(ctx, refArtifact, map[storage.BranchRevisionTip]uuid.UUID{
		{Name: name, Revision: "HEAD"}: refVersion,
	})
}

// relationColumns splits an artifact.Relation into the (name, edge_type)
// column pair artifact_edge and version_relation both use.
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

// topoOrder computes a topological order of versions' ids given the
// combined set of parent and dependence edges among them (both edge kinds
// are "this version must be created before that one" relations from
// version.Graph's point of view, so a single Kahn pass over their union is
// sufficient to find a valid replay order).
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
