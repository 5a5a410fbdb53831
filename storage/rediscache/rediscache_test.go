package rediscache

import (
	"context"
	"testing"
	"time"

	"github.com/heraclitus/heraclitus/artifact"
	"github.com/heraclitus/heraclitus/datatype"
	"github.com/heraclitus/heraclitus/internal/identity"
	"github.com/heraclitus/heraclitus/internal/logger"
	"github.com/heraclitus/heraclitus/storage/memdb"
	"github.com/heraclitus/heraclitus/version"
)

func blobDescriptor() datatype.Descriptor {
	return datatype.NewDescriptor("Blob", 1,
		[]datatype.Representation{datatype.State},
		[]datatype.Interface{datatype.InterfaceStorage})
}

func strPtr(s string) *string { return &s }

func TestMemoryGetSetDelete(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(logger.Noop())
	defer c.Close()

	if _, ok, err := c.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected a clean miss, got ok=%v err=%v", ok, err)
	}

	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := c.Get(ctx, "k")
	if err != nil || !ok || string(v) != "v" {
		t.Fatalf("expected a hit with value %q, got ok=%v err=%v v=%q", "v", ok, err, v)
	}

	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Fatal("expected a miss after Delete")
	}
}

func TestMemoryExpiresEntriesAfterTTL(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(logger.Noop())
	defer c.Close()

	if err := c.Set(ctx, "k", []byte("v"), time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Fatal("expected the entry to have expired")
	}
}

func TestBackendGetCompositionMapCachesAcrossCalls(t *testing.T) {
	ctx := context.Background()
	backend := memdb.New()
	cache := NewMemory(logger.Noop())
	defer cache.Close()
	cached := New(backend, cache, DefaultTTL, logger.Noop())

	g, ids, err := artifact.Build([]artifact.Description{{Name: strPtr("data"), Dtype: blobDescriptor()}})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := cached.CreateArtifactGraph(ctx, nil, g); err != nil {
		t.Fatalf("CreateArtifactGraph: %v", err)
	}

	v := &version.Version{
		ID:             identity.New(identity.Sum([]byte("v1"))),
		Artifact:       ids[0],
		Status:         version.Staging,
		Representation: datatype.State,
	}
	if err := cached.CreateStagingVersion(ctx, v, nil, nil); err != nil {
		t.Fatalf("CreateStagingVersion: %v", err)
	}
	h := &version.Hunk{
		ID:             identity.New(identity.Sum([]byte("h1"))),
		Version:        v.ID.UUID,
		Partition:      version.Partition{Index: 0},
		Representation: datatype.State,
		Completion:     version.Complete,
	}
	if err := cached.CreateHunk(ctx, h); err != nil {
		t.Fatalf("CreateHunk: %v", err)
	}

	_, vg, err := cached.GetVersion(ctx, g, v.ID.UUID)
	if err != nil {
		t.Fatalf("GetVersion: %v", err)
	}

	parts := map[uint64]bool{0: true}
	m1, err := cached.GetCompositionMap(ctx, vg, v.ID.UUID, parts)
	if err != nil {
		t.Fatalf("GetCompositionMap (cold): %v", err)
	}
	if len(m1[0]) != 1 || m1[0][0].ID.UUID != h.ID.UUID {
		t.Fatalf("expected one hunk for partition 0, got %v", m1[0])
	}

	key := compositionKey(v.ID.UUID, parts)
	raw, ok, err := cache.Get(ctx, key)
	if err != nil || !ok {
		t.Fatalf("expected GetCompositionMap to populate the cache, ok=%v err=%v", ok, err)
	}
	if len(raw) == 0 {
		t.Fatal("expected a non-empty cached encoding")
	}

	m2, err := cached.GetCompositionMap(ctx, vg, v.ID.UUID, parts)
	if err != nil {
		t.Fatalf("GetCompositionMap (warm): %v", err)
	}
	if len(m2[0]) != 1 || m2[0][0].ID.UUID != h.ID.UUID {
		t.Fatalf("expected the cached composition map to decode back correctly, got %v", m2[0])
	}
}

func TestBackendCreateHunkInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	backend := memdb.New()
	cache := NewMemory(logger.Noop())
	defer cache.Close()
	cached := New(backend, cache, DefaultTTL, logger.Noop())

	g, ids, err := artifact.Build([]artifact.Description{{Name: strPtr("data"), Dtype: blobDescriptor()}})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := cached.CreateArtifactGraph(ctx, nil, g); err != nil {
		t.Fatalf("CreateArtifactGraph: %v", err)
	}

	v := &version.Version{
		ID:             identity.New(identity.Sum([]byte("v1"))),
		Artifact:       ids[0],
		Status:         version.Staging,
		Representation: datatype.State,
	}
	if err := cached.CreateStagingVersion(ctx, v, nil, nil); err != nil {
		t.Fatalf("CreateStagingVersion: %v", err)
	}

	key := compositionKey(v.ID.UUID, map[uint64]bool{0: true})
	if err := cache.Set(ctx, key, []byte(`stale`), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	h := &version.Hunk{
		ID:             identity.New(identity.Sum([]byte("h1"))),
		Version:        v.ID.UUID,
		Partition:      version.Partition{Index: 0},
		Representation: datatype.State,
		Completion:     version.Complete,
	}
	if err := cached.CreateHunk(ctx, h); err != nil {
		t.Fatalf("CreateHunk: %v", err)
	}

	if _, ok, _ := cache.Get(ctx, key); ok {
		t.Fatal("expected CreateHunk to invalidate any cached composition entry for its version")
	}
}
