// Package rediscache fronts a storage.Backend's GetCompositionMap with a
// cache-aside layer: composition maps are deterministic functions of
// (version graph content, target version, partition set), so a repeated
// request for the same version and partitions can be served from cache
// instead of re-walking precedence and folding hunks.
package rediscache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/heraclitus/heraclitus/composition"
	"github.com/heraclitus/heraclitus/datatype"
	"github.com/heraclitus/heraclitus/internal/identity"
	"github.com/heraclitus/heraclitus/internal/logger"
	"github.com/heraclitus/heraclitus/storage"
	"github.com/heraclitus/heraclitus/version"
)

// Cache is a byte-oriented key-value store. Both implementations here are
// safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Memory is an in-process Cache, for single-instance repositories or
// tests that want composition-map caching without a Redis dependency.
type Memory struct {
	mu   sync.RWMutex
	data map[string]*memoryEntry
	log  *logger.Logger
	done chan struct{}
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemory starts a Memory cache along with its background expiry sweep.
func NewMemory(log *logger.Logger) *Memory {
	if log == nil {
		log = logger.Noop()
	}
	c := &Memory{
		data: make(map[string]*memoryEntry),
		log:  log,
		done: make(chan struct{}),
	}
	go c.cleanup()
	return c
}

func (c *Memory) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.data[key]
	if !ok {
		return nil, false, nil
	}
	if time.Now().After(entry.expiresAt) {
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (c *Memory) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = &memoryEntry{value: value, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (c *Memory) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *Memory) Close() error {
	close(c.done)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = nil
	c.log.Info("composition cache closed", "backend", "memory")
	return nil
}

func (c *Memory) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for k, e := range c.data {
				if now.After(e.expiresAt) {
					delete(c.data, k)
				}
			}
			c.mu.Unlock()
		}
	}
}

// Redis is a Cache backed directly by a go-redis client, for repositories
// sharing composition-map results across multiple process instances.
type Redis struct {
	client *redis.Client
	log    *logger.Logger
}

// NewRedis wraps an already-constructed go-redis client. The caller owns
// the client's lifecycle except for Close, which this type delegates.
func NewRedis(client *redis.Client, log *logger.Logger) *Redis {
	if log == nil {
		log = logger.Noop()
	}
	return &Redis{client: client, log: log}
}

func (c *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		c.log.Error("composition cache GET failed", "key", key, "error", err)
		return nil, false, fmt.Errorf("failed to get cache key %s: %w", key, err)
	}
	return val, true, nil
}

func (c *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		c.log.Error("composition cache SET failed", "key", key, "error", err)
		return fmt.Errorf("failed to set cache key %s: %w", key, err)
	}
	return nil
}

func (c *Redis) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.log.Error("composition cache DEL failed", "key", key, "error", err)
		return fmt.Errorf("failed to delete cache key %s: %w", key, err)
	}
	return nil
}

func (c *Redis) Close() error {
	return c.client.Close()
}

// Backend wraps a storage.Backend, caching GetCompositionMap results and
// invalidating them on every write that could change the answer. All other
// methods delegate straight through via embedding.
type Backend struct {
	storage.Backend
	cache Cache
	ttl   time.Duration
	log   *logger.Logger
}

// DefaultTTL is used when New is called with ttl <= 0.
const DefaultTTL = 5 * time.Minute

// New wraps backend with composition-map caching via cache. A ttl of zero
// or less selects DefaultTTL.
func New(backend storage.Backend, cache Cache, ttl time.Duration, log *logger.Logger) *Backend {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = logger.Noop()
	}
	return &Backend{Backend: backend, cache: cache, ttl: ttl, log: log}
}

// GetCompositionMap serves from cache on a hit; on a miss, or on any cache
// error, it falls through to the wrapped backend and repopulates the
// cache best-effort (a cache write failure never fails the read).
func (b *Backend) GetCompositionMap(ctx context.Context, vg *version.Graph, v uuid.UUID, parts map[uint64]bool) (composition.Map, error) {
	key := compositionKey(v, parts)

	if raw, ok, err := b.cache.Get(ctx, key); err == nil && ok {
		m, decodeErr := decodeCompositionMap(raw)
		if decodeErr == nil {
			return m, nil
		}
		b.log.Error("composition cache entry corrupt, recomputing", "key", key, "error", decodeErr)
	}

	m, err := b.Backend.GetCompositionMap(ctx, vg, v, parts)
	if err != nil {
		return nil, err
	}

	if raw, encodeErr := encodeCompositionMap(m); encodeErr == nil {
		if setErr := b.cache.Set(ctx, key, raw, b.ttl); setErr != nil {
			b.log.Error("composition cache write failed", "key", key, "error", setErr)
		}
	} else {
		b.log.Error("composition map not cacheable", "key", key, "error", encodeErr)
	}

	return m, nil
}

// CreateHunk and CreateHunks can change a version's composition map, so
// every cached entry for that version is dropped. WriteHunkPayload does not
// invalidate: the composition map names hunks, not their payload bytes.

func (b *Backend) CreateHunk(ctx context.Context, h *version.Hunk) error {
	if err := b.Backend.CreateHunk(ctx, h); err != nil {
		return err
	}
	b.invalidateVersion(ctx, h.Version)
	return nil
}

func (b *Backend) CreateHunks(ctx context.Context, hs []*version.Hunk) error {
	if err := b.Backend.CreateHunks(ctx, hs); err != nil {
		return err
	}
	seen := make(map[uuid.UUID]bool, len(hs))
	for _, h := range hs {
		if !seen[h.Version] {
			seen[h.Version] = true
			b.invalidateVersion(ctx, h.Version)
		}
	}
	return nil
}

func (b *Backend) invalidateVersion(ctx context.Context, v uuid.UUID) {
	if err := b.cache.Delete(ctx, compositionKeyPrefix(v)); err != nil {
		b.log.Error("composition cache invalidation failed", "version", v, "error", err)
	}
}

func compositionKeyPrefix(v uuid.UUID) string {
	return "composition:" + v.String()
}

// compositionKey is deterministic in the partition set's iteration order:
// every member is rendered and sorted before joining.
func compositionKey(v uuid.UUID, parts map[uint64]bool) string {
	ids := make([]string, 0, len(parts))
	for p := range parts {
		ids = append(ids, fmt.Sprintf("%d", p))
	}
	sort.Strings(ids)
	return compositionKeyPrefix(v) + ":" + strings.Join(ids, ",")
}

// cachedHunk is the JSON-stable mirror of version.Hunk used for cache
// encoding; version.Hunk itself has only exported, JSON-friendly fields, so
// this just pins the wire shape independently of any future field changes.
type cachedHunk struct {
	ID             uuid.UUID               `json:"id"`
	IDHash         uint64                  `json:"id_hash"`
	Version        uuid.UUID               `json:"version"`
	Partitioning   uuid.UUID               `json:"partitioning"`
	PartitionIndex uint64                  `json:"partition_index"`
	Representation datatype.Representation `json:"representation"`
	Completion     version.Completion      `json:"completion"`
	Precedence     *uuid.UUID              `json:"precedence,omitempty"`
}

func encodeCompositionMap(m composition.Map) ([]byte, error) {
	out := make(map[uint64][]cachedHunk, len(m))
	for part, hunks := range m {
		ch := make([]cachedHunk, 0, len(hunks))
		for _, h := range hunks {
			ch = append(ch, cachedHunk{
				ID:             h.ID.UUID,
				IDHash:         h.ID.Hash,
				Version:        h.Version,
				Partitioning:   h.Partition.Partitioning,
				PartitionIndex: h.Partition.Index,
				Representation: h.Representation,
				Completion:     h.Completion,
				Precedence:     h.Precedence,
			})
		}
		out[part] = ch
	}
	return json.Marshal(out)
}

func decodeCompositionMap(raw []byte) (composition.Map, error) {
	var in map[uint64][]cachedHunk
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, err
	}
	m := make(composition.Map, len(in))
	for part, chs := range in {
		hunks := make([]*version.Hunk, 0, len(chs))
		for _, ch := range chs {
			hunks = append(hunks, &version.Hunk{
				ID:      identity.Identity{UUID: ch.ID, Hash: ch.IDHash},
				Version: ch.Version,
				Partition: version.Partition{
					Partitioning: ch.Partitioning,
					Index:        ch.PartitionIndex,
				},
				Representation: ch.Representation,
				Completion:     ch.Completion,
				Precedence:     ch.Precedence,
			})
		}
		m[part] = hunks
	}
	return m, nil
}

var _ storage.Backend = (*Backend)(nil)
