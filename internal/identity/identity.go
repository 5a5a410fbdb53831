// Package identity implements heraclitus's (uuid, content_hash) identity
// discipline: random v4 identities for artifacts/versions/hunks, content-
// derived v5 identities for datatypes, and the sorted-hash combination rule
// that makes graph hashes independent of insertion order.
package identity

import (
	"encoding/binary"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// DatatypeNamespace is the fixed namespace UUID datatype identities are
// derived from via UUIDv5(namespace, name).
var DatatypeNamespace = uuid.MustParse("a95d827d-3a11-405e-b9e0-e43ffa620d33")

// Identity is a (uuid, 64-bit content hash) pair. The hash is a
// non-cryptographic content digest: equal hashes across repositories imply
// semantic equivalence, never cryptographic binding.
type Identity struct {
	UUID uuid.UUID
	Hash uint64
}

// New mints a fresh random identity with the given hash.
func New(hash uint64) Identity {
	return Identity{UUID: uuid.New(), Hash: hash}
}

// NewDatatype derives a datatype identity from its name: a stable v5 UUID
// plus the content hash of the name itself.
func NewDatatype(name string) Identity {
	return Identity{
		UUID: uuid.NewSHA1(DatatypeNamespace, []byte(name)),
		Hash: Sum([]byte(name)),
	}
}

// Sum computes the 64-bit non-cryptographic content digest of a byte
// payload. Used to hash serialized hunk payloads and other leaf content.
func Sum(data []byte) uint64 {
	return xxhash.Sum64(data)
}

// CombineSorted folds a set of hashes into one, after sorting them
// numerically. Sorting by hash rather than by insertion order or UUID makes
// the combined digest independent of construction order, per the hashing
// discipline: "parent hashes are sorted before combining."
func CombineSorted(hashes []uint64) uint64 {
	sorted := make([]uint64, len(hashes))
	copy(sorted, hashes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	digest := xxhash.New()
	buf := make([]byte, 8)
	for _, h := range sorted {
		binary.LittleEndian.PutUint64(buf, h)
		_, _ = digest.Write(buf)
	}
	return digest.Sum64()
}

// Combine folds an ordered sequence of hashes into one without sorting,
// for callers (such as artifact-hash computation) that need to mix
// additional fields in after the sorted parent-hash block.
func Combine(hashes ...uint64) uint64 {
	digest := xxhash.New()
	buf := make([]byte, 8)
	for _, h := range hashes {
		binary.LittleEndian.PutUint64(buf, h)
		_, _ = digest.Write(buf)
	}
	return digest.Sum64()
}

// CombineBytes mixes raw byte fields (e.g. a name, a boolean flag) into a
// running digest alongside hash fields, for composite hash computations
// like an artifact's "parents ∥ datatype ∥ name ∥ self_partitioning" rule.
func CombineBytes(seed uint64, parts ...[]byte) uint64 {
	digest := xxhash.New()
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, seed)
	_, _ = digest.Write(buf)
	for _, p := range parts {
		_, _ = digest.Write(p)
	}
	return digest.Sum64()
}
