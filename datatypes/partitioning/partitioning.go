// Package partitioning implements the two partitioning datatypes the
// specification names: UnaryPartitioning (a self-partitioning scheme with
// one implicit partition) and ArbitraryPartitioning (an explicit,
// versioned set of partition indices).
package partitioning

import (
	"encoding/json"
	"sort"

	"github.com/heraclitus/heraclitus/datatype"
	"github.com/heraclitus/heraclitus/internal/herror"
)

// UnaryPartitionIndex is the sole partition index a UnaryPartitioning ever
// reports.
const UnaryPartitionIndex uint64 = 0

// PartitioningState is the capability a partitioning datatype exposes to
// report the set of partition indices a given version of it defines.
type PartitioningState interface {
	PartitionIDs(payload []byte) ([]uint64, error)
}

// Unary is the self-partitioning scheme: an artifact marked
// self_partitioning=true uses its own versions as their partitioning,
// always reporting the single implicit partition 0.
type Unary struct{}

// Descriptor returns the Unary datatype descriptor. Unary carries no
// meaningful payload representation beyond a marker State hunk, since its
// only job is to exist as a version for self-partitioning artifacts to
// depend on.
func (Unary) Descriptor() datatype.Descriptor {
	return datatype.NewDescriptor("UnaryPartitioning", 1,
		[]datatype.Representation{datatype.State},
		[]datatype.Interface{datatype.InterfacePartitioningState})
}

func (Unary) PartitionIDs(payload []byte) ([]uint64, error) {
	return []uint64{UnaryPartitionIndex}, nil
}

func (Unary) EncodeState(state any) ([]byte, error) { return []byte{}, nil }
func (Unary) DecodeState(data []byte) (any, error)   { return struct{}{}, nil }
func (Unary) EncodeDelta(delta any) ([]byte, error) {
	return nil, herror.Model("UnaryPartitioning has no delta representation")
}
func (Unary) DecodeDelta(data []byte) (any, error) {
	return nil, herror.Model("UnaryPartitioning has no delta representation")
}
func (Unary) ComposeState(base, delta any) (any, error) { return base, nil }

// arbitraryState is the JSON-encoded payload of an ArbitraryPartitioning
// State hunk.
type arbitraryState struct {
	PartitionIDs []uint64 `json:"partition_ids"`
}

// Arbitrary is the explicit partitioning scheme: its State payload is a
// set of partition indices, versioned like any other artifact.
type Arbitrary struct{}

func (Arbitrary) Descriptor() datatype.Descriptor {
	return datatype.NewDescriptor("ArbitraryPartitioning", 1,
		[]datatype.Representation{datatype.State},
		[]datatype.Interface{datatype.InterfacePartitioningState, datatype.InterfaceStorage})
}

func (Arbitrary) PartitionIDs(payload []byte) ([]uint64, error) {
	var s arbitraryState
	if err := json.Unmarshal(payload, &s); err != nil {
		return nil, herror.Model("decode arbitrary partitioning state: %v", err)
	}
	ids := append([]uint64(nil), s.PartitionIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (Arbitrary) EncodeState(state any) ([]byte, error) {
	ids, ok := state.([]uint64)
	if !ok {
		return nil, herror.Model("ArbitraryPartitioning state must be []uint64, got %T", state)
	}
	sorted := append([]uint64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return json.Marshal(arbitraryState{PartitionIDs: sorted})
}

func (Arbitrary) DecodeState(data []byte) (any, error) {
	var s arbitraryState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, herror.Model("decode arbitrary partitioning state: %v", err)
	}
	return s.PartitionIDs, nil
}

func (Arbitrary) EncodeDelta(delta any) ([]byte, error) {
	return nil, herror.Model("ArbitraryPartitioning has no delta representation")
}
func (Arbitrary) DecodeDelta(data []byte) (any, error) {
	return nil, herror.Model("ArbitraryPartitioning has no delta representation")
}
func (Arbitrary) ComposeState(base, delta any) (any, error) { return base, nil }
