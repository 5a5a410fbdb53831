// Package blob implements the Blob datatype: a byte-oriented payload with
// a State representation (a raw snapshot) and a Delta representation (a
// sparse set of index/byte overwrites), matching the payload shape the
// specification's end-to-end scenarios (S1, S2, S5) exercise directly.
package blob

import (
	"encoding/json"

	"github.com/heraclitus/heraclitus/datatype"
	"github.com/heraclitus/heraclitus/internal/herror"
)

// Delta is a sparse overwrite: set byte Bytes[i] at offset Indices[i] in
// the base state.
type Delta struct {
	Indices []int  `json:"indices"`
	Bytes   []byte `json:"bytes"`
}

// Blob is the byte-oriented datatype.
type Blob struct{}

func (Blob) Descriptor() datatype.Descriptor {
	return datatype.NewDescriptor("Blob", 1,
		[]datatype.Representation{datatype.State, datatype.CumulativeDelta, datatype.Delta},
		[]datatype.Interface{datatype.InterfaceStorage})
}

// EncodeState stores a []byte state verbatim.
func (Blob) EncodeState(state any) ([]byte, error) {
	b, ok := state.([]byte)
	if !ok {
		return nil, herror.Model("Blob state must be []byte, got %T", state)
	}
	return b, nil
}

func (Blob) DecodeState(data []byte) (any, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// EncodeDelta JSON-encodes a Delta.
func (Blob) EncodeDelta(delta any) ([]byte, error) {
	d, ok := delta.(Delta)
	if !ok {
		return nil, herror.Model("Blob delta must be blob.Delta, got %T", delta)
	}
	return json.Marshal(d)
}

func (Blob) DecodeDelta(data []byte) (any, error) {
	var d Delta
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, herror.Model("decode blob delta: %v", err)
	}
	return d, nil
}

// ComposeState applies delta (a Delta, or a []byte treated as a new root
// State) onto base, rolling state one hunk forward.
func (Blob) ComposeState(base any, delta any) (any, error) {
	if state, ok := delta.([]byte); ok {
		out := make([]byte, len(state))
		copy(out, state)
		return out, nil
	}

	d, ok := delta.(Delta)
	if !ok {
		return nil, herror.Model("Blob composition step must be []byte or blob.Delta, got %T", delta)
	}
	baseBytes, ok := base.([]byte)
	if !ok {
		return nil, herror.Model("Blob composition base must be []byte, got %T", base)
	}

	out := make([]byte, len(baseBytes))
	copy(out, baseBytes)
	for i, idx := range d.Indices {
		if idx < 0 || idx >= len(out) {
			return nil, herror.Model("blob delta index %d out of range for base length %d", idx, len(out))
		}
		if i >= len(d.Bytes) {
			return nil, herror.Model("blob delta has more indices than bytes")
		}
		out[idx] = d.Bytes[i]
	}
	return out, nil
}

// Negate returns the bitwise complement of state, the payload
// transformation datatypes/negateproducer applies.
func Negate(state []byte) []byte {
	out := make([]byte, len(state))
	for i, b := range state {
		out[i] = ^b
	}
	return out
}
