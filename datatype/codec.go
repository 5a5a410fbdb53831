package datatype

// PayloadCodec is the capability a datatype implements to turn its typed
// payloads into the raw bytes a storage.Backend persists, and to fold a
// composition map's hunks back into one reconstructed state. This is the
// Go shape of the specification's "datatype-specific payload operations"
// (write_hunk/read_hunk/compose_state), kept generic over `any` so the
// core never needs to know a datatype's concrete payload type.
type PayloadCodec interface {
	EncodeState(state any) ([]byte, error)
	DecodeState(data []byte) (any, error)
	EncodeDelta(delta any) ([]byte, error)
	DecodeDelta(data []byte) (any, error)
	// ComposeState folds delta onto base (the result of the prior fold, or
	// nil for the first, root-side State hunk) to roll state forward by
	// one hunk, per the composition map's right-to-left reconstruction
	// order.
	ComposeState(base any, delta any) (any, error)
}
