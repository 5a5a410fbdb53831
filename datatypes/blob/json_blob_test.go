package blob

import (
	"encoding/json"
	"testing"
)

func TestJSONBlobComposeStateAppliesPatch(t *testing.T) {
	jb := JSONBlob{}
	base := map[string]any{"name": "alice", "age": 30.0}
	patchDoc := []byte(`[{"op":"replace","path":"/age","value":31}]`)

	delta, err := jb.DecodeDelta(patchDoc)
	if err != nil {
		t.Fatalf("DecodeDelta: %v", err)
	}

	out, err := jb.ComposeState(base, delta)
	if err != nil {
		t.Fatalf("ComposeState: %v", err)
	}
	got := out.(map[string]any)
	if got["age"] != 31.0 {
		t.Fatalf("expected age to be patched to 31, got %v", got["age"])
	}
	if got["name"] != "alice" {
		t.Fatalf("expected name to survive the patch, got %v", got["name"])
	}
}

func TestJSONBlobEncodeDeltaRejectsInvalidPatch(t *testing.T) {
	jb := JSONBlob{}
	if _, err := jb.EncodeDelta([]byte(`not a patch`)); err == nil {
		t.Fatal("expected an error for a malformed json patch document")
	}
}

func TestJSONBlobEncodeStateRoundTrips(t *testing.T) {
	jb := JSONBlob{}
	state := map[string]any{"x": 1.0}

	encoded, err := jb.EncodeState(state)
	if err != nil {
		t.Fatalf("EncodeState: %v", err)
	}
	decoded, err := jb.DecodeState(encoded)
	if err != nil {
		t.Fatalf("DecodeState: %v", err)
	}

	var want map[string]any
	json.Unmarshal(encoded, &want)
	got := decoded.(map[string]any)
	if got["x"] != want["x"] {
		t.Fatalf("decoded state mismatch: got %v, want %v", got, want)
	}
}
