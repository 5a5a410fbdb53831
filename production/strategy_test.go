package production

import (
	"testing"

	"github.com/heraclitus/heraclitus/datatype"
)

func TestSelectStrategyFiltersByInputCoverage(t *testing.T) {
	strategies := map[string]Capability{
		"state-only": {
			Inputs:  map[string]RepSet{"in": {datatype.State: true}},
			Outputs: map[string]RepSet{"out": {datatype.State: true}},
		},
		"delta-capable": {
			Inputs:  map[string]RepSet{"in": {datatype.State: true, datatype.Delta: true}},
			Outputs: map[string]RepSet{"out": {datatype.Delta: true}},
		},
	}

	id, err := SelectStrategy(strategies, map[string]datatype.Representation{"in": datatype.Delta})
	if err != nil {
		t.Fatalf("SelectStrategy: %v", err)
	}
	if id != "delta-capable" {
		t.Fatalf("expected delta-capable (the only strategy covering a Delta input), got %q", id)
	}
}

func TestSelectStrategyPrefersLowerOutputWeight(t *testing.T) {
	strategies := map[string]Capability{
		"emits-state": {
			Inputs:  map[string]RepSet{"in": {datatype.State: true}},
			Outputs: map[string]RepSet{"out": {datatype.State: true}},
		},
		"emits-delta": {
			Inputs:  map[string]RepSet{"in": {datatype.State: true}},
			Outputs: map[string]RepSet{"out": {datatype.Delta: true}},
		},
	}

	id, err := SelectStrategy(strategies, map[string]datatype.Representation{"in": datatype.State})
	if err != nil {
		t.Fatalf("SelectStrategy: %v", err)
	}
	if id != "emits-delta" {
		t.Fatalf("expected the more parsimonious (lower-weight) strategy emits-delta, got %q", id)
	}
}

func TestSelectStrategyErrorsWhenNoneCover(t *testing.T) {
	strategies := map[string]Capability{
		"state-only": {
			Inputs:  map[string]RepSet{"in": {datatype.State: true}},
			Outputs: map[string]RepSet{"out": {datatype.State: true}},
		},
	}

	_, err := SelectStrategy(strategies, map[string]datatype.Representation{"in": datatype.Delta})
	if err == nil {
		t.Fatal("expected an error when no strategy covers the actual inputs")
	}
}
