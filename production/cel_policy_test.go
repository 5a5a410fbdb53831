package production

import (
	"testing"

	"github.com/google/uuid"
	"github.com/heraclitus/heraclitus/artifact"
)

// fixedPolicy is a stub inner Policy for CELFilteredPolicy: it returns a
// pre-built SpecSet regardless of the PolicyContext it is given.
type fixedPolicy struct {
	specs *SpecSet
}

func (f fixedPolicy) Requirements() Requirements { return Requirements{} }

func (f fixedPolicy) NewVersionSpecs(pc PolicyContext) (*SpecSet, error) {
	return f.specs, nil
}

func TestCELFilteredPolicyRetainsOnlyEntriesThePredicateKeeps(t *testing.T) {
	specs := NewSpecSet()
	wideParent, narrowParent := uuid.New(), uuid.New()
	specs.Insert([]DependencySpec{
		{Version: uuid.New(), Relation: artifact.DtypeDepends{Name: "a"}},
		{Version: uuid.New(), Relation: artifact.DtypeDepends{Name: "b"}},
	}, &wideParent)
	specs.Insert([]DependencySpec{
		{Version: uuid.New(), Relation: artifact.DtypeDepends{Name: "a"}},
	}, &narrowParent)

	policy := &CELFilteredPolicy{
		Inner:      fixedPolicy{specs: specs},
		Expression: "depCount > 1",
		Vars: func(e Entry) map[string]any {
			return map[string]any{"depCount": len(e.Deps)}
		},
	}

	out, err := policy.NewVersionSpecs(PolicyContext{})
	if err != nil {
		t.Fatalf("NewVersionSpecs: %v", err)
	}
	entries := out.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected exactly one entry to survive the predicate, got %d", len(entries))
	}
	if len(entries[0].Deps) != 2 {
		t.Fatalf("expected the surviving entry to be the two-dependency one, got %d deps", len(entries[0].Deps))
	}
}

func TestCELFilteredPolicyDropsEntryOnUnboundVariable(t *testing.T) {
	specs := NewSpecSet()
	parent := uuid.New()
	specs.Insert([]DependencySpec{{Version: uuid.New(), Relation: artifact.DtypeDepends{Name: "a"}}}, &parent)

	policy := &CELFilteredPolicy{
		Inner:      fixedPolicy{specs: specs},
		Expression: "size(deps) > 1",
		// Vars is intentionally nil: deps is declared by program() for
		// every policy but is bound at Eval time only when Vars supplies
		// it, so evaluation errors and Retain's evalErr branch drops the
		// entry rather than keeping it.
	}

	out, err := policy.NewVersionSpecs(PolicyContext{})
	if err != nil {
		t.Fatalf("NewVersionSpecs: %v", err)
	}
	if len(out.Entries()) != 0 {
		t.Fatal("expected an unbound CEL variable to drop the entry, not keep it")
	}
}

func TestCELFilteredPolicyRequirementsDelegatesToInner(t *testing.T) {
	inner := fixedPolicy{specs: NewSpecSet()}
	policy := &CELFilteredPolicy{Inner: inner, Expression: "true"}
	if got := policy.Requirements(); got != inner.Requirements() {
		t.Fatalf("expected Requirements to delegate to Inner, got %v", got)
	}
}
