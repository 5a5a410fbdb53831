package production

import (
	"testing"

	"github.com/google/uuid"
	"github.com/heraclitus/heraclitus/artifact"
)

func TestSpecSetInsertMergesByDependencySet(t *testing.T) {
	specs := NewSpecSet()
	dep := uuid.New()
	parent1, parent2 := uuid.New(), uuid.New()

	specs.Insert([]DependencySpec{{Version: dep, Relation: artifact.DtypeDepends{Name: "in"}}}, &parent1)
	specs.Insert([]DependencySpec{{Version: dep, Relation: artifact.DtypeDepends{Name: "in"}}}, &parent2)

	entries := specs.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected one merged entry, got %d", len(entries))
	}
	if len(entries[0].Parents) != 2 {
		t.Fatalf("expected both parents retained, got %v", entries[0].Parents)
	}
}

func TestSpecSetInsertKeepsDistinctDependencySetsSeparate(t *testing.T) {
	specs := NewSpecSet()
	specs.Insert([]DependencySpec{{Version: uuid.New(), Relation: artifact.DtypeDepends{Name: "a"}}}, nil)
	specs.Insert([]DependencySpec{{Version: uuid.New(), Relation: artifact.DtypeDepends{Name: "b"}}}, nil)

	if len(specs.Entries()) != 2 {
		t.Fatalf("expected two distinct entries, got %d", len(specs.Entries()))
	}
}

func TestSpecSetMergeFoldsOtherIn(t *testing.T) {
	a := NewSpecSet()
	dep := uuid.New()
	a.Insert([]DependencySpec{{Version: dep, Relation: artifact.DtypeDepends{Name: "in"}}}, nil)

	b := NewSpecSet()
	parent := uuid.New()
	b.Insert([]DependencySpec{{Version: dep, Relation: artifact.DtypeDepends{Name: "in"}}}, &parent)

	a.Merge(b)
	entries := a.Entries()
	if len(entries) != 1 || len(entries[0].Parents) != 2 {
		t.Fatalf("expected merge to union parents into one entry, got %v", entries)
	}
}

func TestSpecSetRetainDropsFilteredEntries(t *testing.T) {
	specs := NewSpecSet()
	keep := uuid.New()
	drop := uuid.New()
	specs.Insert([]DependencySpec{{Version: keep, Relation: artifact.DtypeDepends{Name: "keep"}}}, nil)
	specs.Insert([]DependencySpec{{Version: drop, Relation: artifact.DtypeDepends{Name: "drop"}}}, nil)

	specs.Retain(func(e Entry) bool {
		return e.Deps[0].Version == keep
	})

	entries := specs.Entries()
	if len(entries) != 1 || entries[0].Deps[0].Version != keep {
		t.Fatalf("expected only the kept entry to survive, got %v", entries)
	}
}

func TestRequirementsMergeTakesPointwiseMax(t *testing.T) {
	a := Requirements{Producer: ProducerNone, Dependency: DependencyAll}
	b := Requirements{Producer: ProducerAll, Dependency: DependencyNone}

	merged := a.Merge(b)
	if merged.Producer != ProducerAll || merged.Dependency != DependencyAll {
		t.Fatalf("expected pointwise max, got %+v", merged)
	}
}
