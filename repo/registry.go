package repo

import (
	"fmt"

	"github.com/heraclitus/heraclitus/datatype"
	"github.com/heraclitus/heraclitus/datatypes/blob"
	"github.com/heraclitus/heraclitus/datatypes/negateproducer"
	"github.com/heraclitus/heraclitus/datatypes/partitioning"
	"github.com/heraclitus/heraclitus/datatypes/reference"
)

// DefaultRegistry builds the registry of every datatype this module ships,
// mirroring init_default_dtypes_registry's role in the original: a
// ready-to-use registry for callers (chiefly cmd/heracli) that don't need a
// custom datatype set.
func DefaultRegistry() (*datatype.Registry, error) {
	reg := datatype.NewRegistry()

	impls := []any{
		blob.Blob{},
		blob.JSONBlob{},
		partitioning.Unary{},
		partitioning.Arbitrary{},
		negateproducer.NegateProducer{},
		reference.Ref{},
		reference.TrackingBranchProducer{},
	}

	for _, impl := range impls {
		descriptor, ok := impl.(interface{ Descriptor() datatype.Descriptor })
		if !ok {
			return nil, fmt.Errorf("datatype %T has no Descriptor method", impl)
		}
		dt := &datatype.Datatype{Descriptor: descriptor.Descriptor(), Impl: impl}
		if err := reg.Register(dt); err != nil {
			return nil, fmt.Errorf("failed to register datatype %s: %w", dt.Descriptor.Name, err)
		}
	}

	return reg, nil
}
