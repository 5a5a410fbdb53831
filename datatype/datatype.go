// Package datatype defines the descriptor and registry machinery that lets
// artifact/version/production code discover concrete datatype
// implementations by name, without depending on their concrete types.
//
// The registry itself and the exact discovery machinery are out of scope
// per the specification's own boundary (registries that let datatypes be
// discovered by name and by implemented interface are an external
// collaborator); what lives here is the minimal descriptor + name-keyed
// lookup the core needs to call into a datatype.
package datatype

import (
	"fmt"
	"sort"
	"sync"

	"github.com/heraclitus/heraclitus/internal/herror"
	"github.com/heraclitus/heraclitus/internal/identity"
)

// Representation is one of the three hunk/version payload shapes.
type Representation int

const (
	// State is a full snapshot.
	State Representation = iota
	// CumulativeDelta is a delta rooted at a known state.
	CumulativeDelta
	// Delta is a delta that chains onto a prior delta or state.
	Delta
)

func (r Representation) String() string {
	switch r {
	case State:
		return "state"
	case CumulativeDelta:
		return "cumulative_delta"
	case Delta:
		return "delta"
	default:
		return fmt.Sprintf("representation(%d)", int(r))
	}
}

// Weight returns the strategy-scoring weight from the production strategy
// policy: State=3, CumulativeDelta=2, Delta=1.
func (r Representation) Weight() int {
	switch r {
	case State:
		return 3
	case CumulativeDelta:
		return 2
	case Delta:
		return 1
	default:
		return 0
	}
}

// Interface names a capability a datatype implementation may expose.
// Implementation note: capabilities are discovered by Go type assertion
// against Datatype.Impl, not by consulting this list at runtime — it exists
// so a Descriptor can declare, for documentation and validation purposes,
// which capabilities its implementation is expected to satisfy.
type Interface string

const (
	InterfaceStorage                Interface = "storage"
	InterfaceProducer               Interface = "producer"
	InterfaceCustomProductionPolicy Interface = "custom_production_policy"
	InterfacePartitioningState      Interface = "partitioning_state"
)

// Descriptor is a datatype's immutable, process-global identity card.
type Descriptor struct {
	ID              identity.Identity
	Name            string
	Version         uint64
	Representations []Representation
	Implements      []Interface
}

// NewDescriptor builds a Descriptor, deriving its Identity from Name via
// identity.NewDatatype (a v5 UUID plus a content hash of the name).
func NewDescriptor(name string, version uint64, reps []Representation, implements []Interface) Descriptor {
	return Descriptor{
		ID:              identity.NewDatatype(name),
		Name:            name,
		Version:         version,
		Representations: reps,
		Implements:      implements,
	}
}

// SupportsRepresentation reports whether rep is one of d's declared
// representations.
func (d Descriptor) SupportsRepresentation(rep Representation) bool {
	for _, r := range d.Representations {
		if r == rep {
			return true
		}
	}
	return false
}

// HasInterface reports whether d declares the named capability.
func (d Descriptor) HasInterface(iface Interface) bool {
	for _, i := range d.Implements {
		if i == iface {
			return true
		}
	}
	return false
}

// Datatype pairs a Descriptor with its concrete implementation. Capability
// interfaces (Producer, CustomProductionPolicy, Storage, PartitioningState)
// are obtained from Impl via type assertion by the consuming package — this
// keeps datatype free of a dependency on artifact/version/production/storage,
// which themselves depend on datatype.
type Datatype struct {
	Descriptor Descriptor
	Impl       any
}

// As attempts to type-assert the datatype's implementation to T, the way
// callers recover a capability interface (e.g. production.Producer).
func As[T any](dt *Datatype) (T, bool) {
	v, ok := dt.Impl.(T)
	return v, ok
}

// Registry is a read-only-after-init, name-keyed table of datatypes. Per
// the concurrency model, it is safe to share across a cascade once built.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*Datatype
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Datatype)}
}

// Register adds dt, failing if its name is already registered.
func (r *Registry) Register(dt *Datatype) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[dt.Descriptor.Name]; exists {
		return herror.Model("datatype %q already registered", dt.Descriptor.Name)
	}
	r.byName[dt.Descriptor.Name] = dt
	return nil
}

// Lookup finds a datatype by name.
func (r *Registry) Lookup(name string) (*Datatype, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dt, ok := r.byName[name]
	return dt, ok
}

// MustLookup finds a datatype by name or returns a NotFound error.
func (r *Registry) MustLookup(name string) (*Datatype, error) {
	dt, ok := r.Lookup(name)
	if !ok {
		return nil, herror.NotFound("datatype %q is not registered", name)
	}
	return dt, nil
}

// Names returns every registered datatype name, sorted, for deterministic
// iteration (e.g. schema initialization order).
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns every registered datatype, ordered by name.
func (r *Registry) All() []*Datatype {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*Datatype, len(names))
	for i, name := range names {
		out[i] = r.byName[name]
	}
	return out
}
