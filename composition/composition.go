// Package composition implements the composition-map algorithm: given a
// target version and a set of partitions, it returns for each partition an
// ordered list of hunks (target-side to root-side) sufficient to
// reconstruct that partition's state.
package composition

import (
	"github.com/google/uuid"
	"github.com/heraclitus/heraclitus/datatype"
	"github.com/heraclitus/heraclitus/internal/herror"
	"github.com/heraclitus/heraclitus/version"
)

// Map is the per-partition composition result: partition index to an
// ordered hunk list, target-side first.
type Map map[uint64][]*version.Hunk

// Build computes the composition map for version v restricted to the
// partition indices in parts. It walks the Parent-edge ancestor order
// (v first, progressively older ancestors after), resolving each
// partition to a rooting State hunk or to an ancestor pinned by
// precedence, exactly per the algorithm: unresolved partitions still need
// a State hunk, unseen partitions have never been touched, and locked
// partitions are pinned to a specific ancestor via precedence until that
// ancestor is reached.
func Build(vg *version.Graph, v uuid.UUID, parts map[uint64]bool) (Map, error) {
	unresolved := copySet(parts)
	unseen := copySet(parts)
	locked := make(map[uuid.UUID]map[uint64]bool)

	result := make(Map)

	for _, n := range vg.InducedAncestors(v) {
		if pinned, ok := locked[n]; ok {
			for p := range pinned {
				unresolved[p] = true
			}
			delete(locked, n)
		}

		hunks := vg.Hunks(n, unresolved)
		for _, h := range hunks {
			idx := h.Partition.Index
			delete(unseen, idx)

			if h.Representation == datatype.State {
				delete(unresolved, idx)
			}

			if h.Precedence != nil {
				if locked[*h.Precedence] == nil {
					locked[*h.Precedence] = make(map[uint64]bool)
				}
				locked[*h.Precedence][idx] = true
				delete(unresolved, idx)
			}

			result[idx] = append(result[idx], h)
		}

		if len(unresolved) == 0 && len(locked) == 0 {
			return result, nil
		}
	}

	if !setsEqual(unresolved, unseen) || len(locked) != 0 {
		return nil, herror.Model("composition map invariant violated: unresolved != unseen or locked non-empty")
	}
	return result, nil
}

func copySet(s map[uint64]bool) map[uint64]bool {
	out := make(map[uint64]bool, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

func setsEqual(a, b map[uint64]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}
