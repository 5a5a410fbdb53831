package production

import (
	"sort"

	"github.com/heraclitus/heraclitus/datatype"
)

// RepSet is the set of representations a strategy's capability allows for
// one relation.
type RepSet map[datatype.Representation]bool

// Capability describes one production strategy's input/output contract:
// per named relation, which representations it can accept or will emit.
type Capability struct {
	Inputs  map[string]RepSet
	Outputs map[string]RepSet
}

// OutputDescription names one output relation a producer declares, for
// registry/documentation purposes.
type OutputDescription struct {
	RelationName string
	ArtifactName string
}

// SelectStrategy implements ParsimoniousRepresentationProductionStrategyPolicy:
// it filters strategies whose input capability covers the actual input
// relations and representations, then picks the one whose output relations
// sum to the lowest minimum-representation-weight score (State=3,
// CumulativeDelta=2, Delta=1). Ties are broken by sorted strategy id, giving
// a stable (if arbitrary) selection — "implementation-defined but stable"
// per the specification.
func SelectStrategy(strategies map[string]Capability, actualInputs map[string]datatype.Representation) (string, error) {
	var candidates []string
	for id, cap := range strategies {
		if coversInputs(cap, actualInputs) {
			candidates = append(candidates, id)
		}
	}
	if len(candidates) == 0 {
		return "", errNoStrategy
	}

	best := ""
	bestScore := 0
	for _, id := range sortStrings(candidates) {
		score := scoreOutputs(strategies[id])
		if best == "" || score < bestScore {
			best = id
			bestScore = score
		}
	}
	return best, nil
}

func coversInputs(cap Capability, actual map[string]datatype.Representation) bool {
	for rel, rep := range actual {
		allowed, ok := cap.Inputs[rel]
		if !ok || !allowed[rep] {
			return false
		}
	}
	return true
}

func scoreOutputs(cap Capability) int {
	total := 0
	for _, allowed := range cap.Outputs {
		min := 0
		first := true
		for rep := range allowed {
			w := rep.Weight()
			if first || w < min {
				min = w
				first = false
			}
		}
		total += min
	}
	return total
}

func sortStrings(ss []string) []string {
	out := make([]string, len(ss))
	copy(out, ss)
	sort.Strings(out)
	return out
}

type strategyError string

func (e strategyError) Error() string { return string(e) }

const errNoStrategy = strategyError("no production strategy covers the producer version's actual inputs")
