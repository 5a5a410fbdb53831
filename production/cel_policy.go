package production

import (
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/heraclitus/heraclitus/internal/herror"
)

// CELFilteredPolicy wraps another Policy and additionally drops any emitted
// entry for which a CEL expression does not evaluate to true. This is the
// generalization point a datatype's Custom production policy reaches for
// when its filter is a data-driven predicate rather than a fixed rule: it
// is not how the reference TrackingBranchProducer filters (that predicate
// is a fixed tip-set intersection, kept faithful to its grounding source),
// but a new policy wanting e.g. "only extend producer versions whose spec
// has fewer than N parents" can express it as an expression instead of Go.
//
// Compiled programs are cached by expression text, the same
// compile-once-evaluate-many pattern used for workflow branch conditions
// elsewhere in this codebase's lineage.
type CELFilteredPolicy struct {
	Inner      Policy
	Expression string
	// Vars builds the CEL activation for one candidate entry: the variable
	// names it returns are what the expression may reference.
	Vars func(Entry) map[string]any

	mu    sync.Mutex
	cache map[string]cel.Program
}

func (p *CELFilteredPolicy) Requirements() Requirements {
	return p.Inner.Requirements()
}

func (p *CELFilteredPolicy) NewVersionSpecs(pc PolicyContext) (*SpecSet, error) {
	specs, err := p.Inner.NewVersionSpecs(pc)
	if err != nil {
		return nil, err
	}

	prg, err := p.program()
	if err != nil {
		return nil, err
	}

	specs.Retain(func(e Entry) bool {
		vars := map[string]any{}
		if p.Vars != nil {
			vars = p.Vars(e)
		}
		out, _, evalErr := prg.Eval(vars)
		if evalErr != nil {
			return false
		}
		keep, ok := out.Value().(bool)
		return ok && keep
	})

	return specs, nil
}

func (p *CELFilteredPolicy) program() (cel.Program, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cache == nil {
		p.cache = make(map[string]cel.Program)
	}
	if prg, ok := p.cache[p.Expression]; ok {
		return prg, nil
	}

	vardecls := []cel.EnvOption{cel.Variable("deps", cel.DynType), cel.Variable("parents", cel.DynType)}
	if p.Vars != nil {
		for name := range p.Vars(Entry{}) {
			vardecls = append(vardecls, cel.Variable(name, cel.DynType))
		}
	}

	env, err := cel.NewEnv(vardecls...)
	if err != nil {
		return nil, herror.Model("cel env: %v", err)
	}
	ast, issues := env.Compile(p.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, herror.Model("cel compile %q: %v", p.Expression, issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, herror.Model("cel program %q: %v", p.Expression, err)
	}

	p.cache[p.Expression] = prg
	return prg, nil
}
