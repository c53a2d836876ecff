// Package transform rewrites a model into a solution-equivalent one a
// writer can consume: structural constructs such as disjunctions are
// compiled away, and expressions are simplified. Every pass is
// transactional (on error the input model is untouched) and records a
// reverse map from each artifact it introduces back to the construct the
// artifact encodes, so solver results can be mapped onto the original
// model.
package transform

import (
	"fmt"

	"github.com/opalhq/opal/logger"
	"github.com/opalhq/opal/model"
)

// State tracks the lifecycle of an applied pass.
type State uint8

const (
	NotApplied State = iota
	Applied
	Reverted
)

func (s State) String() string {
	switch s {
	case NotApplied:
		return "not applied"
	case Applied:
		return "applied"
	case Reverted:
		return "reverted"
	default:
		return "invalid"
	}
}

// OriginKind tags what a newly introduced artifact encodes.
type OriginKind uint8

const (
	// OriginIndicator marks a binary variable selecting a disjunction group.
	OriginIndicator OriginKind = iota
	// OriginRelaxed marks a big-M relaxed copy of a group constraint.
	OriginRelaxed
	// OriginExactlyOne marks the sum-to-one constraint over indicators.
	OriginExactlyOne
)

// Origin points an artifact back to the structural construct it encodes.
type Origin struct {
	Kind        OriginKind
	Disjunction int // disjunction index in the input model
	Group       int // group index, where meaningful
	Spec        int // constraint position within the group, -1 otherwise
}

// Result is the reverse map produced by one applied pass.
type Result struct {
	Pass  string
	state State

	// NewVariables maps each introduced variable id to its origin.
	NewVariables map[model.VarID]Origin
	// NewConstraints maps each introduced constraint index to its origin.
	NewConstraints map[int]Origin
}

// State returns the lifecycle state of the pass that produced this result.
func (r *Result) State() State { return r.state }

// MarkReverted records that the caller has mapped results back onto the
// original model and discarded the transformed one. Valid only once, from
// the Applied state.
func (r *Result) MarkReverted() error {
	if r.state != Applied {
		return fmt.Errorf("transform: cannot revert %s pass in state %q", r.Pass, r.state)
	}
	r.state = Reverted
	return nil
}

func newResult(pass string) *Result {
	return &Result{
		Pass:           pass,
		state:          NotApplied,
		NewVariables:   map[model.VarID]Origin{},
		NewConstraints: map[int]Origin{},
	}
}

// Pass rewrites a model into a solution-equivalent one. Apply never
// modifies its input: it returns a transformed copy, or an error with the
// input untouched.
type Pass interface {
	Name() string

	// OrderSensitive reports whether composing the pass at a different
	// position in a sequence can change the produced model.
	OrderSensitive() bool

	Apply(m *model.Model) (*model.Model, *Result, error)
}

// Sequence applies passes in caller order, which is part of the contract:
// pass composition is not commutative in general. It returns the final
// model and one result per applied pass. On error, the original model and
// every intermediate one are left untouched.
func Sequence(m *model.Model, passes ...Pass) (*model.Model, []*Result, error) {
	log := logger.Logger()
	cur := m
	results := make([]*Result, 0, len(passes))
	for _, p := range passes {
		next, res, err := p.Apply(cur)
		if err != nil {
			return nil, nil, fmt.Errorf("pass %s: %w", p.Name(), err)
		}
		res.state = Applied
		log.Debug().
			Str("pass", p.Name()).
			Int("newVariables", len(res.NewVariables)).
			Int("newConstraints", len(res.NewConstraints)).
			Msg("transformation pass applied")
		results = append(results, res)
		cur = next
	}
	return cur, results, nil
}

// MapSolution maps the variable values of the transformed model back onto
// the original model through the reverse map: user-declared variables share
// ids across the transformation, and indicator values select the active
// group per disjunction (returned as disjunction index -> group index).
func (r *Result) MapSolution(orig, transformed *model.Model) (map[int]int, error) {
	if r.state == NotApplied {
		return nil, fmt.Errorf("transform: %s pass was not applied", r.Pass)
	}
	x := transformed.Values()
	if len(x) < len(orig.Variables) {
		return nil, fmt.Errorf("transform: transformed model has %d variables, original has %d", len(x), len(orig.Variables))
	}
	if err := orig.SetValues(x[:len(orig.Variables)]); err != nil {
		return nil, err
	}

	active := map[int]int{}
	for vid, o := range r.NewVariables {
		if o.Kind == OriginIndicator && transformed.Value(vid) > 0.5 {
			active[o.Disjunction] = o.Group
		}
	}
	return active, nil
}
