package transform

import (
	"fmt"
	"math"

	"github.com/opalhq/opal/expr"
	"github.com/opalhq/opal/logger"
	"github.com/opalhq/opal/model"
)

// UnboundedBigMError reports that a disjunction cannot be reformulated
// because a variable appearing in a group constraint lacks the finite bound
// the big-M constant derivation requires. It indicates an incomplete model;
// the fix is to bound the variable, not to retry.
type UnboundedBigMError struct {
	Disjunction int
	Group       int
	Spec        int
	VID         model.VarID
}

func (e *UnboundedBigMError) Error() string {
	return fmt.Sprintf(
		"transform: no finite big-M for disjunction %d group %d constraint %d: variable %d lacks the required bound",
		e.Disjunction, e.Group, e.Spec, e.VID)
}

// BigM reformulates every disjunction into mixed-integer form: one binary
// indicator variable per group, each group constraint relaxed by a bounding
// constant gated on its indicator, and an exactly-one constraint over the
// indicators. The constant per constraint is the tightest value derivable
// from the variable bounds already present in the registry.
//
// The pass is order-sensitive: it reads variable bounds and the affine form
// of group constraints, so passes that tighten bounds or substitute
// parameters change its output and must run first.
type BigM struct{}

func (BigM) Name() string         { return "bigm" }
func (BigM) OrderSensitive() bool { return true }

// Apply returns a model free of disjunctions. Group constraints must be
// affine in the variables; the reverse map records every indicator and
// generated constraint.
func (BigM) Apply(m *model.Model) (*model.Model, *Result, error) {
	c := m.Clone()
	res := newResult("bigm")

	lin := expr.NewLinearizer(c.Graph, c.ParamValue)

	for _, d := range c.Disjunctions {
		indicators := make([]model.VarID, len(d.Groups))
		for g := range d.Groups {
			vid, err := c.AddVariable(fmt.Sprintf("%s.ind[%d]", d.Name, g), model.AsBinary())
			if err != nil {
				return nil, nil, err
			}
			indicators[g] = vid
			res.NewVariables[vid] = Origin{
				Kind:        OriginIndicator,
				Disjunction: d.Index,
				Group:       g,
				Spec:        -1,
			}
		}

		for g, group := range d.Groups {
			y := c.VarExpr(indicators[g])
			for si, spec := range group {
				aff, err := lin.Walk(spec.Root)
				if err != nil {
					return nil, nil, fmt.Errorf("disjunction %d group %d constraint %d: %w", d.Index, g, si, err)
				}

				// body <= ub + M*(1-y), rewritten body + M*y <= ub + M
				if !math.IsInf(spec.Rel.Upper, 1) {
					sup, bad, ok := affineSup(c, aff)
					if !ok {
						return nil, nil, &UnboundedBigMError{Disjunction: d.Index, Group: g, Spec: si, VID: bad}
					}
					mu := math.Max(sup-spec.Rel.Upper, 0)
					root := c.Graph.Add(spec.Root, c.Graph.Mul(c.Graph.Constant(mu), y))
					idx, err := c.AddConstraint(
						fmt.Sprintf("%s[%d][%d].ub", d.Name, g, si),
						root,
						model.AtMost(spec.Rel.Upper+mu),
					)
					if err != nil {
						return nil, nil, err
					}
					res.NewConstraints[idx] = Origin{Kind: OriginRelaxed, Disjunction: d.Index, Group: g, Spec: si}
				}

				// body >= lb - M*(1-y), rewritten body - M*y >= lb - M
				if !math.IsInf(spec.Rel.Lower, -1) {
					inf, bad, ok := affineInf(c, aff)
					if !ok {
						return nil, nil, &UnboundedBigMError{Disjunction: d.Index, Group: g, Spec: si, VID: bad}
					}
					ml := math.Max(spec.Rel.Lower-inf, 0)
					root := c.Graph.Sub(spec.Root, c.Graph.Mul(c.Graph.Constant(ml), y))
					idx, err := c.AddConstraint(
						fmt.Sprintf("%s[%d][%d].lb", d.Name, g, si),
						root,
						model.AtLeast(spec.Rel.Lower-ml),
					)
					if err != nil {
						return nil, nil, err
					}
					res.NewConstraints[idx] = Origin{Kind: OriginRelaxed, Disjunction: d.Index, Group: g, Spec: si}
				}
			}
		}

		// exactly one group holds
		terms := make([]expr.Handle, len(indicators))
		for i, vid := range indicators {
			terms[i] = c.VarExpr(vid)
		}
		idx, err := c.AddConstraint(d.Name+".choose", c.Graph.Add(terms...), model.Equal(1))
		if err != nil {
			return nil, nil, err
		}
		res.NewConstraints[idx] = Origin{Kind: OriginExactlyOne, Disjunction: d.Index, Group: -1, Spec: -1}
	}

	log := logger.Logger()
	log.Debug().
		Int("disjunctions", len(c.Disjunctions)).
		Int("indicators", len(res.NewVariables)).
		Msg("big-M reformulation")

	// the mapping above replaces the structural constructs
	c.Disjunctions = nil

	return c, res, nil
}

// affineSup returns the supremum of the affine form over the variable
// bounds box. ok is false when a required bound is missing, with the
// offending variable id.
func affineSup(m *model.Model, aff expr.Affine) (sup float64, bad model.VarID, ok bool) {
	sup = aff.Offset
	for _, t := range aff.Terms {
		v := m.Variable(model.VarID(t.VID))
		b := v.Upper
		if t.Coeff < 0 {
			b = v.Lower
		}
		if math.IsInf(b, 0) {
			return 0, v.ID, false
		}
		sup += t.Coeff * b
	}
	return sup, 0, true
}

// affineInf is the mirror of affineSup for the infimum.
func affineInf(m *model.Model, aff expr.Affine) (inf float64, bad model.VarID, ok bool) {
	inf = aff.Offset
	for _, t := range aff.Terms {
		v := m.Variable(model.VarID(t.VID))
		b := v.Lower
		if t.Coeff < 0 {
			b = v.Upper
		}
		if math.IsInf(b, 0) {
			return 0, v.ID, false
		}
		inf += t.Coeff * b
	}
	return inf, 0, true
}
