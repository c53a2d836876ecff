package expr

import (
	"errors"
	"fmt"
	"slices"
)

// ErrNonlinear reports that an expression contains a term that is not
// affine in the variables. Matrix-form and LP writers require full
// linearity; callers wrap this with the offending constraint's identity.
var ErrNonlinear = errors.New("expr: expression is not affine in the variables")

// LinTerm is one coefficient-variable pair of an affine expression.
type LinTerm struct {
	VID   uint32
	Coeff float64
}

// Affine is sum(Terms) + Offset, with Terms sorted by variable id and free
// of duplicates and exact zero coefficients.
type Affine struct {
	Terms  []LinTerm
	Offset float64
}

// IsConstant returns true if the affine form has no variable terms.
func (a Affine) IsConstant() bool { return len(a.Terms) == 0 }

func (a Affine) scale(f float64) Affine {
	if f == 1 {
		return a
	}
	r := Affine{Offset: a.Offset * f}
	if f == 0 {
		return r
	}
	r.Terms = make([]LinTerm, 0, len(a.Terms))
	for _, t := range a.Terms {
		if c := t.Coeff * f; c != 0 {
			r.Terms = append(r.Terms, LinTerm{VID: t.VID, Coeff: c})
		}
	}
	return r
}

func addAffine(parts []Affine) Affine {
	var r Affine
	n := 0
	for _, p := range parts {
		r.Offset += p.Offset
		n += len(p.Terms)
	}
	merged := make([]LinTerm, 0, n)
	for _, p := range parts {
		merged = append(merged, p.Terms...)
	}
	slices.SortFunc(merged, func(x, y LinTerm) int {
		if x.VID != y.VID {
			if x.VID < y.VID {
				return -1
			}
			return 1
		}
		return 0
	})
	for i := 0; i < len(merged); {
		j := i + 1
		c := merged[i].Coeff
		for j < len(merged) && merged[j].VID == merged[i].VID {
			c += merged[j].Coeff
			j++
		}
		if c != 0 {
			r.Terms = append(r.Terms, LinTerm{VID: merged[i].VID, Coeff: c})
		}
		i = j
	}
	return r
}

// Linearize synthesizes the affine form of the subtree rooted at root,
// resolving parameter references through paramVal. It fails with an error
// wrapping ErrNonlinear as soon as a term that is nonlinear in the
// variables is found (products of variables, variables under nonlinear
// functions, variable exponents or denominators).
func Linearize(g *Graph, root Handle, paramVal func(id uint32) float64) (Affine, error) {
	w := NewLinearizer(g, paramVal)
	return w.Walk(root)
}

// NewLinearizer returns a walker producing affine forms; shared
// sub-expressions are linearized once across roots.
func NewLinearizer(g *Graph, paramVal func(id uint32) float64) *Walker[Affine] {
	return NewWalker(g, Handlers[Affine]{
		Const: func(_ Handle, v float64) (Affine, error) {
			return Affine{Offset: v}, nil
		},
		Var: func(_ Handle, id uint32) (Affine, error) {
			return Affine{Terms: []LinTerm{{VID: id, Coeff: 1}}}, nil
		},
		Param: func(_ Handle, id uint32) (Affine, error) {
			return Affine{Offset: paramVal(id)}, nil
		},
		Op: func(h Handle, k Kind, _ []Handle, args []Affine) (Affine, error) {
			return linearizeOp(h, k, args)
		},
	})
}

func linearizeOp(h Handle, k Kind, args []Affine) (Affine, error) {
	switch k {
	case Add:
		return addAffine(args), nil

	case Sub:
		return addAffine([]Affine{args[0], args[1].scale(-1)}), nil

	case Neg:
		return args[0].scale(-1), nil

	case Mul:
		// a product is affine iff at most one factor carries variables
		f := 1.0
		varIdx := -1
		for i, a := range args {
			if a.IsConstant() {
				f *= a.Offset
				continue
			}
			if varIdx >= 0 {
				return Affine{}, fmt.Errorf("%w: product of variables at %s node %d", ErrNonlinear, k, h)
			}
			varIdx = i
		}
		if varIdx < 0 {
			return Affine{Offset: f}, nil
		}
		return args[varIdx].scale(f), nil

	case Div:
		den := args[1]
		if !den.IsConstant() {
			return Affine{}, fmt.Errorf("%w: variable denominator at %s node %d", ErrNonlinear, k, h)
		}
		if den.Offset == 0 {
			return Affine{}, fmt.Errorf("expr: division by zero at %s node %d", k, h)
		}
		return args[0].scale(1 / den.Offset), nil

	case Pow:
		if args[0].IsConstant() && args[1].IsConstant() {
			return Affine{Offset: Apply(Pow, []float64{args[0].Offset, args[1].Offset})}, nil
		}
		if args[1].IsConstant() && args[1].Offset == 1 {
			return args[0], nil
		}
		return Affine{}, fmt.Errorf("%w: %s node %d", ErrNonlinear, k, h)

	default:
		if args[0].IsConstant() {
			return Affine{Offset: Apply(k, []float64{args[0].Offset})}, nil
		}
		return Affine{}, fmt.Errorf("%w: variable under %s at node %d", ErrNonlinear, k, h)
	}
}
