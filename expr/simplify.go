package expr

import (
	"fmt"
	"math"
	"slices"
)

// SimplificationError reports undefined arithmetic detected during constant
// folding, with the identity of the offending node for diagnosis.
type SimplificationError struct {
	Handle Handle
	Kind   Kind
	Msg    string
}

func (e *SimplificationError) Error() string {
	return fmt.Sprintf("simplify: %s at %s node %d", e.Msg, e.Kind, e.Handle)
}

// Simplifier rewrites expressions bottom-up: constant subtrees fold to a
// single Const, operator identities are eliminated, and the children of
// commutative operators are sorted into canonical order so that
// semantically equal expressions built in different declaration order
// intern to the same handle.
//
// Folding uses Apply, the same float64 arithmetic used at evaluation time;
// no extended precision is involved. Rules never change the mathematical
// domain of the expression: division by a provably zero constant is a
// SimplificationError, and 0/x is left alone since x may be zero.
type Simplifier struct {
	src, dst *Graph
	w        *Walker[Handle]
}

// NewSimplifier returns a simplifier rewriting expressions of g in place
// (simplified nodes are interned into the same graph).
func NewSimplifier(g *Graph) *Simplifier {
	return NewSimplifierInto(g, g)
}

// NewSimplifierInto returns a simplifier reading src and interning the
// simplified forms into dst. With dst != src, src is only read, which is
// what per-worker simplification of disjoint roots relies on.
func NewSimplifierInto(dst, src *Graph) *Simplifier {
	s := &Simplifier{src: src, dst: dst}
	s.w = NewWalker(src, Handlers[Handle]{
		Const: func(h Handle, v float64) (Handle, error) {
			return dst.Constant(v), nil
		},
		Var: func(h Handle, id uint32) (Handle, error) {
			return dst.VarRef(id), nil
		},
		Param: func(h Handle, id uint32) (Handle, error) {
			return dst.ParamRef(id), nil
		},
		Op: func(h Handle, k Kind, _ []Handle, args []Handle) (Handle, error) {
			return s.rebuild(h, k, args)
		},
	})
	return s
}

// Simplify returns the canonical simplified handle for root. Shared
// sub-expressions across roots are simplified once per Simplifier.
func (s *Simplifier) Simplify(root Handle) (Handle, error) {
	return s.w.Walk(root)
}

// rebuild applies the rewrite rules for one operator whose children (in
// dst, already simplified) are given in args.
func (s *Simplifier) rebuild(h Handle, k Kind, args []Handle) (Handle, error) {
	dst := s.dst

	// constant subtree: fold
	allConst := true
	for _, c := range args {
		if dst.Kind(c) != Const {
			allConst = false
			break
		}
	}
	if allConst {
		return s.fold(h, k, args)
	}

	switch k {
	case Add:
		return s.rebuildAdd(args), nil

	case Mul:
		return s.rebuildMul(args), nil

	case Sub:
		a, b := args[0], args[1]
		if a == b {
			return dst.Constant(0), nil
		}
		if dst.Kind(b) == Const && dst.ConstValue(b) == 0 {
			return a, nil
		}
		if dst.Kind(a) == Const && dst.ConstValue(a) == 0 {
			return s.makeNeg(b), nil
		}
		return dst.Sub(a, b), nil

	case Div:
		a, b := args[0], args[1]
		if dst.Kind(b) == Const {
			v := dst.ConstValue(b)
			if v == 0 {
				return NoHandle, &SimplificationError{Handle: h, Kind: k, Msg: "division by zero constant"}
			}
			if v == 1 {
				return a, nil
			}
		}
		return dst.Div(a, b), nil

	case Neg:
		return s.makeNeg(args[0]), nil

	case Pow:
		a, b := args[0], args[1]
		if dst.Kind(b) == Const {
			switch dst.ConstValue(b) {
			case 1:
				return a, nil
			case 0:
				// math.Pow(x, 0) == 1 for every x, matching Apply
				return dst.Constant(1), nil
			}
		}
		return dst.Pow(a, b), nil

	default:
		return dst.Op(k, args...), nil
	}
}

// makeNeg negates a, collapsing double negation and constant negation.
func (s *Simplifier) makeNeg(a Handle) Handle {
	dst := s.dst
	switch dst.Kind(a) {
	case Neg:
		return dst.Children(a)[0]
	case Const:
		return dst.Constant(-dst.ConstValue(a))
	}
	return dst.Neg(a)
}

func (s *Simplifier) fold(h Handle, k Kind, args []Handle) (Handle, error) {
	dst := s.dst
	vals := make([]float64, len(args))
	argNaN := false
	for i, c := range args {
		vals[i] = dst.ConstValue(c)
		argNaN = argNaN || math.IsNaN(vals[i])
	}
	if k == Div && vals[1] == 0 {
		return NoHandle, &SimplificationError{Handle: h, Kind: k, Msg: "division by zero constant"}
	}
	r := Apply(k, vals)
	if math.IsNaN(r) && !argNaN {
		return NoHandle, &SimplificationError{Handle: h, Kind: k, Msg: "folding produced NaN"}
	}
	return dst.Constant(r), nil
}

// rebuildAdd flattens nested sums, folds constant children into a single
// constant, drops additive identities and sorts the rest canonically.
func (s *Simplifier) rebuildAdd(args []Handle) Handle {
	dst := s.dst
	flat := make([]Handle, 0, len(args))
	cst := 0.0
	hasCst := false
	var push func(c Handle)
	push = func(c Handle) {
		switch dst.Kind(c) {
		case Add:
			for _, cc := range dst.Children(c) {
				push(cc)
			}
		case Const:
			cst += dst.ConstValue(c)
			hasCst = true
		default:
			flat = append(flat, c)
		}
	}
	for _, c := range args {
		push(c)
	}

	if hasCst && cst != 0 {
		flat = append(flat, dst.Constant(cst))
	}
	switch len(flat) {
	case 0:
		return dst.Constant(0)
	case 1:
		return flat[0]
	}
	slices.SortFunc(flat, dst.Compare)
	return dst.Add(flat...)
}

// rebuildMul flattens nested products, folds constant children, applies the
// multiplicative zero and one rules and sorts the rest canonically.
func (s *Simplifier) rebuildMul(args []Handle) Handle {
	dst := s.dst
	flat := make([]Handle, 0, len(args))
	cst := 1.0
	hasCst := false
	var push func(c Handle)
	push = func(c Handle) {
		switch dst.Kind(c) {
		case Mul:
			for _, cc := range dst.Children(c) {
				push(cc)
			}
		case Const:
			cst *= dst.ConstValue(c)
			hasCst = true
		default:
			flat = append(flat, c)
		}
	}
	for _, c := range args {
		push(c)
	}

	if hasCst && cst == 0 {
		return dst.Constant(0)
	}
	if hasCst && cst != 1 {
		flat = append(flat, dst.Constant(cst))
	}
	switch len(flat) {
	case 0:
		return dst.Constant(1)
	case 1:
		return flat[0]
	}
	slices.SortFunc(flat, dst.Compare)
	return dst.Mul(flat...)
}
