package expr

import (
	"fmt"
	"math"
)

// Apply evaluates operator k over args with plain IEEE-754 float64
// semantics. It is the single definition of operator arithmetic: the
// evaluator, the simplifier's constant folding and tape replay all go
// through it, so folded constants are bit-identical to solve-time values.
func Apply(k Kind, args []float64) float64 {
	switch k {
	case Add:
		s := args[0]
		for _, v := range args[1:] {
			s += v
		}
		return s
	case Sub:
		return args[0] - args[1]
	case Mul:
		p := args[0]
		for _, v := range args[1:] {
			p *= v
		}
		return p
	case Div:
		return args[0] / args[1]
	case Neg:
		return -args[0]
	case Pow:
		return math.Pow(args[0], args[1])
	case Abs:
		return math.Abs(args[0])
	case Sqrt:
		return math.Sqrt(args[0])
	case Exp:
		return math.Exp(args[0])
	case Log:
		return math.Log(args[0])
	case Sin:
		return math.Sin(args[0])
	case Cos:
		return math.Cos(args[0])
	default:
		panic(fmt.Errorf("expr: cannot evaluate %s node", k))
	}
}

// Eval computes the numeric value of the subtree rooted at root. varVal and
// paramVal resolve references by id.
func Eval(g *Graph, root Handle, varVal, paramVal func(id uint32) float64) (float64, error) {
	w := NewEvaluator(g, varVal, paramVal)
	return w.Walk(root)
}

// NewEvaluator returns a walker evaluating expressions numerically; shared
// sub-expressions are evaluated once across all roots it walks.
func NewEvaluator(g *Graph, varVal, paramVal func(id uint32) float64) *Walker[float64] {
	return NewWalker(g, Handlers[float64]{
		Const: func(_ Handle, v float64) (float64, error) { return v, nil },
		Var: func(_ Handle, id uint32) (float64, error) {
			return varVal(id), nil
		},
		Param: func(_ Handle, id uint32) (float64, error) {
			return paramVal(id), nil
		},
		Op: func(_ Handle, k Kind, _ []Handle, args []float64) (float64, error) {
			return Apply(k, args), nil
		},
	})
}
