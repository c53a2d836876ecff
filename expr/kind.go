package expr

// Kind is the tag of an expression node. The set is closed: adding an
// operator means extending the constants below and every exhaustive switch
// over Kind, which the compiler enforces.
type Kind uint8

const (
	Unknown Kind = iota

	// leaves
	Const
	Var
	Param

	// operators
	Add // n-ary, commutative
	Sub // binary
	Mul // n-ary, commutative
	Div // binary
	Neg
	Pow // binary
	Abs
	Sqrt
	Exp
	Log
	Sin
	Cos

	nbKinds
)

// NbKinds is the number of valid node kinds, leaves included.
const NbKinds = int(nbKinds)

var kindNames = [nbKinds]string{
	Unknown: "unknown",
	Const:   "const",
	Var:     "var",
	Param:   "param",
	Add:     "add",
	Sub:     "sub",
	Mul:     "mul",
	Div:     "div",
	Neg:     "neg",
	Pow:     "pow",
	Abs:     "abs",
	Sqrt:    "sqrt",
	Exp:     "exp",
	Log:     "log",
	Sin:     "sin",
	Cos:     "cos",
}

func (k Kind) String() string {
	if k >= nbKinds {
		return "invalid"
	}
	return kindNames[k]
}

// IsLeaf returns true for Const, Var and Param nodes.
func (k Kind) IsLeaf() bool {
	return k == Const || k == Var || k == Param
}

// IsOperator returns true for operator nodes.
func (k Kind) IsOperator() bool {
	return k >= Add && k < nbKinds
}

// Commutative returns true if the operator's children may be reordered
// without changing its value. The simplifier sorts children of commutative
// operators into canonical order before interning.
func (k Kind) Commutative() bool {
	return k == Add || k == Mul
}

// Arity returns the expected number of children for the operator, or -1 for
// n-ary operators.
func (k Kind) Arity() int {
	switch k {
	case Add, Mul:
		return -1
	case Sub, Div, Pow:
		return 2
	case Neg, Abs, Sqrt, Exp, Log, Sin, Cos:
		return 1
	default:
		return 0
	}
}
