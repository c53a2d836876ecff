package expr

import (
	"strconv"
	"strings"
)

// String renders the subtree rooted at root as infix text, for logs and
// error reports. Variables print as x<id>, parameters as p<id>.
func String(g *Graph, root Handle) string {
	s, err := NewWalker(g, Handlers[string]{
		Const: func(_ Handle, v float64) (string, error) {
			return strconv.FormatFloat(v, 'g', -1, 64), nil
		},
		Var: func(_ Handle, id uint32) (string, error) {
			return "x" + strconv.FormatUint(uint64(id), 10), nil
		},
		Param: func(_ Handle, id uint32) (string, error) {
			return "p" + strconv.FormatUint(uint64(id), 10), nil
		},
		Op: func(_ Handle, k Kind, _ []Handle, args []string) (string, error) {
			var sbb strings.Builder
			switch k {
			case Add, Sub, Mul, Div, Pow:
				sbb.WriteByte('(')
				for i, a := range args {
					if i > 0 {
						sbb.WriteString(infix(k))
					}
					sbb.WriteString(a)
				}
				sbb.WriteByte(')')
			case Neg:
				sbb.WriteString("(-")
				sbb.WriteString(args[0])
				sbb.WriteByte(')')
			default:
				sbb.WriteString(k.String())
				sbb.WriteByte('(')
				sbb.WriteString(args[0])
				sbb.WriteByte(')')
			}
			return sbb.String(), nil
		},
	}).Walk(root)
	if err != nil {
		return "<invalid>"
	}
	return s
}

func infix(k Kind) string {
	switch k {
	case Add:
		return " + "
	case Sub:
		return " - "
	case Mul:
		return "*"
	case Div:
		return "/"
	case Pow:
		return "^"
	default:
		return " ? "
	}
}
