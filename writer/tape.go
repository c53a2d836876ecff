package writer

import (
	"fmt"

	"github.com/opalhq/opal/expr"
	"github.com/opalhq/opal/model"
)

// OpCode is a tape instruction opcode. Leaf opcodes load a value into their
// slot; operator opcodes combine previously computed slots.
type OpCode uint8

const (
	OpConst OpCode = iota
	OpVar
	OpParam
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpNeg
	OpPow
	OpAbs
	OpSqrt
	OpExp
	OpLog
	OpSin
	OpCos

	nbOpCodes
)

var opKinds = [nbOpCodes]expr.Kind{
	OpConst: expr.Const,
	OpVar:   expr.Var,
	OpParam: expr.Param,
	OpAdd:   expr.Add,
	OpSub:   expr.Sub,
	OpMul:   expr.Mul,
	OpDiv:   expr.Div,
	OpNeg:   expr.Neg,
	OpPow:   expr.Pow,
	OpAbs:   expr.Abs,
	OpSqrt:  expr.Sqrt,
	OpExp:   expr.Exp,
	OpLog:   expr.Log,
	OpSin:   expr.Sin,
	OpCos:   expr.Cos,
}

// Kind returns the expression kind the opcode encodes.
func (op OpCode) Kind() expr.Kind {
	if op >= nbOpCodes {
		return expr.Unknown
	}
	return opKinds[op]
}

func (op OpCode) String() string { return op.Kind().String() }

func opFor(k expr.Kind) OpCode {
	for op, kk := range opKinds {
		if kk == k {
			return OpCode(op)
		}
	}
	panic(fmt.Errorf("writer: no opcode for %s node", k))
}

// Instr is one tape instruction. Executing instruction i writes slot i;
// Args reference slots of earlier instructions only.
type Instr struct {
	Op   OpCode
	Imm  float64  // OpConst payload
	Ref  uint32   // OpVar / OpParam id
	Args []uint32 // operand slots, operators only
}

// Program is the reverse-Polish encoding of one constraint or objective
// root: a linear instruction sequence an external evaluator (typically an
// automatic-differentiation backend) replays slot by slot. Shared
// sub-expressions of the root appear once and are referenced by slot.
type Program struct {
	Code []Instr
}

// Result returns the slot holding the root value.
func (p *Program) Result() int { return len(p.Code) - 1 }

// Replay evaluates the program against variable and parameter vectors
// indexed by id. Arithmetic goes through expr.Apply, so the result is
// bit-identical to evaluating the original expression graph.
func (p *Program) Replay(vars, params []float64) (float64, error) {
	if len(p.Code) == 0 {
		return 0, fmt.Errorf("writer: empty program")
	}
	slots := make([]float64, len(p.Code))
	var args []float64
	for i, ins := range p.Code {
		switch ins.Op {
		case OpConst:
			slots[i] = ins.Imm
		case OpVar:
			if int(ins.Ref) >= len(vars) {
				return 0, fmt.Errorf("writer: instruction %d references variable %d, have %d", i, ins.Ref, len(vars))
			}
			slots[i] = vars[ins.Ref]
		case OpParam:
			if int(ins.Ref) >= len(params) {
				return 0, fmt.Errorf("writer: instruction %d references parameter %d, have %d", i, ins.Ref, len(params))
			}
			slots[i] = params[ins.Ref]
		default:
			args = args[:0]
			for _, a := range ins.Args {
				if int(a) >= i {
					return 0, fmt.Errorf("writer: instruction %d references later slot %d", i, a)
				}
				args = append(args, slots[a])
			}
			slots[i] = expr.Apply(ins.Op.Kind(), args)
		}
	}
	return slots[len(slots)-1], nil
}

// TapeForm is the expression-tape encoding of a model: one program per
// constraint and objective, plus the bounds and domain vectors in registry
// index order.
type TapeForm struct {
	Version string

	Constraints []Program
	RowLower    []float64
	RowUpper    []float64
	RowName     []string

	Objectives []Program
	Senses     []model.Sense

	ColLower  []float64
	ColUpper  []float64
	ColInit   []float64
	ColDomain []model.Domain
	ColName   []string
}

// Tape compiles a model into expression-tape form. Unlike Matrix it
// accepts arbitrary nonlinear expressions; it still rejects models holding
// unresolved disjunctions.
func Tape(m *model.Model) (*TapeForm, error) {
	if len(m.Disjunctions) > 0 {
		return nil, ErrUnresolvedDisjunction
	}

	t := &TapeForm{
		Version:     versionString(),
		Constraints: make([]Program, len(m.Constraints)),
		RowLower:    make([]float64, len(m.Constraints)),
		RowUpper:    make([]float64, len(m.Constraints)),
		RowName:     make([]string, len(m.Constraints)),
		Objectives:  make([]Program, len(m.Objectives)),
		Senses:      make([]model.Sense, len(m.Objectives)),
		ColLower:    make([]float64, len(m.Variables)),
		ColUpper:    make([]float64, len(m.Variables)),
		ColInit:     make([]float64, len(m.Variables)),
		ColDomain:   make([]model.Domain, len(m.Variables)),
		ColName:     make([]string, len(m.Variables)),
	}

	for i := range m.Variables {
		v := &m.Variables[i]
		t.ColLower[i] = v.Lower
		t.ColUpper[i] = v.Upper
		t.ColInit[i] = v.Value
		t.ColDomain[i] = v.Domain
		t.ColName[i] = v.FullName()
	}

	for i := range m.Constraints {
		c := &m.Constraints[i]
		p, err := compileProgram(m.Graph, c.Root)
		if err != nil {
			return nil, err
		}
		t.Constraints[i] = p
		t.RowLower[i] = c.Rel.Lower
		t.RowUpper[i] = c.Rel.Upper
		t.RowName[i] = c.Name
	}

	for i := range m.Objectives {
		o := &m.Objectives[i]
		p, err := compileProgram(m.Graph, o.Root)
		if err != nil {
			return nil, err
		}
		t.Objectives[i] = p
		t.Senses[i] = o.Sense
	}

	return t, nil
}

// compileProgram flattens one root into instruction order: a memoized
// post-order walk assigns each unique node a slot, so shared sub-trees are
// emitted once.
func compileProgram(g *expr.Graph, root expr.Handle) (Program, error) {
	var p Program
	w := expr.NewWalker(g, expr.Handlers[uint32]{
		Const: func(_ expr.Handle, v float64) (uint32, error) {
			p.Code = append(p.Code, Instr{Op: OpConst, Imm: v})
			return uint32(len(p.Code) - 1), nil
		},
		Var: func(_ expr.Handle, id uint32) (uint32, error) {
			p.Code = append(p.Code, Instr{Op: OpVar, Ref: id})
			return uint32(len(p.Code) - 1), nil
		},
		Param: func(_ expr.Handle, id uint32) (uint32, error) {
			p.Code = append(p.Code, Instr{Op: OpParam, Ref: id})
			return uint32(len(p.Code) - 1), nil
		},
		Op: func(_ expr.Handle, k expr.Kind, _ []expr.Handle, args []uint32) (uint32, error) {
			slots := make([]uint32, len(args))
			copy(slots, args)
			p.Code = append(p.Code, Instr{Op: opFor(k), Args: slots})
			return uint32(len(p.Code) - 1), nil
		},
	})
	if _, err := w.Walk(root); err != nil {
		return Program{}, err
	}
	return p, nil
}
