package model

import (
	"fmt"

	"github.com/opalhq/opal/expr"
)

// VarExpr returns an expression node referencing the variable.
func (m *Model) VarExpr(id VarID) expr.Handle {
	if int(id) >= len(m.Variables) {
		panic(fmt.Errorf("model: unknown variable id %d", id))
	}
	return m.Graph.VarRef(uint32(id))
}

// ParamExpr returns an expression node referencing the parameter.
func (m *Model) ParamExpr(id ParamID) expr.Handle {
	if int(id) >= len(m.Parameters) {
		panic(fmt.Errorf("model: unknown parameter id %d", id))
	}
	return m.Graph.ParamRef(uint32(id))
}

// Value returns the current value of the variable: the initial guess before
// solving, the solver result after SetValues.
func (m *Model) Value(id VarID) float64 {
	return m.Variables[id].Value
}

// SetValue updates one variable value.
func (m *Model) SetValue(id VarID, v float64) {
	m.Variables[id].Value = v
}

// SetValues maps a solver result vector, aligned to variable id order, onto
// the variable value slots. The vector may be longer than the variable
// count when the solved model carries auxiliary variables appended by
// transformation passes; it must not be shorter.
func (m *Model) SetValues(x []float64) error {
	if len(x) < len(m.Variables) {
		return fmt.Errorf("model: result vector has %d entries, want at least %d", len(x), len(m.Variables))
	}
	for i := range m.Variables {
		m.Variables[i].Value = x[i]
	}
	return nil
}

// Values returns the current variable values in id order.
func (m *Model) Values() []float64 {
	x := make([]float64, len(m.Variables))
	for i := range m.Variables {
		x[i] = m.Variables[i].Value
	}
	return x
}

// EvalConstraint evaluates the body of constraint idx at the current
// variable and parameter values.
func (m *Model) EvalConstraint(idx int) (float64, error) {
	if idx < 0 || idx >= len(m.Constraints) {
		return 0, fmt.Errorf("model: unknown constraint index %d", idx)
	}
	return expr.Eval(m.Graph, m.Constraints[idx].Root,
		func(id uint32) float64 { return m.Variables[id].Value },
		m.ParamValue)
}
