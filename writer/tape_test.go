package writer

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/opalhq/opal/expr"
	"github.com/opalhq/opal/model"
)

// nonlinearModel exercises the operators the matrix writer rejects.
func nonlinearModel(t *testing.T) *model.Model {
	t.Helper()
	assert := require.New(t)

	m := model.New()
	x, err := m.AddVariable("x", model.WithBounds(0.1, 10), model.WithInit(2))
	assert.NoError(err)
	y, err := m.AddVariable("y", model.WithBounds(-5, 5), model.WithInit(3))
	assert.NoError(err)
	k := m.AddParameter("k", 1.5)
	g := m.Graph

	// x*y + k <= 20
	_, err = m.AddConstraint("prod",
		g.Add(g.Mul(m.VarExpr(x), m.VarExpr(y)), m.ParamExpr(k)),
		model.AtMost(20))
	assert.NoError(err)

	// exp(x) - log(x) between 0 and 100
	_, err = m.AddConstraint("trans",
		g.Sub(g.Op(expr.Exp, m.VarExpr(x)), g.Op(expr.Log, m.VarExpr(x))),
		model.Between(0, 100))
	assert.NoError(err)

	// minimize x^2 + sqrt(y + 6)
	_, err = m.AddObjective("obj",
		g.Add(
			g.Pow(m.VarExpr(x), g.Constant(2)),
			g.Op(expr.Sqrt, g.Add(m.VarExpr(y), g.Constant(6))),
		),
		model.Minimize)
	assert.NoError(err)
	return m
}

func TestTapeReplayMatchesEval(t *testing.T) {
	assert := require.New(t)
	m := nonlinearModel(t)

	f, err := Tape(m)
	assert.NoError(err)
	assert.Len(f.Constraints, 2)
	assert.Len(f.Objectives, 1)
	assert.Equal([]model.Sense{model.Minimize}, f.Senses)

	vars := m.Values()
	params := []float64{1.5}

	for i := range m.Constraints {
		want, err := m.EvalConstraint(i)
		assert.NoError(err)
		got, err := f.Constraints[i].Replay(vars, params)
		assert.NoError(err)
		assert.Equal(want, got, "constraint %d", i)
	}

	want, err := expr.Eval(m.Graph, m.Objectives[0].Root,
		func(id uint32) float64 { return vars[id] },
		m.ParamValue)
	assert.NoError(err)
	got, err := f.Objectives[0].Replay(vars, params)
	assert.NoError(err)
	assert.Equal(want, got)
}

func TestTapeSharedSubtreeEmittedOnce(t *testing.T) {
	assert := require.New(t)

	m := model.New()
	x, err := m.AddVariable("x", model.WithInit(2))
	assert.NoError(err)
	g := m.Graph
	sq := g.Mul(m.VarExpr(x), m.VarExpr(x))
	// sq appears three times but must occupy one slot
	root := g.Add(sq, g.Mul(sq, sq))
	_, err = m.AddConstraint("c", root, model.AtMost(100))
	assert.NoError(err)

	f, err := Tape(m)
	assert.NoError(err)
	p := f.Constraints[0]

	mulSlots := 0
	for _, ins := range p.Code {
		if ins.Op == OpMul {
			mulSlots++
		}
	}
	// x*x once, sq*sq once
	assert.Equal(2, mulSlots)

	v, err := p.Replay([]float64{2}, nil)
	assert.NoError(err)
	assert.Equal(20.0, v)
}

func TestTapeRejectsDisjunctions(t *testing.T) {
	assert := require.New(t)

	m := model.New()
	x, err := m.AddVariable("x", model.WithBounds(0, 10))
	assert.NoError(err)
	_, err = m.AddDisjunction("mode",
		[]model.ConstraintSpec{{Root: m.VarExpr(x), Rel: model.AtMost(2)}},
		[]model.ConstraintSpec{{Root: m.VarExpr(x), Rel: model.AtLeast(8)}},
	)
	assert.NoError(err)

	_, err = Tape(m)
	assert.ErrorIs(err, ErrUnresolvedDisjunction)
}

func TestReplayValidation(t *testing.T) {
	assert := require.New(t)

	var empty Program
	_, err := empty.Replay(nil, nil)
	assert.Error(err)

	p := Program{Code: []Instr{{Op: OpVar, Ref: 3}}}
	_, err = p.Replay([]float64{1}, nil)
	assert.Error(err)

	// forward slot references are rejected rather than read as zero
	p = Program{Code: []Instr{
		{Op: OpConst, Imm: 1},
		{Op: OpAdd, Args: []uint32{0, 2}},
	}}
	_, err = p.Replay(nil, nil)
	assert.Error(err)
}

func TestProgramBinaryRoundTrip(t *testing.T) {
	assert := require.New(t)
	m := nonlinearModel(t)

	f, err := Tape(m)
	assert.NoError(err)

	for i := range f.Constraints {
		data, err := f.Constraints[i].MarshalBinary()
		assert.NoError(err)

		var p Program
		assert.NoError(p.UnmarshalBinary(data))
		if diff := cmp.Diff(f.Constraints[i], p); diff != "" {
			t.Fatalf("program %d mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestTapeRoundTrip(t *testing.T) {
	assert := require.New(t)
	m := nonlinearModel(t)

	f, err := Tape(m)
	assert.NoError(err)

	data, err := f.ToBytes()
	assert.NoError(err)

	var g TapeForm
	assert.NoError(g.FromBytes(data))
	if diff := cmp.Diff(f, &g); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}

	// the decoded programs replay identically
	vars, params := m.Values(), []float64{1.5}
	for i := range f.Constraints {
		want, err := f.Constraints[i].Replay(vars, params)
		assert.NoError(err)
		got, err := g.Constraints[i].Replay(vars, params)
		assert.NoError(err)
		assert.Equal(want, got)
	}
}
