package transform

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opalhq/opal/expr"
	"github.com/opalhq/opal/model"
)

func TestSimplifyPass(t *testing.T) {
	assert := require.New(t)

	m := model.New()
	x, err := m.AddVariable("x", model.WithInit(3))
	assert.NoError(err)
	g := m.Graph

	// (x + 0) * (2 * 3) and x * 6 must converge to the same root
	r1 := g.Mul(g.Add(m.VarExpr(x), g.Constant(0)), g.Mul(g.Constant(2), g.Constant(3)))
	r2 := g.Mul(m.VarExpr(x), g.Constant(6))
	i1, err := m.AddConstraint("c1", r1, model.AtMost(30))
	assert.NoError(err)
	i2, err := m.AddConstraint("c2", r2, model.AtMost(30))
	assert.NoError(err)
	_, err = m.AddObjective("obj", g.Add(m.VarExpr(x), g.Constant(1), g.Constant(-1)), model.Minimize)
	assert.NoError(err)

	out, res, err := Simplify{}.Apply(m)
	assert.NoError(err)
	assert.Empty(res.NewVariables)
	assert.Empty(res.NewConstraints)

	assert.Equal(out.Constraints[i1].Root, out.Constraints[i2].Root,
		"equal expressions must share one root after simplification")
	assert.Equal(expr.Var, out.Graph.Kind(out.Objectives[0].Root))

	v, err := out.EvalConstraint(i1)
	assert.NoError(err)
	assert.Equal(18.0, v)

	// input untouched
	w, err := m.EvalConstraint(i1)
	assert.NoError(err)
	assert.Equal(18.0, w)
	assert.Equal(r1, m.Constraints[i1].Root)
}

func TestSimplifyPassWorkers(t *testing.T) {
	assert := require.New(t)

	m := model.New()
	g := m.Graph
	x, err := m.AddVariable("x", model.WithInit(2))
	assert.NoError(err)
	for i := 0; i < 100; i++ {
		root := g.Add(m.VarExpr(x), g.Constant(float64(i)), g.Constant(0))
		_, err := m.AddConstraint("c", root, model.AtMost(1000))
		assert.NoError(err)
	}

	for _, workers := range []int{1, 4, 64} {
		out, _, err := Simplify{Workers: workers}.Apply(m)
		assert.NoError(err)
		for i := range out.Constraints {
			v, err := out.EvalConstraint(i)
			assert.NoError(err)
			assert.Equal(float64(2+i), v, "workers=%d constraint %d", workers, i)
		}
	}
}

func TestSimplifyPassError(t *testing.T) {
	assert := require.New(t)

	m := model.New()
	x, err := m.AddVariable("x")
	assert.NoError(err)
	g := m.Graph
	root := g.Div(m.VarExpr(x), g.Constant(0))
	_, err = m.AddConstraint("bad", root, model.AtMost(1))
	assert.NoError(err)

	_, _, err = Simplify{}.Apply(m)
	var serr *expr.SimplificationError
	assert.ErrorAs(err, &serr)

	// input untouched
	assert.Equal(root, m.Constraints[0].Root)
}

func TestSimplifyPassDisjunctionRoots(t *testing.T) {
	assert := require.New(t)

	m := model.New()
	x, err := m.AddVariable("x", model.WithBounds(0, 10))
	assert.NoError(err)
	g := m.Graph
	noisy := g.Add(m.VarExpr(x), g.Constant(0))
	_, err = m.AddDisjunction("mode",
		[]model.ConstraintSpec{{Root: noisy, Rel: model.AtMost(2)}},
		[]model.ConstraintSpec{{Root: m.VarExpr(x), Rel: model.AtLeast(8)}},
	)
	assert.NoError(err)

	out, _, err := Simplify{}.Apply(m)
	assert.NoError(err)
	simplified := out.Disjunctions[0].Groups[0][0].Root
	assert.Equal(expr.Var, out.Graph.Kind(simplified))
}
