package solver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opalhq/opal/model"
	"github.com/opalhq/opal/transform"
	"github.com/opalhq/opal/writer"
)

// boundAdapter is a stub engine: it answers with each variable clamped to
// the bound that minimizes (or maximizes) its cost coefficient, which is
// exact for box-constrained problems and good enough to test the plumbing.
type boundAdapter struct {
	gotRows, gotCols int
}

func (a *boundAdapter) Solve(ctx context.Context, f *writer.MatrixForm) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.gotRows, a.gotCols = f.NbRows(), f.NbCols()

	x := make([]float64, f.NbCols())
	obj := f.CostOffset
	for j := range x {
		lo, hi := f.ColLower[j], f.ColUpper[j]
		c := f.ColCost[j]
		take := lo
		if (c < 0) != f.Maximize {
			take = hi
		}
		x[j] = take
		obj += c * take
	}
	return &Result{Status: Optimal, X: x, Objective: obj}, nil
}

type failingAdapter struct{ status Status }

func (a failingAdapter) Solve(context.Context, *writer.MatrixForm) (*Result, error) {
	return &Result{Status: a.status}, nil
}

func TestSolveRoundTrip(t *testing.T) {
	assert := require.New(t)

	// minimize x - 2y with x in [1, 5], y in [0, 3]
	m := model.New()
	x, err := m.AddVariable("x", model.WithBounds(1, 5))
	assert.NoError(err)
	y, err := m.AddVariable("y", model.WithBounds(0, 3))
	assert.NoError(err)
	g := m.Graph
	_, err = m.AddConstraint("cap", g.Add(m.VarExpr(x), m.VarExpr(y)), model.AtMost(10))
	assert.NoError(err)
	_, err = m.AddObjective("cost",
		g.Sub(m.VarExpr(x), g.Mul(g.Constant(2), m.VarExpr(y))), model.Minimize)
	assert.NoError(err)

	a := &boundAdapter{}
	r, err := Solve(context.Background(), m, a)
	assert.NoError(err)
	assert.Equal(Optimal, r.Status)
	assert.Equal(1, a.gotRows)
	assert.Equal(2, a.gotCols)

	// the primal point landed back on the registry
	assert.Equal(1.0, m.Value(x))
	assert.Equal(3.0, m.Value(y))
	assert.Equal(-5.0, r.Objective)
}

func TestSolveAfterBigM(t *testing.T) {
	assert := require.New(t)

	// minimize x with the choice x <= 2 or x >= 8
	m := model.New()
	x, err := m.AddVariable("x", model.WithBounds(0, 10))
	assert.NoError(err)
	_, err = m.AddDisjunction("mode",
		[]model.ConstraintSpec{{Root: m.VarExpr(x), Rel: model.AtMost(2)}},
		[]model.ConstraintSpec{{Root: m.VarExpr(x), Rel: model.AtLeast(8)}},
	)
	assert.NoError(err)
	_, err = m.AddObjective("cost", m.VarExpr(x), model.Minimize)
	assert.NoError(err)

	// the writer refuses the structural model
	_, err = Solve(context.Background(), m, &boundAdapter{})
	assert.ErrorIs(err, writer.ErrUnresolvedDisjunction)

	flat, results, err := transform.Sequence(m, transform.BigM{}, transform.Simplify{})
	assert.NoError(err)

	r, err := Solve(context.Background(), flat, &boundAdapter{})
	assert.NoError(err)
	assert.Equal(Optimal, r.Status)

	// the transformed solution maps onto the original variables
	active, err := results[0].MapSolution(m, flat)
	assert.NoError(err)
	assert.Equal(0.0, m.Value(x))
	// the stub drives indicators to their lower bound, so no group reads
	// as active; a real engine satisfies the exactly-one row
	assert.Empty(active)
}

func TestSolveCancelledContext(t *testing.T) {
	assert := require.New(t)

	m := model.New()
	_, err := m.AddVariable("x", model.WithBounds(0, 1))
	assert.NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Solve(ctx, m, &boundAdapter{})
	assert.ErrorIs(err, context.Canceled)
}

func TestApplyStatuses(t *testing.T) {
	assert := require.New(t)

	m := model.New()
	x, err := m.AddVariable("x", model.WithBounds(0, 1), model.WithInit(0.5))
	assert.NoError(err)

	for _, s := range []Status{Infeasible, Unbounded, Error} {
		err := Apply(m, &Result{Status: s})
		assert.ErrorIs(err, ErrNoSolution, s.String())
		assert.Equal(0.5, m.Value(x), "value untouched on %s", s)
	}

	assert.Error(Apply(m, &Result{Status: Optimal, X: nil}))
	assert.NoError(Apply(m, &Result{Status: Optimal, X: []float64{0.25}}))
	assert.Equal(0.25, m.Value(x))
}

func TestStatusString(t *testing.T) {
	assert := require.New(t)
	for s, want := range map[Status]string{
		Unknown:    "unknown",
		Optimal:    "optimal",
		Infeasible: "infeasible",
		Unbounded:  "unbounded",
		Error:      "error",
		Status(99): "invalid",
	} {
		assert.Equal(want, s.String())
	}
}

var _ Adapter = (*boundAdapter)(nil)
var _ Adapter = failingAdapter{}

func TestFailingAdapterStatusPropagates(t *testing.T) {
	assert := require.New(t)

	m := model.New()
	_, err := m.AddVariable("x", model.WithBounds(0, 1))
	assert.NoError(err)

	r, err := Solve(context.Background(), m, failingAdapter{status: Infeasible})
	assert.True(errors.Is(err, ErrNoSolution))
	assert.NotNil(r)
	assert.Equal(Infeasible, r.Status)
}
