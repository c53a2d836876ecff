package expr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func noParams(id uint32) float64 { panic("no parameters in this test") }

func TestLinearizeAffine(t *testing.T) {
	assert := require.New(t)
	g := NewGraph()

	x, y := g.VarRef(0), g.VarRef(1)
	// 2x + 3y - x + 5  ==  x + 3y + 5
	root := g.Add(
		g.Mul(g.Constant(2), x),
		g.Mul(g.Constant(3), y),
		g.Neg(x),
		g.Constant(5),
	)

	aff, err := Linearize(g, root, noParams)
	assert.NoError(err)
	assert.Equal(5.0, aff.Offset)
	assert.Equal([]LinTerm{{VID: 0, Coeff: 1}, {VID: 1, Coeff: 3}}, aff.Terms)
}

func TestLinearizeResolvesParams(t *testing.T) {
	assert := require.New(t)
	g := NewGraph()

	x := g.VarRef(0)
	p := g.ParamRef(0)
	root := g.Mul(p, x)

	aff, err := Linearize(g, root, func(id uint32) float64 { return 4 })
	assert.NoError(err)
	assert.Equal([]LinTerm{{VID: 0, Coeff: 4}}, aff.Terms)
}

func TestLinearizeDropsCancelledTerms(t *testing.T) {
	assert := require.New(t)
	g := NewGraph()

	x := g.VarRef(0)
	root := g.Sub(g.Mul(g.Constant(2), x), g.Mul(g.Constant(2), x))
	aff, err := Linearize(g, root, noParams)
	assert.NoError(err)
	assert.True(aff.IsConstant())
	assert.Empty(aff.Terms)
}

func TestLinearizeDivAndPow(t *testing.T) {
	assert := require.New(t)
	g := NewGraph()
	x := g.VarRef(0)

	aff, err := Linearize(g, g.Div(x, g.Constant(4)), noParams)
	assert.NoError(err)
	assert.Equal([]LinTerm{{VID: 0, Coeff: 0.25}}, aff.Terms)

	aff, err = Linearize(g, g.Pow(x, g.Constant(1)), noParams)
	assert.NoError(err)
	assert.Equal([]LinTerm{{VID: 0, Coeff: 1}}, aff.Terms)
}

func TestLinearizeNonlinear(t *testing.T) {
	g := NewGraph()
	x, y := g.VarRef(0), g.VarRef(1)

	cases := []struct {
		name string
		root Handle
	}{
		{"product of variables", g.Mul(x, y)},
		{"variable denominator", g.Div(g.Constant(1), x)},
		{"variable exponent", g.Pow(g.Constant(2), x)},
		{"square", g.Pow(x, g.Constant(2))},
		{"transcendental", g.Op(Sin, x)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Linearize(g, tc.root, noParams)
			require.ErrorIs(t, err, ErrNonlinear)
		})
	}
}

func TestLinearizerSharesWork(t *testing.T) {
	assert := require.New(t)
	g := NewGraph()
	x := g.VarRef(0)

	r1 := g.Add(x, g.Constant(1))
	r2 := g.Add(r1, g.Constant(2))

	lin := NewLinearizer(g, noParams)
	a1, err := lin.Walk(r1)
	assert.NoError(err)
	a2, err := lin.Walk(r2)
	assert.NoError(err)
	assert.Equal(1.0, a1.Offset)
	assert.Equal(3.0, a2.Offset)
}
