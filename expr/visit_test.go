package expr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWalkVisitsSharedNodesOnce(t *testing.T) {
	assert := require.New(t)
	g := NewGraph()

	x := g.VarRef(0)
	sq := g.Mul(x, x)
	// sq appears under two parents
	root := g.Add(sq, g.Mul(sq, g.Constant(2)))

	visits := map[Handle]int{}
	w := NewWalker(g, Handlers[int]{
		Const: func(h Handle, _ float64) (int, error) { visits[h]++; return 0, nil },
		Var:   func(h Handle, _ uint32) (int, error) { visits[h]++; return 0, nil },
		Param: func(h Handle, _ uint32) (int, error) { visits[h]++; return 0, nil },
		Op: func(h Handle, _ Kind, _ []Handle, _ []int) (int, error) {
			visits[h]++
			return 0, nil
		},
	})
	_, err := w.Walk(root)
	assert.NoError(err)
	for h, n := range visits {
		assert.Equal(1, n, "node %d visited %d times", h, n)
	}

	// a second walk over an overlapping root recomputes nothing
	_, err = w.Walk(sq)
	assert.NoError(err)
	assert.Equal(1, visits[sq])
}

func TestWalkDeepChain(t *testing.T) {
	assert := require.New(t)
	g := NewGraph()

	// 100k nested additions; the iterative walker must not exhaust the stack
	e := g.VarRef(0)
	one := g.Constant(1)
	for i := 0; i < 100_000; i++ {
		e = g.Add(e, one)
	}

	v, err := Eval(g, e,
		func(uint32) float64 { return 0 },
		func(uint32) float64 { return 0 })
	assert.NoError(err)
	assert.Equal(100_000.0, v)
}

func TestWalkRejectsLaterHandles(t *testing.T) {
	assert := require.New(t)
	g := NewGraph()
	g.VarRef(0)

	w := NewWalker(g, Handlers[int]{
		Var: func(Handle, uint32) (int, error) { return 0, nil },
	})
	late := g.VarRef(1)
	_, err := w.Walk(late)
	assert.ErrorIs(err, ErrInvalidHandle)
}

func TestPreOrderPrune(t *testing.T) {
	assert := require.New(t)
	g := NewGraph()

	x := g.VarRef(0)
	inner := g.Mul(x, g.Constant(2))
	root := g.Add(inner, g.VarRef(1))

	var seen []Handle
	err := PreOrder(g, root, func(h Handle) (bool, error) {
		seen = append(seen, h)
		// do not descend below the product
		return h != inner, nil
	})
	assert.NoError(err)
	assert.Contains(seen, root)
	assert.Contains(seen, inner)
	assert.NotContains(seen, x, "pruned subtree must not be visited")
}

func TestRewriteStructuralCopy(t *testing.T) {
	assert := require.New(t)
	src := NewGraph()
	x := src.VarRef(0)
	root := src.Add(src.Mul(x, src.Constant(3)), src.Constant(1))

	dst := NewGraph()
	nh, err := Rewrite(dst, src, root, nil)
	assert.NoError(err)

	orig, err := Eval(src, root, func(uint32) float64 { return 2 }, nil)
	assert.NoError(err)
	copied, err := Eval(dst, nh, func(uint32) float64 { return 2 }, nil)
	assert.NoError(err)
	assert.Equal(orig, copied)
}

func TestRewriteReplacesNodes(t *testing.T) {
	assert := require.New(t)
	g := NewGraph()
	x := g.VarRef(0)
	p := g.ParamRef(0)
	root := g.Add(x, g.Mul(p, x))

	// substitute the parameter with its value
	nh, err := Rewrite(g, g, root, func(dst, src *Graph, h Handle, k Kind, children []Handle) (Handle, error) {
		if k == Param {
			return dst.Constant(5), nil
		}
		return NoHandle, nil
	})
	assert.NoError(err)

	v, err := Eval(g, nh, func(uint32) float64 { return 3 }, nil)
	assert.NoError(err)
	assert.Equal(18.0, v)

	err = PreOrder(g, nh, func(h Handle) (bool, error) {
		assert.NotEqual(Param, g.Kind(h))
		return true, nil
	})
	assert.NoError(err)
}
