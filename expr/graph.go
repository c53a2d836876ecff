package expr

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"
)

// Handle references a node in a Graph. The low bits index the graph's
// arena; the high bits carry the owning graph's tag, so a handle is only
// meaningful for the graph that created it (or a clone of that graph, which
// shares the tag).
type Handle uint32

const (
	handleIndexBits = 24
	handleIndexMask = 1<<handleIndexBits - 1
)

// NoHandle is the zero-value-free sentinel for "no node". Graph tags never
// reach 0xff, so no valid handle collides with it.
const NoHandle = Handle(math.MaxUint32)

// ErrInvalidHandle reports arena misuse: a handle that does not belong to
// the graph it is used with. This is a programmer error; accessors panic
// with it rather than returning it.
var ErrInvalidHandle = errors.New("expr: invalid handle for this graph")

// node is the arena representation of an expression node. Nodes are
// immutable once appended; children are stored in a shared flat slice to
// keep the per-node footprint constant.
type node struct {
	kind  Kind
	ref   uint32  // variable or parameter id (Var, Param)
	value float64 // constant payload (Const)
	off   uint32  // first child index in Graph.kids
	n     uint32  // number of children
}

// Graph owns an arena of immutable, deduplicated expression nodes. All
// construction goes through interning: structurally identical nodes share a
// single handle, so repeated sub-expressions cost one node regardless of how
// many parents reference them.
//
// Children always have a smaller index than their parent, so the arena order
// is a topological order and the graph is acyclic by construction.
type Graph struct {
	tag   uint32 // high-bits handle tag, shared with clones
	nodes []node
	kids  []Handle
	table map[uint64][]Handle // structural hash -> candidate handles
}

// graphTags cycles through 0..254; 0xff stays reserved for NoHandle. The
// foreign-handle check is exact until tags wrap, best effort after.
var graphTags uint32

// NewGraph returns an empty expression graph.
func NewGraph() *Graph {
	return &Graph{
		tag:   atomic.AddUint32(&graphTags, 1) % 255,
		table: make(map[uint64][]Handle),
	}
}

// NbNodes returns the number of unique nodes in the arena.
func (g *Graph) NbNodes() int {
	return len(g.nodes)
}

// handleAt returns the tagged handle for arena index idx.
func (g *Graph) handleAt(idx int) Handle {
	return Handle(g.tag<<handleIndexBits | uint32(idx))
}

// index strips the graph tag, leaving the arena index.
func (g *Graph) index(h Handle) uint32 {
	return uint32(h) & handleIndexMask
}

// Validate returns ErrInvalidHandle if h does not reference a node of g:
// the handle was created by a different graph (tag mismatch) or it is out
// of the arena's range.
func (g *Graph) Validate(h Handle) error {
	if uint32(h)>>handleIndexBits != g.tag {
		return fmt.Errorf("%w: handle %d was created by a different graph", ErrInvalidHandle, h)
	}
	if int(g.index(h)) >= len(g.nodes) {
		return fmt.Errorf("%w: handle index %d, arena size %d", ErrInvalidHandle, g.index(h), len(g.nodes))
	}
	return nil
}

func (g *Graph) node(h Handle) *node {
	if err := g.Validate(h); err != nil {
		panic(err)
	}
	return &g.nodes[g.index(h)]
}

// Kind returns the tag of the node.
func (g *Graph) Kind(h Handle) Kind {
	return g.node(h).kind
}

// Children returns the ordered children of the node. The returned slice
// aliases the arena and must not be modified.
func (g *Graph) Children(h Handle) []Handle {
	n := g.node(h)
	return g.kids[n.off : n.off+uint32(n.n)]
}

// ConstValue returns the payload of a Const node.
func (g *Graph) ConstValue(h Handle) float64 {
	n := g.node(h)
	if n.kind != Const {
		panic(fmt.Errorf("%w: node %d is %s, not const", ErrInvalidHandle, h, n.kind))
	}
	return n.value
}

// RefID returns the variable or parameter id of a Var or Param node.
func (g *Graph) RefID(h Handle) uint32 {
	n := g.node(h)
	if n.kind != Var && n.kind != Param {
		panic(fmt.Errorf("%w: node %d is %s, not a reference", ErrInvalidHandle, h, n.kind))
	}
	return n.ref
}

// Constant interns a constant node.
func (g *Graph) Constant(v float64) Handle {
	return g.intern(node{kind: Const, value: v}, nil)
}

// VarRef interns a reference to variable id.
func (g *Graph) VarRef(id uint32) Handle {
	return g.intern(node{kind: Var, ref: id}, nil)
}

// ParamRef interns a reference to parameter id.
func (g *Graph) ParamRef(id uint32) Handle {
	return g.intern(node{kind: Param, ref: id}, nil)
}

// Op interns an operator node over the given children. It panics with
// ErrInvalidHandle if any child does not belong to g, and rejects arity
// mismatches.
func (g *Graph) Op(k Kind, children ...Handle) Handle {
	if !k.IsOperator() {
		panic(fmt.Errorf("expr: %s is not an operator", k))
	}
	if a := k.Arity(); a >= 0 && len(children) != a {
		panic(fmt.Errorf("expr: %s expects %d children, got %d", k, a, len(children)))
	}
	if a := k.Arity(); a == -1 && len(children) == 0 {
		panic(fmt.Errorf("expr: %s expects at least one child", k))
	}
	for _, c := range children {
		if err := g.Validate(c); err != nil {
			panic(fmt.Errorf("child %w", err))
		}
	}
	return g.intern(node{kind: k}, children)
}

// Convenience builders, all funneling into Op / intern.

func (g *Graph) Add(children ...Handle) Handle { return g.Op(Add, children...) }
func (g *Graph) Mul(children ...Handle) Handle { return g.Op(Mul, children...) }
func (g *Graph) Sub(a, b Handle) Handle        { return g.Op(Sub, a, b) }
func (g *Graph) Div(a, b Handle) Handle        { return g.Op(Div, a, b) }
func (g *Graph) Neg(a Handle) Handle           { return g.Op(Neg, a) }
func (g *Graph) Pow(a, b Handle) Handle        { return g.Op(Pow, a, b) }

// intern is the single site enforcing structural sharing: it returns the
// handle of an existing structurally identical node if there is one, and
// appends the node otherwise.
func (g *Graph) intern(n node, children []Handle) Handle {
	h64 := hashNode(&n, children)
	for _, cand := range g.table[h64] {
		if g.equal(cand, &n, children) {
			return cand
		}
	}

	if len(g.nodes) > handleIndexMask {
		panic(fmt.Errorf("expr: graph arena is full (%d nodes)", len(g.nodes)))
	}
	if len(children) > 0 {
		n.off = uint32(len(g.kids))
		n.n = uint32(len(children))
		g.kids = append(g.kids, children...)
	}
	g.nodes = append(g.nodes, n)
	h := g.handleAt(len(g.nodes) - 1)
	g.table[h64] = append(g.table[h64], h)
	return h
}

func (g *Graph) equal(h Handle, n *node, children []Handle) bool {
	o := &g.nodes[g.index(h)]
	if o.kind != n.kind || int(o.n) != len(children) {
		return false
	}
	switch n.kind {
	case Const:
		// bit equality so that 0.0 and -0.0 stay distinct nodes
		if math.Float64bits(o.value) != math.Float64bits(n.value) {
			return false
		}
	case Var, Param:
		if o.ref != n.ref {
			return false
		}
	}
	oc := g.kids[o.off : o.off+uint32(o.n)]
	for i := range children {
		if oc[i] != children[i] {
			return false
		}
	}
	return true
}

// fnv-1a over the structural identity of a node.
func hashNode(n *node, children []Handle) uint64 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)
	h := uint64(offset64)
	mix := func(v uint64) {
		for i := 0; i < 8; i++ {
			h ^= v & 0xff
			h *= prime64
			v >>= 8
		}
	}
	mix(uint64(n.kind))
	switch n.kind {
	case Const:
		mix(math.Float64bits(n.value))
	case Var, Param:
		mix(uint64(n.ref))
	}
	for _, c := range children {
		mix(uint64(c))
	}
	return h
}

// Compare defines a total order over handles of g, used to canonicalize the
// children of commutative operators: leaves order before operators, then by
// payload, then by arena index. The order is deterministic within a process
// run, which is all interning requires.
func (g *Graph) Compare(a, b Handle) int {
	na, nb := g.node(a), g.node(b)
	if na.kind != nb.kind {
		if na.kind < nb.kind {
			return -1
		}
		return 1
	}
	switch na.kind {
	case Const:
		ba, bb := math.Float64bits(na.value), math.Float64bits(nb.value)
		if ba == bb {
			return 0
		}
		if na.value < nb.value {
			return -1
		}
		if na.value > nb.value {
			return 1
		}
		// same numeric value (±0) or a NaN is involved; fall back to bit order
		if ba < bb {
			return -1
		}
		return 1
	case Var, Param:
		if na.ref != nb.ref {
			if na.ref < nb.ref {
				return -1
			}
			return 1
		}
		return 0
	default:
		if a != b {
			if a < b {
				return -1
			}
			return 1
		}
		return 0
	}
}

// Clone returns a deep copy of the graph. The clone shares the handle tag,
// so handles remain valid for it; the two graphs share no mutable state
// afterwards.
func (g *Graph) Clone() *Graph {
	c := &Graph{
		tag:   g.tag,
		nodes: make([]node, len(g.nodes)),
		kids:  make([]Handle, len(g.kids)),
		table: make(map[uint64][]Handle, len(g.table)),
	}
	copy(c.nodes, g.nodes)
	copy(c.kids, g.kids)
	for k, v := range g.table {
		bucket := make([]Handle, len(v))
		copy(bucket, v)
		c.table[k] = bucket
	}
	return c
}
