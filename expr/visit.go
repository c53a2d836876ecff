package expr

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

// Handlers synthesizes a result per node kind, bottom-up: the framework
// computes children first and passes their results to Op.
type Handlers[T any] struct {
	Const func(h Handle, v float64) (T, error)
	Var   func(h Handle, id uint32) (T, error)
	Param func(h Handle, id uint32) (T, error)
	Op    func(h Handle, k Kind, children []Handle, args []T) (T, error)
}

// Walker performs memoized post-order traversals over a graph. Each unique
// handle is visited at most once per walker, even when shared by multiple
// parents or multiple roots, which keeps pass cost linear in the number of
// unique nodes.
//
// Traversal is iterative with an explicit work stack; expression depth is
// only bounded by memory, not by goroutine stack size.
//
// A Walker is tied to the arena size at creation time; create it after the
// graph region it visits has been built. It is not safe for concurrent use.
type Walker[T any] struct {
	g    *Graph
	fn   Handlers[T]
	done *bitset.BitSet
	memo []T

	stack []walkFrame
	args  []T
}

type walkFrame struct {
	h        Handle
	expanded bool
}

// NewWalker returns a walker over g with the given handlers.
func NewWalker[T any](g *Graph, fn Handlers[T]) *Walker[T] {
	n := uint(len(g.nodes))
	return &Walker[T]{
		g:    g,
		fn:   fn,
		done: bitset.New(n),
		memo: make([]T, n),
	}
}

// Walk returns the synthesized result for root. Results are memoized across
// calls: walking a second root reuses everything already computed.
func (w *Walker[T]) Walk(root Handle) (T, error) {
	var zero T
	if err := w.g.Validate(root); err != nil {
		return zero, err
	}
	ri := w.g.index(root)
	if int(ri) >= len(w.memo) {
		// nodes interned after the walker was created cannot be roots
		return zero, fmt.Errorf("%w: handle %d interned after walker creation", ErrInvalidHandle, root)
	}
	if w.done.Test(uint(ri)) {
		return w.memo[ri], nil
	}

	w.stack = append(w.stack[:0], walkFrame{h: root})
	for len(w.stack) > 0 {
		top := len(w.stack) - 1
		h := w.stack[top].h
		hi := w.g.index(h)
		if w.done.Test(uint(hi)) {
			w.stack = w.stack[:top]
			continue
		}

		n := w.g.node(h)
		children := w.g.kids[n.off : n.off+n.n]

		if !w.stack[top].expanded {
			w.stack[top].expanded = true
			for i := len(children) - 1; i >= 0; i-- {
				if !w.done.Test(uint(w.g.index(children[i]))) {
					w.stack = append(w.stack, walkFrame{h: children[i]})
				}
			}
			continue
		}

		var (
			r   T
			err error
		)
		switch n.kind {
		case Const:
			r, err = w.fn.Const(h, n.value)
		case Var:
			r, err = w.fn.Var(h, n.ref)
		case Param:
			r, err = w.fn.Param(h, n.ref)
		default:
			w.args = w.args[:0]
			for _, c := range children {
				w.args = append(w.args, w.memo[w.g.index(c)])
			}
			r, err = w.fn.Op(h, n.kind, children, w.args)
		}
		if err != nil {
			return zero, err
		}
		w.memo[hi] = r
		w.done.Set(uint(hi))
		w.stack = w.stack[:top]
	}

	return w.memo[ri], nil
}

// PreOrder visits each unique node reachable from root, parents before
// children, left to right. fn returning descend == false prunes the subtree
// below the node; an error aborts the walk.
func PreOrder(g *Graph, root Handle, fn func(h Handle) (descend bool, err error)) error {
	if err := g.Validate(root); err != nil {
		return err
	}
	seen := bitset.New(uint(len(g.nodes)))
	stack := []Handle{root}
	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen.Test(uint(g.index(h))) {
			continue
		}
		seen.Set(uint(g.index(h)))

		descend, err := fn(h)
		if err != nil {
			return err
		}
		if !descend {
			continue
		}
		children := g.Children(h)
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}
	return nil
}

// RewriteFunc rebuilds one source node into dst. children are handles in
// dst, already rewritten. Returning NoHandle falls back to a structural
// copy of the node.
type RewriteFunc func(dst, src *Graph, h Handle, k Kind, children []Handle) (Handle, error)

// Rewrite maps the subtree rooted at root from src into dst, bottom-up,
// applying fn at every node. A nil fn performs a pure structural copy.
// src and dst may be the same graph; unaffected subtrees are shared via
// interning either way.
func Rewrite(dst, src *Graph, root Handle, fn RewriteFunc) (Handle, error) {
	w := NewRewriter(dst, src, fn)
	return w.Walk(root)
}

// NewRewriter returns a walker whose result type is a dst handle. It is the
// building block for rewriting passes that visit many roots over one graph.
func NewRewriter(dst, src *Graph, fn RewriteFunc) *Walker[Handle] {
	rebuild := func(h Handle, k Kind, children []Handle) (Handle, error) {
		if fn != nil {
			nh, err := fn(dst, src, h, k, children)
			if err != nil {
				return NoHandle, err
			}
			if nh != NoHandle {
				return nh, nil
			}
		}
		return CopyNode(dst, src, h, k, children), nil
	}
	return NewWalker(src, Handlers[Handle]{
		Const: func(h Handle, v float64) (Handle, error) {
			return rebuild(h, Const, nil)
		},
		Var: func(h Handle, id uint32) (Handle, error) {
			return rebuild(h, Var, nil)
		},
		Param: func(h Handle, id uint32) (Handle, error) {
			return rebuild(h, Param, nil)
		},
		Op: func(h Handle, k Kind, _ []Handle, args []Handle) (Handle, error) {
			// args are dst handles; copy, the walker reuses its scratch
			children := make([]Handle, len(args))
			copy(children, args)
			return rebuild(h, k, children)
		},
	})
}

// CopyNode interns into dst a node identical to src's node h, with the
// given (already copied) children.
func CopyNode(dst, src *Graph, h Handle, k Kind, children []Handle) Handle {
	switch k {
	case Const:
		return dst.Constant(src.ConstValue(h))
	case Var:
		return dst.VarRef(src.RefID(h))
	case Param:
		return dst.ParamRef(src.RefID(h))
	default:
		return dst.Op(k, children...)
	}
}
