package transform

import (
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/opalhq/opal/expr"
	"github.com/opalhq/opal/logger"
	"github.com/opalhq/opal/model"
)

// Simplify rewrites every constraint, objective and disjunction-group root
// to its simplified canonical form.
//
// Roots are independent once the arena is read-only, so the pass fans out
// one simplifier per worker over partitioned roots, each interning into a
// private scratch graph; the scratch results are merged into the model
// graph sequentially. The pass is not order-sensitive: it preserves
// expression values wherever they are defined.
type Simplify struct {
	// Workers caps the number of concurrent simplifiers; 0 means
	// GOMAXPROCS.
	Workers int
}

func (Simplify) Name() string         { return "simplify" }
func (Simplify) OrderSensitive() bool { return false }

func (p Simplify) Apply(m *model.Model) (*model.Model, *Result, error) {
	c := m.Clone()
	res := newResult("simplify")

	// collect every root slot in the registry
	var roots []*expr.Handle
	for i := range c.Constraints {
		roots = append(roots, &c.Constraints[i].Root)
	}
	for i := range c.Objectives {
		roots = append(roots, &c.Objectives[i].Root)
	}
	for i := range c.Disjunctions {
		for gi := range c.Disjunctions[i].Groups {
			for si := range c.Disjunctions[i].Groups[gi] {
				roots = append(roots, &c.Disjunctions[i].Groups[gi][si].Root)
			}
		}
	}
	if len(roots) == 0 {
		return c, res, nil
	}

	workers := p.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(roots) {
		workers = len(roots)
	}

	// phase 1: parallel. each worker reads the (now read-only) model graph
	// and interns simplified forms into its own scratch graph.
	scratch := make([]*expr.Graph, workers)
	simplified := make([]expr.Handle, len(roots))
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			scratch[w] = expr.NewGraph()
			s := expr.NewSimplifierInto(scratch[w], c.Graph)
			for i := w; i < len(roots); i += workers {
				h, err := s.Simplify(*roots[i])
				if err != nil {
					return err
				}
				simplified[i] = h
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	// phase 2: sequential merge into the model graph.
	for w := 0; w < workers; w++ {
		rw := expr.NewRewriter(c.Graph, scratch[w], nil)
		for i := w; i < len(roots); i += workers {
			h, err := rw.Walk(simplified[i])
			if err != nil {
				return nil, nil, err
			}
			*roots[i] = h
		}
	}

	log := logger.Logger()
	log.Debug().
		Int("roots", len(roots)).
		Int("workers", workers).
		Int("nodes", c.Graph.NbNodes()).
		Msg("simplification pass")

	return c, res, nil
}
