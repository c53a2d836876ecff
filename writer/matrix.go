package writer

import (
	"errors"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/opalhq/opal/expr"
	"github.com/opalhq/opal/logger"
	"github.com/opalhq/opal/model"
)

// Nonzero is one entry of the sparse constraint matrix.
type Nonzero struct {
	Row, Col uint32
	Coeff    float64
}

// MatrixForm is the sparse affine encoding of a model:
//
//	minimize (or maximize)  ColCost . x + CostOffset
//	subject to              RowLower <= A x <= RowUpper
//	and                     ColLower <= x <= ColUpper
//
// A is given as zero-based (row, col, coeff) triples sorted row-major with
// columns ascending within a row. Row i is the constraint added at index i;
// column j is the variable with id j. This ordering is the compatibility
// contract with solver adapters: the result vector is consumed in column
// order.
//
// The constant part of each constraint body is folded into the row bounds,
// so every row reads RowLower <= sum(coeff*x) <= RowUpper.
type MatrixForm struct {
	Version string

	Maximize   bool
	ColCost    []float64
	CostOffset float64

	Nonzeros []Nonzero `cbor:"-"` // serialized as compressed binary sections

	RowLower []float64
	RowUpper []float64
	RowName  []string

	ColLower  []float64
	ColUpper  []float64
	ColInit   []float64
	ColDomain []model.Domain
	ColName   []string
}

// NbRows returns the number of constraint rows.
func (f *MatrixForm) NbRows() int { return len(f.RowLower) }

// NbCols returns the number of variable columns.
func (f *MatrixForm) NbCols() int { return len(f.ColLower) }

// Matrix compiles a model into sparse matrix form. Every constraint and the
// objective must be affine in the variables after simplification; a
// remaining nonlinear operator fails with a NonlinearTermError. Models
// still holding disjunctions are rejected.
func Matrix(m *model.Model) (*MatrixForm, error) {
	if len(m.Disjunctions) > 0 {
		return nil, ErrUnresolvedDisjunction
	}
	log := logger.Logger()

	f := &MatrixForm{
		Version:   versionString(),
		ColCost:   make([]float64, len(m.Variables)),
		RowLower:  make([]float64, len(m.Constraints)),
		RowUpper:  make([]float64, len(m.Constraints)),
		RowName:   make([]string, len(m.Constraints)),
		ColLower:  make([]float64, len(m.Variables)),
		ColUpper:  make([]float64, len(m.Variables)),
		ColInit:   make([]float64, len(m.Variables)),
		ColDomain: make([]model.Domain, len(m.Variables)),
		ColName:   make([]string, len(m.Variables)),
	}

	for i := range m.Variables {
		v := &m.Variables[i]
		f.ColLower[i] = v.Lower
		f.ColUpper[i] = v.Upper
		f.ColInit[i] = v.Value
		f.ColDomain[i] = v.Domain
		f.ColName[i] = v.FullName()
	}

	// objective: matrix form carries a single linear objective
	if len(m.Objectives) > 0 {
		if len(m.Objectives) > 1 {
			log.Warn().Int("objectives", len(m.Objectives)).Msg("matrix form keeps the first objective only")
		}
		obj := &m.Objectives[0]
		aff, err := expr.Linearize(m.Graph, obj.Root, m.ParamValue)
		if err != nil {
			if errors.Is(err, expr.ErrNonlinear) {
				return nil, &NonlinearTermError{Constraint: obj.Index, IsObjective: true, Err: err}
			}
			return nil, err
		}
		f.CostOffset = aff.Offset
		for _, t := range aff.Terms {
			f.ColCost[t.VID] = t.Coeff
		}
		f.Maximize = obj.Sense == model.Maximize
	}

	// constraint rows: affine extraction is independent per row, so fan
	// out over partitioned constraint indices; each worker owns a
	// linearizer and writes disjoint rows.
	rows := make([][]expr.LinTerm, len(m.Constraints))
	workers := runtime.GOMAXPROCS(0)
	if workers > len(m.Constraints) {
		workers = len(m.Constraints)
	}
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			lin := expr.NewLinearizer(m.Graph, m.ParamValue)
			for i := w; i < len(m.Constraints); i += workers {
				c := &m.Constraints[i]
				aff, err := lin.Walk(c.Root)
				if err != nil {
					if errors.Is(err, expr.ErrNonlinear) {
						return &NonlinearTermError{Constraint: c.Index, Err: err}
					}
					return err
				}
				rows[i] = aff.Terms
				f.RowLower[i] = subFinite(c.Rel.Lower, aff.Offset)
				f.RowUpper[i] = subFinite(c.Rel.Upper, aff.Offset)
				f.RowName[i] = c.Name
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	nnz := 0
	for _, r := range rows {
		nnz += len(r)
	}
	f.Nonzeros = make([]Nonzero, 0, nnz)
	for i, r := range rows {
		for _, t := range r {
			f.Nonzeros = append(f.Nonzeros, Nonzero{Row: uint32(i), Col: t.VID, Coeff: t.Coeff})
		}
	}

	log.Debug().
		Int("rows", f.NbRows()).
		Int("cols", f.NbCols()).
		Int("nonzeros", len(f.Nonzeros)).
		Msg("matrix form written")

	return f, nil
}

// subFinite moves the affine offset into a row bound, leaving infinities
// alone.
func subFinite(bound, offset float64) float64 {
	if math.IsInf(bound, 0) {
		return bound
	}
	return bound - offset
}
