// Package solver defines the adapter boundary between compiled model forms
// and external optimization engines. The package does not embed a solver;
// it fixes the calling convention an engine binding must follow so results
// map back onto the originating registry.
package solver

import (
	"context"
	"errors"
	"fmt"

	"github.com/opalhq/opal/logger"
	"github.com/opalhq/opal/model"
	"github.com/opalhq/opal/writer"
)

// Status is the termination status reported by an engine.
type Status uint8

const (
	Unknown Status = iota
	Optimal
	Infeasible
	Unbounded
	Error
)

func (s Status) String() string {
	switch s {
	case Unknown:
		return "unknown"
	case Optimal:
		return "optimal"
	case Infeasible:
		return "infeasible"
	case Unbounded:
		return "unbounded"
	case Error:
		return "error"
	default:
		return "invalid"
	}
}

// Result is an engine's answer. X is the primal point in column order, one
// entry per variable id; it is meaningful for Optimal and may hold a best
// incumbent for Unknown.
type Result struct {
	Status    Status
	X         []float64
	Objective float64
}

// Adapter is implemented by engine bindings. Solve blocks until the engine
// terminates or ctx is done; the matrix form's column order defines the
// layout of the returned X.
type Adapter interface {
	Solve(ctx context.Context, f *writer.MatrixForm) (*Result, error)
}

// ErrNoSolution reports a terminal status without a usable primal point.
var ErrNoSolution = errors.New("solver: no solution available")

// Solve compiles the model to matrix form, runs it through the adapter and
// stores the primal point back into the registry's variable values. The
// model must be affine and free of disjunctions; apply transform passes
// first.
func Solve(ctx context.Context, m *model.Model, a Adapter) (*Result, error) {
	f, err := writer.Matrix(m)
	if err != nil {
		return nil, err
	}

	log := logger.Logger()
	log.Debug().Int("rows", f.NbRows()).Int("cols", f.NbCols()).Msg("solver invoked")

	r, err := a.Solve(ctx, f)
	if err != nil {
		return nil, err
	}
	if err := Apply(m, r); err != nil {
		return r, err
	}
	log.Debug().Stringer("status", r.Status).Float64("objective", r.Objective).Msg("solver finished")
	return r, nil
}

// Apply writes the result's primal point onto the model's variable values.
// It is a no-op for terminal statuses without a point.
func Apply(m *model.Model, r *Result) error {
	switch r.Status {
	case Infeasible, Unbounded, Error:
		return fmt.Errorf("%w: status %s", ErrNoSolution, r.Status)
	}
	if len(r.X) < len(m.Variables) {
		return fmt.Errorf("solver: result has %d values, model has %d variables", len(r.X), len(m.Variables))
	}
	return m.SetValues(r.X)
}
