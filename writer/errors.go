package writer

import (
	"errors"
	"fmt"
)

// ErrUnresolvedDisjunction reports a model that still contains structural
// disjunctions; a transformation pass (transform.BigM) must eliminate them
// before any writer runs.
var ErrUnresolvedDisjunction = errors.New("writer: model contains unresolved disjunctions")

// NonlinearTermError reports that matrix (or LP) form was requested for a
// model with a nonlinear constraint or objective. The retry is to pick the
// expression-tape writer instead.
type NonlinearTermError struct {
	Constraint  int // constraint index, or objective index if IsObjective
	IsObjective bool
	Err         error // wraps expr.ErrNonlinear with the offending node
}

func (e *NonlinearTermError) Error() string {
	what := "constraint"
	if e.IsObjective {
		what = "objective"
	}
	return fmt.Sprintf("writer: %s %d: %v", what, e.Constraint, e.Err)
}

func (e *NonlinearTermError) Unwrap() error { return e.Err }
