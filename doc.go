// Package opal provides an algebraic modeling engine: optimization models
// are declared as immutable symbolic expression graphs, rewritten by
// solution-preserving transformation passes, and compiled into the numeric
// encodings a solver consumes.
//
// The pipeline is:
//   - expr: expression graph (arena, interning, traversal, simplification)
//   - model: registry of variables, parameters, constraints, objectives and
//     disjunctions
//   - transform: structural passes (big-M disjunction reformulation, ...)
//   - writer: solver-ready encodings (sparse matrix, instruction tape, LP text)
//   - solver: adapter boundary and result mapping
package opal

import (
	"github.com/blang/semver/v4"
)

// Version of the opal library; writers embed it in serialized output and
// readers check it for compatibility.
var Version = semver.MustParse("0.3.0")
