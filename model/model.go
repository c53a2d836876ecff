// Package model holds the registry side of an optimization problem: the
// variables, parameters, constraints, objectives and disjunctions a user
// declared, each with a stable id, bounds and namespace path, all rooted in
// one shared expression graph.
//
// A Model is populated incrementally and additively; ids and indices are
// monotone and never reused, which is the ordering contract writers and
// solver adapters rely on.
package model

import (
	"fmt"
	"math"

	"github.com/opalhq/opal/debug"
	"github.com/opalhq/opal/expr"
	"github.com/opalhq/opal/profile"
)

// VarID identifies a variable within one Model.
type VarID uint32

// ParamID identifies a parameter within one Model.
type ParamID uint32

// Domain tags the admissible values of a variable.
type Domain uint8

const (
	Continuous Domain = iota
	Integer
	Binary
)

func (d Domain) String() string {
	switch d {
	case Continuous:
		return "continuous"
	case Integer:
		return "integer"
	case Binary:
		return "binary"
	default:
		return "invalid"
	}
}

// Variable is a decision variable slot. Value holds the initial guess
// before solving and the solver result after result mapping; it is mutated
// only by the owning Model.
type Variable struct {
	ID     VarID
	Name   string
	Path   string
	Lower  float64
	Upper  float64
	Domain Domain
	Value  float64
}

// FullName returns the namespace-qualified name.
func (v *Variable) FullName() string { return joinPath(v.Path, v.Name) }

// Parameter is a named constant resolved at compile time.
type Parameter struct {
	ID    ParamID
	Name  string
	Path  string
	Value float64
}

func (p *Parameter) FullName() string { return joinPath(p.Path, p.Name) }

// Relation bounds a constraint body: Lower <= body <= Upper. Equalities
// have Lower == Upper; one-sided inequalities use ±Inf.
type Relation struct {
	Lower, Upper float64
}

func Equal(rhs float64) Relation      { return Relation{Lower: rhs, Upper: rhs} }
func AtMost(ub float64) Relation      { return Relation{Lower: math.Inf(-1), Upper: ub} }
func AtLeast(lb float64) Relation     { return Relation{Lower: lb, Upper: math.Inf(1)} }
func Between(lb, ub float64) Relation { return Relation{Lower: lb, Upper: ub} }

// IsEquality returns true for Lower == Upper relations.
func (r Relation) IsEquality() bool { return r.Lower == r.Upper }

func (r Relation) validate() error {
	if math.IsNaN(r.Lower) || math.IsNaN(r.Upper) {
		return &DomainError{Component: "constraint", Msg: "NaN relation bound"}
	}
	if r.Lower > r.Upper {
		return &DomainError{
			Component: "constraint",
			Msg:       fmt.Sprintf("lower bound %v greater than upper bound %v", r.Lower, r.Upper),
		}
	}
	return nil
}

// Constraint is an indexed root expression plus its relation. Index order
// is the row-order contract for matrix writers.
type Constraint struct {
	Index int
	Name  string
	Path  string
	Root  expr.Handle
	Rel   Relation
}

// Sense is the optimization direction of an objective.
type Sense uint8

const (
	Minimize Sense = iota
	Maximize
)

// Objective is an indexed root expression plus a direction.
type Objective struct {
	Index int
	Name  string
	Path  string
	Root  expr.Handle
	Sense Sense
}

// ConstraintSpec is a constraint body inside a disjunction group; it only
// becomes an indexed Constraint once a transformation reformulates the
// disjunction.
type ConstraintSpec struct {
	Root expr.Handle
	Rel  Relation
}

// Disjunction requires exactly one of its groups of constraints to hold.
// It is a structural construct: writers reject models that still contain
// one, so a reformulation pass must eliminate them first.
type Disjunction struct {
	Index  int
	Name   string
	Path   string
	Groups [][]ConstraintSpec
}

// Model is the component registry. All fields are exported for writers and
// transformation passes; user code mutates the model only through the Add
// and Set methods.
type Model struct {
	Graph *expr.Graph

	Variables    []Variable
	Parameters   []Parameter
	Constraints  []Constraint
	Objectives   []Objective
	Disjunctions []Disjunction

	// declaration call sites, collected in debug builds; constraint index
	// to stack location ids
	SymbolTable debug.SymbolTable
	MDebug      map[int][]int
}

// New returns an empty model with a fresh expression graph.
func New() *Model {
	return &Model{
		Graph:       expr.NewGraph(),
		SymbolTable: debug.NewSymbolTable(),
		MDebug:      map[int][]int{},
	}
}

// VarOption configures a variable at declaration.
type VarOption func(*Variable)

// WithBounds sets the lower and upper bound; either may be ±Inf.
func WithBounds(lower, upper float64) VarOption {
	return func(v *Variable) {
		v.Lower = lower
		v.Upper = upper
	}
}

// WithInit sets the pre-solve initial guess.
func WithInit(value float64) VarOption {
	return func(v *Variable) {
		v.Value = value
	}
}

// WithDomain sets the variable domain tag.
func WithDomain(d Domain) VarOption {
	return func(v *Variable) {
		v.Domain = d
	}
}

// AsInteger restricts the variable to integer values.
func AsInteger() VarOption { return WithDomain(Integer) }

// AsBinary restricts the variable to {0, 1} and defaults its bounds to
// [0, 1].
func AsBinary() VarOption {
	return func(v *Variable) {
		v.Domain = Binary
		v.Lower = 0
		v.Upper = 1
	}
}

// AddVariable declares a variable and returns its id. Ids are assigned
// monotonically and never reused. It fails with a DomainError on
// inconsistent bounds; the model stays usable for correction.
func (m *Model) AddVariable(name string, opts ...VarOption) (VarID, error) {
	return m.addVariable(name, "", opts...)
}

func (m *Model) addVariable(name, path string, opts ...VarOption) (VarID, error) {
	v := Variable{
		ID:    VarID(len(m.Variables)),
		Name:  name,
		Path:  path,
		Lower: math.Inf(-1),
		Upper: math.Inf(1),
	}
	for _, opt := range opts {
		opt(&v)
	}
	if math.IsNaN(v.Lower) || math.IsNaN(v.Upper) {
		return 0, &DomainError{Component: "variable", Name: v.FullName(), Msg: "NaN bound"}
	}
	if v.Lower > v.Upper {
		return 0, &DomainError{
			Component: "variable",
			Name:      v.FullName(),
			Msg:       fmt.Sprintf("lower bound %v greater than upper bound %v", v.Lower, v.Upper),
		}
	}
	if v.Domain == Binary && ((v.Lower != 0 && v.Lower != 1) || (v.Upper != 0 && v.Upper != 1)) {
		return 0, &DomainError{
			Component: "variable",
			Name:      v.FullName(),
			Msg:       fmt.Sprintf("binary variable with bounds [%v, %v] outside {0, 1}", v.Lower, v.Upper),
		}
	}
	m.Variables = append(m.Variables, v)
	return v.ID, nil
}

// AddParameter declares a parameter with the given compile-time value.
func (m *Model) AddParameter(name string, value float64) ParamID {
	return m.addParameter(name, "", value)
}

func (m *Model) addParameter(name, path string, value float64) ParamID {
	p := Parameter{
		ID:    ParamID(len(m.Parameters)),
		Name:  name,
		Path:  path,
		Value: value,
	}
	m.Parameters = append(m.Parameters, p)
	return p.ID
}

// SetParameter updates a parameter value before compilation.
func (m *Model) SetParameter(id ParamID, value float64) error {
	if int(id) >= len(m.Parameters) {
		return fmt.Errorf("model: unknown parameter id %d", id)
	}
	m.Parameters[id].Value = value
	return nil
}

// AddConstraint registers root under the given relation and returns the
// constraint index. Indices follow addition order; that order is the row
// order of any matrix output.
func (m *Model) AddConstraint(name string, root expr.Handle, rel Relation) (int, error) {
	return m.addConstraint(name, "", root, rel)
}

func (m *Model) addConstraint(name, path string, root expr.Handle, rel Relation) (int, error) {
	if err := m.Graph.Validate(root); err != nil {
		return 0, err
	}
	if err := rel.validate(); err != nil {
		return 0, err
	}
	profile.RecordConstraint()
	c := Constraint{
		Index: len(m.Constraints),
		Name:  name,
		Path:  path,
		Root:  root,
		Rel:   rel,
	}
	m.Constraints = append(m.Constraints, c)
	if debug.Debug {
		m.MDebug[c.Index] = m.SymbolTable.CollectStack()
	}
	return c.Index, nil
}

// AddObjective registers an objective root with a direction.
func (m *Model) AddObjective(name string, root expr.Handle, sense Sense) (int, error) {
	return m.addObjective(name, "", root, sense)
}

func (m *Model) addObjective(name, path string, root expr.Handle, sense Sense) (int, error) {
	if err := m.Graph.Validate(root); err != nil {
		return 0, err
	}
	o := Objective{
		Index: len(m.Objectives),
		Name:  name,
		Path:  path,
		Root:  root,
		Sense: sense,
	}
	m.Objectives = append(m.Objectives, o)
	return o.Index, nil
}

// AddDisjunction registers an exactly-one choice over groups of constraint
// specs. Each group must be non-empty.
func (m *Model) AddDisjunction(name string, groups ...[]ConstraintSpec) (int, error) {
	return m.addDisjunction(name, "", groups...)
}

func (m *Model) addDisjunction(name, path string, groups ...[]ConstraintSpec) (int, error) {
	if len(groups) < 2 {
		return 0, &DomainError{Component: "disjunction", Name: joinPath(path, name), Msg: "needs at least two groups"}
	}
	for gi, g := range groups {
		if len(g) == 0 {
			return 0, &DomainError{
				Component: "disjunction",
				Name:      joinPath(path, name),
				Msg:       fmt.Sprintf("group %d is empty", gi),
			}
		}
		for _, spec := range g {
			if err := m.Graph.Validate(spec.Root); err != nil {
				return 0, err
			}
			if err := spec.Rel.validate(); err != nil {
				return 0, err
			}
		}
	}
	d := Disjunction{
		Index:  len(m.Disjunctions),
		Name:   name,
		Path:   path,
		Groups: groups,
	}
	m.Disjunctions = append(m.Disjunctions, d)
	return d.Index, nil
}

// Variable returns the variable record for id.
func (m *Model) Variable(id VarID) *Variable {
	return &m.Variables[id]
}

// Parameter returns the parameter record for id.
func (m *Model) Parameter(id ParamID) *Parameter {
	return &m.Parameters[id]
}

// ParamValue resolves a parameter reference by raw id, as stored in
// expression nodes.
func (m *Model) ParamValue(id uint32) float64 {
	return m.Parameters[id].Value
}

// Clone returns a deep copy sharing no mutable state with m. Passes build
// on a clone and swap on success, so a failed pass leaves its input
// unmodified.
func (m *Model) Clone() *Model {
	c := &Model{
		Graph:        m.Graph.Clone(),
		Variables:    append([]Variable(nil), m.Variables...),
		Parameters:   append([]Parameter(nil), m.Parameters...),
		Constraints:  append([]Constraint(nil), m.Constraints...),
		Objectives:   append([]Objective(nil), m.Objectives...),
		Disjunctions: make([]Disjunction, len(m.Disjunctions)),
		SymbolTable:  m.SymbolTable.Clone(),
		MDebug:       make(map[int][]int, len(m.MDebug)),
	}
	for i, d := range m.Disjunctions {
		groups := make([][]ConstraintSpec, len(d.Groups))
		for gi, g := range d.Groups {
			groups[gi] = append([]ConstraintSpec(nil), g...)
		}
		d.Groups = groups
		c.Disjunctions[i] = d
	}
	for k, v := range m.MDebug {
		c.MDebug[k] = v
	}
	return c
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}
