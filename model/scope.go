package model

import "github.com/opalhq/opal/expr"

// Scope is a namespace view on a model: components declared through it
// carry the scope path, nothing else changes. Scopes replace nested
// sub-model ownership; the registry itself stays flat.
type Scope struct {
	m    *Model
	path string
}

// Scope returns a namespace rooted at name.
func (m *Model) Scope(name string) *Scope {
	return &Scope{m: m, path: name}
}

// Scope returns a nested namespace.
func (s *Scope) Scope(name string) *Scope {
	return &Scope{m: s.m, path: joinPath(s.path, name)}
}

// Path returns the namespace path of the scope.
func (s *Scope) Path() string { return s.path }

// Model returns the underlying registry.
func (s *Scope) Model() *Model { return s.m }

func (s *Scope) AddVariable(name string, opts ...VarOption) (VarID, error) {
	return s.m.addVariable(name, s.path, opts...)
}

func (s *Scope) AddParameter(name string, value float64) ParamID {
	return s.m.addParameter(name, s.path, value)
}

func (s *Scope) AddConstraint(name string, root expr.Handle, rel Relation) (int, error) {
	return s.m.addConstraint(name, s.path, root, rel)
}

func (s *Scope) AddObjective(name string, root expr.Handle, sense Sense) (int, error) {
	return s.m.addObjective(name, s.path, root, sense)
}

func (s *Scope) AddDisjunction(name string, groups ...[]ConstraintSpec) (int, error) {
	return s.m.addDisjunction(name, s.path, groups...)
}
