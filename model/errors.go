package model

import "fmt"

// DomainError reports inconsistent bounds or domains at declaration time.
// It is returned to the caller; the model remains usable for correction.
type DomainError struct {
	Component string // "variable", "constraint", "disjunction"
	Name      string
	Msg       string
}

func (e *DomainError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("model: %s: %s", e.Component, e.Msg)
	}
	return fmt.Sprintf("model: %s %q: %s", e.Component, e.Name, e.Msg)
}
