package indexer

import (
	"fmt"
	"go/token"

	"github.com/Aman-CERP/annodex/pkg/element"
)

// Validator checks one use of an indexable annotation. Annotation types
// opt in by naming validators in their marker:
//
//	// @annodex.Indexed(validators=exported|types-only)
type Validator interface {
	Name() string
	// Check returns an error if e may not carry the annotation.
	Check(e element.Element, use element.Annotation) error
}

type funcValidator struct {
	name string
	fn   func(element.Element, element.Annotation) error
}

func (v funcValidator) Name() string { return v.name }

func (v funcValidator) Check(e element.Element, use element.Annotation) error {
	return v.fn(e, use)
}

// NewValidator returns a Validator backed by fn.
func NewValidator(name string, fn func(e element.Element, use element.Annotation) error) Validator {
	return funcValidator{name: name, fn: fn}
}

// Built-in validator names.
const (
	ValidatorExported  = "exported"
	ValidatorTypesOnly = "types-only"
)

// DefaultValidators returns the built-in validators.
func DefaultValidators() []Validator {
	return []Validator{
		NewValidator(ValidatorExported, checkExported),
		NewValidator(ValidatorTypesOnly, checkTypesOnly),
	}
}

// checkExported requires the element, and the declaring class of a
// member, to be exported. Packages always pass.
func checkExported(e element.Element, use element.Annotation) error {
	if e.Kind() == element.KindPackage {
		return nil
	}
	if !token.IsExported(e.SimpleName()) {
		return fmt.Errorf("@%s requires an exported %s, %s is unexported", use.Type, e.Kind(), e.SimpleName())
	}
	if c := element.Declaring(e); c != nil && !token.IsExported(c.Name) {
		return fmt.Errorf("@%s requires an exported declaring type, %s is unexported", use.Type, c.Name)
	}
	return nil
}

func checkTypesOnly(e element.Element, use element.Annotation) error {
	if e.Kind() != element.KindClass {
		return fmt.Errorf("@%s may only be used on types, not on a %s", use.Type, e.Kind())
	}
	return nil
}
