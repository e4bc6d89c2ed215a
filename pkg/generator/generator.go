// Package generator defines the value-production protocols of the engine,
// the registry and strategy chain that pick a generator for each planned
// node, and the deterministic builtin generators.
package generator

import (
	"fmt"
	"strings"

	"github.com/kontrakt-labs/kontrakt/pkg/contracts"
	"github.com/kontrakt-labs/kontrakt/pkg/typesys"
)

// Generator produces a value for an atomic occurrence of a type.
type Generator interface {
	Generate(ctx Context, t typesys.TypeReference, attrs []typesys.Attribute) (any, error)
}

// GeneratorFunc adapts a function to the Generator protocol.
type GeneratorFunc func(ctx Context, t typesys.TypeReference, attrs []typesys.Attribute) (any, error)

func (f GeneratorFunc) Generate(ctx Context, t typesys.TypeReference, attrs []typesys.Attribute) (any, error) {
	return f(ctx, t, attrs)
}

// CompositeAssembler is the capability of assembling a composite value from
// its already-generated field values. Composite execution requires it.
type CompositeAssembler interface {
	AssembleComposite(ctx Context, t typesys.TypeReference, fields map[string]any) (any, error)
}

// SliceMaker is the capability of producing a fixed-size, array-like value
// from an ordered element list.
type SliceMaker interface {
	MakeSlice(ctx Context, t typesys.TypeReference, elems []any) (any, error)
}

// MutableCollection is an empty growable container under construction.
type MutableCollection interface {
	Append(v any)
	Value() any
}

// CollectionMaker is the capability of creating empty mutable containers.
type CollectionMaker interface {
	NewCollection(t typesys.TypeReference) (MutableCollection, error)
}

// MutableMap is an empty map container under construction. Put overwrites on
// key collision.
type MutableMap interface {
	Put(key, value any)
	Value() any
}

// MapMaker is the capability of creating empty map containers.
type MapMaker interface {
	NewMap(t typesys.TypeReference) (MutableMap, error)
}

// DecisionKind tags the provenance of a generator choice.
type DecisionKind int

const (
	// DecisionDefault: a default selection strategy chose the generator.
	DecisionDefault DecisionKind = iota
	// DecisionUser: an explicit user override at a path chose the generator.
	DecisionUser
)

// DecisionSource records why a generator was chosen for a node. It feeds the
// DESIGN phase of the audit trace.
type DecisionSource struct {
	Kind     DecisionKind
	Strategy string
	Path     string
}

func (d DecisionSource) String() string {
	if d.Kind == DecisionUser {
		return "user:" + d.Path
	}
	return "default:" + d.Strategy
}

// UserOverride builds the provenance for an explicit override at path.
func UserOverride(path string) DecisionSource {
	return DecisionSource{Kind: DecisionUser, Path: path}
}

// DefaultDecision builds the provenance for a default strategy choice.
func DefaultDecision(strategy string) DecisionSource {
	return DecisionSource{Kind: DecisionDefault, Strategy: strategy}
}

// NotFoundError reports that no strategy, including the fallback, selected a
// generator for a node.
type NotFoundError struct {
	Type       typesys.TypeReference
	Attributes []typesys.Attribute
}

func (e *NotFoundError) Error() string {
	if len(e.Attributes) == 0 {
		return fmt.Sprintf("generator: no generator for type %s", e.Type)
	}
	names := make([]string, len(e.Attributes))
	for i, a := range e.Attributes {
		names[i] = a.Name
	}
	return fmt.Sprintf("generator: no generator for type %s (attributes: %s)", e.Type, strings.Join(names, ", "))
}

func (e *NotFoundError) Blame() contracts.Blame { return contracts.BlameSetupFailure }

// ImplementationResolutionError reports that no concrete implementation could
// be chosen for an interface node.
type ImplementationResolutionError struct {
	Interface typesys.TypeReference
	Err       error
}

func (e *ImplementationResolutionError) Error() string {
	return fmt.Sprintf("generator: cannot resolve implementation for %s: %v", e.Interface, e.Err)
}

func (e *ImplementationResolutionError) Unwrap() error { return e.Err }

func (e *ImplementationResolutionError) Blame() contracts.Blame { return contracts.BlameSetupFailure }

// ErrSealedNoSubclasses is returned when a sealed interface is registered
// with an empty implementation set.
var ErrSealedNoSubclasses = fmt.Errorf("generator: sealed type has no subclasses")
