// Package plan walks a type graph from a root reference into an immutable
// UnlinkedNode tree. Planning attaches no generators and expands no
// collections; it only records structure and detects recursion.
package plan

import (
	"fmt"

	"github.com/kontrakt-labs/kontrakt/pkg/contracts"
	"github.com/kontrakt-labs/kontrakt/pkg/typesys"
)

// NodeKind tags the variants of the unlinked (and executable) node unions.
type NodeKind int

const (
	KindAtomic NodeKind = iota
	KindComposite
	KindCollection
	KindMap
	KindInterface
	KindReference
)

func (k NodeKind) String() string {
	switch k {
	case KindAtomic:
		return "atomic"
	case KindComposite:
		return "composite"
	case KindCollection:
		return "collection"
	case KindMap:
		return "map"
	case KindInterface:
		return "interface"
	default:
		return "reference"
	}
}

// Field is one named child of a composite node.
type Field struct {
	Name string
	Node *UnlinkedNode
}

// UnlinkedNode is the structural plan for one type occurrence. Exactly the
// variant fields for its Kind are populated; the tree is immutable once
// planned.
type UnlinkedNode struct {
	Kind       NodeKind
	Type       typesys.TypeReference
	Attributes []typesys.Attribute

	// Composite
	Fields []Field

	// Collection; FixedSize marks array-like containers.
	Element   *UnlinkedNode
	FixedSize bool

	// Map
	Key   *UnlinkedNode
	Value *UnlinkedNode

	// Reference: depth in the active ancestor stack at which the repeated
	// ancestor occurs, counted from the root. Callers may use it for bounded
	// unrolling.
	RecursionDepth int
}

// PlanningError wraps any failure to classify or traverse a type, naming the
// offending type.
type PlanningError struct {
	Type typesys.TypeReference
	Err  error
}

func (e *PlanningError) Error() string {
	return fmt.Sprintf("plan: cannot plan type %s: %v", e.Type, e.Err)
}

func (e *PlanningError) Unwrap() error { return e.Err }

func (e *PlanningError) Blame() contracts.Blame { return contracts.BlameSetupFailure }

// Planner produces UnlinkedNode trees from a Resolver.
type Planner struct {
	resolver typesys.Resolver

	// Unroll is how many times a type may occur on the active ancestor stack
	// before a Reference node is emitted. The minimum (and default) is 1.
	Unroll int
}

func NewPlanner(resolver typesys.Resolver) *Planner {
	return &Planner{resolver: resolver, Unroll: 1}
}

// Plan builds the structural plan rooted at ref.
func (p *Planner) Plan(ref typesys.TypeReference) (*UnlinkedNode, error) {
	return p.plan(ref, nil, nil)
}

// PlanWithAttributes builds a plan whose root node carries the given
// attributes, as when planning a composite field.
func (p *Planner) PlanWithAttributes(ref typesys.TypeReference, attrs []typesys.Attribute) (*UnlinkedNode, error) {
	return p.plan(ref, attrs, nil)
}

func (p *Planner) plan(ref typesys.TypeReference, attrs []typesys.Attribute, stack []typesys.TypeID) (*UnlinkedNode, error) {
	unroll := p.Unroll
	if unroll < 1 {
		unroll = 1
	}

	first, seen := -1, 0
	for i, id := range stack {
		if id == ref.ID {
			if first < 0 {
				first = i
			}
			seen++
		}
	}
	if seen >= unroll {
		return &UnlinkedNode{Kind: KindReference, Type: ref, Attributes: attrs, RecursionDepth: first}, nil
	}

	desc, err := p.resolver.Resolve(ref)
	if err != nil {
		return nil, &PlanningError{Type: ref, Err: err}
	}

	stack = append(stack, ref.ID)

	switch desc.Kind {
	case typesys.KindComposite:
		fields := make([]Field, 0, len(desc.Fields))
		for _, f := range desc.Fields {
			// Each field is planned with its own extracted attributes,
			// never the parent's.
			child, err := p.plan(f.Type, f.Attributes, stack)
			if err != nil {
				return nil, err
			}
			fields = append(fields, Field{Name: f.Name, Node: child})
		}
		return &UnlinkedNode{Kind: KindComposite, Type: ref, Attributes: attrs, Fields: fields}, nil

	case typesys.KindCollection, typesys.KindArray:
		if desc.Element == nil {
			return nil, &PlanningError{Type: ref, Err: fmt.Errorf("container without element type")}
		}
		// Attributes on the collection stay on the collection.
		elem, err := p.plan(*desc.Element, nil, stack)
		if err != nil {
			return nil, err
		}
		return &UnlinkedNode{
			Kind:       KindCollection,
			Type:       ref,
			Attributes: attrs,
			Element:    elem,
			FixedSize:  desc.Kind == typesys.KindArray,
		}, nil

	case typesys.KindMap:
		if desc.Key == nil || desc.Element == nil {
			return nil, &PlanningError{Type: ref, Err: fmt.Errorf("map without key or value type")}
		}
		key, err := p.plan(*desc.Key, nil, stack)
		if err != nil {
			return nil, err
		}
		value, err := p.plan(*desc.Element, nil, stack)
		if err != nil {
			return nil, err
		}
		return &UnlinkedNode{Kind: KindMap, Type: ref, Attributes: attrs, Key: key, Value: value}, nil

	case typesys.KindInterface, typesys.KindAbstract:
		// Resolution to a concrete implementation is deferred to linking.
		return &UnlinkedNode{Kind: KindInterface, Type: ref, Attributes: attrs}, nil

	case typesys.KindAtomic:
		return &UnlinkedNode{Kind: KindAtomic, Type: ref, Attributes: attrs}, nil

	default:
		// Unknown and unsupported kinds degrade to atomic nodes.
		return &UnlinkedNode{Kind: KindAtomic, Type: ref, Attributes: attrs}, nil
	}
}
