// Package typesys defines the type metadata model consumed by the generation
// pipeline: identity-stable type references, structural descriptors, and the
// Resolver port that supplies them.
package typesys

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
)

// TypeID is the canonical, stable identity of a logical type. Two references
// resolved for the same logical type always carry equal TypeIDs.
type TypeID string

// TypeReference is an opaque, identity-stable handle to a type.
type TypeReference struct {
	ID   TypeID `json:"id"`
	Name string `json:"name"`
}

// Ref builds a reference whose ID doubles as its display name.
func Ref(id string) TypeReference {
	return TypeReference{ID: TypeID(id), Name: id}
}

func (r TypeReference) String() string {
	if r.Name != "" {
		return r.Name
	}
	return string(r.ID)
}

// Kind classifies the structural shape of a type.
type Kind int

const (
	KindUnknown Kind = iota
	KindAtomic
	KindCollection
	KindMap
	KindArray
	KindComposite
	KindInterface
	KindAbstract
)

func (k Kind) String() string {
	switch k {
	case KindAtomic:
		return "ATOMIC"
	case KindCollection:
		return "COLLECTION"
	case KindMap:
		return "MAP"
	case KindArray:
		return "ARRAY"
	case KindComposite:
		return "COMPOSITE"
	case KindInterface:
		return "INTERFACE"
	case KindAbstract:
		return "ABSTRACT"
	default:
		return "UNKNOWN"
	}
}

// Attribute is an opaque constraint or metadata entry attached to exactly one
// node. Attributes are never inherited by child nodes.
type Attribute struct {
	Name string            `json:"name"`
	Args map[string]string `json:"args,omitempty"`
}

// IntArg parses an integer argument, returning ok=false when absent or malformed.
func (a Attribute) IntArg(key string) (int, bool) {
	raw, ok := a.Args[key]
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

// FindAttribute returns the first attribute with the given name.
func FindAttribute(attrs []Attribute, name string) (Attribute, bool) {
	for _, a := range attrs {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}

// Field describes one named member of a composite type, together with the
// attributes extracted for that field alone.
type Field struct {
	Name       string
	Type       TypeReference
	Attributes []Attribute
}

// TypeDescriptor is the read-only structural shape of a type as supplied by a
// Resolver. Element is set for collections, arrays and maps; Key is set for
// maps only; Fields is set for composites.
type TypeDescriptor struct {
	Kind    Kind
	Element *TypeReference
	Key     *TypeReference
	Fields  []Field
}

// Resolver maps a TypeReference to its TypeDescriptor. Implementations may be
// backed by runtime reflection, code generation, or explicit registration; the
// engine only depends on this contract.
type Resolver interface {
	Resolve(ref TypeReference) (*TypeDescriptor, error)
}

// ErrUnknownType is returned by the registry resolver for unregistered types.
var ErrUnknownType = errors.New("typesys: unknown type")

// Registry is the explicit-registration Resolver used throughout the engine's
// own tests. Registration happens once at setup; resolution is read-only and
// safe for concurrent use afterwards.
type Registry struct {
	mu      sync.RWMutex
	schemas map[TypeID]*TypeDescriptor
}

func NewRegistry() *Registry {
	return &Registry{schemas: make(map[TypeID]*TypeDescriptor)}
}

// Register binds a descriptor to a reference, replacing any previous binding.
func (r *Registry) Register(ref TypeReference, desc *TypeDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[ref.ID] = desc
}

func (r *Registry) Resolve(ref TypeReference) (*TypeDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	desc, ok := r.schemas[ref.ID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, ref)
	}
	return desc, nil
}
