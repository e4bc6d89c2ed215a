package generator

import (
	"sync"

	"github.com/kontrakt-labs/kontrakt/pkg/plan"
	"github.com/kontrakt-labs/kontrakt/pkg/typesys"
)

// Selection is the outcome of a successful strategy consultation.
type Selection struct {
	Generator Generator
	Source    DecisionSource
}

// SelectionStrategy inspects a planned node and either selects a generator or
// declines. Strategies are consulted in registration order; the first
// selection wins.
type SelectionStrategy interface {
	Name() string
	Select(node *plan.UnlinkedNode) (*Selection, bool)
}

// InterfaceResolver picks one concrete implementation for an interface node,
// recording provenance for the choice.
type InterfaceResolver interface {
	ResolveImplementation(node *plan.UnlinkedNode) (typesys.TypeReference, DecisionSource, error)
}

// Registry is the chain-of-responsibility over selection strategies. It is
// read-only after initialization and safe for concurrent reads.
type Registry struct {
	strategies    []SelectionStrategy
	fallback      SelectionStrategy
	ifaceResolver InterfaceResolver
}

func NewRegistry(strategies ...SelectionStrategy) *Registry {
	return &Registry{strategies: strategies}
}

// WithFallback sets the strategy consulted when no ordered strategy matches.
func (r *Registry) WithFallback(s SelectionStrategy) *Registry {
	r.fallback = s
	return r
}

// WithInterfaceResolver sets the resolver for interface nodes.
func (r *Registry) WithInterfaceResolver(ir InterfaceResolver) *Registry {
	r.ifaceResolver = ir
	return r
}

// Select consults the ordered strategies, then the fallback. Failure of both
// is a NotFoundError carrying the node's type and attribute set.
func (r *Registry) Select(node *plan.UnlinkedNode) (*Selection, error) {
	for _, s := range r.strategies {
		if sel, ok := s.Select(node); ok {
			return sel, nil
		}
	}
	if r.fallback != nil {
		if sel, ok := r.fallback.Select(node); ok {
			return sel, nil
		}
	}
	return nil, &NotFoundError{Type: node.Type, Attributes: node.Attributes}
}

// ResolveInterface picks the concrete implementation for an interface node.
func (r *Registry) ResolveInterface(node *plan.UnlinkedNode) (typesys.TypeReference, DecisionSource, error) {
	if r.ifaceResolver == nil {
		return typesys.TypeReference{}, DecisionSource{}, &ImplementationResolutionError{
			Interface: node.Type, Err: ErrSealedNoSubclasses,
		}
	}
	concrete, source, err := r.ifaceResolver.ResolveImplementation(node)
	if err != nil {
		if _, ok := err.(*ImplementationResolutionError); ok {
			return typesys.TypeReference{}, DecisionSource{}, err
		}
		return typesys.TypeReference{}, DecisionSource{}, &ImplementationResolutionError{Interface: node.Type, Err: err}
	}
	return concrete, source, nil
}

// ImplementationTable is the registration-backed InterfaceResolver used by
// the engine's tests: every interface is bound to an ordered list of concrete
// implementations and the first entry is chosen, deterministically.
type ImplementationTable struct {
	mu    sync.RWMutex
	impls map[typesys.TypeID][]typesys.TypeReference
}

func NewImplementationTable() *ImplementationTable {
	return &ImplementationTable{impls: make(map[typesys.TypeID][]typesys.TypeReference)}
}

// Bind registers the implementations of an interface. Binding an empty list
// marks the interface as sealed with no subclasses.
func (t *ImplementationTable) Bind(iface typesys.TypeReference, impls ...typesys.TypeReference) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.impls[iface.ID] = impls
}

func (t *ImplementationTable) ResolveImplementation(node *plan.UnlinkedNode) (typesys.TypeReference, DecisionSource, error) {
	t.mu.RLock()
	impls, ok := t.impls[node.Type.ID]
	t.mu.RUnlock()

	if !ok {
		return typesys.TypeReference{}, DecisionSource{}, &ImplementationResolutionError{
			Interface: node.Type, Err: typesys.ErrUnknownType,
		}
	}
	if len(impls) == 0 {
		return typesys.TypeReference{}, DecisionSource{}, &ImplementationResolutionError{
			Interface: node.Type, Err: ErrSealedNoSubclasses,
		}
	}
	return impls[0], DefaultDecision("implementation-table"), nil
}
