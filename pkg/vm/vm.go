// Package vm executes an expanded execution plan bottom-up into a concrete
// value.
package vm

import (
	"errors"
	"fmt"

	"github.com/kontrakt-labs/kontrakt/pkg/contracts"
	"github.com/kontrakt-labs/kontrakt/pkg/generator"
	"github.com/kontrakt-labs/kontrakt/pkg/link"
	"github.com/kontrakt-labs/kontrakt/pkg/plan"
	"github.com/kontrakt-labs/kontrakt/pkg/typesys"
)

// ExecutionError wraps any assembly failure with the originating type.
type ExecutionError struct {
	Type typesys.TypeReference
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("vm: executing %s: %v", e.Type, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

func (e *ExecutionError) Blame() contracts.Blame { return contracts.BlameExecutionFailure }

var (
	// ErrNotCompositeAssembler: the selected generator cannot assemble
	// composites. This is a configuration or usage error.
	ErrNotCompositeAssembler = errors.New("generator does not assemble composites")
	// ErrNotSliceMaker: the selected generator cannot produce fixed-size
	// containers.
	ErrNotSliceMaker = errors.New("generator does not produce fixed-size containers")
	// ErrNotCollectionMaker: the selected generator cannot create mutable
	// containers.
	ErrNotCollectionMaker = errors.New("generator does not create mutable containers")
	// ErrNotMapMaker: the selected generator cannot create map containers.
	ErrNotMapMaker = errors.New("generator does not create map containers")
)

// VM executes ExecutableNode trees. It is stateless and safe for concurrent
// use; all per-run state lives in the generation context.
type VM struct{}

func New() *VM { return &VM{} }

// Execute produces the concrete value for node.
func (m *VM) Execute(ctx generator.Context, node *link.ExecutableNode) (any, error) {
	switch node.Kind {
	case plan.KindAtomic, plan.KindReference:
		v, err := node.Generator.Generate(ctx, node.Type, node.Attributes)
		if err != nil {
			return nil, m.wrap(node.Type, err)
		}
		return v, nil

	case plan.KindComposite:
		// Fields see the enclosing type in the generation history, so
		// custom generators can react to where in the tree they run.
		fctx := ctx.WithHistory(node.Type.ID)
		fields := make(map[string]any, len(node.Fields))
		for _, f := range node.Fields {
			v, err := m.Execute(fctx, f.Node)
			if err != nil {
				return nil, m.wrap(node.Type, err)
			}
			fields[f.Name] = v
		}
		assembler, ok := node.Generator.(generator.CompositeAssembler)
		if !ok {
			return nil, &ExecutionError{Type: node.Type, Err: ErrNotCompositeAssembler}
		}
		v, err := assembler.AssembleComposite(ctx, node.Type, fields)
		if err != nil {
			return nil, m.wrap(node.Type, err)
		}
		return v, nil

	case plan.KindCollection:
		elems := make([]any, 0, len(node.Children))
		for _, child := range node.Children {
			v, err := m.Execute(ctx, child)
			if err != nil {
				return nil, m.wrap(node.Type, err)
			}
			elems = append(elems, v)
		}
		if node.FixedSize {
			maker, ok := node.Generator.(generator.SliceMaker)
			if !ok {
				return nil, &ExecutionError{Type: node.Type, Err: ErrNotSliceMaker}
			}
			v, err := maker.MakeSlice(ctx, node.Type, elems)
			if err != nil {
				return nil, m.wrap(node.Type, err)
			}
			return v, nil
		}
		maker, ok := node.Generator.(generator.CollectionMaker)
		if !ok {
			return nil, &ExecutionError{Type: node.Type, Err: ErrNotCollectionMaker}
		}
		coll, err := maker.NewCollection(node.Type)
		if err != nil {
			return nil, m.wrap(node.Type, err)
		}
		for _, e := range elems {
			coll.Append(e)
		}
		return coll.Value(), nil

	case plan.KindMap:
		maker, ok := node.Generator.(generator.MapMaker)
		if !ok {
			return nil, &ExecutionError{Type: node.Type, Err: ErrNotMapMaker}
		}
		container, err := maker.NewMap(node.Type)
		if err != nil {
			return nil, m.wrap(node.Type, err)
		}
		// Entries execute in order; a key collision keeps the last value.
		for _, entry := range node.Entries {
			k, err := m.Execute(ctx, entry.Key)
			if err != nil {
				return nil, m.wrap(node.Type, err)
			}
			v, err := m.Execute(ctx, entry.Value)
			if err != nil {
				return nil, m.wrap(node.Type, err)
			}
			container.Put(k, v)
		}
		return container.Value(), nil

	case plan.KindInterface:
		// Delegate entirely to the resolved implementation subtree.
		v, err := m.Execute(ctx.WithHistory(node.Type.ID), node.Impl)
		if err != nil {
			return nil, m.wrap(node.Type, err)
		}
		return v, nil

	default:
		return nil, &ExecutionError{Type: node.Type, Err: fmt.Errorf("unsupported node kind %v", node.Kind)}
	}
}

// wrap keeps the innermost originating type: an error already wrapped deeper
// in the tree passes through without stacking an ExecutionError per level.
func (m *VM) wrap(t typesys.TypeReference, err error) error {
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return err
	}
	return &ExecutionError{Type: t, Err: err}
}
