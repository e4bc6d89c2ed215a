// Package link turns an unlinked structural plan into a fully expanded,
// deterministic execution plan: every node carries its resolved generator and
// provenance, and every collection or map holds a concrete number of
// children.
package link

import (
	"errors"
	"fmt"

	"github.com/kontrakt-labs/kontrakt/pkg/contracts"
	"github.com/kontrakt-labs/kontrakt/pkg/generator"
	"github.com/kontrakt-labs/kontrakt/pkg/plan"
	"github.com/kontrakt-labs/kontrakt/pkg/rng"
	"github.com/kontrakt-labs/kontrakt/pkg/typesys"
)

// Default bound for collection and map sizes when no attribute narrows it.
const (
	DefaultMinSize = 0
	DefaultMaxSize = 10
)

// Field is one linked child of a composite node.
type Field struct {
	Name string
	Node *ExecutableNode
}

// Entry is one expanded key/value pair of a map node.
type Entry struct {
	Key   *ExecutableNode
	Value *ExecutableNode
}

// ExecutableNode mirrors plan.UnlinkedNode with a resolved generator and
// provenance per node. Collection and map children are expanded eagerly to a
// concrete count.
type ExecutableNode struct {
	Kind       plan.NodeKind
	Type       typesys.TypeReference
	Attributes []typesys.Attribute
	Path       string

	Generator generator.Generator
	Source    generator.DecisionSource

	// Composite
	Fields []Field

	// Collection
	Children  []*ExecutableNode
	FixedSize bool

	// Map
	Entries []Entry

	// Interface: the chosen concrete type and its executable subtree.
	Concrete *typesys.TypeReference
	Impl     *ExecutableNode
}

// LinkageError wraps a linking failure with the path at which it occurred.
type LinkageError struct {
	Path string
	Err  error
}

func (e *LinkageError) Error() string {
	return fmt.Sprintf("link: at %q: %v", e.Path, e.Err)
}

func (e *LinkageError) Unwrap() error { return e.Err }

func (e *LinkageError) Blame() contracts.Blame { return contracts.BlameSetupFailure }

// Context carries the per-link inputs: user overrides by exact path and the
// seeded structural sizing policy.
type Context struct {
	Overrides map[string]generator.Generator

	// MinSize and MaxSize bound structural sizes when no attribute applies.
	MinSize, MaxSize int

	rand *rng.Stream
}

// NewContext builds a linker context with the default 0..10 size bound and a
// sizing stream forked from rand.
func NewContext(rand *rng.Stream) *Context {
	return &Context{
		MinSize: DefaultMinSize,
		MaxSize: DefaultMaxSize,
		rand:    rand.Fork("link/structural-size"),
	}
}

// StructuralSize draws a deterministic size in [min, max].
func (c *Context) StructuralSize(min, max int) int {
	return c.rand.IntBetween(min, max)
}

// sizeBounds resolves the effective bound for a container node: the default
// (or configured) bound unless a size attribute narrows it.
func (c *Context) sizeBounds(attrs []typesys.Attribute) (int, int) {
	lo, hi := c.MinSize, c.MaxSize
	if a, ok := typesys.FindAttribute(attrs, "size"); ok {
		if v, ok := a.IntArg("min"); ok && v > lo {
			lo = v
		}
		if v, ok := a.IntArg("max"); ok && v < hi {
			hi = v
		}
	}
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

// Linker expands unlinked plans. The planner is needed to plan the concrete
// subtree chosen for interface nodes.
type Linker struct {
	registry *generator.Registry
	planner  *plan.Planner
}

func NewLinker(registry *generator.Registry, planner *plan.Planner) *Linker {
	return &Linker{registry: registry, planner: planner}
}

// Link expands node at the given path. Path uses dot/bracket notation
// ("users[0].name"); the root is conventionally "".
func (l *Linker) Link(node *plan.UnlinkedNode, path string, lctx *Context) (*ExecutableNode, error) {
	exec, err := l.link(node, path, lctx)
	if err != nil {
		var le *LinkageError
		if errors.As(err, &le) {
			return nil, err
		}
		return nil, &LinkageError{Path: path, Err: err}
	}
	return exec, nil
}

func (l *Linker) link(node *plan.UnlinkedNode, path string, lctx *Context) (*ExecutableNode, error) {
	// A user override at this exact path collapses the node to an atomic
	// executable sourced from the override; planned structure below it is
	// discarded.
	if override, ok := lctx.Overrides[path]; ok {
		return &ExecutableNode{
			Kind:       plan.KindAtomic,
			Type:       node.Type,
			Attributes: node.Attributes,
			Path:       path,
			Generator:  override,
			Source:     generator.UserOverride(path),
		}, nil
	}

	switch node.Kind {
	case plan.KindReference:
		// Recursion already bounded by the planner; references terminate.
		return &ExecutableNode{
			Kind:      plan.KindReference,
			Type:      node.Type,
			Path:      path,
			Generator: nilGenerator{},
			Source:    generator.DefaultDecision("reference-terminator"),
		}, nil

	case plan.KindInterface:
		return l.linkInterface(node, path, lctx)
	}

	sel, err := l.registry.Select(node)
	if err != nil {
		return nil, &LinkageError{Path: path, Err: err}
	}

	exec := &ExecutableNode{
		Kind:       node.Kind,
		Type:       node.Type,
		Attributes: node.Attributes,
		Path:       path,
		Generator:  sel.Generator,
		Source:     sel.Source,
		FixedSize:  node.FixedSize,
	}

	switch node.Kind {
	case plan.KindComposite:
		exec.Fields = make([]Field, 0, len(node.Fields))
		for _, f := range node.Fields {
			child, err := l.link(f.Node, joinPath(path, f.Name), lctx)
			if err != nil {
				return nil, err
			}
			exec.Fields = append(exec.Fields, Field{Name: f.Name, Node: child})
		}

	case plan.KindCollection:
		lo, hi := lctx.sizeBounds(node.Attributes)
		count := lctx.StructuralSize(lo, hi)
		exec.Children = make([]*ExecutableNode, 0, count)
		for i := 0; i < count; i++ {
			child, err := l.link(node.Element, fmt.Sprintf("%s[%d]", path, i), lctx)
			if err != nil {
				return nil, err
			}
			exec.Children = append(exec.Children, child)
		}

	case plan.KindMap:
		lo, hi := lctx.sizeBounds(node.Attributes)
		count := lctx.StructuralSize(lo, hi)
		exec.Entries = make([]Entry, 0, count)
		for i := 0; i < count; i++ {
			key, err := l.link(node.Key, fmt.Sprintf("%s[%d].key", path, i), lctx)
			if err != nil {
				return nil, err
			}
			value, err := l.link(node.Value, fmt.Sprintf("%s[%d].value", path, i), lctx)
			if err != nil {
				return nil, err
			}
			exec.Entries = append(exec.Entries, Entry{Key: key, Value: value})
		}
	}

	return exec, nil
}

// linkInterface resolves the concrete implementation, plans it, and links the
// resulting subtree, exposing both the interface and the chosen type.
func (l *Linker) linkInterface(node *plan.UnlinkedNode, path string, lctx *Context) (*ExecutableNode, error) {
	concrete, source, err := l.registry.ResolveInterface(node)
	if err != nil {
		return nil, &LinkageError{Path: path, Err: err}
	}

	subtree, err := l.planner.Plan(concrete)
	if err != nil {
		return nil, &LinkageError{Path: path, Err: err}
	}

	impl, err := l.link(subtree, path, lctx)
	if err != nil {
		return nil, err
	}

	return &ExecutableNode{
		Kind:       plan.KindInterface,
		Type:       node.Type,
		Attributes: node.Attributes,
		Path:       path,
		Generator:  impl.Generator,
		Source:     source,
		Concrete:   &concrete,
		Impl:       impl,
	}, nil
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

// nilGenerator terminates reference nodes with a nil value.
type nilGenerator struct{}

func (nilGenerator) Generate(generator.Context, typesys.TypeReference, []typesys.Attribute) (any, error) {
	return nil, nil
}
