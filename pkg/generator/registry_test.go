package generator_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kontrakt-labs/kontrakt/pkg/generator"
	"github.com/kontrakt-labs/kontrakt/pkg/plan"
	"github.com/kontrakt-labs/kontrakt/pkg/typesys"
)

// namedStrategy selects a fixed generator for a single type id.
type namedStrategy struct {
	name string
	id   typesys.TypeID
}

func (s namedStrategy) Name() string { return s.name }

func (s namedStrategy) Select(node *plan.UnlinkedNode) (*generator.Selection, bool) {
	if node.Type.ID != s.id {
		return nil, false
	}
	g := generator.GeneratorFunc(func(generator.Context, typesys.TypeReference, []typesys.Attribute) (any, error) {
		return s.name, nil
	})
	return &generator.Selection{Generator: g, Source: generator.DefaultDecision(s.name)}, true
}

func atomicNode(id string) *plan.UnlinkedNode {
	return &plan.UnlinkedNode{Kind: plan.KindAtomic, Type: typesys.Ref(id)}
}

func TestRegistry_FirstMatchingStrategyWins(t *testing.T) {
	reg := generator.NewRegistry(
		namedStrategy{name: "first", id: "user"},
		namedStrategy{name: "second", id: "user"},
	)

	sel, err := reg.Select(atomicNode("user"))
	require.NoError(t, err)
	assert.Equal(t, "default:first", sel.Source.String())
}

func TestRegistry_FallbackConsultedLast(t *testing.T) {
	reg := generator.NewRegistry(namedStrategy{name: "primary", id: "user"}).
		WithFallback(namedStrategy{name: "fallback", id: "order"})

	sel, err := reg.Select(atomicNode("order"))
	require.NoError(t, err)
	assert.Equal(t, "default:fallback", sel.Source.String())
}

func TestRegistry_NoStrategyMatches(t *testing.T) {
	reg := generator.NewRegistry(namedStrategy{name: "primary", id: "user"})

	_, err := reg.Select(atomicNode("order"))
	require.Error(t, err)

	var nf *generator.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, typesys.TypeID("order"), nf.Type.ID)
}

func TestRegistry_ResolveInterface_NoResolverConfigured(t *testing.T) {
	reg := generator.NewRegistry()

	node := &plan.UnlinkedNode{Kind: plan.KindInterface, Type: typesys.Ref("shape")}
	_, _, err := reg.ResolveInterface(node)
	require.Error(t, err)
	assert.ErrorIs(t, err, generator.ErrSealedNoSubclasses)
}

func TestImplementationTable_PicksFirstBinding(t *testing.T) {
	table := generator.NewImplementationTable()
	table.Bind(typesys.Ref("shape"), typesys.Ref("circle"), typesys.Ref("square"))

	reg := generator.NewRegistry().WithInterfaceResolver(table)
	node := &plan.UnlinkedNode{Kind: plan.KindInterface, Type: typesys.Ref("shape")}

	concrete, source, err := reg.ResolveInterface(node)
	require.NoError(t, err)
	assert.Equal(t, typesys.TypeID("circle"), concrete.ID)
	assert.Equal(t, "default:implementation-table", source.String())
}

func TestImplementationTable_SealedWithNoSubclasses(t *testing.T) {
	table := generator.NewImplementationTable()
	table.Bind(typesys.Ref("shape"))

	node := &plan.UnlinkedNode{Kind: plan.KindInterface, Type: typesys.Ref("shape")}
	_, _, err := table.ResolveImplementation(node)
	require.Error(t, err)
	assert.ErrorIs(t, err, generator.ErrSealedNoSubclasses)

	var ire *generator.ImplementationResolutionError
	require.ErrorAs(t, err, &ire)
	assert.Equal(t, typesys.TypeID("shape"), ire.Interface.ID)
}

func TestImplementationTable_UnboundInterface(t *testing.T) {
	table := generator.NewImplementationTable()

	node := &plan.UnlinkedNode{Kind: plan.KindInterface, Type: typesys.Ref("shape")}
	_, _, err := table.ResolveImplementation(node)
	require.Error(t, err)
	assert.ErrorIs(t, err, typesys.ErrUnknownType)
}
