package factory_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kontrakt-labs/kontrakt/pkg/contracts"
	"github.com/kontrakt-labs/kontrakt/pkg/factory"
	"github.com/kontrakt-labs/kontrakt/pkg/generator"
	"github.com/kontrakt-labs/kontrakt/pkg/trace"
	"github.com/kontrakt-labs/kontrakt/pkg/typesys"
)

type leafService struct{}

type midService struct{ leaf *leafService }

type topService struct{ a, b *midService }

func composite(reg *typesys.Registry, id string) typesys.TypeReference {
	ref := typesys.Ref(id)
	reg.Register(ref, &typesys.TypeDescriptor{Kind: typesys.KindComposite})
	return ref
}

func newFactory(reg *typesys.Registry, ctors *factory.ConstructorRegistry) *factory.Factory {
	return factory.New(factory.Config{
		Resolver:     reg,
		Constructors: ctors,
		Mocks:        factory.SimpleMockingEngine{},
		Scenario:     factory.SimpleScenarioControl{},
		Registry:     generator.NewRegistry(generator.DefaultStrategies()...),
	})
}

func spec(target typesys.TypeReference, deps ...contracts.DependencyMetadata) contracts.TestSpecification {
	return contracts.TestSpecification{
		Target:               target,
		Modes:                []contracts.Mode{contracts.UserScenario()},
		RequiredDependencies: deps,
	}
}

func TestFactory_DiamondDependencySharesOneInstance(t *testing.T) {
	reg := typesys.NewRegistry()
	leaf := composite(reg, "leaf")
	a := composite(reg, "a")
	b := composite(reg, "b")
	top := composite(reg, "top")

	ctors := factory.NewConstructorRegistry()
	ctors.Register(leaf, factory.Constructor{
		New: func([]any) (any, error) { return &leafService{}, nil },
	})
	ctors.Register(a, factory.Constructor{
		Params: []typesys.TypeReference{leaf},
		New:    func(args []any) (any, error) { return &midService{leaf: args[0].(*leafService)}, nil },
	})
	ctors.Register(b, factory.Constructor{
		Params: []typesys.TypeReference{leaf},
		New:    func(args []any) (any, error) { return &midService{leaf: args[0].(*leafService)}, nil },
	})
	ctors.Register(top, factory.Constructor{
		Params: []typesys.TypeReference{a, b},
		New: func(args []any) (any, error) {
			return &topService{a: args[0].(*midService), b: args[1].(*midService)}, nil
		},
	})

	ectx, err := newFactory(reg, ctors).Create(spec(top), generator.NewContext(1), nil)
	require.NoError(t, err)

	svc := ectx.Target().(*topService)
	assert.Same(t, svc.a.leaf, svc.b.leaf, "both branches of the diamond must see the same instance")
	assert.Equal(t, 4, ectx.DependencyCount())
}

func TestFactory_CircularDependencyNamesTheCycle(t *testing.T) {
	reg := typesys.NewRegistry()
	a := composite(reg, "a")
	b := composite(reg, "b")

	ctors := factory.NewConstructorRegistry()
	ctors.Register(a, factory.Constructor{
		Params: []typesys.TypeReference{b},
		New:    func(args []any) (any, error) { return &struct{}{}, nil },
	})
	ctors.Register(b, factory.Constructor{
		Params: []typesys.TypeReference{a},
		New:    func(args []any) (any, error) { return &struct{}{}, nil },
	})

	_, err := newFactory(reg, ctors).Create(spec(a), generator.NewContext(1), nil)
	require.Error(t, err)

	var ce *factory.ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, err.Error(), "a -> b -> a")
	assert.Equal(t, contracts.BlameSetupFailure, contracts.ClassifyBlame(err))
}

func TestFactory_SelfCycle(t *testing.T) {
	reg := typesys.NewRegistry()
	a := composite(reg, "a")

	ctors := factory.NewConstructorRegistry()
	ctors.Register(a, factory.Constructor{
		Params: []typesys.TypeReference{a},
		New:    func(args []any) (any, error) { return &struct{}{}, nil },
	})

	_, err := newFactory(reg, ctors).Create(spec(a), generator.NewContext(1), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a -> a")
}

func TestFactory_StrategyDispatch(t *testing.T) {
	reg := typesys.NewRegistry()
	dep := typesys.Ref("repo")
	reg.Register(dep, &typesys.TypeDescriptor{Kind: typesys.KindInterface})
	top := composite(reg, "top")

	ctors := factory.NewConstructorRegistry()
	ctors.Register(top, factory.Constructor{
		Params: []typesys.TypeReference{dep},
		New:    func(args []any) (any, error) { return args[0], nil },
	})

	cases := []struct {
		name     string
		strategy contracts.MockStrategy
		check    func(t *testing.T, v any)
	}{
		{
			name:     "stateless mock",
			strategy: contracts.MockStrategy{Kind: contracts.StrategyStatelessMock},
			check: func(t *testing.T, v any) {
				_, ok := v.(*factory.StatelessMock)
				assert.True(t, ok, "got %T", v)
			},
		},
		{
			name:     "stateful fake",
			strategy: contracts.MockStrategy{Kind: contracts.StrategyStatefulFake},
			check: func(t *testing.T, v any) {
				fake, ok := v.(*factory.StatefulFake)
				require.True(t, ok, "got %T", v)
				assert.NotNil(t, fake.Store)
			},
		},
		{
			name:     "environment",
			strategy: contracts.MockStrategy{Kind: contracts.StrategyEnvironment, EnvironmentKind: "clock"},
			check: func(t *testing.T, v any) {
				env, ok := v.(*factory.EnvironmentStub)
				require.True(t, ok, "got %T", v)
				assert.Equal(t, "clock", env.Kind)
				assert.NotEmpty(t, env.ID)
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := spec(top, contracts.DependencyMetadata{Name: "repo", Type: dep, Strategy: tc.strategy})
			ectx, err := newFactory(reg, ctors).Create(s, generator.NewContext(1), nil)
			require.NoError(t, err)

			v, ok := ectx.Dependency(dep)
			require.True(t, ok)
			tc.check(t, v)
		})
	}
}

func TestFactory_RealStrategyResolvesNamedImplementation(t *testing.T) {
	reg := typesys.NewRegistry()
	iface := typesys.Ref("repo")
	reg.Register(iface, &typesys.TypeDescriptor{Kind: typesys.KindInterface})
	impl := composite(reg, "sqlRepo")
	top := composite(reg, "top")

	ctors := factory.NewConstructorRegistry()
	ctors.Register(impl, factory.Constructor{
		New: func([]any) (any, error) { return &leafService{}, nil },
	})
	ctors.Register(top, factory.Constructor{
		Params: []typesys.TypeReference{iface},
		New:    func(args []any) (any, error) { return args[0], nil },
	})

	s := spec(top, contracts.DependencyMetadata{
		Name: "repo",
		Type: iface,
		Strategy: contracts.MockStrategy{
			Kind:           contracts.StrategyReal,
			Implementation: impl,
		},
	})

	ectx, err := newFactory(reg, ctors).Create(s, generator.NewContext(1), nil)
	require.NoError(t, err)

	v, ok := ectx.Dependency(iface)
	require.True(t, ok)
	_, isReal := v.(*leafService)
	assert.True(t, isReal, "got %T", v)
}

func TestFactory_InterfaceWithoutConstructorGetsMock(t *testing.T) {
	reg := typesys.NewRegistry()
	iface := typesys.Ref("notifier")
	reg.Register(iface, &typesys.TypeDescriptor{Kind: typesys.KindInterface})
	top := composite(reg, "top")

	ctors := factory.NewConstructorRegistry()
	ctors.Register(top, factory.Constructor{
		Params: []typesys.TypeReference{iface},
		New:    func(args []any) (any, error) { return args[0], nil },
	})

	ectx, err := newFactory(reg, ctors).Create(spec(top), generator.NewContext(1), nil)
	require.NoError(t, err)

	v, _ := ectx.Dependency(iface)
	mock, ok := v.(*factory.StatelessMock)
	require.True(t, ok, "got %T", v)
	assert.Equal(t, iface.ID, mock.Type.ID)
}

func TestFactory_AtomicDependencyGetsGeneratedFixture(t *testing.T) {
	reg := typesys.NewRegistry()
	str := typesys.Ref("string")
	reg.Register(str, &typesys.TypeDescriptor{Kind: typesys.KindAtomic})
	top := composite(reg, "top")

	ctors := factory.NewConstructorRegistry()
	ctors.Register(top, factory.Constructor{
		Params: []typesys.TypeReference{str},
		New:    func(args []any) (any, error) { return args[0], nil },
	})

	ectx, err := newFactory(reg, ctors).Create(spec(top), generator.NewContext(42), nil)
	require.NoError(t, err)

	v, ok := ectx.Dependency(str)
	require.True(t, ok)
	generated, isString := v.(string)
	require.True(t, isString, "got %T", v)
	assert.NotEmpty(t, generated)
}

func TestFactory_SeedReachesGeneratedDependencies(t *testing.T) {
	reg := typesys.NewRegistry()
	str := typesys.Ref("string")
	reg.Register(str, &typesys.TypeDescriptor{Kind: typesys.KindAtomic})
	top := composite(reg, "top")

	ctors := factory.NewConstructorRegistry()
	ctors.Register(top, factory.Constructor{
		Params: []typesys.TypeReference{str},
		New:    func(args []any) (any, error) { return args[0], nil },
	})

	gen := func(seed uint64) string {
		ectx, err := newFactory(reg, ctors).Create(spec(top), generator.NewContext(seed), nil)
		require.NoError(t, err)
		v, ok := ectx.Dependency(str)
		require.True(t, ok)
		return v.(string)
	}

	assert.Equal(t, gen(7), gen(7), "equal seeds must yield equal dependency fixtures")
	assert.NotEqual(t, gen(7), gen(8))
}

func TestFactory_ConstructorFailureReportsRootCause(t *testing.T) {
	base := errors.New("connection refused")

	reg := typesys.NewRegistry()
	top := composite(reg, "top")

	ctors := factory.NewConstructorRegistry()
	ctors.Register(top, factory.Constructor{
		New: func([]any) (any, error) {
			return nil, fmt.Errorf("invoking constructor: %w", base)
		},
	})

	_, err := newFactory(reg, ctors).Create(spec(top), generator.NewContext(1), nil)
	require.Error(t, err)

	var ce *factory.ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, base, ce.Err, "invocation wrappers are peeled to the true cause")
}

func TestFactory_NoConstructorForConcreteType(t *testing.T) {
	reg := typesys.NewRegistry()
	top := composite(reg, "top")

	_, err := newFactory(reg, factory.NewConstructorRegistry()).Create(spec(top), generator.NewContext(1), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no constructor registered")
}

func TestFactory_InvalidSpecification(t *testing.T) {
	reg := typesys.NewRegistry()
	top := composite(reg, "top")

	_, err := newFactory(reg, factory.NewConstructorRegistry()).Create(
		contracts.TestSpecification{Target: top}, generator.NewContext(1), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, contracts.ErrNoModes)
}

func TestFactory_EmitsDependencyResolutionEvents(t *testing.T) {
	reg := typesys.NewRegistry()
	top := composite(reg, "top")

	ctors := factory.NewConstructorRegistry()
	ctors.Register(top, factory.Constructor{
		New: func([]any) (any, error) { return &topService{}, nil },
	})

	sink := &trace.BufferSink{}
	_, err := newFactory(reg, ctors).Create(spec(top), generator.NewContext(1), sink)
	require.NoError(t, err)

	events := sink.Events()
	require.NotEmpty(t, events)
	dd, ok := events[0].(trace.DesignDecision)
	require.True(t, ok)
	assert.Equal(t, "top", dd.Subject)
	assert.Equal(t, "dependency-resolution", dd.Strategy)
}

func TestFactory_ScenarioBoundPerContext(t *testing.T) {
	reg := typesys.NewRegistry()
	top := composite(reg, "top")

	ctors := factory.NewConstructorRegistry()
	ctors.Register(top, factory.Constructor{
		New: func([]any) (any, error) { return &topService{}, nil },
	})

	f := newFactory(reg, ctors)
	first, err := f.Create(spec(top), generator.NewContext(1), nil)
	require.NoError(t, err)
	second, err := f.Create(spec(top), generator.NewContext(1), nil)
	require.NoError(t, err)

	require.NotNil(t, first.Scenario())
	assert.NotSame(t, first.Scenario(), second.Scenario(), "scenario state must not leak across executions")
}
