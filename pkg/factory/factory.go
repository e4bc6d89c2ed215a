package factory

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/kontrakt-labs/kontrakt/pkg/contracts"
	"github.com/kontrakt-labs/kontrakt/pkg/generator"
	"github.com/kontrakt-labs/kontrakt/pkg/link"
	"github.com/kontrakt-labs/kontrakt/pkg/plan"
	"github.com/kontrakt-labs/kontrakt/pkg/trace"
	"github.com/kontrakt-labs/kontrakt/pkg/typesys"
	"github.com/kontrakt-labs/kontrakt/pkg/vm"
)

// ConfigurationError is a user-facing setup failure: a dependency cycle, a
// missing constructor, or an unresolvable parameter type.
type ConfigurationError struct {
	Type  typesys.TypeReference
	Cycle []typesys.TypeReference
	Err   error
}

func (e *ConfigurationError) Error() string {
	if len(e.Cycle) > 0 {
		names := make([]string, len(e.Cycle))
		for i, t := range e.Cycle {
			names[i] = t.String()
		}
		return fmt.Sprintf("factory: circular dependency: %s", strings.Join(names, " -> "))
	}
	return fmt.Sprintf("factory: cannot resolve %s: %v", e.Type, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func (e *ConfigurationError) Blame() contracts.Blame { return contracts.BlameSetupFailure }

// Constructor describes how to instantiate a type from resolved parameters.
type Constructor struct {
	Params []typesys.TypeReference
	New    func(args []any) (any, error)
}

// ConstructorRegistry is the explicit-registration constructor source,
// mirroring the registration-backed type resolver.
type ConstructorRegistry struct {
	mu    sync.RWMutex
	ctors map[typesys.TypeID]Constructor
}

func NewConstructorRegistry() *ConstructorRegistry {
	return &ConstructorRegistry{ctors: make(map[typesys.TypeID]Constructor)}
}

func (r *ConstructorRegistry) Register(t typesys.TypeReference, c Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctors[t.ID] = c
}

func (r *ConstructorRegistry) Lookup(t typesys.TypeReference) (Constructor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.ctors[t.ID]
	return c, ok
}

// Factory resolves a target type's constructor dependency graph into an
// EphemeralTestContext.
type Factory struct {
	resolver     typesys.Resolver
	constructors *ConstructorRegistry
	mocks        contracts.MockingEngine
	scenario     contracts.ScenarioControl

	planner  *plan.Planner
	linker   *link.Linker
	machine  *vm.VM
	registry *generator.Registry
}

// Config wires the factory's collaborators.
type Config struct {
	Resolver     typesys.Resolver
	Constructors *ConstructorRegistry
	Mocks        contracts.MockingEngine
	Scenario     contracts.ScenarioControl
	Registry     *generator.Registry
	Planner      *plan.Planner
}

func New(cfg Config) *Factory {
	planner := cfg.Planner
	if planner == nil {
		planner = plan.NewPlanner(cfg.Resolver)
	}
	return &Factory{
		resolver:     cfg.Resolver,
		constructors: cfg.Constructors,
		mocks:        cfg.Mocks,
		scenario:     cfg.Scenario,
		planner:      planner,
		linker:       link.NewLinker(cfg.Registry, planner),
		machine:      vm.New(),
		registry:     cfg.Registry,
	}
}

// Create builds the ephemeral context for one specification and resolves the
// target instance into it. Dependency fixtures draw from gctx, so the caller's
// seed policy governs everything the factory generates.
func (f *Factory) Create(spec contracts.TestSpecification, gctx generator.Context, sink trace.Sink) (*EphemeralTestContext, error) {
	if err := spec.Validate(); err != nil {
		return nil, &ConfigurationError{Type: spec.Target, Err: err}
	}
	if sink == nil {
		sink = trace.NopSink{}
	}

	ectx := &EphemeralTestContext{
		deps:  make(map[typesys.TypeID]any),
		mocks: f.mocks,
		sink:  sink,
	}
	if f.scenario != nil {
		ectx.scenario = f.scenario.CreateScenarioContext()
	}

	strategies := make(map[typesys.TypeID]contracts.MockStrategy, len(spec.RequiredDependencies))
	for _, d := range spec.RequiredDependencies {
		strategies[d.Type.ID] = d.Strategy
	}

	target, err := f.resolve(ectx, gctx, strategies, spec.Target, nil)
	if err != nil {
		return nil, err
	}
	ectx.target = target
	return ectx, nil
}

// resolve is the depth-first dependency resolution. path is the explicit
// in-progress set used for cycle detection.
func (f *Factory) resolve(ectx *EphemeralTestContext, gctx generator.Context, strategies map[typesys.TypeID]contracts.MockStrategy, t typesys.TypeReference, path []typesys.TypeReference) (any, error) {
	for _, p := range path {
		if p.ID == t.ID {
			return nil, &ConfigurationError{Type: t, Cycle: append(append([]typesys.TypeReference{}, path...), t)}
		}
	}

	// Test-scoped singleton: every requester of a type shares one instance,
	// so a stubbed mock is visible to all of its consumers.
	if v, ok := ectx.deps[t.ID]; ok {
		return v, nil
	}

	instance, err := f.instantiate(ectx, gctx, strategies, t, path)
	if err != nil {
		return nil, err
	}
	ectx.deps[t.ID] = instance
	_ = ectx.sink.Emit(trace.DesignDecision{
		At:       gctx.Clock(),
		Subject:  t.String(),
		Strategy: "dependency-resolution",
		Value:    fmt.Sprintf("%T", instance),
	})
	return instance, nil
}

func (f *Factory) instantiate(ectx *EphemeralTestContext, gctx generator.Context, strategies map[typesys.TypeID]contracts.MockStrategy, t typesys.TypeReference, path []typesys.TypeReference) (any, error) {
	if strategy, ok := strategies[t.ID]; ok {
		switch strategy.Kind {
		case contracts.StrategyStatelessMock:
			return f.mocks.CreateMock(t)
		case contracts.StrategyStatefulFake:
			return f.mocks.CreateFake(t)
		case contracts.StrategyEnvironment:
			return f.mocks.CreateEnvironment(strategy.EnvironmentKind, t)
		case contracts.StrategyReal:
			return f.resolve(ectx, gctx, strategies, strategy.Implementation, append(path, t))
		}
	}

	desc, err := f.resolver.Resolve(t)
	if err != nil {
		return nil, &ConfigurationError{Type: t, Err: err}
	}

	// Basic value types try fixture generation first, falling back to the
	// generic constructor path.
	if desc.Kind == typesys.KindAtomic {
		if v, err := f.generateFixture(gctx, t); err == nil {
			return v, nil
		}
	}

	if ctor, ok := f.constructors.Lookup(t); ok {
		args := make([]any, len(ctor.Params))
		for i, p := range ctor.Params {
			arg, err := f.resolve(ectx, gctx, strategies, p, append(path, t))
			if err != nil {
				return nil, err
			}
			args[i] = arg
		}
		instance, err := ctor.New(args)
		if err != nil {
			// Invocation wrappers are peeled to the true cause before the
			// failure is attributed to this class.
			return nil, &ConfigurationError{Type: t, Err: rootCause(err)}
		}
		return instance, nil
	}

	// No constructor. Interfaces and abstract types get a mock stand-in.
	if desc.Kind == typesys.KindInterface || desc.Kind == typesys.KindAbstract {
		return f.mocks.CreateMock(t)
	}
	return nil, &ConfigurationError{Type: t, Err: fmt.Errorf("no constructor registered")}
}

// generateFixture runs the full plan -> link -> execute pipeline for a type.
func (f *Factory) generateFixture(gctx generator.Context, t typesys.TypeReference) (any, error) {
	node, err := f.planner.Plan(t)
	if err != nil {
		return nil, err
	}
	exec, err := f.linker.Link(node, "", link.NewContext(gctx.Rand))
	if err != nil {
		return nil, err
	}
	return f.machine.Execute(gctx, exec)
}

// rootCause unwraps to the innermost error.
func rootCause(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}
