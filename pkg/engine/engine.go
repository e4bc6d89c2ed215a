// Package engine wires the generation pipeline, the instance factory, the
// interceptor chain and the trace subsystem into a runnable whole: a
// specification goes in, a terminal result and an audit trail come out.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kontrakt-labs/kontrakt/pkg/chain"
	"github.com/kontrakt-labs/kontrakt/pkg/compliance"
	"github.com/kontrakt-labs/kontrakt/pkg/config"
	"github.com/kontrakt-labs/kontrakt/pkg/contracts"
	"github.com/kontrakt-labs/kontrakt/pkg/factory"
	"github.com/kontrakt-labs/kontrakt/pkg/generator"
	"github.com/kontrakt-labs/kontrakt/pkg/link"
	"github.com/kontrakt-labs/kontrakt/pkg/plan"
	"github.com/kontrakt-labs/kontrakt/pkg/trace"
	"github.com/kontrakt-labs/kontrakt/pkg/typesys"
	"github.com/kontrakt-labs/kontrakt/pkg/vm"
)

// Config assembles an Engine.
type Config struct {
	Profile   *config.Profile
	Resolver  typesys.Resolver
	Registry  *generator.Registry
	Factory   *factory.Factory
	Leaf      contracts.TestScenarioExecutor
	Publisher contracts.ResultPublisher
	Sinks     *trace.SinkPool
	Rules     map[typesys.TypeID][]compliance.Rule
	Logger    *slog.Logger
}

// Engine executes specifications across parallel worker lanes. Each test owns
// its context exclusively; the only shared state is the read-only registry
// and the sink pool's creation lock.
type Engine struct {
	profile   *config.Profile
	resolver  typesys.Resolver
	registry  *generator.Registry
	factory   *factory.Factory
	leaf      contracts.TestScenarioExecutor
	publisher contracts.ResultPublisher
	sinks     *trace.SinkPool
	rules     map[typesys.TypeID][]compliance.Rule
	checker   *compliance.Checker
	planner   *plan.Planner
	linker    *link.Linker
	machine   *vm.VM
	logger    *slog.Logger
	runID     string
}

func New(cfg Config) (*Engine, error) {
	if cfg.Profile == nil {
		cfg.Profile = config.DefaultProfile()
	}
	if err := cfg.Profile.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default().With("component", "engine")
	}
	if cfg.Sinks == nil {
		cfg.Sinks = trace.NewSinkPool(cfg.Profile.TraceDir)
	}

	checker, err := compliance.NewChecker()
	if err != nil {
		return nil, err
	}

	planner := plan.NewPlanner(cfg.Resolver)
	return &Engine{
		profile:   cfg.Profile,
		resolver:  cfg.Resolver,
		registry:  cfg.Registry,
		factory:   cfg.Factory,
		leaf:      cfg.Leaf,
		publisher: cfg.Publisher,
		sinks:     cfg.Sinks,
		rules:     cfg.Rules,
		checker:   checker,
		planner:   planner,
		linker:    link.NewLinker(cfg.Registry, planner),
		machine:   vm.New(),
		logger:    cfg.Logger,
		runID:     uuid.NewString(),
	}, nil
}

// RunID identifies this engine instance's run in published results.
func (e *Engine) RunID() string { return e.runID }

// Run executes all specifications and returns results in input order.
func (e *Engine) Run(ctx context.Context, specs []contracts.TestSpecification) ([]*contracts.TestResult, error) {
	type job struct {
		index int
		spec  contracts.TestSpecification
	}

	jobs := make(chan job)
	results := make([]*contracts.TestResult, len(specs))

	workers := e.profile.Workers
	if workers > len(specs) && len(specs) > 0 {
		workers = len(specs)
	}

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(id trace.WorkerID) {
			defer wg.Done()

			sink, err := e.sinks.Sink(id)
			if err != nil {
				e.logger.Error("sink unavailable, tracing disabled for lane",
					"worker", int(id), "error", err)
				sink = trace.NopSink{}
			}
			for j := range jobs {
				result := e.runOne(ctx, j.spec, sink)
				results[j.index] = result
				if e.publisher != nil {
					if err := e.publisher.Publish(ctx, result); err != nil {
						e.logger.Error("publish failed", "target", j.spec.Target.String(), "error", err)
					}
				}
			}
		}(trace.WorkerID(w))
	}

	for i, s := range specs {
		jobs <- job{index: i, spec: s}
	}
	close(jobs)
	wg.Wait()

	return results, nil
}

// runOne executes a single specification inside one worker lane.
func (e *Engine) runOne(ctx context.Context, spec contracts.TestSpecification, sink trace.Sink) *contracts.TestResult {
	start := time.Now()

	terminal := func(err error) *contracts.TestResult {
		blame := contracts.ClassifyBlame(err)
		_ = sink.Emit(trace.ExceptionTrace{
			At:      time.Now().UTC(),
			Blame:   blame,
			ErrType: fmt.Sprintf("%T", err),
			Message: err.Error(),
			Frames:  trace.FilterFrames(trace.CaptureFrames(1), e.profile.Verbose),
		})
		return &contracts.TestResult{
			Target:   spec.Target,
			Status:   contracts.StatusExecutionError,
			Blame:    blame,
			Duration: time.Since(start),
			Err:      err,
		}
	}

	seed := e.effectiveSeed(spec)
	gctx := generator.NewContext(seed)

	// Create validates the specification and attributes failures to setup.
	// Sharing gctx keeps dependency fixtures on the run's seed policy.
	tc, err := e.factory.Create(spec, gctx, sink)
	if err != nil {
		return terminal(err)
	}

	// Pre-generate the fixture tree for a data-compliance mode so its
	// fingerprint lands in the verdict event.
	var (
		fingerprint string
		compRecords []contracts.AssertionRecord
	)
	for _, mode := range spec.Modes {
		if mode.Kind != contracts.ModeDataCompliance {
			continue
		}
		value, err := e.generate(gctx, mode.DataType, sink)
		if err != nil {
			return terminal(err)
		}
		fingerprint, err = vm.Fingerprint(value)
		if err != nil {
			return terminal(err)
		}
		records, err := e.checker.Check(mode.DataType, value, e.rules[mode.DataType.ID])
		if err != nil {
			return terminal(err)
		}
		compRecords = append(compRecords, records...)
	}

	leaf := e.leaf
	if leaf == nil {
		leaf = staticLeaf(compRecords)
		compRecords = nil
	}

	pipeline := chain.NewPipeline(leaf,
		chain.ResultResolver{},
		chain.NewTracing(),
		chain.Auditing{},
	)

	ec := &chain.ExecutionContext{
		Ctx:         ctx,
		Spec:        spec,
		Test:        tc,
		Sink:        sink,
		Fingerprint: fingerprint,
		Verbose:     e.profile.Verbose,
		GenerateArgument: func(t typesys.TypeReference) (any, error) {
			return e.generate(gctx, t, sink)
		},
	}

	records, err := pipeline.Execute(ec)
	records = append(records, compRecords...)

	result := &contracts.TestResult{
		Target:      spec.Target,
		Records:     records,
		Duration:    time.Since(start),
		Fingerprint: fingerprint,
		Err:         err,
	}
	switch {
	case err != nil:
		result.Status = contracts.StatusExecutionError
		result.Blame = contracts.ClassifyBlame(err)
	case anyFailed(records):
		result.Status = contracts.StatusFailed
		result.Blame = contracts.BlameTestFailure
	default:
		result.Status = contracts.StatusPassed
	}
	return result
}

// generate runs plan -> link -> execute for one type, emitting one DESIGN
// event per linked node.
func (e *Engine) generate(gctx generator.Context, t typesys.TypeReference, sink trace.Sink) (any, error) {
	node, err := e.planner.Plan(t)
	if err != nil {
		return nil, err
	}

	lctx := link.NewContext(gctx.Rand)
	lctx.MinSize = e.profile.SizeBounds.Min
	lctx.MaxSize = e.profile.SizeBounds.Max

	exec, err := e.linker.Link(node, "", lctx)
	if err != nil {
		return nil, err
	}
	e.emitDesign(sink, exec, gctx)

	return e.machine.Execute(gctx, exec)
}

func (e *Engine) emitDesign(sink trace.Sink, node *link.ExecutableNode, gctx generator.Context) {
	_ = sink.Emit(trace.DesignDecision{
		At:       gctx.Clock(),
		Subject:  node.Path,
		Strategy: node.Source.String(),
		Value:    node.Type.String(),
	})
	for _, f := range node.Fields {
		e.emitDesign(sink, f.Node, gctx)
	}
	for _, c := range node.Children {
		e.emitDesign(sink, c, gctx)
	}
	for _, entry := range node.Entries {
		e.emitDesign(sink, entry.Key, gctx)
		e.emitDesign(sink, entry.Value, gctx)
	}
	if node.Impl != nil {
		e.emitDesign(sink, node.Impl, gctx)
	}
}

func (e *Engine) effectiveSeed(spec contracts.TestSpecification) uint64 {
	if spec.Seed != nil {
		return *spec.Seed
	}
	if e.profile.Seed != nil {
		return *e.profile.Seed
	}
	return uint64(time.Now().UnixNano())
}

// staticLeaf returns precomputed records; used when no external leaf executor
// is configured and compliance checking is the whole scenario.
type staticLeaf []contracts.AssertionRecord

func (l staticLeaf) ExecuteScenarios(context.Context, contracts.TestContext) ([]contracts.AssertionRecord, error) {
	return l, nil
}

func anyFailed(records []contracts.AssertionRecord) bool {
	for _, r := range records {
		if r.Status == contracts.AssertionFailed {
			return true
		}
	}
	return false
}
