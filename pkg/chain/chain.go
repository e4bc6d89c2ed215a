// Package chain runs a specification through an ordered interceptor pipeline
// wrapped around a terminal scenario executor.
//
// The chain is immutable and reentrant: every Proceed call constructs the
// next link with an incremented index, so N interceptors plus the leaf yield
// exactly N+1 links per execution. An interceptor that does not call Proceed
// silently blocks everything inside it; that is the documented hazard of the
// pattern, not something the chain detects.
package chain

import (
	"context"
	"fmt"
	"time"

	"github.com/kontrakt-labs/kontrakt/pkg/contracts"
	"github.com/kontrakt-labs/kontrakt/pkg/trace"
	"github.com/kontrakt-labs/kontrakt/pkg/typesys"
)

// ExecutionContext is the state threaded through the pipeline.
type ExecutionContext struct {
	Ctx  context.Context
	Spec contracts.TestSpecification
	Test contracts.TestContext
	Sink trace.Sink

	// Fingerprint of the generated fixture tree, when one was produced.
	Fingerprint string

	// GenerateArgument synthesizes a deterministic method argument through
	// the generation pipeline; installed by the engine, used by leaves.
	GenerateArgument func(t typesys.TypeReference) (any, error)

	Verbose bool
}

// Interceptor observes, wraps, retries or annotates an execution. It must
// call ch.Proceed to continue the pipeline.
type Interceptor interface {
	Intercept(ch *Chain) ([]contracts.AssertionRecord, error)
}

// Pipeline is the immutable interceptor list plus the leaf executor,
// ordered outermost first.
type Pipeline struct {
	interceptors []Interceptor
	leaf         contracts.TestScenarioExecutor
}

func NewPipeline(leaf contracts.TestScenarioExecutor, interceptors ...Interceptor) *Pipeline {
	return &Pipeline{interceptors: interceptors, leaf: leaf}
}

// Execute runs the full pipeline for one context.
func (p *Pipeline) Execute(ec *ExecutionContext) ([]contracts.AssertionRecord, error) {
	root := &Chain{pipeline: p, index: 0, ec: ec}
	return root.dispatch()
}

// Chain is one link of the pipeline: an index-carrying continuation.
type Chain struct {
	pipeline *Pipeline
	index    int
	ec       *ExecutionContext
}

// Context returns the execution context at this link.
func (c *Chain) Context() *ExecutionContext { return c.ec }

// Index returns this link's position, 0 being the outermost interceptor.
func (c *Chain) Index() int { return c.index }

// Proceed continues the pipeline with the (possibly replaced) context.
func (c *Chain) Proceed(ec *ExecutionContext) ([]contracts.AssertionRecord, error) {
	next := &Chain{pipeline: c.pipeline, index: c.index + 1, ec: ec}
	return next.dispatch()
}

func (c *Chain) dispatch() ([]contracts.AssertionRecord, error) {
	if c.index < len(c.pipeline.interceptors) {
		return c.pipeline.interceptors[c.index].Intercept(c)
	}
	return c.pipeline.leaf.ExecuteScenarios(c.ec.Ctx, c.ec.Test)
}

// ResultResolver is the outermost interceptor: it times the execution and
// emits the terminal verdict event.
type ResultResolver struct{}

func (ResultResolver) Intercept(ch *Chain) ([]contracts.AssertionRecord, error) {
	ec := ch.Context()
	start := time.Now()

	records, err := ch.Proceed(ec)
	elapsed := time.Since(start)

	status := string(contracts.StatusPassed)
	switch {
	case err != nil:
		status = string(contracts.StatusExecutionError)
	case anyFailed(records):
		status = string(contracts.StatusFailed)
	}

	_ = ec.Sink.Emit(trace.TestVerdict{
		At:          time.Now().UTC(),
		Status:      status,
		Duration:    elapsed,
		Fingerprint: ec.Fingerprint,
	})
	return records, err
}

// Auditing traces the invocation, every verified rule, and any failure.
type Auditing struct{}

func (Auditing) Intercept(ch *Chain) ([]contracts.AssertionRecord, error) {
	ec := ch.Context()
	start := time.Now()

	records, err := ch.Proceed(ec)

	_ = ec.Sink.Emit(trace.ExecutionTrace{
		At:       time.Now().UTC(),
		Method:   ec.Spec.Target.String(),
		Duration: time.Since(start),
	})
	for _, r := range records {
		_ = ec.Sink.Emit(trace.VerificationTrace{
			At:     time.Now().UTC(),
			Rule:   r.Message,
			Status: string(r.Status),
			Detail: r.Actual,
		})
	}
	if err != nil {
		_ = ec.Sink.Emit(trace.ExceptionTrace{
			At:      time.Now().UTC(),
			Blame:   contracts.ClassifyBlame(err),
			ErrType: errType(err),
			Message: err.Error(),
			Frames:  trace.FilterFrames(trace.CaptureFrames(1), ec.Verbose),
		})
	}
	return records, err
}

func anyFailed(records []contracts.AssertionRecord) bool {
	for _, r := range records {
		if r.Status == contracts.AssertionFailed {
			return true
		}
	}
	return false
}

func errType(err error) string {
	return fmt.Sprintf("%T", err)
}
