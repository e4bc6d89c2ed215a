package chain

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kontrakt-labs/kontrakt/pkg/contracts"
)

const tracerName = "kontrakt.engine"

// Tracing opens one span per execution and annotates it with the target and
// the terminal status.
type Tracing struct {
	tracer trace.Tracer
}

// NewTracing builds the interceptor against the global tracer provider.
func NewTracing() *Tracing {
	return &Tracing{tracer: otel.Tracer(tracerName)}
}

// NewTracingWithProvider builds the interceptor against an explicit provider,
// used by tests.
func NewTracingWithProvider(tp trace.TracerProvider) *Tracing {
	return &Tracing{tracer: tp.Tracer(tracerName)}
}

func (t *Tracing) Intercept(ch *Chain) ([]contracts.AssertionRecord, error) {
	ec := ch.Context()

	ctx, span := t.tracer.Start(ec.Ctx, "kontrakt.execute",
		trace.WithAttributes(
			attribute.String("kontrakt.target", ec.Spec.Target.String()),
			attribute.Int("kontrakt.modes", len(ec.Spec.Modes)),
		),
	)
	defer span.End()

	inner := *ec
	inner.Ctx = ctx
	records, err := ch.Proceed(&inner)

	span.SetAttributes(attribute.Int("kontrakt.assertions", len(records)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(contracts.ClassifyBlame(err)))
	} else if anyFailed(records) {
		span.SetStatus(codes.Error, string(contracts.BlameTestFailure))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return records, err
}
