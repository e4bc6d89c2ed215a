package chain_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kontrakt-labs/kontrakt/pkg/chain"
	"github.com/kontrakt-labs/kontrakt/pkg/contracts"
	"github.com/kontrakt-labs/kontrakt/pkg/trace"
	"github.com/kontrakt-labs/kontrakt/pkg/typesys"
)

// recordingLeaf counts invocations and returns canned records.
type recordingLeaf struct {
	calls   int
	records []contracts.AssertionRecord
	err     error
}

func (l *recordingLeaf) ExecuteScenarios(context.Context, contracts.TestContext) ([]contracts.AssertionRecord, error) {
	l.calls++
	return l.records, l.err
}

// indexRecorder notes the link index it ran at, then proceeds.
type indexRecorder struct {
	seen *[]int
}

func (r indexRecorder) Intercept(ch *chain.Chain) ([]contracts.AssertionRecord, error) {
	*r.seen = append(*r.seen, ch.Index())
	return ch.Proceed(ch.Context())
}

// shortCircuit never proceeds.
type shortCircuit struct{}

func (shortCircuit) Intercept(*chain.Chain) ([]contracts.AssertionRecord, error) {
	return []contracts.AssertionRecord{{Status: contracts.AssertionPassed, Message: "short-circuited"}}, nil
}

func execContext(sink trace.Sink) *chain.ExecutionContext {
	return &chain.ExecutionContext{
		Ctx: context.Background(),
		Spec: contracts.TestSpecification{
			Target: typesys.Ref("orderService"),
			Modes:  []contracts.Mode{contracts.UserScenario()},
		},
		Sink: sink,
	}
}

func TestPipeline_EachInterceptorRunsOnceInOrder(t *testing.T) {
	var seen []int
	leaf := &recordingLeaf{}

	p := chain.NewPipeline(leaf,
		indexRecorder{seen: &seen},
		indexRecorder{seen: &seen},
		indexRecorder{seen: &seen},
	)

	_, err := p.Execute(execContext(trace.NopSink{}))
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 2}, seen, "three interceptors occupy links 0..2")
	assert.Equal(t, 1, leaf.calls, "the leaf is the final link")
}

func TestPipeline_NoInterceptorsRunsLeafDirectly(t *testing.T) {
	leaf := &recordingLeaf{records: []contracts.AssertionRecord{{Status: contracts.AssertionPassed}}}

	records, err := chain.NewPipeline(leaf).Execute(execContext(trace.NopSink{}))
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, 1, leaf.calls)
}

func TestPipeline_InterceptorThatDoesNotProceedBlocksTheTail(t *testing.T) {
	var seen []int
	leaf := &recordingLeaf{}

	p := chain.NewPipeline(leaf,
		indexRecorder{seen: &seen},
		shortCircuit{},
		indexRecorder{seen: &seen},
	)

	records, err := p.Execute(execContext(trace.NopSink{}))
	require.NoError(t, err)

	assert.Equal(t, []int{0}, seen, "links after the short circuit never run")
	assert.Equal(t, 0, leaf.calls)
	require.Len(t, records, 1)
	assert.Equal(t, "short-circuited", records[0].Message)
}

func TestPipeline_ReusableAcrossExecutions(t *testing.T) {
	var seen []int
	leaf := &recordingLeaf{}
	p := chain.NewPipeline(leaf, indexRecorder{seen: &seen})

	for i := 0; i < 3; i++ {
		_, err := p.Execute(execContext(trace.NopSink{}))
		require.NoError(t, err)
	}
	assert.Equal(t, []int{0, 0, 0}, seen)
	assert.Equal(t, 3, leaf.calls)
}

func TestResultResolver_EmitsVerdict(t *testing.T) {
	cases := []struct {
		name   string
		leaf   *recordingLeaf
		status string
	}{
		{
			name:   "passed",
			leaf:   &recordingLeaf{records: []contracts.AssertionRecord{{Status: contracts.AssertionPassed}}},
			status: "PASSED",
		},
		{
			name:   "failed assertion",
			leaf:   &recordingLeaf{records: []contracts.AssertionRecord{{Status: contracts.AssertionFailed}}},
			status: "FAILED",
		},
		{
			name:   "execution error",
			leaf:   &recordingLeaf{err: errors.New("boom")},
			status: "EXECUTION_ERROR",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sink := &trace.BufferSink{}
			ec := execContext(sink)
			ec.Fingerprint = "abc123"

			_, _ = chain.NewPipeline(tc.leaf, chain.ResultResolver{}).Execute(ec)

			events := sink.Events()
			require.Len(t, events, 1)
			verdict, ok := events[0].(trace.TestVerdict)
			require.True(t, ok)
			assert.Equal(t, tc.status, verdict.Status)
			assert.Equal(t, "abc123", verdict.Fingerprint)
		})
	}
}

func TestAuditing_TracesInvocationAndVerifications(t *testing.T) {
	leaf := &recordingLeaf{records: []contracts.AssertionRecord{
		{Status: contracts.AssertionPassed, Message: "returns a value"},
		{Status: contracts.AssertionFailed, Message: "is idempotent", Actual: "second call differed"},
	}}

	sink := &trace.BufferSink{}
	records, err := chain.NewPipeline(leaf, chain.Auditing{}).Execute(execContext(sink))
	require.NoError(t, err)
	require.Len(t, records, 2)

	events := sink.Events()
	require.Len(t, events, 3)

	exec, ok := events[0].(trace.ExecutionTrace)
	require.True(t, ok)
	assert.Equal(t, "orderService", exec.Method)

	v1 := events[1].(trace.VerificationTrace)
	assert.Equal(t, "returns a value", v1.Rule)
	assert.Equal(t, "PASSED", v1.Status)

	v2 := events[2].(trace.VerificationTrace)
	assert.Equal(t, "is idempotent", v2.Rule)
	assert.Equal(t, "FAILED", v2.Status)
	assert.Equal(t, "second call differed", v2.Detail)
}

func TestAuditing_TracesFailureWithBlame(t *testing.T) {
	leaf := &recordingLeaf{err: errors.New("connection reset")}

	sink := &trace.BufferSink{}
	_, err := chain.NewPipeline(leaf, chain.Auditing{}).Execute(execContext(sink))
	require.Error(t, err)

	events := sink.Events()
	require.Len(t, events, 2)

	exc, ok := events[1].(trace.ExceptionTrace)
	require.True(t, ok)
	assert.Equal(t, contracts.BlameInternalError, exc.Blame, "untyped errors are attributed to the engine")
	assert.Equal(t, "connection reset", exc.Message)
}
