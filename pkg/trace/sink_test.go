package trace_test

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kontrakt-labs/kontrakt/pkg/trace"
)

func TestSinkPool_OneSinkPerWorker(t *testing.T) {
	pool := trace.NewSinkPool(t.TempDir())
	defer pool.Close()

	a, err := pool.Sink(0)
	require.NoError(t, err)
	b, err := pool.Sink(0)
	require.NoError(t, err)
	other, err := pool.Sink(1)
	require.NoError(t, err)

	assert.Same(t, a, b, "repeated requests return the worker's own sink")
	assert.NotSame(t, a, other)
}

func TestSinkPool_NegativeWorkerID(t *testing.T) {
	pool := trace.NewSinkPool(t.TempDir())

	_, err := pool.Sink(-1)
	require.Error(t, err)
	assert.ErrorIs(t, err, trace.ErrNegativeWorkerID)
}

func TestSinkPool_WritesWorkerFiles(t *testing.T) {
	dir := t.TempDir()
	pool := trace.NewSinkPool(dir)

	sink, err := pool.Sink(3)
	require.NoError(t, err)
	require.NoError(t, sink.Emit(trace.TestVerdict{At: time.Now(), Status: "PASSED"}))
	require.NoError(t, pool.Close())

	raw, err := os.ReadFile(filepath.Join(dir, "worker-3.ndjson"))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "RESULT", decoded["phase"])
}

func TestSinkPool_ConcurrentWorkersNeverInterleave(t *testing.T) {
	dir := t.TempDir()
	pool := trace.NewSinkPool(dir)

	const workers = 8
	const eventsPerWorker = 200

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(id trace.WorkerID) {
			defer wg.Done()
			sink, err := pool.Sink(id)
			if !assert.NoError(t, err) {
				return
			}
			for i := 0; i < eventsPerWorker; i++ {
				_ = sink.Emit(trace.DesignDecision{
					At:      time.Now(),
					Subject: "field",
					Value:   "value with \"quotes\" and\nnewlines",
				})
			}
		}(trace.WorkerID(w))
	}
	wg.Wait()
	require.NoError(t, pool.Close())

	for w := 0; w < workers; w++ {
		path := filepath.Join(dir, "worker-"+string(rune('0'+w))+".ndjson")
		f, err := os.Open(path)
		require.NoError(t, err)

		lines := 0
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			var decoded map[string]any
			require.NoError(t, json.Unmarshal(scanner.Bytes(), &decoded), "worker %d emitted a torn line", w)
			lines++
		}
		require.NoError(t, scanner.Err())
		require.NoError(t, f.Close())
		assert.Equal(t, eventsPerWorker, lines)
	}
}

func TestSinkPool_CloseIsIdempotent(t *testing.T) {
	pool := trace.NewSinkPool(t.TempDir())
	_, err := pool.Sink(0)
	require.NoError(t, err)

	require.NoError(t, pool.Close())
	require.NoError(t, pool.Close())
}

func TestNopSink(t *testing.T) {
	var s trace.NopSink
	assert.NoError(t, s.Emit(trace.TestVerdict{}))
	assert.NoError(t, s.Close())
}

func TestBufferSink_CollectsEventsAndLines(t *testing.T) {
	sink := &trace.BufferSink{}

	require.NoError(t, sink.Emit(trace.DesignDecision{At: time.Now(), Subject: "a"}))
	require.NoError(t, sink.Emit(trace.TestVerdict{At: time.Now(), Status: "PASSED"}))

	events := sink.Events()
	require.Len(t, events, 2)
	assert.Equal(t, trace.PhaseDesign, events[0].Phase())
	assert.Equal(t, trace.PhaseResult, events[1].Phase())

	lines := sink.Lines()
	assert.Equal(t, 2, countLines(lines))
}

func countLines(b []byte) int {
	n := 0
	for _, c := range b {
		if c == '\n' {
			n++
		}
	}
	return n
}

func TestFilterFrames(t *testing.T) {
	frames := []string{
		"github.com/kontrakt-labs/kontrakt/pkg/chain.Auditing.Intercept (chain.go:120)",
		"example.com/app/service.Save (service.go:42)",
		"runtime.goexit (asm_amd64.s:1700)",
	}

	filtered := trace.FilterFrames(frames, false)
	require.Len(t, filtered, 1)
	assert.Contains(t, filtered[0], "example.com/app")

	verbose := trace.FilterFrames(frames, true)
	assert.Len(t, verbose, 3)
}

func TestCaptureFrames_IncludesCaller(t *testing.T) {
	frames := trace.CaptureFrames(0)
	require.NotEmpty(t, frames)
	assert.Contains(t, frames[0], "TestCaptureFrames_IncludesCaller")
}
