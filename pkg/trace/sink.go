package trace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// WorkerID identifies one parallel execution lane. IDs are non-negative.
type WorkerID int

// ErrNegativeWorkerID is returned when a sink is requested for a negative id.
var ErrNegativeWorkerID = errors.New("trace: worker id must be non-negative")

// Sink receives the events of exactly one worker. Implementations need no
// internal locking as long as the one-worker-one-sink ownership holds.
type Sink interface {
	Emit(e Event) error
	Close() error
}

// fileSink appends NDJSON lines to one file.
type fileSink struct {
	f   *os.File
	buf []byte
}

func newFileSink(path string) (*fileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("trace: open sink: %w", err)
	}
	return &fileSink{f: f}, nil
}

func (s *fileSink) Emit(e Event) error {
	s.buf = e.EncodeNDJSON(s.buf[:0])
	if _, err := s.f.Write(s.buf); err != nil {
		return fmt.Errorf("trace: emit: %w", err)
	}
	return nil
}

func (s *fileSink) Close() error { return s.f.Close() }

// NopSink discards events.
type NopSink struct{}

func (NopSink) Emit(Event) error { return nil }
func (NopSink) Close() error     { return nil }

// SinkPool hands out one append-only sink per worker, lazily created on first
// request. The pool synchronizes only sink creation; emission itself is
// lock-free because no two workers ever share a sink.
type SinkPool struct {
	mu    sync.Mutex
	dir   string
	sinks map[WorkerID]Sink
}

// NewSinkPool creates a pool writing worker-{id}.ndjson files under dir.
func NewSinkPool(dir string) *SinkPool {
	return &SinkPool{dir: dir, sinks: make(map[WorkerID]Sink)}
}

// Sink returns the sink owned by the given worker, creating it on first use.
func (p *SinkPool) Sink(id WorkerID) (Sink, error) {
	if id < 0 {
		return nil, fmt.Errorf("%w: %d", ErrNegativeWorkerID, id)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if s, ok := p.sinks[id]; ok {
		return s, nil
	}
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return nil, fmt.Errorf("trace: sink dir: %w", err)
	}
	s, err := newFileSink(filepath.Join(p.dir, fmt.Sprintf("worker-%d.ndjson", id)))
	if err != nil {
		return nil, err
	}
	p.sinks[id] = s
	return s, nil
}

// Close closes every sink created so far.
func (p *SinkPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for id, s := range p.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.sinks, id)
	}
	return firstErr
}

// BufferSink collects events in memory, for tests and for the CLI inspector.
type BufferSink struct {
	mu     sync.Mutex
	events []Event
	lines  []byte
}

func (s *BufferSink) Emit(e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	s.lines = e.EncodeNDJSON(s.lines)
	return nil
}

func (s *BufferSink) Close() error { return nil }

// Events returns the emitted events in order.
func (s *BufferSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Lines returns the encoded NDJSON bytes.
func (s *BufferSink) Lines() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, len(s.lines))
	copy(out, s.lines)
	return out
}
