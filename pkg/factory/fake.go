package factory

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/kontrakt-labs/kontrakt/pkg/contracts"
	"github.com/kontrakt-labs/kontrakt/pkg/typesys"
)

// Identifiable lets entities carry their own identifier into a fake store.
type Identifiable interface {
	EntityID() string
}

// FakeStore is the in-memory state behind one stateful fake. It is scoped to
// one fake instance inside one context, but the system under test may hit it
// from internal threads, so it is fully concurrent: a lock-free map plus a
// monotonic, collision-free identifier counter.
type FakeStore struct {
	entities sync.Map
	counter  atomic.Uint64
}

func NewFakeStore() *FakeStore { return &FakeStore{} }

// Save stores the exact entity instance and returns its identifier: the
// entity's own when it has one, a generated monotonic id otherwise.
func (s *FakeStore) Save(entity any) string {
	id := ""
	if ident, ok := entity.(Identifiable); ok {
		id = ident.EntityID()
	}
	if id == "" {
		id = fmt.Sprintf("gen-%d", s.counter.Add(1))
	}
	s.entities.Store(id, entity)
	return id
}

// FindByID returns the exact instance previously saved under id.
func (s *FakeStore) FindByID(id string) (any, bool) {
	return s.entities.Load(id)
}

// Delete removes an entity.
func (s *FakeStore) Delete(id string) { s.entities.Delete(id) }

// Len counts stored entities.
func (s *FakeStore) Len() int {
	n := 0
	s.entities.Range(func(any, any) bool { n++; return true })
	return n
}

// stub is one configured behavior of a mock call.
type stub struct {
	value any
	err   error
}

// StatelessMock is the reference stateless test double: it answers stubbed
// calls and remembers nothing between them beyond its configuration.
type StatelessMock struct {
	Type typesys.TypeReference

	mu    sync.RWMutex
	stubs map[string]stub
}

// Every configures the response for a call, satisfying the scenario stubbing
// surface.
func (m *StatelessMock) Every(call string) contracts.StubBuilder {
	return &mockStub{mock: m, call: call}
}

// Invoke answers a call with its configured behavior.
func (m *StatelessMock) Invoke(call string, _ ...any) (any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.stubs[call]
	if !ok {
		return nil, fmt.Errorf("factory: mock %s: no stub for call %q", m.Type, call)
	}
	return s.value, s.err
}

type mockStub struct {
	mock *StatelessMock
	call string
}

func (b *mockStub) Returns(v any) { b.set(stub{value: v}) }
func (b *mockStub) Throws(err error) {
	b.set(stub{err: err})
}

func (b *mockStub) set(s stub) {
	b.mock.mu.Lock()
	defer b.mock.mu.Unlock()
	if b.mock.stubs == nil {
		b.mock.stubs = make(map[string]stub)
	}
	b.mock.stubs[b.call] = s
}

// StatefulFake is the reference working double backed by a FakeStore.
type StatefulFake struct {
	Type  typesys.TypeReference
	Store *FakeStore
}

// EnvironmentStub stands in for an environment dependency of a given kind.
type EnvironmentStub struct {
	Kind string
	Type typesys.TypeReference
	ID   string
}

// SimpleMockingEngine is the registration-free reference implementation of
// the mocking port.
type SimpleMockingEngine struct{}

var _ contracts.MockingEngine = SimpleMockingEngine{}

func (SimpleMockingEngine) CreateMock(t typesys.TypeReference) (any, error) {
	return &StatelessMock{Type: t}, nil
}

func (SimpleMockingEngine) CreateFake(t typesys.TypeReference) (any, error) {
	return &StatefulFake{Type: t, Store: NewFakeStore()}, nil
}

func (SimpleMockingEngine) CreateEnvironment(kind string, t typesys.TypeReference) (any, error) {
	return &EnvironmentStub{Kind: kind, Type: t, ID: uuid.NewString()}, nil
}

// SimpleScenarioControl creates isolated scenario contexts backed by
// dedicated stub tables; nothing is shared between contexts.
type SimpleScenarioControl struct{}

var _ contracts.ScenarioControl = SimpleScenarioControl{}

func (SimpleScenarioControl) CreateScenarioContext() contracts.ScenarioContext {
	return &StatelessMock{Type: typesys.Ref("scenario")}
}
