// Package factory builds the test-scoped object graph for a specification:
// one EphemeralTestContext per execution, holding the target instance and a
// per-type dependency cache that guarantees identity sharing.
package factory

import (
	"github.com/kontrakt-labs/kontrakt/pkg/contracts"
	"github.com/kontrakt-labs/kontrakt/pkg/trace"
	"github.com/kontrakt-labs/kontrakt/pkg/typesys"
)

// EphemeralTestContext is the per-test-execution registry. It is exclusively
// owned by the thread running the test, created once per execution and
// discarded immediately after; no instance or stub configured within it may
// leak to another execution.
type EphemeralTestContext struct {
	target   any
	deps     map[typesys.TypeID]any
	scenario contracts.ScenarioContext
	mocks    contracts.MockingEngine
	sink     trace.Sink
}

var _ contracts.TestContext = (*EphemeralTestContext)(nil)

// Target returns the single instance under test.
func (c *EphemeralTestContext) Target() any { return c.target }

// Dependency returns the context-scoped singleton for a dependency type.
func (c *EphemeralTestContext) Dependency(t typesys.TypeReference) (any, bool) {
	v, ok := c.deps[t.ID]
	return v, ok
}

// Scenario returns the stubbing surface bound to this context.
func (c *EphemeralTestContext) Scenario() contracts.ScenarioContext { return c.scenario }

// Sink returns the trace sink wired into this context.
func (c *EphemeralTestContext) Sink() trace.Sink { return c.sink }

// DependencyCount reports how many distinct types are cached.
func (c *EphemeralTestContext) DependencyCount() int { return len(c.deps) }
