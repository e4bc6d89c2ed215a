// Package contracts holds the shared domain types exchanged between the
// engine's subsystems, plus the ports implemented by external collaborators
// (mocking engine, scenario control, leaf executor, result publisher).
package contracts

import (
	"context"
	"errors"
	"time"

	"github.com/kontrakt-labs/kontrakt/pkg/typesys"
)

// ModeKind enumerates the supported verification modes.
type ModeKind int

const (
	// ModeContractAuto derives behavioral checks from an interface contract.
	ModeContractAuto ModeKind = iota
	// ModeUserScenario runs user-authored scenarios against the target.
	ModeUserScenario
	// ModeDataCompliance checks generated data for a type against rules.
	ModeDataCompliance
)

// Mode is one entry of a specification's mode set. Interface is set for
// ContractAuto, DataType for DataCompliance.
type Mode struct {
	Kind      ModeKind
	Interface typesys.TypeReference
	DataType  typesys.TypeReference
}

func ContractAuto(iface typesys.TypeReference) Mode {
	return Mode{Kind: ModeContractAuto, Interface: iface}
}

func UserScenario() Mode {
	return Mode{Kind: ModeUserScenario}
}

func DataCompliance(t typesys.TypeReference) Mode {
	return Mode{Kind: ModeDataCompliance, DataType: t}
}

// MockStrategyKind enumerates dependency provisioning strategies.
type MockStrategyKind int

const (
	// StrategyStatelessMock provisions a stub with no memory between calls.
	StrategyStatelessMock MockStrategyKind = iota
	// StrategyStatefulFake provisions an in-memory working implementation.
	StrategyStatefulFake
	// StrategyEnvironment provisions an environment stand-in (clock, fs, ...).
	StrategyEnvironment
	// StrategyReal resolves a named real implementation recursively.
	StrategyReal
)

// MockStrategy is the tagged strategy choice for one dependency.
type MockStrategy struct {
	Kind            MockStrategyKind
	EnvironmentKind string
	Implementation  typesys.TypeReference
}

// DependencyMetadata pins the provisioning strategy for a dependency type.
type DependencyMetadata struct {
	Name     string
	Type     typesys.TypeReference
	Strategy MockStrategy
}

// TestSpecification describes one test to execute. Modes must be non-empty.
type TestSpecification struct {
	Target               typesys.TypeReference
	Modes                []Mode
	RequiredDependencies []DependencyMetadata
	Seed                 *uint64
}

// ErrNoModes is returned when a specification carries an empty mode set.
var ErrNoModes = errors.New("contracts: specification has no modes")

// Validate checks structural validity of the specification.
func (s TestSpecification) Validate() error {
	if len(s.Modes) == 0 {
		return ErrNoModes
	}
	return nil
}

// AssertionStatus is the outcome of a single assertion.
type AssertionStatus string

const (
	AssertionPassed AssertionStatus = "PASSED"
	AssertionFailed AssertionStatus = "FAILED"
)

// AssertionRecord captures one verified rule.
type AssertionRecord struct {
	Status   AssertionStatus `json:"status"`
	Message  string          `json:"message"`
	Expected string          `json:"expected,omitempty"`
	Actual   string          `json:"actual,omitempty"`
}

// TestStatus is the terminal status of one executed specification.
type TestStatus string

const (
	StatusPassed         TestStatus = "PASSED"
	StatusFailed         TestStatus = "FAILED"
	StatusExecutionError TestStatus = "EXECUTION_ERROR"
)

// TestResult is the terminal outcome of one specification.
type TestResult struct {
	Target      typesys.TypeReference
	Status      TestStatus
	Records     []AssertionRecord
	Blame       Blame
	Duration    time.Duration
	Fingerprint string
	Err         error
}

// TestContext is the view of an ephemeral per-test context exposed to
// interceptors and leaf executors. The concrete context lives in pkg/factory.
type TestContext interface {
	// Target returns the single instance under test.
	Target() any
	// Dependency returns the context-scoped instance for a dependency type.
	Dependency(t typesys.TypeReference) (any, bool)
	// Scenario returns the scenario stubbing surface bound to this context.
	Scenario() ScenarioContext
}

// MockingEngine is the consumed port that fabricates test doubles.
type MockingEngine interface {
	CreateMock(t typesys.TypeReference) (any, error)
	CreateFake(t typesys.TypeReference) (any, error)
	CreateEnvironment(kind string, t typesys.TypeReference) (any, error)
}

// StubBuilder configures the behavior of one stubbed call.
type StubBuilder interface {
	Returns(v any)
	Throws(err error)
}

// ScenarioContext is the stubbing surface for one test execution.
type ScenarioContext interface {
	Every(call string) StubBuilder
}

// ScenarioControl creates scenario contexts. Context binding is explicit;
// there is no thread-local state.
type ScenarioControl interface {
	CreateScenarioContext() ScenarioContext
}

// TestScenarioExecutor is the leaf of the interceptor chain.
type TestScenarioExecutor interface {
	ExecuteScenarios(ctx context.Context, tc TestContext) ([]AssertionRecord, error)
}

// ResultPublisher receives terminal results.
type ResultPublisher interface {
	Publish(ctx context.Context, result *TestResult) error
	Close() error
}
