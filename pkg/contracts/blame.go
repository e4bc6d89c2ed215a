package contracts

import "errors"

// Blame categorizes who is responsible for a failure. It is derived exactly
// once per failure and carried downstream so reporting never re-inspects the
// original error.
type Blame string

const (
	// BlameSetupFailure: the user misconfigured the test (cycles, missing
	// constructors, unresolvable types).
	BlameSetupFailure Blame = "SETUP_FAILURE"
	// BlameTestFailure: the target behaved, an assertion disagreed.
	BlameTestFailure Blame = "TEST_FAILURE"
	// BlameExecutionFailure: the target or its fixtures blew up at runtime.
	BlameExecutionFailure Blame = "EXECUTION_FAILURE"
	// BlameInternalError: a defect in the engine itself.
	BlameInternalError Blame = "INTERNAL_ERROR"
)

// Blamer is implemented by the engine's typed errors to declare their blame
// category at the point of definition.
type Blamer interface {
	Blame() Blame
}

// ClassifyBlame derives the blame category for an error. Errors that do not
// declare a category are attributed to the engine.
func ClassifyBlame(err error) Blame {
	if err == nil {
		return BlameTestFailure
	}
	var b Blamer
	if errors.As(err, &b) {
		return b.Blame()
	}
	return BlameInternalError
}
