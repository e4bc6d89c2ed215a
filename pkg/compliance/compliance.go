// Package compliance evaluates data-compliance rules against generated value
// trees. Rules are CEL expressions over the generated value and its type
// name; programs are compiled once and cached.
package compliance

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/kontrakt-labs/kontrakt/pkg/contracts"
	"github.com/kontrakt-labs/kontrakt/pkg/typesys"
)

// Rule is one named compliance check.
type Rule struct {
	Name string `yaml:"name" json:"name"`
	Expr string `yaml:"expr" json:"expr"`
}

// RuleError reports a rule that could not be compiled or evaluated.
type RuleError struct {
	Rule string
	Err  error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("compliance: rule %q: %v", e.Rule, e.Err)
}

func (e *RuleError) Unwrap() error { return e.Err }

func (e *RuleError) Blame() contracts.Blame { return contracts.BlameSetupFailure }

// Checker compiles and runs rules. Safe for concurrent use after creation.
type Checker struct {
	env      *cel.Env
	mu       sync.RWMutex
	programs map[string]cel.Program
}

func NewChecker() (*Checker, error) {
	env, err := cel.NewEnv(
		cel.Variable("value", cel.DynType),
		cel.Variable("type", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("compliance: cel environment: %w", err)
	}
	return &Checker{env: env, programs: make(map[string]cel.Program)}, nil
}

// Check evaluates every rule against the value, returning one assertion
// record per rule. A rule that fails to compile or evaluate is a setup error,
// not a failed assertion.
func (c *Checker) Check(t typesys.TypeReference, value any, rules []Rule) ([]contracts.AssertionRecord, error) {
	input := map[string]any{
		"value": value,
		"type":  t.String(),
	}

	records := make([]contracts.AssertionRecord, 0, len(rules))
	for _, rule := range rules {
		prg, err := c.program(rule)
		if err != nil {
			return nil, err
		}
		out, _, err := prg.Eval(input)
		if err != nil {
			return nil, &RuleError{Rule: rule.Name, Err: err}
		}
		ok, isBool := out.Value().(bool)
		if !isBool {
			return nil, &RuleError{Rule: rule.Name, Err: fmt.Errorf("expression is not boolean")}
		}

		rec := contracts.AssertionRecord{
			Status:   contracts.AssertionPassed,
			Message:  rule.Name,
			Expected: rule.Expr,
		}
		if !ok {
			rec.Status = contracts.AssertionFailed
			rec.Actual = fmt.Sprintf("%v", value)
		}
		records = append(records, rec)
	}
	return records, nil
}

func (c *Checker) program(rule Rule) (cel.Program, error) {
	c.mu.RLock()
	prg, ok := c.programs[rule.Expr]
	c.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, issues := c.env.Compile(rule.Expr)
	if issues != nil && issues.Err() != nil {
		return nil, &RuleError{Rule: rule.Name, Err: issues.Err()}
	}
	prg, err := c.env.Program(ast)
	if err != nil {
		return nil, &RuleError{Rule: rule.Name, Err: err}
	}

	c.mu.Lock()
	c.programs[rule.Expr] = prg
	c.mu.Unlock()
	return prg, nil
}
