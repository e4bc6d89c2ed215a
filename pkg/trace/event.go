// Package trace emits the structured audit stream of the engine: one NDJSON
// line per meaningful step, written to per-worker sinks that never contend.
//
// Events are encoded by hand. The hot path of parallel execution must not pay
// for reflection, and the wire format must stay decoupled from whatever
// serialization framework the host project uses.
package trace

import (
	"fmt"
	"strconv"
	"time"

	"github.com/kontrakt-labs/kontrakt/pkg/contracts"
)

// Phase tags every event with the stage that produced it.
type Phase string

const (
	PhaseDesign       Phase = "DESIGN"
	PhaseExecution    Phase = "EXECUTION"
	PhaseVerification Phase = "VERIFICATION"
	PhaseResult       Phase = "RESULT"
)

// Event is one entry of the audit stream. EncodeNDJSON appends exactly one
// newline-terminated JSON object to dst.
type Event interface {
	Phase() Phase
	Timestamp() time.Time
	EncodeNDJSON(dst []byte) []byte
}

// DesignDecision records why a generator was chosen for a subject.
type DesignDecision struct {
	At       time.Time
	Subject  string
	Strategy string
	Value    string
}

func (e DesignDecision) Phase() Phase         { return PhaseDesign }
func (e DesignDecision) Timestamp() time.Time { return e.At }

func (e DesignDecision) EncodeNDJSON(dst []byte) []byte {
	w := newLineWriter(dst, PhaseDesign, e.At)
	w.field("subject", e.Subject)
	w.field("strategy", e.Strategy)
	w.field("value", e.Value)
	return w.finish()
}

// ExecutionTrace records one method invocation against the target.
type ExecutionTrace struct {
	At        time.Time
	Method    string
	Arguments []string
	Duration  time.Duration
}

func (e ExecutionTrace) Phase() Phase         { return PhaseExecution }
func (e ExecutionTrace) Timestamp() time.Time { return e.At }

func (e ExecutionTrace) EncodeNDJSON(dst []byte) []byte {
	w := newLineWriter(dst, PhaseExecution, e.At)
	w.field("method", e.Method)
	w.strings("arguments", e.Arguments)
	w.raw("duration_ms", strconv.FormatInt(e.Duration.Milliseconds(), 10))
	return w.finish()
}

// VerificationTrace records one verified rule and its outcome.
type VerificationTrace struct {
	At     time.Time
	Rule   string
	Status string
	Detail string
}

func (e VerificationTrace) Phase() Phase         { return PhaseVerification }
func (e VerificationTrace) Timestamp() time.Time { return e.At }

func (e VerificationTrace) EncodeNDJSON(dst []byte) []byte {
	w := newLineWriter(dst, PhaseVerification, e.At)
	w.field("rule", e.Rule)
	w.field("status", e.Status)
	w.field("detail", e.Detail)
	return w.finish()
}

// ExceptionTrace records an uncaught failure with its derived blame.
type ExceptionTrace struct {
	At      time.Time
	Blame   contracts.Blame
	ErrType string
	Message string
	Frames  []string
}

func (e ExceptionTrace) Phase() Phase         { return PhaseExecution }
func (e ExceptionTrace) Timestamp() time.Time { return e.At }

func (e ExceptionTrace) EncodeNDJSON(dst []byte) []byte {
	w := newLineWriter(dst, PhaseExecution, e.At)
	w.field("blame", string(e.Blame))
	w.field("exception_type", e.ErrType)
	w.field("message", e.Message)
	w.strings("frames", e.Frames)
	return w.finish()
}

// TestVerdict is the terminal event of one execution.
type TestVerdict struct {
	At          time.Time
	Status      string
	Duration    time.Duration
	Fingerprint string
}

func (e TestVerdict) Phase() Phase         { return PhaseResult }
func (e TestVerdict) Timestamp() time.Time { return e.At }

func (e TestVerdict) EncodeNDJSON(dst []byte) []byte {
	w := newLineWriter(dst, PhaseResult, e.At)
	w.field("status", e.Status)
	w.raw("duration_ms", strconv.FormatInt(e.Duration.Milliseconds(), 10))
	w.field("fingerprint", e.Fingerprint)
	return w.finish()
}

// lineWriter builds one NDJSON line by hand.
type lineWriter struct{ buf []byte }

func newLineWriter(dst []byte, phase Phase, at time.Time) *lineWriter {
	w := &lineWriter{buf: dst}
	w.buf = append(w.buf, `{"ts":"`...)
	w.buf = at.UTC().AppendFormat(w.buf, time.RFC3339Nano)
	w.buf = append(w.buf, `","phase":"`...)
	w.buf = append(w.buf, phase...)
	w.buf = append(w.buf, '"')
	return w
}

func (w *lineWriter) field(name, value string) {
	w.key(name)
	w.buf = appendEscaped(w.buf, value)
}

func (w *lineWriter) raw(name, value string) {
	w.key(name)
	w.buf = append(w.buf, value...)
}

func (w *lineWriter) strings(name string, values []string) {
	w.key(name)
	w.buf = append(w.buf, '[')
	for i, v := range values {
		if i > 0 {
			w.buf = append(w.buf, ',')
		}
		w.buf = appendEscaped(w.buf, v)
	}
	w.buf = append(w.buf, ']')
}

func (w *lineWriter) key(name string) {
	w.buf = append(w.buf, ',', '"')
	w.buf = append(w.buf, name...)
	w.buf = append(w.buf, '"', ':')
}

func (w *lineWriter) finish() []byte {
	return append(w.buf, '}', '\n')
}

const hexDigits = "0123456789abcdef"

// appendEscaped appends s as a JSON string, escaping quotes, backslashes and
// control characters.
func appendEscaped(dst []byte, s string) []byte {
	dst = append(dst, '"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			dst = append(dst, '\\', '"')
		case c == '\\':
			dst = append(dst, '\\', '\\')
		case c == '\n':
			dst = append(dst, '\\', 'n')
		case c == '\r':
			dst = append(dst, '\\', 'r')
		case c == '\t':
			dst = append(dst, '\\', 't')
		case c < 0x20:
			dst = append(dst, '\\', 'u', '0', '0', hexDigits[c>>4], hexDigits[c&0xf])
		default:
			dst = append(dst, c)
		}
	}
	return append(dst, '"')
}

// FormatArguments renders invocation arguments for an ExecutionTrace.
func FormatArguments(args []any) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = fmt.Sprintf("%v", a)
	}
	return out
}
