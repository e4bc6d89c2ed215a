package trace

import (
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// eventSchema is the wire contract of one NDJSON line. Verification-minded
// consumers (and our own tests) validate emitted lines against it.
const eventSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["ts", "phase"],
  "properties": {
    "ts": {"type": "string"},
    "phase": {"enum": ["DESIGN", "EXECUTION", "VERIFICATION", "RESULT"]},
    "subject": {"type": "string"},
    "strategy": {"type": "string"},
    "value": {"type": "string"},
    "method": {"type": "string"},
    "arguments": {"type": "array", "items": {"type": "string"}},
    "duration_ms": {"type": "integer", "minimum": 0},
    "rule": {"type": "string"},
    "status": {"type": "string"},
    "detail": {"type": "string"},
    "blame": {"enum": ["SETUP_FAILURE", "TEST_FAILURE", "EXECUTION_FAILURE", "INTERNAL_ERROR"]},
    "exception_type": {"type": "string"},
    "message": {"type": "string"},
    "frames": {"type": "array", "items": {"type": "string"}},
    "fingerprint": {"type": "string"}
  },
  "additionalProperties": false
}`

// CompileEventSchema compiles the event line schema.
func CompileEventSchema() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("kontrakt://trace/event.schema.json", strings.NewReader(eventSchema)); err != nil {
		return nil, err
	}
	return c.Compile("kontrakt://trace/event.schema.json")
}
