// Package schema validates wire payloads (the HTTP submission body and
// the planner's parsed LLM response) against JSON Schema documents:
// unmarshal schema and payload into any, compile with
// jsonschema.NewCompiler, validate. planner.Planner's own field-by-field
// checks remain in the planner package and do not depend on this one —
// this package is for validating against declared JSON Schema documents,
// not hardcoded Go struct rules.
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/taskgraphd/taskgraph/core"
)

// SubmissionSchema is the JSON Schema for a run-submission request body:
// {goal: string (non-empty), maxConcurrency?: int >= 1, maxSteps?: int >= 1}.
const SubmissionSchema = `{
  "type": "object",
  "required": ["goal"],
  "properties": {
    "goal": {"type": "string", "minLength": 1},
    "maxConcurrency": {"type": "integer", "minimum": 1},
    "maxSteps": {"type": "integer", "minimum": 1}
  },
  "additionalProperties": false
}`

// PlannerResponseSchema is the JSON Schema for a planner LLM response:
// {nodes: [{id, task, dependsOn?, assignTo?}] (non-empty), synthesizerPrompt?}.
const PlannerResponseSchema = `{
  "type": "object",
  "required": ["nodes"],
  "properties": {
    "nodes": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["id", "task"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "task": {"type": "string", "minLength": 1},
          "dependsOn": {"type": "array", "items": {"type": "string"}},
          "assignTo": {"type": "string"}
        }
      }
    },
    "synthesizerPrompt": {"type": "string"}
  }
}`

// Validator compiles a fixed JSON Schema once and validates arbitrary
// JSON payloads against it.
type Validator struct {
	schema *jsonschema.Schema
}

// Compile parses schemaJSON and compiles it, returning a reusable
// Validator. A compile failure is a programmer error (a malformed
// built-in schema constant), not a runtime VALIDATION_FAILED condition.
func Compile(name, schemaJSON string) (*Validator, error) {
	var doc any
	if err := json.Unmarshal([]byte(schemaJSON), &doc); err != nil {
		return nil, fmt.Errorf("unmarshal schema %q: %w", name, err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, doc); err != nil {
		return nil, fmt.Errorf("add schema resource %q: %w", name, err)
	}
	compiled, err := c.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compile schema %q: %w", name, err)
	}

	return &Validator{schema: compiled}, nil
}

// Validate unmarshals payloadJSON and checks it against the compiled
// schema, returning a *core.TaskError wrapping core.ErrValidationFailed
// on mismatch.
func (v *Validator) Validate(payloadJSON []byte) error {
	var payload any
	if err := json.Unmarshal(payloadJSON, &payload); err != nil {
		return core.NewTaskError("schema.Validate", core.ErrValidationFailed, "",
			fmt.Sprintf("payload is not valid JSON: %v", err), err)
	}

	if err := v.schema.Validate(payload); err != nil {
		return core.NewTaskError("schema.Validate", core.ErrValidationFailed, "",
			fmt.Sprintf("payload does not match schema: %v", err), err)
	}

	return nil
}
