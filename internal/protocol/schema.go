package protocol

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Response schemas apply to successful responses only; a failed response
// carries no body worth checking.
var responseSchemas = map[string]string{
	CommandGetThreads: `{
		"type": "object",
		"required": ["threads"],
		"properties": {
			"threads": {
				"type": "array",
				"items": {
					"type": "object",
					"required": ["id", "name"],
					"properties": {
						"id": {"type": "integer"},
						"name": {"type": ["string", "number", "boolean"]}
					}
				}
			}
		}
	}`,
	CommandGetStack: `{
		"type": "object",
		"required": ["threadId", "frames"],
		"properties": {
			"threadId": {"type": "integer"},
			"frames": {
				"type": "array",
				"items": {
					"type": "object",
					"required": ["id", "name", "file", "line"],
					"properties": {
						"id": {"type": "integer"},
						"name": {"type": "string"},
						"file": {"type": "string"},
						"line": {"type": "integer", "minimum": 1}
					}
				}
			}
		}
	}`,
	CommandGetScope:  scopeSchema,
	CommandGetScopes: scopeSchema,
	CommandGetProperty: `{
		"type": "object",
		"required": ["threadId", "frameId", "addr", "typeId", "properties"],
		"properties": {
			"threadId": {"type": "integer"},
			"frameId": {"type": "integer"},
			"addr": {"type": "integer"},
			"typeId": {"type": "integer"},
			"size": {"type": "integer"},
			"properties": {"type": "array", "items": {"type": "object"}}
		}
	}`,
	CommandGetEvaluation: evaluationSchema,
	CommandEvaluate:      evaluationSchema,
	CommandSetVariable: `{
		"type": "object",
		"required": ["threadId", "frameId", "addr", "typeId"],
		"properties": {
			"threadId": {"type": "integer"},
			"frameId": {"type": "integer"},
			"addr": {"type": ["integer", "string"], "minLength": 1},
			"typeId": {"type": ["integer", "string"], "minLength": 1}
		}
	}`,
}

const scopeSchema = `{
	"type": "object",
	"required": ["threadId", "frameId", "variables"],
	"properties": {
		"threadId": {"type": "integer"},
		"frameId": {"type": "integer"},
		"variables": {"type": "array"}
	}
}`

const evaluationSchema = `{
	"type": "object",
	"required": ["threadId", "frameId", "expression", "result"],
	"properties": {
		"threadId": {"type": "integer"},
		"frameId": {"type": "integer"},
		"expression": {"type": "string", "minLength": 1},
		"result": {"type": "object"}
	}
}`

var eventSchemas = map[string]string{
	EventStopped: `{
		"type": "object",
		"required": ["threadId"],
		"properties": {
			"threadId": {"type": "integer"},
			"reason": {"type": "string"},
			"file": {"type": "string"},
			"line": {"type": "integer"}
		}
	}`,
	EventContinued: `{
		"type": "object",
		"properties": {
			"threadId": {"type": "integer"}
		}
	}`,
	EventOutput: `{
		"type": "object",
		"properties": {
			"category": {"type": "string"},
			"output": {"type": "string"}
		}
	}`,
	EventThreadStarted: threadEventSchema,
	EventThreadExited:  threadEventSchema,
}

const threadEventSchema = `{
	"type": "object",
	"required": ["threadId"],
	"properties": {
		"threadId": {"type": "integer"}
	}
}`

// SchemaValidationError describes why a message failed its schema
type SchemaValidationError struct {
	Kind    string   `json:"kind"`
	Name    string   `json:"name"`
	Details []string `json:"details"`
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("invalid %s %s: %s", e.Name, e.Kind, strings.Join(e.Details, "; "))
}

// SchemaValidator holds the compiled response and event schemas
type SchemaValidator struct {
	responses map[string]*gojsonschema.Schema
	events    map[string]*gojsonschema.Schema
}

// NewSchemaValidator compiles the built-in schemas. The schemas are static,
// so a compile failure is a programming error and panics.
func NewSchemaValidator() *SchemaValidator {
	return &SchemaValidator{
		responses: mustCompile(responseSchemas),
		events:    mustCompile(eventSchemas),
	}
}

func mustCompile(sources map[string]string) map[string]*gojsonschema.Schema {
	compiled := make(map[string]*gojsonschema.Schema, len(sources))
	for name, src := range sources {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
		if err != nil {
			panic(fmt.Sprintf("protocol: schema for %q does not compile: %v", name, err))
		}
		compiled[name] = schema
	}
	return compiled
}

// ValidateResponse checks a successful response body. Commands without a
// schema always pass.
func (sv *SchemaValidator) ValidateResponse(command string, fields Fields) error {
	return validate(sv.responses, "response", strings.ToLower(command), fields)
}

// ValidateEvent checks an event body. Events without a schema always pass.
func (sv *SchemaValidator) ValidateEvent(event string, fields Fields) error {
	return validate(sv.events, "event", strings.ToLower(event), fields)
}

func validate(schemas map[string]*gojsonschema.Schema, kind, name string, fields Fields) error {
	schema, ok := schemas[name]
	if !ok {
		return nil
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(map[string]any(fields)))
	if err != nil {
		return &SchemaValidationError{Kind: kind, Name: name, Details: []string{err.Error()}}
	}
	if result.Valid() {
		return nil
	}

	details := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		details = append(details, desc.String())
	}
	return &SchemaValidationError{Kind: kind, Name: name, Details: details}
}
