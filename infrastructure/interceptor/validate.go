// Package interceptor provides the built-in safety.Interceptor
// implementations: schema validation, prompt filtering, rate limiting,
// RBAC, output redaction, and audit logging.
package interceptor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/felixgeelhaar/agent-runtime/domain/safety"
)

// SchemaValidator checks tool payloads against the descriptor's input and
// output schemas. Tools without a schema pass unchecked.
type SchemaValidator struct {
	cache sync.Map
}

// NewSchemaValidator creates the validation interceptor.
func NewSchemaValidator() *SchemaValidator {
	return &SchemaValidator{}
}

func (*SchemaValidator) Name() string { return "schema_validator" }

// Before validates the call payload against the tool's input schema.
func (v *SchemaValidator) Before(_ context.Context, call *safety.CallContext) safety.Verdict {
	if call.Kind != safety.CallTool || call.Tool == nil || len(call.Tool.InputSchema) == 0 {
		return safety.Allow()
	}
	if err := v.validate(call.Tool.InputSchema, call.Payload); err != nil {
		return safety.Deny(safety.ReasonInvalidInput, err.Error())
	}
	return safety.Allow()
}

// After validates the result against the tool's output schema.
func (v *SchemaValidator) After(_ context.Context, call *safety.CallContext, result *safety.CallResult) safety.Verdict {
	if call.Kind != safety.CallTool || call.Tool == nil || len(call.Tool.OutputSchema) == 0 {
		return safety.Allow()
	}
	if result.Err != nil {
		return safety.Allow()
	}
	if err := v.validate(call.Tool.OutputSchema, result.Payload); err != nil {
		return safety.Deny(safety.ReasonInvalidOutput, err.Error())
	}
	return safety.Allow()
}

func (v *SchemaValidator) validate(schema, payload json.RawMessage) error {
	compiled, err := v.compile(schema)
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	return compiled.Validate(decoded)
}

func (v *SchemaValidator) compile(schema json.RawMessage) (*jsonschema.Schema, error) {
	key := string(schema)
	if cached, ok := v.cache.Load(key); ok {
		return cached.(*jsonschema.Schema), nil
	}

	compiled, err := jsonschema.CompileString("tool.schema.json", key)
	if err != nil {
		return nil, err
	}
	v.cache.Store(key, compiled)
	return compiled, nil
}
