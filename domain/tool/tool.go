package tool

import (
	"context"
	"encoding/json"

	"github.com/felixgeelhaar/agent-runtime/domain/policy"
)

// Capability is a registered tool the runtime can invoke.
type Capability interface {
	// Descriptor returns the tool's registration record.
	Descriptor() Descriptor

	// Execute runs the tool with the given input.
	Execute(ctx context.Context, input json.RawMessage) (Result, error)
}

// Handler is the function signature for tool execution.
type Handler func(ctx context.Context, input json.RawMessage) (Result, error)

// Definition is a concrete implementation of Capability.
type Definition struct {
	descriptor Descriptor
	handler    Handler
}

// Descriptor returns the tool's registration record.
func (d *Definition) Descriptor() Descriptor {
	return d.descriptor
}

// Execute runs the tool handler.
func (d *Definition) Execute(ctx context.Context, input json.RawMessage) (Result, error) {
	if d.handler == nil {
		return Result{}, ErrNoHandler
	}
	return d.handler(ctx, input)
}

// Builder provides a fluent API for constructing tools.
type Builder struct {
	def *Definition
}

// NewBuilder creates a new tool builder with the given name.
func NewBuilder(name string) *Builder {
	return &Builder{
		def: &Definition{descriptor: Descriptor{Name: name}},
	}
}

// WithDescription sets the tool description.
func (b *Builder) WithDescription(desc string) *Builder {
	b.def.descriptor.Description = desc
	return b
}

// WithInputSchema sets the JSON Schema for input validation.
func (b *Builder) WithInputSchema(schema json.RawMessage) *Builder {
	b.def.descriptor.InputSchema = schema
	return b
}

// WithOutputSchema sets the JSON Schema for output validation.
func (b *Builder) WithOutputSchema(schema json.RawMessage) *Builder {
	b.def.descriptor.OutputSchema = schema
	return b
}

// WithAccessTags guards the tool behind the given role tags.
func (b *Builder) WithAccessTags(tags ...string) *Builder {
	b.def.descriptor.AccessTags = append(b.def.descriptor.AccessTags, tags...)
	return b
}

// WithRateLimit sets the tool's rate-limit policy.
func (b *Builder) WithRateLimit(rl policy.RateLimit) *Builder {
	b.def.descriptor.RateLimit = rl
	return b
}

// WithHandler sets the tool handler function.
func (b *Builder) WithHandler(handler Handler) *Builder {
	b.def.handler = handler
	return b
}

// Build constructs the tool definition.
func (b *Builder) Build() (Capability, error) {
	if b.def.descriptor.Name == "" {
		return nil, ErrEmptyName
	}
	if b.def.handler == nil {
		return nil, ErrNoHandler
	}
	return b.def, nil
}

// MustBuild constructs the tool definition or panics on error.
func (b *Builder) MustBuild() Capability {
	t, err := b.Build()
	if err != nil {
		panic(err)
	}
	return t
}
