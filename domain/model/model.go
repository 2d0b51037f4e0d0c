// Package model defines the language-model collaborator contract. The
// runtime consumes this interface; concrete providers live under
// infrastructure and are selected at session construction.
package model

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	ErrEmptyPrompt      = errors.New("model: prompt cannot be empty")
	ErrStreamClosed     = errors.New("model: stream is closed")
	ErrToolsUnsupported = errors.New("model: provider does not support tools")
)

// Role of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// PromptMessage is one turn of conversation context sent to the provider.
type PromptMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ToolSpec advertises a callable tool to the provider.
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// Request carries one generation call.
type Request struct {
	System      string          `json:"system,omitempty"`
	Messages    []PromptMessage `json:"messages"`
	Tools       []ToolSpec      `json:"tools,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float32         `json:"temperature,omitempty"`
}

// ToolCall is a tool invocation proposed by the provider.
type ToolCall struct {
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Usage is the token accounting delta from one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a completed generation.
type Response struct {
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Usage     Usage      `json:"usage"`
	Stop      string     `json:"stop,omitempty"`
}

// Chunk is one increment of a streamed generation. The final chunk carries
// the usage delta and Done set.
type Chunk struct {
	Delta string `json:"delta"`
	Done  bool   `json:"done"`
	Usage Usage  `json:"usage"`
}

// Stream is a finite, non-restartable sequence of chunks.
type Stream interface {
	// Next advances to the next chunk, returning false at end of stream.
	Next() bool

	// Current returns the chunk Next positioned on.
	Current() Chunk

	// Err reports a terminal stream error, if any.
	Err() error

	// Close releases the underlying connection.
	Close() error
}

// Provider is the model collaborator contract.
type Provider interface {
	Name() string

	// Generate performs one blocking completion call.
	Generate(ctx context.Context, req Request) (*Response, error)

	// Stream performs one streaming completion call.
	Stream(ctx context.Context, req Request) (Stream, error)

	// SupportsTools reports whether the provider accepts tool specs.
	SupportsTools() bool
}
