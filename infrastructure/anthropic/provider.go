// Package anthropic adapts the Anthropic Messages API to model.Provider.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/felixgeelhaar/agent-runtime/domain/model"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-sonnet-4-20250514"

const defaultMaxTokens = 4096

// Provider implements model.Provider over the Anthropic API.
type Provider struct {
	client sdk.Client
	model  string
}

// Config configures the provider.
type Config struct {
	// APIKey is the Anthropic API key.
	APIKey string

	// Model is the model ID to request. Defaults to DefaultModel.
	Model string

	// BaseURL overrides the API endpoint. Empty uses the public endpoint.
	BaseURL string
}

// New creates a provider from config.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	m := cfg.Model
	if m == "" {
		m = DefaultModel
	}

	options := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		options = append(options, option.WithBaseURL(cfg.BaseURL))
	}
	return &Provider{
		client: sdk.NewClient(options...),
		model:  m,
	}, nil
}

func (p *Provider) Name() string { return "anthropic" }

func (p *Provider) SupportsTools() bool { return true }

// Generate performs one completion call, aggregating the event stream into
// a single response.
func (p *Provider) Generate(ctx context.Context, req model.Request) (*model.Response, error) {
	stream, err := p.createStream(ctx, req)
	if err != nil {
		return nil, err
	}

	resp := &model.Response{}
	var text strings.Builder
	var toolID, toolName string
	var toolInput strings.Builder

	for stream.Next() {
		event := stream.Current()
		switch event.Type {
		case "message_start":
			start := event.AsMessageStart()
			resp.Usage.PromptTokens = int(start.Message.Usage.InputTokens)
		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			if block.Type == "tool_use" {
				use := block.AsToolUse()
				toolID = use.ID
				toolName = use.Name
				toolInput.Reset()
			}
		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				text.WriteString(delta.Text)
			case "input_json_delta":
				toolInput.WriteString(delta.PartialJSON)
			}
		case "content_block_stop":
			if toolName != "" {
				resp.ToolCalls = append(resp.ToolCalls, model.ToolCall{
					ID:        toolID,
					Name:      toolName,
					Arguments: json.RawMessage(toolInput.String()),
				})
				toolID, toolName = "", ""
			}
		case "message_delta":
			delta := event.AsMessageDelta()
			resp.Usage.CompletionTokens = int(delta.Usage.OutputTokens)
			resp.Stop = string(delta.Delta.StopReason)
		}
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("anthropic stream: %w", err)
	}

	resp.Content = text.String()
	resp.Usage.TotalTokens = resp.Usage.PromptTokens + resp.Usage.CompletionTokens
	return resp, nil
}

// Stream performs one streaming completion call.
func (p *Provider) Stream(ctx context.Context, req model.Request) (model.Stream, error) {
	stream, err := p.createStream(ctx, req)
	if err != nil {
		return nil, err
	}
	return &eventStream{inner: stream}, nil
}

func (p *Provider) createStream(ctx context.Context, req model.Request) (*ssestream.Stream[sdk.MessageStreamEventUnion], error) {
	if len(req.Messages) == 0 {
		return nil, model.ErrEmptyPrompt
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(p.model),
		MaxTokens: int64(maxTokens),
		Messages:  convertMessages(req.Messages),
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}

	tools, err := convertTools(req.Tools)
	if err != nil {
		return nil, err
	}
	params.Tools = tools

	return p.client.Messages.NewStreaming(ctx, params), nil
}

func convertMessages(messages []model.PromptMessage) []sdk.MessageParam {
	out := make([]sdk.MessageParam, 0, len(messages))
	for _, m := range messages {
		block := sdk.NewTextBlock(m.Content)
		if m.Role == model.RoleAssistant {
			out = append(out, sdk.NewAssistantMessage(block))
		} else {
			out = append(out, sdk.NewUserMessage(block))
		}
	}
	return out
}

func convertTools(specs []model.ToolSpec) ([]sdk.ToolUnionParam, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	out := make([]sdk.ToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		var schema sdk.ToolInputSchemaParam
		if len(spec.InputSchema) > 0 {
			if err := json.Unmarshal(spec.InputSchema, &schema); err != nil {
				return nil, fmt.Errorf("tool %q schema: %w", spec.Name, err)
			}
		}
		param := sdk.ToolUnionParamOfTool(schema, spec.Name)
		if param.OfTool == nil {
			return nil, fmt.Errorf("tool %q: invalid definition", spec.Name)
		}
		param.OfTool.Description = sdk.String(spec.Description)
		out = append(out, param)
	}
	return out, nil
}

// eventStream adapts the SSE event stream to model.Stream, surfacing text
// deltas and the final usage.
type eventStream struct {
	inner   *ssestream.Stream[sdk.MessageStreamEventUnion]
	current model.Chunk
	usage   model.Usage
	done    bool
}

func (s *eventStream) Next() bool {
	if s.done {
		return false
	}
	for s.inner.Next() {
		event := s.inner.Current()
		switch event.Type {
		case "message_start":
			start := event.AsMessageStart()
			s.usage.PromptTokens = int(start.Message.Usage.InputTokens)
		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			if delta.Type == "text_delta" && delta.Text != "" {
				s.current = model.Chunk{Delta: delta.Text}
				return true
			}
		case "message_delta":
			s.usage.CompletionTokens = int(event.AsMessageDelta().Usage.OutputTokens)
		case "message_stop":
			s.done = true
			s.usage.TotalTokens = s.usage.PromptTokens + s.usage.CompletionTokens
			s.current = model.Chunk{Done: true, Usage: s.usage}
			return true
		}
	}
	s.done = true
	return false
}

func (s *eventStream) Current() model.Chunk { return s.current }

func (s *eventStream) Err() error { return s.inner.Err() }

func (s *eventStream) Close() error {
	s.done = true
	return s.inner.Close()
}

var _ model.Provider = (*Provider)(nil)
