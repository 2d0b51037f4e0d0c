// Package openai adapts the OpenAI chat completions API to model.Provider.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/felixgeelhaar/agent-runtime/domain/model"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o"

// Provider implements model.Provider over the OpenAI API.
type Provider struct {
	client *goopenai.Client
	model  string
}

// Config configures the provider.
type Config struct {
	// APIKey is the OpenAI API key.
	APIKey string

	// Model is the model ID to request. Defaults to DefaultModel.
	Model string

	// BaseURL overrides the API endpoint, for proxies and compatible
	// servers. Empty uses the public endpoint.
	BaseURL string
}

// New creates a provider from config.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	m := cfg.Model
	if m == "" {
		m = DefaultModel
	}

	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &Provider{
		client: goopenai.NewClientWithConfig(clientCfg),
		model:  m,
	}, nil
}

func (p *Provider) Name() string { return "openai" }

func (p *Provider) SupportsTools() bool { return true }

// Generate performs one blocking completion call.
func (p *Provider) Generate(ctx context.Context, req model.Request) (*model.Response, error) {
	chatReq, err := p.convertRequest(req)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai: response contained no choices")
	}

	choice := resp.Choices[0]
	out := &model.Response{
		Content: choice.Message.Content,
		Stop:    string(choice.FinishReason),
		Usage: model.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, model.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return out, nil
}

// Stream performs one streaming completion call.
func (p *Provider) Stream(ctx context.Context, req model.Request) (model.Stream, error) {
	chatReq, err := p.convertRequest(req)
	if err != nil {
		return nil, err
	}
	chatReq.Stream = true

	stream, err := p.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("openai stream: %w", err)
	}
	return &chatStream{inner: stream}, nil
}

func (p *Provider) convertRequest(req model.Request) (goopenai.ChatCompletionRequest, error) {
	if len(req.Messages) == 0 {
		return goopenai.ChatCompletionRequest{}, model.ErrEmptyPrompt
	}

	messages := make([]goopenai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.Messages {
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	chatReq := goopenai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	for _, spec := range req.Tools {
		var params map[string]any
		if len(spec.InputSchema) > 0 {
			if err := json.Unmarshal(spec.InputSchema, &params); err != nil {
				return goopenai.ChatCompletionRequest{}, fmt.Errorf("tool %q schema: %w", spec.Name, err)
			}
		} else {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		chatReq.Tools = append(chatReq.Tools, goopenai.Tool{
			Type: goopenai.ToolTypeFunction,
			Function: &goopenai.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  params,
			},
		})
	}
	return chatReq, nil
}

// chatStream adapts the SDK stream to model.Stream.
type chatStream struct {
	inner   *goopenai.ChatCompletionStream
	current model.Chunk
	err     error
	done    bool
}

func (s *chatStream) Next() bool {
	if s.done {
		return false
	}
	resp, err := s.inner.Recv()
	if err != nil {
		s.done = true
		if errors.Is(err, io.EOF) {
			s.current = model.Chunk{Done: true}
			return true
		}
		s.err = err
		return false
	}
	if len(resp.Choices) == 0 {
		s.current = model.Chunk{}
		return true
	}
	s.current = model.Chunk{Delta: resp.Choices[0].Delta.Content}
	return true
}

func (s *chatStream) Current() model.Chunk { return s.current }

func (s *chatStream) Err() error { return s.err }

func (s *chatStream) Close() error {
	s.done = true
	return s.inner.Close()
}

var _ model.Provider = (*Provider)(nil)
