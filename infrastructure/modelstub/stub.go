// Package modelstub provides model.Provider implementations for tests and
// offline development.
package modelstub

import (
	"context"
	"errors"
	"sync"

	"github.com/felixgeelhaar/agent-runtime/domain/model"
)

var ErrScriptExhausted = errors.New("modelstub: script exhausted")

// Scripted replays a fixed sequence of responses, one per Generate call.
// An entry with Err set makes that call fail, which is how transport
// flakiness is simulated.
type Scripted struct {
	mu      sync.Mutex
	script  []ScriptEntry
	cursor  int
	calls   int
	support bool
}

// ScriptEntry is one scripted turn.
type ScriptEntry struct {
	Response *model.Response
	Err      error
}

// NewScripted creates a provider that replays script in order.
func NewScripted(script ...ScriptEntry) *Scripted {
	return &Scripted{script: script, support: true}
}

// WithoutTools marks the provider as not supporting tool specs.
func (s *Scripted) WithoutTools() *Scripted {
	s.support = false
	return s
}

func (s *Scripted) Name() string { return "scripted" }

// Generate returns the next scripted entry.
func (s *Scripted) Generate(ctx context.Context, _ model.Request) (*model.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	if s.cursor >= len(s.script) {
		return nil, ErrScriptExhausted
	}
	entry := s.script[s.cursor]
	s.cursor++

	if entry.Err != nil {
		return nil, entry.Err
	}
	return entry.Response, nil
}

// Stream replays the next scripted response as a single chunk.
func (s *Scripted) Stream(ctx context.Context, req model.Request) (model.Stream, error) {
	resp, err := s.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	return &sliceStream{chunks: []model.Chunk{
		{Delta: resp.Content},
		{Done: true, Usage: resp.Usage},
	}}, nil
}

func (s *Scripted) SupportsTools() bool { return s.support }

// Calls reports how many Generate calls were made, failures included.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Echo answers every request with the content of its last message.
type Echo struct{}

// NewEcho creates the echo provider.
func NewEcho() *Echo {
	return &Echo{}
}

func (*Echo) Name() string { return "echo" }

func (*Echo) Generate(ctx context.Context, req model.Request) (*model.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	content := ""
	if len(req.Messages) > 0 {
		content = req.Messages[len(req.Messages)-1].Content
	}
	return &model.Response{
		Content: content,
		Usage:   model.Usage{PromptTokens: len(content), CompletionTokens: len(content), TotalTokens: 2 * len(content)},
	}, nil
}

func (e *Echo) Stream(ctx context.Context, req model.Request) (model.Stream, error) {
	resp, err := e.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	return &sliceStream{chunks: []model.Chunk{
		{Delta: resp.Content},
		{Done: true, Usage: resp.Usage},
	}}, nil
}

func (*Echo) SupportsTools() bool { return false }

// sliceStream yields a fixed chunk slice.
type sliceStream struct {
	chunks []model.Chunk
	pos    int
	closed bool
}

func (s *sliceStream) Next() bool {
	if s.closed || s.pos >= len(s.chunks) {
		return false
	}
	s.pos++
	return true
}

func (s *sliceStream) Current() model.Chunk {
	if s.pos == 0 || s.pos > len(s.chunks) {
		return model.Chunk{}
	}
	return s.chunks[s.pos-1]
}

func (s *sliceStream) Err() error { return nil }

func (s *sliceStream) Close() error {
	s.closed = true
	return nil
}

var (
	_ model.Provider = (*Scripted)(nil)
	_ model.Provider = (*Echo)(nil)
)
