package interceptor

import (
	"context"
	"strings"

	"github.com/felixgeelhaar/agent-runtime/domain/safety"
)

// PromptFilter blocks model calls whose payload contains a denied phrase.
// Matching is case-insensitive on the raw payload text.
type PromptFilter struct {
	blocked []string
}

// NewPromptFilter creates a filter over the given blocked phrases.
func NewPromptFilter(blocked []string) *PromptFilter {
	lowered := make([]string, len(blocked))
	for i, b := range blocked {
		lowered[i] = strings.ToLower(b)
	}
	return &PromptFilter{blocked: lowered}
}

func (*PromptFilter) Name() string { return "prompt_filter" }

// Before denies model calls containing a blocked phrase.
func (f *PromptFilter) Before(_ context.Context, call *safety.CallContext) safety.Verdict {
	if call.Kind != safety.CallModel || len(f.blocked) == 0 {
		return safety.Allow()
	}
	haystack := strings.ToLower(string(call.Payload))
	for _, phrase := range f.blocked {
		if strings.Contains(haystack, phrase) {
			return safety.Deny(safety.ReasonPromptBlocked, "prompt contains a blocked phrase")
		}
	}
	return safety.Allow()
}

// After passes results through unchanged.
func (*PromptFilter) After(context.Context, *safety.CallContext, *safety.CallResult) safety.Verdict {
	return safety.Allow()
}
