package interceptor

import (
	"context"
	"encoding/json"
	"regexp"

	"github.com/felixgeelhaar/agent-runtime/domain/safety"
)

// defaultRedactPatterns match common credential shapes in tool and model
// output.
var defaultRedactPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key|secret|token|password)["']?\s*[:=]\s*["']?[\w\-\.]{8,}`),
	regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`),
	regexp.MustCompile(`Bearer\s+[A-Za-z0-9\-\._~\+\/]{16,}`),
}

const redactedPlaceholder = "[REDACTED]"

// Redactor rewrites call results that contain sensitive material, yielding
// a Modify verdict with the scrubbed payload. It never denies.
type Redactor struct {
	patterns []*regexp.Regexp
}

// NewRedactor creates a redactor with the default credential patterns.
func NewRedactor() *Redactor {
	return &Redactor{patterns: defaultRedactPatterns}
}

// NewRedactorWithPatterns creates a redactor with custom patterns.
func NewRedactorWithPatterns(patterns []*regexp.Regexp) *Redactor {
	return &Redactor{patterns: patterns}
}

func (*Redactor) Name() string { return "redactor" }

// Before passes every call through unchanged.
func (*Redactor) Before(context.Context, *safety.CallContext) safety.Verdict {
	return safety.Allow()
}

// After scrubs sensitive material from the result payload.
func (r *Redactor) After(_ context.Context, _ *safety.CallContext, result *safety.CallResult) safety.Verdict {
	if len(result.Payload) == 0 {
		return safety.Allow()
	}

	scrubbed := result.Payload
	touched := false
	for _, p := range r.patterns {
		if p.Match(scrubbed) {
			scrubbed = p.ReplaceAll(scrubbed, []byte(redactedPlaceholder))
			touched = true
		}
	}
	if !touched {
		return safety.Allow()
	}

	// Re-quote if the replacement broke JSON validity.
	if !json.Valid(scrubbed) {
		quoted, err := json.Marshal(string(scrubbed))
		if err != nil {
			return safety.Deny(safety.ReasonInvalidOutput, "redaction produced unencodable payload")
		}
		scrubbed = quoted
	}
	return safety.Modify(scrubbed)
}
