package safety

import (
	"encoding/json"
	"time"

	"github.com/felixgeelhaar/agent-runtime/domain/policy"
	"github.com/felixgeelhaar/agent-runtime/domain/tool"
)

// CallKind distinguishes what class of external call is being intercepted.
type CallKind string

const (
	CallTool  CallKind = "tool"
	CallModel CallKind = "model"
)

// Caller identifies who is making the call for authorization checks.
type Caller struct {
	ID    string
	Roles policy.RoleSet
}

// CallContext describes one outbound call as it passes through the chain.
// Interceptors may read every field; only Payload is mutated by the chain,
// and only as the result of a Modify verdict.
type CallContext struct {
	SessionID string
	StepID    string
	Kind      CallKind
	Caller    Caller

	// Tool is set for CallTool and nil for CallModel.
	Tool *tool.Descriptor

	// Target names the callee: the tool name or the model name.
	Target string

	Payload json.RawMessage
}

// CallResult describes a completed call for post-invocation checks.
type CallResult struct {
	Payload  json.RawMessage
	Err      error
	Duration time.Duration
	Attempts int
}
