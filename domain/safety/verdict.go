// Package safety provides the interceptor contract applied around every
// external call the runtime makes: tool invocations and model invocations.
package safety

import (
	"encoding/json"
	"time"

	"github.com/felixgeelhaar/agent-runtime/domain/plan"
)

// VerdictKind classifies an interceptor's decision.
type VerdictKind string

const (
	VerdictAllow           VerdictKind = "allow"
	VerdictDeny            VerdictKind = "deny"
	VerdictModify          VerdictKind = "modify"
	VerdictRequireFallback VerdictKind = "require_fallback"
)

// Reason identifies why a call was denied.
type Reason string

const (
	ReasonRateLimited   Reason = "RateLimited"
	ReasonUnauthorized  Reason = "Unauthorized"
	ReasonPolicyTimeout Reason = "PolicyTimeout"
	ReasonInvalidInput  Reason = "InvalidInput"
	ReasonInvalidOutput Reason = "InvalidOutput"
	ReasonPromptBlocked Reason = "PromptBlocked"
)

// Verdict is the ephemeral result of one policy check.
type Verdict struct {
	Kind   VerdictKind `json:"kind"`
	Reason Reason      `json:"reason,omitempty"`

	// Detail is a human-readable explanation attached to a denial.
	Detail string `json:"detail,omitempty"`

	// Payload carries the transformed payload for VerdictModify.
	Payload json.RawMessage `json:"payload,omitempty"`

	// Fallback carries the alternate directive for VerdictRequireFallback.
	Fallback *plan.Fallback `json:"fallback,omitempty"`

	// RetryAfter is the remaining wait attached to a RateLimited denial.
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

// Allow admits the call unchanged.
func Allow() Verdict {
	return Verdict{Kind: VerdictAllow}
}

// Deny rejects the call with a reason.
func Deny(reason Reason, detail string) Verdict {
	return Verdict{Kind: VerdictDeny, Reason: reason, Detail: detail}
}

// DenyFor rejects the call with a remaining-wait hint.
func DenyFor(reason Reason, detail string, wait time.Duration) Verdict {
	return Verdict{Kind: VerdictDeny, Reason: reason, Detail: detail, RetryAfter: wait}
}

// Modify admits the call with a transformed payload.
func Modify(payload json.RawMessage) Verdict {
	return Verdict{Kind: VerdictModify, Payload: payload}
}

// RequireFallback instructs the executor to substitute an alternate
// tool, model, or directive instead of retrying the same call.
func RequireFallback(f plan.Fallback) Verdict {
	return Verdict{Kind: VerdictRequireFallback, Fallback: &f}
}

// Allowed reports whether the verdict admits the call.
func (v Verdict) Allowed() bool {
	return v.Kind == VerdictAllow || v.Kind == VerdictModify
}
