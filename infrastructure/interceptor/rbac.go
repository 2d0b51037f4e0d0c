package interceptor

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/agent-runtime/domain/safety"
	"github.com/felixgeelhaar/agent-runtime/infrastructure/logging"
)

// RBAC denies tool calls whose access tags the caller's role set does not
// satisfy. Tools without access tags are unrestricted.
type RBAC struct{}

// NewRBAC creates the role-check interceptor.
func NewRBAC() *RBAC {
	return &RBAC{}
}

func (*RBAC) Name() string { return "rbac" }

// Before checks the caller's roles against the tool's access tags.
func (*RBAC) Before(_ context.Context, call *safety.CallContext) safety.Verdict {
	if call.Kind != safety.CallTool || call.Tool == nil {
		return safety.Allow()
	}
	if call.Caller.Roles.Satisfies(call.Tool.AccessTags) {
		return safety.Allow()
	}

	logging.Warn().
		Add(logging.SessionID(call.SessionID)).
		Add(logging.ToolName(call.Tool.Name)).
		Add(logging.Str("caller", call.Caller.ID)).
		Msg("caller lacks required role")
	return safety.Deny(safety.ReasonUnauthorized,
		fmt.Sprintf("caller %q lacks roles for tool %q", call.Caller.ID, call.Tool.Name))
}

// After is a no-op; authorization only gates admission.
func (*RBAC) After(context.Context, *safety.CallContext, *safety.CallResult) safety.Verdict {
	return safety.Allow()
}
