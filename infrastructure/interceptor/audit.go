package interceptor

import (
	"context"

	"github.com/felixgeelhaar/agent-runtime/domain/safety"
	"github.com/felixgeelhaar/agent-runtime/domain/telemetry"
	"github.com/felixgeelhaar/agent-runtime/infrastructure/logging"
)

// Audit records every call passing through the chain to the telemetry sink
// and the structured log. It always allows; audit never gates a call.
type Audit struct {
	sink telemetry.Sink
}

// NewAudit creates the audit interceptor over the given sink.
func NewAudit(sink telemetry.Sink) *Audit {
	if sink == nil {
		sink = telemetry.NopSink{}
	}
	return &Audit{sink: sink}
}

func (*Audit) Name() string { return "audit" }

// Before records the inbound call.
func (a *Audit) Before(_ context.Context, call *safety.CallContext) safety.Verdict {
	a.sink.Emit(telemetry.Event{
		Kind:      telemetry.EventAudit,
		SessionID: call.SessionID,
		Attributes: []telemetry.Attribute{
			telemetry.String("phase", "before"),
			telemetry.String("kind", string(call.Kind)),
			telemetry.String("target", call.Target),
			telemetry.String("caller", call.Caller.ID),
			telemetry.String("step_id", call.StepID),
		},
	})
	return safety.Allow()
}

// After records the call outcome.
func (a *Audit) After(_ context.Context, call *safety.CallContext, result *safety.CallResult) safety.Verdict {
	attrs := []telemetry.Attribute{
		telemetry.String("phase", "after"),
		telemetry.String("kind", string(call.Kind)),
		telemetry.String("target", call.Target),
		telemetry.Int("attempts", result.Attempts),
		telemetry.Int64("duration_ms", result.Duration.Milliseconds()),
		telemetry.Bool("failed", result.Err != nil),
	}
	a.sink.Emit(telemetry.Event{
		Kind:       telemetry.EventAudit,
		SessionID:  call.SessionID,
		Attributes: attrs,
	})
	if result.Err != nil {
		logging.Debug().
			Add(logging.SessionID(call.SessionID)).
			Add(logging.Str("target", call.Target)).
			Add(logging.ErrorField(result.Err)).
			Msg("audited failed call")
	}
	return safety.Allow()
}
