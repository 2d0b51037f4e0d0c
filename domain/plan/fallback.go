package plan

// Strategy selects what the executor does after retries are exhausted or an
// interceptor requires a fallback.
type Strategy string

const (
	// StrategySkip records the failure and moves on to the next step.
	StrategySkip Strategy = "skip"

	// StrategyAbort fails the step with no substitute.
	StrategyAbort Strategy = "abort"

	// StrategyRetryWithLimit grants a bounded number of extra attempts.
	StrategyRetryWithLimit Strategy = "retry_with_limit"

	// StrategyAlternateTool substitutes a different tool for the call.
	StrategyAlternateTool Strategy = "alternate_tool"
)

// Fallback is the alternate directive substituted when a call cannot
// proceed as planned.
type Fallback struct {
	Strategy Strategy `json:"strategy"`

	// Tool names the substitute for StrategyAlternateTool.
	Tool string `json:"tool,omitempty"`

	// ExtraRetries bounds StrategyRetryWithLimit.
	ExtraRetries int `json:"extra_retries,omitempty"`

	// Reason documents why the fallback exists.
	Reason string `json:"reason,omitempty"`
}
