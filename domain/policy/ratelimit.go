package policy

import "time"

// RateLimit declares a per-tool invocation budget: at most MaxCalls within
// Window, then a Cooldown before the next call is admitted. The zero value
// means unlimited.
type RateLimit struct {
	MaxCalls int           `json:"max_calls" yaml:"max_calls"`
	Window   time.Duration `json:"window" yaml:"window"`
	Cooldown time.Duration `json:"cooldown" yaml:"cooldown"`
}

// IsZero reports whether no rate limit is declared.
func (r RateLimit) IsZero() bool {
	return r.MaxCalls == 0 && r.Window == 0 && r.Cooldown == 0
}
