package tool

import (
	"encoding/json"

	"github.com/felixgeelhaar/agent-runtime/domain/policy"
)

// Descriptor is the immutable registration record for a tool: its identity,
// input/output contracts, access-control tags, and rate-limit policy.
// Descriptors are registered once at startup; hot reload replaces the whole
// registry, never a descriptor in place.
type Descriptor struct {
	// Name uniquely identifies the tool within a registry.
	Name string `json:"name"`

	// Description is a human-readable summary of what the tool does.
	Description string `json:"description,omitempty"`

	// InputSchema is the JSON Schema the input must satisfy.
	InputSchema json.RawMessage `json:"input_schema,omitempty"`

	// OutputSchema is the JSON Schema the output must satisfy.
	OutputSchema json.RawMessage `json:"output_schema,omitempty"`

	// AccessTags guard invocation; a caller needs at least one matching role.
	// Empty means unrestricted.
	AccessTags []string `json:"access_tags,omitempty"`

	// RateLimit bounds how often the tool may be called per caller.
	RateLimit policy.RateLimit `json:"rate_limit,omitempty"`
}

// Restricted reports whether the tool carries access-control tags.
func (d Descriptor) Restricted() bool {
	return len(d.AccessTags) > 0
}
