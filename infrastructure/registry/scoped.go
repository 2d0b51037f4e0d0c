package registry

import (
	"errors"

	"github.com/felixgeelhaar/agent-runtime/domain/tool"
)

// Scoped layers a session-local registry over a shared global one.
// Resolution checks the overlay first and falls back to the base; session
// registrations never leak into the base. An overlay entry shadows a base
// entry of the same name.
type Scoped struct {
	base    tool.Registry
	overlay *InMemory
}

// NewScoped creates an overlay registry over base.
func NewScoped(base tool.Registry) *Scoped {
	return &Scoped{
		base:    base,
		overlay: NewInMemory(),
	}
}

// Register adds a capability to the session-local overlay.
func (s *Scoped) Register(c tool.Capability) error {
	return s.overlay.Register(c)
}

// Resolve checks the overlay first, then the base.
func (s *Scoped) Resolve(name string) (tool.Capability, error) {
	if c, err := s.overlay.Resolve(name); err == nil {
		return c, nil
	} else if !errors.Is(err, tool.ErrUnknownTool) {
		return nil, err
	}
	return s.base.Resolve(name)
}

// List returns overlay capabilities first, then base capabilities not
// shadowed by the overlay, each group in registration order.
func (s *Scoped) List() []tool.Capability {
	out := s.overlay.List()
	for _, c := range s.base.List() {
		if !s.overlay.Has(c.Descriptor().Name) {
			out = append(out, c)
		}
	}
	return out
}

// Names returns the names of everything List would return.
func (s *Scoped) Names() []string {
	caps := s.List()
	out := make([]string, len(caps))
	for i, c := range caps {
		out[i] = c.Descriptor().Name
	}
	return out
}

// Has checks the overlay and the base.
func (s *Scoped) Has(name string) bool {
	return s.overlay.Has(name) || s.base.Has(name)
}
