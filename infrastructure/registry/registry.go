// Package registry provides tool.Registry implementations.
package registry

import (
	"sync"

	"github.com/felixgeelhaar/agent-runtime/domain/tool"
)

// InMemory is a map-backed tool.Registry that preserves registration
// order for List and Names. Reads take a shared lock; registration is
// exclusive so no resolve observes a partially registered tool.
type InMemory struct {
	mu    sync.RWMutex
	tools map[string]tool.Capability
	order []string
}

// NewInMemory creates an empty registry.
func NewInMemory() *InMemory {
	return &InMemory{
		tools: make(map[string]tool.Capability),
	}
}

// Register adds a capability to the registry.
func (r *InMemory) Register(c tool.Capability) error {
	name := c.Descriptor().Name
	if name == "" {
		return tool.ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return tool.ErrDuplicateTool
	}

	r.tools[name] = c
	r.order = append(r.order, name)
	return nil
}

// Resolve returns the capability registered under name.
func (r *InMemory) Resolve(name string) (tool.Capability, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.tools[name]
	if !ok {
		return nil, tool.ErrUnknownTool
	}
	return c, nil
}

// List returns all capabilities in registration order.
func (r *InMemory) List() []tool.Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]tool.Capability, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Names returns all tool names in registration order.
func (r *InMemory) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Has checks whether a tool is registered.
func (r *InMemory) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.tools[name]
	return ok
}

// Count returns the number of registered tools.
func (r *InMemory) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
