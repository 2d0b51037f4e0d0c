package tool

// Registry defines the interface for tool registration and resolution.
// This is a repository interface - implementations are in infrastructure.
//
// List and Names return tools in registration order so tool-selection logic
// and tests are reproducible across runs.
type Registry interface {
	// Register adds a tool to the registry.
	Register(capability Capability) error

	// Resolve retrieves a tool by name.
	Resolve(name string) (Capability, error)

	// List returns all registered tools in registration order.
	List() []Capability

	// Names returns all registered tool names in registration order.
	Names() []string

	// Has checks if a tool is registered.
	Has(name string) bool
}
