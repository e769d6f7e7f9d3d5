package llm

import (
	"fmt"
	"sync"
)

// Factory builds a provider bound to an API key.
type Factory func(apiKey string) Provider

// Registry maps provider names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register registers a provider factory under name.
func (r *Registry) Register(name string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("provider %s already registered", name)
	}

	r.factories[name] = factory
	return nil
}

// Build constructs the named provider with the given API key.
func (r *Registry) Build(name, apiKey string) (Provider, error) {
	r.mu.RLock()
	factory, exists := r.factories[name]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("provider %s not found", name)
	}
	return factory(apiKey), nil
}

// List returns all registered provider names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}

var defaultRegistry = NewRegistry()

func init() {
	_ = defaultRegistry.Register("openai", func(apiKey string) Provider { return NewOpenAIProvider(apiKey) })
	_ = defaultRegistry.Register("anthropic", func(apiKey string) Provider { return NewAnthropicProvider(apiKey) })
}

// Build constructs a provider from the default registry.
func Build(name, apiKey string) (Provider, error) {
	return defaultRegistry.Build(name, apiKey)
}

// Providers lists the names in the default registry.
func Providers() []string {
	return defaultRegistry.List()
}
