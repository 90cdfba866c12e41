package social

import (
	"fmt"
	"sort"
)

// Registry holds the configured providers and answers metadata lookups. It is
// immutable after construction; adding a provider means one adapter and one
// Register call, the flow coordination never changes.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry creates a registry with the given providers.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider)}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register adds a provider, replacing any previous one with the same name.
func (r *Registry) Register(p Provider) {
	if p == nil {
		return
	}
	r.providers[p.Name()] = p
}

// Lookup returns the provider registered under name.
func (r *Registry) Lookup(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return p, nil
}

// Describe returns the metadata for the provider registered under name.
func (r *Registry) Describe(name string) (Metadata, error) {
	p, err := r.Lookup(name)
	if err != nil {
		return Metadata{}, err
	}
	return p.Metadata(), nil
}

// Has reports whether a provider is registered under name.
func (r *Registry) Has(name string) bool {
	_, ok := r.providers[name]
	return ok
}

// Names returns the registered provider names sorted alphabetically.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
