package provider

import (
	"fmt"
	"sort"
	"strings"
)

// Registry stores adapters by name and resolves the ordered fallback chain.
type Registry struct {
	providers map[string]Provider
	skipped   map[string]error
}

func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		skipped:   make(map[string]error),
	}
}

// Register adds one provider.
func (r *Registry) Register(provider Provider) error {
	if r == nil {
		return fmt.Errorf("registry is nil")
	}
	if provider == nil {
		return fmt.Errorf("provider is nil")
	}
	name := normalizeProviderName(provider.Name())
	if name == "" {
		return fmt.Errorf("provider name is required")
	}
	r.providers[name] = provider
	delete(r.skipped, name)
	return nil
}

// Skip records a provider that was left out of the registry and why.
func (r *Registry) Skip(name string, reason error) {
	if r == nil {
		return
	}
	r.skipped[normalizeProviderName(name)] = reason
}

// Provider resolves a provider by name.
func (r *Registry) Provider(name string) (Provider, error) {
	if r == nil {
		return nil, fmt.Errorf("registry is nil")
	}
	if len(r.providers) == 0 {
		return nil, fmt.Errorf("no translation providers are registered")
	}

	resolvedName := normalizeProviderName(name)
	provider, ok := r.providers[resolvedName]
	if ok {
		return provider, nil
	}
	if reason, skipped := r.skipped[resolvedName]; skipped {
		return nil, fmt.Errorf("translation provider %q is unavailable: %w", resolvedName, reason)
	}

	return nil, fmt.Errorf("translation provider %q is not registered (available: %s)", resolvedName, strings.Join(r.ProviderNames(), ", "))
}

// Chain returns the registered providers in priority order. Names that are
// not registered are left out; an empty result is an error.
func (r *Registry) Chain(priority []string) ([]Provider, error) {
	if r == nil {
		return nil, fmt.Errorf("registry is nil")
	}
	chain := make([]Provider, 0, len(priority))
	seen := make(map[string]struct{}, len(priority))
	for _, raw := range priority {
		name := normalizeProviderName(raw)
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		if provider, ok := r.providers[name]; ok {
			chain = append(chain, provider)
		}
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("none of the prioritised providers (%s) is configured", strings.Join(priority, ", "))
	}
	return chain, nil
}

func (r *Registry) ProviderNames() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Skipped returns the providers that were not registered, with reasons.
func (r *Registry) Skipped() map[string]error {
	if r == nil {
		return nil
	}
	out := make(map[string]error, len(r.skipped))
	for name, reason := range r.skipped {
		out[name] = reason
	}
	return out
}

func normalizeProviderName(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
