package registry

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/aretw0/patchbay/pkg/domain"
	"github.com/aretw0/patchbay/pkg/ports"
)

// ErrSealed is returned when registering a provider after Seal.
var ErrSealed = errors.New("registry sealed")

// Registry maps type identifiers to the providers that can build them.
//
// Providers are consulted in registration order and the first match wins.
// A deployment registers its providers once at startup and then calls Seal;
// lookups after that never contend with writers.
type Registry struct {
	mu        sync.RWMutex
	providers []ports.Provider
	known     []string
	seen      map[string]struct{}
	sealed    bool
	logger    *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets a custom structured logger for the registry.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{seen: make(map[string]struct{})}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return r
}

// RegisterProvider adds p and merges its advertised identifiers into the
// known types. Empty and duplicate identifiers are dropped. Registering the
// same provider twice is a no-op.
func (r *Registry) RegisterProvider(p ports.Provider) error {
	if p == nil {
		return errors.New("nil provider")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return fmt.Errorf("register %q: %w", p.Name(), ErrSealed)
	}
	if !slices.Contains(r.providers, p) {
		r.providers = append(r.providers, p)
	}
	added := 0
	for _, id := range p.KnownTypes() {
		if id == "" {
			continue
		}
		if _, dup := r.seen[id]; dup {
			continue
		}
		r.seen[id] = struct{}{}
		r.known = append(r.known, id)
		added++
	}
	r.logger.Debug("provider registered", "provider", p.Name(), "types", added)
	return nil
}

// Seal freezes the provider list.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// KnownTypes returns every advertised identifier in registration order.
func (r *Registry) KnownTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.known)
}

// Providers returns the provider names in precedence order.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.providers))
	for i, p := range r.providers {
		names[i] = p.Name()
	}
	return names
}

// Describe returns the description from the first provider that accepts
// identifier. Returns a *domain.LookupError if none does.
func (r *Registry) Describe(identifier string) (domain.NodeDescription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if identifier != "" {
		for _, p := range r.providers {
			if desc, ok := p.Describe(identifier); ok {
				return desc, nil
			}
		}
	}
	return domain.NodeDescription{}, &domain.LookupError{Identifier: identifier}
}

// Instantiate asks each provider in order to create a unit and returns the
// first one produced. Returns a *domain.LookupError if none does.
func (r *Registry) Instantiate(identifier string) (ports.Unit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if identifier != "" {
		for _, p := range r.providers {
			if unit, ok := p.Instantiate(identifier); ok && unit != nil {
				return unit, nil
			}
		}
	}
	return nil, &domain.LookupError{Identifier: identifier}
}
