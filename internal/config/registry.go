package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"lanpad/internal/settings"
	"lanpad/pkg/provider/correct"
)

// ErrProviderNotRegistered is returned by [Registry.CreateCorrector] when
// no factory has been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// CorrectorFactory builds a correction provider from the user's
// per-provider settings.
type CorrectorFactory func(settings.ProviderSettings) (correct.Provider, error)

// Registry maps correction provider names to their constructor functions.
// It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	correctors map[string]CorrectorFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		correctors: make(map[string]CorrectorFactory),
	}
}

// RegisterCorrector registers a correction provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterCorrector(name string, factory CorrectorFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.correctors[name] = factory
}

// CreateCorrector instantiates a correction provider using the factory
// registered under name. Returns [ErrProviderNotRegistered] if no factory
// has been registered for that name.
func (r *Registry) CreateCorrector(name string, ps settings.ProviderSettings) (correct.Provider, error) {
	r.mu.RLock()
	factory, ok := r.correctors[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProviderNotRegistered, name)
	}
	return factory(ps)
}

// Names returns all registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.correctors))
	for name := range r.correctors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
