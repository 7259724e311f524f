package provider

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
)

// ErrUnknownType is returned by Create for a type with no factory.
var ErrUnknownType = errors.New("unknown provider type")

// Factory builds a provider named name from its settings map.
type Factory func(name string, config map[string]string) (Provider, error)

// Registry maps provider type names ("route53", "rfc2136", ...) to factories.
type Registry struct {
	logger *slog.Logger

	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger, factories: map[string]Factory{}}
}

// RegisterFactory binds typeName to factory, replacing any earlier binding.
func (r *Registry) RegisterFactory(typeName string, factory Factory) {
	r.mu.Lock()
	r.factories[typeName] = factory
	r.mu.Unlock()

	r.logger.Debug("registered provider factory", slog.String("type", typeName))
}

// Types lists the registered type names, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.factories))
}

// Create builds provider name with the factory registered for typeName.
func (r *Registry) Create(name, typeName string, config map[string]string) (Provider, error) {
	r.mu.RLock()
	factory := r.factories[typeName]
	r.mu.RUnlock()

	if factory == nil {
		return nil, fmt.Errorf("%w %q for %s (one of %s)", ErrUnknownType, typeName, name, strings.Join(r.Types(), ", "))
	}

	p, err := factory(name, config)
	switch {
	case err != nil:
		return nil, fmt.Errorf("creating provider %s: %w", name, err)
	case p == nil:
		return nil, fmt.Errorf("creating provider %s: %s factory returned no provider", name, typeName)
	}

	r.logger.Info("created provider", slog.String("name", p.Name()), slog.String("type", p.Type()))
	return p, nil
}
