// Package registry provides the generic machinery for configured, lazily
// instantiated entities: a type registry mapping canonical type names and
// aliases to factories, and an insertion-ordered registrator context keyed
// by identifier.
package registry

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/fathom-io/fathom/pkg/config"
	"github.com/fathom-io/fathom/pkg/errors"
	"github.com/fathom-io/fathom/pkg/logger"
)

// Factory creates an entity instance from its configuration section.
type Factory[T any] func(cfg *config.Section) (T, error)

// Registration binds a canonical type name and its aliases to a factory.
type Registration[T any] struct {
	Type    string
	Aliases []string
	Factory Factory[T]
}

// Registry maps canonical type names to factories. Aliases are resolved to
// their canonical name once, at registration; lookups of unknown names fail
// fast with a configuration error.
type Registry[T any] struct {
	name    string
	mu      sync.RWMutex
	types   map[string]*Registration[T]
	aliases map[string]string
	logger  *zap.Logger
}

// NewRegistry creates a named type registry.
func NewRegistry[T any](name string) *Registry[T] {
	return &Registry[T]{
		name:    name,
		types:   make(map[string]*Registration[T]),
		aliases: make(map[string]string),
		logger:  logger.Get().With(zap.String("registry", name)),
	}
}

// Register adds a factory under a canonical type name with optional aliases.
// Duplicate type names or aliases are configuration errors.
func (r *Registry[T]) Register(typeName string, factory Factory[T], aliases ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.types[typeName]; exists {
		return errors.Newf(errors.ErrorTypeConfig, "type %q already registered in %s registry", typeName, r.name)
	}
	if canonical, exists := r.aliases[typeName]; exists {
		return errors.Newf(errors.ErrorTypeConfig, "type %q already aliased to %q in %s registry", typeName, canonical, r.name)
	}
	for _, alias := range aliases {
		if _, exists := r.types[alias]; exists {
			return errors.Newf(errors.ErrorTypeConfig, "alias %q collides with a registered type in %s registry", alias, r.name)
		}
		if _, exists := r.aliases[alias]; exists {
			return errors.Newf(errors.ErrorTypeConfig, "alias %q already registered in %s registry", alias, r.name)
		}
	}

	r.types[typeName] = &Registration[T]{Type: typeName, Aliases: aliases, Factory: factory}
	for _, alias := range aliases {
		r.aliases[alias] = typeName
	}
	r.logger.Info("type registered", zap.String("type", typeName), zap.Strings("aliases", aliases))
	return nil
}

// Resolve normalizes a type name or alias to its canonical name.
func (r *Registry[T]) Resolve(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.types[name]; ok {
		return name, true
	}
	if canonical, ok := r.aliases[name]; ok {
		return canonical, true
	}
	return "", false
}

// HasType reports whether the name resolves to a registered type.
func (r *Registry[T]) HasType(name string) bool {
	_, ok := r.Resolve(name)
	return ok
}

// Types returns the canonical type names, sorted.
func (r *Registry[T]) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.types))
	for name := range r.types {
		types = append(types, name)
	}
	sort.Strings(types)
	return types
}

// Prefixes returns all type names and aliases, used to match configuration
// file names during directory discovery.
func (r *Registry[T]) Prefixes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	prefixes := make([]string, 0, len(r.types)+len(r.aliases))
	for name := range r.types {
		prefixes = append(prefixes, name)
	}
	for alias := range r.aliases {
		prefixes = append(prefixes, alias)
	}
	sort.Strings(prefixes)
	return prefixes
}

// New instantiates an entity of the given type from its configuration,
// failing fast when the type is unknown.
func (r *Registry[T]) New(typeName string, cfg *config.Section) (T, error) {
	var zero T
	canonical, ok := r.Resolve(typeName)
	if !ok {
		return zero, errors.Newf(errors.ErrorTypeConfig, "invalid registration type %q in %s registry", typeName, r.name)
	}
	r.mu.RLock()
	registration := r.types[canonical]
	r.mu.RUnlock()

	entity, err := registration.Factory(cfg)
	if err != nil {
		return zero, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create "+canonical)
	}
	return entity, nil
}
