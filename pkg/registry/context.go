package registry

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/fathom-io/fathom/pkg/config"
	"github.com/fathom-io/fathom/pkg/errors"
)

// Registrar is the contract every registered entity satisfies.
type Registrar interface {
	ID() string
	Key() string
	Type() string
	Enabled() bool
	Configs() *config.Section
}

// Context is an insertion-ordered registry mapping identifiers to registered
// entities, instantiated lazily from configuration sections.
type Context[T Registrar] struct {
	registry *Registry[T]
	logger   *zap.Logger

	mu       sync.RWMutex
	ids      []string
	entities map[string]T
}

// NewContext creates an empty registrator context backed by a type registry.
func NewContext[T Registrar](registry *Registry[T], log *zap.Logger) *Context[T] {
	return &Context[T]{
		registry: registry,
		logger:   log,
		entities: make(map[string]T),
	}
}

// Registry returns the backing type registry.
func (c *Context[T]) Registry() *Registry[T] { return c.registry }

// Len returns the number of registered entities.
func (c *Context[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.ids)
}

// IDs returns the identifiers in registration order.
func (c *Context[T]) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, len(c.ids))
	copy(ids, c.ids)
	return ids
}

// Has reports whether an entity with the id is registered.
func (c *Context[T]) Has(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entities[id]
	return ok
}

// Get returns the entity with the given id.
func (c *Context[T]) Get(id string) (T, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entity, ok := c.entities[id]
	if !ok {
		var zero T
		return zero, errors.Newf(errors.ErrorTypeNotFound, "no entity registered for id %q", id)
	}
	return entity, nil
}

// Values returns all entities in registration order.
func (c *Context[T]) Values() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	values := make([]T, 0, len(c.ids))
	for _, id := range c.ids {
		values = append(values, c.entities[id])
	}
	return values
}

// Add registers entities by their id. A duplicate identifier within the
// context is a configuration error.
func (c *Context[T]) Add(entities ...T) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, entity := range entities {
		id := entity.ID()
		if _, exists := c.entities[id]; exists {
			return errors.Newf(errors.ErrorTypeConfig, "entity with id %q already exists", id)
		}
		c.entities[id] = entity
		c.ids = append(c.ids, id)
	}
	return nil
}

// Filter returns the entities matching the predicate, in registration order.
func (c *Context[T]) Filter(predicate func(T) bool) []T {
	var out []T
	for _, entity := range c.Values() {
		if predicate(entity) {
			out = append(out, entity)
		}
	}
	return out
}

// GetAll returns the entities whose TYPE tag prefixes one of the given type
// strings, or all entities when none are given.
func (c *Context[T]) GetAll(types ...string) []T {
	if len(types) == 0 {
		return c.Values()
	}
	return c.Filter(func(entity T) bool {
		for _, t := range types {
			if strings.HasPrefix(t, entity.Type()) {
				return true
			}
		}
		return false
	})
}

// GetFirst returns the first entity of the filtered, registration-ordered
// view, failing when the filter yields nothing.
func (c *Context[T]) GetFirst(types ...string) (T, error) {
	all := c.GetAll(types...)
	if len(all) == 0 {
		var zero T
		return zero, errors.Newf(errors.ErrorTypeNotFound, "no entity of types %v", types)
	}
	return all[0], nil
}

// GetLast returns the last entity of the filtered view, failing when the
// filter yields nothing.
func (c *Context[T]) GetLast(types ...string) (T, error) {
	all := c.GetAll(types...)
	if len(all) == 0 {
		var zero T
		return zero, errors.Newf(errors.ErrorTypeNotFound, "no entity of types %v", types)
	}
	return all[len(all)-1], nil
}

// Sort re-orders the context into natural order over identifiers, so
// identifiers like "ch2" sort before "ch10".
func (c *Context[T]) Sort() {
	c.mu.Lock()
	defer c.mu.Unlock()
	sort.SliceStable(c.ids, func(i, j int) bool { return NaturalLess(c.ids[i], c.ids[j]) })
}

// New instantiates an entity from a configuration section. The concrete
// type is resolved by, in order: an explicit "type" key in the entity's own
// section, a registered "type" key in the enclosing section, and finally
// the first alphanumeric token of the section's file-derived name.
func (c *Context[T]) New(cfg, enclosing *config.Section) (T, error) {
	var zero T
	name := cfg.Name()
	if !cfg.Has("key") {
		cfg.Set("key", name)
		cfg.MoveToFront("key")
	}

	typeName := typeToken(name)
	if t := cfg.StringOr("type", ""); t != "" {
		typeName = strings.ToLower(t)
	} else if enclosing != nil {
		if t := strings.ToLower(enclosing.StringOr("type", "")); t != "" && c.registry.HasType(t) {
			typeName = t
		}
	}

	canonical, ok := c.registry.Resolve(typeName)
	if !ok {
		return zero, errors.Newf(errors.ErrorTypeConfig, "invalid registration type %q for section %q", typeName, name)
	}
	if canonical != typeName {
		c.logger.Debug("resolved type alias",
			zap.String("alias", typeName),
			zap.String("type", canonical))
	}
	if !cfg.Has("type") {
		cfg.Set("type", canonical)
	}
	return c.registry.New(canonical, cfg)
}

// Update instantiates an entity and registers it, merging the configuration
// into an already registered entity with the same id instead of duplicating.
func (c *Context[T]) Update(cfg, enclosing *config.Section) (T, error) {
	entity, err := c.New(cfg, enclosing)
	if err != nil {
		var zero T
		return zero, err
	}
	if c.Has(entity.ID()) {
		existing, err := c.Get(entity.ID())
		if err != nil {
			var zero T
			return zero, err
		}
		existing.Configs().Merge(cfg)
		return existing, nil
	}
	if err := c.Add(entity); err != nil {
		var zero T
		return zero, err
	}
	return entity, nil
}

// LoadSections registers one entity per nested section of the configuration,
// cascading the enclosing scalar values as defaults.
func (c *Context[T]) LoadSections(cfg *config.Section, defaults *config.Section) ([]T, error) {
	merged := config.New(cfg.Name())
	merged.Merge(defaults)
	merged.Merge(cfg.Scalars())

	var entities []T
	for _, section := range cfg.Sections() {
		entityCfg := section.Copy()
		entityCfg.MergeDefaults(merged)
		entity, err := c.Update(entityCfg, cfg)
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}
	return entities, nil
}

// LoadFile loads a single named file of sections, if it exists.
func (c *Context[T]) LoadFile(path string, defaults *config.Section) ([]T, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return c.LoadSections(cfg, defaults)
}

// LoadDir registers one entity per matching file in a directory. Files
// match when their name carries the configuration suffix, is not the
// reserved defaults file, and is prefixed by a registered type name or
// alias.
func (c *Context[T]) LoadDir(dir string, defaults *config.Section) ([]T, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to scan config dir")
	}

	prefixes := c.registry.Prefixes()
	var entities []T
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, config.Suffix) || name == config.DefaultsName {
			continue
		}
		matched := false
		for _, prefix := range prefixes {
			if strings.HasPrefix(name, prefix) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		cfg, err := config.Load(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		cfg.MergeDefaults(defaults)
		entity, err := c.Update(cfg, nil)
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}
	return entities, nil
}

// typeToken extracts the first alphanumeric token of a section name, the
// fallback type resolution for file-derived names like "sql-meters".
func typeToken(name string) string {
	for i, r := range name {
		alnum := r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9'
		if !alnum {
			return strings.ToLower(name[:i])
		}
	}
	return strings.ToLower(name)
}
