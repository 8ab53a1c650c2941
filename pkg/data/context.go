// Package data provides the data context owning the canonical channel set
// and the data manager orchestrating concurrent connect, read, write and
// log dispatch across connectors.
package data

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/fathom-io/fathom/pkg/channel"
	"github.com/fathom-io/fathom/pkg/config"
	"github.com/fathom-io/fathom/pkg/connector"
	"github.com/fathom-io/fathom/pkg/errors"
	"github.com/fathom-io/fathom/pkg/frame"
	"github.com/fathom-io/fathom/pkg/logger"
	"github.com/fathom-io/fathom/pkg/registry"
)

// Context owns the canonical channel collection. Channels are registered
// under dotted hierarchical ids (<component-id>.<key>); duplicate ids are
// configuration errors. Channel-to-connector bindings are resolved here,
// at construction time, against the connector context.
type Context struct {
	logger     *zap.Logger
	connectors *connector.Context

	mu       sync.RWMutex
	ids      []string
	channels map[string]*channel.Channel

	regMu         sync.Mutex
	registrations []*registration
}

// NewContext creates an empty data context resolving bindings against the
// given connector context.
func NewContext(connectors *connector.Context) *Context {
	return &Context{
		logger:     logger.Get().With(zap.String("context", "data")),
		connectors: connectors,
		channels:   make(map[string]*channel.Channel),
	}
}

// Len returns the number of channels.
func (c *Context) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.ids)
}

// Has reports whether a channel with the id exists.
func (c *Context) Has(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.channels[id]
	return ok
}

// Get returns the channel with the given id.
func (c *Context) Get(id string) (*channel.Channel, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ch, ok := c.channels[id]
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeNotFound, "no channel registered for id %q", id)
	}
	return ch, nil
}

// Channels returns all channels in registration order.
func (c *Context) Channels() channel.Channels {
	c.mu.RLock()
	defer c.mu.RUnlock()
	channels := make(channel.Channels, 0, len(c.ids))
	for _, id := range c.ids {
		channels = append(channels, c.channels[id])
	}
	return channels
}

// Filter returns the channels matching the predicate, in order.
func (c *Context) Filter(predicate func(*channel.Channel) bool) channel.Channels {
	return c.Channels().Filter(predicate)
}

// GroupBy partitions the channels by attribute value.
func (c *Context) GroupBy(attribute func(*channel.Channel) string) []channel.Group {
	return c.Channels().GroupBy(attribute)
}

// ToFrame aligns all channels into one tabular frame.
func (c *Context) ToFrame(unique bool) (*frame.Frame, error) {
	return c.Channels().ToFrame(unique)
}

// Sort re-orders the channel table into natural order over ids.
func (c *Context) Sort() {
	c.mu.Lock()
	defer c.mu.Unlock()
	sort.SliceStable(c.ids, func(i, j int) bool { return registry.NaturalLess(c.ids[i], c.ids[j]) })
}

// Remove deletes a channel from the context.
func (c *Context) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.channels[id]; !ok {
		return
	}
	delete(c.channels, id)
	for i, existing := range c.ids {
		if existing == id {
			c.ids = append(c.ids[:i], c.ids[i+1:]...)
			break
		}
	}
}

// RegisterChannel creates a channel from its configuration section and
// registers it under <componentID>.<key>. A duplicate id is a
// configuration error. The connector and logger references are normalized
// and resolved against the connector context before the channel exists.
func (c *Context) RegisterChannel(componentID, key string, cfg *config.Section) (*channel.Channel, error) {
	if key == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "channel key must not be empty")
	}
	id := key
	if componentID != "" {
		id = componentID + "." + key
	}

	connectorBinding, err := c.resolveBinding(componentID, "connector", cfg)
	if err != nil {
		return nil, err
	}
	loggerBinding, err := c.resolveBinding(componentID, "logger", cfg)
	if err != nil {
		return nil, err
	}

	kind := channel.ParseKind(cfg.StringOr("type", ""))
	ch, err := channel.New(id, key, channel.Options{
		Name:      cfg.StringOr("name", ""),
		Kind:      kind,
		Freq:      cfg.DurationOr("freq", 0),
		Connector: connectorBinding,
		Logger:    loggerBinding,
		Context:   c,
	})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.channels[id]; exists {
		return nil, errors.Newf(errors.ErrorTypeConfig, "channel with id %q already exists", id)
	}
	c.channels[id] = ch
	c.ids = append(c.ids, id)
	return ch, nil
}

// resolveBinding normalizes a connector reference (bare name or detailed
// section) and qualifies the connector id: an exact match wins, then the
// component-qualified id. Unresolvable references fail fast.
func (c *Context) resolveBinding(componentID, key string, cfg *config.Section) (*channel.Binding, error) {
	value, ok := cfg.Get(key)
	if !ok {
		return channel.NoBinding(), nil
	}
	ref, err := config.ParseRef(key, value)
	if err != nil {
		return nil, err
	}
	if ref == nil || ref.Connector == "" {
		return channel.NoBinding(), nil
	}

	name := ref.Connector
	if c.connectors != nil && !c.connectors.Has(name) {
		if componentID != "" {
			qualified := componentID + "." + name
			if c.connectors.Has(qualified) {
				return channel.NewBinding(qualified, ref.Overrides), nil
			}
		}
		return nil, errors.Newf(errors.ErrorTypeConfig, "unknown %s %q for channel in %q", key, name, componentID)
	}
	return channel.NewBinding(name, ref.Overrides), nil
}

// LoadChannels registers the channels declared in a "channels" section of
// the top-level data configuration, owned by no component.
func (c *Context) LoadChannels(cfg *config.Section) error {
	if !cfg.HasSection("channels") {
		return nil
	}
	section, err := cfg.GetSection("channels")
	if err != nil {
		return err
	}
	defaults := section.Scalars()
	for _, channelCfg := range section.Sections() {
		merged := channelCfg.Copy()
		merged.MergeDefaults(defaults)
		key := merged.StringOr("key", channelCfg.Name())
		if _, err := c.RegisterChannel("", key, merged); err != nil {
			return err
		}
	}
	return nil
}
