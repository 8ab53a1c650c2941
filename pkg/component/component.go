// Package component provides in-process logical components. A component
// owns a set of channels registered under its id namespace and follows an
// activate/deactivate lifecycle driven by the data manager.
package component

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/fathom-io/fathom/pkg/channel"
	"github.com/fathom-io/fathom/pkg/config"
	"github.com/fathom-io/fathom/pkg/errors"
	"github.com/fathom-io/fathom/pkg/logger"
)

// ChannelRegistrar registers a channel under a component's namespace and
// returns the canonical channel owned by the data context. Components hold
// only this non-owning reference into the context.
type ChannelRegistrar interface {
	RegisterChannel(componentID, key string, cfg *config.Section) (*channel.Channel, error)
}

// Component is an in-process logical unit owning channels.
type Component interface {
	ID() string
	Key() string
	Type() string
	Enabled() bool
	Configs() *config.Section

	Configure(registrar ChannelRegistrar) error
	Channels() channel.Channels
	Activate(ctx context.Context) error
	Deactivate(ctx context.Context) error
	IsActive() bool
}

// Base carries the common component state. Concrete components embed it
// and override the lifecycle hooks they need.
type Base struct {
	id       string
	key      string
	name     string
	typeName string
	enabled  bool

	cfg    *config.Section
	Logger *zap.Logger

	mu       sync.Mutex
	channels channel.Channels
	active   bool
}

// NewBase creates the common component state from a configuration section.
func NewBase(cfg *config.Section) (*Base, error) {
	key := cfg.StringOr("key", cfg.Name())
	if key == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "component key must not be empty")
	}
	id := cfg.StringOr("id", key)
	return &Base{
		id:       id,
		key:      key,
		name:     cfg.StringOr("name", key),
		typeName: cfg.StringOr("type", ""),
		enabled:  cfg.BoolOr("enabled", true),
		cfg:      cfg,
		Logger:   logger.Get().With(zap.String("component", id)),
	}, nil
}

// ID returns the component identifier.
func (b *Base) ID() string { return b.id }

// Key returns the local name.
func (b *Base) Key() string { return b.key }

// Name returns the display name.
func (b *Base) Name() string { return b.name }

// Type returns the registered type name.
func (b *Base) Type() string { return b.typeName }

// Enabled reports whether the component takes part in the lifecycle.
func (b *Base) Enabled() bool { return b.enabled }

// Configs returns the configuration section.
func (b *Base) Configs() *config.Section { return b.cfg }

// Channels returns the channels owned by the component.
func (b *Base) Channels() channel.Channels {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.channels
}

// AddChannels records channels registered by a concrete component outside
// the common "channels" section.
func (b *Base) AddChannels(channels ...*channel.Channel) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.channels = b.channels.Add(channels...)
}

// Configure registers the component's channels from its "channels"
// configuration section. Scalar values of the section cascade as defaults
// into each channel definition.
func (b *Base) Configure(registrar ChannelRegistrar) error {
	if !b.cfg.HasSection("channels") {
		return nil
	}
	section, err := b.cfg.GetSection("channels")
	if err != nil {
		return err
	}
	defaults := section.Scalars()
	for _, channelCfg := range section.Sections() {
		cfg := channelCfg.Copy()
		cfg.MergeDefaults(defaults)
		key := cfg.StringOr("key", channelCfg.Name())
		ch, err := registrar.RegisterChannel(b.id, key, cfg)
		if err != nil {
			return err
		}
		b.mu.Lock()
		b.channels = b.channels.Add(ch)
		b.mu.Unlock()
	}
	return nil
}

// Activate marks the component active.
func (b *Base) Activate(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.active = true
	return nil
}

// Deactivate marks the component inactive.
func (b *Base) Deactivate(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.active = false
	return nil
}

// IsActive reports whether the component is between Activate and Deactivate.
func (b *Base) IsActive() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}
