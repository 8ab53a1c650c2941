package component

import (
	"context"

	"go.uber.org/zap"

	"github.com/fathom-io/fathom/pkg/config"
	"github.com/fathom-io/fathom/pkg/logger"
	"github.com/fathom-io/fathom/pkg/registry"
)

// Factory creates a component instance from its configuration section.
type Factory func(cfg *config.Section) (Component, error)

// Context is the registrator context specialized for components.
type Context struct {
	*registry.Context[Component]
	logger *zap.Logger
}

// NewContext creates an empty component context backed by a fresh type
// registry.
func NewContext() *Context {
	log := logger.Get().With(zap.String("context", "components"))
	reg := registry.NewRegistry[Component]("component")
	return &Context{
		Context: registry.NewContext(reg, log),
		logger:  log,
	}
}

// RegisterType registers a component factory under a canonical type name
// with optional aliases.
func (c *Context) RegisterType(typeName string, factory Factory, aliases ...string) error {
	return c.Registry().Register(typeName, registry.Factory[Component](factory), aliases...)
}

// Configure registers the channels of every enabled component.
func (c *Context) Configure(registrar ChannelRegistrar) error {
	for _, comp := range c.Values() {
		if !comp.Enabled() {
			c.logger.Debug("skipping configuring disabled component", zap.String("id", comp.ID()))
			continue
		}
		if err := comp.Configure(registrar); err != nil {
			return err
		}
	}
	return nil
}

// Activate activates enabled components in registration order. Failures
// are logged and do not abort sibling activation.
func (c *Context) Activate(ctx context.Context) {
	for _, comp := range c.Values() {
		if !comp.Enabled() {
			c.logger.Debug("skipping activating disabled component", zap.String("id", comp.ID()))
			continue
		}
		c.logger.Info("activating component", zap.String("id", comp.ID()))
		if err := comp.Activate(ctx); err != nil {
			c.logger.Warn("error activating component", zap.String("id", comp.ID()), zap.Error(err))
		}
	}
}

// Deactivate deactivates active components in reverse registration order.
// Failures are logged and do not abort sibling deactivation.
func (c *Context) Deactivate(ctx context.Context) {
	values := c.Values()
	for i := len(values) - 1; i >= 0; i-- {
		comp := values[i]
		if !comp.IsActive() {
			continue
		}
		c.logger.Info("deactivating component", zap.String("id", comp.ID()))
		if err := comp.Deactivate(ctx); err != nil {
			c.logger.Warn("error deactivating component", zap.String("id", comp.ID()), zap.Error(err))
		}
	}
}
