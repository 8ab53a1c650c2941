package connector

import (
	"go.uber.org/zap"

	"github.com/fathom-io/fathom/pkg/config"
	"github.com/fathom-io/fathom/pkg/logger"
	"github.com/fathom-io/fathom/pkg/registry"
)

// DriverFactory creates a driver instance from its configuration section.
type DriverFactory func(cfg *config.Section) (Driver, error)

// Context is the registrator context specialized for connectors. Entities
// are guarded Connector wrappers around registered drivers.
type Context struct {
	*registry.Context[*Connector]
}

// NewContext creates an empty connector context backed by a fresh type
// registry.
func NewContext() *Context {
	reg := registry.NewRegistry[*Connector]("connector")
	return &Context{
		Context: registry.NewContext(reg, logger.Get().With(zap.String("context", "connectors"))),
	}
}

// RegisterType registers a driver factory under a canonical type name with
// optional aliases. Instances come out wrapped in the guarded Connector.
func (c *Context) RegisterType(typeName string, factory DriverFactory, aliases ...string) error {
	return c.Registry().Register(typeName, func(cfg *config.Section) (*Connector, error) {
		driver, err := factory(cfg)
		if err != nil {
			return nil, err
		}
		return Wrap(driver, cfg)
	}, aliases...)
}

// Configure runs the configuration hook of every enabled connector.
// Disabled connectors are skipped.
func (c *Context) Configure() error {
	for _, conn := range c.Values() {
		if !conn.Enabled() {
			continue
		}
		if err := conn.Configure(); err != nil {
			return err
		}
	}
	return nil
}
