// Package weather provides the weather forecast component. It owns one
// channel per forecast variable at a configured location, read and logged
// through the connectors its channels are bound to.
package weather

import (
	"context"

	"go.uber.org/zap"

	"github.com/fathom-io/fathom/pkg/channel"
	"github.com/fathom-io/fathom/pkg/component"
	"github.com/fathom-io/fathom/pkg/config"
	"github.com/fathom-io/fathom/pkg/errors"
)

// TypeName is the canonical component type.
const TypeName = "weather"

// Register adds the weather component type to a component context.
func Register(ctx *component.Context) error {
	return ctx.RegisterType(TypeName, New, "forecast")
}

// forecastVariables are the channels created when the configuration does
// not declare its own channel set.
var forecastVariables = []struct {
	key  string
	kind string
}{
	{"temperature", "float"},
	{"humidity", "float"},
	{"pressure", "float"},
	{"wind_speed", "float"},
	{"wind_direction", "float"},
	{"precipitation", "float"},
	{"cloud_cover", "float"},
	{"condition", "string"},
}

// Component owns the forecast channels of one location.
type Component struct {
	*component.Base

	location *Location
}

// New creates a weather component from its configuration section.
func New(cfg *config.Section) (component.Component, error) {
	base, err := component.NewBase(cfg)
	if err != nil {
		return nil, err
	}
	return &Component{Base: base}, nil
}

// Location returns the configured location.
func (c *Component) Location() *Location { return c.location }

// Configure parses the location and registers the forecast channels. An
// explicit "channels" section takes precedence over the default variable
// set; a "connector" reference cascades into the default channels.
func (c *Component) Configure(registrar component.ChannelRegistrar) error {
	cfg := c.Configs()

	locationCfg := cfg
	if cfg.HasSection("location") {
		section, err := cfg.GetSection("location")
		if err != nil {
			return err
		}
		locationCfg = section
	}
	location, err := ParseLocation(locationCfg)
	if err != nil {
		return errors.Wrapf(err, errors.ErrorTypeConfig, "invalid location of component %q", c.ID())
	}
	c.location = location

	if err := c.Base.Configure(registrar); err != nil {
		return err
	}
	if len(c.Channels()) > 0 {
		return nil
	}

	connectorRef, hasConnector := cfg.Get("connector")
	loggerRef, hasLogger := cfg.Get("logger")
	channels := make(channel.Channels, 0, len(forecastVariables))
	for _, variable := range forecastVariables {
		channelCfg := config.New(variable.key)
		channelCfg.Set("type", variable.kind)
		if hasConnector {
			channelCfg.Set("connector", connectorRef)
		}
		if hasLogger {
			channelCfg.Set("logger", loggerRef)
		}
		ch, err := registrar.RegisterChannel(c.ID(), variable.key, channelCfg)
		if err != nil {
			return err
		}
		channels = append(channels, ch)
	}
	c.AddChannels(channels...)
	return nil
}

// Activate marks the component active and announces its location.
func (c *Component) Activate(ctx context.Context) error {
	if c.location == nil {
		return errors.Newf(errors.ErrorTypeConfig, "component %q has no location", c.ID())
	}
	if err := c.Base.Activate(ctx); err != nil {
		return err
	}
	c.Logger.Info("weather component active",
		zap.String("location", c.location.String()),
		zap.Int("channels", len(c.Channels())))
	return nil
}
