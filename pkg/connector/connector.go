// Package connector provides the polymorphic external-I/O endpoint
// abstraction. Concrete backends implement the Driver hook set; the
// Connector wrapper enforces the lifecycle state machine around them:
//
//	UNCONFIGURED -> CONFIGURED -> CONNECTED <-> DISCONNECTED
//
// The wrapper guards connect against disabled or unconfigured drivers,
// makes disconnect idempotent, stamps connect/disconnect timestamps and
// swaps the bound resource set atomically, so a failed connect never
// partially replaces resources. Reconnection is pull-based: the wrapper
// only answers IsReconnectable; the orchestrator decides when to retry.
package connector

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fathom-io/fathom/pkg/channel"
	"github.com/fathom-io/fathom/pkg/config"
	"github.com/fathom-io/fathom/pkg/errors"
	"github.com/fathom-io/fathom/pkg/frame"
	"github.com/fathom-io/fathom/pkg/logger"
	"github.com/fathom-io/fathom/pkg/metrics"
)

// DefaultReconnectInterval gates retry attempts after a disconnect.
const DefaultReconnectInterval = time.Minute

// Driver is the hook set a concrete connector backend implements. The
// orchestrator never calls a Driver directly; all access goes through the
// guarded Connector wrapper.
type Driver interface {
	Configure(cfg *config.Section) error
	Connect(ctx context.Context, resources channel.Channels) error
	Disconnect(ctx context.Context) error
	Read(ctx context.Context, resources channel.Channels, start, end time.Time) (*frame.Frame, error)
	Write(ctx context.Context, data *frame.Frame) error
}

// HealthChecker is an optional Driver extension for backends that can
// probe their live connection.
type HealthChecker interface {
	IsConnected() bool
}

// Connector wraps a Driver with the guarded lifecycle entry points.
type Connector struct {
	id       string
	key      string
	uuid     string
	typeName string
	enabled  bool

	driver Driver
	cfg    *config.Section
	logger *zap.Logger
	stats  *metrics.Collector

	now func() time.Time

	mu                  sync.Mutex
	configured          bool
	connected           bool
	connectTimestamp    time.Time
	disconnectTimestamp time.Time
	reconnectInterval   time.Duration
	resources           channel.Channels
}

// Wrap creates the guarded wrapper around a driver from its configuration
// section. The id defaults to the section key; the reconnect interval to
// one minute.
func Wrap(driver Driver, cfg *config.Section) (*Connector, error) {
	if driver == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "connector driver must not be nil")
	}
	key := cfg.StringOr("key", cfg.Name())
	if key == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "connector key must not be empty")
	}
	id := cfg.StringOr("id", key)
	c := &Connector{
		id:                id,
		key:               key,
		uuid:              uuid.NewString(),
		typeName:          cfg.StringOr("type", ""),
		enabled:           cfg.BoolOr("enabled", true),
		driver:            driver,
		cfg:               cfg,
		logger:            logger.Get().With(zap.String("connector", id)),
		stats:             metrics.NewCollector(id),
		now:               time.Now,
		reconnectInterval: cfg.DurationOr("reconnect_interval", DefaultReconnectInterval),
	}
	return c, nil
}

// ID returns the connector identifier.
func (c *Connector) ID() string { return c.id }

// Key returns the local name.
func (c *Connector) Key() string { return c.key }

// UUID returns the unique instance id.
func (c *Connector) UUID() string { return c.uuid }

// Type returns the registered type name.
func (c *Connector) Type() string { return c.typeName }

// Enabled reports whether the connector takes part in dispatch.
func (c *Connector) Enabled() bool { return c.enabled }

// Configs returns the configuration section.
func (c *Connector) Configs() *config.Section { return c.cfg }

// Driver returns the wrapped backend.
func (c *Connector) Driver() Driver { return c.driver }

// Stats returns the in-process read/write counters for this connector.
func (c *Connector) Stats() *metrics.Collector { return c.stats }

// Configure runs the driver's configuration hook. Configuration failures
// are fatal at setup time.
func (c *Connector) Configure() error {
	if err := c.driver.Configure(c.cfg); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to configure connector "+c.id)
	}
	c.mu.Lock()
	c.configured = true
	c.mu.Unlock()
	return nil
}

// IsConfigured reports whether Configure succeeded.
func (c *Connector) IsConfigured() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.configured
}

// IsConnected reports whether the connector is between a successful
// Connect and the next Disconnect. Drivers exposing a health probe are
// consulted as well.
func (c *Connector) IsConnected() bool {
	c.mu.Lock()
	connected := c.connected
	c.mu.Unlock()
	if !connected {
		return false
	}
	if health, ok := c.driver.(HealthChecker); ok {
		return health.IsConnected()
	}
	return true
}

// IsReconnectable reports whether the orchestrator may retry connecting:
// the connector is enabled, configured, currently disconnected, and the
// reconnect interval elapsed since the last disconnect (or no disconnect
// happened yet).
func (c *Connector) IsReconnectable() bool {
	if !c.enabled || !c.IsConfigured() || c.IsConnected() {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disconnectTimestamp.IsZero() {
		return true
	}
	return !c.now().Before(c.disconnectTimestamp.Add(c.reconnectInterval))
}

// ConnectTimestamp returns the time of the last successful connect.
func (c *Connector) ConnectTimestamp() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectTimestamp
}

// DisconnectTimestamp returns the time of the last disconnect.
func (c *Connector) DisconnectTimestamp() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnectTimestamp
}

// Channels returns the channels currently bound to the connector.
func (c *Connector) Channels() channel.Channels {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resources
}

// SetChannels sets the state of every bound channel that is actively read
// or written by this connector. Logger-only channels are skipped; their
// state is owned by their live connector.
func (c *Connector) SetChannels(state channel.State) {
	id := c.id
	c.Channels().Filter(func(ch *channel.Channel) bool {
		return ch.HasConnector(id)
	}).SetState(state)
}

// Connect runs the driver's connect hook. Connecting a disabled or
// unconfigured connector is a configuration error; a re-entrant call while
// already connected is a logged no-op. The resource set is only swapped in
// after the hook succeeds.
func (c *Connector) Connect(ctx context.Context, resources channel.Channels) error {
	if !c.enabled {
		return errors.Newf(errors.ErrorTypeConfig, "trying to connect disabled connector %q", c.id)
	}
	if !c.IsConfigured() {
		return errors.Newf(errors.ErrorTypeConfig, "trying to connect unconfigured connector %q", c.id)
	}
	if c.IsConnected() {
		c.logger.Warn("connector already connected")
		return nil
	}

	if err := c.driver.Connect(ctx, resources); err != nil {
		return NewError(c.id, "connect", err)
	}

	c.mu.Lock()
	c.disconnectTimestamp = time.Time{}
	c.connectTimestamp = c.now().UTC()
	c.connected = true
	c.resources = resources
	c.mu.Unlock()
	return nil
}

// Disconnect runs the driver's disconnect hook. It is idempotent: when not
// connected it returns without invoking the hook. The disconnected state is
// stamped even if the hook fails.
func (c *Connector) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.disconnectTimestamp = c.now().UTC()
		c.connectTimestamp = time.Time{}
		c.connected = false
		c.mu.Unlock()
	}()

	if err := c.driver.Disconnect(ctx); err != nil {
		return NewError(c.id, "disconnect", err)
	}
	return nil
}

// Read runs the driver's read hook against the given resources, wrapping
// failures with connector attribution.
func (c *Connector) Read(ctx context.Context, resources channel.Channels, start, end time.Time) (*frame.Frame, error) {
	data, err := c.driver.Read(ctx, resources, start, end)
	c.stats.Record(err)
	if err != nil {
		return nil, NewError(c.id, "read", err)
	}
	return data, nil
}

// Write runs the driver's write hook, wrapping failures with connector
// attribution.
func (c *Connector) Write(ctx context.Context, data *frame.Frame) error {
	err := c.driver.Write(ctx, data)
	c.stats.Record(err)
	if err != nil {
		return NewError(c.id, "write", err)
	}
	return nil
}
