// Package connectortest provides a scripted in-memory driver for exercising
// connector lifecycle and dispatch behavior in tests.
package connectortest

import (
	"context"
	"sync"
	"time"

	"github.com/fathom-io/fathom/pkg/channel"
	"github.com/fathom-io/fathom/pkg/config"
	"github.com/fathom-io/fathom/pkg/connector"
	"github.com/fathom-io/fathom/pkg/frame"
)

// Driver records every hook invocation and returns scripted results.
// Error fields, when set, are returned by the corresponding hook. The
// zero value is a driver that succeeds at everything and reads nothing.
type Driver struct {
	mu sync.Mutex

	ConfigureErr  error
	ConnectErr    error
	DisconnectErr error
	ReadErr       error
	WriteErr      error

	// ReadFrame is returned by Read when ReadErr is nil. A nil ReadFrame
	// reads as an empty frame.
	ReadFrame *frame.Frame

	// ReadFunc, when set, computes the read result instead of ReadFrame.
	ReadFunc func(resources channel.Channels, start, end time.Time) (*frame.Frame, error)

	configs     []*config.Section
	connects    int
	disconnects int
	reads       int
	writes      []*frame.Frame
	resources   channel.Channels
}

// NewFactory returns a connector.DriverFactory handing out the given
// drivers in registration order, so tests can keep references to the
// drivers a context will wrap.
func NewFactory(drivers ...*Driver) connector.DriverFactory {
	i := 0
	return func(cfg *config.Section) (connector.Driver, error) {
		d := drivers[i%len(drivers)]
		i++
		return d, nil
	}
}

func (d *Driver) Configure(cfg *config.Section) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.configs = append(d.configs, cfg)
	return d.ConfigureErr
}

func (d *Driver) Connect(ctx context.Context, resources channel.Channels) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connects++
	if d.ConnectErr != nil {
		return d.ConnectErr
	}
	d.resources = resources
	return nil
}

func (d *Driver) Disconnect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disconnects++
	return d.DisconnectErr
}

func (d *Driver) Read(ctx context.Context, resources channel.Channels, start, end time.Time) (*frame.Frame, error) {
	d.mu.Lock()
	d.reads++
	fn := d.ReadFunc
	d.mu.Unlock()
	if fn != nil {
		return fn(resources, start, end)
	}
	if d.ReadErr != nil {
		return nil, d.ReadErr
	}
	if d.ReadFrame == nil {
		return frame.New(), nil
	}
	return d.ReadFrame, nil
}

func (d *Driver) Write(ctx context.Context, data *frame.Frame) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.WriteErr != nil {
		return d.WriteErr
	}
	d.writes = append(d.writes, data)
	return nil
}

// Connects reports how often the connect hook ran.
func (d *Driver) Connects() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connects
}

// Disconnects reports how often the disconnect hook ran.
func (d *Driver) Disconnects() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.disconnects
}

// Reads reports how often the read hook ran.
func (d *Driver) Reads() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reads
}

// Writes returns the frames passed to the write hook.
func (d *Driver) Writes() []*frame.Frame {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*frame.Frame, len(d.writes))
	copy(out, d.writes)
	return out
}

// Resources returns the channels bound at the last successful connect.
func (d *Driver) Resources() channel.Channels {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resources
}
