package data

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fathom-io/fathom/pkg/channel"
	"github.com/fathom-io/fathom/pkg/component"
	"github.com/fathom-io/fathom/pkg/config"
	"github.com/fathom-io/fathom/pkg/connector"
	"github.com/fathom-io/fathom/pkg/frame"
	"github.com/fathom-io/fathom/pkg/logger"
	"github.com/fathom-io/fathom/pkg/metrics"
	"github.com/fathom-io/fathom/pkg/work"
)

// Manager orchestrates the lifecycle of connectors and components and
// dispatches read, write and log operations concurrently across connectors.
// Failures are isolated per connector: the failing connector's channels are
// flagged, other connectors' results are unaffected, and operations return
// whatever succeeded rather than an error.
type Manager struct {
	*Context

	connectors *connector.Context
	components *component.Context
	pool       *work.Pool
	logger     *zap.Logger
}

// NewManager creates a manager with empty connector and component contexts
// and a worker pool sized from the machine.
func NewManager() *Manager {
	connectors := connector.NewContext()
	return &Manager{
		Context:    NewContext(connectors),
		connectors: connectors,
		components: component.NewContext(),
		pool:       work.New(work.DefaultSize()),
		logger:     logger.Get().With(zap.String("context", "manager")),
	}
}

// Connectors exposes the connector context for type registration.
func (m *Manager) Connectors() *connector.Context { return m.connectors }

// Components exposes the component context for type registration.
func (m *Manager) Components() *component.Context { return m.components }

// Configure builds connectors, components and top-level channels from the
// given configuration. Connector and component sections may be declared
// inline or discovered from the directories named by "connectors_dir" and
// "components_dir".
func (m *Manager) Configure(cfg *config.Section) error {
	if cfg.HasSection("connectors") {
		section, err := cfg.GetSection("connectors")
		if err != nil {
			return err
		}
		if _, err := m.connectors.LoadSections(section, section.Scalars()); err != nil {
			return err
		}
	}
	if dir := cfg.StringOr("connectors_dir", ""); dir != "" {
		if _, err := m.connectors.LoadDir(dir, nil); err != nil {
			return err
		}
	}
	if err := m.connectors.Configure(); err != nil {
		return err
	}
	m.connectors.Sort()

	if cfg.HasSection("components") {
		section, err := cfg.GetSection("components")
		if err != nil {
			return err
		}
		if _, err := m.components.LoadSections(section, section.Scalars()); err != nil {
			return err
		}
	}
	if dir := cfg.StringOr("components_dir", ""); dir != "" {
		if _, err := m.components.LoadDir(dir, nil); err != nil {
			return err
		}
	}
	if err := m.components.Configure(m); err != nil {
		return err
	}
	m.components.Sort()

	if err := m.LoadChannels(cfg); err != nil {
		return err
	}
	m.Sort()

	m.logger.Info("configured",
		zap.Int("connectors", m.connectors.Len()),
		zap.Int("components", m.components.Len()),
		zap.Int("channels", m.Len()))
	return nil
}

// submit schedules a task on the pool, falling back to the caller's
// goroutine once the pool has shut down.
func (m *Manager) submit(task func()) {
	if !m.pool.Submit(task) {
		task()
	}
}

// errorState maps an operation failure to the channel state flagged on the
// affected connector's channels.
func errorState(err error) channel.State {
	if cerr, ok := connector.AsError(err); ok {
		if timeout, ok := cerr.Err.(interface{ Timeout() bool }); ok && timeout.Timeout() {
			return channel.StateTimeoutError
		}
	}
	return channel.StateUnknownError
}

// Connect connects all enabled connectors concurrently, binding each one to
// the channels that read, write or log through it. A connector that fails
// to connect has its channels flagged; other connectors are unaffected.
func (m *Manager) Connect(ctx context.Context) {
	timer := metrics.NewTimer("connect")
	defer timer.Stop()

	connectors := make([]*connector.Connector, 0)
	for _, conn := range m.connectors.Values() {
		if conn.Enabled() {
			connectors = append(connectors, conn)
		}
	}
	m.connect(ctx, connectors)
}

// Reconnect retries connectors that dropped their connection and whose
// reconnect interval has elapsed.
func (m *Manager) Reconnect(ctx context.Context) {
	connectors := make([]*connector.Connector, 0)
	for _, conn := range m.connectors.Values() {
		if conn.IsReconnectable() {
			connectors = append(connectors, conn)
		}
	}
	if len(connectors) == 0 {
		return
	}
	m.connect(ctx, connectors)
}

func (m *Manager) connect(ctx context.Context, connectors []*connector.Connector) {
	done := make(chan struct{}, len(connectors))
	for _, conn := range connectors {
		conn := conn
		m.submit(func() {
			defer func() { done <- struct{}{} }()

			id := conn.ID()
			resources := m.Filter(func(ch *channel.Channel) bool {
				return ch.HasConnector(id) || ch.HasLogger(id)
			})
			err := conn.Connect(ctx, resources)
			metrics.RecordTask("connect", id, err)
			metrics.SetConnected(id, err == nil)
			if err != nil {
				m.logger.Error("failed to connect connector",
					zap.String("connector", id), zap.Error(err))
				conn.SetChannels(errorState(err))
				return
			}
			m.logger.Info("connected connector", zap.String("connector", id))
		})
	}
	for range connectors {
		<-done
	}
}

// Disconnect disconnects all connectors sequentially in reverse
// registration order. Channels transition through the disconnecting state
// and always end up disconnected, even when a driver hook fails.
func (m *Manager) Disconnect(ctx context.Context) {
	timer := metrics.NewTimer("disconnect")
	defer timer.Stop()

	connectors := m.connectors.Values()
	for i := len(connectors) - 1; i >= 0; i-- {
		conn := connectors[i]
		if !conn.IsConnected() {
			continue
		}
		conn.SetChannels(channel.StateDisconnecting)
		err := conn.Disconnect(ctx)
		conn.SetChannels(channel.StateDisconnected)
		metrics.RecordTask("disconnect", conn.ID(), err)
		metrics.SetConnected(conn.ID(), false)
		if err != nil {
			m.logger.Error("failed to disconnect connector",
				zap.String("connector", conn.ID()), zap.Error(err))
			continue
		}
		m.logger.Info("disconnected connector", zap.String("connector", conn.ID()))
	}
}

// Read reads the given channels from their connectors concurrently within
// [start, end] and returns the joined result frame. Zero start and end
// request the latest values. Channels of a failing connector are flagged
// and omitted from the result; everything that succeeded is returned.
func (m *Manager) Read(ctx context.Context, channels channel.Channels, start, end time.Time) *frame.Frame {
	timer := metrics.NewTimer("read")
	defer timer.Stop()

	readTime := time.Now().UTC().Truncate(time.Second)
	groups := channels.Filter(func(ch *channel.Channel) bool {
		return ch.Connector().Enabled()
	}).GroupBy(func(ch *channel.Channel) string {
		return ch.Connector().ID()
	})

	results := make(chan *frame.Frame, len(groups))
	for _, group := range groups {
		group := group
		m.submit(func() {
			results <- m.read(ctx, group.Value, group.Channels, start, end, readTime)
		})
	}

	data := frame.New()
	for range groups {
		if result := <-results; result != nil {
			data.Join(result)
		}
	}
	return data
}

// ReadAll reads the latest values of every connector-bound channel.
func (m *Manager) ReadAll(ctx context.Context) *frame.Frame {
	channels := m.Filter(func(ch *channel.Channel) bool {
		return ch.Connector().Enabled()
	})
	return m.Read(ctx, channels, time.Time{}, time.Time{})
}

func (m *Manager) read(ctx context.Context, id string, channels channel.Channels,
	start, end, readTime time.Time) *frame.Frame {
	conn, err := m.connectors.Get(id)
	if err == nil {
		var data *frame.Frame
		data, err = conn.Read(ctx, channels, start, end)
		if err == nil {
			for _, ch := range channels {
				column := data.Column(ch.ID())
				if column == nil || column.Len() == 0 {
					continue
				}
				if column.Len() == 1 {
					point := column.First()
					err = ch.Set(point.Time, point.Value, channel.StateValid)
				} else {
					err = ch.Set(column.First().Time, column, channel.StateValid)
				}
				if err != nil {
					m.logger.Warn("failed to apply read value",
						zap.String("channel", ch.ID()), zap.Error(err))
					err = nil
					continue
				}
				ch.Connector().SetTimestamp(readTime)
			}
			metrics.RecordTask("read", id, nil)
			result, err := channels.ToFrame(true)
			if err != nil {
				m.logger.Warn("failed to frame read results",
					zap.String("connector", id), zap.Error(err))
				return nil
			}
			return result
		}
	}
	metrics.RecordTask("read", id, err)
	m.logger.Error("failed to read connector",
		zap.String("connector", id), zap.Error(err))
	channels.SetState(errorState(err))
	return nil
}

// Write writes the frame's columns to the channels they are named after,
// dispatching one write per connector concurrently. Values are staged
// through channel copies so conversion failures skip the single value
// rather than the batch; the live channel triple stays untouched either
// way. Channels of a failing connector are flagged; successfully written
// channels get their connector binding stamped with the round's start time.
func (m *Manager) Write(ctx context.Context, data *frame.Frame) {
	timer := metrics.NewTimer("write")
	defer timer.Stop()

	writeTime := time.Now().UTC().Truncate(time.Second)
	groups := m.Filter(func(ch *channel.Channel) bool {
		return ch.Connector().Enabled() && data.HasColumn(ch.ID())
	}).GroupBy(func(ch *channel.Channel) string {
		return ch.Connector().ID()
	})

	done := make(chan struct{}, len(groups))
	for _, group := range groups {
		group := group
		m.submit(func() {
			defer func() { done <- struct{}{} }()
			m.write(ctx, group.Value, group.Channels, data, writeTime)
		})
	}
	for range groups {
		<-done
	}
}

func (m *Manager) write(ctx context.Context, id string, channels channel.Channels,
	data *frame.Frame, writeTime time.Time) {
	staged := make(channel.Channels, 0, len(channels))
	written := make(channel.Channels, 0, len(channels))
	for _, ch := range channels {
		column := data.Column(ch.ID())
		if column == nil || column.Len() == 0 {
			continue
		}
		writer := ch.Copy()
		var err error
		if column.Len() == 1 {
			point := column.First()
			err = writer.Set(point.Time, point.Value, channel.StateValid)
		} else {
			err = writer.Set(column.First().Time, column, channel.StateValid)
		}
		if err != nil {
			m.logger.Warn("failed to stage write value",
				zap.String("channel", ch.ID()), zap.Error(err))
			continue
		}
		staged = staged.Add(writer)
		written = written.Add(ch)
	}
	if len(staged) == 0 {
		return
	}

	conn, err := m.connectors.Get(id)
	if err == nil {
		var batch *frame.Frame
		batch, err = staged.ToFrame(true)
		if err == nil {
			err = conn.Write(ctx, batch)
		}
	}
	metrics.RecordTask("write", id, err)
	if err != nil {
		m.logger.Error("failed to write connector",
			zap.String("connector", id), zap.Error(err))
		channels.SetState(errorState(err))
		return
	}
	for _, ch := range written {
		ch.Connector().SetTimestamp(writeTime)
	}
}

// Log persists valid channel values through their logger connectors,
// dispatching one write per logger concurrently. A channel is logged only
// when its value is newer than the last one its logger saw, which makes
// repeated calls without intervening updates no-ops.
func (m *Manager) Log(ctx context.Context) {
	timer := metrics.NewTimer("log")
	defer timer.Stop()

	groups := m.Filter(func(ch *channel.Channel) bool {
		if !ch.Logger().Enabled() || !ch.IsValid() {
			return false
		}
		logged := ch.Logger().Timestamp()
		return logged.IsZero() || logged.Before(ch.Timestamp())
	}).GroupBy(func(ch *channel.Channel) string {
		return ch.Logger().ID()
	})

	done := make(chan struct{}, len(groups))
	for _, group := range groups {
		group := group
		m.submit(func() {
			defer func() { done <- struct{}{} }()
			m.log(ctx, group.Value, group.Channels)
		})
	}
	for range groups {
		<-done
	}
}

func (m *Manager) log(ctx context.Context, id string, channels channel.Channels) {
	writers := make(channel.Channels, 0, len(channels))
	for _, ch := range channels {
		writers = append(writers, ch.FromLogger())
	}

	conn, err := m.connectors.Get(id)
	if err == nil {
		var batch *frame.Frame
		batch, err = writers.ToFrame(true)
		if err == nil {
			err = conn.Write(ctx, batch)
		}
	}
	metrics.RecordTask("log", id, err)
	if err != nil {
		m.logger.Error("failed to log channels",
			zap.String("connector", id), zap.Error(err))
		return
	}
	for _, ch := range channels {
		ch.Logger().SetTimestamp(ch.Timestamp())
	}
}

// Activate connects all connectors and activates all components.
func (m *Manager) Activate(ctx context.Context) {
	m.Connect(ctx)
	m.components.Activate(ctx)
	m.logger.Info("activated")
}

// Deactivate shuts the manager down: in-flight dispatch is drained, the
// components are deactivated in reverse order and the connectors are
// disconnected in reverse order.
func (m *Manager) Deactivate(ctx context.Context) {
	m.pool.Shutdown()
	m.components.Deactivate(ctx)
	m.Disconnect(ctx)
	m.logger.Info("deactivated")
}
