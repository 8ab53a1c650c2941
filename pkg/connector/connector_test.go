package connector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathom-io/fathom/pkg/channel"
	"github.com/fathom-io/fathom/pkg/config"
	"github.com/fathom-io/fathom/pkg/errors"
	"github.com/fathom-io/fathom/pkg/frame"
)

// stubDriver is a minimal scripted driver for lifecycle tests.
type stubDriver struct {
	configureErr  error
	connectErr    error
	disconnectErr error
	writeErr      error

	configured  int
	connects    int
	disconnects int
}

func (d *stubDriver) Configure(cfg *config.Section) error { d.configured++; return d.configureErr }
func (d *stubDriver) Connect(ctx context.Context, resources channel.Channels) error {
	d.connects++
	return d.connectErr
}
func (d *stubDriver) Disconnect(ctx context.Context) error { d.disconnects++; return d.disconnectErr }
func (d *stubDriver) Read(ctx context.Context, resources channel.Channels, start, end time.Time) (*frame.Frame, error) {
	return frame.New(), nil
}
func (d *stubDriver) Write(ctx context.Context, data *frame.Frame) error { return d.writeErr }

func wrapStub(t *testing.T, driver Driver, cfg *config.Section) *Connector {
	t.Helper()
	if cfg == nil {
		cfg = config.New("stub1")
		cfg.Set("type", "stub")
	}
	conn, err := Wrap(driver, cfg)
	require.NoError(t, err)
	return conn
}

func TestWrapDefaults(t *testing.T) {
	cfg := config.New("stub1")
	cfg.Set("type", "stub")
	conn := wrapStub(t, &stubDriver{}, cfg)

	assert.Equal(t, "stub1", conn.ID())
	assert.Equal(t, "stub1", conn.Key())
	assert.Equal(t, "stub", conn.Type())
	assert.True(t, conn.Enabled())
	assert.NotEmpty(t, conn.UUID())
	assert.False(t, conn.IsConfigured())
	assert.False(t, conn.IsConnected())
}

func TestConnectGuards(t *testing.T) {
	ctx := context.Background()

	t.Run("unconfigured", func(t *testing.T) {
		conn := wrapStub(t, &stubDriver{}, nil)
		err := conn.Connect(ctx, nil)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
	})
	t.Run("disabled", func(t *testing.T) {
		cfg := config.New("stub1")
		cfg.Set("enabled", false)
		conn := wrapStub(t, &stubDriver{}, cfg)
		err := conn.Connect(ctx, nil)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
	})
	t.Run("already connected is a no-op", func(t *testing.T) {
		driver := &stubDriver{}
		conn := wrapStub(t, driver, nil)
		require.NoError(t, conn.Configure())
		require.NoError(t, conn.Connect(ctx, nil))
		require.NoError(t, conn.Connect(ctx, nil))
		assert.Equal(t, 1, driver.connects)
	})
}

func TestConnectFailureAttribution(t *testing.T) {
	driver := &stubDriver{connectErr: errors.New(errors.ErrorTypeConnection, "refused")}
	conn := wrapStub(t, driver, nil)
	require.NoError(t, conn.Configure())

	err := conn.Connect(context.Background(), nil)
	require.Error(t, err)

	cerr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, "stub1", cerr.ConnectorID)
	assert.Equal(t, "connect", cerr.Op)
	assert.False(t, conn.IsConnected())
	assert.True(t, conn.ConnectTimestamp().IsZero())
}

func TestStatsRecordIO(t *testing.T) {
	driver := &stubDriver{writeErr: errors.New(errors.ErrorTypeConnection, "broken pipe")}
	conn := wrapStub(t, driver, nil)
	require.NoError(t, conn.Configure())
	require.NoError(t, conn.Connect(context.Background(), nil))

	_, err := conn.Read(context.Background(), nil, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Error(t, conn.Write(context.Background(), frame.New()))

	assert.Equal(t, "stub1", conn.Stats().Name())
	tasks, failures := conn.Stats().Stats()
	assert.Equal(t, int64(2), tasks)
	assert.Equal(t, int64(1), failures)
	assert.Error(t, conn.Stats().LastError())
}

func TestConnectBindsResources(t *testing.T) {
	ch, err := channel.New("comp.power", "power", channel.Options{
		Connector: channel.NewBinding("stub1", nil),
	})
	require.NoError(t, err)

	conn := wrapStub(t, &stubDriver{}, nil)
	require.NoError(t, conn.Configure())
	require.NoError(t, conn.Connect(context.Background(), channel.Channels{ch}))

	assert.True(t, conn.IsConnected())
	assert.False(t, conn.ConnectTimestamp().IsZero())
	require.Len(t, conn.Channels(), 1)

	conn.SetChannels(channel.StateUnknownError)
	assert.Equal(t, channel.StateUnknownError, ch.State())
}

func TestDisconnect(t *testing.T) {
	ctx := context.Background()

	t.Run("idempotent when not connected", func(t *testing.T) {
		driver := &stubDriver{}
		conn := wrapStub(t, driver, nil)
		require.NoError(t, conn.Disconnect(ctx))
		assert.Zero(t, driver.disconnects)
	})
	t.Run("stamps state even when the hook fails", func(t *testing.T) {
		driver := &stubDriver{disconnectErr: errors.New(errors.ErrorTypeConnection, "hang")}
		conn := wrapStub(t, driver, nil)
		require.NoError(t, conn.Configure())
		require.NoError(t, conn.Connect(ctx, nil))

		err := conn.Disconnect(ctx)
		require.Error(t, err)
		assert.False(t, conn.IsConnected())
		assert.False(t, conn.DisconnectTimestamp().IsZero())
	})
}

func TestIsReconnectable(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	driver := &stubDriver{}
	conn := wrapStub(t, driver, nil)
	now := base
	conn.now = func() time.Time { return now }

	// unconfigured connectors never reconnect
	assert.False(t, conn.IsReconnectable())

	require.NoError(t, conn.Configure())
	// never connected, no disconnect timestamp gates the retry
	assert.True(t, conn.IsReconnectable())

	require.NoError(t, conn.Connect(ctx, nil))
	assert.False(t, conn.IsReconnectable())

	require.NoError(t, conn.Disconnect(ctx))
	now = base.Add(30 * time.Second)
	assert.False(t, conn.IsReconnectable())
	now = base.Add(61 * time.Second)
	assert.True(t, conn.IsReconnectable())
}

func TestReconnectIntervalFromConfig(t *testing.T) {
	cfg := config.New("stub1")
	cfg.Set("reconnect_interval", "5m")
	conn := wrapStub(t, &stubDriver{}, cfg)

	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	now := base
	conn.now = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, conn.Configure())
	require.NoError(t, conn.Connect(ctx, nil))
	require.NoError(t, conn.Disconnect(ctx))

	now = base.Add(2 * time.Minute)
	assert.False(t, conn.IsReconnectable())
	now = base.Add(6 * time.Minute)
	assert.True(t, conn.IsReconnectable())
}
