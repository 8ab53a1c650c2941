package channel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathom-io/fathom/pkg/config"
)

func newTestChannel(t *testing.T, opts Options) *Channel {
	t.Helper()
	ch, err := New("comp.power", "power", opts)
	require.NoError(t, err)
	return ch
}

func TestNewDefaults(t *testing.T) {
	ch := newTestChannel(t, Options{})
	assert.Equal(t, "comp.power", ch.ID())
	assert.Equal(t, "power", ch.Key())
	assert.Equal(t, "power", ch.Name())
	assert.Equal(t, KindFloat, ch.Kind())
	assert.Equal(t, StateDisabled, ch.State())
	assert.False(t, ch.Connector().Enabled())
	assert.False(t, ch.Logger().Enabled())
}

func TestNewValidation(t *testing.T) {
	_, err := New("", "power", Options{})
	assert.Error(t, err)
	_, err = New("comp.power", "", Options{})
	assert.Error(t, err)
}

func TestSet(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("valid value", func(t *testing.T) {
		ch := newTestChannel(t, Options{})
		require.NoError(t, ch.Set(now, 21.5, StateValid))
		assert.Equal(t, now, ch.Timestamp())
		assert.Equal(t, 21.5, ch.Value())
		assert.Equal(t, StateValid, ch.State())
		assert.True(t, ch.IsValid())
	})
	t.Run("converts through kind", func(t *testing.T) {
		ch := newTestChannel(t, Options{Kind: KindFloat})
		require.NoError(t, ch.Set(now, "21.5", StateValid))
		assert.Equal(t, 21.5, ch.Value())
	})
	t.Run("zero timestamp rejected", func(t *testing.T) {
		ch := newTestChannel(t, Options{})
		assert.Error(t, ch.Set(time.Time{}, 21.5, StateValid))
	})
	t.Run("missing value with valid state rejected without mutation", func(t *testing.T) {
		ch := newTestChannel(t, Options{})
		require.NoError(t, ch.Set(now, 21.5, StateValid))
		err := ch.Set(now.Add(time.Minute), nil, StateValid)
		assert.Error(t, err)
		assert.Equal(t, now, ch.Timestamp())
		assert.Equal(t, 21.5, ch.Value())
	})
	t.Run("conversion failure rejected without mutation", func(t *testing.T) {
		ch := newTestChannel(t, Options{Kind: KindFloat})
		require.NoError(t, ch.Set(now, 1.0, StateValid))
		assert.Error(t, ch.Set(now.Add(time.Minute), "not a number", StateValid))
		assert.Equal(t, 1.0, ch.Value())
		assert.Equal(t, now, ch.Timestamp())
	})
	t.Run("missing value with error state accepted", func(t *testing.T) {
		ch := newTestChannel(t, Options{})
		require.NoError(t, ch.Set(now, nil, StateUnknownError))
		assert.Equal(t, StateUnknownError, ch.State())
		assert.False(t, ch.IsValid())
	})
	t.Run("timestamp normalized to UTC", func(t *testing.T) {
		ch := newTestChannel(t, Options{})
		zone := time.FixedZone("CET", 3600)
		require.NoError(t, ch.Set(now.In(zone), 1.0, StateValid))
		assert.Equal(t, time.UTC, ch.Timestamp().Location())
		assert.True(t, ch.Timestamp().Equal(now))
	})
}

func TestSetValueAndState(t *testing.T) {
	ch := newTestChannel(t, Options{})
	require.NoError(t, ch.SetValue(2.5))
	assert.True(t, ch.IsValid())
	assert.Zero(t, ch.Timestamp().Nanosecond())

	require.NoError(t, ch.SetState(StateNotAvailable))
	assert.Equal(t, StateNotAvailable, ch.State())
	assert.False(t, ch.IsValid())
}

func TestHasConnector(t *testing.T) {
	bound := newTestChannel(t, Options{Connector: NewBinding("db1", nil)})
	unbound := newTestChannel(t, Options{})

	assert.True(t, bound.HasConnector("db1"))
	assert.True(t, bound.HasConnector(""))
	assert.False(t, bound.HasConnector("db2"))
	assert.False(t, unbound.HasConnector("db1"))
	assert.False(t, unbound.HasConnector(""))
}

func TestHasLogger(t *testing.T) {
	ch := newTestChannel(t, Options{Logger: NewBinding("log1", nil)})

	assert.True(t, ch.HasLogger())
	assert.True(t, ch.HasLogger("log1"))
	assert.True(t, ch.HasLogger("other", "log1"))
	assert.False(t, ch.HasLogger("other"))
}

func TestCopyIndependence(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	original := newTestChannel(t, Options{Connector: NewBinding("db1", nil)})
	require.NoError(t, original.Set(now, 1.0, StateValid))

	cp := original.Copy()
	require.NoError(t, cp.Set(now.Add(time.Minute), 2.0, StateValid))
	cp.Connector().SetTimestamp(now)

	assert.Equal(t, 1.0, original.Value())
	assert.Equal(t, now, original.Timestamp())
	assert.True(t, original.Connector().Timestamp().IsZero())
	assert.Equal(t, "db1", cp.Connector().ID())
}

func TestFromLoggerOverrides(t *testing.T) {
	overrides := config.New("logger")
	overrides.Set("connector", "log1")
	overrides.Set("name", "power_total")

	ch := newTestChannel(t, Options{Logger: NewBinding("log1", overrides)})
	writer := ch.FromLogger()
	assert.Equal(t, "power_total", writer.Name())
	assert.Equal(t, ch.ID(), writer.ID())
}

func TestToSeries(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("scalar", func(t *testing.T) {
		ch := newTestChannel(t, Options{})
		require.NoError(t, ch.Set(now, 1.5, StateValid))
		s := ch.ToSeries(false)
		require.Equal(t, 1, s.Len())
		assert.Equal(t, "comp.power", s.Name)
		assert.Equal(t, 1.5, s.First().Value)
	})
	t.Run("never set", func(t *testing.T) {
		ch := newTestChannel(t, Options{})
		assert.Zero(t, ch.ToSeries(false).Len())
	})
	t.Run("state rendering", func(t *testing.T) {
		ch := newTestChannel(t, Options{})
		require.NoError(t, ch.Set(now, nil, StateUnknownError))
		s := ch.ToSeries(true)
		require.Equal(t, 1, s.Len())
		assert.Equal(t, StateUnknownError.String(), s.First().Value)
	})
}

type recordingContext struct {
	notified []*Channel
}

func (r *recordingContext) Notify(ch *Channel) { r.notified = append(r.notified, ch) }
func (r *recordingContext) Register(fn func(Channels), channels Channels, how How, unique bool) error {
	return nil
}

func TestSetNotifiesContext(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	ctx := &recordingContext{}
	ch := newTestChannel(t, Options{Context: ctx})

	require.NoError(t, ch.Set(now, 1.0, StateValid))
	require.Len(t, ctx.notified, 1)

	// invalid states do not notify
	require.NoError(t, ch.Set(now.Add(time.Minute), nil, StateUnknownError))
	assert.Len(t, ctx.notified, 1)
}

func TestChannelsCollection(t *testing.T) {
	a := newTestChannel(t, Options{Connector: NewBinding("db1", nil)})
	b, err := New("comp.energy", "energy", Options{Connector: NewBinding("db2", nil)})
	require.NoError(t, err)

	var cs Channels
	cs = cs.Add(a, b)
	cs = cs.Add(a) // duplicate id ignored
	require.Len(t, cs, 2)
	assert.Equal(t, []string{"comp.power", "comp.energy"}, cs.IDs())

	got, ok := cs.Get("comp.energy")
	require.True(t, ok)
	assert.Same(t, b, got)

	groups := cs.GroupBy(func(ch *Channel) string { return ch.Connector().ID() })
	require.Len(t, groups, 2)
	assert.Equal(t, "db1", groups[0].Value)
	assert.Equal(t, "db2", groups[1].Value)
}

func TestChannelsSetState(t *testing.T) {
	a := newTestChannel(t, Options{})
	b, err := New("comp.energy", "energy", Options{})
	require.NoError(t, err)

	cs := Channels{a, b}
	cs.SetState(StateDisconnected)
	assert.Equal(t, StateDisconnected, a.State())
	assert.Equal(t, StateDisconnected, b.State())
}

func TestChannelsToFrame(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	a := newTestChannel(t, Options{})
	require.NoError(t, a.Set(now, 1.0, StateValid))
	b, err := New("comp.energy", "energy", Options{})
	require.NoError(t, err)
	require.NoError(t, b.Set(now, 2.0, StateValid))

	f, err := Channels{a, b}.ToFrame(false)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"comp.power", "comp.energy"}, f.Columns())

	v, ok := f.At("comp.power", now)
	require.True(t, ok)
	assert.Equal(t, 1.0, v)
}
