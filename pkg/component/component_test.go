package component

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathom-io/fathom/pkg/channel"
	"github.com/fathom-io/fathom/pkg/config"
	"github.com/fathom-io/fathom/pkg/errors"
)

// fakeRegistrar counts channel registrations.
type fakeRegistrar struct {
	registered []string
}

func (r *fakeRegistrar) RegisterChannel(componentID, key string, cfg *config.Section) (*channel.Channel, error) {
	id := componentID + "." + key
	r.registered = append(r.registered, id)
	return channel.New(id, key, channel.Options{})
}

// orderComponent records lifecycle calls into a shared log.
type orderComponent struct {
	*Base
	log         *[]string
	activateErr error
}

func (c *orderComponent) Activate(ctx context.Context) error {
	if c.activateErr != nil {
		return c.activateErr
	}
	*c.log = append(*c.log, "activate "+c.ID())
	return c.Base.Activate(ctx)
}

func (c *orderComponent) Deactivate(ctx context.Context) error {
	*c.log = append(*c.log, "deactivate "+c.ID())
	return c.Base.Deactivate(ctx)
}

func TestBaseConfigureRegistersChannels(t *testing.T) {
	cfg := config.New("meter")
	channels := config.New("channels")
	channels.Set("type", "float")
	power := config.New("power")
	channels.Set("power", power)
	energy := config.New("energy")
	channels.Set("energy", energy)
	cfg.Set("channels", channels)

	base, err := NewBase(cfg)
	require.NoError(t, err)

	registrar := &fakeRegistrar{}
	require.NoError(t, base.Configure(registrar))

	assert.Equal(t, []string{"meter.power", "meter.energy"}, registrar.registered)
	assert.Len(t, base.Channels(), 2)
}

func TestBaseDefaults(t *testing.T) {
	cfg := config.New("meter")
	base, err := NewBase(cfg)
	require.NoError(t, err)
	assert.Equal(t, "meter", base.ID())
	assert.Equal(t, "meter", base.Key())
	assert.True(t, base.Enabled())
	assert.False(t, base.IsActive())

	_, err = NewBase(config.New(""))
	assert.Error(t, err)
}

func TestContextLifecycleOrder(t *testing.T) {
	ctx := NewContext()
	var log []string

	factory := func(cfg *config.Section) (Component, error) {
		base, err := NewBase(cfg)
		if err != nil {
			return nil, err
		}
		comp := &orderComponent{Base: base, log: &log}
		if cfg.BoolOr("fail", false) {
			comp.activateErr = errors.New(errors.ErrorTypeInternal, "boom")
		}
		return comp, nil
	}
	require.NoError(t, ctx.RegisterType("order", factory))

	for _, name := range []string{"order_1", "order_2", "order_3"} {
		cfg := config.New(name)
		cfg.Set("type", "order")
		if name == "order_2" {
			cfg.Set("fail", true)
		}
		_, err := ctx.Update(cfg, nil)
		require.NoError(t, err)
	}

	background := context.Background()
	ctx.Activate(background)
	// the failing component does not abort its siblings
	assert.Equal(t, []string{"activate order_1", "activate order_3"}, log)

	log = nil
	ctx.Deactivate(background)
	// reverse order, never-activated components skipped
	assert.Equal(t, []string{"deactivate order_3", "deactivate order_1"}, log)
}

func TestContextConfigureSkipsDisabled(t *testing.T) {
	ctx := NewContext()
	factory := func(cfg *config.Section) (Component, error) {
		base, err := NewBase(cfg)
		if err != nil {
			return nil, err
		}
		return base, nil
	}
	require.NoError(t, ctx.RegisterType("plain", factory))

	enabled := config.New("plain_1")
	enabled.Set("type", "plain")
	_, err := ctx.Update(enabled, nil)
	require.NoError(t, err)

	disabled := config.New("plain_2")
	disabled.Set("type", "plain")
	disabled.Set("enabled", false)
	_, err = ctx.Update(disabled, nil)
	require.NoError(t, err)

	require.NoError(t, ctx.Configure(&fakeRegistrar{}))
	ctx.Activate(context.Background())

	first, err := ctx.Get("plain_1")
	require.NoError(t, err)
	assert.True(t, first.IsActive())
	second, err := ctx.Get("plain_2")
	require.NoError(t, err)
	assert.False(t, second.IsActive())
}
