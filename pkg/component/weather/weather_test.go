package weather

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathom-io/fathom/pkg/component"
	"github.com/fathom-io/fathom/pkg/config"
	"github.com/fathom-io/fathom/pkg/data"
)

func locationConfig(lat, lon interface{}) *config.Section {
	cfg := config.New("location")
	if lat != nil {
		cfg.Set("latitude", lat)
	}
	if lon != nil {
		cfg.Set("longitude", lon)
	}
	return cfg
}

func TestParseLocation(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		cfg := locationConfig(53.55, 9.99)
		cfg.Set("altitude", 6.0)
		cfg.Set("timezone", "Europe/Berlin")

		location, err := ParseLocation(cfg)
		require.NoError(t, err)
		assert.Equal(t, 53.55, location.Latitude)
		assert.Equal(t, 9.99, location.Longitude)
		assert.Equal(t, 6.0, location.Altitude)
		assert.Equal(t, "Europe/Berlin", location.Timezone.String())
	})
	t.Run("defaults", func(t *testing.T) {
		location, err := ParseLocation(locationConfig(0.0, 0.0))
		require.NoError(t, err)
		assert.Equal(t, 0.0, location.Altitude)
		assert.Equal(t, "UTC", location.Timezone.String())
	})

	tests := []struct {
		name string
		cfg  *config.Section
	}{
		{"missing latitude", locationConfig(nil, 9.99)},
		{"missing longitude", locationConfig(53.55, nil)},
		{"latitude out of range", locationConfig(91.0, 9.99)},
		{"longitude out of range", locationConfig(53.55, 181.0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLocation(tt.cfg)
			assert.Error(t, err)
		})
	}

	t.Run("unknown timezone", func(t *testing.T) {
		cfg := locationConfig(53.55, 9.99)
		cfg.Set("timezone", "Nowhere/Special")
		_, err := ParseLocation(cfg)
		assert.Error(t, err)
	})
}

func newWeatherConfig() *config.Section {
	cfg := config.New("site")
	cfg.Set("type", TypeName)
	location := config.New("location")
	location.Set("latitude", 53.55)
	location.Set("longitude", 9.99)
	cfg.Set("location", location)
	return cfg
}

func TestConfigureDefaultChannels(t *testing.T) {
	cfg := newWeatherConfig()
	comp, err := New(cfg)
	require.NoError(t, err)

	registrar := data.NewContext(nil)
	require.NoError(t, comp.Configure(registrar))

	w := comp.(*Component)
	require.NotNil(t, w.Location())
	assert.Len(t, w.Channels(), len(forecastVariables))
	assert.True(t, registrar.Has("site.temperature"))
	assert.True(t, registrar.Has("site.condition"))
}

func TestConfigureExplicitChannelsWin(t *testing.T) {
	cfg := newWeatherConfig()
	channels := config.New("channels")
	irradiance := config.New("irradiance")
	irradiance.Set("type", "float")
	channels.Set("irradiance", irradiance)
	cfg.Set("channels", channels)

	comp, err := New(cfg)
	require.NoError(t, err)

	registrar := data.NewContext(nil)
	require.NoError(t, comp.Configure(registrar))

	assert.Len(t, comp.Channels(), 1)
	assert.True(t, registrar.Has("site.irradiance"))
	assert.False(t, registrar.Has("site.temperature"))
}

func TestConfigureMissingLocation(t *testing.T) {
	cfg := config.New("site")
	cfg.Set("type", TypeName)
	comp, err := New(cfg)
	require.NoError(t, err)
	assert.Error(t, comp.Configure(data.NewContext(nil)))
}

func TestActivate(t *testing.T) {
	comp, err := New(newWeatherConfig())
	require.NoError(t, err)
	require.NoError(t, comp.Configure(data.NewContext(nil)))

	ctx := context.Background()
	require.NoError(t, comp.Activate(ctx))
	assert.True(t, comp.IsActive())
	require.NoError(t, comp.Deactivate(ctx))
	assert.False(t, comp.IsActive())
}

var _ component.Component = (*Component)(nil)
