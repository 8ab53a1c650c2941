package weather

import (
	"fmt"
	"time"

	"github.com/fathom-io/fathom/pkg/config"
	"github.com/fathom-io/fathom/pkg/errors"
)

// Location is a geographic point with its local timezone.
type Location struct {
	Latitude  float64
	Longitude float64
	Altitude  float64
	Timezone  *time.Location
}

// ParseLocation reads a location from a configuration section. Latitude
// and longitude are required and range-checked; altitude defaults to sea
// level and the timezone to UTC.
func ParseLocation(cfg *config.Section) (*Location, error) {
	latitude, err := cfg.GetFloat("latitude")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "location requires a latitude")
	}
	if latitude < -90 || latitude > 90 {
		return nil, errors.Newf(errors.ErrorTypeConfig, "latitude %v out of range [-90, 90]", latitude)
	}
	longitude, err := cfg.GetFloat("longitude")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "location requires a longitude")
	}
	if longitude < -180 || longitude > 180 {
		return nil, errors.Newf(errors.ErrorTypeConfig, "longitude %v out of range [-180, 180]", longitude)
	}

	location := &Location{
		Latitude:  latitude,
		Longitude: longitude,
		Altitude:  cfg.FloatOr("altitude", 0),
		Timezone:  time.UTC,
	}
	if name := cfg.StringOr("timezone", ""); name != "" {
		tz, err := time.LoadLocation(name)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrorTypeConfig, "unknown timezone %q", name)
		}
		location.Timezone = tz
	}
	return location, nil
}

func (l *Location) String() string {
	return fmt.Sprintf("%.5f,%.5f", l.Latitude, l.Longitude)
}
