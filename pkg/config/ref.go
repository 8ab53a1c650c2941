package config

import (
	"github.com/fathom-io/fathom/pkg/errors"
)

// Ref references a connector from a channel configuration. Configuration
// files may give the reference either as a bare connector name or as a
// detailed section carrying a "connector" key plus per-binding overrides.
// ParseRef normalizes both shapes into this single representation.
type Ref struct {
	Connector string
	Overrides *Section
}

// ParseRef normalizes a configuration value into a Ref. A nil value yields
// a nil Ref; anything other than a string or a section is a configuration
// error.
func ParseRef(key string, value interface{}) (*Ref, error) {
	switch t := value.(type) {
	case nil:
		return nil, nil
	case string:
		return &Ref{Connector: t, Overrides: New(key)}, nil
	case *Section:
		overrides := t.Copy()
		name := overrides.StringOr("connector", "")
		overrides.Remove("connector")
		return &Ref{Connector: name, Overrides: overrides}, nil
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "invalid %s reference: %v", key, value)
	}
}
