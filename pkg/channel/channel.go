// Package channel provides the fundamental unit of data flow: a named,
// typed, timestamped value cell with validity state, bound to a source/sink
// connector and an optional logger.
package channel

import (
	"fmt"
	"sync"
	"time"

	"github.com/fathom-io/fathom/pkg/errors"
	"github.com/fathom-io/fathom/pkg/frame"
)

// How selects when a registered callback fires for a group of channels.
type How string

const (
	// HowAny fires on every constituent update.
	HowAny How = "any"
	// HowAll fires once all constituents updated since the last firing.
	HowAll How = "all"
)

// Context is the non-owning back-reference a channel holds to the context
// that owns it. Notify is invoked synchronously on every valid Set.
type Context interface {
	Notify(c *Channel)
	Register(fn func(Channels), channels Channels, how How, unique bool) error
}

// Options collects the construction parameters of a channel.
type Options struct {
	Name      string
	Kind      Kind
	Freq      time.Duration
	Converter Converter
	Connector *Binding
	Logger    *Binding
	Context   Context
}

// Channel is a named, timestamped mutable value cell. The timestamp, value
// and state triple is only mutated atomically through Set, guarded by a
// per-channel mutex.
type Channel struct {
	id   string
	key  string
	name string
	kind Kind
	freq time.Duration

	converter Converter
	connector *Binding
	logger    *Binding
	context   Context

	mu        sync.Mutex
	timestamp time.Time
	value     interface{}
	state     State
}

// New creates a channel. The id is the globally unique dotted identifier,
// the key the component-local name.
func New(id, key string, opts Options) (*Channel, error) {
	if id == "" {
		return nil, errors.New(errors.ErrorTypeResource, "channel id must not be empty")
	}
	if key == "" {
		return nil, errors.Newf(errors.ErrorTypeResource, "channel %q key must not be empty", id)
	}
	c := &Channel{
		id:        id,
		key:       key,
		name:      opts.Name,
		kind:      opts.Kind,
		freq:      opts.Freq,
		converter: opts.Converter,
		connector: opts.Connector,
		logger:    opts.Logger,
		context:   opts.Context,
		state:     StateDisabled,
	}
	if c.name == "" {
		c.name = key
	}
	if c.kind == "" {
		c.kind = KindFloat
	}
	if c.converter == nil {
		c.converter = ConverterFor(c.kind)
	}
	if c.connector == nil {
		c.connector = NoBinding()
	}
	if c.logger == nil {
		c.logger = NoBinding()
	}
	return c, nil
}

// ID returns the globally unique dotted identifier.
func (c *Channel) ID() string { return c.id }

// Key returns the component-local name.
func (c *Channel) Key() string { return c.key }

// Name returns the display name.
func (c *Channel) Name() string { return c.name }

// Kind returns the declared value type.
func (c *Channel) Kind() Kind { return c.kind }

// Freq returns the sampling interval, zero if unset.
func (c *Channel) Freq() time.Duration { return c.freq }

// Connector returns the live value binding.
func (c *Channel) Connector() *Binding { return c.connector }

// Logger returns the persistence binding.
func (c *Channel) Logger() *Binding { return c.logger }

// Timestamp returns the point in time the value was last set, zero if never.
func (c *Channel) Timestamp() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timestamp
}

// Value returns the current value.
func (c *Channel) Value() interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// State returns the current validity state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsValid reports whether the state is valid and the current value passes
// the missing-value predicate.
func (c *Channel) IsValid() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isValidLocked()
}

func (c *Channel) isValidLocked() bool {
	return c.state == StateValid && !frame.IsNA(c.value)
}

// Set atomically updates the timestamp, value and state triple. The
// timestamp must be a proper instant; a missing value combined with the
// valid state is rejected, leaving the channel unchanged. Valid values are
// coerced through the channel converter. If the channel ends up valid, the
// owning context is notified synchronously.
func (c *Channel) Set(timestamp time.Time, value interface{}, state State) error {
	if timestamp.IsZero() {
		return errors.Newf(errors.ErrorTypeResource, "invalid timestamp for channel %q", c.id)
	}
	timestamp = timestamp.UTC()

	converted := value
	if !frame.IsNA(value) {
		var err error
		converted, err = c.converter.Convert(value)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeResource, fmt.Sprintf("invalid value for channel %q", c.id))
		}
	} else if state == StateValid {
		return errors.Newf(errors.ErrorTypeResource, "missing value for valid state of channel %q", c.id)
	}

	c.mu.Lock()
	c.timestamp = timestamp
	c.value = converted
	c.state = state
	valid := c.isValidLocked()
	c.mu.Unlock()

	if valid && c.context != nil {
		c.context.Notify(c)
	}
	return nil
}

// SetValue sets a valid value at the current wall-clock time, truncated to
// the second.
func (c *Channel) SetValue(value interface{}) error {
	return c.Set(time.Now().UTC().Truncate(time.Second), value, StateValid)
}

// SetState sets the state at the current wall-clock time, clearing the value.
func (c *Channel) SetState(state State) error {
	return c.Set(time.Now().UTC().Truncate(time.Second), nil, state)
}

// HasConnector reports whether the channel's live binding targets the given
// connector. An empty id matches any enabled binding.
func (c *Channel) HasConnector(id string) bool {
	if !c.connector.Enabled() {
		return false
	}
	return id == "" || c.connector.ID() == id
}

// HasLogger reports whether the channel's logger binding targets one of the
// given connectors. Without ids it reports whether logging is enabled at all.
func (c *Channel) HasLogger(ids ...string) bool {
	if !c.logger.Enabled() {
		return false
	}
	if len(ids) == 0 {
		return true
	}
	for _, id := range ids {
		if c.logger.ID() == id {
			return true
		}
	}
	return false
}

// Register subscribes a callback through the owning context.
func (c *Channel) Register(fn func(Channels), how How, unique bool) error {
	if c.context == nil {
		return errors.Newf(errors.ErrorTypeResource, "channel %q has no context", c.id)
	}
	return c.context.Register(fn, Channels{c}, how, unique)
}

// ToSeries renders the current value as a series named after the channel id.
// Series values pass through; scalar values become a single point. With
// state set, a missing value is rendered as the state name instead.
func (c *Channel) ToSeries(state bool) *frame.Series {
	c.mu.Lock()
	timestamp, value, st := c.timestamp, c.value, c.state
	c.mu.Unlock()

	if s, ok := value.(*frame.Series); ok && s != nil {
		out := NewChannelSeries(c.id, s)
		return out
	}
	s := frame.NewSeries(c.id)
	if timestamp.IsZero() {
		return s
	}
	if frame.IsNA(value) && state {
		s.Add(timestamp, st.String())
		return s
	}
	s.Add(timestamp, value)
	return s
}

// NewChannelSeries renames a series to the channel id without mutating the
// original.
func NewChannelSeries(id string, s *frame.Series) *frame.Series {
	out := frame.NewSeries(id)
	for i := 0; i < s.Len(); i++ {
		p := s.At(i)
		out.Add(p.Time, p.Value)
	}
	return out
}

// Copy deep-clones the channel, including independent copies of the
// converter bindings and the current value/timestamp/state triple. The
// context back-reference is shared; it is non-owning.
func (c *Channel) Copy() *Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &Channel{
		id:        c.id,
		key:       c.key,
		name:      c.name,
		kind:      c.kind,
		freq:      c.freq,
		converter: c.converter,
		connector: c.connector.Copy(),
		logger:    c.logger.Copy(),
		context:   c.context,
		timestamp: c.timestamp,
		value:     c.value,
		state:     c.state,
	}
}

// FromLogger returns a copy of the channel with the logger binding's
// configuration overrides applied, used to address logger-scoped variants
// of a channel during persistence.
func (c *Channel) FromLogger() *Channel {
	cp := c.Copy()
	overrides := c.logger.Overrides()
	if overrides == nil {
		return cp
	}
	if kind := overrides.StringOr("type", ""); kind != "" {
		cp.kind = ParseKind(kind)
		cp.converter = ConverterFor(cp.kind)
	}
	if name := overrides.StringOr("name", ""); name != "" {
		cp.name = name
	}
	if freq := overrides.DurationOr("freq", 0); freq > 0 {
		cp.freq = freq
	}
	return cp
}

// String renders the channel for logging.
func (c *Channel) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateValid {
		return fmt.Sprintf("Channel(key=%s, value=%v, timestamp=%s)", c.id, c.value, c.timestamp)
	}
	return fmt.Sprintf("Channel(key=%s, state=%s, timestamp=%s)", c.id, c.state, c.timestamp)
}
