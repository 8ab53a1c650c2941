package data

import (
	"sort"

	"go.uber.org/zap"

	"github.com/fathom-io/fathom/pkg/channel"
	"github.com/fathom-io/fathom/pkg/errors"
	"github.com/fathom-io/fathom/pkg/metrics"
)

// registration couples a callback with the channels whose updates trigger
// it. With channel.HowAny the callback fires on every update of any member
// channel; with channel.HowAll it fires once every member has updated since
// the last invocation, then arms again.
type registration struct {
	fn       func(channel.Channels)
	channels channel.Channels
	how      channel.How
	pending  map[string]bool
}

func newRegistration(fn func(channel.Channels), channels channel.Channels, how channel.How) *registration {
	r := &registration{
		fn:       fn,
		channels: channels,
		how:      how,
	}
	r.arm()
	return r
}

func (r *registration) arm() {
	r.pending = make(map[string]bool, len(r.channels))
	for _, ch := range r.channels {
		r.pending[ch.ID()] = true
	}
}

// observes records an update and reports whether the callback should fire.
func (r *registration) observes(id string) bool {
	if _, ok := r.pending[id]; !ok {
		if !r.contains(id) {
			return false
		}
	}
	switch r.how {
	case channel.HowAll:
		delete(r.pending, id)
		if len(r.pending) > 0 {
			return false
		}
		r.arm()
		return true
	default:
		return true
	}
}

func (r *registration) contains(id string) bool {
	for _, ch := range r.channels {
		if ch.ID() == id {
			return true
		}
	}
	return false
}

// key returns a stable identity for the registered channel set, used to
// replace rather than stack registrations when unique is requested.
func (r *registration) key() string {
	ids := r.channels.IDs()
	sort.Strings(ids)
	key := ""
	for i, id := range ids {
		if i > 0 {
			key += "\x00"
		}
		key += id
	}
	return key
}

// Register subscribes fn to value updates of the given channels. With
// unique set, an existing registration over the same channel set is
// replaced instead of added alongside.
func (c *Context) Register(fn func(channel.Channels), channels channel.Channels, how channel.How, unique bool) error {
	if fn == nil {
		return errors.New(errors.ErrorTypeConfig, "channel registration requires a callback")
	}
	if len(channels) == 0 {
		return errors.New(errors.ErrorTypeConfig, "channel registration requires at least one channel")
	}
	reg := newRegistration(fn, channels, how)

	c.regMu.Lock()
	defer c.regMu.Unlock()
	if unique {
		key := reg.key()
		for i, existing := range c.registrations {
			if existing.key() == key {
				c.registrations[i] = reg
				return nil
			}
		}
	}
	c.registrations = append(c.registrations, reg)
	return nil
}

// Notify dispatches a channel update to matching registrations. Callbacks
// run synchronously on the caller's goroutine; they must not block.
func (c *Context) Notify(ch *channel.Channel) {
	if ch == nil {
		return
	}
	metrics.ChannelUpdates.WithLabelValues(ch.ID()).Inc()

	c.regMu.Lock()
	var fire []*registration
	for _, reg := range c.registrations {
		if reg.observes(ch.ID()) {
			fire = append(fire, reg)
		}
	}
	c.regMu.Unlock()

	for _, reg := range fire {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error("channel callback panicked",
						zap.String("channel", ch.ID()),
						zap.Any("panic", r))
				}
			}()
			reg.fn(reg.channels)
		}()
	}
}
