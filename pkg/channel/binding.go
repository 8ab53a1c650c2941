package channel

import (
	"sync"
	"time"

	"github.com/fathom-io/fathom/pkg/config"
)

// Binding ties a channel to a connector by id, carrying per-binding
// configuration overrides and an acknowledgement timestamp. The logger
// binding's timestamp records the last value persisted; the connector
// binding's timestamp records the last successful read or write round.
//
// A disabled binding is the null connector: the channel simply takes no
// part in dispatch for that role.
type Binding struct {
	id        string
	enabled   bool
	overrides *config.Section

	mu        sync.Mutex
	timestamp time.Time
}

// NewBinding creates an enabled binding to the given connector id.
func NewBinding(id string, overrides *config.Section) *Binding {
	if overrides == nil {
		overrides = config.New("binding")
	}
	return &Binding{id: id, enabled: id != "", overrides: overrides}
}

// NoBinding returns the null binding.
func NoBinding() *Binding {
	return &Binding{enabled: false, overrides: config.New("binding")}
}

// ID returns the bound connector id.
func (b *Binding) ID() string { return b.id }

// Enabled reports whether the binding takes part in dispatch.
func (b *Binding) Enabled() bool { return b.enabled }

// Overrides returns the per-binding configuration overrides.
func (b *Binding) Overrides() *config.Section { return b.overrides }

// Timestamp returns the acknowledgement timestamp, zero if never set.
func (b *Binding) Timestamp() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.timestamp
}

// SetTimestamp stores the acknowledgement timestamp.
func (b *Binding) SetTimestamp(t time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.timestamp = t
}

// Copy returns an independent copy of the binding.
func (b *Binding) Copy() *Binding {
	b.mu.Lock()
	defer b.mu.Unlock()
	return &Binding{
		id:        b.id,
		enabled:   b.enabled,
		overrides: b.overrides.Copy(),
		timestamp: b.timestamp,
	}
}
