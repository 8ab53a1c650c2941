package channel

import (
	"sort"

	"github.com/fathom-io/fathom/pkg/frame"
)

// Channels is an ordered collection of unique channels. Uniqueness is by
// channel id; Add keeps the first occurrence.
type Channels []*Channel

// Add appends channels, skipping ids already present, and returns the
// extended collection.
func (cs Channels) Add(channels ...*Channel) Channels {
	seen := make(map[string]struct{}, len(cs))
	for _, c := range cs {
		seen[c.id] = struct{}{}
	}
	for _, c := range channels {
		if _, ok := seen[c.id]; ok {
			continue
		}
		seen[c.id] = struct{}{}
		cs = append(cs, c)
	}
	return cs
}

// IDs returns the channel ids in collection order.
func (cs Channels) IDs() []string {
	ids := make([]string, len(cs))
	for i, c := range cs {
		ids[i] = c.id
	}
	return ids
}

// Get returns the channel with the given id.
func (cs Channels) Get(id string) (*Channel, bool) {
	for _, c := range cs {
		if c.id == id {
			return c, true
		}
	}
	return nil, false
}

// Filter returns a new collection of the channels matching the predicate,
// preserving order.
func (cs Channels) Filter(predicate func(*Channel) bool) Channels {
	var out Channels
	for _, c := range cs {
		if predicate(c) {
			out = append(out, c)
		}
	}
	return out
}

// Group is one result of GroupBy: the distinct attribute value and the
// channels carrying it.
type Group struct {
	Value    string
	Channels Channels
}

// GroupBy partitions the collection by the given attribute, ordered by the
// distinct attribute values ascending.
func (cs Channels) GroupBy(attribute func(*Channel) string) []Group {
	grouped := make(map[string]Channels)
	var values []string
	for _, c := range cs {
		v := attribute(c)
		if _, ok := grouped[v]; !ok {
			values = append(values, v)
		}
		grouped[v] = append(grouped[v], c)
	}
	sort.Strings(values)
	groups := make([]Group, len(values))
	for i, v := range values {
		groups[i] = Group{Value: v, Channels: grouped[v]}
	}
	return groups
}

// Apply invokes the function once per channel in collection order.
func (cs Channels) Apply(fn func(*Channel)) {
	for _, c := range cs {
		fn(c)
	}
}

// SetState sets the state of every channel in the collection.
func (cs Channels) SetState(state State) {
	for _, c := range cs {
		_ = c.SetState(state)
	}
}

// ToFrame aligns all channel values into a single tabular frame with one
// column per channel id. With unique set, later columns with duplicate ids
// override earlier ones instead of erroring.
func (cs Channels) ToFrame(unique bool) (*frame.Frame, error) {
	f := frame.New()
	for _, c := range cs {
		if err := f.SetSeries(c.ToSeries(false), unique); err != nil {
			return nil, err
		}
	}
	return f, nil
}
