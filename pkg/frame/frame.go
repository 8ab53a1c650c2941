// Package frame provides time-indexed tabular data for channel dispatch.
// A Frame holds one column per channel id over a shared, sorted time index,
// and is the unit of data exchanged with connectors during read and write.
package frame

import (
	"math"
	"sort"
	"time"

	json "github.com/goccy/go-json"

	"github.com/fathom-io/fathom/pkg/errors"
)

// IsNA reports whether a value counts as missing. Nil values and NaN floats
// are missing; collections are missing if any element is.
func IsNA(value interface{}) bool {
	switch t := value.(type) {
	case nil:
		return true
	case float64:
		return math.IsNaN(t)
	case float32:
		return math.IsNaN(float64(t))
	case []interface{}:
		for _, v := range t {
			if IsNA(v) {
				return true
			}
		}
		return false
	case *Series:
		if t == nil || t.Len() == 0 {
			return true
		}
		for _, p := range t.points {
			if IsNA(p.Value) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// Frame is an ordered set of named columns over a shared time index. The
// index is kept sorted ascending; all timestamps are normalized to UTC.
type Frame struct {
	index   []time.Time
	columns []string
	data    map[string]map[time.Time]interface{}
}

// New creates an empty frame.
func New() *Frame {
	return &Frame{
		data: make(map[string]map[time.Time]interface{}),
	}
}

func normalize(t time.Time) time.Time {
	return t.Round(0).UTC()
}

// Len returns the number of rows.
func (f *Frame) Len() int { return len(f.index) }

// IsEmpty reports whether the frame holds no rows.
func (f *Frame) IsEmpty() bool { return len(f.index) == 0 }

// Columns returns the column names in insertion order.
func (f *Frame) Columns() []string {
	columns := make([]string, len(f.columns))
	copy(columns, f.columns)
	return columns
}

// HasColumn reports whether the column exists.
func (f *Frame) HasColumn(name string) bool {
	_, ok := f.data[name]
	return ok
}

// Index returns the sorted time index.
func (f *Frame) Index() []time.Time {
	index := make([]time.Time, len(f.index))
	copy(index, f.index)
	return index
}

// First returns the earliest timestamp of the index.
func (f *Frame) First() time.Time {
	if len(f.index) == 0 {
		return time.Time{}
	}
	return f.index[0]
}

// Last returns the latest timestamp of the index.
func (f *Frame) Last() time.Time {
	if len(f.index) == 0 {
		return time.Time{}
	}
	return f.index[len(f.index)-1]
}

// At returns the value of a column at a timestamp.
func (f *Frame) At(column string, t time.Time) (interface{}, bool) {
	col, ok := f.data[column]
	if !ok {
		return nil, false
	}
	v, ok := col[normalize(t)]
	return v, ok
}

// Set stores a single value for a column at a timestamp, creating the
// column and extending the index as needed.
func (f *Frame) Set(column string, t time.Time, value interface{}) {
	t = normalize(t)
	col, ok := f.data[column]
	if !ok {
		col = make(map[time.Time]interface{})
		f.data[column] = col
		f.columns = append(f.columns, column)
	}
	if _, seen := col[t]; !seen {
		f.insertIndex(t)
	}
	col[t] = value
}

func (f *Frame) insertIndex(t time.Time) {
	i := sort.Search(len(f.index), func(i int) bool { return !f.index[i].Before(t) })
	if i < len(f.index) && f.index[i].Equal(t) {
		return
	}
	f.index = append(f.index, time.Time{})
	copy(f.index[i+1:], f.index[i:])
	f.index[i] = t
}

// SetSeries adds a series as a column. A duplicate column name is a data
// error unless unique is set, in which case the later series overrides the
// earlier column.
func (f *Frame) SetSeries(s *Series, unique bool) error {
	if s == nil {
		return nil
	}
	if _, exists := f.data[s.Name]; exists && !unique {
		return errors.Newf(errors.ErrorTypeData, "duplicate frame column %q", s.Name)
	}
	if _, exists := f.data[s.Name]; exists && unique {
		delete(f.data, s.Name)
		for i, c := range f.columns {
			if c == s.Name {
				f.columns = append(f.columns[:i], f.columns[i+1:]...)
				break
			}
		}
		f.rebuildIndex()
	}
	for _, p := range s.points {
		f.Set(s.Name, p.Time, p.Value)
	}
	return nil
}

func (f *Frame) rebuildIndex() {
	f.index = f.index[:0]
	seen := make(map[time.Time]struct{})
	for _, col := range f.data {
		for t := range col {
			if _, ok := seen[t]; !ok {
				seen[t] = struct{}{}
				f.index = append(f.index, t)
			}
		}
	}
	sort.Slice(f.index, func(i, j int) bool { return f.index[i].Before(f.index[j]) })
}

// Column returns a column as a series, or nil if absent.
func (f *Frame) Column(name string) *Series {
	col, ok := f.data[name]
	if !ok {
		return nil
	}
	s := NewSeries(name)
	for _, t := range f.index {
		if v, ok := col[t]; ok {
			s.Add(t, v)
		}
	}
	return s
}

// Join outer-joins the other frame into this one on the time axis. Columns
// of the other frame override columns of the same name.
func (f *Frame) Join(other *Frame) {
	if other == nil {
		return
	}
	for _, name := range other.columns {
		col := other.data[name]
		for t, v := range col {
			f.Set(name, t, v)
		}
	}
}

// MarshalJSON encodes the frame as an object of index and columns.
func (f *Frame) MarshalJSON() ([]byte, error) {
	index := make([]string, len(f.index))
	for i, t := range f.index {
		index[i] = t.Format(time.RFC3339Nano)
	}
	columns := make(map[string][]interface{}, len(f.columns))
	for _, name := range f.columns {
		values := make([]interface{}, len(f.index))
		for i, t := range f.index {
			if v, ok := f.data[name][t]; ok {
				values[i] = v
			}
		}
		columns[name] = values
	}
	return json.Marshal(map[string]interface{}{
		"index":   index,
		"columns": columns,
	})
}
