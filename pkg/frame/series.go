package frame

import (
	"sort"
	"time"
)

// Point is a single timestamped value.
type Point struct {
	Time  time.Time
	Value interface{}
}

// Series is a named, time-ordered sequence of values.
type Series struct {
	Name   string
	points []Point
}

// NewSeries creates an empty series with the given name.
func NewSeries(name string) *Series {
	return &Series{Name: name}
}

// Add appends a point, keeping the series sorted by time. A point with a
// timestamp already present overrides the existing value.
func (s *Series) Add(t time.Time, value interface{}) {
	t = normalize(t)
	i := sort.Search(len(s.points), func(i int) bool { return !s.points[i].Time.Before(t) })
	if i < len(s.points) && s.points[i].Time.Equal(t) {
		s.points[i].Value = value
		return
	}
	s.points = append(s.points, Point{})
	copy(s.points[i+1:], s.points[i:])
	s.points[i] = Point{Time: t, Value: value}
}

// Len returns the number of points.
func (s *Series) Len() int { return len(s.points) }

// At returns the i-th point.
func (s *Series) At(i int) Point { return s.points[i] }

// First returns the earliest point.
func (s *Series) First() Point {
	if len(s.points) == 0 {
		return Point{}
	}
	return s.points[0]
}

// Last returns the latest point.
func (s *Series) Last() Point {
	if len(s.points) == 0 {
		return Point{}
	}
	return s.points[len(s.points)-1]
}

// Times returns the timestamps of all points in order.
func (s *Series) Times() []time.Time {
	times := make([]time.Time, len(s.points))
	for i, p := range s.points {
		times[i] = p.Time
	}
	return times
}

// Values returns the values of all points in order.
func (s *Series) Values() []interface{} {
	values := make([]interface{}, len(s.points))
	for i, p := range s.points {
		values[i] = p.Value
	}
	return values
}
