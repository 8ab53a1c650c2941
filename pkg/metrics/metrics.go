// Package metrics provides Prometheus instrumentation for the data
// manager: dispatch round latency, per-connector task outcomes, channel
// update counts and connector connection state.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DispatchDuration observes the wall-clock latency of one dispatch
	// round, labelled by operation (connect, read, write, log).
	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fathom",
			Subsystem: "dispatch",
			Name:      "duration_seconds",
			Help:      "Latency of one fan-out/fan-in dispatch round",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
		},
		[]string{"operation"},
	)

	// TasksTotal counts per-connector dispatch tasks by operation and outcome.
	TasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fathom",
			Subsystem: "dispatch",
			Name:      "tasks_total",
			Help:      "Connector tasks dispatched, by operation and outcome",
		},
		[]string{"operation", "connector", "outcome"},
	)

	// ChannelUpdates counts valid channel value updates.
	ChannelUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fathom",
			Subsystem: "data",
			Name:      "channel_updates_total",
			Help:      "Valid channel value updates",
		},
		[]string{"channel"},
	)

	// ConnectorUp tracks the connection state per connector.
	ConnectorUp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "fathom",
			Subsystem: "connector",
			Name:      "up",
			Help:      "1 while the connector is connected",
		},
		[]string{"connector"},
	)
)

// Timer measures the duration of an operation.
type Timer struct {
	start     time.Time
	operation string
}

// NewTimer starts a timer for a dispatch operation.
func NewTimer(operation string) *Timer {
	return &Timer{start: time.Now(), operation: operation}
}

// Stop observes the elapsed time and returns it.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	DispatchDuration.WithLabelValues(t.operation).Observe(elapsed.Seconds())
	return elapsed
}

// RecordTask counts a finished connector task.
func RecordTask(operation, connector string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	TasksTotal.WithLabelValues(operation, connector, outcome).Inc()
}

// SetConnected records a connector's connection state.
func SetConnected(connector string, connected bool) {
	v := 0.0
	if connected {
		v = 1.0
	}
	ConnectorUp.WithLabelValues(connector).Set(v)
}

// Collector aggregates in-process counters for a single component, useful
// for tests and status reporting without scraping Prometheus.
type Collector struct {
	name string

	mu        sync.Mutex
	tasks     int64
	failures  int64
	lastError error
}

// NewCollector creates a collector for the named component.
func NewCollector(name string) *Collector {
	return &Collector{name: name}
}

// Name returns the component name the collector was created for.
func (c *Collector) Name() string { return c.name }

// Record counts one task outcome.
func (c *Collector) Record(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tasks++
	if err != nil {
		c.failures++
		c.lastError = err
	}
}

// Stats returns the task and failure counts.
func (c *Collector) Stats() (tasks, failures int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tasks, c.failures
}

// LastError returns the most recent failure, if any.
func (c *Collector) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}
