// Package metrics records in-process counters, gauges and stage timings for
// a backtest run. Nothing is exported over the network; a snapshot is taken
// at the end of the run and logged.
package metrics

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Metric names recorded by the pipeline.
const (
	CandlesFetched   = "candles_fetched"
	CandlesTruncated = "candles_truncated"
	GapsFound        = "gaps_found"
	MissingCandles   = "missing_candles"
	AnomaliesFound   = "anomalies_found"
	BuysExecuted     = "buys_executed"
	RunErrors        = "run_errors"
)

// MetricType represents different types of metrics
type MetricType string

const (
	MetricTypeCounter MetricType = "counter"
	MetricTypeGauge   MetricType = "gauge"
	MetricTypeTimer   MetricType = "timer"
)

// Metric represents a single metric with metadata
type Metric struct {
	Name        string            `json:"name"`
	Type        MetricType        `json:"type"`
	Value       float64           `json:"value"`
	Labels      map[string]string `json:"labels,omitempty"`
	Description string            `json:"description,omitempty"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Snapshot is a point-in-time copy of every recorded metric.
type Snapshot struct {
	Timestamp time.Time         `json:"timestamp"`
	Uptime    time.Duration     `json:"uptime"`
	Metrics   map[string]Metric `json:"metrics"`
	Errors    int64             `json:"errors"`
}

// Collector is safe for concurrent use.
type Collector struct {
	mu        sync.RWMutex
	metrics   map[string]Metric
	errors    int64
	startTime time.Time
	now       func() time.Time
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{
		metrics:   make(map[string]Metric),
		startTime: time.Now(),
		now:       time.Now,
	}
}

// RecordCounter adds delta to a counter.
func (c *Collector) RecordCounter(name string, delta float64, description string) {
	c.record(name, MetricTypeCounter, delta, description, nil)
}

// RecordGauge sets a gauge.
func (c *Collector) RecordGauge(name string, value float64, description string) {
	c.record(name, MetricTypeGauge, value, description, nil)
}

// RecordError counts an error under name, labelled with the stage it came from.
func (c *Collector) RecordError(name, stage string) {
	c.record(name, MetricTypeCounter, 1, "errors by stage", map[string]string{"stage": stage})
	c.mu.Lock()
	c.errors++
	c.mu.Unlock()
}

// RecordDuration records a duration in milliseconds under "<stage>_duration_ms".
func (c *Collector) RecordDuration(stage string, d time.Duration) {
	ms := float64(d.Nanoseconds()) / float64(time.Millisecond)
	c.record(stage+"_duration_ms", MetricTypeTimer, ms, "stage wall time", map[string]string{"stage": stage})
}

// Time returns a func that records the time elapsed since Time was called.
func (c *Collector) Time(stage string) func() {
	started := c.now()
	return func() { c.RecordDuration(stage, c.now().Sub(started)) }
}

func (c *Collector) record(name string, metricType MetricType, value float64, description string, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	existing, exists := c.metrics[name]
	if exists && metricType == MetricTypeCounter {
		existing.Value += value
		existing.UpdatedAt = now
		c.metrics[name] = existing
		return
	}

	c.metrics[name] = Metric{
		Name:        name,
		Type:        metricType,
		Value:       value,
		Labels:      labels,
		Description: description,
		UpdatedAt:   now,
	}
}

// Value returns the current value of name and whether it has been recorded.
func (c *Collector) Value(name string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.metrics[name]
	return m.Value, ok
}

// GetSnapshot returns a snapshot of all current metrics
func (c *Collector) GetSnapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	metricsCopy := make(map[string]Metric, len(c.metrics))
	for k, v := range c.metrics {
		metricsCopy[k] = v
	}

	now := c.now()
	return Snapshot{
		Timestamp: now,
		Uptime:    now.Sub(c.startTime),
		Metrics:   metricsCopy,
		Errors:    c.errors,
	}
}

// LogSnapshot writes every metric as one Debug record, sorted by name.
func (c *Collector) LogSnapshot(logger *slog.Logger) {
	snap := c.GetSnapshot()

	names := make([]string, 0, len(snap.Metrics))
	for name := range snap.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	attrs := make([]any, 0, 2*len(names)+4)
	attrs = append(attrs, "uptime", snap.Uptime, "errors", snap.Errors)
	for _, name := range names {
		attrs = append(attrs, name, snap.Metrics[name].Value)
	}
	logger.Debug("run metrics", attrs...)
}
