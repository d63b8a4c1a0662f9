// Package metrics provides a thread-safe in-process metrics collector with
// label-based keys, running summaries, bounded time series, and a
// Prometheus-style text export.
package metrics

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// defaultSeriesCap bounds the number of points kept per histogram/timing key
	defaultSeriesCap = 1000
	// defaultRetention is how long histogram/timing points are kept
	defaultRetention = 24 * time.Hour
)

// Point is a single recorded histogram or timing observation, immutable once
// recorded
type Point struct {
	Timestamp time.Time         `json:"timestamp"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels,omitempty"`
}

// Summary is the running aggregate kept per metric key
type Summary struct {
	Count       int64     `json:"count"`
	Sum         float64   `json:"sum"`
	Min         float64   `json:"min"`
	Max         float64   `json:"max"`
	LastUpdated time.Time `json:"last_updated"`
}

// Average returns Sum/Count, or 0 for an empty summary
func (s Summary) Average() float64 {
	if s.Count == 0 {
		return 0
	}
	return s.Sum / float64(s.Count)
}

// Snapshot is a consistent point-in-time copy of the collector's state.
// It shares no memory with the collector's internals.
type Snapshot struct {
	Counters    map[string]float64 `json:"counters"`
	Gauges      map[string]float64 `json:"gauges"`
	Summaries   map[string]Summary `json:"summaries"`
	GeneratedAt time.Time          `json:"generated_at"`
}

// labeledValue pairs a scalar with the label set it was recorded under, so
// the Prometheus export can reconstruct the label block
type labeledValue struct {
	value  float64
	labels map[string]string
}

// Collector accumulates counters, gauges, histograms, and timings from many
// concurrent writers. The internal lock is held only for the in-memory
// mutation, never across I/O, so callers' actual network work is never
// serialized through the collector.
type Collector struct {
	mu        sync.Mutex
	counters  map[string]labeledValue
	gauges    map[string]labeledValue
	summaries map[string]*Summary
	series    map[string][]Point

	seriesCap int
	retention time.Duration
	// now is replaced in tests to exercise retention pruning
	now func() time.Time
}

// NewCollector creates a collector with the default series cap and 24h retention
func NewCollector() *Collector {
	return &Collector{
		counters:  make(map[string]labeledValue),
		gauges:    make(map[string]labeledValue),
		summaries: make(map[string]*Summary),
		series:    make(map[string][]Point),
		seriesCap: defaultSeriesCap,
		retention: defaultRetention,
		now:       time.Now,
	}
}

// Key builds the canonical storage key for a metric name and label set:
// the base name, then each label as k=v sorted by key, joined with "|".
// The same label set always produces the same key regardless of call-site
// map iteration order.
func Key(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
	}
	return b.String()
}

// IncrementCounter increases the named counter by delta and folds the delta
// into the key's summary
func (c *Collector) IncrementCounter(name string, delta float64, labels map[string]string) {
	key := Key(name, labels)

	c.mu.Lock()
	defer c.mu.Unlock()

	lv := c.counters[key]
	lv.value += delta
	lv.labels = copyLabels(labels)
	c.counters[key] = lv

	c.updateSummary(key, delta)
}

// SetGauge records a last-write-wins snapshot value for the named gauge
func (c *Collector) SetGauge(name string, value float64, labels map[string]string) {
	key := Key(name, labels)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.gauges[key] = labeledValue{value: value, labels: copyLabels(labels)}
	c.updateSummary(key, value)
}

// RecordHistogram appends a timestamped observation to the key's bounded
// series and updates its summary. Points older than the retention window are
// pruned as a side effect of the write.
func (c *Collector) RecordHistogram(name string, value float64, labels map[string]string) {
	key := Key(name, labels)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.appendPoint(key, value, labels)
	c.updateSummary(key, value)
}

// RecordTiming records a duration in milliseconds as a histogram observation
func (c *Collector) RecordTiming(name string, d time.Duration, labels map[string]string) {
	c.RecordHistogram(name, float64(d.Nanoseconds())/1e6, labels)
}

// GetMetrics returns a consistent point-in-time copy of counters, gauges,
// and summaries
func (c *Collector) GetMetrics() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		Counters:    make(map[string]float64, len(c.counters)),
		Gauges:      make(map[string]float64, len(c.gauges)),
		Summaries:   make(map[string]Summary, len(c.summaries)),
		GeneratedAt: c.now(),
	}
	for k, lv := range c.counters {
		snap.Counters[k] = lv.value
	}
	for k, lv := range c.gauges {
		snap.Gauges[k] = lv.value
	}
	for k, s := range c.summaries {
		snap.Summaries[k] = *s
	}
	return snap
}

// SeriesLen returns the number of retained points for a metric key.
// Mostly useful for tests and introspection.
func (c *Collector) SeriesLen(name string, labels map[string]string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.series[Key(name, labels)])
}

// GetPrometheusText renders counters and gauges in Prometheus exposition
// format, one line per key: metric_name{label="value",...} value. The label
// block is omitted entirely for unlabeled metrics. Output is sorted by key,
// so it is deterministic for a fixed internal state.
func (c *Collector) GetPrometheusText() string {
	c.mu.Lock()
	lines := make([]string, 0, len(c.counters)+len(c.gauges))
	for key, lv := range c.counters {
		lines = append(lines, promLine(key, lv))
	}
	for key, lv := range c.gauges {
		lines = append(lines, promLine(key, lv))
	}
	c.mu.Unlock()

	sort.Strings(lines)

	var b strings.Builder
	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// Reset clears all recorded state. Intended for tests and administrative use.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.counters = make(map[string]labeledValue)
	c.gauges = make(map[string]labeledValue)
	c.summaries = make(map[string]*Summary)
	c.series = make(map[string][]Point)
}

// updateSummary folds value into the key's running aggregate.
// Callers must hold c.mu.
func (c *Collector) updateSummary(key string, value float64) {
	s, ok := c.summaries[key]
	if !ok {
		s = &Summary{Min: value, Max: value}
		c.summaries[key] = s
	}

	s.Count++
	s.Sum += value
	if value < s.Min {
		s.Min = value
	}
	if value > s.Max {
		s.Max = value
	}
	s.LastUpdated = c.now()
}

// appendPoint adds an observation to the key's series, pruning expired
// points and evicting the oldest past the cap. Callers must hold c.mu.
func (c *Collector) appendPoint(key string, value float64, labels map[string]string) {
	now := c.now()
	pts := c.series[key]

	// Drop points older than the retention window. Points are appended in
	// time order, so the first survivor marks the cut.
	cutoff := now.Add(-c.retention)
	start := 0
	for start < len(pts) && pts[start].Timestamp.Before(cutoff) {
		start++
	}
	if start > 0 {
		pts = append([]Point(nil), pts[start:]...)
	}

	pts = append(pts, Point{Timestamp: now, Value: value, Labels: copyLabels(labels)})
	if len(pts) > c.seriesCap {
		pts = pts[len(pts)-c.seriesCap:]
	}
	c.series[key] = pts
}

// promLine renders one exposition-format line from a canonical key
func promLine(key string, lv labeledValue) string {
	name := key
	if i := strings.IndexByte(key, '|'); i >= 0 {
		name = key[:i]
	}

	value := strconv.FormatFloat(lv.value, 'g', -1, 64)
	if len(lv.labels) == 0 {
		return name + " " + value
	}

	keys := make([]string, 0, len(lv.labels))
	for k := range lv.labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%q", k, lv.labels[k]))
	}
	return name + "{" + strings.Join(pairs, ",") + "} " + value
}

func copyLabels(labels map[string]string) map[string]string {
	if len(labels) == 0 {
		return nil
	}
	cp := make(map[string]string, len(labels))
	for k, v := range labels {
		cp[k] = v
	}
	return cp
}
