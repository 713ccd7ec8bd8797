package metrics

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"darkroom/internal/logging"
)

// Kind distinguishes metric behaviors.
type Kind string

const (
	KindCounter   Kind = "counter"
	KindGauge     Kind = "gauge"
	KindHistogram Kind = "histogram"
)

// Tags is a dimensional tag map attached to an observation.
type Tags map[string]string

// Event is a single raw observation retained until flush.
type Event struct {
	Name      string    `json:"name"`
	Kind      Kind      `json:"kind"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
	Tags      Tags      `json:"tags,omitempty"`
}

const (
	defaultWindowSize = 1000
	defaultEventCap   = 10000
)

// Collector stores metric series keyed by name plus a canonical tag
// serialization. Safe for concurrent use.
type Collector struct {
	mu         sync.Mutex
	counters   map[string]float64
	gauges     map[string]float64
	histograms map[string][]float64
	events     []Event
	windowSize int
	eventCap   int
	onFlush    func([]Event)
	logger     *slog.Logger
}

// Option configures optional Collector behavior.
type Option func(*Collector)

// WithWindowSize bounds each histogram's sliding window.
func WithWindowSize(n int) Option {
	return func(c *Collector) {
		if n > 0 {
			c.windowSize = n
		}
	}
}

// WithEventCap bounds the raw event buffer.
func WithEventCap(n int) Option {
	return func(c *Collector) {
		if n > 0 {
			c.eventCap = n
		}
	}
}

// WithFlushFunc registers the callback Flush hands drained events to.
func WithFlushFunc(fn func([]Event)) Option {
	return func(c *Collector) {
		c.onFlush = fn
	}
}

// NewCollector constructs a collector.
func NewCollector(logger *slog.Logger, opts ...Option) *Collector {
	c := &Collector{
		counters:   make(map[string]float64),
		gauges:     make(map[string]float64),
		histograms: make(map[string][]float64),
		windowSize: defaultWindowSize,
		eventCap:   defaultEventCap,
		logger:     logging.WithComponent(logger, "metrics"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Inc adds delta to a monotonic counter.
func (c *Collector) Inc(name string, delta float64, tags Tags) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[seriesKey(name, tags)] += delta
	c.appendEvent(Event{Name: name, Kind: KindCounter, Value: delta, Timestamp: time.Now().UTC(), Tags: cloneTags(tags)})
}

// Gauge records a point-in-time value.
func (c *Collector) Gauge(name string, value float64, tags Tags) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gauges[seriesKey(name, tags)] = value
	c.appendEvent(Event{Name: name, Kind: KindGauge, Value: value, Timestamp: time.Now().UTC(), Tags: cloneTags(tags)})
}

// Observe adds a value to a histogram's sliding window.
func (c *Collector) Observe(name string, value float64, tags Tags) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := seriesKey(name, tags)
	window := append(c.histograms[key], value)
	if len(window) > c.windowSize {
		window = window[len(window)-c.windowSize:]
	}
	c.histograms[key] = window
	c.appendEvent(Event{Name: name, Kind: KindHistogram, Value: value, Timestamp: time.Now().UTC(), Tags: cloneTags(tags)})
}

// appendEvent assumes the caller holds c.mu. Overflow trims oldest-first.
func (c *Collector) appendEvent(event Event) {
	c.events = append(c.events, event)
	if len(c.events) > c.eventCap {
		c.events = c.events[len(c.events)-c.eventCap:]
	}
}

// CounterValue returns the cumulative value of a counter series.
func (c *Collector) CounterValue(name string, tags Tags) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counters[seriesKey(name, tags)]
}

// GaugeValue returns the latest value of a gauge series.
func (c *Collector) GaugeValue(name string, tags Tags) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gauges[seriesKey(name, tags)]
}

// Flush drains the raw event buffer into the registered callback.
// Cumulative counter and gauge state survives.
func (c *Collector) Flush() {
	c.mu.Lock()
	events := c.events
	c.events = nil
	fn := c.onFlush
	c.mu.Unlock()

	if fn == nil || len(events) == 0 {
		return
	}
	fn(events)
}

// PendingEvents returns the current raw event count.
func (c *Collector) PendingEvents() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func seriesKey(name string, tags Tags) string {
	if len(tags) == 0 {
		return name
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(tags[k])
	}
	b.WriteByte('}')
	return b.String()
}

func cloneTags(tags Tags) Tags {
	if len(tags) == 0 {
		return nil
	}
	out := make(Tags, len(tags))
	for k, v := range tags {
		out[k] = v
	}
	return out
}

func mergeTags(base, extra Tags) Tags {
	if len(extra) == 0 {
		return cloneTags(base)
	}
	out := make(Tags, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
