package metrics

import "time"

// Timer measures one operation and records its duration as a histogram
// observation in milliseconds.
type Timer struct {
	collector *Collector
	name      string
	tags      Tags
	start     time.Time
}

// Timer starts a high-resolution timer for the named histogram.
func (c *Collector) Timer(name string, tags Tags) *Timer {
	return &Timer{
		collector: c,
		name:      name,
		tags:      cloneTags(tags),
		start:     time.Now(),
	}
}

// End records the elapsed duration, merging any extra tags supplied at
// stop time, and returns the measured duration.
func (t *Timer) End(extra Tags) time.Duration {
	elapsed := time.Since(t.start)
	t.collector.Observe(t.name, float64(elapsed)/float64(time.Millisecond), mergeTags(t.tags, extra))
	return elapsed
}
