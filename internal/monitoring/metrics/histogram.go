package metrics

import (
	"math"
	"sort"
)

// HistogramStats summarizes a histogram's current sliding window.
type HistogramStats struct {
	Count int
	Sum   float64
	Min   float64
	Max   float64
	Mean  float64
	P50   float64
	P90   float64
	P95   float64
	P99   float64
}

// Histogram computes stats over the series' window. The second return is
// false when the series has no observations.
func (c *Collector) Histogram(name string, tags Tags) (HistogramStats, bool) {
	c.mu.Lock()
	window := append([]float64{}, c.histograms[seriesKey(name, tags)]...)
	c.mu.Unlock()

	if len(window) == 0 {
		return HistogramStats{}, false
	}

	sort.Float64s(window)
	stats := HistogramStats{
		Count: len(window),
		Min:   window[0],
		Max:   window[len(window)-1],
	}
	for _, v := range window {
		stats.Sum += v
	}
	stats.Mean = stats.Sum / float64(stats.Count)
	stats.P50 = percentile(window, 50)
	stats.P90 = percentile(window, 90)
	stats.P95 = percentile(window, 95)
	stats.P99 = percentile(window, 99)
	return stats, true
}

// percentile indexes a sorted window by ceil(p/100*n)-1, clamped to
// valid bounds.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	idx := int(math.Ceil(p/100*float64(n))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return sorted[idx]
}
