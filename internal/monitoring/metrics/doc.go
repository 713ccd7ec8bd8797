// Package metrics implements the in-process counters, gauges, and
// histograms the pipeline reports into. Series are bounded in memory;
// a flush callback externalizes raw events without losing cumulative
// counter or gauge state.
package metrics
