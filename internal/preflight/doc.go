// Package preflight checks that an import can plausibly succeed before
// any file is touched: destination access, free space, and the health
// figures the alert rules sample.
package preflight
