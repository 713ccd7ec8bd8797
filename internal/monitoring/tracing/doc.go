// Package tracing produces trees of timed spans for pipeline
// operations. Completed spans land in a capped ring buffer and are
// handed to an optional persistence callback off the caller's
// goroutine; persistence failures are logged, never surfaced into the
// traced code path.
package tracing
