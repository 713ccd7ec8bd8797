package transfer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"darkroom/internal/logging"
	"darkroom/internal/storagekind"
)

// Options tunes both transfer services for one batch.
type Options struct {
	Policy         storagekind.Policy
	FileTimeout    time.Duration
	RetryDelays    []time.Duration
	AbortThreshold int
	Rollback       bool
}

// DefaultOptions returns the stock tuning for a batch on the given policy.
func DefaultOptions(policy storagekind.Policy) Options {
	return Options{
		Policy:         policy,
		FileTimeout:    5 * time.Minute,
		RetryDelays:    []time.Duration{time.Second, 2 * time.Second, 4 * time.Second},
		AbortThreshold: 5,
		Rollback:       true,
	}
}

// NetGuard owns the consecutive retryable-error counter for one batch.
// It must not be shared across concurrently running batches.
type NetGuard struct {
	mu          sync.Mutex
	threshold   int
	consecutive int
	lastError   string
}

// NewNetGuard constructs a guard that escalates once consecutive
// retryable errors reach threshold.
func NewNetGuard(threshold int) *NetGuard {
	if threshold <= 0 {
		threshold = 5
	}
	return &NetGuard{threshold: threshold}
}

// RecordFailure counts one retryable error. It returns a
// NetworkFailureError exactly when the counter reaches the threshold.
func (g *NetGuard) RecordFailure(err error) *NetworkFailureError {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.consecutive++
	if err != nil {
		g.lastError = err.Error()
	}
	if g.consecutive >= g.threshold {
		escalation := &NetworkFailureError{Consecutive: g.consecutive, LastError: g.lastError}
		g.consecutive = 0
		g.lastError = ""
		return escalation
	}
	return nil
}

// Reset clears the counter. Called on any success and on any error that
// is not a network symptom (non-retryable failures, hash mismatches).
func (g *NetGuard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.consecutive = 0
	g.lastError = ""
}

// Consecutive returns the current counter value.
func (g *NetGuard) Consecutive() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.consecutive
}

// withRetry runs op under the per-file timeout, retrying retryable
// failures per the backoff schedule. It returns the attempt count, the
// terminal per-file error, and a non-nil escalation when the shared
// counter crossed the threshold mid-sequence.
func withRetry(
	ctx context.Context,
	logger *slog.Logger,
	guard *NetGuard,
	opts Options,
	label string,
	op func(context.Context) error,
) (attempts int, opErr error, escalation *NetworkFailureError) {
	attemptLimit := len(opts.RetryDelays)
	if attemptLimit == 0 {
		attemptLimit = 1
	}

	for attempt := 0; attempt < attemptLimit; attempt++ {
		attempts++

		attemptCtx := ctx
		var cancel context.CancelFunc
		if opts.FileTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, opts.FileTimeout)
		}
		err := op(attemptCtx)
		if cancel != nil {
			cancel()
		}

		if err == nil {
			guard.Reset()
			return attempts, nil, nil
		}
		if ctx.Err() != nil {
			return attempts, ctx.Err(), nil
		}
		if !IsRetryable(err) {
			guard.Reset()
			return attempts, err, nil
		}

		if esc := guard.RecordFailure(err); esc != nil {
			return attempts, err, esc
		}

		if attempt == attemptLimit-1 {
			return attempts, err, nil
		}

		delay := opts.RetryDelays[attempt]
		logger.Warn("retryable transfer error, backing off",
			logging.String("operation", label),
			logging.Duration("delay", delay),
			logging.Int("attempt", attempt+1),
			logging.Error(err),
		)
		select {
		case <-ctx.Done():
			return attempts, ctx.Err(), nil
		case <-time.After(delay):
		}
	}
	return attempts, nil, nil
}
