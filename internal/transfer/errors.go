package transfer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"darkroom/internal/errdefs"
)

// ErrHashMismatch marks a destination whose re-computed hash differs from
// the recorded content hash. Never retried and never counted as a network
// symptom. Carries the validation marker so callers can classify it.
var ErrHashMismatch = fmt.Errorf("%w: hash mismatch", errdefs.ErrValidation)

// NetworkFailureError signals that the environment, not an individual
// file, is broken: the consecutive retryable-error counter crossed the
// configured threshold.
type NetworkFailureError struct {
	Consecutive int
	LastError   string
}

func (e *NetworkFailureError) Error() string {
	return fmt.Sprintf("network unavailable after %d consecutive transport errors (last: %s)", e.Consecutive, e.LastError)
}

// IsNetworkFailure reports whether err carries a NetworkFailureError.
func IsNetworkFailure(err error) bool {
	var target *NetworkFailureError
	return errors.As(err, &target)
}

// retryableErrnos lists transport conditions worth retrying. Everything
// else (permissions, missing paths, full disks) fails the file at once.
var retryableErrnos = []error{
	syscall.ECONNRESET,
	syscall.ECONNABORTED,
	syscall.ETIMEDOUT,
	syscall.EBUSY,
	syscall.EAGAIN,
	syscall.EIO,
	syscall.EHOSTDOWN,
	syscall.EHOSTUNREACH,
	syscall.ENETUNREACH,
	syscall.ENETDOWN,
	syscall.ENETRESET,
	syscall.EPIPE,
	syscall.ENOTCONN,
	syscall.ESTALE,
	syscall.ENODEV,
}

// Message fragments from wrapped transport errors that do not surface a
// matchable errno (SMB clients in particular).
var retryableFragments = []string{
	"stale file handle",
	"connection reset",
	"broken pipe",
	"host is down",
	"i/o timeout",
	"transport endpoint is not connected",
}

// IsRetryable reports whether an error represents a transient transport
// condition. Timeouts (including expired per-file deadlines) count.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return true
	}
	if errors.Is(err, errdefs.ErrTransient) || errors.Is(err, errdefs.ErrTimeout) {
		return true
	}
	for _, target := range retryableErrnos {
		if errors.Is(err, target) {
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	for _, fragment := range retryableFragments {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}
