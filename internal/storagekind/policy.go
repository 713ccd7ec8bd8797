package storagekind

import (
	"time"

	"golang.org/x/time/rate"
)

// Policy carries the I/O tuning applied to transfers for a storage kind.
type Policy struct {
	Kind         Kind
	BufferSize   int
	Concurrency  int
	InterOpDelay time.Duration
}

var localPolicy = Policy{
	Kind:         Local,
	BufferSize:   128 * 1024,
	Concurrency:  4,
	InterOpDelay: 0,
}

// Network transfers use one large sequential stream with a short pause
// between files so a flaky share is never hammered.
var networkPolicy = Policy{
	Kind:         Network,
	BufferSize:   1024 * 1024,
	Concurrency:  1,
	InterOpDelay: 100 * time.Millisecond,
}

// PolicyFor returns the I/O policy for a single path.
func PolicyFor(path string) Policy {
	if Classify(path) == Network {
		return networkPolicy
	}
	return localPolicy
}

// UnionPolicy returns the policy for a batch spanning several paths. One
// network path makes the whole batch network.
func UnionPolicy(paths ...string) Policy {
	for _, path := range paths {
		if Classify(path) == Network {
			return networkPolicy
		}
	}
	return localPolicy
}

// Limiter converts the policy's inter-operation delay into a rate limiter
// the transfer loop waits on between files.
func (p Policy) Limiter() *rate.Limiter {
	if p.InterOpDelay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(p.InterOpDelay), 1)
}
