package natsclient

import (
	"sync/atomic"
	"time"
)

// breaker tracks consecutive connection failures and opens after threshold
// failures in a round. Each opening doubles the backoff up to max.
type breaker struct {
	failures    atomic.Int32 // total since last reset
	round       atomic.Int32 // failures in the current round
	lastFailure atomic.Value // time.Time
	backoff     atomic.Value // time.Duration

	threshold  int32
	maxBackoff time.Duration
}

func newBreaker(threshold int32, maxBackoff time.Duration) *breaker {
	b := &breaker{threshold: threshold, maxBackoff: maxBackoff}
	b.backoff.Store(time.Second)
	b.lastFailure.Store(time.Time{})
	return b
}

// fail records a failure. It reports whether this failure completed a round
// and the backoff to wait before testing the circuit again.
func (b *breaker) fail() (tripped bool, wait time.Duration) {
	b.failures.Add(1)
	b.lastFailure.Store(time.Now())

	if b.round.Add(1) < b.threshold {
		return false, 0
	}
	b.round.Store(0)

	current := b.backoff.Load().(time.Duration)
	next := current * 2
	if next > b.maxBackoff {
		next = b.maxBackoff
	}
	b.backoff.Store(next)
	return true, current
}

func (b *breaker) reset() {
	b.failures.Store(0)
	b.round.Store(0)
	b.backoff.Store(time.Second)
	b.lastFailure.Store(time.Time{})
}

func (b *breaker) Failures() int32 {
	return b.failures.Load()
}

func (b *breaker) Backoff() time.Duration {
	return b.backoff.Load().(time.Duration)
}

func (b *breaker) LastFailure() time.Time {
	return b.lastFailure.Load().(time.Time)
}
