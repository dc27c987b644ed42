package pipeline

import (
	"sync"
	"time"
)

const (
	// DefaultFailureThreshold is the consecutive-failure count that
	// opens the breaker.
	DefaultFailureThreshold = 5

	// DefaultOpenDuration is how long the breaker stays open.
	DefaultOpenDuration = 30 * time.Second
)

// CircuitBreaker is a process-wide gate over the pipeline. It opens
// after a run of consecutive failures and closes again once the open
// duration has elapsed. The breaker judges the process, not the current
// request: an open breaker blocks every intent.
type CircuitBreaker struct {
	mu        sync.Mutex
	threshold int
	openFor   time.Duration
	failures  int
	openedAt  time.Time

	// now is replaceable in tests.
	now func() time.Time
}

// NewCircuitBreaker creates a closed breaker. Non-positive arguments
// fall back to the defaults.
func NewCircuitBreaker(threshold int, openFor time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	if openFor <= 0 {
		openFor = DefaultOpenDuration
	}
	return &CircuitBreaker{
		threshold: threshold,
		openFor:   openFor,
		now:       time.Now,
	}
}

// State reports whether the breaker is open and, if so, how long until
// it may be retried. An elapsed open window closes the breaker and
// resets the failure count.
func (b *CircuitBreaker) State() (open bool, retryAfter time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.openedAt.IsZero() {
		return false, 0
	}

	remaining := b.openFor - b.now().Sub(b.openedAt)
	if remaining <= 0 {
		b.openedAt = time.Time{}
		b.failures = 0
		return false, 0
	}
	return true, remaining
}

// RecordFailure counts one failed run; reaching the threshold opens
// the breaker.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	if b.failures >= b.threshold && b.openedAt.IsZero() {
		b.openedAt = b.now()
	}
}

// RecordSuccess resets the failure count of a closed breaker.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.openedAt.IsZero() {
		b.failures = 0
	}
}

// Trip forces the breaker open for its configured duration.
func (b *CircuitBreaker) Trip() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.openedAt = b.now()
	b.failures = b.threshold
}

// Reset closes the breaker and clears the failure count.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.openedAt = time.Time{}
	b.failures = 0
}
