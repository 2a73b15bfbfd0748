package osint

import (
	"log/slog"
	"sync"
	"time"
)

// BreakerState is the circuit state for one source.
type BreakerState int

const (
	// BreakerClosed means the source is operating normally.
	BreakerClosed BreakerState = iota
	// BreakerOpen means calls are short-circuited.
	BreakerOpen
	// BreakerHalfOpen means a single probe call is allowed through.
	BreakerHalfOpen
)

// String returns the state as a string.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker short-circuits calls to a failing source.
//
// closed → open after threshold consecutive failures; open → half-open
// once the backoff elapses (one probe); half-open → closed on the first
// success, half-open → open on the first failure. The open state is
// never left except through half-open.
type CircuitBreaker struct {
	mu sync.Mutex

	name      string
	threshold int
	backoff   time.Duration

	state               BreakerState
	consecutiveFailures int
	openedAt            time.Time
	probeInFlight       bool

	now func() time.Time // injectable for tests
}

// NewCircuitBreaker creates a closed breaker for the named source.
func NewCircuitBreaker(name string, threshold int, backoff time.Duration) *CircuitBreaker {
	if threshold < 1 {
		threshold = 3
	}
	if backoff <= 0 {
		backoff = 60 * time.Second
	}
	return &CircuitBreaker{
		name:      name,
		threshold: threshold,
		backoff:   backoff,
		state:     BreakerClosed,
		now:       time.Now,
	}
}

// Allow reports whether a call may proceed. May transition open →
// half-open when the backoff has elapsed; in half-open only a single
// probe is admitted.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if b.now().Sub(b.openedAt) >= b.backoff {
			b.state = BreakerHalfOpen
			b.probeInFlight = true
			slog.Info("Circuit breaker half-open, probing source", "source", b.name)
			return true
		}
		return false
	case BreakerHalfOpen:
		if b.probeInFlight {
			return false
		}
		b.probeInFlight = true
		return true
	}
	return true
}

// RecordSuccess resets failure tracking; a half-open probe success
// closes the circuit.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures = 0
	if b.state == BreakerHalfOpen {
		b.state = BreakerClosed
		b.probeInFlight = false
		slog.Info("Circuit breaker closed after successful probe", "source", b.name)
	}
}

// RecordFailure counts a failure; trips the circuit at the threshold and
// re-opens immediately from half-open.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures++
	switch b.state {
	case BreakerClosed:
		if b.consecutiveFailures >= b.threshold {
			b.trip()
		}
	case BreakerHalfOpen:
		b.probeInFlight = false
		b.trip()
	}
}

// trip opens the circuit. Caller holds the lock.
func (b *CircuitBreaker) trip() {
	b.state = BreakerOpen
	b.openedAt = b.now()
	slog.Warn("Circuit breaker opened",
		"source", b.name,
		"consecutive_failures", b.consecutiveFailures,
		"backoff", b.backoff)
}

// State returns the current state.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
