package osint

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerTripsAtThreshold(t *testing.T) {
	b := NewCircuitBreaker("src", 3, time.Minute)

	require.Equal(t, BreakerClosed, b.State())
	b.RecordFailure()
	b.RecordFailure()
	assert.Equal(t, BreakerClosed, b.State())
	assert.True(t, b.Allow())

	b.RecordFailure()
	assert.Equal(t, BreakerOpen, b.State())
	assert.False(t, b.Allow())
}

func TestBreakerSuccessResetsConsecutiveCount(t *testing.T) {
	b := NewCircuitBreaker("src", 3, time.Minute)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()
	// Failures were not consecutive past the threshold.
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreakerHalfOpenProbeLifecycle(t *testing.T) {
	current := time.Unix(1000, 0)
	b := NewCircuitBreaker("src", 1, 60*time.Second)
	b.now = func() time.Time { return current }

	b.RecordFailure()
	require.Equal(t, BreakerOpen, b.State())
	assert.False(t, b.Allow())

	// Backoff elapsed: exactly one probe gets through.
	current = current.Add(61 * time.Second)
	assert.True(t, b.Allow())
	assert.Equal(t, BreakerHalfOpen, b.State())
	assert.False(t, b.Allow(), "second concurrent probe must be rejected")

	// Probe success closes the circuit.
	b.RecordSuccess()
	assert.Equal(t, BreakerClosed, b.State())
	assert.True(t, b.Allow())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	current := time.Unix(1000, 0)
	b := NewCircuitBreaker("src", 1, 60*time.Second)
	b.now = func() time.Time { return current }

	b.RecordFailure()
	current = current.Add(61 * time.Second)
	require.True(t, b.Allow())
	require.Equal(t, BreakerHalfOpen, b.State())

	b.RecordFailure()
	assert.Equal(t, BreakerOpen, b.State())
	assert.False(t, b.Allow(), "fresh backoff starts from the reopen")

	// The next backoff window admits another probe.
	current = current.Add(61 * time.Second)
	assert.True(t, b.Allow())
}

func TestQuotaRollingWindows(t *testing.T) {
	current := time.Unix(5000, 0)
	q := NewQuotaState(1, 10)
	q.now = func() time.Time { return current }

	// rpm=1: the first Allow reserves the slot, the second in the same
	// minute is rejected.
	require.True(t, q.Allow())
	assert.False(t, q.Allow())

	// Window rolls after a minute.
	current = current.Add(time.Minute)
	assert.True(t, q.Allow())

	minute, hour := q.Counts()
	assert.Equal(t, 1, minute)
	assert.Equal(t, 2, hour)
}

func TestQuotaHourlyLimit(t *testing.T) {
	current := time.Unix(5000, 0)
	q := NewQuotaState(0, 2)
	q.now = func() time.Time { return current }

	require.True(t, q.Allow())
	current = current.Add(time.Minute)
	require.True(t, q.Allow())
	assert.False(t, q.Allow(), "rph exhausted despite fresh minute window")

	current = current.Add(time.Hour)
	assert.True(t, q.Allow())
}

func TestQuotaReservesAtomically(t *testing.T) {
	q := NewQuotaState(5, 100)

	var wg sync.WaitGroup
	var allowed atomic.Int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if q.Allow() {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	// The check and the count share one critical section, so concurrent
	// callers can never overshoot the rpm cap.
	assert.Equal(t, int32(5), allowed.Load())
	minute, _ := q.Counts()
	assert.Equal(t, 5, minute)
}

func TestQuotaExplicitBlock(t *testing.T) {
	current := time.Unix(5000, 0)
	q := NewQuotaState(0, 0)
	q.now = func() time.Time { return current }

	require.True(t, q.Allow(), "unlimited quota allows by default")
	q.Block(current.Add(30 * time.Second))
	assert.False(t, q.Allow())

	current = current.Add(31 * time.Second)
	assert.True(t, q.Allow())
}
