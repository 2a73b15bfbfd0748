package osint

import (
	"sync"
	"time"
)

// QuotaState tracks a source's rolling per-minute and per-hour request
// counts plus an explicit block-until timestamp (set when an upstream
// answers 429 with a retry hint). A zero rpm/rph means unlimited.
type QuotaState struct {
	mu  sync.Mutex
	rpm int
	rph int

	minuteStart time.Time
	minuteCount int
	hourStart   time.Time
	hourCount   int

	blockedUntil time.Time

	now func() time.Time // injectable for tests
}

// NewQuotaState creates quota tracking for the given limits.
func NewQuotaState(rpm, rph int) *QuotaState {
	return &QuotaState{rpm: rpm, rph: rph, now: time.Now}
}

// roll resets expired windows. Caller holds the lock.
func (s *QuotaState) roll(now time.Time) {
	if now.Sub(s.minuteStart) >= time.Minute {
		s.minuteStart = now
		s.minuteCount = 0
	}
	if now.Sub(s.hourStart) >= time.Hour {
		s.hourStart = now
		s.hourCount = 0
	}
}

// Allow reserves one request slot if the quota permits it, counting the
// request against both windows in the same critical section. Concurrent
// callers can therefore never overshoot a window between the check and
// the call.
func (s *QuotaState) Allow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Before(s.blockedUntil) {
		return false
	}
	s.roll(now)
	if s.rpm > 0 && s.minuteCount >= s.rpm {
		return false
	}
	if s.rph > 0 && s.hourCount >= s.rph {
		return false
	}
	if s.minuteCount == 0 {
		s.minuteStart = now
	}
	if s.hourCount == 0 {
		s.hourStart = now
	}
	s.minuteCount++
	s.hourCount++
	return true
}

// Block suspends the source until the given time.
func (s *QuotaState) Block(until time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if until.After(s.blockedUntil) {
		s.blockedUntil = until
	}
}

// Counts returns the current window tallies (for status/debugging).
func (s *QuotaState) Counts() (minute, hour int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roll(s.now())
	return s.minuteCount, s.hourCount
}
