package models

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy. These are kinds, not concrete types: wrap them with
// fmt.Errorf("%w: ...") and classify with errors.Is / KindOf.
var (
	// ErrInput indicates an invalid URL, unknown tier, or malformed
	// configuration. Fatal at startup only.
	ErrInput = errors.New("invalid input")

	// ErrCancelled indicates the user or supervisor requested
	// cancellation. Propagated, not logged as an error.
	ErrCancelled = errors.New("cancelled")

	// ErrTimeout indicates a bounded operation exceeded its deadline.
	ErrTimeout = errors.New("timeout")

	// ErrRateLimited indicates a source's quota does not permit a
	// request right now. Never fatal.
	ErrRateLimited = errors.New("rate limited")

	// ErrCircuitOpen indicates a source's circuit breaker is open.
	ErrCircuitOpen = errors.New("circuit open")

	// ErrUpstream indicates an external source returned an error or an
	// unparsable response.
	ErrUpstream = errors.New("upstream error")

	// ErrTransport indicates a progress-event transport failure.
	// Triggers mode fallback; fatal only if the fallback itself fails.
	ErrTransport = errors.New("transport failure")

	// ErrBudget indicates a hard budget was exceeded. Routes to the
	// forced-verdict path, not fatal.
	ErrBudget = errors.New("budget exceeded")

	// ErrInternal indicates an invariant violation. Aborts the audit.
	ErrInternal = errors.New("internal invariant violation")
)

// ErrorKind is the string form of a taxonomy kind, used in error records
// and the final report.
type ErrorKind string

const (
	KindInput       ErrorKind = "input"
	KindCancelled   ErrorKind = "cancelled"
	KindTimeout     ErrorKind = "timeout"
	KindRateLimited ErrorKind = "rate_limited"
	KindCircuitOpen ErrorKind = "circuit_open"
	KindUpstream    ErrorKind = "upstream"
	KindTransport   ErrorKind = "transport"
	KindBudget      ErrorKind = "budget"
	KindInternal    ErrorKind = "internal"
	KindUnknown     ErrorKind = "unknown"
)

// KindOf classifies an error against the taxonomy. Context errors map to
// cancelled/timeout so callers don't have to special-case them.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrInput):
		return KindInput
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrCircuitOpen):
		return KindCircuitOpen
	case errors.Is(err, ErrUpstream):
		return KindUpstream
	case errors.Is(err, ErrTransport):
		return KindTransport
	case errors.Is(err, ErrBudget):
		return KindBudget
	case errors.Is(err, ErrInternal):
		return KindInternal
	}
	return KindUnknown
}

// Fatal reports whether err must abort the audit instead of degrading.
func Fatal(err error) bool {
	k := KindOf(err)
	return k == KindInternal || k == KindCancelled
}

// ErrorRecord is an accumulated non-fatal error with its context.
type ErrorRecord struct {
	Phase   string    `json:"phase"`
	Source  string    `json:"source,omitempty"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// NewErrorRecord builds a record from an error, classifying its kind.
func NewErrorRecord(phase, source string, err error) ErrorRecord {
	return ErrorRecord{
		Phase:   phase,
		Source:  source,
		Kind:    KindOf(err),
		Message: err.Error(),
		At:      time.Now(),
	}
}
