// Package osint implements the OSINT/CTI fanout engine: parallel
// multi-source querying with per-source rate limiting, circuit breaking,
// caching, weighted consensus, and offline darknet-feed matching.
//
// Darknet exposure is evaluated only against pre-loaded threat feeds.
// The engine never opens a connection to any hidden-service network.
package osint

import (
	"context"
	"encoding/json"

	"github.com/trustlens/trustlens/pkg/config"
	"github.com/trustlens/trustlens/pkg/models"
)

// Query is the lookup target handed to every source.
type Query struct {
	Domain   string   `json:"domain"`
	Keywords []string `json:"keywords,omitempty"`
}

// Key returns the cache key material for the query.
func (q Query) Key() string {
	key := q.Domain
	for _, kw := range q.Keywords {
		key += "|" + kw
	}
	return key
}

// Status classifies the outcome of a single source query.
type Status string

const (
	StatusOK          Status = "ok"
	StatusUnavailable Status = "unavailable"  // circuit open
	StatusRateLimited Status = "rate_limited" // quota exhausted
	StatusError       Status = "error"
)

// Cause tags on StatusError results.
const (
	CauseTimeout   = "timeout"
	CauseTransport = "transport"
	CauseUpstream  = "upstream"
	CauseParse     = "parse"
)

// Result is the engine-level outcome for one source.
type Result struct {
	Source    string
	Category  string
	Status    Status
	Verdict   *models.SourceVerdict // non-nil only on StatusOK
	Cause     string                // set on StatusError
	FromCache bool
	Err       error
}

// Usable reports whether the result satisfied its category.
func (r *Result) Usable() bool {
	return r != nil && r.Status == StatusOK && r.Verdict != nil
}

// Source is one external intelligence provider. Implementations perform
// only the lookup itself; quota, breaker, and cache handling live in the
// engine.
type Source interface {
	Spec() *config.SourceSpec
	Lookup(ctx context.Context, q Query) (*models.SourceVerdict, error)
}

// Cache stores per-source verdicts. Writes are atomic per key.
type Cache interface {
	Get(ctx context.Context, source string, q Query) (*models.SourceVerdict, bool)
	Set(ctx context.Context, source string, q Query, v *models.SourceVerdict, ttlSeconds int)
}

// cacheEntry is the serialized cache representation shared by the file
// and redis backends.
type cacheEntry struct {
	Payload   json.RawMessage `json:"payload"`
	ExpiresAt int64           `json:"expires_at"` // unix seconds
}
