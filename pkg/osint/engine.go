package osint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/trustlens/trustlens/pkg/config"
	"github.com/trustlens/trustlens/pkg/models"
)

// tier4MinRemaining is the context budget below which priority-tier-4
// sources are skipped entirely.
const tier4MinRemaining = 10 * time.Second

// maxCategoryFallbacks bounds the alternates tried per category after a
// failed or unavailable result.
const maxCategoryFallbacks = 2

// Engine coordinates the source fanout. Per-source quota and breaker
// states are independent and individually locked; the cache may be
// shared across audits.
type Engine struct {
	cfg        *config.OSINTConfig
	cache      Cache
	reputation *ReputationTracker

	mu       sync.RWMutex
	sources  map[string]Source
	quotas   map[string]*QuotaState
	breakers map[string]*CircuitBreaker
}

// NewEngine creates an engine with the given cache (nil for a fresh
// per-audit memory cache) and reputation tracker (nil to disable
// dynamic weights).
func NewEngine(cfg *config.OSINTConfig, cache Cache, reputation *ReputationTracker) *Engine {
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Engine{
		cfg:        cfg,
		cache:      cache,
		reputation: reputation,
		sources:    make(map[string]Source),
		quotas:     make(map[string]*QuotaState),
		breakers:   make(map[string]*CircuitBreaker),
	}
}

// Register adds a source implementation. The spec must be present in
// the engine configuration's registry.
func (e *Engine) Register(src Source) error {
	spec := src.Spec()
	if spec == nil || spec.Name == "" {
		return fmt.Errorf("%w: source spec missing", models.ErrInput)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sources[spec.Name] = src
	e.quotas[spec.Name] = NewQuotaState(spec.RPM, spec.RPH)
	e.breakers[spec.Name] = NewCircuitBreaker(spec.Name, e.cfg.BreakerFailureThreshold, e.cfg.BreakerBackoff)
	return nil
}

// Breaker exposes a source's breaker (status reporting, tests).
func (e *Engine) Breaker(name string) *CircuitBreaker {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.breakers[name]
}

// Query runs the query-one algorithm against a single source:
// cache → breaker → quota reservation → timed call → record outcome.
func (e *Engine) Query(ctx context.Context, name string, q Query) *Result {
	e.mu.RLock()
	src := e.sources[name]
	quota := e.quotas[name]
	breaker := e.breakers[name]
	e.mu.RUnlock()

	if src == nil {
		return &Result{Source: name, Status: StatusError, Cause: CauseUpstream,
			Err: fmt.Errorf("%w: unknown source %q", models.ErrInput, name)}
	}
	spec := src.Spec()
	result := &Result{Source: name, Category: spec.Category}

	if v, ok := e.cache.Get(ctx, name, q); ok {
		metricCacheHits.WithLabelValues(name).Inc()
		result.Status = StatusOK
		result.Verdict = v
		result.FromCache = true
		return result
	}

	if !breaker.Allow() {
		metricQueries.WithLabelValues(name, string(StatusUnavailable)).Inc()
		result.Status = StatusUnavailable
		result.Err = fmt.Errorf("%w: %s", models.ErrCircuitOpen, name)
		return result
	}

	if !quota.Allow() {
		metricQueries.WithLabelValues(name, string(StatusRateLimited)).Inc()
		result.Status = StatusRateLimited
		result.Err = fmt.Errorf("%w: %s", models.ErrRateLimited, name)
		return result
	}

	callCtx := ctx
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	verdict, err := src.Lookup(callCtx, q)
	if err != nil {
		before := breaker.State()
		breaker.RecordFailure()
		if breaker.State() == BreakerOpen && before != BreakerOpen {
			metricBreakerTrips.WithLabelValues(name).Inc()
		}
		metricQueries.WithLabelValues(name, string(StatusError)).Inc()
		result.Status = StatusError
		result.Cause = causeOf(err)
		result.Err = err
		return result
	}

	breaker.RecordSuccess()
	if verdict != nil {
		verdict.Source = name
		verdict.Category = spec.Category
		verdict.TrustLevel = spec.TrustLevel
		e.cache.Set(ctx, name, q, verdict, int(spec.CacheTTL.Seconds()))
	}
	metricQueries.WithLabelValues(name, string(StatusOK)).Inc()
	result.Status = StatusOK
	result.Verdict = verdict
	return result
}

// causeOf maps a lookup error to its cause tag.
func causeOf(err error) string {
	switch {
	case errors.Is(err, ErrParse):
		return CauseParse
	case errors.Is(err, models.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return CauseTimeout
	case errors.Is(err, models.ErrUpstream):
		return CauseUpstream
	}
	return CauseTransport
}

// ErrParse tags lookup responses that could not be decoded.
var ErrParse = fmt.Errorf("%w: unparsable response", models.ErrUpstream)

// QueryAll fans the query out across all enabled sources, tier by tier
// (1 → 2 → 3, then 4 only when the remaining context budget is
// non-trivial), with bounded parallelism inside a tier, pacing between
// tiers, and same-category fallback for failed categories.
func (e *Engine) QueryAll(ctx context.Context, q Query) []*Result {
	byTier := e.enabledByTier()

	attempted := make(map[string]bool)
	var results []*Result

	for tier := 1; tier <= 4; tier++ {
		names := byTier[tier]
		if len(names) == 0 {
			continue
		}
		if tier == 4 && !budgetAllowsTier4(ctx) {
			slog.Debug("Skipping tier-4 sources, remaining budget too small")
			continue
		}
		if err := ctx.Err(); err != nil {
			break
		}

		results = append(results, e.queryTier(ctx, names, q, attempted)...)

		if tier < 4 && e.cfg.TierPacing > 0 {
			select {
			case <-time.After(e.cfg.TierPacing):
			case <-ctx.Done():
			}
		}
	}

	results = append(results, e.categoryFallbacks(ctx, q, results, attempted)...)
	return results
}

// queryTier runs one tier's sources with the configured parallelism cap.
func (e *Engine) queryTier(ctx context.Context, names []string, q Query, attempted map[string]bool) []*Result {
	sem := make(chan struct{}, e.cfg.Parallelism)
	out := make([]*Result, len(names))
	var wg sync.WaitGroup

	for i, name := range names {
		attempted[name] = true
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				out[i] = &Result{Source: name, Status: StatusError, Cause: CauseTimeout, Err: ctx.Err()}
				return
			}
			out[i] = e.Query(ctx, name, q)
		}(i, name)
	}
	wg.Wait()
	return out
}

// categoryFallbacks retries failed categories on alternates: for each
// category with an error/unavailable result and no usable one, up to two
// not-yet-attempted sources of the same category get a single attempt,
// in priority order. A category is satisfied by the first usable result.
func (e *Engine) categoryFallbacks(ctx context.Context, q Query, results []*Result, attempted map[string]bool) []*Result {
	satisfied := make(map[string]bool)
	failed := make(map[string]bool)
	for _, r := range results {
		if r.Usable() {
			satisfied[r.Category] = true
		} else if r.Status == StatusError || r.Status == StatusUnavailable {
			failed[r.Category] = true
		}
	}

	var extra []*Result
	for _, category := range sortedKeys(failed) {
		if satisfied[category] || ctx.Err() != nil {
			continue
		}
		alternates := e.alternatesFor(category, attempted)
		for i, name := range alternates {
			if i >= maxCategoryFallbacks {
				break
			}
			metricFallbacks.Inc()
			attempted[name] = true
			r := e.Query(ctx, name, q)
			extra = append(extra, r)
			if r.Usable() {
				break
			}
		}
	}
	return extra
}

// alternatesFor lists unattempted sources of a category in priority
// order (tier, then name for determinism).
func (e *Engine) alternatesFor(category string, attempted map[string]bool) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var names []string
	for name, src := range e.sources {
		spec := src.Spec()
		if spec.Category != category || attempted[name] || !spec.Enabled() {
			continue
		}
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		ti := e.sources[names[i]].Spec().PriorityTier
		tj := e.sources[names[j]].Spec().PriorityTier
		if ti != tj {
			return ti < tj
		}
		return names[i] < names[j]
	})
	return names
}

// enabledByTier groups enabled source names by priority tier, sorted
// within each tier for deterministic dispatch order.
func (e *Engine) enabledByTier() map[int][]string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	byTier := make(map[int][]string)
	for name, src := range e.sources {
		spec := src.Spec()
		if !spec.Enabled() {
			continue
		}
		byTier[spec.PriorityTier] = append(byTier[spec.PriorityTier], name)
	}
	for tier := range byTier {
		sort.Strings(byTier[tier])
	}
	return byTier
}

func budgetAllowsTier4(ctx context.Context) bool {
	deadline, ok := ctx.Deadline()
	if !ok {
		return true
	}
	return time.Until(deadline) > tier4MinRemaining
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Consensus resolves the usable verdicts from a fanout run, applying
// reputation-adjusted weights when a tracker is attached, and feeds the
// outcome back into the tracker.
func (e *Engine) Consensus(results []*Result) (*models.ConsensusResult, []models.ConflictRecord, []models.SourceVerdict) {
	var verdicts []models.SourceVerdict
	for _, r := range results {
		if r.Usable() {
			verdicts = append(verdicts, *r.Verdict)
		}
	}
	weightOf := BaseWeight
	if e.reputation != nil {
		weightOf = e.reputation.WeightFunc()
	}
	consensus, conflicts := Resolve(verdicts, e.cfg.Sources, e.cfg.HighConfidence, weightOf)
	if e.reputation != nil && consensus != nil {
		e.reputation.Observe(verdicts, consensus)
	}
	return consensus, conflicts, verdicts
}
