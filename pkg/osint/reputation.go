package osint

import (
	"sync"

	"github.com/trustlens/trustlens/pkg/config"
	"github.com/trustlens/trustlens/pkg/models"
)

// Reputation multiplier bounds. Weight adjustments never leave
// [MinMultiplier, MaxMultiplier] × base_weight, preventing runaway drift.
const (
	MinMultiplier = 0.5
	MaxMultiplier = 1.5

	// minObservations before the multiplier moves off 1.0.
	minObservations = 5
)

// ReputationTracker observes how often each source agrees with the
// eventual consensus and adjusts its effective weight within bounds.
// Shared across audits under one supervisor.
type ReputationTracker struct {
	mu    sync.RWMutex
	stats map[string]*sourceStats
}

type sourceStats struct {
	observations int
	agreements   int
}

// NewReputationTracker creates an empty tracker.
func NewReputationTracker() *ReputationTracker {
	return &ReputationTracker{stats: make(map[string]*sourceStats)}
}

// Observe records each source's agreement with the resolved consensus.
func (t *ReputationTracker) Observe(verdicts []models.SourceVerdict, consensus *models.ConsensusResult) {
	if consensus == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, v := range verdicts {
		s := t.stats[v.Source]
		if s == nil {
			s = &sourceStats{}
			t.stats[v.Source] = s
		}
		s.observations++
		if v.Malicious == consensus.Malicious {
			s.agreements++
		}
	}
}

// Multiplier returns the bounded weight multiplier for a source.
// Below minObservations the multiplier stays at 1.0.
func (t *ReputationTracker) Multiplier(source string) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := t.stats[source]
	if s == nil || s.observations < minObservations {
		return 1.0
	}
	rate := float64(s.agreements) / float64(s.observations)
	m := MinMultiplier + rate // rate ∈ [0,1] → m ∈ [0.5, 1.5]
	if m < MinMultiplier {
		m = MinMultiplier
	}
	if m > MaxMultiplier {
		m = MaxMultiplier
	}
	return m
}

// WeightFunc returns a consensus WeightFunc applying this tracker's
// multipliers to configured base weights.
func (t *ReputationTracker) WeightFunc() WeightFunc {
	return func(spec *config.SourceSpec) float64 {
		return spec.BaseWeight * t.Multiplier(spec.Name)
	}
}
