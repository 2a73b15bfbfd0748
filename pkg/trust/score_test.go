package trust

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustlens/trustlens/pkg/config"
	"github.com/trustlens/trustlens/pkg/models"
)

func newTestScorer() *Scorer {
	return NewScorer(config.DefaultTrustConfig(), 0.6)
}

func fullConfidenceSignals(raw float64) []models.SubSignal {
	signals := make([]models.SubSignal, 0, len(models.SignalNames))
	for _, name := range models.SignalNames {
		signals = append(signals, models.SubSignal{Name: name, RawScore: raw, Confidence: 1.0})
	}
	return signals
}

func TestComputeUniformSignals(t *testing.T) {
	s := newTestScorer()

	result := s.Compute(fullConfidenceSignals(0.8), nil, nil)
	// All raw scores equal: the weighted average is the raw score.
	assert.Equal(t, 80, result.FinalScore)
	assert.Equal(t, models.RiskProbablySafe, result.RiskLevel)
	assert.Empty(t, result.Overrides)
	assert.Len(t, result.SignalScores, len(models.SignalNames))
}

func TestComputeNoEvidenceIsNeutral(t *testing.T) {
	s := newTestScorer()
	result := s.Compute(nil, nil, nil)
	assert.Equal(t, 50, result.FinalScore)
	assert.Equal(t, models.RiskSuspicious, result.RiskLevel)
}

func TestComputeMissingSignalsRenormalize(t *testing.T) {
	s := newTestScorer()

	// Only two signals present; their weights renormalize to sum 1:
	// graph 0.25, security 0.20 → 5/9 and 4/9.
	signals := []models.SubSignal{
		{Name: models.SignalGraph, RawScore: 0.9, Confidence: 1.0},
		{Name: models.SignalSecurity, RawScore: 0.0, Confidence: 1.0},
	}
	result := s.Compute(signals, nil, nil)
	assert.Equal(t, 50, result.FinalScore) // (5/9)×90 = 50
}

func TestComputeConfidenceScalesContribution(t *testing.T) {
	s := newTestScorer()

	confident := s.Compute([]models.SubSignal{
		{Name: models.SignalGraph, RawScore: 1.0, Confidence: 1.0},
		{Name: models.SignalSecurity, RawScore: 0.0, Confidence: 1.0},
	}, nil, nil)

	hesitant := s.Compute([]models.SubSignal{
		{Name: models.SignalGraph, RawScore: 1.0, Confidence: 0.1},
		{Name: models.SignalSecurity, RawScore: 0.0, Confidence: 1.0},
	}, nil, nil)

	// Each signal contributes weight × raw × confidence: graph and
	// security renormalize to 5/9 and 4/9, so a fully-trusted good graph
	// signal yields 56 while the same signal at 0.1 confidence yields 6.
	assert.Equal(t, 56, confident.FinalScore)
	assert.Equal(t, 6, hesitant.FinalScore)
	assert.Less(t, hesitant.FinalScore, confident.FinalScore)
}

func TestComputeSiteTypeWeightSelection(t *testing.T) {
	s := newTestScorer()
	signals := []models.SubSignal{
		{Name: models.SignalSecurity, RawScore: 0.2, Confidence: 1.0},
		{Name: models.SignalVisual, RawScore: 0.9, Confidence: 1.0},
	}

	generic := s.Compute(signals, nil, nil)
	banking := s.Compute(signals, &models.SiteType{Label: models.SiteTypeBanking, Confidence: 0.9}, nil)
	// Banking weights security 0.35 vs visual 0.10: a weak security
	// signal hurts a bank-like site more.
	assert.Less(t, banking.FinalScore, generic.FinalScore)

	// Below the confidence threshold the default vector applies.
	unsure := s.Compute(signals, &models.SiteType{Label: models.SiteTypeBanking, Confidence: 0.3}, nil)
	assert.Equal(t, generic.FinalScore, unsure.FinalScore)

	// Unknown labels fall back to the default vector too.
	unknown := s.Compute(signals, &models.SiteType{Label: "blog", Confidence: 0.9}, nil)
	assert.Equal(t, generic.FinalScore, unknown.FinalScore)
}

func TestOverridesApplyInDeclarationOrder(t *testing.T) {
	s := newTestScorer()

	// Flags arrive in arbitrary order; rules apply in config order.
	result := s.Compute(fullConfidenceSignals(0.9), nil, []string{
		config.FlagYoungDomain,
		config.FlagPhishingListHit,
	})
	assert.Equal(t, []string{config.FlagPhishingListHit, config.FlagYoungDomain}, result.Overrides)
	// Clamp to 15, then the 10-point penalty.
	assert.Equal(t, 5, result.FinalScore)
	assert.Equal(t, models.RiskLikelyFraudulent, result.RiskLevel)
	assert.Len(t, result.Recommendations, 2)
}

func TestOverrideClampNeverRaises(t *testing.T) {
	s := newTestScorer()
	result := s.Compute(fullConfidenceSignals(0.1), nil, []string{config.FlagConfirmedMalicious})
	// Base 10 is already under the clamp value 30; the rule records but
	// does not lift the score.
	assert.Equal(t, 10, result.FinalScore)
	assert.Equal(t, []string{config.FlagConfirmedMalicious}, result.Overrides)
}

func TestPhishingHitLandsInFraudulentBucket(t *testing.T) {
	s := newTestScorer()

	// Even a perfect page drops into likely_fraudulent on a blocklist
	// hit: the clamp lands below the high_risk boundary at 20.
	result := s.Compute(fullConfidenceSignals(1.0), nil, []string{config.FlagPhishingListHit})
	assert.Equal(t, 15, result.FinalScore)
	assert.Equal(t, models.RiskLikelyFraudulent, result.RiskLevel)
	assert.Equal(t, []string{config.FlagPhishingListHit}, result.Overrides)
}

func TestOverridePenaltyFloorsAtZero(t *testing.T) {
	s := newTestScorer()
	result := s.Compute(fullConfidenceSignals(0.05), nil, []string{
		config.FlagSSLAbsent, config.FlagSelfSignedCert, config.FlagYoungDomain,
	})
	assert.Equal(t, 0, result.FinalScore)
	assert.Equal(t, models.RiskLikelyFraudulent, result.RiskLevel)
}

func TestRiskBuckets(t *testing.T) {
	tests := []struct {
		score int
		want  models.RiskLevel
	}{
		{100, models.RiskTrusted},
		{90, models.RiskTrusted},
		{89, models.RiskProbablySafe},
		{70, models.RiskProbablySafe},
		{69, models.RiskSuspicious},
		{40, models.RiskSuspicious},
		{39, models.RiskHighRisk},
		{20, models.RiskHighRisk},
		{19, models.RiskLikelyFraudulent},
		{0, models.RiskLikelyFraudulent},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, models.RiskLevelFor(tt.score), "score %d", tt.score)
	}
}

func TestNarrativeIsDeterministic(t *testing.T) {
	s := newTestScorer()
	signals := []models.SubSignal{
		{Name: models.SignalVisual, RawScore: 0.9, Confidence: 1.0},
		{Name: models.SignalGraph, RawScore: 0.3, Confidence: 1.0},
		{Name: models.SignalSecurity, RawScore: 0.3, Confidence: 1.0},
	}
	siteType := &models.SiteType{Label: models.SiteTypeEcommerce, Confidence: 0.8}
	flags := []string{config.FlagYoungDomain}

	first := s.Compute(signals, siteType, flags)
	for i := 0; i < 10; i++ {
		again := s.Compute(signals, siteType, flags)
		require.Equal(t, first, again)
	}

	assert.Contains(t, first.Narrative, "ecommerce")
	// graph and security tie at 30; graph wins the name-ordered tie.
	assert.Contains(t, first.Narrative, "Weakest signal: graph (30/100)")
	assert.Contains(t, first.Narrative, config.FlagYoungDomain)
}
