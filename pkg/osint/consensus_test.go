package osint

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustlens/trustlens/pkg/config"
	"github.com/trustlens/trustlens/pkg/models"
)

func consensusSpecs() map[string]*config.SourceSpec {
	return map[string]*config.SourceSpec{
		"feed_a": {Name: "feed_a", BaseWeight: 1.0, ConfidenceBias: 1.2, TrustLevel: config.TrustHigh},
		"feed_b": {Name: "feed_b", BaseWeight: 0.8, ConfidenceBias: 1.0, TrustLevel: config.TrustMedium},
		"feed_c": {Name: "feed_c", BaseWeight: 0.4, ConfidenceBias: 1.0, TrustLevel: config.TrustLow},
		"feed_d": {Name: "feed_d", BaseWeight: 1.0, ConfidenceBias: 1.0, TrustLevel: config.TrustHigh},
	}
}

func TestResolveEmptyInput(t *testing.T) {
	result, conflicts := Resolve(nil, consensusSpecs(), 0.8, nil)
	assert.Nil(t, result)
	assert.Empty(t, conflicts)
}

func TestResolveWeightedMajority(t *testing.T) {
	specs := consensusSpecs()
	verdicts := []models.SourceVerdict{
		{Source: "feed_a", Malicious: true, Confidence: 0.9, TrustLevel: config.TrustHigh},
		{Source: "feed_c", Malicious: false, Confidence: 0.6, TrustLevel: config.TrustLow},
	}

	result, conflicts := Resolve(verdicts, specs, 0.8, nil)
	require.NotNil(t, result)

	// feed_a: 1.0 × 0.9 × 1.2 = 1.08 malicious; feed_c: 0.4 × 0.6 = 0.24 clean.
	assert.True(t, result.Malicious)
	assert.InDelta(t, 1.08/(1.08+0.24), result.MaliciousRatio, 1e-9)
	assert.Equal(t, 2, result.SourceCount)

	// Disagreement is preserved, never averaged away.
	require.Len(t, conflicts, 1)
	assert.Equal(t, "feed_a", conflicts[0].MaliciousSide)
	assert.Equal(t, "feed_c", conflicts[0].CleanSide)
	assert.Contains(t, conflicts[0].Explanation, "malicious ratio")
}

func TestResolveCleanMajority(t *testing.T) {
	verdicts := []models.SourceVerdict{
		{Source: "feed_b", Malicious: false, Confidence: 0.9, TrustLevel: config.TrustMedium},
		{Source: "feed_d", Malicious: false, Confidence: 0.8, TrustLevel: config.TrustHigh},
		{Source: "feed_c", Malicious: true, Confidence: 0.3, TrustLevel: config.TrustLow},
	}

	result, conflicts := Resolve(verdicts, consensusSpecs(), 0.8, nil)
	require.NotNil(t, result)
	assert.False(t, result.Malicious)
	assert.Less(t, result.MaliciousRatio, 0.5)
	assert.Greater(t, result.Confidence, 50.0)
	require.Len(t, conflicts, 1)
}

func TestResolveOrderIndependent(t *testing.T) {
	specs := consensusSpecs()
	verdicts := []models.SourceVerdict{
		{Source: "feed_a", Malicious: true, Confidence: 0.9, TrustLevel: config.TrustHigh},
		{Source: "feed_b", Malicious: false, Confidence: 0.7, TrustLevel: config.TrustMedium},
		{Source: "feed_c", Malicious: true, Confidence: 0.5, TrustLevel: config.TrustLow},
		{Source: "feed_d", Malicious: false, Confidence: 0.8, TrustLevel: config.TrustHigh},
	}

	want, wantConflicts := Resolve(verdicts, specs, 0.8, nil)
	require.NotNil(t, want)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := make([]models.SourceVerdict, len(verdicts))
		copy(shuffled, verdicts)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})

		got, gotConflicts := Resolve(shuffled, specs, 0.8, nil)
		require.NotNil(t, got)
		assert.Equal(t, want, got)
		assert.Equal(t, wantConflicts, gotConflicts)
	}
}

func TestResolveConfirmationRules(t *testing.T) {
	specs := consensusSpecs()

	tests := []struct {
		name      string
		verdicts  []models.SourceVerdict
		confirmed bool
	}{
		{
			name: "three agreeing sources confirm",
			verdicts: []models.SourceVerdict{
				{Source: "feed_b", Malicious: true, Confidence: 0.6, TrustLevel: config.TrustMedium},
				{Source: "feed_c", Malicious: true, Confidence: 0.6, TrustLevel: config.TrustLow},
				{Source: "x", Malicious: true, Confidence: 0.6, TrustLevel: config.TrustUnknown},
			},
			confirmed: true,
		},
		{
			name: "two high-trust sources confirm",
			verdicts: []models.SourceVerdict{
				{Source: "feed_a", Malicious: true, Confidence: 0.6, TrustLevel: config.TrustHigh},
				{Source: "feed_d", Malicious: true, Confidence: 0.6, TrustLevel: config.TrustHigh},
			},
			confirmed: true,
		},
		{
			name: "one very confident high-trust source confirms",
			verdicts: []models.SourceVerdict{
				{Source: "feed_a", Malicious: true, Confidence: 0.95, TrustLevel: config.TrustHigh},
			},
			confirmed: true,
		},
		{
			name: "one hesitant high-trust source does not confirm",
			verdicts: []models.SourceVerdict{
				{Source: "feed_a", Malicious: true, Confidence: 0.7, TrustLevel: config.TrustHigh},
			},
			confirmed: false,
		},
		{
			name: "two medium-trust sources do not confirm",
			verdicts: []models.SourceVerdict{
				{Source: "feed_b", Malicious: true, Confidence: 0.9, TrustLevel: config.TrustMedium},
				{Source: "feed_c", Malicious: true, Confidence: 0.9, TrustLevel: config.TrustLow},
			},
			confirmed: false,
		},
		{
			name: "dissenters do not count toward agreement",
			verdicts: []models.SourceVerdict{
				{Source: "feed_b", Malicious: true, Confidence: 0.9, TrustLevel: config.TrustMedium},
				{Source: "feed_c", Malicious: true, Confidence: 0.9, TrustLevel: config.TrustLow},
				{Source: "feed_d", Malicious: false, Confidence: 0.2, TrustLevel: config.TrustHigh},
			},
			confirmed: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, _ := Resolve(tt.verdicts, specs, 0.9, nil)
			require.NotNil(t, result)
			assert.Equal(t, tt.confirmed, result.Confirmed)
		})
	}
}

func TestResolveUnregisteredSourceGetsNeutralWeight(t *testing.T) {
	verdicts := []models.SourceVerdict{
		{Source: "mystery", Malicious: true, Confidence: 1.0},
	}
	result, _ := Resolve(verdicts, map[string]*config.SourceSpec{}, 0.8, nil)
	require.NotNil(t, result)
	assert.True(t, result.Malicious)
	assert.Equal(t, 1.0, result.MaliciousRatio)
}

func TestReputationMultiplierBounds(t *testing.T) {
	tracker := NewReputationTracker()
	bad := &models.ConsensusResult{Malicious: true}

	// Fewer than the minimum observations: no drift.
	for i := 0; i < minObservations-1; i++ {
		tracker.Observe([]models.SourceVerdict{{Source: "src", Malicious: true}}, bad)
	}
	assert.Equal(t, 1.0, tracker.Multiplier("src"))
	assert.Equal(t, 1.0, tracker.Multiplier("never-seen"))

	// Perfect agreement caps at the upper bound.
	tracker.Observe([]models.SourceVerdict{{Source: "src", Malicious: true}}, bad)
	assert.Equal(t, MaxMultiplier, tracker.Multiplier("src"))

	// Constant disagreement floors at the lower bound.
	for i := 0; i < minObservations; i++ {
		tracker.Observe([]models.SourceVerdict{{Source: "contrarian", Malicious: false}}, bad)
	}
	assert.Equal(t, MinMultiplier, tracker.Multiplier("contrarian"))
}

func TestReputationWeightFuncScalesBaseWeight(t *testing.T) {
	tracker := NewReputationTracker()
	consensus := &models.ConsensusResult{Malicious: true}
	for i := 0; i < minObservations; i++ {
		tracker.Observe([]models.SourceVerdict{{Source: "feed_a", Malicious: true}}, consensus)
	}

	weightOf := tracker.WeightFunc()
	spec := &config.SourceSpec{Name: "feed_a", BaseWeight: 0.8}
	assert.InDelta(t, 0.8*MaxMultiplier, weightOf(spec), 1e-9)

	unknown := &config.SourceSpec{Name: "feed_z", BaseWeight: 0.8}
	assert.InDelta(t, 0.8, weightOf(unknown), 1e-9)
}
