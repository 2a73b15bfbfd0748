package phases

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustlens/trustlens/pkg/config"
	"github.com/trustlens/trustlens/pkg/models"
	"github.com/trustlens/trustlens/pkg/trust"
)

func TestClassifySiteType(t *testing.T) {
	tests := []struct {
		name     string
		evidence []models.ScoutEvidence
		label    string
	}{
		{
			name: "ecommerce keywords",
			evidence: []models.ScoutEvidence{{
				Title:      "MegaShop",
				TextSample: "add to cart, checkout with free shipping, order today, buy now",
			}},
			label: models.SiteTypeEcommerce,
		},
		{
			name: "banking keywords plus password form",
			evidence: []models.ScoutEvidence{{
				TextSample: "online banking login. enter your account number and routing number.",
				Forms:      []models.FormInfo{{HasPassword: true}},
			}},
			label: models.SiteTypeBanking,
		},
		{
			name:     "no keywords at all",
			evidence: []models.ScoutEvidence{{TextSample: "lorem ipsum dolor"}},
			label:    models.SiteTypeUnknown,
		},
		{
			name:     "no evidence",
			evidence: nil,
			label:    models.SiteTypeUnknown,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := ClassifySiteType(tt.evidence)
			require.NotNil(t, st)
			assert.Equal(t, tt.label, st.Label)
			if tt.label == models.SiteTypeUnknown {
				assert.Zero(t, st.Confidence)
			} else {
				assert.Greater(t, st.Confidence, 0.0)
				assert.LessOrEqual(t, st.Confidence, 0.9)
			}
		})
	}
}

func TestVisualSignal(t *testing.T) {
	state := stateWithPages(models.ScoutEvidence{URL: "a"})
	clean := visualSignal(state)
	assert.Equal(t, 1.0, clean.RawScore)
	assert.Equal(t, 0.85, clean.Confidence)

	state.VisionFindings = []models.Finding{
		{Severity: models.SeverityCritical, Confidence: 1.0}, // load 1.0
		{Severity: models.SeverityMedium, Confidence: 0.5},   // load 0.15
	}
	loaded := visualSignal(state)
	assert.InDelta(t, 1-1.15/2.5, loaded.RawScore, 1e-9)
	assert.Equal(t, 2, loaded.EvidenceCount)
}

func TestTemporalSignalPrefersGraphAge(t *testing.T) {
	state := stateWithPages(models.ScoutEvidence{
		URL: "a",
		TLS: &models.TLSInfo{NotBefore: time.Now().AddDate(0, 0, -10)},
	})

	// Certificate fallback: ~10 days old.
	fromCert := temporalSignal(state)
	assert.InDelta(t, 10.0/365, fromCert.RawScore, 0.01)

	// Registrar age wins over the certificate.
	state.GraphEvidence = &models.GraphEvidence{DomainAgeDays: 365}
	fromGraph := temporalSignal(state)
	assert.Equal(t, 1.0, fromGraph.RawScore)

	// No age at all: neutral with low confidence.
	empty := temporalSignal(stateWithPages(models.ScoutEvidence{URL: "a"}))
	assert.Equal(t, 0.5, empty.RawScore)
	assert.Equal(t, 0.2, empty.Confidence)
}

func TestGraphSignal(t *testing.T) {
	state := stateWithPages(models.ScoutEvidence{URL: "a"})

	noGraph := graphSignal(state)
	assert.Equal(t, 0.5, noGraph.RawScore)
	assert.Equal(t, 0.2, noGraph.Confidence)

	state.GraphEvidence = &models.GraphEvidence{
		Consensus: &models.ConsensusResult{
			Malicious: true, MaliciousRatio: 0.8, Confidence: 80, Confirmed: true,
		},
		Conflicts:     []models.ConflictRecord{{MaliciousSide: "a", CleanSide: "b"}},
		Verifications: []models.SourceVerdict{{Source: "a"}, {Source: "b"}},
	}
	sig := graphSignal(state)
	assert.InDelta(t, 0.2, sig.RawScore, 1e-9)
	// Confirmed lifts confidence to 0.9, each conflict shaves 0.1.
	assert.InDelta(t, 0.8, sig.Confidence, 1e-9)
	assert.Equal(t, 2, sig.EvidenceCount)
}

func TestSecuritySignal(t *testing.T) {
	state := stateWithPages(models.ScoutEvidence{URL: "a"})

	unknown := securitySignal(state)
	assert.Equal(t, 0.5, unknown.RawScore)

	state.SecurityEvidence["headers"] = models.SecurityResult{Module: "headers", Score: 0.8}
	state.SecurityEvidence["tls"] = models.SecurityResult{Module: "tls", Score: 0.4}
	state.SecurityEvidence["forms"] = models.SecurityResult{Module: "forms", Failed: true}

	sig := securitySignal(state)
	assert.InDelta(t, 0.6, sig.RawScore, 1e-9, "mean of the modules that ran")
	assert.InDelta(t, 2.0/3, sig.Confidence, 1e-9, "failed modules lower confidence")
}

func TestComputeSignalsReturnsAllSix(t *testing.T) {
	signals := ComputeSignals(stateWithPages(models.ScoutEvidence{URL: "a"}))
	require.Len(t, signals, len(models.SignalNames))
	for i, name := range models.SignalNames {
		assert.Equal(t, name, signals[i].Name)
	}
}

func TestOverrideFlagsStableOrder(t *testing.T) {
	state := stateWithPages(models.ScoutEvidence{URL: "a"}) // no TLS anywhere
	state.GraphEvidence = &models.GraphEvidence{
		PhishingHit:   true,
		DarknetHits:   []string{"domain:shadowmarket.example"},
		Consensus:     &models.ConsensusResult{Malicious: true, Confirmed: true},
		DomainAgeDays: 5,
	}
	state.VisionFindings = []models.Finding{{Severity: models.SeverityCritical, Confidence: 0.7}}

	flags := OverrideFlags(state)
	assert.Equal(t, []string{
		config.FlagPhishingListHit,
		config.FlagDarknetMarketHit,
		config.FlagConfirmedMalicious,
		config.FlagSSLAbsent,
		config.FlagYoungDomain,
		config.FlagCriticalPattern,
	}, flags)
}

func TestOverrideFlagsQuietWhenCleanEnough(t *testing.T) {
	state := stateWithPages(models.ScoutEvidence{
		URL: "a",
		TLS: &models.TLSInfo{NotBefore: time.Now().AddDate(-1, 0, 0)},
	})
	assert.Empty(t, OverrideFlags(state))
}

// judgeState builds a mid-band page: decent hygiene, one critical dark
// pattern, no intelligence consensus yet.
func judgeState(maxPages int) *models.AuditState {
	state := models.NewAuditState("a1", "https://shop.example/", models.TierStandard,
		models.VerdictModeSimple, models.Budget{MaxIterations: 3, MaxPages: maxPages, MaxAICalls: 10})
	state.RecordScouted(models.ScoutEvidence{
		URL:      "https://shop.example/",
		FinalURL: "https://shop.example/",
		Title:    "Studio Ceramics",
		TextSample: "Seasonal catalog of handmade ceramics and textiles from regional " +
			"studios. Every piece is fired in small batches and glazed by hand. Browse " +
			"the collection pages for dimensions, materials, and care instructions for " +
			"each item in the catalog.",
		TLS: &models.TLSInfo{
			NotBefore: time.Now().AddDate(0, 0, -400),
			NotAfter:  time.Now().AddDate(0, 6, 0),
		},
		Links: []string{"https://shop.example/about", "https://elsewhere.example/x"},
	})
	state.SecurityEvidence["headers"] = models.SecurityResult{Module: "headers", Score: 1.0}
	state.VisionFindings = []models.Finding{{
		SubType: models.SubTypeHiddenSubscription, Severity: models.SeverityCritical,
		Confidence: 0.7, Plain: "A trial converts into a paid subscription without clear notice.",
	}}
	return state
}

func TestJudgeLoopsBackForMoreEvidence(t *testing.T) {
	state := judgeState(10) // thin coverage, no consensus
	judge := NewJudgePhase(trust.NewScorer(config.DefaultTrustConfig(), 0.6), 0.3, NopReporter{})

	require.NoError(t, judge.Run(context.Background(), state))

	// Mid-band score, unconfirmed consensus, weak mean confidence: no
	// verdict yet, same-host follow-up links queued.
	assert.Nil(t, state.Verdict)
	assert.Equal(t, []string{"https://shop.example/about"}, state.PendingURLs)
	assert.Equal(t, 1, state.Counters.AICalls)
}

func TestJudgeStillAsksAtPageCap(t *testing.T) {
	state := judgeState(1) // every budgeted page already scouted
	judge := NewJudgePhase(trust.NewScorer(config.DefaultTrustConfig(), 0.6), 0.3, NopReporter{})

	require.NoError(t, judge.Run(context.Background(), state))

	// The judge keeps requesting evidence; refusing the request when the
	// page budget is spent is the orchestrator's transition gate, which
	// then forces the verdict.
	assert.Nil(t, state.Verdict)
	assert.NotEmpty(t, state.PendingURLs)
}

func TestJudgeVerdictOnConfirmedConsensus(t *testing.T) {
	state := judgeState(10)
	state.GraphEvidence = &models.GraphEvidence{
		Consensus: &models.ConsensusResult{
			Malicious: false, MaliciousRatio: 0.1, Confidence: 90, Confirmed: true,
		},
	}
	judge := NewJudgePhase(trust.NewScorer(config.DefaultTrustConfig(), 0.6), 0.3, NopReporter{})

	require.NoError(t, judge.Run(context.Background(), state))

	require.NotNil(t, state.Verdict)
	assert.Contains(t, state.Verdict.Overrides, config.FlagCriticalPattern)
	assert.Contains(t, state.Verdict.Recommendations,
		"A trial converts into a paid subscription without clear notice.")
	assert.NotNil(t, state.SiteType)
}
