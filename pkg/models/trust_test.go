package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildFinalReportCopiesVerdict(t *testing.T) {
	state := newTestState()
	state.RecordScouted(ScoutEvidence{URL: "https://shop.example/"})
	state.SiteType = &SiteType{Label: SiteTypeEcommerce, Confidence: 0.6}
	state.Verdict = &TrustResult{
		FinalScore:      47,
		RiskLevel:       RiskSuspicious,
		SignalScores:    map[SignalName]int{SignalVisual: 80},
		Overrides:       []string{"ssl_absent"},
		Narrative:       "Suspicious.",
		Recommendations: []string{"Avoid entering payment details."},
	}

	report := BuildFinalReport(state, 2.5)
	require.NotNil(t, report)

	assert.Equal(t, "https://shop.example/", report.URL)
	assert.Equal(t, 47, report.TrustScore)
	assert.Equal(t, RiskSuspicious, report.RiskLevel)
	assert.Equal(t, []string{"ssl_absent"}, report.Overrides)
	assert.Equal(t, SiteTypeEcommerce, report.SiteType)
	assert.Equal(t, 0.6, report.SiteTypeConfidence)
	assert.Equal(t, 1, report.PagesScanned)
	assert.Equal(t, 2.5, report.ElapsedSeconds)
	assert.Equal(t, VerdictModeSimple, report.VerdictMode)
}

func TestBuildFinalReportNormalizesEmptySlices(t *testing.T) {
	state := newTestState()
	report := BuildFinalReport(state, 0.1)

	// nil slices would serialize as JSON null.
	assert.NotNil(t, report.Findings)
	assert.Empty(t, report.Findings)
	assert.NotNil(t, report.Errors)
	assert.Empty(t, report.Errors)
	assert.Equal(t, SiteTypeUnknown, report.SiteType, "no classification falls back to unknown")
}
