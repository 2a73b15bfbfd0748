package phases

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustlens/trustlens/pkg/models"
)

func TestHeuristicVisionDetectsPatterns(t *testing.T) {
	evidence := []models.ScoutEvidence{{
		URL:   "https://shop.example/",
		Title: "Flash Sale",
		TextSample: "Hurry! Offer ends in 02:14. Only a few left. " +
			"Start your free trial automatically renews at $49/month.",
	}}

	findings, err := NewHeuristicVision().Inspect(context.Background(), evidence)
	require.NoError(t, err)

	subTypes := make(map[string]models.Finding, len(findings))
	for _, f := range findings {
		subTypes[f.SubType] = f
	}
	assert.Contains(t, subTypes, models.SubTypeCountdownTimer)
	assert.Contains(t, subTypes, models.SubTypeLowStockMessage)
	assert.Contains(t, subTypes, models.SubTypeLimitedTime)
	assert.Contains(t, subTypes, models.SubTypeHiddenSubscription)

	hidden := subTypes[models.SubTypeHiddenSubscription]
	assert.Equal(t, models.SeverityCritical, hidden.Severity)
	assert.Equal(t, models.CategorySneaking, hidden.Category)
	assert.Equal(t, -1, hidden.ScreenshotIndex, "no screenshot captured")
	assert.Contains(t, hidden.Description, "https://shop.example/")
	assert.NotEmpty(t, hidden.Plain)
}

func TestHeuristicVisionCollapsesDuplicateSubTypes(t *testing.T) {
	evidence := []models.ScoutEvidence{
		{URL: "https://a.example/", TextSample: "hurry before it's gone"},
		{URL: "https://b.example/", TextSample: "limited time hurry offer"},
	}

	findings, err := NewHeuristicVision().Inspect(context.Background(), evidence)
	require.NoError(t, err)

	// "hurry" (0.4) and "limited time" (0.45) both map to limited_time;
	// one finding survives, at the higher confidence.
	limited := 0
	for _, f := range findings {
		if f.SubType == models.SubTypeLimitedTime {
			limited++
			assert.Equal(t, 0.45, f.Confidence)
		}
	}
	assert.Equal(t, 1, limited)
}

func TestHeuristicVisionOutputOrder(t *testing.T) {
	evidence := []models.ScoutEvidence{{
		URL: "https://shop.example/",
		TextSample: "free trial automatically renews. no, i don't want savings. " +
			"selling fast! people are viewing this right now.",
	}}

	findings, err := NewHeuristicVision().Inspect(context.Background(), evidence)
	require.NoError(t, err)
	require.Len(t, findings, 4)

	// Severity first (critical → high → medium → low), then category id,
	// then sub-type: deterministic across runs.
	assert.Equal(t, models.SubTypeHiddenSubscription, findings[0].SubType)
	assert.Equal(t, models.SubTypeConfirmshaming, findings[1].SubType)
	assert.Equal(t, models.SubTypeFakeActivity, findings[2].SubType)
	assert.Equal(t, models.SubTypeHighDemandNotice, findings[3].SubType)
}

func TestHeuristicVisionCleanPage(t *testing.T) {
	findings, err := NewHeuristicVision().Inspect(context.Background(), []models.ScoutEvidence{
		{URL: "https://docs.example/", Title: "Reference Manual", TextSample: "API documentation for the v2 endpoints."},
	})
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestScreenshotIndex(t *testing.T) {
	evidence := []models.ScoutEvidence{
		{URL: "a"},
		{URL: "b", ScreenshotPNG: []byte{1}},
		{URL: "c"},
		{URL: "d", ScreenshotPNG: []byte{2}},
	}
	assert.Equal(t, -1, screenshotIndex(evidence, 0))
	assert.Equal(t, 0, screenshotIndex(evidence, 1))
	assert.Equal(t, -1, screenshotIndex(evidence, 2))
	assert.Equal(t, 1, screenshotIndex(evidence, 3))
}

func TestVisionPhaseReplacesFindingsAndSpendsBudget(t *testing.T) {
	state := stateWithPages(models.ScoutEvidence{
		URL: "https://shop.example/", TextSample: "offer ends in 5 minutes",
	})
	state.VisionFindings = []models.Finding{{SubType: "stale"}}

	phase := NewVisionPhase(NewHeuristicVision(), 0.3, NopReporter{})
	require.NoError(t, phase.Run(context.Background(), state))

	assert.Equal(t, 1, state.Counters.AICalls)
	require.Len(t, state.VisionFindings, 1)
	assert.Equal(t, models.SubTypeCountdownTimer, state.VisionFindings[0].SubType)
}

func TestVisionPhaseDropsLowConfidenceFindings(t *testing.T) {
	state := stateWithPages(models.ScoutEvidence{
		URL: "https://shop.example/",
		// "verified purchase" detects at 0.3, "offer ends in" at 0.65.
		TextSample: "offer ends in 5 minutes. every review is a verified purchase.",
	})

	phase := NewVisionPhase(NewHeuristicVision(), 0.5, NopReporter{})
	require.NoError(t, phase.Run(context.Background(), state))

	// Only findings at or above the confidence threshold survive.
	require.Len(t, state.VisionFindings, 1)
	assert.Equal(t, models.SubTypeCountdownTimer, state.VisionFindings[0].SubType)
}
