package phases

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/trustlens/trustlens/pkg/models"
)

// patternRule drives the heuristic vision analyzer: a phrase that, when
// present in a page's visible text, indicates a dark-pattern sub-type.
type patternRule struct {
	phrase     string
	subType    string
	severity   models.Severity
	confidence float64
	plain      string
}

var patternRules = []patternRule{
	{"only few left", models.SubTypeLowStockMessage, models.SeverityMedium, 0.6,
		"The page claims stock is nearly gone to rush your decision."},
	{"only a few left", models.SubTypeLowStockMessage, models.SeverityMedium, 0.6,
		"The page claims stock is nearly gone to rush your decision."},
	{"selling fast", models.SubTypeHighDemandNotice, models.SeverityLow, 0.5,
		"The page claims high demand to rush your decision."},
	{"people are viewing", models.SubTypeFakeActivity, models.SeverityMedium, 0.55,
		"The page shows live viewer counts that may be fabricated."},
	{"just bought", models.SubTypeFakeActivity, models.SeverityMedium, 0.5,
		"The page shows purchase pop-ups that may be fabricated."},
	{"offer ends in", models.SubTypeCountdownTimer, models.SeverityMedium, 0.65,
		"A countdown pressures you to act before the timer runs out."},
	{"hurry", models.SubTypeLimitedTime, models.SeverityLow, 0.4,
		"Urgent wording pressures you to decide quickly."},
	{"limited time", models.SubTypeLimitedTime, models.SeverityLow, 0.45,
		"The offer is framed as expiring soon."},
	{"last chance", models.SubTypeFakeDeadline, models.SeverityMedium, 0.5,
		"A deadline is asserted that may not be real."},
	{"no, i don't want", models.SubTypeConfirmshaming, models.SeverityHigh, 0.7,
		"Declining is worded to make you feel bad about it."},
	{"no thanks, i hate", models.SubTypeConfirmshaming, models.SeverityHigh, 0.75,
		"Declining is worded to make you feel bad about it."},
	{"free trial automatically", models.SubTypeHiddenSubscription, models.SeverityCritical, 0.7,
		"A trial converts into a paid subscription without clear notice."},
	{"billed automatically", models.SubTypeHiddenSubscription, models.SeverityHigh, 0.6,
		"Recurring billing is mentioned only in passing."},
	{"cancel anytime by calling", models.SubTypeHardToCancel, models.SeverityHigh, 0.65,
		"Cancelling requires a harder channel than signing up did."},
	{"uncheck to opt out", models.SubTypePreselection, models.SeverityMedium, 0.6,
		"An extra is pre-selected; you must opt out rather than in."},
	{"verified purchase", models.SubTypeFakeReview, models.SeverityLow, 0.3,
		"Review authenticity markers can be fabricated."},
}

// HeuristicVision detects dark patterns with phrase rules over the
// scouted text. It stands in when no multimodal model endpoint is
// configured; model-backed analyzers plug in behind the same interface.
type HeuristicVision struct{}

func NewHeuristicVision() *HeuristicVision { return &HeuristicVision{} }

// Inspect scans every page's title and text sample. Duplicate sub-type
// hits collapse to the highest-confidence occurrence; output order is
// deterministic (severity, then category id, then sub-type).
func (v *HeuristicVision) Inspect(_ context.Context, evidence []models.ScoutEvidence) ([]models.Finding, error) {
	best := make(map[string]models.Finding)

	for pageIdx, ev := range evidence {
		text := strings.ToLower(ev.Title + " " + ev.TextSample)
		if text == " " {
			continue
		}
		for _, rule := range patternRules {
			if !strings.Contains(text, rule.phrase) {
				continue
			}
			finding := models.Finding{
				Category:        models.SubTypeCategory[rule.subType],
				SubType:         rule.subType,
				Severity:        rule.severity,
				Confidence:      rule.confidence,
				Description:     fmt.Sprintf("Phrase %q found on %s", rule.phrase, ev.URL),
				Plain:           rule.plain,
				ScreenshotIndex: screenshotIndex(evidence, pageIdx),
			}
			if prev, ok := best[rule.subType]; !ok || finding.Confidence > prev.Confidence {
				best[rule.subType] = finding
			}
		}
	}

	findings := make([]models.Finding, 0, len(best))
	for _, f := range best {
		findings = append(findings, f)
	}
	sort.Slice(findings, func(i, j int) bool {
		if r1, r2 := models.SeverityRank(findings[i].Severity), models.SeverityRank(findings[j].Severity); r1 != r2 {
			return r1 < r2
		}
		if c1, c2 := models.CategoryID(findings[i].Category), models.CategoryID(findings[j].Category); c1 != c2 {
			return c1 < c2
		}
		return findings[i].SubType < findings[j].SubType
	})
	return findings, nil
}

// screenshotIndex maps a page index to its position among pages that
// carry screenshots, or -1.
func screenshotIndex(evidence []models.ScoutEvidence, pageIdx int) int {
	if len(evidence[pageIdx].ScreenshotPNG) == 0 {
		return -1
	}
	idx := 0
	for i := 0; i < pageIdx; i++ {
		if len(evidence[i].ScreenshotPNG) > 0 {
			idx++
		}
	}
	return idx
}

// VisionPhase runs the vision analyzer over all evidence gathered so
// far, keeping only findings at or above the configured confidence
// threshold. Each run consumes one AI call from the budget.
type VisionPhase struct {
	vision        Vision
	minConfidence float64
	reporter      Reporter
}

func NewVisionPhase(vision Vision, minConfidence float64, reporter Reporter) *VisionPhase {
	return &VisionPhase{vision: vision, minConfidence: minConfidence, reporter: reporter}
}

func (p *VisionPhase) Run(ctx context.Context, state *models.AuditState) error {
	state.Counters.AICalls++

	findings, err := p.vision.Inspect(ctx, state.ScoutEvidence)
	if err != nil {
		state.AddError(models.NewErrorRecord(models.PhaseVision, "", err))
		return fmt.Errorf("vision inspection: %w", err)
	}

	kept := make([]models.Finding, 0, len(findings))
	dropped := 0
	for _, f := range findings {
		if f.Confidence < p.minConfidence {
			dropped++
			continue
		}
		kept = append(kept, f)
	}

	// Re-inspection replaces prior findings; the analyzer sees all pages.
	state.VisionFindings = kept
	for _, f := range kept {
		ev := models.NewProgressEvent(models.EventFinding, models.PhaseVision)
		ev.Detail = f.SubType
		ev.Summary = map[string]string{
			"category":   f.Category,
			"severity":   string(f.Severity),
			"confidence": fmt.Sprintf("%.2f", f.Confidence),
		}
		p.reporter.Emit(ev)
	}
	progress(p.reporter, models.PhaseVision, "inspect", 100, "", map[string]string{
		"findings":        fmt.Sprintf("%d", len(kept)),
		"below_threshold": fmt.Sprintf("%d", dropped),
	})
	return nil
}
