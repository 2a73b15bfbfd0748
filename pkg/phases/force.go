package phases

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/trustlens/trustlens/pkg/models"
	"github.com/trustlens/trustlens/pkg/trust"
)

// ForceVerdictPhase produces a best-effort verdict from whatever
// evidence exists when the budget runs out or scouting keeps failing.
// It never loops back and it never fails: an empty state still yields a
// (low-confidence) verdict.
type ForceVerdictPhase struct {
	scorer   *trust.Scorer
	reporter Reporter
}

func NewForceVerdictPhase(scorer *trust.Scorer, reporter Reporter) *ForceVerdictPhase {
	return &ForceVerdictPhase{scorer: scorer, reporter: reporter}
}

// Run always succeeds, even under a cancelled context: the forced
// verdict is the last chance to hand the supervisor a result.
func (p *ForceVerdictPhase) Run(_ context.Context, state *models.AuditState) error {
	if state.SiteType == nil {
		state.SiteType = ClassifySiteType(state.ScoutEvidence)
	}

	signals := ComputeSignals(state)
	flags := OverrideFlags(state)
	result := p.scorer.Compute(signals, state.SiteType, flags)
	result.Forced = true
	result.Narrative = "Verdict forced before evidence collection completed. " + result.Narrative
	result.Recommendations = append(result.Recommendations, findingRecommendations(state)...)
	state.Verdict = result

	progress(p.reporter, models.PhaseForceVerdict, "verdict", 100, string(result.RiskLevel), map[string]string{
		"score":  strconv.Itoa(result.FinalScore),
		"forced": "true",
	})
	slog.Warn("Forced verdict issued",
		"audit_id", state.AuditID, "score", result.FinalScore,
		"risk", result.RiskLevel, "pages_scouted", state.Counters.PagesScouted)
	return nil
}
