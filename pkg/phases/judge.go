package phases

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/trustlens/trustlens/pkg/config"
	"github.com/trustlens/trustlens/pkg/models"
	"github.com/trustlens/trustlens/pkg/trust"
)

// youngDomainDays is the age below which a domain raises the
// young-domain override flag.
const youngDomainDays = 30

// maxFollowLinks caps the same-host links the judge queues when it
// decides more evidence is needed.
const maxFollowLinks = 5

// JudgePhase turns the collected evidence into a verdict, or decides
// that another scout iteration is worth its budget. Leaving the state
// without a verdict is the loop-back signal to the orchestrator.
type JudgePhase struct {
	scorer              *trust.Scorer
	confidenceThreshold float64
	reporter            Reporter
}

func NewJudgePhase(scorer *trust.Scorer, confidenceThreshold float64, reporter Reporter) *JudgePhase {
	return &JudgePhase{scorer: scorer, confidenceThreshold: confidenceThreshold, reporter: reporter}
}

func (p *JudgePhase) Run(ctx context.Context, state *models.AuditState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	state.Counters.AICalls++
	state.SiteType = ClassifySiteType(state.ScoutEvidence)

	signals := ComputeSignals(state)
	flags := OverrideFlags(state)
	result := p.scorer.Compute(signals, state.SiteType, flags)

	if p.wantsMoreEvidence(state, signals, result) && p.enqueueFollowups(state) > 0 {
		progress(p.reporter, models.PhaseJudge, "loop_back", 100,
			"requesting more pages before a verdict", map[string]string{
				"score_so_far": strconv.Itoa(result.FinalScore),
				"pending":      strconv.Itoa(len(state.PendingURLs)),
			})
		return nil
	}

	result.Recommendations = append(result.Recommendations, findingRecommendations(state)...)
	state.Verdict = result

	progress(p.reporter, models.PhaseJudge, "verdict", 100, string(result.RiskLevel), map[string]string{
		"score":     strconv.Itoa(result.FinalScore),
		"overrides": strconv.Itoa(len(result.Overrides)),
	})
	slog.Info("Verdict reached",
		"audit_id", state.AuditID, "score", result.FinalScore,
		"risk", result.RiskLevel, "site_type", state.SiteType.Label)
	return nil
}

// wantsMoreEvidence is the loop-back heuristic: a mid-band score with an
// unconfirmed consensus and weak overall signal confidence is worth
// another pass. Whether the budget still permits that pass is the
// orchestrator's transition gate to decide, not the judge's.
func (p *JudgePhase) wantsMoreEvidence(state *models.AuditState, signals []models.SubSignal, result *models.TrustResult) bool {
	if result.RiskLevel != models.RiskSuspicious {
		return false
	}
	consensus := (*models.ConsensusResult)(nil)
	if state.GraphEvidence != nil {
		consensus = state.GraphEvidence.Consensus
	}
	if consensus != nil && consensus.Confirmed {
		return false
	}
	return meanConfidence(signals) < 1-p.confidenceThreshold
}

// meanConfidence averages the evidence confidence across the sub-signals.
func meanConfidence(signals []models.SubSignal) float64 {
	if len(signals) == 0 {
		return 0
	}
	var sum float64
	for _, sig := range signals {
		sum += sig.Confidence
	}
	return sum / float64(len(signals))
}

// enqueueFollowups queues unvisited same-host links discovered by the
// scout, capped at maxFollowLinks. Returns the number queued.
func (p *JudgePhase) enqueueFollowups(state *models.AuditState) int {
	targetHost := hostOf(state.TargetURL)
	queued := 0
	for _, ev := range state.ScoutEvidence {
		for _, link := range ev.Links {
			if hostOf(link) != targetHost {
				continue
			}
			if state.EnqueueURL(link) {
				queued++
				if queued == maxFollowLinks {
					return queued
				}
			}
		}
	}
	return queued
}

// findingRecommendations renders the top findings as user guidance, in
// the findings' deterministic order, deduplicated, capped at five.
func findingRecommendations(state *models.AuditState) []string {
	const maxRecommendations = 5
	seen := make(map[string]bool)
	var recs []string
	for _, f := range state.VisionFindings {
		text := f.Plain
		if state.VerdictMode == models.VerdictModeExpert {
			text = f.Description
		}
		if text == "" || seen[text] {
			continue
		}
		seen[text] = true
		recs = append(recs, text)
		if len(recs) == maxRecommendations {
			break
		}
	}
	return recs
}

// ClassifySiteType guesses the site category from titles, text, and
// forms. Confidence reflects keyword coverage, never exceeding 0.9.
func ClassifySiteType(evidence []models.ScoutEvidence) *models.SiteType {
	var text strings.Builder
	hasPasswordForm := false
	for _, ev := range evidence {
		text.WriteString(strings.ToLower(ev.Title))
		text.WriteByte(' ')
		text.WriteString(strings.ToLower(ev.TextSample))
		text.WriteByte(' ')
		for _, form := range ev.Forms {
			if form.HasPassword {
				hasPasswordForm = true
			}
		}
	}
	corpus := text.String()

	scores := map[string]int{
		models.SiteTypeEcommerce: countAny(corpus, "cart", "checkout", "add to cart", "free shipping", "price", "buy now", "order"),
		models.SiteTypeBanking:   countAny(corpus, "bank", "iban", "account number", "wire transfer", "routing", "online banking", "credit card login"),
		models.SiteTypeNews:      countAny(corpus, "breaking news", "editorial", "journalist", "headlines", "newsletter", "article"),
		models.SiteTypeSocial:    countAny(corpus, "follow", "friends", "share", "profile", "post", "comment", "like"),
		models.SiteTypeLanding:   countAny(corpus, "sign up now", "get started", "limited offer", "claim your", "webinar", "download now"),
	}
	if hasPasswordForm {
		scores[models.SiteTypeBanking]++
		scores[models.SiteTypeSocial]++
	}

	best, bestScore, total := models.SiteTypeUnknown, 0, 0
	for _, label := range []string{
		models.SiteTypeEcommerce, models.SiteTypeBanking, models.SiteTypeNews,
		models.SiteTypeSocial, models.SiteTypeLanding,
	} {
		total += scores[label]
		if scores[label] > bestScore {
			best, bestScore = label, scores[label]
		}
	}
	if bestScore == 0 {
		return &models.SiteType{Label: models.SiteTypeUnknown, Confidence: 0}
	}

	confidence := float64(bestScore) / float64(total)
	if confidence > 0.9 {
		confidence = 0.9
	}
	return &models.SiteType{Label: best, Confidence: confidence}
}

func countAny(corpus string, phrases ...string) int {
	n := 0
	for _, phrase := range phrases {
		if strings.Contains(corpus, phrase) {
			n++
		}
	}
	return n
}

// severity weights for the visual signal.
var severityWeight = map[models.Severity]float64{
	models.SeverityCritical: 1.0,
	models.SeverityHigh:     0.6,
	models.SeverityMedium:   0.3,
	models.SeverityLow:      0.15,
}

// ComputeSignals derives the six trust sub-signals from the audit state.
// Pure: no I/O, deterministic for a given state.
func ComputeSignals(state *models.AuditState) []models.SubSignal {
	return []models.SubSignal{
		visualSignal(state),
		structuralSignal(state),
		temporalSignal(state),
		graphSignal(state),
		metaSignal(state),
		securitySignal(state),
	}
}

// visualSignal: dark-pattern load. A clean page scores 1.
func visualSignal(state *models.AuditState) models.SubSignal {
	var load float64
	for _, f := range state.VisionFindings {
		load += severityWeight[f.Severity] * f.Confidence
	}
	raw := 1 - load/2.5
	if raw < 0 {
		raw = 0
	}
	confidence := 0.0
	if len(state.ScoutEvidence) > 0 {
		confidence = 0.85
	}
	return models.SubSignal{Name: models.SignalVisual, RawScore: raw,
		Confidence: confidence, EvidenceCount: len(state.VisionFindings)}
}

// structuralSignal: form and redirect hygiene.
func structuralSignal(state *models.AuditState) models.SubSignal {
	raw := 1.0
	for _, ev := range state.ScoutEvidence {
		if hostOf(ev.FinalURL) != hostOf(ev.URL) && ev.FinalURL != "" {
			raw -= 0.3 // off-host redirect
		}
		pageSecure := ev.TLS != nil || strings.HasPrefix(ev.FinalURL, "https://")
		for _, form := range ev.Forms {
			if form.HasPassword && !pageSecure {
				raw -= 0.5
			}
			if isCrossOrigin(form.Action, ev.FinalURL) {
				raw -= 0.15
			}
		}
	}
	if raw < 0 {
		raw = 0
	}
	confidence := 0.0
	if len(state.ScoutEvidence) > 0 {
		confidence = 0.7
	}
	return models.SubSignal{Name: models.SignalStructural, RawScore: raw,
		Confidence: confidence, EvidenceCount: len(state.ScoutEvidence)}
}

// temporalSignal: domain/certificate age, a year of history scores 1.
func temporalSignal(state *models.AuditState) models.SubSignal {
	age := domainAgeDays(state)
	if age <= 0 {
		return models.SubSignal{Name: models.SignalTemporal, RawScore: 0.5, Confidence: 0.2}
	}
	raw := float64(age) / 365
	if raw > 1 {
		raw = 1
	}
	return models.SubSignal{Name: models.SignalTemporal, RawScore: raw, Confidence: 0.6, EvidenceCount: 1}
}

// domainAgeDays prefers the registrar age from graph evidence and falls
// back to the certificate issue date.
func domainAgeDays(state *models.AuditState) int {
	if state.GraphEvidence != nil && state.GraphEvidence.DomainAgeDays > 0 {
		return state.GraphEvidence.DomainAgeDays
	}
	for _, ev := range state.ScoutEvidence {
		if ev.TLS != nil && !ev.TLS.NotBefore.IsZero() {
			return int(time.Since(ev.TLS.NotBefore).Hours() / 24)
		}
	}
	return 0
}

// graphSignal: intelligence consensus. No consensus is neutral with low
// confidence; each preserved conflict shaves confidence.
func graphSignal(state *models.AuditState) models.SubSignal {
	g := state.GraphEvidence
	if g == nil || g.Consensus == nil {
		return models.SubSignal{Name: models.SignalGraph, RawScore: 0.5, Confidence: 0.2}
	}

	raw := 1 - g.Consensus.MaliciousRatio
	confidence := g.Consensus.Confidence / 100
	if g.Consensus.Confirmed {
		confidence = maxFloat(confidence, 0.9)
	}
	confidence -= 0.1 * float64(len(g.Conflicts))
	if confidence < 0.1 {
		confidence = 0.1
	}
	return models.SubSignal{Name: models.SignalGraph, RawScore: raw,
		Confidence: confidence, EvidenceCount: len(g.Verifications)}
}

// metaSignal: basic page identity hygiene (title, content volume).
func metaSignal(state *models.AuditState) models.SubSignal {
	if len(state.ScoutEvidence) == 0 {
		return models.SubSignal{Name: models.SignalMeta, RawScore: 0.5, Confidence: 0}
	}
	titled, substantial := 0, 0
	for _, ev := range state.ScoutEvidence {
		if ev.Title != "" {
			titled++
		}
		if len(ev.TextSample) > 200 {
			substantial++
		}
	}
	n := float64(len(state.ScoutEvidence))
	raw := 0.5*float64(titled)/n + 0.5*float64(substantial)/n
	return models.SubSignal{Name: models.SignalMeta, RawScore: raw,
		Confidence: 0.5, EvidenceCount: len(state.ScoutEvidence)}
}

// securitySignal: mean of the analyzer module scores that ran.
func securitySignal(state *models.AuditState) models.SubSignal {
	var sum float64
	ran := 0
	for _, result := range state.SecurityEvidence {
		if result.Failed {
			continue
		}
		sum += result.Score
		ran++
	}
	if ran == 0 {
		return models.SubSignal{Name: models.SignalSecurity, RawScore: 0.5, Confidence: 0.2}
	}
	confidence := float64(ran) / float64(len(state.SecurityEvidence))
	return models.SubSignal{Name: models.SignalSecurity, RawScore: sum / float64(ran),
		Confidence: confidence, EvidenceCount: ran}
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// OverrideFlags inspects the state and raises every hard-override flag
// the evidence supports, in a stable order.
func OverrideFlags(state *models.AuditState) []string {
	var flags []string

	if g := state.GraphEvidence; g != nil {
		if g.PhishingHit {
			flags = append(flags, config.FlagPhishingListHit)
		}
		if len(g.DarknetHits) > 0 {
			flags = append(flags, config.FlagDarknetMarketHit)
		}
		if g.Consensus != nil && g.Consensus.Malicious && g.Consensus.Confirmed {
			flags = append(flags, config.FlagConfirmedMalicious)
		}
	}

	if len(state.ScoutEvidence) > 0 {
		anyTLS, selfSigned := false, false
		for _, ev := range state.ScoutEvidence {
			if ev.TLS != nil {
				anyTLS = true
				if ev.TLS.SelfSign {
					selfSigned = true
				}
			}
		}
		if !anyTLS {
			flags = append(flags, config.FlagSSLAbsent)
		}
		if selfSigned {
			flags = append(flags, config.FlagSelfSignedCert)
		}
	}

	if age := domainAgeDays(state); age > 0 && age < youngDomainDays {
		flags = append(flags, config.FlagYoungDomain)
	}

	for _, f := range state.VisionFindings {
		if f.Severity == models.SeverityCritical {
			flags = append(flags, config.FlagCriticalPattern)
			break
		}
	}
	return flags
}
