package models

// SignalName identifies one of the six trust-score sub-signals.
type SignalName string

const (
	SignalVisual     SignalName = "visual"
	SignalStructural SignalName = "structural"
	SignalTemporal   SignalName = "temporal"
	SignalGraph      SignalName = "graph"
	SignalMeta       SignalName = "meta"
	SignalSecurity   SignalName = "security"
)

// SignalNames lists all sub-signals in canonical order.
var SignalNames = []SignalName{
	SignalVisual, SignalStructural, SignalTemporal,
	SignalGraph, SignalMeta, SignalSecurity,
}

// SubSignal is one component of the trust score.
type SubSignal struct {
	Name          SignalName `json:"name"`
	RawScore      float64    `json:"raw_score"`  // 0..1, higher is more trustworthy
	Confidence    float64    `json:"confidence"` // 0..1
	EvidenceCount int        `json:"evidence_count"`
}

// RiskLevel buckets the final 0–100 score.
type RiskLevel string

const (
	RiskTrusted          RiskLevel = "trusted"
	RiskProbablySafe     RiskLevel = "probably_safe"
	RiskSuspicious       RiskLevel = "suspicious"
	RiskHighRisk         RiskLevel = "high_risk"
	RiskLikelyFraudulent RiskLevel = "likely_fraudulent"
)

// RiskLevelFor maps a final score to its risk bucket using the fixed
// thresholds: ≥90 trusted, ≥70 probably_safe, ≥40 suspicious,
// ≥20 high_risk, else likely_fraudulent.
func RiskLevelFor(score int) RiskLevel {
	switch {
	case score >= 90:
		return RiskTrusted
	case score >= 70:
		return RiskProbablySafe
	case score >= 40:
		return RiskSuspicious
	case score >= 20:
		return RiskHighRisk
	default:
		return RiskLikelyFraudulent
	}
}

// TrustResult is the final verdict of an audit.
type TrustResult struct {
	FinalScore      int                `json:"final_score"` // 0..100
	RiskLevel       RiskLevel          `json:"risk_level"`
	SignalScores    map[SignalName]int `json:"signal_scores"` // per-signal 0..100
	Overrides       []string           `json:"overrides"`     // applied hard overrides, in order
	Narrative       string             `json:"narrative"`
	Recommendations []string           `json:"recommendations"`
	// Forced is true when the verdict was produced by the forced-verdict
	// path (budget exhaustion or repeated scout failure).
	Forced bool `json:"forced,omitempty"`
}

// FinalReport is the single JSON document emitted on stdout when the
// audit terminates without aborting.
type FinalReport struct {
	URL                string                    `json:"url"`
	TrustScore         int                       `json:"trust_score"`
	RiskLevel          RiskLevel                 `json:"risk_level"`
	SignalScores       map[SignalName]int        `json:"signal_scores"`
	Overrides          []string                  `json:"overrides"`
	Narrative          string                    `json:"narrative"`
	Recommendations    []string                  `json:"recommendations"`
	Findings           []Finding                 `json:"findings"`
	SecurityResults    map[string]SecurityResult `json:"security_results"`
	SiteType           string                    `json:"site_type"`
	SiteTypeConfidence float64                   `json:"site_type_confidence"`
	PagesScanned       int                       `json:"pages_scanned"`
	ScreenshotsCount   int                       `json:"screenshots_count"`
	ElapsedSeconds     float64                   `json:"elapsed_seconds"`
	Errors             []ErrorRecord             `json:"errors"`
	VerdictMode        VerdictMode               `json:"verdict_mode"`
}

// BuildFinalReport assembles the report from a terminal audit state.
// The state must carry a verdict (non-abort termination).
func BuildFinalReport(state *AuditState, elapsedSeconds float64) *FinalReport {
	report := &FinalReport{
		URL:              state.TargetURL,
		Findings:         state.VisionFindings,
		SecurityResults:  state.SecurityEvidence,
		SiteType:         SiteTypeUnknown,
		PagesScanned:     state.Counters.PagesScouted,
		ScreenshotsCount: state.ScreenshotCount(),
		ElapsedSeconds:   elapsedSeconds,
		Errors:           state.Errors,
		VerdictMode:      state.VerdictMode,
	}
	if state.SiteType != nil {
		report.SiteType = state.SiteType.Label
		report.SiteTypeConfidence = state.SiteType.Confidence
	}
	if v := state.Verdict; v != nil {
		report.TrustScore = v.FinalScore
		report.RiskLevel = v.RiskLevel
		report.SignalScores = v.SignalScores
		report.Overrides = v.Overrides
		report.Narrative = v.Narrative
		report.Recommendations = v.Recommendations
	}
	if report.Findings == nil {
		report.Findings = []Finding{}
	}
	if report.Errors == nil {
		report.Errors = []ErrorRecord{}
	}
	return report
}
