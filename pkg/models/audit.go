// Package models defines the shared data model for TrustLens audits:
// the audit state that flows through the pipeline, dark-pattern findings,
// trust-score types, progress events, and the error taxonomy.
package models

import (
	"time"
)

// Tier controls the audit budgets.
type Tier string

const (
	TierQuick    Tier = "quick"
	TierStandard Tier = "standard"
	TierDeep     Tier = "deep"
)

// ValidTier reports whether t is a known audit tier.
func ValidTier(t Tier) bool {
	switch t {
	case TierQuick, TierStandard, TierDeep:
		return true
	}
	return false
}

// VerdictMode selects the narrative style of the final verdict.
type VerdictMode string

const (
	VerdictModeSimple VerdictMode = "simple"
	VerdictModeExpert VerdictMode = "expert"
)

// AuditStatus is the lifecycle status of an audit.
// Terminal values (completed, error, aborted) are sticky.
type AuditStatus string

const (
	StatusRunning   AuditStatus = "running"
	StatusCompleted AuditStatus = "completed"
	StatusError     AuditStatus = "error"
	StatusAborted   AuditStatus = "aborted"
)

// terminal reports whether s is a terminal status.
func (s AuditStatus) terminal() bool {
	return s == StatusCompleted || s == StatusError || s == StatusAborted
}

// Budget holds the hard caps derived from the audit tier.
// Iterations and pages are hard limits; AI calls are a soft limit
// (exceeding it forces the verdict path but never aborts).
type Budget struct {
	MaxIterations int `yaml:"max_iterations" json:"max_iterations"`
	MaxPages      int `yaml:"max_pages" json:"max_pages"`
	MaxAICalls    int `yaml:"max_ai_calls" json:"max_ai_calls"`
}

// Counters are the running tallies checked against Budget.
// All counters are monotonically non-decreasing.
type Counters struct {
	AICalls      int
	PagesScouted int
}

// AuditState is the single object flowing through the audit pipeline.
// It is created by the orchestrator, mutated only by phase handlers and
// the budget gate, and never escapes the audit process.
type AuditState struct {
	AuditID     string
	TargetURL   string
	Tier        Tier
	VerdictMode VerdictMode
	Budget      Budget

	Iteration int
	Counters  Counters

	// PendingURLs is the ordered queue of URLs to investigate next.
	// InvestigatedURLs is the set of URLs scouted so far; a URL is never
	// queued twice.
	PendingURLs      []string
	InvestigatedURLs map[string]bool

	ScoutEvidence    []ScoutEvidence
	SecurityEvidence map[string]SecurityResult
	VisionFindings   []Finding
	GraphEvidence    *GraphEvidence
	SiteType         *SiteType

	Verdict *TrustResult
	Errors  []ErrorRecord
	Status  AuditStatus

	StartedAt time.Time
}

// NewAuditState creates the initial state with the target URL queued.
func NewAuditState(auditID, url string, tier Tier, mode VerdictMode, budget Budget) *AuditState {
	return &AuditState{
		AuditID:          auditID,
		TargetURL:        url,
		Tier:             tier,
		VerdictMode:      mode,
		Budget:           budget,
		PendingURLs:      []string{url},
		InvestigatedURLs: make(map[string]bool),
		SecurityEvidence: make(map[string]SecurityResult),
		Status:           StatusRunning,
		StartedAt:        time.Now(),
	}
}

// EnqueueURL appends a URL to the pending queue unless it was already
// investigated or is already queued. Returns true if the URL was added.
func (s *AuditState) EnqueueURL(url string) bool {
	if url == "" || s.InvestigatedURLs[url] {
		return false
	}
	for _, pending := range s.PendingURLs {
		if pending == url {
			return false
		}
	}
	s.PendingURLs = append(s.PendingURLs, url)
	return true
}

// DequeueURL pops the next pending URL. Returns ("", false) when empty.
func (s *AuditState) DequeueURL() (string, bool) {
	if len(s.PendingURLs) == 0 {
		return "", false
	}
	url := s.PendingURLs[0]
	s.PendingURLs = s.PendingURLs[1:]
	return url, true
}

// RecordScouted merges one page of scout evidence into the state and
// advances the page counter. The caller must have checked the page budget.
func (s *AuditState) RecordScouted(ev ScoutEvidence) {
	s.InvestigatedURLs[ev.URL] = true
	s.ScoutEvidence = append(s.ScoutEvidence, ev)
	s.Counters.PagesScouted++
}

// AddError appends a non-fatal error record. Errors is append-only.
func (s *AuditState) AddError(rec ErrorRecord) {
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	s.Errors = append(s.Errors, rec)
}

// SetStatus transitions the audit status. Terminal statuses are sticky:
// once the audit is completed, errored, or aborted the status never changes.
func (s *AuditState) SetStatus(status AuditStatus) {
	if s.Status.terminal() {
		return
	}
	s.Status = status
}

// ScreenshotCount returns the number of pages with a captured screenshot.
func (s *AuditState) ScreenshotCount() int {
	n := 0
	for _, ev := range s.ScoutEvidence {
		if len(ev.ScreenshotPNG) > 0 {
			n++
		}
	}
	return n
}

// SiteType is the classification of the audited site, used to select
// the trust-score weight vector.
type SiteType struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Known site-type labels.
const (
	SiteTypeEcommerce = "ecommerce"
	SiteTypeBanking   = "banking"
	SiteTypeNews      = "news"
	SiteTypeSocial    = "social"
	SiteTypeLanding   = "landing"
	SiteTypeUnknown   = "unknown"
)
