package models

import "time"

// ScoutEvidence is one scouted page: what the browser (or the built-in
// HTTP scout) observed when visiting a single URL.
type ScoutEvidence struct {
	URL        string            `json:"url"`
	FinalURL   string            `json:"final_url"` // after redirects
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers,omitempty"`
	Title      string            `json:"title,omitempty"`
	TextSample string            `json:"text_sample,omitempty"` // first N chars of visible text
	BodySHA256 string            `json:"body_sha256,omitempty"`
	Links      []string          `json:"links,omitempty"`
	Forms      []FormInfo        `json:"forms,omitempty"`
	TLS        *TLSInfo          `json:"tls,omitempty"`

	// ScreenshotPNG is populated only by browser-based scouts.
	ScreenshotPNG []byte    `json:"-"`
	FetchedAt     time.Time `json:"fetched_at"`
}

// FormInfo describes a form found on a scouted page.
type FormInfo struct {
	Action      string `json:"action"`
	Method      string `json:"method"`
	HasPassword bool   `json:"has_password"`
}

// TLSInfo captures certificate details observed during the fetch.
type TLSInfo struct {
	Issuer    string    `json:"issuer"`
	Subject   string    `json:"subject"`
	NotBefore time.Time `json:"not_before"`
	NotAfter  time.Time `json:"not_after"`
	SelfSign  bool      `json:"self_signed"`
}

// SecurityResult is the outcome of one security analyzer module.
type SecurityResult struct {
	Module   string            `json:"module"`
	Passed   bool              `json:"passed"`
	Score    float64           `json:"score"` // 0 (worst) to 1 (best)
	Details  map[string]string `json:"details,omitempty"`
	Failed   bool              `json:"failed,omitempty"` // analyzer itself errored
	ErrorMsg string            `json:"error,omitempty"`
}

// GraphEvidence is the OSINT/CTI entity profile assembled by the graph
// phase: per-source verifications, the weighted consensus, and any
// preserved conflicts.
type GraphEvidence struct {
	Domain        string             `json:"domain"`
	DomainAgeDays int                `json:"domain_age_days,omitempty"`
	Registrar     string             `json:"registrar,omitempty"`
	Verifications []SourceVerdict    `json:"verifications"`
	Consensus     *ConsensusResult   `json:"consensus,omitempty"`
	Conflicts     []ConflictRecord   `json:"conflicts,omitempty"`
	DarknetHits   []string           `json:"darknet_hits,omitempty"`
	PhishingHit   bool               `json:"phishing_list_hit"`
	SourceErrors  map[string]string  `json:"source_errors,omitempty"`
	EntityKeyword []string           `json:"entity_keywords,omitempty"`
}

// SourceVerdict is a single source's malicious/clean verdict with its
// reported confidence.
type SourceVerdict struct {
	Source     string  `json:"source"`
	Category   string  `json:"category"`
	Malicious  bool    `json:"malicious"`
	Confidence float64 `json:"confidence"` // 0..1
	TrustLevel string  `json:"trust_level"`
	Detail     string  `json:"detail,omitempty"`
}

// ConsensusResult is the weighted aggregation of source verdicts.
type ConsensusResult struct {
	Malicious      bool    `json:"malicious"`
	MaliciousRatio float64 `json:"malicious_ratio"` // 0..1
	Confidence     float64 `json:"confidence"`      // 0..100
	Confirmed      bool    `json:"confirmed"`
	SourceCount    int     `json:"source_count"`
}

// ConflictRecord preserves a disagreement between sources. Conflicts are
// reported, never collapsed.
type ConflictRecord struct {
	MaliciousSide string `json:"malicious_side"` // most trusted source voting malicious
	CleanSide     string `json:"clean_side"`     // most trusted source voting clean
	Explanation   string `json:"explanation"`
}
