package phases

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/trustlens/trustlens/pkg/models"
)

// Analyzer is one passive security module run over the scouted evidence.
// Analyzers never refetch pages.
type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, state *models.AuditState) (*models.SecurityResult, error)
}

// Built-in analyzer names, matching the enabled_analyzers config list.
const (
	AnalyzerHeaders = "headers"
	AnalyzerTLS     = "tls"
	AnalyzerForms   = "forms"
)

// BuiltinAnalyzers returns the analyzers selected by name. Unknown names
// are skipped.
func BuiltinAnalyzers(names []string) []Analyzer {
	var out []Analyzer
	for _, name := range names {
		switch name {
		case AnalyzerHeaders:
			out = append(out, &HeadersAnalyzer{})
		case AnalyzerTLS:
			out = append(out, &TLSAnalyzer{now: time.Now})
		case AnalyzerForms:
			out = append(out, &FormsAnalyzer{})
		}
	}
	return out
}

// HeadersAnalyzer scores the security-response-header hygiene of the
// scouted pages.
type HeadersAnalyzer struct{}

func (a *HeadersAnalyzer) Name() string { return AnalyzerHeaders }

// wantHeaders and their score contribution. CSP weighs most.
var wantHeaders = []struct {
	name   string
	weight float64
}{
	{"Content-Security-Policy", 0.35},
	{"Strict-Transport-Security", 0.30},
	{"X-Content-Type-Options", 0.15},
	{"X-Frame-Options", 0.10},
	{"Referrer-Policy", 0.10},
}

func (a *HeadersAnalyzer) Analyze(_ context.Context, state *models.AuditState) (*models.SecurityResult, error) {
	if len(state.ScoutEvidence) == 0 {
		return nil, fmt.Errorf("%w: no pages to analyze", models.ErrInput)
	}

	details := make(map[string]string)
	var total float64
	for _, h := range wantHeaders {
		present := 0
		for _, ev := range state.ScoutEvidence {
			if headerPresent(ev.Headers, h.name) {
				present++
			}
		}
		coverage := float64(present) / float64(len(state.ScoutEvidence))
		total += h.weight * coverage
		details[strings.ToLower(h.name)] = fmt.Sprintf("%d/%d pages", present, len(state.ScoutEvidence))
	}

	return &models.SecurityResult{
		Module:  AnalyzerHeaders,
		Passed:  total >= 0.5,
		Score:   total,
		Details: details,
	}, nil
}

func headerPresent(headers map[string]string, name string) bool {
	for k, v := range headers {
		if strings.EqualFold(k, name) && v != "" {
			return true
		}
	}
	return false
}

// TLSAnalyzer scores transport security: HTTPS usage, certificate
// validity window, and self-signing.
type TLSAnalyzer struct {
	now func() time.Time
}

func (a *TLSAnalyzer) Name() string { return AnalyzerTLS }

func (a *TLSAnalyzer) Analyze(_ context.Context, state *models.AuditState) (*models.SecurityResult, error) {
	if len(state.ScoutEvidence) == 0 {
		return nil, fmt.Errorf("%w: no pages to analyze", models.ErrInput)
	}
	now := a.now()

	details := make(map[string]string)
	score := 1.0
	httpsPages := 0
	selfSigned := false
	expired := false

	for _, ev := range state.ScoutEvidence {
		if ev.TLS == nil {
			continue
		}
		httpsPages++
		if ev.TLS.SelfSign {
			selfSigned = true
		}
		if now.After(ev.TLS.NotAfter) || now.Before(ev.TLS.NotBefore) {
			expired = true
		}
	}

	switch {
	case httpsPages == 0:
		score = 0
		details["https"] = "no page served over TLS"
	case httpsPages < len(state.ScoutEvidence):
		score -= 0.4
		details["https"] = fmt.Sprintf("%d/%d pages over TLS", httpsPages, len(state.ScoutEvidence))
	default:
		details["https"] = "all pages over TLS"
	}
	if selfSigned {
		score -= 0.5
		details["self_signed"] = "true"
	}
	if expired {
		score -= 0.5
		details["certificate_window"] = "certificate outside validity window"
	}
	if score < 0 {
		score = 0
	}

	return &models.SecurityResult{
		Module:  AnalyzerTLS,
		Passed:  score >= 0.5,
		Score:   score,
		Details: details,
	}, nil
}

// FormsAnalyzer flags credential forms without transport protection and
// forms posting to foreign origins.
type FormsAnalyzer struct{}

func (a *FormsAnalyzer) Name() string { return AnalyzerForms }

func (a *FormsAnalyzer) Analyze(_ context.Context, state *models.AuditState) (*models.SecurityResult, error) {
	if len(state.ScoutEvidence) == 0 {
		return nil, fmt.Errorf("%w: no pages to analyze", models.ErrInput)
	}

	details := make(map[string]string)
	score := 1.0
	totalForms := 0
	insecurePassword := 0
	crossOrigin := 0

	for _, ev := range state.ScoutEvidence {
		pageSecure := ev.TLS != nil || strings.HasPrefix(ev.FinalURL, "https://")
		for _, form := range ev.Forms {
			totalForms++
			if form.HasPassword && !pageSecure {
				insecurePassword++
			}
			if form.HasPassword && strings.HasPrefix(form.Action, "http://") {
				insecurePassword++
			}
			if isCrossOrigin(form.Action, ev.FinalURL) {
				crossOrigin++
			}
		}
	}

	details["forms"] = strconv.Itoa(totalForms)
	if insecurePassword > 0 {
		score -= 0.6
		details["insecure_password_forms"] = strconv.Itoa(insecurePassword)
	}
	if crossOrigin > 0 {
		score -= 0.2
		details["cross_origin_forms"] = strconv.Itoa(crossOrigin)
	}
	if score < 0 {
		score = 0
	}

	return &models.SecurityResult{
		Module:  AnalyzerForms,
		Passed:  score >= 0.5,
		Score:   score,
		Details: details,
	}, nil
}

func isCrossOrigin(action, pageURL string) bool {
	if !strings.HasPrefix(action, "http://") && !strings.HasPrefix(action, "https://") {
		return false // relative action, same origin
	}
	return hostOf(action) != hostOf(pageURL)
}

func hostOf(rawURL string) string {
	rest := strings.TrimPrefix(strings.TrimPrefix(rawURL, "https://"), "http://")
	if idx := strings.IndexAny(rest, "/?#"); idx >= 0 {
		rest = rest[:idx]
	}
	return strings.ToLower(rest)
}

// SecurityPhase runs every enabled analyzer. One analyzer failing is
// recorded as a failed module, never as a phase failure.
type SecurityPhase struct {
	analyzers []Analyzer
	reporter  Reporter
}

func NewSecurityPhase(analyzers []Analyzer, reporter Reporter) *SecurityPhase {
	return &SecurityPhase{analyzers: analyzers, reporter: reporter}
}

func (p *SecurityPhase) Run(ctx context.Context, state *models.AuditState) error {
	for i, analyzer := range p.analyzers {
		if err := ctx.Err(); err != nil {
			return err
		}
		pct := (i + 1) * 100 / len(p.analyzers)
		progress(p.reporter, models.PhaseSecurity, analyzer.Name(), pct, "", nil)

		result, err := analyzer.Analyze(ctx, state)
		if err != nil {
			state.SecurityEvidence[analyzer.Name()] = models.SecurityResult{
				Module:   analyzer.Name(),
				Failed:   true,
				ErrorMsg: err.Error(),
			}
			state.AddError(models.NewErrorRecord(models.PhaseSecurity, analyzer.Name(), err))
			continue
		}
		state.SecurityEvidence[analyzer.Name()] = *result
	}
	return nil
}
