package phases

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/trustlens/trustlens/pkg/models"
)

// Scout limits.
const (
	maxBodyBytes  = 2 << 20 // 2 MiB read cap per page
	maxTextSample = 4096
	maxLinks      = 50
)

// HTTPScout is the built-in scout: a plain HTTP fetch with redirect
// tracking, TLS inspection, and lightweight HTML extraction. Browser
// scouts plug in behind the Scout interface instead.
type HTTPScout struct {
	client  *http.Client
	timeout time.Duration
}

// NewHTTPScout builds a scout with a per-fetch timeout. A nil client
// gets a default one that follows redirects.
func NewHTTPScout(client *http.Client, timeout time.Duration) *HTTPScout {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPScout{client: client, timeout: timeout}
}

// Fetch retrieves one page. Network failures and non-2xx statuses are
// both evidence, not errors: only transport-level failures to get any
// response at all return an error.
func (s *HTTPScout) Fetch(ctx context.Context, rawURL string) (*models.ScoutEvidence, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: bad url %q: %v", models.ErrInput, rawURL, err)
	}
	req.Header.Set("User-Agent", "TrustLens/1.0 (+https://github.com/trustlens/trustlens)")

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: fetch %s: %v", models.ErrTimeout, rawURL, err)
		}
		return nil, fmt.Errorf("%w: fetch %s: %v", models.ErrUpstream, rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		slog.Warn("Truncated page read", "url", rawURL, "error", err)
	}
	sum := sha256.Sum256(body)

	ev := &models.ScoutEvidence{
		URL:        rawURL,
		FinalURL:   resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Headers:    flattenHeaders(resp.Header),
		BodySHA256: hex.EncodeToString(sum[:]),
		FetchedAt:  time.Now().UTC(),
	}

	if resp.TLS != nil && len(resp.TLS.PeerCertificates) > 0 {
		cert := resp.TLS.PeerCertificates[0]
		ev.TLS = &models.TLSInfo{
			Issuer:    cert.Issuer.String(),
			Subject:   cert.Subject.String(),
			NotBefore: cert.NotBefore,
			NotAfter:  cert.NotAfter,
			SelfSign:  cert.Issuer.String() == cert.Subject.String(),
		}
	}

	if strings.Contains(resp.Header.Get("Content-Type"), "html") {
		page := string(body)
		ev.Title = extractTitle(page)
		ev.TextSample = extractText(page, maxTextSample)
		ev.Links = extractLinks(page, resp.Request.URL, maxLinks)
		ev.Forms = extractForms(page)
	}
	return ev, nil
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}

// extractTitle pulls the first <title> element's text.
func extractTitle(page string) string {
	lower := strings.ToLower(page)
	start := strings.Index(lower, "<title")
	if start < 0 {
		return ""
	}
	open := strings.Index(lower[start:], ">")
	if open < 0 {
		return ""
	}
	rest := page[start+open+1:]
	end := strings.Index(strings.ToLower(rest), "</title>")
	if end < 0 {
		return ""
	}
	return strings.TrimSpace(rest[:end])
}

// extractText strips tags and collapses whitespace. Script and style
// bodies are removed first.
func extractText(page string, limit int) string {
	page = stripElement(page, "script")
	page = stripElement(page, "style")

	var b strings.Builder
	inTag := false
	lastSpace := true
	for _, r := range page {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			if r == ' ' || r == '\n' || r == '\t' || r == '\r' {
				if !lastSpace {
					b.WriteRune(' ')
					lastSpace = true
				}
			} else {
				b.WriteRune(r)
				lastSpace = false
			}
		}
		if b.Len() >= limit {
			break
		}
	}
	return strings.TrimSpace(b.String())
}

func stripElement(page, tag string) string {
	lower := strings.ToLower(page)
	openTag, closeTag := "<"+tag, "</"+tag+">"
	for {
		start := strings.Index(lower, openTag)
		if start < 0 {
			return page
		}
		end := strings.Index(lower[start:], closeTag)
		if end < 0 {
			return page[:start]
		}
		cut := start + end + len(closeTag)
		page = page[:start] + page[cut:]
		lower = lower[:start] + lower[cut:]
	}
}

// extractLinks resolves href attributes against the page URL, keeping
// only http(s) targets, deduplicated, capped at limit.
func extractLinks(page string, base *url.URL, limit int) []string {
	var links []string
	seen := make(map[string]bool)
	lower := strings.ToLower(page)

	for idx := 0; len(links) < limit; {
		pos := strings.Index(lower[idx:], "href=")
		if pos < 0 {
			break
		}
		idx += pos + len("href=")
		raw := attrValue(page[idx:])
		if raw == "" {
			continue
		}
		ref, err := url.Parse(raw)
		if err != nil {
			continue
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			continue
		}
		abs.Fragment = ""
		link := abs.String()
		if !seen[link] {
			seen[link] = true
			links = append(links, link)
		}
	}
	return links
}

// attrValue reads a quoted or bare attribute value starting at s.
func attrValue(s string) string {
	if s == "" {
		return ""
	}
	if s[0] == '"' || s[0] == '\'' {
		quote := s[0]
		if end := strings.IndexByte(s[1:], quote); end >= 0 {
			return s[1 : 1+end]
		}
		return ""
	}
	end := strings.IndexAny(s, " >\n\t")
	if end < 0 {
		end = len(s)
	}
	return s[:end]
}

// extractForms finds form elements and whether they collect passwords.
func extractForms(page string) []models.FormInfo {
	var forms []models.FormInfo
	lower := strings.ToLower(page)
	idx := 0
	for {
		start := strings.Index(lower[idx:], "<form")
		if start < 0 {
			return forms
		}
		start += idx
		end := strings.Index(lower[start:], "</form>")
		var block string
		if end < 0 {
			block = page[start:]
			idx = len(page)
		} else {
			block = page[start : start+end]
			idx = start + end + len("</form>")
		}

		form := models.FormInfo{
			Action:      attrIn(block, "action"),
			Method:      strings.ToUpper(attrIn(block, "method")),
			HasPassword: strings.Contains(strings.ToLower(block), `type="password"`) || strings.Contains(strings.ToLower(block), "type='password'"),
		}
		if form.Method == "" {
			form.Method = http.MethodGet
		}
		forms = append(forms, form)
		if idx >= len(page) {
			return forms
		}
	}
}

func attrIn(block, name string) string {
	lower := strings.ToLower(block)
	pos := strings.Index(lower, name+"=")
	if pos < 0 {
		return ""
	}
	return attrValue(block[pos+len(name)+1:])
}

// ScoutPhase drains the pending-URL queue up to the page budget,
// recording evidence for every fetched page.
type ScoutPhase struct {
	scout    Scout
	reporter Reporter
}

func NewScoutPhase(scout Scout, reporter Reporter) *ScoutPhase {
	return &ScoutPhase{scout: scout, reporter: reporter}
}

// Run fetches pending URLs until the queue or the page budget is
// exhausted. A run that fetches zero pages and records at least one
// error returns an error so the orchestrator can count consecutive
// scout failures.
func (p *ScoutPhase) Run(ctx context.Context, state *models.AuditState) error {
	fetched := 0
	failures := 0

	for state.Counters.PagesScouted < state.Budget.MaxPages {
		rawURL, ok := state.DequeueURL()
		if !ok {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		progress(p.reporter, models.PhaseScout, "fetch", pagePct(state), rawURL, map[string]string{
			"pages_scouted": strconv.Itoa(state.Counters.PagesScouted),
			"pending":       strconv.Itoa(len(state.PendingURLs)),
		})

		ev, err := p.scout.Fetch(ctx, rawURL)
		if err != nil {
			failures++
			state.InvestigatedURLs[rawURL] = true // do not retry within this audit
			state.AddError(models.NewErrorRecord(models.PhaseScout, rawURL, err))
			slog.Warn("Scout fetch failed", "url", rawURL, "error", err)
			continue
		}
		state.RecordScouted(*ev)
		fetched++
	}

	slog.Info("Scout pass finished",
		"audit_id", state.AuditID, "fetched", fetched, "failures", failures,
		"pages_total", state.Counters.PagesScouted)

	if fetched == 0 && failures > 0 {
		return fmt.Errorf("%w: scout fetched no pages (%d failures)", models.ErrUpstream, failures)
	}
	return nil
}

func pagePct(state *models.AuditState) int {
	if state.Budget.MaxPages == 0 {
		return 0
	}
	pct := state.Counters.PagesScouted * 100 / state.Budget.MaxPages
	if pct > 100 {
		pct = 100
	}
	return pct
}
