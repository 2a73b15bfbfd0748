package phases

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/trustlens/trustlens/pkg/models"
	"github.com/trustlens/trustlens/pkg/osint"
)

// GraphPhase assembles the OSINT entity profile: a fanout across all
// registered sources, the weighted consensus, preserved conflicts, and
// offline feed matches for phishing and darknet exposure.
type GraphPhase struct {
	engine   *osint.Engine
	feeds    *osint.ThreatFeeds
	reporter Reporter
}

func NewGraphPhase(engine *osint.Engine, feeds *osint.ThreatFeeds, reporter Reporter) *GraphPhase {
	return &GraphPhase{engine: engine, feeds: feeds, reporter: reporter}
}

func (p *GraphPhase) Run(ctx context.Context, state *models.AuditState) error {
	domain, err := domainOf(state.TargetURL)
	if err != nil {
		return err
	}

	query := osint.Query{
		Domain:   domain,
		Keywords: entityKeywords(state),
	}

	progress(p.reporter, models.PhaseGraph, "fanout", 10, domain, nil)
	results := p.engine.QueryAll(ctx, query)
	consensus, conflicts, verdicts := p.engine.Consensus(results)

	evidence := &models.GraphEvidence{
		Domain:        domain,
		Verifications: verdicts,
		Consensus:     consensus,
		Conflicts:     conflicts,
		EntityKeyword: query.Keywords,
		SourceErrors:  make(map[string]string),
	}

	for _, r := range results {
		if r.Usable() {
			continue
		}
		detail := string(r.Status)
		if r.Err != nil {
			detail = fmt.Sprintf("%s: %v", r.Status, r.Err)
			state.AddError(models.NewErrorRecord(models.PhaseGraph, r.Source, r.Err))
		}
		evidence.SourceErrors[r.Source] = detail
	}

	if p.feeds != nil {
		evidence.PhishingHit = p.feeds.PhishingHit(state.TargetURL) || p.feeds.PhishingHit(domain)
		evidence.DarknetHits = p.feeds.DarknetMatches(domain, query.Keywords)
	}

	state.GraphEvidence = evidence

	summary := map[string]string{
		"sources":   strconv.Itoa(len(results)),
		"usable":    strconv.Itoa(len(verdicts)),
		"conflicts": strconv.Itoa(len(conflicts)),
	}
	if consensus != nil {
		summary["malicious"] = strconv.FormatBool(consensus.Malicious)
		summary["confirmed"] = strconv.FormatBool(consensus.Confirmed)
	}
	progress(p.reporter, models.PhaseGraph, "consensus", 100, "", summary)
	return nil
}

// domainOf extracts the registrable host from the audit target.
func domainOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "", fmt.Errorf("%w: cannot derive domain from %q", models.ErrInput, rawURL)
	}
	return strings.ToLower(u.Hostname()), nil
}

// entityKeywords derives brand keywords for darknet matching from page
// titles: lowercase tokens of at least four characters, deduplicated,
// capped at eight.
func entityKeywords(state *models.AuditState) []string {
	const maxKeywords = 8
	seen := make(map[string]bool)
	var keywords []string
	for _, ev := range state.ScoutEvidence {
		for _, token := range strings.Fields(strings.ToLower(ev.Title)) {
			token = strings.Trim(token, ".,;:!?()[]\"'|-")
			if len(token) < 4 || seen[token] {
				continue
			}
			seen[token] = true
			keywords = append(keywords, token)
			if len(keywords) == maxKeywords {
				return keywords
			}
		}
	}
	return keywords
}
