package phases

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustlens/trustlens/pkg/config"
	"github.com/trustlens/trustlens/pkg/models"
	"github.com/trustlens/trustlens/pkg/osint"
)

// verdictSource answers every lookup with a fixed verdict.
type verdictSource struct {
	spec    *config.SourceSpec
	verdict models.SourceVerdict
}

func (s *verdictSource) Spec() *config.SourceSpec { return s.spec }
func (s *verdictSource) Lookup(context.Context, osint.Query) (*models.SourceVerdict, error) {
	v := s.verdict
	return &v, nil
}

func graphEngine(t *testing.T, sources ...*verdictSource) *osint.Engine {
	t.Helper()
	cfg := &config.OSINTConfig{
		Parallelism:             2,
		BreakerFailureThreshold: 3,
		BreakerBackoff:          time.Minute,
		HighConfidence:          0.85,
		Sources:                 make(map[string]*config.SourceSpec),
	}
	e := osint.NewEngine(cfg, nil, nil)
	for _, src := range sources {
		cfg.Sources[src.spec.Name] = src.spec
		require.NoError(t, e.Register(src))
	}
	return e
}

func graphSpec(name string, tier int) *config.SourceSpec {
	return &config.SourceSpec{
		Name: name, Category: config.CategoryThreatIntel, PriorityTier: tier,
		TrustLevel: config.TrustHigh, BaseWeight: 1.0, ConfidenceBias: 1.0,
		CacheTTL: time.Minute,
	}
}

func TestGraphPhaseAssemblesEvidence(t *testing.T) {
	engine := graphEngine(t,
		&verdictSource{spec: graphSpec("intel_a", 1),
			verdict: models.SourceVerdict{Malicious: true, Confidence: 0.9}},
		&verdictSource{spec: graphSpec("intel_b", 1),
			verdict: models.SourceVerdict{Malicious: false, Confidence: 0.4}},
	)

	state := stateWithPages(models.ScoutEvidence{
		URL: "https://shop.example/", Title: "MegaShop Electronics Outlet",
	})
	phase := NewGraphPhase(engine, nil, NopReporter{})
	require.NoError(t, phase.Run(context.Background(), state))

	g := state.GraphEvidence
	require.NotNil(t, g)
	assert.Equal(t, "shop.example", g.Domain)
	assert.Len(t, g.Verifications, 2)
	require.NotNil(t, g.Consensus)
	assert.True(t, g.Consensus.Malicious)
	assert.Len(t, g.Conflicts, 1, "disagreement is preserved")
	assert.False(t, g.PhishingHit, "no feeds attached")
	assert.Equal(t, []string{"megashop", "electronics", "outlet"}, g.EntityKeyword)
	assert.Empty(t, g.SourceErrors)
}

func TestGraphPhaseFeedMatches(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, osint.FeedPhishingURLs),
		[]byte("url,target\nhttps://shop.example/login,MegaShop\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, osint.FeedDarkMarketKeywords),
		[]byte("megashop\n"), 0o644))
	feeds, err := osint.LoadThreatFeeds(dir)
	require.NoError(t, err)

	state := stateWithPages(models.ScoutEvidence{
		URL: "https://shop.example/", Title: "MegaShop",
	})
	phase := NewGraphPhase(graphEngine(t), feeds, NopReporter{})
	require.NoError(t, phase.Run(context.Background(), state))

	g := state.GraphEvidence
	require.NotNil(t, g)
	assert.True(t, g.PhishingHit, "host-level phishing feed match")
	assert.Equal(t, []string{"keyword:megashop"}, g.DarknetHits)
}

func TestDomainOf(t *testing.T) {
	domain, err := domainOf("https://Shop.Example:8443/path?q=1")
	require.NoError(t, err)
	assert.Equal(t, "shop.example", domain)

	_, err = domainOf("not a url")
	assert.ErrorIs(t, err, models.ErrInput)
}

func TestEntityKeywords(t *testing.T) {
	state := stateWithPages(
		models.ScoutEvidence{Title: "The Mega Shop! Best deals, best prices."},
		models.ScoutEvidence{Title: "Mega Shop checkout"},
	)
	// Tokens under four characters drop, punctuation trims, duplicates
	// collapse across pages.
	assert.Equal(t, []string{"mega", "shop", "best", "deals", "prices", "checkout"},
		entityKeywords(state))
}
