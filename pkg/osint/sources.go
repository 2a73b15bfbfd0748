package osint

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/trustlens/trustlens/pkg/config"
	"github.com/trustlens/trustlens/pkg/models"
)

// DNSSource checks whether the domain resolves at all and whether it
// carries MX records. A domain that does not resolve is a strong
// phishing/takedown indicator for a live site under audit.
type DNSSource struct {
	spec     *config.SourceSpec
	resolver *net.Resolver
}

// NewDNSSource uses the system resolver unless one is injected.
func NewDNSSource(spec *config.SourceSpec, resolver *net.Resolver) *DNSSource {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return &DNSSource{spec: spec, resolver: resolver}
}

func (s *DNSSource) Spec() *config.SourceSpec { return s.spec }

func (s *DNSSource) Lookup(ctx context.Context, q Query) (*models.SourceVerdict, error) {
	addrs, err := s.resolver.LookupHost(ctx, q.Domain)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			return &models.SourceVerdict{
				Malicious:  true,
				Confidence: 0.5,
				Detail:     "domain does not resolve",
			}, nil
		}
		return nil, fmt.Errorf("%w: dns lookup %s: %v", models.ErrUpstream, q.Domain, err)
	}

	confidence := 0.6
	detail := fmt.Sprintf("%d address record(s)", len(addrs))
	if mx, mxErr := s.resolver.LookupMX(ctx, q.Domain); mxErr == nil && len(mx) > 0 {
		// Mail infrastructure suggests an established domain.
		confidence = 0.7
		detail += fmt.Sprintf(", %d MX record(s)", len(mx))
	}
	return &models.SourceVerdict{Malicious: false, Confidence: confidence, Detail: detail}, nil
}

// SSLSource inspects the certificate presented on port 443: absence,
// expiry, and self-signing all vote malicious.
type SSLSource struct {
	spec *config.SourceSpec
	now  func() time.Time
}

func NewSSLSource(spec *config.SourceSpec) *SSLSource {
	return &SSLSource{spec: spec, now: time.Now}
}

func (s *SSLSource) Spec() *config.SourceSpec { return s.spec }

func (s *SSLSource) Lookup(ctx context.Context, q Query) (*models.SourceVerdict, error) {
	dialer := &tls.Dialer{
		Config: &tls.Config{
			ServerName:         q.Domain,
			InsecureSkipVerify: true, // verification is done manually below to classify the failure
		},
	}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(q.Domain, "443"))
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: tls dial %s: %v", models.ErrTimeout, q.Domain, err)
		}
		return &models.SourceVerdict{
			Malicious:  true,
			Confidence: 0.6,
			Detail:     "no TLS service on port 443",
		}, nil
	}
	defer conn.Close()

	state := conn.(*tls.Conn).ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return &models.SourceVerdict{Malicious: true, Confidence: 0.6, Detail: "no certificate presented"}, nil
	}
	cert := state.PeerCertificates[0]
	now := s.now()

	switch {
	case now.After(cert.NotAfter):
		return &models.SourceVerdict{Malicious: true, Confidence: 0.7,
			Detail: fmt.Sprintf("certificate expired %s", cert.NotAfter.Format(time.RFC3339))}, nil
	case now.Before(cert.NotBefore):
		return &models.SourceVerdict{Malicious: true, Confidence: 0.7,
			Detail: fmt.Sprintf("certificate not valid until %s", cert.NotBefore.Format(time.RFC3339))}, nil
	case selfSigned(cert):
		return &models.SourceVerdict{Malicious: true, Confidence: 0.65, Detail: "self-signed certificate"}, nil
	}

	ageDays := int(now.Sub(cert.NotBefore).Hours() / 24)
	return &models.SourceVerdict{
		Malicious:  false,
		Confidence: 0.7,
		Detail:     fmt.Sprintf("valid certificate from %q, issued %d day(s) ago", cert.Issuer.CommonName, ageDays),
	}, nil
}

func selfSigned(cert *x509.Certificate) bool {
	if cert.Issuer.String() != cert.Subject.String() {
		return false
	}
	return cert.CheckSignatureFrom(cert) == nil
}

// FeedSource answers queries from the offline threat feeds. One
// implementation backs the phishing, malicious-domain, and darknet
// built-ins; the match function distinguishes them.
type FeedSource struct {
	spec  *config.SourceSpec
	feeds *ThreatFeeds
	match func(feeds *ThreatFeeds, q Query) (hit bool, detail string)
}

func (s *FeedSource) Spec() *config.SourceSpec { return s.spec }

func (s *FeedSource) Lookup(_ context.Context, q Query) (*models.SourceVerdict, error) {
	hit, detail := s.match(s.feeds, q)
	if hit {
		return &models.SourceVerdict{Malicious: true, Confidence: 0.9, Detail: detail}, nil
	}
	return &models.SourceVerdict{Malicious: false, Confidence: 0.55, Detail: detail}, nil
}

// NewPhishingFeedSource matches the domain against the phishing-URL feed.
func NewPhishingFeedSource(spec *config.SourceSpec, feeds *ThreatFeeds) *FeedSource {
	return &FeedSource{spec: spec, feeds: feeds, match: func(feeds *ThreatFeeds, q Query) (bool, string) {
		if feeds.PhishingHit(q.Domain) {
			return true, "domain listed in phishing feed"
		}
		return false, "not in phishing feed"
	}}
}

// NewMaliciousDomainsSource matches against the malicious-domain list.
func NewMaliciousDomainsSource(spec *config.SourceSpec, feeds *ThreatFeeds) *FeedSource {
	return &FeedSource{spec: spec, feeds: feeds, match: func(feeds *ThreatFeeds, q Query) (bool, string) {
		if feeds.MaliciousHit(q.Domain) {
			return true, "domain listed in malicious-domain feed"
		}
		return false, "not in malicious-domain feed"
	}}
}

// NewDarknetFeedSource matches the domain and entity keywords against the
// dark-market tables. Offline only.
func NewDarknetFeedSource(spec *config.SourceSpec, feeds *ThreatFeeds) *FeedSource {
	return &FeedSource{spec: spec, feeds: feeds, match: func(feeds *ThreatFeeds, q Query) (bool, string) {
		matches := feeds.DarknetMatches(q.Domain, q.Keywords)
		if len(matches) > 0 {
			return true, "dark-market feed matches: " + strings.Join(matches, ", ")
		}
		return false, "no dark-market feed match"
	}}
}

// HTTPReputationSource queries a keyed JSON reputation API configured via
// the source spec's endpoint. The response is expected as
// {"malicious": bool, "score": float, "detail": string}.
type HTTPReputationSource struct {
	spec   *config.SourceSpec
	client *http.Client
}

func NewHTTPReputationSource(spec *config.SourceSpec, client *http.Client) *HTTPReputationSource {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPReputationSource{spec: spec, client: client}
}

func (s *HTTPReputationSource) Spec() *config.SourceSpec { return s.spec }

type reputationResponse struct {
	Malicious bool    `json:"malicious"`
	Score     float64 `json:"score"` // 0..1 confidence in the verdict
	Detail    string  `json:"detail"`
}

func (s *HTTPReputationSource) Lookup(ctx context.Context, q Query) (*models.SourceVerdict, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.spec.Endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", models.ErrInput, err)
	}
	query := req.URL.Query()
	query.Set("domain", q.Domain)
	req.URL.RawQuery = query.Encode()
	if s.spec.APIKey != "" {
		req.Header.Set("X-Api-Key", s.spec.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %s: %v", models.ErrTimeout, s.spec.Name, err)
		}
		return nil, fmt.Errorf("%s: %w", s.spec.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: %s returned 429", models.ErrRateLimited, s.spec.Name)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %d", models.ErrUpstream, s.spec.Name, resp.StatusCode)
	}

	var body reputationResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrParse, s.spec.Name, err)
	}
	confidence := body.Score
	if confidence <= 0 || confidence > 1 {
		confidence = 0.5
	}
	return &models.SourceVerdict{Malicious: body.Malicious, Confidence: confidence, Detail: body.Detail}, nil
}

// RegisterBuiltins wires every configured source the engine knows how to
// construct: the key-less built-ins plus any keyed reputation source with
// an endpoint. Unknown source names without endpoints are skipped with
// an error in the returned slice, as are feed-backed sources when the
// threat feeds failed to load.
func RegisterBuiltins(e *Engine, cfg *config.OSINTConfig, feeds *ThreatFeeds) []error {
	var errs []error
	for name, spec := range cfg.Sources {
		if feeds == nil && (name == "phishing_feed" || name == "malicious_domains" || name == "darknet_feed") {
			errs = append(errs, fmt.Errorf("%w: source %q needs threat feeds, which are unavailable", models.ErrUpstream, name))
			continue
		}
		var src Source
		switch name {
		case "dns":
			src = NewDNSSource(spec, nil)
		case "ssl":
			src = NewSSLSource(spec)
		case "phishing_feed":
			src = NewPhishingFeedSource(spec, feeds)
		case "malicious_domains":
			src = NewMaliciousDomainsSource(spec, feeds)
		case "darknet_feed":
			src = NewDarknetFeedSource(spec, feeds)
		default:
			if spec.Endpoint != "" {
				src = NewHTTPReputationSource(spec, nil)
			} else {
				errs = append(errs, fmt.Errorf("%w: source %q has no implementation and no endpoint", models.ErrInput, name))
				continue
			}
		}
		if err := e.Register(src); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
