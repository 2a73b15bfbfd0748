package osint

import (
	"bufio"
	"context"
	"encoding/csv"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Threat-feed file names expected inside the feeds directory.
const (
	FeedPhishingURLs       = "phishing_urls.csv"
	FeedMaliciousDomains   = "malicious_domains.txt"
	FeedDarkMarketDomains  = "darkmarket_domains.txt"
	FeedDarkMarketKeywords = "darkmarket_keywords.txt"
)

// ThreatFeeds holds the pre-downloaded offline feeds: a phishing-URL
// CSV, a malicious-domain list, and dark-market domain/keyword tables.
// Feeds are the only way darknet exposure is evaluated — no outbound
// connection to any hidden-service network is ever attempted.
//
// Watch() hot-reloads the tables when the files change on disk.
type ThreatFeeds struct {
	mu  sync.RWMutex
	dir string

	phishingHosts      map[string]bool
	phishingURLs       map[string]bool
	maliciousDomains   map[string]bool
	darkMarketDomains  map[string]bool
	darkMarketKeywords []string

	loadedAt time.Time
}

// LoadThreatFeeds reads all feed files from dir. Missing files yield
// empty tables; only unreadable present files are reported.
func LoadThreatFeeds(dir string) (*ThreatFeeds, error) {
	f := &ThreatFeeds{dir: dir}
	if err := f.reload(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *ThreatFeeds) reload() error {
	phishingHosts := make(map[string]bool)
	phishingURLs := make(map[string]bool)

	if file, err := os.Open(filepath.Join(f.dir, FeedPhishingURLs)); err == nil {
		reader := csv.NewReader(file)
		reader.FieldsPerRecord = -1
		records, readErr := reader.ReadAll()
		_ = file.Close()
		if readErr != nil {
			slog.Warn("Failed to parse phishing feed", "error", readErr)
		}
		for _, record := range records {
			if len(record) == 0 || strings.EqualFold(record[0], "url") {
				continue // header or blank
			}
			raw := strings.TrimSpace(record[0])
			phishingURLs[strings.ToLower(raw)] = true
			if u, err := url.Parse(raw); err == nil && u.Host != "" {
				phishingHosts[strings.ToLower(u.Hostname())] = true
			}
		}
	}

	malicious, err := loadDomainList(filepath.Join(f.dir, FeedMaliciousDomains))
	if err != nil {
		return err
	}
	darkDomains, err := loadDomainList(filepath.Join(f.dir, FeedDarkMarketDomains))
	if err != nil {
		return err
	}
	keywords, err := loadLineList(filepath.Join(f.dir, FeedDarkMarketKeywords))
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.phishingHosts = phishingHosts
	f.phishingURLs = phishingURLs
	f.maliciousDomains = malicious
	f.darkMarketDomains = darkDomains
	f.darkMarketKeywords = keywords
	f.loadedAt = time.Now()
	f.mu.Unlock()

	slog.Info("Threat feeds loaded",
		"dir", f.dir,
		"phishing_urls", len(phishingURLs),
		"malicious_domains", len(malicious),
		"darkmarket_domains", len(darkDomains),
		"darkmarket_keywords", len(keywords))
	return nil
}

func loadDomainList(path string) (map[string]bool, error) {
	lines, err := loadLineList(path)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(lines))
	for _, line := range lines {
		out[strings.ToLower(line)] = true
	}
	return out, nil
}

func loadLineList(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}

// Watch hot-reloads the feeds when files in the directory change.
// Runs until ctx is cancelled. Reload failures keep the previous tables.
func (f *ThreatFeeds) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(f.dir); err != nil {
		_ = watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if reloadErr := f.reload(); reloadErr != nil {
					slog.Warn("Threat feed reload failed, keeping previous tables",
						"file", event.Name, "error", reloadErr)
				}
			case watchErr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("Threat feed watcher error", "error", watchErr)
			}
		}
	}()
	return nil
}

// PhishingHit reports whether the URL or its host appears in the
// phishing feed.
func (f *ThreatFeeds) PhishingHit(rawURL string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.phishingURLs[strings.ToLower(strings.TrimSpace(rawURL))] {
		return true
	}
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		return f.phishingHosts[strings.ToLower(u.Hostname())]
	}
	return f.phishingHosts[strings.ToLower(rawURL)]
}

// MaliciousHit reports whether the domain appears in the malicious list.
func (f *ThreatFeeds) MaliciousHit(domain string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.maliciousDomains[strings.ToLower(domain)]
}

// DarknetMatches returns the feed entries matched by the domain or any
// entity keyword. Matches are reported verbatim for the evidence record.
func (f *ThreatFeeds) DarknetMatches(domain string, keywords []string) []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var matches []string
	if f.darkMarketDomains[strings.ToLower(domain)] {
		matches = append(matches, "domain:"+strings.ToLower(domain))
	}
	for _, kw := range f.darkMarketKeywords {
		lower := strings.ToLower(kw)
		if strings.Contains(strings.ToLower(domain), lower) {
			matches = append(matches, "keyword:"+lower)
			continue
		}
		for _, entity := range keywords {
			if strings.Contains(strings.ToLower(entity), lower) {
				matches = append(matches, "keyword:"+lower)
				break
			}
		}
	}
	return matches
}

// LoadedAt returns when the tables were last (re)loaded.
func (f *ThreatFeeds) LoadedAt() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.loadedAt
}
