package osint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFeedDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	files := map[string]string{
		FeedPhishingURLs: "url,target\n" +
			"https://login.evil.example/verify,BigBank\n" +
			"http://paypa1-secure.example/signin,PayPal\n",
		FeedMaliciousDomains: "# known bad\nmalware.example\nBOTNET.EXAMPLE\n",
		FeedDarkMarketDomains: "shadowmarket.example\n",
		FeedDarkMarketKeywords: "cloned cards\nfullz\n",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestThreatFeedsPhishingHit(t *testing.T) {
	feeds, err := LoadThreatFeeds(writeFeedDir(t))
	require.NoError(t, err)

	// Exact URL match, case-insensitive.
	assert.True(t, feeds.PhishingHit("https://login.evil.example/verify"))
	assert.True(t, feeds.PhishingHit("HTTPS://LOGIN.EVIL.EXAMPLE/VERIFY"))

	// Host match for a different path on a listed host.
	assert.True(t, feeds.PhishingHit("https://login.evil.example/other-page"))
	assert.True(t, feeds.PhishingHit("http://paypa1-secure.example/"))

	assert.False(t, feeds.PhishingHit("https://example.com/"))
}

func TestThreatFeedsMaliciousHit(t *testing.T) {
	feeds, err := LoadThreatFeeds(writeFeedDir(t))
	require.NoError(t, err)

	assert.True(t, feeds.MaliciousHit("malware.example"))
	assert.True(t, feeds.MaliciousHit("botnet.example"), "list entries are case-folded")
	assert.False(t, feeds.MaliciousHit("example.com"))
}

func TestThreatFeedsDarknetMatches(t *testing.T) {
	feeds, err := LoadThreatFeeds(writeFeedDir(t))
	require.NoError(t, err)

	matches := feeds.DarknetMatches("shadowmarket.example", nil)
	assert.Equal(t, []string{"domain:shadowmarket.example"}, matches)

	// Entity keywords from page content match the keyword table.
	matches = feeds.DarknetMatches("example.com", []string{"buy fullz here", "shoes"})
	assert.Equal(t, []string{"keyword:fullz"}, matches)

	assert.Empty(t, feeds.DarknetMatches("example.com", []string{"gardening"}))
}

func TestThreatFeedsMissingFilesYieldEmptyTables(t *testing.T) {
	feeds, err := LoadThreatFeeds(t.TempDir())
	require.NoError(t, err)

	assert.False(t, feeds.PhishingHit("https://login.evil.example/verify"))
	assert.False(t, feeds.MaliciousHit("malware.example"))
	assert.Empty(t, feeds.DarknetMatches("shadowmarket.example", []string{"fullz"}))
	assert.False(t, feeds.LoadedAt().IsZero())
}
