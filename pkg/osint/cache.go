package osint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/trustlens/trustlens/pkg/models"
)

// cacheKey derives the storage key for (source, query):
// sha256(source_name || query key material).
func cacheKey(source string, q Query) string {
	sum := sha256.Sum256([]byte(source + q.Key()))
	return hex.EncodeToString(sum[:])
}

// MemoryCache is a per-audit in-process cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	verdict   models.SourceVerdict
	expiresAt time.Time
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

// Get returns a non-expired entry.
func (c *MemoryCache) Get(_ context.Context, source string, q Query) (*models.SourceVerdict, bool) {
	c.mu.RLock()
	entry, ok := c.entries[cacheKey(source, q)]
	c.mu.RUnlock()
	if !ok || c.now().After(entry.expiresAt) {
		return nil, false
	}
	v := entry.verdict
	return &v, true
}

// Set stores a verdict with its TTL.
func (c *MemoryCache) Set(_ context.Context, source string, q Query, v *models.SourceVerdict, ttlSeconds int) {
	if v == nil || ttlSeconds <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(source, q)] = memoryEntry{
		verdict:   *v,
		expiresAt: c.now().Add(time.Duration(ttlSeconds) * time.Second),
	}
}

// FileCache persists entries as JSON files in a directory, one file per
// sha256(source||query) key, each holding {payload, expires_at}. Shared
// across audits under one supervisor. Writes go through a temp file and
// rename, so each key is updated atomically.
type FileCache struct {
	dir string
	now func() time.Time
}

// NewFileCache creates (if needed) and opens the cache directory.
func NewFileCache(dir string) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileCache{dir: dir, now: time.Now}, nil
}

func (c *FileCache) path(key string) string {
	return filepath.Join(c.dir, key+".json")
}

// Get returns a non-expired entry from disk.
func (c *FileCache) Get(_ context.Context, source string, q Query) (*models.SourceVerdict, bool) {
	data, err := os.ReadFile(c.path(cacheKey(source, q)))
	if err != nil {
		return nil, false
	}
	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false
	}
	if c.now().Unix() > entry.ExpiresAt {
		return nil, false
	}
	var v models.SourceVerdict
	if err := json.Unmarshal(entry.Payload, &v); err != nil {
		return nil, false
	}
	return &v, true
}

// Set writes an entry to disk. Failures are logged, never fatal: the
// cache is an optimization.
func (c *FileCache) Set(_ context.Context, source string, q Query, v *models.SourceVerdict, ttlSeconds int) {
	if v == nil || ttlSeconds <= 0 {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	entry := cacheEntry{
		Payload:   payload,
		ExpiresAt: c.now().Add(time.Duration(ttlSeconds) * time.Second).Unix(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}

	final := c.path(cacheKey(source, q))
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		slog.Warn("OSINT file cache write failed", "source", source, "error", err)
		return
	}
	if err := os.Rename(tmp, final); err != nil {
		slog.Warn("OSINT file cache rename failed", "source", source, "error", err)
		_ = os.Remove(tmp)
	}
}
