package router

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"
	"time"
)

// DefaultCacheTTL is how long a routing decision stays valid.
const DefaultCacheTTL = 300 * time.Second

// CacheKey derives the cache key for one request: SHA-256 over the
// normalized intent text plus the sorted request context.
func CacheKey(normalizedText string, reqContext map[string]string) string {
	h := sha256.New()
	h.Write([]byte(normalizedText))

	keys := make([]string, 0, len(reqContext))
	for k := range reqContext {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte("\x00" + k + "=" + reqContext[k]))
	}

	return hex.EncodeToString(h.Sum(nil))
}

type cacheEntry struct {
	decision  *Decision
	expiresAt time.Time
}

// decisionCache is a TTL cache of routing decisions. Races between
// concurrent writers are benign: recomputation is idempotent, so last
// write wins. Expired entries are dropped lazily on read and swept on
// write.
type decisionCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry

	// now is replaceable in tests.
	now func() time.Time
}

func newDecisionCache(ttl time.Duration) *decisionCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &decisionCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// Get returns the cached decision for a key, dropping it when expired.
func (c *decisionCache) Get(key string) (*Decision, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		// Recheck under the write lock; a fresh entry may have landed.
		if current, ok := c.entries[key]; ok && c.now().After(current.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return entry.decision, true
}

// Put stores a decision and sweeps any expired entries.
func (c *decisionCache) Put(key string, decision *Decision) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for k, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = cacheEntry{decision: decision, expiresAt: now.Add(c.ttl)}
}

// Len returns the number of cached entries, expired included.
func (c *decisionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
