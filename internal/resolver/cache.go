package resolver

import (
	"sync"
	"time"
)

const (
	defaultCacheSize = 128
	defaultCacheTTL  = 5 * time.Minute
)

// cacheEntry holds the lines of one source file.
type cacheEntry struct {
	lines      []string
	expiresAt  time.Time
	lastAccess time.Time
	hits       int64
}

func (e *cacheEntry) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// sourceCache keeps recently read source files in memory so that grouped
// failures pointing at the same file are resolved with one disk read.
type sourceCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	maxSize int
	ttl     time.Duration
	misses  int64
}

func newSourceCache(maxSize int, ttl time.Duration) *sourceCache {
	if maxSize <= 0 {
		maxSize = defaultCacheSize
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &sourceCache{
		entries: make(map[string]*cacheEntry),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

func (c *sourceCache) get(path string) ([]string, bool) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[path]
	if !ok {
		c.misses++
		return nil, false
	}
	if entry.expired(now) {
		delete(c.entries, path)
		c.misses++
		return nil, false
	}
	entry.hits++
	entry.lastAccess = now
	return entry.lines, true
}

func (c *sourceCache) put(path string, lines []string) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxSize {
		c.evictExpiredLocked(now)
	}
	if len(c.entries) >= c.maxSize {
		c.evictLRULocked()
	}

	c.entries[path] = &cacheEntry{
		lines:      lines,
		expiresAt:  now.Add(c.ttl),
		lastAccess: now,
	}
}

// evictExpiredLocked removes all expired entries. Caller holds the lock.
func (c *sourceCache) evictExpiredLocked(now time.Time) {
	for path, entry := range c.entries {
		if entry.expired(now) {
			delete(c.entries, path)
		}
	}
}

// evictLRULocked removes the least recently used entry. Caller holds the lock.
func (c *sourceCache) evictLRULocked() {
	var oldestPath string
	var oldestTime time.Time
	first := true

	for path, entry := range c.entries {
		if first || entry.lastAccess.Before(oldestTime) {
			oldestPath = path
			oldestTime = entry.lastAccess
			first = false
		}
	}
	if oldestPath != "" {
		delete(c.entries, oldestPath)
	}
}

type cacheStats struct {
	Size   int
	Hits   int64
	Misses int64
}

func (c *sourceCache) stats() cacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := cacheStats{Size: len(c.entries), Misses: c.misses}
	for _, entry := range c.entries {
		s.Hits += entry.hits
	}
	return s
}
