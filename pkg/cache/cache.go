// Package cache provides a bounded in-memory cache for executed query
// results. Plans are deterministic over an immutable dataset, so a result
// computed once for a session can be replayed for the same plan.
package cache

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mobilityedgeai/chatplanilha/pkg/models"
)

// Stats reports cache effectiveness.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Entries   int
}

type entry struct {
	result   *models.ExecutionResult
	created  time.Time
	lastUsed time.Time
}

// ResultCache caches executed plan results keyed by session and plan. Entries
// expire after the TTL; when full, the least recently used entry is dropped.
type ResultCache struct {
	mu         sync.Mutex
	entries    map[string]*entry
	maxEntries int
	ttl        time.Duration

	hits      uint64
	misses    uint64
	evictions uint64
}

// New creates a cache holding at most maxEntries results for at most ttl each.
func New(maxEntries int, ttl time.Duration) *ResultCache {
	if maxEntries <= 0 {
		maxEntries = 256
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ResultCache{
		entries:    make(map[string]*entry),
		maxEntries: maxEntries,
		ttl:        ttl,
	}
}

// Key derives a cache key from a session and its executable plan. The plan's
// JSON form is canonical because field order in the struct is fixed.
func Key(sessionID string, plan models.QueryPlan) string {
	raw, err := json.Marshal(plan)
	if err != nil {
		return fmt.Sprintf("%s|unkeyable", sessionID)
	}
	return sessionID + "|" + string(raw)
}

// Get returns the cached result for key, or nil when absent or expired.
func (c *ResultCache) Get(key string) (*models.ExecutionResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if time.Since(e.created) > c.ttl {
		delete(c.entries, key)
		c.evictions++
		c.misses++
		return nil, false
	}
	e.lastUsed = time.Now()
	c.hits++
	return e.result, true
}

// Put stores a result under key, evicting the least recently used entry when
// the cache is full.
func (c *ResultCache) Put(key string, result *models.ExecutionResult) {
	if result == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOldestLocked()
	}
	now := time.Now()
	c.entries[key] = &entry{result: result, created: now, lastUsed: now}
}

// InvalidateSession drops every cached result belonging to the session.
func (c *ResultCache) InvalidateSession(sessionID string) {
	prefix := sessionID + "|"
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			c.evictions++
		}
	}
}

// Stats returns a snapshot of cache counters.
func (c *ResultCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Entries:   len(c.entries),
	}
}

func (c *ResultCache) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	for key, e := range c.entries {
		if oldestKey == "" || e.lastUsed.Before(oldest) {
			oldestKey = key
			oldest = e.lastUsed
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
		c.evictions++
	}
}
