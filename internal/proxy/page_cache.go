package proxy

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"sync"
	"time"
)

type cacheEntry struct {
	data    []byte
	outcome Outcome
	created time.Time
}

// rewriteCache keeps rewritten front pages keyed by the upstream body, the
// campaign flag and the profile revision. Entries expire after ttl; when
// full, the oldest entry is dropped.
type rewriteCache struct {
	mu   sync.RWMutex
	now  func() time.Time
	ttl  time.Duration
	max  int
	data map[string]cacheEntry
}

func newRewriteCache(now func() time.Time, ttl time.Duration, max int) *rewriteCache {
	if now == nil {
		now = time.Now
	}
	return &rewriteCache{
		now:  now,
		ttl:  ttl,
		max:  max,
		data: make(map[string]cacheEntry),
	}
}

func cacheKey(body []byte, campaignTraffic bool, revision uint64) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:]) +
		":c=" + strconv.Itoa(boolToInt(campaignTraffic)) +
		":r=" + strconv.FormatUint(revision, 10)
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func (c *rewriteCache) enabled() bool { return c != nil && c.ttl > 0 && c.max > 0 }

func (c *rewriteCache) Store(key string, data []byte, oc Outcome) {
	if !c.enabled() {
		return
	}
	entry := cacheEntry{
		data:    append([]byte(nil), data...),
		outcome: oc,
		created: c.now(),
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.data[key]; !ok && len(c.data) >= c.max {
		c.evictLocked()
	}
	c.data[key] = entry
}

func (c *rewriteCache) Select(key string) ([]byte, Outcome, bool) {
	if !c.enabled() {
		return nil, Outcome{}, false
	}
	c.mu.RLock()
	entry, ok := c.data[key]
	c.mu.RUnlock()
	if !ok {
		return nil, Outcome{}, false
	}
	if c.now().Sub(entry.created) >= c.ttl {
		c.mu.Lock()
		if cur, ok := c.data[key]; ok && cur.created.Equal(entry.created) {
			delete(c.data, key)
		}
		c.mu.Unlock()
		return nil, Outcome{}, false
	}
	return append([]byte(nil), entry.data...), entry.outcome, true
}

func (c *rewriteCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// evictLocked drops expired entries, or the oldest one if none expired.
func (c *rewriteCache) evictLocked() {
	now := c.now()
	var oldestKey string
	var oldest time.Time
	for k, e := range c.data {
		if now.Sub(e.created) >= c.ttl {
			delete(c.data, k)
			continue
		}
		if oldestKey == "" || e.created.Before(oldest) {
			oldestKey, oldest = k, e.created
		}
	}
	if len(c.data) >= c.max && oldestKey != "" {
		delete(c.data, oldestKey)
	}
}
