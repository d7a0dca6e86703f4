package apiclient

import (
	"crypto/sha256"
	"encoding/hex"
	"hash/fnv"
	"net/http"
	"sync"
	"time"
)

// CacheEntry is a stored response body plus the metadata needed to rebuild
// an envelope and judge freshness.
type CacheEntry struct {
	Body       []byte
	StatusCode int
	Header     http.Header
	Tags       []string
	StoredAt   time.Time
	ExpiresAt  time.Time
}

// Cache is the pluggable response store consulted by the strategy engine.
type Cache interface {
	Get(key string) (*CacheEntry, bool)
	Set(key string, entry *CacheEntry, ttl time.Duration)
	Delete(key string)
	InvalidateTag(tag string)
	Clear()
}

// CacheKeyFunc derives a deterministic cache key from a request.
type CacheKeyFunc func(method, url string, body []byte) string

// DefaultCacheKey builds METHOD:url, appending a truncated SHA-256 of the
// body for requests that carry one.
func DefaultCacheKey(method, url string, body []byte) string {
	key := method + ":" + url
	if len(body) > 0 {
		sum := sha256.Sum256(body)
		key += ":" + hex.EncodeToString(sum[:8])
	}
	return key
}

// InMemoryCache is a sharded in-process Cache with per-entry expiry and a
// tag index for group invalidation. Safe for concurrent use.
type InMemoryCache struct {
	shards    []*cacheShard
	numShards int

	tagMu    sync.Mutex
	tagIndex map[string]map[string]struct{}
}

type cacheShard struct {
	mu    sync.RWMutex
	store map[string]*CacheEntry
}

// NewInMemoryCache returns an empty cache with a fixed shard count.
func NewInMemoryCache() *InMemoryCache {
	numShards := 16
	shards := make([]*cacheShard, numShards)
	for i := range shards {
		shards[i] = &cacheShard{
			store: make(map[string]*CacheEntry),
		}
	}
	return &InMemoryCache{
		shards:    shards,
		numShards: numShards,
		tagIndex:  make(map[string]map[string]struct{}),
	}
}

func (c *InMemoryCache) getShard(key string) *cacheShard {
	hash := fnv.New32a()
	hash.Write([]byte(key))
	return c.shards[hash.Sum32()%uint32(c.numShards)]
}

// Get returns the entry for key if present and unexpired. Expired entries
// are removed on read.
func (c *InMemoryCache) Get(key string) (*CacheEntry, bool) {
	shard := c.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	entry, exists := shard.store[key]
	if !exists {
		return nil, false
	}

	if time.Now().After(entry.ExpiresAt) {
		delete(shard.store, key)
		return nil, false
	}

	return entry, true
}

// Set stores the entry under key for ttl and records its tags.
func (c *InMemoryCache) Set(key string, entry *CacheEntry, ttl time.Duration) {
	now := time.Now()
	if entry.StoredAt.IsZero() {
		entry.StoredAt = now
	}
	entry.ExpiresAt = now.Add(ttl)

	shard := c.getShard(key)
	shard.mu.Lock()
	shard.store[key] = entry
	shard.mu.Unlock()

	if len(entry.Tags) > 0 {
		c.tagMu.Lock()
		for _, tag := range entry.Tags {
			keys, ok := c.tagIndex[tag]
			if !ok {
				keys = make(map[string]struct{})
				c.tagIndex[tag] = keys
			}
			keys[key] = struct{}{}
		}
		c.tagMu.Unlock()
	}
}

// Delete removes a single entry.
func (c *InMemoryCache) Delete(key string) {
	shard := c.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	delete(shard.store, key)
}

// InvalidateTag removes every entry that was stored with the given tag.
func (c *InMemoryCache) InvalidateTag(tag string) {
	c.tagMu.Lock()
	keys := c.tagIndex[tag]
	delete(c.tagIndex, tag)
	c.tagMu.Unlock()

	for key := range keys {
		c.Delete(key)
	}
}

// Clear drops all entries and the tag index.
func (c *InMemoryCache) Clear() {
	for _, shard := range c.shards {
		shard.mu.Lock()
		shard.store = make(map[string]*CacheEntry)
		shard.mu.Unlock()
	}

	c.tagMu.Lock()
	c.tagIndex = make(map[string]map[string]struct{})
	c.tagMu.Unlock()
}

// Len reports the current number of stored entries across all shards.
func (c *InMemoryCache) Len() int {
	total := 0
	for _, shard := range c.shards {
		shard.mu.RLock()
		total += len(shard.store)
		shard.mu.RUnlock()
	}
	return total
}
