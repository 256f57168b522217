package completion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
)

// cacheKeyInput is hashed into a cache key. The retry budget is not part of
// it: a text cached under one budget is returned under any other.
type cacheKeyInput struct {
	Prompt        string  `json:"prompt"`
	Temperature   float64 `json:"temperature"`
	LengthLimited bool    `json:"length_limited"`
}

// CacheKey returns the cache key for a rendered prompt.
func CacheKey(renderedPrompt string, temperature float64, lengthLimited bool) string {
	data, _ := json.Marshal(cacheKeyInput{
		Prompt:        renderedPrompt,
		Temperature:   temperature,
		LengthLimited: lengthLimited,
	})
	hash := sha256.Sum256(data)
	return "completion:" + hex.EncodeToString(hash[:])
}

// RemoteStore is a shared second tier behind the in-process map, so texts
// survive restarts and are shared between generator processes.
type RemoteStore interface {
	Get(ctx context.Context, key string) (text string, ok bool, err error)
	Set(ctx context.Context, key, text string) error
}

// DefaultRemoteFailureLimit is how many consecutive remote errors switch the
// cache to local-only for the rest of the process.
const DefaultRemoteFailureLimit = 3

// Cache holds completion texts for the lifetime of the process. It never
// evicts locally. Access is serialized so a lookup-miss-store sequence from
// one goroutine cannot interleave with another's store.
type Cache struct {
	mu           sync.RWMutex
	entries      map[string]string
	remote       RemoteStore
	hits         int
	misses       int
	remoteHits   int
	remoteErrors int

	remoteFailureLimit int
	remoteFailStreak   int
	remoteDisabled     bool
}

// CacheOption customizes a Cache.
type CacheOption func(*Cache)

// WithRemoteStore adds a second tier consulted on local misses.
func WithRemoteStore(store RemoteStore) CacheOption {
	return func(c *Cache) { c.remote = store }
}

// WithRemoteFailureLimit sets how many consecutive remote errors disable the
// remote tier. Zero or less never disables it.
func WithRemoteFailureLimit(n int) CacheOption {
	return func(c *Cache) { c.remoteFailureLimit = n }
}

// NewCache creates an empty cache.
func NewCache(opts ...CacheOption) *Cache {
	c := &Cache{
		entries:            make(map[string]string),
		remoteFailureLimit: DefaultRemoteFailureLimit,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached text for key. A remote hit is copied into the
// local map. A remote error counts as a miss.
func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if text, ok := c.entries[key]; ok {
		c.hits++
		return text, true
	}
	if c.remoteActive() {
		text, ok, err := c.remote.Get(ctx, key)
		c.recordRemote(err)
		if ok && err == nil {
			c.entries[key] = text
			c.hits++
			c.remoteHits++
			return text, true
		}
	}
	c.misses++
	return "", false
}

// Put stores text under key, replacing any previous entry. The local entry
// is always written; the returned error is from the remote tier.
func (c *Cache) Put(ctx context.Context, key, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = text
	if !c.remoteActive() {
		return nil
	}
	err := c.remote.Set(ctx, key, text)
	c.recordRemote(err)
	if err != nil {
		return fmt.Errorf("store completion in remote cache: %w", err)
	}
	return nil
}

// remoteActive reports whether the remote tier should be consulted.
// Callers hold mu.
func (c *Cache) remoteActive() bool {
	return c.remote != nil && !c.remoteDisabled
}

// recordRemote tracks the failure streak of the remote tier. Callers hold mu.
func (c *Cache) recordRemote(err error) {
	if err == nil {
		c.remoteFailStreak = 0
		return
	}
	c.remoteErrors++
	c.remoteFailStreak++
	if c.remoteFailureLimit > 0 && c.remoteFailStreak >= c.remoteFailureLimit {
		c.remoteDisabled = true
	}
}

// RemoteDisabled reports whether the remote tier was switched off after
// repeated failures.
func (c *Cache) RemoteDisabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.remoteDisabled
}

// Len returns the number of local entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns the hit and miss counts. Hits include remote hits.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}

// RemoteStats returns how many hits came from the remote tier and how many
// remote calls failed.
func (c *Cache) RemoteStats() (hits, failures int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.remoteHits, c.remoteErrors
}
