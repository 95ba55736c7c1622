package auth

import (
	"sync"
	"sync/atomic"
	"time"
)

// AuthCache is a TTL-based in-memory cache for authenticated org contexts.
// Uses sync.Map for lock-free reads on the hot path.
//
// Stale-while-revalidate: when an entry expires, Get still returns the stale
// value immediately and signals that a background refresh is needed, so no
// request blocks on DB + bcrypt after the first cold start.
type AuthCache struct {
	store sync.Map // map[string]*cacheEntry
	ttl   time.Duration
}

type cacheEntry struct {
	org        *OrgContext
	expiresAt  time.Time
	refreshing atomic.Bool
}

// AuthCacheGetResult holds the result of a cache lookup.
type AuthCacheGetResult struct {
	Org          *OrgContext
	Hit          bool
	NeedsRefresh bool
}

func NewAuthCache(ttl time.Duration) *AuthCache {
	return &AuthCache{ttl: ttl}
}

// Get performs a non-blocking cache lookup. NeedsRefresh is true for exactly
// one caller per expired entry.
func (c *AuthCache) Get(apiKey string) AuthCacheGetResult {
	val, ok := c.store.Load(apiKey)
	if !ok {
		return AuthCacheGetResult{Hit: false}
	}

	entry := val.(*cacheEntry)
	now := time.Now()

	if now.Before(entry.expiresAt) {
		return AuthCacheGetResult{
			Org: entry.org,
			Hit: true,
		}
	}

	needsRefresh := entry.refreshing.CompareAndSwap(false, true)
	return AuthCacheGetResult{
		Org:          entry.org,
		Hit:          true,
		NeedsRefresh: needsRefresh,
	}
}

// Set stores an org context with a fresh TTL.
func (c *AuthCache) Set(apiKey string, org *OrgContext) {
	c.store.Store(apiKey, &cacheEntry{
		org:       org,
		expiresAt: time.Now().Add(c.ttl),
	})
}

// AbortRefresh releases the refresh claim on an entry after a failed
// refresh so a later lookup can try again.
func (c *AuthCache) AbortRefresh(apiKey string) {
	if val, ok := c.store.Load(apiKey); ok {
		val.(*cacheEntry).refreshing.Store(false)
	}
}

// Delete removes an entry from the cache.
func (c *AuthCache) Delete(apiKey string) {
	c.store.Delete(apiKey)
}
