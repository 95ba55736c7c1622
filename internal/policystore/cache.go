package policystore

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/rampart-ai/rampart/internal/policy"
)

const refreshTimeout = 5 * time.Second

// CachedSource is a TTL read-through cache over a Store, with
// stale-while-revalidate so evaluation never waits on the database in
// steady state. It implements policy.PolicySource.
type CachedSource struct {
	store  Store
	ttl    time.Duration
	logger *zap.Logger

	inv sync.Map // "org:tool" -> *invEntry
	res sync.Map // "org:tool" -> *resEntry
}

type invEntry struct {
	pols       []policy.InvocationPolicy
	expiresAt  time.Time
	refreshing atomic.Bool
}

type resEntry struct {
	pols       []policy.ResultPolicy
	expiresAt  time.Time
	refreshing atomic.Bool
}

func NewCachedSource(store Store, ttl time.Duration, logger *zap.Logger) *CachedSource {
	if ttl == 0 {
		ttl = 30 * time.Second
	}
	return &CachedSource{store: store, ttl: ttl, logger: logger}
}

func sourceKey(orgID, toolID string) string {
	return orgID + ":" + toolID
}

func (c *CachedSource) InvocationPolicies(ctx context.Context, orgID, toolID string) ([]policy.InvocationPolicy, error) {
	key := sourceKey(orgID, toolID)
	if val, ok := c.inv.Load(key); ok {
		entry := val.(*invEntry)
		if time.Now().Before(entry.expiresAt) {
			return entry.pols, nil
		}
		// Stale hit: serve it, let one goroutine win the refresh.
		if entry.refreshing.CompareAndSwap(false, true) {
			go c.refreshInvocation(orgID, toolID)
		}
		return entry.pols, nil
	}

	pols, err := c.store.ListInvocationPolicies(ctx, orgID, toolID)
	if err != nil {
		return nil, err
	}
	c.inv.Store(key, &invEntry{pols: pols, expiresAt: time.Now().Add(c.ttl)})
	return pols, nil
}

func (c *CachedSource) ResultPolicies(ctx context.Context, orgID, toolID string) ([]policy.ResultPolicy, error) {
	key := sourceKey(orgID, toolID)
	if val, ok := c.res.Load(key); ok {
		entry := val.(*resEntry)
		if time.Now().Before(entry.expiresAt) {
			return entry.pols, nil
		}
		if entry.refreshing.CompareAndSwap(false, true) {
			go c.refreshResult(orgID, toolID)
		}
		return entry.pols, nil
	}

	pols, err := c.store.ListResultPolicies(ctx, orgID, toolID)
	if err != nil {
		return nil, err
	}
	c.res.Store(key, &resEntry{pols: pols, expiresAt: time.Now().Add(c.ttl)})
	return pols, nil
}

// Invalidate drops both families for a tool. Called after administrative
// writes so evaluation picks up changes on the next call.
func (c *CachedSource) Invalidate(orgID, toolID string) {
	key := sourceKey(orgID, toolID)
	c.inv.Delete(key)
	c.res.Delete(key)
}

func (c *CachedSource) refreshInvocation(orgID, toolID string) {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	pols, err := c.store.ListInvocationPolicies(ctx, orgID, toolID)
	if err != nil {
		c.logger.Warn("background invocation policy refresh failed",
			zap.String("org_id", orgID),
			zap.String("tool_id", toolID),
			zap.Error(err),
		)
		// Clear the flag so a later stale read retries the refresh.
		if val, ok := c.inv.Load(sourceKey(orgID, toolID)); ok {
			val.(*invEntry).refreshing.Store(false)
		}
		return
	}
	c.inv.Store(sourceKey(orgID, toolID), &invEntry{pols: pols, expiresAt: time.Now().Add(c.ttl)})
}

func (c *CachedSource) refreshResult(orgID, toolID string) {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	pols, err := c.store.ListResultPolicies(ctx, orgID, toolID)
	if err != nil {
		c.logger.Warn("background result policy refresh failed",
			zap.String("org_id", orgID),
			zap.String("tool_id", toolID),
			zap.Error(err),
		)
		if val, ok := c.res.Load(sourceKey(orgID, toolID)); ok {
			val.(*resEntry).refreshing.Store(false)
		}
		return
	}
	c.res.Store(sourceKey(orgID, toolID), &resEntry{pols: pols, expiresAt: time.Now().Add(c.ttl)})
}
