package policystore

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/rampart-ai/rampart/internal/policy"
)

// countingStore wraps Memory and counts list calls so tests can tell
// cache hits from store round trips.
type countingStore struct {
	*Memory
	invCalls atomic.Int64
	resCalls atomic.Int64
}

func (c *countingStore) ListInvocationPolicies(ctx context.Context, orgID, toolID string) ([]policy.InvocationPolicy, error) {
	c.invCalls.Add(1)
	return c.Memory.ListInvocationPolicies(ctx, orgID, toolID)
}

func (c *countingStore) ListResultPolicies(ctx context.Context, orgID, toolID string) ([]policy.ResultPolicy, error) {
	c.resCalls.Add(1)
	return c.Memory.ListResultPolicies(ctx, orgID, toolID)
}

func newCountingStore(t *testing.T) *countingStore {
	t.Helper()
	cs := &countingStore{Memory: NewMemory()}
	if _, err := cs.Memory.CreateInvocationPolicy(context.Background(), policy.InvocationPolicy{
		OrgID: "org-1", ToolID: "jira__create_issue", Action: policy.InvocationBlockWhenUntrusted, Reason: "seed",
	}); err != nil {
		t.Fatalf("seed policy: %v", err)
	}
	return cs
}

func TestCachedSource_FreshHit(t *testing.T) {
	cs := newCountingStore(t)
	src := NewCachedSource(cs, time.Minute, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		got, err := src.InvocationPolicies(ctx, "org-1", "jira__create_issue")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 1 || got[0].Reason != "seed" {
			t.Fatalf("expected seeded policy, got %+v", got)
		}
	}

	if n := cs.invCalls.Load(); n != 1 {
		t.Fatalf("expected a single store load, got %d", n)
	}
}

func TestCachedSource_StaleHit_ServesStaleAndRefreshesOnce(t *testing.T) {
	cs := newCountingStore(t)
	src := NewCachedSource(cs, 10*time.Millisecond, zap.NewNop())
	ctx := context.Background()

	if _, err := src.InvocationPolicies(ctx, "org-1", "jira__create_issue"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Mutate the backing store, then let the entry go stale.
	if _, err := cs.Memory.CreateInvocationPolicy(ctx, policy.InvocationPolicy{
		OrgID: "org-1", ToolID: "jira__create_issue", Action: policy.InvocationBlockAlways, Reason: "added later",
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	// Stale read still answers from cache.
	got, err := src.InvocationPolicies(ctx, "org-1", "jira__create_issue")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected stale snapshot with 1 policy, got %d", len(got))
	}

	// The background refresh lands shortly after.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, err = src.InvocationPolicies(ctx, "org-1", "jira__create_issue")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) == 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if len(got) != 2 {
		t.Fatalf("expected refreshed snapshot with 2 policies, got %d", len(got))
	}
}

func TestCachedSource_ConcurrentStaleReads_SingleRefresh(t *testing.T) {
	cs := newCountingStore(t)
	src := NewCachedSource(cs, 10*time.Millisecond, zap.NewNop())
	ctx := context.Background()

	if _, err := src.InvocationPolicies(ctx, "org-1", "jira__create_issue"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	before := cs.invCalls.Load()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := src.InvocationPolicies(ctx, "org-1", "jira__create_issue"); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	// Give the single in-flight refresh time to finish, then verify no
	// extra loads were issued beyond it.
	time.Sleep(50 * time.Millisecond)
	if n := cs.invCalls.Load() - before; n != 1 {
		t.Fatalf("expected exactly one refresh load, got %d", n)
	}
}

func TestCachedSource_InvalidateForcesReload(t *testing.T) {
	cs := newCountingStore(t)
	src := NewCachedSource(cs, time.Minute, zap.NewNop())
	ctx := context.Background()

	if _, err := src.InvocationPolicies(ctx, "org-1", "jira__create_issue"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := cs.Memory.CreateInvocationPolicy(ctx, policy.InvocationPolicy{
		OrgID: "org-1", ToolID: "jira__create_issue", Action: policy.InvocationBlockAlways, Reason: "new rule",
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	src.Invalidate("org-1", "jira__create_issue")

	got, err := src.InvocationPolicies(ctx, "org-1", "jira__create_issue")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected reload after invalidate, got %d policies", len(got))
	}
	if n := cs.invCalls.Load(); n != 2 {
		t.Fatalf("expected 2 store loads, got %d", n)
	}
}

func TestCachedSource_ResultPoliciesCachedSeparately(t *testing.T) {
	cs := newCountingStore(t)
	if _, err := cs.Memory.CreateResultPolicy(context.Background(), policy.ResultPolicy{
		OrgID: "org-1", ToolID: "jira__create_issue", Action: policy.ResultMarkUntrusted,
	}); err != nil {
		t.Fatalf("seed result policy: %v", err)
	}
	src := NewCachedSource(cs, time.Minute, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := src.ResultPolicies(ctx, "org-1", "jira__create_issue")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 1 || got[0].Action != policy.ResultMarkUntrusted {
			t.Fatalf("expected seeded result policy, got %+v", got)
		}
	}
	if n := cs.resCalls.Load(); n != 1 {
		t.Fatalf("expected a single store load, got %d", n)
	}
	if n := cs.invCalls.Load(); n != 0 {
		t.Fatalf("expected no invocation loads, got %d", n)
	}
}

func BenchmarkCachedSource_FreshHit(b *testing.B) {
	cs := &countingStore{Memory: NewMemory()}
	if _, err := cs.Memory.CreateInvocationPolicy(context.Background(), policy.InvocationPolicy{
		OrgID: "org-1", ToolID: "jira__create_issue", Action: policy.InvocationBlockWhenUntrusted,
	}); err != nil {
		b.Fatalf("seed policy: %v", err)
	}
	src := NewCachedSource(cs, time.Hour, zap.NewNop())
	ctx := context.Background()
	if _, err := src.InvocationPolicies(ctx, "org-1", "jira__create_issue"); err != nil {
		b.Fatalf("warm cache: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := src.InvocationPolicies(ctx, "org-1", "jira__create_issue"); err != nil {
			b.Fatal(err)
		}
	}
}
