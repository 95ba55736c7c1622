package auth

import (
	"sync"
	"testing"
	"time"
)

func TestCache_FreshHit(t *testing.T) {
	cache := NewAuthCache(1 * time.Minute)
	org := &OrgContext{OrgID: "org-1", FailOpen: true}

	cache.Set("rk_abc12345", org)

	result := cache.Get("rk_abc12345")
	if !result.Hit {
		t.Fatal("expected cache hit")
	}
	if result.NeedsRefresh {
		t.Error("fresh entry should not need refresh")
	}
	if result.Org.OrgID != "org-1" {
		t.Errorf("expected org-1, got %s", result.Org.OrgID)
	}
}

func TestCache_Miss(t *testing.T) {
	cache := NewAuthCache(1 * time.Minute)

	result := cache.Get("rk_nonexistent")
	if result.Hit {
		t.Error("expected cache miss")
	}
	if result.Org != nil {
		t.Error("expected nil org on miss")
	}
}

func TestCache_StaleHit_ReturnsValueAndSignalsRefresh(t *testing.T) {
	cache := NewAuthCache(1 * time.Millisecond)
	cache.Set("rk_abc12345", &OrgContext{OrgID: "org-1"})
	time.Sleep(5 * time.Millisecond)

	result := cache.Get("rk_abc12345")
	if !result.Hit {
		t.Fatal("expected stale hit")
	}
	if !result.NeedsRefresh {
		t.Error("expired entry should signal refresh")
	}
	if result.Org.OrgID != "org-1" {
		t.Error("stale hit should still return the org")
	}
}

func TestCache_OnlyOneCallerRefreshes(t *testing.T) {
	cache := NewAuthCache(1 * time.Millisecond)
	cache.Set("rk_abc12345", &OrgContext{OrgID: "org-1"})
	time.Sleep(5 * time.Millisecond)

	const goroutines = 50
	var wg sync.WaitGroup
	var refreshes int32
	results := make(chan bool, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- cache.Get("rk_abc12345").NeedsRefresh
		}()
	}
	wg.Wait()
	close(results)

	for needs := range results {
		if needs {
			refreshes++
		}
	}
	if refreshes != 1 {
		t.Fatalf("expected exactly one refresh signal, got %d", refreshes)
	}
}

func TestCache_SetResetsRefreshFlag(t *testing.T) {
	cache := NewAuthCache(1 * time.Millisecond)
	cache.Set("rk_abc12345", &OrgContext{OrgID: "org-1"})
	time.Sleep(5 * time.Millisecond)

	if !cache.Get("rk_abc12345").NeedsRefresh {
		t.Fatal("expected refresh signal")
	}

	// A refresh writes the entry back; expiry starts over.
	cache.Set("rk_abc12345", &OrgContext{OrgID: "org-1"})
	result := cache.Get("rk_abc12345")
	if !result.Hit || result.NeedsRefresh {
		t.Fatalf("expected fresh entry after set, got %+v", result)
	}
}

func TestCache_AbortRefreshReleasesClaim(t *testing.T) {
	cache := NewAuthCache(1 * time.Millisecond)
	cache.Set("rk_abc12345", &OrgContext{OrgID: "org-1"})
	time.Sleep(5 * time.Millisecond)

	if !cache.Get("rk_abc12345").NeedsRefresh {
		t.Fatal("expected refresh signal")
	}
	if cache.Get("rk_abc12345").NeedsRefresh {
		t.Fatal("claim is held, second caller must not refresh")
	}

	cache.AbortRefresh("rk_abc12345")
	if !cache.Get("rk_abc12345").NeedsRefresh {
		t.Fatal("expected claim to be available again after abort")
	}
}

func TestCache_Delete(t *testing.T) {
	cache := NewAuthCache(1 * time.Minute)
	cache.Set("rk_abc12345", &OrgContext{OrgID: "org-1"})
	cache.Delete("rk_abc12345")

	if cache.Get("rk_abc12345").Hit {
		t.Error("expected miss after delete")
	}
}
