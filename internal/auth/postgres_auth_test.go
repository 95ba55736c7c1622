package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const testAPIKey = "rk_test_valid_key_1234567890abcdef"

// testHash returns a bcrypt hash of testAPIKey using MinCost (fast for
// tests).
func testHash(t *testing.T) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testAPIKey), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to generate bcrypt hash: %v", err)
	}
	return string(hash)
}

type mockKeyStore struct {
	row       *keyRow
	err       error
	callCount atomic.Int32
}

func (m *mockKeyStore) LookupByPrefix(_ context.Context, _ string) (*keyRow, error) {
	m.callCount.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	return m.row, nil
}

func TestPostgresAuth_ValidKey(t *testing.T) {
	store := &mockKeyStore{row: &keyRow{OrgID: "org-1", KeyHash: testHash(t), FailOpen: true}}
	auth := NewPostgresAuthenticatorWithStore(store, time.Minute, false, zap.NewNop())

	org, err := auth.Authenticate(context.Background(), testAPIKey)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if org.OrgID != "org-1" {
		t.Errorf("expected org-1, got %s", org.OrgID)
	}
	if !org.FailOpen {
		t.Error("expected fail_open=true from the key row")
	}
}

func TestPostgresAuth_WrongKeyRejected(t *testing.T) {
	store := &mockKeyStore{row: &keyRow{OrgID: "org-1", KeyHash: testHash(t)}}
	auth := NewPostgresAuthenticatorWithStore(store, time.Minute, false, zap.NewNop())

	_, err := auth.Authenticate(context.Background(), "rk_test_wrong_key_000000000000000")
	if !errors.Is(err, ErrInvalidAPIKey) {
		t.Fatalf("expected ErrInvalidAPIKey, got %v", err)
	}
}

func TestPostgresAuth_UnknownPrefixRejectedEvenFailOpen(t *testing.T) {
	store := &mockKeyStore{err: ErrInvalidAPIKey}
	auth := NewPostgresAuthenticatorWithStore(store, time.Minute, true, zap.NewNop())

	_, err := auth.Authenticate(context.Background(), testAPIKey)
	if !errors.Is(err, ErrInvalidAPIKey) {
		t.Fatalf("expected rejection for unknown key, got %v", err)
	}
}

func TestPostgresAuth_InfraErrorFailOpen(t *testing.T) {
	store := &mockKeyStore{err: errors.New("connection refused")}

	// Fail-closed: the error surfaces.
	auth := NewPostgresAuthenticatorWithStore(store, time.Minute, false, zap.NewNop())
	if _, err := auth.Authenticate(context.Background(), testAPIKey); err == nil {
		t.Fatal("expected error when fail-open is off")
	}

	// Fail-open: the caller gets an unbound context instead.
	auth = NewPostgresAuthenticatorWithStore(store, time.Minute, true, zap.NewNop())
	org, err := auth.Authenticate(context.Background(), testAPIKey)
	if err != nil {
		t.Fatalf("expected fail-open, got %v", err)
	}
	if org.OrgID != "" {
		t.Fatalf("fail-open context must not bind an org, got %q", org.OrgID)
	}
	if !org.FailOpen {
		t.Fatal("expected FailOpen marker")
	}
}

func TestPostgresAuth_ShortTokenRejected(t *testing.T) {
	store := &mockKeyStore{row: &keyRow{OrgID: "org-1", KeyHash: testHash(t)}}
	auth := NewPostgresAuthenticatorWithStore(store, time.Minute, false, zap.NewNop())

	_, err := auth.Authenticate(context.Background(), "rk_a")
	if !errors.Is(err, ErrInvalidAPIKey) {
		t.Fatalf("expected ErrInvalidAPIKey, got %v", err)
	}
	if store.callCount.Load() != 0 {
		t.Fatal("short token must not hit the store")
	}
}

func TestPostgresAuth_CacheSkipsStore(t *testing.T) {
	store := &mockKeyStore{row: &keyRow{OrgID: "org-1", KeyHash: testHash(t)}}
	auth := NewPostgresAuthenticatorWithStore(store, time.Minute, false, zap.NewNop())

	for i := 0; i < 5; i++ {
		if _, err := auth.Authenticate(context.Background(), testAPIKey); err != nil {
			t.Fatalf("Authenticate: %v", err)
		}
	}
	if got := store.callCount.Load(); got != 1 {
		t.Fatalf("expected a single store lookup, got %d", got)
	}
}

// flipKeyStore lets a test change the lookup outcome mid-flight.
type flipKeyStore struct {
	mu        sync.Mutex
	row       *keyRow
	err       error
	callCount atomic.Int32
}

func (f *flipKeyStore) LookupByPrefix(_ context.Context, _ string) (*keyRow, error) {
	f.callCount.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.row, nil
}

func (f *flipKeyStore) flip(row *keyRow, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.row, f.err = row, err
}

func TestPostgresAuth_RevokedKeyDroppedOnRefresh(t *testing.T) {
	store := &flipKeyStore{row: &keyRow{OrgID: "org-1", KeyHash: testHash(t)}}
	auth := NewPostgresAuthenticatorWithStore(store, 5*time.Millisecond, false, zap.NewNop())

	if _, err := auth.Authenticate(context.Background(), testAPIKey); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	// Revoke the key, then let the cache entry expire.
	store.flip(nil, ErrInvalidAPIKey)
	time.Sleep(10 * time.Millisecond)

	// The stale read may still pass while the background refresh runs, but
	// once the refresh sees the revocation the entry is gone and the key is
	// rejected.
	deadline := time.Now().Add(2 * time.Second)
	for {
		_, err := auth.Authenticate(context.Background(), testAPIKey)
		if errors.Is(err, ErrInvalidAPIKey) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("revoked key still accepted after refresh, last err=%v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPostgresAuth_FailedRefreshRetriesLater(t *testing.T) {
	store := &flipKeyStore{row: &keyRow{OrgID: "org-1", KeyHash: testHash(t)}}
	auth := NewPostgresAuthenticatorWithStore(store, 5*time.Millisecond, false, zap.NewNop())

	if _, err := auth.Authenticate(context.Background(), testAPIKey); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	// First refresh attempt hits an outage and must not wedge the entry.
	store.flip(nil, errors.New("connection refused"))
	time.Sleep(10 * time.Millisecond)
	if _, err := auth.Authenticate(context.Background(), testAPIKey); err != nil {
		t.Fatalf("stale serve during outage: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for store.callCount.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("expected a refresh attempt during the outage")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Outage over: a later stale read claims a fresh refresh and the new
	// row lands.
	store.flip(&keyRow{OrgID: "org-2", KeyHash: testHash(t)}, nil)
	deadline = time.Now().Add(2 * time.Second)
	for {
		org, err := auth.Authenticate(context.Background(), testAPIKey)
		if err != nil {
			t.Fatalf("Authenticate: %v", err)
		}
		if org.OrgID == "org-2" {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("refresh never recovered after outage, still %q", org.OrgID)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPostgresAuth_StaleEntryServedWhileRefreshing(t *testing.T) {
	store := &mockKeyStore{row: &keyRow{OrgID: "org-1", KeyHash: testHash(t)}}
	auth := NewPostgresAuthenticatorWithStore(store, 5*time.Millisecond, false, zap.NewNop())

	if _, err := auth.Authenticate(context.Background(), testAPIKey); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	// Expired entry: served stale, refresh kicked off in the background.
	org, err := auth.Authenticate(context.Background(), testAPIKey)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if org.OrgID != "org-1" {
		t.Fatalf("expected stale context, got %+v", org)
	}

	deadline := time.Now().Add(2 * time.Second)
	for store.callCount.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("expected background refresh, store calls=%d", store.callCount.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}
}
