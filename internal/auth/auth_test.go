package auth

import (
	"context"
	"errors"
	"net/http"
	"testing"
)

func requestWithAuth(t *testing.T, header string) *http.Request {
	t.Helper()
	r, err := http.NewRequest(http.MethodPost, "/v1/execute", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if header != "" {
		r.Header.Set("Authorization", header)
	}
	return r
}

func TestExtractBearerToken(t *testing.T) {
	cases := []struct {
		name    string
		header  string
		want    string
		wantErr error
	}{
		{"standard bearer", "Bearer rk_abc123456", "rk_abc123456", nil},
		{"lowercase scheme", "bearer rk_abc123456", "rk_abc123456", nil},
		{"bare token", "rk_abc123456", "rk_abc123456", nil},
		{"padded token", "Bearer   rk_abc123456  ", "rk_abc123456", nil},
		{"missing header", "", "", ErrMissingAPIKey},
		{"wrong prefix", "Bearer sk_abc123456", "", ErrInvalidAPIKey},
		{"too short", "Bearer rk_a", "", ErrInvalidAPIKey},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ExtractBearerToken(requestWithAuth(t, tc.header))
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected err %v, got %v", tc.wantErr, err)
			}
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestStaticAuthenticator(t *testing.T) {
	a := NewStaticAuthenticator()

	org, err := a.Authenticate(context.Background(), "rk_dev_key_123")
	if err != nil {
		t.Fatalf("expected rk_ key accepted, got %v", err)
	}
	if org.OrgID != "" {
		t.Fatalf("static auth must not bind an org, got %q", org.OrgID)
	}
	if !org.FailOpen {
		t.Fatal("expected fail-open context")
	}

	if _, err := a.Authenticate(context.Background(), "sk_wrong"); !errors.Is(err, ErrInvalidAPIKey) {
		t.Fatalf("expected ErrInvalidAPIKey, got %v", err)
	}
}
