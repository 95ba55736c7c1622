// Package auth validates the API keys guarding the execute surface. Keys
// look like "rk_..." and map to one organization.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

var (
	ErrMissingAPIKey = errors.New("missing authorization header")
	ErrInvalidAPIKey = errors.New("invalid API key")
)

const keyPrefix = "rk_"

// prefixLen is how many leading characters index the api_keys table.
const prefixLen = 8

// OrgContext is the authenticated caller. An empty OrgID means the key was
// accepted without binding to one organization (static auth or fail-open);
// handlers then skip the org match check.
type OrgContext struct {
	OrgID    string
	FailOpen bool
}

// Authenticator validates a bearer token.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*OrgContext, error)
}

// ExtractBearerToken pulls the rk_ API key from the Authorization header.
func ExtractBearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingAPIKey
	}

	token := header
	// RFC 6750: the "Bearer" scheme is case-insensitive.
	if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
		token = token[7:]
	}
	token = strings.TrimSpace(token)

	if !strings.HasPrefix(token, keyPrefix) || len(token) < prefixLen {
		return "", ErrInvalidAPIKey
	}
	return token, nil
}

// StaticAuthenticator accepts any well-formed rk_ key without binding it to
// an organization. For development and single-tenant setups only.
type StaticAuthenticator struct{}

func NewStaticAuthenticator() *StaticAuthenticator {
	return &StaticAuthenticator{}
}

func (a *StaticAuthenticator) Authenticate(_ context.Context, token string) (*OrgContext, error) {
	if !strings.HasPrefix(token, keyPrefix) || len(token) < prefixLen {
		return nil, ErrInvalidAPIKey
	}
	return &OrgContext{FailOpen: true}, nil
}
