package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// KeyStore abstracts the api_keys lookup for testability.
type KeyStore interface {
	LookupByPrefix(ctx context.Context, prefix string) (*keyRow, error)
}

type keyRow struct {
	OrgID    string
	KeyHash  string
	FailOpen bool
}

// sqlKeyStore is the real implementation using *sql.DB.
type sqlKeyStore struct {
	db *sql.DB
}

func (s *sqlKeyStore) LookupByPrefix(ctx context.Context, prefix string) (*keyRow, error) {
	row := &keyRow{}
	err := s.db.QueryRowContext(ctx, `
		SELECT org_id, key_hash, fail_open
		FROM api_keys
		WHERE key_prefix = $1
	`, prefix).Scan(&row.OrgID, &row.KeyHash, &row.FailOpen)
	if err != nil {
		if err == sql.ErrNoRows {
			// No key with this prefix. A key nobody issued is rejected even
			// in fail-open mode.
			return nil, ErrInvalidAPIKey
		}
		return nil, fmt.Errorf("sqlKeyStore.LookupByPrefix: %w", err)
	}
	return row, nil
}

// PostgresAuthenticator validates API keys against the api_keys table.
// Uses AuthCache with stale-while-revalidate to keep DB + bcrypt off the
// hot path. FailOpen only covers infrastructure failures; a key that is
// present and wrong is always rejected.
type PostgresAuthenticator struct {
	store    KeyStore
	cache    *AuthCache
	logger   *zap.Logger
	failOpen bool
}

// PostgresAuthConfig configures the PostgresAuthenticator.
type PostgresAuthConfig struct {
	DB       *sql.DB
	CacheTTL time.Duration
	FailOpen bool
	Logger   *zap.Logger
}

func NewPostgresAuthenticator(cfg PostgresAuthConfig) *PostgresAuthenticator {
	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = 30 * time.Second
	}
	return &PostgresAuthenticator{
		store:    &sqlKeyStore{db: cfg.DB},
		cache:    NewAuthCache(ttl),
		logger:   cfg.Logger,
		failOpen: cfg.FailOpen,
	}
}

// NewPostgresAuthenticatorWithStore creates an authenticator with a custom
// store (for testing).
func NewPostgresAuthenticatorWithStore(store KeyStore, cacheTTL time.Duration, failOpen bool, logger *zap.Logger) *PostgresAuthenticator {
	if cacheTTL == 0 {
		cacheTTL = 30 * time.Second
	}
	return &PostgresAuthenticator{
		store:    store,
		cache:    NewAuthCache(cacheTTL),
		logger:   logger,
		failOpen: failOpen,
	}
}

func (a *PostgresAuthenticator) Authenticate(ctx context.Context, token string) (*OrgContext, error) {
	cacheResult := a.cache.Get(token)
	if cacheResult.Hit {
		if cacheResult.NeedsRefresh {
			go a.refreshInBackground(token)
		}
		return cacheResult.Org, nil
	}

	org, err := a.authenticateFromDB(ctx, token)
	if err != nil {
		if a.failOpen && !errors.Is(err, ErrInvalidAPIKey) {
			a.logger.Warn("auth lookup failed, degrading to fail-open", zap.Error(err))
			return &OrgContext{FailOpen: true}, nil
		}
		return nil, fmt.Errorf("Authenticate: %w", err)
	}

	a.cache.Set(token, org)
	return org, nil
}

func (a *PostgresAuthenticator) authenticateFromDB(ctx context.Context, token string) (*OrgContext, error) {
	if len(token) < prefixLen {
		return nil, ErrInvalidAPIKey
	}
	prefix := token[:prefixLen]

	row, err := a.store.LookupByPrefix(ctx, prefix)
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(row.KeyHash), []byte(token)); err != nil {
		return nil, ErrInvalidAPIKey
	}

	return &OrgContext{
		OrgID:    row.OrgID,
		FailOpen: row.FailOpen,
	}, nil
}

func (a *PostgresAuthenticator) refreshInBackground(token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	org, err := a.authenticateFromDB(ctx, token)
	if err != nil {
		if errors.Is(err, ErrInvalidAPIKey) {
			// The key was revoked. Drop it so the next request
			// re-authenticates instead of riding the stale entry.
			a.cache.Delete(token)
			return
		}
		a.logger.Warn("background auth refresh failed", zap.Error(err))
		a.cache.AbortRefresh(token)
		return
	}
	a.cache.Set(token, org)
}
