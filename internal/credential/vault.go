package credential

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// SealedVault stores secret values in Postgres sealed with
// XChaCha20-Poly1305. Each row carries its random nonce prefixed to the
// ciphertext.
type SealedVault struct {
	db   *sql.DB
	aead cipher.AEAD
}

// NewSealedVault builds a vault over the given database. The key must be
// exactly 32 bytes.
func NewSealedVault(db *sql.DB, key []byte) (*SealedVault, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("NewSealedVault: %w", err)
	}
	return &SealedVault{db: db, aead: aead}, nil
}

func (v *SealedVault) GetSecret(ctx context.Context, ref string) (string, error) {
	var sealed []byte
	err := v.db.QueryRowContext(ctx, `SELECT value FROM secrets WHERE ref = $1`, ref).Scan(&sealed)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("GetSecret %q: %w", ref, ErrSecretNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("GetSecret: %w", err)
	}
	value, err := v.open(sealed)
	if err != nil {
		return "", fmt.Errorf("GetSecret %q: %w", ref, err)
	}
	return value, nil
}

func (v *SealedVault) PutSecret(ctx context.Context, ref, value string) error {
	sealed, err := v.seal(value)
	if err != nil {
		return fmt.Errorf("PutSecret: %w", err)
	}

	query := `
		INSERT INTO secrets (ref, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (ref) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`

	if _, err := v.db.ExecContext(ctx, query, ref, sealed); err != nil {
		return fmt.Errorf("PutSecret: %w", err)
	}
	return nil
}

func (v *SealedVault) DeleteSecret(ctx context.Context, ref string) error {
	if _, err := v.db.ExecContext(ctx, `DELETE FROM secrets WHERE ref = $1`, ref); err != nil {
		return fmt.Errorf("DeleteSecret: %w", err)
	}
	return nil
}

func (v *SealedVault) seal(value string) ([]byte, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return v.aead.Seal(nonce, nonce, []byte(value), nil), nil
}

func (v *SealedVault) open(sealed []byte) (string, error) {
	if len(sealed) < v.aead.NonceSize() {
		return "", errors.New("sealed value too short")
	}
	nonce, box := sealed[:v.aead.NonceSize()], sealed[v.aead.NonceSize():]
	plain, err := v.aead.Open(nil, nonce, box, nil)
	if err != nil {
		return "", fmt.Errorf("open sealed value: %w", err)
	}
	return string(plain), nil
}
