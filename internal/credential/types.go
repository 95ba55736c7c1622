// Package credential selects the secret backing a tool call and resolves
// secret references against the vault. Visibility is scoped by the caller's
// active profile: personal credentials when the profile allows them, then
// team credentials in the order teams were linked to the profile.
package credential

import (
	"errors"
	"fmt"
	"time"
)

// OwnerKind says whether a credential belongs to a single user or a team.
type OwnerKind uint8

const (
	OwnerPersonal OwnerKind = iota
	OwnerTeam
)

var ownerKindNames = map[OwnerKind]string{
	OwnerPersonal: "personal",
	OwnerTeam:     "team",
}

func (k OwnerKind) String() string {
	if s, ok := ownerKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("owner_kind(%d)", uint8(k))
}

// ParseOwnerKind maps the wire name back to an OwnerKind.
func ParseOwnerKind(s string) (OwnerKind, error) {
	for k, name := range ownerKindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown owner kind %q", s)
}

func (k OwnerKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *OwnerKind) UnmarshalText(b []byte) error {
	parsed, err := ParseOwnerKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Credential is a stored binding from a catalog item to a secret reference.
type Credential struct {
	ID        string    `json:"id"`
	OrgID     string    `json:"org_id"`
	Catalog   string    `json:"catalog"`
	Owner     OwnerKind `json:"owner"`
	OwnerID   string    `json:"owner_id"`
	SecretRef string    `json:"secret_ref"`
	CreatedAt time.Time `json:"created_at"`
}

// Profile scopes what a caller can see. Teams are linked to a profile in an
// explicit order; AllowPersonal controls whether the caller's own
// credentials are in scope.
type Profile struct {
	ID            string    `json:"id"`
	OrgID         string    `json:"org_id"`
	UserID        string    `json:"user_id"`
	Name          string    `json:"name"`
	AllowPersonal bool      `json:"allow_personal"`
	CreatedAt     time.Time `json:"created_at"`
}

// Team groups users that share team credentials.
type Team struct {
	ID        string    `json:"id"`
	OrgID     string    `json:"org_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Caller identifies who is making the tool call and through which profile.
type Caller struct {
	OrgID           string `json:"org_id"`
	UserID          string `json:"user_id"`
	ActiveProfileID string `json:"active_profile_id"`
}

// Assignment binds a tool-on-agent pairing to its credential. Either
// SecretRef names the secret directly, or ResolveAtCallTime defers the
// choice to the resolver. The zero value means the tool needs no credential.
type Assignment struct {
	Catalog           string `json:"catalog,omitempty"`
	SecretRef         string `json:"secret_ref,omitempty"`
	ResolveAtCallTime bool   `json:"resolve_at_call_time,omitempty"`
}

// Validate rejects assignments that are ambiguous or unusable.
func (a Assignment) Validate() error {
	if a.ResolveAtCallTime && a.SecretRef != "" {
		return errors.New("assignment cannot carry both an explicit secret_ref and resolve_at_call_time")
	}
	if a.ResolveAtCallTime && a.Catalog == "" {
		return errors.New("resolve_at_call_time assignment requires a catalog")
	}
	return nil
}

// AuthenticationRequiredError reports that no credential for the catalog
// item is visible to the caller. The catalog name is enough for a UI to
// start a credential-setup flow.
type AuthenticationRequiredError struct {
	Catalog string
}

func (e *AuthenticationRequiredError) Error() string {
	return fmt.Sprintf("authentication required for catalog %q", e.Catalog)
}
