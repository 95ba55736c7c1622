package credential

import (
	"context"
	"errors"
)

// Directory answers the visibility questions resolution needs. Lookups that
// find nothing return (nil, nil); credential getters return the earliest
// created match.
type Directory interface {
	GetProfile(ctx context.Context, id string) (*Profile, error)

	// ListProfileTeams returns team ids in the order they were linked to
	// the profile.
	ListProfileTeams(ctx context.Context, profileID string) ([]string, error)

	// ListUserTeams returns the ids of teams the user is a member of.
	ListUserTeams(ctx context.Context, userID string) ([]string, error)

	GetPersonalCredential(ctx context.Context, orgID, userID, catalog string) (*Credential, error)
	GetTeamCredential(ctx context.Context, orgID, teamID, catalog string) (*Credential, error)
}

// ErrSecretNotFound is returned by SecretStore.GetSecret for a dangling
// reference.
var ErrSecretNotFound = errors.New("secret not found")

// SecretStore is the opaque vault holding secret values keyed by reference.
// Population happens through installation flows; the pipeline only reads.
type SecretStore interface {
	GetSecret(ctx context.Context, ref string) (string, error)
	PutSecret(ctx context.Context, ref, value string) error
	DeleteSecret(ctx context.Context, ref string) error
}
