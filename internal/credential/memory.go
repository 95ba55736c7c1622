package credential

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemoryDirectory is an in-memory Directory for tests and no-database mode.
// Slice order stands in for creation and linkage order.
type MemoryDirectory struct {
	mu           sync.RWMutex
	profiles     map[string]Profile
	profileTeams map[string][]string
	userTeams    map[string][]string
	creds        []Credential
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		profiles:     make(map[string]Profile),
		profileTeams: make(map[string][]string),
		userTeams:    make(map[string][]string),
	}
}

// AddProfile registers a profile, assigning an id when missing.
func (m *MemoryDirectory) AddProfile(p Profile) Profile {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	m.profiles[p.ID] = p
	return p
}

// LinkTeam appends a team to the profile's linkage order.
func (m *MemoryDirectory) LinkTeam(profileID, teamID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profileTeams[profileID] = append(m.profileTeams[profileID], teamID)
}

// AddTeamMember records team membership for a user.
func (m *MemoryDirectory) AddTeamMember(teamID, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userTeams[userID] = append(m.userTeams[userID], teamID)
}

// AddCredential appends a credential; append order is creation order.
func (m *MemoryDirectory) AddCredential(c Credential) Credential {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	m.creds = append(m.creds, c)
	return c
}

func (m *MemoryDirectory) GetProfile(_ context.Context, id string) (*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, nil
	}
	out := p
	return &out, nil
}

func (m *MemoryDirectory) ListProfileTeams(_ context.Context, profileID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.profileTeams[profileID]...), nil
}

func (m *MemoryDirectory) ListUserTeams(_ context.Context, userID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.userTeams[userID]...), nil
}

func (m *MemoryDirectory) GetPersonalCredential(_ context.Context, orgID, userID, catalog string) (*Credential, error) {
	return m.firstCredential(orgID, OwnerPersonal, userID, catalog)
}

func (m *MemoryDirectory) GetTeamCredential(_ context.Context, orgID, teamID, catalog string) (*Credential, error) {
	return m.firstCredential(orgID, OwnerTeam, teamID, catalog)
}

func (m *MemoryDirectory) firstCredential(orgID string, owner OwnerKind, ownerID, catalog string) (*Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := range m.creds {
		c := m.creds[i]
		if c.OrgID == orgID && c.Owner == owner && c.OwnerID == ownerID && c.Catalog == catalog {
			out := c
			return &out, nil
		}
	}
	return nil, nil
}

// MemoryVault is an in-memory SecretStore.
type MemoryVault struct {
	mu      sync.RWMutex
	secrets map[string]string
}

func NewMemoryVault() *MemoryVault {
	return &MemoryVault{secrets: make(map[string]string)}
}

func (v *MemoryVault) GetSecret(_ context.Context, ref string) (string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	value, ok := v.secrets[ref]
	if !ok {
		return "", fmt.Errorf("GetSecret %q: %w", ref, ErrSecretNotFound)
	}
	return value, nil
}

func (v *MemoryVault) PutSecret(_ context.Context, ref, value string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.secrets[ref] = value
	return nil
}

func (v *MemoryVault) DeleteSecret(_ context.Context, ref string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.secrets, ref)
	return nil
}
