package quarantine

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryConfigStore is an in-memory ConfigStore for tests and no-database
// mode.
type MemoryConfigStore struct {
	mu      sync.RWMutex
	configs map[string]Config
}

func NewMemoryConfigStore() *MemoryConfigStore {
	return &MemoryConfigStore{configs: make(map[string]Config)}
}

func (m *MemoryConfigStore) GetConfig(_ context.Context, orgID string) (*Config, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg, ok := m.configs[orgID]
	if !ok {
		return nil, nil
	}
	out := cfg
	return &out, nil
}

func (m *MemoryConfigStore) UpsertConfig(_ context.Context, cfg Config) (*Config, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("UpsertConfig: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if existing, ok := m.configs[cfg.OrgID]; ok {
		cfg.CreatedAt = existing.CreatedAt
	} else {
		cfg.CreatedAt = now
	}
	cfg.UpdatedAt = now
	m.configs[cfg.OrgID] = cfg
	out := cfg
	return &out, nil
}

func (m *MemoryConfigStore) EnsureDefault(_ context.Context, orgID string) (*Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.configs[orgID]; ok {
		out := existing
		return &out, nil
	}
	cfg := DefaultConfig(orgID)
	now := time.Now().UTC()
	cfg.CreatedAt = now
	cfg.UpdatedAt = now
	m.configs[orgID] = cfg
	out := cfg
	return &out, nil
}
