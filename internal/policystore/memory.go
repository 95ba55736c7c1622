package policystore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rampart-ai/rampart/internal/policy"
)

// Memory is an in-memory Store for tests and no-database mode. Slices keep
// insertion order, which doubles as creation order.
type Memory struct {
	mu  sync.RWMutex
	inv []policy.InvocationPolicy
	res []policy.ResultPolicy
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) ListInvocationPolicies(_ context.Context, orgID, toolID string) ([]policy.InvocationPolicy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []policy.InvocationPolicy
	for _, p := range m.inv {
		if p.OrgID == orgID && p.ToolID == toolID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *Memory) ListResultPolicies(_ context.Context, orgID, toolID string) ([]policy.ResultPolicy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []policy.ResultPolicy
	for _, p := range m.res {
		if p.OrgID == orgID && p.ToolID == toolID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *Memory) CreateInvocationPolicy(_ context.Context, p policy.InvocationPolicy) (*policy.InvocationPolicy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stamp(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	m.inv = append(m.inv, p)
	return &p, nil
}

func (m *Memory) CreateResultPolicy(_ context.Context, p policy.ResultPolicy) (*policy.ResultPolicy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stamp(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	m.res = append(m.res, p)
	return &p, nil
}

func (m *Memory) UpdateInvocationPolicy(_ context.Context, id string, params UpdateInvocationPolicyParams) (*policy.InvocationPolicy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.inv {
		if m.inv[i].ID != id {
			continue
		}
		if params.Conditions != nil {
			m.inv[i].Conditions = *params.Conditions
		}
		if params.Action != nil {
			m.inv[i].Action = *params.Action
		}
		if params.Reason != nil {
			m.inv[i].Reason = *params.Reason
		}
		m.inv[i].UpdatedAt = time.Now().UTC()
		p := m.inv[i]
		return &p, nil
	}
	return nil, nil
}

func (m *Memory) UpdateResultPolicy(_ context.Context, id string, params UpdateResultPolicyParams) (*policy.ResultPolicy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.res {
		if m.res[i].ID != id {
			continue
		}
		if params.Conditions != nil {
			m.res[i].Conditions = *params.Conditions
		}
		if params.Action != nil {
			m.res[i].Action = *params.Action
		}
		if params.Reason != nil {
			m.res[i].Reason = *params.Reason
		}
		m.res[i].UpdatedAt = time.Now().UTC()
		p := m.res[i]
		return &p, nil
	}
	return nil, nil
}

func (m *Memory) DeleteInvocationPolicy(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.inv {
		if m.inv[i].ID == id {
			m.inv = append(m.inv[:i], m.inv[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) DeleteResultPolicy(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.res {
		if m.res[i].ID == id {
			m.res = append(m.res[:i], m.res[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) SetDefaultInvocationPolicies(_ context.Context, orgID string, toolIDs []string, action policy.InvocationAction, reason string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, toolID := range toolIDs {
		kept := m.inv[:0:0]
		for _, p := range m.inv {
			if p.OrgID == orgID && p.ToolID == toolID && len(p.Conditions) == 0 {
				continue
			}
			kept = append(kept, p)
		}
		m.inv = kept
		p := policy.InvocationPolicy{OrgID: orgID, ToolID: toolID, Action: action, Reason: reason}
		stamp(&p.ID, &p.CreatedAt, &p.UpdatedAt)
		m.inv = append(m.inv, p)
	}
	return len(toolIDs), nil
}

func (m *Memory) SetDefaultResultPolicies(_ context.Context, orgID string, toolIDs []string, action policy.ResultAction, reason string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, toolID := range toolIDs {
		kept := m.res[:0:0]
		for _, p := range m.res {
			if p.OrgID == orgID && p.ToolID == toolID && len(p.Conditions) == 0 {
				continue
			}
			kept = append(kept, p)
		}
		m.res = kept
		p := policy.ResultPolicy{OrgID: orgID, ToolID: toolID, Action: action, Reason: reason}
		stamp(&p.ID, &p.CreatedAt, &p.UpdatedAt)
		m.res = append(m.res, p)
	}
	return len(toolIDs), nil
}

func stamp(id *string, createdAt, updatedAt *time.Time) {
	if *id == "" {
		*id = uuid.New().String()
	}
	now := time.Now().UTC()
	if createdAt.IsZero() {
		*createdAt = now
	}
	*updatedAt = now
}
