package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Handler executes a statically registered tool. The credential is whatever
// the caller resolved for the tool's catalog, or empty.
type Handler func(ctx context.Context, args map[string]any, credential string) (string, error)

// StaticTool pairs a tool definition with its handler.
type StaticTool struct {
	Tool
	Handler Handler
}

// Static is an in-process Registry for tests and built-in tools.
type Static struct {
	mu    sync.RWMutex
	tools map[string]StaticTool
}

func NewStatic() *Static {
	return &Static{tools: make(map[string]StaticTool)}
}

// Register adds or replaces a tool. The id is derived from server and name
// when unset, and the catalog defaults to the server name.
func (s *Static) Register(t StaticTool) {
	if t.ID == "" {
		t.ID = MakeToolID(t.Server, t.Name)
	}
	if t.Catalog == "" {
		t.Catalog = t.Server
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tools[t.ID] = t
}

func (s *Static) GetTool(_ context.Context, toolID string) (*Tool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tools[toolID]
	if !ok {
		return nil, nil
	}
	out := t.Tool
	return &out, nil
}

func (s *Static) ListTools(_ context.Context) ([]Tool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Tool, 0, len(s.tools))
	for _, t := range s.tools {
		out = append(out, t.Tool)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Static) Invoke(ctx context.Context, toolID string, args map[string]any, credential string) (string, error) {
	s.mu.RLock()
	t, ok := s.tools[toolID]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("Invoke %s: %w", toolID, ErrToolNotFound)
	}

	result, err := t.Handler(ctx, args, credential)
	if err != nil {
		return "", &UpstreamError{ToolID: toolID, Err: err}
	}
	return result, nil
}
