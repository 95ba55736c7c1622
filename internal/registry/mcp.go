package registry

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

const (
	TransportStreamableHTTP = "streamable_http"
	TransportStdio          = "stdio"

	defaultCallTimeout = 60 * time.Second
	toolCacheTTL       = 60 * time.Second
	discoveryTimeout   = 10 * time.Second
)

// ServerConfig describes one upstream MCP server.
type ServerConfig struct {
	Name      string        `json:"name" yaml:"name"`
	Transport string        `json:"transport" yaml:"transport"`
	Endpoint  string        `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Command   string        `json:"command,omitempty" yaml:"command,omitempty"`
	Args      []string      `json:"args,omitempty" yaml:"args,omitempty"`
	Catalog   string        `json:"catalog,omitempty" yaml:"catalog,omitempty"`
	Timeout   time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// authRoundTripper injects the per-call credential as a bearer token unless
// the request already carries one.
type authRoundTripper struct {
	base          http.RoundTripper
	authorization string
}

func (rt *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	base := rt.base
	if base == nil {
		base = http.DefaultTransport
	}
	if rt.authorization == "" {
		return base.RoundTrip(req)
	}
	cloned := req.Clone(req.Context())
	cloned.Header = req.Header.Clone()
	if cloned.Header.Get("Authorization") == "" {
		cloned.Header.Set("Authorization", rt.authorization)
	}
	return base.RoundTrip(cloned)
}

// MCP is a Registry over one or more MCP servers. Discovery results are
// cached with a TTL; call sessions are opened per invocation so each call
// carries its own credential.
type MCP struct {
	servers  map[string]ServerConfig
	order    []string
	cacheTTL time.Duration
	logger   *zap.Logger

	mu        sync.Mutex
	tools     map[string]Tool
	fetchedAt time.Time
}

func NewMCP(servers []ServerConfig, logger *zap.Logger) *MCP {
	byName := make(map[string]ServerConfig, len(servers))
	order := make([]string, 0, len(servers))
	for _, s := range servers {
		if s.Catalog == "" {
			s.Catalog = s.Name
		}
		if s.Timeout <= 0 {
			s.Timeout = defaultCallTimeout
		}
		byName[s.Name] = s
		order = append(order, s.Name)
	}
	return &MCP{
		servers:  byName,
		order:    order,
		cacheTTL: toolCacheTTL,
		logger:   logger,
	}
}

func (m *MCP) GetTool(ctx context.Context, toolID string) (*Tool, error) {
	tools, err := m.snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetTool: %w", err)
	}
	t, ok := tools[toolID]
	if !ok {
		return nil, nil
	}
	out := t
	return &out, nil
}

func (m *MCP) ListTools(ctx context.Context) ([]Tool, error) {
	tools, err := m.snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListTools: %w", err)
	}
	out := make([]Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MCP) Invoke(ctx context.Context, toolID string, args map[string]any, credential string) (string, error) {
	serverName, name, ok := SplitToolID(toolID)
	if !ok {
		return "", fmt.Errorf("Invoke: malformed tool id %q", toolID)
	}
	server, found := m.servers[serverName]
	if !found {
		return "", fmt.Errorf("Invoke %s: %w", toolID, ErrToolNotFound)
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, server.Timeout)
		defer cancel()
	}

	session, err := m.session(ctx, server, credential)
	if err != nil {
		return "", &UpstreamError{ToolID: toolID, Err: err}
	}
	defer session.Close()

	result, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return "", &UpstreamError{ToolID: toolID, Err: err}
	}
	return formatResult(result)
}

func (m *MCP) session(ctx context.Context, server ServerConfig, credential string) (*mcp.ClientSession, error) {
	client := mcp.NewClient(&mcp.Implementation{
		Name:    "rampart",
		Version: "1.0.0",
	}, nil)

	switch server.Transport {
	case TransportStdio:
		cmd := exec.CommandContext(ctx, server.Command, server.Args...)
		session, err := client.Connect(ctx, &mcp.CommandTransport{Command: cmd}, nil)
		if err != nil {
			return nil, fmt.Errorf("connect %s: %w", server.Name, err)
		}
		return session, nil
	case TransportStreamableHTTP:
		authorization := ""
		if credential != "" {
			authorization = "Bearer " + credential
		}
		httpClient := &http.Client{
			Timeout: server.Timeout,
			Transport: &authRoundTripper{
				base:          http.DefaultTransport,
				authorization: authorization,
			},
		}
		session, err := client.Connect(ctx, &mcp.StreamableClientTransport{
			Endpoint:   server.Endpoint,
			HTTPClient: httpClient,
			MaxRetries: 3,
		}, nil)
		if err != nil {
			return nil, fmt.Errorf("connect %s: %w", server.Name, err)
		}
		return session, nil
	default:
		return nil, fmt.Errorf("unsupported transport %q for server %s", server.Transport, server.Name)
	}
}

// snapshot returns the cached tool map, refreshing it when the TTL lapsed.
// A failed refresh serves the previous snapshot rather than nothing.
func (m *MCP) snapshot(ctx context.Context) (map[string]Tool, error) {
	m.mu.Lock()
	if m.tools != nil && time.Since(m.fetchedAt) < m.cacheTTL {
		tools := m.tools
		m.mu.Unlock()
		return tools, nil
	}
	m.mu.Unlock()

	tools, err := m.discover(ctx)
	if err != nil {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.tools != nil {
			m.logger.Warn("tool discovery failed, serving stale catalog", zap.Error(err))
			return m.tools, nil
		}
		return nil, err
	}

	m.mu.Lock()
	m.tools = tools
	m.fetchedAt = time.Now()
	m.mu.Unlock()
	return tools, nil
}

func (m *MCP) discover(ctx context.Context) (map[string]Tool, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, discoveryTimeout)
		defer cancel()
	}

	tools := make(map[string]Tool)
	var firstErr error
	for _, name := range m.order {
		server := m.servers[name]
		defs, err := m.discoverServer(ctx, server)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			m.logger.Warn("tool discovery failed for server",
				zap.String("server", server.Name), zap.Error(err))
			continue
		}
		for _, t := range defs {
			tools[t.ID] = t
		}
	}
	if len(tools) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return tools, nil
}

func (m *MCP) discoverServer(ctx context.Context, server ServerConfig) ([]Tool, error) {
	session, err := m.session(ctx, server, "")
	if err != nil {
		return nil, err
	}
	defer session.Close()

	seen := make(map[string]struct{})
	var defs []Tool
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("list tools from %s: %w", server.Name, err)
		}
		if tool == nil {
			continue
		}
		name := strings.TrimSpace(tool.Name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}

		defs = append(defs, Tool{
			ID:          MakeToolID(server.Name, name),
			Server:      server.Name,
			Name:        name,
			Description: strings.TrimSpace(tool.Description),
			InputSchema: schemaToMap(tool.InputSchema),
			Catalog:     server.Catalog,
		})
	}
	return defs, nil
}

func schemaToMap(schema any) map[string]any {
	switch v := schema.(type) {
	case nil:
		return nil
	case map[string]any:
		return v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		var out map[string]any
		if err := json.Unmarshal(encoded, &out); err != nil {
			return nil
		}
		return out
	}
}

// formatResult renders an MCP result as text for policy matching. A lone
// successful text content passes through untouched; tool-level errors get an
// is_error envelope; everything else becomes a JSON envelope of typed items.
func formatResult(result *mcp.CallToolResult) (string, error) {
	if result == nil {
		return "{}", nil
	}

	if len(result.Content) == 1 {
		if text, ok := result.Content[0].(*mcp.TextContent); ok {
			trimmed := strings.TrimSpace(text.Text)
			if trimmed != "" {
				if !result.IsError {
					return trimmed, nil
				}
				wrapped, err := json.Marshal(map[string]any{"is_error": true, "text": trimmed})
				if err != nil {
					return "", fmt.Errorf("encode tool error: %w", err)
				}
				return string(wrapped), nil
			}
		}
	}

	items := make([]map[string]any, 0, len(result.Content))
	for _, c := range result.Content {
		items = append(items, contentItem(c))
	}
	envelope := map[string]any{"content": items}
	if result.IsError {
		envelope["is_error"] = true
	}
	encoded, err := json.Marshal(envelope)
	if err != nil {
		return "", fmt.Errorf("encode tool result: %w", err)
	}
	return string(encoded), nil
}

func contentItem(c mcp.Content) map[string]any {
	switch v := c.(type) {
	case *mcp.TextContent:
		return map[string]any{"type": "text", "text": v.Text}
	case *mcp.ImageContent:
		return map[string]any{
			"type":     "image",
			"mimeType": v.MIMEType,
			"data":     base64.StdEncoding.EncodeToString(v.Data),
		}
	case *mcp.AudioContent:
		return map[string]any{
			"type":     "audio",
			"mimeType": v.MIMEType,
			"data":     base64.StdEncoding.EncodeToString(v.Data),
		}
	case *mcp.EmbeddedResource:
		item := map[string]any{"type": "resource"}
		if v.Resource != nil {
			item["uri"] = v.Resource.URI
			if v.Resource.MIMEType != "" {
				item["mimeType"] = v.Resource.MIMEType
			}
			if v.Resource.Text != "" {
				item["text"] = v.Resource.Text
			}
			if len(v.Resource.Blob) > 0 {
				item["data"] = base64.StdEncoding.EncodeToString(v.Resource.Blob)
			}
		}
		return item
	default:
		return map[string]any{"type": "unknown"}
	}
}
