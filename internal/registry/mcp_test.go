package registry

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

func TestFormatResult_SingleTextPassesThrough(t *testing.T) {
	cases := []struct {
		name string
		text string
	}{
		{"plain text", "Artifact uploaded."},
		{"json text", `{"count": 3, "items": ["a", "b"]}`},
		{"padded text", "  done  "},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: tc.text}},
			}
			out, err := formatResult(result)
			if err != nil {
				t.Fatalf("formatResult: %v", err)
			}
			if out != strings.TrimSpace(tc.text) {
				t.Fatalf("expected passthrough, got %q", out)
			}
		})
	}
}

func TestFormatResult_ToolErrorGetsEnvelope(t *testing.T) {
	result := &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: "index out of range"}},
	}
	out, err := formatResult(result)
	if err != nil {
		t.Fatalf("formatResult: %v", err)
	}

	var envelope map[string]any
	if err := json.Unmarshal([]byte(out), &envelope); err != nil {
		t.Fatalf("expected JSON envelope, got %q", out)
	}
	if envelope["is_error"] != true {
		t.Fatalf("expected is_error true, got %v", envelope["is_error"])
	}
	if envelope["text"] != "index out of range" {
		t.Fatalf("expected error text, got %v", envelope["text"])
	}
}

func TestFormatResult_MultiContentEnvelope(t *testing.T) {
	result := &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: "caption"},
			&mcp.ImageContent{MIMEType: "image/png", Data: []byte{1, 2, 3}},
		},
	}
	out, err := formatResult(result)
	if err != nil {
		t.Fatalf("formatResult: %v", err)
	}

	var envelope struct {
		Content []map[string]any `json:"content"`
	}
	if err := json.Unmarshal([]byte(out), &envelope); err != nil {
		t.Fatalf("expected JSON envelope, got %q", out)
	}
	if len(envelope.Content) != 2 {
		t.Fatalf("expected 2 items, got %d", len(envelope.Content))
	}
	if envelope.Content[0]["type"] != "text" || envelope.Content[0]["text"] != "caption" {
		t.Fatalf("unexpected text item %v", envelope.Content[0])
	}
	if envelope.Content[1]["type"] != "image" || envelope.Content[1]["mimeType"] != "image/png" {
		t.Fatalf("unexpected image item %v", envelope.Content[1])
	}
	if envelope.Content[1]["data"] != "AQID" {
		t.Fatalf("expected base64 data, got %v", envelope.Content[1]["data"])
	}
}

func TestFormatResult_EmbeddedResource(t *testing.T) {
	result := &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: "see attachment"},
			&mcp.EmbeddedResource{Resource: &mcp.ResourceContents{
				URI:      "file:///notes.txt",
				MIMEType: "text/plain",
				Text:     "meeting at 10",
			}},
		},
	}
	out, err := formatResult(result)
	if err != nil {
		t.Fatalf("formatResult: %v", err)
	}

	var envelope struct {
		Content []map[string]any `json:"content"`
	}
	if err := json.Unmarshal([]byte(out), &envelope); err != nil {
		t.Fatalf("expected JSON envelope, got %q", out)
	}
	item := envelope.Content[1]
	if item["type"] != "resource" || item["uri"] != "file:///notes.txt" || item["text"] != "meeting at 10" {
		t.Fatalf("unexpected resource item %v", item)
	}
}

func TestFormatResult_EmptyCases(t *testing.T) {
	out, err := formatResult(nil)
	if err != nil {
		t.Fatalf("formatResult: %v", err)
	}
	if out != "{}" {
		t.Fatalf("expected {} for nil result, got %q", out)
	}

	out, err = formatResult(&mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: "   "}},
	})
	if err != nil {
		t.Fatalf("formatResult: %v", err)
	}
	var envelope map[string]any
	if err := json.Unmarshal([]byte(out), &envelope); err != nil {
		t.Fatalf("expected envelope for blank text, got %q", out)
	}
}

func TestSchemaToMap(t *testing.T) {
	if got := schemaToMap(nil); got != nil {
		t.Fatalf("expected nil for nil schema, got %v", got)
	}

	direct := map[string]any{"type": "object"}
	if got := schemaToMap(direct); got["type"] != "object" {
		t.Fatalf("expected map passthrough, got %v", got)
	}

	typed := struct {
		Type     string   `json:"type"`
		Required []string `json:"required"`
	}{Type: "object", Required: []string{"title"}}
	got := schemaToMap(typed)
	if got == nil || got["type"] != "object" {
		t.Fatalf("expected round-tripped schema, got %v", got)
	}

	if got := schemaToMap(make(chan int)); got != nil {
		t.Fatalf("expected nil for unencodable schema, got %v", got)
	}
}

func TestAuthRoundTripper(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	client := &http.Client{Transport: &authRoundTripper{authorization: "Bearer tok-1"}}
	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if got != "Bearer tok-1" {
		t.Fatalf("expected injected credential, got %q", got)
	}

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer preset")
	resp, err = client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if got != "Bearer preset" {
		t.Fatalf("expected existing header kept, got %q", got)
	}

	bare := &http.Client{Transport: &authRoundTripper{}}
	resp, err = bare.Get(srv.URL)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if got != "" {
		t.Fatalf("expected no header without credential, got %q", got)
	}
}

func TestNewMCP_Defaults(t *testing.T) {
	m := NewMCP([]ServerConfig{{Name: "gh", Transport: TransportStreamableHTTP, Endpoint: "http://localhost:1"}}, zap.NewNop())
	server := m.servers["gh"]
	if server.Catalog != "gh" {
		t.Fatalf("expected catalog to default to name, got %s", server.Catalog)
	}
	if server.Timeout != defaultCallTimeout {
		t.Fatalf("expected default timeout, got %v", server.Timeout)
	}
}

func TestMCP_InvokeBadIDs(t *testing.T) {
	m := NewMCP([]ServerConfig{{Name: "gh", Transport: TransportStreamableHTTP, Endpoint: "http://localhost:1"}}, zap.NewNop())

	if _, err := m.Invoke(context.Background(), "noseparator", nil, ""); err == nil {
		t.Fatal("expected error for malformed id")
	}

	_, err := m.Invoke(context.Background(), "jira__create_issue", nil, "")
	if !errors.Is(err, ErrToolNotFound) {
		t.Fatalf("expected ErrToolNotFound for unknown server, got %v", err)
	}
}

func TestMCP_UnsupportedTransport(t *testing.T) {
	m := NewMCP([]ServerConfig{{Name: "gh", Transport: "carrier_pigeon"}}, zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := m.Invoke(ctx, "gh__whoami", nil, "")
	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if !strings.Contains(err.Error(), "carrier_pigeon") {
		t.Fatalf("expected transport name in error, got %v", err)
	}
}
