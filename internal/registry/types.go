// Package registry exposes the catalog of invokable tools and performs the
// actual upstream calls. Tool ids are "<server>__<name>" so policies can
// target one tool across servers unambiguously.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Tool describes one invokable tool published by an upstream server.
type Tool struct {
	ID          string         `json:"id"`
	Server      string         `json:"server"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema,omitempty"`

	// Catalog is the catalog item credentials bind to. Defaults to the
	// server name.
	Catalog string `json:"catalog"`
}

// Registry is what the gateway needs from the tool catalog. GetTool returns
// (nil, nil) for an unknown id; Invoke returns the result rendered as text.
type Registry interface {
	GetTool(ctx context.Context, toolID string) (*Tool, error)
	ListTools(ctx context.Context) ([]Tool, error)
	Invoke(ctx context.Context, toolID string, args map[string]any, credential string) (string, error)
}

// ErrToolNotFound is returned by Invoke for ids no server publishes.
var ErrToolNotFound = errors.New("tool not found")

const toolIDSeparator = "__"

// MakeToolID joins a server name and tool name into the canonical id.
func MakeToolID(server, name string) string {
	return server + toolIDSeparator + name
}

// SplitToolID splits a canonical id back into server and tool name.
func SplitToolID(toolID string) (server, name string, ok bool) {
	server, name, ok = strings.Cut(toolID, toolIDSeparator)
	if !ok || server == "" || name == "" {
		return "", "", false
	}
	return server, name, true
}

// UpstreamError wraps a failure of the external tool call itself, distinct
// from policy and trust errors.
type UpstreamError struct {
	ToolID string
	Err    error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream tool %s: %v", e.ToolID, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// InvalidArgumentsError reports arguments that failed the tool's input
// schema before any upstream call was made.
type InvalidArgumentsError struct {
	ToolID string
	Err    error
}

func (e *InvalidArgumentsError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %v", e.ToolID, e.Err)
}

func (e *InvalidArgumentsError) Unwrap() error {
	return e.Err
}
