package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rampart-ai/rampart/internal/api"
	"github.com/rampart-ai/rampart/internal/gateway"
	"github.com/rampart-ai/rampart/internal/policy"
	"github.com/rampart-ai/rampart/internal/quarantine"
	"github.com/rampart-ai/rampart/internal/registry"
)

// adminClient wraps the server's HTTP API. It satisfies the policy pack
// applier's PolicyWriter and ConfigWriter so packs apply through the same
// endpoints the dashboard uses.
type adminClient struct {
	base   string
	apiKey string
	http   *http.Client
}

func newAdminClient(base, apiKey string) *adminClient {
	return &adminClient{
		base:   strings.TrimRight(base, "/"),
		apiKey: apiKey,
		http:   &http.Client{Timeout: 5 * time.Minute},
	}
}

// do runs one JSON round trip. A nil out discards the response body; a 404
// with allowNotFound set reports found=false instead of an error.
func (c *adminClient) do(ctx context.Context, method, path string, body, out any, allowNotFound bool) (found bool, err error) {
	var reqBody *bytes.Buffer
	if body != nil {
		reqBody = &bytes.Buffer{}
		if err := json.NewEncoder(reqBody).Encode(body); err != nil {
			return false, fmt.Errorf("encode request: %w", err)
		}
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reqBody)
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound && allowNotFound {
		return false, nil
	}
	if resp.StatusCode >= 400 {
		var er api.ErrorResp
		if json.NewDecoder(resp.Body).Decode(&er) == nil && er.Detail != "" {
			return false, fmt.Errorf("%s %s: %s", method, path, er.Detail)
		}
		return false, fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return false, fmt.Errorf("%s %s: decode response: %w", method, path, err)
		}
	}
	return true, nil
}

func policiesPath(orgID, toolID, scope string) string {
	return fmt.Sprintf("/api/orgs/%s/tools/%s/policies/%s",
		url.PathEscape(orgID), url.PathEscape(toolID), scope)
}

// --- PolicyWriter ---

func (c *adminClient) ListInvocationPolicies(ctx context.Context, orgID, toolID string) ([]policy.InvocationPolicy, error) {
	var out []policy.InvocationPolicy
	_, err := c.do(ctx, http.MethodGet, policiesPath(orgID, toolID, "invocation"), nil, &out, false)
	return out, err
}

func (c *adminClient) CreateInvocationPolicy(ctx context.Context, p policy.InvocationPolicy) (*policy.InvocationPolicy, error) {
	req := api.CreatePolicyReq{Conditions: p.Conditions, Action: p.Action.String(), Reason: p.Reason}
	var out policy.InvocationPolicy
	if _, err := c.do(ctx, http.MethodPost, policiesPath(p.OrgID, p.ToolID, "invocation"), req, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *adminClient) DeleteInvocationPolicy(ctx context.Context, id string) (bool, error) {
	return c.do(ctx, http.MethodDelete, "/api/policies/invocation/"+url.PathEscape(id), nil, nil, true)
}

func (c *adminClient) ListResultPolicies(ctx context.Context, orgID, toolID string) ([]policy.ResultPolicy, error) {
	var out []policy.ResultPolicy
	_, err := c.do(ctx, http.MethodGet, policiesPath(orgID, toolID, "result"), nil, &out, false)
	return out, err
}

func (c *adminClient) CreateResultPolicy(ctx context.Context, p policy.ResultPolicy) (*policy.ResultPolicy, error) {
	req := api.CreatePolicyReq{Conditions: p.Conditions, Action: p.Action.String(), Reason: p.Reason}
	var out policy.ResultPolicy
	if _, err := c.do(ctx, http.MethodPost, policiesPath(p.OrgID, p.ToolID, "result"), req, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *adminClient) DeleteResultPolicy(ctx context.Context, id string) (bool, error) {
	return c.do(ctx, http.MethodDelete, "/api/policies/result/"+url.PathEscape(id), nil, nil, true)
}

func (c *adminClient) setDefaults(ctx context.Context, req api.DefaultPoliciesReq) (int, error) {
	var out api.DefaultPoliciesResp
	if _, err := c.do(ctx, http.MethodPut, "/api/policies/default", req, &out, false); err != nil {
		return 0, err
	}
	return out.Updated, nil
}

// --- ConfigWriter ---

func quarantinePath(orgID string) string {
	return fmt.Sprintf("/api/orgs/%s/quarantine-config", url.PathEscape(orgID))
}

func (c *adminClient) GetConfig(ctx context.Context, orgID string) (*quarantine.Config, error) {
	var out quarantine.Config
	if _, err := c.do(ctx, http.MethodGet, quarantinePath(orgID), nil, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *adminClient) UpsertConfig(ctx context.Context, cfg quarantine.Config) (*quarantine.Config, error) {
	req := api.QuarantineConfigReq{
		MainPrompt:        &cfg.MainPrompt,
		QuarantinedPrompt: &cfg.QuarantinedPrompt,
		SummaryPrompt:     &cfg.SummaryPrompt,
		MaxRounds:         &cfg.MaxRounds,
	}
	var out quarantine.Config
	if _, err := c.do(ctx, http.MethodPut, quarantinePath(cfg.OrgID), req, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

// --- Remaining surfaces ---

func (c *adminClient) listTools(ctx context.Context) ([]registry.Tool, error) {
	var out []registry.Tool
	_, err := c.do(ctx, http.MethodGet, "/api/tools", nil, &out, false)
	return out, err
}

func (c *adminClient) check(ctx context.Context, req gateway.Request) (*api.CheckResponse, error) {
	var out api.CheckResponse
	if _, err := c.do(ctx, http.MethodPost, "/v1/check", req, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}
