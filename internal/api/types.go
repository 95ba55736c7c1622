package api

import (
	"github.com/rampart-ai/rampart/internal/audit"
	"github.com/rampart-ai/rampart/internal/policy"
)

// Policies, quarantine configs, tools, and pipeline results marshal straight
// from their domain types; only the shapes that differ on the wire live here.

// CheckResponse is the JSON body returned by POST /v1/check.
type CheckResponse struct {
	Allowed  bool   `json:"allowed"`
	PolicyID string `json:"policy_id,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// CreatePolicyReq is the JSON body for creating an invocation or result
// policy. Action strings follow the policy package's text forms.
type CreatePolicyReq struct {
	Conditions []policy.Condition `json:"conditions,omitempty"`
	Action     string             `json:"action"`
	Reason     string             `json:"reason,omitempty"`
}

// UpdatePolicyReq is the JSON body for PATCH on a policy. Absent fields keep
// their stored values.
type UpdatePolicyReq struct {
	Conditions *[]policy.Condition `json:"conditions,omitempty"`
	Action     *string             `json:"action,omitempty"`
	Reason     *string             `json:"reason,omitempty"`
}

// DefaultPoliciesReq is the JSON body for PUT /api/policies/default. It
// replaces each listed tool's unconditional policy in one shot.
type DefaultPoliciesReq struct {
	OrgID   string   `json:"org_id"`
	Scope   string   `json:"scope"` // invocation or result
	ToolIDs []string `json:"tool_ids"`
	Action  string   `json:"action"`
	Reason  string   `json:"reason,omitempty"`
}

// DefaultPoliciesResp reports how many tools were written.
type DefaultPoliciesResp struct {
	Updated int `json:"updated"`
}

// QuarantineConfigReq is the JSON body for PUT quarantine-config. Absent
// fields keep their current (or default) values.
type QuarantineConfigReq struct {
	MainPrompt        *string `json:"main_prompt,omitempty"`
	QuarantinedPrompt *string `json:"quarantined_prompt,omitempty"`
	SummaryPrompt     *string `json:"summary_prompt,omitempty"`
	MaxRounds         *int    `json:"max_rounds,omitempty"`
}

// EventListResp is the paginated decision log response.
type EventListResp struct {
	Events   []audit.EventRow `json:"events"`
	Total    int              `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
}

// ErrorResp is a standard error response body.
type ErrorResp struct {
	Detail string `json:"detail"`
}
