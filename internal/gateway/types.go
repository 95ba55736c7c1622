// Package gateway runs one tool call through the full trust pipeline:
// invocation policy, credential resolution, schema validation, the upstream
// call, result classification, and quarantine when a policy demands it.
package gateway

import (
	"github.com/rampart-ai/rampart/internal/credential"
	"github.com/rampart-ai/rampart/internal/policy"
)

// Request is one tool call entering the pipeline.
type Request struct {
	OrgID          string                `json:"org_id"`
	AgentID        string                `json:"agent_id,omitempty"`
	ConversationID string                `json:"conversation_id,omitempty"`
	UserID         string                `json:"user_id,omitempty"`
	ProfileID      string                `json:"profile_id,omitempty"`
	ToolID         string                `json:"tool_id"`
	Args           map[string]any        `json:"arguments,omitempty"`
	Context        policy.TrustContext   `json:"context"`
	Credential     credential.Assignment `json:"credential,omitempty"`

	// UserRequest is the user's original ask, quoted to the main model when
	// a quarantine runs. Never shown to the quarantined model.
	UserRequest string `json:"user_request,omitempty"`
}

// Status is the terminal state of a pipeline run.
type Status string

const (
	StatusCompleted    Status = "completed"
	StatusBlocked      Status = "blocked"
	StatusAuthRequired Status = "auth_required"
)

// TrustTag labels the provenance of a completed result.
type TrustTag string

const (
	TagTrusted   TrustTag = "trusted"
	TagUntrusted TrustTag = "untrusted"
	TagSanitized TrustTag = "sanitized"
)

// Denial explains a blocked call without leaking anything but the policy's
// own reason text.
type Denial struct {
	Stage    string `json:"stage"` // invocation or result
	PolicyID string `json:"policy_id,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Result is what the calling agent gets back. Output carries the raw result
// for trusted/untrusted completions and the quarantine summary for sanitized
// ones; blocked runs carry a Denial instead.
type Result struct {
	RequestID string   `json:"request_id"`
	ToolID    string   `json:"tool_id"`
	Status    Status   `json:"status"`
	Trust     TrustTag `json:"trust,omitempty"`
	Output    string   `json:"output,omitempty"`
	Denial    *Denial  `json:"denial,omitempty"`

	// Catalog names the credential catalog that needs setup when Status is
	// auth_required.
	Catalog string `json:"catalog,omitempty"`

	ElapsedMs float32 `json:"elapsed_ms"`
}
