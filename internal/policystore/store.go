package policystore

import (
	"context"

	"github.com/rampart-ai/rampart/internal/policy"
)

// Store is the repository for invocation and result policies. List results
// are ordered by creation time (oldest first); the engine relies on that
// order for deterministic tie-breaks.
type Store interface {
	ListInvocationPolicies(ctx context.Context, orgID, toolID string) ([]policy.InvocationPolicy, error)
	ListResultPolicies(ctx context.Context, orgID, toolID string) ([]policy.ResultPolicy, error)

	CreateInvocationPolicy(ctx context.Context, p policy.InvocationPolicy) (*policy.InvocationPolicy, error)
	CreateResultPolicy(ctx context.Context, p policy.ResultPolicy) (*policy.ResultPolicy, error)

	// Updates apply only non-nil fields and return nil when the row is gone.
	UpdateInvocationPolicy(ctx context.Context, id string, params UpdateInvocationPolicyParams) (*policy.InvocationPolicy, error)
	UpdateResultPolicy(ctx context.Context, id string, params UpdateResultPolicyParams) (*policy.ResultPolicy, error)

	DeleteInvocationPolicy(ctx context.Context, id string) (bool, error)
	DeleteResultPolicy(ctx context.Context, id string) (bool, error)

	// SetDefault*Policies replaces each tool's unconditional (empty-conditions)
	// policy with a single new one, creating it where absent. Returns the
	// number of tools written.
	SetDefaultInvocationPolicies(ctx context.Context, orgID string, toolIDs []string, action policy.InvocationAction, reason string) (int, error)
	SetDefaultResultPolicies(ctx context.Context, orgID string, toolIDs []string, action policy.ResultAction, reason string) (int, error)
}

// UpdateInvocationPolicyParams holds optional fields for partial updates.
type UpdateInvocationPolicyParams struct {
	Conditions *[]policy.Condition // nil = don't change
	Action     *policy.InvocationAction
	Reason     *string
}

// UpdateResultPolicyParams holds optional fields for partial updates.
type UpdateResultPolicyParams struct {
	Conditions *[]policy.Condition // nil = don't change
	Action     *policy.ResultAction
	Reason     *string
}
