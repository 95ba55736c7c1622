package policystore

import (
	"context"
	"testing"

	"github.com/rampart-ai/rampart/internal/policy"
)

func TestMemory_CreateAndListOrder(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	first, err := m.CreateInvocationPolicy(ctx, policy.InvocationPolicy{
		OrgID: "org-1", ToolID: "jira__create_issue", Action: policy.InvocationBlockWhenUntrusted, Reason: "first",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.ID == "" || first.CreatedAt.IsZero() {
		t.Fatalf("expected id and created_at to be set, got %+v", first)
	}

	if _, err := m.CreateInvocationPolicy(ctx, policy.InvocationPolicy{
		OrgID: "org-1", ToolID: "jira__create_issue", Action: policy.InvocationBlockAlways, Reason: "second",
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := m.CreateInvocationPolicy(ctx, policy.InvocationPolicy{
		OrgID: "org-2", ToolID: "jira__create_issue", Action: policy.InvocationBlockAlways, Reason: "other org",
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := m.ListInvocationPolicies(ctx, "org-1", "jira__create_issue")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 policies, got %d", len(got))
	}
	if got[0].Reason != "first" || got[1].Reason != "second" {
		t.Fatalf("expected creation order preserved, got %q then %q", got[0].Reason, got[1].Reason)
	}
}

func TestMemory_UpdateAndDelete(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	created, _ := m.CreateResultPolicy(ctx, policy.ResultPolicy{
		OrgID: "org-1", ToolID: "mail__read", Action: policy.ResultMarkUntrusted,
	})

	newAction := policy.ResultSanitize
	newReason := "external mail"
	updated, err := m.UpdateResultPolicy(ctx, created.ID, UpdateResultPolicyParams{
		Action: &newAction,
		Reason: &newReason,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Action != policy.ResultSanitize || updated.Reason != "external mail" {
		t.Fatalf("expected updated fields, got %+v", updated)
	}

	missing, err := m.UpdateResultPolicy(ctx, "no-such-id", UpdateResultPolicyParams{Reason: &newReason})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for unknown id, got %+v", missing)
	}

	ok, err := m.DeleteResultPolicy(ctx, created.ID)
	if err != nil || !ok {
		t.Fatalf("expected delete to succeed, got ok=%v err=%v", ok, err)
	}
	ok, _ = m.DeleteResultPolicy(ctx, created.ID)
	if ok {
		t.Fatalf("expected second delete to report not found")
	}
}

func TestMemory_SetDefaultsReplacesUnconditional(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	// One conditional policy and one prior default for the same tool.
	if _, err := m.CreateInvocationPolicy(ctx, policy.InvocationPolicy{
		OrgID:  "org-1",
		ToolID: "http__get",
		Conditions: []policy.Condition{
			{Key: "url", Operator: policy.OpContains, Value: "internal.corp"},
		},
		Action: policy.InvocationBlockWhenUntrusted,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := m.CreateInvocationPolicy(ctx, policy.InvocationPolicy{
		OrgID: "org-1", ToolID: "http__get", Action: policy.InvocationAllowWhenUntrusted, Reason: "old default",
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	n, err := m.SetDefaultInvocationPolicies(ctx, "org-1", []string{"http__get", "http__post"}, policy.InvocationBlockWhenUntrusted, "locked down")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 tools written, got %d", n)
	}

	got, _ := m.ListInvocationPolicies(ctx, "org-1", "http__get")
	if len(got) != 2 {
		t.Fatalf("expected conditional + new default, got %d policies", len(got))
	}
	defaults := 0
	for _, p := range got {
		if len(p.Conditions) == 0 {
			defaults++
			if p.Reason != "locked down" {
				t.Fatalf("expected replaced default, got %q", p.Reason)
			}
		}
	}
	if defaults != 1 {
		t.Fatalf("expected exactly one default policy, got %d", defaults)
	}

	other, _ := m.ListInvocationPolicies(ctx, "org-1", "http__post")
	if len(other) != 1 || len(other[0].Conditions) != 0 {
		t.Fatalf("expected fresh default for http__post, got %+v", other)
	}
}
