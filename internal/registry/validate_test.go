package registry

import (
	"errors"
	"strings"
	"testing"
)

func issueSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title":    map[string]any{"type": "string"},
			"priority": map[string]any{"type": "integer", "minimum": 1, "maximum": 5},
		},
		"required":             []any{"title"},
		"additionalProperties": false,
	}
}

func TestValidateArgs_NoSchemaAcceptsAnything(t *testing.T) {
	tool := &Tool{ID: "jira__create_issue"}
	if err := ValidateArgs(tool, map[string]any{"whatever": []any{1, 2}}); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if err := ValidateArgs(tool, nil); err != nil {
		t.Fatalf("expected nil for nil args, got %v", err)
	}
}

func TestValidateArgs_Pass(t *testing.T) {
	tool := &Tool{ID: "jira__create_issue", InputSchema: issueSchema()}
	args := map[string]any{"title": "pager broken", "priority": 2}
	if err := ValidateArgs(tool, args); err != nil {
		t.Fatalf("expected args to validate, got %v", err)
	}
}

func TestValidateArgs_IntArgumentsNormalized(t *testing.T) {
	// Arguments built in Go carry int values where JSON would carry
	// numbers. Validation must not reject them on that mismatch.
	tool := &Tool{ID: "jira__create_issue", InputSchema: issueSchema()}
	if err := ValidateArgs(tool, map[string]any{"title": "x", "priority": int64(3)}); err != nil {
		t.Fatalf("expected int64 priority to validate, got %v", err)
	}
}

func TestValidateArgs_Failures(t *testing.T) {
	tool := &Tool{ID: "jira__create_issue", InputSchema: issueSchema()}

	cases := []struct {
		name string
		args map[string]any
	}{
		{"missing required", map[string]any{"priority": 2}},
		{"wrong type", map[string]any{"title": 7}},
		{"out of range", map[string]any{"title": "x", "priority": 9}},
		{"unknown property", map[string]any{"title": "x", "reporter": "eve"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateArgs(tool, tc.args)
			var invalid *InvalidArgumentsError
			if !errors.As(err, &invalid) {
				t.Fatalf("expected InvalidArgumentsError, got %v", err)
			}
			if invalid.ToolID != "jira__create_issue" {
				t.Fatalf("expected tool id on error, got %s", invalid.ToolID)
			}
		})
	}
}

func TestValidateArgs_BrokenSchema(t *testing.T) {
	tool := &Tool{
		ID:          "jira__create_issue",
		InputSchema: map[string]any{"type": 12},
	}
	err := ValidateArgs(tool, map[string]any{"title": "x"})
	var invalid *InvalidArgumentsError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidArgumentsError for broken schema, got %v", err)
	}
	if !strings.Contains(err.Error(), "jira__create_issue") {
		t.Fatalf("expected tool id in message, got %q", err.Error())
	}
}
