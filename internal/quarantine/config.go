// Package quarantine runs the dual-model protocol that turns untrusted tool
// results into safe summaries. The main model plans multiple-choice
// questions without ever seeing the raw data; the quarantined model sees the
// raw data but can only answer by option index.
package quarantine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config is the per-organization quarantine configuration. Prompts are
// templates with {{placeholder}} tokens.
type Config struct {
	OrgID             string    `json:"org_id"`
	MainPrompt        string    `json:"main_prompt"`
	QuarantinedPrompt string    `json:"quarantined_prompt"`
	SummaryPrompt     string    `json:"summary_prompt"`
	MaxRounds         int       `json:"max_rounds"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// DefaultConfig returns the built-in configuration for an organization.
func DefaultConfig(orgID string) Config {
	return Config{
		OrgID:             orgID,
		MainPrompt:        DefaultMainPrompt,
		QuarantinedPrompt: DefaultQuarantinedPrompt,
		SummaryPrompt:     DefaultSummaryPrompt,
		MaxRounds:         DefaultMaxRounds,
	}
}

// Validate checks structural requirements, including the placeholders each
// template must carry for the protocol to function.
func (c Config) Validate() error {
	if c.OrgID == "" {
		return errors.New("org_id is required")
	}
	if c.MaxRounds < 1 {
		return errors.New("max_rounds must be at least 1")
	}
	required := []struct {
		name, tmpl  string
		placeholder string
	}{
		{"main_prompt", c.MainPrompt, "{{originalUserRequest}}"},
		{"quarantined_prompt", c.QuarantinedPrompt, "{{toolResultData}}"},
		{"quarantined_prompt", c.QuarantinedPrompt, "{{question}}"},
		{"quarantined_prompt", c.QuarantinedPrompt, "{{options}}"},
		{"summary_prompt", c.SummaryPrompt, "{{qaText}}"},
	}
	for _, r := range required {
		if !strings.Contains(r.tmpl, r.placeholder) {
			return fmt.Errorf("%s must contain %s", r.name, r.placeholder)
		}
	}
	return nil
}

// ConfigStore persists per-organization configs. GetConfig returns
// (nil, nil) when the organization has none yet; EnsureDefault creates the
// built-in default exactly once and is run at startup, not lazily on reads.
type ConfigStore interface {
	GetConfig(ctx context.Context, orgID string) (*Config, error)
	UpsertConfig(ctx context.Context, cfg Config) (*Config, error)
	EnsureDefault(ctx context.Context, orgID string) (*Config, error)
}
