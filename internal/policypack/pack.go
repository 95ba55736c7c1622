// Package policypack loads declarative policy sets from YAML files and
// applies them to the policy store. A pack owns the policies of every tool
// it names; tools the pack does not mention are left alone.
package policypack

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rampart-ai/rampart/internal/policy"
)

// Pack is one parsed policy pack file.
type Pack struct {
	OrgID              string          `yaml:"org_id"`
	InvocationPolicies []PackPolicy    `yaml:"invocation_policies"`
	ResultPolicies     []PackPolicy    `yaml:"result_policies"`
	Quarantine         *QuarantineSpec `yaml:"quarantine"`
}

// PackPolicy is one policy entry. File order is creation order, which the
// engine uses for tie-breaks.
type PackPolicy struct {
	ToolID     string      `yaml:"tool_id"`
	Conditions []Condition `yaml:"conditions"`
	Action     string      `yaml:"action"`
	Reason     string      `yaml:"reason"`
}

// Condition mirrors policy.Condition with YAML field names.
type Condition struct {
	Key      string `yaml:"key"`
	Operator string `yaml:"operator"`
	Value    string `yaml:"value"`
}

// QuarantineSpec overrides parts of the org's quarantine configuration.
// Zero fields keep their current (or default) values.
type QuarantineSpec struct {
	MainPrompt        string `yaml:"main_prompt"`
	QuarantinedPrompt string `yaml:"quarantined_prompt"`
	SummaryPrompt     string `yaml:"summary_prompt"`
	MaxRounds         int    `yaml:"max_rounds"`
}

// Load reads and validates a pack file. Unknown YAML fields are rejected so
// a typoed key cannot silently drop a policy.
func Load(path string) (*Pack, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("Load: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	var pack Pack
	if err := dec.Decode(&pack); err != nil {
		return nil, fmt.Errorf("Load: parse %s: %w", path, err)
	}
	if err := pack.Validate(); err != nil {
		return nil, fmt.Errorf("Load: %s: %w", path, err)
	}
	return &pack, nil
}

// Validate checks the pack without touching any store.
func (p *Pack) Validate() error {
	if p.OrgID == "" {
		return fmt.Errorf("org_id is required")
	}
	for i, pp := range p.InvocationPolicies {
		if _, err := pp.invocation(p.OrgID); err != nil {
			return fmt.Errorf("invocation_policies[%d]: %w", i, err)
		}
	}
	for i, pp := range p.ResultPolicies {
		if _, err := pp.result(p.OrgID); err != nil {
			return fmt.Errorf("result_policies[%d]: %w", i, err)
		}
	}
	if p.Quarantine != nil && p.Quarantine.MaxRounds < 0 {
		return fmt.Errorf("quarantine.max_rounds must not be negative")
	}
	return nil
}

func (pp PackPolicy) conditions() ([]policy.Condition, error) {
	if len(pp.Conditions) == 0 {
		return nil, nil
	}
	out := make([]policy.Condition, 0, len(pp.Conditions))
	for _, c := range pp.Conditions {
		op, err := policy.ParseOperator(c.Operator)
		if err != nil {
			return nil, err
		}
		out = append(out, policy.Condition{Key: c.Key, Operator: op, Value: c.Value})
	}
	return out, nil
}

func (pp PackPolicy) invocation(orgID string) (policy.InvocationPolicy, error) {
	action, err := policy.ParseInvocationAction(pp.Action)
	if err != nil {
		return policy.InvocationPolicy{}, err
	}
	conds, err := pp.conditions()
	if err != nil {
		return policy.InvocationPolicy{}, err
	}
	p := policy.InvocationPolicy{
		OrgID:      orgID,
		ToolID:     pp.ToolID,
		Conditions: conds,
		Action:     action,
		Reason:     pp.Reason,
	}
	if err := p.Validate(); err != nil {
		return policy.InvocationPolicy{}, err
	}
	return p, nil
}

func (pp PackPolicy) result(orgID string) (policy.ResultPolicy, error) {
	action, err := policy.ParseResultAction(pp.Action)
	if err != nil {
		return policy.ResultPolicy{}, err
	}
	conds, err := pp.conditions()
	if err != nil {
		return policy.ResultPolicy{}, err
	}
	p := policy.ResultPolicy{
		OrgID:      orgID,
		ToolID:     pp.ToolID,
		Conditions: conds,
		Action:     action,
		Reason:     pp.Reason,
	}
	if err := p.Validate(); err != nil {
		return policy.ResultPolicy{}, err
	}
	return p, nil
}

// invocationTools returns the distinct tool ids of the invocation section in
// first-seen order.
func (p *Pack) invocationTools() []string {
	return distinctTools(p.InvocationPolicies)
}

func (p *Pack) resultTools() []string {
	return distinctTools(p.ResultPolicies)
}

func distinctTools(policies []PackPolicy) []string {
	seen := make(map[string]bool, len(policies))
	var out []string
	for _, pp := range policies {
		if !seen[pp.ToolID] {
			seen[pp.ToolID] = true
			out = append(out, pp.ToolID)
		}
	}
	return out
}
