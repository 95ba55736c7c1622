package policypack

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rampart-ai/rampart/internal/policy"
	"github.com/rampart-ai/rampart/internal/quarantine"
)

// PolicyWriter is the slice of the policy store the applier needs. Both the
// store itself and the HTTP admin client satisfy it.
type PolicyWriter interface {
	ListInvocationPolicies(ctx context.Context, orgID, toolID string) ([]policy.InvocationPolicy, error)
	CreateInvocationPolicy(ctx context.Context, p policy.InvocationPolicy) (*policy.InvocationPolicy, error)
	DeleteInvocationPolicy(ctx context.Context, id string) (bool, error)

	ListResultPolicies(ctx context.Context, orgID, toolID string) ([]policy.ResultPolicy, error)
	CreateResultPolicy(ctx context.Context, p policy.ResultPolicy) (*policy.ResultPolicy, error)
	DeleteResultPolicy(ctx context.Context, id string) (bool, error)
}

// ConfigWriter is the slice of the quarantine config store the applier
// needs.
type ConfigWriter interface {
	GetConfig(ctx context.Context, orgID string) (*quarantine.Config, error)
	UpsertConfig(ctx context.Context, cfg quarantine.Config) (*quarantine.Config, error)
}

// ApplierConfig wires an Applier.
type ApplierConfig struct {
	Store PolicyWriter

	// Configs handles the pack's quarantine section; nil skips it.
	Configs ConfigWriter

	// Invalidate is called for each touched (org, tool) so a caching policy
	// source can drop its entry. May be nil.
	Invalidate func(orgID, toolID string)
}

// Applier replaces the stored policies of every tool a pack names with the
// pack's entries, in file order.
type Applier struct {
	store      PolicyWriter
	configs    ConfigWriter
	invalidate func(orgID, toolID string)
	logger     *zap.Logger
}

// ApplyStats summarizes one apply run.
type ApplyStats struct {
	ToolsTouched      int
	Created           int
	Removed           int
	QuarantineUpdated bool
}

func NewApplier(cfg ApplierConfig, logger *zap.Logger) *Applier {
	return &Applier{
		store:      cfg.Store,
		configs:    cfg.Configs,
		invalidate: cfg.Invalidate,
		logger:     logger,
	}
}

// ApplyFile loads, validates, and applies a pack file.
func (a *Applier) ApplyFile(ctx context.Context, path string) (ApplyStats, error) {
	pack, err := Load(path)
	if err != nil {
		return ApplyStats{}, err
	}
	return a.Apply(ctx, pack)
}

// Apply writes the pack to the store. For each named tool the existing
// policies are removed and the pack's are created in order, so the engine's
// oldest-first tie-break follows the file.
func (a *Applier) Apply(ctx context.Context, pack *Pack) (ApplyStats, error) {
	var stats ApplyStats

	for _, toolID := range pack.invocationTools() {
		existing, err := a.store.ListInvocationPolicies(ctx, pack.OrgID, toolID)
		if err != nil {
			return stats, fmt.Errorf("Apply: list %s: %w", toolID, err)
		}
		for _, p := range existing {
			if _, err := a.store.DeleteInvocationPolicy(ctx, p.ID); err != nil {
				return stats, fmt.Errorf("Apply: delete %s: %w", p.ID, err)
			}
			stats.Removed++
		}
		for _, pp := range pack.InvocationPolicies {
			if pp.ToolID != toolID {
				continue
			}
			p, err := pp.invocation(pack.OrgID)
			if err != nil {
				return stats, fmt.Errorf("Apply: %w", err)
			}
			if _, err := a.store.CreateInvocationPolicy(ctx, p); err != nil {
				return stats, fmt.Errorf("Apply: create for %s: %w", toolID, err)
			}
			stats.Created++
		}
		stats.ToolsTouched++
		if a.invalidate != nil {
			a.invalidate(pack.OrgID, toolID)
		}
	}

	for _, toolID := range pack.resultTools() {
		existing, err := a.store.ListResultPolicies(ctx, pack.OrgID, toolID)
		if err != nil {
			return stats, fmt.Errorf("Apply: list %s: %w", toolID, err)
		}
		for _, p := range existing {
			if _, err := a.store.DeleteResultPolicy(ctx, p.ID); err != nil {
				return stats, fmt.Errorf("Apply: delete %s: %w", p.ID, err)
			}
			stats.Removed++
		}
		for _, pp := range pack.ResultPolicies {
			if pp.ToolID != toolID {
				continue
			}
			p, err := pp.result(pack.OrgID)
			if err != nil {
				return stats, fmt.Errorf("Apply: %w", err)
			}
			if _, err := a.store.CreateResultPolicy(ctx, p); err != nil {
				return stats, fmt.Errorf("Apply: create for %s: %w", toolID, err)
			}
			stats.Created++
		}
		stats.ToolsTouched++
		if a.invalidate != nil {
			a.invalidate(pack.OrgID, toolID)
		}
	}

	if pack.Quarantine != nil && a.configs != nil {
		if err := a.applyQuarantine(ctx, pack); err != nil {
			return stats, err
		}
		stats.QuarantineUpdated = true
	}

	a.logger.Info("policy pack applied",
		zap.String("org_id", pack.OrgID),
		zap.Int("tools", stats.ToolsTouched),
		zap.Int("created", stats.Created),
		zap.Int("removed", stats.Removed),
		zap.Bool("quarantine_updated", stats.QuarantineUpdated))
	return stats, nil
}

func (a *Applier) applyQuarantine(ctx context.Context, pack *Pack) error {
	current, err := a.configs.GetConfig(ctx, pack.OrgID)
	if err != nil {
		return fmt.Errorf("Apply: quarantine config: %w", err)
	}
	if current == nil {
		def := quarantine.DefaultConfig(pack.OrgID)
		current = &def
	}

	cfg := *current
	cfg.OrgID = pack.OrgID
	spec := pack.Quarantine
	if spec.MainPrompt != "" {
		cfg.MainPrompt = spec.MainPrompt
	}
	if spec.QuarantinedPrompt != "" {
		cfg.QuarantinedPrompt = spec.QuarantinedPrompt
	}
	if spec.SummaryPrompt != "" {
		cfg.SummaryPrompt = spec.SummaryPrompt
	}
	if spec.MaxRounds > 0 {
		cfg.MaxRounds = spec.MaxRounds
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("Apply: quarantine config: %w", err)
	}
	if _, err := a.configs.UpsertConfig(ctx, cfg); err != nil {
		return fmt.Errorf("Apply: quarantine config: %w", err)
	}
	return nil
}
