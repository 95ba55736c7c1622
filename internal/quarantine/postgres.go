package quarantine

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresConfigStore persists configs in the quarantine_configs table,
// keyed by organization.
type PostgresConfigStore struct {
	db *sql.DB
}

func NewPostgresConfigStore(db *sql.DB) *PostgresConfigStore {
	return &PostgresConfigStore{db: db}
}

const configColumns = `org_id, main_prompt, quarantined_prompt, summary_prompt, max_rounds, created_at, updated_at`

func (s *PostgresConfigStore) GetConfig(ctx context.Context, orgID string) (*Config, error) {
	query := `SELECT ` + configColumns + ` FROM quarantine_configs WHERE org_id = $1`

	var cfg Config
	err := s.db.QueryRowContext(ctx, query, orgID).Scan(
		&cfg.OrgID, &cfg.MainPrompt, &cfg.QuarantinedPrompt, &cfg.SummaryPrompt,
		&cfg.MaxRounds, &cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetConfig: %w", err)
	}
	return &cfg, nil
}

func (s *PostgresConfigStore) UpsertConfig(ctx context.Context, cfg Config) (*Config, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("UpsertConfig: %w", err)
	}

	query := `
		INSERT INTO quarantine_configs (org_id, main_prompt, quarantined_prompt, summary_prompt, max_rounds)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (org_id) DO UPDATE SET
			main_prompt = EXCLUDED.main_prompt,
			quarantined_prompt = EXCLUDED.quarantined_prompt,
			summary_prompt = EXCLUDED.summary_prompt,
			max_rounds = EXCLUDED.max_rounds,
			updated_at = NOW()
		RETURNING ` + configColumns

	var out Config
	err := s.db.QueryRowContext(ctx, query,
		cfg.OrgID, cfg.MainPrompt, cfg.QuarantinedPrompt, cfg.SummaryPrompt, cfg.MaxRounds,
	).Scan(
		&out.OrgID, &out.MainPrompt, &out.QuarantinedPrompt, &out.SummaryPrompt,
		&out.MaxRounds, &out.CreatedAt, &out.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("UpsertConfig: %w", err)
	}
	return &out, nil
}

func (s *PostgresConfigStore) EnsureDefault(ctx context.Context, orgID string) (*Config, error) {
	def := DefaultConfig(orgID)

	query := `
		INSERT INTO quarantine_configs (org_id, main_prompt, quarantined_prompt, summary_prompt, max_rounds)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (org_id) DO NOTHING`

	if _, err := s.db.ExecContext(ctx, query,
		def.OrgID, def.MainPrompt, def.QuarantinedPrompt, def.SummaryPrompt, def.MaxRounds,
	); err != nil {
		return nil, fmt.Errorf("EnsureDefault: %w", err)
	}

	cfg, err := s.GetConfig(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("EnsureDefault: %w", err)
	}
	if cfg == nil {
		return nil, fmt.Errorf("EnsureDefault: config for %q missing after insert", orgID)
	}
	return cfg, nil
}
