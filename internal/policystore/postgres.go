package policystore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rampart-ai/rampart/internal/policy"
)

// Postgres is the production Store, backed by the invocation_policies and
// result_policies tables (conditions as JSONB, actions as text).
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) ListInvocationPolicies(ctx context.Context, orgID, toolID string) ([]policy.InvocationPolicy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, org_id, tool_id, conditions, action, reason, created_at, updated_at
		FROM invocation_policies
		WHERE org_id = $1 AND tool_id = $2
		ORDER BY created_at, id`, orgID, toolID)
	if err != nil {
		return nil, fmt.Errorf("ListInvocationPolicies: %w", err)
	}
	defer rows.Close()

	var out []policy.InvocationPolicy
	for rows.Next() {
		var (
			p          policy.InvocationPolicy
			conditions []byte
			action     string
		)
		if err := rows.Scan(&p.ID, &p.OrgID, &p.ToolID, &conditions, &action, &p.Reason, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("ListInvocationPolicies: %w", err)
		}
		if p.Action, err = policy.ParseInvocationAction(action); err != nil {
			return nil, fmt.Errorf("ListInvocationPolicies: row %s: %w", p.ID, err)
		}
		if p.Conditions, err = decodeConditions(conditions); err != nil {
			return nil, fmt.Errorf("ListInvocationPolicies: row %s: %w", p.ID, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Postgres) ListResultPolicies(ctx context.Context, orgID, toolID string) ([]policy.ResultPolicy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, org_id, tool_id, conditions, action, reason, created_at, updated_at
		FROM result_policies
		WHERE org_id = $1 AND tool_id = $2
		ORDER BY created_at, id`, orgID, toolID)
	if err != nil {
		return nil, fmt.Errorf("ListResultPolicies: %w", err)
	}
	defer rows.Close()

	var out []policy.ResultPolicy
	for rows.Next() {
		var (
			p          policy.ResultPolicy
			conditions []byte
			action     string
		)
		if err := rows.Scan(&p.ID, &p.OrgID, &p.ToolID, &conditions, &action, &p.Reason, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("ListResultPolicies: %w", err)
		}
		if p.Action, err = policy.ParseResultAction(action); err != nil {
			return nil, fmt.Errorf("ListResultPolicies: row %s: %w", p.ID, err)
		}
		if p.Conditions, err = decodeConditions(conditions); err != nil {
			return nil, fmt.Errorf("ListResultPolicies: row %s: %w", p.ID, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Postgres) CreateInvocationPolicy(ctx context.Context, p policy.InvocationPolicy) (*policy.InvocationPolicy, error) {
	conditions, err := encodeConditions(p.Conditions)
	if err != nil {
		return nil, fmt.Errorf("CreateInvocationPolicy: %w", err)
	}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO invocation_policies (org_id, tool_id, conditions, action, reason)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		p.OrgID, p.ToolID, conditions, p.Action.String(), p.Reason,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("CreateInvocationPolicy: %w", err)
	}
	return &p, nil
}

func (s *Postgres) CreateResultPolicy(ctx context.Context, p policy.ResultPolicy) (*policy.ResultPolicy, error) {
	conditions, err := encodeConditions(p.Conditions)
	if err != nil {
		return nil, fmt.Errorf("CreateResultPolicy: %w", err)
	}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO result_policies (org_id, tool_id, conditions, action, reason)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		p.OrgID, p.ToolID, conditions, p.Action.String(), p.Reason,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("CreateResultPolicy: %w", err)
	}
	return &p, nil
}

func (s *Postgres) UpdateInvocationPolicy(ctx context.Context, id string, params UpdateInvocationPolicyParams) (*policy.InvocationPolicy, error) {
	conditions, err := encodeOptionalConditions(params.Conditions)
	if err != nil {
		return nil, fmt.Errorf("UpdateInvocationPolicy: %w", err)
	}
	var action any
	if params.Action != nil {
		action = params.Action.String()
	}

	var (
		p       policy.InvocationPolicy
		rawCond []byte
		rawAct  string
	)
	err = s.db.QueryRowContext(ctx, `
		UPDATE invocation_policies SET
			conditions = COALESCE($2, conditions),
			action     = COALESCE($3, action),
			reason     = COALESCE($4, reason),
			updated_at = now()
		WHERE id = $1
		RETURNING id, org_id, tool_id, conditions, action, reason, created_at, updated_at`,
		id, conditions, action, params.Reason,
	).Scan(&p.ID, &p.OrgID, &p.ToolID, &rawCond, &rawAct, &p.Reason, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("UpdateInvocationPolicy: %w", err)
	}
	if p.Action, err = policy.ParseInvocationAction(rawAct); err != nil {
		return nil, fmt.Errorf("UpdateInvocationPolicy: %w", err)
	}
	if p.Conditions, err = decodeConditions(rawCond); err != nil {
		return nil, fmt.Errorf("UpdateInvocationPolicy: %w", err)
	}
	return &p, nil
}

func (s *Postgres) UpdateResultPolicy(ctx context.Context, id string, params UpdateResultPolicyParams) (*policy.ResultPolicy, error) {
	conditions, err := encodeOptionalConditions(params.Conditions)
	if err != nil {
		return nil, fmt.Errorf("UpdateResultPolicy: %w", err)
	}
	var action any
	if params.Action != nil {
		action = params.Action.String()
	}

	var (
		p       policy.ResultPolicy
		rawCond []byte
		rawAct  string
	)
	err = s.db.QueryRowContext(ctx, `
		UPDATE result_policies SET
			conditions = COALESCE($2, conditions),
			action     = COALESCE($3, action),
			reason     = COALESCE($4, reason),
			updated_at = now()
		WHERE id = $1
		RETURNING id, org_id, tool_id, conditions, action, reason, created_at, updated_at`,
		id, conditions, action, params.Reason,
	).Scan(&p.ID, &p.OrgID, &p.ToolID, &rawCond, &rawAct, &p.Reason, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("UpdateResultPolicy: %w", err)
	}
	if p.Action, err = policy.ParseResultAction(rawAct); err != nil {
		return nil, fmt.Errorf("UpdateResultPolicy: %w", err)
	}
	if p.Conditions, err = decodeConditions(rawCond); err != nil {
		return nil, fmt.Errorf("UpdateResultPolicy: %w", err)
	}
	return &p, nil
}

func (s *Postgres) DeleteInvocationPolicy(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM invocation_policies WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("DeleteInvocationPolicy: %w", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

func (s *Postgres) DeleteResultPolicy(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM result_policies WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("DeleteResultPolicy: %w", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

func (s *Postgres) SetDefaultInvocationPolicies(ctx context.Context, orgID string, toolIDs []string, action policy.InvocationAction, reason string) (int, error) {
	return s.setDefaults(ctx, "invocation_policies", orgID, toolIDs, action.String(), reason)
}

func (s *Postgres) SetDefaultResultPolicies(ctx context.Context, orgID string, toolIDs []string, action policy.ResultAction, reason string) (int, error) {
	return s.setDefaults(ctx, "result_policies", orgID, toolIDs, action.String(), reason)
}

func (s *Postgres) setDefaults(ctx context.Context, table, orgID string, toolIDs []string, action, reason string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("setDefaults: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	count := 0
	for _, toolID := range toolIDs {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM `+table+` WHERE org_id = $1 AND tool_id = $2 AND conditions = '[]'::jsonb`,
			orgID, toolID,
		); err != nil {
			return 0, fmt.Errorf("setDefaults: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO `+table+` (org_id, tool_id, conditions, action, reason)
			 VALUES ($1, $2, '[]'::jsonb, $3, $4)`,
			orgID, toolID, action, reason,
		); err != nil {
			return 0, fmt.Errorf("setDefaults: %w", err)
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("setDefaults: %w", err)
	}
	return count, nil
}

// encodeConditions marshals conditions for JSONB storage. A nil slice is
// stored as an empty array so default policies compare equal in SQL.
func encodeConditions(conds []policy.Condition) ([]byte, error) {
	if conds == nil {
		conds = []policy.Condition{}
	}
	return json.Marshal(conds)
}

func encodeOptionalConditions(conds *[]policy.Condition) (any, error) {
	if conds == nil {
		return nil, nil
	}
	b, err := encodeConditions(*conds)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func decodeConditions(raw []byte) ([]policy.Condition, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var conds []policy.Condition
	if err := json.Unmarshal(raw, &conds); err != nil {
		return nil, fmt.Errorf("conditions: %w", err)
	}
	if len(conds) == 0 {
		return nil, nil
	}
	return conds, nil
}
