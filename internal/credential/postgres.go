package credential

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresDirectory reads profiles, team links, and credentials from
// Postgres.
type PostgresDirectory struct {
	db *sql.DB
}

func NewPostgresDirectory(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

func (d *PostgresDirectory) GetProfile(ctx context.Context, id string) (*Profile, error) {
	query := `
		SELECT id, org_id, user_id, name, allow_personal, created_at
		FROM profiles
		WHERE id = $1`

	var p Profile
	err := d.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.OrgID, &p.UserID, &p.Name, &p.AllowPersonal, &p.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetProfile: %w", err)
	}
	return &p, nil
}

func (d *PostgresDirectory) ListProfileTeams(ctx context.Context, profileID string) ([]string, error) {
	query := `
		SELECT team_id
		FROM profile_teams
		WHERE profile_id = $1
		ORDER BY linked_at, team_id`

	rows, err := d.db.QueryContext(ctx, query, profileID)
	if err != nil {
		return nil, fmt.Errorf("ListProfileTeams: %w", err)
	}
	defer rows.Close()

	var teams []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ListProfileTeams: scan: %w", err)
		}
		teams = append(teams, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListProfileTeams: %w", err)
	}
	return teams, nil
}

func (d *PostgresDirectory) ListUserTeams(ctx context.Context, userID string) ([]string, error) {
	query := `
		SELECT team_id
		FROM team_members
		WHERE user_id = $1`

	rows, err := d.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("ListUserTeams: %w", err)
	}
	defer rows.Close()

	var teams []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ListUserTeams: scan: %w", err)
		}
		teams = append(teams, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListUserTeams: %w", err)
	}
	return teams, nil
}

func (d *PostgresDirectory) GetPersonalCredential(ctx context.Context, orgID, userID, catalog string) (*Credential, error) {
	return d.firstCredential(ctx, orgID, OwnerPersonal, userID, catalog)
}

func (d *PostgresDirectory) GetTeamCredential(ctx context.Context, orgID, teamID, catalog string) (*Credential, error) {
	return d.firstCredential(ctx, orgID, OwnerTeam, teamID, catalog)
}

func (d *PostgresDirectory) firstCredential(ctx context.Context, orgID string, owner OwnerKind, ownerID, catalog string) (*Credential, error) {
	query := `
		SELECT id, org_id, catalog, owner_kind, owner_id, secret_ref, created_at
		FROM credentials
		WHERE org_id = $1 AND owner_kind = $2 AND owner_id = $3 AND catalog = $4
		ORDER BY created_at, id
		LIMIT 1`

	var (
		c    Credential
		kind string
	)
	err := d.db.QueryRowContext(ctx, query, orgID, owner.String(), ownerID, catalog).Scan(
		&c.ID, &c.OrgID, &c.Catalog, &kind, &c.OwnerID, &c.SecretRef, &c.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("firstCredential: %w", err)
	}
	if c.Owner, err = ParseOwnerKind(kind); err != nil {
		return nil, fmt.Errorf("firstCredential: %w", err)
	}
	return &c, nil
}
