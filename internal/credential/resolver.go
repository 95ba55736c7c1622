package credential

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Resolver picks the secret reference backing a call.
type Resolver struct {
	dir    Directory
	logger *zap.Logger
}

func NewResolver(dir Directory, logger *zap.Logger) *Resolver {
	return &Resolver{dir: dir, logger: logger}
}

// Resolve returns the secret reference for an assignment. An explicit
// reference passes through unchanged (empty means the tool runs without a
// credential). ResolveAtCallTime walks the caller's visible scope: the
// personal credential for the catalog first, then team credentials in
// profile-linkage order. Nothing visible yields AuthenticationRequiredError.
func (r *Resolver) Resolve(ctx context.Context, a Assignment, caller Caller) (string, error) {
	if !a.ResolveAtCallTime {
		return a.SecretRef, nil
	}

	prof, err := r.dir.GetProfile(ctx, caller.ActiveProfileID)
	if err != nil {
		return "", fmt.Errorf("Resolve: load profile: %w", err)
	}
	if prof == nil || prof.OrgID != caller.OrgID {
		// No usable profile means no visible scope at all.
		r.logger.Debug("credential resolution found no active profile",
			zap.String("profile_id", caller.ActiveProfileID),
			zap.String("catalog", a.Catalog))
		return "", &AuthenticationRequiredError{Catalog: a.Catalog}
	}

	if prof.AllowPersonal {
		cred, err := r.dir.GetPersonalCredential(ctx, caller.OrgID, caller.UserID, a.Catalog)
		if err != nil {
			return "", fmt.Errorf("Resolve: personal credential: %w", err)
		}
		if cred != nil {
			r.logResolved(a.Catalog, cred)
			return cred.SecretRef, nil
		}
	}

	linked, err := r.dir.ListProfileTeams(ctx, caller.ActiveProfileID)
	if err != nil {
		return "", fmt.Errorf("Resolve: profile teams: %w", err)
	}
	memberOf, err := r.dir.ListUserTeams(ctx, caller.UserID)
	if err != nil {
		return "", fmt.Errorf("Resolve: user teams: %w", err)
	}
	member := make(map[string]struct{}, len(memberOf))
	for _, id := range memberOf {
		member[id] = struct{}{}
	}

	for _, teamID := range linked {
		if _, ok := member[teamID]; !ok {
			continue
		}
		cred, err := r.dir.GetTeamCredential(ctx, caller.OrgID, teamID, a.Catalog)
		if err != nil {
			return "", fmt.Errorf("Resolve: team credential: %w", err)
		}
		if cred != nil {
			r.logResolved(a.Catalog, cred)
			return cred.SecretRef, nil
		}
	}

	r.logger.Debug("credential resolution exhausted visible scope",
		zap.String("user_id", caller.UserID),
		zap.String("catalog", a.Catalog))
	return "", &AuthenticationRequiredError{Catalog: a.Catalog}
}

func (r *Resolver) logResolved(catalog string, cred *Credential) {
	r.logger.Debug("credential resolved",
		zap.String("catalog", catalog),
		zap.String("owner", cred.Owner.String()),
		zap.String("credential_id", cred.ID))
}
