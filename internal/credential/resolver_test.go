package credential

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"go.uber.org/zap"
)

func testResolver(dir Directory) *Resolver {
	return NewResolver(dir, zap.NewNop())
}

func TestResolver_ExplicitRefPassesThrough(t *testing.T) {
	r := testResolver(NewMemoryDirectory())

	ref, err := r.Resolve(context.Background(), Assignment{Catalog: "jira", SecretRef: "secrets/jira-bot"}, Caller{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ref != "secrets/jira-bot" {
		t.Fatalf("expected explicit ref unchanged, got %q", ref)
	}

	// Zero assignment means the tool runs without a credential.
	ref, err = r.Resolve(context.Background(), Assignment{}, Caller{})
	if err != nil || ref != "" {
		t.Fatalf("expected empty ref and no error, got %q %v", ref, err)
	}
}

func TestResolver_PersonalBeatsTeam(t *testing.T) {
	dir := NewMemoryDirectory()
	prof := dir.AddProfile(Profile{OrgID: "org-1", UserID: "u1", AllowPersonal: true})
	dir.LinkTeam(prof.ID, "team-a")
	dir.AddTeamMember("team-a", "u1")
	dir.AddCredential(Credential{OrgID: "org-1", Catalog: "jira", Owner: OwnerTeam, OwnerID: "team-a", SecretRef: "secrets/team-a-jira"})
	dir.AddCredential(Credential{OrgID: "org-1", Catalog: "jira", Owner: OwnerPersonal, OwnerID: "u1", SecretRef: "secrets/u1-jira"})

	ref, err := testResolver(dir).Resolve(context.Background(),
		Assignment{Catalog: "jira", ResolveAtCallTime: true},
		Caller{OrgID: "org-1", UserID: "u1", ActiveProfileID: prof.ID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ref != "secrets/u1-jira" {
		t.Fatalf("expected personal credential to win, got %q", ref)
	}
}

func TestResolver_ProfileHidesPersonal(t *testing.T) {
	dir := NewMemoryDirectory()
	prof := dir.AddProfile(Profile{OrgID: "org-1", UserID: "u1", AllowPersonal: false})
	dir.LinkTeam(prof.ID, "team-a")
	dir.AddTeamMember("team-a", "u1")
	dir.AddCredential(Credential{OrgID: "org-1", Catalog: "jira", Owner: OwnerPersonal, OwnerID: "u1", SecretRef: "secrets/u1-jira"})
	dir.AddCredential(Credential{OrgID: "org-1", Catalog: "jira", Owner: OwnerTeam, OwnerID: "team-a", SecretRef: "secrets/team-a-jira"})

	ref, err := testResolver(dir).Resolve(context.Background(),
		Assignment{Catalog: "jira", ResolveAtCallTime: true},
		Caller{OrgID: "org-1", UserID: "u1", ActiveProfileID: prof.ID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ref != "secrets/team-a-jira" {
		t.Fatalf("expected team credential when profile hides personal, got %q", ref)
	}
}

func TestResolver_TeamLinkageOrder(t *testing.T) {
	dir := NewMemoryDirectory()
	prof := dir.AddProfile(Profile{OrgID: "org-1", UserID: "u1"})
	dir.LinkTeam(prof.ID, "team-b")
	dir.LinkTeam(prof.ID, "team-a")
	dir.AddTeamMember("team-a", "u1")
	dir.AddTeamMember("team-b", "u1")
	dir.AddCredential(Credential{OrgID: "org-1", Catalog: "jira", Owner: OwnerTeam, OwnerID: "team-a", SecretRef: "secrets/team-a-jira"})
	dir.AddCredential(Credential{OrgID: "org-1", Catalog: "jira", Owner: OwnerTeam, OwnerID: "team-b", SecretRef: "secrets/team-b-jira"})

	ref, err := testResolver(dir).Resolve(context.Background(),
		Assignment{Catalog: "jira", ResolveAtCallTime: true},
		Caller{OrgID: "org-1", UserID: "u1", ActiveProfileID: prof.ID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ref != "secrets/team-b-jira" {
		t.Fatalf("expected first linked team to win, got %q", ref)
	}
}

func TestResolver_InvisibleCredentialsNeverReturned(t *testing.T) {
	tests := []struct {
		name  string
		setup func(dir *MemoryDirectory, profileID string)
	}{
		{
			name: "member of unlinked team",
			setup: func(dir *MemoryDirectory, profileID string) {
				dir.AddTeamMember("team-x", "u1")
				dir.AddCredential(Credential{OrgID: "org-1", Catalog: "jira", Owner: OwnerTeam, OwnerID: "team-x", SecretRef: "secrets/hidden"})
			},
		},
		{
			name: "linked team without membership",
			setup: func(dir *MemoryDirectory, profileID string) {
				dir.LinkTeam(profileID, "team-y")
				dir.AddCredential(Credential{OrgID: "org-1", Catalog: "jira", Owner: OwnerTeam, OwnerID: "team-y", SecretRef: "secrets/hidden"})
			},
		},
		{
			name: "personal credential of another user",
			setup: func(dir *MemoryDirectory, profileID string) {
				dir.AddCredential(Credential{OrgID: "org-1", Catalog: "jira", Owner: OwnerPersonal, OwnerID: "u2", SecretRef: "secrets/hidden"})
			},
		},
		{
			name: "credential in another org",
			setup: func(dir *MemoryDirectory, profileID string) {
				dir.LinkTeam(profileID, "team-z")
				dir.AddTeamMember("team-z", "u1")
				dir.AddCredential(Credential{OrgID: "org-2", Catalog: "jira", Owner: OwnerTeam, OwnerID: "team-z", SecretRef: "secrets/hidden"})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := NewMemoryDirectory()
			prof := dir.AddProfile(Profile{OrgID: "org-1", UserID: "u1", AllowPersonal: true})
			tt.setup(dir, prof.ID)

			_, err := testResolver(dir).Resolve(context.Background(),
				Assignment{Catalog: "jira", ResolveAtCallTime: true},
				Caller{OrgID: "org-1", UserID: "u1", ActiveProfileID: prof.ID})

			var authErr *AuthenticationRequiredError
			if !errors.As(err, &authErr) {
				t.Fatalf("expected AuthenticationRequiredError, got %v", err)
			}
			if authErr.Catalog != "jira" {
				t.Fatalf("expected catalog in error, got %q", authErr.Catalog)
			}
		})
	}
}

func TestResolver_UnknownProfile(t *testing.T) {
	dir := NewMemoryDirectory()
	dir.AddCredential(Credential{OrgID: "org-1", Catalog: "jira", Owner: OwnerPersonal, OwnerID: "u1", SecretRef: "secrets/u1-jira"})

	_, err := testResolver(dir).Resolve(context.Background(),
		Assignment{Catalog: "jira", ResolveAtCallTime: true},
		Caller{OrgID: "org-1", UserID: "u1", ActiveProfileID: "no-such-profile"})

	var authErr *AuthenticationRequiredError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthenticationRequiredError, got %v", err)
	}
}

type errDirectory struct {
	err error
}

func (d errDirectory) GetProfile(context.Context, string) (*Profile, error) { return nil, d.err }
func (d errDirectory) ListProfileTeams(context.Context, string) ([]string, error) {
	return nil, d.err
}
func (d errDirectory) ListUserTeams(context.Context, string) ([]string, error) { return nil, d.err }
func (d errDirectory) GetPersonalCredential(context.Context, string, string, string) (*Credential, error) {
	return nil, d.err
}
func (d errDirectory) GetTeamCredential(context.Context, string, string, string) (*Credential, error) {
	return nil, d.err
}

func TestResolver_DirectoryErrorPropagates(t *testing.T) {
	dirErr := errors.New("connection refused")
	_, err := testResolver(errDirectory{err: dirErr}).Resolve(context.Background(),
		Assignment{Catalog: "jira", ResolveAtCallTime: true},
		Caller{OrgID: "org-1", UserID: "u1", ActiveProfileID: "p1"})
	if !errors.Is(err, dirErr) {
		t.Fatalf("expected wrapped directory error, got %v", err)
	}
}

// TestResolver_VisibilityProperty builds random team/profile graphs and
// checks that whatever the resolver returns is inside the caller's visible
// set, and that it fails with AuthenticationRequired exactly when that set
// is empty.
func TestResolver_VisibilityProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	const rounds = 250

	for round := 0; round < rounds; round++ {
		dir := NewMemoryDirectory()
		prof := dir.AddProfile(Profile{
			OrgID:         "org-1",
			UserID:        "u1",
			AllowPersonal: rng.Intn(2) == 0,
		})

		teams := []string{"team-0", "team-1", "team-2", "team-3", "team-4"}
		linked := make([]string, 0, len(teams))
		member := make(map[string]bool)
		teamRef := make(map[string]string)

		for _, id := range teams {
			if rng.Intn(2) == 0 {
				linked = append(linked, id)
			}
			if rng.Intn(2) == 0 {
				member[id] = true
				dir.AddTeamMember(id, "u1")
			}
			if rng.Intn(2) == 0 {
				ref := fmt.Sprintf("secrets/%s-jira", id)
				teamRef[id] = ref
				dir.AddCredential(Credential{OrgID: "org-1", Catalog: "jira", Owner: OwnerTeam, OwnerID: id, SecretRef: ref})
			}
		}
		rng.Shuffle(len(linked), func(i, j int) { linked[i], linked[j] = linked[j], linked[i] })
		for _, id := range linked {
			dir.LinkTeam(prof.ID, id)
		}

		personalRef := ""
		if rng.Intn(2) == 0 {
			personalRef = "secrets/u1-jira"
			dir.AddCredential(Credential{OrgID: "org-1", Catalog: "jira", Owner: OwnerPersonal, OwnerID: "u1", SecretRef: personalRef})
		}
		// Noise that must never be visible.
		dir.AddCredential(Credential{OrgID: "org-1", Catalog: "jira", Owner: OwnerPersonal, OwnerID: "u2", SecretRef: "secrets/other-user"})
		dir.AddCredential(Credential{OrgID: "org-2", Catalog: "jira", Owner: OwnerTeam, OwnerID: "team-0", SecretRef: "secrets/other-org"})

		visible := make(map[string]bool)
		if prof.AllowPersonal && personalRef != "" {
			visible[personalRef] = true
		}
		for _, id := range linked {
			if member[id] && teamRef[id] != "" {
				visible[teamRef[id]] = true
			}
		}

		ref, err := testResolver(dir).Resolve(context.Background(),
			Assignment{Catalog: "jira", ResolveAtCallTime: true},
			Caller{OrgID: "org-1", UserID: "u1", ActiveProfileID: prof.ID})

		if err != nil {
			var authErr *AuthenticationRequiredError
			if !errors.As(err, &authErr) {
				t.Fatalf("round %d: unexpected error: %v", round, err)
			}
			if len(visible) != 0 {
				t.Fatalf("round %d: auth required despite visible set %v", round, visible)
			}
			continue
		}
		if !visible[ref] {
			t.Fatalf("round %d: resolver returned %q outside visible set %v", round, ref, visible)
		}
		if prof.AllowPersonal && personalRef != "" && ref != personalRef {
			t.Fatalf("round %d: expected personal credential to win, got %q", round, ref)
		}
	}
}
