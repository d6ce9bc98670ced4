package profile

import (
	"testing"
	"time"
)

func TestVersion(t *testing.T) {
	t.Parallel()

	var empty *Profile
	if empty.Version() != 0 {
		t.Fatalf("expected zero version for nil profile")
	}

	if (&Profile{}).Version() != 0 {
		t.Fatalf("expected zero version without timestamp")
	}

	ts := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	p := &Profile{UpdatedAt: &ts}
	if p.Version() != ts.UnixMicro() {
		t.Fatalf("expected %d, got %d", ts.UnixMicro(), p.Version())
	}

	// two edits inside one millisecond are still distinct versions
	next := ts.Add(300 * time.Microsecond)
	if (&Profile{UpdatedAt: &next}).Version() == p.Version() {
		t.Fatalf("expected sub-millisecond edits to change the version")
	}
}

func TestRecentRolesOrdersCurrentFirst(t *testing.T) {
	t.Parallel()

	ended2020 := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	ended2023 := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

	p := &Profile{Roles: []Role{
		{Title: "Junior", EndedAt: &ended2020},
		{Title: "Current", StartedAt: ended2023},
		{Title: "Middle", EndedAt: &ended2023},
		{Title: "Intern", EndedAt: &ended2020, StartedAt: ended2020.AddDate(-1, 0, 0)},
	}}

	roles := p.RecentRoles(3)
	if len(roles) != 3 {
		t.Fatalf("expected 3 roles, got %d", len(roles))
	}
	if roles[0].Title != "Current" || roles[1].Title != "Middle" {
		t.Fatalf("unexpected order: %+v", roles)
	}

	if len(p.Roles) != 4 || p.Roles[0].Title != "Junior" {
		t.Fatalf("original roles must not be reordered")
	}
}
