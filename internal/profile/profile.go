// Package profile describes the slice of a user profile that embedding and
// match scoring read. Profiles are owned by an external profile service.
package profile

import (
	"sort"
	"time"

	"github.com/spigell/job-radar/internal/catalog"
)

type Role struct {
	Title     string     `json:"title"`
	Company   string     `json:"company"`
	Summary   string     `json:"summary,omitempty"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

type Education struct {
	Institution string     `json:"institution"`
	Degree      string     `json:"degree,omitempty"`
	Field       string     `json:"field,omitempty"`
	Summary     string     `json:"summary,omitempty"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
}

// Preferences are the user's stated search preferences.
type Preferences struct {
	DesiredTitles []string         `json:"desired_titles"`
	Locations     []string         `json:"locations"`
	WorkMode      catalog.WorkMode `json:"work_mode,omitempty"`
}

type Profile struct {
	UserID      string      `json:"user_id"`
	Name        string      `json:"name"`
	Bio         string      `json:"bio"`
	Skills      []string    `json:"skills"`
	Location    string      `json:"location"`
	Roles       []Role      `json:"roles"`
	Education   []Education `json:"education"`
	Preferences Preferences `json:"preferences"`
	UpdatedAt   *time.Time  `json:"updated_at,omitempty"`
	EmbeddedAt  *time.Time  `json:"embedded_at,omitempty"`
}

// Version is the last-modified timestamp in microseconds, the precision
// Postgres keeps, or 0 when unknown.
// It keys cached match results so any edit implicitly invalidates them.
func (p *Profile) Version() int64 {
	if p == nil || p.UpdatedAt == nil {
		return 0
	}
	return p.UpdatedAt.UnixMicro()
}

// RecentRoles returns at most n roles, current and most recently ended first.
func (p *Profile) RecentRoles(n int) []Role {
	roles := append([]Role(nil), p.Roles...)
	sort.SliceStable(roles, func(i, j int) bool {
		return endOf(roles[i].EndedAt).After(endOf(roles[j].EndedAt)) ||
			(endOf(roles[i].EndedAt).Equal(endOf(roles[j].EndedAt)) && roles[i].StartedAt.After(roles[j].StartedAt))
	})
	if n >= 0 && len(roles) > n {
		roles = roles[:n]
	}
	return roles
}

// RecentEducation returns at most n education entries, most recent first.
func (p *Profile) RecentEducation(n int) []Education {
	edu := append([]Education(nil), p.Education...)
	sort.SliceStable(edu, func(i, j int) bool {
		return endOf(edu[i].EndedAt).After(endOf(edu[j].EndedAt))
	})
	if n >= 0 && len(edu) > n {
		edu = edu[:n]
	}
	return edu
}

// open-ended entries sort as current
var farFuture = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)

func endOf(t *time.Time) time.Time {
	if t == nil {
		return farFuture
	}
	return *t
}
