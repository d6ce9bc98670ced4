package profile

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("profile not found")

// Reader reads profiles owned by the profile service.
type Reader interface {
	GetProfile(ctx context.Context, userID string) (*Profile, error)
}

// PreferenceReader lists the stated preferences of every user that has any.
type PreferenceReader interface {
	AllPreferences(ctx context.Context) (map[string]Preferences, error)
}

// ApplicationReader reads the jobs a user already applied to.
type ApplicationReader interface {
	AppliedJobIDs(ctx context.Context, userID string) ([]string, error)
}
