package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/spigell/job-radar/internal/profile"
)

// ProfileStore reads the tables owned by the profile service and writes back
// the derived profile vector.
type ProfileStore struct {
	db DB
}

func NewProfileStore(db DB) *ProfileStore {
	return &ProfileStore{db: db}
}

func (s *ProfileStore) GetProfile(ctx context.Context, userID string) (*profile.Profile, error) {
	var (
		data       []byte
		updatedAt  *time.Time
		embeddedAt *time.Time
	)
	err := s.db.QueryRow(ctx,
		`SELECT data, updated_at, embedded_at FROM profiles WHERE user_id = $1`, userID,
	).Scan(&data, &updatedAt, &embeddedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, profile.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query profile: %w", err)
	}

	var p profile.Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", userID, err)
	}
	p.UserID = userID
	p.UpdatedAt = updatedAt
	p.EmbeddedAt = embeddedAt
	return &p, nil
}

func (s *ProfileStore) SetProfileEmbedding(ctx context.Context, userID string, vector []float32, at time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE profiles SET embedding = $2, embedded_at = $3 WHERE user_id = $1`,
		userID, pgvector.NewVector(vector), at,
	)
	if err != nil {
		return fmt.Errorf("set profile embedding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return profile.ErrNotFound
	}
	return nil
}

// AllPreferences returns the preferences of users with at least one desired title.
func (s *ProfileStore) AllPreferences(ctx context.Context) (map[string]profile.Preferences, error) {
	rows, err := s.db.Query(ctx, `
SELECT user_id, data->'preferences'
FROM profiles
WHERE jsonb_array_length(COALESCE(data->'preferences'->'desired_titles', '[]'::jsonb)) > 0`)
	if err != nil {
		return nil, fmt.Errorf("query preferences: %w", err)
	}
	defer rows.Close()

	out := make(map[string]profile.Preferences)
	for rows.Next() {
		var (
			userID string
			raw    []byte
		)
		if err := rows.Scan(&userID, &raw); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		var prefs profile.Preferences
		if err := json.Unmarshal(raw, &prefs); err != nil {
			return nil, fmt.Errorf("decode preferences of %s: %w", userID, err)
		}
		out[userID] = prefs
	}
	return out, rows.Err()
}

func (s *ProfileStore) AppliedJobIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT job_id FROM applications WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("query applications: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan applications: %w", err)
	}
	return ids, nil
}

// UserTier returns "" for unknown users so the default tier applies.
func (s *ProfileStore) UserTier(ctx context.Context, userID string) (string, error) {
	var tier string
	err := s.db.QueryRow(ctx, `SELECT tier FROM profiles WHERE user_id = $1`, userID).Scan(&tier)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query tier: %w", err)
	}
	return tier, nil
}
