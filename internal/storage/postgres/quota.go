package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/spigell/job-radar/internal/catalog"
	"github.com/spigell/job-radar/internal/quota"
)

var importColumns = []string{
	"id", "user_id", "sources", "status", "imported", "updated", "skipped", "errors",
	"error", "requested_at", "completed_at",
}

// ImportStore keeps the import audit trail.
type ImportStore struct {
	db DB
}

func NewImportStore(db DB) *ImportStore {
	return &ImportStore{db: db}
}

func (s *ImportStore) CreateImport(ctx context.Context, req *quota.ImportRequest) error {
	srcs := make([]string, 0, len(req.Sources))
	for _, src := range req.Sources {
		srcs = append(srcs, string(src))
	}

	query, args, err := psql.Insert("import_requests").
		Columns(importColumns...).
		Values(req.ID, req.UserID, srcs, string(req.Status), req.Counts.Imported, req.Counts.Updated,
			req.Counts.Skipped, req.Counts.Errors, req.Error, req.RequestedAt, req.CompletedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert import request: %w", err)
	}
	return nil
}

// TransitionImport applies t in one conditional UPDATE so a request reaches a
// terminal status exactly once.
func (s *ImportStore) TransitionImport(ctx context.Context, t quota.Transition) (bool, error) {
	from := make([]string, 0, len(t.From))
	for _, st := range t.From {
		from = append(from, string(st))
	}

	tag, err := s.db.Exec(ctx, `
UPDATE import_requests
SET status = $2, imported = $3, updated = $4, skipped = $5, errors = $6, error = $7,
    completed_at = COALESCE($8, completed_at)
WHERE id = $1 AND status = ANY($9)`,
		t.ID, string(t.To), t.Counts.Imported, t.Counts.Updated, t.Counts.Skipped, t.Counts.Errors,
		t.Error, t.CompletedAt, from,
	)
	if err != nil {
		return false, fmt.Errorf("update import request: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM import_requests WHERE id = $1)`, t.ID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check import request: %w", err)
	}
	if !exists {
		return false, quota.ErrNotFound
	}
	return false, nil
}

func (s *ImportStore) LastCompletedImport(ctx context.Context, userID string) (*quota.ImportRequest, error) {
	query, args, err := psql.Select(importColumns...).From("import_requests").
		Where(sq.Eq{"user_id": userID, "status": string(quota.StatusCompleted)}).
		OrderBy("requested_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	req, err := scanImport(s.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query last import: %w", err)
	}
	return req, nil
}

func (s *ImportStore) ListImports(ctx context.Context, userID string, limit int) ([]quota.ImportRequest, error) {
	b := psql.Select(importColumns...).From("import_requests").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("requested_at DESC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query imports: %w", err)
	}
	defer rows.Close()

	var out []quota.ImportRequest
	for rows.Next() {
		req, err := scanImport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, *req)
	}
	return out, rows.Err()
}

func scanImport(row pgx.Row) (*quota.ImportRequest, error) {
	var (
		req    quota.ImportRequest
		srcs   []string
		status string
	)
	if err := row.Scan(&req.ID, &req.UserID, &srcs, &status, &req.Counts.Imported, &req.Counts.Updated,
		&req.Counts.Skipped, &req.Counts.Errors, &req.Error, &req.RequestedAt, &req.CompletedAt); err != nil {
		return nil, err
	}
	req.Status = quota.Status(status)
	for _, src := range srcs {
		req.Sources = append(req.Sources, catalog.Source(src))
	}
	return &req, nil
}

// UsageStore keeps the monthly usage counters.
type UsageStore struct {
	db  DB
	now func() time.Time
}

func NewUsageStore(db DB) *UsageStore {
	return &UsageStore{db: db, now: time.Now}
}

func (s *UsageStore) Usage(ctx context.Context, userID, month string) (map[quota.Action]int, error) {
	rows, err := s.db.Query(ctx,
		`SELECT action, count FROM usage_counters WHERE user_id = $1 AND month = $2`,
		userID, month,
	)
	if err != nil {
		return nil, fmt.Errorf("query usage: %w", err)
	}
	defer rows.Close()

	out := make(map[quota.Action]int)
	for rows.Next() {
		var (
			action string
			count  int
		)
		if err := rows.Scan(&action, &count); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out[quota.Action(action)] = count
	}
	return out, rows.Err()
}

// IncrementUsage upserts and bumps the counter in a single statement.
func (s *UsageStore) IncrementUsage(ctx context.Context, userID, month string, action quota.Action, amount int) (int, error) {
	var count int
	err := s.db.QueryRow(ctx, `
INSERT INTO usage_counters (user_id, month, action, count, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (user_id, month, action) DO UPDATE SET
    count = usage_counters.count + EXCLUDED.count,
    updated_at = EXCLUDED.updated_at
RETURNING count`,
		userID, month, string(action), amount, s.now().UTC(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("increment usage: %w", err)
	}
	return count, nil
}

func (s *UsageStore) DeleteUsageBefore(ctx context.Context, month string) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM usage_counters WHERE month < $1`, month)
	if err != nil {
		return 0, fmt.Errorf("delete usage: %w", err)
	}
	return tag.RowsAffected(), nil
}
