package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/spigell/job-radar/internal/catalog"
)

var jobColumns = []string{
	"id", "external_id", "title", "company", "location", "region_code", "work_mode",
	"description", "requirements", "salary_min", "salary_max", "salary_currency",
	"salary_predicted", "posted_at", "source", "url", "dedup_key", "embedding",
	"embedded_at", "created_at", "last_seen_at",
}

// JobStore is the catalog. It implements merge.Store and the embedding
// writers.
type JobStore struct {
	db DB
}

func NewJobStore(db DB) *JobStore {
	return &JobStore{db: db}
}

func (s *JobStore) FindByURL(ctx context.Context, url string) (*catalog.JobPosting, error) {
	if url == "" {
		return nil, nil
	}
	return s.findOne(ctx, psql.Select(jobColumns...).From("jobs").Where(sq.Eq{"url": url}).Limit(1))
}

// FindByKey returns the oldest entry sharing the key.
func (s *JobStore) FindByKey(ctx context.Context, key string) (*catalog.JobPosting, error) {
	return s.findOne(ctx, psql.Select(jobColumns...).From("jobs").
		Where(sq.Eq{"dedup_key": key}).
		OrderBy("created_at", "id").
		Limit(1))
}

func (s *JobStore) Get(ctx context.Context, id string) (*catalog.JobPosting, error) {
	job, err := s.findOne(ctx, psql.Select(jobColumns...).From("jobs").Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, catalog.ErrNotFound
	}
	return job, nil
}

func (s *JobStore) findOne(ctx context.Context, b sq.SelectBuilder) (*catalog.JobPosting, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	job, err := scanJob(s.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query job: %w", err)
	}
	return job, nil
}

func (s *JobStore) Insert(ctx context.Context, job *catalog.JobPosting) error {
	query, args, err := psql.Insert("jobs").
		Columns(
			"id", "external_id", "title", "company", "location", "region_code", "work_mode",
			"description", "requirements", "salary_min", "salary_max", "salary_currency",
			"salary_predicted", "posted_at", "source", "url", "dedup_key", "created_at", "last_seen_at",
		).
		Values(
			job.ID, job.ExternalID, job.Title, job.Company, job.Location, job.RegionCode, string(job.WorkMode),
			job.Description, requirements(job.Requirements), job.Salary.Min, job.Salary.Max, job.Salary.Currency,
			job.Salary.Predicted, nullTime(job.PostedAt), string(job.Source), nullString(job.URL), job.Key,
			job.CreatedAt, job.LastSeenAt,
		).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %w", catalog.ErrConflict, err)
		}
		return err
	}
	return nil
}

// Update overwrites the mutable fields. The embedding columns are left alone.
func (s *JobStore) Update(ctx context.Context, job *catalog.JobPosting) error {
	query, args, err := psql.Update("jobs").SetMap(map[string]any{
		"external_id":      job.ExternalID,
		"title":            job.Title,
		"company":          job.Company,
		"location":         job.Location,
		"region_code":      job.RegionCode,
		"work_mode":        string(job.WorkMode),
		"description":      job.Description,
		"requirements":     requirements(job.Requirements),
		"salary_min":       job.Salary.Min,
		"salary_max":       job.Salary.Max,
		"salary_currency":  job.Salary.Currency,
		"salary_predicted": job.Salary.Predicted,
		"posted_at":        nullTime(job.PostedAt),
		"source":           string(job.Source),
		"url":              nullString(job.URL),
		"dedup_key":        job.Key,
		"last_seen_at":     job.LastSeenAt,
	}).Where(sq.Eq{"id": job.ID}).ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %w", catalog.ErrConflict, err)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

func (s *JobStore) SetJobEmbedding(ctx context.Context, id string, vector []float32, at time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE jobs SET embedding = $2, embedded_at = $3 WHERE id = $1`,
		id, pgvector.NewVector(vector), at,
	)
	if err != nil {
		return fmt.Errorf("set job embedding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

// MissingEmbeddings lists jobs without a vector or re-seen after embedding,
// oldest first.
func (s *JobStore) MissingEmbeddings(ctx context.Context, limit int) ([]*catalog.JobPosting, error) {
	b := psql.Select(jobColumns...).From("jobs").
		Where(sq.Or{sq.Eq{"embedding": nil}, sq.Expr("embedded_at < last_seen_at")}).
		OrderBy("last_seen_at", "id")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	return s.list(ctx, b)
}

// RecentJobs lists jobs seen since q.Since, nearest to q.Near first when set.
func (s *JobStore) RecentJobs(ctx context.Context, q catalog.RecentQuery) ([]*catalog.JobPosting, error) {
	return s.list(ctx, recentJobsQuery(q))
}

func recentJobsQuery(q catalog.RecentQuery) sq.SelectBuilder {
	b := psql.Select(jobColumns...).From("jobs").Where(sq.GtOrEq{"last_seen_at": q.Since}).OrderBy("last_seen_at DESC")
	if len(q.Near) > 0 {
		b = b.OrderByClause("embedding <=> ? NULLS LAST", pgvector.NewVector(q.Near))
	}
	b = b.OrderBy("id")
	if q.Limit > 0 {
		b = b.Limit(uint64(q.Limit))
	}
	return b
}

func (s *JobStore) list(ctx context.Context, b sq.SelectBuilder) ([]*catalog.JobPosting, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var out []*catalog.JobPosting
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func scanJob(row pgx.Row) (*catalog.JobPosting, error) {
	var (
		job       catalog.JobPosting
		workMode  string
		source    string
		postedAt  *time.Time
		url       *string
		embedding *pgvector.Vector
	)
	err := row.Scan(
		&job.ID, &job.ExternalID, &job.Title, &job.Company, &job.Location, &job.RegionCode, &workMode,
		&job.Description, &job.Requirements, &job.Salary.Min, &job.Salary.Max, &job.Salary.Currency,
		&job.Salary.Predicted, &postedAt, &source, &url, &job.Key, &embedding,
		&job.EmbeddedAt, &job.CreatedAt, &job.LastSeenAt,
	)
	if err != nil {
		return nil, err
	}

	job.WorkMode = catalog.WorkMode(workMode)
	job.Source = catalog.Source(source)
	if postedAt != nil {
		job.PostedAt = *postedAt
	}
	if url != nil {
		job.URL = *url
	}
	if embedding != nil {
		job.Embedding = embedding.Slice()
	}
	return &job, nil
}

func requirements(r []string) []string {
	if r == nil {
		return []string{}
	}
	return r
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
