package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/spigell/job-radar/internal/catalog"
	"github.com/spigell/job-radar/internal/embedding"
)

// VectorIndex is the similarity index over job and profile vectors.
type VectorIndex struct {
	db DB
}

func NewVectorIndex(db DB) *VectorIndex {
	return &VectorIndex{db: db}
}

const upsertVector = `
INSERT INTO embeddings (kind, id, embedding, title, location, work_mode, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (kind, id) DO UPDATE SET
    embedding = EXCLUDED.embedding,
    title = EXCLUDED.title,
    location = EXCLUDED.location,
    work_mode = EXCLUDED.work_mode`

// Upsert writes all entries in one batch round trip.
func (x *VectorIndex) Upsert(ctx context.Context, entries []embedding.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(upsertVector,
			string(e.Kind), e.ID, pgvector.NewVector(e.Vector),
			e.Metadata.Title, e.Metadata.Location, string(e.Metadata.WorkMode), e.Metadata.CreatedAt,
		)
	}

	results := x.db.SendBatch(ctx, batch)
	defer results.Close()
	for range entries {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert vector: %w", err)
		}
	}
	return nil
}

// Nearest returns up to k entries of kind ordered by cosine distance.
func (x *VectorIndex) Nearest(ctx context.Context, kind embedding.Kind, vector []float32, k int) ([]embedding.IndexEntry, error) {
	query, args, err := nearestQuery(kind, vector, k).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := x.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query nearest: %w", err)
	}
	defer rows.Close()

	var out []embedding.IndexEntry
	for rows.Next() {
		var (
			e        embedding.IndexEntry
			kindCol  string
			vec      pgvector.Vector
			workMode string
		)
		if err := rows.Scan(&kindCol, &e.ID, &vec, &e.Metadata.Title, &e.Metadata.Location, &workMode, &e.Metadata.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		e.Kind = embedding.Kind(kindCol)
		e.Vector = vec.Slice()
		e.Metadata.WorkMode = catalog.WorkMode(workMode)
		out = append(out, e)
	}
	return out, rows.Err()
}

func nearestQuery(kind embedding.Kind, vector []float32, k int) sq.SelectBuilder {
	b := psql.Select("kind", "id", "embedding", "title", "location", "work_mode", "created_at").
		From("embeddings").
		Where(sq.Eq{"kind": string(kind)}).
		OrderByClause("embedding <=> ?", pgvector.NewVector(vector)).
		OrderBy("id")
	if k > 0 {
		b = b.Limit(uint64(k))
	}
	return b
}
