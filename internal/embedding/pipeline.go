// Package embedding turns jobs and profiles into vectors, persists them and
// keeps the similarity index current.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/job-radar/internal/cache"
	"github.com/spigell/job-radar/internal/catalog"
	"github.com/spigell/job-radar/internal/logger"
	"github.com/spigell/job-radar/internal/profile"
)

type Kind string

const (
	KindJob  Kind = "job"
	KindUser Kind = "user"
)

// Metadata is the payload stored next to a vector in the index.
type Metadata struct {
	Title     string           `json:"title"`
	Location  string           `json:"location,omitempty"`
	WorkMode  catalog.WorkMode `json:"work_mode,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

type IndexEntry struct {
	Kind     Kind
	ID       string
	Vector   []float32
	Metadata Metadata
}

// Model returns one vector per input text, positionally aligned.
type Model interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type Index interface {
	Upsert(ctx context.Context, entries []IndexEntry) error
}

type JobWriter interface {
	SetJobEmbedding(ctx context.Context, jobID string, vector []float32, at time.Time) error
}

type ProfileWriter interface {
	SetProfileEmbedding(ctx context.Context, userID string, vector []float32, at time.Time) error
}

// ErrMisaligned is returned when the model answers with a different number
// of vectors than texts were sent.
var ErrMisaligned = errors.New("embedding count does not match input count")

type Config struct {
	// BatchSize caps the texts sent in one model call.
	BatchSize        int           `mapstructure:"batch-size"`
	ProfileCacheTTL  time.Duration `mapstructure:"profile-cache-ttl"`
	RecentRoles      int           `mapstructure:"recent-roles"`
	RecentEducation  int           `mapstructure:"recent-education"`
	DescriptionLimit int           `mapstructure:"description-limit"`
}

func DefaultConfig() Config {
	return Config{
		BatchSize:        100,
		ProfileCacheTTL:  24 * time.Hour,
		RecentRoles:      5,
		RecentEducation:  3,
		DescriptionLimit: 4000,
	}
}

type Pipeline struct {
	model    Model
	index    Index
	jobs     JobWriter
	profiles ProfileWriter
	cache    cache.Cache
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time
}

func NewPipeline(model Model, index Index, jobs JobWriter, profiles ProfileWriter, c cache.Cache, cfg Config, log *zap.Logger) *Pipeline {
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.ProfileCacheTTL <= 0 {
		cfg.ProfileCacheTTL = def.ProfileCacheTTL
	}
	if cfg.RecentRoles <= 0 {
		cfg.RecentRoles = def.RecentRoles
	}
	if cfg.RecentEducation <= 0 {
		cfg.RecentEducation = def.RecentEducation
	}
	return &Pipeline{
		model:    model,
		index:    index,
		jobs:     jobs,
		profiles: profiles,
		cache:    c,
		cfg:      cfg,
		logger:   logger.OrNop(log),
		now:      time.Now,
	}
}

// EmbedJob embeds a single job and returns its vector.
func (p *Pipeline) EmbedJob(ctx context.Context, job *catalog.JobPosting) ([]float32, error) {
	if _, err := p.EmbedJobs(ctx, []*catalog.JobPosting{job}); err != nil {
		return nil, err
	}
	return job.Embedding, nil
}

// EmbedJobs embeds jobs in chunks of BatchSize, persists every vector and
// finishes with one bulk index upsert. Vectors of chunks that succeeded are
// kept even when a later chunk fails. The jobs' Embedding and EmbeddedAt
// fields are set in place.
func (p *Pipeline) EmbedJobs(ctx context.Context, jobs []*catalog.JobPosting) (int, error) {
	if len(jobs) == 0 {
		return 0, nil
	}
	if p.model == nil {
		return 0, fmt.Errorf("embed jobs: no embedding model configured")
	}

	var (
		entries  = make([]IndexEntry, 0, len(jobs))
		chunkErr error
	)
	for start := 0; start < len(jobs); start += p.cfg.BatchSize {
		end := min(start+p.cfg.BatchSize, len(jobs))
		chunk := jobs[start:end]

		texts := make([]string, len(chunk))
		for i, job := range chunk {
			texts[i] = JobText(job, p.cfg.DescriptionLimit)
		}

		vectors, err := p.embed(ctx, texts)
		if err != nil {
			chunkErr = fmt.Errorf("embed jobs %d-%d: %w", start, end, err)
			break
		}

		at := p.now().UTC()
		for i, job := range chunk {
			if err := p.jobs.SetJobEmbedding(ctx, job.ID, vectors[i], at); err != nil {
				chunkErr = fmt.Errorf("persist embedding of %s: %w", job.ID, err)
				break
			}
			job.Embedding = vectors[i]
			job.EmbeddedAt = &at
			entries = append(entries, jobEntry(job))
		}
		if chunkErr != nil {
			break
		}
	}

	if len(entries) > 0 && p.index != nil {
		if err := p.index.Upsert(ctx, entries); err != nil {
			return 0, errors.Join(chunkErr, fmt.Errorf("index upsert: %w", err))
		}
	}

	p.logger.Debug("embedded jobs", zap.Int("requested", len(jobs)), zap.Int("embedded", len(entries)))
	return len(entries), chunkErr
}

type cachedVector struct {
	Version int64     `json:"version"`
	Vector  []float32 `json:"vector"`
}

// EmbedUserProfile returns the profile vector, from cache while it is fresh
// and matches the profile version, computing and persisting it otherwise.
func (p *Pipeline) EmbedUserProfile(ctx context.Context, prof *profile.Profile) ([]float32, error) {
	key := cache.EmbeddingKey(string(KindUser), prof.UserID)

	if p.cache != nil {
		var cached cachedVector
		hit, err := p.cache.GetJSON(ctx, key, &cached)
		if err != nil {
			p.logger.Warn("profile embedding cache read failed", zap.String("user", prof.UserID), zap.Error(err))
		}
		if hit && cached.Version == prof.Version() && len(cached.Vector) > 0 {
			return cached.Vector, nil
		}
	}
	if p.model == nil {
		return nil, fmt.Errorf("embed profile: no embedding model configured")
	}

	vectors, err := p.embed(ctx, []string{ProfileText(prof, p.cfg.RecentRoles, p.cfg.RecentEducation)})
	if err != nil {
		return nil, fmt.Errorf("embed profile %s: %w", prof.UserID, err)
	}
	vector := vectors[0]

	at := p.now().UTC()
	if p.profiles != nil {
		if err := p.profiles.SetProfileEmbedding(ctx, prof.UserID, vector, at); err != nil {
			return nil, fmt.Errorf("persist profile embedding: %w", err)
		}
	}
	if p.index != nil {
		entry := IndexEntry{
			Kind:   KindUser,
			ID:     prof.UserID,
			Vector: vector,
			Metadata: Metadata{
				Title:     prof.Name,
				Location:  prof.Location,
				WorkMode:  prof.Preferences.WorkMode,
				CreatedAt: at,
			},
		}
		if err := p.index.Upsert(ctx, []IndexEntry{entry}); err != nil {
			return nil, fmt.Errorf("index profile: %w", err)
		}
	}
	if p.cache != nil {
		if err := p.cache.SetJSON(ctx, key, cachedVector{Version: prof.Version(), Vector: vector}, p.cfg.ProfileCacheTTL); err != nil {
			p.logger.Warn("profile embedding cache write failed", zap.String("user", prof.UserID), zap.Error(err))
		}
	}

	prof.EmbeddedAt = &at
	return vector, nil
}

// InvalidateProfile drops the cached profile vector. Profile owners call it on
// every edit.
func (p *Pipeline) InvalidateProfile(ctx context.Context, userID string) error {
	if p.cache == nil {
		return nil
	}
	return p.cache.Del(ctx, cache.EmbeddingKey(string(KindUser), userID))
}

func (p *Pipeline) embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := p.model.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: sent %d, got %d", ErrMisaligned, len(texts), len(vectors))
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return nil, fmt.Errorf("empty vector at position %d", i)
		}
	}
	return vectors, nil
}

func jobEntry(job *catalog.JobPosting) IndexEntry {
	return IndexEntry{
		Kind:   KindJob,
		ID:     job.ID,
		Vector: job.Embedding,
		Metadata: Metadata{
			Title:     job.Title,
			Location:  job.Location,
			WorkMode:  job.WorkMode,
			CreatedAt: job.CreatedAt,
		},
	}
}
