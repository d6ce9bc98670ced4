// Package recommend selects candidate jobs for a user, scores them with a
// cached model call and ranks the results.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/job-radar/internal/cache"
	"github.com/spigell/job-radar/internal/catalog"
	"github.com/spigell/job-radar/internal/embedding"
	"github.com/spigell/job-radar/internal/logger"
	"github.com/spigell/job-radar/internal/profile"
)

var (
	ErrProfileNotFound = profile.ErrNotFound
	ErrNoGenerator     = errors.New("match scoring model is not configured")
)

const defaultLimit = 10

type Catalog interface {
	RecentJobs(ctx context.Context, q catalog.RecentQuery) ([]*catalog.JobPosting, error)
}

type Generator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

type ProfileEmbedder interface {
	EmbedUserProfile(ctx context.Context, p *profile.Profile) ([]float32, error)
}

type JobGetter interface {
	Get(ctx context.Context, id string) (*catalog.JobPosting, error)
}

type Nearest interface {
	Nearest(ctx context.Context, kind embedding.Kind, vector []float32, k int) ([]embedding.IndexEntry, error)
}

// Deps aggregates the collaborators of the engine. Embedder, Jobs and Index
// are optional.
type Deps struct {
	Catalog      Catalog
	Profiles     profile.Reader
	Applications profile.ApplicationReader
	Generator    Generator
	Cache        cache.Cache
	Embedder     ProfileEmbedder
	Jobs         JobGetter
	Index        Nearest
}

type Config struct {
	Lookback         time.Duration `mapstructure:"lookback"`
	PoolSize         int           `mapstructure:"pool-size"`
	CacheTTL         time.Duration `mapstructure:"cache-ttl"`
	Concurrency      int           `mapstructure:"concurrency"`
	DescriptionLimit int           `mapstructure:"description-limit"`
	RecentRoles      int           `mapstructure:"recent-roles"`
	RecentEducation  int           `mapstructure:"recent-education"`
}

func DefaultConfig() Config {
	return Config{
		Lookback:         14 * 24 * time.Hour,
		PoolSize:         50,
		CacheTTL:         72 * time.Hour,
		Concurrency:      4,
		DescriptionLimit: 2000,
		RecentRoles:      3,
		RecentEducation:  2,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Lookback <= 0 {
		c.Lookback = def.Lookback
	}
	if c.PoolSize <= 0 {
		c.PoolSize = def.PoolSize
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = def.CacheTTL
	}
	if c.Concurrency <= 0 {
		c.Concurrency = def.Concurrency
	}
	if c.DescriptionLimit <= 0 {
		c.DescriptionLimit = def.DescriptionLimit
	}
	if c.RecentRoles <= 0 {
		c.RecentRoles = def.RecentRoles
	}
	if c.RecentEducation <= 0 {
		c.RecentEducation = def.RecentEducation
	}
	return c
}

// JobSummary is the job data rendered next to a match.
type JobSummary struct {
	ID       string           `json:"id"`
	Title    string           `json:"title"`
	Company  string           `json:"company"`
	Location string           `json:"location"`
	WorkMode catalog.WorkMode `json:"work_mode"`
	Salary   catalog.Salary   `json:"salary"`
	URL      string           `json:"url,omitempty"`
	Source   catalog.Source   `json:"source"`
	PostedAt time.Time        `json:"posted_at"`
}

func summarize(job *catalog.JobPosting) JobSummary {
	return JobSummary{
		ID:       job.ID,
		Title:    job.Title,
		Company:  job.Company,
		Location: job.Location,
		WorkMode: job.WorkMode,
		Salary:   job.Salary,
		URL:      job.URL,
		Source:   job.Source,
		PostedAt: job.PostedAt,
	}
}

// Result is a ranked recommendation.
type Result struct {
	Match
	Job JobSummary `json:"job"`
}

type Engine struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

func NewEngine(deps Deps, cfg Config, log *zap.Logger) (*Engine, error) {
	if deps.Generator == nil {
		return nil, ErrNoGenerator
	}
	if deps.Catalog == nil || deps.Profiles == nil {
		return nil, errors.New("catalog and profile store are required")
	}
	return &Engine{
		deps:   deps,
		cfg:    cfg.withDefaults(),
		logger: logger.OrNop(log).With(zap.String("component", "recommend")),
		now:    time.Now,
	}, nil
}

// ScoreMatch scores one job for the profile. It never fails: model and parse
// errors produce the fallback result, which is not cached.
func (e *Engine) ScoreMatch(ctx context.Context, p *profile.Profile, job *catalog.JobPosting) Match {
	key := cache.MatchKey(p.UserID, job.ID, p.Version())
	log := e.logger.With(zap.String("user", p.UserID), zap.String("job", job.ID))

	if e.deps.Cache != nil {
		var cached Match
		hit, err := e.deps.Cache.GetJSON(ctx, key, &cached)
		if err != nil {
			log.Warn("match cache read failed", zap.Error(err))
		}
		if hit {
			return cached
		}
	}

	prompt, err := buildPrompt(
		condenseProfile(p, e.cfg.RecentRoles, e.cfg.RecentEducation),
		condenseJob(job, e.cfg.DescriptionLimit),
	)
	if err != nil {
		log.Warn("build match prompt failed", zap.Error(err))
		return Fallback(job.ID)
	}

	raw, err := e.deps.Generator.GenerateContent(ctx, prompt)
	if err != nil {
		log.Warn("match scoring failed, using fallback", zap.Error(err))
		return Fallback(job.ID)
	}

	match, err := ParseMatch(raw)
	if err != nil {
		log.Warn("match output unparseable, using fallback", zap.Error(err))
		return Fallback(job.ID)
	}
	match.JobID = job.ID

	if e.deps.Cache != nil {
		if err := e.deps.Cache.SetJSON(ctx, key, match, e.cfg.CacheTTL); err != nil {
			log.Warn("match cache write failed", zap.Error(err))
		}
	}
	return match
}

// GetTopRecommendations returns up to limit scored candidates, best first.
// A user with no eligible candidates gets an empty list.
func (e *Engine) GetTopRecommendations(ctx context.Context, userID string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = defaultLimit
	}

	p, err := e.deps.Profiles.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, userID)
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}

	candidates, err := e.candidates(ctx, p)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return []Result{}, nil
	}

	results := make([]Result, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for i, job := range candidates {
		g.Go(func() error {
			results[i] = Result{Match: e.ScoreMatch(gctx, p, job), Job: summarize(job)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ranked := rank(results, limit)
	e.logger.Info("recommendations ready",
		zap.String("user", userID),
		zap.Int("candidates", len(candidates)),
		zap.Int("returned", len(ranked)),
	)
	return ranked, nil
}

func (e *Engine) candidates(ctx context.Context, p *profile.Profile) ([]*catalog.JobPosting, error) {
	var applied []string
	if e.deps.Applications != nil {
		ids, err := e.deps.Applications.AppliedJobIDs(ctx, p.UserID)
		if err != nil {
			return nil, fmt.Errorf("get applied jobs: %w", err)
		}
		applied = ids
	}

	q := catalog.RecentQuery{
		Since: e.now().Add(-e.cfg.Lookback),
		Limit: e.cfg.PoolSize + len(applied),
	}
	if e.deps.Embedder != nil {
		vector, err := e.deps.Embedder.EmbedUserProfile(ctx, p)
		if err != nil {
			e.logger.Warn("profile embedding unavailable, ranking candidates by recency only",
				zap.String("user", p.UserID), zap.Error(err))
		} else {
			q.Near = vector
		}
	}

	jobs, err := e.deps.Catalog.RecentJobs(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list recent jobs: %w", err)
	}

	return runFilters(ctx, e.logger, []Filter{
		NewUnique(),
		NewAppliedHistory(applied),
		NewPoolCap(e.cfg.PoolSize),
	}, jobs)
}

// rank orders by score, then newest posting, then id, and drops repeated ids.
func rank(results []Result, limit int) []Result {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Job.PostedAt.Equal(b.Job.PostedAt) {
			return a.Job.PostedAt.After(b.Job.PostedAt)
		}
		return a.JobID < b.JobID
	})

	seen := make(map[string]struct{}, len(results))
	out := make([]Result, 0, min(limit, len(results)))
	for _, r := range results {
		if _, ok := seen[r.JobID]; ok {
			continue
		}
		seen[r.JobID] = struct{}{}
		out = append(out, r)
		if len(out) == limit {
			break
		}
	}
	return out
}

// SimilarJobs returns up to k jobs whose vectors are nearest to the given job.
func (e *Engine) SimilarJobs(ctx context.Context, jobID string, k int) ([]JobSummary, error) {
	if e.deps.Jobs == nil || e.deps.Index == nil {
		return nil, errors.New("similarity search is not configured")
	}

	job, err := e.deps.Jobs.Get(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if len(job.Embedding) == 0 {
		return []JobSummary{}, nil
	}

	entries, err := e.deps.Index.Nearest(ctx, embedding.KindJob, job.Embedding, k+1)
	if err != nil {
		return nil, fmt.Errorf("nearest jobs: %w", err)
	}

	out := make([]JobSummary, 0, k)
	for _, entry := range entries {
		if entry.ID == jobID {
			continue
		}
		similar, err := e.deps.Jobs.Get(ctx, entry.ID)
		if err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("get job: %w", err)
		}
		out = append(out, summarize(similar))
		if len(out) == k {
			break
		}
	}
	return out, nil
}
