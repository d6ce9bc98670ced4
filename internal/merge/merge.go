// Package merge decides whether an incoming normalized job is new, an update
// of an existing catalog entry, or a lower-priority duplicate.
package merge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/job-radar/internal/catalog"
	"github.com/spigell/job-radar/internal/logger"
)

type Outcome string

const (
	Inserted Outcome = "inserted"
	Updated  Outcome = "updated"
	Skipped  Outcome = "skipped"
)

// Result is the merge decision and the catalog entry it produced or kept.
type Result struct {
	Outcome Outcome
	Job     *catalog.JobPosting
	// Reason explains skips and is empty otherwise.
	Reason string
}

// Store is the catalog view the engine needs. Find methods return nil, nil
// when nothing matches; FindByKey returns the oldest entry when several share
// a key. Insert and Update return catalog.ErrConflict on a URL collision.
type Store interface {
	FindByURL(ctx context.Context, url string) (*catalog.JobPosting, error)
	FindByKey(ctx context.Context, key string) (*catalog.JobPosting, error)
	Insert(ctx context.Context, job *catalog.JobPosting) error
	Update(ctx context.Context, job *catalog.JobPosting) error
}

// Scheduler receives every inserted or updated job for embedding. It must not
// block the caller.
type Scheduler interface {
	Schedule(job *catalog.JobPosting)
}

type Engine struct {
	store      Store
	priorities Priorities
	scheduler  Scheduler
	logger     *zap.Logger
	now        func() time.Time
	newID      func() string
}

func NewEngine(store Store, priorities Priorities, scheduler Scheduler, log *zap.Logger) *Engine {
	return &Engine{
		store:      store,
		priorities: priorities,
		scheduler:  scheduler,
		logger:     logger.OrNop(log),
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

func (e *Engine) Priorities() Priorities {
	return e.priorities
}

// Merge resolves job against the catalog: URL match first, normalized key
// second, insert otherwise. A write that loses a race against a concurrent
// writer is resolved once more against the fresh state.
func (e *Engine) Merge(ctx context.Context, src catalog.Source, job catalog.NormalizedJob) (Result, error) {
	if strings.TrimSpace(job.Title) == "" {
		return Result{}, fmt.Errorf("merge: job without title")
	}
	job.URL = strings.TrimSpace(job.URL)

	res, err := e.resolve(ctx, src, job)
	if errors.Is(err, catalog.ErrConflict) {
		e.logger.Debug("merge conflict, retrying", zap.String("url", job.URL))
		res, err = e.resolve(ctx, src, job)
	}
	if err != nil {
		return Result{}, err
	}

	if res.Outcome != Skipped && e.scheduler != nil {
		e.scheduler.Schedule(res.Job.Clone())
	}

	return res, nil
}

func (e *Engine) resolve(ctx context.Context, src catalog.Source, job catalog.NormalizedJob) (Result, error) {
	key := job.Key()

	if job.URL != "" {
		existing, err := e.store.FindByURL(ctx, job.URL)
		if err != nil {
			return Result{}, fmt.Errorf("find by url: %w", err)
		}
		if existing != nil {
			if e.priorities.Compare(src, existing.Source) < 0 {
				return skip(existing, "url match from higher-priority %s", existing.Source), nil
			}
			if existing.Key != key {
				e.checkKeyCollision(ctx, existing, key)
			}
			return e.overwrite(ctx, existing, src, job, key)
		}
	}

	existing, err := e.store.FindByKey(ctx, key)
	if err != nil {
		return Result{}, fmt.Errorf("find by key: %w", err)
	}
	if existing != nil {
		if e.priorities.Compare(src, existing.Source) <= 0 {
			return skip(existing, "key match from %s, incoming %s does not outrank it", existing.Source, src), nil
		}
		return e.overwrite(ctx, existing, src, job, key)
	}

	now := e.now().UTC()
	posting := &catalog.JobPosting{
		ID:            e.newID(),
		NormalizedJob: job,
		Source:        src,
		Key:           key,
		CreatedAt:     now,
		LastSeenAt:    now,
	}
	if err := e.store.Insert(ctx, posting); err != nil {
		return Result{}, fmt.Errorf("insert: %w", err)
	}

	return Result{Outcome: Inserted, Job: posting}, nil
}

// overwrite replaces every mutable field, URL included. Identity, creation
// time and the embedding stay; the embedding gets refreshed by the scheduler.
func (e *Engine) overwrite(ctx context.Context, existing *catalog.JobPosting, src catalog.Source, job catalog.NormalizedJob, key string) (Result, error) {
	updated := existing.Clone()
	if job.URL == "" {
		job.URL = existing.URL
	}
	updated.NormalizedJob = job
	updated.Source = src
	updated.Key = key
	updated.LastSeenAt = e.now().UTC()

	if err := e.store.Update(ctx, updated); err != nil {
		return Result{}, fmt.Errorf("update %s: %w", existing.ID, err)
	}

	return Result{Outcome: Updated, Job: updated}, nil
}

// checkKeyCollision logs when a URL-matched update moves a row onto a key
// another row already holds. The URL match still wins; the two rows then share
// a key until one of them is re-posted.
func (e *Engine) checkKeyCollision(ctx context.Context, existing *catalog.JobPosting, key string) {
	other, err := e.store.FindByKey(ctx, key)
	if err != nil {
		e.logger.Debug("key collision check failed", zap.String("job_id", existing.ID), zap.Error(err))
		return
	}
	if other == nil || other.ID == existing.ID {
		return
	}
	e.logger.Warn("url match moves job onto a key held by another job",
		zap.String("job_id", existing.ID),
		zap.String("other_job_id", other.ID),
		zap.String("key", key),
	)
}

func skip(existing *catalog.JobPosting, format string, args ...any) Result {
	return Result{Outcome: Skipped, Job: existing, Reason: fmt.Sprintf(format, args...)}
}
