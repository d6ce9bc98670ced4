package recommend

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/job-radar/internal/catalog"
)

// Filter is a single candidate selection step.
type Filter interface {
	Name() string
	Apply(ctx context.Context, jobs []*catalog.JobPosting) ([]*catalog.JobPosting, Step, error)
}

// Step describes the result of executing a filtering step.
type Step struct {
	Initial int
	Dropped int
	Left    int
}

// runFilters executes the supplied filters sequentially.
func runFilters(ctx context.Context, log *zap.Logger, steps []Filter, jobs []*catalog.JobPosting) ([]*catalog.JobPosting, error) {
	for _, step := range steps {
		next, info, err := step.Apply(ctx, jobs)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", step.Name(), err)
		}

		log.Debug("filter step",
			zap.String("name", step.Name()),
			zap.Int("initial", info.Initial),
			zap.Int("dropped", info.Dropped),
			zap.Int("left", info.Left),
		)
		jobs = next
	}
	return jobs, nil
}

type appliedHistoryFilter struct {
	applied map[string]struct{}
}

// NewAppliedHistory removes jobs the user already applied to.
func NewAppliedHistory(jobIDs []string) Filter {
	applied := make(map[string]struct{}, len(jobIDs))
	for _, id := range jobIDs {
		applied[id] = struct{}{}
	}
	return &appliedHistoryFilter{applied: applied}
}

func (f *appliedHistoryFilter) Name() string { return "applied_history" }

func (f *appliedHistoryFilter) Apply(_ context.Context, jobs []*catalog.JobPosting) ([]*catalog.JobPosting, Step, error) {
	return keep(jobs, func(job *catalog.JobPosting) bool {
		_, ok := f.applied[job.ID]
		return !ok
	})
}

type uniqueFilter struct{}

// NewUnique drops repeated job ids, keeping the first.
func NewUnique() Filter { return uniqueFilter{} }

func (uniqueFilter) Name() string { return "unique" }

func (uniqueFilter) Apply(_ context.Context, jobs []*catalog.JobPosting) ([]*catalog.JobPosting, Step, error) {
	seen := make(map[string]struct{}, len(jobs))
	return keep(jobs, func(job *catalog.JobPosting) bool {
		if job == nil {
			return false
		}
		if _, ok := seen[job.ID]; ok {
			return false
		}
		seen[job.ID] = struct{}{}
		return true
	})
}

type poolCapFilter struct {
	size int
}

// NewPoolCap keeps at most size jobs.
func NewPoolCap(size int) Filter { return poolCapFilter{size: size} }

func (f poolCapFilter) Name() string { return "pool_cap" }

func (f poolCapFilter) Apply(_ context.Context, jobs []*catalog.JobPosting) ([]*catalog.JobPosting, Step, error) {
	initial := len(jobs)
	if f.size > 0 && len(jobs) > f.size {
		jobs = jobs[:f.size]
	}
	return jobs, Step{Initial: initial, Dropped: initial - len(jobs), Left: len(jobs)}, nil
}

func keep(jobs []*catalog.JobPosting, pred func(*catalog.JobPosting) bool) ([]*catalog.JobPosting, Step, error) {
	out := make([]*catalog.JobPosting, 0, len(jobs))
	for _, job := range jobs {
		if pred(job) {
			out = append(out, job)
		}
	}
	return out, Step{Initial: len(jobs), Dropped: len(jobs) - len(out), Left: len(out)}, nil
}
