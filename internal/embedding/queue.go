package embedding

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/job-radar/internal/catalog"
	"github.com/spigell/job-radar/internal/logger"
	"github.com/spigell/job-radar/internal/utils"
)

// BatchEmbedder is the part of Pipeline the queue drives.
type BatchEmbedder interface {
	EmbedJobs(ctx context.Context, jobs []*catalog.JobPosting) (int, error)
}

type QueueConfig struct {
	Size      int `mapstructure:"queue-size"`
	Workers   int `mapstructure:"workers"`
	BatchSize int `mapstructure:"queue-batch-size"`
	// Retries is the number of extra attempts for a failed batch.
	Retries int           `mapstructure:"retries"`
	Backoff utils.Backoff `mapstructure:",squash"`
}

func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		Size:      1000,
		Workers:   2,
		BatchSize: 32,
		Retries:   2,
		Backoff:   utils.Backoff{Initial: time.Second, Max: 10 * time.Second},
	}
}

type QueueStats struct {
	Scheduled int64 `json:"scheduled"`
	Embedded  int64 `json:"embedded"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
}

// Queue is a bounded worker pool for embedding refreshes after catalog
// writes. Schedule never blocks: when the buffer is full the job is dropped
// and counted, and the backfill command picks it up later.
type Queue struct {
	embedder BatchEmbedder
	cfg      QueueConfig
	logger   *zap.Logger
	wait     func(ctx context.Context, d time.Duration) error

	jobs   chan *catalog.JobPosting
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	scheduled atomic.Int64
	embedded  atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

func NewQueue(embedder BatchEmbedder, cfg QueueConfig, log *zap.Logger) *Queue {
	def := DefaultQueueConfig()
	if cfg.Size <= 0 {
		cfg.Size = def.Size
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.Backoff.Initial <= 0 {
		cfg.Backoff = def.Backoff
	}
	return &Queue{
		embedder: embedder,
		cfg:      cfg,
		logger:   logger.OrNop(log).With(zap.String("component", "embedding-queue")),
		wait:     utils.WaitFor,
		jobs:     make(chan *catalog.JobPosting, cfg.Size),
	}
}

// Start launches the workers. They run until Close is called and the buffer
// is drained, or until ctx is cancelled.
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.work(ctx, i)
	}
}

// Schedule hands job to the workers without waiting.
func (q *Queue) Schedule(job *catalog.JobPosting) {
	if job == nil {
		return
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.dropped.Add(1)
		return
	}

	select {
	case q.jobs <- job:
		q.scheduled.Add(1)
	default:
		q.dropped.Add(1)
		q.logger.Warn("embedding queue full, dropping job", zap.String("job", job.ID))
	}
}

// Close stops accepting jobs and waits for the workers to drain the buffer.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()

	q.wg.Wait()
}

func (q *Queue) Stats() QueueStats {
	return QueueStats{
		Scheduled: q.scheduled.Load(),
		Embedded:  q.embedded.Load(),
		Failed:    q.failed.Load(),
		Dropped:   q.dropped.Load(),
	}
}

func (q *Queue) work(ctx context.Context, id int) {
	defer q.wg.Done()
	log := q.logger.With(zap.Int("worker", id))

	for {
		var first *catalog.JobPosting
		var ok bool
		select {
		case <-ctx.Done():
			return
		case first, ok = <-q.jobs:
			if !ok {
				return
			}
		}

		batch := []*catalog.JobPosting{first}
	fill:
		for len(batch) < q.cfg.BatchSize {
			select {
			case job, ok := <-q.jobs:
				if !ok {
					break fill
				}
				batch = append(batch, job)
			default:
				break fill
			}
		}

		q.process(ctx, log, batch)
	}
}

func (q *Queue) process(ctx context.Context, log *zap.Logger, batch []*catalog.JobPosting) {
	var lastErr error
	for attempt := 0; attempt <= q.cfg.Retries; attempt++ {
		if attempt > 0 {
			if err := q.wait(ctx, q.cfg.Backoff.Delay(attempt-1)); err != nil {
				lastErr = err
				break
			}
		}

		before := marks(batch)
		n, err := q.embedder.EmbedJobs(ctx, batch)
		if err == nil {
			q.embedded.Add(int64(n))
			return
		}
		lastErr = err
		log.Warn("embedding batch failed", zap.Int("attempt", attempt+1), zap.Int("size", len(batch)), zap.Error(err))

		if n > 0 {
			q.embedded.Add(int64(n))
			batch = pending(batch, before)
			if len(batch) == 0 {
				return
			}
		}
	}

	q.failed.Add(int64(len(batch)))
	log.Error("giving up on embedding batch", zap.Int("size", len(batch)), zap.Error(lastErr))
}

func marks(batch []*catalog.JobPosting) []*time.Time {
	out := make([]*time.Time, len(batch))
	for i, job := range batch {
		out[i] = job.EmbeddedAt
	}
	return out
}

// pending keeps the jobs whose EmbeddedAt was not replaced by the last
// attempt, i.e. the ones a partial success did not cover.
func pending(batch []*catalog.JobPosting, before []*time.Time) []*catalog.JobPosting {
	out := make([]*catalog.JobPosting, 0, len(batch))
	for i, job := range batch {
		if job.EmbeddedAt == before[i] {
			out = append(out, job)
		}
	}
	return out
}
