// Package scheduler runs periodic ingestion and usage retention cleanup.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spigell/job-radar/internal/logger"
)

type Config struct {
	// Ingest and Cleanup are cron specs. An empty spec disables the task.
	Ingest  string `mapstructure:"ingest"`
	Cleanup string `mapstructure:"cleanup"`
	// RunOnStart triggers one ingestion right after Start.
	RunOnStart bool `mapstructure:"run-on-start"`
}

func DefaultConfig() Config {
	return Config{
		Ingest:  "@every 6h",
		Cleanup: "0 3 1 * *",
	}
}

// Task is one scheduled unit of work.
type Task func(ctx context.Context) error

type Tasks struct {
	Ingest  Task
	Cleanup Task
}

// Scheduler wraps robfig/cron. Overlapping runs of the same task are skipped.
type Scheduler struct {
	cron   *cron.Cron
	cfg    Config
	tasks  Tasks
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func New(cfg Config, tasks Tasks, log *zap.Logger) (*Scheduler, error) {
	log = logger.OrNop(log).With(zap.String("component", "scheduler"))
	cl := cronLogger{log.Sugar()}

	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		cfg:    cfg,
		tasks:  tasks,
		logger: log,
	}

	if err := s.add("ingest", cfg.Ingest, tasks.Ingest); err != nil {
		return nil, err
	}
	if err := s.add("cleanup", cfg.Cleanup, tasks.Cleanup); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) add(name, spec string, task Task) error {
	if spec == "" || task == nil {
		s.logger.Info("task disabled", zap.String("task", name))
		return nil
	}
	if _, err := s.cron.AddFunc(spec, func() { s.run(name, task) }); err != nil {
		return fmt.Errorf("schedule %s %q: %w", name, spec, err)
	}
	s.logger.Info("task scheduled", zap.String("task", name), zap.String("spec", spec))
	return nil
}

// Start begins firing tasks. ctx bounds every run.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	if s.cfg.RunOnStart && s.tasks.Ingest != nil {
		go s.run("ingest", s.tasks.Ingest)
	}
}

// Stop cancels running tasks and waits for them to return or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	if s.cancel != nil {
		s.cancel()
	}
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out")
	}
}

// Len is the number of scheduled tasks.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) run(name string, task Task) {
	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	started := time.Now()
	log := s.logger.With(zap.String("task", name))
	log.Info("task started")

	if err := task(ctx); err != nil {
		log.Error("task failed", zap.Duration("took", time.Since(started)), zap.Error(err))
		return
	}
	log.Info("task finished", zap.Duration("took", time.Since(started)))
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
