package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/job-radar/internal/ai/gemini"
	"github.com/spigell/job-radar/internal/app"
	"github.com/spigell/job-radar/internal/cache"
	"github.com/spigell/job-radar/internal/embedding"
	"github.com/spigell/job-radar/internal/ingest"
	"github.com/spigell/job-radar/internal/merge"
	"github.com/spigell/job-radar/internal/profile"
	"github.com/spigell/job-radar/internal/quota"
	"github.com/spigell/job-radar/internal/recommend"
	"github.com/spigell/job-radar/internal/secrets"
	"github.com/spigell/job-radar/internal/sources/adzuna"
	"github.com/spigell/job-radar/internal/sources/registry"
	"github.com/spigell/job-radar/internal/sources/scraper"
	"github.com/spigell/job-radar/internal/storage/memory"
	"github.com/spigell/job-radar/internal/storage/postgres"
)

type jobStore interface {
	merge.Store
	recommend.Catalog
	recommend.JobGetter
	embedding.JobWriter
	embedding.MissingLister
}

type profileStore interface {
	profile.Reader
	profile.PreferenceReader
	profile.ApplicationReader
	embedding.ProfileWriter
	quota.TierStore
}

type vectorIndex interface {
	embedding.Index
	recommend.Nearest
}

type stores struct {
	jobs     jobStore
	index    vectorIndex
	profiles profileStore
	imports  quota.ImportStore
	usage    quota.UsageStore
}

type runtimeOptions struct {
	// DryRun keeps every store in memory; nothing touches Postgres or Redis.
	DryRun bool
	// NeedGenerator fails the build when match scoring is not configured.
	NeedGenerator bool
}

// runtime is the fully wired process. Close releases it in reverse order.
type runtime struct {
	config      *Config
	logger      *zap.Logger
	stores      stores
	pipeline    *embedding.Pipeline
	queue       *embedding.Queue
	limiter     *quota.Limiter
	recommender *recommend.Engine
	service     *app.Service
	closers     []func()
}

func newRuntime(ctx context.Context, config *Config, logger *zap.Logger, opts runtimeOptions) (*runtime, error) {
	rt := &runtime{config: config, logger: logger}

	if err := rt.openStores(ctx, opts.DryRun); err != nil {
		rt.Close()
		return nil, err
	}

	var jsonCache cache.Cache = cache.NewMemory()
	if addr := strings.TrimSpace(config.Redis.Addr); addr != "" && !opts.DryRun {
		rdb, err := cache.NewRedisClient(ctx, addr)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		rt.closers = append(rt.closers, func() { _ = rdb.Close() })
		jsonCache = cache.NewRedis(rdb)
	}

	generator, embedder, err := newGemini(ctx, config.AI, logger)
	if err != nil {
		if opts.NeedGenerator {
			rt.Close()
			return nil, err
		}
		logger.Warn("ai is not configured, embeddings and match scoring are disabled", zap.Error(err))
	}

	var model embedding.Model
	if embedder != nil {
		model = embedder
	}
	rt.pipeline = embedding.NewPipeline(model, rt.stores.index, rt.stores.jobs, rt.stores.profiles, jsonCache, config.Embedding.Config, logger)

	var scheduled merge.Scheduler
	if model != nil {
		rt.queue = embedding.NewQueue(rt.pipeline, config.Embedding.QueueConfig, logger)
		rt.queue.Start(ctx)
		rt.closers = append(rt.closers, rt.queue.Close)
		scheduled = rt.queue
	}

	priorities, err := mergePriorities(config.Merge)
	if err != nil {
		rt.Close()
		return nil, err
	}
	merger := merge.NewEngine(rt.stores.jobs, priorities, scheduled, logger)

	factory := registry.New(sourcesConfig(config.Sources, logger), logger)
	orchestrator := ingest.NewOrchestrator(factory, merger, config.Ingest, logger)

	rt.limiter = quota.NewLimiter(rt.stores.imports, rt.stores.usage, rt.stores.profiles, config.Quota, logger)

	deps := app.Deps{
		Orchestrator: orchestrator,
		Limiter:      rt.limiter,
		Profiles:     rt.stores.profiles,
		Preferences:  rt.stores.profiles,
	}
	if model != nil {
		deps.Embedder = rt.pipeline
	}
	if generator != nil {
		recDeps := recommend.Deps{
			Catalog:      rt.stores.jobs,
			Profiles:     rt.stores.profiles,
			Applications: rt.stores.profiles,
			Generator:    generator,
			Cache:        jsonCache,
			Jobs:         rt.stores.jobs,
			Index:        rt.stores.index,
		}
		if model != nil {
			recDeps.Embedder = rt.pipeline
		}
		engine, err := recommend.NewEngine(recDeps, config.Recommend, logger)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.recommender = engine
		deps.Recommender = engine
	}
	rt.service = app.New(deps, logger)

	return rt, nil
}

func (rt *runtime) openStores(ctx context.Context, dryRun bool) error {
	if dryRun {
		rt.logger.Info("dry run, using in-memory stores")
		rt.stores = stores{
			jobs:     memory.NewJobs(),
			index:    memory.NewIndex(),
			profiles: memory.NewProfiles(),
			imports:  memory.NewImports(),
			usage:    memory.NewUsage(),
		}
		return nil
	}

	url, err := databaseURL(rt.config.Database)
	if err != nil {
		return err
	}
	pool, err := postgres.Connect(ctx, url, rt.logger)
	if err != nil {
		return err
	}
	rt.closers = append(rt.closers, pool.Close)

	rt.stores = stores{
		jobs:     postgres.NewJobStore(pool),
		index:    postgres.NewVectorIndex(pool),
		profiles: postgres.NewProfileStore(pool),
		imports:  postgres.NewImportStore(pool),
		usage:    postgres.NewUsageStore(pool),
	}
	return nil
}

func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}

func databaseURL(cfg DatabaseConfig) (string, error) {
	return secrets.Load(secrets.Source{
		Name:  "database url",
		Value: cfg.URL,
		File:  cfg.URLFile,
		Env:   "DATABASE_URL",
	})
}

func newGemini(ctx context.Context, cfg *AIConfig, logger *zap.Logger) (*gemini.Generator, *gemini.Embedder, error) {
	if cfg == nil || cfg.Gemini == nil {
		return nil, nil, errors.New("ai.gemini section is missing")
	}
	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	if provider != "" && provider != "gemini" {
		return nil, nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		Value: cfg.Gemini.APIKey,
		File:  cfg.Gemini.APIKeyFile,
		Env:   "GEMINI_API_KEY",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY_FILE)", err)
	}

	client, err := gemini.NewClient(ctx, apiKey)
	if err != nil {
		return nil, nil, err
	}

	generator, err := gemini.NewGenerator(client, gemini.Options{
		Model:        cfg.Gemini.Model,
		MaxRetries:   cfg.Gemini.MaxRetries,
		MaxLogLength: cfg.Gemini.MaxLogLength,
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	embedder, err := gemini.NewEmbedder(client, gemini.EmbedderOptions{
		Model:      cfg.Gemini.EmbeddingModel,
		MaxRetries: cfg.Gemini.MaxRetries,
		BatchSize:  cfg.Gemini.EmbeddingBatchSize,
		Dimensions: cfg.Gemini.Dimensions,
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	return generator, embedder, nil
}

func mergePriorities(cfg MergeConfig) (merge.Priorities, error) {
	if len(cfg.Priorities) == 0 {
		return merge.DefaultPriorities(), nil
	}
	p, err := merge.ParsePriorities(cfg.Version, cfg.Priorities)
	if err != nil {
		return merge.Priorities{}, fmt.Errorf("merge priorities: %w", err)
	}
	return p, nil
}

// sourcesConfig resolves source credentials. A missing credential is only
// logged: the adapter reports it as not configured when it is used.
func sourcesConfig(cfg SourcesConfig, logger *zap.Logger) registry.Config {
	out := registry.Config{
		Adzuna: adzuna.Config{
			AppID:   cfg.Adzuna.AppID,
			AppKey:  cfg.Adzuna.AppKey,
			Country: cfg.Adzuna.Country,
			BaseURL: cfg.Adzuna.BaseURL,
		},
		Scraper: scraper.Config{
			ActorID:    cfg.Scraper.ActorID,
			BaseURL:    cfg.Scraper.BaseURL,
			PollBudget: cfg.Scraper.PollBudget,
		},
		Partners: cfg.Partners,
	}
	out.HeadHunter.Areas = cfg.HeadHunter.Areas
	out.HeadHunter.PeriodDays = cfg.HeadHunter.PeriodDays

	token, err := secrets.Load(secrets.Source{
		Name:  "headhunter token",
		Value: cfg.HeadHunter.Token,
		File:  cfg.HeadHunter.TokenFile,
	})
	if err != nil {
		logger.Debug("headhunter source has no token", zap.Error(err))
	}
	out.HeadHunter.Token = token

	token, err = secrets.Load(secrets.Source{
		Name:  "scraper token",
		Value: cfg.Scraper.Token,
		File:  cfg.Scraper.TokenFile,
	})
	if err != nil {
		logger.Debug("scraper source has no token", zap.Error(err))
	}
	out.Scraper.Token = token

	return out
}
