package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/spigell/job-radar/internal/cache"
	"github.com/spigell/job-radar/internal/catalog"
	"github.com/spigell/job-radar/internal/embedding"
	"github.com/spigell/job-radar/internal/ingest"
	"github.com/spigell/job-radar/internal/merge"
	"github.com/spigell/job-radar/internal/profile"
	"github.com/spigell/job-radar/internal/quota"
	"github.com/spigell/job-radar/internal/recommend"
	"github.com/spigell/job-radar/internal/sources"
	"github.com/spigell/job-radar/internal/storage/memory"
)

type staticAdapter struct {
	src  catalog.Source
	err  error
	jobs []catalog.NormalizedJob

	mu      sync.Mutex
	queries []sources.Query
}

func (a *staticAdapter) Source() catalog.Source { return a.src }

func (a *staticAdapter) Search(_ context.Context, q sources.Query) (sources.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.queries = append(a.queries, q)
	if a.err != nil {
		return sources.Result{}, a.err
	}
	return sources.Result{Jobs: a.jobs}, nil
}

// stuckImports refuses every move to running, as if the row was locked by
// another writer.
type stuckImports struct {
	*memory.Imports
}

func (s stuckImports) TransitionImport(ctx context.Context, t quota.Transition) (bool, error) {
	if t.To == quota.StatusRunning {
		return false, errors.New("connection reset")
	}
	return s.Imports.TransitionImport(ctx, t)
}

type countingModel struct {
	mu    sync.Mutex
	calls int
}

func (m *countingModel) Embed(_ context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, float32(i)}
	}
	return out, nil
}

type fixedGenerator struct{}

func (fixedGenerator) GenerateContent(context.Context, string) (string, error) {
	return `{"score": 83, "strengths": ["Go"], "concerns": []}`, nil
}

type env struct {
	svc      *Service
	log      *zap.Logger
	quotaCfg quota.Config
	jobs     *memory.Jobs
	profiles *memory.Profiles
	imports  *memory.Imports
	usage    *memory.Usage
	adapter  *staticAdapter
	model    *countingModel
	cache    *cache.Memory
}

func newEnv(t *testing.T, quotaCfg quota.Config) *env {
	t.Helper()
	log := zaptest.NewLogger(t)

	e := &env{
		log:      log,
		quotaCfg: quotaCfg,
		jobs:     memory.NewJobs(),
		profiles: memory.NewProfiles(),
		imports:  memory.NewImports(),
		usage:    memory.NewUsage(),
		model:    &countingModel{},
		cache:    cache.NewMemory(),
		adapter:  &staticAdapter{src: catalog.SourceHeadHunter, jobs: []catalog.NormalizedJob{
			{Title: "Go Engineer", Company: "Acme", Location: "Berlin", URL: "https://hh/1", WorkMode: catalog.WorkModeRemote},
		}},
	}
	now := time.Now()
	e.profiles.Put(&profile.Profile{
		UserID:      "u1",
		Skills:      []string{"Go"},
		Preferences: profile.Preferences{DesiredTitles: []string{"Go Engineer"}, Locations: []string{"Berlin"}},
		UpdatedAt:   &now,
	})

	index := memory.NewIndex()
	pipeline := embedding.NewPipeline(e.model, index, e.jobs, e.profiles, e.cache, embedding.DefaultConfig(), log)
	engine := merge.NewEngine(e.jobs, merge.DefaultPriorities(), nil, log)
	factory := func(src catalog.Source) (sources.Adapter, error) {
		if src != e.adapter.src {
			return nil, sources.ErrNotConfigured
		}
		return e.adapter, nil
	}
	orch := ingest.NewOrchestrator(factory, engine, ingest.Config{}, log)

	rec, err := recommend.NewEngine(recommend.Deps{
		Catalog:      e.jobs,
		Profiles:     e.profiles,
		Applications: e.profiles,
		Generator:    fixedGenerator{},
		Cache:        e.cache,
		Embedder:     pipeline,
	}, recommend.Config{}, log)
	if err != nil {
		t.Fatalf("recommend engine: %v", err)
	}

	e.svc = New(Deps{
		Orchestrator: orch,
		Limiter:      quota.NewLimiter(e.imports, e.usage, e.profiles, quotaCfg, log),
		Recommender:  rec,
		Profiles:     e.profiles,
		Preferences:  e.profiles,
		Embedder:     pipeline,
	}, log)
	return e
}

func (e *env) importUsage(t *testing.T) int {
	t.Helper()
	used, err := e.usage.Usage(context.Background(), "u1", quota.MonthKey(time.Now()))
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	return used[quota.ActionJobImport]
}

func TestImportCompletesThenCoolsDown(t *testing.T) {
	e := newEnv(t, quota.Config{})
	ctx := context.Background()
	req := ImportRequest{UserID: "u1", Sources: []catalog.Source{catalog.SourceHeadHunter}}

	res, err := e.svc.Import(ctx, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Allowed || res.Stats == nil || res.Stats.Imported != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if got := e.adapter.queries[0]; got.Text != "Go Engineer" || got.Location != "Berlin" {
		t.Fatalf("expected query derived from preferences, got %+v", got)
	}
	if e.importUsage(t) != 1 {
		t.Fatalf("expected usage 1, got %d", e.importUsage(t))
	}

	history, err := e.svc.History(ctx, "u1", 10)
	if err != nil || len(history) != 1 || history[0].Status != quota.StatusCompleted || history[0].Counts.Imported != 1 {
		t.Fatalf("unexpected history: %+v %v", history, err)
	}

	again, err := e.svc.Import(ctx, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again.Allowed || again.NextAllowedAt == nil {
		t.Fatalf("expected cooldown denial, got %+v", again)
	}
	if e.importUsage(t) != 1 {
		t.Fatal("denied import must not count usage")
	}
}

func TestImportFailureIsAuditedButNotCounted(t *testing.T) {
	e := newEnv(t, quota.Config{})
	ctx := context.Background()

	res, err := e.svc.Import(ctx, ImportRequest{
		UserID:  "u1",
		Sources: []catalog.Source{catalog.SourceAdzuna},
		Queries: []sources.Query{{Text: "go"}},
	})
	if !errors.Is(err, ingest.ErrAllSourcesFailed) {
		t.Fatalf("expected ErrAllSourcesFailed, got %v", err)
	}
	if res.Stats == nil || res.Stats.PerSource[catalog.SourceAdzuna] == nil {
		t.Fatalf("expected a summary alongside the error, got %+v", res)
	}
	if e.importUsage(t) != 0 {
		t.Fatal("failed import must not count usage")
	}

	history, _ := e.svc.History(ctx, "u1", 10)
	if len(history) != 1 || history[0].Status != quota.StatusFailed || history[0].Error == "" {
		t.Fatalf("unexpected history: %+v", history)
	}

	res, err = e.svc.Import(ctx, ImportRequest{UserID: "u1", Sources: []catalog.Source{catalog.SourceHeadHunter}})
	if err != nil || !res.Allowed {
		t.Fatalf("failed import must not start a cooldown: %+v %v", res, err)
	}
}

func TestImportFailsRecordWhenRunningTransitionFails(t *testing.T) {
	e := newEnv(t, quota.Config{})
	e.svc.deps.Limiter = quota.NewLimiter(stuckImports{e.imports}, e.usage, e.profiles, e.quotaCfg, e.log)

	ctx, cancel := context.WithCancel(context.Background())
	res, err := e.svc.Import(ctx, ImportRequest{UserID: "u1", Sources: []catalog.Source{catalog.SourceHeadHunter}})
	cancel()
	if err == nil {
		t.Fatal("expected the transition error")
	}
	if res.ImportID == "" {
		t.Fatalf("expected the audit id alongside the error, got %+v", res)
	}
	if len(e.adapter.queries) != 0 {
		t.Fatal("an unstarted import must not reach sources")
	}

	history, _ := e.svc.History(context.Background(), "u1", 10)
	if len(history) != 1 || history[0].Status != quota.StatusFailed || history[0].Error == "" {
		t.Fatalf("expected a failed audit record, got %+v", history)
	}
	if e.importUsage(t) != 0 {
		t.Fatal("unstarted import must not count usage")
	}
}

func TestImportDeniedByTierQuota(t *testing.T) {
	e := newEnv(t, quota.Config{Tiers: map[string]quota.Limits{"free": {quota.ActionJobImport: 0}}})

	res, err := e.svc.Import(context.Background(), ImportRequest{UserID: "u1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Allowed || res.Quota == nil || res.Quota.Remaining != 0 {
		t.Fatalf("expected quota denial, got %+v", res)
	}
	if len(e.adapter.queries) != 0 {
		t.Fatal("denied import must not reach sources")
	}
	history, _ := e.svc.History(context.Background(), "u1", 10)
	if len(history) != 0 {
		t.Fatalf("denied import must not be recorded, got %+v", history)
	}
}

func TestScheduledImportUsesAllPreferences(t *testing.T) {
	e := newEnv(t, quota.Config{})
	e.profiles.Put(&profile.Profile{UserID: "u2", Preferences: profile.Preferences{DesiredTitles: []string{"go engineer"}, Locations: []string{"berlin"}}})

	res, err := e.svc.Import(context.Background(), ImportRequest{Sources: []catalog.Source{catalog.SourceHeadHunter}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Stats.Imported != 1 || len(e.adapter.queries) != 1 {
		t.Fatalf("expected one deduplicated query, got %d queries and %+v", len(e.adapter.queries), res.Stats)
	}
	history, _ := e.svc.History(context.Background(), "u1", 10)
	if len(history) != 0 {
		t.Fatal("scheduled runs bypass the audit trail")
	}
}

func TestRecommendationsAndQuota(t *testing.T) {
	e := newEnv(t, quota.Config{})
	ctx := context.Background()
	if _, err := e.svc.Import(ctx, ImportRequest{UserID: "u1"}); err != nil {
		t.Fatalf("import: %v", err)
	}

	results, err := e.svc.Recommendations(ctx, "u1", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].Score != 83 || results[0].Recommendation != recommend.LabelStrong {
		t.Fatalf("unexpected results: %+v", results)
	}
	if results[0].Job.Title != "Go Engineer" {
		t.Fatalf("expected joined job summary, got %+v", results[0].Job)
	}

	checks, err := e.svc.Quota(ctx, "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(checks) != len(quota.Actions) || checks[0].Action != quota.ActionJobImport || checks[0].Current != 1 || checks[0].Remaining != 3 {
		t.Fatalf("unexpected quota overview: %+v", checks)
	}
}

func TestProfileChangedRefreshesEmbedding(t *testing.T) {
	e := newEnv(t, quota.Config{})
	ctx := context.Background()
	key := cache.EmbeddingKey(string(embedding.KindUser), "u1")

	if err := e.svc.ProfileChanged(ctx, "u1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !e.cache.Has(key) || e.model.calls != 1 {
		t.Fatalf("expected fresh vector cached, calls=%d", e.model.calls)
	}

	if err := e.svc.ProfileChanged(ctx, "u1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.model.calls != 2 {
		t.Fatalf("expected invalidation to force recompute, calls=%d", e.model.calls)
	}

	if err := e.svc.ProfileChanged(ctx, "ghost"); err != nil {
		t.Fatalf("unknown profile must not fail the hook: %v", err)
	}
}
