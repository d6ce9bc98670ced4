// Package ingest runs source adapters over a query list and feeds every result
// through the merge engine.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/job-radar/internal/catalog"
	"github.com/spigell/job-radar/internal/logger"
	"github.com/spigell/job-radar/internal/merge"
	"github.com/spigell/job-radar/internal/sources"
	"github.com/spigell/job-radar/internal/sources/registry"
)

// ErrAllSourcesFailed is returned when no requested source could be used
// because of configuration errors.
var ErrAllSourcesFailed = errors.New("all sources failed configuration")

type Mode string

const (
	ModeCron     Mode = "cron"
	ModeOnDemand Mode = "on-demand"
)

func ParseMode(raw string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(raw))); m {
	case ModeCron, ModeOnDemand:
		return m, nil
	case "":
		return ModeOnDemand, nil
	default:
		return "", fmt.Errorf("unknown run mode %q", raw)
	}
}

type Request struct {
	Sources []catalog.Source
	Queries []sources.Query
	Mode    Mode
}

type SourceStats struct {
	Queries  int    `json:"queries"`
	Fetched  int    `json:"fetched"`
	Imported int    `json:"imported"`
	Updated  int    `json:"updated"`
	Skipped  int    `json:"skipped"`
	Errors   int    `json:"errors"`
	Error    string `json:"error,omitempty"`
}

// Stats summarizes a run. PerSource has an entry for every requested source.
type Stats struct {
	Imported  int                             `json:"imported"`
	Updated   int                             `json:"updated"`
	Skipped   int                             `json:"skipped"`
	Errors    int                             `json:"errors"`
	PerSource map[catalog.Source]*SourceStats `json:"per_source"`
}

func (s *Stats) add(src catalog.Source, ss *SourceStats) {
	s.PerSource[src] = ss
	s.Imported += ss.Imported
	s.Updated += ss.Updated
	s.Skipped += ss.Skipped
	s.Errors += ss.Errors
}

type Merger interface {
	Merge(ctx context.Context, src catalog.Source, job catalog.NormalizedJob) (merge.Result, error)
}

type Config struct {
	// CronMaxQueries truncates the query list in cron mode.
	CronMaxQueries int `mapstructure:"cron-max-queries"`
	// CronSourceCaps bounds the queries each source runs in cron mode.
	CronSourceCaps map[string]int `mapstructure:"cron-source-caps"`
	PageLimit      int            `mapstructure:"page-limit"`
	UserMaxQueries int            `mapstructure:"user-max-queries"`
	// Sources is the default source set when a request names none.
	Sources []string `mapstructure:"sources"`
}

func DefaultConfig() Config {
	return Config{
		CronMaxQueries: 10,
		CronSourceCaps: map[string]int{
			string(catalog.SourceScraper): 3,
			string(catalog.SourceAdzuna):  5,
		},
		PageLimit:      2,
		UserMaxQueries: 10,
	}
}

type Orchestrator struct {
	factory registry.Factory
	merger  Merger
	cfg     Config
	logger  *zap.Logger
}

func NewOrchestrator(factory registry.Factory, merger Merger, cfg Config, log *zap.Logger) *Orchestrator {
	def := DefaultConfig()
	if cfg.CronMaxQueries <= 0 {
		cfg.CronMaxQueries = def.CronMaxQueries
	}
	if cfg.CronSourceCaps == nil {
		cfg.CronSourceCaps = def.CronSourceCaps
	}
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = def.PageLimit
	}
	if cfg.UserMaxQueries <= 0 {
		cfg.UserMaxQueries = def.UserMaxQueries
	}
	return &Orchestrator{
		factory: factory,
		merger:  merger,
		cfg:     cfg,
		logger:  logger.OrNop(log).With(zap.String("component", "ingest")),
	}
}

// Run executes every source over the query list, one source at a time. Item
// and query failures are counted, never returned. The error is non-nil only
// when ctx is done or every source failed configuration.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Stats, error) {
	stats := Stats{PerSource: make(map[catalog.Source]*SourceStats)}

	srcs, err := o.sources(req.Sources)
	if err != nil {
		return stats, err
	}
	queries := o.queries(req.Queries)
	if req.Mode == ModeCron && len(queries) > o.cfg.CronMaxQueries {
		queries = queries[:o.cfg.CronMaxQueries]
	}

	o.logger.Info("ingestion started",
		zap.String("mode", string(req.Mode)),
		zap.Int("sources", len(srcs)),
		zap.Int("queries", len(queries)),
	)

	failed := 0
	for _, src := range srcs {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		qs := queries
		if req.Mode == ModeCron {
			if limit, ok := o.cfg.CronSourceCaps[string(src)]; ok && limit >= 0 && len(qs) > limit {
				qs = qs[:limit]
			}
		}

		ss, fatal := o.runSource(ctx, src, qs)
		stats.add(src, ss)
		if fatal {
			failed++
		}
	}

	o.logger.Info("ingestion finished",
		zap.Int("imported", stats.Imported),
		zap.Int("updated", stats.Updated),
		zap.Int("skipped", stats.Skipped),
		zap.Int("errors", stats.Errors),
	)

	if err := ctx.Err(); err != nil {
		return stats, err
	}
	if len(srcs) > 0 && failed == len(srcs) {
		return stats, ErrAllSourcesFailed
	}
	return stats, nil
}

// runSource reports fatal when the source could not be used at all.
func (o *Orchestrator) runSource(ctx context.Context, src catalog.Source, queries []sources.Query) (*SourceStats, bool) {
	ss := &SourceStats{}
	log := o.logger.With(zap.String(logger.FieldSource, string(src)))

	adapter, err := o.factory(src)
	if err != nil {
		log.Error("source adapter construction failed", zap.Error(err))
		ss.Error = err.Error()
		return ss, true
	}

	for _, q := range queries {
		if ctx.Err() != nil {
			break
		}
		ss.Queries++
		qlog := logger.WithFields(o.logger, logger.SourceFields(string(src), q.Text, q.Location)...)

		// Jobs fetched before a failure are merged as well.
		res, err := adapter.Search(ctx, q)
		ss.Fetched += len(res.Jobs)
		ss.Errors += res.Dropped
		o.mergeJobs(ctx, src, res.Jobs, ss, qlog)

		if err == nil {
			qlog.Info("query processed", zap.Int("fetched", len(res.Jobs)), zap.Int("dropped", res.Dropped))
			continue
		}
		ss.Errors++
		qlog = qlog.With(zap.Int("fetched", len(res.Jobs)), zap.Error(err))
		if sources.IsFatal(err) {
			qlog.Error("source is not usable, aborting it for this run")
			ss.Error = err.Error()
			return ss, ss.Fetched == 0
		}
		if errors.Is(err, sources.ErrTimeout) {
			qlog.Warn("source timed out, abandoning query")
		} else {
			qlog.Warn("source query failed")
		}
	}

	return ss, false
}

func (o *Orchestrator) mergeJobs(ctx context.Context, src catalog.Source, jobs []catalog.NormalizedJob, ss *SourceStats, qlog *zap.Logger) {
	for _, job := range jobs {
		res, err := o.merger.Merge(ctx, src, job)
		if err != nil {
			ss.Errors++
			qlog.Warn("merge failed", zap.String("title", job.Title), zap.String("url", job.URL), zap.Error(err))
			continue
		}
		switch res.Outcome {
		case merge.Inserted:
			ss.Imported++
		case merge.Updated:
			ss.Updated++
		case merge.Skipped:
			ss.Skipped++
			qlog.Debug("job skipped", zap.String("job_id", res.Job.ID), zap.String("reason", res.Reason))
		}
	}
}

func (o *Orchestrator) sources(requested []catalog.Source) ([]catalog.Source, error) {
	if len(requested) == 0 {
		if len(o.cfg.Sources) == 0 {
			return append([]catalog.Source(nil), catalog.AllSources...), nil
		}
		out := make([]catalog.Source, 0, len(o.cfg.Sources))
		for _, raw := range o.cfg.Sources {
			src, err := catalog.ParseSource(raw)
			if err != nil {
				return nil, err
			}
			out = append(out, src)
		}
		requested = out
	}

	seen := make(map[catalog.Source]struct{}, len(requested))
	out := make([]catalog.Source, 0, len(requested))
	for _, src := range requested {
		if !src.Valid() {
			return nil, fmt.Errorf("unknown source %q", src)
		}
		if _, ok := seen[src]; ok {
			continue
		}
		seen[src] = struct{}{}
		out = append(out, src)
	}
	return out, nil
}

// queries drops empty and repeated queries and fills in the page limit.
func (o *Orchestrator) queries(in []sources.Query) []sources.Query {
	seen := make(map[string]struct{}, len(in))
	out := make([]sources.Query, 0, len(in))
	for _, q := range in {
		q.Text = strings.TrimSpace(q.Text)
		q.Location = strings.TrimSpace(q.Location)
		if q.Text == "" {
			continue
		}
		if _, ok := seen[q.Key()]; ok {
			continue
		}
		seen[q.Key()] = struct{}{}
		if q.PageLimit <= 0 {
			q.PageLimit = o.cfg.PageLimit
		}
		out = append(out, q)
	}
	return out
}
