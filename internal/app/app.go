// Package app is the surface other services call: imports behind the rate
// limiter, recommendations, quota dashboards and the profile edit hook.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/job-radar/internal/catalog"
	"github.com/spigell/job-radar/internal/ingest"
	"github.com/spigell/job-radar/internal/logger"
	"github.com/spigell/job-radar/internal/profile"
	"github.com/spigell/job-radar/internal/quota"
	"github.com/spigell/job-radar/internal/recommend"
	"github.com/spigell/job-radar/internal/sources"
)

type Orchestrator interface {
	Run(ctx context.Context, req ingest.Request) (ingest.Stats, error)
	RunForUser(ctx context.Context, prefs profile.Preferences, srcs []catalog.Source, mode ingest.Mode) (ingest.Stats, error)
	RunForAllUsers(ctx context.Context, prefs profile.PreferenceReader, srcs []catalog.Source, mode ingest.Mode) (ingest.Stats, error)
}

type Recommender interface {
	GetTopRecommendations(ctx context.Context, userID string, limit int) ([]recommend.Result, error)
}

type ProfileEmbedder interface {
	InvalidateProfile(ctx context.Context, userID string) error
	EmbedUserProfile(ctx context.Context, p *profile.Profile) ([]float32, error)
}

type Deps struct {
	Orchestrator Orchestrator
	Limiter      *quota.Limiter
	Recommender  Recommender
	Profiles     profile.Reader
	Preferences  profile.PreferenceReader
	// Embedder is optional; without it ProfileChanged is a no-op.
	Embedder ProfileEmbedder
}

type Service struct {
	deps   Deps
	logger *zap.Logger
}

func New(deps Deps, log *zap.Logger) *Service {
	return &Service{deps: deps, logger: logger.OrNop(log).With(zap.String("component", "app"))}
}

// ImportRequest is a user or scheduled import. An empty UserID marks a
// scheduled run, which bypasses the rate limiter.
type ImportRequest struct {
	UserID  string
	Sources []catalog.Source
	Queries []sources.Query
}

// ImportResult carries either the run summary or the denial.
type ImportResult struct {
	Allowed       bool          `json:"allowed"`
	NextAllowedAt *time.Time    `json:"next_allowed_at,omitempty"`
	Quota         *quota.Check  `json:"quota,omitempty"`
	ImportID      string        `json:"import_id,omitempty"`
	Stats         *ingest.Stats `json:"stats,omitempty"`
}

func (s *Service) Import(ctx context.Context, req ImportRequest) (ImportResult, error) {
	if req.UserID == "" {
		return s.scheduledImport(ctx, req)
	}

	decision, err := s.deps.Limiter.CanImport(ctx, req.UserID)
	if err != nil {
		return ImportResult{}, err
	}
	if !decision.Allowed {
		s.logger.Info("import denied by cooldown", zap.String("user", req.UserID), zap.Timep("next_allowed_at", decision.NextAllowedAt))
		return ImportResult{NextAllowedAt: decision.NextAllowedAt}, nil
	}

	check, err := s.deps.Limiter.CanPerformAction(ctx, req.UserID, quota.ActionJobImport, 1)
	if err != nil {
		return ImportResult{}, err
	}
	if !check.Allowed {
		s.logger.Info("import denied by quota", zap.String("user", req.UserID), zap.Int("used", check.Current), zap.Int("limit", check.Limit))
		return ImportResult{Quota: &check}, nil
	}

	rec, err := s.deps.Limiter.RecordImportRequest(ctx, req.UserID, req.Sources)
	if err != nil {
		return ImportResult{}, err
	}
	if err := s.deps.Limiter.UpdateImportStatus(ctx, rec.ID, quota.StatusRunning, quota.Counts{}, nil); err != nil {
		s.markFailed(ctx, rec.ID, quota.Counts{}, err)
		return ImportResult{ImportID: rec.ID}, err
	}

	stats, runErr := s.userImport(ctx, req)
	counts := quota.Counts{Imported: stats.Imported, Updated: stats.Updated, Skipped: stats.Skipped, Errors: stats.Errors}
	result := ImportResult{Allowed: true, ImportID: rec.ID, Quota: &check, Stats: &stats}

	if runErr != nil {
		s.markFailed(ctx, rec.ID, counts, runErr)
		return result, runErr
	}

	if err := s.deps.Limiter.UpdateImportStatus(ctx, rec.ID, quota.StatusCompleted, counts, nil); err != nil {
		return result, err
	}
	if _, err := s.deps.Limiter.IncrementUsage(ctx, req.UserID, quota.ActionJobImport, 1); err != nil {
		return result, err
	}
	return result, nil
}

// markFailed finalizes an audit record. The write must land even when the
// request context is gone.
func (s *Service) markFailed(ctx context.Context, id string, counts quota.Counts, cause error) {
	err := s.deps.Limiter.UpdateImportStatus(context.WithoutCancel(ctx), id, quota.StatusFailed, counts, cause)
	if err != nil {
		s.logger.Error("recording failed import", zap.String("import", id), zap.NamedError("cause", cause), zap.Error(err))
	}
}

func (s *Service) userImport(ctx context.Context, req ImportRequest) (ingest.Stats, error) {
	if len(req.Queries) > 0 {
		return s.deps.Orchestrator.Run(ctx, ingest.Request{Sources: req.Sources, Queries: req.Queries, Mode: ingest.ModeOnDemand})
	}

	p, err := s.deps.Profiles.GetProfile(ctx, req.UserID)
	if err != nil {
		return ingest.Stats{}, fmt.Errorf("get profile: %w", err)
	}
	return s.deps.Orchestrator.RunForUser(ctx, p.Preferences, req.Sources, ingest.ModeOnDemand)
}

func (s *Service) scheduledImport(ctx context.Context, req ImportRequest) (ImportResult, error) {
	var (
		stats ingest.Stats
		err   error
	)
	if len(req.Queries) > 0 {
		stats, err = s.deps.Orchestrator.Run(ctx, ingest.Request{Sources: req.Sources, Queries: req.Queries, Mode: ingest.ModeCron})
	} else {
		if s.deps.Preferences == nil {
			return ImportResult{}, errors.New("scheduled import needs queries or a preference store")
		}
		stats, err = s.deps.Orchestrator.RunForAllUsers(ctx, s.deps.Preferences, req.Sources, ingest.ModeCron)
	}
	return ImportResult{Allowed: true, Stats: &stats}, err
}

func (s *Service) Recommendations(ctx context.Context, userID string, limit int) ([]recommend.Result, error) {
	if s.deps.Recommender == nil {
		return nil, recommend.ErrNoGenerator
	}
	return s.deps.Recommender.GetTopRecommendations(ctx, userID, limit)
}

func (s *Service) Quota(ctx context.Context, userID string) ([]quota.Check, error) {
	return s.deps.Limiter.Overview(ctx, userID)
}

func (s *Service) History(ctx context.Context, userID string, limit int) ([]quota.ImportRequest, error) {
	return s.deps.Limiter.History(ctx, userID, limit)
}

// ProfileChanged drops the cached profile vector and recomputes it. Only the
// invalidation failing is an error; a failed recompute is retried lazily by
// the next recommendation request.
func (s *Service) ProfileChanged(ctx context.Context, userID string) error {
	if s.deps.Embedder == nil {
		return nil
	}
	if err := s.deps.Embedder.InvalidateProfile(ctx, userID); err != nil {
		return fmt.Errorf("invalidate profile embedding: %w", err)
	}

	p, err := s.deps.Profiles.GetProfile(ctx, userID)
	if err != nil {
		s.logger.Warn("profile refresh skipped", zap.String("user", userID), zap.Error(err))
		return nil
	}
	if _, err := s.deps.Embedder.EmbedUserProfile(ctx, p); err != nil {
		s.logger.Warn("profile embedding refresh failed", zap.String("user", userID), zap.Error(err))
	}
	return nil
}
