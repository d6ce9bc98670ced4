// Package quota gates imports behind a cooldown and metered actions behind
// per-tier monthly ceilings.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/job-radar/internal/catalog"
	"github.com/spigell/job-radar/internal/logger"
)

type Config struct {
	Cooldown        time.Duration     `mapstructure:"cooldown"`
	DefaultTier     string            `mapstructure:"default-tier"`
	Tiers           map[string]Limits `mapstructure:"tiers"`
	RetentionMonths int               `mapstructure:"retention-months"`
}

func DefaultConfig() Config {
	return Config{
		Cooldown:        24 * time.Hour,
		DefaultTier:     "free",
		Tiers:           DefaultTiers(),
		RetentionMonths: 13,
	}
}

type Limiter struct {
	imports ImportStore
	usage   UsageStore
	tiers   TierStore
	cfg     Config
	logger  *zap.Logger
	now     func() time.Time
	newID   func() string
}

func NewLimiter(imports ImportStore, usage UsageStore, tiers TierStore, cfg Config, log *zap.Logger) *Limiter {
	def := DefaultConfig()
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.DefaultTier == "" {
		cfg.DefaultTier = def.DefaultTier
	}
	if len(cfg.Tiers) == 0 {
		cfg.Tiers = def.Tiers
	}
	if cfg.RetentionMonths <= 0 {
		cfg.RetentionMonths = def.RetentionMonths
	}
	return &Limiter{
		imports: imports,
		usage:   usage,
		tiers:   tiers,
		cfg:     cfg,
		logger:  logger.OrNop(log),
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// CanImport allows a user with no completed import, and otherwise only once
// the cooldown has passed since the last completed import was requested.
func (l *Limiter) CanImport(ctx context.Context, userID string) (Decision, error) {
	last, err := l.imports.LastCompletedImport(ctx, userID)
	if err != nil {
		return Decision{}, fmt.Errorf("last completed import: %w", err)
	}
	if last == nil {
		return Decision{Allowed: true}, nil
	}

	next := last.RequestedAt.Add(l.cfg.Cooldown)
	if !l.now().Before(next) {
		return Decision{Allowed: true}, nil
	}
	return Decision{Allowed: false, NextAllowedAt: &next}, nil
}

// RecordImportRequest opens the audit record of a run in pending state.
func (l *Limiter) RecordImportRequest(ctx context.Context, userID string, sources []catalog.Source) (*ImportRequest, error) {
	req := &ImportRequest{
		ID:          l.newID(),
		UserID:      userID,
		Sources:     append([]catalog.Source(nil), sources...),
		Status:      StatusPending,
		RequestedAt: l.now().UTC(),
	}
	if err := l.imports.CreateImport(ctx, req); err != nil {
		return nil, fmt.Errorf("record import request: %w", err)
	}
	return req, nil
}

// UpdateImportStatus moves a request forward. Running may be entered from
// pending; a terminal status may be entered once, from pending or running.
func (l *Limiter) UpdateImportStatus(ctx context.Context, id string, status Status, counts Counts, runErr error) error {
	t := Transition{ID: id, To: status, Counts: counts}
	switch status {
	case StatusRunning:
		t.From = []Status{StatusPending}
	case StatusCompleted, StatusFailed:
		t.From = []Status{StatusPending, StatusRunning}
		at := l.now().UTC()
		t.CompletedAt = &at
		if runErr != nil {
			t.Error = runErr.Error()
		}
	default:
		return fmt.Errorf("cannot move import %s to %q", id, status)
	}

	ok, err := l.imports.TransitionImport(ctx, t)
	if err != nil {
		return fmt.Errorf("update import %s: %w", id, err)
	}
	if !ok {
		return fmt.Errorf("import %s to %s: %w", id, status, ErrAlreadyFinalized)
	}

	l.logger.Debug("import status updated", zap.String("import", id), zap.String("status", string(status)))
	return nil
}

// CanPerformAction checks whether amount more of action fits the user's tier
// ceiling for the current month.
func (l *Limiter) CanPerformAction(ctx context.Context, userID string, action Action, amount int) (Check, error) {
	if _, err := ParseAction(string(action)); err != nil {
		return Check{}, err
	}
	if amount <= 0 {
		amount = 1
	}

	limits, err := l.limits(ctx, userID)
	if err != nil {
		return Check{}, err
	}
	used, err := l.usage.Usage(ctx, userID, MonthKey(l.now()))
	if err != nil {
		return Check{}, fmt.Errorf("read usage: %w", err)
	}

	check := newCheck(action, used[action], limits[action])
	check.Allowed = check.Unlimited || check.Current+amount <= check.Limit
	return check, nil
}

// IncrementUsage bumps the monthly counter. Call it only after the action
// passed CanPerformAction and actually succeeded.
func (l *Limiter) IncrementUsage(ctx context.Context, userID string, action Action, amount int) (int, error) {
	if _, err := ParseAction(string(action)); err != nil {
		return 0, err
	}
	if amount <= 0 {
		amount = 1
	}
	n, err := l.usage.IncrementUsage(ctx, userID, MonthKey(l.now()), action, amount)
	if err != nil {
		return 0, fmt.Errorf("increment %s usage: %w", action, err)
	}
	return n, nil
}

// Overview returns used/limit/remaining for every action this month.
func (l *Limiter) Overview(ctx context.Context, userID string) ([]Check, error) {
	limits, err := l.limits(ctx, userID)
	if err != nil {
		return nil, err
	}
	used, err := l.usage.Usage(ctx, userID, MonthKey(l.now()))
	if err != nil {
		return nil, fmt.Errorf("read usage: %w", err)
	}

	out := make([]Check, 0, len(Actions))
	for _, action := range Actions {
		check := newCheck(action, used[action], limits[action])
		check.Allowed = check.Unlimited || check.Current < check.Limit
		out = append(out, check)
	}
	return out, nil
}

// History lists the user's import requests, newest first.
func (l *Limiter) History(ctx context.Context, userID string, limit int) ([]ImportRequest, error) {
	if limit <= 0 {
		limit = 20
	}
	return l.imports.ListImports(ctx, userID, limit)
}

// Cleanup deletes usage counters older than the retention window.
func (l *Limiter) Cleanup(ctx context.Context) (int64, error) {
	cutoff := MonthKey(l.now().UTC().AddDate(0, -l.cfg.RetentionMonths, 0))
	n, err := l.usage.DeleteUsageBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete usage before %s: %w", cutoff, err)
	}
	l.logger.Info("usage counters cleaned up", zap.String("before", cutoff), zap.Int64("deleted", n))
	return n, nil
}

func (l *Limiter) limits(ctx context.Context, userID string) (Limits, error) {
	name := l.cfg.DefaultTier
	if l.tiers != nil {
		tier, err := l.tiers.UserTier(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("read tier: %w", err)
		}
		if tier != "" {
			name = tier
		}
	}

	limits, ok := l.cfg.Tiers[name]
	if !ok {
		l.logger.Warn("unknown tier, using default", zap.String("tier", name), zap.String("user", userID))
		limits = l.cfg.Tiers[l.cfg.DefaultTier]
	}
	return limits, nil
}

func newCheck(action Action, used, limit int) Check {
	c := Check{Action: action, Current: used, Limit: limit}
	if limit >= Unlimited {
		c.Unlimited = true
		c.Remaining = Unlimited
		return c
	}
	c.Remaining = max(limit-used, 0)
	return c
}
