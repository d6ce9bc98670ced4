package ingest

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/spigell/job-radar/internal/catalog"
	"github.com/spigell/job-radar/internal/profile"
	"github.com/spigell/job-radar/internal/sources"
	"github.com/spigell/job-radar/internal/utils"
)

// QueriesFor derives desired titles × locations from prefs, deduplicated and
// capped at max. Without locations every title is searched once without one.
func QueriesFor(prefs profile.Preferences, max int) []sources.Query {
	titles := utils.CompactStrings(prefs.DesiredTitles)
	locations := utils.CompactStrings(prefs.Locations)
	if len(locations) == 0 {
		locations = []string{""}
	}

	seen := make(map[string]struct{})
	var out []sources.Query
	for _, title := range titles {
		for _, location := range locations {
			q := sources.Query{Text: title, Location: location}
			if _, ok := seen[q.Key()]; ok {
				continue
			}
			seen[q.Key()] = struct{}{}
			out = append(out, q)
			if max > 0 && len(out) == max {
				return out
			}
		}
	}
	return out
}

// RunForUser runs an import over the queries derived from one user's
// preferences.
func (o *Orchestrator) RunForUser(ctx context.Context, prefs profile.Preferences, srcs []catalog.Source, mode Mode) (Stats, error) {
	queries := QueriesFor(prefs, o.cfg.UserMaxQueries)
	if len(queries) == 0 {
		o.logger.Info("no search preferences, nothing to import")
		return Stats{PerSource: map[catalog.Source]*SourceStats{}}, nil
	}
	return o.Run(ctx, Request{Sources: srcs, Queries: queries, Mode: mode})
}

// RunForAllUsers deduplicates the queries of every user before running the
// sources once.
func (o *Orchestrator) RunForAllUsers(ctx context.Context, prefs profile.PreferenceReader, srcs []catalog.Source, mode Mode) (Stats, error) {
	all, err := prefs.AllPreferences(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("read preferences: %w", err)
	}

	users := make([]string, 0, len(all))
	for id := range all {
		users = append(users, id)
	}
	sort.Strings(users)

	seen := make(map[string]struct{})
	var queries []sources.Query
	for _, id := range users {
		for _, q := range QueriesFor(all[id], o.cfg.UserMaxQueries) {
			if _, ok := seen[q.Key()]; ok {
				continue
			}
			seen[q.Key()] = struct{}{}
			queries = append(queries, q)
		}
	}

	o.logger.Info("derived queries for all users",
		zap.Int("users", len(users)),
		zap.Int("queries", len(queries)),
	)
	if len(queries) == 0 {
		return Stats{PerSource: map[catalog.Source]*SourceStats{}}, nil
	}
	return o.Run(ctx, Request{Sources: srcs, Queries: queries, Mode: mode})
}
