package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spigell/job-radar/internal/catalog"
	"github.com/spigell/job-radar/internal/embedding"
	"github.com/spigell/job-radar/internal/quota"
)

func posting(id, url, key string, seen time.Time) *catalog.JobPosting {
	return &catalog.JobPosting{
		ID:            id,
		NormalizedJob: catalog.NormalizedJob{Title: id, URL: url},
		Key:           key,
		LastSeenAt:    seen,
	}
}

func TestJobsURLConflicts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewJobs()
	now := time.Now()

	if err := s.Insert(ctx, posting("a", "https://x/1", "k", now)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Insert(ctx, posting("b", "https://x/1", "k", now)); !errors.Is(err, catalog.ErrConflict) {
		t.Fatalf("expected ErrConflict on duplicate url, got %v", err)
	}
	if err := s.Insert(ctx, posting("b", "", "k", now)); err != nil {
		t.Fatalf("jobs without url must not conflict: %v", err)
	}
	if err := s.Update(ctx, posting("b", "https://x/1", "k", now)); !errors.Is(err, catalog.ErrConflict) {
		t.Fatalf("expected ErrConflict on update, got %v", err)
	}
	if err := s.Update(ctx, posting("missing", "", "k", now)); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	oldest, _ := s.FindByKey(ctx, "k")
	if oldest == nil || oldest.ID != "a" {
		t.Fatalf("expected the oldest entry for a shared key, got %+v", oldest)
	}
	if got, _ := s.FindByURL(ctx, ""); got != nil {
		t.Fatalf("empty url must never match, got %+v", got)
	}
}

func TestJobsReturnCopies(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewJobs()
	_ = s.Insert(ctx, posting("a", "https://x/1", "k", time.Now()))

	got, _ := s.Get(ctx, "a")
	got.Title = "changed"

	again, _ := s.Get(ctx, "a")
	if again.Title != "a" {
		t.Fatal("callers must not be able to mutate stored jobs")
	}
}

func TestRecentJobsOrdering(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewJobs()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	_ = s.Insert(ctx, posting("old", "", "1", base.Add(-48*time.Hour)))
	_ = s.Insert(ctx, posting("recent", "", "2", base.Add(2*time.Hour)))
	_ = s.Insert(ctx, posting("close", "", "3", base.Add(time.Hour)))
	_ = s.Insert(ctx, posting("far", "", "4", base.Add(3*time.Hour)))
	_ = s.Insert(ctx, posting("twin", "", "5", base.Add(3*time.Hour)))
	_ = s.SetJobEmbedding(ctx, "close", []float32{1, 0}, base.Add(4*time.Hour))
	_ = s.SetJobEmbedding(ctx, "twin", []float32{1, 0}, base.Add(4*time.Hour))
	// embedded before it was last seen, so stale
	_ = s.SetJobEmbedding(ctx, "far", []float32{0, 1}, base)

	byRecency, _ := s.RecentJobs(ctx, catalog.RecentQuery{Since: base})
	assertIDs(t, byRecency, "far", "twin", "recent", "close")

	// recency still decides the pool; similarity only orders the tie
	withNear, _ := s.RecentJobs(ctx, catalog.RecentQuery{Since: base, Near: []float32{1, 0.1}, Limit: 3})
	assertIDs(t, withNear, "twin", "far", "recent")

	missing, _ := s.MissingEmbeddings(ctx, 0)
	assertIDs(t, missing, "old", "recent", "far")
}

func assertIDs(t *testing.T, jobs []*catalog.JobPosting, ids ...string) {
	t.Helper()
	if len(jobs) != len(ids) {
		t.Fatalf("expected %v, got %d jobs", ids, len(jobs))
	}
	for i, id := range ids {
		if jobs[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, jobs[i].ID)
		}
	}
}

func TestImportsTransitions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewImports()
	at := time.Now()

	_ = s.CreateImport(ctx, &quota.ImportRequest{ID: "i1", UserID: "u1", Status: quota.StatusPending, RequestedAt: at})

	ok, err := s.TransitionImport(ctx, quota.Transition{ID: "i1", From: []quota.Status{quota.StatusPending}, To: quota.StatusCompleted, CompletedAt: &at})
	if err != nil || !ok {
		t.Fatalf("expected transition, got %v %v", ok, err)
	}
	ok, _ = s.TransitionImport(ctx, quota.Transition{ID: "i1", From: []quota.Status{quota.StatusPending}, To: quota.StatusFailed})
	if ok {
		t.Fatal("a finished import must not move again")
	}
	if _, err := s.TransitionImport(ctx, quota.Transition{ID: "nope"}); !errors.Is(err, quota.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	last, _ := s.LastCompletedImport(ctx, "u1")
	if last == nil || last.ID != "i1" || last.CompletedAt == nil {
		t.Fatalf("unexpected last import: %+v", last)
	}
}

func TestUsageRetention(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewUsage()

	_, _ = s.IncrementUsage(ctx, "u1", "2025-01", quota.ActionJobImport, 1)
	n, _ := s.IncrementUsage(ctx, "u1", "2026-03", quota.ActionJobImport, 2)
	if n != 2 {
		t.Fatalf("expected running count 2, got %d", n)
	}

	deleted, _ := s.DeleteUsageBefore(ctx, "2026-01")
	if deleted != 1 {
		t.Fatalf("expected one bucket deleted, got %d", deleted)
	}
	old, _ := s.Usage(ctx, "u1", "2025-01")
	if len(old) != 0 {
		t.Fatalf("expected old bucket gone, got %v", old)
	}
}

func TestIndexNearest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	x := NewIndex()

	_ = x.Upsert(ctx, []embedding.IndexEntry{
		{Kind: embedding.KindJob, ID: "a", Vector: []float32{1, 0}},
		{Kind: embedding.KindJob, ID: "b", Vector: []float32{0, 1}},
		{Kind: embedding.KindUser, ID: "u1", Vector: []float32{1, 0}},
	})

	got, _ := x.Nearest(ctx, embedding.KindJob, []float32{0.1, 1}, 5)
	if len(got) != 2 || got[0].ID != "b" || got[1].ID != "a" {
		t.Fatalf("unexpected neighbours: %+v", got)
	}
}
