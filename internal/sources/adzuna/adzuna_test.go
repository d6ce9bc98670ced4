package adzuna

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/spigell/job-radar/internal/catalog"
	"github.com/spigell/job-radar/internal/sources"
)

func TestSearchNotConfigured(t *testing.T) {
	a := New(Config{}, nil)

	_, err := a.Search(context.Background(), sources.Query{Text: "go"})
	if !errors.Is(err, sources.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if !sources.IsFatal(err) {
		t.Fatalf("missing credentials must be fatal")
	}
}

func TestSearchNormalizesAndDropsMalformed(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/gb/search/1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("app_id") != "id" || r.URL.Query().Get("what") != "golang" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"count": 3, "results": [
			{"id": "1", "title": "Senior <strong>Go</strong> Engineer", "description": "Fully remote team",
			 "company": {"display_name": "Acme"}, "location": {"display_name": "London"},
			 "salary_min": 70000, "salary_max": 90000, "salary_is_predicted": "1",
			 "redirect_url": "https://adzuna.example/1", "created": "2024-03-01T10:00:00Z"},
			{"id": "2", "title": 42},
			{"id": "3", "title": "No URL"}
		]}`)
	}))
	defer srv.Close()

	a := New(Config{AppID: "id", AppKey: "key", BaseURL: srv.URL}, zaptest.NewLogger(t))

	res, err := a.Search(context.Background(), sources.Query{Text: "golang", Location: "London"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("short page must stop paging, got %d calls", calls.Load())
	}
	if len(res.Jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(res.Jobs))
	}
	if res.Dropped != 2 {
		t.Fatalf("expected 2 dropped results, got %d", res.Dropped)
	}

	job := res.Jobs[0]
	if job.Title != "Senior Go Engineer" {
		t.Fatalf("unexpected title %q", job.Title)
	}
	if job.WorkMode != catalog.WorkModeRemote {
		t.Fatalf("expected remote, got %s", job.WorkMode)
	}
	if !job.Salary.Predicted || job.Salary.Currency != "GBP" || *job.Salary.Max != 90000 {
		t.Fatalf("unexpected salary %+v", job.Salary)
	}
	if job.PostedAt.IsZero() {
		t.Fatalf("expected parsed date")
	}
}

func TestSearchPagesUntilLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		items := make([]string, 0, pageSize)
		for i := 0; i < pageSize; i++ {
			items = append(items, fmt.Sprintf(`{"id":"%d-%d","title":"Job","redirect_url":"https://x/%d-%d"}`, n, i, n, i))
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"results":[%s]}`, strings.Join(items, ","))
	}))
	defer srv.Close()

	a := New(Config{AppID: "id", AppKey: "key", BaseURL: srv.URL}, nil)

	res, err := a.Search(context.Background(), sources.Query{Text: "go", PageLimit: 2})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if calls.Load() != 2 || len(res.Jobs) != 2*pageSize {
		t.Fatalf("expected 2 pages, got %d calls and %d jobs", calls.Load(), len(res.Jobs))
	}
	if res.Dropped != 0 {
		t.Fatalf("expected nothing dropped, got %d", res.Dropped)
	}
}

func TestSearchKeepsEarlierPagesOnFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) > 1 {
			http.Error(w, "upstream failure", http.StatusInternalServerError)
			return
		}
		items := make([]string, 0, pageSize)
		for i := 0; i < pageSize; i++ {
			items = append(items, fmt.Sprintf(`{"id":"%d","title":"Job","redirect_url":"https://x/%d"}`, i, i))
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"results":[%s]}`, strings.Join(items, ","))
	}))
	defer srv.Close()

	a := New(Config{AppID: "id", AppKey: "key", BaseURL: srv.URL}, nil)

	res, err := a.Search(context.Background(), sources.Query{Text: "go"})
	if err == nil {
		t.Fatalf("expected the second page to fail")
	}
	if sources.IsFatal(err) {
		t.Fatalf("a server error must not be fatal: %v", err)
	}
	if len(res.Jobs) != pageSize {
		t.Fatalf("expected the first page to be kept, got %d jobs", len(res.Jobs))
	}
}

func TestSearchUnauthorizedIsNotConfigured(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	a := New(Config{AppID: "id", AppKey: "bad", BaseURL: srv.URL}, nil)
	if _, err := a.Search(context.Background(), sources.Query{Text: "go"}); !errors.Is(err, sources.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
