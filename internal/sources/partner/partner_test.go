package partner

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/spigell/job-radar/internal/catalog"
	"github.com/spigell/job-radar/internal/sources"
)

const listingWithPostings = `<html><head>
<script type="application/ld+json">
{"@context": "https://schema.org", "@graph": [
  {"@type": "Organization", "name": "Initech"},
  {"@type": "JobPosting", "title": "Senior Go Engineer", "description": "<p>Build APIs</p>",
   "datePosted": "2024-03-01", "hiringOrganization": {"name": "Initech GmbH"},
   "jobLocation": {"@type": "Place", "address": {"addressLocality": "Berlin", "addressCountry": "DE"}},
   "baseSalary": {"currency": "eur", "value": {"minValue": 70000, "maxValue": 90000}},
   "url": "/jobs/1", "identifier": {"value": "J-1"}, "skills": ["Go", "PostgreSQL"]},
  {"@type": ["JobPosting"], "title": "Product Designer", "url": "/jobs/2"},
  {"@type": "JobPosting", "title": "  ", "url": "/jobs/3"}
]}
</script></head><body></body></html>`

const listingWithLinks = `<html><body>
<a href="/jobs/a">Backend developer</a>
<a href="/jobs/a#apply">Apply</a>
<a href="/jobs/b">Broken</a>
<a href="/about">About</a>
</body></html>`

const remoteDetail = `<html><head><script type="application/ld+json">
{"@type": "JobPosting", "title": "Backend Developer", "jobLocationType": "TELECOMMUTE",
 "description": "Work with Go", "baseSalary": {"currency": "USD", "value": {"value": 120000}}}
</script></head></html>`

func TestSearchListingJSONLD(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, listingWithPostings)
	}))
	defer srv.Close()

	a := New([]Page{{Company: "Initech", URL: srv.URL + "/careers"}}, srv.Client(), zaptest.NewLogger(t))

	res, err := a.Search(context.Background(), sources.Query{Text: "go engineer", Location: "berlin"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res.Jobs) != 1 {
		t.Fatalf("expected 1 matching job, got %d", len(res.Jobs))
	}
	if res.Dropped != 1 {
		t.Fatalf("expected the untitled posting to be counted, got %d", res.Dropped)
	}

	job := res.Jobs[0]
	if job.URL != srv.URL+"/jobs/1" {
		t.Fatalf("unexpected url %q", job.URL)
	}
	if job.Company != "Initech GmbH" || job.Location != "Berlin" || job.RegionCode != "DE" {
		t.Fatalf("unexpected job %+v", job)
	}
	if job.ExternalID != "J-1" || job.Description != "Build APIs" {
		t.Fatalf("unexpected id/description %q %q", job.ExternalID, job.Description)
	}
	if job.Salary.Currency != "EUR" || *job.Salary.Min != 70000 || *job.Salary.Max != 90000 {
		t.Fatalf("unexpected salary %+v", job.Salary)
	}
	if len(job.Requirements) != 2 {
		t.Fatalf("unexpected requirements %v", job.Requirements)
	}
	if job.WorkMode != catalog.WorkModeOnSite {
		t.Fatalf("expected on-site, got %s", job.WorkMode)
	}
}

func TestSearchFollowsDetailLinks(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/careers", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, listingWithLinks)
	})
	mux.HandleFunc("/jobs/a", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, remoteDetail)
	})
	mux.HandleFunc("/jobs/b", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	a := New([]Page{{Company: "Hooli", URL: srv.URL + "/careers", LinkSelector: `a[href^="/jobs/"]`}}, srv.Client(), nil)

	res, err := a.Search(context.Background(), sources.Query{Text: "backend", Location: "London"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res.Jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(res.Jobs))
	}
	job := res.Jobs[0]
	if job.Company != "Hooli" {
		t.Fatalf("expected company from page config, got %q", job.Company)
	}
	if job.URL != srv.URL+"/jobs/a" {
		t.Fatalf("detail url must be used when posting has none, got %q", job.URL)
	}
	if job.WorkMode != catalog.WorkModeRemote {
		t.Fatalf("expected remote, got %s", job.WorkMode)
	}
	if job.Salary.Min == nil || *job.Salary.Min != 120000 || job.Salary.Currency != "USD" {
		t.Fatalf("unexpected salary %+v", job.Salary)
	}
}

func TestSearchNotConfigured(t *testing.T) {
	_, err := New(nil, nil, nil).Search(context.Background(), sources.Query{Text: "go"})
	if !errors.Is(err, sources.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestSearchAllPagesFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := New([]Page{{Company: "A", URL: srv.URL}, {Company: "B", URL: srv.URL + "/b"}}, srv.Client(), nil)
	if _, err := a.Search(context.Background(), sources.Query{Text: "go"}); err == nil {
		t.Fatalf("expected error when every page fails")
	}
}

func TestJobPostingsIgnoresInvalidBlocks(t *testing.T) {
	if got := jobPostings("{not json"); got != nil {
		t.Fatalf("expected nil for invalid block, got %v", got)
	}
	if got := jobPostings(`[{"@type":"JobPosting","title":"A"},{"@type":"Event"}]`); len(got) != 1 {
		t.Fatalf("expected 1 posting from array, got %d", len(got))
	}
}
