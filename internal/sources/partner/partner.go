// Package partner reads direct-partner careers pages. Postings are taken from
// schema.org JobPosting JSON-LD blocks, either on the listing page itself or
// on the detail pages it links to.
package partner

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/spigell/job-radar/internal/catalog"
	"github.com/spigell/job-radar/internal/logger"
	"github.com/spigell/job-radar/internal/sources"
)

const (
	defaultLinkSelector = `a[href*="job"], a[href*="career"], a[href*="vacanc"]`
	// detail pages fetched per listing page and query page
	detailsPerPage = 25
)

// Page is one partner careers listing.
type Page struct {
	Company string `mapstructure:"company"`
	URL     string `mapstructure:"url"`
	// LinkSelector finds detail page links when the listing carries no JSON-LD.
	LinkSelector string `mapstructure:"link-selector"`
}

type Adapter struct {
	pages  []Page
	client *http.Client
	logger *zap.Logger
	now    func() time.Time
}

func New(pages []Page, client *http.Client, log *zap.Logger) *Adapter {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &Adapter{pages: pages, client: client, logger: logger.OrNop(log), now: time.Now}
}

func (a *Adapter) Source() catalog.Source {
	return catalog.SourcePartner
}

// Search scans every configured partner page and keeps postings whose title
// matches the query text and whose location matches the query location.
func (a *Adapter) Search(ctx context.Context, q sources.Query) (sources.Result, error) {
	if len(a.pages) == 0 {
		return sources.Result{}, fmt.Errorf("no partner pages: %w", sources.ErrNotConfigured)
	}

	limit := detailsPerPage
	if q.PageLimit > 0 {
		limit = detailsPerPage * q.PageLimit
	}

	var (
		res    sources.Result
		seen   = map[string]struct{}{}
		failed int
	)
	for _, page := range a.pages {
		jobs, dropped, err := a.scanPage(ctx, page, limit)
		res.Dropped += dropped
		if err != nil {
			if ctx.Err() != nil {
				return res, fmt.Errorf("%w: %w", sources.ErrTimeout, err)
			}
			failed++
			a.logger.Warn("partner page failed", zap.String("company", page.Company), zap.String("url", page.URL), zap.Error(err))
			continue
		}
		for _, job := range jobs {
			if !matches(job, q) {
				continue
			}
			if _, ok := seen[job.URL]; ok {
				continue
			}
			seen[job.URL] = struct{}{}
			res.Jobs = append(res.Jobs, job)
		}
	}

	if failed == len(a.pages) {
		return sources.Result{Dropped: res.Dropped}, fmt.Errorf("all %d partner pages failed", failed)
	}

	return res, nil
}

// scanPage returns the postings found on a listing page or its detail pages
// together with the number of malformed postings dropped along the way.
func (a *Adapter) scanPage(ctx context.Context, page Page, limit int) ([]catalog.NormalizedJob, int, error) {
	base, err := url.Parse(page.URL)
	if err != nil {
		return nil, 0, fmt.Errorf("parse url: %w", err)
	}

	doc, err := a.fetchDocument(ctx, page.URL)
	if err != nil {
		return nil, 0, err
	}

	jobs, dropped := a.extractPostings(doc, base, page.Company)
	if len(jobs) > 0 {
		return jobs, dropped, nil
	}

	selector := page.LinkSelector
	if selector == "" {
		selector = defaultLinkSelector
	}

	var links []string
	linked := map[string]struct{}{}
	doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, ok := s.Attr("href")
		if !ok {
			return true
		}
		ref, err := base.Parse(strings.TrimSpace(href))
		if err != nil || ref.String() == base.String() {
			return true
		}
		ref.Fragment = ""
		if _, dup := linked[ref.String()]; dup {
			return true
		}
		linked[ref.String()] = struct{}{}
		links = append(links, ref.String())
		return len(links) < limit
	})

	for _, link := range links {
		detail, err := a.fetchDocument(ctx, link)
		if err != nil {
			if ctx.Err() != nil {
				return jobs, dropped, err
			}
			a.logger.Debug("skipping partner detail page", zap.String("url", link), zap.Error(err))
			continue
		}
		ref, _ := url.Parse(link)
		found, skipped := a.extractPostings(detail, ref, page.Company)
		jobs = append(jobs, found...)
		dropped += skipped
	}

	return jobs, dropped, nil
}

func (a *Adapter) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "job-radar/1.0")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned %s", pageURL, resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	return doc, nil
}

func (a *Adapter) extractPostings(doc *goquery.Document, pageURL *url.URL, company string) ([]catalog.NormalizedJob, int) {
	var (
		jobs    []catalog.NormalizedJob
		skipped int
	)
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		for _, posting := range jobPostings(s.Text()) {
			job, err := normalize(posting, pageURL, company, a.now())
			if err != nil {
				skipped++
				a.logger.Debug("dropping partner posting", zap.String("url", pageURL.String()), zap.Error(err))
				continue
			}
			jobs = append(jobs, job)
		}
	})
	if skipped > 0 {
		a.logger.Warn("skipped malformed postings", zap.String("url", pageURL.String()), zap.Int("skipped", skipped))
	}
	return jobs, skipped
}

func matches(job catalog.NormalizedJob, q sources.Query) bool {
	if text := strings.ToLower(strings.TrimSpace(q.Text)); text != "" {
		title := strings.ToLower(job.Title)
		hit := false
		for _, word := range strings.Fields(text) {
			if strings.Contains(title, word) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	if loc := strings.ToLower(strings.TrimSpace(q.Location)); loc != "" {
		if job.WorkMode != catalog.WorkModeRemote && !strings.Contains(strings.ToLower(job.Location), loc) {
			return false
		}
	}
	return true
}
