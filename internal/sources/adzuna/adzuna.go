// Package adzuna searches the Adzuna aggregator API.
package adzuna

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/spigell/job-radar/internal/catalog"
	"github.com/spigell/job-radar/internal/logger"
	"github.com/spigell/job-radar/internal/sources"
)

const (
	baseURL     = "https://api.adzuna.com/v1/api/jobs"
	pageSize    = 50
	maxPages    = 3
	httpTimeout = 15 * time.Second
)

// Config holds Adzuna credentials. Country is the two-letter market ("gb", "us", "de").
type Config struct {
	AppID   string
	AppKey  string
	Country string
	BaseURL string
}

type Adapter struct {
	cfg    Config
	client *resty.Client
	logger *zap.Logger
	now    func() time.Time
}

func New(cfg Config, log *zap.Logger) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = baseURL
	}
	if cfg.Country == "" {
		cfg.Country = "gb"
	}
	return &Adapter{
		cfg: cfg,
		client: resty.New().
			SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
			SetTimeout(httpTimeout).
			SetHeader("Accept", "application/json"),
		logger: logger.OrNop(log),
		now:    time.Now,
	}
}

func (a *Adapter) Source() catalog.Source {
	return catalog.SourceAdzuna
}

type response struct {
	Results []json.RawMessage `json:"results"`
	Count   int               `json:"count"`
}

type result struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Company     struct {
		DisplayName string `json:"display_name"`
	} `json:"company"`
	Location struct {
		DisplayName string   `json:"display_name"`
		Area        []string `json:"area"`
	} `json:"location"`
	SalaryMin   float64 `json:"salary_min"`
	SalaryMax   float64 `json:"salary_max"`
	RedirectURL string  `json:"redirect_url"`
	Created     string  `json:"created"`
}

// Search pages through results until a short page, the query's page limit or
// the hard cap of three pages.
func (a *Adapter) Search(ctx context.Context, q sources.Query) (sources.Result, error) {
	if a.cfg.AppID == "" || a.cfg.AppKey == "" {
		return sources.Result{}, fmt.Errorf("adzuna app id and key: %w", sources.ErrNotConfigured)
	}

	pages := maxPages
	if q.PageLimit > 0 && q.PageLimit < pages {
		pages = q.PageLimit
	}

	var res sources.Result
	for page := 1; page <= pages; page++ {
		batch, raw, err := a.fetchPage(ctx, q, page)
		if err != nil {
			return res, fmt.Errorf("page %d: %w", page, err)
		}
		res.Jobs = append(res.Jobs, batch...)
		res.Dropped += raw - len(batch)
		if raw < pageSize {
			break
		}
	}

	return res, nil
}

func (a *Adapter) fetchPage(ctx context.Context, q sources.Query, page int) ([]catalog.NormalizedJob, int, error) {
	var body response
	resp, err := a.client.R().
		SetContext(ctx).
		SetPathParams(map[string]string{
			"country": a.cfg.Country,
			"page":    strconv.Itoa(page),
		}).
		SetQueryParams(map[string]string{
			"app_id":           a.cfg.AppID,
			"app_key":          a.cfg.AppKey,
			"results_per_page": strconv.Itoa(pageSize),
			"what":             q.Text,
			"where":            q.Location,
			"sort_by":          "date",
		}).
		SetResult(&body).
		Get("/{country}/search/{page}")
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, fmt.Errorf("%w: %w", sources.ErrTimeout, err)
		}
		return nil, 0, fmt.Errorf("http GET: %w", err)
	}

	switch resp.StatusCode() {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, 0, fmt.Errorf("adzuna returned %d: %w", resp.StatusCode(), sources.ErrNotConfigured)
	default:
		return nil, 0, fmt.Errorf("adzuna returned %d: %s", resp.StatusCode(), resp.String())
	}

	jobs := make([]catalog.NormalizedJob, 0, len(body.Results))
	for idx, item := range body.Results {
		job, err := a.normalize(item)
		if err != nil {
			a.logger.Debug("dropping malformed adzuna result", zap.Int("page", page), zap.Int("index", idx), zap.Error(err))
			continue
		}
		jobs = append(jobs, job)
	}
	if skipped := len(body.Results) - len(jobs); skipped > 0 {
		a.logger.Warn("skipped malformed results", zap.Int("page", page), zap.Int("skipped", skipped), zap.Int("kept", len(jobs)))
	}

	return jobs, len(body.Results), nil
}

func (a *Adapter) normalize(raw json.RawMessage) (catalog.NormalizedJob, error) {
	var r result
	if err := json.Unmarshal(raw, &r); err != nil {
		return catalog.NormalizedJob{}, err
	}
	if strings.TrimSpace(r.Title) == "" || r.RedirectURL == "" {
		return catalog.NormalizedJob{}, fmt.Errorf("result %q misses title or url", r.ID)
	}

	job := catalog.NormalizedJob{
		ExternalID:  r.ID,
		Title:       sources.HTMLToText(r.Title),
		Company:     strings.TrimSpace(r.Company.DisplayName),
		Location:    strings.TrimSpace(r.Location.DisplayName),
		RegionCode:  strings.ToUpper(a.cfg.Country),
		Description: sources.HTMLToText(r.Description),
		PostedAt:    sources.ParseDate(r.Created, a.now()),
		URL:         r.RedirectURL,
	}
	if r.SalaryMin > 0 {
		v := int(r.SalaryMin)
		job.Salary.Min = &v
	}
	if r.SalaryMax > 0 {
		v := int(r.SalaryMax)
		job.Salary.Max = &v
	}
	if !job.Salary.IsZero() {
		job.Salary.Currency = currencyFor(a.cfg.Country)
		// sent as "1"/"0", occasionally as a bare number
		job.Salary.Predicted = gjson.GetBytes(raw, "salary_is_predicted").String() == "1"
	}
	job.WorkMode = catalog.ClassifyWorkMode(catalog.WorkModeHint{
		Title:       job.Title,
		Location:    job.Location,
		Description: job.Description,
	})

	return job, nil
}

func currencyFor(country string) string {
	switch strings.ToLower(country) {
	case "gb":
		return "GBP"
	case "us":
		return "USD"
	case "ca":
		return "CAD"
	case "au":
		return "AUD"
	case "in":
		return "INR"
	case "pl":
		return "PLN"
	case "ch":
		return "CHF"
	case "br":
		return "BRL"
	default:
		return "EUR"
	}
}
