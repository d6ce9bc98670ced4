// Package scraper drives a hosted scraper actor: start a run, poll it until it
// finishes, then read the run's dataset.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/spigell/job-radar/internal/catalog"
	"github.com/spigell/job-radar/internal/logger"
	"github.com/spigell/job-radar/internal/sources"
	"github.com/spigell/job-radar/internal/utils"
)

const (
	defaultBaseURL = "https://api.apify.com"
	// total time spent waiting between polls before the run is abandoned
	defaultPollBudget = 5 * time.Minute
	itemsPerPage      = 50
)

// run states reported by the actor platform
const (
	statusSucceeded = "SUCCEEDED"
	statusFailed    = "FAILED"
	statusAborted   = "ABORTED"
	statusTimedOut  = "TIMED-OUT"
)

var errRunFailed = errors.New("scraper run failed")

type Config struct {
	Token      string
	ActorID    string
	BaseURL    string
	PollBudget time.Duration
}

type Adapter struct {
	cfg     Config
	client  *resty.Client
	logger  *zap.Logger
	backoff utils.Backoff
	wait    func(ctx context.Context, d time.Duration) error
	now     func() time.Time
}

func New(cfg Config, log *zap.Logger) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.PollBudget <= 0 {
		cfg.PollBudget = defaultPollBudget
	}
	return &Adapter{
		cfg: cfg,
		client: resty.New().
			SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
			SetTimeout(30*time.Second).
			SetAuthToken(cfg.Token),
		logger:  logger.OrNop(log),
		backoff: utils.Backoff{Initial: 5 * time.Second, Max: 30 * time.Second},
		wait:    utils.WaitFor,
		now:     time.Now,
	}
}

func (a *Adapter) Source() catalog.Source {
	return catalog.SourceScraper
}

type runRef struct {
	ID        string
	DatasetID string
	Status    string
}

func (a *Adapter) Search(ctx context.Context, q sources.Query) (sources.Result, error) {
	if a.cfg.Token == "" || a.cfg.ActorID == "" {
		return sources.Result{}, fmt.Errorf("scraper token and actor: %w", sources.ErrNotConfigured)
	}

	maxItems := itemsPerPage
	if q.PageLimit > 0 {
		maxItems = itemsPerPage * q.PageLimit
	}

	run, err := a.start(ctx, q, maxItems)
	if err != nil {
		return sources.Result{}, err
	}
	log := a.logger.With(zap.String("run", run.ID))
	log.Debug("scraper run started")

	run, err = a.poll(ctx, run)
	if err != nil {
		return sources.Result{}, err
	}
	log.Debug("scraper run finished", zap.String("status", run.Status))

	return a.items(ctx, run.DatasetID, maxItems)
}

func (a *Adapter) start(ctx context.Context, q sources.Query, maxItems int) (runRef, error) {
	resp, err := a.client.R().
		SetContext(ctx).
		SetPathParam("actor", strings.ReplaceAll(a.cfg.ActorID, "/", "~")).
		SetBody(map[string]any{
			"position": q.Text,
			"location": q.Location,
			"maxItems": maxItems,
		}).
		Post("/v2/acts/{actor}/runs")
	if err != nil {
		return runRef{}, a.transportError(ctx, "start run", err)
	}
	if err := statusError(resp); err != nil {
		return runRef{}, fmt.Errorf("start run: %w", err)
	}
	return parseRun(resp.String())
}

// poll waits 5s, 10s, 20s and then every 30s. Waits are summed and the run is
// abandoned with ErrTimeout once they exceed the poll budget.
func (a *Adapter) poll(ctx context.Context, run runRef) (runRef, error) {
	var waited time.Duration
	for attempt := 0; ; attempt++ {
		switch run.Status {
		case statusSucceeded:
			return run, nil
		case statusFailed, statusAborted, statusTimedOut:
			return run, fmt.Errorf("%w: run %s is %s", errRunFailed, run.ID, run.Status)
		}

		delay := a.backoff.Delay(attempt)
		if waited+delay > a.cfg.PollBudget {
			return run, fmt.Errorf("run %s still %s after %s: %w", run.ID, run.Status, waited, sources.ErrTimeout)
		}
		if err := a.wait(ctx, delay); err != nil {
			return run, fmt.Errorf("%w: %w", sources.ErrTimeout, err)
		}
		waited += delay

		resp, err := a.client.R().
			SetContext(ctx).
			SetPathParam("run", run.ID).
			Get("/v2/actor-runs/{run}")
		if err != nil {
			return run, a.transportError(ctx, "poll run", err)
		}
		if err := statusError(resp); err != nil {
			return run, fmt.Errorf("poll run: %w", err)
		}
		next, err := parseRun(resp.String())
		if err != nil {
			return run, err
		}
		run = next
	}
}

func (a *Adapter) items(ctx context.Context, datasetID string, limit int) (sources.Result, error) {
	resp, err := a.client.R().
		SetContext(ctx).
		SetPathParam("dataset", datasetID).
		SetQueryParams(map[string]string{
			"clean":  "true",
			"format": "json",
			"limit":  fmt.Sprint(limit),
		}).
		Get("/v2/datasets/{dataset}/items")
	if err != nil {
		return sources.Result{}, a.transportError(ctx, "read dataset", err)
	}
	if err := statusError(resp); err != nil {
		return sources.Result{}, fmt.Errorf("read dataset: %w", err)
	}

	body := resp.String()
	if !gjson.Valid(body) {
		return sources.Result{}, fmt.Errorf("read dataset: invalid json")
	}

	now := a.now()
	var res sources.Result
	gjson.Parse(body).ForEach(func(_, item gjson.Result) bool {
		job, err := normalize(item, now)
		if err != nil {
			res.Dropped++
			a.logger.Debug("dropping scraped item", zap.Error(err))
			return true
		}
		res.Jobs = append(res.Jobs, job)
		return true
	})
	if res.Dropped > 0 {
		a.logger.Warn("skipped malformed items", zap.Int("skipped", res.Dropped), zap.Int("kept", len(res.Jobs)))
	}

	return res, nil
}

func (a *Adapter) transportError(ctx context.Context, step string, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%s: %w: %w", step, sources.ErrTimeout, err)
	}
	return fmt.Errorf("%s: %w", step, err)
}

func statusError(resp *resty.Response) error {
	switch code := resp.StatusCode(); {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("status %d: %w", code, sources.ErrNotConfigured)
	case code < 200 || code > 299:
		return fmt.Errorf("status %d: %s", code, utils.TruncateForLog(resp.String(), 200))
	}
	return nil
}

func parseRun(body string) (runRef, error) {
	data := gjson.Get(body, "data")
	run := runRef{
		ID:        data.Get("id").String(),
		DatasetID: data.Get("defaultDatasetId").String(),
		Status:    data.Get("status").String(),
	}
	if run.ID == "" || run.Status == "" {
		return run, fmt.Errorf("unexpected run payload: %s", utils.TruncateForLog(body, 200))
	}
	return run, nil
}
