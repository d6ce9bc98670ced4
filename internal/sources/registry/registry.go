// Package registry builds source adapters from configuration.
package registry

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/job-radar/internal/catalog"
	"github.com/spigell/job-radar/internal/sources"
	"github.com/spigell/job-radar/internal/sources/adzuna"
	"github.com/spigell/job-radar/internal/sources/headhunter"
	"github.com/spigell/job-radar/internal/sources/partner"
	"github.com/spigell/job-radar/internal/sources/scraper"
)

type HeadHunterConfig struct {
	Token      string
	Areas      map[string]int
	PeriodDays uint
}

// Config carries the per-source settings. Secrets are already resolved.
type Config struct {
	HeadHunter HeadHunterConfig
	Adzuna     adzuna.Config
	Scraper    scraper.Config
	Partners   []partner.Page
}

// Factory builds one adapter. It is the seam the orchestrator uses, so tests
// can hand in fakes.
type Factory func(src catalog.Source) (sources.Adapter, error)

// New returns a Factory over cfg.
func New(cfg Config, logger *zap.Logger) Factory {
	return func(src catalog.Source) (sources.Adapter, error) {
		return Build(src, cfg, logger)
	}
}

// Build constructs the adapter for src. Missing credentials are not an error
// here; adapters report ErrNotConfigured on first use.
func Build(src catalog.Source, cfg Config, logger *zap.Logger) (sources.Adapter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("source", string(src)))

	switch src {
	case catalog.SourcePartner:
		return partner.New(cfg.Partners, &http.Client{Timeout: 20 * time.Second}, logger), nil
	case catalog.SourceHeadHunter:
		client := headhunter.New(logger, cfg.HeadHunter.Token)
		return headhunter.NewAdapter(client, cfg.HeadHunter.Areas, cfg.HeadHunter.PeriodDays), nil
	case catalog.SourceScraper:
		return scraper.New(cfg.Scraper, logger), nil
	case catalog.SourceAdzuna:
		return adzuna.New(cfg.Adzuna, logger), nil
	default:
		return nil, fmt.Errorf("unknown source %q", src)
	}
}
