// Package headhunter searches vacancies through the hh.ru public API.
package headhunter

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/job-radar/internal/logger"
)

const (
	apiURL    = "https://api.hh.ru"
	userAgent = "spigell/job-radar (spigelly@gmail.com)"
	// Max value for search per page.
	perPage = "100"
	// hh.ru never returns more than 2000 items for one search.
	maxPages = 20
)

type Client struct {
	token      string
	logger     *zap.Logger
	HTTPClient *http.Client
	UserAgent  string
	APIURL     string
}

// New builds a client. The token is optional: vacancy search works anonymously
// but with stricter rate limits.
func New(log *zap.Logger, token string) *Client {
	return &Client{
		token:  token,
		APIURL: apiURL,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger:    logger.OrNop(log),
		UserAgent: userAgent,
	}
}
