// Package catalog holds the canonical job posting model shared by ingestion,
// embedding and recommendation.
package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// WorkMode is the on-site/remote/hybrid classification of a posting.
type WorkMode string

const (
	WorkModeOnSite WorkMode = "on-site"
	WorkModeRemote WorkMode = "remote"
	WorkModeHybrid WorkMode = "hybrid"
)

func (m WorkMode) Valid() bool {
	switch m {
	case WorkModeOnSite, WorkModeRemote, WorkModeHybrid:
		return true
	default:
		return false
	}
}

// Source identifies where a posting was ingested from.
type Source string

const (
	// SourcePartner is a direct-partner careers page.
	SourcePartner Source = "partner"
	// SourceHeadHunter is the hh.ru vacancy search API.
	SourceHeadHunter Source = "headhunter"
	// SourceScraper is a hosted scraper actor run over public job boards.
	SourceScraper Source = "scraper"
	// SourceAdzuna is the Adzuna aggregator API.
	SourceAdzuna Source = "adzuna"
)

// AllSources lists every known source in default priority order, highest first.
var AllSources = []Source{SourcePartner, SourceHeadHunter, SourceScraper, SourceAdzuna}

func (s Source) Valid() bool {
	for _, known := range AllSources {
		if s == known {
			return true
		}
	}
	return false
}

// ParseSource converts a configuration string into a Source.
func ParseSource(raw string) (Source, error) {
	s := Source(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown source %q", raw)
	}
	return s, nil
}

// Salary is a nullable range. Predicted marks ranges estimated by the source
// rather than stated by the employer.
type Salary struct {
	Min       *int   `json:"min,omitempty"`
	Max       *int   `json:"max,omitempty"`
	Currency  string `json:"currency,omitempty"`
	Predicted bool   `json:"predicted,omitempty"`
}

func (s Salary) IsZero() bool {
	return s.Min == nil && s.Max == nil
}

// NormalizedJob is the source-agnostic shape every adapter produces.
type NormalizedJob struct {
	ExternalID   string    `json:"external_id,omitempty"`
	Title        string    `json:"title"`
	Company      string    `json:"company"`
	Location     string    `json:"location"`
	RegionCode   string    `json:"region_code,omitempty"`
	WorkMode     WorkMode  `json:"work_mode"`
	Description  string    `json:"description"`
	Requirements []string  `json:"requirements,omitempty"`
	Salary       Salary    `json:"salary"`
	PostedAt     time.Time `json:"posted_at"`
	URL          string    `json:"url,omitempty"`
}

// Key returns the normalized dedup key of the job.
func (j NormalizedJob) Key() string {
	return NormalizedKey(j.Title, j.Company, j.Location)
}

// JobPosting is a catalog entry.
type JobPosting struct {
	ID string `json:"id"`
	NormalizedJob
	Source     Source     `json:"source"`
	Key        string     `json:"key"`
	Embedding  []float32  `json:"-"`
	EmbeddedAt *time.Time `json:"embedded_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	LastSeenAt time.Time  `json:"last_seen_at"`
}

// Clone returns a deep copy so stores never share slices with callers.
func (j *JobPosting) Clone() *JobPosting {
	if j == nil {
		return nil
	}
	c := *j
	c.Requirements = append([]string(nil), j.Requirements...)
	c.Embedding = append([]float32(nil), j.Embedding...)
	if j.Salary.Min != nil {
		v := *j.Salary.Min
		c.Salary.Min = &v
	}
	if j.Salary.Max != nil {
		v := *j.Salary.Max
		c.Salary.Max = &v
	}
	if j.EmbeddedAt != nil {
		t := *j.EmbeddedAt
		c.EmbeddedAt = &t
	}
	return &c
}

// NormalizedKey lowercases title+company+location, strips all whitespace and
// hashes the result so it fits a fixed-width index column.
func NormalizedKey(title, company, location string) string {
	var b strings.Builder
	for _, part := range []string{title, company, location} {
		for _, r := range strings.ToLower(part) {
			if unicode.IsSpace(r) {
				continue
			}
			b.WriteRune(r)
		}
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// RecentQuery selects recently seen jobs, newest first. Near only breaks ties
// between jobs seen at the same instant: closer vectors first, jobs without a
// vector last.
type RecentQuery struct {
	Since time.Time
	Limit int
	Near  []float32
}
