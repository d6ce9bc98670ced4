// Package sources defines the contract every job source adapter implements.
package sources

import (
	"context"
	"errors"
	"strings"

	"github.com/spigell/job-radar/internal/catalog"
)

var (
	// ErrTimeout marks a transient failure: the source did not finish in time.
	// The orchestrator abandons the query instead of treating the data as bad.
	ErrTimeout = errors.New("source timed out")
	// ErrNotConfigured marks a missing credential or endpoint. It is fatal for
	// the source's part of a run.
	ErrNotConfigured = errors.New("source is not configured")
)

// Query is one search unit.
type Query struct {
	Text      string
	Location  string
	PageLimit int
}

// Key identifies a query independent of case and surrounding whitespace.
func (q Query) Key() string {
	return strings.ToLower(strings.TrimSpace(q.Text)) + "|" + strings.ToLower(strings.TrimSpace(q.Location))
}

// Result is what one Search produced. Dropped counts malformed items the
// adapter discarded instead of returning.
type Result struct {
	Jobs    []catalog.NormalizedJob
	Dropped int
}

// Adapter searches a single source and returns normalized jobs. Malformed
// items are dropped, logged and counted in Result.Dropped, never returned as
// errors. A Result returned together with an error holds whatever was fetched
// before the failure.
type Adapter interface {
	Source() catalog.Source
	Search(ctx context.Context, q Query) (Result, error)
}

// IsFatal reports whether err should abort the source for the rest of the run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrNotConfigured)
}
