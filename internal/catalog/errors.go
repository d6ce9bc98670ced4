package catalog

import "errors"

var (
	// ErrNotFound is returned by stores when a job does not exist.
	ErrNotFound = errors.New("job not found")
	// ErrConflict is returned by stores when a write would reuse the URL of
	// another entry.
	ErrConflict = errors.New("job conflicts with an existing entry")
)
