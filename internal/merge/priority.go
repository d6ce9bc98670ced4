package merge

import (
	"fmt"
	"strings"

	"github.com/spigell/job-radar/internal/catalog"
)

// Priorities is an immutable, versioned total order over sources. Index 0 is
// the highest priority. Build a new value to change the order.
type Priorities struct {
	version string
	order   []catalog.Source
	rank    map[catalog.Source]int
}

// DefaultPriorities puts direct partners first and the aggregator last.
func DefaultPriorities() Priorities {
	p, _ := NewPriorities("v1", catalog.AllSources...)
	return p
}

// NewPriorities validates order: every source must be known and listed once.
// Sources left out rank below every listed one.
func NewPriorities(version string, order ...catalog.Source) (Priorities, error) {
	if strings.TrimSpace(version) == "" {
		return Priorities{}, fmt.Errorf("priorities version is required")
	}
	if len(order) == 0 {
		return Priorities{}, fmt.Errorf("priorities %s: empty order", version)
	}

	rank := make(map[catalog.Source]int, len(order))
	for i, src := range order {
		if !src.Valid() {
			return Priorities{}, fmt.Errorf("priorities %s: unknown source %q", version, src)
		}
		if _, dup := rank[src]; dup {
			return Priorities{}, fmt.Errorf("priorities %s: source %q listed twice", version, src)
		}
		rank[src] = len(order) - i
	}

	return Priorities{
		version: version,
		order:   append([]catalog.Source(nil), order...),
		rank:    rank,
	}, nil
}

// ParsePriorities builds Priorities from configuration strings.
func ParsePriorities(version string, raw []string) (Priorities, error) {
	order := make([]catalog.Source, 0, len(raw))
	for _, r := range raw {
		src, err := catalog.ParseSource(r)
		if err != nil {
			return Priorities{}, err
		}
		order = append(order, src)
	}
	return NewPriorities(version, order...)
}

func (p Priorities) Version() string {
	return p.version
}

// Order returns a copy of the configured order, highest first.
func (p Priorities) Order() []catalog.Source {
	return append([]catalog.Source(nil), p.order...)
}

// Rank is larger for higher priority; unlisted sources rank 0.
func (p Priorities) Rank(src catalog.Source) int {
	return p.rank[src]
}

// Compare returns 1 when a outranks b, -1 when b outranks a and 0 when equal.
func (p Priorities) Compare(a, b catalog.Source) int {
	ra, rb := p.Rank(a), p.Rank(b)
	switch {
	case ra > rb:
		return 1
	case ra < rb:
		return -1
	default:
		return 0
	}
}
