package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/spigell/job-radar/internal/embedding"
)

type indexKey struct {
	kind embedding.Kind
	id   string
}

// Index is a brute-force vector index.
type Index struct {
	mu      sync.RWMutex
	entries map[indexKey]embedding.IndexEntry
	Upserts int
}

func NewIndex() *Index {
	return &Index{entries: make(map[indexKey]embedding.IndexEntry)}
}

func (x *Index) Upsert(_ context.Context, entries []embedding.IndexEntry) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.Upserts++
	for _, e := range entries {
		e.Vector = append([]float32(nil), e.Vector...)
		x.entries[indexKey{e.Kind, e.ID}] = e
	}
	return nil
}

func (x *Index) Get(kind embedding.Kind, id string) (embedding.IndexEntry, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	e, ok := x.entries[indexKey{kind, id}]
	return e, ok
}

// Nearest returns up to k entries of kind ordered by cosine similarity.
func (x *Index) Nearest(_ context.Context, kind embedding.Kind, vector []float32, k int) ([]embedding.IndexEntry, error) {
	x.mu.RLock()
	var out []embedding.IndexEntry
	for key, e := range x.entries {
		if key.kind == kind {
			out = append(out, e)
		}
	}
	x.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		si, sj := embedding.Cosine(vector, out[i].Vector), embedding.Cosine(vector, out[j].Vector)
		if si != sj {
			return si > sj
		}
		return out[i].ID < out[j].ID
	})
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out, nil
}
