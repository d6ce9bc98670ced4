// Package memory holds in-process implementations of every store. They back
// tests and dry runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/spigell/job-radar/internal/catalog"
	"github.com/spigell/job-radar/internal/embedding"
)

type Jobs struct {
	mu   sync.RWMutex
	byID map[string]*catalog.JobPosting
	// insertion order keeps FindByKey deterministic
	order []string
}

func NewJobs() *Jobs {
	return &Jobs{byID: make(map[string]*catalog.JobPosting)}
}

func (s *Jobs) FindByURL(_ context.Context, url string) (*catalog.JobPosting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if url == "" {
		return nil, nil
	}
	for _, id := range s.order {
		if job := s.byID[id]; job.URL == url {
			return job.Clone(), nil
		}
	}
	return nil, nil
}

func (s *Jobs) FindByKey(_ context.Context, key string) (*catalog.JobPosting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.order {
		if job := s.byID[id]; job.Key == key {
			return job.Clone(), nil
		}
	}
	return nil, nil
}

func (s *Jobs) Insert(_ context.Context, job *catalog.JobPosting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[job.ID]; ok {
		return catalog.ErrConflict
	}
	if s.urlTaken(job.URL, job.ID) {
		return catalog.ErrConflict
	}
	s.byID[job.ID] = job.Clone()
	s.order = append(s.order, job.ID)
	return nil
}

func (s *Jobs) Update(_ context.Context, job *catalog.JobPosting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[job.ID]; !ok {
		return catalog.ErrNotFound
	}
	if s.urlTaken(job.URL, job.ID) {
		return catalog.ErrConflict
	}
	s.byID[job.ID] = job.Clone()
	return nil
}

func (s *Jobs) urlTaken(url, exceptID string) bool {
	if url == "" {
		return false
	}
	for id, other := range s.byID {
		if id != exceptID && other.URL == url {
			return true
		}
	}
	return false
}

func (s *Jobs) Get(_ context.Context, id string) (*catalog.JobPosting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.byID[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return job.Clone(), nil
}

// All returns every job in insertion order.
func (s *Jobs) All() []*catalog.JobPosting {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*catalog.JobPosting, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id].Clone())
	}
	return out
}

func (s *Jobs) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func (s *Jobs) SetJobEmbedding(_ context.Context, id string, vector []float32, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.byID[id]
	if !ok {
		return catalog.ErrNotFound
	}
	job.Embedding = append([]float32(nil), vector...)
	job.EmbeddedAt = &at
	return nil
}

// MissingEmbeddings lists jobs without a vector or re-seen after embedding.
func (s *Jobs) MissingEmbeddings(_ context.Context, limit int) ([]*catalog.JobPosting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*catalog.JobPosting
	for _, id := range s.order {
		job := s.byID[id]
		if job.EmbeddedAt == nil || job.EmbeddedAt.Before(job.LastSeenAt) {
			out = append(out, job.Clone())
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *Jobs) RecentJobs(_ context.Context, q catalog.RecentQuery) ([]*catalog.JobPosting, error) {
	s.mu.RLock()
	var out []*catalog.JobPosting
	for _, job := range s.byID {
		if !job.LastSeenAt.Before(q.Since) {
			out = append(out, job.Clone())
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].LastSeenAt.Equal(out[j].LastSeenAt) {
			return out[i].LastSeenAt.After(out[j].LastSeenAt)
		}
		if len(q.Near) > 0 {
			hi, hj := len(out[i].Embedding) > 0, len(out[j].Embedding) > 0
			if hi != hj {
				return hi
			}
			if hi {
				si, sj := embedding.Cosine(q.Near, out[i].Embedding), embedding.Cosine(q.Near, out[j].Embedding)
				if si != sj {
					return si > sj
				}
			}
		}
		return out[i].ID < out[j].ID
	})

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}
