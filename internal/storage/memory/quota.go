package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/spigell/job-radar/internal/quota"
)

type Imports struct {
	mu   sync.Mutex
	byID map[string]*quota.ImportRequest
}

func NewImports() *Imports {
	return &Imports{byID: make(map[string]*quota.ImportRequest)}
}

func (s *Imports) CreateImport(_ context.Context, req *quota.ImportRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *req
	s.byID[req.ID] = &c
	return nil
}

func (s *Imports) TransitionImport(_ context.Context, t quota.Transition) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.byID[t.ID]
	if !ok {
		return false, quota.ErrNotFound
	}
	if !slices.Contains(t.From, req.Status) {
		return false, nil
	}
	req.Status = t.To
	req.Counts = t.Counts
	req.Error = t.Error
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		req.CompletedAt = &at
	}
	return true, nil
}

func (s *Imports) LastCompletedImport(_ context.Context, userID string) (*quota.ImportRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var last *quota.ImportRequest
	for _, req := range s.byID {
		if req.UserID != userID || req.Status != quota.StatusCompleted {
			continue
		}
		if last == nil || req.RequestedAt.After(last.RequestedAt) {
			last = req
		}
	}
	if last == nil {
		return nil, nil
	}
	c := *last
	return &c, nil
}

func (s *Imports) ListImports(_ context.Context, userID string, limit int) ([]quota.ImportRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []quota.ImportRequest
	for _, req := range s.byID {
		if req.UserID == userID {
			out = append(out, *req)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RequestedAt.After(out[j].RequestedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type usageKey struct {
	user  string
	month string
}

type Usage struct {
	mu       sync.Mutex
	counters map[usageKey]map[quota.Action]int
}

func NewUsage() *Usage {
	return &Usage{counters: make(map[usageKey]map[quota.Action]int)}
}

func (s *Usage) Usage(_ context.Context, userID, month string) (map[quota.Action]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[quota.Action]int)
	for a, n := range s.counters[usageKey{userID, month}] {
		out[a] = n
	}
	return out, nil
}

func (s *Usage) IncrementUsage(_ context.Context, userID, month string, action quota.Action, amount int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := usageKey{userID, month}
	if s.counters[key] == nil {
		s.counters[key] = make(map[quota.Action]int)
	}
	s.counters[key][action] += amount
	return s.counters[key][action], nil
}

func (s *Usage) DeleteUsageBefore(_ context.Context, month string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for key := range s.counters {
		// "2006-01" keys sort chronologically
		if key.month < month {
			delete(s.counters, key)
			n++
		}
	}
	return n, nil
}
