package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/spigell/job-radar/internal/profile"
)

// Profiles stands in for the profile, applications and subscription
// services.
type Profiles struct {
	mu       sync.RWMutex
	profiles map[string]*profile.Profile
	applied  map[string][]string
	tiers    map[string]string
	vectors  map[string][]float32
}

func NewProfiles() *Profiles {
	return &Profiles{
		profiles: make(map[string]*profile.Profile),
		applied:  make(map[string][]string),
		tiers:    make(map[string]string),
		vectors:  make(map[string][]float32),
	}
}

// Put stores a deep copy of p.
func (s *Profiles) Put(p *profile.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.UserID] = copyProfile(p)
}

func (s *Profiles) GetProfile(_ context.Context, userID string) (*profile.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, profile.ErrNotFound
	}
	return copyProfile(p), nil
}

func (s *Profiles) SetProfileEmbedding(_ context.Context, userID string, vector []float32, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return profile.ErrNotFound
	}
	s.vectors[userID] = append([]float32(nil), vector...)
	p.EmbeddedAt = &at
	return nil
}

func (s *Profiles) Vector(userID string) []float32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vectors[userID]
}

func (s *Profiles) AllPreferences(_ context.Context) (map[string]profile.Preferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]profile.Preferences, len(s.profiles))
	for id, p := range s.profiles {
		if len(p.Preferences.DesiredTitles) == 0 {
			continue
		}
		out[id] = p.Preferences
	}
	return out, nil
}

// Apply records that userID applied to jobIDs.
func (s *Profiles) Apply(userID string, jobIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applied[userID] = append(s.applied[userID], jobIDs...)
}

func (s *Profiles) AppliedJobIDs(_ context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := append([]string(nil), s.applied[userID]...)
	sort.Strings(ids)
	return ids, nil
}

func (s *Profiles) SetTier(userID, tier string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tiers[userID] = tier
}

func (s *Profiles) UserTier(_ context.Context, userID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tiers[userID], nil
}

// copyProfile deep-copies through JSON; profiles are small.
func copyProfile(p *profile.Profile) *profile.Profile {
	b, err := json.Marshal(p)
	if err != nil {
		panic(err)
	}
	var out profile.Profile
	if err := json.Unmarshal(b, &out); err != nil {
		panic(err)
	}
	return &out
}
