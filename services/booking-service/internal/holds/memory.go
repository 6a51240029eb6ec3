package holds

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps holds in process; expired entries are dropped lazily on access.
type MemoryStore struct {
	mu    sync.Mutex
	holds map[string]Hold
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{holds: map[string]Hold{}, now: time.Now}
}

// WithClock replaces the expiry clock.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) Place(_ context.Context, h Hold) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(h.ProviderID, h.Date, h.StartTime)
	if existing, ok := s.holds[k]; ok && existing.ExpiresAt.After(s.now()) {
		return ErrTaken
	}
	s.holds[k] = h
	return nil
}

func (s *MemoryStore) List(_ context.Context, providerID, date string) ([]Hold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var out []Hold
	for k, h := range s.holds {
		if !h.ExpiresAt.After(now) {
			delete(s.holds, k)
			continue
		}
		if h.ProviderID == providerID && h.Date == date {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out, nil
}

func (s *MemoryStore) Release(_ context.Context, providerID, date, startTime, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(providerID, date, startTime)
	if h, ok := s.holds[k]; ok && h.Token == token {
		delete(s.holds, k)
	}
	return nil
}
