package ssdp

import (
	"sync"
	"time"

	ttlworker "github.com/FloatTech/ttl"
)

const (
	dedupCapacity = 200
	dedupWindow   = 30 * time.Second
)

// seenSet suppresses re-resolution of locations already handled recently.
// The window is absolute from first acceptance, so a device stuck on a
// fallback descriptor gets another resolution attempt once it expires.
// Capacity is bounded LRU; a noisy network cannot grow it without limit.
type seenSet struct {
	mu    sync.Mutex
	cache *ttlworker.Cache[string, time.Time]
	order []string
}

func newSeenSet() *seenSet {
	// The cache TTL is only storage cleanup; the suppression window is
	// checked against the stored timestamp.
	return &seenSet{cache: ttlworker.NewCache[string, time.Time](2 * dedupWindow)}
}

// Seen reports whether location was accepted within the window, inserting
// it when new or expired. Insertion may evict the oldest entry.
func (s *seenSet) Seen(location string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if at := s.cache.Get(location); !at.IsZero() && time.Since(at) < dedupWindow {
		return true
	}
	s.cache.Set(location, time.Now())
	s.touchLocked(location)
	for len(s.order) > dedupCapacity {
		oldest := s.order[0]
		s.order = s.order[1:]
		s.cache.Delete(oldest)
	}
	return false
}

// Evict drops location so the next advertisement resolves again. Used after
// transient resolution failures and on byebye.
func (s *seenSet) Evict(location string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Delete(location)
	for i, key := range s.order {
		if key == location {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

// Clear empties the set. Part of engine shutdown.
func (s *seenSet) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range s.order {
		s.cache.Delete(key)
	}
	s.order = nil
}

func (s *seenSet) touchLocked(location string) {
	for i, key := range s.order {
		if key == location {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.order = append(s.order, location)
}
