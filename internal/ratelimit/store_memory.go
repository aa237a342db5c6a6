package ratelimit

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore keeps windows in process. Limits are per replica.
type InMemoryStore struct {
	mu      sync.Mutex
	windows map[string][]time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{windows: make(map[string][]time.Time)}
}

func (s *InMemoryStore) Allow(_ context.Context, key string, limit Limit, now time.Time) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stamps := prune(s.windows[key], now.Add(-limit.Window))
	if len(stamps) >= limit.Requests {
		s.windows[key] = stamps
		resetAt := now.Add(limit.Window)
		if len(stamps) > 0 {
			resetAt = stamps[0].Add(limit.Window)
		}
		return &Result{
			Limit:      limit.Requests,
			ResetAt:    resetAt,
			RetryAfter: resetAt.Sub(now),
		}, nil
	}

	stamps = append(stamps, now)
	s.windows[key] = stamps
	return &Result{
		Allowed:   true,
		Limit:     limit.Requests,
		Remaining: limit.Requests - len(stamps),
		ResetAt:   stamps[0].Add(limit.Window),
	}, nil
}

// prune drops timestamps at or before cutoff. Timestamps are ascending.
func prune(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for ; i < len(stamps); i++ {
		if stamps[i].After(cutoff) {
			break
		}
	}
	return stamps[i:]
}
