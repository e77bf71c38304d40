package ratelimit

import (
	"context"
	"sync"
	"time"
)

type Memory struct {
	mu     sync.Mutex
	hits   map[string][]time.Time
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewMemory(limit int, window time.Duration) *Memory {
	return &Memory{
		hits:   make(map[string][]time.Time),
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

func (m *Memory) Allow(_ context.Context, key string) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	live := prune(m.hits[key], now.Add(-m.window))

	if len(live) >= m.limit {
		m.hits[key] = live
		return Decision{RetryAfter: live[0].Add(m.window).Sub(now)}, nil
	}

	live = append(live, now)
	m.hits[key] = live
	return Decision{Allowed: true, Remaining: m.limit - len(live)}, nil
}

// Sweep drops keys with no attempts left in the window.
func (m *Memory) Sweep(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-m.window)
	var dropped int64
	for key, hits := range m.hits {
		live := prune(hits, cutoff)
		if len(live) == 0 {
			delete(m.hits, key)
			dropped++
			continue
		}
		m.hits[key] = live
	}
	return dropped, nil
}

// prune keeps timestamps strictly after cutoff; hits are in ascending order.
func prune(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return hits
	}
	return append(hits[:0:0], hits[i:]...)
}
