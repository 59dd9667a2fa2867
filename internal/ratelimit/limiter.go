package ratelimit

import (
	"context"
	"sync"
	"time"
)

const (
	DefaultMax    = 3
	DefaultWindow = time.Minute
)

// Decision is the outcome of one Admit call. RetryAfter is set only when
// the request was rejected.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter admits or rejects submissions per key in fixed windows.
type Limiter interface {
	Admit(ctx context.Context, key string) (Decision, error)
}

type window struct {
	mu    sync.Mutex
	start time.Time
	count int
}

// Memory is a process-local fixed-window limiter. Each key owns its own
// window and lock, so callers for different authors never contend.
type Memory struct {
	max     int
	window  time.Duration
	now     func() time.Time
	windows sync.Map // key -> *window
}

func NewMemory(max int, window time.Duration) *Memory {
	if max <= 0 {
		max = DefaultMax
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Memory{max: max, window: window, now: time.Now}
}

func (m *Memory) Admit(_ context.Context, key string) (Decision, error) {
	v, _ := m.windows.LoadOrStore(key, &window{})
	w := v.(*window)

	w.mu.Lock()
	defer w.mu.Unlock()

	now := m.now()
	if w.start.IsZero() || !now.Before(w.start.Add(m.window)) {
		w.start = now
		w.count = 1
		return Decision{Allowed: true}, nil
	}

	w.count++
	if w.count <= m.max {
		return Decision{Allowed: true}, nil
	}
	return Decision{RetryAfter: w.start.Add(m.window).Sub(now)}, nil
}
