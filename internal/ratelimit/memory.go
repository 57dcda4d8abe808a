package ratelimit

import (
	"context"
	"sync"
	"time"
)

const sweepInterval = 5 * time.Minute

// window is the counter for one key. Its fields are guarded by mu; the
// limiter's map lock is held only to find or create it.
type window struct {
	mu      sync.Mutex
	count   int
	start   time.Time
	removed bool
}

// MemoryLimiter is a process-local fixed-window limiter.
type MemoryLimiter struct {
	limit  int
	period time.Duration
	now    func() time.Time

	mu      sync.Mutex
	windows map[string]*window

	stop chan struct{}
	once sync.Once
}

// MemoryOption configures a MemoryLimiter.
type MemoryOption func(*MemoryLimiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryLimiter) { m.now = now }
}

// NewMemoryLimiter allows limit requests per key per period.
func NewMemoryLimiter(limit int, period time.Duration, opts ...MemoryOption) *MemoryLimiter {
	if period <= 0 {
		period = time.Minute
	}
	m := &MemoryLimiter{
		limit:   limit,
		period:  period,
		now:     time.Now,
		windows: make(map[string]*window),
		stop:    make(chan struct{}),
	}
	for _, o := range opts {
		o(m)
	}
	go m.sweepLoop()
	return m
}

func (m *MemoryLimiter) Allow(_ context.Context, key string) Decision {
	if m.limit <= 0 {
		return Decision{Allowed: true}
	}
	for {
		w := m.lookup(key)

		w.mu.Lock()
		if w.removed {
			// Swept between lookup and lock; take the fresh window.
			w.mu.Unlock()
			continue
		}
		now := m.now()
		if w.start.IsZero() || !now.Before(w.start.Add(m.period)) {
			w.start = now
			w.count = 0
		}
		d := Decision{Limit: m.limit, ResetAt: w.start.Add(m.period)}
		if w.count < m.limit {
			w.count++
			d.Allowed = true
		}
		d.Count = w.count
		w.mu.Unlock()
		return d
	}
}

func (m *MemoryLimiter) lookup(key string) *window {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.windows[key]
	if !ok {
		w = &window{}
		m.windows[key] = w
	}
	return w
}

func (m *MemoryLimiter) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.stop:
			return
		}
	}
}

// sweep drops windows that have expired.
func (m *MemoryLimiter) sweep() {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, w := range m.windows {
		w.mu.Lock()
		if !w.start.IsZero() && !now.Before(w.start.Add(m.period)) {
			w.removed = true
			delete(m.windows, key)
		}
		w.mu.Unlock()
	}
}

// Keys returns the number of tracked keys.
func (m *MemoryLimiter) Keys() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows)
}

func (m *MemoryLimiter) Close() error {
	m.once.Do(func() { close(m.stop) })
	return nil
}
