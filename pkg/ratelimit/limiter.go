package ratelimit

import (
	"sync"
	"time"
)

// Decision reports the outcome of one Allow call. Count includes the
// current request, so a denied call still increments it.
type Decision struct {
	Allowed   bool
	Count     int
	Limit     int
	Remaining int
	ResetAt   time.Time
}

type Limiter interface {
	Allow(key string, limit int) Decision
}

// InMemoryLimiter counts requests per key in fixed windows. Expired
// windows are dropped lazily on access and swept once per window.
type InMemoryLimiter struct {
	mu        sync.Mutex
	window    time.Duration
	buckets   map[string]*bucket
	nextSweep time.Time
}

type bucket struct {
	n       int
	resetAt time.Time
}

func NewInMemory(window time.Duration) *InMemoryLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &InMemoryLimiter{
		window:  window,
		buckets: make(map[string]*bucket),
	}
}

func (l *InMemoryLimiter) Allow(key string, limit int) Decision {
	if limit <= 0 {
		limit = 1
	}
	now := time.Now().UTC()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.After(l.nextSweep) {
		for k, b := range l.buckets {
			if now.After(b.resetAt) {
				delete(l.buckets, k)
			}
		}
		l.nextSweep = now.Add(l.window)
	}

	b := l.buckets[key]
	if b == nil || now.After(b.resetAt) {
		b = &bucket{resetAt: now.Add(l.window)}
		l.buckets[key] = b
	}
	b.n++

	d := Decision{
		Allowed: b.n <= limit,
		Count:   b.n,
		Limit:   limit,
		ResetAt: b.resetAt,
	}
	if d.Allowed {
		d.Remaining = limit - b.n
	}
	return d
}
