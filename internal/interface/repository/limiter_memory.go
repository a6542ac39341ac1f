package repository

import (
	"context"
	"sync"
	"time"

	"sustainflow-service/internal/domain/repository"

	"github.com/juju/clock"
)

type tokenBucket struct {
	tokens     float64
	lastRefill time.Time
}

// MemoryLimiterStore is a per-process token bucket limiter, used when Redis is not configured
type MemoryLimiterStore struct {
	mu       sync.Mutex
	clock    clock.Clock
	buckets  map[string]*tokenBucket
	rate     float64
	capacity float64
}

// NewMemoryLimiterStore creates an in-memory limiter refilling perMinute tokens up to burst
func NewMemoryLimiterStore(clk clock.Clock, perMinute, burst int) repository.LimiterStore {
	rate := float64(perMinute) / 60.0
	if rate <= 0 {
		rate = 1.0
	}
	if burst <= 0 {
		burst = 1
	}
	return &MemoryLimiterStore{
		clock:    clk,
		buckets:  make(map[string]*tokenBucket),
		rate:     rate,
		capacity: float64(burst),
	}
}

func (s *MemoryLimiterStore) Allow(_ context.Context, key string, cost int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	b, ok := s.buckets[key]
	if !ok {
		b = &tokenBucket{tokens: s.capacity, lastRefill: now}
		s.buckets[key] = b
	}

	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * s.rate
		if b.tokens > s.capacity {
			b.tokens = s.capacity
		}
		b.lastRefill = now
	}

	if b.tokens >= float64(cost) {
		b.tokens -= float64(cost)
		return true, nil
	}
	return false, nil
}
