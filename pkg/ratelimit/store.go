package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"mdviewer.com/pkg/metrics"
)

// Store 出站请求节流：每个 key（上游 endpoint）一个 limiter
type Store struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// NewStore r<=0 表示不限速
func NewStore(r rate.Limit, burst int) *Store {
	if r <= 0 {
		r = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &Store{
		limiters: make(map[string]*rate.Limiter, 8),
		rate:     r,
		burst:    burst,
	}
}

func (s *Store) get(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[key]
	if !ok {
		l = rate.NewLimiter(s.rate, s.burst)
		s.limiters[key] = l
	}
	return l
}

// Allow 不等待
func (s *Store) Allow(key string) bool {
	return s.get(key).Allow()
}

// Wait 阻塞直到拿到令牌或 ctx 结束
func (s *Store) Wait(ctx context.Context, key string) error {
	start := time.Now()
	err := s.get(key).Wait(ctx)
	metrics.VendorWaitSeconds.WithLabelValues(key).Observe(time.Since(start).Seconds())
	return err
}
