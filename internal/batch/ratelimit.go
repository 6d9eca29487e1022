package batch

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RateLimiter is a token bucket gating how fast new work may start. The
// bucket allows short bursts up to its capacity while enforcing the
// steady-state refill rate.
type RateLimiter struct {
	mu sync.Mutex

	requestsPerMinute int
	tokensPerSecond   float64
	bucketSize        float64
	tokens            float64
	lastRefill        time.Time
}

// NewRateLimiter builds a limiter for the given requests-per-minute budget.
// Bucket capacity is a tenth of the rate (minimum one token), roughly six
// seconds of burst headroom.
func NewRateLimiter(requestsPerMinute int) (*RateLimiter, error) {
	if requestsPerMinute < 1 {
		return nil, fmt.Errorf("rate limit must be positive, got %d", requestsPerMinute)
	}

	bucketSize := float64(requestsPerMinute) / 10
	if bucketSize < 1 {
		bucketSize = 1
	}

	return &RateLimiter{
		requestsPerMinute: requestsPerMinute,
		tokensPerSecond:   float64(requestsPerMinute) / 60,
		bucketSize:        bucketSize,
		tokens:            bucketSize,
		lastRefill:        time.Now(),
	}, nil
}

// Acquire blocks until one token is available, then consumes it. It returns
// early with the context's error when ctx is cancelled. Safe for concurrent
// callers; the refill-check-consume step is atomic.
func (l *RateLimiter) Acquire(ctx context.Context) error {
	for {
		l.mu.Lock()
		l.refillLocked(time.Now())
		if l.tokens >= 1 {
			l.tokens--
			l.mu.Unlock()
			return nil
		}
		wait := time.Duration((1 - l.tokens) / l.tokensPerSecond * float64(time.Second))
		l.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (l *RateLimiter) refillLocked(now time.Time) {
	elapsed := now.Sub(l.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	l.tokens += elapsed * l.tokensPerSecond
	if l.tokens > l.bucketSize {
		l.tokens = l.bucketSize
	}
	l.lastRefill = now
}

// BucketSize exposes the burst capacity for instrumentation.
func (l *RateLimiter) BucketSize() int {
	return int(l.bucketSize)
}
