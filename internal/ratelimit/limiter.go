package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter paces connection attempts and signing REST calls. One
// limiter is shared by every client of a venue; per-bucket limits allow a
// venue's endpoints to be paced independently of the global budget.
type RateLimiter struct {
	global *rate.Limiter

	mu      sync.RWMutex
	buckets map[string]*rate.Limiter
	limit   rate.Limit
	burst   int

	metrics Metrics
}

// Metrics tracks admission statistics with atomic counters.
type Metrics struct {
	total   atomic.Int64
	allowed atomic.Int64
	denied  atomic.Int64
	buckets atomic.Int32
}

func (m *Metrics) record(admitted bool) {
	m.total.Add(1)
	if admitted {
		m.allowed.Add(1)
	} else {
		m.denied.Add(1)
	}
}

// New creates a RateLimiter allowing the given number of attempts per
// period. Buckets created on demand inherit the same limit.
func New(requests int, period time.Duration) *RateLimiter {
	limit := rate.Limit(float64(requests) / period.Seconds())
	return &RateLimiter{
		global:  rate.NewLimiter(limit, requests),
		buckets: make(map[string]*rate.Limiter),
		limit:   limit,
		burst:   requests,
	}
}

// Wait blocks until the global limiter admits an attempt or the context
// is cancelled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	err := r.global.Wait(ctx)
	r.metrics.record(err == nil)
	return err
}

// WaitBucket blocks until the named bucket admits an attempt or the
// context is cancelled. Buckets are created on demand.
func (r *RateLimiter) WaitBucket(ctx context.Context, bucket string) error {
	err := r.bucket(bucket).Wait(ctx)
	r.metrics.record(err == nil)
	return err
}

// Allow reports whether the global limiter admits an attempt immediately.
func (r *RateLimiter) Allow() bool {
	admitted := r.global.Allow()
	r.metrics.record(admitted)
	return admitted
}

// AllowBucket reports whether the named bucket admits an attempt
// immediately. Buckets are created on demand.
func (r *RateLimiter) AllowBucket(bucket string) bool {
	admitted := r.bucket(bucket).Allow()
	r.metrics.record(admitted)
	return admitted
}

func (r *RateLimiter) bucket(name string) *rate.Limiter {
	r.mu.RLock()
	limiter, ok := r.buckets[name]
	r.mu.RUnlock()
	if ok {
		return limiter
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if limiter, ok = r.buckets[name]; ok {
		return limiter
	}
	limiter = rate.NewLimiter(r.limit, r.burst)
	r.buckets[name] = limiter
	r.metrics.buckets.Add(1)
	return limiter
}

// SetLimit updates the global limit to the given attempts per period.
// Buckets created afterwards inherit the new limit; existing buckets
// keep theirs until SetBucketLimit.
func (r *RateLimiter) SetLimit(requests int, period time.Duration) {
	limit := rate.Limit(float64(requests) / period.Seconds())

	r.mu.Lock()
	r.limit = limit
	r.burst = requests
	r.mu.Unlock()

	r.global.SetLimit(limit)
}

// SetBucketLimit updates the limit for one bucket, creating it if needed.
func (r *RateLimiter) SetBucketLimit(bucket string, requests int, period time.Duration) {
	limit := rate.Limit(float64(requests) / period.Seconds())
	r.bucket(bucket).SetLimit(limit)
}

// Metrics returns a snapshot of the current admission statistics.
func (r *RateLimiter) Metrics() MetricsSnapshot {
	return MetricsSnapshot{
		TotalAttempts:   r.metrics.total.Load(),
		AllowedAttempts: r.metrics.allowed.Load(),
		DeniedAttempts:  r.metrics.denied.Load(),
		BucketCount:     r.metrics.buckets.Load(),
	}
}

// MetricsSnapshot is a point-in-time capture of admission statistics.
type MetricsSnapshot struct {
	TotalAttempts   int64
	AllowedAttempts int64
	DeniedAttempts  int64
	BucketCount     int32
}
