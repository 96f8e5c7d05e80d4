package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowExhaustsBurst(t *testing.T) {
	tests := []struct {
		name     string
		requests int
		period   time.Duration
	}{
		{name: "single attempt per minute", requests: 1, period: time.Minute},
		{name: "five attempts per second", requests: 5, period: time.Second},
		{name: "connect pacing", requests: 3, period: 10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter := New(tt.requests, tt.period)
			for i := 0; i < tt.requests; i++ {
				assert.Truef(t, limiter.Allow(), "attempt %d within burst", i+1)
			}
			assert.False(t, limiter.Allow(), "attempt past burst")
		})
	}
}

func TestWaitHonorsContext(t *testing.T) {
	limiter := New(1, time.Hour)
	require.NoError(t, limiter.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, limiter.Wait(ctx), "exhausted limiter must not admit before the deadline")
}

func TestBucketsAreIndependent(t *testing.T) {
	limiter := New(2, time.Minute)

	assert.True(t, limiter.AllowBucket("okx"))
	assert.True(t, limiter.AllowBucket("okx"))
	assert.False(t, limiter.AllowBucket("okx"), "okx bucket exhausted")

	assert.True(t, limiter.AllowBucket("deribit"), "deribit bucket unaffected by okx")
	assert.True(t, limiter.Allow(), "global budget unaffected by buckets")
}

func TestWaitBucketAdmitsWithinBurst(t *testing.T) {
	limiter := New(3, 100*time.Millisecond)

	for i := 0; i < 3; i++ {
		require.NoError(t, limiter.WaitBucket(context.Background(), "bybit"))
	}
}

func TestSetLimitTakesEffect(t *testing.T) {
	limiter := New(1, time.Minute)
	require.True(t, limiter.Allow())
	require.False(t, limiter.Allow())

	limiter.SetLimit(1000, time.Second)

	time.Sleep(100 * time.Millisecond)
	assert.True(t, limiter.Allow(), "refilled after the limit was raised")
}

func TestSetBucketLimitTakesEffect(t *testing.T) {
	limiter := New(1, time.Minute)
	require.True(t, limiter.AllowBucket("gate"))
	require.False(t, limiter.AllowBucket("gate"))

	limiter.SetBucketLimit("gate", 1000, time.Second)

	time.Sleep(100 * time.Millisecond)
	assert.True(t, limiter.AllowBucket("gate"), "bucket refilled after the limit was raised")
}

func TestConcurrentAdmissionBounded(t *testing.T) {
	const attempts = 200
	limiter := New(100, time.Second)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.Allow() {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, allowed, 100, "no more than the burst may be admitted")
}

func TestMetricsSnapshot(t *testing.T) {
	limiter := New(1, time.Minute)

	limiter.Allow()
	limiter.Allow()
	limiter.AllowBucket("deribit")

	snap := limiter.Metrics()
	assert.Equal(t, int64(3), snap.TotalAttempts)
	assert.Equal(t, int64(2), snap.AllowedAttempts)
	assert.Equal(t, int64(1), snap.DeniedAttempts)
	assert.Equal(t, int32(1), snap.BucketCount)
}
