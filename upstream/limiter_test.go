package upstream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiterSequentialFloor(t *testing.T) {
	// 5 extra acquires beyond capacity at 50/sec must take at least
	// (N-1)/R with the bucket drained first.
	var limiter = NewLimiter(50)
	var ctx = context.Background()

	for limiter.TryAcquire() {
	}

	var start = time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, limiter.Acquire(ctx))
	}
	require.GreaterOrEqual(t, time.Since(start), 4*time.Second/50)
}

func TestLimiterBurst(t *testing.T) {
	var limiter = NewLimiter(10)

	// A fresh bucket admits a burst up to capacity without waiting.
	var start = time.Now()
	for i := 0; i < 10; i++ {
		require.NoError(t, limiter.Acquire(context.Background()))
	}
	require.Less(t, time.Since(start), time.Second)
}

func TestLimiterTryAcquire(t *testing.T) {
	var limiter = NewLimiter(1)
	require.True(t, limiter.TryAcquire())
	require.False(t, limiter.TryAcquire())
}

func TestLimiterAcquireHonorsCancellation(t *testing.T) {
	var limiter = NewLimiter(1)
	for limiter.TryAcquire() {
	}

	var ctx, cancel = context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.Error(t, limiter.Acquire(ctx))
}
