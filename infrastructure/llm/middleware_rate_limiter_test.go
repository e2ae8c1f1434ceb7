package llm

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimitMiddleware_AllowsBurst(t *testing.T) {
	mock := newMockCoreLLM()
	wrapped := RateLimitMiddleware("openai", 1, 5)(mock)

	start := time.Now()
	for i := 0; i < 5; i++ {
		_, _, _, err := wrapped.DoRequest(context.Background(), "prompt", nil)
		require.NoError(t, err)
	}

	assert.Less(t, time.Since(start), 500*time.Millisecond, "burst requests should not wait")
	assert.Equal(t, 5, mock.calls())
}

func TestRateLimitMiddleware_PacesRequestsBeyondBurst(t *testing.T) {
	mock := newMockCoreLLM()
	wrapped := RateLimitMiddleware("openai", 20, 1)(mock)

	for i := 0; i < 3; i++ {
		_, _, _, err := wrapped.DoRequest(context.Background(), "prompt", nil)
		require.NoError(t, err)
	}

	stamps := mock.timestamps()
	require.Len(t, stamps, 3)
	// 20 rps leaves roughly 50ms between calls once the burst is spent.
	assert.GreaterOrEqual(t, stamps[2].Sub(stamps[0]), 80*time.Millisecond)
}

func TestRateLimitMiddleware_ZeroBurstStillAdmitsRequests(t *testing.T) {
	mock := newMockCoreLLM()
	wrapped := RateLimitMiddleware("openai", 100, 0)(mock)

	_, _, _, err := wrapped.DoRequest(context.Background(), "prompt", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, mock.calls())
}

func TestRateLimitMiddleware_DisabledReturnsNext(t *testing.T) {
	for _, rps := range []float64{0, -3} {
		mock := newMockCoreLLM()
		assert.Same(t, mock, RateLimitMiddleware("openai", rps, 4)(mock))
	}
}

func TestRateLimitMiddleware_QueueDeadlineIsTimeout(t *testing.T) {
	mock := newMockCoreLLM()
	wrapped := RateLimitMiddleware("google", 0.1, 1)(mock)

	_, _, _, err := wrapped.DoRequest(context.Background(), "prompt", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, _, _, err = wrapped.DoRequest(ctx, "prompt", nil)
	require.Error(t, err)

	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, ErrorTypeTimeout, perr.Type)
	assert.Equal(t, "google", perr.Provider)
	assert.Contains(t, err.Error(), "rate limit")
	assert.Equal(t, 1, mock.calls(), "the waiting request should never reach the provider")
}

func TestRateLimitMiddleware_CancelledWhileQueued(t *testing.T) {
	mock := newMockCoreLLM()
	wrapped := RateLimitMiddleware("openai", 0.1, 1)(mock)

	_, _, _, err := wrapped.DoRequest(context.Background(), "prompt", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, _, err = wrapped.DoRequest(ctx, "prompt", nil)
	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, ErrorTypeCanceled, perr.Type)
	assert.Equal(t, "canceled", requestStatus(err))
	assert.Equal(t, 1, mock.calls())
}

func TestRateLimitMiddleware_SharedAcrossGoroutines(t *testing.T) {
	mock := newMockCoreLLM()
	wrapped := RateLimitMiddleware("openai", math.Inf(1), 1)(mock)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _, err := wrapped.DoRequest(context.Background(), "prompt", nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, mock.calls())
}

func TestRateLimitMiddleware_PassesThroughModelMethods(t *testing.T) {
	mock := newMockCoreLLM()
	wrapped := RateLimitMiddleware("openai", 10, 1)(mock)

	wrapped.SetModel("m2")
	assert.Equal(t, "m2", wrapped.GetModel())
	assert.Equal(t, "m2", mock.GetModel())
}
