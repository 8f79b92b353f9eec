package ratelimiter

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowConsumesBurst(t *testing.T) {
	rl := New(Options{MaxRatePerSecond: 1, MaxBurst: 3})

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("client-a"), "request %d", i)
	}
	assert.False(t, rl.Allow("client-a"))

	// Another source has its own bucket.
	assert.True(t, rl.Allow("client-b"))
}

func TestTokensRefillOverTime(t *testing.T) {
	rl := New(Options{MaxRatePerSecond: 100, MaxBurst: 2})

	require.True(t, rl.Allow("client"))
	require.True(t, rl.Allow("client"))
	require.False(t, rl.Allow("client"))

	// 100 tokens/s refills one token in 10ms.
	require.Eventually(t, func() bool {
		return rl.Allow("client")
	}, time.Second, 5*time.Millisecond)
}

func TestRefillSurvivesFastPolling(t *testing.T) {
	// Polling faster than the token interval must not reset the refill
	// clock: each losing Allow call reads the bucket, and if that read
	// discarded the partial interval the caller would starve forever.
	rl := New(Options{MaxRatePerSecond: 10, MaxBurst: 1})

	require.True(t, rl.Allow("client"))
	require.False(t, rl.Allow("client"))

	// One token per 100ms, polled every 5ms.
	require.Eventually(t, func() bool {
		return rl.Allow("client")
	}, time.Second, 5*time.Millisecond)
}

func TestRefillCapsAtMaxBurst(t *testing.T) {
	rl := New(Options{MaxRatePerSecond: 1000, MaxBurst: 2})

	require.True(t, rl.Allow("client"))
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 2, rl.Remaining("client"))
}

func TestRemainingDoesNotConsume(t *testing.T) {
	rl := New(Options{MaxRatePerSecond: 1, MaxBurst: 5})

	assert.Equal(t, 5, rl.Remaining("client"))
	assert.Equal(t, 5, rl.Remaining("client"))

	require.True(t, rl.Allow("client"))
	assert.Equal(t, 4, rl.Remaining("client"))
}

func TestDefaultOptions(t *testing.T) {
	rl := New(Options{MaxRatePerSecond: 7})
	assert.Equal(t, 7, rl.GetMaxBurst())
}

func TestGetSourceKey(t *testing.T) {
	rl := New(Options{MaxRatePerSecond: 1, SourceHeaderKey: "X-Forwarded-For"})

	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	assert.Equal(t, "10.0.0.1:1234", rl.GetSourceKey(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.9")
	assert.Equal(t, "203.0.113.9", rl.GetSourceKey(r))
}

func TestInMemoryExpiration(t *testing.T) {
	cache := NewInMemory()
	defer cache.Close()

	require.NoError(t, cache.Set("forever", 1))
	require.NoError(t, cache.SetWithExpiration("short", 2, 20*time.Millisecond))

	v, err := cache.Get("forever")
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, err = cache.Get("short")
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	time.Sleep(30 * time.Millisecond)
	_, err = cache.Get("short")
	assert.ErrorIs(t, err, ErrCacheMiss)

	_, err = cache.Get("missing")
	assert.ErrorIs(t, err, ErrCacheMiss)
}
