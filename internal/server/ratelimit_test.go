package server

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClockedLimiter(rpm, burst int) (*MemoryLimiter, *time.Time) {
	l := NewMemoryLimiter(rpm, burst)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestMemoryLimiter_Burst(t *testing.T) {
	l, _ := newClockedLimiter(60, 3)
	ctx := context.Background()

	for i := range 3 {
		d, err := l.Allow(ctx, "client")
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d", i)
		assert.Equal(t, int64(2-i), d.Remaining)
	}

	d, err := l.Allow(ctx, "client")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, time.Second, d.RetryAfter)
}

func TestMemoryLimiter_Refill(t *testing.T) {
	l, now := newClockedLimiter(60, 1)
	ctx := context.Background()

	d, _ := l.Allow(ctx, "client")
	require.True(t, d.Allowed)
	d, _ = l.Allow(ctx, "client")
	require.False(t, d.Allowed)

	*now = now.Add(time.Second)
	d, err := l.Allow(ctx, "client")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestMemoryLimiter_RejectedRequestsDoNotConsume(t *testing.T) {
	l, now := newClockedLimiter(60, 1)
	ctx := context.Background()

	_, _ = l.Allow(ctx, "client")
	for range 5 {
		d, _ := l.Allow(ctx, "client")
		require.False(t, d.Allowed)
	}

	*now = now.Add(time.Second)
	d, _ := l.Allow(ctx, "client")
	assert.True(t, d.Allowed)
}

func TestMemoryLimiter_SubjectsAreIndependent(t *testing.T) {
	l, _ := newClockedLimiter(60, 1)
	ctx := context.Background()

	a, _ := l.Allow(ctx, "a")
	b, _ := l.Allow(ctx, "b")
	assert.True(t, a.Allowed)
	assert.True(t, b.Allowed)
	assert.Equal(t, 2, l.Len())
}

func TestMemoryLimiter_SweepsIdleSubjects(t *testing.T) {
	l, now := newClockedLimiter(60, 1)
	ctx := context.Background()

	_, _ = l.Allow(ctx, "a")
	_, _ = l.Allow(ctx, "b")
	require.Equal(t, 2, l.Len())

	*now = now.Add(11 * time.Minute)
	_, _ = l.Allow(ctx, "c")
	assert.Equal(t, 1, l.Len())
}

func TestRateLimitError(t *testing.T) {
	err := &RateLimitError{Subject: "1.2.3.4", Limit: 30, RetryAfter: 2 * time.Second}
	assert.Equal(t, "rate limit exceeded (limit: 30/min, retry after: 2s)", err.Error())
}

func TestNewLimiter(t *testing.T) {
	ctx := context.Background()

	l, err := NewLimiter(ctx, RateLimitConfig{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, l)

	l, err = NewLimiter(ctx, RateLimitConfig{Enabled: true, Backend: "Memory", RequestsPerMinute: 10, Burst: 2})
	require.NoError(t, err)
	assert.IsType(t, &MemoryLimiter{}, l)

	_, err = NewLimiter(ctx, RateLimitConfig{Enabled: true, Backend: "carrier-pigeon"})
	assert.ErrorContains(t, err, "unknown rate limit backend")
}

func TestNewLimiter_RedisUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	l, err := NewLimiter(ctx, RateLimitConfig{
		Enabled:           true,
		Backend:           "redis",
		RequestsPerMinute: 10,
		RedisAddr:         "127.0.0.1:1",
	})
	assert.Nil(t, l)
	assert.ErrorContains(t, err, "connect to redis")
}

func TestNewRedisLimiter_Validation(t *testing.T) {
	_, err := NewRedisLimiter(nil, 10, 1, "")
	assert.Error(t, err)

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	t.Cleanup(func() { _ = client.Close() })

	_, err = NewRedisLimiter(client, 0, 1, "")
	assert.Error(t, err)

	l, err := NewRedisLimiter(client, 60, 0, " ")
	require.NoError(t, err)
	assert.Equal(t, int64(60), l.capacity)
	assert.Equal(t, "barscan:ratelimit:", l.keyPrefix)
	assert.Equal(t, time.Minute, l.ttl)

	// 300 tokens at 10/min take 30 minutes to refill
	l, err = NewRedisLimiter(client, 10, 300, "")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, l.ttl)
}

func TestBucketTTL(t *testing.T) {
	tests := []struct {
		name     string
		capacity int64
		rpm      int
		want     time.Duration
	}{
		{"floor for fast refill", 20, 120, minBucketTTL},
		{"exactly one minute", 60, 60, time.Minute},
		{"burst larger than two minutes of refill", 50, 20, 150 * time.Second},
		{"one per minute", 5, 1, 5 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, bucketTTL(tt.capacity, tt.rpm))
		})
	}
}

func TestToInt64(t *testing.T) {
	for _, in := range []any{int64(5), 5, 5.0, "5"} {
		got, err := toInt64(in)
		require.NoError(t, err)
		assert.Equal(t, int64(5), got)
	}
	_, err := toInt64([]byte("5"))
	assert.Error(t, err)
}

// TestRedisLimiter_Live runs against a real Redis when
// BARSCAN_TEST_REDIS_ADDR is set.
func TestRedisLimiter_Live(t *testing.T) {
	addr := os.Getenv("BARSCAN_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("BARSCAN_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())

	prefix := "barscan:test:" + uuid.NewString() + ":"
	l, err := NewRedisLimiter(client, 60, 2, prefix)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Del(ctx, prefix+"client").Err() })

	for range 2 {
		d, err := l.Allow(ctx, "client")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}
	d, err := l.Allow(ctx, "client")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Positive(t, d.RetryAfter)
}
