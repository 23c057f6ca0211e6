package server

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Decision is the verdict of a rate limiter for one request.
type Decision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// Limiter decides whether a request from subject may proceed.
type Limiter interface {
	Allow(ctx context.Context, subject string) (Decision, error)
}

// RateLimitError represents a rate limit violation.
type RateLimitError struct {
	Subject    string
	Limit      int           // requests per minute
	RetryAfter time.Duration // how long to wait before retrying
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded (limit: %d/min, retry after: %v)", e.Limit, e.RetryAfter)
}

// MemoryLimiter keeps one token bucket per subject in process memory.
// Buckets idle for longer than the refill window are dropped.
type MemoryLimiter struct {
	mu sync.Mutex

	limit rate.Limit
	burst int
	idle  time.Duration
	now   func() time.Time

	buckets   map[string]*bucket
	lastSweep time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewMemoryLimiter allows requestsPerMinute sustained with bursts of burst.
func NewMemoryLimiter(requestsPerMinute, burst int) *MemoryLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &MemoryLimiter{
		limit:   rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:   burst,
		idle:    10 * time.Minute,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// Allow consumes one token from subject's bucket.
func (l *MemoryLimiter) Allow(_ context.Context, subject string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	b, ok := l.buckets[subject]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[subject] = b
	}
	b.lastSeen = now

	r := b.limiter.ReserveN(now, 1)
	if !r.OK() {
		return Decision{Allowed: false, RetryAfter: time.Minute}, nil
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return Decision{Allowed: false, RetryAfter: delay}, nil
	}

	remaining := int64(math.Floor(b.limiter.TokensAt(now)))
	return Decision{Allowed: true, Remaining: max(remaining, 0)}, nil
}

// Len reports how many subjects are currently tracked.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *MemoryLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.idle {
		return
	}
	for k, b := range l.buckets {
		if now.Sub(b.lastSeen) >= l.idle {
			delete(l.buckets, k)
		}
	}
	l.lastSweep = now
}

// tokenBucketScript refills and takes from a bucket stored as a hash.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill_per_ms = tonumber(ARGV[2])
local now_ms = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])
local ttl_ms = tonumber(ARGV[5])

local data = redis.call("HMGET", key, "tokens", "timestamp")
local tokens = tonumber(data[1])
local timestamp = tonumber(data[2])

if tokens == nil then
  tokens = capacity
end
if timestamp == nil then
  timestamp = now_ms
end

local elapsed = math.max(0, now_ms - timestamp)
tokens = math.min(capacity, tokens + (elapsed * refill_per_ms))

local allowed = 0
local retry_after_ms = 0
if tokens >= requested then
  tokens = tokens - requested
  allowed = 1
else
  retry_after_ms = math.ceil((requested - tokens) / refill_per_ms)
end

redis.call("HMSET", key, "tokens", tokens, "timestamp", now_ms)
redis.call("PEXPIRE", key, ttl_ms)

return {allowed, math.floor(tokens), retry_after_ms}
`)

// RedisLimiter is a token bucket shared by every replica through Redis.
type RedisLimiter struct {
	client      redis.UniversalClient
	capacity    int64
	refillPerMS float64
	ttl         time.Duration
	keyPrefix   string
	now         func() time.Time
}

// NewRedisLimiter allows requestsPerMinute sustained with bursts of burst.
func NewRedisLimiter(client redis.UniversalClient, requestsPerMinute, burst int, keyPrefix string) (*RedisLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if requestsPerMinute <= 0 {
		return nil, fmt.Errorf("requests per minute must be positive")
	}
	if burst <= 0 {
		burst = requestsPerMinute
	}
	if strings.TrimSpace(keyPrefix) == "" {
		keyPrefix = "barscan:ratelimit:"
	}

	return &RedisLimiter{
		client:      client,
		capacity:    int64(burst),
		refillPerMS: float64(requestsPerMinute) / float64(time.Minute.Milliseconds()),
		ttl:         bucketTTL(int64(burst), requestsPerMinute),
		keyPrefix:   keyPrefix,
		now:         time.Now,
	}, nil
}

// minBucketTTL is the shortest lifetime of an idle bucket key.
const minBucketTTL = time.Minute

// bucketTTL keeps a key at least until an empty bucket has refilled, so an
// expired key never hands out tokens the bucket would not have had.
func bucketTTL(capacity int64, requestsPerMinute int) time.Duration {
	refill := time.Duration(capacity) * time.Minute / time.Duration(requestsPerMinute)
	return max(refill, minBucketTTL)
}

// Allow runs the bucket script for subject.
func (l *RedisLimiter) Allow(ctx context.Context, subject string) (Decision, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = "anonymous"
	}

	raw, err := tokenBucketScript.Run(
		ctx,
		l.client,
		[]string{l.keyPrefix + subject},
		l.capacity,
		l.refillPerMS,
		l.now().UTC().UnixMilli(),
		1,
		l.ttl.Milliseconds(),
	).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("run token bucket script: %w", err)
	}

	values, ok := raw.([]any)
	if !ok || len(values) != 3 {
		return Decision{}, fmt.Errorf("invalid token bucket response")
	}

	allowed, err := toInt64(values[0])
	if err != nil {
		return Decision{}, fmt.Errorf("parse allow value: %w", err)
	}
	remaining, err := toInt64(values[1])
	if err != nil {
		return Decision{}, fmt.Errorf("parse remaining value: %w", err)
	}
	retryAfterMS, err := toInt64(values[2])
	if err != nil {
		return Decision{}, fmt.Errorf("parse retry-after value: %w", err)
	}

	return Decision{
		Allowed:    allowed == 1,
		Remaining:  remaining,
		RetryAfter: time.Duration(retryAfterMS) * time.Millisecond,
	}, nil
}

// Close releases the redis client.
func (l *RedisLimiter) Close() error { return l.client.Close() }

func toInt64(in any) (int64, error) {
	switch v := in.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("unsupported type %T", in)
	}
}

// RateLimitConfig selects and configures a Limiter.
type RateLimitConfig struct {
	Enabled           bool
	Backend           string // memory or redis
	RequestsPerMinute int
	Burst             int
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	KeyPrefix         string
}

// NewLimiter builds the limiter described by cfg; nil when disabled.
func NewLimiter(ctx context.Context, cfg RateLimitConfig) (Limiter, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch strings.ToLower(cfg.Backend) {
	case "", "memory":
		return NewMemoryLimiter(cfg.RequestsPerMinute, cfg.Burst), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connect to redis %s: %w", cfg.RedisAddr, err)
		}
		limiter, err := NewRedisLimiter(client, cfg.RequestsPerMinute, cfg.Burst, cfg.KeyPrefix)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return limiter, nil
	default:
		return nil, fmt.Errorf("unknown rate limit backend %q", cfg.Backend)
	}
}
