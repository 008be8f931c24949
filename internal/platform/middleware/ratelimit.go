// Package middleware contains the HTTP pipeline stages that run before any
// handler: request identification, logging, panic recovery, security
// headers, rate limiting, content validation, and input sanitization.
package middleware

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/carebase/carebase/internal/platform/apperr"
)

// RateLimitConfig holds fixed-window rate limiting settings.
type RateLimitConfig struct {
	// Requests allowed per window per client key.
	Limit int
	// Window length.
	Window time.Duration
}

// DefaultRateLimitConfig allows 100 requests per minute per client.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{Limit: 100, Window: time.Minute}
}

// CounterStore is the pluggable backend for the fixed-window counter. The
// in-memory store serves a single node; the Redis store shares the window
// across replicas.
type CounterStore interface {
	// Incr increments the counter for key in the current window and returns
	// the post-increment count.
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// MemoryCounterStore is a mutex-guarded in-process CounterStore.
type MemoryCounterStore struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow
	now     func() time.Time
}

type memoryWindow struct {
	start time.Time
	count int64
}

// NewMemoryCounterStore creates an empty in-memory counter store.
func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{windows: make(map[string]*memoryWindow), now: time.Now}
}

// WithClock overrides the time source for tests.
func (s *MemoryCounterStore) WithClock(now func() time.Time) *MemoryCounterStore {
	s.now = now
	return s
}

func (s *MemoryCounterStore) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w, ok := s.windows[key]
	if !ok || now.Sub(w.start) >= window {
		w = &memoryWindow{start: now}
		s.windows[key] = w
	}
	w.count++
	return w.count, nil
}

// RedisCounterStore implements CounterStore on Redis with INCR + EXPIRE, so
// all replicas share one window per client.
type RedisCounterStore struct {
	client *redis.Client
	prefix string
}

// NewRedisCounterStore creates a counter store on the given client.
func NewRedisCounterStore(client *redis.Client) *RedisCounterStore {
	return &RedisCounterStore{client: client, prefix: "ratelimit:"}
}

func (s *RedisCounterStore) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	redisKey := s.prefix + key
	count, err := s.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return 0, fmt.Errorf("ratelimit incr: %w", err)
	}
	if count == 1 {
		if err := s.client.Expire(ctx, redisKey, window).Err(); err != nil {
			return count, fmt.Errorf("ratelimit expire: %w", err)
		}
	}
	return count, nil
}

// RateLimit returns the fixed-window rate limiting stage, keyed by client
// IP. Exceeding the limit fails the request before any authentication work
// happens. A backend failure fails open: losing rate limiting is better than
// losing the API.
func RateLimit(cfg RateLimitConfig, store CounterStore) echo.MiddlewareFunc {
	if cfg.Limit <= 0 {
		cfg = DefaultRateLimitConfig()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.RealIP()

			count, err := store.Incr(c.Request().Context(), key, cfg.Window)
			if err != nil {
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Limit))
			remaining := int64(cfg.Limit) - count
			if remaining < 0 {
				remaining = 0
			}
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

			if count > int64(cfg.Limit) {
				h.Set("Retry-After", strconv.Itoa(int(cfg.Window.Seconds())))
				return apperr.RateLimited()
			}
			return next(c)
		}
	}
}
