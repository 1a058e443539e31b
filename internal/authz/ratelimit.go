package authz

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRateLimited is returned once a client has exhausted its token bucket.
var ErrRateLimited = errors.New("authz: rate limit exceeded")

// RateLimitConfig configures a token-bucket RateLimiter.
type RateLimitConfig struct {
	RequestsPerSecond uint32
	BurstSize         uint32
}

// DefaultRateLimitConfig mirrors the provider defaults: 100 req/s, burst
// of 150.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{RequestsPerSecond: 100, BurstSize: 150}
}

// RateLimiter gates external API entry points per client_id with a
// token-bucket algorithm: bucket starts full (burst_size), refills
// fractionally with elapsed wall-clock time, one token consumed per
// Allow call.
type RateLimiter interface {
	Allow(ctx context.Context, clientID string) error
	Reset(ctx context.Context, clientID string) error
}

type clientBucket struct {
	tokens     float64
	lastRefill time.Time
}

// MemoryRateLimiter keeps one bucket per client_id in process memory.
type MemoryRateLimiter struct {
	cfg     RateLimitConfig
	mu      sync.Mutex
	clients map[string]*clientBucket
}

// NewMemoryRateLimiter returns an in-process RateLimiter.
func NewMemoryRateLimiter(cfg RateLimitConfig) *MemoryRateLimiter {
	return &MemoryRateLimiter{cfg: cfg, clients: make(map[string]*clientBucket)}
}

func (r *MemoryRateLimiter) Allow(_ context.Context, clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	b, ok := r.clients[clientID]
	if !ok {
		b = &clientBucket{tokens: float64(r.cfg.BurstSize), lastRefill: now}
		r.clients[clientID] = b
	}

	if refill := now.Sub(b.lastRefill).Seconds() * float64(r.cfg.RequestsPerSecond); refill > 0 {
		b.tokens = minFloat(b.tokens+refill, float64(r.cfg.BurstSize))
		b.lastRefill = now
	}

	if b.tokens < 1 {
		return ErrRateLimited
	}
	b.tokens--
	return nil
}

func (r *MemoryRateLimiter) Reset(_ context.Context, clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, clientID)
	return nil
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// RedisRateLimiter stores bucket state as a Redis hash (tokens,
// last_refill_unix_nano) so multiple gateway processes share one limiter.
type RedisRateLimiter struct {
	cfg    RateLimitConfig
	client *redis.Client
	prefix string
}

// NewRedisRateLimiter returns a RateLimiter backed by client, sharing
// bucket state across every process pointed at the same Redis instance.
func NewRedisRateLimiter(client *redis.Client, cfg RateLimitConfig) *RedisRateLimiter {
	return &RedisRateLimiter{cfg: cfg, client: client, prefix: "agentmesh:ratelimit:"}
}

func (r *RedisRateLimiter) key(clientID string) string { return r.prefix + clientID }

func (r *RedisRateLimiter) Allow(ctx context.Context, clientID string) error {
	key := r.key(clientID)
	now := time.Now()

	pipe := r.client.TxPipeline()
	tokensCmd := pipe.HGet(ctx, key, "tokens")
	lastRefillCmd := pipe.HGet(ctx, key, "last_refill_unix_nano")
	_, err := pipe.Exec(ctx)
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("authz: reading rate limit bucket: %w", err)
	}

	tokens := float64(r.cfg.BurstSize)
	lastRefill := now
	if v, err := tokensCmd.Float64(); err == nil {
		tokens = v
	}
	if v, err := lastRefillCmd.Int64(); err == nil {
		lastRefill = time.Unix(0, v)
	}

	if refill := now.Sub(lastRefill).Seconds() * float64(r.cfg.RequestsPerSecond); refill > 0 {
		tokens = minFloat(tokens+refill, float64(r.cfg.BurstSize))
		lastRefill = now
	}

	if tokens < 1 {
		return ErrRateLimited
	}
	tokens--

	if err := r.client.HSet(ctx, key,
		"tokens", tokens,
		"last_refill_unix_nano", lastRefill.UnixNano(),
	).Err(); err != nil {
		return fmt.Errorf("authz: writing rate limit bucket: %w", err)
	}
	return nil
}

func (r *RedisRateLimiter) Reset(ctx context.Context, clientID string) error {
	return r.client.Del(ctx, r.key(clientID)).Err()
}
