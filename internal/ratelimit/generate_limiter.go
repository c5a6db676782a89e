package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/flowforge/flowforge/internal/config"
	redis "github.com/redis/go-redis/v9"
)

const (
	keyGenerateUser = "generate:user:%s"
	keyGenerateLock = "generate:lock:%s"
)

// GenerateLimiter throttles the generate endpoint per user and caps each
// user to one in-flight generation. A nil limiter allows everything, so the
// service runs without Redis in development.
type GenerateLimiter struct {
	enabled bool

	bucket *TokenBucket
	locker *Locker

	rate    float64
	burst   int
	lockTTL time.Duration
}

func NewGenerateLimiter(cfg config.Config) *GenerateLimiter {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil
	}
	if cfg.RateLimit.GenerateRate <= 0 || cfg.RateLimit.GenerateBurst <= 0 {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
	})

	return &GenerateLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		locker:  NewLocker(client),
		rate:    cfg.RateLimit.GenerateRate,
		burst:   cfg.RateLimit.GenerateBurst,
		lockTTL: cfg.RateLimit.LockTTL,
	}
}

func (l *GenerateLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *GenerateLimiter) AllowUser(ctx context.Context, userID string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyGenerateUser, strings.TrimSpace(userID)), l.rate, l.burst)
}

func (l *GenerateLimiter) TryLockUser(ctx context.Context, userID string) (string, bool, error) {
	if !l.Enabled() {
		return "", true, nil
	}
	return l.locker.TryLock(ctx, fmt.Sprintf(keyGenerateLock, strings.TrimSpace(userID)), l.lockTTL)
}

func (l *GenerateLimiter) ReleaseUser(ctx context.Context, userID, token string) error {
	if !l.Enabled() {
		return nil
	}
	return l.locker.Release(ctx, fmt.Sprintf(keyGenerateLock, strings.TrimSpace(userID)), token)
}
