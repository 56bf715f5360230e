package rate

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// Window is a sliding-window budget.
type Window struct {
	Limit  int
	Period time.Duration
}

func (w Window) Validate() error {
	if w.Limit <= 0 {
		return errors.New("rate window limit must be > 0")
	}
	if w.Period <= 0 {
		return errors.New("rate window period must be > 0")
	}
	return nil
}

// Result describes one Allow decision.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter admits or denies hits for a key.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
	Reset(ctx context.Context, key string) error
}

// RedisLimiter is a sliding-window limiter shared across instances.
type RedisLimiter struct {
	redis  redis.UniversalClient
	prefix string
	window Window
	now    func() time.Time
}

func NewRedisLimiter(redisClient redis.UniversalClient, prefix string, window Window) *RedisLimiter {
	return &RedisLimiter{
		redis:  redisClient,
		prefix: prefix,
		window: window,
		now:    time.Now,
	}
}

func (l *RedisLimiter) key(key string) string {
	return l.prefix + ":" + key
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	k := l.key(key)
	now := l.now()
	nowMs := now.UnixMilli()
	floor := nowMs - l.window.Period.Milliseconds()
	member := strconv.FormatInt(now.UnixNano(), 10) + "-" + nonce()

	pipe := l.redis.TxPipeline()
	pipe.ZRemRangeByScore(ctx, k, "-inf", "("+strconv.FormatInt(floor, 10))
	pipe.ZAdd(ctx, k, redis.Z{Score: float64(nowMs), Member: member})
	card := pipe.ZCard(ctx, k)
	pipe.PExpire(ctx, k, l.window.Period)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	count := int(card.Val())
	if count <= l.window.Limit {
		return Result{Allowed: true, Remaining: l.window.Limit - count}, nil
	}

	// Denied hits do not consume budget.
	if err := l.redis.ZRem(ctx, k, member).Err(); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	retry := l.window.Period
	oldest, err := l.redis.ZRangeWithScores(ctx, k, 0, 0).Result()
	if err == nil && len(oldest) == 1 {
		retry = time.Duration(int64(oldest[0].Score)+l.window.Period.Milliseconds()-nowMs) * time.Millisecond
	}
	if retry < 0 {
		retry = 0
	}
	return Result{Allowed: false, RetryAfter: retry}, nil
}

func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	if err := l.redis.Del(ctx, l.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// MemoryLimiter is a process-local sliding-window limiter.
type MemoryLimiter struct {
	window Window
	cache  *gocache.Cache
	mu     sync.Mutex
	now    func() time.Time
}

func NewMemoryLimiter(window Window) *MemoryLimiter {
	return &MemoryLimiter{
		window: window,
		cache:  gocache.New(window.Period, window.Period),
		now:    time.Now,
	}
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	floor := now.Add(-l.window.Period)

	var hits []time.Time
	if v, ok := l.cache.Get(key); ok {
		hits = v.([]time.Time)
	}
	live := hits[:0:0]
	for _, h := range hits {
		if h.After(floor) {
			live = append(live, h)
		}
	}

	if len(live) >= l.window.Limit {
		l.cache.Set(key, live, l.window.Period)
		retry := live[0].Add(l.window.Period).Sub(now)
		if retry < 0 {
			retry = 0
		}
		return Result{Allowed: false, RetryAfter: retry}, nil
	}

	live = append(live, now)
	l.cache.Set(key, live, l.window.Period)
	return Result{Allowed: true, Remaining: l.window.Limit - len(live)}, nil
}

func (l *MemoryLimiter) Reset(_ context.Context, key string) error {
	l.cache.Delete(key)
	return nil
}

func nonce() string {
	var b [6]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
