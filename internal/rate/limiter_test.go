package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func limiters(t *testing.T, window Window, clock *testClock) map[string]Limiter {
	t.Helper()
	_, rdb := newTestRedis(t)

	rl := NewRedisLimiter(rdb, "rl-test", window)
	rl.now = clock.Now
	ml := NewMemoryLimiter(window)
	ml.now = clock.Now

	return map[string]Limiter{"redis": rl, "memory": ml}
}

func TestSlidingWindowDeniesAfterLimit(t *testing.T) {
	window := Window{Limit: 5, Period: 15 * time.Minute}

	for name, lim := range limiters(t, window, &testClock{now: time.Unix(1_760_000_000, 0)}) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 0; i < 5; i++ {
				res, err := lim.Allow(ctx, "login:1.2.3.4")
				if err != nil {
					t.Fatalf("Allow failed: %v", err)
				}
				if !res.Allowed {
					t.Fatalf("attempt %d unexpectedly denied", i+1)
				}
				if res.Remaining != 4-i {
					t.Fatalf("attempt %d remaining=%d, want %d", i+1, res.Remaining, 4-i)
				}
			}

			res, err := lim.Allow(ctx, "login:1.2.3.4")
			if err != nil {
				t.Fatalf("Allow failed: %v", err)
			}
			if res.Allowed {
				t.Fatal("6th attempt within window must be denied")
			}
			if res.RetryAfter <= 0 || res.RetryAfter > window.Period {
				t.Fatalf("unexpected RetryAfter %v", res.RetryAfter)
			}

			other, err := lim.Allow(ctx, "login:5.6.7.8")
			if err != nil || !other.Allowed {
				t.Fatalf("keys must be isolated: %+v err=%v", other, err)
			}
		})
	}
}

func TestSlidingWindowSlides(t *testing.T) {
	window := Window{Limit: 2, Period: time.Minute}
	clock := &testClock{now: time.Unix(1_760_000_000, 0)}

	for name, lim := range limiters(t, window, clock) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			start := clock.now
			defer func() { clock.now = start }()

			mustAllow := func(want bool) {
				t.Helper()
				res, err := lim.Allow(ctx, "k")
				if err != nil {
					t.Fatalf("Allow failed: %v", err)
				}
				if res.Allowed != want {
					t.Fatalf("Allowed=%v, want %v at %v", res.Allowed, want, clock.now.Sub(start))
				}
			}

			mustAllow(true)
			clock.now = start.Add(30 * time.Second)
			mustAllow(true)
			mustAllow(false)

			clock.now = start.Add(61 * time.Second)
			mustAllow(true)
			mustAllow(false)

			if err := lim.Reset(ctx, "k"); err != nil {
				t.Fatalf("Reset failed: %v", err)
			}
			mustAllow(true)
		})
	}
}

func TestRedisLimiterUnavailable(t *testing.T) {
	mr, rdb := newTestRedis(t)
	lim := NewRedisLimiter(rdb, "rl-test", Window{Limit: 1, Period: time.Minute})
	mr.Close()

	if _, err := lim.Allow(context.Background(), "k"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}

func TestWindowValidate(t *testing.T) {
	if err := (Window{Limit: 0, Period: time.Minute}).Validate(); err == nil {
		t.Fatal("expected zero limit to be rejected")
	}
	if err := (Window{Limit: 1}).Validate(); err == nil {
		t.Fatal("expected zero period to be rejected")
	}
	if err := (Window{Limit: 5, Period: time.Minute}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
