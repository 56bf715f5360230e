package stores

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

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

func storeBackends(t *testing.T) map[string]TokenStore {
	t.Helper()
	_, rdb := newTestRedis(t)
	return map[string]TokenStore{
		"memory": NewMemoryTokenStore(time.Minute),
		"redis":  NewRedisTokenStore(rdb, "test"),
	}
}

func testRecord(id, email, purpose string, created time.Time) TokenRecord {
	return TokenRecord{
		ID:        id,
		Email:     email,
		Purpose:   purpose,
		Value:     "digest-" + id,
		CreatedAt: created,
		ExpiresAt: created.Add(10 * time.Minute),
	}
}

func TestTokenStorePutGetUpsert(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, err := store.Get(ctx, "a@example.com", "member_otp"); !errors.Is(err, ErrTokenNotFound) {
				t.Fatalf("expected ErrTokenNotFound, got %v", err)
			}

			if err := store.Put(ctx, testRecord("id-1", " A@Example.com ", "member_otp", now)); err != nil {
				t.Fatalf("Put failed: %v", err)
			}
			got, err := store.Get(ctx, "a@example.com", "member_otp")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if got.ID != "id-1" || got.Email != "a@example.com" || !got.ExpiresAt.Equal(now.Add(10*time.Minute)) {
				t.Fatalf("unexpected record: %+v", got)
			}

			if err := store.Put(ctx, testRecord("id-2", "a@example.com", "member_otp", now)); err != nil {
				t.Fatalf("second Put failed: %v", err)
			}
			got, err = store.Get(ctx, "a@example.com", "member_otp")
			if err != nil || got.ID != "id-2" || got.Value != "digest-id-2" {
				t.Fatalf("expected upsert to replace record, got %+v err=%v", got, err)
			}

			if _, err := store.Get(ctx, "a@example.com", "admin_otp"); !errors.Is(err, ErrTokenNotFound) {
				t.Fatalf("purposes must be isolated, got %v", err)
			}
		})
	}
}

func TestTokenStoreRejectsInvalidRecords(t *testing.T) {
	now := time.Now()
	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			bad := testRecord("", "a@example.com", "member_otp", now)
			if err := store.Put(context.Background(), bad); err == nil {
				t.Fatal("expected missing id to be rejected")
			}
			bad = testRecord("id", "a@example.com", "member_otp", now)
			bad.ExpiresAt = now
			if err := store.Put(context.Background(), bad); err == nil {
				t.Fatal("expected non-positive ttl to be rejected")
			}
		})
	}
}

func TestTokenStoreDeleteIsIdempotentAndIDScoped(t *testing.T) {
	now := time.Now()
	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if err := store.Delete(ctx, "ghost@example.com", "admin_reset", ""); err != nil {
				t.Fatalf("delete of missing record must succeed: %v", err)
			}
			if err := store.Delete(ctx, "ghost@example.com", "admin_reset", "id-x"); err != nil {
				t.Fatalf("id-scoped delete of missing record must succeed: %v", err)
			}

			if err := store.Put(ctx, testRecord("id-new", "b@example.com", "admin_reset", now)); err != nil {
				t.Fatalf("Put failed: %v", err)
			}
			if err := store.Delete(ctx, "b@example.com", "admin_reset", "id-old"); err != nil {
				t.Fatalf("Delete failed: %v", err)
			}
			if _, err := store.Get(ctx, "b@example.com", "admin_reset"); err != nil {
				t.Fatalf("stale id must not delete newer record: %v", err)
			}
			if err := store.Delete(ctx, "b@example.com", "admin_reset", "id-new"); err != nil {
				t.Fatalf("Delete failed: %v", err)
			}
			if _, err := store.Get(ctx, "b@example.com", "admin_reset"); !errors.Is(err, ErrTokenNotFound) {
				t.Fatalf("expected record gone, got %v", err)
			}
		})
	}
}

func TestTokenStoreUpdateActions(t *testing.T) {
	now := time.Now()
	errBoom := errors.New("boom")
	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			err := store.Update(ctx, "c@example.com", "member_otp", func(*TokenRecord) (Action, error) {
				t.Fatal("callback must not run for missing record")
				return Keep, nil
			})
			if !errors.Is(err, ErrTokenNotFound) {
				t.Fatalf("expected ErrTokenNotFound, got %v", err)
			}

			if err := store.Put(ctx, testRecord("id-1", "c@example.com", "member_otp", now)); err != nil {
				t.Fatalf("Put failed: %v", err)
			}

			err = store.Update(ctx, "c@example.com", "member_otp", func(rec *TokenRecord) (Action, error) {
				rec.Attempts++
				return Save, errBoom
			})
			if !errors.Is(err, errBoom) {
				t.Fatalf("expected callback error to propagate, got %v", err)
			}
			got, err := store.Get(ctx, "c@example.com", "member_otp")
			if err != nil || got.Attempts != 1 {
				t.Fatalf("expected saved attempts=1, got %+v err=%v", got, err)
			}

			err = store.Update(ctx, "c@example.com", "member_otp", func(rec *TokenRecord) (Action, error) {
				rec.Attempts = 99
				return Keep, nil
			})
			if err != nil {
				t.Fatalf("Keep update failed: %v", err)
			}
			if got, _ := store.Get(ctx, "c@example.com", "member_otp"); got.Attempts != 1 {
				t.Fatalf("Keep must not persist changes, got attempts=%d", got.Attempts)
			}

			if err := store.Update(ctx, "c@example.com", "member_otp", func(*TokenRecord) (Action, error) {
				return Delete, nil
			}); err != nil {
				t.Fatalf("Delete update failed: %v", err)
			}
			if _, err := store.Get(ctx, "c@example.com", "member_otp"); !errors.Is(err, ErrTokenNotFound) {
				t.Fatalf("expected deleted record, got %v", err)
			}
		})
	}
}

func TestTokenStoreConcurrentConsumeSucceedsOnce(t *testing.T) {
	now := time.Now()
	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.Put(ctx, testRecord("id-1", "d@example.com", "admin_otp", now)); err != nil {
				t.Fatalf("Put failed: %v", err)
			}

			var (
				wg        sync.WaitGroup
				successes atomic.Int32
			)
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					var consumed bool
					err := store.Update(ctx, "d@example.com", "admin_otp", func(*TokenRecord) (Action, error) {
						consumed = true
						return Delete, nil
					})
					if err == nil && consumed {
						successes.Add(1)
					}
				}()
			}
			wg.Wait()

			if got := successes.Load(); got != 1 {
				t.Fatalf("expected exactly one successful consume, got %d", got)
			}
		})
	}
}

func TestTokenStorePurgeExpired(t *testing.T) {
	now := time.Now()
	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			old := testRecord("id-old", "old@example.com", "member_reset", now.Add(-time.Hour))
			live := testRecord("id-live", "live@example.com", "member_reset", now)
			for _, rec := range []TokenRecord{old, live} {
				if err := store.Put(ctx, rec); err != nil {
					t.Fatalf("Put failed: %v", err)
				}
			}

			purged, err := store.PurgeExpired(ctx, now)
			if err != nil {
				t.Fatalf("PurgeExpired failed: %v", err)
			}
			if purged != 1 {
				t.Fatalf("expected 1 purged record, got %d", purged)
			}
			if _, err := store.Get(ctx, "old@example.com", "member_reset"); !errors.Is(err, ErrTokenNotFound) {
				t.Fatalf("expected expired record purged, got %v", err)
			}
			if _, err := store.Get(ctx, "live@example.com", "member_reset"); err != nil {
				t.Fatalf("live record must survive purge: %v", err)
			}
		})
	}
}

func TestRedisTokenStoreUnavailable(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewRedisTokenStore(rdb, "test")
	mr.Close()

	err := store.Put(context.Background(), testRecord("id", "e@example.com", "member_otp", time.Now()))
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if _, err := store.Get(context.Background(), "e@example.com", "member_otp"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable on Get, got %v", err)
	}
}

func TestRedisTokenStoreRetainsPastLogicalExpiry(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewRedisTokenStore(rdb, "test")
	now := time.Now()

	if err := store.Put(context.Background(), testRecord("id", "f@example.com", "member_otp", now)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	mr.FastForward(10*time.Minute + time.Second)
	if _, err := store.Get(context.Background(), "f@example.com", "member_otp"); err != nil {
		t.Fatalf("record must be retained through the grace period: %v", err)
	}

	mr.FastForward(ExpiryGrace)
	if _, err := store.Get(context.Background(), "f@example.com", "member_otp"); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected record evicted after grace, got %v", err)
	}
}
