package stores

import (
	"context"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryTokenStore keeps records in process memory. It suits tests and
// single-instance deployments; go-cache's janitor evicts records once their
// retention lapses.
type MemoryTokenStore struct {
	cache *gocache.Cache
	locks keyLocks
}

func NewMemoryTokenStore(cleanupInterval time.Duration) *MemoryTokenStore {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	return &MemoryTokenStore{
		cache: gocache.New(gocache.NoExpiration, cleanupInterval),
		locks: keyLocks{m: make(map[string]*keyLock)},
	}
}

func memoryKey(email, purpose string) string {
	return purpose + "\x00" + NormalizeEmail(email)
}

func (s *MemoryTokenStore) Put(ctx context.Context, rec TokenRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec.Email = NormalizeEmail(rec.Email)
	if err := validateRecord(rec); err != nil {
		return err
	}

	key := memoryKey(rec.Email, rec.Purpose)
	unlock := s.locks.lock(key)
	defer unlock()

	s.cache.Set(key, rec, rec.retention())
	return nil
}

func (s *MemoryTokenStore) Get(ctx context.Context, email, purpose string) (TokenRecord, error) {
	if err := ctx.Err(); err != nil {
		return TokenRecord{}, err
	}
	v, ok := s.cache.Get(memoryKey(email, purpose))
	if !ok {
		return TokenRecord{}, ErrTokenNotFound
	}
	return v.(TokenRecord), nil
}

func (s *MemoryTokenStore) Delete(ctx context.Context, email, purpose, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := memoryKey(email, purpose)
	unlock := s.locks.lock(key)
	defer unlock()

	if id != "" {
		v, ok := s.cache.Get(key)
		if !ok || v.(TokenRecord).ID != id {
			return nil
		}
	}
	s.cache.Delete(key)
	return nil
}

func (s *MemoryTokenStore) Update(ctx context.Context, email, purpose string, fn UpdateFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := memoryKey(email, purpose)
	unlock := s.locks.lock(key)
	defer unlock()

	v, expiresAt, ok := s.cache.GetWithExpiration(key)
	if !ok {
		return ErrTokenNotFound
	}
	rec := v.(TokenRecord)

	action, err := fn(&rec)
	switch action {
	case Save:
		ttl := time.Until(expiresAt)
		if expiresAt.IsZero() || ttl <= 0 {
			ttl = rec.retention()
		}
		s.cache.Set(key, rec, ttl)
	case Delete:
		s.cache.Delete(key)
	}
	return err
}

func (s *MemoryTokenStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	s.cache.DeleteExpired()

	purged := 0
	for key, item := range s.cache.Items() {
		if err := ctx.Err(); err != nil {
			return purged, err
		}
		rec, ok := item.Object.(TokenRecord)
		if !ok || !rec.Expired(now) {
			continue
		}
		purpose, email, _ := strings.Cut(key, "\x00")
		err := s.Update(ctx, email, purpose, func(cur *TokenRecord) (Action, error) {
			if cur.Expired(now) {
				purged++
				return Delete, nil
			}
			return Keep, nil
		})
		if err != nil && err != ErrTokenNotFound {
			return purged, err
		}
	}
	return purged, nil
}

// Len reports the number of records currently held, including logically
// expired ones awaiting purge.
func (s *MemoryTokenStore) Len() int {
	return s.cache.ItemCount()
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

type keyLocks struct {
	mu sync.Mutex
	m  map[string]*keyLock
}

func (k *keyLocks) lock(key string) func() {
	k.mu.Lock()
	l, ok := k.m[key]
	if !ok {
		l = &keyLock{}
		k.m[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.m, key)
		}
		k.mu.Unlock()
	}
}
