package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisRecordVersion = 1
	redisUpdateRetries = 4
)

// RedisTokenStore keeps records as JSON values under prefix:purpose:email.
// Mutations use WATCH/MULTI so concurrent verifications cannot both consume
// the same record.
type RedisTokenStore struct {
	redis  redis.UniversalClient
	prefix string
}

type redisEnvelope struct {
	Version int         `json:"v"`
	Record  TokenRecord `json:"r"`
}

func NewRedisTokenStore(redisClient redis.UniversalClient, prefix string) *RedisTokenStore {
	if prefix == "" {
		prefix = "pat"
	}
	return &RedisTokenStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *RedisTokenStore) key(email, purpose string) string {
	return s.prefix + ":" + purpose + ":" + NormalizeEmail(email)
}

func (s *RedisTokenStore) Put(ctx context.Context, rec TokenRecord) error {
	rec.Email = NormalizeEmail(rec.Email)
	if err := validateRecord(rec); err != nil {
		return err
	}
	encoded, err := encodeRedisRecord(rec)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(rec.Email, rec.Purpose), encoded, rec.retention()).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisTokenStore) Get(ctx context.Context, email, purpose string) (TokenRecord, error) {
	data, err := s.redis.Get(ctx, s.key(email, purpose)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return TokenRecord{}, ErrTokenNotFound
		}
		return TokenRecord{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return decodeRedisRecord(data)
}

func (s *RedisTokenStore) Delete(ctx context.Context, email, purpose, id string) error {
	if id == "" {
		if err := s.redis.Del(ctx, s.key(email, purpose)).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return nil
	}

	err := s.Update(ctx, email, purpose, func(rec *TokenRecord) (Action, error) {
		if rec.ID != id {
			return Keep, nil
		}
		return Delete, nil
	})
	if errors.Is(err, ErrTokenNotFound) {
		return nil
	}
	return err
}

func (s *RedisTokenStore) Update(ctx context.Context, email, purpose string, fn UpdateFunc) error {
	key := s.key(email, purpose)

	for i := 0; i < redisUpdateRetries; i++ {
		var callbackErr error

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}
			rec, err := decodeRedisRecord(data)
			if err != nil {
				return err
			}

			action, cbErr := fn(&rec)
			callbackErr = cbErr

			switch action {
			case Save:
				ttl, err := tx.PTTL(ctx, key).Result()
				if err != nil {
					return err
				}
				if ttl <= 0 {
					ttl = rec.retention()
				}
				updated, err := encodeRedisRecord(rec)
				if err != nil {
					return err
				}
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Set(ctx, key, updated, ttl)
					return nil
				})
				return err
			case Delete:
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				return err
			default:
				return nil
			}
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrTokenNotFound
			}
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return callbackErr
	}

	return fmt.Errorf("%w: update contention on %s", ErrStoreUnavailable, purpose)
}

// PurgeExpired scans the prefix and removes logically expired records. Redis
// evicts retained records on its own; this only shortens the window.
func (s *RedisTokenStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	purged := 0
	iter := s.redis.Scan(ctx, 0, s.prefix+":*", 200).Iterator()
	for iter.Next(ctx) {
		data, err := s.redis.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return purged, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		rec, err := decodeRedisRecord(data)
		if err != nil || !rec.Expired(now) {
			continue
		}
		err = s.Update(ctx, rec.Email, rec.Purpose, func(cur *TokenRecord) (Action, error) {
			if cur.Expired(now) {
				purged++
				return Delete, nil
			}
			return Keep, nil
		})
		if err != nil && !errors.Is(err, ErrTokenNotFound) {
			return purged, err
		}
	}
	if err := iter.Err(); err != nil {
		return purged, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return purged, nil
}

func encodeRedisRecord(rec TokenRecord) ([]byte, error) {
	return json.Marshal(redisEnvelope{Version: redisRecordVersion, Record: rec})
}

func decodeRedisRecord(data []byte) (TokenRecord, error) {
	var env redisEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return TokenRecord{}, fmt.Errorf("decode token record: %w", err)
	}
	if env.Version != redisRecordVersion {
		return TokenRecord{}, errors.New("invalid token record version")
	}
	return env.Record, nil
}
