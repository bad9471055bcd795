package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// indexTTL keeps the per-user key index alive a little longer than any entry can.
const indexTTL = 48 * time.Hour

// RedisStore keeps entries as JSON values with a native TTL and tracks each user's keys
// in a set so Invalidate can drop them together.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisStore wraps a go-redis client. prefix namespaces every key.
func NewRedisStore(rdb redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: prefix, now: time.Now}
}

func (s *RedisStore) key(k string) string { return s.prefix + k }

func (s *RedisStore) indexKey(userID string) string { return s.prefix + "action-index:" + userID }

func (s *RedisStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	raw, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("op=cache.redis.Get: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		// a corrupt value is a miss; drop it so the next computation can replace it
		_ = s.rdb.Del(ctx, s.key(key)).Err()
		return Entry{}, false, nil
	}
	return e, true, nil
}

func (s *RedisStore) Set(ctx context.Context, userID, key string, e Entry) error {
	ttl := e.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("op=cache.redis.Set: %w", err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.key(key), raw, ttl)
		p.SAdd(ctx, s.indexKey(userID), key)
		p.Expire(ctx, s.indexKey(userID), indexTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("op=cache.redis.Set: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("op=cache.redis.Delete: %w", err)
	}
	return nil
}

func (s *RedisStore) DeleteUser(ctx context.Context, userID string) error {
	idx := s.indexKey(userID)
	members, err := s.rdb.SMembers(ctx, idx).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("op=cache.redis.DeleteUser: %w", err)
	}
	keys := make([]string, 0, len(members)+1)
	for _, m := range members {
		keys = append(keys, s.key(m))
	}
	keys = append(keys, idx)
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("op=cache.redis.DeleteUser: %w", err)
	}
	return nil
}

// Ping reports whether Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
