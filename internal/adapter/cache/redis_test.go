package cache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/organic-advisor/internal/domain"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return NewRedisStore(rdb, "test:"), mr
}

func TestRedisStore_SetGetDelete(t *testing.T) {
	s, mr := newTestRedisStore(t)
	ctx := context.Background()
	key := todayKey.String()
	e := Entry{Action: action("a1"), ExpiresAt: time.Now().Add(time.Hour)}

	_, ok, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "u1", key, e))
	got, ok, err := s.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a1", got.Action.ID)
	assert.True(t, got.ExpiresAt.Equal(e.ExpiresAt))

	ttl := mr.TTL("test:" + key)
	assert.Greater(t, ttl, 59*time.Minute)
	assert.LessOrEqual(t, ttl, time.Hour)

	require.NoError(t, s.Delete(ctx, key))
	_, ok, err = s.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_NativeTTL(t *testing.T) {
	s, mr := newTestRedisStore(t)
	ctx := context.Background()
	key := todayKey.String()
	require.NoError(t, s.Set(ctx, "u1", key, Entry{Action: action("a1"), ExpiresAt: time.Now().Add(time.Minute)}))

	mr.FastForward(2 * time.Minute)
	_, ok, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_SkipsAlreadyExpired(t *testing.T) {
	s, mr := newTestRedisStore(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "u1", "k", Entry{ExpiresAt: time.Now().Add(-time.Second)}))
	assert.False(t, mr.Exists("test:k"))
}

func TestRedisStore_DeleteUser(t *testing.T) {
	s, mr := newTestRedisStore(t)
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)
	require.NoError(t, s.Set(ctx, "u1", "action:u1:2025-07-14", Entry{Action: action("a1"), ExpiresAt: exp}))
	require.NoError(t, s.Set(ctx, "u1", "action:u1:2025-07-15", Entry{Action: action("a2"), ExpiresAt: exp}))
	require.NoError(t, s.Set(ctx, "u2", "action:u2:2025-07-14", Entry{Action: action("b1"), ExpiresAt: exp}))

	require.NoError(t, s.DeleteUser(ctx, "u1"))
	assert.False(t, mr.Exists("test:action:u1:2025-07-14"))
	assert.False(t, mr.Exists("test:action:u1:2025-07-15"))
	assert.False(t, mr.Exists("test:action-index:u1"))
	assert.True(t, mr.Exists("test:action:u2:2025-07-14"))

	// deleting a user with no keys is a no-op
	require.NoError(t, s.DeleteUser(ctx, "nobody"))
}

func TestRedisStore_CorruptValueIsMiss(t *testing.T) {
	s, mr := newTestRedisStore(t)
	require.NoError(t, mr.Set("test:bad", "{not json"))

	_, ok, err := s.Get(context.Background(), "bad")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists("test:bad"))
}

func TestRedisStore_WithCache(t *testing.T) {
	s, _ := newTestRedisStore(t)
	c := New(s, time.Hour)
	ctx := context.Background()
	key := domain.CacheKey{UserID: "u1", Day: time.Now().UTC().Format(domain.DayLayout)}

	calls := 0
	compute := func(context.Context) (domain.ActionInstance, error) { calls++; return action("a1"), nil }
	_, err := c.GetOrCompute(ctx, key, compute)
	require.NoError(t, err)
	_, err = c.GetOrCompute(ctx, key, compute)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	require.NoError(t, c.Invalidate(ctx, "u1"))
	_, ok := c.Get(ctx, key)
	assert.False(t, ok)
}

func TestRedisStore_Ping(t *testing.T) {
	s, mr := newTestRedisStore(t)
	require.NoError(t, s.Ping(context.Background()))
	mr.Close()
	assert.Error(t, s.Ping(context.Background()))
}
