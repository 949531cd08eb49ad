package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/R3E-Network/renkonet/supabase/client"
)

// redisCmdable is the subset of *redis.Client the store needs.
type redisCmdable interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisStore keeps the session under a single key. The key expires together
// with the refresh window so abandoned sessions do not linger.
type RedisStore struct {
	rdb redisCmdable
	key string
	ttl time.Duration
}

const defaultRedisSessionTTL = 30 * 24 * time.Hour

func NewRedisStore(rdb redisCmdable, key string) *RedisStore {
	if key == "" {
		key = "renkonet:session"
	}
	return &RedisStore{rdb: rdb, key: key, ttl: defaultRedisSessionTTL}
}

func (r *RedisStore) Load(ctx context.Context) (*client.Session, error) {
	raw, err := r.rdb.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get session: %w", err)
	}
	var s client.Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &s, nil
}

func (r *RedisStore) Save(ctx context.Context, s *client.Session) error {
	if s == nil {
		return r.Clear(ctx)
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := r.rdb.Set(ctx, r.key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	return nil
}

func (r *RedisStore) Clear(ctx context.Context) error {
	if err := r.rdb.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("redis del session: %w", err)
	}
	return nil
}
