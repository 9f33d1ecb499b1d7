package recent

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each scope's list under recent:<scope>, capped and with
// a TTL so abandoned sessions age out.
type RedisStore struct {
	client *redis.Client
	limit  int
	ttl    time.Duration
}

func NewRedis(client *redis.Client, limit int, ttl time.Duration) *RedisStore {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &RedisStore{client: client, limit: limit, ttl: ttl}
}

func listKey(scope string) string {
	return "recent:" + scope
}

func (s *RedisStore) Record(ctx context.Context, scope, productID string) error {
	key := listKey(scope)
	pipe := s.client.TxPipeline()
	pipe.LRem(ctx, key, 0, productID)
	pipe.LPush(ctx, key, productID)
	pipe.LTrim(ctx, key, 0, int64(s.limit)-1)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record recently viewed: %w", err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context, scope string) ([]string, error) {
	ids, err := s.client.LRange(ctx, listKey(scope), 0, int64(s.limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("list recently viewed: %w", err)
	}
	return ids, nil
}

func (s *RedisStore) PurgeScope(ctx context.Context, scope string) error {
	if err := s.client.Del(ctx, listKey(scope)).Err(); err != nil {
		return fmt.Errorf("purge recently viewed: %w", err)
	}
	return nil
}
