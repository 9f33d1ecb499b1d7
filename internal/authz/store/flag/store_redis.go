package flag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"shopgate/internal/authz"
	id "shopgate/pkg/domain"
)

// RedisFlagStore persists admin flags under admin_status:<scope>:<user>.
// Keys carry a TTL so flags for abandoned browser sessions age out; the TTL
// is a bound on garbage, not on trust — trust rules live in authz.ParseFlag.
type RedisFlagStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedis(client redis.Cmdable, ttl time.Duration) *RedisFlagStore {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &RedisFlagStore{client: client, ttl: ttl}
}

func (s *RedisFlagStore) Get(ctx context.Context, scope string, userID id.UserID) (authz.Flag, error) {
	raw, err := s.client.Get(ctx, key(scope, userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return authz.FlagUnknown, nil
		}
		return authz.FlagUnknown, fmt.Errorf("get admin flag: %w", err)
	}
	return authz.ParseFlag(raw), nil
}

func (s *RedisFlagStore) Set(ctx context.Context, scope string, userID id.UserID, isAdmin bool) error {
	value := "false"
	if isAdmin {
		value = "true"
	}
	if err := s.client.Set(ctx, key(scope, userID), value, s.ttl).Err(); err != nil {
		return fmt.Errorf("set admin flag: %w", err)
	}
	return nil
}

func (s *RedisFlagStore) Delete(ctx context.Context, scope string, userID id.UserID) error {
	if err := s.client.Del(ctx, key(scope, userID)).Err(); err != nil {
		return fmt.Errorf("delete admin flag: %w", err)
	}
	return nil
}

func (s *RedisFlagStore) PurgeScope(ctx context.Context, scope string) error {
	pattern := "admin_status:" + scope + ":*"
	iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("purge admin flag: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan admin flags: %w", err)
	}
	return nil
}
