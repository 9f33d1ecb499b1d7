package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"shopgate/internal/identity/models"
	id "shopgate/pkg/domain"
	"shopgate/pkg/platform/sentinel"
)

// RedisStore persists sessions as JSON under session:<id> with a scope index
// under session_scope:<scope>. Keys expire with the refresh token, so Redis
// garbage-collects dead sessions on its own.
type RedisStore struct {
	client redis.Cmdable
}

func NewRedis(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

func sessionKey(sessionID id.SessionID) string { return "session:" + sessionID.String() }
func scopeKey(scope string) string             { return "session_scope:" + scope }

func (s *RedisStore) Create(ctx context.Context, session *models.Session) error {
	ttl := time.Until(session.RefreshExpiresAt)
	if ttl <= 0 {
		return sentinel.ErrExpired
	}

	// Replace any previous session for this scope first so a crashed write
	// never leaves two live sessions on one scope.
	if prevID, err := s.client.Get(ctx, scopeKey(session.Scope)).Result(); err == nil {
		_ = s.client.Del(ctx, "session:"+prevID).Err()
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, sessionKey(session.ID), payload, ttl)
	pipe.Set(ctx, scopeKey(session.Scope), session.ID.String(), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

func (s *RedisStore) FindByID(ctx context.Context, sessionID id.SessionID) (*models.Session, error) {
	return s.get(ctx, sessionKey(sessionID))
}

func (s *RedisStore) FindByScope(ctx context.Context, scope string) (*models.Session, error) {
	sessionID, err := s.client.Get(ctx, scopeKey(scope)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("resolve scope session: %w", err)
	}
	return s.get(ctx, "session:"+sessionID)
}

func (s *RedisStore) Update(ctx context.Context, session *models.Session) error {
	key := sessionKey(session.ID)
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("check session: %w", err)
	}
	if exists == 0 {
		return sentinel.ErrNotFound
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	ttl := time.Until(session.RefreshExpiresAt)
	if ttl <= 0 {
		return sentinel.ErrExpired
	}
	if err := s.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, sessionID id.SessionID) error {
	session, err := s.get(ctx, sessionKey(sessionID))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, sessionKey(sessionID))
	pipe.Del(ctx, scopeKey(session.Scope))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *RedisStore) get(ctx context.Context, key string) (*models.Session, error) {
	payload, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	var session models.Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &session, nil
}
