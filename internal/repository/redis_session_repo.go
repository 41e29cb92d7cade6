package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/FilipeAphrody/sentinel-accounts/internal/domain"
)

// RedisSessionRepo implements domain.SessionRepository using Redis.
// The key pattern is "auth:session:<id>" -> JSON session, expiring with it.
type RedisSessionRepo struct {
	client *redis.Client
}

func NewRedisSessionRepo(client *redis.Client) *RedisSessionRepo {
	return &RedisSessionRepo{client: client}
}

func sessionKey(id string) string {
	return fmt.Sprintf("auth:session:%s", id)
}

func (r *RedisSessionRepo) Save(ctx context.Context, s *domain.Session) error {
	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		return errors.New("session already expired")
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, sessionKey(s.ID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session in redis: %w", err)
	}
	return nil
}

func (r *RedisSessionRepo) Get(ctx context.Context, id string) (*domain.Session, error) {
	payload, err := r.client.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis error: %w", err)
	}
	var s domain.Session
	if err := json.Unmarshal(payload, &s); err != nil {
		return nil, fmt.Errorf("corrupt session %s: %w", id, err)
	}
	return &s, nil
}

// Delete removes a session immediately. This is used for logout.
func (r *RedisSessionRepo) Delete(ctx context.Context, id string) error {
	return r.client.Del(ctx, sessionKey(id)).Err()
}
