package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/FilipeAphrody/sentinel-accounts/internal/domain"
)

// consumeScript deletes the handshake only if it still holds the expected
// token, making the check and the delete one atomic step.
var consumeScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'token') == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisHandshakeRepo implements domain.HandshakeRepository using Redis.
// The key pattern is "auth:handshake:<id>" -> hash{account_id, token, created_at}.
type RedisHandshakeRepo struct {
	client *redis.Client
}

// NewRedisHandshakeRepo creates a new repository instance.
func NewRedisHandshakeRepo(client *redis.Client) *RedisHandshakeRepo {
	return &RedisHandshakeRepo{client: client}
}

func handshakeKey(id string) string {
	return fmt.Sprintf("auth:handshake:%s", id)
}

// Save stores the handshake with a Time-To-Live so abandoned logins vanish on their own.
func (r *RedisHandshakeRepo) Save(ctx context.Context, sessionID string, token domain.HandshakeToken, ttl time.Duration) error {
	key := handshakeKey(sessionID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"account_id", token.AccountID,
			"token", token.Value,
			"created_at", strconv.FormatInt(token.CreatedAt.UnixMicro(), 10),
		)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store handshake in redis: %w", err)
	}
	return nil
}

func (r *RedisHandshakeRepo) Get(ctx context.Context, sessionID string) (*domain.HandshakeToken, error) {
	fields, err := r.client.HGetAll(ctx, handshakeKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis error: %w", err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrNotFound
	}

	created, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt handshake %s: %w", sessionID, err)
	}
	return &domain.HandshakeToken{
		AccountID: fields["account_id"],
		Value:     fields["token"],
		CreatedAt: time.UnixMicro(created).UTC(),
	}, nil
}

func (r *RedisHandshakeRepo) Consume(ctx context.Context, sessionID, tokenValue string) (bool, error) {
	n, err := consumeScript.Run(ctx, r.client, []string{handshakeKey(sessionID)}, tokenValue).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("redis error: %w", err)
	}
	return n == 1, nil
}

// Delete removes a handshake immediately. Used when a login is abandoned.
func (r *RedisHandshakeRepo) Delete(ctx context.Context, sessionID string) error {
	return r.client.Del(ctx, handshakeKey(sessionID)).Err()
}
