package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/patter-chat/patter/internal/metrics"
)

const defaultSessionTTL = 7 * 24 * time.Hour

// RedisStore handles Redis operations for session tokens and rate limiting.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Client exposes the underlying client for middleware that shares the
// connection (rate limiter, IP blocker).
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

func observeRedis(start time.Time) {
	metrics.RedisLatency.Observe(time.Since(start).Seconds())
}

// sessionKey returns the key for a session token.
func sessionKey(token string) string {
	return fmt.Sprintf("session:%s", token)
}

// CreateSession issues an opaque session token for a user. The token is the
// credential the stream endpoints resolve identities from.
func (s *RedisStore) CreateSession(ctx context.Context, userID int64, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	defer observeRedis(time.Now())

	token := uuid.NewString()
	if err := s.client.Set(ctx, sessionKey(token), userID, ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// ResolveSession returns the user id a session token belongs to, or 0 when
// the token is unknown or expired.
func (s *RedisStore) ResolveSession(ctx context.Context, token string) (int64, error) {
	defer observeRedis(time.Now())

	val, err := s.client.Get(ctx, sessionKey(token)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(val, 10, 64)
}

// DeleteSession revokes a session token.
func (s *RedisStore) DeleteSession(ctx context.Context, token string) error {
	return s.client.Del(ctx, sessionKey(token)).Err()
}
