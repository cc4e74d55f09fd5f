package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"ooh-import-service/internal/models"
)

const redisSessionPrefix = "ooh:import:session:"

// RedisSessionStore keeps each session as a JSON value that expires with the
// session itself.
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

var _ SessionStore = (*RedisSessionStore)(nil)

func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{client: client, ttl: ttl}
}

func redisSessionKey(ownerKey string) string {
	return redisSessionPrefix + ownerKey
}

func (s *RedisSessionStore) Load(ctx context.Context, ownerKey string) (*models.ImportSession, error) {
	data, err := s.client.Get(ctx, redisSessionKey(ownerKey)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load import session: %w", err)
	}

	var session models.ImportSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to decode import session: %w", err)
	}
	return &session, nil
}

// Save writes the session with the time it has left to live. Sessions past their
// TTL are still written with a short grace period so the caller can observe expiry.
func (s *RedisSessionStore) Save(ctx context.Context, session *models.ImportSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode import session: %w", err)
	}

	remaining := s.ttl - time.Since(session.CreatedAt)
	if remaining < time.Minute {
		remaining = time.Minute
	}

	if err := s.client.Set(ctx, redisSessionKey(session.OwnerKey), data, remaining).Err(); err != nil {
		return fmt.Errorf("failed to save import session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, ownerKey string) error {
	if err := s.client.Del(ctx, redisSessionKey(ownerKey)).Err(); err != nil {
		return fmt.Errorf("failed to delete import session: %w", err)
	}
	return nil
}
