package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Redis key prefix for checkpoint storage.
const redisKeyPrefix = "shopetl:checkpoint:"

// RedisStore persists checkpoints in Redis so resume points survive
// process restarts and can be shared by multiple pipeline hosts.
type RedisStore struct {
	redis  *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedisStore creates a Redis-backed checkpoint store. A ttl of zero
// keeps checkpoints until explicitly deleted.
func NewRedisStore(redisClient *redis.Client, ttl time.Duration, logger zerolog.Logger) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{
		redis:  redisClient,
		ttl:    ttl,
		logger: logger.With().Str("component", "checkpoint").Logger(),
	}
}

func redisKey(endpoint string) string {
	return redisKeyPrefix + endpoint
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, cp Checkpoint) error {
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now()
	}

	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	if err := s.redis.Set(ctx, redisKey(cp.Endpoint), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}

	s.logger.Debug().
		Str("endpoint", cp.Endpoint).
		Int("last_completed_page", cp.LastCompletedPage).
		Msg("Checkpoint saved")

	return nil
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context, endpoint string) (*Checkpoint, error) {
	data, err := s.redis.Get(ctx, redisKey(endpoint)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}

	return &cp, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, endpoint string) error {
	if err := s.redis.Del(ctx, redisKey(endpoint)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
