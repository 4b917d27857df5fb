package quota

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "featgate:quota:"
	redisIndexKey  = "featgate:quota:features"
	redisOpTimeout = 5 * time.Second
)

// RedisStore persists quota states in Redis, one hash per feature.
// Suited to installations that already run Redis and want gate state
// shared across restarts without a SQL database.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// Save implements Store. The state hash and the feature index are
// written in one transactional pipeline.
func (s *RedisStore) Save(state *State) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	key := redisKeyPrefix + string(state.Feature)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key,
		"usage_count", state.UsageCount,
		"cooldown_start", state.CooldownStart,
	)
	pipe.SAdd(ctx, redisIndexKey, string(state.Feature))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save quota state to redis: %w", err)
	}
	return nil
}

// Load implements Store.
func (s *RedisStore) Load(feature Feature) (*State, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	vals, err := s.client.HGetAll(ctx, redisKeyPrefix+string(feature)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load quota state from redis: %w", err)
	}
	if len(vals) == 0 {
		return nil, nil
	}
	return stateFromRedisHash(feature, vals), nil
}

// LoadAll implements Store.
func (s *RedisStore) LoadAll() ([]*State, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	features, err := s.client.SMembers(ctx, redisIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list quota features from redis: %w", err)
	}

	out := make([]*State, 0, len(features))
	for _, f := range features {
		vals, err := s.client.HGetAll(ctx, redisKeyPrefix+f).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to load quota state for %s: %w", f, err)
		}
		if len(vals) == 0 {
			continue
		}
		out = append(out, stateFromRedisHash(Feature(f), vals))
	}
	return out, nil
}

// Close releases the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func stateFromRedisHash(feature Feature, vals map[string]string) *State {
	st := &State{Feature: feature}
	if v, err := strconv.Atoi(vals["usage_count"]); err == nil {
		st.UsageCount = v
	}
	if v, err := strconv.ParseInt(vals["cooldown_start"], 10, 64); err == nil {
		st.CooldownStart = v
	}
	return st
}
