package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "parimal:session:"

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisStore keeps each session as a JSON value whose key expires after ttl.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisClient(cfg RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, id string) (*State, error) {
	raw, err := s.client.Get(ctx, redisKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return New(id), nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get session: %w", err)
	}
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		// an unreadable value is treated like an expired session
		return New(id), nil
	}
	st.ID = id
	return &st, nil
}

func (s *RedisStore) Save(ctx context.Context, st *State) error {
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, redisKeyPrefix+st.ID, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, redisKeyPrefix+id).Err()
}

func (s *RedisStore) Close() error { return s.client.Close() }
