package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ashureev/emojirooms/internal/domain"
)

// RedisPairStore is a Redis-backed PairStore. Expiry is delegated to Redis.
type RedisPairStore struct {
	client *redis.Client
}

// RedisConfig holds the connection settings for RedisPairStore.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisPairStore connects to Redis and verifies the connection.
func NewRedisPairStore(ctx context.Context, cfg RedisConfig) (*RedisPairStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisPairStore{client: client}, nil
}

// RecordPair stores rec under pair:<roomId> with ttl.
func (s *RedisPairStore) RecordPair(ctx context.Context, rec domain.PairRecord, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal pair record: %w", err)
	}
	if err := s.client.Set(ctx, domain.PairRecordKey(rec.RoomID), data, ttl).Err(); err != nil {
		return fmt.Errorf("save pair record to redis: %w", err)
	}
	return nil
}

// GetPairRecord returns the record for roomID, or nil, nil once it expired.
func (s *RedisPairStore) GetPairRecord(ctx context.Context, roomID string) (*domain.PairRecord, error) {
	data, err := s.client.Get(ctx, domain.PairRecordKey(roomID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pair record from redis: %w", err)
	}

	var rec domain.PairRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal pair record: %w", err)
	}
	return &rec, nil
}

// Ping verifies the Redis connection.
func (s *RedisPairStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (s *RedisPairStore) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close redis: %w", err)
	}
	return nil
}
