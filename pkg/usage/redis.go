package usage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps per-key usage counters in one Redis hash per key:
//
//	usage:<key_id> → {<model>:input_tokens, <model>:output_tokens,
//	                  requests, last_used}
//
// HINCRBY makes every bump atomic; concurrent gateways never lose counts.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to redisURL and verifies the connection.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// Close releases the connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func usageKey(keyID string) string {
	return "usage:" + keyID
}

// IncrUsage bumps both token counters for one key and model in a single
// pipelined round trip.
func (s *RedisStore) IncrUsage(ctx context.Context, keyID, model string, inputTokens, outputTokens int) error {
	pipe := s.client.Pipeline()
	pipe.HIncrBy(ctx, usageKey(keyID), model+":input_tokens", int64(inputTokens))
	pipe.HIncrBy(ctx, usageKey(keyID), model+":output_tokens", int64(outputTokens))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to increment usage counters: %w", err)
	}
	return nil
}

// IncrRequests bumps the per-key request counter.
func (s *RedisStore) IncrRequests(ctx context.Context, keyID string) error {
	if err := s.client.HIncrBy(ctx, usageKey(keyID), "requests", 1).Err(); err != nil {
		return fmt.Errorf("failed to increment request counter: %w", err)
	}
	return nil
}

// TouchLastUsed stamps the key's last-used time as a unix timestamp.
func (s *RedisStore) TouchLastUsed(ctx context.Context, keyID string) error {
	stamp := strconv.FormatInt(time.Now().Unix(), 10)
	if err := s.client.HSet(ctx, usageKey(keyID), "last_used", stamp).Err(); err != nil {
		return fmt.Errorf("failed to stamp last-used: %w", err)
	}
	return nil
}
