package db

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// DefaultProcessedKey is the Redis set holding processed document URLs.
const DefaultProcessedKey = "gazette:processed"

// RedisConfig holds configuration required to connect to Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Key is the set name; DefaultProcessedKey if empty.
	Key string
}

// RedisLedger records processed document URLs in a Redis set.
type RedisLedger struct {
	client *redis.Client
	key    string
}

// NewRedisLedger constructs a ledger; call Connect before use.
func NewRedisLedger(cfg RedisConfig) *RedisLedger {
	key := cfg.Key
	if key == "" {
		key = DefaultProcessedKey
	}
	return &RedisLedger{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		key: key,
	}
}

// NewRedisLedgerFromClient wraps an existing client.
func NewRedisLedgerFromClient(client *redis.Client, key string) *RedisLedger {
	if key == "" {
		key = DefaultProcessedKey
	}
	return &RedisLedger{client: client, key: key}
}

// Connect verifies connectivity.
func (l *RedisLedger) Connect(ctx context.Context) error {
	if err := l.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (l *RedisLedger) Close() error {
	return l.client.Close()
}

// IsProcessed reports whether url is in the set.
func (l *RedisLedger) IsProcessed(ctx context.Context, url string) (bool, error) {
	ok, err := l.client.SIsMember(ctx, l.key, url).Result()
	if err != nil {
		return false, fmt.Errorf("redis sismember: %w", err)
	}
	return ok, nil
}

// MarkProcessed adds url to the set.
func (l *RedisLedger) MarkProcessed(ctx context.Context, url string) error {
	if err := l.client.SAdd(ctx, l.key, url).Err(); err != nil {
		return fmt.Errorf("redis sadd: %w", err)
	}
	return nil
}

// GetProcessedURLs returns every URL in the set.
func (l *RedisLedger) GetProcessedURLs(ctx context.Context) (map[string]bool, error) {
	members, err := l.client.SMembers(ctx, l.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers: %w", err)
	}
	set := make(map[string]bool, len(members))
	for _, m := range members {
		set[m] = true
	}
	return set, nil
}
