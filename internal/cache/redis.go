package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/helixir/research-answer-service/internal/domain"
)

// DefaultKeyPrefix namespaces query entries in a shared Redis.
const DefaultKeyPrefix = "research:query:"

// RedisConfig holds the connection parameters for the Redis backend.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	PoolSize  int
	KeyPrefix string
}

// NewRedisClient creates a go-redis client for the cache backend.
func NewRedisClient(cfg RedisConfig) *redis.Client {
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     poolSize,
	})
}

// RedisCache is a QueryCache shared across service replicas. Entries are
// JSON encoded and expire through Redis TTLs.
type RedisCache struct {
	client *redis.Client
	prefix string
}

var _ QueryCache = (*RedisCache)(nil)

// NewRedisCache creates a Redis-backed cache. An empty prefix uses DefaultKeyPrefix.
func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisCache{client: client, prefix: prefix}
}

// Get loads and decodes the entry for key.
func (c *RedisCache) Get(ctx context.Context, key string) ([]domain.PaperRecord, bool, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var papers []domain.PaperRecord
	if err := json.Unmarshal(data, &papers); err != nil {
		return nil, false, fmt.Errorf("decoding cached papers: %w", err)
	}
	return papers, true, nil
}

// Put encodes papers and stores them with the given TTL.
func (c *RedisCache) Put(ctx context.Context, key string, papers []domain.PaperRecord, ttl time.Duration) error {
	if papers == nil {
		papers = []domain.PaperRecord{}
	}
	data, err := json.Marshal(papers)
	if err != nil {
		return fmt.Errorf("encoding papers: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// InvalidateExpired is a no-op: Redis evicts expired keys itself.
func (c *RedisCache) InvalidateExpired(context.Context) (int, error) {
	return 0, nil
}

// Ping checks the connection, for readiness probes.
func (c *RedisCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}
