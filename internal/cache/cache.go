// Package cache stores ranked paper lists per normalized query so repeated
// questions skip the source fan-out.
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/helixir/research-answer-service/internal/domain"
)

// Backend names accepted by New.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// QueryCache caches ranked paper lists keyed by normalized query.
type QueryCache interface {
	// Get returns a copy of the cached list. The boolean is false on a miss
	// or when the entry has expired.
	Get(ctx context.Context, key string) ([]domain.PaperRecord, bool, error)

	// Put stores a copy of papers under key for ttl. The last writer wins.
	Put(ctx context.Context, key string, papers []domain.PaperRecord, ttl time.Duration) error

	// InvalidateExpired removes expired entries and returns how many were removed.
	InvalidateExpired(ctx context.Context) (int, error)
}

// NormalizeKey lower-cases and trims a query so that trivially different
// spellings of the same question share an entry.
func NormalizeKey(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

// Config selects and configures the cache backend.
// This is defined in the cache package to avoid importing the config package.
type Config struct {
	Backend string
	Redis   RedisConfig
}

// New creates the configured cache. The redis client is only used for the
// redis backend and must be non-nil in that case.
func New(cfg Config, client *redis.Client) (QueryCache, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemoryCache(), nil
	case BackendRedis:
		if client == nil {
			return nil, fmt.Errorf("redis cache backend requires a redis client")
		}
		return NewRedisCache(client, cfg.Redis.KeyPrefix), nil
	default:
		return nil, fmt.Errorf("unsupported cache backend: %q", cfg.Backend)
	}
}
