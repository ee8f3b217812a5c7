package cache

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/research-answer-service/internal/domain"
)

type memoryEntry struct {
	papers    []domain.PaperRecord
	expiresAt time.Time
}

// MemoryCache is an in-process QueryCache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

var _ QueryCache = (*MemoryCache)(nil)

// NewMemoryCache creates an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// WithClock replaces the clock used for expiry. Intended for tests.
func (c *MemoryCache) WithClock(now func() time.Time) *MemoryCache {
	c.now = now
	return c
}

// Get returns a copy of the entry for key if it has not expired.
func (c *MemoryCache) Get(_ context.Context, key string) ([]domain.PaperRecord, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || !c.now().Before(entry.expiresAt) {
		return nil, false, nil
	}
	return domain.ClonePapers(entry.papers), true, nil
}

// Put stores a copy of papers under key.
func (c *MemoryCache) Put(_ context.Context, key string, papers []domain.PaperRecord, ttl time.Duration) error {
	entry := memoryEntry{
		papers:    domain.ClonePapers(papers),
		expiresAt: c.now().Add(ttl),
	}

	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
	return nil
}

// InvalidateExpired drops every expired entry.
func (c *MemoryCache) InvalidateExpired(_ context.Context) (int, error) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, entry := range c.entries {
		if !now.Before(entry.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored entries, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// StartJanitor invalidates expired entries every interval until ctx is done.
// It returns a channel that is closed when the janitor exits.
func StartJanitor(ctx context.Context, c QueryCache, interval time.Duration, logger zerolog.Logger) <-chan struct{} {
	done := make(chan struct{})
	if interval <= 0 {
		close(done)
		return done
	}

	go func() {
		defer close(done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := c.InvalidateExpired(ctx)
				if err != nil {
					logger.Warn().Err(err).Msg("cache janitor failed")
					continue
				}
				if removed > 0 {
					logger.Debug().Int("removed", removed).Msg("expired cache entries removed")
				}
			}
		}
	}()

	return done
}
