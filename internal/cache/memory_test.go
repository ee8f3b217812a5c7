package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/research-answer-service/internal/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func samplePapers() []domain.PaperRecord {
	return []domain.PaperRecord{
		{ID: "1", Title: "Gene drives", Authors: []string{"A Smith"}, Year: "2020", Source: domain.SourceTypePubMed},
		{ID: "2", Title: "Base editing", Authors: []string{"B Jones"}, Year: "2021", Source: domain.SourceTypeArXiv},
	}
}

func TestMemoryCache(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("returns copies", func(t *testing.T) {
		c := NewMemoryCache()
		in := samplePapers()
		require.NoError(t, c.Put(ctx, "q", in, time.Hour))

		in[0].Title = "mutated after put"
		in[0].Authors[0] = "mutated"

		got, ok, err := c.Get(ctx, "q")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "Gene drives", got[0].Title)
		assert.Equal(t, "A Smith", got[0].Authors[0])

		got[1].Title = "mutated after get"
		again, _, _ := c.Get(ctx, "q")
		assert.Equal(t, "Base editing", again[1].Title)
	})

	t.Run("expires by clock", func(t *testing.T) {
		clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
		c := NewMemoryCache().WithClock(clock.Now)
		require.NoError(t, c.Put(ctx, "q", samplePapers(), time.Minute))

		clock.Advance(59 * time.Second)
		_, ok, _ := c.Get(ctx, "q")
		assert.True(t, ok)

		clock.Advance(time.Second)
		_, ok, _ = c.Get(ctx, "q")
		assert.False(t, ok)
	})

	t.Run("last writer wins", func(t *testing.T) {
		c := NewMemoryCache()
		require.NoError(t, c.Put(ctx, "q", samplePapers(), time.Hour))
		require.NoError(t, c.Put(ctx, "q", samplePapers()[:1], time.Hour))
		got, ok, _ := c.Get(ctx, "q")
		require.True(t, ok)
		assert.Len(t, got, 1)
	})

	t.Run("invalidate expired", func(t *testing.T) {
		clock := &fakeClock{now: time.Unix(0, 0)}
		c := NewMemoryCache().WithClock(clock.Now)
		require.NoError(t, c.Put(ctx, "short", samplePapers(), time.Second))
		require.NoError(t, c.Put(ctx, "long", samplePapers(), time.Hour))

		clock.Advance(2 * time.Second)
		removed, err := c.InvalidateExpired(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, removed)
		assert.Equal(t, 1, c.Len())
	})

	t.Run("concurrent access", func(t *testing.T) {
		c := NewMemoryCache()
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = c.Put(ctx, "q", samplePapers(), time.Hour)
				_, _, _ = c.Get(ctx, "q")
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, c.Len())
	})
}

func TestStartJanitor(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(0, 0)}
	c := NewMemoryCache().WithClock(clock.Now)
	require.NoError(t, c.Put(context.Background(), "q", samplePapers(), time.Second))
	clock.Advance(time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := StartJanitor(ctx, c, 5*time.Millisecond, zerolog.Nop())

	require.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}

func TestNormalizeKey(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "what is crispr?", NormalizeKey("  What is CRISPR?\n"))
	assert.Equal(t, NormalizeKey("Gene Drives"), NormalizeKey("gene drives "))
}
