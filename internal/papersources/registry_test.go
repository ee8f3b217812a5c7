package papersources

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/research-answer-service/internal/domain"
)

// mockPaperSource is a mock implementation of PaperSource for testing.
type mockPaperSource struct {
	sourceType domain.SourceType
	name       string
	enabled    bool

	searchFunc func(ctx context.Context, params SearchParams) (*SearchResult, error)

	searchCalls atomic.Int32
}

func newMockPaperSource(sourceType domain.SourceType, enabled bool) *mockPaperSource {
	return &mockPaperSource{
		sourceType: sourceType,
		name:       string(sourceType),
		enabled:    enabled,
	}
}

func (m *mockPaperSource) Search(ctx context.Context, params SearchParams) (*SearchResult, error) {
	m.searchCalls.Add(1)
	if m.searchFunc != nil {
		return m.searchFunc(ctx, params)
	}
	return &SearchResult{
		Papers: []domain.PaperRecord{{Title: params.Query + " via " + m.name}},
		Source: m.sourceType,
	}, nil
}

func (m *mockPaperSource) SourceType() domain.SourceType { return m.sourceType }
func (m *mockPaperSource) Name() string                  { return m.name }
func (m *mockPaperSource) IsEnabled() bool               { return m.enabled }

func TestRegistry_Register(t *testing.T) {
	t.Run("keeps registration order", func(t *testing.T) {
		r := NewRegistry()
		r.Register(newMockPaperSource(domain.SourceTypePubMed, true))
		r.Register(newMockPaperSource(domain.SourceTypeArXiv, true))
		r.Register(newMockPaperSource(domain.SourceTypeSemanticScholar, true))

		all := r.EnabledSources()
		require.Len(t, all, 3)
		assert.Equal(t, domain.SourceTypePubMed, all[0].SourceType())
		assert.Equal(t, domain.SourceTypeArXiv, all[1].SourceType())
		assert.Equal(t, domain.SourceTypeSemanticScholar, all[2].SourceType())
	})

	t.Run("replaces in place", func(t *testing.T) {
		r := NewRegistry()
		r.Register(newMockPaperSource(domain.SourceTypePubMed, true))
		r.Register(newMockPaperSource(domain.SourceTypeArXiv, true))
		replacement := newMockPaperSource(domain.SourceTypePubMed, true)
		r.Register(replacement)

		all := r.EnabledSources()
		require.Len(t, all, 2)
		assert.Same(t, replacement, all[0])
		assert.Equal(t, domain.SourceTypeArXiv, all[1].SourceType())
	})

	t.Run("enabled sources filters disabled", func(t *testing.T) {
		r := NewRegistry()
		r.Register(newMockPaperSource(domain.SourceTypePubMed, true))
		r.Register(newMockPaperSource(domain.SourceTypeCORE, false))

		enabled := r.EnabledSources()
		require.Len(t, enabled, 1)
		assert.Equal(t, domain.SourceTypePubMed, enabled[0].SourceType())
	})
}

func TestRegistry_SearchTerms(t *testing.T) {
	t.Run("one result per term and source in stable order", func(t *testing.T) {
		r := NewRegistry()
		s2 := newMockPaperSource(domain.SourceTypeSemanticScholar, true)
		ax := newMockPaperSource(domain.SourceTypeArXiv, true)
		off := newMockPaperSource(domain.SourceTypeCORE, false)
		r.Register(s2)
		r.Register(ax)
		r.Register(off)

		results := r.SearchTerms(context.Background(), []string{"a", "b"}, 5)

		require.Len(t, results, 4)
		assert.Equal(t, "a", results[0].Term)
		assert.Equal(t, domain.SourceTypeSemanticScholar, results[0].Source)
		assert.Equal(t, "a", results[1].Term)
		assert.Equal(t, domain.SourceTypeArXiv, results[1].Source)
		assert.Equal(t, "b", results[2].Term)
		assert.Equal(t, "b", results[3].Term)
		assert.Equal(t, "b via arXiv", results[3].Result.Papers[0].Title)
		assert.Equal(t, int32(0), off.searchCalls.Load())
	})

	t.Run("passes the per call limit", func(t *testing.T) {
		r := NewRegistry()
		src := newMockPaperSource(domain.SourceTypePubMed, true)
		var got atomic.Int32
		src.searchFunc = func(_ context.Context, p SearchParams) (*SearchResult, error) {
			got.Store(int32(p.MaxResults))
			return &SearchResult{Papers: []domain.PaperRecord{}}, nil
		}
		r.Register(src)

		r.SearchTerms(context.Background(), []string{"q"}, 7)
		assert.Equal(t, int32(7), got.Load())
	})

	t.Run("failure does not cancel siblings", func(t *testing.T) {
		r := NewRegistry()
		failing := newMockPaperSource(domain.SourceTypePubMed, true)
		failing.searchFunc = func(context.Context, SearchParams) (*SearchResult, error) {
			return nil, domain.NewSourceUnavailableError("PubMed", errors.New("boom"))
		}
		slow := newMockPaperSource(domain.SourceTypeArXiv, true)
		slow.searchFunc = func(ctx context.Context, p SearchParams) (*SearchResult, error) {
			select {
			case <-time.After(30 * time.Millisecond):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			return &SearchResult{Papers: []domain.PaperRecord{{Title: "slow"}}}, nil
		}
		r.Register(failing)
		r.Register(slow)

		results := r.SearchTerms(context.Background(), []string{"q"}, 3)

		require.Len(t, results, 2)
		assert.True(t, errors.Is(results[0].Error, domain.ErrSourceUnavailable))
		require.NoError(t, results[1].Error)
		assert.Equal(t, "slow", results[1].Result.Papers[0].Title)
	})

	t.Run("bounded concurrency", func(t *testing.T) {
		r := NewRegistry()
		r.SetMaxConcurrency(2)

		var inFlight, peak atomic.Int32
		for _, st := range []domain.SourceType{domain.SourceTypePubMed, domain.SourceTypeArXiv, domain.SourceTypeCORE, domain.SourceTypeSemanticScholar} {
			src := newMockPaperSource(st, true)
			src.searchFunc = func(context.Context, SearchParams) (*SearchResult, error) {
				n := inFlight.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				inFlight.Add(-1)
				return &SearchResult{}, nil
			}
			r.Register(src)
		}

		results := r.SearchTerms(context.Background(), []string{"x", "y"}, 1)
		assert.Len(t, results, 8)
		assert.LessOrEqual(t, peak.Load(), int32(2))
	})

	t.Run("no sources or terms", func(t *testing.T) {
		r := NewRegistry()
		assert.Nil(t, r.SearchTerms(context.Background(), []string{"q"}, 1))

		r.Register(newMockPaperSource(domain.SourceTypePubMed, true))
		assert.Nil(t, r.SearchTerms(context.Background(), nil, 1))
	})

	t.Run("call timeout bounds a hanging source", func(t *testing.T) {
		r := NewRegistry()
		r.SetCallTimeout(50 * time.Millisecond)
		hanging := newMockPaperSource(domain.SourceTypeCORE, true)
		hanging.searchFunc = func(ctx context.Context, _ SearchParams) (*SearchResult, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		r.Register(hanging)
		r.Register(newMockPaperSource(domain.SourceTypeArXiv, true))

		start := time.Now()
		results := r.SearchTerms(context.Background(), []string{"q"}, 3)

		assert.Less(t, time.Since(start), 2*time.Second)
		require.Len(t, results, 2)
		assert.True(t, errors.Is(results[0].Error, domain.ErrSourceUnavailable))
		assert.True(t, errors.Is(results[0].Error, context.DeadlineExceeded))
		assert.Nil(t, results[0].Result)
		assert.GreaterOrEqual(t, results[0].Duration, 50*time.Millisecond)
		require.NoError(t, results[1].Error)
	})

	t.Run("caller cancellation is not a source timeout", func(t *testing.T) {
		r := NewRegistry()
		src := newMockPaperSource(domain.SourceTypePubMed, true)
		src.searchFunc = func(ctx context.Context, _ SearchParams) (*SearchResult, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		r.Register(src)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		results := r.SearchTerms(ctx, []string{"q"}, 3)

		require.Len(t, results, 1)
		assert.True(t, errors.Is(results[0].Error, context.Canceled))
		assert.False(t, errors.Is(results[0].Error, domain.ErrSourceUnavailable))
	})

	t.Run("records every call", func(t *testing.T) {
		r := NewRegistry()
		rec := &searchRecorder{}
		r.SetRecorder(rec)
		failing := newMockPaperSource(domain.SourceTypePubMed, true)
		failing.searchFunc = func(context.Context, SearchParams) (*SearchResult, error) {
			time.Sleep(5 * time.Millisecond)
			return nil, domain.NewSourceUnavailableError("PubMed", errors.New("boom"))
		}
		r.Register(failing)
		r.Register(newMockPaperSource(domain.SourceTypeArXiv, true))

		r.SearchTerms(context.Background(), []string{"a", "b"}, 3)

		rec.mu.Lock()
		defer rec.mu.Unlock()
		assert.Equal(t, 4, rec.started)
		assert.Equal(t, 2, rec.completed)
		assert.Equal(t, 2, rec.papers)
		require.Len(t, rec.failedDurations, 2)
		for _, d := range rec.failedDurations {
			assert.Greater(t, d, 0.0)
		}
	})
}

type searchRecorder struct {
	mu              sync.Mutex
	started         int
	completed       int
	papers          int
	failedDurations []float64
}

func (r *searchRecorder) RecordSearchStarted(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started++
}

func (r *searchRecorder) RecordSearchCompleted(_ string, papers int, _ float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed++
	r.papers += papers
}

func (r *searchRecorder) RecordSearchFailed(_ string, d float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failedDurations = append(r.failedDurations, d)
}
