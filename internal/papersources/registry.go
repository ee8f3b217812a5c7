package papersources

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/helixir/research-answer-service/internal/domain"
)

// DefaultMaxConcurrentSearches bounds SearchTerms when no limit is configured.
const DefaultMaxConcurrentSearches = 16

// DefaultCallTimeout bounds a single source search, retries included.
const DefaultCallTimeout = 30 * time.Second

// SearchRecorder receives per-call search metrics. observability.Metrics
// satisfies it.
type SearchRecorder interface {
	RecordSearchStarted(source string)
	RecordSearchCompleted(source string, paperCount int, durationSeconds float64)
	RecordSearchFailed(source string, durationSeconds float64)
}

// SourceResult holds the result of one (term, source) search call.
type SourceResult struct {
	// Source identifies which paper source provided the result.
	Source domain.SourceType

	// Term is the query term that was searched.
	Term string

	// Result contains the search results if the search succeeded.
	// Will be nil if Error is non-nil.
	Result *SearchResult

	// Error contains the error if the search failed.
	// Will be nil if Result is non-nil.
	Error error

	// Duration is the wall time of the call.
	Duration time.Duration
}

// Registry manages paper sources and coordinates concurrent searches.
// Sources are kept in registration order so fan-out results are deterministic.
type Registry struct {
	mu             sync.RWMutex
	sources        map[domain.SourceType]PaperSource
	order          []domain.SourceType
	maxConcurrency int
	callTimeout    time.Duration
	recorder       SearchRecorder
}

// NewRegistry creates a new source registry with an empty source map.
func NewRegistry() *Registry {
	return &Registry{
		sources:        make(map[domain.SourceType]PaperSource),
		maxConcurrency: DefaultMaxConcurrentSearches,
		callTimeout:    DefaultCallTimeout,
	}
}

// SetMaxConcurrency bounds the number of in-flight search calls.
// Values below 1 are ignored.
func (r *Registry) SetMaxConcurrency(n int) {
	if n < 1 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.maxConcurrency = n
}

// SetCallTimeout bounds every source search made by SearchTerms.
// Values below or equal to zero are ignored.
func (r *Registry) SetCallTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callTimeout = d
}

// SetRecorder sets the recorder notified around every search call.
func (r *Registry) SetRecorder(recorder SearchRecorder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recorder = recorder
}

// Register adds a source to the registry.
// If a source with the same type already exists, it is replaced in place.
func (r *Registry) Register(source PaperSource) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := source.SourceType()
	if _, exists := r.sources[st]; !exists {
		r.order = append(r.order, st)
	}
	r.sources[st] = source
}

// EnabledSources returns only enabled sources, in registration order.
func (r *Registry) EnabledSources() []PaperSource {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sources := make([]PaperSource, 0, len(r.order))
	for _, st := range r.order {
		if s := r.sources[st]; s.IsEnabled() {
			sources = append(sources, s)
		}
	}
	return sources
}

// SearchTerms runs every term against every enabled source concurrently.
//
// Exactly one SourceResult is returned per (term, source) call, ordered by
// term first and source registration order second. A failing call is
// recorded in its SourceResult and never cancels its siblings. Every call
// runs under its own call timeout. Context cancellation surfaces as
// per-call errors.
func (r *Registry) SearchTerms(ctx context.Context, terms []string, perCallLimit int) []SourceResult {
	sources := r.EnabledSources()
	if len(sources) == 0 || len(terms) == 0 {
		return nil
	}

	r.mu.RLock()
	limit := r.maxConcurrency
	timeout := r.callTimeout
	recorder := r.recorder
	r.mu.RUnlock()

	results := make([]SourceResult, len(terms)*len(sources))

	// Plain errgroup.Group: a failed call must not cancel the others.
	var g errgroup.Group
	g.SetLimit(limit)

	for ti, term := range terms {
		for si, source := range sources {
			idx := ti*len(sources) + si
			g.Go(func() error {
				results[idx] = searchOne(ctx, source, term, perCallLimit, timeout, recorder)
				return nil
			})
		}
	}
	_ = g.Wait()

	return results
}

// searchOne runs a single bounded search and records its outcome.
func searchOne(ctx context.Context, source PaperSource, term string, limit int, timeout time.Duration, recorder SearchRecorder) SourceResult {
	name := string(source.SourceType())
	if recorder != nil {
		recorder.RecordSearchStarted(name)
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	res, err := source.Search(callCtx, SearchParams{Query: term, MaxResults: limit})
	elapsed := time.Since(start)
	switch {
	case err != nil:
		res = nil
		if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			err = domain.NewSourceUnavailableError(name, fmt.Errorf("search timed out after %s: %w", timeout, err))
		}
	case res == nil:
		res = &SearchResult{Papers: []domain.PaperRecord{}, Source: source.SourceType()}
	}

	if recorder != nil {
		if err != nil {
			recorder.RecordSearchFailed(name, elapsed.Seconds())
		} else {
			recorder.RecordSearchCompleted(name, len(res.Papers), elapsed.Seconds())
		}
	}

	return SourceResult{
		Source:   source.SourceType(),
		Term:     term,
		Result:   res,
		Error:    err,
		Duration: elapsed,
	}
}
