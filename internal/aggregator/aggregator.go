// Package aggregator gathers papers for a question from every enabled
// academic source, removes duplicates, balances the sources and ranks the
// result.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/research-answer-service/internal/cache"
	"github.com/helixir/research-answer-service/internal/dedup"
	"github.com/helixir/research-answer-service/internal/domain"
	"github.com/helixir/research-answer-service/internal/observability"
	"github.com/helixir/research-answer-service/internal/papersources"
)

// Default values for the aggregator.
const (
	DefaultTargetCount = 20
	DefaultCacheTTL    = time.Hour
)

// TermExpander turns a query into search terms.
type TermExpander interface {
	Expand(ctx context.Context, query string) []string
}

// Searcher fans terms out to the paper sources.
type Searcher interface {
	SearchTerms(ctx context.Context, terms []string, perCallLimit int) []papersources.SourceResult
}

// Recorder receives aggregation metrics. It is satisfied by
// observability.Metrics. Per-call search metrics are recorded by the
// searcher.
type Recorder interface {
	RecordPaperDuplicates(count int)
	RecordCacheLookup(hit bool)
}

// Config holds the aggregator settings.
type Config struct {
	// CacheTTL is how long a ranked list stays cached.
	CacheTTL time.Duration
}

// Aggregator implements the search, dedup, balance and rank sequence.
type Aggregator struct {
	expander TermExpander
	searcher Searcher
	cache    cache.QueryCache
	recorder Recorder
	cfg      Config
	now      func() time.Time
	logger   zerolog.Logger
}

// New creates an Aggregator. queryCache and recorder may be nil.
func New(expander TermExpander, searcher Searcher, queryCache cache.QueryCache, recorder Recorder, cfg Config, logger zerolog.Logger) *Aggregator {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	return &Aggregator{
		expander: expander,
		searcher: searcher,
		cache:    queryCache,
		recorder: recorder,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger.With().Str("component", "aggregator").Logger(),
	}
}

// WithClock replaces the clock used for recency scoring. Intended for tests.
func (a *Aggregator) WithClock(now func() time.Time) *Aggregator {
	a.now = now
	return a
}

// Aggregate returns the ranked papers for query.
//
// An empty list with a nil error means the sources answered but found
// nothing. If every source call failed the error matches
// domain.ErrSourceUnavailable.
func (a *Aggregator) Aggregate(ctx context.Context, query string, targetCount int) ([]domain.PaperRecord, error) {
	if targetCount <= 0 {
		targetCount = DefaultTargetCount
	}

	key := cache.NormalizeKey(query)
	if papers, ok := a.lookup(ctx, key); ok {
		return papers, nil
	}

	terms := a.expander.Expand(ctx, query)
	if len(terms) == 0 {
		terms = []string{query}
	}
	perCall := ceilDiv(targetCount, len(terms))

	results := a.searcher.SearchTerms(ctx, terms, perCall)

	var all []domain.PaperRecord
	failed, abandoned := 0, 0
	for _, r := range results {
		if r.Error != nil {
			failed++
			if errors.Is(r.Error, context.Canceled) {
				abandoned++
			}
			sourceLogger := observability.WithSourceContext(a.logger, string(r.Source), r.Term)
			sourceLogger.Warn().Err(r.Error).Dur("duration", r.Duration).Msg("source search failed")
			continue
		}
		if r.Result == nil {
			continue
		}
		all = append(all, r.Result.Papers...)
	}

	if len(results) == 0 || failed == len(results) {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("aggregating papers: %w", err)
		}
		return nil, domain.NewSourceUnavailableError("all sources",
			fmt.Errorf("total search failure: %d of %d calls failed", failed, len(results)))
	}

	unique := dedup.Deduplicate(all)
	if removed := len(all) - len(unique); removed > 0 && a.recorder != nil {
		a.recorder.RecordPaperDuplicates(removed)
	}

	balanced := Balance(unique, targetCount)
	ranked := Rank(balanced, query, a.now().Year())

	a.logger.Info().
		Int("terms", len(terms)).
		Int("calls", len(results)).
		Int("failed_calls", failed).
		Int("raw", len(all)).
		Int("unique", len(unique)).
		Int("ranked", len(ranked)).
		Msg("papers aggregated")

	// Empty results are not cached so a transient dry spell is not remembered.
	// Nor are lists from an abandoned request, which may be missing sources.
	if ctx.Err() != nil || abandoned > 0 {
		a.logger.Debug().Int("abandoned_calls", abandoned).Msg("request abandoned; ranked papers not cached")
		return ranked, nil
	}
	if a.cache != nil && len(ranked) > 0 {
		if err := a.cache.Put(ctx, key, ranked, a.cfg.CacheTTL); err != nil {
			a.logger.Warn().Err(err).Msg("failed to cache ranked papers")
		}
	}

	return ranked, nil
}

func (a *Aggregator) lookup(ctx context.Context, key string) ([]domain.PaperRecord, bool) {
	if a.cache == nil {
		return nil, false
	}

	papers, ok, err := a.cache.Get(ctx, key)
	if err != nil {
		a.logger.Warn().Err(err).Msg("cache lookup failed")
		ok = false
	}
	if a.recorder != nil {
		a.recorder.RecordCacheLookup(ok)
	}
	if ok {
		a.logger.Debug().Str("key", key).Int("papers", len(papers)).Msg("cache hit")
	}
	return papers, ok
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return a
	}
	return (a + b - 1) / b
}
