// Package papersources provides interfaces and types for academic paper source clients.
//
// Each academic database (Semantic Scholar, arXiv, PubMed, CORE) implements the
// PaperSource interface and normalizes its own response schema into
// domain.PaperRecord, so the aggregator can fan a query out to every source
// through one API.
//
// Example usage:
//
//	source := semanticscholar.New(cfg)
//	result, err := source.Search(ctx, papersources.SearchParams{
//		Query:      "CRISPR gene editing",
//		MaxResults: 10,
//	})
package papersources

import (
	"context"
	"time"

	"github.com/helixir/research-answer-service/internal/domain"
)

// SearchParams defines the parameters for searching academic papers.
type SearchParams struct {
	// Query is the search query string (required).
	Query string

	// MaxResults caps the number of papers returned by one call.
	// A value of 0 uses the source's default limit.
	MaxResults int
}

// SearchResult contains the results from a paper source search operation.
type SearchResult struct {
	// Papers contains normalized records. Never nil on success.
	Papers []domain.PaperRecord

	// TotalResults is the provider's estimate of all matching papers.
	TotalResults int

	// Source identifies which paper source provided these results.
	Source domain.SourceType

	// SearchDuration is the time taken to execute the search,
	// including network latency, retries and response parsing.
	SearchDuration time.Duration
}

// PaperSource defines the interface that all paper source clients must implement.
type PaperSource interface {
	// Search queries the paper source for papers matching the given parameters.
	//
	// Implementations must:
	//   - Respect context cancellation
	//   - Normalize every record with domain.PaperRecord.Normalize
	//   - Report provider failures as domain.SourceUnavailableError
	Search(ctx context.Context, params SearchParams) (*SearchResult, error)

	// SourceType returns the type identifier for this paper source.
	SourceType() domain.SourceType

	// Name returns a human-readable name for this paper source.
	Name() string

	// IsEnabled returns whether this paper source is currently enabled.
	// A source may be disabled by configuration or a missing API key.
	IsEnabled() bool
}
