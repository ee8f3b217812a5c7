package semanticscholar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/helixir/research-answer-service/internal/domain"
	"github.com/helixir/research-answer-service/internal/papersources"
)

const (
	// DefaultBaseURL is the default base URL for the Semantic Scholar Graph API.
	DefaultBaseURL = "https://api.semanticscholar.org/graph/v1"

	// DefaultRateLimit is the default request rate. Unauthenticated use is
	// throttled hard upstream, so 429s are expected and retried.
	DefaultRateLimit = 10.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 10

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults caps a single search call.
	DefaultMaxResults = 100

	// paperPageURL is the public landing page used when no other link exists.
	paperPageURL = "https://www.semanticscholar.org/paper/"

	apiKeyHeader = "x-api-key"

	paperFields = "paperId,title,abstract,year,authors,citationCount,referenceCount,url,externalIds"

	sourceName = "Semantic Scholar"
)

// Config contains configuration options for the Semantic Scholar client.
type Config struct {
	// BaseURL defaults to DefaultBaseURL if empty.
	BaseURL string

	// APIKey is the optional API key for authenticated requests.
	APIKey string

	// Timeout defaults to DefaultTimeout if zero.
	Timeout time.Duration

	// RateLimit defaults to DefaultRateLimit if zero.
	RateLimit float64

	// BurstSize defaults to DefaultBurstSize if zero.
	BurstSize int

	// MaxResults defaults to DefaultMaxResults if zero.
	MaxResults int

	// MaxRetries bounds retries of 429 and 5xx responses.
	MaxRetries int

	// RetryDelay is the base of the linear retry backoff.
	RetryDelay time.Duration

	// Enabled indicates whether this source is enabled.
	Enabled bool

	// RateLimitRecorder is notified of 429 responses. Optional.
	RateLimitRecorder papersources.RateLimitRecorder
}

// Client implements the papersources.PaperSource interface for Semantic Scholar.
type Client struct {
	httpClient *papersources.HTTPClient
	config     Config
}

// Compile-time check that Client implements papersources.PaperSource.
var _ papersources.PaperSource = (*Client)(nil)

// NewClient creates a new Semantic Scholar client with the given configuration.
// If httpClient is nil, a new one will be created with the configuration settings.
func NewClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = DefaultRateLimit
	}
	if cfg.BurstSize == 0 {
		cfg.BurstSize = DefaultBurstSize
	}
	if cfg.MaxResults == 0 {
		cfg.MaxResults = DefaultMaxResults
	}

	if httpClient == nil {
		httpClient = papersources.NewHTTPClient(papersources.HTTPClientConfig{
			Source:            sourceName,
			Timeout:           cfg.Timeout,
			RateLimit:         cfg.RateLimit,
			BurstSize:         cfg.BurstSize,
			MaxRetries:        cfg.MaxRetries,
			RetryDelay:        cfg.RetryDelay,
			APIKey:            cfg.APIKey,
			APIKeyHeader:      apiKeyHeader,
			RateLimitRecorder: cfg.RateLimitRecorder,
		})
	}

	return &Client{
		httpClient: httpClient,
		config:     cfg,
	}
}

// Search queries Semantic Scholar for papers matching the given parameters.
func (c *Client) Search(ctx context.Context, params papersources.SearchParams) (*papersources.SearchResult, error) {
	start := time.Now()

	searchURL, err := c.buildSearchURL(params)
	if err != nil {
		return nil, fmt.Errorf("building search URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if err := c.handleErrorResponse(resp); err != nil {
		return nil, err
	}

	// Limit body to 10MB to prevent resource exhaustion.
	var searchResp SearchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&searchResp); err != nil {
		return nil, domain.NewSourceUnavailableError(sourceName, fmt.Errorf("decoding response: %w", err))
	}

	return &papersources.SearchResult{
		Papers:         convertToRecords(searchResp.Data),
		TotalResults:   searchResp.Total,
		Source:         domain.SourceTypeSemanticScholar,
		SearchDuration: time.Since(start),
	}, nil
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeSemanticScholar
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// IsEnabled returns whether this source is currently enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

func (c *Client) buildSearchURL(params papersources.SearchParams) (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}

	searchURL := baseURL.JoinPath("paper", "search")

	q := searchURL.Query()
	q.Set("query", params.Query)
	q.Set("fields", paperFields)

	limit := params.MaxResults
	if limit <= 0 || limit > c.config.MaxResults {
		limit = c.config.MaxResults
	}
	q.Set("limit", strconv.Itoa(limit))

	searchURL.RawQuery = q.Encode()
	return searchURL.String(), nil
}

// handleErrorResponse prefers the API's JSON error message over the raw body.
func (c *Client) handleErrorResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.NewSourceUnavailableError(sourceName,
			domain.NewExternalAPIError(sourceName, resp.StatusCode, "failed to read error response", err))
	}

	message := string(body)
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil {
		switch {
		case errResp.Error != "":
			message = errResp.Error
		case errResp.Message != "":
			message = errResp.Message
		}
	}

	return domain.NewSourceUnavailableError(sourceName,
		domain.NewExternalAPIError(sourceName, resp.StatusCode, message, nil))
}

func convertToRecords(results []PaperResult) []domain.PaperRecord {
	records := make([]domain.PaperRecord, 0, len(results))
	for _, r := range results {
		records = append(records, convertToRecord(r))
	}
	return records
}

func convertToRecord(r PaperResult) domain.PaperRecord {
	authors := make([]string, 0, len(r.Authors))
	for _, a := range r.Authors {
		authors = append(authors, a.Name)
	}

	rec := domain.PaperRecord{
		ID:             r.PaperID,
		Title:          r.Title,
		Abstract:       r.Abstract,
		Authors:        authors,
		Year:           domain.FormatYear(r.Year),
		CitationCount:  r.CitationCount,
		ReferenceCount: r.ReferenceCount,
		Link:           resolveLink(r),
		Source:         domain.SourceTypeSemanticScholar,
	}
	rec.Normalize()
	return rec
}

// resolveLink picks the DOI URL, then the API url, then the S2 landing page.
func resolveLink(r PaperResult) string {
	if r.ExternalIDs != nil && r.ExternalIDs.DOI != "" {
		return domain.DOIURL(r.ExternalIDs.DOI)
	}
	if r.URL != "" {
		return r.URL
	}
	if r.PaperID != "" {
		return paperPageURL + r.PaperID
	}
	return ""
}
