package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/helixir/research-answer-service/internal/domain"
	"github.com/helixir/research-answer-service/internal/papersources"
)

const (
	// DefaultBaseURL is the base URL for the CORE v3 API.
	DefaultBaseURL = "https://api.core.ac.uk/v3"

	// DefaultRateLimit keeps well under the free tier quota.
	DefaultRateLimit = 2.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 2

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults is the default maximum results per search.
	DefaultMaxResults = 100

	outputURLPrefix = "https://core.ac.uk/works/"

	sourceName = "CORE"
)

// Config holds the configuration for the CORE client.
type Config struct {
	BaseURL string

	// APIKey is required; without it the source reports itself disabled.
	APIKey string

	Timeout    time.Duration
	RateLimit  float64
	BurstSize  int
	MaxResults int
	MaxRetries int
	RetryDelay time.Duration
	Enabled    bool

	// RateLimitRecorder is notified of 429 responses. Optional.
	RateLimitRecorder papersources.RateLimitRecorder
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.BurstSize == 0 {
		c.BurstSize = DefaultBurstSize
	}
	if c.MaxResults == 0 {
		c.MaxResults = DefaultMaxResults
	}
}

// Client implements the papersources.PaperSource interface for CORE.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
}

var _ papersources.PaperSource = (*Client)(nil)

// New creates a new CORE client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	return &Client{
		config:     cfg,
		httpClient: papersources.NewHTTPClient(httpClientConfig(cfg)),
	}
}

// NewWithHTTPClient creates a new CORE client with a custom HTTP client.
// The API key is still sent as a bearer token on every request.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
	cfg.applyDefaults()
	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

func httpClientConfig(cfg Config) papersources.HTTPClientConfig {
	return papersources.HTTPClientConfig{
		Source:            sourceName,
		Timeout:           cfg.Timeout,
		RateLimit:         cfg.RateLimit,
		BurstSize:         cfg.BurstSize,
		MaxRetries:        cfg.MaxRetries,
		RetryDelay:        cfg.RetryDelay,
		APIKey:            cfg.APIKey,
		APIKeyHeader:      "Authorization",
		APIKeyPrefix:      "Bearer ",
		RateLimitRecorder: cfg.RateLimitRecorder,
	}
}

// Search queries CORE for works matching the given parameters.
func (c *Client) Search(ctx context.Context, params papersources.SearchParams) (*papersources.SearchResult, error) {
	if c.config.APIKey == "" {
		return nil, domain.NewSourceUnavailableError(sourceName, fmt.Errorf("no API key configured"))
	}

	startTime := time.Now()

	searchURL, err := c.buildSearchURL(params)
	if err != nil {
		return nil, fmt.Errorf("building search URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if err := c.handleErrorResponse(resp); err != nil {
		return nil, err
	}

	var searchResp SearchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&searchResp); err != nil {
		return nil, domain.NewSourceUnavailableError(sourceName, fmt.Errorf("decoding response: %w", err))
	}

	papers := make([]domain.PaperRecord, 0, len(searchResp.Results))
	for i := range searchResp.Results {
		papers = append(papers, workToRecord(&searchResp.Results[i]))
	}

	return &papersources.SearchResult{
		Papers:         papers,
		TotalResults:   searchResp.TotalHits,
		Source:         domain.SourceTypeCORE,
		SearchDuration: time.Since(startTime),
	}, nil
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeCORE
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// IsEnabled reports true only when the source is enabled and a key is set.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled && c.config.APIKey != ""
}

func (c *Client) buildSearchURL(params papersources.SearchParams) (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}

	searchURL := baseURL.JoinPath("search", "works")

	limit := params.MaxResults
	if limit <= 0 || limit > c.config.MaxResults {
		limit = c.config.MaxResults
	}

	q := searchURL.Query()
	q.Set("q", params.Query)
	q.Set("limit", strconv.Itoa(limit))
	searchURL.RawQuery = q.Encode()

	return searchURL.String(), nil
}

func (c *Client) handleErrorResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.NewSourceUnavailableError(sourceName,
			domain.NewExternalAPIError(sourceName, resp.StatusCode, "failed to read error response", err))
	}

	message := strings.TrimSpace(string(body))
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Message != "" {
		message = errResp.Message
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	return domain.NewSourceUnavailableError(sourceName,
		domain.NewExternalAPIError(sourceName, resp.StatusCode, message, nil))
}

func workToRecord(w *Work) domain.PaperRecord {
	rec := domain.PaperRecord{
		ID:            string(w.ID),
		Title:         w.Title,
		Abstract:      w.Abstract,
		Authors:       []string(w.Authors),
		Year:          domain.FormatYear(int(w.YearPublished)),
		CitationCount: int(w.CitationCount),
		Link:          resolveLink(w),
		Source:        domain.SourceTypeCORE,
	}
	rec.Normalize()
	return rec
}

// resolveLink picks the DOI URL, then the download URL, then the CORE page.
func resolveLink(w *Work) string {
	if doi := strings.TrimSpace(w.DOI); doi != "" {
		return domain.DOIURL(doi)
	}
	if u := strings.TrimSpace(w.DownloadURL); u != "" {
		return u
	}
	for _, l := range w.Links {
		if l.Type == "download" && l.URL != "" {
			return l.URL
		}
	}
	if w.ID != "" {
		return outputURLPrefix + string(w.ID)
	}
	return ""
}
