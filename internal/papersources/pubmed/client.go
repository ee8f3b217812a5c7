package pubmed

import (
	"context"
	"encoding/xml"
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
	// DefaultBaseURL is the base URL for NCBI E-utilities API.
	DefaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

	// DefaultRateLimit is the rate limit without an API key (3 requests/second).
	// With an API key, the limit increases to 10 requests/second.
	DefaultRateLimit = 3.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 3

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults is the default maximum results per search.
	DefaultMaxResults = 100

	// MaxResultsLimit is the maximum results allowed per request by the API.
	MaxResultsLimit = 10000

	articleURLPrefix = "https://pubmed.ncbi.nlm.nih.gov/"

	sourceName = "PubMed"
)

// Config holds the configuration for the PubMed client.
type Config struct {
	// BaseURL defaults to DefaultBaseURL if empty.
	BaseURL string

	// APIKey is the NCBI API key for higher rate limits.
	APIKey string

	// Timeout defaults to DefaultTimeout if zero.
	Timeout time.Duration

	// RateLimit defaults to DefaultRateLimit (3 req/sec) if zero.
	RateLimit float64

	// BurstSize defaults to DefaultBurstSize if zero.
	BurstSize int

	// MaxResults defaults to DefaultMaxResults if zero.
	MaxResults int

	MaxRetries int
	RetryDelay time.Duration

	// Enabled indicates whether this source is enabled.
	Enabled bool

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

// Client implements the papersources.PaperSource interface for PubMed.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
}

// Compile-time check that Client implements PaperSource.
var _ papersources.PaperSource = (*Client)(nil)

// New creates a new PubMed client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	httpCfg := papersources.HTTPClientConfig{
		Source:            sourceName,
		Timeout:           cfg.Timeout,
		RateLimit:         cfg.RateLimit,
		BurstSize:         cfg.BurstSize,
		MaxRetries:        cfg.MaxRetries,
		RetryDelay:        cfg.RetryDelay,
		UserAgent:         "Helixir-ResearchAnswerService/1.0 (mailto:support@helixir.io)",
		RateLimitRecorder: cfg.RateLimitRecorder,
	}

	return &Client{
		config:     cfg,
		httpClient: papersources.NewHTTPClient(httpCfg),
	}
}

// NewWithHTTPClient creates a new PubMed client with a custom HTTP client.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
	cfg.applyDefaults()
	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// Search queries PubMed for papers matching the given parameters.
// It performs a two-step search:
// 1. esearch.fcgi - retrieves PMIDs matching the query
// 2. efetch.fcgi - retrieves full article metadata for the PMIDs
func (c *Client) Search(ctx context.Context, params papersources.SearchParams) (*papersources.SearchResult, error) {
	startTime := time.Now()

	searchResult, err := c.esearch(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("esearch failed: %w", err)
	}

	empty := &papersources.SearchResult{
		Papers:       []domain.PaperRecord{},
		TotalResults: searchResult.Count,
		Source:       domain.SourceTypePubMed,
	}

	// A phrase PubMed does not know is an empty result, not an error.
	if searchResult.ErrorList != nil && len(searchResult.ErrorList.PhraseNotFound) > 0 {
		empty.TotalResults = 0
		empty.SearchDuration = time.Since(startTime)
		return empty, nil
	}

	if len(searchResult.IDList.IDs) == 0 {
		empty.SearchDuration = time.Since(startTime)
		return empty, nil
	}

	articles, err := c.efetch(ctx, searchResult.IDList.IDs)
	if err != nil {
		return nil, fmt.Errorf("efetch failed: %w", err)
	}

	papers := make([]domain.PaperRecord, 0, len(articles.Articles))
	for _, article := range articles.Articles {
		papers = append(papers, articleToRecord(article))
	}

	return &papersources.SearchResult{
		Papers:         papers,
		TotalResults:   searchResult.Count,
		Source:         domain.SourceTypePubMed,
		SearchDuration: time.Since(startTime),
	}, nil
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypePubMed
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// IsEnabled returns whether the source is enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

func (c *Client) esearch(ctx context.Context, params papersources.SearchParams) (*ESearchResult, error) {
	u, err := url.Parse(c.config.BaseURL + "/esearch.fcgi")
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	maxResults := params.MaxResults
	if maxResults <= 0 {
		maxResults = c.config.MaxResults
	}
	if maxResults > MaxResultsLimit {
		maxResults = MaxResultsLimit
	}

	q := u.Query()
	q.Set("db", "pubmed")
	q.Set("term", params.Query)
	q.Set("retmode", "xml")
	q.Set("retmax", strconv.Itoa(maxResults))
	q.Set("sort", "relevance")
	if c.config.APIKey != "" {
		q.Set("api_key", c.config.APIKey)
	}
	u.RawQuery = q.Encode()

	var result ESearchResult
	if err := c.getXML(ctx, u.String(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) efetch(ctx context.Context, pmids []string) (*PubmedArticleSet, error) {
	u, err := url.Parse(c.config.BaseURL + "/efetch.fcgi")
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	q := u.Query()
	q.Set("db", "pubmed")
	q.Set("id", strings.Join(pmids, ","))
	q.Set("retmode", "xml")
	q.Set("rettype", "abstract")
	if c.config.APIKey != "" {
		q.Set("api_key", c.config.APIKey)
	}
	u.RawQuery = q.Encode()

	var result PubmedArticleSet
	if err := c.getXML(ctx, u.String(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// getXML issues a GET and decodes the XML body into out.
func (c *Client) getXML(ctx context.Context, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := papersources.ErrorFromResponse(sourceName, resp); err != nil {
		return err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return domain.NewSourceUnavailableError(sourceName, fmt.Errorf("failed to read response: %w", err))
	}

	if err := xml.Unmarshal(body, out); err != nil {
		return domain.NewSourceUnavailableError(sourceName, fmt.Errorf("failed to parse XML response: %w", err))
	}
	return nil
}

func articleToRecord(article PubmedArticle) domain.PaperRecord {
	citation := article.MedlineCitation
	pmid := strings.TrimSpace(citation.PMID)

	link := ""
	if pmid != "" {
		link = articleURLPrefix + pmid + "/"
	} else if doi := extractDOI(citation.Article, article.PubmedData); doi != "" {
		link = domain.DOIURL(doi)
	}

	refs := 0
	if article.PubmedData.ReferenceList != nil {
		refs = len(article.PubmedData.ReferenceList.References)
	}

	rec := domain.PaperRecord{
		ID:             pmid,
		Title:          citation.Article.ArticleTitle,
		Abstract:       extractAbstract(citation.Article.Abstract),
		Authors:        extractAuthors(citation.Article.AuthorList),
		Year:           extractYear(citation.Article),
		ReferenceCount: refs,
		Link:           link,
		Source:         domain.SourceTypePubMed,
	}
	rec.Normalize()
	return rec
}

// extractDOI checks ELocationID first, then ArticleIdList.
func extractDOI(article Article, pubmedData PubmedData) string {
	for _, eloc := range article.ELocationID {
		if eloc.EIdType == "doi" && (eloc.Valid == "" || eloc.Valid == "Y") {
			return strings.TrimSpace(eloc.Value)
		}
	}
	for _, aid := range pubmedData.ArticleIdList.ArticleIds {
		if aid.IdType == "doi" {
			return strings.TrimSpace(aid.Value)
		}
	}
	return ""
}

// extractYear prefers ArticleDate, then the journal PubDate, then MedlineDate.
func extractYear(article Article) string {
	for _, ad := range article.ArticleDate {
		if y := parseYear(ad.Year); y > 0 {
			return domain.FormatYear(y)
		}
	}

	pubDate := article.Journal.JournalIssue.PubDate
	if y := parseYear(pubDate.Year); y > 0 {
		return domain.FormatYear(y)
	}
	if y := extractYearFromMedlineDate(pubDate.MedlineDate); y > 0 {
		return domain.FormatYear(y)
	}
	return domain.YearUnknown
}

func parseYear(s string) int {
	y, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || y <= 0 {
		return 0
	}
	return y
}

// extractYearFromMedlineDate handles "2020 Jan-Feb", "2020 Spring", "2020-2021".
func extractYearFromMedlineDate(medlineDate string) int {
	parts := strings.Fields(medlineDate)
	if len(parts) == 0 {
		return 0
	}
	return parseYear(strings.Split(parts[0], "-")[0])
}

// extractAbstract concatenates multiple abstract sections into a single string.
func extractAbstract(abstract *Abstract) string {
	if abstract == nil || len(abstract.AbstractTexts) == 0 {
		return ""
	}

	if len(abstract.AbstractTexts) == 1 && abstract.AbstractTexts[0].Label == "" {
		return strings.TrimSpace(abstract.AbstractTexts[0].Value)
	}

	var parts []string
	for _, at := range abstract.AbstractTexts {
		text := strings.TrimSpace(at.Value)
		if text == "" {
			continue
		}
		if at.Label != "" {
			parts = append(parts, at.Label+": "+text)
		} else {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, " ")
}

// extractAuthors builds "ForeName LastName" names, or the collective name
// for consortium authors.
func extractAuthors(authorList *AuthorList) []string {
	if authorList == nil {
		return []string{}
	}

	authors := make([]string, 0, len(authorList.Authors))
	for _, a := range authorList.Authors {
		if a.ValidYN == "N" {
			continue
		}

		if a.CollectiveName != "" {
			authors = append(authors, a.CollectiveName)
			continue
		}

		first := a.ForeName
		if first == "" {
			first = a.Initials
		}
		name := strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(a.LastName))
		if name != "" {
			authors = append(authors, name)
		}
	}
	return authors
}
