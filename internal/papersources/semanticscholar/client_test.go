package semanticscholar

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/research-answer-service/internal/domain"
	"github.com/helixir/research-answer-service/internal/papersources"
)

func testClient(serverURL string) *Client {
	httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Source:     sourceName,
		RateLimit:  1000,
		BurstSize:  100,
		MaxRetries: 2,
		RetryDelay: 5 * time.Millisecond,
	})
	return NewClient(Config{BaseURL: serverURL, Enabled: true}, httpClient)
}

func TestNewClient(t *testing.T) {
	t.Run("creates client with default values", func(t *testing.T) {
		client := NewClient(Config{Enabled: true}, nil)

		require.NotNil(t, client)
		assert.Equal(t, DefaultBaseURL, client.config.BaseURL)
		assert.Equal(t, DefaultTimeout, client.config.Timeout)
		assert.Equal(t, DefaultRateLimit, client.config.RateLimit)
		assert.Equal(t, DefaultMaxResults, client.config.MaxResults)
		assert.Equal(t, domain.SourceTypeSemanticScholar, client.SourceType())
		assert.Equal(t, "Semantic Scholar", client.Name())
		assert.True(t, client.IsEnabled())
	})

	t.Run("disabled client", func(t *testing.T) {
		assert.False(t, NewClient(Config{}, nil).IsEnabled())
	})
}

func TestClient_Search(t *testing.T) {
	t.Run("normalizes results", func(t *testing.T) {
		var gotQuery, gotLimit, gotFields string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/paper/search", r.URL.Path)
			gotQuery = r.URL.Query().Get("query")
			gotLimit = r.URL.Query().Get("limit")
			gotFields = r.URL.Query().Get("fields")

			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(SearchResponse{
				Total: 2,
				Data: []PaperResult{
					{
						PaperID:        "abc123",
						Title:          "CRISPR Gene Editing: A Review",
						Abstract:       "This paper reviews CRISPR technology.",
						Year:           2023,
						Authors:        []Author{{Name: "Jane Doe"}, {Name: "John Smith"}},
						CitationCount:  50,
						ReferenceCount: 100,
						URL:            "https://www.semanticscholar.org/paper/abc123",
						ExternalIDs:    &ExternalIDs{DOI: "10.1038/xyz"},
					},
					{PaperID: "def456", URL: "https://s2.example/def456"},
				},
			})
		}))
		defer server.Close()

		result, err := testClient(server.URL).Search(context.Background(), papersources.SearchParams{
			Query:      "CRISPR gene editing",
			MaxResults: 7,
		})
		require.NoError(t, err)

		assert.Equal(t, "CRISPR gene editing", gotQuery)
		assert.Equal(t, "7", gotLimit)
		assert.Contains(t, gotFields, "externalIds")
		assert.Equal(t, 2, result.TotalResults)
		assert.Equal(t, domain.SourceTypeSemanticScholar, result.Source)
		require.Len(t, result.Papers, 2)

		first := result.Papers[0]
		assert.Equal(t, "abc123", first.ID)
		assert.Equal(t, []string{"Jane Doe", "John Smith"}, first.Authors)
		assert.Equal(t, "2023", first.Year)
		assert.Equal(t, 50, first.CitationCount)
		assert.Equal(t, 100, first.ReferenceCount)
		assert.Equal(t, "https://doi.org/10.1038/xyz", first.Link)
		assert.Equal(t, domain.SourceTypeSemanticScholar, first.Source)

		second := result.Papers[1]
		assert.Equal(t, domain.UntitledPaper, second.Title)
		assert.Equal(t, domain.AbstractUnavailable, second.Abstract)
		assert.Equal(t, domain.YearUnknown, second.Year)
		assert.NotNil(t, second.Authors)
		assert.Equal(t, "https://s2.example/def456", second.Link)
	})

	t.Run("tolerates null fields", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"total":1,"data":[{"paperId":"p1","title":null,"abstract":null,"year":null,"authors":null,"citationCount":null,"url":null}]}`))
		}))
		defer server.Close()

		result, err := testClient(server.URL).Search(context.Background(), papersources.SearchParams{Query: "q"})
		require.NoError(t, err)
		require.Len(t, result.Papers, 1)

		p := result.Papers[0]
		assert.Equal(t, domain.UntitledPaper, p.Title)
		assert.Equal(t, domain.YearUnknown, p.Year)
		assert.Equal(t, "https://www.semanticscholar.org/paper/p1", p.Link)
	})

	t.Run("empty data yields empty non-nil slice", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"total":0}`))
		}))
		defer server.Close()

		result, err := testClient(server.URL).Search(context.Background(), papersources.SearchParams{Query: "q"})
		require.NoError(t, err)
		assert.NotNil(t, result.Papers)
		assert.Empty(t, result.Papers)
	})

	t.Run("caps limit at configured max", func(t *testing.T) {
		var gotLimit string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotLimit = r.URL.Query().Get("limit")
			_, _ = w.Write([]byte(`{"data":[]}`))
		}))
		defer server.Close()

		_, err := testClient(server.URL).Search(context.Background(), papersources.SearchParams{Query: "q", MaxResults: 5000})
		require.NoError(t, err)
		assert.Equal(t, "100", gotLimit)
	})

	t.Run("persistent 429 becomes source unavailable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		_, err := testClient(server.URL).Search(context.Background(), papersources.SearchParams{Query: "q"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrSourceUnavailable))
	})

	t.Run("uses json error message", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"Unrecognized field"}`))
		}))
		defer server.Close()

		_, err := testClient(server.URL).Search(context.Background(), papersources.SearchParams{Query: "q"})
		require.Error(t, err)

		var apiErr *domain.ExternalAPIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, "Unrecognized field", apiErr.Message)
		assert.True(t, errors.Is(err, domain.ErrSourceUnavailable))
	})

	t.Run("malformed body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{not json`))
		}))
		defer server.Close()

		_, err := testClient(server.URL).Search(context.Background(), papersources.SearchParams{Query: "q"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrSourceUnavailable))
	})
}

func TestResolveLink(t *testing.T) {
	assert.Equal(t, "https://doi.org/10.1/a", resolveLink(PaperResult{ExternalIDs: &ExternalIDs{DOI: "10.1/a"}, URL: "u"}))
	assert.Equal(t, "u", resolveLink(PaperResult{ExternalIDs: &ExternalIDs{}, URL: "u"}))
	assert.Equal(t, paperPageURL+"id", resolveLink(PaperResult{PaperID: "id"}))
	assert.Equal(t, "", resolveLink(PaperResult{}))
}
