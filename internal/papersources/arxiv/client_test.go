package arxiv

import (
	"context"
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

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:opensearch="http://a9.com/-/spec/opensearch/1.1/">
  <opensearch:totalResults>2</opensearch:totalResults>
  <entry>
    <id>http://arxiv.org/abs/2301.12345v2</id>
    <published>2023-01-15T18:30:00Z</published>
    <title>  Attention
      Is All You Need  </title>
    <summary>
      The dominant sequence transduction models.
    </summary>
    <author><name>Ashish Vaswani</name></author>
    <author><name>Noam Shazeer</name></author>
    <link href="http://arxiv.org/abs/2301.12345v2" rel="alternate" type="text/html"/>
  </entry>
  <entry>
    <id></id>
    <published>garbage</published>
    <title></title>
  </entry>
</feed>`

func testClient(serverURL string) *Client {
	httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Source:     sourceName,
		RateLimit:  1000,
		BurstSize:  100,
		MaxRetries: 1,
		RetryDelay: 5 * time.Millisecond,
	})
	return NewWithHTTPClient(Config{BaseURL: serverURL, Enabled: true}, httpClient)
}

func TestNew(t *testing.T) {
	c := New(Config{Enabled: true})
	assert.Equal(t, DefaultBaseURL, c.config.BaseURL)
	assert.Equal(t, DefaultRateLimit, c.config.RateLimit)
	assert.Equal(t, DefaultMaxResults, c.config.MaxResults)
	assert.Equal(t, domain.SourceTypeArXiv, c.SourceType())
	assert.Equal(t, "arXiv", c.Name())
	assert.True(t, c.IsEnabled())
}

func TestClient_Search(t *testing.T) {
	t.Run("parses atom feed", func(t *testing.T) {
		var gotQuery, gotMax string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/query", r.URL.Path)
			gotQuery = r.URL.Query().Get("search_query")
			gotMax = r.URL.Query().Get("max_results")
			w.Header().Set("Content-Type", "application/atom+xml")
			_, _ = w.Write([]byte(sampleFeed))
		}))
		defer server.Close()

		result, err := testClient(server.URL).Search(context.Background(), papersources.SearchParams{
			Query:      "transformers",
			MaxResults: 4,
		})
		require.NoError(t, err)

		assert.Equal(t, "all:transformers", gotQuery)
		assert.Equal(t, "4", gotMax)
		assert.Equal(t, domain.SourceTypeArXiv, result.Source)
		require.Len(t, result.Papers, 2)

		p := result.Papers[0]
		assert.Equal(t, "2301.12345", p.ID)
		assert.Equal(t, "Attention Is All You Need", p.Title)
		assert.Equal(t, "The dominant sequence transduction models.", p.Abstract)
		assert.Equal(t, []string{"Ashish Vaswani", "Noam Shazeer"}, p.Authors)
		assert.Equal(t, "2023", p.Year)
		assert.Equal(t, "https://arxiv.org/abs/2301.12345", p.Link)
		assert.Equal(t, 0, p.CitationCount)
		assert.Equal(t, 0, p.ReferenceCount)
	})

	t.Run("keeps incomplete entries with fallbacks", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(sampleFeed))
		}))
		defer server.Close()

		result, err := testClient(server.URL).Search(context.Background(), papersources.SearchParams{Query: "q"})
		require.NoError(t, err)

		p := result.Papers[1]
		assert.Equal(t, domain.UntitledPaper, p.Title)
		assert.Equal(t, domain.AbstractUnavailable, p.Abstract)
		assert.Equal(t, domain.YearUnknown, p.Year)
		assert.NotNil(t, p.Authors)
		assert.NotEmpty(t, p.ID)
	})

	t.Run("server error becomes source unavailable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		_, err := testClient(server.URL).Search(context.Background(), papersources.SearchParams{Query: "q"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrSourceUnavailable))
	})

	t.Run("client error becomes source unavailable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte("bad query"))
		}))
		defer server.Close()

		_, err := testClient(server.URL).Search(context.Background(), papersources.SearchParams{Query: "q"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrSourceUnavailable))
		assert.Contains(t, err.Error(), "bad query")
	})
}

func TestPublishedYear(t *testing.T) {
	assert.Equal(t, "2021", publishedYear("2021-03-04T00:00:00Z"))
	assert.Equal(t, "2020", publishedYear("2020-05"))
	assert.Equal(t, domain.YearUnknown, publishedYear(""))
	assert.Equal(t, domain.YearUnknown, publishedYear("n/a"))
}

func TestExtractArXivID(t *testing.T) {
	assert.Equal(t, "2301.12345", extractArXivID("http://arxiv.org/abs/2301.12345v1"))
	assert.Equal(t, "hep-th/9901001", extractArXivID("http://arxiv.org/abs/hep-th/9901001v3"))
	assert.Equal(t, "", extractArXivID("not a url"))
}
