package llm

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

// collect drains a stream into its text and terminal error.
func collect(t *testing.T, ch <-chan Chunk) (string, error) {
	t.Helper()

	var sb strings.Builder
	var streamErr error
	timeout := time.After(5 * time.Second)
	for {
		select {
		case chunk, ok := <-ch:
			if !ok {
				return sb.String(), streamErr
			}
			if chunk.Err != nil {
				streamErr = chunk.Err
				continue
			}
			sb.WriteString(chunk.Text)
		case <-timeout:
			t.Fatal("stream did not close")
			return "", nil
		}
	}
}

var testModels = Models{Cheap: "cheap-model", Premium: "premium-model"}
