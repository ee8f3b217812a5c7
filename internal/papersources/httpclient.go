package papersources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/helixir/research-answer-service/internal/domain"
)

// NoRetries disables retrying when set as HTTPClientConfig.MaxRetries. A zero
// MaxRetries selects the default budget.
const NoRetries = -1

// DefaultMaxRetryWait caps how long a Retry-After header may delay a retry.
const DefaultMaxRetryWait = 30 * time.Second

// RateLimitRecorder receives a notification every time a provider answers 429.
// observability.Metrics satisfies it.
type RateLimitRecorder interface {
	RecordSourceRateLimited(source string)
}

// BackoffFunc returns how long to wait before the given retry attempt (1-based).
type BackoffFunc func(attempt int) time.Duration

// LinearBackoff returns a BackoffFunc that waits base × attempt.
func LinearBackoff(base time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		return base * time.Duration(attempt)
	}
}

// HTTPClientConfig configures the HTTP client.
type HTTPClientConfig struct {
	// Source names the provider in errors and metrics (e.g. "PubMed").
	Source string

	// Timeout bounds every single attempt.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// MaxRetries is the maximum number of retry attempts after the first try.
	MaxRetries int

	// RetryDelay is the base delay of the default linear backoff.
	RetryDelay time.Duration

	// MaxRetryWait is the longest Retry-After the client will wait out.
	// Longer requests end the call with a SourceUnavailableError.
	MaxRetryWait time.Duration

	// Backoff overrides the default linear backoff.
	Backoff BackoffFunc

	// UserAgent is the User-Agent header sent with requests.
	UserAgent string

	// APIKey is an optional API key for authentication.
	APIKey string

	// APIKeyHeader is the header name for the API key (e.g., "x-api-key", "Authorization").
	APIKeyHeader string

	// APIKeyPrefix is prepended to the key value (e.g., "Bearer ").
	APIKeyPrefix string

	// RateLimitRecorder is notified of 429 responses. Optional.
	RateLimitRecorder RateLimitRecorder
}

// HTTPClient wraps http.Client with rate limiting and a bounded retry loop.
// It is safe for concurrent use.
type HTTPClient struct {
	client      *http.Client
	rateLimiter *RateLimiter
	backoff     BackoffFunc
	config      HTTPClientConfig
}

// NewHTTPClient creates a new HTTP client with rate limiting.
// The client waits for the rate limiter before each attempt and retries on
// 429 (Too Many Requests), 5xx server errors and network errors.
func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 10
	}
	if cfg.BurstSize == 0 {
		cfg.BurstSize = 10
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.MaxRetryWait <= 0 {
		cfg.MaxRetryWait = DefaultMaxRetryWait
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "Helixir-ResearchAnswerService/1.0"
	}
	if cfg.Source == "" {
		cfg.Source = "unknown"
	}

	backoff := cfg.Backoff
	if backoff == nil {
		backoff = LinearBackoff(cfg.RetryDelay)
	}

	return &HTTPClient{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		rateLimiter: NewRateLimiter(cfg.RateLimit, cfg.BurstSize),
		backoff:     backoff,
		config:      cfg,
	}
}

// Do executes an HTTP request with rate limiting and retries.
//
// Attempt n (1-based) of a retry waits Backoff(n), or the server's
// Retry-After value when present. Exhausting the retry budget, a Retry-After
// above MaxRetryWait, or a wait that would outlast the request deadline
// yields a domain.SourceUnavailableError. Context cancellation is returned
// as is.
//
// Callers must set GetBody on requests with a body that should be resent.
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	if c.config.APIKey != "" && c.config.APIKeyHeader != "" {
		req.Header.Set(c.config.APIKeyHeader, c.config.APIKeyPrefix+c.config.APIKey)
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := c.resetRequestBody(req); err != nil {
				return nil, domain.NewSourceUnavailableError(c.config.Source, fmt.Errorf("cannot retry request: %w", err))
			}
		}

		if err := c.rateLimiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if ctxErr := req.Context().Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if errors.Is(err, context.Canceled) {
				return nil, err
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			if attempt < c.config.MaxRetries {
				if err := c.waitForRetry(req.Context(), c.backoff(attempt+1), lastErr); err != nil {
					return nil, err
				}
			}
			continue
		}

		if !c.shouldRetry(resp.StatusCode) {
			return resp, nil
		}

		if resp.StatusCode == http.StatusTooManyRequests && c.config.RateLimitRecorder != nil {
			c.config.RateLimitRecorder.RecordSourceRateLimited(c.config.Source)
		}

		delay := c.getRetryDelay(resp, attempt+1)
		drainAndClose(resp)
		lastErr = domain.NewExternalAPIError(c.config.Source, resp.StatusCode, http.StatusText(resp.StatusCode), nil)

		if attempt < c.config.MaxRetries {
			if delay > c.config.MaxRetryWait {
				return nil, domain.NewSourceUnavailableError(c.config.Source,
					fmt.Errorf("retry-after %s exceeds limit %s: %w", delay, c.config.MaxRetryWait, lastErr))
			}
			if err := c.waitForRetry(req.Context(), delay, lastErr); err != nil {
				return nil, err
			}
		}
	}

	return nil, domain.NewSourceUnavailableError(
		c.config.Source,
		fmt.Errorf("max retries exhausted after %d attempts: %w", c.config.MaxRetries+1, lastErr),
	)
}

// Source returns the provider name this client reports in errors.
func (c *HTTPClient) Source() string {
	return c.config.Source
}

// shouldRetry returns true if the status code indicates we should retry.
func (c *HTTPClient) shouldRetry(statusCode int) bool {
	if statusCode == http.StatusTooManyRequests {
		return true
	}
	return statusCode >= 500 && statusCode < 600
}

// getRetryDelay respects the Retry-After header if present, otherwise uses
// the backoff function for the given attempt.
func (c *HTTPClient) getRetryDelay(resp *http.Response, attempt int) time.Duration {
	fallback := c.backoff(attempt)

	retryAfter := resp.Header.Get("Retry-After")
	if retryAfter == "" {
		return fallback
	}

	if seconds, err := strconv.ParseInt(retryAfter, 10, 64); err == nil {
		if seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
		return fallback
	}

	if t, err := http.ParseTime(retryAfter); err == nil {
		if delay := time.Until(t); delay > 0 {
			return delay
		}
	}

	return fallback
}

// waitForRetry waits for the specified duration, respecting context
// cancellation. A delay that ends past the context deadline fails at once
// with a SourceUnavailableError wrapping lastErr.
func (c *HTTPClient) waitForRetry(ctx context.Context, delay time.Duration, lastErr error) error {
	if deadline, ok := ctx.Deadline(); ok && time.Now().Add(delay).After(deadline) {
		return domain.NewSourceUnavailableError(c.config.Source,
			fmt.Errorf("retry in %s would pass the call deadline: %w", delay, lastErr))
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// resetRequestBody resets the request body for retry if possible.
func (c *HTTPClient) resetRequestBody(req *http.Request) error {
	if req.Body == nil || req.GetBody == nil {
		return nil
	}

	body, err := req.GetBody()
	if err != nil {
		return fmt.Errorf("failed to get request body for retry: %w", err)
	}
	req.Body = body
	return nil
}

func drainAndClose(resp *http.Response) {
	if resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	resp.Body.Close()
}

// ErrorFromResponse converts a non-2xx response into a SourceUnavailableError
// wrapping an ExternalAPIError with the (truncated) body as message.
// It returns nil for 2xx responses and does not close the body.
func ErrorFromResponse(source string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.NewSourceUnavailableError(source,
			domain.NewExternalAPIError(source, resp.StatusCode, "failed to read error response", err))
	}

	message := strings.TrimSpace(string(body))
	if len(message) > 512 {
		message = message[:512]
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	return domain.NewSourceUnavailableError(source,
		domain.NewExternalAPIError(source, resp.StatusCode, message, nil))
}
