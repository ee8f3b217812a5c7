package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	// defaultAnthropicMaxTokens is the default max tokens for a Messages API response.
	defaultAnthropicMaxTokens = 2048
)

// AnthropicConfig holds the parameters needed to create an Anthropic provider.
// This is defined in the llm package to avoid importing the config package.
type AnthropicConfig struct {
	// APIKey is the Anthropic API key.
	APIKey string
	// BaseURL overrides the API base URL (empty means the SDK default).
	BaseURL string
	// Models maps the cheap and premium tiers to model identifiers.
	Models Models
}

// AnthropicProvider implements Client on top of the official Anthropic SDK.
type AnthropicProvider struct {
	client      sdk.Client
	models      Models
	temperature float64
	timeout     time.Duration
	maxRetries  int
	retryDelay  time.Duration
}

var _ Client = (*AnthropicProvider)(nil)

// NewAnthropicProvider creates a new AnthropicProvider with the given configuration.
// The timeout bounds each Complete attempt; streams are bounded by the caller's
// context only. The SDK's own retry loop is disabled so that maxRetries is
// the single source of truth.
func NewAnthropicProvider(cfg AnthropicConfig, temperature float64, timeout time.Duration, maxRetries int) *AnthropicProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if maxRetries < 0 {
		maxRetries = 0
	}

	return &AnthropicProvider{
		client:      sdk.NewClient(opts...),
		models:      cfg.Models,
		temperature: temperature,
		timeout:     timeout,
		maxRetries:  maxRetries,
		retryDelay:  time.Second,
	}
}

// Provider returns the provider name.
func (p *AnthropicProvider) Provider() string {
	return "anthropic"
}

// Complete sends one Messages API request and concatenates the text blocks
// of the reply. Transient errors are retried with exponential backoff.
func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	params := p.buildParams(req)

	return withRetry(ctx, p.Provider(), p.maxRetries, p.retryDelay, func() (*Response, error) {
		callCtx := ctx
		if p.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, p.timeout)
			defer cancel()
		}

		msg, err := p.client.Messages.New(callCtx, params)
		if err != nil {
			return nil, p.convertError(ctx, err)
		}

		var sb strings.Builder
		for _, block := range msg.Content {
			if block.Type == "text" {
				sb.WriteString(block.Text)
			}
		}
		if sb.Len() == 0 {
			return nil, fmt.Errorf("anthropic: response contains no text content blocks")
		}

		return &Response{
			Text:         sb.String(),
			Model:        string(msg.Model),
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		}, nil
	})
}

// Stream opens a streaming Messages API request and forwards text deltas.
// Connection failures before the first delta are retried like Complete.
func (p *AnthropicProvider) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	params := p.buildParams(req)
	out := make(chan Chunk)

	go func() {
		defer close(out)

		for attempt := 0; attempt <= p.maxRetries; attempt++ {
			if attempt > 0 {
				timer := time.NewTimer(retryBackoff(p.retryDelay, attempt))
				select {
				case <-ctx.Done():
					timer.Stop()
					return
				case <-timer.C:
				}
			}

			emitted, err := p.streamOnce(ctx, params, out)
			if err == nil {
				return
			}
			if emitted || !isTransientError(err) || attempt == p.maxRetries {
				sendChunk(ctx, out, Chunk{Err: err})
				return
			}
		}
	}()

	return out, nil
}

func (p *AnthropicProvider) streamOnce(ctx context.Context, params sdk.MessageNewParams, out chan<- Chunk) (bool, error) {
	stream := p.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	emitted := false
	for stream.Next() {
		event := stream.Current()
		switch ev := event.AsAny().(type) {
		case sdk.ContentBlockDeltaEvent:
			delta, ok := ev.Delta.AsAny().(sdk.TextDelta)
			if !ok || delta.Text == "" {
				continue
			}
			if !sendChunk(ctx, out, Chunk{Text: delta.Text}) {
				return emitted, ctx.Err()
			}
			emitted = true
		}
	}

	if err := stream.Err(); err != nil {
		return emitted, p.convertError(ctx, err)
	}
	return emitted, nil
}

func (p *AnthropicProvider) buildParams(req Request) sdk.MessageNewParams {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	temperature := p.temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(p.models.For(req.Tier)),
		MaxTokens: int64(maxTokens),
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(req.Prompt)),
		},
		Temperature: sdk.Float(temperature),
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	return params
}

// convertError maps SDK errors to APIError so retry decisions are uniform
// across providers. Caller cancellation is passed through untouched.
func (p *AnthropicProvider) convertError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("anthropic: %w", ctxErr)
	}

	var sdkErr *sdk.Error
	if errors.As(err, &sdkErr) {
		return &APIError{
			Provider:   p.Provider(),
			StatusCode: sdkErr.StatusCode,
			Message:    sdkErr.Error(),
		}
	}

	return &APIError{
		Provider:   p.Provider(),
		StatusCode: 0,
		Message:    fmt.Sprintf("request failed: %v", err),
		Type:       "network_error",
	}
}
