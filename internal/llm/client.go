// Package llm is the text-generation provider layer of the research answer
// service.
//
// A Client turns a Request (system prompt, user prompt, tier) into text,
// either in one piece (Complete) or as an ordered stream of increments
// (Stream). Two providers are supported: Anthropic through the official SDK
// and OpenAI through the Chat Completions HTTP API. Each provider maps the
// cheap and premium tiers to a configured model.
//
// Example usage:
//
//	client, err := llm.NewClient(llm.FactoryConfig{Provider: "anthropic", ...})
//	resp, err := client.Complete(ctx, llm.Request{
//		System: "You are a research assistant.",
//		Prompt: "Translate to English: ¿Qué es CRISPR?",
//		Tier:   llm.TierCheap,
//	})
package llm

import "context"

// Tier selects the model class used for a request.
type Tier string

const (
	// TierCheap is used for evaluation, translation, expansion, filtering and analysis.
	TierCheap Tier = "cheap"

	// TierPremium is used for the user-facing answers.
	TierPremium Tier = "premium"
)

// Models maps tiers to provider model identifiers.
type Models struct {
	Cheap   string
	Premium string
}

// For returns the model for the given tier. Unknown tiers use the cheap model.
func (m Models) For(tier Tier) string {
	if tier == TierPremium && m.Premium != "" {
		return m.Premium
	}
	if m.Cheap != "" {
		return m.Cheap
	}
	return m.Premium
}

// Request is a single prompt to the provider.
type Request struct {
	// System is the optional system prompt.
	System string

	// Prompt is the user message.
	Prompt string

	// Tier selects the model.
	Tier Tier

	// MaxTokens caps the response length. Zero uses the provider default.
	MaxTokens int

	// Temperature overrides the provider temperature when non-nil.
	Temperature *float64
}

// Response is a completed generation.
type Response struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Chunk is one increment of a streamed generation. A chunk carries either
// text or a terminal error, never both.
type Chunk struct {
	Text string
	Err  error
}

// Client is a text-generation provider.
type Client interface {
	// Complete returns the whole generation.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Stream returns a channel of increments in generation order. The channel
	// carries at most one error chunk and is always closed. Cancelling ctx
	// stops the upstream call and closes the channel.
	Stream(ctx context.Context, req Request) (<-chan Chunk, error)

	// Provider returns the provider name.
	Provider() string
}

// Float returns a pointer to v, for Request.Temperature.
func Float(v float64) *float64 {
	return &v
}

// sendChunk delivers c unless ctx is done first.
func sendChunk(ctx context.Context, out chan<- Chunk, c Chunk) bool {
	select {
	case out <- c:
		return true
	case <-ctx.Done():
		return false
	}
}
