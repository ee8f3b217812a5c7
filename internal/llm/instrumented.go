package llm

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// UsageRecorder receives per-call LLM measurements. It is satisfied by the
// observability metrics type.
type UsageRecorder interface {
	RecordLLMRequest(provider, tier, status string, duration time.Duration)
	RecordLLMTokens(provider, tier string, inputTokens, outputTokens int)
}

// InstrumentedClient decorates a Client with logging and usage metrics.
type InstrumentedClient struct {
	next     Client
	recorder UsageRecorder
	logger   zerolog.Logger
}

var _ Client = (*InstrumentedClient)(nil)

// NewInstrumentedClient wraps next. A nil recorder disables metrics.
func NewInstrumentedClient(next Client, recorder UsageRecorder, logger zerolog.Logger) *InstrumentedClient {
	return &InstrumentedClient{
		next:     next,
		recorder: recorder,
		logger:   logger.With().Str("component", "llm").Str("provider", next.Provider()).Logger(),
	}
}

// Provider returns the wrapped provider's name.
func (c *InstrumentedClient) Provider() string {
	return c.next.Provider()
}

// Complete forwards to the wrapped client and records the outcome.
func (c *InstrumentedClient) Complete(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := c.next.Complete(ctx, req)
	duration := time.Since(start)

	if err != nil {
		c.record(req.Tier, "error", duration)
		c.logger.Warn().Err(err).
			Str("tier", string(req.Tier)).
			Dur("duration", duration).
			Msg("LLM completion failed")
		return nil, err
	}

	c.record(req.Tier, "success", duration)
	if c.recorder != nil {
		c.recorder.RecordLLMTokens(c.next.Provider(), string(req.Tier), resp.InputTokens, resp.OutputTokens)
	}
	c.logger.Debug().
		Str("tier", string(req.Tier)).
		Str("model", resp.Model).
		Int("input_tokens", resp.InputTokens).
		Int("output_tokens", resp.OutputTokens).
		Dur("duration", duration).
		Msg("LLM completion finished")

	return resp, nil
}

// Stream forwards chunks from the wrapped client and records the outcome
// once the stream ends.
func (c *InstrumentedClient) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	start := time.Now()
	in, err := c.next.Stream(ctx, req)
	if err != nil {
		c.record(req.Tier, "error", time.Since(start))
		c.logger.Warn().Err(err).Str("tier", string(req.Tier)).Msg("LLM stream failed to start")
		return nil, err
	}

	out := make(chan Chunk)
	go func() {
		defer close(out)

		status := "success"
		chunks := 0
		for chunk := range in {
			if chunk.Err != nil {
				status = "error"
				c.logger.Warn().Err(chunk.Err).Str("tier", string(req.Tier)).Int("chunks", chunks).Msg("LLM stream failed")
			} else {
				chunks++
			}
			if !sendChunk(ctx, out, chunk) {
				status = "cancelled"
				// Drain so the producer can observe cancellation and exit.
				for range in {
				}
				break
			}
		}

		duration := time.Since(start)
		c.record(req.Tier, status, duration)
		c.logger.Debug().
			Str("tier", string(req.Tier)).
			Str("status", status).
			Int("chunks", chunks).
			Dur("duration", duration).
			Msg("LLM stream finished")
	}()

	return out, nil
}

func (c *InstrumentedClient) record(tier Tier, status string, duration time.Duration) {
	if c.recorder == nil {
		return
	}
	c.recorder.RecordLLMRequest(c.next.Provider(), string(tier), status, duration)
}
