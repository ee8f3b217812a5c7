// Package relevance narrows a ranked paper list down to the few papers a
// model judges most relevant to the question.
package relevance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/research-answer-service/internal/domain"
	"github.com/helixir/research-answer-service/internal/llm"
)

// Default values for the filter.
const (
	DefaultCallTimeout    = 30 * time.Second
	abstractSummaryLimit  = 500
	filterResponseMaxToks = 256
)

// Filter selects the most relevant papers with the cheap model tier.
// It fails open: any provider or parse failure returns the input unchanged.
type Filter struct {
	client      llm.Client
	callTimeout time.Duration
	logger      zerolog.Logger
}

// New creates a Filter. A non-positive callTimeout uses DefaultCallTimeout.
func New(client llm.Client, callTimeout time.Duration, logger zerolog.Logger) *Filter {
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	return &Filter{
		client:      client,
		callTimeout: callTimeout,
		logger:      logger.With().Str("component", "relevance").Logger(),
	}
}

// Filter returns at most maxPapers papers, best first. Lists that already
// fit are returned without a model call.
func (f *Filter) Filter(ctx context.Context, question string, papers []domain.PaperRecord, maxPapers int) []domain.PaperRecord {
	if maxPapers <= 0 || len(papers) <= maxPapers {
		return papers
	}

	callCtx, cancel := context.WithTimeout(ctx, f.callTimeout)
	defer cancel()

	resp, err := f.client.Complete(callCtx, llm.Request{
		System:      filterSystemPrompt,
		Prompt:      buildFilterPrompt(question, papers, maxPapers),
		Tier:        llm.TierCheap,
		MaxTokens:   filterResponseMaxToks,
		Temperature: llm.Float(0),
	})
	if err != nil {
		f.logger.Warn().Err(err).Int("papers", len(papers)).Msg("relevance filter failed, keeping all papers")
		return papers
	}

	indices, err := ParseSelection(resp.Text, len(papers), maxPapers)
	if err != nil {
		f.logger.Warn().Err(err).Msg("relevance filter returned unusable selection, keeping all papers")
		return papers
	}
	if len(indices) == 0 {
		f.logger.Warn().Msg("relevance filter selected nothing, keeping all papers")
		return papers
	}

	selected := make([]domain.PaperRecord, 0, len(indices))
	for _, i := range indices {
		selected = append(selected, papers[i])
	}

	f.logger.Debug().Ints("indices", indices).Int("from", len(papers)).Msg("papers selected")
	return selected
}

// ParseSelection decodes a model reply into distinct in-range indices,
// truncated to maxPapers. Entries that are not integers are dropped.
// A reply with no JSON array is a ProviderResponseError.
func ParseSelection(text string, n, maxPapers int) ([]int, error) {
	var raw []json.RawMessage
	if err := llm.ExtractJSONArray(text, &raw); err != nil {
		return nil, domain.NewProviderResponseError("relevance filter", text, err)
	}

	seen := make(map[int]struct{}, len(raw))
	out := make([]int, 0, len(raw))
	for _, item := range raw {
		idx, ok := asIndex(item)
		if !ok || idx < 0 || idx >= n {
			continue
		}
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		out = append(out, idx)
		if len(out) == maxPapers {
			break
		}
	}
	return out, nil
}

func asIndex(item json.RawMessage) (int, bool) {
	var f float64
	if err := json.Unmarshal(item, &f); err != nil {
		return 0, false
	}
	if f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}

const filterSystemPrompt = `You are a research librarian. You judge which papers are most useful for
answering a research question, based on their titles and abstracts.
You reply with a JSON array of paper indices and nothing else.`

func buildFilterPrompt(question string, papers []domain.PaperRecord, maxPapers int) string {
	var sb strings.Builder

	sb.WriteString("Research question:\n")
	sb.WriteString(question)
	sb.WriteString("\n\nPapers:\n")

	for i, p := range papers {
		sb.WriteString(fmt.Sprintf("[%d] Title: %s\n", i, p.Title))
		sb.WriteString(fmt.Sprintf("    Abstract: %s\n", truncateRunes(p.Abstract, abstractSummaryLimit)))
		sb.WriteString(fmt.Sprintf("    Year: %s\n", p.Year))
		sb.WriteString(fmt.Sprintf("    Authors: %s\n", strings.Join(p.Authors, ", ")))
	}

	sb.WriteString(fmt.Sprintf("\nSelect at most %d papers that best help answer the question. ", maxPapers))
	sb.WriteString("Return their indices as a JSON array, most relevant first, for example [3, 0, 7].")

	return sb.String()
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
