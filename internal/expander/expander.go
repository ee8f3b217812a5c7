// Package expander turns a research question into the set of search terms
// sent to the academic sources.
//
// The first term is always the question itself, translated to English when
// it contains non-ASCII text. Short questions additionally get up to three
// alternative phrasings from the cheap model tier.
package expander

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/helixir/research-answer-service/internal/llm"
)

// Default values for the expander.
const (
	DefaultLengthThreshold = 100
	DefaultMaxAlternatives = 3
	DefaultCallTimeout     = 30 * time.Second
)

// Config controls when and how queries are expanded.
type Config struct {
	// LengthThreshold is the rune length below which alternatives are requested.
	LengthThreshold int

	// MaxAlternatives caps the number of alternative phrasings kept.
	MaxAlternatives int

	// CallTimeout bounds each provider call.
	CallTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.LengthThreshold <= 0 {
		c.LengthThreshold = DefaultLengthThreshold
	}
	if c.MaxAlternatives <= 0 {
		c.MaxAlternatives = DefaultMaxAlternatives
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = DefaultCallTimeout
	}
}

// Expander produces search terms for a query.
type Expander struct {
	client llm.Client
	cfg    Config
	logger zerolog.Logger
}

// New creates an Expander backed by the given client.
func New(client llm.Client, cfg Config, logger zerolog.Logger) *Expander {
	cfg.applyDefaults()
	return &Expander{
		client: client,
		cfg:    cfg,
		logger: logger.With().Str("component", "expander").Logger(),
	}
}

// IsNonEnglish reports whether q contains any rune outside ASCII.
func IsNonEnglish(q string) bool {
	for _, r := range q {
		if r > 0x7F {
			return true
		}
	}
	return false
}

// Expand returns the search terms for query. The (possibly translated)
// query comes first and the result is never empty. Provider failures
// degrade to fewer terms and are never returned.
func (e *Expander) Expand(ctx context.Context, query string) []string {
	q := strings.TrimSpace(query)
	if q == "" {
		return []string{query}
	}

	if IsNonEnglish(q) {
		q = e.translate(ctx, q)
	}

	terms := []string{q}
	if utf8.RuneCountInString(q) < e.cfg.LengthThreshold {
		terms = append(terms, e.alternatives(ctx, q)...)
	}

	return uniqueInOrder(terms)
}

func (e *Expander) translate(ctx context.Context, q string) string {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	resp, err := e.client.Complete(callCtx, llm.Request{
		System:      translateSystemPrompt,
		Prompt:      q,
		Tier:        llm.TierCheap,
		MaxTokens:   512,
		Temperature: llm.Float(0),
	})
	if err != nil {
		e.logger.Warn().Err(err).Msg("translation failed, searching with original query")
		return q
	}

	translated := strings.TrimSpace(llm.StripCodeFences(resp.Text))
	translated = strings.Trim(translated, `"`)
	if translated == "" {
		e.logger.Warn().Msg("translation returned empty text, searching with original query")
		return q
	}
	return translated
}

func (e *Expander) alternatives(ctx context.Context, q string) []string {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	resp, err := e.client.Complete(callCtx, llm.Request{
		System:    expandSystemPrompt,
		Prompt:    buildExpandPrompt(q, e.cfg.MaxAlternatives),
		Tier:      llm.TierCheap,
		MaxTokens: 256,
	})
	if err != nil {
		e.logger.Warn().Err(err).Msg("query expansion failed")
		return nil
	}

	alts := parseAlternatives(resp.Text)
	if len(alts) > e.cfg.MaxAlternatives {
		alts = alts[:e.cfg.MaxAlternatives]
	}

	e.logger.Debug().Strs("alternatives", alts).Msg("query expanded")
	return alts
}

// parseAlternatives reads a JSON array of strings, falling back to one
// phrasing per line with list markers and quotes removed.
func parseAlternatives(text string) []string {
	var arr []string
	if err := llm.ExtractJSONArray(text, &arr); err == nil {
		return cleanTerms(arr)
	}

	lines := strings.Split(llm.StripCodeFences(text), "\n")
	for i, line := range lines {
		lines[i] = stripListMarker(strings.TrimSpace(line))
	}
	return cleanTerms(lines)
}

func cleanTerms(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(strings.Trim(strings.TrimSpace(s), `"',`))
		if s == "" || s == "[" || s == "]" {
			continue
		}
		out = append(out, s)
	}
	return out
}

// stripListMarker removes a leading "-", "*", "•" or "1." / "1)" marker.
func stripListMarker(s string) string {
	for _, m := range []string{"- ", "* ", "• "} {
		if strings.HasPrefix(s, m) {
			return strings.TrimSpace(s[len(m):])
		}
	}

	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i > 0 && i < len(s) && (s[i] == '.' || s[i] == ')') {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}

// uniqueInOrder removes exact duplicates, keeping first occurrences.
func uniqueInOrder(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
