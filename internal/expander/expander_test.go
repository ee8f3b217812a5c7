package expander

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/research-answer-service/internal/llm"
	"github.com/helixir/research-answer-service/internal/llm/llmtest"
)

func newTestExpander(client llm.Client) *Expander {
	return New(client, Config{}, zerolog.Nop())
}

func TestIsNonEnglish(t *testing.T) {
	t.Parallel()

	assert.False(t, IsNonEnglish("What is CRISPR?"))
	assert.True(t, IsNonEnglish("¿Qué es CRISPR?"))
	assert.True(t, IsNonEnglish("CRISPR とは"))
	assert.False(t, IsNonEnglish(""))
}

func TestExpander_Expand(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("short english query gets alternatives", func(t *testing.T) {
		client := llmtest.New(llmtest.Text(`["CRISPR-Cas9 mechanism", "gene editing with CRISPR", "What is CRISPR?", "extra one", "extra two"]`))
		terms := newTestExpander(client).Expand(ctx, "What is CRISPR?")

		assert.Equal(t, []string{"What is CRISPR?", "CRISPR-Cas9 mechanism", "gene editing with CRISPR"}, terms)

		calls := client.Calls()
		require.Len(t, calls, 1)
		assert.Equal(t, llm.TierCheap, calls[0].Request.Tier)
		assert.Contains(t, calls[0].Request.Prompt, "What is CRISPR?")
	})

	t.Run("line fallback parser", func(t *testing.T) {
		client := llmtest.New(llmtest.Text("1. gene drive ecology\n2. \"mosquito gene drives\"\n- population suppression\n"))
		terms := newTestExpander(client).Expand(ctx, "gene drives")
		assert.Equal(t, []string{"gene drives", "gene drive ecology", "mosquito gene drives", "population suppression"}, terms)
	})

	t.Run("long query skips expansion", func(t *testing.T) {
		client := llmtest.New()
		long := strings.Repeat("protein folding dynamics ", 5)
		terms := newTestExpander(client).Expand(ctx, long)
		assert.Equal(t, []string{strings.TrimSpace(long)}, terms)
		assert.Empty(t, client.Calls())
	})

	t.Run("non english query is translated first", func(t *testing.T) {
		client := llmtest.New(
			llmtest.Text("What is CRISPR?"),
			llmtest.Text(`["CRISPR gene editing"]`),
		)
		terms := newTestExpander(client).Expand(ctx, "¿Qué es CRISPR?")
		assert.Equal(t, []string{"What is CRISPR?", "CRISPR gene editing"}, terms)
	})

	t.Run("translation failure keeps original", func(t *testing.T) {
		client := llmtest.New(
			llmtest.Fail(errors.New("provider down")),
			llmtest.Fail(errors.New("provider down")),
		)
		terms := newTestExpander(client).Expand(ctx, "¿Qué es CRISPR?")
		assert.Equal(t, []string{"¿Qué es CRISPR?"}, terms)
	})

	t.Run("empty translation keeps original", func(t *testing.T) {
		client := llmtest.New(llmtest.Text("   "), llmtest.Text("[]"))
		terms := newTestExpander(client).Expand(ctx, "Was ist Öl?")
		assert.Equal(t, []string{"Was ist Öl?"}, terms)
	})

	t.Run("expansion failure yields query only", func(t *testing.T) {
		client := llmtest.New(llmtest.Fail(errors.New("timeout")))
		terms := newTestExpander(client).Expand(ctx, "base editing")
		assert.Equal(t, []string{"base editing"}, terms)
	})

	t.Run("duplicates are case sensitive", func(t *testing.T) {
		client := llmtest.New(llmtest.Text(`["Base Editing", "base editing", "Base Editing"]`))
		terms := newTestExpander(client).Expand(ctx, "base editing")
		assert.Equal(t, []string{"base editing", "Base Editing"}, terms)
	})
}

func TestStripListMarker(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"1. gene drives":   "gene drives",
		"12) base editing": "base editing",
		"- prime editing":  "prime editing",
		"• CRISPRi":        "CRISPRi",
		"3D bioprinting":   "3D bioprinting",
		"5G health":        "5G health",
	}
	for in, want := range tests {
		assert.Equal(t, want, stripListMarker(in), in)
	}
}
