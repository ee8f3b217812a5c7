package llm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	t.Parallel()

	t.Run("openai", func(t *testing.T) {
		c, err := NewClient(FactoryConfig{Provider: "openai", RetryDelay: 5 * time.Millisecond, OpenAI: OpenAIConfig{APIKey: "k"}})
		require.NoError(t, err)
		p, ok := c.(*OpenAIProvider)
		require.True(t, ok)
		assert.Equal(t, 5*time.Millisecond, p.retryDelay)
		assert.Equal(t, defaultOpenAIBaseURL, p.baseURL)
	})

	t.Run("anthropic", func(t *testing.T) {
		c, err := NewClient(FactoryConfig{Provider: "anthropic", MaxRetries: -1, Anthropic: AnthropicConfig{APIKey: "k"}})
		require.NoError(t, err)
		p, ok := c.(*AnthropicProvider)
		require.True(t, ok)
		assert.Equal(t, 0, p.maxRetries)
		assert.Equal(t, time.Second, p.retryDelay)
	})

	t.Run("unsupported", func(t *testing.T) {
		_, err := NewClient(FactoryConfig{Provider: "llama"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unsupported LLM provider: "llama"`)
	})
}

func TestModels_For(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "premium-model", testModels.For(TierPremium))
	assert.Equal(t, "cheap-model", testModels.For(TierCheap))
	assert.Equal(t, "cheap-model", testModels.For(Tier("other")))
	assert.Equal(t, "p", Models{Premium: "p"}.For(TierCheap))
}
