//go:build evals

package evals_test

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/require"

	"github.com/corvuslabs/spyglass/internal/fetch"
	"github.com/corvuslabs/spyglass/internal/llm"
	"github.com/corvuslabs/spyglass/internal/prompts"
	"github.com/corvuslabs/spyglass/internal/research"
	"github.com/corvuslabs/spyglass/internal/websearch"
)

func init() {
	possiblePaths := []string{".env", "../.env"}

	for _, path := range possiblePaths {
		if err := godotenv.Load(path); err == nil {
			break
		}
	}
}

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()
	level := slog.LevelInfo
	if os.Getenv("SPYGLASS_EVAL_DEBUG") != "" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func requireAnthropicKey(t *testing.T) {
	t.Helper()
	if os.Getenv("ANTHROPIC_API_KEY") == "" {
		t.Skip("ANTHROPIC_API_KEY not set, skipping eval test")
	}
}

// setupPipeline builds a pipeline against real providers. The search
// provider defaults to DuckDuckGo, which needs no key; set
// SPYGLASS_SEARCH_PROVIDER and the matching key to use another one.
func setupPipeline(t *testing.T) *research.Pipeline {
	t.Helper()

	log := testLogger(t)

	llmClient, err := llm.NewAnthropic(llm.AnthropicConfig{Logger: log})
	require.NoError(t, err)

	searchProvider, err := websearch.New(websearch.Config{
		Logger:       log,
		Provider:     os.Getenv("SPYGLASS_SEARCH_PROVIDER"),
		TavilyAPIKey: os.Getenv("TAVILY_API_KEY"),
		BraveAPIKey:  os.Getenv("BRAVE_API_KEY"),
		CacheTTL:     time.Minute,
	})
	require.NoError(t, err)

	fetcher, err := fetch.New(fetch.Config{Logger: log})
	require.NoError(t, err)

	promptSet, err := prompts.LoadPrompts()
	require.NoError(t, err)

	pipeline, err := research.New(&research.Config{
		Logger:  log,
		LLM:     llmClient,
		Search:  searchProvider,
		Fetcher: fetcher,
		Prompts: promptSet,
	})
	require.NoError(t, err)
	return pipeline
}
