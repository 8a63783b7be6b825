package research

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/corvuslabs/spyglass/internal/prompts"
	"github.com/corvuslabs/spyglass/internal/websearch"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

type mockLLM struct {
	calls        atomic.Int32
	CompleteFunc func(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

func (m *mockLLM) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m.calls.Add(1)
	return m.CompleteFunc(ctx, systemPrompt, userPrompt)
}

type mockSearch struct {
	calls      atomic.Int32
	SearchFunc func(ctx context.Context, query string) ([]websearch.Result, error)
}

func (m *mockSearch) Search(ctx context.Context, query string) ([]websearch.Result, error) {
	m.calls.Add(1)
	return m.SearchFunc(ctx, query)
}

type mockFetcher struct {
	calls     atomic.Int32
	FetchFunc func(ctx context.Context, url string) (string, error)
}

func (m *mockFetcher) Fetch(ctx context.Context, url string) (string, error) {
	m.calls.Add(1)
	return m.FetchFunc(ctx, url)
}

// scriptedLLM answers each pipeline prompt by recognizing which stage's
// system prompt it received, so one mock serves a whole invocation.
func scriptedLLM(t *testing.T) *mockLLM {
	t.Helper()
	return &mockLLM{
		CompleteFunc: func(_ context.Context, systemPrompt, userPrompt string) (string, error) {
			switch {
			case strings.Contains(systemPrompt, "web search queries"):
				return `["query one", "query two"]`, nil
			case strings.Contains(systemPrompt, "condense"):
				return "digest: " + firstLine(userPrompt), nil
			case strings.Contains(systemPrompt, "critical research assistant"):
				return "Answer: " + userPrompt, nil
			default:
				return "", fmt.Errorf("unrecognized system prompt: %s", firstLine(systemPrompt))
			}
		},
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i != -1 {
		return s[:i]
	}
	return s
}

func searchReturning(results ...websearch.Result) *mockSearch {
	return &mockSearch{
		SearchFunc: func(context.Context, string) ([]websearch.Result, error) {
			return results, nil
		},
	}
}

func fetchReturning(text string) *mockFetcher {
	return &mockFetcher{
		FetchFunc: func(context.Context, string) (string, error) {
			return text, nil
		},
	}
}

func newTestConfig(t *testing.T, overrides ...func(*Config)) *Config {
	t.Helper()

	loaded, err := prompts.LoadPrompts()
	require.NoError(t, err)

	cfg := &Config{
		Logger: newTestLogger(),
		Clock:  clockwork.NewRealClock(),
		LLM:    scriptedLLM(t),
		Search: searchReturning(
			websearch.Result{Title: "A", URL: "https://example.com/a", Snippet: "snippet a"},
			websearch.Result{Title: "B", URL: "https://example.com/b", Snippet: "snippet b"},
		),
		Fetcher: fetchReturning("page text"),
		Prompts: loaded,
	}
	for _, override := range overrides {
		override(cfg)
	}
	return cfg
}
