package websearch

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestWebSearch_Tavily_ParsesResults(t *testing.T) {
	t.Parallel()

	var gotBody tavilyRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/search", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		_, _ = w.Write([]byte(`{"results": [
			{"title": "NBA ages", "url": "https://example.com/a", "content": "snippet a"},
			{"title": "Roster stats", "url": "https://example.com/b", "content": "snippet b"}
		]}`))
	}))
	t.Cleanup(server.Close)

	provider, err := NewTavily(TavilyConfig{
		Logger:  newTestLogger(),
		APIKey:  "test-key",
		BaseURL: server.URL,
	})
	require.NoError(t, err)
	require.Equal(t, ProviderTavily, provider.Name())

	results, err := provider.Search(context.Background(), "nba player ages")
	require.NoError(t, err)

	require.Equal(t, "nba player ages", gotBody.Query)
	require.Equal(t, "test-key", gotBody.APIKey)
	require.Equal(t, "basic", gotBody.Depth)

	require.Len(t, results, 2)
	require.Equal(t, Result{Title: "NBA ages", URL: "https://example.com/a", Snippet: "snippet a"}, results[0])
}

func TestWebSearch_Tavily_CapsResults(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results": [
			{"title": "a", "url": "https://a", "content": ""},
			{"title": "b", "url": "https://b", "content": ""},
			{"title": "c", "url": "https://c", "content": ""}
		]}`))
	}))
	t.Cleanup(server.Close)

	provider, err := NewTavily(TavilyConfig{
		Logger:     newTestLogger(),
		APIKey:     "test-key",
		BaseURL:    server.URL,
		MaxResults: 2,
	})
	require.NoError(t, err)

	results, err := provider.Search(context.Background(), "anything")
	require.NoError(t, err)
	require.Len(t, results, 2)
}

func TestWebSearch_Tavily_RetriesRateLimit(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"results": [{"title": "a", "url": "https://a", "content": "x"}]}`))
	}))
	t.Cleanup(server.Close)

	provider, err := NewTavily(TavilyConfig{
		Logger:  newTestLogger(),
		APIKey:  "test-key",
		BaseURL: server.URL,
	})
	require.NoError(t, err)

	results, err := provider.Search(context.Background(), "anything")
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, int32(2), calls.Load())
}

func TestWebSearch_Tavily_ClientErrorFailsFast(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	t.Cleanup(server.Close)

	provider, err := NewTavily(TavilyConfig{
		Logger:  newTestLogger(),
		APIKey:  "test-key",
		BaseURL: server.URL,
	})
	require.NoError(t, err)

	_, err = provider.Search(context.Background(), "anything")
	require.Error(t, err)
	require.Contains(t, err.Error(), "http 400")
	require.Equal(t, int32(1), calls.Load())
}

func TestWebSearch_Tavily_ConfigRequiresAPIKey(t *testing.T) {
	t.Parallel()

	_, err := NewTavily(TavilyConfig{Logger: newTestLogger()})
	require.Error(t, err)
	require.Contains(t, err.Error(), "api key is required")
}
