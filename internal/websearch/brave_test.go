package websearch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func TestWebSearch_Brave_ParsesResultsAndSendsToken(t *testing.T) {
	t.Parallel()

	var gotToken string
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Subscription-Token")
		gotQuery = r.URL.Query().Get("q")
		_, _ = w.Write([]byte(`{"web": {"results": [
			{"title": "Point guards", "url": "https://example.com/pg", "description": "desc"}
		]}}`))
	}))
	t.Cleanup(server.Close)

	provider, err := NewBrave(BraveConfig{
		Logger:  newTestLogger(),
		APIKey:  "brave-key",
		BaseURL: server.URL,
	})
	require.NoError(t, err)
	require.Equal(t, ProviderBrave, provider.Name())

	results, err := provider.Search(context.Background(), "point guard age")
	require.NoError(t, err)

	require.Equal(t, "brave-key", gotToken)
	require.Equal(t, "point guard age", gotQuery)
	require.Len(t, results, 1)
	require.Equal(t, Result{Title: "Point guards", URL: "https://example.com/pg", Snippet: "desc"}, results[0])
}

func TestWebSearch_Brave_GateHoldsSecondRequest(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		// Per-second bucket exhausted: the gate must hold for a second.
		w.Header().Set("X-RateLimit-Remaining", "0, 1000")
		_, _ = w.Write([]byte(`{"web": {"results": []}}`))
	}))
	t.Cleanup(server.Close)

	clock := clockwork.NewFakeClock()
	provider, err := NewBrave(BraveConfig{
		Logger:  newTestLogger(),
		Clock:   clock,
		APIKey:  "brave-key",
		BaseURL: server.URL,
	})
	require.NoError(t, err)

	_, err = provider.Search(context.Background(), "first")
	require.NoError(t, err)
	require.Equal(t, int32(1), calls.Load())

	done := make(chan error, 1)
	go func() {
		_, err := provider.Search(context.Background(), "second")
		done <- err
	}()

	// The second search must be waiting on the gate, not on the wire.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	require.Equal(t, int32(1), calls.Load())

	clock.Advance(time.Second)
	require.NoError(t, <-done)
	require.Equal(t, int32(2), calls.Load())
}

func TestWebSearch_Brave_GateSerializesConcurrentWaiters(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		// Every response exhausts the per-second bucket, so the gate
		// re-arms after each request.
		w.Header().Set("X-RateLimit-Remaining", "0, 1000")
		_, _ = w.Write([]byte(`{"web": {"results": []}}`))
	}))
	t.Cleanup(server.Close)

	clock := clockwork.NewFakeClock()
	provider, err := NewBrave(BraveConfig{
		Logger:  newTestLogger(),
		Clock:   clock,
		APIKey:  "brave-key",
		BaseURL: server.URL,
	})
	require.NoError(t, err)

	_, err = provider.Search(context.Background(), "first")
	require.NoError(t, err)
	require.Equal(t, int32(1), calls.Load())

	// Park two searches on the gate at the same time.
	done := make(chan error, 2)
	for _, query := range []string{"second", "third"} {
		go func() {
			_, err := provider.Search(context.Background(), query)
			done <- err
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 2))
	require.Equal(t, int32(1), calls.Load())

	// One tick releases exactly one waiter; the other re-checks the
	// gate and parks again for the next interval.
	clock.Advance(time.Second)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	require.Equal(t, int32(2), calls.Load())

	clock.Advance(time.Second)
	require.NoError(t, <-done)
	require.NoError(t, <-done)
	require.Equal(t, int32(3), calls.Load())
}

func TestWebSearch_Brave_RetriesAfterRateLimitReset(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("X-RateLimit-Reset", "2, 86400")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("X-RateLimit-Remaining", "1, 1000")
		_, _ = w.Write([]byte(`{"web": {"results": [{"title": "t", "url": "https://u", "description": "d"}]}}`))
	}))
	t.Cleanup(server.Close)

	clock := clockwork.NewFakeClock()
	provider, err := NewBrave(BraveConfig{
		Logger:  newTestLogger(),
		Clock:   clock,
		APIKey:  "brave-key",
		BaseURL: server.URL,
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	var results []Result
	go func() {
		var err error
		results, err = provider.Search(context.Background(), "query")
		done <- err
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	require.Equal(t, int32(1), calls.Load())

	clock.Advance(2 * time.Second)
	require.NoError(t, <-done)
	require.Equal(t, int32(2), calls.Load())
	require.Len(t, results, 1)
}

func TestWebSearch_Brave_RetryDelayHeaderParsing(t *testing.T) {
	t.Parallel()

	h := http.Header{}
	require.Equal(t, time.Second, braveRetryDelay(h))

	h.Set("X-RateLimit-Reset", "3, 86400")
	require.Equal(t, 3*time.Second, braveRetryDelay(h))

	h.Set("X-RateLimit-Reset", "garbage")
	require.Equal(t, time.Second, braveRetryDelay(h))

	h = http.Header{}
	require.Equal(t, time.Second, braveNextDelay(h))

	h.Set("X-RateLimit-Remaining", "0, 1000")
	require.Equal(t, time.Second, braveNextDelay(h))

	h.Set("X-RateLimit-Remaining", "1, 1000")
	require.Equal(t, time.Duration(0), braveNextDelay(h))
}

func TestWebSearch_Brave_ConfigRequiresAPIKey(t *testing.T) {
	t.Parallel()

	_, err := NewBrave(BraveConfig{Logger: newTestLogger()})
	require.Error(t, err)
	require.Contains(t, err.Error(), "api key is required")
}
