package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/corvuslabs/spyglass/internal/metrics"
)

const defaultBraveBaseURL = "https://api.search.brave.com"

// BraveConfig configures the Brave search provider.
type BraveConfig struct {
	Logger *slog.Logger
	Clock  clockwork.Clock
	APIKey string

	// BaseURL overrides the Brave API endpoint, for tests.
	BaseURL string

	MaxResults int
	HTTPClient *http.Client
}

func (c *BraveConfig) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.APIKey == "" {
		return fmt.Errorf("api key is required")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.BaseURL == "" {
		c.BaseURL = defaultBraveBaseURL
	}
	if c.MaxResults <= 0 {
		c.MaxResults = defaultMaxResults
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: defaultTimeout}
	}
	return nil
}

// brave serializes its queries through a gate so one provider instance
// never exceeds Brave's 1 request/second plan limit. The gate honors the
// X-RateLimit-Reset and X-RateLimit-Remaining response headers.
type brave struct {
	log   *slog.Logger
	cfg   BraveConfig
	clock clockwork.Clock

	gateMu  sync.Mutex
	readyAt time.Time
}

// NewBrave creates a Brave search provider.
func NewBrave(cfg BraveConfig) (Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &brave{log: cfg.Logger, cfg: cfg, clock: cfg.Clock}, nil
}

func (b *brave) Name() string { return ProviderBrave }

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

func (b *brave) Search(ctx context.Context, query string) ([]Result, error) {
	endpoint := fmt.Sprintf("%s/res/v1/web/search?q=%s", b.cfg.BaseURL, url.QueryEscape(query))

	start := b.clock.Now()
	var resp *http.Response
	for {
		if err := b.waitAndLock(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			b.unlock(0)
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Subscription-Token", b.cfg.APIKey)

		resp, err = b.cfg.HTTPClient.Do(req)
		if err != nil {
			b.unlock(time.Second)
			metrics.SearchCalls.WithLabelValues(ProviderBrave, "error").Inc()
			return nil, fmt.Errorf("brave request failed: %w", err)
		}

		if resp.StatusCode != http.StatusTooManyRequests {
			b.unlock(braveNextDelay(resp.Header))
			break
		}

		wait := braveRetryDelay(resp.Header)
		resp.Body.Close()
		b.unlock(wait)
		b.log.Debug("websearch: brave rate limited, retrying", "wait", wait)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.SearchCalls.WithLabelValues(ProviderBrave, "error").Inc()
		return nil, fmt.Errorf("brave http %d", resp.StatusCode)
	}

	var payload braveResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		metrics.SearchCalls.WithLabelValues(ProviderBrave, "error").Inc()
		return nil, fmt.Errorf("failed to decode brave response: %w", err)
	}
	metrics.SearchCalls.WithLabelValues(ProviderBrave, "success").Inc()

	results := make([]Result, 0, len(payload.Web.Results))
	for _, r := range payload.Web.Results {
		results = append(results, Result{Title: r.Title, URL: r.URL, Snippet: r.Description})
		if len(results) >= b.cfg.MaxResults {
			break
		}
	}

	b.log.Debug("websearch: brave search completed",
		"query", query,
		"results", len(results),
		"duration", b.clock.Since(start),
	)
	return results, nil
}

// waitAndLock blocks until the next request may fire, then returns with
// the gate held. The caller must release it with unlock.
func (b *brave) waitAndLock(ctx context.Context) error {
	b.gateMu.Lock()
	for {
		wait := b.readyAt.Sub(b.clock.Now())
		if wait <= 0 {
			return nil
		}
		// Another waiter can fire and push readyAt forward while we
		// sleep, so re-check after re-acquiring the lock.
		b.gateMu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.clock.After(wait):
		}
		b.gateMu.Lock()
	}
}

// unlock sets the minimum delay before the next request and releases the
// gate so the next waiter may proceed.
func (b *brave) unlock(delay time.Duration) {
	b.readyAt = b.clock.Now().Add(delay)
	b.gateMu.Unlock()
}

// braveRetryDelay reads X-RateLimit-Reset to determine how long to wait
// before retrying a 429. The header is a comma-separated list of reset
// times in seconds; the smallest one wins. Falls back to 1 second.
func braveRetryDelay(h http.Header) time.Duration {
	raw := h.Get("X-RateLimit-Reset")
	if raw == "" {
		return time.Second
	}
	minReset := -1
	for _, part := range strings.Split(raw, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 {
			continue
		}
		if minReset < 0 || n < minReset {
			minReset = n
		}
	}
	if minReset <= 0 {
		return time.Second
	}
	return time.Duration(minReset) * time.Second
}

// braveNextDelay reads X-RateLimit-Remaining ("per-second, per-month") to
// decide how long to hold the gate after a successful response. An
// exhausted per-second bucket or a missing header holds it for 1 second.
func braveNextDelay(h http.Header) time.Duration {
	raw := h.Get("X-RateLimit-Remaining")
	if raw == "" {
		return time.Second
	}
	parts := strings.SplitN(raw, ",", 2)
	perSecond, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || perSecond <= 0 {
		return time.Second
	}
	return 0
}
