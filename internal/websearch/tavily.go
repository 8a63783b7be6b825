package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/corvuslabs/spyglass/internal/metrics"
)

const (
	defaultTavilyBaseURL = "https://api.tavily.com"
	defaultTavilyDepth   = "basic"

	tavilyMaxTries = 4
)

// TavilyConfig configures the Tavily search provider.
type TavilyConfig struct {
	Logger *slog.Logger
	APIKey string

	// BaseURL overrides the Tavily API endpoint, for tests.
	BaseURL string

	// Depth is Tavily's search depth parameter (basic or advanced).
	Depth string

	MaxResults int
	HTTPClient *http.Client
}

func (c *TavilyConfig) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.APIKey == "" {
		return fmt.Errorf("api key is required")
	}
	if c.BaseURL == "" {
		c.BaseURL = defaultTavilyBaseURL
	}
	if c.Depth == "" {
		c.Depth = defaultTavilyDepth
	}
	if c.MaxResults <= 0 {
		c.MaxResults = defaultMaxResults
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: defaultTimeout}
	}
	return nil
}

type tavily struct {
	log *slog.Logger
	cfg TavilyConfig
}

// NewTavily creates a Tavily search provider. Rate-limited (429) and
// server-side (5xx) responses are retried with exponential backoff.
func NewTavily(cfg TavilyConfig) (Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &tavily{log: cfg.Logger, cfg: cfg}, nil
}

func (t *tavily) Name() string { return ProviderTavily }

type tavilyRequest struct {
	Query  string `json:"query"`
	APIKey string `json:"api_key"`
	Depth  string `json:"depth"`
}

type tavilyResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

func (t *tavily) Search(ctx context.Context, query string) ([]Result, error) {
	payload, err := json.Marshal(tavilyRequest{
		Query:  query,
		APIKey: t.cfg.APIKey,
		Depth:  t.cfg.Depth,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tavily request: %w", err)
	}

	start := time.Now()
	response, err := backoff.Retry(ctx, func() (*tavilyResponse, error) {
		return t.search(ctx, payload)
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(tavilyMaxTries))
	if err != nil {
		metrics.SearchCalls.WithLabelValues(ProviderTavily, "error").Inc()
		return nil, fmt.Errorf("tavily search failed: %w", err)
	}
	metrics.SearchCalls.WithLabelValues(ProviderTavily, "success").Inc()

	results := make([]Result, 0, len(response.Results))
	for _, r := range response.Results {
		results = append(results, Result{Title: r.Title, URL: r.URL, Snippet: r.Content})
		if len(results) >= t.cfg.MaxResults {
			break
		}
	}

	t.log.Debug("websearch: tavily search completed",
		"query", query,
		"results", len(results),
		"duration", time.Since(start),
	)
	return results, nil
}

func (t *tavily) search(ctx context.Context, payload []byte) (*tavilyResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.BaseURL+"/search", bytes.NewReader(payload))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("tavily http %d", resp.StatusCode)
	default:
		return nil, backoff.Permanent(fmt.Errorf("tavily http %d", resp.StatusCode))
	}

	var response tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to decode response: %w", err))
	}
	return &response, nil
}
