// Package websearch provides the web search providers used by the
// research pipeline: Tavily, Brave, and DuckDuckGo, plus a TTL-cache
// decorator that memoizes recent queries.
package websearch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	ProviderTavily     = "tavily"
	ProviderBrave      = "brave"
	ProviderDuckDuckGo = "duckduckgo"

	DefaultProvider = ProviderDuckDuckGo

	defaultMaxResults = 5
	defaultTimeout    = 10 * time.Second
)

// Result is one web search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Provider executes a web search query and returns zero or more results.
type Provider interface {
	// Name returns the provider's registry name.
	Name() string

	// Search executes the query. Implementations bound each call with
	// their configured HTTP timeout and honor ctx cancellation.
	Search(ctx context.Context, query string) ([]Result, error)
}

// Config selects and configures a search provider by name.
type Config struct {
	Logger *slog.Logger
	Clock  clockwork.Clock

	// Provider is one of ProviderTavily, ProviderBrave, or
	// ProviderDuckDuckGo. Defaults to DuckDuckGo, which needs no key.
	Provider string

	TavilyAPIKey string
	BraveAPIKey  string

	// MaxResults caps the results returned per query. Defaults to 5.
	MaxResults int

	// Timeout bounds each outbound search call. Defaults to 10s.
	Timeout time.Duration

	// CacheTTL enables the query cache when set. Zero disables caching.
	CacheTTL time.Duration
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Provider == "" {
		c.Provider = DefaultProvider
	}
	if c.MaxResults <= 0 {
		c.MaxResults = defaultMaxResults
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	return nil
}

// New constructs the provider named in cfg, wrapped in the query cache
// when cfg.CacheTTL is set.
func New(cfg Config) (Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}

	var provider Provider
	var err error
	switch cfg.Provider {
	case ProviderTavily:
		provider, err = NewTavily(TavilyConfig{
			Logger:     cfg.Logger,
			APIKey:     cfg.TavilyAPIKey,
			MaxResults: cfg.MaxResults,
			HTTPClient: httpClient,
		})
	case ProviderBrave:
		provider, err = NewBrave(BraveConfig{
			Logger:     cfg.Logger,
			Clock:      cfg.Clock,
			APIKey:     cfg.BraveAPIKey,
			MaxResults: cfg.MaxResults,
			HTTPClient: httpClient,
		})
	case ProviderDuckDuckGo:
		provider, err = NewDuckDuckGo(DuckDuckGoConfig{
			Logger:     cfg.Logger,
			Clock:      cfg.Clock,
			MaxResults: cfg.MaxResults,
			HTTPClient: httpClient,
		})
	default:
		return nil, fmt.Errorf("unknown search provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s provider: %w", cfg.Provider, err)
	}

	if cfg.CacheTTL > 0 {
		provider, err = NewCached(CachedConfig{
			Logger:   cfg.Logger,
			Provider: provider,
			TTL:      cfg.CacheTTL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create search cache: %w", err)
		}
	}

	return provider, nil
}
