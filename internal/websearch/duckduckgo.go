package websearch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/corvuslabs/spyglass/internal/metrics"
)

const (
	defaultDuckDuckGoBaseURL = "https://lite.duckduckgo.com"

	// DuckDuckGo has no published API; the lite endpoint tolerates roughly
	// one request per second before returning 429s.
	duckduckgoMinInterval = time.Second
	duckduckgoMaxTries    = 4

	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// DuckDuckGoConfig configures the DuckDuckGo search provider.
type DuckDuckGoConfig struct {
	Logger *slog.Logger
	Clock  clockwork.Clock

	// BaseURL overrides the lite endpoint, for tests.
	BaseURL string

	MaxResults int
	HTTPClient *http.Client
}

func (c *DuckDuckGoConfig) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.BaseURL == "" {
		c.BaseURL = defaultDuckDuckGoBaseURL
	}
	if c.MaxResults <= 0 {
		c.MaxResults = defaultMaxResults
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: defaultTimeout}
	}
	return nil
}

// duckduckgo scrapes the lite HTML interface. Queries are serialized
// through a gate so one provider instance never exceeds 1 request/second.
type duckduckgo struct {
	log   *slog.Logger
	cfg   DuckDuckGoConfig
	clock clockwork.Clock

	gateMu  sync.Mutex
	readyAt time.Time
}

// NewDuckDuckGo creates a DuckDuckGo search provider. It needs no API key.
func NewDuckDuckGo(cfg DuckDuckGoConfig) (Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &duckduckgo{log: cfg.Logger, cfg: cfg, clock: cfg.Clock}, nil
}

func (d *duckduckgo) Name() string { return ProviderDuckDuckGo }

func (d *duckduckgo) Search(ctx context.Context, query string) ([]Result, error) {
	form := url.Values{}
	form.Set("q", query)

	start := d.clock.Now()
	delay := duckduckgoMinInterval
	var body string
	for attempt := 1; ; attempt++ {
		if err := d.waitAndLock(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.BaseURL+"/lite/", strings.NewReader(form.Encode()))
		if err != nil {
			d.unlock(0)
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("User-Agent", browserUserAgent)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := d.cfg.HTTPClient.Do(req)
		if err != nil {
			d.unlock(duckduckgoMinInterval)
			metrics.SearchCalls.WithLabelValues(ProviderDuckDuckGo, "error").Inc()
			return nil, fmt.Errorf("duckduckgo request failed: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			// Double the hold each time so repeated 429s back off.
			d.unlock(delay)
			if attempt >= duckduckgoMaxTries {
				metrics.SearchCalls.WithLabelValues(ProviderDuckDuckGo, "error").Inc()
				return nil, fmt.Errorf("duckduckgo rate limited after %d attempts", attempt)
			}
			d.log.Debug("websearch: duckduckgo rate limited, retrying", "wait", delay)
			delay *= 2
			continue
		}

		raw, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		d.unlock(duckduckgoMinInterval)

		if resp.StatusCode != http.StatusOK {
			metrics.SearchCalls.WithLabelValues(ProviderDuckDuckGo, "error").Inc()
			return nil, fmt.Errorf("duckduckgo http %d", resp.StatusCode)
		}
		if readErr != nil {
			metrics.SearchCalls.WithLabelValues(ProviderDuckDuckGo, "error").Inc()
			return nil, fmt.Errorf("failed to read response: %w", readErr)
		}
		body = string(raw)
		break
	}
	metrics.SearchCalls.WithLabelValues(ProviderDuckDuckGo, "success").Inc()

	results := parseLiteResults(body, d.cfg.MaxResults)

	d.log.Debug("websearch: duckduckgo search completed",
		"query", query,
		"results", len(results),
		"duration", d.clock.Since(start),
	)
	return results, nil
}

// waitAndLock blocks until the next request may fire, then returns with
// the gate held. The caller must release it with unlock.
func (d *duckduckgo) waitAndLock(ctx context.Context) error {
	d.gateMu.Lock()
	for {
		wait := d.readyAt.Sub(d.clock.Now())
		if wait <= 0 {
			return nil
		}
		// Another waiter can fire and push readyAt forward while we
		// sleep, so re-check after re-acquiring the lock.
		d.gateMu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.clock.After(wait):
		}
		d.gateMu.Lock()
	}
}

func (d *duckduckgo) unlock(delay time.Duration) {
	d.readyAt = d.clock.Now().Add(delay)
	d.gateMu.Unlock()
}

// The lite page is a legacy table layout: result links carry a
// result-link class and snippets sit in result-snippet cells.
var (
	ddgLinkPattern    = regexp.MustCompile(`<a[^>]*class=['"]result-link['"][^>]*href=['"]([^'"]+)['"][^>]*>([^<]+)</a>`)
	ddgLinkPatternAlt = regexp.MustCompile(`<a[^>]*href=['"]([^'"]+)['"][^>]*class=['"]result-link['"][^>]*>([^<]+)</a>`)
	ddgSnippetPattern = regexp.MustCompile(`<td[^>]*class=['"]result-snippet['"][^>]*>([^<]+(?:<[^>]+>[^<]*</[^>]+>)*[^<]*)</td>`)
	ddgAnyLinkPattern = regexp.MustCompile(`<a[^>]+href=['"]([^'"]+)['"][^>]*>([^<]+)</a>`)

	htmlTagPattern = regexp.MustCompile(`<[^>]+>`)
)

// parseLiteResults extracts search results from the DuckDuckGo lite HTML.
// A snippet belongs to the link it follows in the page, so pairing goes
// by position rather than by index: a result row without a snippet cell
// must not shift later snippets onto the wrong result.
func parseLiteResults(html string, maxResults int) []Result {
	links := ddgLinkPattern.FindAllStringSubmatchIndex(html, -1)
	if len(links) == 0 {
		links = ddgLinkPatternAlt.FindAllStringSubmatchIndex(html, -1)
	}
	snippets := ddgSnippetPattern.FindAllStringSubmatchIndex(html, -1)

	var results []Result
	next := 0
	for i, link := range links {
		if len(link) < 6 {
			continue
		}
		resultURL := strings.TrimSpace(html[link[2]:link[3]])
		title := cleanHTML(html[link[4]:link[5]])
		if resultURL == "" || title == "" {
			continue
		}

		linkEnd := len(html)
		if i+1 < len(links) {
			linkEnd = links[i+1][0]
		}
		for next < len(snippets) && snippets[next][0] < link[1] {
			next++
		}
		snippet := ""
		if next < len(snippets) && snippets[next][0] < linkEnd {
			snippet = cleanHTML(html[snippets[next][2]:snippets[next][3]])
			next++
		}

		results = append(results, Result{Title: title, URL: resultURL, Snippet: snippet})
		if len(results) >= maxResults {
			break
		}
	}

	if len(results) == 0 {
		results = parseLiteFallback(html, maxResults)
	}
	return results
}

// parseLiteFallback scans for any external link when the expected layout
// is missing, skipping DuckDuckGo-internal navigation.
func parseLiteFallback(html string, maxResults int) []Result {
	var results []Result
	seen := make(map[string]bool)
	for _, match := range ddgAnyLinkPattern.FindAllStringSubmatch(html, -1) {
		if len(match) < 3 {
			continue
		}
		resultURL := strings.TrimSpace(match[1])
		title := cleanHTML(match[2])

		if strings.Contains(resultURL, "duckduckgo.com") ||
			strings.HasPrefix(resultURL, "/") ||
			strings.HasPrefix(resultURL, "#") ||
			strings.HasPrefix(resultURL, "javascript:") {
			continue
		}
		if len(title) < 5 || seen[resultURL] {
			continue
		}
		seen[resultURL] = true

		results = append(results, Result{Title: title, URL: resultURL})
		if len(results) >= maxResults {
			break
		}
	}
	return results
}

// cleanHTML strips tags and decodes the entities the lite page emits.
func cleanHTML(s string) string {
	s = htmlTagPattern.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "&amp;", "&")
	s = strings.ReplaceAll(s, "&lt;", "<")
	s = strings.ReplaceAll(s, "&gt;", ">")
	s = strings.ReplaceAll(s, "&quot;", "\"")
	s = strings.ReplaceAll(s, "&#39;", "'")
	s = strings.ReplaceAll(s, "&nbsp;", " ")
	return strings.TrimSpace(s)
}
