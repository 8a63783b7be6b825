// Package fetch retrieves web pages for the research pipeline and
// reduces them to bounded plain text.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/corvuslabs/spyglass/internal/metrics"
)

const (
	// Per-page cap on extracted text handed to the LLM.
	defaultMaxChars = 10_000

	defaultTimeout = 10 * time.Second

	// The raw body is read up to this many bytes before extraction so a
	// pathological page cannot exhaust memory.
	maxBodyBytes = 2 << 20

	truncationMarker = "\n[TRUNCATED]"

	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Config configures the page fetcher.
type Config struct {
	Logger *slog.Logger

	// Blocklist filters URLs that are never fetched. Defaults to the
	// embedded blocklist.
	Blocklist *Blocklist

	// MaxChars caps the extracted text per page. Defaults to 10000.
	MaxChars int

	HTTPClient *http.Client
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.Blocklist == nil {
		blocklist, err := DefaultBlocklist()
		if err != nil {
			return fmt.Errorf("failed to load default blocklist: %w", err)
		}
		c.Blocklist = blocklist
	}
	if c.MaxChars <= 0 {
		c.MaxChars = defaultMaxChars
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: defaultTimeout}
	}
	return nil
}

// Fetcher downloads a URL and strips it to readable text.
type Fetcher struct {
	log *slog.Logger
	cfg Config
}

// New creates a page fetcher.
func New(cfg Config) (*Fetcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Fetcher{log: cfg.Logger, cfg: cfg}, nil
}

// Fetch downloads the URL, extracts its text content, and truncates it
// to the configured cap. Blocklisted URLs are refused without a request.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	trimmed := strings.TrimSpace(pageURL)
	if trimmed == "" {
		return "", fmt.Errorf("fetch url is empty")
	}

	if blocked, reason := f.cfg.Blocklist.Blocked(trimmed); blocked {
		metrics.PagesBlocked.Inc()
		f.log.Debug("fetch: url blocklisted", "url", trimmed, "reason", reason)
		return "", fmt.Errorf("url is blocklisted: %s", reason)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, trimmed, nil)
	if err != nil {
		metrics.PageFetches.WithLabelValues("error").Inc()
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	start := time.Now()
	resp, err := f.cfg.HTTPClient.Do(req)
	if err != nil {
		metrics.PageFetches.WithLabelValues("error").Inc()
		return "", fmt.Errorf("fetch request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.PageFetches.WithLabelValues("error").Inc()
		return "", fmt.Errorf("fetch http %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		metrics.PageFetches.WithLabelValues("error").Inc()
		return "", fmt.Errorf("failed to read body: %w", err)
	}

	text := extractText(string(body))
	if len(text) > f.cfg.MaxChars {
		// Back off to a rune boundary so the cap never splits a
		// multi-byte character.
		cut := f.cfg.MaxChars
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + truncationMarker
	}
	metrics.PageFetches.WithLabelValues("success").Inc()

	f.log.Debug("fetch: page fetched",
		"url", trimmed,
		"chars", len(text),
		"duration", time.Since(start),
	)
	return text, nil
}
