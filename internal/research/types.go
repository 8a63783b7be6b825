package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/corvuslabs/spyglass/internal/websearch"
)

// ErrEmptyQuestion is returned by Run before any network call when the
// question is empty or whitespace.
var ErrEmptyQuestion = errors.New("question is empty")

// Request is the pipeline input: one free-text research question.
type Request struct {
	Question string
}

// FinalAnswer is the terminal output of one pipeline invocation.
type FinalAnswer struct {
	Text string

	// Metadata for the shells to log and render.
	Duration time.Duration
	Sources  []SourceDigest
}

// SourceDigest is the per-page condensation produced by the research
// stage before the digests collapse into the research summary.
type SourceDigest struct {
	URL     string
	Summary string
}

// researchContext is the record that flows through the stages within one
// invocation. Fields are set once and never overwritten, so the writer
// stage sees the exact question the invocation started with.
type researchContext struct {
	question        string
	researchSummary string
	summarySet      bool
}

// withResearchSummary returns a copy with the summary attached. A summary
// that is already set is kept.
func (c researchContext) withResearchSummary(summary string) researchContext {
	if c.summarySet {
		return c
	}
	c.researchSummary = summary
	c.summarySet = true
	return c
}

// LLMClient is the interface for interacting with an LLM.
type LLMClient interface {
	// Complete sends a prompt and returns the response text.
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// SearchProvider executes one web search query.
type SearchProvider interface {
	Search(ctx context.Context, query string) ([]websearch.Result, error)
}

// PageFetcher retrieves the readable text of a result URL.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// PromptsProvider provides access to prompt templates.
type PromptsProvider interface {
	// GetPrompt returns the prompt content for the given name.
	GetPrompt(name string) string
}

const (
	defaultMaxQueries = 3
	defaultMaxPages   = 5
	defaultPoolSize   = 4
)

// Config holds the configuration for the research pipeline.
type Config struct {
	Logger  *slog.Logger
	Clock   clockwork.Clock
	LLM     LLMClient
	Search  SearchProvider
	Fetcher PageFetcher
	Prompts PromptsProvider

	// MaxQueries caps the search queries formed per question. Default 3.
	MaxQueries int

	// MaxPages caps the result pages digested per question. Default 5.
	MaxPages int

	// PoolSize bounds the concurrent search and fetch+digest calls.
	// Default 4.
	PoolSize int
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.LLM == nil {
		return fmt.Errorf("llm client is required")
	}
	if c.Search == nil {
		return fmt.Errorf("search provider is required")
	}
	if c.Fetcher == nil {
		return fmt.Errorf("page fetcher is required")
	}
	if c.Prompts == nil {
		return fmt.Errorf("prompts provider is required")
	}
	if c.MaxQueries <= 0 {
		c.MaxQueries = defaultMaxQueries
	}
	if c.MaxPages <= 0 {
		c.MaxPages = defaultMaxPages
	}
	if c.PoolSize <= 0 {
		c.PoolSize = defaultPoolSize
	}
	return nil
}
