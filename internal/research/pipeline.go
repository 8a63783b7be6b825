// Package research implements the two-stage web research pipeline: a
// gathering stage that turns a question into a condensed research
// summary, and a writing stage that turns (question, summary) into a
// final answer.
package research

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alitto/pond/v2"

	"github.com/corvuslabs/spyglass/internal/metrics"
	"github.com/corvuslabs/spyglass/internal/websearch"
)

// noResultsSummary stands in for the research summary when no web result
// could be gathered, so the writer stage still runs.
const noResultsSummary = "No web research results could be gathered for this question."

// Pipeline orchestrates the research and writer stages for one question
// at a time. A Pipeline is safe for concurrent use; each invocation owns
// its context record.
type Pipeline struct {
	cfg *Config
	log *slog.Logger

	searchPool pond.ResultPool[[]websearch.Result]
	pool       pond.ResultPool[sourceResult]
}

// New creates a research pipeline.
func New(cfg *Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Pipeline{
		cfg: cfg,
		log: cfg.Logger,

		searchPool: pond.NewResultPool[[]websearch.Result](cfg.PoolSize),
		pool:       pond.NewResultPool[sourceResult](cfg.PoolSize),
	}, nil
}

// Run executes the full pipeline for one request. The question flows
// through the research stage, the resulting summary is merged into the
// invocation's context, and the writer stage produces the final answer.
// Search and fetch failures degrade; generation failures propagate.
func (p *Pipeline) Run(ctx context.Context, req Request) (*FinalAnswer, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		metrics.ResearchRequests.WithLabelValues("invalid").Inc()
		return nil, ErrEmptyQuestion
	}

	start := p.cfg.Clock.Now()
	record := researchContext{question: question}

	p.log.Info("research: step 1 - gathering web research", "question", question)
	digests, err := p.gatherDigests(ctx, record.question)
	if err != nil {
		metrics.ResearchRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("research stage failed: %w", err)
	}
	record = record.withResearchSummary(collapseDigests(digests))
	p.log.Info("research: research summary gathered", "sources", len(digests))

	p.log.Info("research: step 2 - writing answer")
	answer, err := p.WriteAnswer(ctx, record.question, record.researchSummary)
	if err != nil {
		metrics.ResearchRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("writer stage failed: %w", err)
	}

	duration := p.cfg.Clock.Since(start)
	metrics.ResearchRequests.WithLabelValues("success").Inc()
	metrics.ResearchDuration.Observe(duration.Seconds())
	p.log.Info("research: answer written", "duration", duration)

	return &FinalAnswer{
		Text:     answer,
		Duration: duration,
		Sources:  digests,
	}, nil
}

// SummarizeResearch runs the research stage alone: form queries, search,
// fetch, digest, collapse. An empty question yields the placeholder
// summary without searching.
func (p *Pipeline) SummarizeResearch(ctx context.Context, question string) (string, error) {
	if strings.TrimSpace(question) == "" {
		return noResultsSummary, nil
	}
	digests, err := p.gatherDigests(ctx, question)
	if err != nil {
		return "", err
	}
	return collapseDigests(digests), nil
}

// collapseDigests joins the per-page digests into the research summary.
func collapseDigests(digests []SourceDigest) string {
	if len(digests) == 0 {
		return noResultsSummary
	}
	blocks := make([]string, 0, len(digests))
	for _, d := range digests {
		blocks = append(blocks, fmt.Sprintf("URL: %s\n\nSUMMARY: %s", d.URL, d.Summary))
	}
	return strings.Join(blocks, "\n\n")
}
