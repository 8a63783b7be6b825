package research

import (
	"context"
	"fmt"
	"strings"

	"github.com/corvuslabs/spyglass/internal/metrics"
	"github.com/corvuslabs/spyglass/internal/websearch"
)

// sourceResult carries one page's digest outcome through the worker
// pool. Failures ride in the struct so one bad page never aborts the
// group.
type sourceResult struct {
	digest  SourceDigest
	err     error // digest LLM call failed
	skipped bool  // no usable content for this page
}

// gatherDigests runs the research stage's sub-pipeline: form queries,
// search each, de-duplicate result URLs, then fetch and digest each page
// concurrently. Search and fetch failures drop their contribution; a
// failed query-formation call, or every digest call failing, surfaces as
// a generation error.
func (p *Pipeline) gatherDigests(ctx context.Context, question string) ([]SourceDigest, error) {
	queries, err := p.formQueries(ctx, question)
	if err != nil {
		return nil, err
	}

	pages := p.searchAll(ctx, queries)
	if len(pages) == 0 {
		p.log.Info("research: no search results, proceeding without research summary")
		return nil, nil
	}

	group := p.pool.NewGroupContext(ctx)
	for _, page := range pages {
		group.SubmitErr(func() (sourceResult, error) {
			return p.digestPage(ctx, question, page), nil
		})
	}
	outcomes, err := group.Wait()
	if err != nil {
		return nil, fmt.Errorf("digest pool failed: %w", err)
	}

	digests := make([]SourceDigest, 0, len(outcomes))
	var digestErrs int
	var firstErr error
	for _, outcome := range outcomes {
		switch {
		case outcome.err != nil:
			digestErrs++
			if firstErr == nil {
				firstErr = outcome.err
			}
			p.log.Debug("research: dropping failed page digest", "url", outcome.digest.URL, "error", outcome.err)
		case outcome.skipped:
		default:
			digests = append(digests, outcome.digest)
		}
	}

	// Every candidate page hit a failed LLM call: the generation
	// provider is down, not the web.
	if len(digests) == 0 && digestErrs > 0 {
		return nil, fmt.Errorf("page summarization failed for all %d pages: %w", digestErrs, firstErr)
	}

	return digests, nil
}

// searchAll executes each query concurrently and returns the combined
// results, de-duplicated by URL in query order and capped at MaxPages.
// A failed query drops its contribution.
func (p *Pipeline) searchAll(ctx context.Context, queries []string) []websearch.Result {
	group := p.searchPool.NewGroupContext(ctx)
	for _, query := range queries {
		group.SubmitErr(func() ([]websearch.Result, error) {
			results, err := p.cfg.Search.Search(ctx, query)
			if err != nil {
				p.log.Debug("research: dropping failed search query", "query", query, "error", err)
				return nil, nil
			}
			return results, nil
		})
	}
	perQuery, err := group.Wait()
	if err != nil {
		p.log.Debug("research: search pool failed", "error", err)
		return nil
	}

	seen := make(map[string]bool)
	var pages []websearch.Result
	for _, results := range perQuery {
		for _, r := range results {
			url := strings.TrimSpace(r.URL)
			if url == "" || seen[url] {
				continue
			}
			seen[url] = true
			pages = append(pages, r)
			if len(pages) >= p.cfg.MaxPages {
				return pages
			}
		}
	}
	return pages
}

// digestPage fetches one result page and condenses it against the
// question. A failed or blocklisted fetch degrades to the search
// snippet; a page with no usable text is skipped.
func (p *Pipeline) digestPage(ctx context.Context, question string, page websearch.Result) sourceResult {
	content, err := p.cfg.Fetcher.Fetch(ctx, page.URL)
	if err != nil {
		p.log.Debug("research: page fetch degraded to snippet", "url", page.URL, "error", err)
		content = page.Snippet
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return sourceResult{digest: SourceDigest{URL: page.URL}, skipped: true}
	}

	systemPrompt := p.cfg.Prompts.GetPrompt("summarize")
	userPrompt := fmt.Sprintf("Research question: %s\n\nPage text:\n%s", question, content)

	summary, err := p.cfg.LLM.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		metrics.LLMCalls.WithLabelValues("summarize", "error").Inc()
		return sourceResult{digest: SourceDigest{URL: page.URL}, err: err}
	}
	metrics.LLMCalls.WithLabelValues("summarize", "success").Inc()

	summary = strings.TrimSpace(summary)
	if summary == "" {
		return sourceResult{digest: SourceDigest{URL: page.URL}, skipped: true}
	}
	return sourceResult{digest: SourceDigest{URL: page.URL, Summary: summary}}
}
