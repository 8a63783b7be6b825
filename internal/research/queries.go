package research

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/corvuslabs/spyglass/internal/metrics"
)

// formQueries asks the LLM for up to MaxQueries web search queries that
// would answer the question. An unparsable response falls back to the
// raw question as the single query; a failed LLM call propagates as a
// generation failure.
func (p *Pipeline) formQueries(ctx context.Context, question string) ([]string, error) {
	systemPrompt := strings.Replace(
		p.cfg.Prompts.GetPrompt("queries"),
		"{{MAX_QUERIES}}", strconv.Itoa(p.cfg.MaxQueries), 1,
	)
	userPrompt := fmt.Sprintf("Research question: %s\n\nRespond with JSON only.", question)

	response, err := p.cfg.LLM.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		metrics.LLMCalls.WithLabelValues("queries", "error").Inc()
		return nil, fmt.Errorf("query formation failed: %w", err)
	}
	metrics.LLMCalls.WithLabelValues("queries", "success").Inc()

	queries := parseQueries(response, p.cfg.MaxQueries)
	if len(queries) == 0 {
		p.log.Debug("research: query formation returned no usable queries, falling back to question",
			"responsePreview", truncateString(response, 200))
		queries = []string{question}
	}

	p.log.Debug("research: search queries formed", "count", len(queries))
	return queries, nil
}

// parseQueries extracts a JSON string array from the LLM response,
// tolerating markdown fences, and caps it at maxQueries.
func parseQueries(response string, maxQueries int) []string {
	jsonStr := extractJSONArray(response)
	if jsonStr == "" {
		return nil
	}

	var parsed []string
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		return nil
	}

	queries := make([]string, 0, len(parsed))
	for _, q := range parsed {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		queries = append(queries, q)
		if len(queries) >= maxQueries {
			break
		}
	}
	return queries
}

// truncateString truncates a string to the given max length, adding "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
