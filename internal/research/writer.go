package research

import (
	"context"
	"fmt"
	"strings"

	"github.com/corvuslabs/spyglass/internal/metrics"
)

// WriteAnswer runs the writer stage: a report-style answer to the
// question grounded in the research summary. An empty summary still
// produces a best-effort answer; the prompt instructs the model to mark
// it as unverified.
func (p *Pipeline) WriteAnswer(ctx context.Context, question, researchSummary string) (string, error) {
	if strings.TrimSpace(researchSummary) == "" {
		researchSummary = noResultsSummary
	}

	systemPrompt := p.cfg.Prompts.GetPrompt("write")
	userPrompt := fmt.Sprintf(`Information:
----
%s
----

Using the above information, answer the following question: %s`, researchSummary, question)

	response, err := p.cfg.LLM.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		metrics.LLMCalls.WithLabelValues("write", "error").Inc()
		return "", fmt.Errorf("answer generation failed: %w", err)
	}
	metrics.LLMCalls.WithLabelValues("write", "success").Inc()

	answer := strings.TrimSpace(response)
	if answer == "" {
		return "", fmt.Errorf("answer generation returned empty text")
	}
	return answer, nil
}
