//go:build evals

package evals_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/corvuslabs/spyglass/internal/research"
)

const evalTimeout = 5 * time.Minute

func TestSpyglass_Evals_Anthropic_PointGuardsVsCenters(t *testing.T) {
	t.Parallel()
	requireAnthropicKey(t)

	ctx, cancel := context.WithTimeout(context.Background(), evalTimeout)
	defer cancel()

	pipeline := setupPipeline(t)

	answer, err := pipeline.Run(ctx, research.Request{
		Question: "Who is older? Point guards or Centers?",
	})
	require.NoError(t, err)
	require.NotEmpty(t, strings.TrimSpace(answer.Text))
	require.Greater(t, answer.Duration, time.Duration(0))

	t.Logf("answer (%s, %d sources): %s", answer.Duration.Round(time.Millisecond), len(answer.Sources), answer.Text)
}

func TestSpyglass_Evals_Anthropic_FactualQuestion(t *testing.T) {
	t.Parallel()
	requireAnthropicKey(t)

	ctx, cancel := context.WithTimeout(context.Background(), evalTimeout)
	defer cancel()

	pipeline := setupPipeline(t)

	answer, err := pipeline.Run(ctx, research.Request{
		Question: "What is the capital city of Australia?",
	})
	require.NoError(t, err)
	require.Contains(t, strings.ToLower(answer.Text), "canberra")
}

func TestSpyglass_Evals_Anthropic_RecentEventsUseWebResearch(t *testing.T) {
	t.Parallel()
	requireAnthropicKey(t)

	ctx, cancel := context.WithTimeout(context.Background(), evalTimeout)
	defer cancel()

	pipeline := setupPipeline(t)

	summary, err := pipeline.SummarizeResearch(ctx, "What were the biggest technology news stories this week?")
	require.NoError(t, err)
	require.NotEmpty(t, strings.TrimSpace(summary))

	t.Logf("research summary: %s", summary)
}
