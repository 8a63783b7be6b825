package mcpserver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/corvuslabs/spyglass/internal/metrics"
	"github.com/corvuslabs/spyglass/internal/research"
)

const researchToolName = "research"

const researchToolDescription = `
	PURPOSE:
	Answer a free-text research question by searching the web, digesting the
	results, and writing a report-style answer grounded in them.

	USAGE RULES:
	- Ask one self-contained question per call; the tool keeps no state
	  between calls.
	- Expect the call to take tens of seconds: it performs live web search,
	  page fetches, and generation.
	- The answer lists the source URLs it drew from; cite them onward.
`

type ResearchInput struct {
	Question string `json:"question"`
}

type ResearchOutput struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
}

func RegisterResearchTool(log *slog.Logger, server *mcp.Server, pipeline ResearchPipeline) error {
	req, err := jsonschema.For[ResearchInput](nil)
	if err != nil {
		return fmt.Errorf("failed to create research input schema: %w", err)
	}

	res, err := jsonschema.For[ResearchOutput](nil)
	if err != nil {
		return fmt.Errorf("failed to create research output schema: %w", err)
	}

	mcp.AddTool(server, &mcp.Tool{
		Name:         researchToolName,
		Description:  researchToolDescription,
		InputSchema:  req,
		OutputSchema: res,
	}, func(ctx context.Context, _ *mcp.CallToolRequest, req ResearchInput) (*mcp.CallToolResult, ResearchOutput, error) {
		startTime := time.Now()

		log.Debug("mcp/tool: handling research question", "question", req.Question)
		res, err := handleResearch(ctx, pipeline, req)
		duration := time.Since(startTime).Seconds()

		if err != nil {
			metrics.ToolCalls.WithLabelValues(researchToolName, "error").Inc()
			metrics.ToolCallDuration.WithLabelValues(researchToolName).Observe(duration)
			return nil, ResearchOutput{}, err
		}
		metrics.ToolCalls.WithLabelValues(researchToolName, "success").Inc()
		metrics.ToolCallDuration.WithLabelValues(researchToolName).Observe(duration)
		return nil, res, nil
	})
	return nil
}

func handleResearch(ctx context.Context, pipeline ResearchPipeline, req ResearchInput) (ResearchOutput, error) {
	if strings.TrimSpace(req.Question) == "" {
		return ResearchOutput{}, fmt.Errorf("question is required")
	}

	answer, err := pipeline.Run(ctx, research.Request{Question: req.Question})
	if err != nil {
		return ResearchOutput{}, fmt.Errorf("failed to run research: %w", err)
	}

	sources := make([]string, 0, len(answer.Sources))
	for _, src := range answer.Sources {
		sources = append(sources, src.URL)
	}

	return ResearchOutput{
		Answer:  answer.Text,
		Sources: sources,
	}, nil
}
