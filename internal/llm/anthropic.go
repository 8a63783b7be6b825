// Package llm provides the text generation clients used by the research
// pipeline: the Anthropic Messages API and a local Ollama server.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	DefaultAnthropicModel = anthropic.ModelClaudeSonnet4_5_20250929

	defaultMaxTokens = 4096
)

// AnthropicConfig configures the Anthropic client.
type AnthropicConfig struct {
	Logger *slog.Logger

	// APIKey overrides the SDK's default ANTHROPIC_API_KEY handling.
	APIKey string

	// Model defaults to DefaultAnthropicModel.
	Model anthropic.Model

	// MaxTokens caps each completion. Defaults to 4096.
	MaxTokens int64
}

func (c *AnthropicConfig) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.Model == "" {
		c.Model = DefaultAnthropicModel
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = defaultMaxTokens
	}
	return nil
}

// Anthropic completes prompts through the Anthropic Messages API.
type Anthropic struct {
	log    *slog.Logger
	cfg    AnthropicConfig
	client anthropic.Client
}

// NewAnthropic creates an Anthropic client. The API key is read from the
// environment by the SDK unless set in the config.
func NewAnthropic(cfg AnthropicConfig) (*Anthropic, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}

	return &Anthropic{
		log:    cfg.Logger,
		cfg:    cfg,
		client: anthropic.NewClient(opts...),
	}, nil
}

// Complete sends a prompt and returns the first text block of the response.
func (a *Anthropic) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	start := time.Now()

	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     a.cfg.Model,
		MaxTokens: a.cfg.MaxTokens,
		System: []anthropic.TextBlockParam{
			{Type: "text", Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		a.log.Debug("llm: anthropic call failed", "duration", time.Since(start), "error", err)
		return "", fmt.Errorf("anthropic API error: %w", err)
	}
	a.log.Debug("llm: anthropic call completed",
		"model", a.cfg.Model,
		"stopReason", msg.StopReason,
		"duration", time.Since(start),
	)

	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("no text content in response")
}
