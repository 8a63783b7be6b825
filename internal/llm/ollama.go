package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	DefaultOllamaBaseURL = "http://localhost:11434"
	DefaultOllamaModel   = "llama3.1"

	ollamaMaxTries = 3
)

// OllamaConfig configures the Ollama client.
type OllamaConfig struct {
	Logger *slog.Logger

	// BaseURL defaults to the local Ollama server.
	BaseURL string

	// Model defaults to DefaultOllamaModel.
	Model string

	// MaxTokens caps each completion via num_predict. Defaults to 4096.
	MaxTokens int64

	// HTTPClient defaults to a client with no timeout, since Ollama
	// streams chunked responses; callers bound calls with ctx.
	HTTPClient *http.Client
}

func (c *OllamaConfig) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultOllamaBaseURL
	}
	if c.Model == "" {
		c.Model = DefaultOllamaModel
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = defaultMaxTokens
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 0}
	}
	return nil
}

// Ollama completes prompts against a local Ollama server's chat endpoint.
// There is no official Go SDK; the wire format is plain JSON over HTTP.
type Ollama struct {
	log *slog.Logger
	cfg OllamaConfig
}

// NewOllama creates an Ollama client. Transient transport failures are
// retried with exponential backoff.
func NewOllama(cfg OllamaConfig) (*Ollama, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Ollama{log: cfg.Logger, cfg: cfg}, nil
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// Complete sends a system and user prompt and returns the accumulated
// response text.
func (o *Ollama) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := make([]ollamaMessage, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, ollamaMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, ollamaMessage{Role: "user", Content: userPrompt})

	payload, err := json.Marshal(ollamaChatRequest{
		Model:    o.cfg.Model,
		Messages: messages,
		Stream:   false,
		Options: map[string]any{
			"num_predict": o.cfg.MaxTokens,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat request: %w", err)
	}

	start := time.Now()
	text, err := backoff.Retry(ctx, func() (string, error) {
		return o.chat(ctx, payload)
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(ollamaMaxTries))
	if err != nil {
		o.log.Debug("llm: ollama call failed", "duration", time.Since(start), "error", err)
		return "", fmt.Errorf("ollama chat failed: %w", err)
	}
	o.log.Debug("llm: ollama call completed",
		"model", o.cfg.Model,
		"duration", time.Since(start),
	)
	return text, nil
}

// chat performs one HTTP request. Even with stream=false, Ollama may send
// multiple newline-delimited JSON chunks; content is accumulated across
// them.
func (o *Ollama) chat(ctx context.Context, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.BaseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		err := fmt.Errorf("ollama chat http %d: %s", resp.StatusCode, string(body))
		if resp.StatusCode >= 500 {
			return "", err
		}
		return "", backoff.Permanent(err)
	}

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	var content bytes.Buffer
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk ollamaChatResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			return "", backoff.Permanent(fmt.Errorf("stream decode: %w (line=%q)", err, string(line)))
		}
		if chunk.Error != "" {
			return "", backoff.Permanent(fmt.Errorf("ollama error: %s", chunk.Error))
		}
		content.WriteString(chunk.Message.Content)
		if chunk.Done {
			break
		}
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("scan: %w", err)
	}

	return content.String(), nil
}
