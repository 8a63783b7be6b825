package mcpserver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/corvuslabs/spyglass/internal/research"
)

const (
	defaultReadHeaderTimeout = 5 * time.Second
	defaultShutdownTimeout   = 5 * time.Second
)

// ResearchPipeline is the part of the research pipeline the MCP tool
// invokes.
type ResearchPipeline interface {
	Run(ctx context.Context, req research.Request) (*research.FinalAnswer, error)
}

type Config struct {
	Logger   *slog.Logger
	Pipeline ResearchPipeline

	Version    string
	ListenAddr string

	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration

	// AllowedTokens are the bearer tokens accepted for the MCP
	// endpoint. Empty disables authentication.
	AllowedTokens []string
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.Pipeline == nil {
		return fmt.Errorf("pipeline is required")
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.ReadHeaderTimeout == 0 {
		c.ReadHeaderTimeout = defaultReadHeaderTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}
	return nil
}
