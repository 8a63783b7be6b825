package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/corvuslabs/spyglass/internal/research"
)

const (
	defaultReadHeaderTimeout = 5 * time.Second
	defaultShutdownTimeout   = 10 * time.Second

	// Research requests fan out to search, fetch, and generation calls;
	// the write timeout has to outlast the slowest invocation.
	defaultWriteTimeout = 5 * time.Minute
)

// ResearchPipeline is the part of the research pipeline the server
// invokes.
type ResearchPipeline interface {
	Run(ctx context.Context, req research.Request) (*research.FinalAnswer, error)
}

type Config struct {
	Logger   *slog.Logger
	Pipeline ResearchPipeline

	ListenAddr string

	// AllowedOrigins configures CORS. Empty disables cross-origin use.
	AllowedOrigins []string

	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	ShutdownTimeout   time.Duration
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
	if c.WriteTimeout == 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}
	return nil
}
