package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/corvuslabs/spyglass/internal/fetch"
	"github.com/corvuslabs/spyglass/internal/llm"
	"github.com/corvuslabs/spyglass/internal/logger"
	"github.com/corvuslabs/spyglass/internal/mcpserver"
	"github.com/corvuslabs/spyglass/internal/metrics"
	"github.com/corvuslabs/spyglass/internal/prompts"
	"github.com/corvuslabs/spyglass/internal/research"
	"github.com/corvuslabs/spyglass/internal/websearch"

	_ "net/http/pprof"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	defaultListenAddr  = ":8010"
	defaultMetricsAddr = ":9090"

	defaultSearchCacheTTL = 5 * time.Minute

	providerAnthropic = "anthropic"
	providerOllama    = "ollama"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cfg.ShowVersion {
		fmt.Printf("version: %s, commit: %s, date: %s\n", version, commit, date)
		return nil
	}

	log := logger.New(cfg.Verbose)

	// Start pprof server
	if cfg.EnablePprof {
		go func() {
			log.Info("starting pprof server", "address", "localhost:6060")
			err := http.ListenAndServe("localhost:6060", nil)
			if err != nil {
				log.Error("failed to start pprof server", "error", err)
			}
		}()
	}

	// Start prometheus metrics server
	if cfg.MetricsAddr != "" {
		metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
		go func() {
			listener, err := net.Listen("tcp", cfg.MetricsAddr)
			if err != nil {
				log.Error("failed to start prometheus metrics server listener", "error", err)
				os.Exit(1)
			}
			log.Info("prometheus metrics server listening", "address", listener.Addr().String())
			http.Handle("/metrics", promhttp.Handler())
			if err := http.Serve(listener, nil); err != nil {
				log.Error("failed to start prometheus metrics server", "error", err)
				os.Exit(1)
			}
		}()
	}

	if len(cfg.AllowedTokens) > 0 {
		log.Info("mcp server: token authentication enabled", "token_count", len(cfg.AllowedTokens))
	} else {
		log.Warn("mcp server: no authentication configured, endpoint is open (set SPYGLASS_MCP_ALLOWED_TOKENS)")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pipeline, err := newPipeline(log, cfg)
	if err != nil {
		return err
	}

	srv, err := mcpserver.New(mcpserver.Config{
		Logger:        log,
		Pipeline:      pipeline,
		Version:       version,
		ListenAddr:    cfg.ListenAddr,
		AllowedTokens: cfg.AllowedTokens,
	})
	if err != nil {
		return fmt.Errorf("failed to create mcp server: %w", err)
	}

	return srv.Run(ctx)
}

func newPipeline(log *slog.Logger, cfg Config) (*research.Pipeline, error) {
	var llmClient research.LLMClient
	var err error
	switch cfg.LLMProvider {
	case providerAnthropic:
		llmClient, err = llm.NewAnthropic(llm.AnthropicConfig{
			Logger: log,
			Model:  anthropic.Model(cfg.LLMModel),
		})
	case providerOllama:
		llmClient, err = llm.NewOllama(llm.OllamaConfig{
			Logger:  log,
			BaseURL: cfg.OllamaURL,
			Model:   cfg.LLMModel,
		})
	default:
		return nil, fmt.Errorf("invalid llm provider: %s", cfg.LLMProvider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create llm client: %w", err)
	}

	searchProvider, err := websearch.New(websearch.Config{
		Logger:       log,
		Provider:     cfg.SearchProvider,
		TavilyAPIKey: os.Getenv("TAVILY_API_KEY"),
		BraveAPIKey:  os.Getenv("BRAVE_API_KEY"),
		CacheTTL:     cfg.SearchCacheTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create search provider: %w", err)
	}

	fetcher, err := fetch.New(fetch.Config{Logger: log})
	if err != nil {
		return nil, fmt.Errorf("failed to create fetcher: %w", err)
	}

	promptSet, err := prompts.LoadPrompts()
	if err != nil {
		return nil, fmt.Errorf("failed to load prompts: %w", err)
	}

	pipeline, err := research.New(&research.Config{
		Logger:  log,
		LLM:     llmClient,
		Search:  searchProvider,
		Fetcher: fetcher,
		Prompts: promptSet,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}
	return pipeline, nil
}

type Config struct {
	ShowVersion bool
	Verbose     bool
	EnablePprof bool
	MetricsAddr string

	ListenAddr    string
	AllowedTokens []string

	LLMProvider string
	LLMModel    string
	OllamaURL   string

	SearchProvider string
	SearchCacheTTL time.Duration
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func loadConfig() (Config, error) {
	var cfg Config
	var allowedTokensCSV string

	flag.BoolVar(&cfg.ShowVersion, "version", false, "show version and exit")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "verbose mode - show debug logs")
	flag.BoolVar(&cfg.EnablePprof, "enable-pprof", false, "enable pprof server")

	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", getenv("SPYGLASS_METRICS_ADDR", defaultMetricsAddr), "address to listen on for prometheus metrics (env: SPYGLASS_METRICS_ADDR)")
	flag.StringVar(&cfg.ListenAddr, "listen-addr", getenv("SPYGLASS_MCP_LISTEN_ADDR", defaultListenAddr), "address to listen on for the MCP endpoint (env: SPYGLASS_MCP_LISTEN_ADDR)")
	flag.StringVar(&allowedTokensCSV, "allowed-tokens", getenv("SPYGLASS_MCP_ALLOWED_TOKENS", ""), "bearer tokens accepted for the MCP endpoint, csv; empty disables auth (env: SPYGLASS_MCP_ALLOWED_TOKENS)")
	flag.StringVar(&cfg.LLMProvider, "llm-provider", getenv("SPYGLASS_LLM_PROVIDER", providerAnthropic), "llm provider: anthropic or ollama (env: SPYGLASS_LLM_PROVIDER)")
	flag.StringVar(&cfg.LLMModel, "llm-model", getenv("SPYGLASS_LLM_MODEL", ""), "model name; empty uses the provider default (env: SPYGLASS_LLM_MODEL)")
	flag.StringVar(&cfg.OllamaURL, "ollama-url", getenv("SPYGLASS_OLLAMA_URL", llm.DefaultOllamaBaseURL), "ollama server base URL (env: SPYGLASS_OLLAMA_URL)")
	flag.StringVar(&cfg.SearchProvider, "search-provider", getenv("SPYGLASS_SEARCH_PROVIDER", websearch.DefaultProvider), "search provider: tavily, brave, or duckduckgo (env: SPYGLASS_SEARCH_PROVIDER)")
	flag.DurationVar(&cfg.SearchCacheTTL, "search-cache-ttl", defaultSearchCacheTTL, "search query cache TTL; 0 disables caching")

	flag.Parse()

	if cfg.ShowVersion {
		return cfg, nil
	}

	cfg.AllowedTokens = splitCSV(allowedTokensCSV)

	if cfg.ListenAddr == "" {
		return Config{}, fmt.Errorf("listen address is empty (set SPYGLASS_MCP_LISTEN_ADDR or --listen-addr)")
	}

	return cfg, nil
}
