package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/corvuslabs/spyglass/internal/fetch"
	"github.com/corvuslabs/spyglass/internal/llm"
	"github.com/corvuslabs/spyglass/internal/logger"
	"github.com/corvuslabs/spyglass/internal/prompts"
	"github.com/corvuslabs/spyglass/internal/research"
	"github.com/corvuslabs/spyglass/internal/websearch"
)

const (
	providerAnthropic = "anthropic"
	providerOllama    = "ollama"

	defaultCacheTTL = 5 * time.Minute
)

func newAskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question using live web research",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			verbose, err := cmd.Root().PersistentFlags().GetBool("verbose")
			if err != nil {
				return fmt.Errorf("failed to get verbose flag: %w", err)
			}
			provider, err := cmd.Flags().GetString("provider")
			if err != nil {
				return fmt.Errorf("failed to get provider flag: %w", err)
			}
			model, err := cmd.Flags().GetString("model")
			if err != nil {
				return fmt.Errorf("failed to get model flag: %w", err)
			}
			ollamaURL, err := cmd.Flags().GetString("ollama-url")
			if err != nil {
				return fmt.Errorf("failed to get ollama-url flag: %w", err)
			}
			searchName, err := cmd.Flags().GetString("search")
			if err != nil {
				return fmt.Errorf("failed to get search flag: %w", err)
			}
			maxPages, err := cmd.Flags().GetInt("max-pages")
			if err != nil {
				return fmt.Errorf("failed to get max-pages flag: %w", err)
			}

			log := logger.New(verbose)

			pipeline, err := newPipeline(log, provider, model, ollamaURL, searchName, maxPages)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			answer, err := pipeline.Run(ctx, research.Request{Question: args[0]})
			if err != nil {
				return fmt.Errorf("failed to run research: %w", err)
			}

			fmt.Println(answer.Text)

			if verbose {
				fmt.Println()
				printSources(answer.Sources, answer.Duration)
			}

			return nil
		},
	}

	cmd.Flags().StringP("provider", "p", getenv("SPYGLASS_LLM_PROVIDER", providerAnthropic), "LLM provider (anthropic, ollama) (env: SPYGLASS_LLM_PROVIDER)")
	cmd.Flags().StringP("model", "m", getenv("SPYGLASS_LLM_MODEL", ""), "model name; defaults to the provider's default (env: SPYGLASS_LLM_MODEL)")
	cmd.Flags().String("ollama-url", getenv("SPYGLASS_OLLAMA_URL", llm.DefaultOllamaBaseURL), "ollama server base URL (env: SPYGLASS_OLLAMA_URL)")
	cmd.Flags().StringP("search", "s", getenv("SPYGLASS_SEARCH_PROVIDER", websearch.DefaultProvider), "search provider (tavily, brave, duckduckgo) (env: SPYGLASS_SEARCH_PROVIDER)")
	cmd.Flags().Int("max-pages", 0, "cap on result pages digested per question; 0 uses the default")

	return cmd
}

func newPipeline(log *slog.Logger, provider, model, ollamaURL, searchName string, maxPages int) (*research.Pipeline, error) {
	llmClient, err := newLLMClient(log, provider, model, ollamaURL)
	if err != nil {
		return nil, err
	}

	searchProvider, err := websearch.New(websearch.Config{
		Logger:       log,
		Provider:     searchName,
		TavilyAPIKey: os.Getenv("TAVILY_API_KEY"),
		BraveAPIKey:  os.Getenv("BRAVE_API_KEY"),
		CacheTTL:     defaultCacheTTL,
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
		Logger:   log,
		LLM:      llmClient,
		Search:   searchProvider,
		Fetcher:  fetcher,
		Prompts:  promptSet,
		MaxPages: maxPages,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}
	return pipeline, nil
}

func newLLMClient(log *slog.Logger, provider, model, ollamaURL string) (research.LLMClient, error) {
	switch provider {
	case providerAnthropic:
		return llm.NewAnthropic(llm.AnthropicConfig{
			Logger: log,
			Model:  anthropic.Model(model),
		})
	case providerOllama:
		return llm.NewOllama(llm.OllamaConfig{
			Logger:  log,
			BaseURL: ollamaURL,
			Model:   model,
		})
	}
	return nil, fmt.Errorf("invalid llm provider: %s", provider)
}

func printSources(sources []research.SourceDigest, duration time.Duration) {
	fmt.Println("Duration:", duration.Round(time.Millisecond))

	table := tablewriter.NewWriter(os.Stdout)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_CENTER)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(true)
	table.SetRowLine(true)
	table.SetHeader([]string{"#", "Source", "Digest\n(chars)"})

	for i, s := range sources {
		table.Append([]string{
			fmt.Sprintf("%d", i+1),
			s.URL,
			fmt.Sprintf("%d", len(s.Summary)),
		})
	}
	table.Render()
}
