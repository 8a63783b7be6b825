// Package prompts loads the embedded prompt files used by the research
// pipeline.
package prompts

import (
	"embed"
	"fmt"
	"strings"
)

//go:embed *.md
var promptsFS embed.FS

// Prompts contains all the pipeline prompts loaded from embedded files.
type Prompts struct {
	Queries   string // Prompt for turning a question into web search queries
	Summarize string // Prompt for digesting one fetched page
	Write     string // Prompt for writing the final answer
}

// GetPrompt returns the prompt content for the given name.
// This implements the research.PromptsProvider interface.
func (p *Prompts) GetPrompt(name string) string {
	switch name {
	case "queries":
		return p.Queries
	case "summarize":
		return p.Summarize
	case "write":
		return p.Write
	default:
		return ""
	}
}

// LoadPrompts loads all prompts from the embedded filesystem.
func LoadPrompts() (*Prompts, error) {
	p := &Prompts{}

	var err error
	if p.Queries, err = loadPrompt("QUERIES.md"); err != nil {
		return nil, fmt.Errorf("failed to load QUERIES: %w", err)
	}
	if p.Summarize, err = loadPrompt("SUMMARIZE.md"); err != nil {
		return nil, fmt.Errorf("failed to load SUMMARIZE: %w", err)
	}
	if p.Write, err = loadPrompt("WRITE.md"); err != nil {
		return nil, fmt.Errorf("failed to load WRITE: %w", err)
	}

	return p, nil
}

func loadPrompt(path string) (string, error) {
	data, err := promptsFS.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}
