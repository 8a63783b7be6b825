package fetch

import (
	_ "embed"
	"regexp"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed blocklist.yaml
var blocklistYAML []byte

// blocklistConfig represents the YAML structure for blocked URL patterns.
type blocklistConfig struct {
	Patterns []blocklistPattern `yaml:"patterns"`
}

type blocklistPattern struct {
	Pattern     string `yaml:"pattern"`
	Description string `yaml:"description"`
}

// compiledPattern holds a pre-compiled regex and its description.
type compiledPattern struct {
	regex       *regexp.Regexp
	description string
}

// Blocklist decides which result URLs are never fetched.
type Blocklist struct {
	patterns []compiledPattern
}

var (
	defaultBlocklist     *Blocklist
	defaultBlocklistOnce sync.Once
	defaultBlocklistErr  error
)

// NewBlocklist creates a Blocklist from the embedded YAML patterns.
func NewBlocklist() (*Blocklist, error) {
	return newBlocklistFromYAML(blocklistYAML)
}

// DefaultBlocklist returns a singleton Blocklist instance.
// It's safe to call concurrently.
func DefaultBlocklist() (*Blocklist, error) {
	defaultBlocklistOnce.Do(func() {
		defaultBlocklist, defaultBlocklistErr = NewBlocklist()
	})
	return defaultBlocklist, defaultBlocklistErr
}

// newBlocklistFromYAML parses YAML and compiles patterns.
func newBlocklistFromYAML(data []byte) (*Blocklist, error) {
	var config blocklistConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, err
	}

	patterns := make([]compiledPattern, 0, len(config.Patterns))
	for _, p := range config.Patterns {
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, compiledPattern{
			regex:       re,
			description: p.Description,
		})
	}

	return &Blocklist{patterns: patterns}, nil
}

// Blocked reports whether the URL matches a blocked pattern, and which one.
func (b *Blocklist) Blocked(url string) (bool, string) {
	for _, p := range b.patterns {
		if p.regex.MatchString(url) {
			return true, p.description
		}
	}
	return false, ""
}
