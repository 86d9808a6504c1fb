// Package config defines the crawl configuration record.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// TriState is a configuration switch that can also defer to detection.
type TriState string

const (
	Auto  TriState = "auto"
	True  TriState = "true"
	False TriState = "false"
)

// OutputFormat selects the primary page artifact format.
type OutputFormat string

const (
	FormatMarkdown OutputFormat = "markdown"
	FormatHTML     OutputFormat = "html"
)

// Website holds target-site settings.
type Website struct {
	BaseURL          string     `yaml:"base_url"`
	BaseDomain       string     `yaml:"base_domain"`
	StartURL         string     `yaml:"start_url"`
	ValidURLPatterns []string   `yaml:"valid_url_patterns"`
	ExcludePatterns  []string   `yaml:"exclude_patterns"`
	Confluence       Confluence `yaml:"confluence"`
}

// Confluence controls wiki-mode selection.
type Confluence struct {
	IsConfluence TriState `yaml:"is_confluence"`
	UseAPI       TriState `yaml:"use_api"`
}

// Crawling holds crawl-engine settings.
type Crawling struct {
	MaxDepth       int     `yaml:"max_depth"`
	SpaceName      string  `yaml:"space_name"`
	MaxWorkers     int     `yaml:"max_workers"`
	RequestDelay   float64 `yaml:"request_delay"`   // seconds, advisory
	RequestTimeout float64 `yaml:"request_timeout"` // seconds
}

// ConfluenceOutput toggles the extra wiki-mode artifacts.
type ConfluenceOutput struct {
	SaveAPIResponse bool `yaml:"save_api_response"`
	SaveMetadataYML bool `yaml:"save_metadata_yml"`
	SaveAttachments bool `yaml:"save_attachments"`
}

// Output holds artifact settings.
type Output struct {
	Format           OutputFormat     `yaml:"format"`
	OutputDir        string           `yaml:"output_dir"`
	ResourcesDir     string           `yaml:"resources_dir"`
	ConfluenceOutput ConfluenceOutput `yaml:"confluence_output"`
}

// Files holds local file locations.
type Files struct {
	DatabaseFile string `yaml:"database_file"`
	CookiesFile  string `yaml:"cookies_file"`
}

// Advanced holds HTTP client tweaks.
type Advanced struct {
	UserAgent string            `yaml:"user_agent"`
	Headers   map[string]string `yaml:"headers"`
}

// Content holds content-handling switches.
type Content struct {
	DownloadResources bool `yaml:"download_resources"`
}

// Config is the single configuration record consumed by the engine.
type Config struct {
	Website  Website  `yaml:"website"`
	Crawling Crawling `yaml:"crawling"`
	Output   Output   `yaml:"output"`
	Files    Files    `yaml:"files"`
	Advanced Advanced `yaml:"advanced"`
	Content  Content  `yaml:"content"`

	// Compiled patterns (not serialized)
	compiledValid    []*regexp.Regexp
	compiledExcludes []*regexp.Regexp
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Website: Website{
			Confluence: Confluence{IsConfluence: Auto, UseAPI: Auto},
		},
		Crawling: Crawling{
			MaxDepth:       1,
			SpaceName:      "DEFAULT",
			MaxWorkers:     5,
			RequestDelay:   0.5,
			RequestTimeout: 30,
		},
		Output: Output{
			Format:       FormatMarkdown,
			OutputDir:    "downloaded_content",
			ResourcesDir: "shared_resources",
			ConfluenceOutput: ConfluenceOutput{
				SaveAPIResponse: true,
				SaveMetadataYML: true,
				SaveAttachments: true,
			},
		},
		Files: Files{
			DatabaseFile: "crawler_data.db",
			CookiesFile:  "config/cookies.txt",
		},
		Advanced: Advanced{
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/140.0.0.0 Safari/537.36",
		},
		Content: Content{DownloadResources: true},
	}
}

// Load reads a YAML config file over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.CompilePatterns(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate normalizes out-of-range values and rejects unusable ones.
func (c *Config) Validate() error {
	if c.Website.StartURL == "" {
		return fmt.Errorf("website.start_url is required")
	}
	if c.Crawling.MaxWorkers < 1 || c.Crawling.MaxWorkers > 50 {
		return fmt.Errorf("crawling.max_workers must be between 1 and 50, got %d", c.Crawling.MaxWorkers)
	}
	if c.Crawling.MaxDepth < 0 {
		c.Crawling.MaxDepth = 0
	}
	if c.Crawling.RequestTimeout <= 0 {
		c.Crawling.RequestTimeout = 30
	}
	if c.Crawling.RequestDelay < 0 {
		c.Crawling.RequestDelay = 0
	}
	switch c.Output.Format {
	case FormatMarkdown, FormatHTML:
	default:
		return fmt.Errorf("output.format must be markdown or html, got %q", c.Output.Format)
	}
	switch c.Website.Confluence.IsConfluence {
	case Auto, True, False, "":
	default:
		return fmt.Errorf("website.confluence.is_confluence must be auto, true or false")
	}
	switch c.Website.Confluence.UseAPI {
	case Auto, True, False, "":
	default:
		return fmt.Errorf("website.confluence.use_api must be auto, true or false")
	}
	return nil
}

// CompilePatterns compiles the valid/exclude URL regexes.
func (c *Config) CompilePatterns() error {
	c.compiledValid = make([]*regexp.Regexp, 0, len(c.Website.ValidURLPatterns))
	c.compiledExcludes = make([]*regexp.Regexp, 0, len(c.Website.ExcludePatterns))

	for _, pattern := range c.Website.ValidURLPatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("invalid valid_url_pattern %q: %w", pattern, err)
		}
		c.compiledValid = append(c.compiledValid, re)
	}
	for _, pattern := range c.Website.ExcludePatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("invalid exclude_pattern %q: %w", pattern, err)
		}
		c.compiledExcludes = append(c.compiledExcludes, re)
	}
	return nil
}

// ValidRegexps returns the compiled valid-URL regexes.
func (c *Config) ValidRegexps() []*regexp.Regexp { return c.compiledValid }

// ExcludeRegexps returns the compiled exclude regexes.
func (c *Config) ExcludeRegexps() []*regexp.Regexp { return c.compiledExcludes }

// RequestTimeout returns the configured request timeout as a Duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Crawling.RequestTimeout * float64(time.Second))
}

// RequestDelay returns the advisory inter-request delay as a Duration.
func (c *Config) RequestDelay() time.Duration {
	return time.Duration(c.Crawling.RequestDelay * float64(time.Second))
}

// Bool resolves a TriState against a detected value.
func (t TriState) Bool(detected bool) bool {
	switch t {
	case True:
		return true
	case False:
		return false
	default:
		return detected
	}
}
