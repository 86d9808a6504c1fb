package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
website:
  base_url: https://team.atlassian.net
  base_domain: team.atlassian.net
  start_url: https://team.atlassian.net/wiki/spaces/AR/overview
  valid_url_patterns:
    - "/wiki/"
  exclude_patterns:
    - "/admin"
  confluence:
    is_confluence: "true"
    use_api: auto
crawling:
  max_depth: 3
  space_name: AR
  max_workers: 8
  request_delay: 0.25
  request_timeout: 20
output:
  format: html
  output_dir: mirror
files:
  database_file: mirror.db
advanced:
  user_agent: TestAgent/1.0
  headers:
    X-Custom: "1"
content:
  download_resources: false
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "team.atlassian.net", cfg.Website.BaseDomain)
	assert.Equal(t, True, cfg.Website.Confluence.IsConfluence)
	assert.Equal(t, Auto, cfg.Website.Confluence.UseAPI)
	assert.Equal(t, 3, cfg.Crawling.MaxDepth)
	assert.Equal(t, 8, cfg.Crawling.MaxWorkers)
	assert.Equal(t, FormatHTML, cfg.Output.Format)
	assert.Equal(t, "mirror", cfg.Output.OutputDir)
	assert.Equal(t, "mirror.db", cfg.Files.DatabaseFile)
	assert.Equal(t, "TestAgent/1.0", cfg.Advanced.UserAgent)
	assert.False(t, cfg.Content.DownloadResources)

	// Defaults survive partial config.
	assert.Equal(t, "shared_resources", cfg.Output.ResourcesDir)
	assert.True(t, cfg.Output.ConfluenceOutput.SaveAttachments)

	assert.Equal(t, 250*time.Millisecond, cfg.RequestDelay())
	assert.Equal(t, 20*time.Second, cfg.RequestTimeout())

	assert.Len(t, cfg.ValidRegexps(), 1)
	assert.Len(t, cfg.ExcludeRegexps(), 1)
}

func TestValidateRejectsWorkerRange(t *testing.T) {
	cfg := Default()
	cfg.Website.StartURL = "https://example.com"
	cfg.Crawling.MaxWorkers = 0
	assert.Error(t, cfg.Validate())

	cfg.Crawling.MaxWorkers = 51
	assert.Error(t, cfg.Validate())

	cfg.Crawling.MaxWorkers = 50
	assert.NoError(t, cfg.Validate())
}

func TestValidateRequiresStartURL(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsBadFormat(t *testing.T) {
	cfg := Default()
	cfg.Website.StartURL = "https://example.com"
	cfg.Output.Format = "pdf"
	assert.Error(t, cfg.Validate())
}

func TestCompilePatternsRejectsBadRegex(t *testing.T) {
	cfg := Default()
	cfg.Website.ExcludePatterns = []string{"["}
	assert.Error(t, cfg.CompilePatterns())
}

func TestTriStateBool(t *testing.T) {
	assert.True(t, True.Bool(false))
	assert.False(t, False.Bool(true))
	assert.True(t, Auto.Bool(true))
	assert.False(t, Auto.Bool(false))
	assert.True(t, TriState("").Bool(true))
}
