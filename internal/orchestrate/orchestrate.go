// Package orchestrate selects the site driver and wires the engine.
package orchestrate

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/site-mirror/sitemirror/internal/config"
	"github.com/site-mirror/sitemirror/internal/creds"
	"github.com/site-mirror/sitemirror/internal/driver"
	"github.com/site-mirror/sitemirror/internal/driver/htmlsite"
	"github.com/site-mirror/sitemirror/internal/driver/wikiapi"
	"github.com/site-mirror/sitemirror/internal/engine"
	"github.com/site-mirror/sitemirror/internal/policy"
	"github.com/site-mirror/sitemirror/internal/progress"
	"github.com/site-mirror/sitemirror/internal/storage"
)

// wikiURLPatterns identify hosted-wiki sites for auto-detection.
var wikiURLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\.atlassian\.net`),
	regexp.MustCompile(`(?i)/wiki/`),
	regexp.MustCompile(`(?i)/confluence/`),
	regexp.MustCompile(`(?i)/display/`),
	regexp.MustCompile(`(?i)/pages/`),
	regexp.MustCompile(`(?i)/rest/api/content/`),
}

// Orchestrator owns the lifecycle of the store, driver and engine.
type Orchestrator struct {
	cfg   *config.Config
	log   *zap.Logger
	store *storage.Store
}

// New opens the store and prepares an orchestrator. Store open failure
// and output directory failure are the fatal conditions.
func New(cfg *config.Config, log *zap.Logger) (*Orchestrator, error) {
	if err := os.MkdirAll(cfg.Output.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	store, err := storage.Open(cfg.Files.DatabaseFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	return &Orchestrator{cfg: cfg, log: log, store: store}, nil
}

// Close releases the store.
func (o *Orchestrator) Close() error {
	return o.store.Close()
}

// Store exposes the opened store for reporting commands.
func (o *Orchestrator) Store() *storage.Store {
	return o.store
}

// isWikiURL checks a URL against the wiki detection patterns.
func isWikiURL(rawURL string) bool {
	if rawURL == "" {
		return false
	}
	for _, re := range wikiURLPatterns {
		if re.MatchString(rawURL) {
			return true
		}
	}
	return false
}

// detectWikiSite resolves the is_confluence tri-state.
func (o *Orchestrator) detectWikiSite() bool {
	detected := isWikiURL(o.cfg.Website.StartURL) || isWikiURL(o.cfg.Website.BaseURL)
	return o.cfg.Website.Confluence.IsConfluence.Bool(detected)
}

// selectDriver picks the acquisition mode per the start-URL shape and
// credential presence. use_api=true without valid credentials is fatal.
func (o *Orchestrator) selectDriver(pol *policy.Policy) (driver.Driver, engine.PathFunc, error) {
	useAPI := false
	var c *creds.Credentials

	if o.detectWikiSite() {
		var err error
		c, err = creds.Load(o.cfg.Website.BaseURL, "")
		if err != nil {
			return nil, nil, err
		}

		switch o.cfg.Website.Confluence.UseAPI {
		case config.True:
			if !c.Valid() {
				return nil, nil, fmt.Errorf("wiki API mode is required but credentials are not configured; create a .env file with CONFLUENCE_BASE_URL, CONFLUENCE_EMAIL and CONFLUENCE_TOKEN")
			}
			useAPI = true
		case config.False:
			useAPI = false
		default:
			useAPI = c.Valid()
		}
	}

	if useAPI {
		o.log.Info("using wiki API driver",
			zap.String("api_base", c.APIBaseURL()),
			zap.String("email", c.Email))
		drv, err := wikiapi.New(o.cfg, c, o.store, o.log)
		if err != nil {
			return nil, nil, err
		}
		return drv, drv.PathFor, nil
	}

	if o.detectWikiSite() {
		o.log.Warn("wiki site detected but no API credentials found, falling back to HTML mode")
	}
	o.log.Info("using HTML driver")
	drv, err := htmlsite.New(o.cfg, pol, o.store, o.log)
	if err != nil {
		return nil, nil, err
	}
	return drv, drv.PathFor, nil
}

// Run wires everything and executes the crawl.
func (o *Orchestrator) Run(ctx context.Context) error {
	tracker := progress.NewTracker()

	eng, err := engine.New(o.cfg, o.store, tracker, o.log)
	if err != nil {
		return err
	}

	pol := policy.New(
		o.cfg.Website.BaseDomain,
		o.cfg.Crawling.MaxDepth,
		o.cfg.ValidRegexps(),
		o.cfg.ExcludeRegexps(),
		eng.Seen,
	)
	eng.SetPolicy(pol)

	drv, pathFor, err := o.selectDriver(pol)
	if err != nil {
		return err
	}
	eng.SetDriver(drv, pathFor)

	reportCtx, stopReporting := context.WithCancel(ctx)
	defer stopReporting()
	go tracker.Report(reportCtx, o.log, 5*time.Second)

	return eng.Run(ctx)
}
