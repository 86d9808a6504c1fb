// Package engine implements the concurrent crawl loop: a dispatcher
// feeding a bounded worker pool from the frontier, with every lifecycle
// transition committed to the store before it becomes visible.
package engine

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/site-mirror/sitemirror/internal/config"
	"github.com/site-mirror/sitemirror/internal/driver"
	"github.com/site-mirror/sitemirror/internal/frontier"
	"github.com/site-mirror/sitemirror/internal/policy"
	"github.com/site-mirror/sitemirror/internal/progress"
	"github.com/site-mirror/sitemirror/internal/storage"
	"github.com/site-mirror/sitemirror/internal/urlutil"
)

// jobBudget is the wall-clock limit for one job's rate-limit wait and
// fetch. Save takes no context and is not bounded by it.
const jobBudget = 60 * time.Second

// idleWait is how long the dispatcher sleeps when no progress is made.
const idleWait = 100 * time.Millisecond

// PathFunc maps a clean URL to its local artifact path.
type PathFunc func(cleanURL string) string

// Engine owns the crawl lifecycle for one run.
type Engine struct {
	cfg      *config.Config
	store    *storage.Store
	frontier *frontier.Frontier
	tracker  *progress.Tracker
	log      *zap.Logger
	limiter  *rate.Limiter

	drv     driver.Driver
	pathFor PathFunc
	pol     *policy.Policy

	// Warm caches rebuilt from the store at startup; the store stays
	// authoritative. activeDownloads is the in-memory pre-reservation
	// that makes concurrent admission of the same URL a no-op.
	mu              sync.Mutex
	downloaded      map[string]struct{}
	urlToPath       map[string]string
	activeDownloads map[string]struct{}
}

// New creates an engine over an opened store. The driver and policy are
// attached afterwards because the policy closes over the engine's seen
// set.
func New(cfg *config.Config, store *storage.Store, tracker *progress.Tracker, log *zap.Logger) (*Engine, error) {
	downloaded, err := store.DownloadedURLs()
	if err != nil {
		return nil, fmt.Errorf("failed to load downloaded set: %w", err)
	}
	urlToPath, err := store.URLToPath()
	if err != nil {
		return nil, fmt.Errorf("failed to load url mapping: %w", err)
	}

	limit := rate.Inf
	if delay := cfg.RequestDelay(); delay > 0 {
		limit = rate.Every(delay)
	}

	return &Engine{
		cfg:             cfg,
		store:           store,
		frontier:        frontier.New(),
		tracker:         tracker,
		log:             log,
		limiter:         rate.NewLimiter(limit, 1),
		downloaded:      downloaded,
		urlToPath:       urlToPath,
		activeDownloads: make(map[string]struct{}),
	}, nil
}

// SetDriver attaches the site driver and its path mapping.
func (e *Engine) SetDriver(drv driver.Driver, pathFor PathFunc) {
	e.drv = drv
	e.pathFor = pathFor
}

// SetPolicy attaches the admission policy.
func (e *Engine) SetPolicy(pol *policy.Policy) {
	e.pol = pol
}

// Seen reports whether a clean URL is completed or currently in flight.
// Once MarkCompleted returns for a URL, Seen is true for it.
func (e *Engine) Seen(cleanURL string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.downloaded[cleanURL]; ok {
		return true
	}
	_, active := e.activeDownloads[cleanURL]
	return active
}

type jobResult struct {
	item    frontier.Item
	outcome *driver.Outcome
	skipped bool
	err     error
}

// Run executes the crawl until the frontier drains or ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	if e.drv == nil || e.pol == nil {
		return fmt.Errorf("engine is not fully wired: driver and policy are required")
	}

	if err := e.seed(); err != nil {
		return err
	}

	maxWorkers := e.cfg.Crawling.MaxWorkers
	results := make(chan jobResult, maxWorkers*2)
	inFlight := 0
	stopping := false

	for {
		if ctx.Err() != nil && !stopping {
			stopping = true
			e.log.Info("stopping: waiting for in-flight jobs", zap.Int("in_flight", inFlight))
		}

		if !stopping {
			for inFlight < maxWorkers {
				item, ok := e.frontier.Pop()
				if !ok {
					break
				}
				e.tracker.AddQueued(-1)

				// Re-check admission: the URL may have completed since
				// it was queued.
				if !e.pol.ShouldDownload(item.CleanURL, item.Depth) {
					continue
				}

				e.mu.Lock()
				if _, active := e.activeDownloads[item.CleanURL]; active {
					e.mu.Unlock()
					continue
				}
				e.activeDownloads[item.CleanURL] = struct{}{}
				e.mu.Unlock()

				inFlight++
				e.tracker.SetActiveJobs(inFlight)
				go e.runJob(ctx, item, results)
			}
		}

		if inFlight == 0 {
			if stopping || e.frontier.Len() == 0 {
				break
			}
		}

		select {
		case res := <-results:
			inFlight--
			e.tracker.SetActiveJobs(inFlight)
			e.handleResult(res)
		case <-time.After(idleWait):
		}
	}

	e.logSummary()
	return ctx.Err()
}

// seed loads pending work from the store, or admits the start URL when
// the store has none.
func (e *Engine) seed() error {
	if n, err := e.store.ResetStale(); err != nil {
		return fmt.Errorf("failed to reset stale downloads: %w", err)
	} else if n > 0 {
		e.log.Info("requeued urls interrupted by a previous run", zap.Int("count", n))
	}
	if n, err := e.store.RequeueFailed(); err != nil {
		return fmt.Errorf("failed to requeue failed urls: %w", err)
	} else if n > 0 {
		e.log.Info("re-attempting urls that failed in a previous run", zap.Int("count", n))
	}

	pending, err := e.store.PendingURLs(0)
	if err != nil {
		return fmt.Errorf("failed to load pending urls: %w", err)
	}

	if len(pending) > 0 {
		counts, err := e.store.GetCounts()
		if err != nil {
			return fmt.Errorf("failed to load counts: %w", err)
		}
		e.tracker.Seed(counts.Discovered, counts.Completed, counts.Failed, len(pending))

		items := make([]frontier.Item, 0, len(pending))
		for _, p := range pending {
			items = append(items, frontier.Item{CleanURL: p.CleanURL, Depth: p.Depth})
		}
		e.frontier.PushMany(items)
		e.log.Info("resuming crawl",
			zap.Int("pending", len(pending)),
			zap.Int("completed", counts.Completed),
			zap.Int("failed", counts.Failed))
		return nil
	}

	clean, err := urlutil.Clean(e.cfg.Website.StartURL)
	if err != nil {
		return fmt.Errorf("invalid start url: %w", err)
	}
	if _, err := e.store.Admit(e.cfg.Website.StartURL, clean, 0, ""); err != nil {
		return err
	}
	e.frontier.Push(frontier.Item{CleanURL: clean, Depth: 0})
	e.tracker.AddDiscovered(1)
	e.tracker.AddQueued(1)
	e.log.Info("starting crawl", zap.String("start_url", clean))
	return nil
}

// runJob executes one fetch+save cycle. The per-job budget bounds the
// rate-limit wait and the fetch; the save runs without a deadline.
func (e *Engine) runJob(ctx context.Context, item frontier.Item, results chan<- jobResult) {
	defer func() {
		e.mu.Lock()
		delete(e.activeDownloads, item.CleanURL)
		e.mu.Unlock()
	}()

	jobCtx, cancel := context.WithTimeout(ctx, jobBudget)
	defer cancel()

	if err := e.limiter.Wait(jobCtx); err != nil {
		results <- jobResult{item: item, skipped: true}
		return
	}

	e.tracker.SetCurrent(item.CleanURL, item.Depth)

	// The durable claim. Losing the race means another worker (or a
	// previous run) already owns the URL.
	owned, err := e.store.MarkDownloading(item.CleanURL)
	if err != nil {
		results <- jobResult{item: item, err: err}
		return
	}
	if !owned {
		results <- jobResult{item: item, skipped: true}
		return
	}

	start := time.Now()
	outcome, err := e.drv.Fetch(jobCtx, item.CleanURL, item.Depth)
	if err != nil {
		e.fail(item.CleanURL, err)
		results <- jobResult{item: item, err: err}
		return
	}

	if outcome.IsIndex {
		// Nothing to persist; the store row stays downloading for the
		// rest of the run, and ResetStale returns it to pending on the
		// next start so a resumed run expands the space again.
		results <- jobResult{item: item, outcome: outcome}
		return
	}

	localPath := e.pathFor(item.CleanURL)
	if err := e.drv.Save(item.CleanURL, outcome, localPath); err != nil {
		e.fail(item.CleanURL, err)
		results <- jobResult{item: item, err: err}
		return
	}

	var fileSize int64
	if info, statErr := os.Stat(localPath); statErr == nil {
		fileSize = info.Size()
	}
	downloadTime := time.Since(start).Seconds()

	if err := e.store.MarkCompleted(item.CleanURL, localPath, fileSize, downloadTime, len(outcome.Links), item.Depth); err != nil {
		results <- jobResult{item: item, err: err}
		return
	}

	e.mu.Lock()
	e.downloaded[item.CleanURL] = struct{}{}
	e.urlToPath[item.CleanURL] = localPath
	e.mu.Unlock()

	e.tracker.AddSize(fileSize)
	results <- jobResult{item: item, outcome: outcome}
}

func (e *Engine) fail(cleanURL string, cause error) {
	if err := e.store.MarkFailed(cleanURL, cause.Error()); err != nil {
		e.log.Error("failed to record failure", zap.String("url", cleanURL), zap.Error(err))
	}
}

// handleResult folds a finished job back into the schedule.
func (e *Engine) handleResult(res jobResult) {
	if res.skipped {
		return
	}
	if res.err != nil {
		e.tracker.IncFailed()
		e.tracker.SetLastError(res.err.Error())
		e.log.Warn("page failed", zap.String("url", res.item.CleanURL), zap.Error(res.err))
		return
	}

	outcome := res.outcome
	if outcome.IsIndex {
		// Space fan-out: links enter at depth 0 regardless of the
		// index's own depth, so the whole space is reachable even when
		// the index was found deep in the crawl.
		e.admitLinks(outcome.Links, 0, res.item.CleanURL)
		return
	}

	e.tracker.IncDownloaded()
	e.tracker.AddResources(len(outcome.Attachments))
	if res.item.Depth < e.pol.MaxDepth() {
		e.admitLinks(outcome.Links, res.item.Depth+1, res.item.CleanURL)
	}
}

// admitLinks persists newly discovered links and queues the admissible
// ones.
func (e *Engine) admitLinks(links []string, depth int, parent string) {
	if len(links) == 0 {
		return
	}

	var reqs []storage.AdmitRequest
	var items []frontier.Item
	for _, link := range links {
		clean := urlutil.MustClean(link)
		if !e.pol.ShouldDownload(clean, depth) {
			continue
		}
		reqs = append(reqs, storage.AdmitRequest{
			URL:       link,
			CleanURL:  clean,
			Depth:     depth,
			ParentURL: parent,
		})
		items = append(items, frontier.Item{CleanURL: clean, Depth: depth})
	}
	if len(reqs) == 0 {
		return
	}

	inserted, err := e.store.AdmitBatch(reqs)
	if err != nil {
		e.log.Error("failed to admit links", zap.Error(err))
		return
	}

	queued := e.frontier.PushMany(items)
	e.tracker.AddDiscovered(inserted)
	e.tracker.AddQueued(queued)
}

func (e *Engine) logSummary() {
	s := e.tracker.Snapshot()
	e.log.Info("crawl finished",
		zap.Int("downloaded", s.Downloaded),
		zap.Int("failed", s.Failed),
		zap.Int("resources", s.Resources),
		zap.Duration("elapsed", s.Elapsed.Round(time.Millisecond)),
		zap.Float64("success_rate", s.SuccessRate()),
		zap.Float64("pages_per_sec", s.PagesPerSecond))
}
