// Package progress tracks crawl counters and drives the periodic
// progress display. It is observational only: nothing in the engine
// depends on it for correctness.
package progress

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Snapshot is a point-in-time copy of the crawl statistics.
type Snapshot struct {
	Discovered     int
	Downloaded     int
	Failed         int
	Queued         int
	Resources      int
	ActiveJobs     int
	CurrentDepth   int
	LastURL        string
	LastError      string
	TotalSize      int64
	Elapsed        time.Duration
	PagesPerSecond float64
}

// SuccessRate returns the downloaded share of finished URLs in percent.
func (s Snapshot) SuccessRate() float64 {
	total := s.Downloaded + s.Failed
	if total == 0 {
		return 100
	}
	return float64(s.Downloaded) / float64(total) * 100
}

// Tracker accumulates crawl statistics behind a single lock.
type Tracker struct {
	mu        sync.Mutex
	startTime time.Time

	discovered   int
	downloaded   int
	failed       int
	queued       int
	resources    int
	activeJobs   int
	currentDepth int
	lastURL      string
	lastError    string
	totalSize    int64
}

// NewTracker creates a tracker with the clock started.
func NewTracker() *Tracker {
	return &Tracker{startTime: time.Now()}
}

// Seed primes counters from store totals when resuming a crawl.
func (t *Tracker) Seed(discovered, downloaded, failed, queued int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.discovered = discovered
	t.downloaded = downloaded
	t.failed = failed
	t.queued = queued
}

// AddDiscovered increments the discovered counter by n.
func (t *Tracker) AddDiscovered(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.discovered += n
}

// IncDownloaded counts one completed page.
func (t *Tracker) IncDownloaded() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.downloaded++
}

// IncFailed counts one failed page.
func (t *Tracker) IncFailed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failed++
}

// AddResources counts downloaded auxiliary assets.
func (t *Tracker) AddResources(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resources += n
}

// AddQueued adjusts the queued counter by delta (may be negative).
func (t *Tracker) AddQueued(delta int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.queued += delta
	if t.queued < 0 {
		t.queued = 0
	}
}

// AddSize accumulates written artifact bytes.
func (t *Tracker) AddSize(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totalSize += n
}

// SetActiveJobs records the in-flight worker count.
func (t *Tracker) SetActiveJobs(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.activeJobs = n
}

// SetCurrent records the URL and depth being processed.
func (t *Tracker) SetCurrent(url string, depth int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastURL = url
	t.currentDepth = depth
}

// SetLastError records the most recent error message for display.
func (t *Tracker) SetLastError(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastError = msg
}

// Snapshot returns a copy of the current statistics.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Since(t.startTime)
	pps := 0.0
	if seconds := elapsed.Seconds(); seconds > 0 {
		pps = float64(t.downloaded) / seconds
	}

	return Snapshot{
		Discovered:     t.discovered,
		Downloaded:     t.downloaded,
		Failed:         t.failed,
		Queued:         t.queued,
		Resources:      t.resources,
		ActiveJobs:     t.activeJobs,
		CurrentDepth:   t.currentDepth,
		LastURL:        t.lastURL,
		LastError:      t.lastError,
		TotalSize:      t.totalSize,
		Elapsed:        elapsed,
		PagesPerSecond: pps,
	}
}

// Report logs snapshots at the given interval until ctx is cancelled.
func (t *Tracker) Report(ctx context.Context, log *zap.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := t.Snapshot()
			fields := []zap.Field{
				zap.Int("discovered", s.Discovered),
				zap.Int("downloaded", s.Downloaded),
				zap.Int("failed", s.Failed),
				zap.Int("queued", s.Queued),
				zap.Int("active", s.ActiveJobs),
				zap.Float64("pages_per_sec", s.PagesPerSecond),
			}
			if s.LastURL != "" {
				fields = append(fields, zap.String("last_url", s.LastURL))
			}
			if s.LastError != "" {
				fields = append(fields, zap.String("last_error", s.LastError))
			}
			log.Info("crawl progress", fields...)
		}
	}
}
