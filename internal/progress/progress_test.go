package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSnapshotCounters(t *testing.T) {
	tr := NewTracker()
	tr.AddDiscovered(3)
	tr.IncDownloaded()
	tr.IncDownloaded()
	tr.IncFailed()
	tr.AddQueued(5)
	tr.AddQueued(-2)
	tr.AddResources(4)
	tr.AddSize(1024)
	tr.SetActiveJobs(2)
	tr.SetCurrent("https://site/a", 1)
	tr.SetLastError("boom")

	s := tr.Snapshot()
	assert.Equal(t, 3, s.Discovered)
	assert.Equal(t, 2, s.Downloaded)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 3, s.Queued)
	assert.Equal(t, 4, s.Resources)
	assert.Equal(t, int64(1024), s.TotalSize)
	assert.Equal(t, 2, s.ActiveJobs)
	assert.Equal(t, "https://site/a", s.LastURL)
	assert.Equal(t, "boom", s.LastError)
}

func TestQueuedNeverNegative(t *testing.T) {
	tr := NewTracker()
	tr.AddQueued(-5)
	assert.Zero(t, tr.Snapshot().Queued)
}

func TestSuccessRate(t *testing.T) {
	tr := NewTracker()
	assert.Equal(t, 100.0, tr.Snapshot().SuccessRate())

	tr.IncDownloaded()
	tr.IncDownloaded()
	tr.IncDownloaded()
	tr.IncFailed()
	assert.Equal(t, 75.0, tr.Snapshot().SuccessRate())
}

func TestSeed(t *testing.T) {
	tr := NewTracker()
	tr.Seed(10, 7, 1, 2)

	s := tr.Snapshot()
	assert.Equal(t, 10, s.Discovered)
	assert.Equal(t, 7, s.Downloaded)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 2, s.Queued)
}
