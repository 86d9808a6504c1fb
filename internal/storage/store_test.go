package storage

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAdmitIsIdempotent(t *testing.T) {
	store := openStore(t)

	inserted, err := store.Admit("https://a#frag", "https://a", 0, "")
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = store.Admit("https://a", "https://a", 1, "https://parent")
	require.NoError(t, err)
	assert.False(t, inserted, "same clean_url must not create a second row")

	counts, err := store.GetCounts()
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Discovered)
}

func TestAdmitConcurrentDedup(t *testing.T) {
	store := openStore(t)

	var wg sync.WaitGroup
	insertions := make(chan bool, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.Admit("https://dup", "https://dup", 0, "")
			assert.NoError(t, err)
			insertions <- ok
		}()
	}
	wg.Wait()
	close(insertions)

	wins := 0
	for ok := range insertions {
		if ok {
			wins++
		}
	}
	assert.Equal(t, 1, wins, "exactly one admission may create the row")
}

func TestAdmitBatch(t *testing.T) {
	store := openStore(t)

	_, err := store.Admit("https://a", "https://a", 0, "")
	require.NoError(t, err)

	n, err := store.AdmitBatch([]AdmitRequest{
		{URL: "https://a", CleanURL: "https://a", Depth: 1},
		{URL: "https://b", CleanURL: "https://b", Depth: 1},
		{URL: "https://c", CleanURL: "https://c", Depth: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMarkDownloadingIsConditional(t *testing.T) {
	store := openStore(t)
	_, err := store.Admit("https://a", "https://a", 0, "")
	require.NoError(t, err)

	ok, err := store.MarkDownloading("https://a")
	require.NoError(t, err)
	assert.True(t, ok)

	// Second claim loses.
	ok, err = store.MarkDownloading("https://a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMarkCompleted(t *testing.T) {
	store := openStore(t)
	_, err := store.Admit("https://a", "https://a", 2, "")
	require.NoError(t, err)
	_, err = store.MarkDownloading("https://a")
	require.NoError(t, err)

	require.NoError(t, store.MarkCompleted("https://a", "out/a.md", 1234, 0.5, 7, 2))

	downloaded, err := store.DownloadedURLs()
	require.NoError(t, err)
	assert.Contains(t, downloaded, "https://a")

	mapping, err := store.URLToPath()
	require.NoError(t, err)
	assert.Equal(t, "out/a.md", mapping["https://a"])

	counts, err := store.GetCounts()
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Completed)
	assert.Equal(t, 1, counts.Documents)

	// Completed URLs are no longer pending or downloadable.
	ok, err := store.MarkDownloading("https://a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMarkFailedIncrementsRetries(t *testing.T) {
	store := openStore(t)
	_, err := store.Admit("https://a", "https://a", 0, "")
	require.NoError(t, err)

	require.NoError(t, store.MarkFailed("https://a", "timeout: deadline exceeded"))
	require.NoError(t, store.MarkFailed("https://a", "timeout: deadline exceeded"))

	failed, err := store.URLsByStatus(StatusFailed)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, 2, failed[0].RetryCount)
	assert.Equal(t, "timeout: deadline exceeded", failed[0].ErrorMessage)
}

func TestPendingURLsBreadthFirstOrder(t *testing.T) {
	store := openStore(t)

	for i, admit := range []AdmitRequest{
		{URL: "https://deep", CleanURL: "https://deep", Depth: 3},
		{URL: "https://shallow", CleanURL: "https://shallow", Depth: 0},
		{URL: "https://mid-a", CleanURL: "https://mid-a", Depth: 1},
		{URL: "https://mid-b", CleanURL: "https://mid-b", Depth: 1},
	} {
		_, err := store.Admit(admit.URL, admit.CleanURL, admit.Depth, "")
		require.NoError(t, err, "admit %d", i)
	}

	pending, err := store.PendingURLs(0)
	require.NoError(t, err)
	require.Len(t, pending, 4)

	assert.Equal(t, "https://shallow", pending[0].CleanURL)
	assert.Equal(t, "https://mid-a", pending[1].CleanURL)
	assert.Equal(t, "https://mid-b", pending[2].CleanURL)
	assert.Equal(t, "https://deep", pending[3].CleanURL)
}

func TestPendingURLsLimit(t *testing.T) {
	store := openStore(t)
	for i := 0; i < 5; i++ {
		_, err := store.Admit(fmt.Sprintf("https://u%d", i), fmt.Sprintf("https://u%d", i), 0, "")
		require.NoError(t, err)
	}

	pending, err := store.PendingURLs(3)
	require.NoError(t, err)
	assert.Len(t, pending, 3)
}

func TestResetStale(t *testing.T) {
	store := openStore(t)
	_, err := store.Admit("https://a", "https://a", 0, "")
	require.NoError(t, err)
	_, err = store.MarkDownloading("https://a")
	require.NoError(t, err)

	n, err := store.ResetStale()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pending, err := store.PendingURLs(0)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestRequeueFailed(t *testing.T) {
	store := openStore(t)
	_, err := store.Admit("https://a", "https://a", 0, "")
	require.NoError(t, err)
	require.NoError(t, store.MarkFailed("https://a", "boom"))

	n, err := store.RequeueFailed()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pending, err := store.PendingURLs(0)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	// Retry count survives the requeue, and the URL can be claimed again.
	requeued, err := store.URLsByStatus(StatusPending)
	require.NoError(t, err)
	require.Len(t, requeued, 1)
	assert.Equal(t, 1, requeued[0].RetryCount)

	ok, err := store.MarkDownloading("https://a")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAddResourceDedup(t *testing.T) {
	store := openStore(t)

	res := &DownloadedResource{
		URL:          "https://cdn/logo.png",
		LocalPath:    "shared/logo.png",
		ResourceType: "image",
		FileSize:     100,
		IsShared:     true,
	}
	require.NoError(t, store.AddResource(res))
	require.NoError(t, store.AddResource(res))

	resources, err := store.DownloadedResources()
	require.NoError(t, err)
	assert.Len(t, resources, 1)

	shared, err := store.SharedResources()
	require.NoError(t, err)
	assert.Equal(t, "shared/logo.png", shared["https://cdn/logo.png"])
}

func TestResetProgress(t *testing.T) {
	store := openStore(t)
	_, err := store.Admit("https://a", "https://a", 0, "")
	require.NoError(t, err)
	require.NoError(t, store.MarkCompleted("https://a", "out/a.md", 1, 0.1, 0, 0))

	require.NoError(t, store.ResetProgress())

	counts, err := store.GetCounts()
	require.NoError(t, err)
	assert.Zero(t, counts.Discovered)
	assert.Zero(t, counts.Documents)

	// Schema survives: inserts still work.
	_, err = store.Admit("https://b", "https://b", 0, "")
	require.NoError(t, err)
}

func TestStatusCountsAndSizes(t *testing.T) {
	store := openStore(t)
	_, err := store.Admit("https://a", "https://a", 0, "")
	require.NoError(t, err)
	_, err = store.Admit("https://b", "https://b", 0, "")
	require.NoError(t, err)
	require.NoError(t, store.MarkCompleted("https://a", "out/a.md", 500, 0.1, 0, 0))
	require.NoError(t, store.MarkFailed("https://b", "boom"))

	statusCounts, err := store.StatusCounts()
	require.NoError(t, err)
	assert.Equal(t, 1, statusCounts[StatusCompleted])
	assert.Equal(t, 1, statusCounts[StatusFailed])

	docs, res, err := store.SizeTotals()
	require.NoError(t, err)
	assert.Equal(t, int64(500), docs)
	assert.Zero(t, res)
}
