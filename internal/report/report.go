// Package report generates summaries and exports from the crawl store.
package report

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/site-mirror/sitemirror/internal/storage"
)

// Summary renders the human-readable database report to w.
func Summary(store *storage.Store, dbPath string, w io.Writer) error {
	counts, err := store.GetCounts()
	if err != nil {
		return fmt.Errorf("failed to read counts: %w", err)
	}
	statusCounts, err := store.StatusCounts()
	if err != nil {
		return fmt.Errorf("failed to read status counts: %w", err)
	}
	docSize, resSize, err := store.SizeTotals()
	if err != nil {
		return fmt.Errorf("failed to read size totals: %w", err)
	}
	typeTotals, err := store.ResourceTypeTotals()
	if err != nil {
		return fmt.Errorf("failed to read resource totals: %w", err)
	}

	line := strings.Repeat("=", 60)
	fmt.Fprintln(w, line)
	fmt.Fprintln(w, "CRAWLER DATABASE REPORT")
	fmt.Fprintln(w, line)
	fmt.Fprintf(w, "Database: %s (%s)\n\n", dbPath, fileSize(dbPath))

	fmt.Fprintln(w, "URL STATUS SUMMARY")
	fmt.Fprintln(w, strings.Repeat("-", 30))
	total := 0
	for _, count := range statusCounts {
		total += count
	}
	if total == 0 {
		fmt.Fprintln(w, "  no URLs found in database")
	} else {
		statuses := make([]string, 0, len(statusCounts))
		for status := range statusCounts {
			statuses = append(statuses, status)
		}
		sort.Strings(statuses)
		for _, status := range statuses {
			count := statusCounts[status]
			fmt.Fprintf(w, "  %-12s %6d (%5.1f%%)\n", status, count, float64(count)/float64(total)*100)
		}
		fmt.Fprintf(w, "  %-12s %6d\n", "total", total)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "DOWNLOAD SUMMARY")
	fmt.Fprintln(w, strings.Repeat("-", 30))
	fmt.Fprintf(w, "  documents: %d\n", counts.Documents)
	fmt.Fprintf(w, "  resources: %d\n\n", counts.Resources)

	fmt.Fprintln(w, "SIZE SUMMARY")
	fmt.Fprintln(w, strings.Repeat("-", 30))
	fmt.Fprintf(w, "  documents: %s\n", formatBytes(docSize))
	fmt.Fprintf(w, "  resources: %s\n", formatBytes(resSize))
	fmt.Fprintf(w, "  total:     %s\n\n", formatBytes(docSize+resSize))

	if len(typeTotals) > 0 {
		fmt.Fprintln(w, "RESOURCE TYPES")
		fmt.Fprintln(w, strings.Repeat("-", 30))
		types := make([]string, 0, len(typeTotals))
		for t := range typeTotals {
			types = append(types, t)
		}
		sort.Strings(types)
		for _, t := range types {
			fmt.Fprintf(w, "  %-12s %6d %10s\n", t, typeTotals[t][0], formatBytes(typeTotals[t][1]))
		}
		fmt.Fprintln(w)
	}

	failed, err := store.URLsByStatus(storage.StatusFailed)
	if err != nil {
		return err
	}
	if len(failed) > 0 {
		fmt.Fprintln(w, "FAILED URLS")
		fmt.Fprintln(w, strings.Repeat("-", 30))
		for i, u := range failed {
			if i >= 20 {
				fmt.Fprintf(w, "  ... and %d more\n", len(failed)-20)
				break
			}
			fmt.Fprintf(w, "  %s\n    %s\n", u.CleanURL, u.ErrorMessage)
		}
	}

	return nil
}

func fileSize(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return "unknown"
	}
	return formatBytes(info.Size())
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
