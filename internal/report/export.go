package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/site-mirror/sitemirror/internal/storage"
)

// ExportFormat defines the export file format.
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatXLSX ExportFormat = "xlsx"
	FormatJSON ExportFormat = "json"
)

var exportColumns = []string{
	"url", "clean_url", "depth", "discovered_at", "parent", "status", "retry_count", "error",
}

// ExportURLsByStatus writes all discovered URLs with the given status
// to filePath in the chosen format.
func ExportURLsByStatus(store *storage.Store, status string, format ExportFormat, filePath string) error {
	urls, err := store.URLsByStatus(status)
	if err != nil {
		return fmt.Errorf("failed to query urls: %w", err)
	}

	switch format {
	case FormatCSV:
		return exportCSV(urls, filePath)
	case FormatXLSX:
		return exportXLSX(urls, status, filePath)
	case FormatJSON:
		return exportJSON(urls, filePath)
	default:
		return fmt.Errorf("unsupported export format: %s", format)
	}
}

func rowValues(u storage.DiscoveredURL) []string {
	return []string{
		u.URL,
		u.CleanURL,
		strconv.Itoa(u.Depth),
		u.DiscoveredAt.Format(time.RFC3339),
		u.ParentCleanURL,
		u.Status,
		strconv.Itoa(u.RetryCount),
		u.ErrorMessage,
	}
}

func exportCSV(urls []storage.DiscoveredURL, filePath string) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	// UTF-8 BOM for Excel compatibility
	file.Write([]byte{0xEF, 0xBB, 0xBF})

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write(exportColumns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, u := range urls {
		if err := writer.Write(rowValues(u)); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	return nil
}

func exportXLSX(urls []storage.DiscoveredURL, status, filePath string) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := "URLs"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return err
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
	})
	if err != nil {
		return err
	}

	for col, name := range exportColumns {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		f.SetCellValue(sheet, cell, name)
		f.SetCellStyle(sheet, cell, cell, headerStyle)
	}

	for row, u := range urls {
		for col, value := range rowValues(u) {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			f.SetCellValue(sheet, cell, value)
		}
	}

	f.SetColWidth(sheet, "A", "B", 60)
	f.SetColWidth(sheet, "H", "H", 40)

	if err := f.SaveAs(filePath); err != nil {
		return fmt.Errorf("failed to save xlsx: %w", err)
	}
	return nil
}

func exportJSON(urls []storage.DiscoveredURL, filePath string) error {
	type row struct {
		URL          string `json:"url"`
		CleanURL     string `json:"clean_url"`
		Depth        int    `json:"depth"`
		DiscoveredAt string `json:"discovered_at"`
		Parent       string `json:"parent,omitempty"`
		Status       string `json:"status"`
		RetryCount   int    `json:"retry_count"`
		Error        string `json:"error,omitempty"`
	}

	rows := make([]row, 0, len(urls))
	for _, u := range urls {
		rows = append(rows, row{
			URL:          u.URL,
			CleanURL:     u.CleanURL,
			Depth:        u.Depth,
			DiscoveredAt: u.DiscoveredAt.Format(time.RFC3339),
			Parent:       u.ParentCleanURL,
			Status:       u.Status,
			RetryCount:   u.RetryCount,
			Error:        u.ErrorMessage,
		})
	}

	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filePath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write json export: %w", err)
	}
	return nil
}
