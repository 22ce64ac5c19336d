// package formatter provides functions to export watchlist and history data
// to various formats (CSV, Markdown, plain text)
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/nattadasu/bilidownloader/internal/models"
)

// ExportHistoryToCSV converts ledger records to CSV with columns: Series, Episode, Status, Processed At, Locator, Cycle
func ExportHistoryToCSV(records []models.HistoryRecord) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Series", "Episode", "Status", "Processed At", "Locator", "Cycle"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, rec := range records {
		row := []string{
			rec.SeriesID,
			strconv.Itoa(rec.Episode),
			string(rec.Status),
			rec.ProcessedAt.UTC().Format(time.RFC3339),
			rec.Locator,
			rec.CycleID,
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportHistoryToMarkdown converts ledger records to a Markdown table grouped
// under one document heading
func ExportHistoryToMarkdown(records []models.HistoryRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString("# Download History\n\n")
	buf.WriteString(fmt.Sprintf("**Records**: %d\n\n", len(records)))

	if len(records) == 0 {
		buf.WriteString("_No episodes processed yet._\n")
		return buf.Bytes(), nil
	}

	buf.WriteString("| Series | Episode | Status | Processed At | Locator |\n")
	buf.WriteString("| --- | --- | --- | --- | --- |\n")
	for _, rec := range records {
		buf.WriteString(fmt.Sprintf("| %s | %d | %s | %s | %s |\n",
			rec.SeriesID,
			rec.Episode,
			rec.Status,
			rec.ProcessedAt.UTC().Format(time.RFC3339),
			rec.Locator,
		))
	}

	return buf.Bytes(), nil
}

// ExportHistoryToText converts ledger records to plain text, one line per
// episode
func ExportHistoryToText(records []models.HistoryRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("History: %d records\n\n", len(records)))
	for i, rec := range records {
		buf.WriteString(fmt.Sprintf("%d. %s E%d [%s] %s\n",
			i+1, rec.SeriesID, rec.Episode, rec.Status,
			rec.ProcessedAt.UTC().Format(time.RFC3339)))
	}

	return buf.Bytes(), nil
}

// ExportWatchlistToCSV converts watchlist entries to CSV with columns: Series, Name, Last Episode, Active
func ExportWatchlistToCSV(entries []models.WatchEntry) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Series", "Name", "Last Episode", "Active"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, entry := range entries {
		cursor := ""
		if entry.LastKnownEpisode != nil {
			cursor = strconv.Itoa(*entry.LastKnownEpisode)
		}
		row := []string{
			entry.SeriesID,
			entry.DisplayName,
			cursor,
			strconv.FormatBool(entry.Active),
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// HistoryExportResult contains the path of the file created by
// WriteHistoryExport
type HistoryExportResult struct {
	File   string
	Format string
}

// WriteHistoryExport exports ledger records to a file in the requested
// format ("csv", "md" or "txt"). An empty basePath defaults to "history".
func WriteHistoryExport(records []models.HistoryRecord, format, basePath string) (*HistoryExportResult, error) {
	if basePath == "" {
		basePath = "history"
	}

	var data []byte
	var ext string
	var err error

	switch format {
	case "csv", "":
		data, err = ExportHistoryToCSV(records)
		ext = ".csv"
		format = "csv"
	case "md", "markdown":
		data, err = ExportHistoryToMarkdown(records)
		ext = ".md"
		format = "md"
	case "txt", "text":
		data, err = ExportHistoryToText(records)
		ext = ".txt"
		format = "txt"
	default:
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to generate %s export: %w", format, err)
	}

	file := basePath + ext
	if err := os.WriteFile(file, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write export file: %w", err)
	}

	return &HistoryExportResult{File: file, Format: format}, nil
}
