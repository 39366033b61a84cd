// Package report renders completed scans as Markdown or HTML documents.
package report

import (
	"io"
	"time"

	"github.com/ocr-menu-detector/backend/internal/models"
)

// Data is everything a report needs about one completed scan.
type Data struct {
	FileName         string
	SessionID        string
	ScannedAt        time.Time
	DetectedLanguage string // ISO 639-1 code
	TargetLanguage   string // empty when no translation was requested
	Engine           string
	PageCount        int
	WordCount        int
	MeanConfidence   float64 // 0-1
	DurationMs       int64
	Items            []models.MenuItem
	Warnings         []string
}

// Writer outputs a scan report to a configured destination.
type Writer interface {
	// Write outputs the report. Returns the number of bytes written and any
	// error encountered.
	Write(data *Data) (int, error)
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// groupByCategory splits items into per-category groups, preserving the
// order categories first appear in. Uncategorized items come last under an
// empty key.
func groupByCategory(items []models.MenuItem) ([]string, map[string][]models.MenuItem) {
	var order []string
	groups := make(map[string][]models.MenuItem)
	seen := make(map[string]bool)
	hasUncategorized := false

	for _, item := range items {
		cat := item.Category
		if cat == "" {
			hasUncategorized = true
		} else if !seen[cat] {
			seen[cat] = true
			order = append(order, cat)
		}
		groups[cat] = append(groups[cat], item)
	}

	if hasUncategorized {
		order = append(order, "")
	}
	return order, groups
}
