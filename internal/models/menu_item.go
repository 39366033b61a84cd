// Package models contains domain types for the OCR Menu Detector.
package models

// MenuItem represents a single dish or drink extracted from OCR text.
//
// JSON field names follow the original wire contract of the /api/ocr
// endpoint (snake_case), which existing clients depend on.
type MenuItem struct {
	Name           string  `json:"name"`
	Description    string  `json:"description,omitempty"`
	Price          string  `json:"price,omitempty"`
	PriceCents     int64   `json:"price_cents,omitempty"`
	Currency       string  `json:"currency,omitempty"`
	Category       string  `json:"category,omitempty"`
	FullText       string  `json:"full_text"`
	TranslatedName string  `json:"translated_name,omitempty"`
	TranslatedText string  `json:"translated_text,omitempty"`
	Confidence     float64 `json:"confidence,omitempty"` // 0-1, mean over the item's source words
	Page           int     `json:"page,omitempty"`       // 0-based page index for multi-image scans
	SourceID       string  `json:"source_id,omitempty"`  // File ID for multi-image scans
}
