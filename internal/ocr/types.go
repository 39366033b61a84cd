// Package ocr defines the OCR engine abstraction and its implementations.
//
// Engines turn an image into plain text plus word-level boxes. The service
// ships two: a local Tesseract engine (cgo) and a remote HTTP engine for
// platforms where Tesseract cannot be installed.
package ocr

import (
	"context"

	"github.com/ocr-menu-detector/backend/internal/models"
)

// Input is a single image handed to an engine.
type Input struct {
	ID        string
	Image     []byte // encoded image bytes (PNG preferred)
	Format    string // "png", "jpeg", ...
	DPI       int
	Languages []string // traineddata names: "eng", "spa", ...
	PSM       int      // Tesseract page segmentation mode
	Variables map[string]string
}

// Result is the recognition output for one Input.
type Result struct {
	InputID        string
	PlainText      string
	Words          []models.Word
	MeanConfidence float64 // 0-1 over all words
	Engine         string
}

// Engine recognizes text in images.
type Engine interface {
	// Name identifies the engine ("tesseract", "remote").
	Name() string

	// Available reports whether the engine can run in this environment.
	Available() bool

	// Recognize runs OCR over a single image.
	Recognize(ctx context.Context, input Input) (*Result, error)
}

// meanConfidence averages word confidences; 0 when there are no words.
func meanConfidence(words []models.Word) float64 {
	if len(words) == 0 {
		return 0
	}
	var sum float64
	for _, w := range words {
		sum += w.Confidence
	}
	return sum / float64(len(words))
}
