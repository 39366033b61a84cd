package ocr

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"

	"github.com/ocr-menu-detector/backend/internal/models"
)

// TesseractEngine runs OCR through a local Tesseract installation via the
// gosseract client.
type TesseractEngine struct {
	clientFactory  func() *gosseract.Client
	tessdataPrefix string

	availOnce sync.Once
	avail     bool
}

// NewTesseractEngine constructs a Tesseract-backed OCR engine. tessdataPrefix
// points at the traineddata directory; empty means the system default.
func NewTesseractEngine(tessdataPrefix string) *TesseractEngine {
	return &TesseractEngine{
		clientFactory:  gosseract.NewClient,
		tessdataPrefix: tessdataPrefix,
	}
}

func (e *TesseractEngine) Name() string { return "tesseract" }

// Available reports whether the tesseract binary is installed. The probe
// runs once; serverless images without Tesseract fall through to the
// remote engine.
func (e *TesseractEngine) Available() bool {
	e.availOnce.Do(func() {
		_, err := exec.LookPath("tesseract")
		e.avail = err == nil
	})
	return e.avail
}

// Recognize performs OCR on a single image.
func (e *TesseractEngine) Recognize(ctx context.Context, in Input) (*Result, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	c := e.clientFactory()
	defer c.Close()

	if e.tessdataPrefix != "" {
		if err := c.SetTessdataPrefix(e.tessdataPrefix); err != nil {
			return nil, fmt.Errorf("set tessdata prefix: %w", err)
		}
	}
	if err := c.SetImageFromBytes(in.Image); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}
	if len(in.Languages) > 0 {
		if err := c.SetLanguage(in.Languages...); err != nil {
			return nil, fmt.Errorf("set languages: %w", err)
		}
	}
	if in.PSM > 0 {
		if err := c.SetPageSegMode(gosseract.PageSegMode(in.PSM)); err != nil {
			return nil, fmt.Errorf("set page seg mode: %w", err)
		}
	}
	if in.DPI > 0 {
		if err := c.SetVariable(gosseract.SettableVariable("user_defined_dpi"), fmt.Sprint(in.DPI)); err != nil {
			return nil, fmt.Errorf("set dpi: %w", err)
		}
	}
	for k, v := range in.Variables {
		if err := c.SetVariable(gosseract.SettableVariable(k), v); err != nil {
			return nil, fmt.Errorf("set variable %s: %w", k, err)
		}
	}

	text, err := c.Text()
	if err != nil {
		return nil, fmt.Errorf("recognize text: %w", err)
	}

	words := extractWords(c)

	return &Result{
		InputID:        in.ID,
		PlainText:      strings.TrimSpace(text),
		Words:          words,
		MeanConfidence: meanConfidence(words),
		Engine:         e.Name(),
	}, nil
}

// extractWords pulls word-level boxes and assigns line numbers by vertical
// overlap: Tesseract returns words in reading order, so a word that does not
// overlap the current line's vertical band starts a new line.
func extractWords(c *gosseract.Client) []models.Word {
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return nil
	}

	words := make([]models.Word, 0, len(boxes))
	lineNo := 0
	lineTop, lineBottom := 0, 0

	for i, b := range boxes {
		word := strings.TrimSpace(b.Word)
		if word == "" {
			continue
		}

		top, bottom := b.Box.Min.Y, b.Box.Max.Y
		if i == 0 || top >= lineBottom || bottom <= lineTop {
			if len(words) > 0 {
				lineNo++
			}
			lineTop, lineBottom = top, bottom
		} else {
			if top < lineTop {
				lineTop = top
			}
			if bottom > lineBottom {
				lineBottom = bottom
			}
		}

		words = append(words, models.Word{
			Text:       word,
			Confidence: b.Confidence / 100.0,
			Box: models.Box{
				X0: b.Box.Min.X,
				Y0: b.Box.Min.Y,
				X1: b.Box.Max.X,
				Y1: b.Box.Max.Y,
			},
			LineNo: lineNo,
		})
	}

	return words
}
