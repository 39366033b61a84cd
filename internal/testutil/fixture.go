// fixture.go - Rendered image fixtures for OCR tests
package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os/exec"
	"testing"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// RequireTesseract skips the test when the tesseract binary is not in PATH.
func RequireTesseract(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("tesseract"); err != nil {
		t.Skip("tesseract not installed in PATH")
	}
}

// RenderTextImage draws the given lines of black text on a white background
// and returns the encoded PNG. Good enough for OCR round-trip tests.
func RenderTextImage(t *testing.T, lines ...string) []byte {
	t.Helper()

	width := 400
	height := 40*len(lines) + 40
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.Black,
		Face: basicfont.Face7x13,
	}
	for i, line := range lines {
		d.Dot = fixed.P(20, 40*(i+1))
		d.DrawString(line)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// SampleMenuPNG returns a rendered menu image with a handful of priced items.
func SampleMenuPNG(t *testing.T) []byte {
	t.Helper()
	return RenderTextImage(t,
		"Test Menu",
		"Pizza - $15.99",
		"Pasta - $12.99",
		"Salad - $8.99",
	)
}
