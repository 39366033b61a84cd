package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ocr-menu-detector/backend/internal/models"
)

// RemoteEngine sends images to an HTTP inference endpoint. It exists for
// deployments where Tesseract cannot be installed (serverless platforms);
// any service speaking the simple JSON protocol below works.
type RemoteEngine struct {
	url       string
	authToken string
	client    *http.Client
}

// NewRemoteEngine constructs a remote OCR engine. url empty disables it.
func NewRemoteEngine(url, authToken string, timeout time.Duration) *RemoteEngine {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &RemoteEngine{
		url:       url,
		authToken: authToken,
		client:    &http.Client{Timeout: timeout},
	}
}

func (e *RemoteEngine) Name() string { return "remote" }

// Available reports whether an endpoint is configured.
func (e *RemoteEngine) Available() bool { return e.url != "" }

type remoteRequest struct {
	ImageB64  string   `json:"image_base64"`
	MimeType  string   `json:"mime_type,omitempty"`
	Languages []string `json:"languages,omitempty"`
	DPI       int      `json:"dpi,omitempty"`
}

type remoteWord struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"` // 0-1
	Box        [4]int  `json:"box"`        // x0, y0, x1, y1
	Line       int     `json:"line"`
}

type remoteResponse struct {
	Text  string       `json:"text"`
	Words []remoteWord `json:"words,omitempty"`
	Error string       `json:"error,omitempty"`
}

// Recognize posts the image to the inference endpoint.
func (e *RemoteEngine) Recognize(ctx context.Context, in Input) (*Result, error) {
	if e.url == "" {
		return nil, fmt.Errorf("remote engine not configured")
	}

	mime := "image/png"
	if in.Format != "" {
		mime = "image/" + in.Format
	}

	body, err := json.Marshal(remoteRequest{
		ImageB64:  base64.StdEncoding.EncodeToString(in.Image),
		MimeType:  mime,
		Languages: in.Languages,
		DPI:       in.DPI,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+e.authToken)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling remote OCR: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("remote OCR returned status %d", resp.StatusCode)
	}

	var rr remoteResponse
	if err := json.Unmarshal(data, &rr); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if rr.Error != "" {
		return nil, fmt.Errorf("remote OCR error: %s", rr.Error)
	}

	words := make([]models.Word, 0, len(rr.Words))
	for _, w := range rr.Words {
		text := strings.TrimSpace(w.Text)
		if text == "" {
			continue
		}
		words = append(words, models.Word{
			Text:       text,
			Confidence: w.Confidence,
			Box:        models.Box{X0: w.Box[0], Y0: w.Box[1], X1: w.Box[2], Y1: w.Box[3]},
			LineNo:     w.Line,
		})
	}

	return &Result{
		InputID:        in.ID,
		PlainText:      strings.TrimSpace(rr.Text),
		Words:          words,
		MeanConfidence: meanConfidence(words),
		Engine:         e.Name(),
	}, nil
}
