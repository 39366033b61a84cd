package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/ocr-menu-detector/backend/internal/lang"
)

// Gemini translates menu lines with the Google Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini-backed translator.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if model == "" {
		model = "gemini-1.5-flash"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) Name() string { return "gemini" }

// TranslateLines translates all lines in a single request. The model is
// asked for a JSON array so the output maps 1:1 onto the input.
func (g *Gemini) TranslateLines(ctx context.Context, lines []string, targetLang string) ([]string, error) {
	if len(lines) == 0 {
		return nil, nil
	}

	payload, err := json.Marshal(lines)
	if err != nil {
		return nil, fmt.Errorf("encoding lines: %w", err)
	}

	prompt := fmt.Sprintf(
		"Translate each entry of the following JSON array of restaurant menu lines into %s. "+
			"Keep prices, numbers and currency symbols unchanged. "+
			"Respond with ONLY a JSON array of the same length containing the translations, in order.\n\n%s",
		lang.Name(targetLang), payload)

	model := g.client.GenerativeModel(g.model)
	model.SetTemperature(0.1) // Low temperature for consistent output
	model.ResponseMIMEType = "application/json"

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	text, err := extractTextFromResponse(resp)
	if err != nil {
		return nil, err
	}

	var out []string
	if err := json.Unmarshal([]byte(cleanJSONBlock(text)), &out); err != nil {
		return nil, fmt.Errorf("decoding translations: %w", err)
	}
	if len(out) != len(lines) {
		return nil, fmt.Errorf("expected %d translations, got %d", len(lines), len(out))
	}
	return out, nil
}

// Close releases resources held by the client.
func (g *Gemini) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// extractTextFromResponse extracts text from a Gemini API response.
func extractTextFromResponse(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("no content in response")
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}

	if len(parts) == 0 {
		return "", fmt.Errorf("no text parts in response")
	}

	return strings.Join(parts, ""), nil
}

// cleanJSONBlock removes markdown code block wrappers from JSON.
func cleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
