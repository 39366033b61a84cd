// Package translate renders extracted menu text in the user's language.
package translate

import (
	"context"
	"strings"
)

// Translator translates batches of short menu lines.
type Translator interface {
	// Name identifies the provider ("gemini", "noop").
	Name() string

	// TranslateLines translates each line into targetLang (ISO 639-1),
	// returning the translations in the same order and length as lines.
	TranslateLines(ctx context.Context, lines []string, targetLang string) ([]string, error)

	// Close releases any resources held by the translator.
	Close() error
}

// ShouldTranslate reports whether a translation pass makes sense: the
// target must be set and differ from the detected language.
func ShouldTranslate(detected, target string) bool {
	target = normalize(target)
	if target == "" {
		return false
	}
	return normalize(detected) != target
}

// normalize reduces a language code to its lowercase base ("en-US" -> "en").
func normalize(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if idx := strings.IndexAny(code, "-_"); idx > 0 {
		code = code[:idx]
	}
	return code
}

// Noop returns its input unchanged. Used when no provider is configured.
type Noop struct{}

func (Noop) Name() string { return "noop" }

func (Noop) TranslateLines(_ context.Context, lines []string, _ string) ([]string, error) {
	out := make([]string, len(lines))
	copy(out, lines)
	return out, nil
}

func (Noop) Close() error { return nil }
