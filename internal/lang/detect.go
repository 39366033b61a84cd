// Package lang detects the language of OCR text and maps language codes
// between ISO 639-1 and Tesseract traineddata names.
package lang

import (
	"strings"
	"unicode"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// scriptLang maps a dominant non-Latin script straight to a language code.
var scriptLangs = []struct {
	table *unicode.RangeTable
	code  string
}{
	{unicode.Hiragana, "ja"},
	{unicode.Katakana, "ja"},
	{unicode.Hangul, "ko"},
	{unicode.Han, "zh"},
	{unicode.Cyrillic, "ru"},
	{unicode.Arabic, "ar"},
	{unicode.Hebrew, "he"},
	{unicode.Greek, "el"},
	{unicode.Thai, "th"},
	{unicode.Devanagari, "hi"},
}

// stopwords are small discriminative word sets for Latin-script languages.
// Menus are short, so common function words beat statistical models here.
var stopwords = []struct {
	code  string
	words map[string]struct{}
}{
	{"en", wordSet("the", "and", "with", "of", "for", "our", "your", "fresh", "served", "choice")},
	{"es", wordSet("el", "los", "las", "del", "con", "y", "por", "nuestro", "pollo", "queso")},
	{"fr", wordSet("le", "les", "des", "du", "au", "aux", "avec", "et", "poulet", "fromage")},
	{"de", wordSet("der", "die", "das", "und", "mit", "vom", "oder", "hausgemachte", "käse", "auf")},
	{"it", wordSet("il", "gli", "di", "con", "alla", "al", "nostro", "pollo", "formaggio", "della")},
	{"pt", wordSet("os", "as", "do", "da", "dos", "com", "nosso", "frango", "queijo", "à")},
}

func wordSet(words ...string) map[string]struct{} {
	s := make(map[string]struct{}, len(words))
	for _, w := range words {
		s[w] = struct{}{}
	}
	return s
}

// Detect returns the ISO 639-1 code of the text's language. It counts
// characters per script first; Latin text is then scored against the
// stopword sets. Empty or inconclusive text defaults to "en".
func Detect(text string) string {
	if strings.TrimSpace(text) == "" {
		return "en"
	}

	counts := make(map[string]int, len(scriptLangs))
	latin := 0
	for _, r := range text {
		if unicode.Is(unicode.Latin, r) {
			latin++
			continue
		}
		for _, s := range scriptLangs {
			if unicode.Is(s.table, r) {
				counts[s.code]++
				break
			}
		}
	}

	// Kana is decisive: Chinese never uses it, Japanese always does.
	if counts["ja"] > 0 {
		return "ja"
	}

	bestScript, bestCount := "", 0
	for code, n := range counts {
		if n > bestCount {
			bestScript, bestCount = code, n
		}
	}
	if bestCount > latin {
		return bestScript
	}

	return detectLatin(text)
}

func detectLatin(text string) string {
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})

	best, bestScore := "en", 0
	for _, sw := range stopwords {
		score := 0
		for _, tok := range tokens {
			if _, ok := sw.words[tok]; ok {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = sw.code, score
		}
	}
	return best
}

// Name returns the English display name for an ISO code ("es" -> "Spanish").
// Unknown codes are returned unchanged.
func Name(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if name := display.English.Tags().Name(tag); name != "" {
		return name
	}
	return code
}

// tesseractCodes maps ISO 639-1 codes to traineddata names.
var tesseractCodes = map[string]string{
	"en": "eng",
	"es": "spa",
	"fr": "fra",
	"de": "deu",
	"it": "ita",
	"pt": "por",
	"ru": "rus",
	"ja": "jpn",
	"ko": "kor",
	"zh": "chi_sim",
	"ar": "ara",
	"he": "heb",
	"el": "ell",
	"th": "tha",
	"hi": "hin",
}

// TesseractCode maps an ISO 639-1 code to the Tesseract traineddata name,
// defaulting to "eng".
func TesseractCode(iso string) string {
	if code, ok := tesseractCodes[strings.ToLower(strings.TrimSpace(iso))]; ok {
		return code
	}
	return "eng"
}
