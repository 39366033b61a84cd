package menu

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ocr-menu-detector/backend/internal/models"
)

var titleCaser = cases.Title(language.English)

// nameSeparators split a dish name from its description within one line:
// "Caesar Salad - Fresh romaine lettuce $12.99".
var nameSeparators = []string{" - ", " – ", " — ", ": "}

// ExtractItems turns raw OCR text into menu items.
//
// ALL-CAPS lines become section headers and set the category for the items
// that follow. A line containing a price becomes an item; its FullText is
// the whole line and its name is the text before the price. A name-only
// line directly followed by a price-only line is merged into one item,
// which happens when OCR splits a long entry across lines.
func ExtractItems(text string, rules *models.MenuRules) []models.MenuItem {
	if rules == nil {
		rules = DefaultRules()
	}

	items := make([]models.MenuItem, 0)
	category := ""
	pending := "" // name line waiting for its price

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			pending = ""
			continue
		}

		if isHeader(line, rules) {
			category = titleCaser.String(strings.ToLower(line))
			pending = ""
			continue
		}

		price, priceStart, found := FindPrice(line, rules.Currencies)
		if !found {
			if hasLetter(line) {
				pending = line
			}
			continue
		}

		if !priceInLimits(price.Cents, rules.PriceLimits) {
			pending = ""
			continue
		}

		body := strings.TrimSpace(line[:priceStart])
		fullText := line
		if body == "" {
			if pending == "" {
				continue // a lone price is OCR noise
			}
			body = pending
			fullText = pending + " " + line
		}
		pending = ""

		name, description := splitNameDescription(body)
		if name == "" {
			continue
		}

		itemCategory := category
		if itemCategory == "" {
			itemCategory = keywordCategory(fullText, rules.Categories)
		}

		items = append(items, models.MenuItem{
			Name:        name,
			Description: description,
			Price:       price.Display,
			PriceCents:  price.Cents,
			Currency:    price.Currency,
			Category:    itemCategory,
			FullText:    fullText,
		})
	}

	return items
}

// isHeader reports whether line is a section header like "APPETIZERS".
func isHeader(line string, rules *models.MenuRules) bool {
	letters := 0
	for _, r := range line {
		if unicode.IsLetter(r) {
			letters++
			if rules.Headers.Uppercase && unicode.IsLower(r) {
				return false
			}
		}
	}
	if letters < rules.Headers.MinLetters {
		return false
	}

	// A header never carries a price.
	if _, _, found := FindPrice(line, rules.Currencies); found {
		return false
	}
	return true
}

// splitNameDescription splits "Caesar Salad - Fresh romaine lettuce" into
// name and description at the first separator.
func splitNameDescription(body string) (string, string) {
	for _, sep := range nameSeparators {
		if idx := strings.Index(body, sep); idx > 0 {
			name := cleanEdges(body[:idx])
			desc := cleanEdges(body[idx+len(sep):])
			if name != "" {
				return name, desc
			}
		}
	}
	return cleanEdges(body), ""
}

// cleanEdges strips separator debris and dot leaders OCR leaves around
// names: "Caesar Salad ....." -> "Caesar Salad".
func cleanEdges(s string) string {
	return strings.Trim(s, " \t-–—:.·…*_")
}

func keywordCategory(text string, categories []models.CategoryRule) string {
	lower := strings.ToLower(text)
	for _, cat := range categories {
		for _, kw := range cat.Keywords {
			if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
				return cat.Name
			}
		}
	}
	return ""
}

func priceInLimits(cents int64, limits models.PriceLimits) bool {
	if cents < limits.MinCents {
		return false
	}
	if limits.MaxCents > 0 && cents > limits.MaxCents {
		return false
	}
	return true
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
