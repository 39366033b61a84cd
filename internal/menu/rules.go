// Package menu extracts structured menu items from raw OCR text.
package menu

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ocr-menu-detector/backend/internal/models"
)

// DefaultRules returns the built-in extraction rules used when no rules file
// has been uploaded.
func DefaultRules() *models.MenuRules {
	return &models.MenuRules{
		Currencies: []string{"$", "€", "£", "¥", "₹"},
		PriceLimits: models.PriceLimits{
			MinCents: 1,
			MaxCents: 100000, // anything above 1000.00 is OCR noise on a menu
		},
		Headers: models.HeaderRules{
			Uppercase:  true,
			MinLetters: 3,
		},
		Categories: []models.CategoryRule{
			{Name: "Appetizers", Keywords: []string{"soup", "salad", "bruschetta", "spring roll", "starter"}},
			{Name: "Main Courses", Keywords: []string{"steak", "pizza", "pasta", "burger", "curry", "grilled", "roast"}},
			{Name: "Desserts", Keywords: []string{"cake", "ice cream", "tiramisu", "pudding", "brownie", "pie"}},
			{Name: "Drinks", Keywords: []string{"coffee", "tea", "juice", "soda", "beer", "wine", "cocktail", "smoothie"}},
		},
	}
}

// ParseRules parses a YAML rules file.
func ParseRules(filePath string) (*models.MenuRules, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return ParseRulesFromReader(file)
}

// ParseRulesFromReader parses rules from an io.Reader.
func ParseRulesFromReader(r io.Reader) (*models.MenuRules, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return ParseRulesFromBytes(data)
}

// ParseRulesFromBytes parses and validates rules from raw YAML.
func ParseRulesFromBytes(data []byte) (*models.MenuRules, error) {
	var rules models.MenuRules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("parsing rules YAML: %w", err)
	}

	if err := ValidateRules(&rules); err != nil {
		return nil, err
	}
	return &rules, nil
}

// ValidateRules checks a rules document for internal consistency.
func ValidateRules(rules *models.MenuRules) error {
	if len(rules.Currencies) == 0 {
		return fmt.Errorf("rules must define at least one currency symbol")
	}
	if rules.PriceLimits.MinCents < 0 {
		return fmt.Errorf("price_limits.min_cents must not be negative")
	}
	if rules.PriceLimits.MaxCents > 0 && rules.PriceLimits.MaxCents < rules.PriceLimits.MinCents {
		return fmt.Errorf("price_limits.max_cents must be >= min_cents")
	}
	if rules.Headers.MinLetters < 0 {
		return fmt.Errorf("headers.min_letters must not be negative")
	}

	seen := make(map[string]struct{}, len(rules.Categories))
	for _, cat := range rules.Categories {
		if cat.Name == "" {
			return fmt.Errorf("category rule without a name")
		}
		if _, dup := seen[cat.Name]; dup {
			return fmt.Errorf("duplicate category rule: %s", cat.Name)
		}
		seen[cat.Name] = struct{}{}
	}

	return nil
}
