package models

// MenuRules defines the YAML configuration steering menu-item extraction:
// recognized currency symbols, acceptable price bounds, what counts as a
// section header, and keyword fallbacks for categorizing items that appear
// outside any header.
type MenuRules struct {
	Currencies  []string       `json:"currencies" yaml:"currencies"`
	PriceLimits PriceLimits    `json:"priceLimits" yaml:"price_limits"`
	Headers     HeaderRules    `json:"headers" yaml:"headers"`
	Categories  []CategoryRule `json:"categories" yaml:"categories"`
}

// PriceLimits bounds plausible item prices. Prices outside the range are
// treated as OCR noise and the line is not turned into an item.
type PriceLimits struct {
	MinCents int64 `json:"minCents" yaml:"min_cents"`
	MaxCents int64 `json:"maxCents" yaml:"max_cents"`
}

// HeaderRules describes how section headers are recognized.
type HeaderRules struct {
	Uppercase  bool `json:"uppercase" yaml:"uppercase"`
	MinLetters int  `json:"minLetters" yaml:"min_letters"`
}

// CategoryRule assigns a category to items whose text contains one of the
// keywords. Only consulted when no section header applies.
type CategoryRule struct {
	Name     string   `json:"name" yaml:"name"`
	Keywords []string `json:"keywords" yaml:"keywords"`
}

// RulesInfo contains metadata about an uploaded rules file.
type RulesInfo struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	UploadedAt    string `json:"uploadedAt"`
	CategoryCount int    `json:"categoryCount"`
	CurrencyCount int    `json:"currencyCount"`
}
