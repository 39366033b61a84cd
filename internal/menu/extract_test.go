package menu

import (
	"testing"

	"github.com/ocr-menu-detector/backend/internal/models"
)

func TestExtractItems(t *testing.T) {
	t.Run("extracts name and price per line", func(t *testing.T) {
		text := "Pizza - $15.99\nPasta - $12.99"
		items := ExtractItems(text, DefaultRules())

		if len(items) != 2 {
			t.Fatalf("Expected 2 items, got %d", len(items))
		}

		first := items[0]
		if first.Name != "Pizza" {
			t.Errorf("Expected name Pizza, got %q", first.Name)
		}
		if first.Price != "$15.99" {
			t.Errorf("Expected price $15.99, got %q", first.Price)
		}
		if first.PriceCents != 1599 {
			t.Errorf("Expected 1599 cents, got %d", first.PriceCents)
		}
		if first.Currency != "$" {
			t.Errorf("Expected $ currency, got %q", first.Currency)
		}
		if first.FullText != "Pizza - $15.99" {
			t.Errorf("Expected full line preserved, got %q", first.FullText)
		}
	})

	t.Run("headers set the category", func(t *testing.T) {
		text := "APPETIZERS\nGarlic Bread $6.50\n\nMAIN DISHES\nRibeye $29.99"
		items := ExtractItems(text, DefaultRules())

		if len(items) != 2 {
			t.Fatalf("Expected 2 items, got %d", len(items))
		}
		if items[0].Name != "Garlic Bread" || items[0].Category != "Appetizers" {
			t.Errorf("Expected Garlic Bread under Appetizers, got %q / %q", items[0].Name, items[0].Category)
		}
		if items[1].Name != "Ribeye" || items[1].Category != "Main Dishes" {
			t.Errorf("Expected Ribeye under Main Dishes, got %q / %q", items[1].Name, items[1].Category)
		}
	})

	t.Run("keywords categorize items without headers", func(t *testing.T) {
		text := "Caesar Salad - $12.99\nChocolate Cake - $7.50\nHouse Wine - $9.00"
		items := ExtractItems(text, DefaultRules())

		if len(items) != 3 {
			t.Fatalf("Expected 3 items, got %d", len(items))
		}

		want := map[string]string{
			"Caesar Salad":   "Appetizers",
			"Chocolate Cake": "Desserts",
			"House Wine":     "Drinks",
		}
		for _, item := range items {
			if item.Category != want[item.Name] {
				t.Errorf("Expected %s in %s, got %q", item.Name, want[item.Name], item.Category)
			}
		}
	})

	t.Run("splits name from description", func(t *testing.T) {
		text := "Caesar Salad - Fresh romaine lettuce $12.99"
		items := ExtractItems(text, DefaultRules())

		if len(items) != 1 {
			t.Fatalf("Expected 1 item, got %d", len(items))
		}
		if items[0].Name != "Caesar Salad" {
			t.Errorf("Expected name Caesar Salad, got %q", items[0].Name)
		}
		if items[0].Description != "Fresh romaine lettuce" {
			t.Errorf("Expected description, got %q", items[0].Description)
		}
	})

	t.Run("merges a name line with the following price line", func(t *testing.T) {
		text := "Slow Roasted Lamb Shoulder\n$24.99"
		items := ExtractItems(text, DefaultRules())

		if len(items) != 1 {
			t.Fatalf("Expected 1 item, got %d", len(items))
		}
		if items[0].Name != "Slow Roasted Lamb Shoulder" {
			t.Errorf("Expected merged name, got %q", items[0].Name)
		}
		if items[0].PriceCents != 2499 {
			t.Errorf("Expected 2499 cents, got %d", items[0].PriceCents)
		}
		if items[0].Category != "Main Courses" {
			t.Errorf("Expected roast keyword to categorize, got %q", items[0].Category)
		}
	})

	t.Run("blank line breaks the pending merge", func(t *testing.T) {
		text := "Slow Roasted Lamb Shoulder\n\n$24.99"
		items := ExtractItems(text, DefaultRules())

		if len(items) != 0 {
			t.Errorf("Expected lone price to be dropped, got %v", items)
		}
	})

	t.Run("drops a lone price", func(t *testing.T) {
		items := ExtractItems("$4.99", DefaultRules())
		if len(items) != 0 {
			t.Errorf("Expected no items, got %v", items)
		}
	})

	t.Run("strips dot leaders from names", func(t *testing.T) {
		text := "Caesar Salad ..... $12.99"
		items := ExtractItems(text, DefaultRules())

		if len(items) != 1 {
			t.Fatalf("Expected 1 item, got %d", len(items))
		}
		if items[0].Name != "Caesar Salad" {
			t.Errorf("Expected dot leaders stripped, got %q", items[0].Name)
		}
	})

	t.Run("prices outside limits are treated as noise", func(t *testing.T) {
		text := "Caviar $2000.00\nWater $0.00"
		items := ExtractItems(text, DefaultRules())

		if len(items) != 0 {
			t.Errorf("Expected out-of-range prices to be dropped, got %v", items)
		}
	})

	t.Run("an uppercase line with a price is an item, not a header", func(t *testing.T) {
		text := "SPECIALS $9.99"
		items := ExtractItems(text, DefaultRules())

		if len(items) != 1 {
			t.Fatalf("Expected 1 item, got %d", len(items))
		}
		if items[0].Name != "SPECIALS" {
			t.Errorf("Expected name SPECIALS, got %q", items[0].Name)
		}
	})

	t.Run("mixed case lines are not headers", func(t *testing.T) {
		text := "Test Menu\nPizza - $15.99"
		items := ExtractItems(text, DefaultRules())

		if len(items) != 1 {
			t.Fatalf("Expected 1 item, got %d", len(items))
		}
		// "Test Menu" must not become a category
		if items[0].Category != "Main Courses" {
			t.Errorf("Expected keyword category Main Courses, got %q", items[0].Category)
		}
	})

	t.Run("nil rules fall back to defaults", func(t *testing.T) {
		items := ExtractItems("Pizza - $15.99", nil)

		if len(items) != 1 {
			t.Fatalf("Expected 1 item, got %d", len(items))
		}
		if items[0].Category != "Main Courses" {
			t.Errorf("Expected default rules to apply, got %q", items[0].Category)
		}
	})

	t.Run("empty text yields no items", func(t *testing.T) {
		if items := ExtractItems("", DefaultRules()); len(items) != 0 {
			t.Errorf("Expected no items, got %v", items)
		}
	})
}

func TestIsHeader(t *testing.T) {
	rules := DefaultRules()

	tests := []struct {
		line string
		want bool
	}{
		{"APPETIZERS", true},
		{"MAIN DISHES", true},
		{"Appetizers", false},  // lowercase letters
		{"AB", false},          // too few letters
		{"DEALS $9.99", false}, // carries a price
		{"***", false},         // no letters
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			if got := isHeader(tt.line, rules); got != tt.want {
				t.Errorf("isHeader(%q) = %v, want %v", tt.line, got, tt.want)
			}
		})
	}
}

func TestCleanEdges(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Caesar Salad .....", "Caesar Salad"},
		{"- Pizza -", "Pizza"},
		{"  Pasta  ", "Pasta"},
		{"Brownie…", "Brownie"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := cleanEdges(tt.input); got != tt.want {
			t.Errorf("cleanEdges(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestKeywordCategory(t *testing.T) {
	categories := []models.CategoryRule{
		{Name: "Pizzas", Keywords: []string{"pizza", "calzone"}},
		{Name: "Drinks", Keywords: []string{"cola", "juice"}},
	}

	tests := []struct {
		text string
		want string
	}{
		{"Pizza Margherita - $15.99", "Pizzas"},
		{"CALZONE speciale", "Pizzas"},
		{"Orange Juice", "Drinks"},
		{"Mystery Dish", ""},
	}

	for _, tt := range tests {
		if got := keywordCategory(tt.text, categories); got != tt.want {
			t.Errorf("keywordCategory(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}
