package menu

import "strings"

// Price is one parsed price occurrence in a line of OCR text.
type Price struct {
	Display  string // as written, e.g. "$12.99" or "12,99 €"
	Cents    int64
	Currency string // symbol; empty for bare decimal amounts
}

// FindPrice locates the last price in line and returns it together with the
// byte offset where its token starts. Menus put prices at the end of the
// line, so scanning from the right tolerates dish names containing numbers
// ("Wings x6").
//
// Recognized forms: symbol-prefixed ("$12.99", "€8"), symbol-suffixed
// ("12,99 €", "1200¥"), and bare decimals with exactly one or two decimal
// digits ("12.99"). Bare integers never count as prices.
func FindPrice(line string, currencies []string) (Price, int, bool) {
	fields := splitFields(line)
	for i := len(fields) - 1; i >= 0; i-- {
		token := trimPriceToken(fields[i].text)
		if token == "" {
			continue
		}

		// symbol-suffixed token split by a space: "12,99 €"
		if isCurrency(token, currencies) && i > 0 {
			amount := trimPriceToken(fields[i-1].text)
			if cents, _, ok := parseAmount(amount); ok {
				return Price{
					Display:  amount + " " + token,
					Cents:    cents,
					Currency: token,
				}, fields[i-1].start, true
			}
			continue
		}

		if p, ok := parsePriceToken(token, currencies); ok {
			return p, fields[i].start, true
		}
	}
	return Price{}, 0, false
}

// parsePriceToken parses a single token as a price.
func parsePriceToken(token string, currencies []string) (Price, bool) {
	for _, cur := range currencies {
		if strings.HasPrefix(token, cur) {
			amount := token[len(cur):]
			if cents, _, ok := parseAmount(amount); ok {
				return Price{Display: token, Cents: cents, Currency: cur}, true
			}
		}
		if strings.HasSuffix(token, cur) {
			amount := token[:len(token)-len(cur)]
			if cents, _, ok := parseAmount(amount); ok {
				return Price{Display: token, Cents: cents, Currency: cur}, true
			}
		}
	}

	// Bare amounts count only with decimals: "12.99" is a price, "1997" is not.
	if cents, decimals, ok := parseAmount(token); ok && decimals > 0 {
		return Price{Display: token, Cents: cents}, true
	}
	return Price{}, false
}

// parseAmount parses "12", "12.99", "12,99" into cents without regex.
// decimals reports how many decimal digits were present (0 for integers).
func parseAmount(s string) (cents int64, decimals int, ok bool) {
	if s == "" || len(s) > 10 {
		return 0, 0, false
	}

	var units, frac int64
	sawDigit := false
	sawSep := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			sawDigit = true
			if sawSep {
				if decimals >= 2 {
					return 0, 0, false // three decimal digits is not a menu price
				}
				frac = frac*10 + int64(c-'0')
				decimals++
			} else {
				units = units*10 + int64(c-'0')
			}
		case c == '.' || c == ',':
			if sawSep || !sawDigit || i == len(s)-1 {
				return 0, 0, false
			}
			sawSep = true
		default:
			return 0, 0, false
		}
	}
	if !sawDigit {
		return 0, 0, false
	}

	if decimals == 1 {
		frac *= 10
	}
	return units*100 + frac, decimals, true
}

func isCurrency(token string, currencies []string) bool {
	for _, cur := range currencies {
		if token == cur {
			return true
		}
	}
	return false
}

// trimPriceToken strips punctuation that OCR glues onto price tokens.
func trimPriceToken(s string) string {
	return strings.Trim(s, "()[]{}<>.,;:!?*")
}

type field struct {
	text  string
	start int
}

// splitFields splits on spaces, keeping each field's byte offset.
func splitFields(line string) []field {
	fields := make([]field, 0, 8)
	start := -1
	for i := 0; i < len(line); i++ {
		if line[i] == ' ' || line[i] == '\t' {
			if start >= 0 {
				fields = append(fields, field{text: line[start:i], start: start})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		fields = append(fields, field{text: line[start:], start: start})
	}
	return fields
}
