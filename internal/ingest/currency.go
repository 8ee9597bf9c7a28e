package ingest

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// ParseCurrency parses amounts such as "$1,234.50". Dollar signs, thousands
// separators and whitespace are stripped first. Unparseable input yields zero.
func ParseCurrency(s string) decimal.Decimal {
	cleaned := strings.Map(func(r rune) rune {
		if r == '$' || r == ',' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	if cleaned == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero
	}
	return d
}
