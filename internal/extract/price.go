package extract

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var pricePattern = regexp.MustCompile(`(\d{1,3}(?:,\d{3})+|\d+)(?:\.(\d+))?`)

// ParsePrice returns the first currency-like number in text in plain
// decimal form, or "" when there is none. Ranges yield their lower bound.
func ParsePrice(text string) string {
	m := pricePattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	whole := strings.ReplaceAll(m[1], ",", "")
	if m[2] != "" {
		return whole + "." + m[2]
	}
	return whole
}

// ParseAmount is ParsePrice followed by a decimal conversion.
func ParseAmount(text string) (decimal.Decimal, bool) {
	p := ParsePrice(text)
	if p == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(p)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
