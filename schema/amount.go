package schema

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var amountNoise = strings.NewReplacer(
	",", "", " ", "", " ", "",
	"₹", "", "$", "", "€", "", "£", "",
	"rs.", "", "rs", "", "inr", "",
)

// ParseAmount coerces a spreadsheet cell into a decimal amount.
// Thousands separators, currency symbols and spaces are stripped and "(123)"
// reads as -123. Blank-like cells ("", "-", "NaN", "#N/A", "null") return
// ok=false with a nil error so callers drop them silently.
func ParseAmount(cell string) (amount decimal.Decimal, ok bool, err error) {
	s := strings.ToLower(strings.TrimSpace(cell))
	switch s {
	case "", "-", "--", "—", "nan", "#n/a", "n/a", "na", "null", "none", "#value!", "#div/0!":
		return decimal.Zero, false, nil
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = amountNoise.Replace(s)
	if strings.HasSuffix(s, "-") {
		negative = !negative
		s = strings.TrimSuffix(s, "-")
	}
	if s == "" || s == "-" {
		return decimal.Zero, false, nil
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("not a number: %q", cell)
	}
	if negative {
		d = d.Neg()
	}
	return d, true, nil
}
