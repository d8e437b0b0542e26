// Package currency converts between display prices and integer cents.
//
// Prices are stored as integer smallest-currency-units ("cents") everywhere in
// the stack; floating point never touches a price. Formatting and parsing are
// lossless inverses of each other for any non-negative cent amount.
package currency

import (
	"fmt"
	"strings"
)

// ParseCents parses a display price like "$1,234.56", "US $12.30" or "1234.5"
// into integer cents. Currency symbols, letters and thousands separators are
// ignored; at most two decimal digits are honored.
func ParseCents(s string) (int64, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9':
			return r
		case r == '.':
			return r
		default:
			return -1
		}
	}, s)

	if cleaned == "" {
		return 0, fmt.Errorf("parse cents: no digits in %q", s)
	}

	whole, frac, hasFrac := strings.Cut(cleaned, ".")
	if strings.Contains(frac, ".") {
		return 0, fmt.Errorf("parse cents: multiple decimal points in %q", s)
	}

	var cents int64
	for _, r := range whole {
		cents = cents*10 + int64(r-'0')
		if cents < 0 {
			return 0, fmt.Errorf("parse cents: overflow in %q", s)
		}
	}
	cents *= 100

	if hasFrac {
		if len(frac) > 2 {
			frac = frac[:2]
		}
		for len(frac) < 2 {
			frac += "0"
		}
		cents += int64(frac[0]-'0')*10 + int64(frac[1]-'0')
	}

	return cents, nil
}

// FormatCents renders cents as a dollar-style display price with thousands
// separators, e.g. 123456 -> "$1,234.56". ParseCents(FormatCents(c)) == c.
func FormatCents(cents int64) string {
	neg := cents < 0
	if neg {
		cents = -cents
	}

	whole := cents / 100
	frac := cents % 100

	digits := fmt.Sprintf("%d", whole)
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	b.WriteByte('$')
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	fmt.Fprintf(&b, ".%02d", frac)
	return b.String()
}
