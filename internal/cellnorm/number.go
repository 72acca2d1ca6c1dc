package cellnorm

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/docforge/invoice-extract/internal/config"
)

// looseNumeric is the admission test for number normalization: digits with
// any mix of separator characters, an optional sign, optional parentheses.
var looseNumeric = regexp.MustCompile(`^\(?-?[0-9][0-9.,'\s]*\)?$`)

// NormalizeNumber rewrites a locale-formatted numeric string into canonical
// form: thousands separator removed, decimal separator mapped to ".", a
// parenthesized value made negative when the locale allows it. The digit
// string is preserved as written ("16.341,00" keeps its two decimals), so
// the result is validated, not re-rendered. Non-numeric input is returned
// unchanged with ok=false.
func NormalizeNumber(s string, nf config.NumberFormat) (string, bool) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || !looseNumeric.MatchString(trimmed) {
		return s, false
	}

	negative := false
	if nf.ParensNegative() && strings.HasPrefix(trimmed, "(") && strings.HasSuffix(trimmed, ")") {
		negative = true
		trimmed = strings.TrimSpace(trimmed[1 : len(trimmed)-1])
	}
	if strings.HasPrefix(trimmed, "-") {
		negative = true
		trimmed = trimmed[1:]
	}

	if nf.Thousands != "" {
		trimmed = strings.ReplaceAll(trimmed, nf.Thousands, "")
	}
	if nf.Decimal != "" && nf.Decimal != "." {
		trimmed = strings.ReplaceAll(trimmed, nf.Decimal, ".")
	}
	trimmed = strings.ReplaceAll(trimmed, " ", "")

	if _, err := decimal.NewFromString(trimmed); err != nil {
		return s, false
	}
	if negative {
		trimmed = "-" + trimmed
	}
	return trimmed, true
}

// NormalizeInteger is number normalization plus an integrality check. The
// canonical integer rendering drops any fractional zeros ("10,00" becomes
// "10"). Fractional or non-numeric input is returned unchanged with
// ok=false.
func NormalizeInteger(s string, nf config.NumberFormat) (string, bool) {
	norm, ok := NormalizeNumber(s, nf)
	if !ok {
		return s, false
	}
	d, err := decimal.NewFromString(norm)
	if err != nil || !d.IsInteger() {
		return s, false
	}
	return d.String(), true
}
