package grid

import (
	"fmt"
	"strings"
)

// Family is the semantic role of a table column. The classified values form
// a closed set; columns whose header matches no keyword get a positional
// COL{n} placeholder instead.
type Family string

const (
	FamilyNo     Family = "NO"
	FamilyHS     Family = "HS"
	FamilyDesc   Family = "DESC"
	FamilyQty    Family = "QTY"
	FamilyUOM    Family = "UOM"
	FamilyPrice  Family = "PRICE"
	FamilyAmount Family = "AMOUNT"
)

// classifiedOrder fixes the family iteration order so keyword scoring is
// deterministic regardless of map iteration.
var classifiedOrder = []Family{
	FamilyNo, FamilyHS, FamilyDesc, FamilyQty, FamilyUOM, FamilyPrice, FamilyAmount,
}

// Positional returns the placeholder family for an unclassified column.
func Positional(col int) Family {
	return Family(fmt.Sprintf("COL%d", col))
}

// Classified reports whether f is one of the closed keyword-backed families.
func (f Family) Classified() bool {
	switch f {
	case FamilyNo, FamilyHS, FamilyDesc, FamilyQty, FamilyUOM, FamilyPrice, FamilyAmount:
		return true
	}
	return false
}

// Canonical uppercases s and collapses every non-alphanumeric run to a
// single space, so "Unit-Price:" and "UNIT PRICE" compare equal. Label
// matching elsewhere builds on the same folding.
func Canonical(s string) string { return canonical(s) }

func canonical(s string) string {
	var b strings.Builder
	space := true
	for _, r := range strings.ToUpper(s) {
		alnum := (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !alnum {
			if !space {
				b.WriteByte(' ')
				space = true
			}
			continue
		}
		b.WriteRune(r)
		space = false
	}
	return strings.TrimSpace(b.String())
}

// ContainsKeyword reports whether the canonical form of text contains the
// canonical form of keyword on word boundaries. The field extractor shares
// it for label and totals matching.
func ContainsKeyword(text, keyword string) bool {
	return containsPhrase(text, keyword)
}

// containsPhrase reports whether the canonical form of text contains the
// canonical form of phrase on word boundaries.
func containsPhrase(text, phrase string) bool {
	t := " " + canonical(text) + " "
	p := " " + canonical(phrase) + " "
	return strings.Contains(t, p)
}

// MatchFamilies returns every distinct classified family whose keywords
// appear in text, in the closed order. Line-level callers use it to spot the
// item-table header inside free text.
func MatchFamilies(text string, keywords map[string][]string) []Family {
	var out []Family
	for _, fam := range classifiedOrder {
		for _, kw := range keywords[string(fam)] {
			if containsPhrase(text, kw) {
				out = append(out, fam)
				break
			}
		}
	}
	return out
}

// ClassifyHeader maps one header-cell text to a family using the configured
// keyword lists. When keywords from several families match, the longest
// match wins; remaining ties go to the earlier family in the closed order.
func ClassifyHeader(text string, keywords map[string][]string) (Family, bool) {
	best := Family("")
	bestLen := 0
	for _, fam := range classifiedOrder {
		for _, kw := range keywords[string(fam)] {
			if !containsPhrase(text, kw) {
				continue
			}
			if n := len(canonical(kw)); n > bestLen {
				best, bestLen = fam, n
			}
		}
	}
	if bestLen == 0 {
		return "", false
	}
	return best, true
}
