package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/docforge/invoice-extract/internal/config"
)

func TestClassifyHeader(t *testing.T) {
	kw := config.Default().FamilyKeywords
	tests := []struct {
		name   string
		in     string
		want   Family
		wantOK bool
	}{
		{"plain no", "NO.", FamilyNo, true},
		{"item no prefers no", "ITEM NO", FamilyNo, true},
		{"description", "Description of Goods", FamilyDesc, true},
		{"quantity", "QUANTITY", FamilyQty, true},
		{"unit price beats uom", "Unit Price", FamilyPrice, true},
		{"uom alone", "UNIT", FamilyUOM, true},
		{"amount", "AMOUNT (USD)", FamilyAmount, true},
		{"hs code", "HS CODE", FamilyHS, true},
		{"case and punctuation folded", "qty.", FamilyQty, true},
		{"unmatched", "REMARKS", "", false},
		{"empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ClassifyHeader(tt.in, kw)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPositional(t *testing.T) {
	assert.Equal(t, Family("COL3"), Positional(3))
	assert.False(t, Positional(3).Classified())
	assert.True(t, FamilyQty.Classified())
}

func TestMatchFamilies(t *testing.T) {
	kw := config.Default().FamilyKeywords
	got := MatchFamilies("NO DESCRIPTION QTY UNIT PRICE AMOUNT", kw)
	assert.Equal(t, []Family{FamilyNo, FamilyDesc, FamilyQty, FamilyUOM, FamilyPrice, FamilyAmount}, got)

	assert.Empty(t, MatchFamilies("Jakarta, 16 October 2024", kw))
}

func TestContainsKeyword(t *testing.T) {
	assert.True(t, ContainsKeyword("Sub-Total:", "SUB TOTAL"))
	assert.True(t, ContainsKeyword("GRAND TOTAL (USD)", "GRAND TOTAL"))
	assert.False(t, ContainsKeyword("NOTES", "NO"), "word boundaries hold")
	assert.False(t, ContainsKeyword("payment terms", "TERM"), "partial words do not match")
}

func TestCanonical(t *testing.T) {
	assert.Equal(t, "UNIT PRICE", Canonical("Unit-Price:"))
	assert.Equal(t, "SUB TOTAL", Canonical("  sub_total "))
	assert.Equal(t, "", Canonical("***"))
}
