package fields

import (
	"sort"
	"strings"

	"github.com/docforge/invoice-extract/internal/config"
	"github.com/docforge/invoice-extract/internal/grid"
	"github.com/docforge/invoice-extract/internal/segment"
	"github.com/docforge/invoice-extract/internal/token"
)

const regionEpsilon = 0.005

// buyerLabels mark the start of the buyer block. "CUSTOMER" is deliberately
// absent: it collides with customer-code label lines.
var buyerLabels = []string{"BILL TO", "SOLD TO", "BUYER", "MESSRS"}

// headerLines returns up to max line texts from page 1 of the primary
// engine, in reading order.
func headerLines(res *token.Result, max int) []string {
	primary := res.Primary()
	if primary == nil {
		return nil
	}
	var out []string
	for _, line := range primary.Lines {
		if line.Page != 1 {
			continue
		}
		if text := strings.TrimSpace(line.Text); text != "" {
			out = append(out, text)
		}
		if len(out) >= max {
			break
		}
	}
	return out
}

// allLines returns every line text of the document, all pages, reading
// order. Totals usually sit well below the header band.
func allLines(res *token.Result) []string {
	primary := res.Primary()
	if primary == nil {
		return nil
	}
	var out []string
	for _, line := range primary.Lines {
		if text := strings.TrimSpace(line.Text); text != "" {
			out = append(out, text)
		}
	}
	return out
}

// regionLines assembles the text lines of one segmenter region: tokens whose
// centers fall inside the region box, grouped by vertical position.
func regionLines(res *token.Result, region segment.Region) []string {
	primary := res.Primary()
	if primary == nil {
		return nil
	}
	var hits []token.Token
	for _, t := range primary.Tokens {
		if t.Page != region.Page {
			continue
		}
		if region.BBox.ContainsPoint(t.BBox.CenterX(), t.BBox.CenterY(), regionEpsilon) {
			hits = append(hits, t)
		}
	}
	if len(hits) == 0 {
		return nil
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].BBox.Y0 != hits[j].BBox.Y0 {
			return hits[i].BBox.Y0 < hits[j].BBox.Y0
		}
		return hits[i].BBox.X0 < hits[j].BBox.X0
	})

	var lines []string
	var current []string
	anchor := hits[0].BBox.Y0
	flush := func() {
		if len(current) > 0 {
			lines = append(lines, strings.Join(current, " "))
			current = nil
		}
	}
	for _, t := range hits {
		if t.BBox.Y0-anchor > regionEpsilon {
			flush()
			anchor = t.BBox.Y0
		}
		text := t.Norm
		if text == "" {
			text = t.Text
		}
		if text != "" {
			current = append(current, text)
		}
	}
	flush()
	return lines
}

// sellerName takes the first header line that reads like letterhead rather
// than a document title.
func sellerName(lines []string) string {
	for _, line := range lines {
		if isInvoiceTitle(line) {
			continue
		}
		return line
	}
	return ""
}

func isInvoiceTitle(line string) bool {
	return grid.ContainsKeyword(line, "INVOICE") && len(strings.Fields(line)) <= 3
}

// buyerBlock finds the buyer label row, collects following non-label lines
// until the item-table header, and splits the first collected line off as
// the buyer name with the remainder joined as address.
func (e *Extractor) buyerBlock(lines []string, f *Fields) {
	start := -1
	var collected []string
	for i, line := range lines {
		if hasAnyKeyword(line, buyerLabels) {
			start = i
			if rest := afterColon(line); rest != "" {
				collected = append(collected, rest)
			}
			break
		}
	}
	if start < 0 {
		return
	}
	for _, line := range lines[start+1:] {
		if len(grid.MatchFamilies(line, e.cfg.FamilyKeywords)) >= 2 {
			break
		}
		if hasAnyKeyword(line, e.cfg.PaymentTerms.LabelContains) {
			break
		}
		collected = append(collected, line)
		if len(collected) >= 5 {
			break
		}
	}
	if len(collected) == 0 {
		return
	}
	name := collected[0]
	f.BuyerName = &name
	if len(collected) > 1 {
		addr := strings.Join(collected[1:], ", ")
		f.BuyerAddress = &addr
	}
}

// currency scans header lines for the first code in priority order.
func (e *Extractor) currency(lines []string) *string {
	for _, code := range e.cfg.CurrencyOrder {
		for _, line := range lines {
			if grid.ContainsKeyword(line, code) {
				c := code
				return &c
			}
		}
	}
	return nil
}

// paymentTerms finds the line carrying every configured label keyword and
// returns its value plus the configured number of following lines.
func (e *Extractor) paymentTerms(lines []string) *string {
	for i, line := range lines {
		if !hasAllKeywords(line, e.cfg.PaymentTerms.LabelContains) {
			continue
		}
		// A value on the label line itself is complete; the following rows
		// are only pulled in when the label stands alone.
		if value := afterColon(line); value != "" {
			return &value
		}
		var parts []string
		for j := i + 1; j <= i+e.cfg.PaymentTerms.IncludeNextRows && j < len(lines); j++ {
			parts = append(parts, lines[j])
		}
		joined := strings.TrimSpace(strings.Join(parts, " "))
		if joined == "" {
			return nil
		}
		return &joined
	}
	return nil
}

type totalsValues struct {
	subtotal   *float64
	taxAmount  *float64
	grandTotal *float64
}

// reportedTotals reads the totals the document itself states. First match
// per slot wins; a bare TOTAL line only fills the grand total when no
// GRAND TOTAL line did.
func reportedTotals(lines []string, cfg *config.Config) totalsValues {
	var v totalsValues
	for _, line := range lines {
		amount := trailingAmount(line, cfg.NumberFormat)
		if amount == nil {
			continue
		}
		switch {
		case hasAnyKeyword(line, []string{"SUBTOTAL", "SUB TOTAL", "SUB-TOTAL"}):
			if v.subtotal == nil {
				v.subtotal = amount
			}
		case hasAnyKeyword(line, []string{"GRAND TOTAL", "AMOUNT DUE"}):
			if v.grandTotal == nil {
				v.grandTotal = amount
			}
		case hasAnyKeyword(line, []string{"PPN", "VAT", "TAX"}):
			if v.taxAmount == nil {
				v.taxAmount = amount
			}
		case grid.ContainsKeyword(line, "TOTAL"):
			if v.grandTotal == nil {
				v.grandTotal = amount
			}
		}
	}
	return v
}

// trailingAmount parses the rightmost numeric field of a line.
func trailingAmount(line string, nf config.NumberFormat) *float64 {
	fields := strings.Fields(line)
	for i := len(fields) - 1; i >= 0; i-- {
		if v := parseAmount(fields[i], nf); v != nil {
			return v
		}
	}
	return nil
}

func afterColon(line string) string {
	if idx := strings.IndexByte(line, ':'); idx >= 0 {
		return strings.TrimSpace(line[idx+1:])
	}
	return ""
}

// Labels match on canonical substring rather than word boundaries, so the
// configured "TERM" finds "Payment Terms".
func hasAnyKeyword(line string, keywords []string) bool {
	folded := grid.Canonical(line)
	for _, kw := range keywords {
		if strings.Contains(folded, grid.Canonical(kw)) {
			return true
		}
	}
	return false
}

func hasAllKeywords(line string, keywords []string) bool {
	folded := grid.Canonical(line)
	for _, kw := range keywords {
		if !strings.Contains(folded, grid.Canonical(kw)) {
			return false
		}
	}
	return len(keywords) > 0
}
