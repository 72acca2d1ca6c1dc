// Package fields extracts header fields and totals from tokens, segmenter
// regions and the item grid. Absence is a recorded outcome: missing values
// land in the notes list, never in an error.
package fields

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/docforge/invoice-extract/internal/artifact"
	"github.com/docforge/invoice-extract/internal/cellnorm"
	"github.com/docforge/invoice-extract/internal/config"
	"github.com/docforge/invoice-extract/internal/grid"
	"github.com/docforge/invoice-extract/internal/items"
	"github.com/docforge/invoice-extract/internal/segment"
	"github.com/docforge/invoice-extract/internal/token"
)

const (
	StageName    = "extract_fields"
	StageVersion = "1.3.0"

	// gridScanRows bounds the label scan when no segmenter output exists.
	gridScanRows = 30
)

// Fields is the header block plus the totals block, every value nullable.
type Fields struct {
	InvoiceNo    *string  `json:"invoice_no"`
	InvoiceDate  *string  `json:"invoice_date"`
	SellerName   *string  `json:"seller_name"`
	BuyerName    *string  `json:"buyer_name"`
	BuyerAddress *string  `json:"buyer_address"`
	PONo         *string  `json:"po_no"`
	CustomerCode *string  `json:"customer_code"`
	PaymentTerms *string  `json:"payment_terms"`
	Currency     *string  `json:"currency"`
	Subtotal     *float64 `json:"subtotal"`
	TaxRate      *float64 `json:"tax_rate"`
	TaxAmount    *float64 `json:"tax_amount"`
	GrandTotal   *float64 `json:"grand_total"`
}

// Result is the field stage artifact. ReportedSubtotal preserves the value
// read off the document even when Subtotal is recomputed from items, so the
// validator can compare the two.
type Result struct {
	artifact.Envelope
	Fields           Fields   `json:"fields"`
	ReportedSubtotal *float64 `json:"reported_subtotal"`
	Notes            []string `json:"notes"`
}

// Inputs collects everything the stage reads. Regions may be nil when no
// segmenter ran.
type Inputs struct {
	Tokens  *token.Result
	Regions *segment.Document
	Grid    *grid.Result
	Items   *items.Result
}

// Extractor runs the stage.
type Extractor struct {
	cfg *config.Config
	log *zap.SugaredLogger

	invoiceNo    []*regexp.Regexp
	invoiceDate  []*regexp.Regexp
	po           []*regexp.Regexp
	customerCode []*regexp.Regexp
}

// NewExtractor compiles the configured patterns once. An uncompilable
// pattern is a configuration error.
func NewExtractor(cfg *config.Config, log *zap.SugaredLogger) (*Extractor, error) {
	e := &Extractor{cfg: cfg, log: log}
	var err error
	if e.invoiceNo, err = compileAll(cfg.InvoiceNoPatterns); err != nil {
		return nil, fmt.Errorf("invoice_no_patterns: %w", err)
	}
	if e.invoiceDate, err = compileAll(cfg.DatePatterns); err != nil {
		return nil, fmt.Errorf("date_patterns: %w", err)
	}
	if e.po, err = compileAll(cfg.POPatterns); err != nil {
		return nil, fmt.Errorf("po_patterns: %w", err)
	}
	if e.customerCode, err = compileAll(cfg.CustomerCodePatterns); err != nil {
		return nil, fmt.Errorf("customer_code_patterns: %w", err)
	}
	return e, nil
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// Extract locates every header field, the buyer block, currency, payment
// terms and the totals. Region-scoped search runs first when the segmenter
// produced output; header lines are the generic fallback either way.
func (e *Extractor) Extract(in Inputs) *Result {
	res := &Result{Envelope: artifact.NewEnvelope(in.Tokens.DocID, StageName, StageVersion)}

	lines := headerLines(in.Tokens, gridScanRows)
	body := allLines(in.Tokens)
	scopes := e.searchScopes(in, lines)

	res.Fields.InvoiceNo = e.findPattern(e.invoiceNo, scopes)
	res.Fields.InvoiceDate = e.findDate(scopes)
	res.Fields.PONo = e.findPattern(e.po, scopes)
	res.Fields.CustomerCode = e.findPattern(e.customerCode, scopes)

	if name := sellerName(lines); name != "" {
		res.Fields.SellerName = &name
	}
	e.buyerBlock(lines, &res.Fields)
	res.Fields.Currency = e.currency(lines)
	res.Fields.PaymentTerms = e.paymentTerms(lines)

	e.totals(in, body, res)

	noteMissing(res, "invoice_no", res.Fields.InvoiceNo)
	noteMissing(res, "invoice_date", res.Fields.InvoiceDate)
	noteMissing(res, "seller_name", res.Fields.SellerName)
	noteMissing(res, "buyer_name", res.Fields.BuyerName)
	noteMissing(res, "po_no", res.Fields.PONo)
	noteMissing(res, "customer_code", res.Fields.CustomerCode)
	noteMissing(res, "payment_terms", res.Fields.PaymentTerms)
	noteMissing(res, "currency", res.Fields.Currency)
	if res.Fields.Subtotal == nil {
		res.Notes = append(res.Notes, "missing: subtotal")
	}

	e.log.Infow("stage.extract_fields.ok", "notes", len(res.Notes))
	return res
}

// searchScopes orders the text bodies pattern search walks through:
// region-scoped lines first when a segmenter ran, a direct grid-row scan
// when it did not, generic header lines last either way.
func (e *Extractor) searchScopes(in Inputs, headerLines []string) [][]string {
	var scopes [][]string
	if in.Regions != nil {
		for _, region := range in.Regions.Regions {
			if lines := regionLines(in.Tokens, region); len(lines) > 0 {
				scopes = append(scopes, lines)
			}
		}
	} else if in.Grid != nil {
		if rows := gridRows(in.Grid, gridScanRows); len(rows) > 0 {
			scopes = append(scopes, rows)
		}
	}
	scopes = append(scopes, headerLines)
	return scopes
}

// gridRows flattens up to max grid rows into joined line texts for labeled
// field scanning.
func gridRows(g *grid.Result, max int) []string {
	var out []string
	appendRow := func(row []grid.Cell) bool {
		var parts []string
		for _, cell := range row {
			if cell.Text != "" {
				parts = append(parts, cell.Text)
			}
		}
		if len(parts) > 0 {
			out = append(out, strings.Join(parts, " "))
		}
		return len(out) < max
	}
	for _, table := range g.Tables {
		if !appendRow(table.Header) {
			return out
		}
		for _, row := range table.Rows {
			if !appendRow(row) {
				return out
			}
		}
	}
	return out
}

// findPattern returns the first capture group of the first pattern that hits
// in scope order.
func (e *Extractor) findPattern(patterns []*regexp.Regexp, scopes [][]string) *string {
	for _, lines := range scopes {
		for _, line := range lines {
			for _, re := range patterns {
				m := re.FindStringSubmatch(line)
				if len(m) > 1 && m[1] != "" {
					v := m[1]
					return &v
				}
			}
		}
	}
	return nil
}

// findDate applies the date patterns and then normalizes the hit so the
// field always reads YYYY-MM-DD when parseable.
func (e *Extractor) findDate(scopes [][]string) *string {
	raw := e.findPattern(e.invoiceDate, scopes)
	if raw == nil {
		return nil
	}
	if norm, ok := cellnorm.NormalizeDate(*raw, e.cfg.DateFormats); ok {
		return &norm
	}
	return raw
}

// totals fills the totals block. The subtotal is always recomputed as the
// sum of parsed item amounts when items exist; the document-reported value
// is kept alongside for validation.
func (e *Extractor) totals(in Inputs, lines []string, res *Result) {
	reported := reportedTotals(lines, e.cfg)
	res.ReportedSubtotal = reported.subtotal
	res.Fields.TaxAmount = reported.taxAmount
	res.Fields.GrandTotal = reported.grandTotal

	rate := e.cfg.TaxRatePercent
	res.Fields.TaxRate = &rate

	if in.Items != nil && len(in.Items.Items) > 0 {
		sum := 0.0
		for _, item := range in.Items.Items {
			if item.Amount != nil {
				sum += *item.Amount
			}
		}
		res.Fields.Subtotal = &sum
		return
	}
	res.Fields.Subtotal = reported.subtotal
}

func noteMissing(res *Result, name string, v *string) {
	if v == nil || *v == "" {
		res.Notes = append(res.Notes, "missing: "+name)
	}
}

func parseAmount(text string, nf config.NumberFormat) *float64 {
	norm, ok := cellnorm.NormalizeNumber(text, nf)
	if !ok {
		return nil
	}
	v, err := strconv.ParseFloat(norm, 64)
	if err != nil {
		return nil
	}
	return &v
}
