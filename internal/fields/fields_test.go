package fields

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/docforge/invoice-extract/internal/artifact"
	"github.com/docforge/invoice-extract/internal/config"
	"github.com/docforge/invoice-extract/internal/geometry"
	"github.com/docforge/invoice-extract/internal/items"
	"github.com/docforge/invoice-extract/internal/segment"
	"github.com/docforge/invoice-extract/internal/token"
)

func linesResult(lines ...string) *token.Result {
	block := token.EngineBlock{Engine: "pdf"}
	for i, text := range lines {
		block.Lines = append(block.Lines, token.Line{Page: 1, Y: float64(i) * 0.03, Text: text})
	}
	return &token.Result{
		Envelope: artifact.NewEnvelope("doc-fields", token.NormalizeStageName, token.NormalizeStageVersion),
		Engines:  []token.EngineBlock{block},
	}
}

func invoiceLines() *token.Result {
	return linesResult(
		"PT MAJU STEEL INDUSTRIES",
		"COMMERCIAL INVOICE",
		"Invoice No : INV-2024/001",
		"Date : 16-10-2024",
		"P.O. No : PO-555",
		"Customer Code : CUST-99",
		"Bill To : PT BUYER ABADI",
		"Jl. Sudirman No. 1",
		"Jakarta 10210",
		"Payment Terms : 30 days net",
		"Currency : USD",
		"NO DESCRIPTION QTY PRICE AMOUNT",
		"1 STEEL PLATE 10 1.000,00 10.000,00",
		"SUB TOTAL : 21.000,00",
		"VAT 12% : 2.520,00",
		"GRAND TOTAL : 23.520,00",
	)
}

func amount(v float64) *float64 { return &v }

func threeItems() *items.Result {
	return &items.Result{
		Envelope: artifact.NewEnvelope("doc-fields", items.StageName, items.StageVersion),
		Items: []items.LineItem{
			{No: 1, Amount: amount(10000)},
			{No: 2, Amount: amount(10000)},
			{No: 3, Amount: amount(1000)},
		},
		Count: 3,
	}
}

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()
	cfg := config.Default()
	e, err := NewExtractor(cfg, zap.NewNop().Sugar())
	require.NoError(t, err)
	return e
}

func TestExtractHeaderFields(t *testing.T) {
	res := newTestExtractor(t).Extract(Inputs{Tokens: invoiceLines(), Items: threeItems()})

	require.NotNil(t, res.Fields.InvoiceNo)
	assert.Equal(t, "INV-2024/001", *res.Fields.InvoiceNo)
	require.NotNil(t, res.Fields.InvoiceDate)
	assert.Equal(t, "2024-10-16", *res.Fields.InvoiceDate, "dates normalize to ISO")
	require.NotNil(t, res.Fields.PONo)
	assert.Equal(t, "PO-555", *res.Fields.PONo)
	require.NotNil(t, res.Fields.CustomerCode)
	assert.Equal(t, "CUST-99", *res.Fields.CustomerCode)
	require.NotNil(t, res.Fields.SellerName)
	assert.Equal(t, "PT MAJU STEEL INDUSTRIES", *res.Fields.SellerName)
	require.NotNil(t, res.Fields.PaymentTerms)
	assert.Equal(t, "30 days net", *res.Fields.PaymentTerms)
	require.NotNil(t, res.Fields.Currency)
	assert.Equal(t, "USD", *res.Fields.Currency)
}

func TestExtractBuyerBlock(t *testing.T) {
	res := newTestExtractor(t).Extract(Inputs{Tokens: invoiceLines(), Items: threeItems()})

	require.NotNil(t, res.Fields.BuyerName)
	assert.Equal(t, "PT BUYER ABADI", *res.Fields.BuyerName)
	require.NotNil(t, res.Fields.BuyerAddress)
	assert.Equal(t, "Jl. Sudirman No. 1, Jakarta 10210", *res.Fields.BuyerAddress)
}

func TestExtractTotals(t *testing.T) {
	res := newTestExtractor(t).Extract(Inputs{Tokens: invoiceLines(), Items: threeItems()})

	// Subtotal is always recomputed from item amounts when items exist.
	require.NotNil(t, res.Fields.Subtotal)
	assert.Equal(t, 21000.0, *res.Fields.Subtotal)
	require.NotNil(t, res.ReportedSubtotal)
	assert.Equal(t, 21000.0, *res.ReportedSubtotal)
	require.NotNil(t, res.Fields.TaxAmount)
	assert.Equal(t, 2520.0, *res.Fields.TaxAmount)
	require.NotNil(t, res.Fields.GrandTotal)
	assert.Equal(t, 23520.0, *res.Fields.GrandTotal)
}

func TestExtractMissingValuesAreNotesNotErrors(t *testing.T) {
	res := newTestExtractor(t).Extract(Inputs{Tokens: linesResult("AN EMPTY PAGE")})

	assert.Nil(t, res.Fields.InvoiceNo)
	assert.Nil(t, res.Fields.BuyerName)
	assert.Nil(t, res.Fields.Subtotal)
	assert.Contains(t, res.Notes, "missing: invoice_no")
	assert.Contains(t, res.Notes, "missing: buyer_name")
	assert.Contains(t, res.Notes, "missing: subtotal")
}

func TestExtractRegionScopedSearchWins(t *testing.T) {
	// Tokens inside the invoice_no region carry a different number than the
	// header lines; the region-scoped pass must win.
	block := token.EngineBlock{
		Engine: "pdf",
		Tokens: []token.Token{
			{Page: 1, Text: "Invoice", Norm: "Invoice", BBox: geometry.BBox{X0: 0.60, Y0: 0.10, X1: 0.68, Y1: 0.12}},
			{Page: 1, Text: "No:", Norm: "No:", BBox: geometry.BBox{X0: 0.69, Y0: 0.10, X1: 0.73, Y1: 0.12}},
			{Page: 1, Text: "INV-REGION/9", Norm: "INV-REGION/9", BBox: geometry.BBox{X0: 0.74, Y0: 0.10, X1: 0.85, Y1: 0.12}},
		},
		Lines: []token.Line{{Page: 1, Y: 0.5, Text: "Invoice No : INV-HEADER/1"}},
	}
	toks := &token.Result{
		Envelope: artifact.NewEnvelope("doc-region", token.NormalizeStageName, token.NormalizeStageVersion),
		Engines:  []token.EngineBlock{block},
	}
	regions := &segment.Document{Regions: []segment.Region{{
		Label: "invoice_no",
		Page:  1,
		BBox:  geometry.BBox{X0: 0.55, Y0: 0.08, X1: 0.90, Y1: 0.14},
	}}}

	res := newTestExtractor(t).Extract(Inputs{Tokens: toks, Regions: regions})
	require.NotNil(t, res.Fields.InvoiceNo)
	assert.Equal(t, "INV-REGION/9", *res.Fields.InvoiceNo)
}

func TestCurrencyPriorityOrder(t *testing.T) {
	// IDR precedes USD in the default priority list.
	res := newTestExtractor(t).Extract(Inputs{
		Tokens: linesResult("Amounts in USD unless stated", "Settlement currency: IDR"),
	})
	require.NotNil(t, res.Fields.Currency)
	assert.Equal(t, "IDR", *res.Fields.Currency)
}
