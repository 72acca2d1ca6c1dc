package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/docforge/invoice-extract/internal/artifact"
	"github.com/docforge/invoice-extract/internal/cellnorm"
	"github.com/docforge/invoice-extract/internal/config"
	"github.com/docforge/invoice-extract/internal/engine"
	"github.com/docforge/invoice-extract/internal/fields"
	"github.com/docforge/invoice-extract/internal/geometry"
	"github.com/docforge/invoice-extract/internal/grid"
	"github.com/docforge/invoice-extract/internal/items"
	"github.com/docforge/invoice-extract/internal/score"
	"github.com/docforge/invoice-extract/internal/token"
	"github.com/docforge/invoice-extract/internal/validate"
)

const (
	pageW = 612.0
	pageH = 792.0
)

func pageTok(text string, x0, y0, x1, y1 float64) token.Token {
	abs := geometry.AbsBBox{
		X0: x0, Y0: y0, X1: x1, Y1: y1,
		Width: x1 - x0, Height: y1 - y0,
	}
	return token.Token{
		Page:    1,
		Text:    text,
		AbsBBox: abs,
		BBox:    geometry.NormalizeTopLeft(abs, pageW, pageH),
	}
}

// syntheticInvoice builds the tokenizer artifact for a one-page invoice with
// a five-column item table. Table tokens sit in whitespace-separated columns
// so the in-process detector finds the grid; the line previews carry the
// header block and the totals section.
func syntheticInvoice() *token.Result {
	var toks []token.Token
	row := func(cells ...token.Token) {
		toks = append(toks, cells...)
	}

	// Header row then three item rows, 20pt apart, then the totals row.
	row(
		pageTok("NO", 40, 600, 52, 612),
		pageTok("DESCRIPTION", 80, 600, 164, 612),
		pageTok("QTY", 280, 600, 304, 612),
		pageTok("PRICE", 370, 600, 406, 612),
		pageTok("AMOUNT", 470, 600, 520, 612),
	)
	row(
		pageTok("1", 42, 580, 50, 592),
		pageTok("STEEL", 80, 580, 120, 592),
		pageTok("PLATE", 126, 580, 166, 592),
		pageTok("10", 286, 580, 298, 592),
		pageTok("1.000,00", 360, 580, 418, 592),
		pageTok("10.000,00", 472, 580, 538, 592),
	)
	row(
		pageTok("2", 42, 560, 50, 572),
		pageTok("IRON", 80, 560, 112, 572),
		pageTok("ROD", 118, 560, 143, 572),
		pageTok("4", 288, 560, 296, 572),
		pageTok("500,00", 368, 560, 412, 572),
		pageTok("2.000,00", 478, 560, 536, 572),
	)
	row(
		pageTok("3", 42, 540, 50, 552),
		pageTok("COPPER", 80, 540, 130, 552),
		pageTok("WIRE", 136, 540, 170, 552),
		pageTok("2", 288, 540, 296, 552),
		pageTok("125,00", 368, 540, 412, 552),
		pageTok("250,00", 482, 540, 530, 552),
	)
	row(
		pageTok("TOTAL", 80, 500, 122, 512),
		pageTok("12.250,00", 472, 500, 538, 512),
	)

	lines := []string{
		"PT MAJU STEEL INDUSTRIES",
		"COMMERCIAL INVOICE",
		"Invoice No : INV-2024/100",
		"Date : 16-10-2024",
		"P.O. No : PO-555",
		"Bill To : PT BUYER ABADI",
		"Currency : USD",
		"NO DESCRIPTION QTY PRICE AMOUNT",
		"1 STEEL PLATE 10 1.000,00 10.000,00",
		"2 IRON ROD 4 500,00 2.000,00",
		"3 COPPER WIRE 2 125,00 250,00",
		"SUB TOTAL : 12.250,00",
		"GRAND TOTAL : 13.597,00",
	}
	block := token.EngineBlock{
		Engine: "pdf_reader",
		Pages:  []engine.Page{{Page: 1, Width: pageW, Height: pageH}},
		Tokens: toks,
	}
	for i, text := range lines {
		block.Lines = append(block.Lines, token.Line{Page: 1, Y: float64(i) * 0.03, Text: text})
	}
	return &token.Result{
		Envelope: artifact.NewEnvelope("doc-e2e", token.StageName, token.StageVersion),
		Engines:  []token.EngineBlock{block},
	}
}

func TestProcessSyntheticInvoice(t *testing.T) {
	set := &Settings{OutputDir: t.TempDir()}
	r := New(config.Default(), set, zap.NewNop().Sugar())

	res, err := r.process("synthetic.pdf", syntheticInvoice())
	require.NoError(t, err)

	// Every stage downstream of tokenization published its artifact.
	for _, stage := range []string{
		token.NormalizeStageName, grid.StageName, cellnorm.StageName,
		items.StageName, fields.StageName, validate.StageName, score.StageName,
	} {
		assert.True(t, r.store.Exists(stage), "missing %s artifact", stage)
	}

	var itemRes items.Result
	require.NoError(t, r.store.Read(items.StageName, &itemRes))
	require.Equal(t, 3, itemRes.Count)
	require.Len(t, itemRes.Items, 3)

	first := itemRes.Items[0]
	assert.Equal(t, 1, first.No)
	assert.Equal(t, "STEEL PLATE", first.Description)
	require.NotNil(t, first.Qty)
	require.NotNil(t, first.UnitPrice)
	require.NotNil(t, first.Amount)
	assert.Equal(t, 10.0, *first.Qty)
	assert.Equal(t, 1000.0, *first.UnitPrice)
	assert.Equal(t, 10000.0, *first.Amount)

	var fieldRes fields.Result
	require.NoError(t, r.store.Read(fields.StageName, &fieldRes))
	require.NotNil(t, fieldRes.Fields.Subtotal)
	sum := 0.0
	for _, it := range itemRes.Items {
		sum += *it.Amount
	}
	assert.Equal(t, sum, *fieldRes.Fields.Subtotal, "subtotal is the item amount sum")
	require.NotNil(t, fieldRes.ReportedSubtotal)
	assert.Equal(t, 12250.0, *fieldRes.ReportedSubtotal)
	require.NotNil(t, fieldRes.Fields.InvoiceNo)
	assert.Equal(t, "INV-2024/100", *fieldRes.Fields.InvoiceNo)

	var valRes validate.Result
	require.NoError(t, r.store.Read(validate.StageName, &valRes))
	assert.Equal(t, 1.0, valRes.RowPassRate())
	assert.True(t, valRes.Subtotal.Pass)
	assert.Empty(t, valRes.Flags)
	assert.Empty(t, valRes.SevereFlags)

	assert.GreaterOrEqual(t, res.Confidence.Score, 0.9)
	assert.Equal(t, "doc-e2e", res.DocID)
	assert.Equal(t, score.StageName, res.Stage)
}

func TestProcessNoTokensDegrades(t *testing.T) {
	set := &Settings{OutputDir: t.TempDir()}
	r := New(config.Default(), set, zap.NewNop().Sugar())

	empty := &token.Result{
		Envelope: artifact.NewEnvelope("doc-empty", token.StageName, token.StageVersion),
		Engines:  []token.EngineBlock{{Engine: "pdf_reader"}},
	}
	res, err := r.process("synthetic.pdf", empty)
	require.NoError(t, err, "extraction shortfalls never abort the run")

	var itemRes items.Result
	require.NoError(t, r.store.Read(items.StageName, &itemRes))
	assert.Zero(t, itemRes.Count)

	var valRes validate.Result
	require.NoError(t, r.store.Read(validate.StageName, &valRes))
	assert.Contains(t, valRes.Flags, validate.FlagTotalsMissing)
	assert.Less(t, res.Confidence.Score, 0.5)
}
