package grid

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/docforge/invoice-extract/internal/artifact"
	"github.com/docforge/invoice-extract/internal/config"
	"github.com/docforge/invoice-extract/internal/detect"
	"github.com/docforge/invoice-extract/internal/engine"
	"github.com/docforge/invoice-extract/internal/geometry"
	"github.com/docforge/invoice-extract/internal/token"
)

const (
	testPageW = 600.0
	testPageH = 800.0
)

func absTok(text string, x0, y0, x1, y1 float64) token.Token {
	abs := geometry.AbsBBox{X0: x0, Y0: y0, X1: x1, Y1: y1, Width: x1 - x0, Height: y1 - y0}
	return token.Token{
		Page:    1,
		Text:    text,
		Norm:    text,
		AbsBBox: abs,
		BBox:    geometry.NormalizeTopLeft(abs, testPageW, testPageH),
	}
}

// invoiceTokens lays out a one-page invoice: header row, three item rows, a
// totals row and a trailing note that must never enter the grid.
func invoiceTokens() *token.Result {
	toks := []token.Token{
		absTok("NO", 40, 700, 60, 712),
		absTok("DESCRIPTION", 100, 700, 180, 712),
		absTok("QTY", 300, 700, 330, 712),
		absTok("PRICE", 400, 700, 440, 712),
		absTok("AMOUNT", 500, 700, 550, 712),

		absTok("1", 45, 670, 55, 682),
		absTok("STEEL", 100, 670, 140, 682),
		absTok("PLATE", 145, 670, 185, 682),
		absTok("10", 305, 670, 320, 682),
		absTok("1.000,00", 395, 670, 445, 682),
		absTok("10.000,00", 495, 670, 555, 682),

		absTok("2", 45, 640, 55, 652),
		absTok("COPPER", 100, 640, 145, 652),
		absTok("WIRE", 150, 640, 180, 652),
		absTok("5", 305, 640, 315, 652),
		absTok("2.000,00", 395, 640, 445, 652),
		absTok("10.000,00", 495, 640, 555, 652),

		absTok("3", 45, 610, 55, 622),
		absTok("ALU", 100, 610, 125, 622),
		absTok("SHEET", 130, 610, 170, 622),
		absTok("2", 305, 610, 315, 622),
		absTok("500,00", 400, 610, 440, 622),
		absTok("1.000,00", 495, 610, 550, 622),

		absTok("TOTAL", 100, 580, 140, 592),
		absTok("21.000,00", 495, 580, 555, 592),

		absTok("THANK", 100, 550, 140, 562),
		absTok("YOU", 145, 550, 170, 562),
	}
	for i := range toks {
		toks[i].ID = i + 1
		toks[i].UID = fmt.Sprintf("pdf-%06d", i+1)
	}
	return &token.Result{
		Envelope: artifact.NewEnvelope("doc-grid", token.NormalizeStageName, token.NormalizeStageVersion),
		Engines: []token.EngineBlock{{
			Engine: "pdf",
			Pages:  []engine.Page{{Page: 1, Width: testPageW, Height: testPageH}},
			Tokens: toks,
		}},
	}
}

// invoiceCandidate covers all six visual rows with five columns.
func invoiceCandidate(withDims bool) detect.Candidate {
	colEdges := []float64{30, 70, 290, 390, 490, 560}
	rowSpans := [][2]float64{
		{695, 715}, {665, 685}, {635, 655}, {605, 625}, {575, 595}, {545, 565},
	}
	cand := detect.Candidate{Page: 1, Strategy: detect.Whitespace}
	if withDims {
		cand.PageWidth = testPageW
		cand.PageHeight = testPageH
	}
	for _, span := range rowSpans {
		var row []geometry.AbsBBox
		for c := 0; c < len(colEdges)-1; c++ {
			row = append(row, geometry.AbsBBox{
				X0: colEdges[c], Y0: span[0], X1: colEdges[c+1], Y1: span[1],
				Width: colEdges[c+1] - colEdges[c], Height: span[1] - span[0],
			})
		}
		cand.Cells = append(cand.Cells, row)
	}
	return cand
}

type stubDetector struct {
	byStrategy map[detect.Strategy][]detect.Candidate
	errs       map[detect.Strategy]error
}

func (s *stubDetector) Detect(_ string, _ int, strategy detect.Strategy) ([]detect.Candidate, error) {
	if err := s.errs[strategy]; err != nil {
		return nil, err
	}
	return s.byStrategy[strategy], nil
}

func newTestBuilder(det detect.Detector) *Builder {
	return NewBuilder(config.Default(), det, zap.NewNop().Sugar())
}

func TestBuildAssemblesTable(t *testing.T) {
	det := &stubDetector{byStrategy: map[detect.Strategy][]detect.Candidate{
		detect.Whitespace: {invoiceCandidate(true)},
	}}
	res, err := newTestBuilder(det).Build("in.pdf", invoiceTokens())
	require.NoError(t, err)
	require.Len(t, res.Tables, 1)

	table := res.Tables[0]
	assert.Equal(t, 1, table.Page)
	assert.Equal(t, 0, table.HeaderRow)
	require.Len(t, table.Header, 5)
	assert.Equal(t,
		[]Family{FamilyNo, FamilyDesc, FamilyQty, FamilyPrice, FamilyAmount},
		[]Family{table.Header[0].Family, table.Header[1].Family, table.Header[2].Family, table.Header[3].Family, table.Header[4].Family},
	)

	// Emission stops at the totals row: three data rows, nothing after.
	require.Len(t, table.Rows, 3)
	for _, row := range table.Rows {
		assert.Len(t, row, len(table.Header), "grid stays rectangular")
	}

	assert.Equal(t, "1", table.Rows[0][0].Text)
	assert.Equal(t, "STEEL PLATE", table.Rows[0][1].Text)
	assert.Equal(t, "10", table.Rows[0][2].Text)
	assert.Equal(t, "1.000,00", table.Rows[0][3].Text)
	assert.Equal(t, "10.000,00", table.Rows[0][4].Text)
	assert.Equal(t, "COPPER WIRE", table.Rows[1][1].Text)
	assert.Equal(t, "ALU SHEET", table.Rows[2][1].Text)

	// Families propagate from the header to every data cell.
	assert.Equal(t, FamilyAmount, table.Rows[2][4].Family)
	assert.Equal(t, StageName, res.Stage)
}

func TestBuildStructuralErrorFallsBackToWhitespace(t *testing.T) {
	det := &stubDetector{
		byStrategy: map[detect.Strategy][]detect.Candidate{
			detect.Whitespace: {invoiceCandidate(true)},
		},
		errs: map[detect.Strategy]error{detect.Structural: fmt.Errorf("backend down")},
	}
	res, err := newTestBuilder(det).Build("in.pdf", invoiceTokens())
	require.NoError(t, err)
	require.Len(t, res.Tables, 1)
	assert.Equal(t, string(detect.Whitespace), res.Tables[0].Strategy)
}

func TestBuildNoCandidatesIsEmptyNotError(t *testing.T) {
	res, err := newTestBuilder(&stubDetector{}).Build("in.pdf", invoiceTokens())
	require.NoError(t, err)
	assert.Empty(t, res.Tables)
}

func TestBuildPageSizeFallbackToTokenMeta(t *testing.T) {
	// Candidate reports no dimensions; the tokenizer page record fills in.
	det := &stubDetector{byStrategy: map[detect.Strategy][]detect.Candidate{
		detect.Whitespace: {invoiceCandidate(false)},
	}}
	res, err := newTestBuilder(det).Build("in.pdf", invoiceTokens())
	require.NoError(t, err)
	require.Len(t, res.Tables, 1)
	assert.Equal(t, "STEEL PLATE", res.Tables[0].Rows[0][1].Text)
}

func TestBuildSkipsCandidateWithoutHeaderKeywords(t *testing.T) {
	// A candidate over the trailing note rows has no recognizable header.
	cand := detect.Candidate{
		Page: 1, Strategy: detect.Whitespace,
		PageWidth: testPageW, PageHeight: testPageH,
		Cells: [][]geometry.AbsBBox{
			{{X0: 90, Y0: 545, X1: 200, Y1: 565}},
			{{X0: 90, Y0: 515, X1: 200, Y1: 535}},
			{{X0: 90, Y0: 485, X1: 200, Y1: 505}},
		},
	}
	det := &stubDetector{byStrategy: map[detect.Strategy][]detect.Candidate{
		detect.Whitespace: {cand},
	}}
	res, err := newTestBuilder(det).Build("in.pdf", invoiceTokens())
	require.NoError(t, err)
	assert.Empty(t, res.Tables)
}
