// Package grid reconstructs the item table of an invoice page from table
// candidates and normalized tokens: it picks a header row by column-family
// keyword scoring, converts cell boxes to the normalized top-left space,
// assembles cell text from token centers, and cuts the grid at the first
// totals row.
package grid

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/docforge/invoice-extract/internal/artifact"
	"github.com/docforge/invoice-extract/internal/config"
	"github.com/docforge/invoice-extract/internal/detect"
	"github.com/docforge/invoice-extract/internal/geometry"
	"github.com/docforge/invoice-extract/internal/token"
)

const (
	StageName    = "build_grid"
	StageVersion = "1.3.0"

	// headerScanRows bounds the header search inside one candidate.
	headerScanRows = 12
	// centerEpsilon expands cell boxes when testing token centers, in
	// normalized units.
	centerEpsilon = 0.004
)

// wrapFixes repairs text splits a wrapped line leaves behind after join.
var wrapFixes = strings.NewReplacer(
	"PC S", "PCS",
	"KG S", "KGS",
	"SE T", "SET",
	"CT NS", "CTNS",
	"N O.", "NO.",
)

// Cell is one table cell. TextNorm stays empty until the cell normalizer
// fills it.
type Cell struct {
	Row      int           `json:"row"`
	Col      int           `json:"col"`
	Family   Family        `json:"name"`
	BBox     geometry.BBox `json:"bbox"`
	Text     string        `json:"text"`
	TextNorm string        `json:"text_norm,omitempty"`
}

// Table is the rectangular item grid of one page. Header holds the detected
// header row's cells; Rows holds only data rows, renumbered from 0, and
// never includes the totals row or anything after it.
type Table struct {
	Page      int           `json:"page"`
	Strategy  string        `json:"strategy"`
	HeaderRow int           `json:"header_row"`
	BBox      geometry.BBox `json:"bbox"`
	Header    []Cell        `json:"header"`
	Rows      [][]Cell      `json:"rows"`
}

// Result is the grid stage artifact. TokenSpanMisses counts data cells whose
// box captured no token centers, a signal the scorer picks up later.
type Result struct {
	artifact.Envelope
	Tables          []Table `json:"tables"`
	TokenSpanMisses int     `json:"token_span_misses"`
}

// Builder runs the cell-grid stage.
type Builder struct {
	cfg *config.Config
	det detect.Detector
	log *zap.SugaredLogger
}

// NewBuilder wires the stage. det is normally a detect.Chain holding the
// structural backend and the token detector.
func NewBuilder(cfg *config.Config, det detect.Detector, log *zap.SugaredLogger) *Builder {
	return &Builder{cfg: cfg, det: det, log: log}
}

// Build produces at most one table per page. Detection shortfalls are logged
// and leave the page without a table; only a missing primary token block is
// an error.
func (b *Builder) Build(pdfPath string, toks *token.Result) (*Result, error) {
	primary := toks.Primary()
	if primary == nil {
		return nil, fmt.Errorf("build grid: token artifact has no engine block")
	}

	res := &Result{Envelope: artifact.NewEnvelope(toks.DocID, StageName, StageVersion)}
	for _, page := range primary.Pages {
		cands := b.detectPage(pdfPath, page.Page)
		if len(cands) == 0 {
			continue
		}
		// Candidates only carry geometry, so each is materialized before
		// scoring; the one whose header row matches the most distinct
		// families wins, ties broken by first occurrence.
		var best *Table
		bestScore, bestMisses := -1, 0
		for _, cand := range cands {
			table, score, misses := b.buildTable(cand, primary)
			if table != nil && score > bestScore {
				best, bestScore, bestMisses = table, score, misses
			}
		}
		if best == nil {
			continue
		}
		res.Tables = append(res.Tables, *best)
		res.TokenSpanMisses += bestMisses
		b.log.Infow("stage.build_grid.table",
			"page", page.Page,
			"strategy", best.Strategy,
			"rows", len(best.Rows),
			"cols", len(best.Header),
		)
	}
	return res, nil
}

// detectPage tries the strategies in priority order, one attempt each per
// page, and returns the first strategy's candidates.
func (b *Builder) detectPage(pdfPath string, page int) []detect.Candidate {
	for _, strat := range []detect.Strategy{detect.Structural, detect.Whitespace} {
		cands, err := b.det.Detect(pdfPath, page, strat)
		if err != nil {
			b.log.Warnw("stage.build_grid.detect_failed",
				"page", page, "strategy", strat, "error", err)
			continue
		}
		if len(cands) > 0 {
			return cands
		}
	}
	return nil
}

// buildTable materializes one candidate: cells converted to the normalized
// space, text assembled from tokens, header detected, families assigned, and
// rows cut at the totals boundary. Returns the table, its header-family
// score, and the count of geometry-bearing cells that captured no tokens.
func (b *Builder) buildTable(cand detect.Candidate, block *token.EngineBlock) (*Table, int, int) {
	if len(cand.Cells) == 0 {
		return nil, 0, 0
	}
	pageW, pageH, ok := resolvePageSize(cand, block)
	if !ok {
		b.log.Warnw("stage.build_grid.no_page_size", "page", cand.Page)
		return nil, 0, 0
	}

	idx, pageTokens := indexPageTokens(block, cand.Page)

	// Convert and fill every candidate row first so the header scan sees
	// assembled text, then cut at the header and totals boundaries.
	width := 0
	for _, row := range cand.Cells {
		if len(row) > width {
			width = len(row)
		}
	}
	filled := make([][]Cell, len(cand.Cells))
	rowMisses := make([]int, len(cand.Cells))
	for r, row := range cand.Cells {
		cells := make([]Cell, width)
		for c := 0; c < width; c++ {
			cell := Cell{Row: r, Col: c}
			if c < len(row) {
				cell.BBox = geometry.NormalizeTopLeft(row[c], pageW, pageH)
				cell.Text = b.cellText(idx, pageTokens, cell.BBox)
				if cell.Text == "" && row[c].X1 > row[c].X0 {
					rowMisses[r]++
				}
			}
			cells[c] = cell
		}
		filled[r] = cells
	}

	header, score := b.headerRowFromCells(filled)
	if score <= 0 {
		// Without a single recognizable header keyword the candidate is
		// most likely not the item table.
		return nil, 0, 0
	}

	families := make([]Family, width)
	for c, cell := range filled[header] {
		fam, ok := ClassifyHeader(cell.Text, b.cfg.FamilyKeywords)
		if !ok {
			fam = Positional(c)
		}
		families[c] = fam
	}

	t := &Table{Page: cand.Page, Strategy: string(cand.Strategy), HeaderRow: header}
	for c := range filled[header] {
		cell := filled[header][c]
		cell.Family = families[c]
		t.Header = append(t.Header, cell)
	}
	// Only emitted data rows count toward the token-span accounting;
	// totals and footer rows are legitimately sparse.
	misses := 0
	for r := header + 1; r < len(filled); r++ {
		if b.isTotalsRow(filled[r]) {
			break
		}
		row := make([]Cell, width)
		for c := range filled[r] {
			cell := filled[r][c]
			cell.Row = len(t.Rows)
			cell.Family = families[c]
			row[c] = cell
		}
		t.Rows = append(t.Rows, row)
		misses += rowMisses[r]
	}

	t.BBox = t.Header[0].BBox
	for _, cell := range t.Header {
		t.BBox = t.BBox.Union(cell.BBox)
	}
	for _, row := range t.Rows {
		for _, cell := range row {
			t.BBox = t.BBox.Union(cell.BBox)
		}
	}
	return t, score, misses
}

func (b *Builder) headerRowFromCells(rows [][]Cell) (int, int) {
	limit := len(rows)
	if limit > headerScanRows {
		limit = headerScanRows
	}
	bestRow, bestScore := 0, -1
	for r := 0; r < limit; r++ {
		seen := map[Family]bool{}
		for _, cell := range rows[r] {
			if fam, ok := ClassifyHeader(cell.Text, b.cfg.FamilyKeywords); ok {
				seen[fam] = true
			}
		}
		if len(seen) > bestScore {
			bestRow, bestScore = r, len(seen)
		}
	}
	return bestRow, bestScore
}

// isTotalsRow reports whether the joined row text carries a totals keyword.
// The first such row is a hard boundary for data-row emission.
func (b *Builder) isTotalsRow(row []Cell) bool {
	var parts []string
	for _, cell := range row {
		if cell.Text != "" {
			parts = append(parts, cell.Text)
		}
	}
	joined := strings.Join(parts, " ")
	for _, kw := range b.cfg.TotalsKeywords {
		if containsPhrase(joined, kw) {
			return true
		}
	}
	return false
}

// cellText assembles a cell's text from the tokens whose centers fall inside
// its box, left to right, preferring normalized token text.
func (b *Builder) cellText(idx *geometry.PointIndex, toks []token.Token, box geometry.BBox) string {
	ids := idx.Within(box, centerEpsilon)
	sort.Slice(ids, func(i, j int) bool {
		ti, tj := toks[ids[i]], toks[ids[j]]
		if ti.BBox.Y0 != tj.BBox.Y0 {
			return ti.BBox.Y0 < tj.BBox.Y0
		}
		return ti.BBox.X0 < tj.BBox.X0
	})
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		t := toks[id]
		text := t.Norm
		if text == "" {
			text = t.Text
		}
		if text != "" {
			parts = append(parts, text)
		}
	}
	joined := strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
	return wrapFixes.Replace(joined)
}

// indexPageTokens builds a spatial index over normalized token centers for
// one page. Payloads are indices into the returned slice.
func indexPageTokens(block *token.EngineBlock, page int) (*geometry.PointIndex, []token.Token) {
	var toks []token.Token
	idx := &geometry.PointIndex{}
	for _, t := range block.Tokens {
		if t.Page != page {
			continue
		}
		idx.Insert(t.BBox.CenterX(), t.BBox.CenterY(), len(toks))
		toks = append(toks, t)
	}
	return idx, toks
}

// resolvePageSize resolves page dimensions through the three-level fallback:
// detector-reported, tokenizer page metadata, then a sampled token's absolute
// and normalized boxes.
func resolvePageSize(cand detect.Candidate, block *token.EngineBlock) (float64, float64, bool) {
	if cand.PageWidth > 0 && cand.PageHeight > 0 {
		return cand.PageWidth, cand.PageHeight, true
	}
	if meta, ok := block.PageMeta(cand.Page); ok && meta.Width > 0 && meta.Height > 0 {
		return meta.Width, meta.Height, true
	}
	for _, t := range block.Tokens {
		if t.Page != cand.Page {
			continue
		}
		if t.BBox.X1 <= 0 || t.BBox.Y1 >= 1 {
			continue
		}
		w := t.AbsBBox.X1 / t.BBox.X1
		h := t.AbsBBox.Y0 / (1 - t.BBox.Y1)
		if w > 0 && h > 0 {
			return w, h, true
		}
	}
	return 0, 0, false
}
