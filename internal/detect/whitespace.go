package detect

import (
	"math"
	"sort"

	"github.com/docforge/invoice-extract/internal/geometry"
	"github.com/docforge/invoice-extract/internal/token"
)

const (
	profileResolution = 1.0 // pt per projection bin
	minValleyWidthPt  = 8.0
	rowGapTolerancePt = 4.0
	minTableRows      = 3
	minTableCols      = 2
)

// TokenDetector is the in-process whitespace-strategy detector. It builds a
// horizontal projection profile from token boxes, takes persistent vertical
// whitespace valleys as column separators, and emits a single grid candidate
// from the longest run of multi-column rows.
type TokenDetector struct {
	primary *token.EngineBlock
}

// NewTokenDetector builds a detector over the normalized token artifact.
func NewTokenDetector(res *token.Result) *TokenDetector {
	return &TokenDetector{primary: res.Primary()}
}

// Detect implements Detector. Only the whitespace strategy is supported; the
// structural strategy needs ruling-line geometry this detector does not see.
func (d *TokenDetector) Detect(_ string, page int, strategy Strategy) ([]Candidate, error) {
	if strategy != Whitespace || d.primary == nil {
		return nil, nil
	}
	var toks []token.Token
	for _, t := range d.primary.Tokens {
		if t.Page == page {
			toks = append(toks, t)
		}
	}
	if len(toks) < minTableRows*minTableCols {
		return nil, nil
	}

	rows := groupAbsRows(toks)
	cols := columnBoundaries(toks)
	if len(cols) < minTableCols+1 {
		return nil, nil
	}

	start, end := longestTabularRun(rows, cols)
	if end-start < minTableRows {
		return nil, nil
	}

	cand := Candidate{Page: page, Strategy: Whitespace}
	if meta, ok := d.primary.PageMeta(page); ok {
		cand.PageWidth = meta.Width
		cand.PageHeight = meta.Height
	}
	for _, row := range rows[start:end] {
		y0, y1 := rowExtent(row)
		var cells []geometry.AbsBBox
		for c := 0; c < len(cols)-1; c++ {
			cells = append(cells, geometry.AbsBBox{
				X0: cols[c], Y0: y0, X1: cols[c+1], Y1: y1,
				Width: cols[c+1] - cols[c], Height: y1 - y0,
			})
		}
		cand.Cells = append(cand.Cells, cells)
	}
	return []Candidate{cand}, nil
}

// groupAbsRows clusters tokens into visual rows by absolute Y, ordered top to
// bottom (descending Y in the bottom-left space).
func groupAbsRows(toks []token.Token) [][]token.Token {
	sorted := make([]token.Token, len(toks))
	copy(sorted, toks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].AbsBBox.Y0 > sorted[j].AbsBBox.Y0 })

	var rows [][]token.Token
	var anchor float64
	for i, t := range sorted {
		if i == 0 || math.Abs(t.AbsBBox.Y0-anchor) > rowGapTolerancePt {
			rows = append(rows, []token.Token{t})
			anchor = t.AbsBBox.Y0
			continue
		}
		rows[len(rows)-1] = append(rows[len(rows)-1], t)
	}
	for _, row := range rows {
		sort.Slice(row, func(i, j int) bool { return row[i].AbsBBox.X0 < row[j].AbsBBox.X0 })
	}
	return rows
}

// columnBoundaries builds an X projection profile and returns column edges:
// table extent bounds plus the midpoint of every whitespace valley at least
// minValleyWidthPt wide.
func columnBoundaries(toks []token.Token) []float64 {
	minX, maxX := toks[0].AbsBBox.X0, toks[0].AbsBBox.X1
	for _, t := range toks {
		minX = math.Min(minX, t.AbsBBox.X0)
		maxX = math.Max(maxX, t.AbsBBox.X1)
	}
	bins := int((maxX-minX)/profileResolution) + 1
	if bins <= 1 {
		return nil
	}
	profile := make([]int, bins)
	for _, t := range toks {
		lo := int((t.AbsBBox.X0 - minX) / profileResolution)
		hi := int((t.AbsBBox.X1 - minX) / profileResolution)
		for b := lo; b <= hi && b < bins; b++ {
			if b >= 0 {
				profile[b]++
			}
		}
	}

	boundaries := []float64{minX}
	inValley := false
	valleyStart := 0
	for i, count := range profile {
		if count == 0 {
			if !inValley {
				inValley = true
				valleyStart = i
			}
			continue
		}
		if inValley {
			width := float64(i-valleyStart) * profileResolution
			if width >= minValleyWidthPt {
				mid := minX + (float64(valleyStart)+float64(i-valleyStart)/2)*profileResolution
				boundaries = append(boundaries, mid)
			}
			inValley = false
		}
	}
	boundaries = append(boundaries, maxX)
	return boundaries
}

// longestTabularRun finds the longest consecutive run of rows whose tokens
// occupy at least two distinct column intervals.
func longestTabularRun(rows [][]token.Token, cols []float64) (int, int) {
	bestStart, bestEnd := 0, 0
	start := -1
	for i, row := range rows {
		if distinctColumns(row, cols) >= minTableCols {
			if start < 0 {
				start = i
			}
			if i+1-start > bestEnd-bestStart {
				bestStart, bestEnd = start, i+1
			}
			continue
		}
		start = -1
	}
	return bestStart, bestEnd
}

func distinctColumns(row []token.Token, cols []float64) int {
	seen := map[int]bool{}
	for _, t := range row {
		cx := (t.AbsBBox.X0 + t.AbsBBox.X1) / 2
		for c := 0; c < len(cols)-1; c++ {
			if cx >= cols[c] && cx < cols[c+1] {
				seen[c] = true
				break
			}
		}
	}
	return len(seen)
}

func rowExtent(row []token.Token) (float64, float64) {
	y0, y1 := row[0].AbsBBox.Y0, row[0].AbsBBox.Y1
	for _, t := range row {
		y0 = math.Min(y0, t.AbsBBox.Y0)
		y1 = math.Max(y1, t.AbsBBox.Y1)
	}
	return y0, y1
}
