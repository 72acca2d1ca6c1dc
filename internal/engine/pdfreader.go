package engine

import (
	"fmt"
	"math"
	"sort"

	"github.com/ledongthuc/pdf"

	"github.com/docforge/invoice-extract/internal/geometry"
)

const (
	// wordGapMultiplier is the fraction of the font size an inter-glyph gap
	// may reach before a new word starts.
	wordGapMultiplier = 0.3
	// rowTolerancePt groups glyphs into the same visual row.
	rowTolerancePt = 3.0

	defaultPageWidth  = 595.0 // A4 in PDF units
	defaultPageHeight = 842.0
)

// PDFReader is the primary, in-process extraction engine. It walks page
// content with github.com/ledongthuc/pdf and merges the per-glyph text runs
// into words by row grouping and gap analysis.
type PDFReader struct{}

// NewPDFReader returns the primary engine.
func NewPDFReader() *PDFReader { return &PDFReader{} }

// Name implements Engine.
func (r *PDFReader) Name() string { return "pdf" }

// Available implements Engine. The in-process reader is always available.
func (r *PDFReader) Available() bool { return true }

// Extract implements Engine.
func (r *PDFReader) Extract(path string) ([]Page, []Word, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	var pages []Page
	var words []Word
	for n := 1; n <= reader.NumPage(); n++ {
		p := reader.Page(n)
		if p.V.IsNull() {
			continue
		}
		w, h := pageSize(p)
		pages = append(pages, Page{Page: n, Width: w, Height: h})
		words = append(words, assembleWords(n, p.Content().Text)...)
	}
	if len(pages) == 0 {
		return nil, nil, fmt.Errorf("pdf has no readable pages")
	}
	return pages, words, nil
}

// pageSize resolves the MediaBox, falling back to A4 when the page dictionary
// does not expose one directly.
func pageSize(p pdf.Page) (float64, float64) {
	mb := p.V.Key("MediaBox")
	if mb.Len() == 4 {
		w := mb.Index(2).Float64() - mb.Index(0).Float64()
		h := mb.Index(3).Float64() - mb.Index(1).Float64()
		if w > 0 && h > 0 {
			return w, h
		}
	}
	return defaultPageWidth, defaultPageHeight
}

// assembleWords merges glyph runs into words: group into rows by Y, sort each
// row by X, then split on gaps wider than wordGapMultiplier of the font size.
func assembleWords(pageNum int, texts []pdf.Text) []Word {
	runs := make([]pdf.Text, 0, len(texts))
	for _, t := range texts {
		if t.S == "" || t.S == "\n" || t.S == " " {
			continue
		}
		runs = append(runs, t)
	}
	if len(runs) == 0 {
		return nil
	}

	rows := groupRows(runs)

	var words []Word
	for _, row := range rows {
		sort.Slice(row, func(i, j int) bool { return row[i].X < row[j].X })

		cur := newWordBuilder(pageNum, row[0])
		for _, t := range row[1:] {
			gap := t.X - cur.abs.X1
			threshold := wordGapMultiplier * t.FontSize
			if threshold <= 0 {
				threshold = rowTolerancePt
			}
			if gap <= threshold {
				cur.extend(t)
				continue
			}
			words = append(words, cur.finish())
			cur = newWordBuilder(pageNum, t)
		}
		words = append(words, cur.finish())
	}
	return words
}

func groupRows(runs []pdf.Text) [][]pdf.Text {
	sorted := make([]pdf.Text, len(runs))
	copy(sorted, runs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Y > sorted[j].Y })

	var rows [][]pdf.Text
	var anchor float64
	for i, t := range sorted {
		if i == 0 || math.Abs(t.Y-anchor) > rowTolerancePt {
			rows = append(rows, []pdf.Text{t})
			anchor = t.Y
			continue
		}
		rows[len(rows)-1] = append(rows[len(rows)-1], t)
	}
	return rows
}

type wordBuilder struct {
	page int
	text string
	abs  geometry.AbsBBox
}

func newWordBuilder(page int, t pdf.Text) wordBuilder {
	height := t.FontSize
	if height <= 0 {
		height = 10
	}
	return wordBuilder{
		page: page,
		text: t.S,
		abs:  geometry.AbsBBox{X0: t.X, Y0: t.Y, X1: t.X + t.W, Y1: t.Y + height},
	}
}

func (b *wordBuilder) extend(t pdf.Text) {
	b.text += t.S
	if t.X+t.W > b.abs.X1 {
		b.abs.X1 = t.X + t.W
	}
	if t.Y < b.abs.Y0 {
		b.abs.Y0 = t.Y
	}
	if top := t.Y + t.FontSize; top > b.abs.Y1 {
		b.abs.Y1 = top
	}
}

func (b *wordBuilder) finish() Word {
	b.abs.Width = b.abs.X1 - b.abs.X0
	b.abs.Height = b.abs.Y1 - b.abs.Y0
	return Word{Page: b.page, Text: b.text, Abs: b.abs}
}
