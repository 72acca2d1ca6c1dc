package token

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/docforge/invoice-extract/internal/artifact"
	"github.com/docforge/invoice-extract/internal/engine"
	"github.com/docforge/invoice-extract/internal/geometry"
)

const (
	StageName    = "tokenize"
	StageVersion = "1.2.0"
)

// Options tune the tokenizer's line grouping and header band.
type Options struct {
	// LineBreakRatio is the vertical delta, as a fraction of page height,
	// beyond which a token starts a new preview line.
	LineBreakRatio float64
	// HeaderBandRatio is the fraction of page height covered by the
	// per-page header band.
	HeaderBandRatio float64
}

// DefaultOptions matches the tuned production defaults.
func DefaultOptions() Options {
	return Options{LineBreakRatio: 0.004, HeaderBandRatio: 0.15}
}

// Tokenize runs every engine over the PDF at path. The first engine is the
// primary and must succeed; any further engine that is unavailable or fails
// contributes a warning instead of a block. Per engine, tokens are sorted by
// (page, y0, x0), given contiguous ids from 1 and engine-namespaced uids.
func Tokenize(path, docID string, engines []engine.Engine, opts Options) (*Result, error) {
	if len(engines) == 0 {
		return nil, fmt.Errorf("tokenize: no engines configured")
	}
	if opts.LineBreakRatio <= 0 {
		opts.LineBreakRatio = DefaultOptions().LineBreakRatio
	}
	if opts.HeaderBandRatio <= 0 {
		opts.HeaderBandRatio = DefaultOptions().HeaderBandRatio
	}

	res := &Result{Envelope: artifact.NewEnvelope(docID, StageName, StageVersion)}
	for i, eng := range engines {
		if !eng.Available() {
			if i == 0 {
				return nil, fmt.Errorf("tokenize: primary engine %s unavailable", eng.Name())
			}
			res.Warnings = append(res.Warnings, fmt.Sprintf("engine %s unavailable, block omitted", eng.Name()))
			continue
		}
		pages, words, err := eng.Extract(path)
		if err != nil {
			if i == 0 {
				return nil, fmt.Errorf("tokenize: primary engine %s: %w", eng.Name(), err)
			}
			res.Warnings = append(res.Warnings, fmt.Sprintf("engine %s failed: %v", eng.Name(), err))
			continue
		}
		res.Engines = append(res.Engines, buildBlock(eng.Name(), pages, words, opts))
	}
	return res, nil
}

func buildBlock(name string, pages []engine.Page, words []engine.Word, opts Options) EngineBlock {
	dims := make(map[int]engine.Page, len(pages))
	for _, p := range pages {
		dims[p.Page] = p
	}

	tokens := make([]Token, 0, len(words))
	for _, w := range words {
		p, ok := dims[w.Page]
		if !ok || p.Width <= 0 || p.Height <= 0 {
			continue
		}
		abs := w.Abs
		abs.Width = abs.X1 - abs.X0
		abs.Height = abs.Y1 - abs.Y0
		tokens = append(tokens, Token{
			Page:    w.Page,
			Text:    w.Text,
			AbsBBox: abs,
			BBox:    normalizeBox(abs, p),
		})
	}

	// Stable sort order: page, then top edge, then left edge.
	sort.SliceStable(tokens, func(i, j int) bool {
		a, b := tokens[i], tokens[j]
		if a.Page != b.Page {
			return a.Page < b.Page
		}
		if a.BBox.Y0 != b.BBox.Y0 {
			return a.BBox.Y0 < b.BBox.Y0
		}
		return a.BBox.X0 < b.BBox.X0
	})
	for i := range tokens {
		tokens[i].ID = i + 1
		tokens[i].UID = fmt.Sprintf("%s-%06d", name, i+1)
	}

	block := EngineBlock{
		Engine: name,
		Pages:  pages,
		Tokens: tokens,
		Lines:  buildLines(tokens, opts.LineBreakRatio),
	}
	for _, p := range pages {
		block.HeaderBands = append(block.HeaderBands, HeaderBand{
			Page: p.Page,
			BBox: headerBand(opts.HeaderBandRatio),
		})
	}
	return block
}

func normalizeBox(abs geometry.AbsBBox, p engine.Page) geometry.BBox {
	return geometry.NormalizeTopLeft(abs, p.Width, p.Height)
}

func headerBand(ratio float64) geometry.BBox {
	return geometry.BBox{X0: 0, Y0: 0, X1: 1, Y1: ratio}
}

// buildLines scans tokens in sort order and starts a new line whenever the
// vertical position drifts from the current line's anchor by more than the
// break ratio. Each engine's preview is independent of the other's.
func buildLines(tokens []Token, breakRatio float64) []Line {
	var lines []Line
	var anchor float64
	page := -1
	for _, t := range tokens {
		y := t.BBox.Y0
		if t.Page != page || len(lines) == 0 || math.Abs(y-anchor) > breakRatio {
			lines = append(lines, Line{Page: t.Page, Y: y})
			anchor = y
			page = t.Page
		}
		ln := &lines[len(lines)-1]
		if ln.Text != "" {
			ln.Text += " "
		}
		ln.Text += t.Text
		ln.TokenIDs = append(ln.TokenIDs, t.ID)
	}
	return lines
}

// LineText joins a block's preview lines for a page, one string per line.
func (b *EngineBlock) LineText(page int) []string {
	var out []string
	for _, ln := range b.Lines {
		if ln.Page == page {
			out = append(out, strings.TrimSpace(ln.Text))
		}
	}
	return out
}
