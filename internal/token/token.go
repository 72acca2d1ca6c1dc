// Package token implements the first two pipeline stages: tokenization of a
// PDF into geometric word tokens per extraction engine, and per-token text
// normalization. Tokens are immutable after creation except for the Norm
// field stage two adds.
package token

import (
	"github.com/docforge/invoice-extract/internal/artifact"
	"github.com/docforge/invoice-extract/internal/engine"
	"github.com/docforge/invoice-extract/internal/geometry"
)

// Token is a single extracted word with absolute and normalized geometry.
// ID is contiguous per engine in (page, y0, x0) order; UID namespaces the id
// with the engine prefix so tokens from the two engines never collide.
type Token struct {
	Page    int              `json:"page"`
	Text    string           `json:"text"`
	Norm    string           `json:"norm,omitempty"`
	AbsBBox geometry.AbsBBox `json:"abs_bbox"`
	BBox    geometry.BBox    `json:"bbox"`
	ID      int              `json:"id"`
	UID     string           `json:"uid"`
}

// Line is a read-only preview row: tokens grouped by vertical proximity in
// sort order.
type Line struct {
	Page     int     `json:"page"`
	Y        float64 `json:"y"`
	Text     string  `json:"text"`
	TokenIDs []int   `json:"token_ids"`
}

// HeaderBand marks the top-of-page band downstream stages may scope header
// searches to.
type HeaderBand struct {
	Page int           `json:"page"`
	BBox geometry.BBox `json:"bbox"`
}

// EngineBlock is one engine's complete output.
type EngineBlock struct {
	Engine      string        `json:"engine"`
	Pages       []engine.Page `json:"pages"`
	Tokens      []Token       `json:"tokens"`
	Lines       []Line        `json:"lines"`
	HeaderBands []HeaderBand  `json:"header_bands"`
}

// Result is the tokenizer (and, with Norm filled, the normalizer) artifact.
// Tokens at the top level is the legacy single-list form still accepted by
// the normalizer.
type Result struct {
	artifact.Envelope
	Engines  []EngineBlock `json:"engines,omitempty"`
	Tokens   []Token       `json:"tokens,omitempty"`
	Warnings []string      `json:"warnings,omitempty"`
}

// PageMeta returns the page record for a 1-based page number, or false when
// the engine did not report it.
func (b *EngineBlock) PageMeta(page int) (engine.Page, bool) {
	for _, p := range b.Pages {
		if p.Page == page {
			return p, true
		}
	}
	return engine.Page{}, false
}

// Primary returns the first engine block, which the tokenizer guarantees is
// the required engine's output.
func (r *Result) Primary() *EngineBlock {
	if len(r.Engines) == 0 {
		return nil
	}
	return &r.Engines[0]
}
