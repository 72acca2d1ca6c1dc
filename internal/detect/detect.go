// Package detect produces table candidates for the cell-grid builder. Two
// strategies are tried in priority order: structural (ruled) detection via an
// external backend, then whitespace-based detection over token geometry. A
// page with no candidates from either strategy is an empty result, never an
// error.
package detect

import "github.com/docforge/invoice-extract/internal/geometry"

// Strategy names a detection approach.
type Strategy string

const (
	// Structural detects tables from ruling lines and rectangles.
	Structural Strategy = "structural"
	// Whitespace detects tables from vertical whitespace valleys in the
	// text projection profile.
	Whitespace Strategy = "whitespace"
)

// Candidate is one detected table: a rectangular grid of cell boxes in the
// backend's coordinate space (absolute PDF units, origin bottom-left).
// PageWidth/PageHeight are the backend-reported page dimensions, zero when
// the backend does not know them.
type Candidate struct {
	Page       int                  `json:"page"`
	PageWidth  float64              `json:"page_width"`
	PageHeight float64              `json:"page_height"`
	Cells      [][]geometry.AbsBBox `json:"cells"`
	Strategy   Strategy             `json:"strategy"`
}

// Detector yields table candidates for one page under one strategy. A
// strategy the implementation does not support returns (nil, nil); a single
// attempt is made per strategy per page, with no retry.
type Detector interface {
	Detect(pdfPath string, page int, strategy Strategy) ([]Candidate, error)
}

// Chain tries detectors in order and returns the first non-empty candidate
// set. A failing detector is skipped; its error is reported only when no
// detector in the chain produced candidates.
type Chain []Detector

// Detect implements Detector.
func (c Chain) Detect(pdfPath string, page int, strategy Strategy) ([]Candidate, error) {
	var lastErr error
	for _, d := range c {
		cands, err := d.Detect(pdfPath, page, strategy)
		if err != nil {
			lastErr = err
			continue
		}
		if len(cands) > 0 {
			return cands, nil
		}
	}
	return nil, lastErr
}
