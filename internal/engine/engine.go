// Package engine abstracts the PDF text-extraction backends. The pipeline
// runs two independent engines per document: a required in-process reader and
// an optional remote word-extraction service. A secondary engine that is
// missing or failing degrades the tokenizer to a single-engine result with a
// warning; it never fails the stage.
package engine

import "github.com/docforge/invoice-extract/internal/geometry"

// Page is the physical page metadata an engine reports.
type Page struct {
	Page   int     `json:"page"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Word is a single extracted word with its absolute bounding box
// (PDF units, origin bottom-left).
type Word struct {
	Page int              `json:"page"`
	Text string           `json:"text"`
	Abs  geometry.AbsBBox `json:"abs_bbox"`
}

// Engine extracts positioned words from a PDF file.
type Engine interface {
	// Name is the engine prefix used to namespace token uids.
	Name() string
	// Available reports whether the engine can be called at all. The
	// tokenizer skips unavailable engines up front instead of treating
	// the miss as an extraction failure.
	Available() bool
	// Extract reads the PDF at path and returns page metadata and words.
	Extract(path string) ([]Page, []Word, error)
}
