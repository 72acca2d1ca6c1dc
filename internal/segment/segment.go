// Package segment reads the external segmenter's output. The core only ever
// reads regions; it never produces or mutates them.
package segment

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/docforge/invoice-extract/internal/geometry"
)

// Region is a named rectangle on a page, normalized top-left coordinates.
type Region struct {
	Label string        `json:"label"`
	Page  int           `json:"page"`
	BBox  geometry.BBox `json:"bbox"`
}

// Document is the segmenter's artifact as consumed at the collaborator
// boundary.
type Document struct {
	Regions []Region `json:"regions"`
}

type rawRegion struct {
	ID    string     `json:"id"`
	Label string     `json:"label"`
	Page  int        `json:"page"`
	BBox  [4]float64 `json:"bbox"`
}

type rawDocument struct {
	Regions []rawRegion `json:"regions"`
}

// Load parses a segmenter output file. Regions may carry either "id" or
// "label"; bboxes arrive as [x0,y0,x1,y1] arrays.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read segments: %w", err)
	}
	var raw rawDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode segments: %w", err)
	}
	doc := &Document{}
	for _, r := range raw.Regions {
		label := r.Label
		if label == "" {
			label = r.ID
		}
		doc.Regions = append(doc.Regions, Region{
			Label: label,
			Page:  r.Page,
			BBox:  geometry.BBox{X0: r.BBox[0], Y0: r.BBox[1], X1: r.BBox[2], Y1: r.BBox[3]},
		})
	}
	return doc, nil
}

// ByLabel returns all regions whose label matches.
func (d *Document) ByLabel(label string) []Region {
	var out []Region
	for _, r := range d.Regions {
		if r.Label == label {
			out = append(out, r)
		}
	}
	return out
}
