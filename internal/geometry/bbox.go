// Package geometry holds the coordinate types shared by every pipeline stage:
// absolute PDF-unit boxes, page-normalized boxes, and the conversions between
// the detection backend's bottom-left space and the pipeline's top-left space.
package geometry

// AbsBBox is an axis-aligned box in absolute PDF units, origin bottom-left.
type AbsBBox struct {
	X0     float64 `json:"x0"`
	Y0     float64 `json:"y0"`
	X1     float64 `json:"x1"`
	Y1     float64 `json:"y1"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// BBox is an axis-aligned box normalized to [0,1] fractions of page width and
// height, origin top-left. Y0 is the top edge, Y1 the bottom edge.
type BBox struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// CenterX returns the horizontal center of the box.
func (b BBox) CenterX() float64 { return (b.X0 + b.X1) / 2 }

// CenterY returns the vertical center of the box.
func (b BBox) CenterY() float64 { return (b.Y0 + b.Y1) / 2 }

// Width returns X1-X0.
func (b BBox) Width() float64 { return b.X1 - b.X0 }

// Height returns Y1-Y0.
func (b BBox) Height() float64 { return b.Y1 - b.Y0 }

// ContainsPoint reports whether (x, y) lies inside the box, expanded on every
// side by eps. Inclusive on all edges.
func (b BBox) ContainsPoint(x, y, eps float64) bool {
	return x >= b.X0-eps && x <= b.X1+eps && y >= b.Y0-eps && y <= b.Y1+eps
}

// Intersects reports whether the two boxes overlap.
func (b BBox) Intersects(o BBox) bool {
	return !(b.X1 < o.X0 || o.X1 < b.X0 || b.Y1 < o.Y0 || o.Y1 < b.Y0)
}

// Union returns the smallest box covering both b and o.
func (b BBox) Union(o BBox) BBox {
	out := b
	if o.X0 < out.X0 {
		out.X0 = o.X0
	}
	if o.Y0 < out.Y0 {
		out.Y0 = o.Y0
	}
	if o.X1 > out.X1 {
		out.X1 = o.X1
	}
	if o.Y1 > out.Y1 {
		out.Y1 = o.Y1
	}
	return out
}

// NormalizeTopLeft converts an absolute bottom-left box to a normalized
// top-left box for a page of the given dimensions. Callers must pass positive
// dimensions; Normalize never divides by zero because the builder resolves
// page size through its fallback chain before converting.
func NormalizeTopLeft(abs AbsBBox, pageW, pageH float64) BBox {
	return BBox{
		X0: abs.X0 / pageW,
		Y0: (pageH - abs.Y1) / pageH,
		X1: abs.X1 / pageW,
		Y1: (pageH - abs.Y0) / pageH,
	}
}
