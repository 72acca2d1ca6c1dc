package geometry

import "github.com/tidwall/rtree"

// PointIndex is a spatial index over 2D points carrying integer payloads
// (token ids). The grid builder and field extractor use it to answer
// "which token centers fall inside this box" without scanning every token.
type PointIndex struct {
	tr rtree.RTreeG[int]
}

// Insert adds a point with the given payload.
func (p *PointIndex) Insert(x, y float64, id int) {
	p.tr.Insert([2]float64{x, y}, [2]float64{x, y}, id)
}

// Within returns the payloads of all points inside box expanded by eps.
func (p *PointIndex) Within(box BBox, eps float64) []int {
	var out []int
	p.tr.Search(
		[2]float64{box.X0 - eps, box.Y0 - eps},
		[2]float64{box.X1 + eps, box.Y1 + eps},
		func(_, _ [2]float64, id int) bool {
			out = append(out, id)
			return true
		},
	)
	return out
}

// Len returns the number of indexed points.
func (p *PointIndex) Len() int { return p.tr.Len() }
