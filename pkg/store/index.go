package store

import (
	"math"

	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/dhconnelly/rtreego"

	"github.com/chazu/tectum/pkg/kernel"
)

// BBox is an axis-aligned bounding box in world meters.
type BBox struct {
	Min [3]float64 `json:"min"`
	Max [3]float64 `json:"max"`
}

// indexEntry is the R-tree payload for one element instance. The store
// keeps the same pointer in its guid map so deletions find the exact
// object the tree holds.
type indexEntry struct {
	id   int64
	guid string
	rect rtreego.Rect
}

func (e *indexEntry) Bounds() rtreego.Rect {
	return e.rect
}

// rectOf converts a BBox to an R-tree rectangle. Degenerate extents are
// widened by an epsilon because the tree requires positive lengths.
func rectOf(b BBox) (rtreego.Rect, error) {
	const eps = 1e-9
	lengths := make([]float64, 3)
	point := rtreego.Point{b.Min[0], b.Min[1], b.Min[2]}
	for i := 0; i < 3; i++ {
		l := b.Max[i] - b.Min[i]
		if l < eps {
			l = eps
		}
		lengths[i] = l
	}
	return rtreego.NewRect(point, lengths)
}

// rotate applies Euler rotation (degrees) in Z*Y*X order, matching the
// placement convention used when elements are generated.
func rotate(p v3.Vec, rot v3.Vec) v3.Vec {
	rx := rot.X * math.Pi / 180
	ry := rot.Y * math.Pi / 180
	rz := rot.Z * math.Pi / 180

	// X axis.
	y := p.Y*math.Cos(rx) - p.Z*math.Sin(rx)
	z := p.Y*math.Sin(rx) + p.Z*math.Cos(rx)
	p.Y, p.Z = y, z
	// Y axis.
	x := p.X*math.Cos(ry) + p.Z*math.Sin(ry)
	z = -p.X*math.Sin(ry) + p.Z*math.Cos(ry)
	p.X, p.Z = x, z
	// Z axis.
	x = p.X*math.Cos(rz) - p.Y*math.Sin(rz)
	y = p.X*math.Sin(rz) + p.Y*math.Cos(rz)
	p.X, p.Y = x, y

	return p
}

// computeBBox returns the bounding box of the mesh's vertices under the
// instance transform (scale, then rotate, then translate).
func computeBBox(m *kernel.Mesh, t Transform) BBox {
	b := BBox{
		Min: [3]float64{math.Inf(1), math.Inf(1), math.Inf(1)},
		Max: [3]float64{math.Inf(-1), math.Inf(-1), math.Inf(-1)},
	}
	for i := 0; i+2 < len(m.Vertices); i += 3 {
		p := v3.Vec{
			X: float64(m.Vertices[i]) * t.Scale,
			Y: float64(m.Vertices[i+1]) * t.Scale,
			Z: float64(m.Vertices[i+2]) * t.Scale,
		}
		p = rotate(p, t.Rotation)
		p = p.Add(t.Position)
		for axis, v := range [3]float64{p.X, p.Y, p.Z} {
			b.Min[axis] = math.Min(b.Min[axis], v)
			b.Max[axis] = math.Max(b.Max[axis], v)
		}
	}
	return b
}

// Intersects reports whether two boxes overlap (inclusive bounds).
func (b BBox) Intersects(o BBox) bool {
	for i := 0; i < 3; i++ {
		if b.Max[i] < o.Min[i] || o.Max[i] < b.Min[i] {
			return false
		}
	}
	return true
}
