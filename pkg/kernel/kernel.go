// Package kernel builds parametric triangle meshes for canonical building
// element shapes and computes their content hashes. Meshes are exact:
// every builder emits a fixed, documented vertex and face layout so that
// two elements with the same dimensions produce byte-identical geometry.
// Shapes are built in origin-local space with their dimensions applied,
// then translated to the requested center; the content hash is taken
// before placement.
package kernel

import (
	"errors"
	"math"

	v2 "github.com/deadsy/sdfx/vec/v2"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// ErrNonSimplePolygon is returned by ExtrudePolygon for self-intersecting
// or degenerate profiles. Silently extruding them would store garbage.
var ErrNonSimplePolygon = errors.New("kernel: profile polygon is not simple")

// Box builds an axis-aligned box: 8 vertices, 12 triangles, consistent
// outward winding.
func Box(width, depth, height float64, center v3.Vec) (*Mesh, error) {
	if width <= 0 || depth <= 0 || height <= 0 {
		return nil, &InvalidError{Reason: "box dimensions must be positive"}
	}
	hw := float32(width / 2)
	hd := float32(depth / 2)
	hh := float32(height / 2)

	m := &Mesh{
		Vertices: []float32{
			-hw, -hd, -hh, // 0
			hw, -hd, -hh, // 1
			hw, hd, -hh, // 2
			-hw, hd, -hh, // 3
			-hw, -hd, hh, // 4
			hw, -hd, hh, // 5
			hw, hd, hh, // 6
			-hw, hd, hh, // 7
		},
		Indices: []uint32{
			0, 2, 1, 0, 3, 2, // bottom (-z)
			4, 5, 6, 4, 6, 7, // top (+z)
			0, 1, 5, 0, 5, 4, // front (-y)
			1, 2, 6, 1, 6, 5, // right (+x)
			2, 3, 7, 2, 7, 6, // back (+y)
			3, 0, 4, 3, 4, 7, // left (-x)
		},
	}
	m.Translate(center)
	return m, nil
}

// Cylinder builds a z-axis cylinder: 2*segments ring vertices plus two
// cap-center vertices, 4*segments triangles (two per side quad, one per
// cap fan slice).
func Cylinder(radius, height float64, segments int, center v3.Vec) (*Mesh, error) {
	if radius <= 0 || height <= 0 {
		return nil, &InvalidError{Reason: "cylinder dimensions must be positive"}
	}
	if segments < 3 {
		return nil, &InvalidError{Reason: "cylinder needs at least 3 segments"}
	}

	n := segments
	hh := float32(height / 2)
	m := &Mesh{
		Vertices: make([]float32, 0, (2*n+2)*3),
		Indices:  make([]uint32, 0, 4*n*3),
	}

	// Bottom ring [0,n), top ring [n,2n).
	for _, z := range [2]float32{-hh, hh} {
		for i := 0; i < n; i++ {
			theta := 2 * math.Pi * float64(i) / float64(n)
			x := float32(radius * math.Cos(theta))
			y := float32(radius * math.Sin(theta))
			m.Vertices = append(m.Vertices, x, y, z)
		}
	}
	bottomCenter := uint32(2 * n)
	topCenter := uint32(2*n + 1)
	m.Vertices = append(m.Vertices, 0, 0, -hh)
	m.Vertices = append(m.Vertices, 0, 0, hh)

	for i := 0; i < n; i++ {
		j := (i + 1) % n
		bi, bj := uint32(i), uint32(j)
		ti, tj := uint32(n+i), uint32(n+j)
		// Side quad as two triangles, outward winding.
		m.Indices = append(m.Indices, bi, bj, tj)
		m.Indices = append(m.Indices, bi, tj, ti)
		// Caps, fan-triangulated from the center vertices.
		m.Indices = append(m.Indices, bottomCenter, bj, bi)
		m.Indices = append(m.Indices, topCenter, ti, tj)
	}

	m.Translate(center)
	return m, nil
}

// ExtrudePolygon builds a prism from a 2D profile: the profile duplicated
// at bottom and top z, one side quad per edge, fan-triangulated caps.
// The profile must be a simple polygon; winding is normalized to
// counter-clockwise so the caps face outward, and the ring is rotated to
// a canonical start vertex so equal shapes encode (and therefore hash)
// identically. Fan triangulation is exact
// for convex profiles and acceptable for near-convex ones; self
// intersecting profiles are rejected with ErrNonSimplePolygon.
func ExtrudePolygon(profile []v2.Vec, height float64, center v3.Vec) (*Mesh, error) {
	if height <= 0 {
		return nil, &InvalidError{Reason: "extrusion height must be positive"}
	}
	if err := checkSimple(profile); err != nil {
		return nil, err
	}

	pts := make([]v2.Vec, len(profile))
	copy(pts, profile)
	if signedArea(pts) < 0 {
		for i, j := 0, len(pts)-1; i < j; i, j = i+1, j-1 {
			pts[i], pts[j] = pts[j], pts[i]
		}
	}

	// Canonical start vertex: reversing or rotating the input ring must
	// not change the emitted bytes, or equal shapes would hash apart.
	if start := lexMin(pts); start != 0 {
		rotated := make([]v2.Vec, len(pts))
		n := copy(rotated, pts[start:])
		copy(rotated[n:], pts[:start])
		pts = rotated
	}

	n := len(pts)
	hh := float32(height / 2)
	m := &Mesh{
		Vertices: make([]float32, 0, 2*n*3),
		Indices:  make([]uint32, 0, (2*n+2*(n-2))*3),
	}

	// Bottom ring [0,n), top ring [n,2n).
	for _, z := range [2]float32{-hh, hh} {
		for _, p := range pts {
			m.Vertices = append(m.Vertices, float32(p.X), float32(p.Y), z)
		}
	}

	for i := 0; i < n; i++ {
		j := (i + 1) % n
		bi, bj := uint32(i), uint32(j)
		ti, tj := uint32(n+i), uint32(n+j)
		m.Indices = append(m.Indices, bi, bj, tj)
		m.Indices = append(m.Indices, bi, tj, ti)
	}
	for i := 1; i+1 < n; i++ {
		// Bottom cap faces -z, top cap faces +z.
		m.Indices = append(m.Indices, 0, uint32(i+1), uint32(i))
		m.Indices = append(m.Indices, uint32(n), uint32(n+i), uint32(n+i+1))
	}

	m.Translate(center)
	return m, nil
}

// lexMin returns the index of the lexicographically smallest point
// (X first, then Y).
func lexMin(pts []v2.Vec) int {
	best := 0
	for i := 1; i < len(pts); i++ {
		if pts[i].X < pts[best].X ||
			(pts[i].X == pts[best].X && pts[i].Y < pts[best].Y) {
			best = i
		}
	}
	return best
}

// signedArea returns twice the signed area of the polygon; positive for
// counter-clockwise winding.
func signedArea(pts []v2.Vec) float64 {
	area := 0.0
	for i := range pts {
		j := (i + 1) % len(pts)
		area += pts[i].X*pts[j].Y - pts[j].X*pts[i].Y
	}
	return area
}

// checkSimple rejects profiles with fewer than 3 points, repeated
// consecutive points, zero area, or self-intersecting edges.
func checkSimple(pts []v2.Vec) error {
	if len(pts) < 3 {
		return ErrNonSimplePolygon
	}
	for i := range pts {
		j := (i + 1) % len(pts)
		if pts[i].Sub(pts[j]).Length() == 0 {
			return ErrNonSimplePolygon
		}
	}
	if signedArea(pts) == 0 {
		return ErrNonSimplePolygon
	}
	n := len(pts)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			// Skip adjacent edges (they share a vertex).
			if j == i || (j+1)%n == i || (i+1)%n == j {
				continue
			}
			if segmentsIntersect(pts[i], pts[(i+1)%n], pts[j], pts[(j+1)%n]) {
				return ErrNonSimplePolygon
			}
		}
	}
	return nil
}

func cross2(o, a, b v2.Vec) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}

// segmentsIntersect reports proper intersection of segments ab and cd.
func segmentsIntersect(a, b, c, d v2.Vec) bool {
	d1 := cross2(c, d, a)
	d2 := cross2(c, d, b)
	d3 := cross2(a, b, c)
	d4 := cross2(a, b, d)
	return ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0))
}
