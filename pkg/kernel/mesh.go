package kernel

import (
	"fmt"
	"math"

	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Mesh is a triangle mesh for a building element.
// All arrays are flat: vertices has 3 floats per vertex (x,y,z),
// normals has 3 floats per vertex, indices has 3 uint32s per triangle.
type Mesh struct {
	Vertices []float32 `json:"vertices"` // [x0,y0,z0, x1,y1,z1, ...]
	Normals  []float32 `json:"normals,omitempty"`
	Indices  []uint32  `json:"indices"` // [i0,i1,i2, ...] triangles
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Vertices) / 3
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// IsEmpty returns true if the mesh has no geometry.
func (m *Mesh) IsEmpty() bool {
	return len(m.Vertices) == 0
}

// InvalidError describes a mesh that must never reach the store:
// non-finite coordinates or inconsistent vertex/index layout.
type InvalidError struct {
	Reason string
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("kernel: invalid mesh: %s", e.Reason)
}

// Validate checks the mesh layout and coordinate finiteness.
func (m *Mesh) Validate() error {
	if m.IsEmpty() {
		return &InvalidError{Reason: "empty mesh"}
	}
	if len(m.Vertices)%3 != 0 {
		return &InvalidError{Reason: "vertex array length not a multiple of 3"}
	}
	if len(m.Indices)%3 != 0 {
		return &InvalidError{Reason: "index array length not a multiple of 3"}
	}
	if m.Normals != nil && len(m.Normals) != len(m.Vertices) {
		return &InvalidError{Reason: "normal count does not match vertex count"}
	}
	for _, v := range m.Vertices {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return &InvalidError{Reason: "non-finite vertex coordinate"}
		}
	}
	n := uint32(m.VertexCount())
	for _, idx := range m.Indices {
		if idx >= n {
			return &InvalidError{Reason: fmt.Sprintf("face index %d out of range (%d vertices)", idx, n)}
		}
	}
	return nil
}

// Translate moves all vertices by the given offset, in place. Builders
// produce origin-local meshes; translation happens after hashing so the
// content hash is a function of shape, not placement.
func (m *Mesh) Translate(offset v3.Vec) {
	for i := 0; i+2 < len(m.Vertices); i += 3 {
		m.Vertices[i] += float32(offset.X)
		m.Vertices[i+1] += float32(offset.Y)
		m.Vertices[i+2] += float32(offset.Z)
	}
}

// Bounds returns the axis-aligned bounding box of the raw (untransformed)
// vertices.
func (m *Mesh) Bounds() (min, max v3.Vec) {
	if m.IsEmpty() {
		return v3.Vec{}, v3.Vec{}
	}
	min = v3.Vec{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}
	max = v3.Vec{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)}
	for i := 0; i+2 < len(m.Vertices); i += 3 {
		x, y, z := float64(m.Vertices[i]), float64(m.Vertices[i+1]), float64(m.Vertices[i+2])
		min.X = math.Min(min.X, x)
		min.Y = math.Min(min.Y, y)
		min.Z = math.Min(min.Z, z)
		max.X = math.Max(max.X, x)
		max.Y = math.Max(max.Y, y)
		max.Z = math.Max(max.Z, z)
	}
	return min, max
}
