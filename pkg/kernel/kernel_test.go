package kernel

import (
	"errors"
	"math"
	"reflect"
	"testing"

	v2 "github.com/deadsy/sdfx/vec/v2"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

func TestBoxLayout(t *testing.T) {
	m, err := Box(2, 1, 3, v3.Vec{})
	if err != nil {
		t.Fatalf("Box: %v", err)
	}
	if m.VertexCount() != 8 {
		t.Errorf("vertex count = %d, want 8", m.VertexCount())
	}
	if m.TriangleCount() != 12 {
		t.Errorf("triangle count = %d, want 12", m.TriangleCount())
	}
	if err := m.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}

	min, max := m.Bounds()
	if min.X != -1 || max.X != 1 || min.Y != -0.5 || max.Y != 0.5 || min.Z != -1.5 || max.Z != 1.5 {
		t.Errorf("bounds = %v .. %v", min, max)
	}
}

func TestBoxCenterTranslation(t *testing.T) {
	m, err := Box(2, 2, 2, v3.Vec{X: 10, Y: 20, Z: 30})
	if err != nil {
		t.Fatalf("Box: %v", err)
	}
	min, max := m.Bounds()
	if min.X != 9 || max.X != 11 || min.Y != 19 || max.Y != 21 || min.Z != 29 || max.Z != 31 {
		t.Errorf("bounds = %v .. %v", min, max)
	}
}

func TestBoxRejectsBadDimensions(t *testing.T) {
	if _, err := Box(0, 1, 1, v3.Vec{}); err == nil {
		t.Error("zero width must be rejected")
	}
	if _, err := Box(1, -2, 1, v3.Vec{}); err == nil {
		t.Error("negative depth must be rejected")
	}
}

func TestCylinderLayout(t *testing.T) {
	const segments = 16
	m, err := Cylinder(0.5, 2, segments, v3.Vec{})
	if err != nil {
		t.Fatalf("Cylinder: %v", err)
	}
	if m.VertexCount() != 2*segments+2 {
		t.Errorf("vertex count = %d, want %d", m.VertexCount(), 2*segments+2)
	}
	if m.TriangleCount() != 4*segments {
		t.Errorf("triangle count = %d, want %d", m.TriangleCount(), 4*segments)
	}
	if err := m.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}

	min, max := m.Bounds()
	if math.Abs(min.Z+1) > 1e-6 || math.Abs(max.Z-1) > 1e-6 {
		t.Errorf("z bounds = %v .. %v, want -1 .. 1", min.Z, max.Z)
	}
	if math.Abs(max.X-0.5) > 1e-6 {
		t.Errorf("x max = %v, want 0.5", max.X)
	}
}

func TestCylinderRejectsTooFewSegments(t *testing.T) {
	if _, err := Cylinder(1, 1, 2, v3.Vec{}); err == nil {
		t.Error("2 segments must be rejected")
	}
}

func TestExtrudePolygonLayout(t *testing.T) {
	// L-shaped profile: 6 points.
	profile := []v2.Vec{
		{X: 0, Y: 0}, {X: 4, Y: 0}, {X: 4, Y: 1},
		{X: 1, Y: 1}, {X: 1, Y: 3}, {X: 0, Y: 3},
	}
	m, err := ExtrudePolygon(profile, 2, v3.Vec{})
	if err != nil {
		t.Fatalf("ExtrudePolygon: %v", err)
	}
	n := len(profile)
	if m.VertexCount() != 2*n {
		t.Errorf("vertex count = %d, want %d", m.VertexCount(), 2*n)
	}
	wantTris := 2*n + 2*(n-2)
	if m.TriangleCount() != wantTris {
		t.Errorf("triangle count = %d, want %d", m.TriangleCount(), wantTris)
	}
	if err := m.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestExtrudePolygonNormalizesWinding(t *testing.T) {
	ccw := []v2.Vec{{X: 0, Y: 0}, {X: 2, Y: 0}, {X: 2, Y: 2}, {X: 0, Y: 2}}
	cw := []v2.Vec{{X: 0, Y: 0}, {X: 0, Y: 2}, {X: 2, Y: 2}, {X: 2, Y: 0}}
	// Same square, listed from a different start vertex.
	shifted := []v2.Vec{{X: 2, Y: 2}, {X: 0, Y: 2}, {X: 0, Y: 0}, {X: 2, Y: 0}}

	a, err := ExtrudePolygon(ccw, 1, v3.Vec{})
	if err != nil {
		t.Fatalf("ccw: %v", err)
	}
	b, err := ExtrudePolygon(cw, 1, v3.Vec{})
	if err != nil {
		t.Fatalf("cw: %v", err)
	}
	c, err := ExtrudePolygon(shifted, 1, v3.Vec{})
	if err != nil {
		t.Fatalf("shifted: %v", err)
	}
	if Hash(a) != Hash(b) {
		t.Error("winding direction must not change the canonical mesh")
	}
	if Hash(a) != Hash(c) {
		t.Error("ring start vertex must not change the canonical mesh")
	}
}

func TestExtrudePolygonRejectsNonSimple(t *testing.T) {
	bowtie := []v2.Vec{{X: 0, Y: 0}, {X: 2, Y: 2}, {X: 2, Y: 0}, {X: 0, Y: 2}}
	if _, err := ExtrudePolygon(bowtie, 1, v3.Vec{}); !errors.Is(err, ErrNonSimplePolygon) {
		t.Errorf("bowtie err = %v, want ErrNonSimplePolygon", err)
	}

	degenerate := []v2.Vec{{X: 0, Y: 0}, {X: 1, Y: 1}}
	if _, err := ExtrudePolygon(degenerate, 1, v3.Vec{}); !errors.Is(err, ErrNonSimplePolygon) {
		t.Errorf("2-point profile err = %v, want ErrNonSimplePolygon", err)
	}

	zeroArea := []v2.Vec{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 2, Y: 0}}
	if _, err := ExtrudePolygon(zeroArea, 1, v3.Vec{}); !errors.Is(err, ErrNonSimplePolygon) {
		t.Errorf("zero-area profile err = %v, want ErrNonSimplePolygon", err)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	builders := map[string]func() (*Mesh, error){
		"box":      func() (*Mesh, error) { return Box(1.5, 2.5, 3.5, v3.Vec{}) },
		"cylinder": func() (*Mesh, error) { return Cylinder(0.75, 2, 12, v3.Vec{}) },
		"extrusion": func() (*Mesh, error) {
			return ExtrudePolygon([]v2.Vec{{X: 0, Y: 0}, {X: 3, Y: 0}, {X: 3, Y: 2}, {X: 0, Y: 2}}, 2.7, v3.Vec{})
		},
	}

	for name, build := range builders {
		m, err := build()
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		decoded, err := Decode(EncodeVertices(m), EncodeFaces(m), EncodeNormals(m))
		if err != nil {
			t.Fatalf("%s: Decode: %v", name, err)
		}
		if !reflect.DeepEqual(m, decoded) {
			t.Errorf("%s: decode(encode(mesh)) != mesh", name)
		}
	}
}

func TestDecodeRejectsTruncatedBlobs(t *testing.T) {
	m, _ := Box(1, 1, 1, v3.Vec{})
	verts := EncodeVertices(m)
	faces := EncodeFaces(m)

	if _, err := Decode(verts[:len(verts)-4], faces, nil); err == nil {
		t.Error("truncated vertex blob must be rejected")
	}
	if _, err := Decode(verts, faces[:3], nil); err == nil {
		t.Error("truncated face blob must be rejected")
	}
}

func TestHashIsShapeOnly(t *testing.T) {
	a, _ := Box(2, 1, 3, v3.Vec{})
	b, _ := Box(2, 1, 3, v3.Vec{})
	if Hash(a) != Hash(b) {
		t.Error("independently built identical boxes must hash identically")
	}
	if Hash(a) != Hash(a) {
		t.Error("hash must be deterministic across calls")
	}

	c, _ := Box(2, 1, 3.0001, v3.Vec{})
	if Hash(a) == Hash(c) {
		t.Error("different dimensions must hash differently")
	}

	// Placement changes the vertex bytes; callers hash the origin-local
	// mesh and carry placement in the instance transform instead.
	d, _ := Box(2, 1, 3, v3.Vec{X: 5})
	if Hash(a) == Hash(d) {
		t.Error("translated vertices must change the content hash")
	}
}

func TestValidateCatchesBrokenMeshes(t *testing.T) {
	cases := map[string]*Mesh{
		"empty":            {},
		"ragged vertices":  {Vertices: []float32{0, 0}, Indices: []uint32{0, 0, 0}},
		"ragged indices":   {Vertices: []float32{0, 0, 0}, Indices: []uint32{0, 0}},
		"index overflow":   {Vertices: []float32{0, 0, 0}, Indices: []uint32{0, 0, 7}},
		"nan vertex":       {Vertices: []float32{float32(math.NaN()), 0, 0}, Indices: []uint32{0, 0, 0}},
		"mismatch normals": {Vertices: []float32{0, 0, 0}, Normals: []float32{0, 0, 0, 1, 1, 1}, Indices: []uint32{0, 0, 0}},
	}
	for name, m := range cases {
		err := m.Validate()
		var invalid *InvalidError
		if !errors.As(err, &invalid) {
			t.Errorf("%s: err = %v, want InvalidError", name, err)
		}
	}
}
