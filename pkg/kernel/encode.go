package kernel

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"

	"github.com/zeebo/blake3"
)

// Blob layout: a uint32 count header followed by the payload, all
// little-endian. Vertices are IEEE-754 binary32, face indices uint32.
// The layout is the store's wire contract; hashing runs over the exact
// encoded bytes, so float formatting ambiguity never reaches the hash.

// EncodeVertices packs the vertex array as [count][payload].
func EncodeVertices(m *Mesh) []byte {
	buf := make([]byte, 4+4*len(m.Vertices))
	binary.LittleEndian.PutUint32(buf, uint32(m.VertexCount()))
	for i, v := range m.Vertices {
		binary.LittleEndian.PutUint32(buf[4+4*i:], math.Float32bits(v))
	}
	return buf
}

// EncodeFaces packs the index array as [count][payload].
func EncodeFaces(m *Mesh) []byte {
	buf := make([]byte, 4+4*len(m.Indices))
	binary.LittleEndian.PutUint32(buf, uint32(m.TriangleCount()))
	for i, idx := range m.Indices {
		binary.LittleEndian.PutUint32(buf[4+4*i:], idx)
	}
	return buf
}

// EncodeNormals packs the optional normal array, or returns nil.
func EncodeNormals(m *Mesh) []byte {
	if m.Normals == nil {
		return nil
	}
	buf := make([]byte, 4+4*len(m.Normals))
	binary.LittleEndian.PutUint32(buf, uint32(len(m.Normals)/3))
	for i, v := range m.Normals {
		binary.LittleEndian.PutUint32(buf[4+4*i:], math.Float32bits(v))
	}
	return buf
}

// Decode rebuilds a mesh from its encoded vertex/face/normal blobs.
func Decode(vertices, faces, normals []byte) (*Mesh, error) {
	verts, err := decodeF32Blob(vertices, "vertex")
	if err != nil {
		return nil, err
	}
	if len(faces) < 4 {
		return nil, fmt.Errorf("kernel: face blob truncated")
	}
	faceCount := binary.LittleEndian.Uint32(faces)
	if len(faces) != int(4+4*faceCount*3) {
		return nil, fmt.Errorf("kernel: face blob length %d does not match count %d", len(faces), faceCount)
	}
	indices := make([]uint32, 3*faceCount)
	for i := range indices {
		indices[i] = binary.LittleEndian.Uint32(faces[4+4*i:])
	}

	m := &Mesh{Vertices: verts, Indices: indices}
	if normals != nil {
		norms, err := decodeF32Blob(normals, "normal")
		if err != nil {
			return nil, err
		}
		m.Normals = norms
	}
	return m, nil
}

func decodeF32Blob(b []byte, what string) ([]float32, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("kernel: %s blob truncated", what)
	}
	count := binary.LittleEndian.Uint32(b)
	if len(b) != int(4+4*count*3) {
		return nil, fmt.Errorf("kernel: %s blob length %d does not match count %d", what, len(b), count)
	}
	out := make([]float32, 3*count)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4+4*i:]))
	}
	return out, nil
}

// Hash computes the content hash of a mesh: blake3-256 over the encoded
// vertex bytes followed by the encoded face bytes. Deterministic and a
// pure function of shape; placement is applied after hashing.
func Hash(m *Mesh) string {
	h := blake3.New()
	h.Write(EncodeVertices(m))
	h.Write(EncodeFaces(m))
	sum := h.Sum(nil)
	return hex.EncodeToString(sum)
}
