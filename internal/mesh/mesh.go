// Package mesh holds triangle meshes: loading from Wavefront OBJ, rigid
// rotation about the centroid, plane slicing and decimation.
package mesh

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Mesh is an indexed triangle mesh. Faces hold 0-based vertex indices.
// Normals are per-vertex, area weighted, and kept in step with Vertices.
type Mesh struct {
	Vertices []mgl64.Vec3
	Faces    [][3]int
	Normals  []mgl64.Vec3
}

// New validates the face indices and computes vertex normals.
func New(vertices []mgl64.Vec3, faces [][3]int) (*Mesh, error) {
	for i, f := range faces {
		for _, idx := range f {
			if idx < 0 || idx >= len(vertices) {
				return nil, fmt.Errorf("face %d references vertex %d of %d", i, idx, len(vertices))
			}
		}
	}
	m := &Mesh{Vertices: vertices, Faces: faces}
	m.ComputeNormals()
	return m, nil
}

// ComputeNormals recomputes area-weighted vertex normals. Vertices touched
// by no face (or only degenerate faces) get a zero normal.
func (m *Mesh) ComputeNormals() {
	normals := make([]mgl64.Vec3, len(m.Vertices))
	for _, f := range m.Faces {
		n := m.faceNormal(f)
		for _, idx := range f {
			normals[idx] = normals[idx].Add(n)
		}
	}
	for i, n := range normals {
		if l := n.Len(); l > 0 {
			normals[i] = n.Mul(1 / l)
		}
	}
	m.Normals = normals
}

// faceNormal is the unnormalized face normal; its length is twice the area.
func (m *Mesh) faceNormal(f [3]int) mgl64.Vec3 {
	a, b, c := m.Vertices[f[0]], m.Vertices[f[1]], m.Vertices[f[2]]
	return b.Sub(a).Cross(c.Sub(a))
}

// Centroid is the mean of the vertex positions.
func (m *Mesh) Centroid() mgl64.Vec3 {
	var sum mgl64.Vec3
	if len(m.Vertices) == 0 {
		return sum
	}
	for _, v := range m.Vertices {
		sum = sum.Add(v)
	}
	return sum.Mul(1 / float64(len(m.Vertices)))
}

// Bounds returns the axis-aligned bounding box corners.
func (m *Mesh) Bounds() (lo, hi mgl64.Vec3) {
	if len(m.Vertices) == 0 {
		return lo, hi
	}
	lo, hi = m.Vertices[0], m.Vertices[0]
	for _, v := range m.Vertices[1:] {
		for k := 0; k < 3; k++ {
			lo[k] = math.Min(lo[k], v[k])
			hi[k] = math.Max(hi[k], v[k])
		}
	}
	return lo, hi
}

// Radius is the largest distance from the centroid to a vertex.
func (m *Mesh) Radius() float64 {
	c := m.Centroid()
	r := 0.0
	for _, v := range m.Vertices {
		r = math.Max(r, v.Sub(c).Len())
	}
	return r
}

// Rotate applies r to every vertex about the centroid, in place. Normals are
// rotated with it.
func (m *Mesh) Rotate(r mgl64.Mat3) {
	c := m.Centroid()
	for i, v := range m.Vertices {
		m.Vertices[i] = r.Mul3x1(v.Sub(c)).Add(c)
	}
	for i, n := range m.Normals {
		m.Normals[i] = r.Mul3x1(n)
	}
}

// Scale multiplies every vertex position by s about the origin.
func (m *Mesh) Scale(s float64) {
	for i, v := range m.Vertices {
		m.Vertices[i] = v.Mul(s)
	}
}

// Clone returns a deep copy.
func (m *Mesh) Clone() *Mesh {
	return &Mesh{
		Vertices: append([]mgl64.Vec3(nil), m.Vertices...),
		Faces:    append([][3]int(nil), m.Faces...),
		Normals:  append([]mgl64.Vec3(nil), m.Normals...),
	}
}

// SliceByPlane returns a new mesh made of the faces that touch or cross the
// plane through origin with the given normal. Unused vertices are dropped.
func (m *Mesh) SliceByPlane(origin, normal mgl64.Vec3) *Mesh {
	dist := make([]float64, len(m.Vertices))
	for i, v := range m.Vertices {
		dist[i] = v.Sub(origin).Dot(normal)
	}

	var kept [][3]int
	for _, f := range m.Faces {
		lo := math.Min(dist[f[0]], math.Min(dist[f[1]], dist[f[2]]))
		hi := math.Max(dist[f[0]], math.Max(dist[f[1]], dist[f[2]]))
		if lo*hi <= 0 {
			kept = append(kept, f)
		}
	}
	return m.subset(kept)
}

// subset builds a compact mesh from a face list that indexes m.Vertices.
func (m *Mesh) subset(faces [][3]int) *Mesh {
	remap := make(map[int]int)
	out := &Mesh{}
	for _, f := range faces {
		var nf [3]int
		for k, idx := range f {
			j, ok := remap[idx]
			if !ok {
				j = len(out.Vertices)
				remap[idx] = j
				out.Vertices = append(out.Vertices, m.Vertices[idx])
			}
			nf[k] = j
		}
		out.Faces = append(out.Faces, nf)
	}
	out.ComputeNormals()
	return out
}
