package mesh

import (
	"github.com/fogleman/simplify"
	"github.com/go-gl/mathgl/mgl64"
)

// Decimate returns a copy reduced to roughly maxFaces faces by quadric edge
// collapse. Meshes already at or below maxFaces are cloned unchanged.
func (m *Mesh) Decimate(maxFaces int) *Mesh {
	if maxFaces <= 0 || len(m.Faces) <= maxFaces {
		return m.Clone()
	}

	triangles := make([]*simplify.Triangle, len(m.Faces))
	for i, f := range m.Faces {
		triangles[i] = simplify.NewTriangle(
			toSimplify(m.Vertices[f[0]]),
			toSimplify(m.Vertices[f[1]]),
			toSimplify(m.Vertices[f[2]]),
		)
	}

	factor := float64(maxFaces) / float64(len(m.Faces))
	reduced := simplify.NewMesh(triangles).Simplify(factor)

	out := &Mesh{}
	index := make(map[simplify.Vector]int)
	lookup := func(v simplify.Vector) int {
		if i, ok := index[v]; ok {
			return i
		}
		i := len(out.Vertices)
		index[v] = i
		out.Vertices = append(out.Vertices, mgl64.Vec3{v.X, v.Y, v.Z})
		return i
	}
	for _, t := range reduced.Triangles {
		out.Faces = append(out.Faces, [3]int{lookup(t.V1), lookup(t.V2), lookup(t.V3)})
	}
	out.ComputeNormals()
	return out
}

func toSimplify(v mgl64.Vec3) simplify.Vector {
	return simplify.Vector{X: v[0], Y: v[1], Z: v[2]}
}
