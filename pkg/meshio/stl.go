package meshio

import (
	"github.com/chazu/meshforge/pkg/kernel"
	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// decodeSTL reads ascii or binary STL and welds the triangle soup on
// exactly equal positions.
func decodeSTL(path string) (*kernel.Mesh, error) {
	tris, err := render.LoadSTL(path)
	if err != nil {
		return nil, err
	}
	m := &kernel.Mesh{}
	ids := make(map[v3.Vec]int, len(tris))
	vertex := func(v v3.Vec) int {
		if id, ok := ids[v]; ok {
			return id
		}
		id := len(m.Vertices)
		ids[v] = id
		m.Vertices = append(m.Vertices, [3]float64{v.X, v.Y, v.Z})
		return id
	}
	for _, t := range tris {
		m.Faces = append(m.Faces, [3]int{vertex(t[0]), vertex(t[1]), vertex(t[2])})
	}
	return m, nil
}

// encodeSTL writes binary STL. UVs are dropped.
func encodeSTL(path string, m *kernel.Mesh) error {
	tris := make([]*sdf.Triangle3, 0, len(m.Faces))
	vec := func(i int) v3.Vec {
		p := m.Vertices[i]
		return v3.Vec{X: p[0], Y: p[1], Z: p[2]}
	}
	for _, f := range m.Faces {
		tris = append(tris, &sdf.Triangle3{vec(f[0]), vec(f[1]), vec(f[2])})
	}
	return render.SaveSTL(path, tris)
}
