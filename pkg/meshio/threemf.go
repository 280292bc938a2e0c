package meshio

import (
	"github.com/chazu/meshforge/pkg/kernel"
	"github.com/hpinc/go3mf"
)

// decode3MF flattens the mesh objects of the package's resources. Build
// item transforms and component references are not applied.
func decode3MF(path string) (*kernel.Mesh, error) {
	r, err := go3mf.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var model go3mf.Model
	if err := r.Decode(&model); err != nil {
		return nil, err
	}
	m := &kernel.Mesh{}
	for _, obj := range model.Resources.Objects {
		if obj.Mesh == nil {
			continue
		}
		base := len(m.Vertices)
		for _, v := range obj.Mesh.Vertices.Vertex {
			m.Vertices = append(m.Vertices, [3]float64{float64(v[0]), float64(v[1]), float64(v[2])})
		}
		for _, t := range obj.Mesh.Triangles.Triangle {
			m.Faces = append(m.Faces, [3]int{base + int(t.V1), base + int(t.V2), base + int(t.V3)})
		}
	}
	return m, nil
}

// encode3MF writes one mesh object and one build item.
func encode3MF(path string, m *kernel.Mesh) error {
	mesh := &go3mf.Mesh{}
	for _, v := range m.Vertices {
		mesh.Vertices.Vertex = append(mesh.Vertices.Vertex, go3mf.Point3D{float32(v[0]), float32(v[1]), float32(v[2])})
	}
	for _, f := range m.Faces {
		mesh.Triangles.Triangle = append(mesh.Triangles.Triangle, go3mf.Triangle{
			V1: uint32(f[0]), V2: uint32(f[1]), V3: uint32(f[2]),
		})
	}
	model := go3mf.Model{}
	model.Resources.Objects = append(model.Resources.Objects, &go3mf.Object{
		ID:   1,
		Name: m.Name,
		Mesh: mesh,
	})
	model.Build.Items = append(model.Build.Items, &go3mf.Item{ObjectID: 1})

	w, err := go3mf.CreateWriter(path)
	if err != nil {
		return err
	}
	if err := w.Encode(&model); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
