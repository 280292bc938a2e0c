package meshio

import (
	"fmt"

	"github.com/chazu/meshforge/pkg/kernel"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
)

// decodeGLTF flattens every triangle primitive of every mesh in the
// document into one mesh. Node transforms are not applied. UVs are kept
// only when every primitive carries TEXCOORD_0.
func decodeGLTF(path string) (*kernel.Mesh, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, err
	}
	m := &kernel.Mesh{}
	var uv [][2]float64
	allUV := true
	for mi, mesh := range doc.Meshes {
		for pi, prim := range mesh.Primitives {
			if prim.Mode != gltf.PrimitiveTriangles {
				continue
			}
			posIdx, ok := prim.Attributes[gltf.POSITION]
			if !ok {
				continue
			}
			pos, err := modeler.ReadPosition(doc, doc.Accessors[posIdx], nil)
			if err != nil {
				return nil, fmt.Errorf("mesh %d primitive %d: positions: %w", mi, pi, err)
			}
			base := len(m.Vertices)
			for _, p := range pos {
				m.Vertices = append(m.Vertices, [3]float64{float64(p[0]), float64(p[1]), float64(p[2])})
			}

			var idx []uint32
			if prim.Indices != nil {
				idx, err = modeler.ReadIndices(doc, doc.Accessors[*prim.Indices], nil)
				if err != nil {
					return nil, fmt.Errorf("mesh %d primitive %d: indices: %w", mi, pi, err)
				}
			} else {
				idx = make([]uint32, len(pos))
				for i := range idx {
					idx[i] = uint32(i)
				}
			}
			for i := 0; i+2 < len(idx); i += 3 {
				m.Faces = append(m.Faces, [3]int{base + int(idx[i]), base + int(idx[i+1]), base + int(idx[i+2])})
			}

			tcIdx, ok := prim.Attributes[gltf.TEXCOORD_0]
			if !ok || !allUV {
				allUV = false
				continue
			}
			tc, err := modeler.ReadTextureCoord(doc, doc.Accessors[tcIdx], nil)
			if err != nil || len(tc) != len(pos) {
				allUV = false
				continue
			}
			for _, t := range tc {
				uv = append(uv, [2]float64{float64(t[0]), float64(t[1])})
			}
		}
	}
	if allUV && len(uv) == len(m.Vertices) && len(uv) > 0 {
		m.UV = uv
	}
	return m, nil
}

// encodeGLB writes a binary glTF with one mesh, one primitive and one
// node.
func encodeGLB(path string, m *kernel.Mesh) error {
	doc := gltf.NewDocument()

	pos := make([][3]float32, len(m.Vertices))
	for i, v := range m.Vertices {
		pos[i] = [3]float32{float32(v[0]), float32(v[1]), float32(v[2])}
	}
	idx := make([]uint32, 0, len(m.Faces)*3)
	for _, f := range m.Faces {
		idx = append(idx, uint32(f[0]), uint32(f[1]), uint32(f[2]))
	}

	attrs := gltf.Attribute{gltf.POSITION: modeler.WritePosition(doc, pos)}
	if m.HasUV() {
		tc := make([][2]float32, len(m.UV))
		for i, t := range m.UV {
			tc[i] = [2]float32{float32(t[0]), float32(t[1])}
		}
		attrs[gltf.TEXCOORD_0] = modeler.WriteTextureCoord(doc, tc)
	}
	name := m.Name
	if name == "" {
		name = "mesh"
	}
	doc.Meshes = []*gltf.Mesh{{
		Name: name,
		Primitives: []*gltf.Primitive{{
			Indices:    gltf.Index(modeler.WriteIndices(doc, idx)),
			Attributes: attrs,
		}},
	}}
	doc.Nodes = []*gltf.Node{{Name: name, Mesh: gltf.Index(0)}}
	doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, 0)
	return gltf.SaveBinary(doc, path)
}
