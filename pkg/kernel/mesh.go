package kernel

import (
	"math"

	deepcopy "github.com/tiendc/go-deepcopy"
)

// Mesh is a host-resident triangle mesh.
// Vertices and faces are stored per element; UV, when present, holds one
// coordinate per vertex and only exists after a UV unwrap.
type Mesh struct {
	Vertices [][3]float64 `json:"vertices"`
	Faces    [][3]int     `json:"faces"`
	UV       [][2]float64 `json:"uv,omitempty"`
	Name     string       `json:"name,omitempty"` // source asset this mesh came from
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Vertices)
}

// FaceCount returns the number of triangles.
func (m *Mesh) FaceCount() int {
	return len(m.Faces)
}

// IsEmpty returns true if the mesh has no geometry.
func (m *Mesh) IsEmpty() bool {
	return len(m.Vertices) == 0 && len(m.Faces) == 0
}

// HasUV reports whether the mesh carries a per-vertex UV buffer.
func (m *Mesh) HasUV() bool {
	return len(m.UV) > 0
}

// Validate checks that every face index addresses an existing vertex and
// that UV, if present, has one entry per vertex.
func (m *Mesh) Validate() error {
	if m == nil {
		return InvalidMeshf("nil mesh")
	}
	nv := len(m.Vertices)
	for i, f := range m.Faces {
		for j, idx := range f {
			if idx < 0 || idx >= nv {
				return InvalidMeshf("face %d corner %d references vertex %d, have %d vertices", i, j, idx, nv)
			}
		}
	}
	if len(m.UV) != 0 && len(m.UV) != nv {
		return InvalidMeshf("uv length %d does not match vertex count %d", len(m.UV), nv)
	}
	for i, v := range m.Vertices {
		if math.IsNaN(v[0]) || math.IsNaN(v[1]) || math.IsNaN(v[2]) {
			return InvalidMeshf("vertex %d is NaN", i)
		}
	}
	return nil
}

// Bounds returns the axis-aligned bounding box. An empty mesh has zero bounds.
func (m *Mesh) Bounds() (min, max [3]float64) {
	if len(m.Vertices) == 0 {
		return min, max
	}
	min, max = m.Vertices[0], m.Vertices[0]
	for _, v := range m.Vertices[1:] {
		for i := 0; i < 3; i++ {
			min[i] = math.Min(min[i], v[i])
			max[i] = math.Max(max[i], v[i])
		}
	}
	return min, max
}

// Clone returns a deep copy that shares no buffers with m.
func (m *Mesh) Clone() *Mesh {
	out := &Mesh{}
	if err := deepcopy.Copy(out, *m); err != nil {
		// deepcopy only fails on incompatible types; fall back to a manual copy.
		out = &Mesh{
			Vertices: append([][3]float64(nil), m.Vertices...),
			Faces:    append([][3]int(nil), m.Faces...),
			UV:       append([][2]float64(nil), m.UV...),
			Name:     m.Name,
		}
	}
	return out
}
