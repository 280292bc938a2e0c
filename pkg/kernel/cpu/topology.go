package cpu

import (
	"cmp"
	"math"
	"slices"

	"github.com/chazu/meshforge/pkg/kernel"
	"gonum.org/v1/gonum/spatial/r3"
)

// soup is the working representation the CPU operations run on.
type soup struct {
	verts []r3.Vec
	faces [][3]int
}

func unpack(b kernel.Buffers) *soup {
	s := &soup{
		verts: make([]r3.Vec, b.VertexCount()),
		faces: make([][3]int, b.FaceCount()),
	}
	for i := range s.verts {
		s.verts[i] = r3.Vec{
			X: float64(b.Vertices[i*3]),
			Y: float64(b.Vertices[i*3+1]),
			Z: float64(b.Vertices[i*3+2]),
		}
	}
	for i := range s.faces {
		s.faces[i] = [3]int{int(b.Faces[i*3]), int(b.Faces[i*3+1]), int(b.Faces[i*3+2])}
	}
	return s
}

func (s *soup) pack() kernel.Buffers {
	b := kernel.Buffers{
		Vertices: make([]float32, 0, len(s.verts)*3),
		Faces:    make([]int32, 0, len(s.faces)*3),
	}
	for _, v := range s.verts {
		b.Vertices = append(b.Vertices, float32(v.X), float32(v.Y), float32(v.Z))
	}
	for _, f := range s.faces {
		b.Faces = append(b.Faces, int32(f[0]), int32(f[1]), int32(f[2]))
	}
	return b
}

// edge is an undirected edge with a < b.
type edge struct {
	a, b int
}

func undirected(a, b int) edge {
	if a > b {
		a, b = b, a
	}
	return edge{a, b}
}

func compareEdges(x, y edge) int {
	if c := cmp.Compare(x.a, y.a); c != 0 {
		return c
	}
	return cmp.Compare(x.b, y.b)
}

// faceEdges returns the three undirected edges of f.
func faceEdges(f [3]int) [3]edge {
	return [3]edge{undirected(f[0], f[1]), undirected(f[1], f[2]), undirected(f[2], f[0])}
}

// hasDirected reports whether f traverses a then b.
func hasDirected(f [3]int, a, b int) bool {
	for c := 0; c < 3; c++ {
		if f[c] == a && f[(c+1)%3] == b {
			return true
		}
	}
	return false
}

func contains(f [3]int, v int) bool {
	return f[0] == v || f[1] == v || f[2] == v
}

func degenerate(f [3]int) bool {
	return f[0] == f[1] || f[1] == f[2] || f[2] == f[0]
}

// edgeFaces maps every undirected edge to the faces using it, in face order.
func (s *soup) edgeFaces() map[edge][]int {
	ef := make(map[edge][]int, len(s.faces)*3/2)
	for i, f := range s.faces {
		for _, e := range faceEdges(f) {
			ef[e] = append(ef[e], i)
		}
	}
	return ef
}

// sortedEdges returns the keys of ef in a deterministic order.
func sortedEdges(ef map[edge][]int) []edge {
	keys := make([]edge, 0, len(ef))
	for e := range ef {
		keys = append(keys, e)
	}
	slices.SortFunc(keys, compareEdges)
	return keys
}

// keepFaces retains faces for which keep returns true.
func (s *soup) keepFaces(keep func(i int) bool) {
	out := s.faces[:0:0]
	for i, f := range s.faces {
		if keep(i) {
			out = append(out, f)
		}
	}
	s.faces = out
}

// compact drops vertices no face references. Kept vertices stay in their
// original order.
func (s *soup) compact() {
	used := make([]bool, len(s.verts))
	for _, f := range s.faces {
		for _, v := range f {
			used[v] = true
		}
	}
	if !slices.Contains(used, false) {
		return
	}
	remap := make([]int, len(s.verts))
	verts := make([]r3.Vec, 0, len(s.verts))
	for i, v := range s.verts {
		if used[i] {
			remap[i] = len(verts)
			verts = append(verts, v)
		}
	}
	for fi, f := range s.faces {
		for c, v := range f {
			s.faces[fi][c] = remap[v]
		}
	}
	s.verts = verts
}

func (s *soup) normal(f [3]int) r3.Vec {
	return r3.Cross(r3.Sub(s.verts[f[1]], s.verts[f[0]]), r3.Sub(s.verts[f[2]], s.verts[f[0]]))
}

func (s *soup) area(f [3]int) float64 {
	return r3.Norm(s.normal(f)) / 2
}

// extent returns the largest side of the axis-aligned bounding box.
func (s *soup) extent() float64 {
	if len(s.verts) == 0 {
		return 0
	}
	box := r3.Box{Min: s.verts[0], Max: s.verts[0]}
	for _, v := range s.verts[1:] {
		box.Min = r3.Vec{X: math.Min(box.Min.X, v.X), Y: math.Min(box.Min.Y, v.Y), Z: math.Min(box.Min.Z, v.Z)}
		box.Max = r3.Vec{X: math.Max(box.Max.X, v.X), Y: math.Max(box.Max.Y, v.Y), Z: math.Max(box.Max.Z, v.Z)}
	}
	d := r3.Sub(box.Max, box.Min)
	return math.Max(d.X, math.Max(d.Y, d.Z))
}

// components labels faces by edge-connected component. It returns the
// label of every face and the number of components; labels are assigned in
// order of each component's lowest face index.
func (s *soup) components(ef map[edge][]int) ([]int, int) {
	parent := make([]int, len(s.faces))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	for _, fs := range ef {
		for _, other := range fs[1:] {
			ra, rb := find(fs[0]), find(other)
			if ra != rb {
				if ra < rb {
					parent[rb] = ra
				} else {
					parent[ra] = rb
				}
			}
		}
	}

	labels := make([]int, len(s.faces))
	ids := make(map[int]int)
	for i := range s.faces {
		root := find(i)
		id, ok := ids[root]
		if !ok {
			id = len(ids)
			ids[root] = id
		}
		labels[i] = id
	}
	return labels, len(ids)
}
