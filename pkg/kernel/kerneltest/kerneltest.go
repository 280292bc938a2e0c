// Package kerneltest provides mesh fixtures for tests of kernels, stages
// and pipelines.
package kerneltest

import (
	"math"

	"github.com/chazu/meshforge/pkg/kernel"
)

// cubeFaces are the twelve outward-facing triangles of the unit cube
// spanned by cubeCorners.
var cubeFaces = [][3]int{
	{0, 2, 1}, {0, 3, 2}, // z = 0
	{4, 5, 6}, {4, 6, 7}, // z = 1
	{0, 1, 5}, {0, 5, 4}, // y = 0
	{3, 7, 6}, {3, 6, 2}, // y = 1
	{0, 4, 7}, {0, 7, 3}, // x = 0
	{1, 2, 6}, {1, 6, 5}, // x = 1
}

var cubeCorners = [][3]float64{
	{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0},
	{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1},
}

// Cube returns a closed, outward-oriented cube with its minimum corner at
// the origin: 8 vertices, 12 faces.
func Cube(side float64) *kernel.Mesh {
	m := &kernel.Mesh{Name: "cube"}
	for _, c := range cubeCorners {
		m.Vertices = append(m.Vertices, [3]float64{c[0] * side, c[1] * side, c[2] * side})
	}
	m.Faces = append(m.Faces, cubeFaces...)
	return m
}

// OpenCube returns Cube without its top (z = side) face: 8 vertices,
// 10 faces and one square boundary loop of perimeter 4*side.
func OpenCube(side float64) *kernel.Mesh {
	m := Cube(side)
	m.Name = "open_cube"
	m.Faces = append(m.Faces[:2:2], m.Faces[4:]...)
	return m
}

// Tube returns an open square tube of the given side and height with its
// minimum corner at origin: 8 vertices, 8 faces, and two boundary loops of
// perimeter 4*side.
func Tube(origin [3]float64, side, height float64) *kernel.Mesh {
	m := &kernel.Mesh{Name: "tube"}
	ring := [][2]float64{{0, 0}, {1, 0}, {1, 1}, {0, 1}}
	for _, z := range []float64{0, height} {
		for _, p := range ring {
			m.Vertices = append(m.Vertices, [3]float64{
				origin[0] + p[0]*side,
				origin[1] + p[1]*side,
				origin[2] + z,
			})
		}
	}
	for i := 0; i < 4; i++ {
		j := (i + 1) % 4
		m.Faces = append(m.Faces, [3]int{i, j, j + 4}, [3]int{i, j + 4, i + 4})
	}
	return m
}

// UVSphere returns a closed, outward-oriented latitude/longitude sphere
// centered at the origin with 2*slices*(stacks-1) faces.
func UVSphere(radius float64, stacks, slices int) *kernel.Mesh {
	m := &kernel.Mesh{Name: "sphere"}
	m.Vertices = append(m.Vertices, [3]float64{0, 0, radius})
	for i := 1; i < stacks; i++ {
		theta := math.Pi * float64(i) / float64(stacks)
		for j := 0; j < slices; j++ {
			phi := 2 * math.Pi * float64(j) / float64(slices)
			m.Vertices = append(m.Vertices, [3]float64{
				radius * math.Sin(theta) * math.Cos(phi),
				radius * math.Sin(theta) * math.Sin(phi),
				radius * math.Cos(theta),
			})
		}
	}
	m.Vertices = append(m.Vertices, [3]float64{0, 0, -radius})
	south := len(m.Vertices) - 1

	ring := func(i, j int) int { return 1 + (i-1)*slices + (j % slices) }
	for j := 0; j < slices; j++ {
		m.Faces = append(m.Faces, [3]int{0, ring(1, j), ring(1, j+1)})
	}
	for i := 1; i < stacks-1; i++ {
		for j := 0; j < slices; j++ {
			a, b, c, d := ring(i, j), ring(i+1, j), ring(i+1, j+1), ring(i, j+1)
			m.Faces = append(m.Faces, [3]int{a, b, c}, [3]int{a, c, d})
		}
	}
	for j := 0; j < slices; j++ {
		m.Faces = append(m.Faces, [3]int{south, ring(stacks-1, j+1), ring(stacks-1, j)})
	}
	return m
}

// Merge concatenates meshes into one, offsetting face indices.
func Merge(meshes ...*kernel.Mesh) *kernel.Mesh {
	out := &kernel.Mesh{}
	for _, m := range meshes {
		base := len(out.Vertices)
		out.Vertices = append(out.Vertices, m.Vertices...)
		for _, f := range m.Faces {
			out.Faces = append(out.Faces, [3]int{f[0] + base, f[1] + base, f[2] + base})
		}
	}
	return out
}

// Buffers flattens m into kernel buffers.
func Buffers(m *kernel.Mesh) kernel.Buffers {
	b := kernel.Buffers{
		Vertices: make([]float32, 0, len(m.Vertices)*3),
		Faces:    make([]int32, 0, len(m.Faces)*3),
	}
	for _, v := range m.Vertices {
		b.Vertices = append(b.Vertices, float32(v[0]), float32(v[1]), float32(v[2]))
	}
	for _, f := range m.Faces {
		b.Faces = append(b.Faces, int32(f[0]), int32(f[1]), int32(f[2]))
	}
	return b
}

// Mesh expands kernel buffers into a host mesh.
func Mesh(b kernel.Buffers) *kernel.Mesh {
	m := &kernel.Mesh{
		Vertices: make([][3]float64, b.VertexCount()),
		Faces:    make([][3]int, b.FaceCount()),
	}
	for i := range m.Vertices {
		m.Vertices[i] = [3]float64{float64(b.Vertices[i*3]), float64(b.Vertices[i*3+1]), float64(b.Vertices[i*3+2])}
	}
	for i := range m.Faces {
		m.Faces[i] = [3]int{int(b.Faces[i*3]), int(b.Faces[i*3+1]), int(b.Faces[i*3+2])}
	}
	return m
}

// EdgeUse counts, for every undirected edge, the faces using it.
func EdgeUse(m *kernel.Mesh) map[[2]int]int {
	use := make(map[[2]int]int)
	for _, f := range m.Faces {
		for c := 0; c < 3; c++ {
			a, b := f[c], f[(c+1)%3]
			if a > b {
				a, b = b, a
			}
			use[[2]int{a, b}]++
		}
	}
	return use
}

// SignedVolume returns the volume enclosed by m, positive when the faces
// point outward. It is only meaningful for closed meshes.
func SignedVolume(m *kernel.Mesh) float64 {
	var vol float64
	for _, f := range m.Faces {
		a, b, c := m.Vertices[f[0]], m.Vertices[f[1]], m.Vertices[f[2]]
		vol += a[0]*(b[1]*c[2]-b[2]*c[1]) -
			a[1]*(b[0]*c[2]-b[2]*c[0]) +
			a[2]*(b[0]*c[1]-b[1]*c[0])
	}
	return vol / 6
}

// Consistent reports whether every edge shared by two faces is traversed
// in opposite directions by them.
func Consistent(m *kernel.Mesh) bool {
	seen := make(map[[2]int]int)
	for _, f := range m.Faces {
		for c := 0; c < 3; c++ {
			seen[[2]int{f[c], f[(c+1)%3]}]++
		}
	}
	for _, n := range seen {
		if n > 1 {
			return false
		}
	}
	return true
}
