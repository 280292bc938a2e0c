package cpu

import (
	"slices"
	"testing"

	"github.com/chazu/meshforge/pkg/kernel"
	"github.com/chazu/meshforge/pkg/kernel/kerneltest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

// fin returns three triangles sharing the edge (0, 1).
func fin() *kernel.Mesh {
	return &kernel.Mesh{
		Vertices: [][3]float64{{0, 0, 0}, {1, 0, 0}, {0.5, 1, 0}, {0.5, -1, 0}, {0.5, 0, 1}},
		Faces:    [][3]int{{0, 1, 2}, {1, 0, 3}, {0, 1, 4}},
	}
}

func maxEdgeUse(m *kernel.Mesh) int {
	n := 0
	for _, c := range kerneltest.EdgeUse(m) {
		n = max(n, c)
	}
	return n
}

func closed(m *kernel.Mesh) bool {
	for _, c := range kerneltest.EdgeUse(m) {
		if c != 2 {
			return false
		}
	}
	return true
}

func TestRemoveDuplicateFaces(t *testing.T) {
	m := kerneltest.Cube(1)
	f := m.Faces[4]
	m.Faces = append(m.Faces, [3]int{f[0], f[2], f[1]}, f)

	k := New()
	h := load(t, k, m)
	require.NoError(t, k.RemoveDuplicateFaces(h))
	once := read(t, k, h)
	assert.Equal(t, 12, once.FaceCount())
	assert.Equal(t, kerneltest.Cube(1).Faces, once.Faces)

	require.NoError(t, k.RemoveDuplicateFaces(h))
	assert.Equal(t, once, read(t, k, h))
}

func TestSimplify(t *testing.T) {
	sphere := kerneltest.UVSphere(1, 16, 32)
	require.Equal(t, 960, sphere.FaceCount())

	t.Run("reduces", func(t *testing.T) {
		k := New()
		h := load(t, k, sphere)
		require.NoError(t, k.Simplify(h, 400))
		first := read(t, k, h).FaceCount()
		assert.Less(t, first, 960)
		assert.Greater(t, first, 0)

		require.NoError(t, k.Simplify(h, 200))
		assert.LessOrEqual(t, read(t, k, h).FaceCount(), first)
	})

	t.Run("no-op at or below target", func(t *testing.T) {
		k := New()
		h := load(t, k, sphere)
		before := read(t, k, h)
		require.NoError(t, k.Simplify(h, 960))
		assert.Equal(t, before, read(t, k, h))
		require.NoError(t, k.Simplify(h, 5000))
		assert.Equal(t, before, read(t, k, h))
	})
}

func TestFillHoles(t *testing.T) {
	// The open cube's hole has perimeter 4; the cube missing one
	// triangle has a hole of perimeter 2 + sqrt(2).
	missingTri := kerneltest.Cube(1)
	missingTri.Faces = missingTri.Faces[1:]

	tests := []struct {
		name      string
		mesh      *kernel.Mesh
		max       float64
		wantFaces int
		wantVerts int
		wantLoops int
	}{
		{"square hole too large", kerneltest.OpenCube(1), 3.9, 10, 8, 1},
		{"square hole filled", kerneltest.OpenCube(1), 4.1, 14, 9, 0},
		{"triangle hole too large", missingTri, 3, 11, 8, 1},
		{"triangle hole filled", missingTri, 3.5, 12, 8, 0},
		{"tube holes filled", kerneltest.Tube([3]float64{}, 1, 0.5), 4.1, 16, 10, 0},
		{"tube holes kept", kerneltest.Tube([3]float64{}, 1, 0.5), 3.9, 8, 8, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loopsBefore := len(unpack(kerneltest.Buffers(tt.mesh)).boundaryLoops())
			k := New()
			h := load(t, k, tt.mesh)
			require.NoError(t, k.FillHoles(h, tt.max))
			got := read(t, k, h)
			loopsAfter := len(unpack(kerneltest.Buffers(got)).boundaryLoops())
			assert.LessOrEqual(t, loopsAfter, loopsBefore)
			assert.Equal(t, tt.wantLoops, loopsAfter)
			assert.Equal(t, tt.wantFaces, got.FaceCount())
			assert.Equal(t, tt.wantVerts, got.VertexCount())
			if tt.wantFaces == 12 || tt.wantFaces == 14 {
				assert.True(t, closed(got))
				assert.True(t, kerneltest.Consistent(got))
				assert.Greater(t, kerneltest.SignedVolume(got), 0.0)
			}
		})
	}
}

func TestBoundaryLoops(t *testing.T) {
	s := unpack(kerneltest.Buffers(kerneltest.Tube([3]float64{}, 1, 0.5)))
	loops := s.boundaryLoops()
	require.Len(t, loops, 2)
	for _, l := range loops {
		assert.Len(t, l, 4)
		assert.InDelta(t, 4.0, s.perimeter(l), 1e-6)
	}

	s = unpack(kerneltest.Buffers(kerneltest.Cube(1)))
	assert.Empty(t, s.boundaryLoops())
}

func TestCompactKeepsVertexOrder(t *testing.T) {
	s := &soup{
		verts: []r3.Vec{{Y: 1}, {}, {X: 1}, {X: 1, Y: 1}},
		faces: [][3]int{{3, 2, 1}, {3, 1, 0}},
	}
	want := slices.Clone(s.verts)
	s.compact()
	assert.Equal(t, want, s.verts)
	assert.Equal(t, [][3]int{{3, 2, 1}, {3, 1, 0}}, s.faces)

	s.faces = [][3]int{{3, 2, 0}}
	s.compact()
	assert.Equal(t, []r3.Vec{want[0], want[2], want[3]}, s.verts)
	assert.Equal(t, [][3]int{{2, 1, 0}}, s.faces)
}

func TestRepairNonManifoldEdges(t *testing.T) {
	k := New()
	h := load(t, k, fin())
	require.NoError(t, k.RepairNonManifoldEdges(h))
	got := read(t, k, h)
	assert.Equal(t, 3, got.FaceCount())
	assert.Equal(t, 7, got.VertexCount())
	assert.LessOrEqual(t, maxEdgeUse(got), 2)
}

func TestRemoveNonManifoldFaces(t *testing.T) {
	k := New()
	h := load(t, k, fin())
	require.NoError(t, k.RemoveNonManifoldFaces(h))
	got := read(t, k, h)
	assert.Equal(t, [][3]int{{0, 1, 2}, {1, 0, 3}}, got.Faces)
	assert.Equal(t, 4, got.VertexCount())

	// Repaired meshes are left alone.
	h = load(t, k, kerneltest.Cube(1))
	require.NoError(t, k.RemoveNonManifoldFaces(h))
	assert.Equal(t, 12, read(t, k, h).FaceCount())
}

func TestRemoveSmallConnectedComponents(t *testing.T) {
	sliver := &kernel.Mesh{
		Vertices: [][3]float64{{20, 0, 0}, {20.01, 0, 0}, {20, 0.01, 0}},
		Faces:    [][3]int{{0, 1, 2}},
	}
	m := kerneltest.Merge(kerneltest.Cube(10), sliver)

	tests := []struct {
		name      string
		threshold float64
		wantFaces int
	}{
		{"sliver removed", 1e-5, 12},
		{"sliver kept", 1e-9, 13},
		{"everything removed", 9, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := New()
			h := load(t, k, m)
			require.NoError(t, k.RemoveSmallConnectedComponents(h, tt.threshold))
			got := read(t, k, h)
			assert.Equal(t, tt.wantFaces, got.FaceCount())
			require.NoError(t, got.Validate())
		})
	}
}

func TestComponents(t *testing.T) {
	m := kerneltest.Merge(kerneltest.Cube(1), kerneltest.Tube([3]float64{5, 0, 0}, 1, 1))
	s := unpack(kerneltest.Buffers(m))
	labels, n := s.components(s.edgeFaces())
	assert.Equal(t, 2, n)
	assert.Equal(t, 0, labels[0])
	assert.Equal(t, 1, labels[len(labels)-1])
}

func TestUnifyFaceOrientations(t *testing.T) {
	flip := func(m *kernel.Mesh, faces ...int) *kernel.Mesh {
		for _, i := range faces {
			m.Faces[i][1], m.Faces[i][2] = m.Faces[i][2], m.Faces[i][1]
		}
		return m
	}
	tests := []struct {
		name string
		mesh *kernel.Mesh
	}{
		{"two flipped", flip(kerneltest.Cube(2), 3, 7)},
		{"all flipped", flip(kerneltest.Cube(2), 0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11)},
		{"sphere half flipped", flip(kerneltest.UVSphere(1, 8, 8), 0, 2, 4, 6, 20, 21, 40)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := New()
			h := load(t, k, tt.mesh)
			require.NoError(t, k.UnifyFaceOrientations(h))
			got := read(t, k, h)
			assert.Equal(t, tt.mesh.FaceCount(), got.FaceCount())
			assert.True(t, kerneltest.Consistent(got))
			assert.Greater(t, kerneltest.SignedVolume(got), 0.0)
		})
	}
}

func TestUVUnwrap(t *testing.T) {
	k := New()
	h := load(t, k, kerneltest.Cube(1))
	b, uv, err := k.UVUnwrap(h)
	require.NoError(t, err)

	assert.Equal(t, 36, b.VertexCount())
	assert.Equal(t, 12, b.FaceCount())
	require.Len(t, uv, b.VertexCount()*2)
	for _, c := range uv {
		assert.GreaterOrEqual(t, c, float32(0))
		assert.LessOrEqual(t, c, float32(1))
	}

	// The resident mesh is untouched.
	assert.Equal(t, 8, read(t, k, h).VertexCount())
}

func TestUVUnwrapDegenerate(t *testing.T) {
	k := New()
	h := load(t, k, &kernel.Mesh{
		Vertices: [][3]float64{{0, 0, 0}, {1, 0, 0}, {2, 0, 0}},
		Faces:    [][3]int{{0, 1, 2}},
	})
	_, uv, err := k.UVUnwrap(h)
	require.NoError(t, err)
	assert.Len(t, uv, 6)
}
