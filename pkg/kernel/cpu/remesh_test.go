package cpu

import (
	"math"
	"testing"

	"github.com/chazu/meshforge/pkg/kernel"
	"github.com/chazu/meshforge/pkg/kernel/kerneltest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func cubeParams(side float64, resolution int) kernel.RemeshParams {
	c := float32(side / 2)
	return kernel.RemeshParams{
		Center:      [3]float32{c, c, c},
		Scale:       float32(side),
		Resolution:  resolution,
		Band:        1,
		ProjectBack: 0.9,
	}
}

func TestRemeshCube(t *testing.T) {
	k := New()
	src := kerneltest.Buffers(kerneltest.Cube(10))

	out, err := k.Remesh(src, cubeParams(10, 16))
	require.NoError(t, err)
	require.Greater(t, out.FaceCount(), 0)

	m := kerneltest.Mesh(out)
	require.NoError(t, m.Validate())
	lo, hi := m.Bounds()
	for i := 0; i < 3; i++ {
		assert.GreaterOrEqual(t, lo[i], -1.0)
		assert.LessOrEqual(t, hi[i], 11.0)
	}
	assert.InDelta(t, 1000, math.Abs(kerneltest.SignedVolume(m)), 250)

	// A prebuilt BVH gives the same surface.
	tree, err := k.BuildBVH(src)
	require.NoError(t, err)
	assert.Equal(t, 12, tree.Triangles())
	p := cubeParams(10, 16)
	p.BVH = tree
	again, err := k.Remesh(src, p)
	require.NoError(t, err)
	assert.Equal(t, out.FaceCount(), again.FaceCount())
	assert.Equal(t, out.VertexCount(), again.VertexCount())

	assert.Equal(t, int64(0), k.LiveBytes())
}

func TestRemeshProjectBack(t *testing.T) {
	k := New()
	src := kerneltest.Buffers(kerneltest.UVSphere(5, 16, 32))
	p := kernel.RemeshParams{Scale: 10, Resolution: 32, Band: 1, ProjectBack: 1}

	out, err := k.Remesh(src, p)
	require.NoError(t, err)
	tree := newBVH(unpack(src))
	for _, v := range unpack(out).verts {
		_, _, d, ok := tree.closest(v)
		require.True(t, ok)
		assert.Less(t, d, 1e-3)
	}
}

func TestRemeshErrors(t *testing.T) {
	cube := kerneltest.Buffers(kerneltest.Cube(10))
	tests := []struct {
		name string
		k    *Kernel
		b    kernel.Buffers
		p    kernel.RemeshParams
	}{
		{"grid too large", New(WithMaxGridPoints(1000)), cube, cubeParams(10, 16)},
		{"zero scale", New(), cube, kernel.RemeshParams{Resolution: 16, Band: 1}},
		{"zero resolution", New(), cube, kernel.RemeshParams{Scale: 10, Band: 1}},
		{"foreign bvh", New(), cube, kernel.RemeshParams{Scale: 10, Resolution: 16, BVH: fakeBVH{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.k.Remesh(tt.b, tt.p)
			assert.ErrorIs(t, err, kernel.ErrKernelFailure)
		})
	}

	_, err := New().Remesh(kernel.Buffers{Vertices: []float32{0, 0, 0}, Faces: []int32{0, 0, 3}}, cubeParams(1, 16))
	assert.ErrorIs(t, err, kernel.ErrInvalidMesh)
}

type fakeBVH struct{}

func (fakeBVH) Triangles() int { return 0 }

func TestRemeshEmpty(t *testing.T) {
	out, err := New().Remesh(kernel.Buffers{}, cubeParams(1, 16))
	require.NoError(t, err)
	assert.Equal(t, 0, out.FaceCount())
}

func TestTriangleClosest(t *testing.T) {
	tri := &triangle{
		a: r3.Vec{X: 0, Y: 0, Z: 0},
		b: r3.Vec{X: 1, Y: 0, Z: 0},
		c: r3.Vec{X: 0, Y: 1, Z: 0},
		n: r3.Vec{Z: 1},
	}
	tests := []struct {
		name string
		p    r3.Vec
		want r3.Vec
	}{
		{"above interior", r3.Vec{X: 0.25, Y: 0.25, Z: 3}, r3.Vec{X: 0.25, Y: 0.25}},
		{"vertex a", r3.Vec{X: -1, Y: -1, Z: 0}, r3.Vec{}},
		{"vertex b", r3.Vec{X: 2, Y: -1, Z: 1}, r3.Vec{X: 1}},
		{"vertex c", r3.Vec{X: -0.5, Y: 2, Z: 0}, r3.Vec{Y: 1}},
		{"edge ab", r3.Vec{X: 0.5, Y: -1, Z: 0}, r3.Vec{X: 0.5}},
		{"edge ac", r3.Vec{X: -1, Y: 0.5, Z: 0}, r3.Vec{Y: 0.5}},
		{"edge bc", r3.Vec{X: 1, Y: 1, Z: 0}, r3.Vec{X: 0.5, Y: 0.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tri.closest(tt.p)
			assert.InDelta(t, 0, r3.Norm(r3.Sub(got, tt.want)), 1e-12)
		})
	}

	flat := &triangle{a: r3.Vec{}, b: r3.Vec{X: 1}, c: r3.Vec{X: 2}}
	got := flat.closest(r3.Vec{X: 1.5, Y: 1})
	assert.InDelta(t, 0, r3.Norm(r3.Sub(got, r3.Vec{X: 1.5})), 1e-12)
}

func TestBVHClosestSign(t *testing.T) {
	tree := newBVH(unpack(kerneltest.Buffers(kerneltest.Cube(2))))
	tests := []struct {
		name    string
		p       r3.Vec
		outside bool
	}{
		{"outside face", r3.Vec{X: 1, Y: 1, Z: 2.5}, true},
		{"inside face", r3.Vec{X: 1, Y: 1, Z: 1.8}, false},
		{"outside edge", r3.Vec{X: 2.3, Y: 1, Z: 2.3}, true},
		{"outside corner", r3.Vec{X: 2.2, Y: 2.2, Z: 2.2}, true},
		{"inside corner", r3.Vec{X: 1.8, Y: 1.8, Z: 1.9}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cp, n, _, ok := tree.closest(tt.p)
			require.True(t, ok)
			assert.Equal(t, tt.outside, r3.Dot(r3.Sub(tt.p, cp), n) > 0)
		})
	}
}
