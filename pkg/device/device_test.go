package device

import (
	"errors"
	"testing"

	"github.com/chazu/meshforge/pkg/kernel"
	"github.com/chazu/meshforge/pkg/kernel/cpu"
	"github.com/chazu/meshforge/pkg/kernel/kerneltest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadDownloadRoundTrip(t *testing.T) {
	k := cpu.New()
	src := kerneltest.Cube(3)
	src.Name = "crate"

	d, err := Upload(k, src)
	require.NoError(t, err)
	assert.Equal(t, "crate", d.Name())
	nv, nf, err := d.Counts()
	require.NoError(t, err)
	assert.Equal(t, 8, nv)
	assert.Equal(t, 12, nf)

	got, err := d.Download()
	require.NoError(t, err)
	assert.Equal(t, src, got)
	assert.True(t, d.Consumed())
	assert.Equal(t, 0, k.LiveHandles())
}

func TestConsumedHandle(t *testing.T) {
	k := cpu.New()
	d, err := Upload(k, kerneltest.Cube(1))
	require.NoError(t, err)
	_, err = d.Download()
	require.NoError(t, err)

	_, err = d.Download()
	assert.ErrorIs(t, err, ErrConsumedHandle)
	_, err = d.Handle()
	assert.ErrorIs(t, err, ErrConsumedHandle)
	_, _, err = d.Counts()
	assert.ErrorIs(t, err, ErrConsumedHandle)
	assert.ErrorIs(t, d.Apply("noop", func(kernel.Kernel, kernel.Handle) error { return nil }), ErrConsumedHandle)
	assert.ErrorIs(t, d.Replace("noop", kernel.Buffers{}, nil), ErrConsumedHandle)

	// Release after consume is a no-op.
	assert.NoError(t, d.Release())
	assert.NoError(t, d.Release())
}

func TestUploadInvalid(t *testing.T) {
	k := cpu.New()
	tests := []struct {
		name string
		mesh *kernel.Mesh
	}{
		{"nil", nil},
		{"index out of range", &kernel.Mesh{Vertices: [][3]float64{{0, 0, 0}}, Faces: [][3]int{{0, 0, 1}}}},
		{"uv length", &kernel.Mesh{Vertices: [][3]float64{{0, 0, 0}}, UV: [][2]float64{{0, 0}, {1, 1}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Upload(k, tt.mesh)
			assert.ErrorIs(t, err, kernel.ErrInvalidMesh)
			assert.Equal(t, 0, k.LiveHandles())
		})
	}
}

func TestApplyWrapsFailure(t *testing.T) {
	k := cpu.New()
	d, err := Upload(k, kerneltest.Cube(1))
	require.NoError(t, err)
	defer d.Release()

	boom := errors.New("boom")
	err = d.Apply("explode", func(kernel.Kernel, kernel.Handle) error { return boom })
	assert.ErrorIs(t, err, kernel.ErrKernelFailure)
	assert.ErrorIs(t, err, boom)
	var fe *kernel.FailureError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "explode", fe.Op)
}

func TestUVPolicy(t *testing.T) {
	k := cpu.New()
	src := kerneltest.OpenCube(1)
	src.UV = make([][2]float64, src.VertexCount())

	t.Run("kept when vertex buffer unchanged", func(t *testing.T) {
		d, err := Upload(k, src)
		require.NoError(t, err)
		defer d.Release()
		require.NoError(t, d.Apply("dedupe", func(k kernel.Kernel, h kernel.Handle) error {
			return k.RemoveDuplicateFaces(h)
		}))
		assert.True(t, d.HasUV())
		got, err := d.Download()
		require.NoError(t, err)
		assert.Len(t, got.UV, got.VertexCount())
	})

	t.Run("dropped when vertices change", func(t *testing.T) {
		d, err := Upload(k, src)
		require.NoError(t, err)
		defer d.Release()
		require.NoError(t, d.Apply("fill", func(k kernel.Kernel, h kernel.Handle) error {
			return k.FillHoles(h, 10)
		}))
		assert.False(t, d.HasUV())
		got, err := d.Download()
		require.NoError(t, err)
		assert.False(t, got.HasUV())
	})
	assert.Equal(t, 0, k.LiveHandles())
}

func TestReplace(t *testing.T) {
	k := cpu.New()
	d, err := Upload(k, kerneltest.Cube(1))
	require.NoError(t, err)
	defer d.Release()

	b, uv, err := k.UVUnwrap(mustHandle(t, d))
	require.NoError(t, err)
	require.NoError(t, d.Replace("unwrap", b, uv))
	assert.Equal(t, 1, k.LiveHandles())
	assert.True(t, d.HasUV())

	err = d.Replace("unwrap", b, uv[:4])
	assert.ErrorIs(t, err, kernel.ErrKernelFailure)
	assert.True(t, d.HasUV())

	got, err := d.Download()
	require.NoError(t, err)
	assert.Equal(t, 36, got.VertexCount())
	assert.Len(t, got.UV, 36)
	assert.Equal(t, 0, k.LiveHandles())
}

func TestReleaseFreesKernelMemory(t *testing.T) {
	k := cpu.New()
	d, err := Upload(k, kerneltest.UVSphere(1, 8, 8))
	require.NoError(t, err)
	assert.Greater(t, k.LiveBytes(), int64(0))
	require.NoError(t, d.Release())
	assert.Equal(t, int64(0), k.LiveBytes())

	var nilMesh *Mesh
	assert.NoError(t, nilMesh.Release())
}

func mustHandle(t *testing.T, d *Mesh) kernel.Handle {
	t.Helper()
	h, err := d.Handle()
	require.NoError(t, err)
	return h
}
