// Package device holds meshes resident in kernel memory.
//
// A Mesh is the only owner of its kernel handle. Upload and Download are
// the only points where data crosses between host and kernel memory; every
// stage in between works on the resident buffers. After Download or Release
// the Mesh is consumed and every further use fails with ErrConsumedHandle.
package device

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/chazu/meshforge/pkg/kernel"
)

// ErrConsumedHandle is returned by every method of a Mesh that has been
// downloaded or released.
var ErrConsumedHandle = errors.New("device mesh already consumed")

// Mesh is a mesh resident in kernel memory.
// A Mesh is not safe for concurrent use.
type Mesh struct {
	k        kernel.Kernel
	h        kernel.Handle
	uv       []float32 // two per vertex, nil when absent
	name     string
	log      *slog.Logger
	consumed bool
}

// Upload validates m and copies it into kernel memory. Positions are
// narrowed to float32 and indices to int32. Nothing is allocated in the
// kernel when m is invalid.
func Upload(k kernel.Kernel, m *kernel.Mesh) (*Mesh, error) {
	b, err := toBuffers(m)
	if err != nil {
		return nil, err
	}
	h, err := k.Init(b)
	if err != nil {
		return nil, kernel.Failure("init", err)
	}
	d := &Mesh{k: k, h: h, name: m.Name}
	if m.HasUV() {
		d.uv = make([]float32, 0, len(m.UV)*2)
		for _, t := range m.UV {
			d.uv = append(d.uv, float32(t[0]), float32(t[1]))
		}
	}
	return d, nil
}

// Kernel returns the kernel the mesh lives in.
func (d *Mesh) Kernel() kernel.Kernel { return d.k }

// Name returns the name of the host mesh the data came from.
func (d *Mesh) Name() string { return d.name }

// SetLogger sets the logger stages use while working on the mesh.
func (d *Mesh) SetLogger(l *slog.Logger) { d.log = l }

// Logger returns the logger set with SetLogger, or slog.Default.
func (d *Mesh) Logger() *slog.Logger {
	if d.log == nil {
		return slog.Default()
	}
	return d.log
}

// Consumed reports whether the mesh has been downloaded or released.
func (d *Mesh) Consumed() bool { return d.consumed }

// Handle returns the underlying kernel handle.
func (d *Mesh) Handle() (kernel.Handle, error) {
	if d.consumed {
		return nil, ErrConsumedHandle
	}
	return d.h, nil
}

// HasUV reports whether a UV buffer is attached.
func (d *Mesh) HasUV() bool { return !d.consumed && len(d.uv) > 0 }

// Buffers returns a read-only view of the resident buffers.
func (d *Mesh) Buffers() (kernel.Buffers, error) {
	if d.consumed {
		return kernel.Buffers{}, ErrConsumedHandle
	}
	b, err := d.k.Buffers(d.h)
	if err != nil {
		return kernel.Buffers{}, kernel.Failure("buffers", err)
	}
	return b, nil
}

// Counts returns the resident vertex and face counts.
func (d *Mesh) Counts() (vertices, faces int, err error) {
	b, err := d.Buffers()
	if err != nil {
		return 0, 0, err
	}
	return b.VertexCount(), b.FaceCount(), nil
}

// Apply runs a mutating kernel operation on the resident mesh. Errors are
// reported as kernel failures of op. The UV buffer is kept only if the
// operation leaves the vertex buffer unchanged.
func (d *Mesh) Apply(op string, fn func(k kernel.Kernel, h kernel.Handle) error) error {
	b, err := d.Buffers()
	if err != nil {
		return err
	}
	var before []float32
	if d.uv != nil {
		before = slices.Clone(b.Vertices)
	}
	if err := fn(d.k, d.h); err != nil {
		return kernel.Failure(op, err)
	}
	after, err := d.Buffers()
	if err != nil {
		return err
	}
	if d.uv != nil && !slices.Equal(before, after.Vertices) {
		d.uv = nil
	}
	return nil
}

// Replace swaps the resident mesh for b, releasing the previous handle.
// uv must be nil or hold two floats per vertex of b. On error the previous
// mesh stays resident.
func (d *Mesh) Replace(op string, b kernel.Buffers, uv []float32) error {
	if d.consumed {
		return ErrConsumedHandle
	}
	if uv != nil && len(uv) != b.VertexCount()*2 {
		return kernel.Failure(op, fmt.Errorf("uv length %d for %d vertices", len(uv), b.VertexCount()))
	}
	h, err := d.k.Init(b)
	if err != nil {
		return kernel.Failure(op, err)
	}
	old := d.h
	d.h, d.uv = h, uv
	if err := d.k.Release(old); err != nil {
		return kernel.Failure(op, err)
	}
	return nil
}

// Download copies the mesh back to the host and releases the kernel
// handle. The Mesh is consumed afterwards, even when releasing fails.
func (d *Mesh) Download() (*kernel.Mesh, error) {
	if d.consumed {
		return nil, ErrConsumedHandle
	}
	b, err := d.k.Read(d.h)
	if err != nil {
		return nil, kernel.Failure("read", err)
	}
	m := fromBuffers(b, d.uv)
	m.Name = d.name
	d.consumed = true
	d.uv = nil
	if err := d.k.Release(d.h); err != nil {
		return m, kernel.Failure("release", err)
	}
	return m, nil
}

// Release frees the kernel handle without reading it back. Releasing a
// consumed mesh is a no-op, so Release can always be deferred.
func (d *Mesh) Release() error {
	if d == nil || d.consumed {
		return nil
	}
	d.consumed = true
	d.uv = nil
	return kernel.Failure("release", d.k.Release(d.h))
}

func toBuffers(m *kernel.Mesh) (kernel.Buffers, error) {
	if err := m.Validate(); err != nil {
		return kernel.Buffers{}, err
	}
	if len(m.Vertices) > math.MaxInt32 {
		return kernel.Buffers{}, kernel.InvalidMeshf("%d vertices exceed the index range", len(m.Vertices))
	}
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
	return b, nil
}

func fromBuffers(b kernel.Buffers, uv []float32) *kernel.Mesh {
	m := &kernel.Mesh{
		Vertices: make([][3]float64, b.VertexCount()),
		Faces:    make([][3]int, b.FaceCount()),
	}
	for i := range m.Vertices {
		m.Vertices[i] = [3]float64{
			float64(b.Vertices[i*3]),
			float64(b.Vertices[i*3+1]),
			float64(b.Vertices[i*3+2]),
		}
	}
	for i := range m.Faces {
		m.Faces[i] = [3]int{int(b.Faces[i*3]), int(b.Faces[i*3+1]), int(b.Faces[i*3+2])}
	}
	if len(uv) == len(m.Vertices)*2 && len(uv) > 0 {
		m.UV = make([][2]float64, len(m.Vertices))
		for i := range m.UV {
			m.UV[i] = [2]float64{float64(uv[i*2]), float64(uv[i*2+1])}
		}
	}
	return m
}
