// Package kernel defines the abstract geometry kernel interface.
// Implementations (the cpu reference kernel, device backends) run mesh
// processing operations on buffers they own behind this interface. The
// kernel abstraction allows swapping backends without changing the
// orchestration layer.
package kernel

// Handle is an opaque reference to a mesh resident in kernel (device)
// memory. Only the kernel that created a handle can interpret it.
type Handle interface {
	// ID returns a kernel-unique identifier, used for logging.
	ID() uint64
}

// BVH is an opaque, kernel-specific bounding volume hierarchy over a
// triangle soup. It can be built once and handed to Remesh to avoid a
// rebuild.
type BVH interface {
	// Triangles returns the number of triangles indexed by the hierarchy.
	Triangles() int
}

// Buffers are flat mesh buffers at the precision kernels work with:
// three float32 per vertex and three int32 per triangle.
type Buffers struct {
	Vertices []float32 // [x0,y0,z0, x1,y1,z1, ...]
	Faces    []int32   // [i0,i1,i2, ...] triangles
}

// VertexCount returns the number of vertices.
func (b Buffers) VertexCount() int {
	return len(b.Vertices) / 3
}

// FaceCount returns the number of triangles.
func (b Buffers) FaceCount() int {
	return len(b.Faces) / 3
}

// RemeshParams configures a narrow-band remesh. Center and Scale define the
// normalized frame the kernel samples in.
type RemeshParams struct {
	Center      [3]float32
	Scale       float32
	Resolution  int
	Band        float64
	ProjectBack float64
	BVH         BVH // optional; built internally when nil
}

// Kernel is the abstract geometry kernel interface.
// Handle-based methods mutate the mesh in place; each mutation fully
// replaces the handle's vertex and face buffers.
type Kernel interface {
	// Residency
	Init(b Buffers) (Handle, error)
	Buffers(h Handle) (Buffers, error)
	Read(h Handle) (Buffers, error)
	Release(h Handle) error

	// Parameterization and resampling
	UVUnwrap(h Handle) (Buffers, []float32, error)
	BuildBVH(b Buffers) (BVH, error)
	Remesh(b Buffers, p RemeshParams) (Buffers, error)
	Simplify(h Handle, targetFaces int) error

	// Repair
	FillHoles(h Handle, maxHolePerimeter float64) error
	RemoveDuplicateFaces(h Handle) error
	RepairNonManifoldEdges(h Handle) error
	RemoveNonManifoldFaces(h Handle) error
	RemoveSmallConnectedComponents(h Handle, sizeThreshold float64) error
	UnifyFaceOrientations(h Handle) error
}
