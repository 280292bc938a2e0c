// Package cpu implements the kernel.Kernel interface on the host CPU.
// It is the reference backend: every operation of the contract is
// available, buffers live in a handle table that stands in for device
// memory, and the kernel accounts for every byte it holds so callers can
// verify that handles are released.
package cpu

import (
	"errors"
	"fmt"
	"sync"

	"github.com/chazu/meshforge/pkg/kernel"
)

// Compile-time interface checks.
var _ kernel.Kernel = (*Kernel)(nil)
var _ kernel.Handle = (*handle)(nil)

// ErrUnknownHandle is returned for handles this kernel did not create or
// has already released.
var ErrUnknownHandle = errors.New("unknown or released handle")

// DefaultMaxGridPoints bounds the remesh sampling grid.
const DefaultMaxGridPoints = 160 * 160 * 160

// handle implements kernel.Handle.
type handle struct {
	id    uint64
	owner *Kernel
}

// ID returns the kernel-unique handle id.
func (h *handle) ID() uint64 { return h.id }

// resident is the "device memory" behind a handle.
type resident struct {
	buf kernel.Buffers
}

func (r *resident) bytes() int64 {
	return int64(len(r.buf.Vertices)*4 + len(r.buf.Faces)*4)
}

// Kernel implements kernel.Kernel on the CPU.
// A Kernel may be shared between concurrent pipelines; a single handle
// must not be used concurrently.
type Kernel struct {
	mu            sync.Mutex
	nextID        uint64
	meshes        map[uint64]*resident
	live          int64
	maxGridPoints int
}

// Option configures a Kernel.
type Option func(*Kernel)

// WithMaxGridPoints caps the number of samples the remesher may allocate.
// Requests above the cap fail with a kernel failure instead of exhausting
// memory.
func WithMaxGridPoints(n int) Option {
	return func(k *Kernel) { k.maxGridPoints = n }
}

// New returns a new CPU kernel.
func New(opts ...Option) *Kernel {
	k := &Kernel{
		meshes:        make(map[uint64]*resident),
		maxGridPoints: DefaultMaxGridPoints,
	}
	for _, o := range opts {
		o(k)
	}
	return k
}

// LiveBytes returns the number of buffer bytes held by unreleased handles.
func (k *Kernel) LiveBytes() int64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.live
}

// LiveHandles returns the number of unreleased handles.
func (k *Kernel) LiveHandles() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.meshes)
}

// Init copies b into kernel memory and returns a handle to it.
func (k *Kernel) Init(b kernel.Buffers) (kernel.Handle, error) {
	if err := checkBuffers(b); err != nil {
		return nil, err
	}
	r := &resident{buf: copyBuffers(b)}

	k.mu.Lock()
	defer k.mu.Unlock()
	k.nextID++
	k.meshes[k.nextID] = r
	k.live += r.bytes()
	return &handle{id: k.nextID, owner: k}, nil
}

// Buffers returns the resident buffers without copying. The caller must not
// modify them.
func (k *Kernel) Buffers(h kernel.Handle) (kernel.Buffers, error) {
	r, err := k.lookup(h, "buffers")
	if err != nil {
		return kernel.Buffers{}, err
	}
	return r.buf, nil
}

// Read copies the resident buffers out of kernel memory.
func (k *Kernel) Read(h kernel.Handle) (kernel.Buffers, error) {
	r, err := k.lookup(h, "read")
	if err != nil {
		return kernel.Buffers{}, err
	}
	return copyBuffers(r.buf), nil
}

// Release frees the handle's memory. Releasing twice is a failure.
func (k *Kernel) Release(h kernel.Handle) error {
	hh, ok := h.(*handle)
	if !ok || hh.owner != k {
		return kernel.Failure("release", fmt.Errorf("%w: foreign handle %T", ErrUnknownHandle, h))
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	r, ok := k.meshes[hh.id]
	if !ok {
		return kernel.Failure("release", fmt.Errorf("%w: %d", ErrUnknownHandle, hh.id))
	}
	k.live -= r.bytes()
	delete(k.meshes, hh.id)
	return nil
}

// lookup resolves h to its resident buffers.
func (k *Kernel) lookup(h kernel.Handle, op string) (*resident, error) {
	hh, ok := h.(*handle)
	if !ok || hh.owner != k {
		return nil, kernel.Failure(op, fmt.Errorf("%w: foreign handle %T", ErrUnknownHandle, h))
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	r, ok := k.meshes[hh.id]
	if !ok {
		return nil, kernel.Failure(op, fmt.Errorf("%w: %d", ErrUnknownHandle, hh.id))
	}
	return r, nil
}

// mutate runs fn on an unpacked copy of the handle's mesh and stores the
// result, replacing the resident buffers.
func (k *Kernel) mutate(h kernel.Handle, op string, fn func(s *soup) error) error {
	r, err := k.lookup(h, op)
	if err != nil {
		return err
	}
	s := unpack(r.buf)
	if err := fn(s); err != nil {
		return kernel.Failure(op, err)
	}
	next := s.pack()

	k.mu.Lock()
	defer k.mu.Unlock()
	k.live += int64(len(next.Vertices)*4+len(next.Faces)*4) - r.bytes()
	r.buf = next
	return nil
}

// ---------------------------------------------------------------------------
// Handle operations
// ---------------------------------------------------------------------------

// Simplify collapses edges until the face count reaches targetFaces.
func (k *Kernel) Simplify(h kernel.Handle, targetFaces int) error {
	return k.mutate(h, "simplify", func(s *soup) error {
		s.simplify(targetFaces)
		return nil
	})
}

// FillHoles closes boundary loops with perimeter at most maxHolePerimeter.
func (k *Kernel) FillHoles(h kernel.Handle, maxHolePerimeter float64) error {
	return k.mutate(h, "fill_holes", func(s *soup) error {
		s.fillHoles(maxHolePerimeter)
		return nil
	})
}

// RemoveDuplicateFaces drops faces whose vertex set repeats an earlier face.
func (k *Kernel) RemoveDuplicateFaces(h kernel.Handle) error {
	return k.mutate(h, "remove_duplicate_faces", func(s *soup) error {
		s.removeDuplicateFaces()
		return nil
	})
}

// RepairNonManifoldEdges splits edges shared by more than two faces.
func (k *Kernel) RepairNonManifoldEdges(h kernel.Handle) error {
	return k.mutate(h, "repair_non_manifold_edges", func(s *soup) error {
		s.repairNonManifoldEdges()
		return nil
	})
}

// RemoveNonManifoldFaces deletes faces beyond the second on any edge that
// is still shared by more than two faces.
func (k *Kernel) RemoveNonManifoldFaces(h kernel.Handle) error {
	return k.mutate(h, "remove_non_manifold_faces", func(s *soup) error {
		s.removeNonManifoldFaces()
		return nil
	})
}

// RemoveSmallConnectedComponents removes components whose area is below
// sizeThreshold times the squared extent of the whole mesh.
func (k *Kernel) RemoveSmallConnectedComponents(h kernel.Handle, sizeThreshold float64) error {
	return k.mutate(h, "remove_small_connected_components", func(s *soup) error {
		s.removeSmallComponents(sizeThreshold)
		return nil
	})
}

// UnifyFaceOrientations makes winding consistent within every component
// and turns each closed component outward.
func (k *Kernel) UnifyFaceOrientations(h kernel.Handle) error {
	return k.mutate(h, "unify_face_orientations", func(s *soup) error {
		s.unifyOrientation()
		return nil
	})
}

// UVUnwrap computes a chart atlas for the resident mesh. The returned
// buffers split every face into its own chart; uv holds two floats per
// returned vertex. The resident mesh is left untouched.
func (k *Kernel) UVUnwrap(h kernel.Handle) (kernel.Buffers, []float32, error) {
	r, err := k.lookup(h, "uv_unwrap")
	if err != nil {
		return kernel.Buffers{}, nil, err
	}
	b, uv := unwrapCharts(unpack(r.buf))
	return b, uv, nil
}

// ---------------------------------------------------------------------------
// Buffer helpers
// ---------------------------------------------------------------------------

func checkBuffers(b kernel.Buffers) error {
	if len(b.Vertices)%3 != 0 {
		return kernel.InvalidMeshf("vertex buffer length %d is not a multiple of 3", len(b.Vertices))
	}
	if len(b.Faces)%3 != 0 {
		return kernel.InvalidMeshf("face buffer length %d is not a multiple of 3", len(b.Faces))
	}
	nv := int32(len(b.Vertices) / 3)
	for i, idx := range b.Faces {
		if idx < 0 || idx >= nv {
			return kernel.InvalidMeshf("face %d references vertex %d, have %d vertices", i/3, idx, nv)
		}
	}
	return nil
}

func copyBuffers(b kernel.Buffers) kernel.Buffers {
	return kernel.Buffers{
		Vertices: append([]float32(nil), b.Vertices...),
		Faces:    append([]int32(nil), b.Faces...),
	}
}
