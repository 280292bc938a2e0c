package kernel

import (
	"errors"
	"math"
	"testing"
)

// --- Mesh helper method tests ---

func TestMeshCounts(t *testing.T) {
	tests := []struct {
		name      string
		mesh      Mesh
		wantVerts int
		wantFaces int
		wantEmpty bool
	}{
		{"empty", Mesh{}, 0, 0, true},
		{"one vertex", Mesh{Vertices: [][3]float64{{1, 2, 3}}}, 1, 0, false},
		{
			"one triangle",
			Mesh{
				Vertices: [][3]float64{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
				Faces:    [][3]int{{0, 1, 2}},
			},
			3, 1, false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.mesh.VertexCount(); got != tt.wantVerts {
				t.Errorf("VertexCount() = %d, want %d", got, tt.wantVerts)
			}
			if got := tt.mesh.FaceCount(); got != tt.wantFaces {
				t.Errorf("FaceCount() = %d, want %d", got, tt.wantFaces)
			}
			if got := tt.mesh.IsEmpty(); got != tt.wantEmpty {
				t.Errorf("IsEmpty() = %v, want %v", got, tt.wantEmpty)
			}
		})
	}
}

func TestMeshValidate(t *testing.T) {
	tri := [][3]float64{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}
	tests := []struct {
		name    string
		mesh    *Mesh
		wantErr bool
	}{
		{"nil", nil, true},
		{"empty", &Mesh{}, false},
		{"valid", &Mesh{Vertices: tri, Faces: [][3]int{{0, 1, 2}}}, false},
		{"index too large", &Mesh{Vertices: tri, Faces: [][3]int{{0, 1, 3}}}, true},
		{"negative index", &Mesh{Vertices: tri, Faces: [][3]int{{-1, 1, 2}}}, true},
		{"faces without vertices", &Mesh{Faces: [][3]int{{0, 0, 0}}}, true},
		{"uv mismatch", &Mesh{Vertices: tri, UV: [][2]float64{{0, 0}}}, true},
		{"uv match", &Mesh{Vertices: tri, UV: [][2]float64{{0, 0}, {1, 0}, {0, 1}}}, false},
		{"nan vertex", &Mesh{Vertices: [][3]float64{{math.NaN(), 0, 0}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.mesh.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidMesh) {
				t.Errorf("Validate() error = %v, want ErrInvalidMesh", err)
			}
		})
	}
}

func TestMeshBounds(t *testing.T) {
	m := &Mesh{Vertices: [][3]float64{{1, -2, 3}, {-4, 5, 0}, {2, 2, 2}}}
	min, max := m.Bounds()
	if min != [3]float64{-4, -2, 0} {
		t.Errorf("Bounds min = %v, want [-4 -2 0]", min)
	}
	if max != [3]float64{2, 5, 3} {
		t.Errorf("Bounds max = %v, want [2 5 3]", max)
	}
}

func TestMeshClone(t *testing.T) {
	m := &Mesh{
		Vertices: [][3]float64{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
		Faces:    [][3]int{{0, 1, 2}},
		UV:       [][2]float64{{0, 0}, {1, 0}, {0, 1}},
		Name:     "tri",
	}
	c := m.Clone()
	c.Vertices[0][0] = 42
	c.Faces[0][0] = 2
	c.UV[0][0] = 9
	if m.Vertices[0][0] != 0 || m.Faces[0][0] != 0 || m.UV[0][0] != 0 {
		t.Error("Clone() shares buffers with the original")
	}
	if c.Name != "tri" {
		t.Errorf("Clone() name = %q, want %q", c.Name, "tri")
	}
}

func TestBuffersCounts(t *testing.T) {
	b := Buffers{
		Vertices: []float32{0, 0, 0, 1, 0, 0, 1, 1, 0, 0, 1, 0},
		Faces:    []int32{0, 1, 2, 2, 3, 0},
	}
	if got := b.VertexCount(); got != 4 {
		t.Errorf("VertexCount() = %d, want 4", got)
	}
	if got := b.FaceCount(); got != 2 {
		t.Errorf("FaceCount() = %d, want 2", got)
	}
}

// --- Failure wrapping ---

func TestFailure(t *testing.T) {
	if Failure("simplify", nil) != nil {
		t.Error("Failure(nil) should be nil")
	}

	cause := errors.New("out of memory")
	err := Failure("simplify", cause)
	if !errors.Is(err, ErrKernelFailure) {
		t.Errorf("Failure() = %v, want ErrKernelFailure", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("Failure() = %v, want to unwrap to cause", err)
	}
	var fe *FailureError
	if !errors.As(err, &fe) || fe.Op != "simplify" {
		t.Errorf("Failure() op = %v, want simplify", err)
	}

	// Already-classified errors pass through untouched.
	if got := Failure("read", err); got != err {
		t.Errorf("Failure(failure) = %v, want passthrough", got)
	}
	inv := InvalidMeshf("bad index %d", 7)
	if got := Failure("init", inv); got != inv {
		t.Errorf("Failure(invalid mesh) = %v, want passthrough", got)
	}
}

// --- Compile-time interface check with a stub kernel ---

type stubHandle struct{ id uint64 }

func (h *stubHandle) ID() uint64 { return h.id }

// stubKernel is a minimal Kernel implementation that proves the interface
// is satisfiable. Every handle operation is a no-op.
type stubKernel struct {
	b Buffers
}

func (k *stubKernel) Init(b Buffers) (Handle, error) {
	k.b = b
	return &stubHandle{id: 1}, nil
}
func (k *stubKernel) Buffers(Handle) (Buffers, error) { return k.b, nil }
func (k *stubKernel) Read(Handle) (Buffers, error)    { return k.b, nil }
func (k *stubKernel) Release(Handle) error            { return nil }

func (k *stubKernel) UVUnwrap(Handle) (Buffers, []float32, error) {
	return k.b, make([]float32, k.b.VertexCount()*2), nil
}
func (k *stubKernel) BuildBVH(Buffers) (BVH, error)                 { return nil, nil }
func (k *stubKernel) Remesh(b Buffers, _ RemeshParams) (Buffers, error) { return b, nil }
func (k *stubKernel) Simplify(Handle, int) error                     { return nil }

func (k *stubKernel) FillHoles(Handle, float64) error                      { return nil }
func (k *stubKernel) RemoveDuplicateFaces(Handle) error                    { return nil }
func (k *stubKernel) RepairNonManifoldEdges(Handle) error                  { return nil }
func (k *stubKernel) RemoveNonManifoldFaces(Handle) error                  { return nil }
func (k *stubKernel) RemoveSmallConnectedComponents(Handle, float64) error { return nil }
func (k *stubKernel) UnifyFaceOrientations(Handle) error                   { return nil }

// Compile-time checks that the stubs implement the interfaces.
var _ Handle = (*stubHandle)(nil)
var _ Kernel = (*stubKernel)(nil)

func TestStubKernelRoundTrip(t *testing.T) {
	var k Kernel = &stubKernel{}
	in := Buffers{Vertices: []float32{0, 0, 0, 1, 0, 0, 0, 1, 0}, Faces: []int32{0, 1, 2}}
	h, err := k.Init(in)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	out, err := k.Read(h)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if out.VertexCount() != 3 || out.FaceCount() != 1 {
		t.Errorf("Read() = %d verts %d faces, want 3 and 1", out.VertexCount(), out.FaceCount())
	}
}
