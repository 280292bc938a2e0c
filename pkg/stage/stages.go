package stage

import (
	"fmt"
	"math"

	"github.com/chazu/meshforge/pkg/device"
	"github.com/chazu/meshforge/pkg/kernel"
)

// Compile-time interface checks.
var (
	_ Stage = Unwrap{}
	_ Stage = Remesh{}
	_ Stage = Simplify{}
	_ Stage = FillHoles{}
	_ Stage = RemoveDuplicateFaces{}
	_ Stage = RepairNonManifoldEdges{}
	_ Stage = RemoveNonManifoldFaces{}
	_ Stage = RemoveSmallComponents{}
	_ Stage = UnifyOrientation{}
)

// Unwrap computes a UV atlas. The mesh is replaced by the unwrapped
// vertices and faces and carries one UV coordinate per vertex.
type Unwrap struct{}

func (Unwrap) Name() string    { return NameUnwrap }
func (Unwrap) Validate() error { return nil }

func (Unwrap) Apply(d *device.Mesh) error {
	h, err := d.Handle()
	if err != nil {
		return err
	}
	b, uv, err := d.Kernel().UVUnwrap(h)
	if err != nil {
		return kernel.Failure(NameUnwrap, err)
	}
	return d.Replace(NameUnwrap, b, uv)
}

// Remesh rebuilds the surface on a narrow-band grid. The normalization
// frame is always derived from the current mesh bounds; Scale is accepted
// for compatibility but has no effect.
type Remesh struct {
	Resolution  int
	Band        float64
	ProjectBack float64
	Scale       float64

	// BVH, when set, must index the mesh the stage runs on. It is built
	// from the resident buffers otherwise.
	BVH kernel.BVH
}

// DefaultRemesh returns a Remesh with default parameters.
func DefaultRemesh() Remesh {
	return Remesh{Resolution: 128, Band: 1, ProjectBack: 0.9, Scale: 1}
}

func (Remesh) Name() string { return NameRemesh }

func (r Remesh) String() string {
	return fmt.Sprintf("{Resolution:%d Band:%g ProjectBack:%g Scale:%g}",
		r.Resolution, r.Band, r.ProjectBack, r.Scale)
}

func (r Remesh) Validate() error {
	if err := resolutionDomain.validate(r.Resolution); err != nil {
		return err
	}
	if err := bandDomain.validate(r.Band); err != nil {
		return err
	}
	if err := projectDomain.validate(r.ProjectBack); err != nil {
		return err
	}
	return scaleDomain.validate(r.Scale)
}

func (r Remesh) Apply(d *device.Mesh) error {
	b, err := d.Buffers()
	if err != nil {
		return err
	}
	if b.FaceCount() == 0 {
		return nil
	}
	center, scale := frame(b)
	d.Logger().Debug("remesh frame", "center", center, "scale", scale, "ignored_scale", r.Scale)

	k := d.Kernel()
	tree := r.BVH
	if tree == nil {
		if tree, err = k.BuildBVH(b); err != nil {
			return kernel.Failure(NameRemesh, err)
		}
	}
	out, err := k.Remesh(b, kernel.RemeshParams{
		Center:      center,
		Scale:       scale,
		Resolution:  r.Resolution,
		Band:        r.Band,
		ProjectBack: r.ProjectBack,
		BVH:         tree,
	})
	if err != nil {
		return kernel.Failure(NameRemesh, err)
	}
	return d.Replace(NameRemesh, out, nil)
}

// frame returns the center of the bounding box and its largest side.
func frame(b kernel.Buffers) (center [3]float32, scale float32) {
	lo := [3]float32{math.MaxFloat32, math.MaxFloat32, math.MaxFloat32}
	hi := [3]float32{-math.MaxFloat32, -math.MaxFloat32, -math.MaxFloat32}
	for i := 0; i < len(b.Vertices); i += 3 {
		for c := 0; c < 3; c++ {
			lo[c] = min(lo[c], b.Vertices[i+c])
			hi[c] = max(hi[c], b.Vertices[i+c])
		}
	}
	for c := 0; c < 3; c++ {
		center[c] = (hi[c] + lo[c]) / 2
		scale = max(scale, hi[c]-lo[c])
	}
	return center, scale
}

// Simplify reduces the face count toward TargetFaces.
type Simplify struct {
	TargetFaces int
}

// DefaultSimplify returns a Simplify with the default face target.
func DefaultSimplify() Simplify {
	return Simplify{TargetFaces: targetDomain.Default.(int)}
}

func (Simplify) Name() string { return NameSimplify }

func (s Simplify) Validate() error { return targetDomain.validate(s.TargetFaces) }

func (s Simplify) Apply(d *device.Mesh) error {
	return d.Apply(NameSimplify, func(k kernel.Kernel, h kernel.Handle) error {
		return k.Simplify(h, s.TargetFaces)
	})
}

// FillHoles closes boundary loops whose perimeter, in mesh units, is at
// most MaxHolePerimeter.
type FillHoles struct {
	MaxHolePerimeter float64
}

func (FillHoles) Name() string { return NameFillHoles }

func (f FillHoles) Validate() error { return perimeterDomain.validate(f.MaxHolePerimeter) }

func (f FillHoles) Apply(d *device.Mesh) error {
	return d.Apply(NameFillHoles, func(k kernel.Kernel, h kernel.Handle) error {
		return k.FillHoles(h, f.MaxHolePerimeter)
	})
}

// RemoveDuplicateFaces drops repeated faces.
type RemoveDuplicateFaces struct{}

func (RemoveDuplicateFaces) Name() string    { return NameRemoveDuplicateFaces }
func (RemoveDuplicateFaces) Validate() error { return nil }

func (RemoveDuplicateFaces) Apply(d *device.Mesh) error {
	return d.Apply(NameRemoveDuplicateFaces, func(k kernel.Kernel, h kernel.Handle) error {
		return k.RemoveDuplicateFaces(h)
	})
}

// RepairNonManifoldEdges splits edges shared by more than two faces. It
// may add vertices.
type RepairNonManifoldEdges struct{}

func (RepairNonManifoldEdges) Name() string    { return NameRepairNonManifoldEdges }
func (RepairNonManifoldEdges) Validate() error { return nil }

func (RepairNonManifoldEdges) Apply(d *device.Mesh) error {
	return d.Apply(NameRepairNonManifoldEdges, func(k kernel.Kernel, h kernel.Handle) error {
		return k.RepairNonManifoldEdges(h)
	})
}

// RemoveNonManifoldFaces deletes faces still on non-manifold edges. Run it
// after RepairNonManifoldEdges.
type RemoveNonManifoldFaces struct{}

func (RemoveNonManifoldFaces) Name() string    { return NameRemoveNonManifoldFaces }
func (RemoveNonManifoldFaces) Validate() error { return nil }

func (RemoveNonManifoldFaces) Apply(d *device.Mesh) error {
	return d.Apply(NameRemoveNonManifoldFaces, func(k kernel.Kernel, h kernel.Handle) error {
		return k.RemoveNonManifoldFaces(h)
	})
}

// RemoveSmallComponents drops connected components that are small relative
// to the extent of the whole mesh.
type RemoveSmallComponents struct {
	SizeThreshold float64
}

func (RemoveSmallComponents) Name() string { return NameRemoveSmallComponents }

func (r RemoveSmallComponents) Validate() error { return thresholdDomain.validate(r.SizeThreshold) }

func (r RemoveSmallComponents) Apply(d *device.Mesh) error {
	return d.Apply(NameRemoveSmallComponents, func(k kernel.Kernel, h kernel.Handle) error {
		return k.RemoveSmallConnectedComponents(h, r.SizeThreshold)
	})
}

// UnifyOrientation makes face winding consistent within each component.
type UnifyOrientation struct{}

func (UnifyOrientation) Name() string    { return NameUnifyOrientation }
func (UnifyOrientation) Validate() error { return nil }

func (UnifyOrientation) Apply(d *device.Mesh) error {
	return d.Apply(NameUnifyOrientation, func(k kernel.Kernel, h kernel.Handle) error {
		return k.UnifyFaceOrientations(h)
	})
}
