package stage

// PostProcess is the usual repair sequence run after generation or
// remeshing. It expands to fill-holes, remove-duplicate-faces,
// repair-non-manifold-edges, remove-non-manifold-faces,
// remove-small-components and unify-orientation, in that order, omitting
// the disabled steps.
type PostProcess struct {
	FillHoles              bool
	MaxHolePerimeter       float64
	RemoveDuplicateFaces   bool
	RepairNonManifoldEdges bool
	RemoveNonManifoldFaces bool
	RemoveSmallComponents  bool
	SizeThreshold          float64
	UnifyOrientation       bool
}

// DefaultPostProcess enables every step with default parameters.
func DefaultPostProcess() PostProcess {
	return PostProcess{
		FillHoles:              true,
		MaxHolePerimeter:       0.1,
		RemoveDuplicateFaces:   true,
		RepairNonManifoldEdges: true,
		RemoveNonManifoldFaces: true,
		RemoveSmallComponents:  true,
		SizeThreshold:          1e-5,
		UnifyOrientation:       true,
	}
}

// Stages returns the enabled steps in execution order.
func (p PostProcess) Stages() []Stage {
	var out []Stage
	if p.FillHoles {
		out = append(out, FillHoles{MaxHolePerimeter: p.MaxHolePerimeter})
	}
	if p.RemoveDuplicateFaces {
		out = append(out, RemoveDuplicateFaces{})
	}
	if p.RepairNonManifoldEdges {
		out = append(out, RepairNonManifoldEdges{})
	}
	if p.RemoveNonManifoldFaces {
		out = append(out, RemoveNonManifoldFaces{})
	}
	if p.RemoveSmallComponents {
		out = append(out, RemoveSmallComponents{SizeThreshold: p.SizeThreshold})
	}
	if p.UnifyOrientation {
		out = append(out, UnifyOrientation{})
	}
	return out
}

// Validate checks the parameters of the enabled steps.
func (p PostProcess) Validate() error {
	return Validate(p.Stages()...)
}
