// Package stage defines the mesh processing operations a pipeline runs.
//
// Each stage is a plain value holding its parameters. Validate checks the
// parameters against the stage's declared domains without touching any
// mesh; Apply runs the operation on a device-resident mesh, replacing its
// buffers. Stages hold no state between runs.
package stage

import (
	"errors"
	"fmt"

	"github.com/chazu/meshforge/pkg/device"
)

// ErrInvalidParameter is matched by every parameter validation error.
var ErrInvalidParameter = errors.New("invalid parameter")

// Stage names.
const (
	NameUnwrap                 = "unwrap"
	NameRemesh                 = "remesh"
	NameSimplify               = "simplify"
	NameFillHoles              = "fill-holes"
	NameRemoveDuplicateFaces   = "remove-duplicate-faces"
	NameRepairNonManifoldEdges = "repair-non-manifold-edges"
	NameRemoveNonManifoldFaces = "remove-non-manifold-faces"
	NameRemoveSmallComponents  = "remove-small-components"
	NameUnifyOrientation       = "unify-orientation"
)

// Stage is one mesh processing operation.
type Stage interface {
	// Name returns the stage's name, one of the Name constants.
	Name() string
	// Validate checks the stage parameters. Errors match
	// ErrInvalidParameter.
	Validate() error
	// Apply runs the operation on d.
	Apply(d *device.Mesh) error
}

// ParamError reports a parameter outside its domain.
type ParamError struct {
	Stage  string
	Field  string
	Domain string
	Value  any
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("stage: %s: %s = %v outside %s", e.Stage, e.Field, e.Value, e.Domain)
}

// Is reports ErrInvalidParameter.
func (e *ParamError) Is(target error) bool {
	return target == ErrInvalidParameter
}

// Validate checks every stage in order and returns the first error.
func Validate(stages ...Stage) error {
	for i, s := range stages {
		if s == nil {
			return fmt.Errorf("stage: nil stage at index %d: %w", i, ErrInvalidParameter)
		}
		if err := s.Validate(); err != nil {
			return err
		}
	}
	return nil
}
