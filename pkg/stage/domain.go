package stage

import (
	"fmt"

	"github.com/samber/lo"
)

// Domain describes the accepted values and default of one stage parameter.
type Domain struct {
	Stage   string
	Field   string
	Allowed string
	Default any
	check   func(v any) bool
}

// Contains reports whether v lies within the domain.
func (d Domain) Contains(v any) bool {
	return d.check(v)
}

func (d Domain) validate(v any) error {
	if d.check(v) {
		return nil
	}
	return &ParamError{Stage: d.Stage, Field: d.Field, Domain: d.Allowed, Value: v}
}

func intRange(low, high, step int) func(any) bool {
	return func(v any) bool {
		n, ok := v.(int)
		return ok && n >= low && n <= high && n%step == 0
	}
}

// floatRange checks low < v <= high, or low <= v <= high when closed is set.
func floatRange(low, high float64, closed bool) func(any) bool {
	return func(v any) bool {
		f, ok := v.(float64)
		if !ok || !(f <= high) {
			return false
		}
		if closed {
			return f >= low
		}
		return f > low
	}
}

var (
	resolutionDomain = Domain{NameRemesh, "resolution", "multiple of 16 in [16, 1024]", 128, intRange(16, 1024, 16)}
	bandDomain       = Domain{NameRemesh, "band", "(0, 9.9]", 1.0, floatRange(0, 9.9, false)}
	projectDomain    = Domain{NameRemesh, "project_back", "(0, 9.9]", 0.9, floatRange(0, 9.9, false)}
	scaleDomain      = Domain{NameRemesh, "scale", "[0.01, 9.99]", 1.0, floatRange(0.01, 9.99, true)}
	targetDomain     = Domain{NameSimplify, "target_faces", "[100, 2000000]", 200000, intRange(100, 2_000_000, 1)}
	perimeterDomain  = Domain{NameFillHoles, "max_hole_perimeter", "[0.001, 100]", 0.1, floatRange(0.001, 100, true)}
	thresholdDomain  = Domain{NameRemoveSmallComponents, "size_threshold", "(0, 10)", 1e-5, func(v any) bool {
		f, ok := v.(float64)
		return ok && f > 0 && f < 10
	}}
)

// Domains lists the parameter domains of every stage.
func Domains() []Domain {
	return []Domain{
		resolutionDomain, bandDomain, projectDomain, scaleDomain,
		targetDomain, perimeterDomain, thresholdDomain,
	}
}

// Names lists every stage name in pipeline documentation order.
func Names() []string {
	return []string{
		NameUnwrap, NameRemesh, NameSimplify, NameFillHoles,
		NameRemoveDuplicateFaces, NameRepairNonManifoldEdges,
		NameRemoveNonManifoldFaces, NameRemoveSmallComponents,
		NameUnifyOrientation,
	}
}

// DomainsOf returns the parameter domains of the named stage.
func DomainsOf(name string) []Domain {
	return lo.Filter(Domains(), func(d Domain, _ int) bool { return d.Stage == name })
}

// Describe renders a stage and its parameters for logs and errors.
func Describe(s Stage) string {
	return fmt.Sprintf("%s %+v", s.Name(), s)
}
