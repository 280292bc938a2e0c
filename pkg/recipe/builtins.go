package recipe

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/chazu/meshforge/pkg/meshio"
	"github.com/chazu/meshforge/pkg/stage"
	zygo "github.com/glycerine/zygomys/zygo"
	"github.com/samber/lo"
)

// ---------------------------------------------------------------------------
// Source preprocessing
// ---------------------------------------------------------------------------

// preprocessSource rewrites recipe source for zygomys:
//
//  1. :keyword becomes the string literal "__kw_keyword", so keywords need
//     no global symbols.
//  2. kebab-case identifiers become snake_case (fill-holes -> fill_holes),
//     since zygomys reads a hyphen as subtraction.
//  3. ; line comments become // comments.
//
// String literals are left untouched.
func preprocessSource(source string) string {
	out := make([]byte, 0, len(source)+len(source)/4)
	b := []byte(source)
	i := 0
	for i < len(b) {
		switch c := b[i]; {
		case c == '"':
			j := skipQuoted(b, i, '"', true)
			out = append(out, b[i:j]...)
			i = j
		case c == '`':
			j := skipQuoted(b, i, '`', false)
			out = append(out, b[i:j]...)
			i = j
		case c == ';':
			out = append(out, '/', '/')
			for i < len(b) && b[i] == ';' {
				i++
			}
			for i < len(b) && b[i] != '\n' {
				out = append(out, b[i])
				i++
			}
		case c == ':' && i+1 < len(b) && b[i+1] == '=':
			out = append(out, ':', '=')
			i += 2
		case c == ':' && i+1 < len(b) && isLetter(b[i+1]):
			j := i + 1
			for j < len(b) && isKWChar(b[j]) {
				j++
			}
			out = append(out, '"')
			out = append(out, kwPrefix...)
			out = append(out, b[i+1:j]...)
			out = append(out, '"')
			i = j
		case c == '-' && i > 0 && i+1 < len(b) && isIdentChar(b[i-1]) && isLetter(b[i+1]):
			out = append(out, '_')
			i++
		default:
			out = append(out, c)
			i++
		}
	}
	return string(out)
}

// skipQuoted returns the index just past the literal opened at b[i].
func skipQuoted(b []byte, i int, quote byte, escapes bool) int {
	j := i + 1
	for j < len(b) && b[j] != quote {
		if escapes && b[j] == '\\' && j+1 < len(b) {
			j++
		}
		j++
	}
	if j < len(b) {
		j++
	}
	return j
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isKWChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '-' || c == '_'
}

func isIdentChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '_'
}

// ---------------------------------------------------------------------------
// Values passed through the zygomys environment
// ---------------------------------------------------------------------------

// sexpStage is returned by every stage builtin.
type sexpStage struct {
	stage stage.Stage
}

func (s *sexpStage) SexpString(ps *zygo.PrintState) string {
	return "(" + stage.Describe(s.stage) + ")"
}
func (s *sexpStage) Type() *zygo.RegisteredType { return nil }

// sexpExport is returned by export.
type sexpExport struct {
	export Export
}

func (e *sexpExport) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(export :format %q :prefix %q :preview %t)", e.export.Format, e.export.Prefix, e.export.Preview)
}
func (e *sexpExport) Type() *zygo.RegisteredType { return nil }

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// kwPrefix marks keywords rewritten by preprocessSource.
const kwPrefix = "__kw_"

func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok || !strings.HasPrefix(str.S, kwPrefix) {
		return "", false
	}
	return str.S[len(kwPrefix):], true
}

// kwArgs maps keyword names to their values.
type kwArgs map[string]zygo.Sexp

// parseKW parses a keyword-only argument list, rejecting positional values
// and keywords outside allowed.
func parseKW(builtin string, args []zygo.Sexp, allowed ...string) (kwArgs, error) {
	kw := kwArgs{}
	for i := 0; i < len(args); i++ {
		name, ok := isKW(args[i])
		if !ok {
			return nil, fmt.Errorf("%s: unexpected positional argument %s", builtin, args[i].SexpString(nil))
		}
		if !lo.Contains(allowed, name) {
			return nil, fmt.Errorf("%s: unknown keyword :%s (accepts %s)", builtin, name, keywordList(allowed))
		}
		if i+1 >= len(args) {
			return nil, fmt.Errorf("%s: keyword :%s has no value", builtin, name)
		}
		kw[name] = args[i+1]
		i++
	}
	return kw, nil
}

func keywordList(names []string) string {
	if len(names) == 0 {
		return "no keywords"
	}
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	return ":" + strings.Join(sorted, " :")
}

func (kw kwArgs) floatArg(name string, dst *float64) error {
	v, ok := kw[name]
	if !ok {
		return nil
	}
	f, err := toFloat64(v)
	if err != nil {
		return fmt.Errorf(":%s: %w", name, err)
	}
	*dst = f
	return nil
}

func (kw kwArgs) intArg(name string, dst *int) error {
	v, ok := kw[name]
	if !ok {
		return nil
	}
	n, err := toInt(v)
	if err != nil {
		return fmt.Errorf(":%s: %w", name, err)
	}
	*dst = n
	return nil
}

func (kw kwArgs) boolArg(name string, dst *bool) error {
	v, ok := kw[name]
	if !ok {
		return nil
	}
	b, ok := v.(*zygo.SexpBool)
	if !ok {
		return fmt.Errorf(":%s: expected true or false, got %s", name, v.SexpString(nil))
	}
	*dst = b.Val
	return nil
}

func (kw kwArgs) stringArg(name string, dst *string) error {
	v, ok := kw[name]
	if !ok {
		return nil
	}
	s, err := toKeywordString(v)
	if err != nil {
		return fmt.Errorf(":%s: %w", name, err)
	}
	*dst = s
	return nil
}

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %s", s.SexpString(nil))
}

// toInt accepts integers and floats with no fractional part.
func toInt(s zygo.Sexp) (int, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return int(v.Val), nil
	case *zygo.SexpFloat:
		if v.Val == math.Trunc(v.Val) && math.Abs(v.Val) <= math.MaxInt32 {
			return int(v.Val), nil
		}
	}
	return 0, fmt.Errorf("expected integer, got %s", s.SexpString(nil))
}

// toKeywordString accepts a plain string or a keyword (:glb).
func toKeywordString(s zygo.Sexp) (string, error) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", fmt.Errorf("expected string or keyword, got %s", s.SexpString(nil))
	}
	return strings.TrimPrefix(str.S, kwPrefix), nil
}

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

// stageBuiltin builds a stage from keyword arguments.
type stageBuiltin struct {
	name     string
	keywords []string
	build    func(kw kwArgs) (stage.Stage, error)
}

func noParams(s stage.Stage) stageBuiltin {
	return stageBuiltin{name: s.Name(), build: func(kwArgs) (stage.Stage, error) { return s, nil }}
}

var stageBuiltins = []stageBuiltin{
	noParams(stage.Unwrap{}),
	{
		name:     stage.NameRemesh,
		keywords: []string{"resolution", "band", "project-back", "scale"},
		build: func(kw kwArgs) (stage.Stage, error) {
			s := stage.DefaultRemesh()
			if err := kw.intArg("resolution", &s.Resolution); err != nil {
				return nil, err
			}
			if err := kw.floatArg("band", &s.Band); err != nil {
				return nil, err
			}
			if err := kw.floatArg("project-back", &s.ProjectBack); err != nil {
				return nil, err
			}
			return s, kw.floatArg("scale", &s.Scale)
		},
	},
	{
		name:     stage.NameSimplify,
		keywords: []string{"target-faces"},
		build: func(kw kwArgs) (stage.Stage, error) {
			s := stage.DefaultSimplify()
			return s, kw.intArg("target-faces", &s.TargetFaces)
		},
	},
	{
		name:     stage.NameFillHoles,
		keywords: []string{"max-hole-perimeter"},
		build: func(kw kwArgs) (stage.Stage, error) {
			s := stage.FillHoles{MaxHolePerimeter: stage.DefaultPostProcess().MaxHolePerimeter}
			return s, kw.floatArg("max-hole-perimeter", &s.MaxHolePerimeter)
		},
	},
	noParams(stage.RemoveDuplicateFaces{}),
	noParams(stage.RepairNonManifoldEdges{}),
	noParams(stage.RemoveNonManifoldFaces{}),
	{
		name:     stage.NameRemoveSmallComponents,
		keywords: []string{"size-threshold"},
		build: func(kw kwArgs) (stage.Stage, error) {
			s := stage.RemoveSmallComponents{SizeThreshold: stage.DefaultPostProcess().SizeThreshold}
			return s, kw.floatArg("size-threshold", &s.SizeThreshold)
		},
	},
	noParams(stage.UnifyOrientation{}),
}

// symbol returns the zygomys name of a kebab-case builtin.
func symbol(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}

// registerBuiltins installs the recipe builtins into env. Every stage
// builtin validates its parameters and appends the stage to r.
func registerBuiltins(env *zygo.Zlisp, r *Recipe) {
	for _, sb := range stageBuiltins {
		sb := sb
		env.AddFunction(symbol(sb.name), func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
			kw, err := parseKW(sb.name, args, sb.keywords...)
			if err != nil {
				return zygo.SexpNull, err
			}
			s, err := sb.build(kw)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("%s: %w", sb.name, err)
			}
			if err := s.Validate(); err != nil {
				return zygo.SexpNull, err
			}
			r.Stages = append(r.Stages, s)
			return &sexpStage{stage: s}, nil
		})
	}

	// (post-process :fill-holes true :max-hole-perimeter 0.1 ...)
	env.AddFunction("post_process", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		kw, err := parseKW("post-process", args,
			"fill-holes", "max-hole-perimeter", "remove-duplicate-faces",
			"repair-non-manifold-edges", "remove-non-manifold-faces",
			"remove-small-components", "size-threshold", "unify-orientation")
		if err != nil {
			return zygo.SexpNull, err
		}
		p := stage.DefaultPostProcess()
		for _, set := range []error{
			kw.boolArg("fill-holes", &p.FillHoles),
			kw.floatArg("max-hole-perimeter", &p.MaxHolePerimeter),
			kw.boolArg("remove-duplicate-faces", &p.RemoveDuplicateFaces),
			kw.boolArg("repair-non-manifold-edges", &p.RepairNonManifoldEdges),
			kw.boolArg("remove-non-manifold-faces", &p.RemoveNonManifoldFaces),
			kw.boolArg("remove-small-components", &p.RemoveSmallComponents),
			kw.floatArg("size-threshold", &p.SizeThreshold),
			kw.boolArg("unify-orientation", &p.UnifyOrientation),
		} {
			if set != nil {
				return zygo.SexpNull, fmt.Errorf("post-process: %w", set)
			}
		}
		if err := p.Validate(); err != nil {
			return zygo.SexpNull, err
		}
		r.Stages = append(r.Stages, p.Stages()...)
		return zygo.SexpNull, nil
	})

	// (export :format "glb" :prefix "3D/out" :preview false)
	env.AddFunction("export", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if r.Export != nil {
			return zygo.SexpNull, fmt.Errorf("export: declared more than once")
		}
		kw, err := parseKW("export", args, "format", "prefix", "preview")
		if err != nil {
			return zygo.SexpNull, err
		}
		format := string(meshio.GLB)
		ex := Export{Prefix: "3D/mesh"}
		if err := kw.stringArg("format", &format); err != nil {
			return zygo.SexpNull, fmt.Errorf("export: %w", err)
		}
		if err := kw.stringArg("prefix", &ex.Prefix); err != nil {
			return zygo.SexpNull, fmt.Errorf("export: %w", err)
		}
		if err := kw.boolArg("preview", &ex.Preview); err != nil {
			return zygo.SexpNull, fmt.Errorf("export: %w", err)
		}
		if ex.Format, err = meshio.ParseFormat(format); err != nil {
			return zygo.SexpNull, fmt.Errorf("export: %w", err)
		}
		if !lo.Contains(meshio.ExportFormats, ex.Format) {
			return zygo.SexpNull, fmt.Errorf("export: %s is not an export format", ex.Format)
		}
		r.Export = &ex
		return &sexpExport{export: ex}, nil
	})
}
