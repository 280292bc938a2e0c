// Package meshio loads meshes from and exports meshes to files.
//
// Loading accepts glTF binary and JSON, OBJ, PLY, STL and 3MF files.
// Scenes with several meshes or primitives are flattened into one triangle
// mesh, polygons are fan-triangulated, and everything that is not geometry
// (materials, normals, colors) is discarded. Exports go under the
// configured output directory, named after a prefix that may contain a
// subfolder.
package meshio

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/chazu/meshforge/pkg/kernel"
	"github.com/mitchellh/go-homedir"
)

var (
	// ErrMeshNotFound is returned when a load path resolves to no file.
	ErrMeshNotFound = errors.New("mesh not found")

	// ErrExportFailure is returned for any failure while exporting.
	ErrExportFailure = errors.New("export failed")

	// ErrUnsupportedFormat is returned for formats meshio cannot read or
	// write. On export it also matches ErrExportFailure.
	ErrUnsupportedFormat = errors.New("unsupported mesh format")
)

type decodeFunc func(path string) (*kernel.Mesh, error)
type encodeFunc func(path string, m *kernel.Mesh) error

var decoders = map[Format]decodeFunc{
	GLB:     decodeGLTF,
	GLTF:    decodeGLTF,
	OBJ:     decodeOBJ,
	PLY:     decodePLY,
	STL:     decodeSTL,
	ThreeMF: decode3MF,
}

var encoders = map[Format]encodeFunc{
	GLB:     encodeGLB,
	OBJ:     encodeOBJ,
	PLY:     encodePLY,
	STL:     encodeSTL,
	ThreeMF: encode3MF,
	Collada: encodeDAE,
}

// IO loads and exports meshes relative to its configured directories.
type IO struct {
	Config Config
	Logger *slog.Logger
}

// New returns an IO using cfg.
func New(cfg Config) *IO {
	return &IO{Config: cfg}
}

func (o *IO) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// Resolve returns the file a load of path would read. The path is used as
// given when it exists and is joined to InputDir otherwise.
func (o *IO) Resolve(path string) (string, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", fmt.Errorf("meshio: %w: %s: %v", ErrMeshNotFound, path, err)
	}
	candidates := []string{expanded}
	if !filepath.IsAbs(expanded) && o.Config.InputDir != "" {
		candidates = append(candidates, filepath.Join(o.Config.InputDir, expanded))
	}
	for _, c := range candidates {
		if fi, err := os.Stat(c); err == nil && !fi.IsDir() {
			return c, nil
		}
	}
	return "", fmt.Errorf("meshio: %w: %s", ErrMeshNotFound, path)
}

// Load reads the mesh at path.
func (o *IO) Load(path string) (*kernel.Mesh, error) {
	file, err := o.Resolve(path)
	if err != nil {
		return nil, err
	}
	f, err := detect(file)
	if err != nil {
		return nil, fmt.Errorf("meshio: load %s: %w", file, err)
	}
	dec, ok := decoders[f]
	if !ok {
		return nil, fmt.Errorf("meshio: load %s: %w: %s", file, ErrUnsupportedFormat, f)
	}
	m, err := dec(file)
	if err != nil {
		return nil, fmt.Errorf("meshio: load %s: %w", file, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("meshio: load %s: %w", file, err)
	}
	m.Name = strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	o.logger().Debug("mesh loaded",
		"path", file,
		"format", f,
		"vertices", m.VertexCount(),
		"faces", m.FaceCount())
	return m, nil
}

// exportError wraps err so it matches ErrExportFailure.
type exportError struct {
	path string
	err  error
}

func (e *exportError) Error() string {
	return fmt.Sprintf("meshio: export %s: %v", e.path, e.err)
}

func (e *exportError) Unwrap() error { return e.err }

func (e *exportError) Is(target error) bool { return target == ErrExportFailure }

// Export writes m in format under OutputDir and returns the written path
// relative to OutputDir, with forward slashes. prefix names the file and
// may contain a subfolder, e.g. "3D/mesh". Preview exports always go to
// "{subfolder}/{name}_preview_.{format}", replacing the previous preview.
func (o *IO) Export(m *kernel.Mesh, prefix string, format Format, preview bool) (string, error) {
	enc, ok := encoders[format]
	if !ok {
		return "", &exportError{path: prefix, err: fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)}
	}
	if err := m.Validate(); err != nil {
		return "", &exportError{path: prefix, err: err}
	}
	t, err := o.Config.resolve(prefix, format, preview)
	if err != nil {
		return "", &exportError{path: prefix, err: err}
	}
	if err := os.MkdirAll(filepath.Dir(t.abs), 0o755); err != nil {
		return "", &exportError{path: t.rel, err: err}
	}
	if err := enc(t.abs, m); err != nil {
		_ = os.Remove(t.abs)
		return "", &exportError{path: t.rel, err: err}
	}
	o.logger().Info("mesh exported",
		"path", t.rel,
		"format", format,
		"preview", preview,
		"vertices", m.VertexCount(),
		"faces", m.FaceCount())
	return t.rel, nil
}
