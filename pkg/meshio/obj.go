package meshio

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/chazu/meshforge/pkg/kernel"
)

// decodeOBJ reads positions, faces and, when every face corner uses the
// same index for its position and texture coordinate, per-vertex UVs.
func decodeOBJ(path string) (*kernel.Mesh, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m := &kernel.Mesh{}
	var uv [][2]float64
	uvShared := true

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		switch fields[0] {
		case "v":
			v, err := parseFloats(fields[1:], 3)
			if err != nil {
				return nil, fmt.Errorf("obj line %d: %w", line, err)
			}
			m.Vertices = append(m.Vertices, [3]float64{v[0], v[1], v[2]})
		case "vt":
			t, err := parseFloats(fields[1:], 2)
			if err != nil {
				return nil, fmt.Errorf("obj line %d: %w", line, err)
			}
			uv = append(uv, [2]float64{t[0], t[1]})
		case "f":
			if len(fields) < 4 {
				return nil, fmt.Errorf("obj line %d: face with %d corners", line, len(fields)-1)
			}
			poly := make([]int, 0, len(fields)-1)
			for _, c := range fields[1:] {
				vi, ti, err := objCorner(c, len(m.Vertices), len(uv))
				if err != nil {
					return nil, fmt.Errorf("obj line %d: %w", line, err)
				}
				if ti != vi {
					uvShared = false
				}
				poly = append(poly, vi)
			}
			m.Faces = append(m.Faces, fan(poly)...)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if uvShared && len(uv) == len(m.Vertices) && len(uv) > 0 {
		m.UV = uv
	}
	return m, nil
}

// objCorner parses "v", "v/vt", "v//vn" or "v/vt/vn" into zero-based
// position and texture indices; ti is -1 when absent. Negative indices
// count back from the last element read.
func objCorner(s string, nv, nt int) (vi, ti int, err error) {
	parts := strings.Split(s, "/")
	vi, err = objIndex(parts[0], nv)
	if err != nil {
		return 0, 0, err
	}
	ti = -1
	if len(parts) > 1 && parts[1] != "" {
		if ti, err = objIndex(parts[1], nt); err != nil {
			return 0, 0, err
		}
	}
	return vi, ti, nil
}

func objIndex(s string, n int) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("bad index %q", s)
	}
	switch {
	case i > 0:
		i--
	case i < 0:
		i += n
	default:
		return 0, fmt.Errorf("zero index")
	}
	if i < 0 || i >= n {
		return 0, fmt.Errorf("index %s out of range", s)
	}
	return i, nil
}

func encodeOBJ(path string, m *kernel.Mesh) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if m.Name != "" {
		fmt.Fprintf(w, "o %s\n", m.Name)
	}
	for _, v := range m.Vertices {
		fmt.Fprintf(w, "v %g %g %g\n", v[0], v[1], v[2])
	}
	for _, t := range m.UV {
		fmt.Fprintf(w, "vt %g %g\n", t[0], t[1])
	}
	for _, fc := range m.Faces {
		if m.HasUV() {
			fmt.Fprintf(w, "f %d/%d %d/%d %d/%d\n", fc[0]+1, fc[0]+1, fc[1]+1, fc[1]+1, fc[2]+1, fc[2]+1)
		} else {
			fmt.Fprintf(w, "f %d %d %d\n", fc[0]+1, fc[1]+1, fc[2]+1)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// parseFloats parses the first n fields.
func parseFloats(fields []string, n int) ([]float64, error) {
	if len(fields) < n {
		return nil, fmt.Errorf("want %d values, have %d", n, len(fields))
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		v, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// fan triangulates a convex polygon around its first corner.
func fan(poly []int) [][3]int {
	out := make([][3]int, 0, len(poly)-2)
	for i := 1; i+1 < len(poly); i++ {
		out = append(out, [3]int{poly[0], poly[i], poly[i+1]})
	}
	return out
}
