package meshio

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/chazu/meshforge/pkg/kernel"
)

// maxPLYListLen bounds the length of a single list property.
const maxPLYListLen = 64

type plyProp struct {
	name     string
	typ      string
	list     bool
	countTyp string
}

type plyElem struct {
	name  string
	count int
	props []plyProp
}

// plyValues yields successive scalar values from the body of a PLY file.
type plyValues interface {
	next(typ string) (float64, error)
}

type plyASCII struct {
	r     *bufio.Reader
	words []string
}

func (p *plyASCII) next(string) (float64, error) {
	for len(p.words) == 0 {
		line, err := p.r.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			return 0, err
		}
		p.words = strings.Fields(line)
	}
	w := p.words[0]
	p.words = p.words[1:]
	return strconv.ParseFloat(w, 64)
}

type plyBinary struct {
	r     io.Reader
	order binary.ByteOrder
	buf   [8]byte
}

func (p *plyBinary) next(typ string) (float64, error) {
	n := plySize(typ)
	if n == 0 {
		return 0, fmt.Errorf("unknown ply type %q", typ)
	}
	b := p.buf[:n]
	if _, err := io.ReadFull(p.r, b); err != nil {
		return 0, err
	}
	switch typ {
	case "char", "int8":
		return float64(int8(b[0])), nil
	case "uchar", "uint8":
		return float64(b[0]), nil
	case "short", "int16":
		return float64(int16(p.order.Uint16(b))), nil
	case "ushort", "uint16":
		return float64(p.order.Uint16(b)), nil
	case "int", "int32":
		return float64(int32(p.order.Uint32(b))), nil
	case "uint", "uint32":
		return float64(p.order.Uint32(b)), nil
	case "float", "float32":
		return float64(math.Float32frombits(p.order.Uint32(b))), nil
	default: // double
		return math.Float64frombits(p.order.Uint64(b)), nil
	}
}

func plySize(typ string) int {
	switch typ {
	case "char", "uchar", "int8", "uint8":
		return 1
	case "short", "ushort", "int16", "uint16":
		return 2
	case "int", "uint", "int32", "uint32", "float", "float32":
		return 4
	case "double", "float64":
		return 8
	}
	return 0
}

// decodePLY reads ascii and binary PLY files. Only vertex positions,
// texture coordinates and face index lists are kept.
func decodePLY(path string) (*kernel.Mesh, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := bufio.NewReader(f)

	format, elems, err := readPLYHeader(r)
	if err != nil {
		return nil, err
	}
	var vals plyValues
	switch format {
	case "ascii":
		vals = &plyASCII{r: r}
	case "binary_little_endian":
		vals = &plyBinary{r: r, order: binary.LittleEndian}
	case "binary_big_endian":
		vals = &plyBinary{r: r, order: binary.BigEndian}
	default:
		return nil, fmt.Errorf("ply: unknown format %q", format)
	}

	m := &kernel.Mesh{}
	var uv [][2]float64
	for _, el := range elems {
		for i := 0; i < el.count; i++ {
			var pos [3]float64
			var tex [2]float64
			hasTex := false
			for _, p := range el.props {
				if p.list {
					n, err := vals.next(p.countTyp)
					if err != nil {
						return nil, fmt.Errorf("ply: %s %d: %w", el.name, i, err)
					}
					if n < 0 || n > maxPLYListLen || n != math.Trunc(n) {
						return nil, fmt.Errorf("ply: %s %d: bad list count %v", el.name, i, n)
					}
					idx := make([]int, int(n))
					for j := range idx {
						v, err := vals.next(p.typ)
						if err != nil {
							return nil, fmt.Errorf("ply: %s %d: %w", el.name, i, err)
						}
						idx[j] = int(v)
					}
					if el.name == "face" && (p.name == "vertex_indices" || p.name == "vertex_index") && len(idx) >= 3 {
						m.Faces = append(m.Faces, fan(idx)...)
					}
					continue
				}
				v, err := vals.next(p.typ)
				if err != nil {
					return nil, fmt.Errorf("ply: %s %d: %w", el.name, i, err)
				}
				if el.name != "vertex" {
					continue
				}
				switch p.name {
				case "x":
					pos[0] = v
				case "y":
					pos[1] = v
				case "z":
					pos[2] = v
				case "s", "u", "texture_u":
					tex[0], hasTex = v, true
				case "t", "v", "texture_v":
					tex[1], hasTex = v, true
				}
			}
			if el.name == "vertex" {
				m.Vertices = append(m.Vertices, pos)
				if hasTex {
					uv = append(uv, tex)
				}
			}
		}
	}
	if len(uv) == len(m.Vertices) && len(uv) > 0 {
		m.UV = uv
	}
	return m, nil
}

func readPLYHeader(r *bufio.Reader) (string, []plyElem, error) {
	magic, err := r.ReadString('\n')
	if err != nil || strings.TrimSpace(magic) != "ply" {
		return "", nil, fmt.Errorf("ply: missing magic")
	}
	var (
		format string
		elems  []plyElem
	)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return "", nil, fmt.Errorf("ply: header: %w", err)
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "format":
			if len(fields) < 2 {
				return "", nil, fmt.Errorf("ply: bad format line")
			}
			format = fields[1]
		case "element":
			if len(fields) < 3 {
				return "", nil, fmt.Errorf("ply: bad element line")
			}
			n, err := strconv.Atoi(fields[2])
			if err != nil {
				return "", nil, fmt.Errorf("ply: element count: %w", err)
			}
			elems = append(elems, plyElem{name: fields[1], count: n})
		case "property":
			if len(elems) == 0 {
				return "", nil, fmt.Errorf("ply: property before element")
			}
			el := &elems[len(elems)-1]
			switch {
			case len(fields) == 5 && fields[1] == "list":
				el.props = append(el.props, plyProp{name: fields[4], typ: fields[3], list: true, countTyp: fields[2]})
			case len(fields) == 3:
				el.props = append(el.props, plyProp{name: fields[2], typ: fields[1]})
			default:
				return "", nil, fmt.Errorf("ply: bad property line %q", strings.TrimSpace(line))
			}
		case "end_header":
			return format, elems, nil
		}
	}
}

// encodePLY writes a binary little-endian PLY file.
func encodePLY(path string, m *kernel.Mesh) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "ply\nformat binary_little_endian 1.0\n")
	if m.Name != "" {
		fmt.Fprintf(w, "comment %s\n", m.Name)
	}
	fmt.Fprintf(w, "element vertex %d\nproperty float x\nproperty float y\nproperty float z\n", len(m.Vertices))
	if m.HasUV() {
		fmt.Fprintf(w, "property float s\nproperty float t\n")
	}
	fmt.Fprintf(w, "element face %d\nproperty list uchar int vertex_indices\nend_header\n", len(m.Faces))

	le := binary.LittleEndian
	for i, v := range m.Vertices {
		rec := []float32{float32(v[0]), float32(v[1]), float32(v[2])}
		if m.HasUV() {
			rec = append(rec, float32(m.UV[i][0]), float32(m.UV[i][1]))
		}
		if err := binary.Write(w, le, rec); err != nil {
			f.Close()
			return err
		}
	}
	for _, fc := range m.Faces {
		w.WriteByte(3)
		if err := binary.Write(w, le, [3]int32{int32(fc[0]), int32(fc[1]), int32(fc[2])}); err != nil {
			f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
